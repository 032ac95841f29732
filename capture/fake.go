package capture

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

// FakeSource synthesizes frames with a moving bar so tests and -fake runs
// can exercise the full pipeline without a camera.
type FakeSource struct {
	width    int
	height   int
	interval time.Duration

	mu     sync.Mutex
	frames chan Frame
	stop   chan struct{}
	done   chan struct{}
	seq    uint64
}

func NewFakeSource(width, height int, fps int) *FakeSource {
	if width <= 0 || height <= 0 {
		width, height = DefaultWidth, DefaultHeight
	}
	if fps <= 0 {
		fps = DefaultFPS
	}
	return &FakeSource{
		width:    width,
		height:   height,
		interval: time.Second / time.Duration(fps),
	}
}

func (f *FakeSource) Resolution() (int, int) { return f.width, f.height }

func (f *FakeSource) Start(ctx context.Context) (<-chan Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.frames != nil {
		return nil, fmt.Errorf("fake source already started")
	}
	f.frames = make(chan Frame, 4)
	f.stop = make(chan struct{})
	f.done = make(chan struct{})

	go func() {
		defer close(f.done)
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-f.stop:
				return
			case <-ticker.C:
			}
			frame := f.render()
			select {
			case f.frames <- frame:
			default: // drop when the consumer lags
			}
		}
	}()

	return f.frames, nil
}

func (f *FakeSource) render() Frame {
	f.mu.Lock()
	f.seq++
	seq := f.seq
	f.mu.Unlock()

	base := imaging.New(f.width, f.height, color.NRGBA{R: 24, G: 24, B: 32, A: 255})
	barX := int(seq*8) % f.width
	for y := 0; y < f.height; y++ {
		for x := barX; x < barX+16 && x < f.width; x++ {
			base.SetNRGBA(x, y, color.NRGBA{R: 220, G: 220, B: 220, A: 255})
		}
	}

	img := image.NewRGBA(image.Rect(0, 0, f.width, f.height))
	draw.Draw(img, img.Bounds(), base, image.Point{}, draw.Src)
	return Frame{
		Seq:     seq,
		TraceID: uuid.New().String(),
		Time:    time.Now(),
		Image:   img,
	}
}

func (f *FakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stop == nil {
		return nil
	}
	select {
	case <-f.stop:
	default:
		close(f.stop)
	}
	<-f.done
	return nil
}

// FakeMicContext and FakeMic feed silence (or a caller-supplied PCM loop)
// at the real capture cadence.
type FakeMicContext struct {
	PCM []byte
}

func (f *FakeMicContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake mic"}}, nil
}

func (f *FakeMicContext) NewCapture(_ *DeviceInfo, cfg MicConfig, cb MicCallback) (MicDevice, error) {
	return &FakeMic{pcm: f.PCM, cfg: cfg, cb: cb}, nil
}

func (f *FakeMicContext) Close() {}

type FakeMic struct {
	pcm []byte
	cfg MicConfig
	cb  MicCallback

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func (m *FakeMic) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stop = make(chan struct{})
	m.done = make(chan struct{})

	frames := uint32(m.cfg.SampleRate / 50) // 20ms blocks
	blockBytes := int(frames) * 2 * int(m.cfg.Channels)
	interval := 20 * time.Millisecond

	go func() {
		defer close(m.done)
		pos := 0
		silence := make([]byte, blockBytes)
		for {
			select {
			case <-m.stop:
				return
			case <-time.After(interval):
			}
			block := silence
			if len(m.pcm) > 0 {
				end := pos + blockBytes
				if end > len(m.pcm) {
					pos, end = 0, blockBytes
				}
				block = m.pcm[pos:end]
				pos = end
			}
			m.cb(block, frames)
		}
	}()
	return nil
}

func (m *FakeMic) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop == nil {
		return
	}
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
	<-m.done
}

func (m *FakeMic) Close() {
	m.Stop()
}

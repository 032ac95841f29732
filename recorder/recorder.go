package recorder

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"glance/log"
)

// SurfaceFunc returns the latest composited surface, or false when none
// has been rendered yet.
type SurfaceFunc func() (*image.RGBA, bool)

// Media is the assembled recording handed to the upload step.
type Media struct {
	Bytes    []byte
	MIME     string
	Duration time.Duration
}

// Pipeline drives the encoder at a fixed frame rate off the composited
// surface and keeps every produced chunk, in production order, until the
// media object is assembled. Chunks survive a failed upload so a retry
// never starts from nothing.
type Pipeline struct {
	enc     Encoder
	surface SurfaceFunc

	mu        sync.Mutex
	chunks    []Chunk
	media     Media
	stopErr   error
	started   bool
	stopped   bool
	startedAt time.Time

	cancel      context.CancelFunc
	feedDone    chan struct{}
	collectDone chan struct{}
	stopOnce    sync.Once
}

func NewPipeline(enc Encoder, surface SurfaceFunc) *Pipeline {
	return &Pipeline{enc: enc, surface: surface}
}

// Start brings the encoder up and begins feeding it. An encoder that
// refuses to start is fatal to the recording attempt.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return fmt.Errorf("recording pipeline already started")
	}

	if err := p.enc.Start(); err != nil {
		return fmt.Errorf("starting encoder: %w", err)
	}
	p.started = true
	p.startedAt = time.Now()

	fctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.feedDone = make(chan struct{})
	p.collectDone = make(chan struct{})

	go p.feed(fctx)
	go p.collect()
	return nil
}

func (p *Pipeline) feed(ctx context.Context) {
	defer close(p.feedDone)
	ticker := time.NewTicker(time.Second / FrameRate)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		frame, ok := p.surface()
		if !ok {
			continue
		}
		if err := p.enc.WriteVideo(frame); err != nil {
			log.Warnf("encoder: video frame dropped: %v", err)
		}
	}
}

// collect appends chunks strictly in production order. The channel close
// is the encoder's flush-complete signal.
func (p *Pipeline) collect() {
	defer close(p.collectDone)
	for c := range p.enc.Chunks() {
		p.mu.Lock()
		p.chunks = append(p.chunks, c)
		p.mu.Unlock()
	}
}

// WriteAudio forwards a PCM block from the microphone callback.
func (p *Pipeline) WriteAudio(pcm []byte) {
	p.mu.Lock()
	started, stopped := p.started, p.stopped
	p.mu.Unlock()
	if !started || stopped {
		return
	}
	if err := p.enc.WriteAudio(pcm); err != nil {
		log.Warnf("encoder: audio block dropped: %v", err)
	}
}

// Stop runs the ordered shutdown: stop feeding, signal the encoder to
// finish, wait for the trailing flush, then assemble the chunks in
// production order. Assembling before flush completion would silently
// truncate the recording, so the wait is not optional. Idempotent; later
// calls return the same media.
func (p *Pipeline) Stop(ctx context.Context) (Media, error) {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		if !p.started {
			p.stopErr = fmt.Errorf("recording pipeline not started")
			p.mu.Unlock()
			return
		}
		p.stopped = true
		p.mu.Unlock()

		p.cancel()
		<-p.feedDone

		flushStart := time.Now()
		p.enc.Stop()
		select {
		case <-p.collectDone:
		case <-ctx.Done():
			p.stopErr = fmt.Errorf("waiting for encoder flush: %w", ctx.Err())
			return
		}
		flushWait := time.Since(flushStart)

		p.mu.Lock()
		total := 0
		for _, c := range p.chunks {
			total += len(c.Data)
		}
		data := make([]byte, 0, total)
		for _, c := range p.chunks {
			data = append(data, c.Data...)
		}
		p.media = Media{
			Bytes:    data,
			MIME:     p.enc.MIME(),
			Duration: time.Since(p.startedAt),
		}
		nchunks := len(p.chunks)
		p.mu.Unlock()

		log.RecordingMetrics(log.RecordingMetricsData{
			Chunks:      nchunks,
			SizeKB:      float64(total) / 1024,
			DurationS:   p.media.Duration.Seconds(),
			FlushWaitMs: float64(flushWait.Milliseconds()),
		})
	})
	return p.media, p.stopErr
}

// Chunks returns a copy of the buffered chunks. They are kept after Stop
// so an upload failure does not destroy the recording.
func (p *Pipeline) Chunks() []Chunk {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Chunk, len(p.chunks))
	copy(out, p.chunks)
	return out
}

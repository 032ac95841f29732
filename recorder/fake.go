package recorder

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FakeEncoder emits a deterministic chunk per encoded frame so tests can
// verify ordering and the flush-before-assembly contract without
// GStreamer.
type FakeEncoder struct {
	FailStart  bool
	FlushDelay time.Duration // simulated trailing-flush latency on Stop

	mu          sync.Mutex
	chunks      chan Chunk
	seq         int
	videoFrames int
	audioBytes  int
	stopOnce    sync.Once
}

func NewFakeEncoder() *FakeEncoder {
	return &FakeEncoder{}
}

func (e *FakeEncoder) Start() error {
	if e.FailStart {
		return fmt.Errorf("fake encoder: start refused")
	}
	e.mu.Lock()
	e.chunks = make(chan Chunk, 256)
	e.mu.Unlock()
	return nil
}

func (e *FakeEncoder) WriteVideo(_ *image.RGBA) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.videoFrames++
	e.seq++
	e.chunks <- Chunk{
		ID:   uuid.New().String(),
		Seq:  e.seq,
		Time: time.Now(),
		Data: []byte(fmt.Sprintf("chunk%03d|", e.seq)),
	}
	return nil
}

func (e *FakeEncoder) WriteAudio(pcm []byte) error {
	e.mu.Lock()
	e.audioBytes += len(pcm)
	e.mu.Unlock()
	return nil
}

func (e *FakeEncoder) Stop() {
	e.stopOnce.Do(func() {
		go func() {
			time.Sleep(e.FlushDelay)
			e.mu.Lock()
			e.seq++
			e.chunks <- Chunk{
				ID:   uuid.New().String(),
				Seq:  e.seq,
				Time: time.Now(),
				Data: []byte(fmt.Sprintf("tail%03d|", e.seq)),
			}
			close(e.chunks)
			e.mu.Unlock()
		}()
	})
}

func (e *FakeEncoder) Chunks() <-chan Chunk {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.chunks
}

func (e *FakeEncoder) MIME() string { return "video/webm" }

func (e *FakeEncoder) VideoFrames() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.videoFrames
}

func (e *FakeEncoder) AudioBytes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.audioBytes
}

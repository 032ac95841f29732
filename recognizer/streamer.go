package recognizer

import (
	"bytes"
	"context"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"

	"glance/capture"
	"glance/log"
	"glance/region"
)

// DefaultTickInterval is the cadence of the region-extraction timer.
const DefaultTickInterval = time.Second

const jpegQuality = 60

// Sender is the outbound half of the result channel the streamer needs.
type Sender interface {
	SendRegionImage(regionIndex int, jpeg []byte, timestamp float64) error
}

// Streamer is the timer-driven job that, while the session is armed, crops
// each committed region out of the latest raw frame and ships it over the
// result channel. It never reads the composited surface: annotations must
// not contaminate what the recognizer sees.
//
// Sends for different regions in the same tick are independent: one slow
// or failing send never delays the others or the next tick. There is no
// backpressure; a tick that the backend can't keep up with is simply
// superseded by the next one.
type Streamer struct {
	Interval time.Duration // set before Start; defaults to DefaultTickInterval

	model  *region.Model
	latest *capture.Latest
	sender Sender

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	ticks     atomic.Int64
	sent      atomic.Int64
	failures  atomic.Int64
	sentBytes atomic.Int64
}

func NewStreamer(model *region.Model, latest *capture.Latest, sender Sender) *Streamer {
	return &Streamer{
		Interval: DefaultTickInterval,
		model:    model,
		latest:   latest,
		sender:   sender,
	}
}

// Start begins the tick loop. A second Start while running is a no-op.
func (s *Streamer) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	tctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	interval := s.Interval
	if interval <= 0 {
		interval = DefaultTickInterval
	}

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-tctx.Done():
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

// Stop cancels the timer. Idempotent; in-flight sends from the last tick
// finish on their own.
func (s *Streamer) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Streamer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Streamer) tick() {
	frame, ok := s.latest.Load()
	if !ok {
		return
	}
	regions := s.model.List()
	if len(regions) == 0 {
		return
	}
	s.ticks.Add(1)
	timestamp := float64(frame.Time.UnixNano()) / 1e9

	for _, r := range regions {
		go s.sendRegion(frame.Image, r, timestamp)
	}
}

func (s *Streamer) sendRegion(img *image.RGBA, r region.Region, timestamp float64) {
	rect := r.Rect().Intersect(img.Bounds())
	if rect.Empty() {
		return
	}
	cropped := imaging.Crop(img, rect)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, cropped, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		s.failures.Add(1)
		log.Warnf("region %d: jpeg encode failed: %v", r.Index, err)
		return
	}

	if err := s.sender.SendRegionImage(r.Index, buf.Bytes(), timestamp); err != nil {
		s.failures.Add(1)
		log.Warnf("region %d: send failed: %v", r.Index, err)
		return
	}
	s.sent.Add(1)
	s.sentBytes.Add(int64(buf.Len()))
}

func (s *Streamer) Metrics() log.StreamerMetricsData {
	return log.StreamerMetricsData{
		Ticks:        int(s.ticks.Load()),
		SentImages:   int(s.sent.Load()),
		SendFailures: int(s.failures.Load()),
		SentKB:       float64(s.sentBytes.Load()) / 1024,
	}
}

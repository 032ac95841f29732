// Package compositor runs the frame-clocked draw loop: raw frame, region
// borders and labels, latest recognition text, and the in-progress draft
// rectangle, composited onto one presentation surface.
package compositor

import (
	"context"
	"image"
	"image/draw"
	"sync"
	"sync/atomic"
	"time"

	"glance/capture"
	"glance/recognizer"
	"glance/region"
)

// DefaultRefreshRate approximates the display's refresh signal. The loop
// is never throttled below the configured rate by the client itself.
const DefaultRefreshRate = 60

// Sources are the inputs read at the top of every cycle. Each accessor
// must return a snapshot: a result arriving mid-cycle is picked up on the
// next cycle, never torn mid-draw.
type Sources struct {
	Latest  *capture.Latest
	Regions func() []region.Region
	Results func() map[int]recognizer.Result
	Draft   func() (region.Draft, bool)
}

// Loop owns the presentation surface. Restarting it never leaks the
// previous run: at most one scheduled cycle exists at any time.
type Loop struct {
	RefreshRate int // Hz, set before Start; defaults to DefaultRefreshRate

	src Sources

	mu      sync.Mutex
	surface *image.RGBA
	cancel  context.CancelFunc
	done    chan struct{}

	cycles atomic.Uint64
}

func New(src Sources) *Loop {
	return &Loop{RefreshRate: DefaultRefreshRate, src: src}
}

// Start begins the draw cycle, cancelling any previous run first.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	if l.cancel != nil {
		cancel, done := l.cancel, l.done
		l.mu.Unlock()
		cancel()
		<-done
		l.mu.Lock()
	}
	lctx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	done := make(chan struct{})
	l.done = done
	l.mu.Unlock()

	rate := l.RefreshRate
	if rate <= 0 {
		rate = DefaultRefreshRate
	}

	go func() {
		defer close(done)
		ticker := time.NewTicker(time.Second / time.Duration(rate))
		defer ticker.Stop()
		for {
			select {
			case <-lctx.Done():
				return
			case <-ticker.C:
				l.render()
			}
		}
	}()
}

// Stop cancels the loop. Idempotent.
func (l *Loop) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel = nil
	l.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}

// Cycles reports how many draw cycles have completed.
func (l *Loop) Cycles() uint64 { return l.cycles.Load() }

// render is one draw cycle. All inputs are snapshotted up front.
func (l *Loop) render() {
	frame, ok := l.src.Latest.Load()
	if !ok || frame.Image == nil {
		return
	}
	regions := l.src.Regions()
	results := l.src.Results()
	var draft region.Draft
	hasDraft := false
	if l.src.Draft != nil {
		draft, hasDraft = l.src.Draft()
	}

	bounds := frame.Image.Bounds()

	l.mu.Lock()
	defer l.mu.Unlock()

	// Resize the surface when the source dimensions change.
	if l.surface == nil || l.surface.Bounds() != bounds {
		l.surface = image.NewRGBA(bounds)
	}
	draw.Draw(l.surface, bounds, frame.Image, bounds.Min, draw.Src)

	for _, r := range regions {
		res, okRes := results[r.Index]
		drawRegion(l.surface, r, res, okRes)
	}
	if hasDraft {
		drawDraft(l.surface, draft)
	}

	l.cycles.Add(1)
}

// Snapshot returns a copy of the current composited surface. This is what
// the recording pipeline encodes; the raw frame never carries overlays.
func (l *Loop) Snapshot() (*image.RGBA, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.surface == nil {
		return nil, false
	}
	out := image.NewRGBA(l.surface.Bounds())
	copy(out.Pix, l.surface.Pix)
	return out, true
}

package compositor

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"testing"
	"time"

	"glance/capture"
	"glance/recognizer"
	"glance/region"
)

func whiteFrame(w, h int) capture.Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return capture.Frame{Seq: 1, Time: time.Now(), Image: img}
}

type fixtures struct {
	latest   capture.Latest
	model    *region.Model
	results  *recognizer.Results
	draft    region.Draft
	hasDraft bool
}

func newFixtures() *fixtures {
	return &fixtures{model: region.NewModel(), results: recognizer.NewResults()}
}

func (f *fixtures) sources() Sources {
	return Sources{
		Latest:  &f.latest,
		Regions: f.model.List,
		Results: f.results.Snapshot,
		Draft:   func() (region.Draft, bool) { return f.draft, f.hasDraft },
	}
}

func TestRenderDrawsFrameAndRegionOverlays(t *testing.T) {
	f := newFixtures()
	f.latest.Store(whiteFrame(640, 480))
	f.model.Add(region.Region{X: 100, Y: 100, Width: 200, Height: 80})

	l := New(f.sources())
	l.render()

	surface, ok := l.Snapshot()
	if !ok {
		t.Fatal("no surface after render")
	}
	if surface.Bounds() != image.Rect(0, 0, 640, 480) {
		t.Fatalf("surface bounds = %v", surface.Bounds())
	}

	// Raw pixel outside any overlay stays white.
	if got := surface.RGBAAt(50, 50); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("background pixel = %v", got)
	}
	// Border stroke.
	if got := surface.RGBAAt(101, 101); got != borderColor {
		t.Errorf("border pixel = %v, want %v", got, borderColor)
	}
	// Label box above the region's top-left corner.
	if got := surface.RGBAAt(102, 100-labelHeight+2); got != labelBoxColor {
		t.Errorf("label pixel = %v, want %v", got, labelBoxColor)
	}
	// No result yet: the area below the region stays white.
	if got := surface.RGBAAt(110, 185); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("result box drawn without a result: %v", got)
	}
}

func TestRenderPicksUpResultNextCycle(t *testing.T) {
	f := newFixtures()
	f.latest.Store(whiteFrame(640, 480))
	f.model.Add(region.Region{X: 100, Y: 100, Width: 200, Height: 80})

	l := New(f.sources())
	l.render()

	f.results.Put(recognizer.Result{RegionIndex: 0, Text: "ABC"})
	l.render()

	surface, _ := l.Snapshot()
	// The translucent result box darkens the area below the region.
	if got := surface.RGBAAt(110, 185); got == (color.RGBA{255, 255, 255, 255}) {
		t.Error("result overlay missing after result arrived")
	}
}

func TestRenderTruncatesResultToTail(t *testing.T) {
	long := "0123456789012345678901234567890123456789" // 40 runes
	if got := tail(long, 30); got != "6789012345678901234567890123456789" {
		t.Errorf("tail = %q", got)
	}
	if got := tail("ABC", 30); got != "ABC" {
		t.Errorf("tail short = %q", got)
	}
}

func TestRenderDraftDashed(t *testing.T) {
	f := newFixtures()
	f.latest.Store(whiteFrame(640, 480))
	f.draft, f.hasDraft = region.Draft{X: 300, Y: 300, Width: 60, Height: 40}, true

	l := New(f.sources())
	l.render()

	surface, _ := l.Snapshot()
	// Dash "on" segment at the start of the top edge.
	if got := surface.RGBAAt(300, 300); got != draftColor {
		t.Errorf("dash-on pixel = %v, want %v", got, draftColor)
	}
	// Dash "off" gap.
	if got := surface.RGBAAt(300+draftDashOn+1, 300); got == draftColor {
		t.Error("dash-off pixel painted")
	}
}

func TestRenderResizesWithSource(t *testing.T) {
	f := newFixtures()
	f.latest.Store(whiteFrame(320, 240))

	l := New(f.sources())
	l.render()
	if s, _ := l.Snapshot(); s.Bounds().Dx() != 320 {
		t.Fatalf("surface width = %d", s.Bounds().Dx())
	}

	f.latest.Store(whiteFrame(640, 480))
	l.render()
	if s, _ := l.Snapshot(); s.Bounds().Dx() != 640 {
		t.Fatalf("surface width after resize = %d", s.Bounds().Dx())
	}
}

func TestRenderWithoutFrameIsNoOp(t *testing.T) {
	f := newFixtures()
	l := New(f.sources())
	l.render()
	if _, ok := l.Snapshot(); ok {
		t.Error("surface exists without a frame")
	}
	if l.Cycles() != 0 {
		t.Error("cycle counted without a frame")
	}
}

func TestLoopRestartDoesNotLeakPreviousRun(t *testing.T) {
	f := newFixtures()
	f.latest.Store(whiteFrame(64, 48))

	l := New(f.sources())
	l.RefreshRate = 200

	ctx := context.Background()
	l.Start(ctx)
	l.Start(ctx) // restart: previous cycle must be cancelled, not doubled
	time.Sleep(50 * time.Millisecond)

	l.Stop()
	l.Stop() // idempotent
	if l.Running() {
		t.Fatal("running after Stop")
	}

	stopped := l.Cycles()
	time.Sleep(30 * time.Millisecond)
	if got := l.Cycles(); got != stopped {
		t.Errorf("cycles advanced after Stop: %d -> %d", stopped, got)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	f := newFixtures()
	f.latest.Store(whiteFrame(64, 48))
	l := New(f.sources())
	l.render()

	s1, _ := l.Snapshot()
	s1.SetRGBA(0, 0, color.RGBA{1, 2, 3, 255})
	s2, _ := l.Snapshot()
	if s2.RGBAAt(0, 0) == (color.RGBA{1, 2, 3, 255}) {
		t.Error("Snapshot returned live surface")
	}
}

package capture

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFakeSourceYieldsFrames(t *testing.T) {
	src := NewFakeSource(320, 240, 60)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frames, err := src.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Stop()

	select {
	case f := <-frames:
		if f.Image == nil {
			t.Fatal("frame with nil image")
		}
		w, h := src.Resolution()
		if got := f.Image.Bounds().Dx(); got != w {
			t.Errorf("width = %d, want %d", got, w)
		}
		if got := f.Image.Bounds().Dy(); got != h {
			t.Errorf("height = %d, want %d", got, h)
		}
		if f.Seq == 0 {
			t.Error("frame seq not assigned")
		}
		if f.TraceID == "" {
			t.Error("frame trace id not assigned")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no frame within 2s")
	}
}

func TestFakeSourceStopIdempotent(t *testing.T) {
	src := NewFakeSource(320, 240, 60)
	if _, err := src.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := src.Stop(); err != nil {
		t.Fatal(err)
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
}

func TestFakeSourceStartTwice(t *testing.T) {
	src := NewFakeSource(320, 240, 60)
	if _, err := src.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer src.Stop()
	if _, err := src.Start(context.Background()); err == nil {
		t.Error("second Start succeeded, want error")
	}
}

func TestOpenWithFallback(t *testing.T) {
	t.Run("first attempt succeeds", func(t *testing.T) {
		want := NewFakeSource(0, 0, 0)
		calls := 0
		open := func(dev *DeviceInfo, w, h int) (Source, error) {
			calls++
			return want, nil
		}
		src, err := OpenWithFallback(open, &DeviceInfo{ID: "cam0"})
		if err != nil {
			t.Fatal(err)
		}
		if src != Source(want) || calls != 1 {
			t.Errorf("src ok=%v calls=%d", src == Source(want), calls)
		}
	})

	t.Run("fallback succeeds", func(t *testing.T) {
		want := NewFakeSource(0, 0, 0)
		var gotDevs []*DeviceInfo
		open := func(dev *DeviceInfo, w, h int) (Source, error) {
			gotDevs = append(gotDevs, dev)
			if dev != nil {
				return nil, &DeviceError{Op: "open", Err: errors.New("permission denied")}
			}
			return want, nil
		}
		src, err := OpenWithFallback(open, &DeviceInfo{ID: "cam0"})
		if err != nil {
			t.Fatalf("fallback should not surface an error: %v", err)
		}
		if src != Source(want) {
			t.Error("fallback source not returned")
		}
		if len(gotDevs) != 2 || gotDevs[0] == nil || gotDevs[1] != nil {
			t.Errorf("unexpected open sequence: %v", gotDevs)
		}
	})

	t.Run("fallback also fails", func(t *testing.T) {
		open := func(dev *DeviceInfo, w, h int) (Source, error) {
			return nil, errors.New("device busy")
		}
		_, err := OpenWithFallback(open, nil)
		if err == nil {
			t.Fatal("want error")
		}
		var devErr *DeviceError
		if !errors.As(err, &devErr) {
			t.Errorf("want *DeviceError, got %T", err)
		}
	})
}

func TestLatestOverwrites(t *testing.T) {
	var latest Latest
	if _, ok := latest.Load(); ok {
		t.Fatal("empty cell reported a frame")
	}
	latest.Store(Frame{Seq: 1})
	latest.Store(Frame{Seq: 2})
	f, ok := latest.Load()
	if !ok || f.Seq != 2 {
		t.Errorf("got seq %d ok=%v, want 2 true", f.Seq, ok)
	}
}

func TestForwardStopsOnClose(t *testing.T) {
	var latest Latest
	frames := make(chan Frame, 1)
	frames <- Frame{Seq: 7}
	close(frames)

	done := make(chan struct{})
	go func() {
		Forward(context.Background(), frames, &latest)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Forward did not return after channel close")
	}
	if f, ok := latest.Load(); !ok || f.Seq != 7 {
		t.Errorf("latest = %+v ok=%v", f, ok)
	}
}

func TestFakeMicDeliversBlocks(t *testing.T) {
	ctx := &FakeMicContext{}
	got := make(chan uint32, 8)
	mic, err := ctx.NewCapture(nil, DefaultMicConfig(), func(pcm []byte, frames uint32) {
		select {
		case got <- frames:
		default:
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := mic.Start(); err != nil {
		t.Fatal(err)
	}
	defer mic.Close()

	select {
	case frames := <-got:
		if frames == 0 {
			t.Error("zero-frame block")
		}
	case <-time.After(time.Second):
		t.Fatal("no audio block within 1s")
	}
	mic.Stop()
	mic.Stop() // idempotent
}

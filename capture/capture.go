// Package capture abstracts the live camera and microphone devices. Video
// arrives as a stream of RGBA frames; audio as S16LE PCM via callback.
package capture

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"glance/log"
)

const (
	DefaultWidth  = 1280
	DefaultHeight = 720
	DefaultFPS    = 30
)

// Frame is one decoded video frame. Data is owned by the receiver; the
// source never reuses the backing pixel buffer.
type Frame struct {
	Seq     uint64
	TraceID string
	Time    time.Time
	Image   *image.RGBA
}

type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

// Source produces a continuous sequence of video frames.
//
// Implementations must guarantee:
//   - Start() returns immediately; frames arrive asynchronously
//   - delivery is non-blocking: a full channel drops the frame
//   - Stop() is idempotent and releases the device handle
type Source interface {
	Start(ctx context.Context) (<-chan Frame, error)
	Stop() error
	Resolution() (width, height int)
}

// DeviceError marks failures opening or negotiating a capture device.
// It is recoverable: callers retry with relaxed constraints before
// surfacing anything to the user.
type DeviceError struct {
	Op  string
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Opener opens a source against a specific device, or any available device
// when dev is nil.
type Opener func(dev *DeviceInfo, width, height int) (Source, error)

// OpenWithFallback tries the selected device first and, on a device error,
// retries once with relaxed constraints (any camera, default resolution).
// The error is surfaced only when the fallback also fails.
func OpenWithFallback(open Opener, dev *DeviceInfo) (Source, error) {
	src, err := open(dev, DefaultWidth, DefaultHeight)
	if err == nil {
		return src, nil
	}
	log.Warnf("camera open failed, retrying with relaxed constraints: %v", err)
	src, ferr := open(nil, 0, 0)
	if ferr != nil {
		return nil, &DeviceError{Op: "open", Err: ferr}
	}
	return src, nil
}

// Latest is a single-slot cell holding the most recent raw frame. Writers
// overwrite unconditionally; readers get the frame by value. This is the
// snapshot boundary between the capture stream and the compositor and
// region streamer.
type Latest struct {
	mu    sync.Mutex
	frame Frame
	ok    bool
}

func (l *Latest) Store(f Frame) {
	l.mu.Lock()
	l.frame = f
	l.ok = true
	l.mu.Unlock()
}

func (l *Latest) Load() (Frame, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frame, l.ok
}

// Forward drains frames into the cell until the channel closes or the
// context is cancelled.
func Forward(ctx context.Context, frames <-chan Frame, latest *Latest) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, open := <-frames:
			if !open {
				return
			}
			latest.Store(f)
		}
	}
}

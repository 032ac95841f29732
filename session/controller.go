// Package session owns the recording session lifecycle. The controller
// walks a fixed state machine and wires the capture, compositing,
// recognition, and recording pieces together; every collaborator is
// injectable so the whole lifecycle runs against fakes in tests.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"glance/capture"
	"glance/compositor"
	"glance/log"
	"glance/recognizer"
	"glance/recorder"
	"glance/region"
)

type State int

const (
	Uninitialized State = iota
	AwaitingName
	Previewing
	Recording
	Finalizing
	Done
	Aborted
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case AwaitingName:
		return "awaiting-name"
	case Previewing:
		return "previewing"
	case Recording:
		return "recording"
	case Finalizing:
		return "finalizing"
	case Done:
		return "done"
	case Aborted:
		return "aborted"
	}
	return "unknown"
}

var (
	ErrEmptyTitle = errors.New("session title must not be empty")
	ErrNoRegions  = errors.New("at least one region is required to record")
)

// Backend is the slice of the HTTP client the controller calls.
type Backend interface {
	Initialize(ctx context.Context, title string, numRegions int) (string, error)
	SetRegions(ctx context.Context, id string, numRegions int) error
	Upload(ctx context.Context, id string, media recorder.Media) error
}

// Link is the recognition channel surface the controller and streamer use.
type Link interface {
	recognizer.Sender
	Ready() <-chan struct{}
	Err() error
	StartStream(recordingUUID string) error
	StopStream() error
	Close() error
}

// Config carries the collaborators. Zero fields fall back to the real
// implementations.
type Config struct {
	Backend Backend
	WSURL   string

	Dial        func(ctx context.Context, url string, results *recognizer.Results) Link
	OpenSource  capture.Opener
	ListDevices func() []capture.DeviceInfo
	NewEncoder  func(width, height int) (recorder.Encoder, error)
	NewMic      func() (capture.MicContext, error)

	// Overrides for tests; zero keeps the production cadence.
	TickInterval time.Duration
	RefreshRate  int
}

type Controller struct {
	cfg     Config
	model   *region.Model
	results *recognizer.Results
	latest  capture.Latest
	loop    *compositor.Loop

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	state       State
	title       string
	recordingID string
	devices     []capture.DeviceInfo
	draft       region.Draft
	hasDraft    bool
	anchorX     int
	anchorY     int
	media       recorder.Media
	hasMedia    bool

	link     Link
	source   capture.Source
	micCtx   capture.MicContext
	micDev   capture.MicDevice
	streamer *recognizer.Streamer
	pipeline *recorder.Pipeline

	abortOnce sync.Once
}

func New(cfg Config) *Controller {
	if cfg.Dial == nil {
		cfg.Dial = func(ctx context.Context, url string, results *recognizer.Results) Link {
			return recognizer.Dial(ctx, url, results)
		}
	}
	if cfg.OpenSource == nil {
		cfg.OpenSource = func(dev *capture.DeviceInfo, width, height int) (capture.Source, error) {
			if width == 0 {
				width, height = capture.DefaultWidth, capture.DefaultHeight
			}
			return capture.NewGstSource(dev, width, height)
		}
	}
	if cfg.ListDevices == nil {
		cfg.ListDevices = func() []capture.DeviceInfo {
			devs, err := capture.Devices()
			if err != nil {
				log.Warnf("camera enumeration failed: %v", err)
			}
			return devs
		}
	}
	if cfg.NewEncoder == nil {
		cfg.NewEncoder = func(width, height int) (recorder.Encoder, error) {
			return recorder.NewWebMEncoder(width, height)
		}
	}

	c := &Controller{
		cfg:     cfg,
		model:   region.NewModel(),
		results: recognizer.NewResults(),
		state:   Uninitialized,
	}
	c.loop = compositor.New(compositor.Sources{
		Latest:  &c.latest,
		Regions: c.model.List,
		Results: c.results.Snapshot,
		Draft:   c.currentDraft,
	})
	if cfg.RefreshRate > 0 {
		c.loop.RefreshRate = cfg.RefreshRate
	}
	return c
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Begin starts the channel dial and device enumeration concurrently and
// moves to AwaitingName. Neither blocks: the dial runs in the background
// and a slow enumeration only delays the device list, not the session.
func (c *Controller) Begin(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Uninitialized {
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("cannot begin from %s", st)
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.link = c.cfg.Dial(c.ctx, c.cfg.WSURL, c.results)
	c.state = AwaitingName
	c.mu.Unlock()

	go func() {
		devs := c.cfg.ListDevices()
		c.mu.Lock()
		c.devices = devs
		c.mu.Unlock()
	}()
	return nil
}

// Devices returns the cameras found so far.
func (c *Controller) Devices() []capture.DeviceInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]capture.DeviceInfo, len(c.devices))
	copy(out, c.devices)
	return out
}

// SetName registers the session with the backend, opens the camera with
// fallback, and starts the preview loop.
func (c *Controller) SetName(ctx context.Context, title string, dev *capture.DeviceInfo) error {
	c.mu.Lock()
	if c.state != AwaitingName {
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("cannot set name from %s", st)
	}
	c.mu.Unlock()

	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyTitle
	}

	id, err := c.cfg.Backend.Initialize(ctx, title, 0)
	if err != nil {
		return err
	}

	src, err := capture.OpenWithFallback(c.cfg.OpenSource, dev)
	if err != nil {
		return err
	}
	frames, err := src.Start(c.ctx)
	if err != nil {
		src.Stop()
		return err
	}
	go capture.Forward(c.ctx, frames, &c.latest)

	c.mu.Lock()
	c.title = title
	c.recordingID = id
	c.source = src
	c.state = Previewing
	c.mu.Unlock()

	c.loop.Start(c.ctx)

	device := ""
	if dev != nil {
		device = dev.Name
	}
	log.SessionStart(id, title, device)
	return nil
}

func (c *Controller) currentDraft() (region.Draft, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft, c.hasDraft
}

// BeginDraft anchors a new drag. Ignored outside Previewing.
func (c *Controller) BeginDraft(x, y int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Previewing {
		return
	}
	c.anchorX, c.anchorY = x, y
	c.draft = region.DraftFromDrag(x, y, x, y)
	c.hasDraft = true
}

func (c *Controller) UpdateDraft(x, y int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasDraft {
		return
	}
	c.draft = region.DraftFromDrag(c.anchorX, c.anchorY, x, y)
}

// EndDraft commits the drag as a region. Degenerate drags vanish without
// a trace; the model enforces the size threshold.
func (c *Controller) EndDraft() bool {
	c.mu.Lock()
	if !c.hasDraft {
		c.mu.Unlock()
		return false
	}
	draft := c.draft
	c.hasDraft = false
	c.mu.Unlock()
	return c.model.CommitDraft(draft)
}

func (c *Controller) Regions() []region.Region { return c.model.List() }

// Results returns the latest recognition text per region.
func (c *Controller) Results() map[int]recognizer.Result { return c.results.Snapshot() }

func (c *Controller) RemoveRegion(index int) bool {
	if c.State() != Previewing {
		return false
	}
	return c.model.Remove(index)
}

// Arm locks the layout and starts recording: region count to the backend,
// encoder and pipeline up, microphone feeding audio, start_stream out,
// region streamer ticking. An encoder failure unwinds back to Previewing.
func (c *Controller) Arm(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Previewing {
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("cannot arm from %s", st)
	}
	id := c.recordingID
	src := c.source
	link := c.link
	c.mu.Unlock()

	n := c.model.Len()
	if n == 0 {
		return ErrNoRegions
	}

	if err := c.cfg.Backend.SetRegions(ctx, id, n); err != nil {
		return err
	}

	c.model.SetLocked(true)

	width, height := src.Resolution()
	enc, err := c.cfg.NewEncoder(width, height)
	if err != nil {
		c.model.SetLocked(false)
		return fmt.Errorf("creating encoder: %w", err)
	}
	pipeline := recorder.NewPipeline(enc, c.loop.Snapshot)
	if err := pipeline.Start(c.ctx); err != nil {
		c.model.SetLocked(false)
		return err
	}

	// Audio is best-effort: a missing or refusing microphone leaves the
	// recording video-only.
	if c.cfg.NewMic != nil {
		c.startMic(pipeline)
	}

	if err := link.StartStream(id); err != nil {
		log.Warnf("start_stream not delivered: %v", err)
	}

	streamer := recognizer.NewStreamer(c.model, &c.latest, link)
	if c.cfg.TickInterval > 0 {
		streamer.Interval = c.cfg.TickInterval
	}
	streamer.Start(c.ctx)

	c.mu.Lock()
	c.pipeline = pipeline
	c.streamer = streamer
	c.state = Recording
	c.mu.Unlock()

	log.SessionArmed(id, n)
	return nil
}

func (c *Controller) startMic(pipeline *recorder.Pipeline) {
	micCtx, err := c.cfg.NewMic()
	if err != nil {
		log.Warnf("microphone unavailable, recording video only: %v", err)
		return
	}
	dev, err := micCtx.NewCapture(nil, capture.DefaultMicConfig(), func(pcm []byte, _ uint32) {
		pipeline.WriteAudio(pcm)
	})
	if err != nil {
		log.Warnf("microphone open failed, recording video only: %v", err)
		micCtx.Close()
		return
	}
	if err := dev.Start(); err != nil {
		log.Warnf("microphone start failed, recording video only: %v", err)
		dev.Close()
		micCtx.Close()
		return
	}
	c.mu.Lock()
	c.micCtx = micCtx
	c.micDev = dev
	c.mu.Unlock()
}

func (c *Controller) stopMic() {
	c.mu.Lock()
	dev, mctx := c.micDev, c.micCtx
	c.micDev, c.micCtx = nil, nil
	c.mu.Unlock()
	if dev != nil {
		dev.Stop()
		dev.Close()
	}
	if mctx != nil {
		mctx.Close()
	}
}

// Stop finalizes the recording. The flush wait inside the pipeline stop
// strictly precedes the upload, so the uploaded file always contains the
// trailing chunk. On upload failure the media stays in hand and Stop can
// be called again to retry just the upload.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case Recording:
		c.state = Finalizing
	case Finalizing:
		if c.hasMedia {
			id, media := c.recordingID, c.media
			c.mu.Unlock()
			return c.finishUpload(ctx, id, media)
		}
		c.mu.Unlock()
		return fmt.Errorf("finalization already in progress")
	default:
		st := c.state
		c.mu.Unlock()
		return fmt.Errorf("cannot stop from %s", st)
	}
	id := c.recordingID
	streamer := c.streamer
	pipeline := c.pipeline
	c.mu.Unlock()

	streamer.Stop()
	log.StreamerMetrics(streamer.Metrics())
	c.stopMic()

	media, err := pipeline.Stop(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.media = media
	c.hasMedia = true
	c.mu.Unlock()

	return c.finishUpload(ctx, id, media)
}

func (c *Controller) finishUpload(ctx context.Context, id string, media recorder.Media) error {
	if err := c.cfg.Backend.Upload(ctx, id, media); err != nil {
		log.Errorf("upload failed, media retained for retry: %v", err)
		return err
	}

	c.mu.Lock()
	link := c.link
	c.mu.Unlock()
	if err := link.StopStream(); err != nil {
		log.Warnf("stop_stream not delivered: %v", err)
	}

	c.mu.Lock()
	c.state = Done
	c.mu.Unlock()
	log.SessionEnd(id, true)
	return nil
}

// Surface returns a copy of the current composited preview surface.
func (c *Controller) Surface() (*image.RGBA, bool) {
	return c.loop.Snapshot()
}

// Media returns the assembled recording once finalization produced one.
func (c *Controller) Media() (recorder.Media, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.media, c.hasMedia
}

// Abort tears everything down: streamer, compositor loop, microphone,
// camera, pipeline, channel. Idempotent; the second call finds nothing
// left to release.
func (c *Controller) Abort() {
	c.abortOnce.Do(func() {
		c.mu.Lock()
		streamer := c.streamer
		pipeline := c.pipeline
		src := c.source
		link := c.link
		done := c.state == Done
		if !done {
			c.state = Aborted
		}
		c.mu.Unlock()

		if streamer != nil {
			streamer.Stop()
		}
		c.loop.Stop()
		c.stopMic()
		if pipeline != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			pipeline.Stop(ctx)
			cancel()
		}
		if src != nil {
			src.Stop()
		}
		if link != nil {
			link.Close()
		}
		if c.cancel != nil {
			c.cancel()
		}
	})
}

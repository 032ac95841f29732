package capture

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"glance/log"
)

// GstSource captures camera frames through a GStreamer pipeline:
//
//	v4l2src → videoconvert → videoscale → capsfilter(RGBA) → appsink
//
// With a nil device it falls back to autovideosrc and lets the platform
// pick any available camera.
type GstSource struct {
	pipeline *gst.Pipeline
	sink     *app.Sink
	width    int
	height   int

	frames  chan Frame
	seq     uint64
	dropped uint64

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewGstSource builds the pipeline but does not start it. width/height of
// zero negotiate the device default.
func NewGstSource(dev *DeviceInfo, width, height int) (Source, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("creating pipeline: %w", err)
	}

	var src *gst.Element
	if dev != nil {
		src, err = gst.NewElement("v4l2src")
		if err == nil {
			src.SetProperty("device", dev.ID)
		}
	} else {
		src, err = gst.NewElement("autovideosrc")
	}
	if err != nil {
		return nil, &DeviceError{Op: "source", Err: err}
	}

	convert, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("creating videoconvert: %w", err)
	}
	scale, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("creating videoscale: %w", err)
	}

	capsStr := "video/x-raw,format=RGBA"
	if width > 0 && height > 0 {
		capsStr = fmt.Sprintf("video/x-raw,format=RGBA,width=%d,height=%d", width, height)
	}
	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("creating capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(capsStr))

	sinkElem, err := gst.NewElement("appsink")
	if err != nil {
		return nil, fmt.Errorf("creating appsink: %w", err)
	}
	sinkElem.SetProperty("sync", false)
	sinkElem.SetProperty("max-buffers", uint(2))
	sinkElem.SetProperty("drop", true)

	if err := pipeline.AddMany(src, convert, scale, capsfilter, sinkElem); err != nil {
		return nil, fmt.Errorf("assembling pipeline: %w", err)
	}
	if err := gst.ElementLinkMany(src, convert, scale, capsfilter, sinkElem); err != nil {
		return nil, fmt.Errorf("linking pipeline: %w", err)
	}

	if width <= 0 || height <= 0 {
		width, height = DefaultWidth, DefaultHeight
	}

	return &GstSource{
		pipeline: pipeline,
		sink:     app.SinkFromElement(sinkElem),
		width:    width,
		height:   height,
		frames:   make(chan Frame, 4),
	}, nil
}

func (g *GstSource) Resolution() (int, int) { return g.width, g.height }

func (g *GstSource) Start(ctx context.Context) (<-chan Frame, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.started {
		return nil, fmt.Errorf("source already started")
	}

	g.sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: g.onSample,
	})

	if err := g.pipeline.SetState(gst.StatePlaying); err != nil {
		return nil, &DeviceError{Op: "start", Err: err}
	}
	g.started = true

	go func() {
		<-ctx.Done()
		g.Stop()
	}()

	return g.frames, nil
}

// onSample copies the pixel data out of the GStreamer buffer (the buffer
// is reused after the callback returns) and delivers it non-blocking.
func (g *GstSource) onSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}
	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		log.Warn("camera: empty buffer received")
		return gst.FlowOK
	}
	pix := make([]byte, len(data))
	copy(pix, data)
	buffer.Unmap()

	if len(pix) < g.width*g.height*4 {
		log.Warnf("camera: short buffer %d for %dx%d, skipping", len(pix), g.width, g.height)
		return gst.FlowOK
	}

	frame := Frame{
		Seq:     atomic.AddUint64(&g.seq, 1),
		TraceID: uuid.New().String(),
		Time:    time.Now(),
		Image: &image.RGBA{
			Pix:    pix,
			Stride: g.width * 4,
			Rect:   image.Rect(0, 0, g.width, g.height),
		},
	}

	select {
	case g.frames <- frame:
	default:
		atomic.AddUint64(&g.dropped, 1)
	}
	return gst.FlowOK
}

func (g *GstSource) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped || !g.started {
		g.stopped = true
		return nil
	}
	g.stopped = true
	if err := g.pipeline.SetState(gst.StateNull); err != nil {
		return fmt.Errorf("stopping pipeline: %w", err)
	}
	if d := atomic.LoadUint64(&g.dropped); d > 0 {
		log.Infof("camera: dropped %d frames (consumer lag)", d)
	}
	return nil
}

package recorder

import (
	"bytes"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"glance/capture"
	"glance/log"
)

// WebMEncoder muxes VP8 video and Vorbis audio into a streamable WebM
// container through GStreamer:
//
//	appsrc(RGBA) → videoconvert → vp8enc ┐
//	appsrc(S16LE) → audioconvert → vorbisenc ┴→ webmmux → appsink
//
// The appsink byte stream is cut into chunks on the ChunkInterval cadence;
// the trailing chunk is flushed when EOS reaches the sink after Stop.
type WebMEncoder struct {
	width  int
	height int

	pipeline *gst.Pipeline
	videoSrc *app.Source
	audioSrc *app.Source
	sink     *app.Sink

	chunks chan Chunk

	mu  sync.Mutex
	buf bytes.Buffer
	seq int

	stopOnce  sync.Once
	flushStop chan struct{}
}

func NewWebMEncoder(width, height int) (*WebMEncoder, error) {
	gst.Init(nil)

	desc := fmt.Sprintf(
		"appsrc name=videosrc is-live=true do-timestamp=true format=time "+
			"caps=video/x-raw,format=RGBA,width=%d,height=%d,framerate=%d/1 ! "+
			"videoconvert ! vp8enc deadline=1 cpu-used=8 ! queue ! mux.video_0 "+
			"appsrc name=audiosrc is-live=true do-timestamp=true format=time "+
			"caps=audio/x-raw,format=S16LE,rate=%d,channels=%d,layout=interleaved ! "+
			"audioconvert ! vorbisenc ! queue ! mux.audio_0 "+
			"webmmux name=mux streamable=true ! appsink name=chunksink sync=false",
		width, height, FrameRate, capture.MicSampleRate, capture.MicChannels)

	pipeline, err := gst.NewPipelineFromString(desc)
	if err != nil {
		return nil, fmt.Errorf("building encoder pipeline: %w", err)
	}

	videoElem, err := pipeline.GetElementByName("videosrc")
	if err != nil {
		return nil, fmt.Errorf("missing videosrc: %w", err)
	}
	audioElem, err := pipeline.GetElementByName("audiosrc")
	if err != nil {
		return nil, fmt.Errorf("missing audiosrc: %w", err)
	}
	sinkElem, err := pipeline.GetElementByName("chunksink")
	if err != nil {
		return nil, fmt.Errorf("missing chunksink: %w", err)
	}

	return &WebMEncoder{
		width:     width,
		height:    height,
		pipeline:  pipeline,
		videoSrc:  app.SrcFromElement(videoElem),
		audioSrc:  app.SrcFromElement(audioElem),
		sink:      app.SinkFromElement(sinkElem),
		chunks:    make(chan Chunk, 64),
		flushStop: make(chan struct{}),
	}, nil
}

func (e *WebMEncoder) MIME() string { return "video/webm" }

func (e *WebMEncoder) Start() error {
	e.sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: e.onSample,
	})

	if err := e.pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("starting encoder: %w", err)
	}

	go e.runFlusher()
	go e.watchBus()
	return nil
}

// onSample accumulates muxer output; the flusher cuts it into chunks.
func (e *WebMEncoder) onSample(sink *app.Sink) gst.FlowReturn {
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
	e.mu.Lock()
	e.buf.Write(data)
	e.mu.Unlock()
	buffer.Unmap()
	return gst.FlowOK
}

func (e *WebMEncoder) runFlusher() {
	ticker := time.NewTicker(ChunkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.flushStop:
			return
		case <-ticker.C:
			e.flush()
		}
	}
}

func (e *WebMEncoder) flush() {
	e.mu.Lock()
	if e.buf.Len() == 0 {
		e.mu.Unlock()
		return
	}
	data := make([]byte, e.buf.Len())
	copy(data, e.buf.Bytes())
	e.buf.Reset()
	e.seq++
	seq := e.seq
	e.mu.Unlock()

	e.chunks <- Chunk{ID: uuid.New().String(), Seq: seq, Time: time.Now(), Data: data}
}

// watchBus waits for EOS after Stop, flushes the trailing chunk, and
// closes the chunk channel to signal flush completion.
func (e *WebMEncoder) watchBus() {
	bus := e.pipeline.GetPipelineBus()
	for {
		msg := bus.TimedPop(gst.ClockTimeNone)
		if msg == nil {
			return
		}
		switch msg.Type() {
		case gst.MessageEOS:
			close(e.flushStop)
			e.flush()
			close(e.chunks)
			e.pipeline.SetState(gst.StateNull)
			return
		case gst.MessageError:
			gerr := msg.ParseError()
			log.Errorf("encoder: %v", gerr)
		}
	}
}

func (e *WebMEncoder) WriteVideo(frame *image.RGBA) error {
	if frame.Bounds().Dx() != e.width || frame.Bounds().Dy() != e.height {
		return fmt.Errorf("frame %dx%d does not match encoder %dx%d",
			frame.Bounds().Dx(), frame.Bounds().Dy(), e.width, e.height)
	}
	buffer := gst.NewBufferFromBytes(frame.Pix)
	if ret := e.videoSrc.PushBuffer(buffer); ret != gst.FlowOK {
		return fmt.Errorf("pushing video buffer: flow %v", ret)
	}
	return nil
}

func (e *WebMEncoder) WriteAudio(pcm []byte) error {
	buffer := gst.NewBufferFromBytes(pcm)
	if ret := e.audioSrc.PushBuffer(buffer); ret != gst.FlowOK {
		return fmt.Errorf("pushing audio buffer: flow %v", ret)
	}
	return nil
}

// Stop ends both streams. EOS propagates through the muxer; the trailing
// chunk lands before Chunks() closes.
func (e *WebMEncoder) Stop() {
	e.stopOnce.Do(func() {
		e.videoSrc.EndStream()
		e.audioSrc.EndStream()
	})
}

func (e *WebMEncoder) Chunks() <-chan Chunk { return e.chunks }

// Package recorder encodes the composited surface plus the microphone
// track into a media container, buffers the encoded chunks in production
// order, and assembles them into one media object on stop.
package recorder

import (
	"image"
	"time"
)

const (
	// FrameRate is the encode rate of the composited surface.
	FrameRate = 30
	// ChunkInterval is the encoder's flush cadence.
	ChunkInterval = time.Second
)

// Chunk is one opaque encoded buffer. Concatenation order equals
// production order; Seq is strictly increasing.
type Chunk struct {
	ID   string
	Seq  int
	Time time.Time
	Data []byte
}

// Encoder turns frames and PCM into container chunks.
//
// Stop begins an asynchronous finish: the encoder flushes any trailing
// chunk and then closes the channel returned by Chunks. Consumers must
// treat that close as the flush-complete signal; assembling output
// before it risks silent truncation.
type Encoder interface {
	Start() error
	WriteVideo(frame *image.RGBA) error
	WriteAudio(pcm []byte) error
	Stop()
	Chunks() <-chan Chunk
	MIME() string
}

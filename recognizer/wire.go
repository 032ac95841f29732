// Package recognizer maintains the persistent message channel to the
// recognition backend and the periodic job that crops committed regions
// out of the raw frame and ships them over it.
package recognizer

import "encoding/json"

// Wire events, mirroring the backend's message names.
const (
	eventStartStream   = "start_stream"
	eventRegionImage   = "process_region_image"
	eventStopStream    = "stop_stream"
	eventRegionResult  = "region_text_result"
	eventConnected     = "connected"
	eventStreamStarted = "stream_started"
	eventStreamStopped = "stream_stopped"
	eventError         = "error"
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type startStreamData struct {
	RecordingUUID string `json:"recording_uuid"`
}

type regionImageData struct {
	RegionIndex int     `json:"region_index"`
	Image       string  `json:"image"` // JPEG data URL
	Timestamp   float64 `json:"timestamp"`
}

type serverErrorData struct {
	Message     string `json:"message"`
	RegionIndex *int   `json:"region_index,omitempty"`
}

// Word carries per-word metadata attached to a recognition result.
type Word struct {
	Word       string  `json:"word"`
	Confidence float64 `json:"confidence"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
}

// Result is one recognition result for a region. A newer result for the
// same index unconditionally replaces the older one.
type Result struct {
	RegionIndex int     `json:"region_index"`
	Text        string  `json:"text"`
	Timestamp   float64 `json:"timestamp"`
	Words       []Word  `json:"words"`
}

package main

import (
	"fmt"
	"time"
)

// EventSink abstracts the display layer so a richer frontend can receive
// the same session events as the console runner.
type EventSink interface {
	StateChange(state string)
	DeviceLine(text string)
	RegionLine(index int, text string)
	ResultText(regionIndex int, text string)
	RecordingTick(elapsed time.Duration)
	UploadDone(sizeKB float64, duration time.Duration)
	Error(text string)
}

// consoleSink prints session events to stdout.
type consoleSink struct{}

func (consoleSink) StateChange(state string) {
	fmt.Printf("-- %s\n", state)
}

func (consoleSink) DeviceLine(text string) {
	fmt.Printf("camera: %s\n", text)
}

func (consoleSink) RegionLine(index int, text string) {
	fmt.Printf("region %d: %s\n", index, text)
}

func (consoleSink) ResultText(regionIndex int, text string) {
	fmt.Printf("[region %d] %s\n", regionIndex, text)
}

func (consoleSink) RecordingTick(elapsed time.Duration) {
	fmt.Printf("\rrecording %s ", elapsed.Round(time.Second))
}

func (consoleSink) UploadDone(sizeKB float64, duration time.Duration) {
	fmt.Printf("\nuploaded %.1f KB (%.1fs)\n", sizeKB, duration.Seconds())
}

func (consoleSink) Error(text string) {
	fmt.Printf("\nError: %s\n", text)
}

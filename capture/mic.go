package capture

// Audio capture format fed to the recording pipeline.
const (
	MicSampleRate = 48000
	MicChannels   = 1
)

type MicCallback func(pcm []byte, frameCount uint32)

type MicConfig struct {
	SampleRate uint32
	Channels   uint32
}

func DefaultMicConfig() MicConfig {
	return MicConfig{SampleRate: MicSampleRate, Channels: MicChannels}
}

// MicContext enumerates audio input devices and opens captures against
// them. Backed by PulseAudio on linux and malgo elsewhere.
type MicContext interface {
	Devices() ([]DeviceInfo, error)
	NewCapture(dev *DeviceInfo, cfg MicConfig, cb MicCallback) (MicDevice, error)
	Close()
}

type MicDevice interface {
	Start() error
	Stop()
	Close()
}

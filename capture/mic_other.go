//go:build !linux

package capture

import (
	"encoding/hex"
	"fmt"

	"github.com/gen2brain/malgo"
)

type malgoMicContext struct {
	ctx *malgo.AllocatedContext
}

func NewMicContext() (MicContext, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, err
	}
	return &malgoMicContext{ctx: ctx}, nil
}

func (m *malgoMicContext) Devices() ([]DeviceInfo, error) {
	devices, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("malgo devices: %w", err)
	}
	var result []DeviceInfo
	for _, d := range devices {
		result = append(result, DeviceInfo{
			ID:   hex.EncodeToString(d.ID.Pointer()[:]),
			Name: d.Name(),
		})
	}
	return result, nil
}

func (m *malgoMicContext) NewCapture(dev *DeviceInfo, cfg MicConfig, cb MicCallback) (MicDevice, error) {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = cfg.Channels
	deviceConfig.SampleRate = cfg.SampleRate

	if dev != nil {
		idBytes, err := hex.DecodeString(dev.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid device ID: %w", err)
		}
		var devID malgo.DeviceID
		copy(devID[:], idBytes)
		deviceConfig.Capture.DeviceID = devID.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, data []byte, frameCount uint32) {
			cb(data, frameCount)
		},
	}

	device, err := malgo.InitDevice(m.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, err
	}

	return &malgoMic{device: device}, nil
}

func (m *malgoMicContext) Close() {
	m.ctx.Uninit()
	m.ctx.Free()
}

type malgoMic struct {
	device *malgo.Device
}

func (c *malgoMic) Start() error {
	return c.device.Start()
}

func (c *malgoMic) Stop() {
	c.device.Stop()
}

func (c *malgoMic) Close() {
	c.device.Uninit()
}

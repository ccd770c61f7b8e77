package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"
)

// ErrNoInputDevice is returned when no capture device can be opened
var ErrNoInputDevice = errors.New("no audio input device available")

// DeviceConfig selects the capture format. Zero values mean the device's
// native channel count and sample rate.
type DeviceConfig struct {
	Channels   int
	SampleRate int
}

// CaptureDevice is the default input device delivering float32 samples
type CaptureDevice struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	logger *slog.Logger

	handler func(raw []byte)

	closeOnce sync.Once
}

// OpenCaptureDevice initializes the default capture device. Samples are not
// delivered until Start.
func OpenCaptureDevice(config DeviceConfig, logger *slog.Logger) (*CaptureDevice, error) {
	if config.Channels < 0 || config.SampleRate < 0 {
		return nil, fmt.Errorf("invalid capture format: channels=%d sample_rate=%d", config.Channels, config.SampleRate)
	}

	d := &CaptureDevice{logger: logger}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		logger.Warn("Audio backend message", slog.String("message", message))
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to initialize audio context: %v", ErrNoInputDevice, err)
	}
	d.ctx = ctx

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(config.Channels)
	deviceConfig.SampleRate = uint32(config.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInputSamples []byte, _ uint32) {
			if d.handler != nil {
				d.handler(pInputSamples)
			}
		},
		Stop: func() {
			logger.Info("Audio capture stream stopped")
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		d.freeContext()
		return nil, fmt.Errorf("%w: %v", ErrNoInputDevice, err)
	}
	d.device = device

	if format := device.CaptureFormat(); format != malgo.FormatF32 {
		d.Close()
		return nil, fmt.Errorf("capture device negotiated unsupported sample format %v", format)
	}

	logger.Info("Audio capture device opened",
		slog.Int("channels", d.Channels()),
		slog.Int("sample_rate", d.SampleRate()),
	)

	return d, nil
}

// Channels returns the negotiated channel count
func (d *CaptureDevice) Channels() int {
	return int(d.device.CaptureChannels())
}

// SampleRate returns the negotiated sample rate
func (d *CaptureDevice) SampleRate() int {
	return int(d.device.SampleRate())
}

// Start begins delivering sample batches to handler on the device's own thread
func (d *CaptureDevice) Start(handler func(raw []byte)) error {
	if handler == nil {
		return fmt.Errorf("capture handler cannot be nil")
	}
	d.handler = handler

	if err := d.device.Start(); err != nil {
		return fmt.Errorf("failed to start capture device: %w", err)
	}
	return nil
}

// Stop halts the stream; no callback runs after Stop returns
func (d *CaptureDevice) Stop() error {
	if d.device == nil || !d.device.IsStarted() {
		return nil
	}
	if err := d.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop capture device: %w", err)
	}
	return nil
}

// Close releases the device and the backend context
func (d *CaptureDevice) Close() {
	d.closeOnce.Do(func() {
		if d.device != nil {
			d.device.Uninit()
		}
		d.freeContext()
	})
}

func (d *CaptureDevice) freeContext() {
	if d.ctx == nil {
		return
	}
	if err := d.ctx.Uninit(); err != nil {
		d.logger.Warn("Failed to release audio context", slog.String("error", err.Error()))
	}
	d.ctx.Free()
	d.ctx = nil
}

package capture

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/openscrivo/scrivo/pkg/audio"
)

// PortAudioSource captures microphone audio through PortAudio and emits mono
// PCM16 frames of a fixed duration. Multi-channel devices are downmixed by
// averaging.
type PortAudioSource struct {
	cfg PortAudioConfig

	mu      sync.Mutex
	stream  *portaudio.Stream
	done    chan struct{}
	running bool
}

var _ Source = (*PortAudioSource)(nil)

// PortAudioConfig selects the device and frame geometry for a
// [PortAudioSource].
type PortAudioConfig struct {
	// DeviceName selects an input device by case-insensitive substring
	// match. Empty means the system default input.
	DeviceName string

	// SampleRate is the capture rate in Hz. Default: 16000.
	SampleRate int

	// FrameDuration is the duration of each emitted frame. Default: 20 ms.
	FrameDuration time.Duration
}

func (c *PortAudioConfig) applyDefaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.FrameDuration <= 0 {
		c.FrameDuration = 20 * time.Millisecond
	}
}

// NewPortAudioSource initializes PortAudio and prepares a source. The caller
// must call [PortAudioSource.Close] to release the library.
func NewPortAudioSource(cfg PortAudioConfig) (*PortAudioSource, error) {
	cfg.applyDefaults()
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("capture: initializing portaudio: %w", err)
	}
	return &PortAudioSource{cfg: cfg}, nil
}

// SampleRate returns the configured capture rate.
func (s *PortAudioSource) SampleRate() int { return s.cfg.SampleRate }

// Start opens the device stream and begins the read loop.
func (s *PortAudioSource) Start(push func(audio.Frame), fail func(error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("capture: portaudio source already started")
	}

	dev, err := s.selectDevice()
	if err != nil {
		return err
	}

	channels := 1
	if dev.MaxInputChannels < 1 {
		return fmt.Errorf("capture: device %q has no input channels", dev.Name)
	}

	frameSize := s.cfg.SampleRate * int(s.cfg.FrameDuration.Milliseconds()) / 1000
	buf := make([]float32, frameSize*channels)

	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(s.cfg.SampleRate),
		FramesPerBuffer: frameSize,
	}, buf)
	if err != nil {
		return fmt.Errorf("capture: opening stream for %q: %w", dev.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("capture: starting stream: %w", err)
	}

	s.stream = stream
	s.done = make(chan struct{})
	s.running = true

	go s.readLoop(stream, buf, channels, s.done, push, fail)
	return nil
}

func (s *PortAudioSource) readLoop(stream *portaudio.Stream, buf []float32, channels int, done chan struct{}, push func(audio.Frame), fail func(error)) {
	start := time.Now()
	for {
		select {
		case <-done:
			return
		default:
		}

		if err := stream.Read(); err != nil {
			select {
			case <-done:
				// Stop closed the stream; not a device failure.
				return
			default:
			}
			fail(fmt.Errorf("capture: reading stream: %w", err))
			return
		}

		mono := buf
		if channels > 1 {
			mono = audio.DownmixFloat32(buf, channels)
		}
		push(audio.Frame{
			Data:       audio.Int16ToBytes(audio.Float32ToPCM16(mono)),
			SampleRate: s.cfg.SampleRate,
			Timestamp:  time.Since(start),
		})
	}
}

// Stop ends the read loop and closes the stream.
func (s *PortAudioSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	close(s.done)

	var err error
	if s.stream != nil {
		if e := s.stream.Stop(); e != nil {
			err = fmt.Errorf("capture: stopping stream: %w", e)
		}
		if e := s.stream.Close(); e != nil && err == nil {
			err = fmt.Errorf("capture: closing stream: %w", e)
		}
		s.stream = nil
	}
	return err
}

// Close stops capture and terminates PortAudio.
func (s *PortAudioSource) Close() error {
	err := s.Stop()
	if e := portaudio.Terminate(); e != nil && err == nil {
		err = fmt.Errorf("capture: terminating portaudio: %w", e)
	}
	return err
}

func (s *PortAudioSource) selectDevice() (*portaudio.DeviceInfo, error) {
	if s.cfg.DeviceName == "" {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("capture: resolving default input device: %w", err)
		}
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("capture: listing devices: %w", err)
	}
	want := strings.ToLower(s.cfg.DeviceName)
	for _, dev := range devices {
		if dev.MaxInputChannels < 1 {
			continue
		}
		if strings.Contains(strings.ToLower(dev.Name), want) {
			return dev, nil
		}
	}
	return nil, fmt.Errorf("capture: no input device matching %q", s.cfg.DeviceName)
}

// ListDevices enumerates the host's input devices. PortAudio must already be
// initialized, which [NewPortAudioSource] does.
func ListDevices() ([]Device, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("capture: listing devices: %w", err)
	}
	def, _ := portaudio.DefaultInputDevice()

	var out []Device
	for i, dev := range devices {
		if dev.MaxInputChannels < 1 {
			continue
		}
		out = append(out, Device{
			ID:         i,
			Name:       dev.Name,
			Channels:   dev.MaxInputChannels,
			SampleRate: int(dev.DefaultSampleRate),
			Default:    def != nil && dev.Name == def.Name,
		})
	}
	return out, nil
}

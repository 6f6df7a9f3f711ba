package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/gordonklaus/portaudio"
)

type portAudioCapture struct{}

// New initializes PortAudio and returns the host capture
func New() (Capture, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &portAudioCapture{}, nil
}

func (p *portAudioCapture) ListDevices() ([]AudioDevice, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	result := make([]AudioDevice, 0, len(devices))
	defaultDevice, _ := portaudio.DefaultInputDevice()

	for _, d := range devices {
		result = append(result, AudioDevice{
			Index:            d.Index,
			Name:             d.Name,
			MaxInputChannels: d.MaxInputChannels,
			Default:          d == defaultDevice,
		})
	}

	return result, nil
}

func (p *portAudioCapture) Open(device AudioDevice, params StreamParams) (Stream, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	var info *portaudio.DeviceInfo
	for _, d := range devices {
		if d.Index == device.Index {
			info = d
			break
		}
	}
	if info == nil {
		return nil, fmt.Errorf("%w: index %d disappeared", ErrDeviceNotFound, device.Index)
	}

	samples := params.ChunkSize * params.Channels
	var (
		buffer interface{}
		encode func() []byte
	)
	switch params.Format {
	case Int16:
		buf := make([]int16, samples)
		buffer, encode = buf, func() []byte { return encodeInt16(buf) }
	case Int32:
		buf := make([]int32, samples)
		buffer, encode = buf, func() []byte { return encodeInt32(buf) }
	case Float32:
		buf := make([]float32, samples)
		buffer, encode = buf, func() []byte { return encodeFloat32(buf) }
	default:
		return nil, fmt.Errorf("unsupported sample format %q", params.Format.Name)
	}

	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   info,
			Channels: params.Channels,
			Latency:  info.DefaultHighInputLatency,
		},
		SampleRate:      float64(params.SampleRate),
		FramesPerBuffer: params.ChunkSize,
	}, buffer)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("failed to start audio stream: %w", err)
	}

	return &portAudioStream{stream: stream, encode: encode}, nil
}

func (p *portAudioCapture) Close() error {
	return portaudio.Terminate()
}

type portAudioStream struct {
	stream *portaudio.Stream
	encode func() []byte
}

func (s *portAudioStream) Read() ([]byte, error) {
	if err := s.stream.Read(); err != nil {
		// The buffer is still filled on overflow; only earlier input was lost.
		if errors.Is(err, portaudio.InputOverflowed) {
			return s.encode(), ErrInputOverflow
		}
		return nil, err
	}
	return s.encode(), nil
}

func (s *portAudioStream) Close() error {
	stopErr := s.stream.Stop()
	if err := s.stream.Close(); err != nil {
		return err
	}
	return stopErr
}

func encodeInt16(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

func encodeInt32(samples []int32) []byte {
	out := make([]byte, len(samples)*4)
	for i, v := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], uint32(v))
	}
	return out
}

func encodeFloat32(samples []float32) []byte {
	out := make([]byte, len(samples)*4)
	for i, v := range samples {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

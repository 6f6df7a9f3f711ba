package audio

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInputOverflow is returned alongside a valid chunk when the device
// dropped input before the read. The chunk is still usable.
var ErrInputOverflow = errors.New("input overflowed")

// Capture defines the interface for the audio host
type Capture interface {
	ListDevices() ([]AudioDevice, error)
	Open(device AudioDevice, params StreamParams) (Stream, error)
	Close() error
}

// Stream is an open input stream delivering fixed-size chunks
type Stream interface {
	// Read blocks until one chunk of interleaved little-endian samples is available
	Read() ([]byte, error)
	Close() error
}

// AudioDevice represents an audio input device
type AudioDevice struct {
	Index            int
	Name             string
	MaxInputChannels int
	Default          bool
}

// StreamParams describes how a capture stream is opened
type StreamParams struct {
	Format     SampleFormat
	Channels   int
	SampleRate int
	ChunkSize  int // frames per read
}

// ChunkBytes is the byte length of one chunk
func (p StreamParams) ChunkBytes() int {
	return p.ChunkSize * p.Channels * p.Format.Width
}

// SampleFormat is a PCM sample encoding
type SampleFormat struct {
	Name   string
	Width  int    // bytes per sample
	WAVTag uint16 // 1 = integer PCM, 3 = IEEE float
}

var (
	Int16   = SampleFormat{Name: "int16", Width: 2, WAVTag: 1}
	Int32   = SampleFormat{Name: "int32", Width: 4, WAVTag: 1}
	Float32 = SampleFormat{Name: "float32", Width: 4, WAVTag: 3}
)

// ParseSampleFormat accepts plain names and the PortAudio constant spellings
// used by older station configs ("paInt16", "pyaudio.paInt16").
func ParseSampleFormat(name string) (SampleFormat, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.TrimPrefix(n, "pyaudio.")
	n = strings.TrimPrefix(n, "pa")

	switch n {
	case "int16":
		return Int16, nil
	case "int32":
		return Int32, nil
	case "float32":
		return Float32, nil
	}
	return SampleFormat{}, fmt.Errorf("unsupported sample format %q", name)
}

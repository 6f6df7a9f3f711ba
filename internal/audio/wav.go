package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"
)

// WAVHeader represents the canonical 44-byte header of a WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM, 3 for IEEE float
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

const wavHeaderSize = 44

// MaxWAVDataSize is the largest payload the 32-bit RIFF sizes can describe
const MaxWAVDataSize = math.MaxUint32 - 36

// WAVFormat is the stream layout recorded in the header
type WAVFormat struct {
	Channels    int
	SampleRate  int
	SampleWidth int // bytes
	Tag         uint16
}

// FormatFor derives the WAV layout of a capture stream
func FormatFor(p StreamParams) WAVFormat {
	return WAVFormat{
		Channels:    p.Channels,
		SampleRate:  p.SampleRate,
		SampleWidth: p.Format.Width,
		Tag:         p.Format.WAVTag,
	}
}

func newWAVHeader(f WAVFormat, dataSize uint32) WAVHeader {
	bits := uint16(f.SampleWidth * 8)
	channels := uint16(f.Channels)
	return WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   f.Tag,
		NumChannels:   channels,
		SampleRate:    uint32(f.SampleRate),
		ByteRate:      uint32(f.SampleRate) * uint32(channels) * uint32(bits) / 8,
		BlockAlign:    channels * bits / 8,
		BitsPerSample: bits,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}
}

// WriteWAV writes a complete WAV file: header followed by chunks in order
func WriteWAV(w io.Writer, f WAVFormat, chunks [][]byte) error {
	if f.Channels < 1 || f.SampleRate < 1 || f.SampleWidth < 1 {
		return fmt.Errorf("invalid WAV format %+v", f)
	}

	var dataSize int
	for _, c := range chunks {
		dataSize += len(c)
	}
	if dataSize%(f.Channels*f.SampleWidth) != 0 {
		return fmt.Errorf("payload of %d bytes is not a whole number of frames", dataSize)
	}
	if uint64(dataSize) > MaxWAVDataSize {
		return fmt.Errorf("payload of %d bytes exceeds the %d byte WAV limit", dataSize, uint64(MaxWAVDataSize))
	}

	if err := binary.Write(w, binary.LittleEndian, newWAVHeader(f, uint32(dataSize))); err != nil {
		return fmt.Errorf("failed to write WAV header: %w", err)
	}
	for _, c := range chunks {
		if _, err := w.Write(c); err != nil {
			return fmt.Errorf("failed to write audio data: %w", err)
		}
	}
	return nil
}

// WAVInfo is the metadata read back from a WAV header
type WAVInfo struct {
	AudioFormat uint16
	Channels    int
	SampleRate  int
	SampleWidth int
	DataSize    int
	NumFrames   int
}

// Duration is the playback length of the payload
func (i *WAVInfo) Duration() time.Duration {
	if i.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(i.NumFrames) / float64(i.SampleRate) * float64(time.Second))
}

// ReadWAVInfo parses and validates a canonical WAV header
func ReadWAVInfo(r io.Reader) (*WAVInfo, error) {
	var header WAVHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read WAV header: %w", err)
	}

	if string(header.ChunkID[:]) != "RIFF" {
		return nil, fmt.Errorf("invalid WAV file: missing RIFF header")
	}
	if string(header.Format[:]) != "WAVE" {
		return nil, fmt.Errorf("invalid WAV file: missing WAVE format")
	}
	if string(header.Subchunk1ID[:]) != "fmt " {
		return nil, fmt.Errorf("invalid WAV file: missing fmt chunk")
	}
	if string(header.Subchunk2ID[:]) != "data" {
		return nil, fmt.Errorf("invalid WAV file: missing data chunk")
	}
	if header.NumChannels == 0 || header.BitsPerSample == 0 {
		return nil, fmt.Errorf("invalid WAV file: zero channels or sample width")
	}

	width := int(header.BitsPerSample) / 8
	return &WAVInfo{
		AudioFormat: header.AudioFormat,
		Channels:    int(header.NumChannels),
		SampleRate:  int(header.SampleRate),
		SampleWidth: width,
		DataSize:    int(header.Subchunk2Size),
		NumFrames:   int(header.Subchunk2Size) / (width * int(header.NumChannels)),
	}, nil
}

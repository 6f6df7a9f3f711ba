// Package segment turns a capture stream into fixed-length WAV files.
package segment

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/petems/field-recorder/internal/audio"
	"github.com/rs/zerolog"
)

// TimestampLayout names segment files, second resolution (YYYYMMDD_HHMMSS)
const TimestampLayout = "20060102_150405"

// Observer receives per-segment events; it may be nil
type Observer interface {
	SegmentWritten(path string, bytes int)
	ChunkOverflowed()
}

type Config struct {
	Params   audio.StreamParams
	Logger   zerolog.Logger
	Observer Observer
	Now      func() time.Time // defaults to time.Now
}

// Writer reads a fixed number of chunks per segment and persists them
type Writer struct {
	params audio.StreamParams
	log    zerolog.Logger
	obs    Observer
	now    func() time.Time
}

func NewWriter(cfg Config) *Writer {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Writer{
		params: cfg.Params,
		log:    cfg.Logger,
		obs:    cfg.Observer,
		now:    now,
	}
}

// ChunkCount is round(sampleRate / chunkSize * seconds)
func ChunkCount(sampleRate, chunkSize, seconds int) int {
	return int(math.Round(float64(sampleRate) / float64(chunkSize) * float64(seconds)))
}

// Capture reads one segment of the given length from stream and writes it to
// dir as {timestamp}.wav. The returned path always names a complete, closed
// file. If ctx is cancelled mid-segment the accumulated audio is discarded
// and ctx.Err() is returned.
func (w *Writer) Capture(ctx context.Context, stream audio.Stream, seconds int, dir string) (string, error) {
	if seconds <= 0 {
		return "", fmt.Errorf("segment duration must be positive, got %d", seconds)
	}

	numChunks := ChunkCount(w.params.SampleRate, w.params.ChunkSize, seconds)
	if numChunks < 1 {
		return "", fmt.Errorf("%ds at %d Hz is shorter than one %d-frame chunk", seconds, w.params.SampleRate, w.params.ChunkSize)
	}
	w.log.Debug().Int("chunks", numChunks).Int("seconds", seconds).Msg("Recording segment")

	chunks := make([][]byte, 0, numChunks)
	for i := 0; i < numChunks; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		data, err := stream.Read()
		if err != nil {
			if !errors.Is(err, audio.ErrInputOverflow) {
				return "", fmt.Errorf("failed to read chunk %d/%d: %w", i+1, numChunks, err)
			}
			w.log.Debug().Int("chunk", i).Msg("Input overflow, keeping chunk")
			if w.obs != nil {
				w.obs.ChunkOverflowed()
			}
		}
		chunks = append(chunks, w.fit(data))
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output folder %s: %w", dir, err)
	}

	path, size, err := w.persist(dir, w.now().Format(TimestampLayout), chunks)
	if err != nil {
		return "", err
	}

	w.log.Info().Str("path", path).Int("seconds", seconds).Int("bytes", size).Msg("Segment saved")
	if w.obs != nil {
		w.obs.SegmentWritten(path, size)
	}
	return path, nil
}

// fit zero-fills or trims a chunk to the configured chunk length so the
// payload always holds exactly chunk count x chunk size frames.
func (w *Writer) fit(data []byte) []byte {
	want := w.params.ChunkBytes()
	if len(data) == want {
		return data
	}
	out := make([]byte, want)
	copy(out, data)
	return out
}

// persist writes to a hidden temp file in dir and publishes it under the
// first free name for stamp once closed. An existing segment is never
// replaced.
func (w *Writer) persist(dir, stamp string, chunks [][]byte) (string, int, error) {
	tmp, err := os.CreateTemp(dir, "."+stamp+".*.part")
	if err != nil {
		return "", 0, fmt.Errorf("failed to create segment file: %w", err)
	}
	tmpName := tmp.Name()

	if err := audio.WriteWAV(tmp, audio.FormatFor(w.params), chunks); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", 0, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", 0, fmt.Errorf("failed to close segment file: %w", err)
	}

	path, err := w.publish(tmpName, dir, stamp)
	if err != nil {
		os.Remove(tmpName)
		return "", 0, fmt.Errorf("failed to finalize segment file: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", 0, err
	}
	return path, int(info.Size()), nil
}

// SegmentName is {stamp}.wav for the first segment of a second and
// {stamp}_NNN.wav for later ones, so names sort in completion order.
func SegmentName(stamp string, seq int) string {
	if seq == 0 {
		return stamp + ".wav"
	}
	return fmt.Sprintf("%s_%03d.wav", stamp, seq)
}

func (w *Writer) publish(tmpName, dir, stamp string) (string, error) {
	for seq := 0; ; seq++ {
		path := filepath.Join(dir, SegmentName(stamp, seq))

		err := os.Link(tmpName, path)
		if err == nil {
			if err := os.Remove(tmpName); err != nil {
				w.log.Warn().Err(err).Str("path", tmpName).Msg("Failed to remove temporary segment file")
			}
			return path, nil
		}
		if errors.Is(err, fs.ErrExist) {
			w.log.Debug().Str("path", path).Msg("Segment name taken, trying next")
			continue
		}

		// filesystems without hard links (FAT on SD cards); this writer is
		// the only one naming files in dir
		if _, serr := os.Lstat(path); serr == nil {
			continue
		}
		if err := os.Rename(tmpName, path); err != nil {
			return "", err
		}
		return path, nil
	}
}

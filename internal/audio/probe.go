// Package audio probes per-slide audio files for their length and tags.
package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
	"github.com/tcolgate/mp3"

	"github.com/agleyzer/slidecast/internal/narration"
)

// Info describes one audio file.
type Info struct {
	// Duration is in seconds.
	Duration float64
	Title    string
	Artist   string
	Frames   int
}

// Probe reads the tags and decodes the MP3 frames of the file at path.
// Missing tags are not an error; an undecodable stream is.
func Probe(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("failed to open audio: %w", err)
	}
	defer f.Close()

	var info Info
	if meta, err := tag.ReadFrom(f); err == nil {
		info.Title = strings.TrimSpace(meta.Title())
		info.Artist = strings.TrimSpace(meta.Artist())
	}

	if !strings.EqualFold(filepath.Ext(path), ".mp3") {
		return info, nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Info{}, fmt.Errorf("failed to rewind audio: %w", err)
	}
	info.Duration, info.Frames, err = decodeDuration(f)
	if err != nil {
		return Info{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return info, nil
}

func decodeDuration(r io.Reader) (float64, int, error) {
	decoder := mp3.NewDecoder(r)
	var frame mp3.Frame
	var skipped int
	var total float64
	frames := 0

	for {
		err := decoder.Decode(&frame, &skipped)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			// A cut-off last frame still leaves a usable length.
			if errors.Is(err, io.ErrUnexpectedEOF) && frames > 0 {
				break
			}
			return 0, 0, err
		}
		total += frame.Duration().Seconds()
		frames++
	}

	return total, frames, nil
}

// Enrich fills AudioDuration and missing titles of slides whose audio is a
// local file. Remote sources and probe failures are logged and skipped.
func Enrich(ctx context.Context, slides []narration.RawSlide, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	for i := range slides {
		if ctx.Err() != nil {
			return
		}

		s := &slides[i]
		if s.Audio == "" || strings.Contains(s.Audio, "://") {
			continue
		}

		info, err := Probe(s.Audio)
		if err != nil {
			logger.Warn("failed to probe slide audio", "slide", s.Index, "path", s.Audio, "error", err)
			continue
		}

		if s.AudioDuration <= 0 && info.Duration > 0 {
			s.AudioDuration = info.Duration
		}
		if s.Title == "" && info.Title != "" {
			s.Title = info.Title
		}

		logger.Debug("probed slide audio",
			"slide", s.Index,
			"duration", info.Duration,
			"frames", info.Frames,
			"title", info.Title,
		)
	}
}

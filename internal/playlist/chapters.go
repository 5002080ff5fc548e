// Package playlist renders the deck timeline as an HLS VOD playlist with one
// entry per slide, so standard players can list and jump to chapters.
package playlist

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/grafov/m3u8"

	"github.com/agleyzer/slidecast/internal/narration"
)

// Chapter is one slide's range on the video timeline.
type Chapter struct {
	Slide    int     `json:"slide"`
	Title    string  `json:"title"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
	URI      string  `json:"uri"`
}

// End returns the absolute end time of the chapter.
func (c Chapter) End() float64 {
	return c.Start + c.Duration
}

// Chapters derives the chapter list from the video spans of each slide.
// Slides without a valid video span are skipped. video is the deck video
// reference used to build chapter URIs; when empty the slide audio is used.
func Chapters(idx *narration.Index, video string, logger *slog.Logger) ([]Chapter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var chapters []Chapter
	for _, s := range idx.Slides() {
		start, okStart := idx.SlideVideoStart(s.Index)
		end, okEnd := idx.SlideVideoEnd(s.Index)
		if !okStart || !okEnd || end <= start {
			logger.Debug("slide has no video range, skipping chapter", "slide", s.Index)
			continue
		}

		chapters = append(chapters, Chapter{
			Slide:    s.Index,
			Title:    s.Title,
			Start:    start,
			Duration: end - start,
			URI:      chapterURI(s, video, start, end),
		})
	}

	if len(chapters) == 0 {
		return nil, fmt.Errorf("cannot create chapter playlist with zero timed slides")
	}
	return chapters, nil
}

func chapterURI(s narration.Slide, video string, start, end float64) string {
	switch {
	case video != "":
		return video + "#t=" + formatSeconds(start) + "," + formatSeconds(end)
	case s.Audio != "":
		return s.Audio
	default:
		return "slide" + strconv.Itoa(s.Index)
	}
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Encode renders chapters as a closed VOD media playlist.
func Encode(chapters []Chapter) (string, error) {
	if len(chapters) == 0 {
		return "", fmt.Errorf("cannot encode playlist with zero chapters")
	}

	p, err := m3u8.NewMediaPlaylist(0, uint(len(chapters)))
	if err != nil {
		return "", fmt.Errorf("failed to create playlist: %w", err)
	}
	p.MediaType = m3u8.VOD

	for _, c := range chapters {
		if err := p.Append(c.URI, c.Duration, c.Title); err != nil {
			return "", fmt.Errorf("failed to add chapter %d: %w", c.Slide, err)
		}
	}
	p.Close()

	return p.String(), nil
}

// Generate builds and encodes the chapter playlist of idx.
func Generate(idx *narration.Index, video string, logger *slog.Logger) (string, error) {
	chapters, err := Chapters(idx, video, logger)
	if err != nil {
		return "", err
	}
	return Encode(chapters)
}

// ChapterAt returns the chapter containing the absolute time t.
func ChapterAt(chapters []Chapter, t float64) (Chapter, bool) {
	for _, c := range chapters {
		if c.Start <= t && t < c.End() {
			return c, true
		}
	}
	if n := len(chapters); n > 0 && t == chapters[n-1].End() {
		return chapters[n-1], true
	}
	return Chapter{}, false
}

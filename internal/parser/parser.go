// Package parser loads narrated slide decks from YAML deck files or from the
// article HTML the viewer is published as.
package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/agleyzer/slidecast/internal/narration"
)

// Format is a deck source format.
type Format int

const (
	// FormatAuto picks the format from the extension, then the content.
	FormatAuto Format = iota
	FormatYAML
	FormatHTML
)

func (f Format) String() string {
	switch f {
	case FormatYAML:
		return "yaml"
	case FormatHTML:
		return "html"
	default:
		return "auto"
	}
}

// Deck is a loaded content source.
type Deck struct {
	// Title is the deck title, if the source names one.
	Title string
	// Video references the external video of the whole deck.
	Video string
	// Source is where the deck was loaded from.
	Source string
	Format Format
	// Slides holds the raw slide records in source order.
	Slides []narration.RawSlide
}

// LineCount returns the number of narration lines across all slides.
func (d *Deck) LineCount() int {
	n := 0
	for _, s := range d.Slides {
		n += len(s.Lines)
	}
	return n
}

// Load reads a deck from a local path or an http(s) URL. Relative image and
// audio references are resolved against source.
func Load(ctx context.Context, source string, format Format) (*Deck, error) {
	body, err := read(ctx, source)
	if err != nil {
		return nil, err
	}

	if format == FormatAuto {
		format = detect(source, body)
	}

	var deck *Deck
	switch format {
	case FormatYAML:
		deck, err = ParseYAML(bytes.NewReader(body))
	case FormatHTML:
		deck, err = ParseHTML(bytes.NewReader(body))
	default:
		return nil, fmt.Errorf("unsupported deck format %v", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse deck %s: %w", source, err)
	}

	deck.Source = source
	deck.Format = format
	if err := deck.resolve(source); err != nil {
		return nil, err
	}
	if len(deck.Slides) == 0 {
		return nil, fmt.Errorf("deck %s contains no slides", source)
	}

	return deck, nil
}

func (d *Deck) resolve(base string) error {
	for i := range d.Slides {
		s := &d.Slides[i]

		image, err := resolveRef(base, s.Image)
		if err != nil {
			return fmt.Errorf("failed to resolve image of slide %d: %w", s.Index, err)
		}
		audio, err := resolveRef(base, s.Audio)
		if err != nil {
			return fmt.Errorf("failed to resolve audio of slide %d: %w", s.Index, err)
		}

		s.Image, s.Audio = image, audio
	}
	return nil
}

func detect(source string, body []byte) Format {
	ext := strings.ToLower(path.Ext(stripQuery(source)))
	switch ext {
	case ".yaml", ".yml":
		return FormatYAML
	case ".html", ".htm":
		return FormatHTML
	}

	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '<' {
		return FormatHTML
	}
	return FormatYAML
}

func stripQuery(source string) string {
	if i := strings.IndexAny(source, "?#"); i >= 0 {
		return source[:i]
	}
	return source
}

func isURL(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

func read(ctx context.Context, source string) ([]byte, error) {
	if !isURL(source) {
		body, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("failed to read deck: %w", err)
		}
		return body, nil
	}

	rc, err := FetchContent(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch deck: %w", err)
	}
	defer rc.Close()

	body, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read deck: %w", err)
	}
	return body, nil
}

// resolveRef resolves a possibly relative reference against the deck source.
// Empty references stay empty.
func resolveRef(base, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}
	if isURL(base) || isURL(ref) {
		return resolveURL(base, ref)
	}
	if filepath.IsAbs(ref) {
		return ref, nil
	}
	return filepath.Join(filepath.Dir(base), filepath.FromSlash(ref)), nil
}

// resolveURL resolves a possibly relative URL against a base URL.
func resolveURL(baseURL, relativeURL string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}

	rel, err := url.Parse(relativeURL)
	if err != nil {
		return "", fmt.Errorf("invalid relative URL: %w", err)
	}

	return base.ResolveReference(rel).String(), nil
}

// FetchContent fetches content from a URL. The caller closes the body.
func FetchContent(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	return resp.Body, nil
}

package parser

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/agleyzer/slidecast/internal/narration"
)

// timestamp keeps a scalar time value as text so that numbers, quoted
// strings and blanks all reach narration.ParseSeconds unchanged.
type timestamp string

func (t *timestamp) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: timestamp must be a scalar", n.Line)
	}
	if n.Tag == "!!null" {
		*t = ""
		return nil
	}
	*t = timestamp(n.Value)
	return nil
}

type yamlDeck struct {
	Title  string      `yaml:"title"`
	Video  string      `yaml:"video"`
	Slides []yamlSlide `yaml:"slides"`
}

type yamlSlide struct {
	Index    int        `yaml:"index"`
	Title    string     `yaml:"title"`
	Image    string     `yaml:"image"`
	Audio    string     `yaml:"audio"`
	Duration float64    `yaml:"duration"`
	Lines    []yamlLine `yaml:"lines"`
}

type yamlLine struct {
	ID         string    `yaml:"id"`
	Section    string    `yaml:"section"`
	Text       string    `yaml:"text"`
	Start      timestamp `yaml:"start"`
	End        timestamp `yaml:"end"`
	StartVideo timestamp `yaml:"startVideo"`
	EndVideo   timestamp `yaml:"endVideo"`
}

// ParseYAML decodes a deck file. Slides without an index are numbered by
// their position in the file.
func ParseYAML(r io.Reader) (*Deck, error) {
	var doc yamlDeck
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return &Deck{}, nil
		}
		return nil, fmt.Errorf("failed to decode yaml: %w", err)
	}

	deck := &Deck{
		Title:  doc.Title,
		Video:  doc.Video,
		Slides: make([]narration.RawSlide, 0, len(doc.Slides)),
	}

	for i, s := range doc.Slides {
		index := s.Index
		if index == 0 {
			index = i + 1
		}

		raw := narration.RawSlide{
			Index:         index,
			Title:         s.Title,
			Image:         s.Image,
			Audio:         s.Audio,
			AudioDuration: s.Duration,
			Lines:         make([]narration.RawLine, 0, len(s.Lines)),
		}
		for _, l := range s.Lines {
			raw.Lines = append(raw.Lines, narration.RawLine{
				ID:         l.ID,
				Section:    l.Section,
				Text:       l.Text,
				Start:      string(l.Start),
				End:        string(l.End),
				StartVideo: string(l.StartVideo),
				EndVideo:   string(l.EndVideo),
			})
		}
		deck.Slides = append(deck.Slides, raw)
	}

	return deck, nil
}

package parser

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/agleyzer/slidecast/internal/narration"
)

// ParseHTML extracts the deck from the published article page:
//
//	#reveal{N} section[data-menu-title] svg[data-src]   slide N
//	#slide{N}Notes span[data-type=narration]           narration lines
//	audio#audio-player-{N}[src] or its source[src]     slide N audio
//	[data-video-id]                                    deck video
//
// A slide exists when its #reveal{N} element does.
func ParseHTML(r io.Reader) (*Deck, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html: %w", err)
	}

	deck := &Deck{}
	slides := make(map[int]*narration.RawSlide)
	notes := make(map[int]*html.Node)
	audio := make(map[int]string)

	walk(doc, func(n *html.Node) {
		if n.DataAtom == atom.Title && deck.Title == "" {
			deck.Title = strings.TrimSpace(textContent(n))
		}
		if v := attr(n, "data-video-id"); v != "" && deck.Video == "" {
			deck.Video = v
		}

		id := attr(n, "id")
		if i, ok := numbered(id, "reveal", ""); ok {
			slides[i] = revealSlide(i, n)
		}
		if i, ok := numbered(id, "slide", "Notes"); ok {
			notes[i] = n
		}
		if i, ok := numbered(id, "audio-player-", ""); ok && n.DataAtom == atom.Audio {
			audio[i] = audioSource(n)
		}
	})

	indexes := make([]int, 0, len(slides))
	for i := range slides {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	for _, i := range indexes {
		s := slides[i]
		s.Audio = audio[i]
		if n, ok := notes[i]; ok {
			s.Lines = narrationLines(n)
		}
		deck.Slides = append(deck.Slides, *s)
	}

	return deck, nil
}

func revealSlide(index int, n *html.Node) *narration.RawSlide {
	s := &narration.RawSlide{Index: index}

	section := find(n, func(c *html.Node) bool { return c.DataAtom == atom.Section })
	if section == nil {
		return s
	}
	s.Title = attr(section, "data-menu-title")

	if svg := find(section, func(c *html.Node) bool { return c.DataAtom == atom.Svg }); svg != nil {
		s.Image = attr(svg, "data-src")
	}
	return s
}

func narrationLines(notes *html.Node) []narration.RawLine {
	var lines []narration.RawLine
	walk(notes, func(n *html.Node) {
		if n.DataAtom != atom.Span || attr(n, "data-type") != "narration" {
			return
		}
		lines = append(lines, narration.RawLine{
			ID:         attr(n, "id"),
			Section:    attr(n, "data-section"),
			Text:       textContent(n),
			Start:      attr(n, "data-start"),
			End:        attr(n, "data-end"),
			StartVideo: attr(n, "data-start-video"),
			EndVideo:   attr(n, "data-end-video"),
		})
	})
	return lines
}

func audioSource(n *html.Node) string {
	if src := attr(n, "src"); src != "" {
		return src
	}
	source := find(n, func(c *html.Node) bool { return c.DataAtom == atom.Source && attr(c, "src") != "" })
	if source == nil {
		return ""
	}
	return attr(source, "src")
}

// numbered matches ids of the form prefix{N}suffix with N >= 1.
func numbered(id, prefix, suffix string) (int, bool) {
	if !strings.HasPrefix(id, prefix) || !strings.HasSuffix(id, suffix) {
		return 0, false
	}
	digits := id[len(prefix) : len(id)-len(suffix)]
	if digits == "" {
		return 0, false
	}
	i, err := strconv.Atoi(digits)
	if err != nil || i < 1 {
		return 0, false
	}
	return i, true
}

func walk(n *html.Node, fn func(*html.Node)) {
	if n.Type == html.ElementNode {
		fn(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

// find returns the first element below n matching match.
func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && match(c) {
			return c
		}
		if found := find(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return b.String()
}

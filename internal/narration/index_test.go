package narration

import (
	"bytes"
	"log/slog"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))
}

func TestParseSeconds(t *testing.T) {
	tests := []struct {
		name   string
		value  string
		want   float64
		wantOK bool
	}{
		{"integer", "12", 12, true},
		{"decimal", "3.25", 3.25, true},
		{"padded", "  7.5 ", 7.5, true},
		{"zero", "0", 0, true},
		{"empty", "", 0, false},
		{"text", "abc", 0, false},
		{"negative", "-1", 0, false},
		{"nan", "NaN", 0, false},
		{"inf", "Inf", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseSeconds(tt.value)
			if ok != tt.wantOK {
				t.Fatalf("ParseSeconds(%q) ok = %v, want %v", tt.value, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("ParseSeconds(%q) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestParseSpan_EndBeforeStart(t *testing.T) {
	if span := ParseSpan("10", "5"); span.Valid {
		t.Errorf("expected invalid span, got %+v", span)
	}
	if span := ParseSpan("5", "x"); span.Valid {
		t.Errorf("expected invalid span for non-numeric end, got %+v", span)
	}
	if span := ParseSpan("5", "5"); !span.Valid {
		t.Error("zero-length span should be valid")
	}
}

func TestBuild_Empty(t *testing.T) {
	idx := Build(nil, testLogger())

	if idx.SlideCount() != 0 {
		t.Errorf("SlideCount = %d, want 0", idx.SlideCount())
	}
	if len(idx.AllLines()) != 0 {
		t.Errorf("expected no lines, got %d", len(idx.AllLines()))
	}
	if idx.TotalDuration() != 0 {
		t.Errorf("TotalDuration = %v, want 0", idx.TotalDuration())
	}
	if idx.FirstSlide() != 1 {
		t.Errorf("FirstSlide on empty index = %d, want 1", idx.FirstSlide())
	}
}

func TestBuild_OrdersSlidesAndLines(t *testing.T) {
	raw := []RawSlide{
		{Index: 2, Lines: []RawLine{
			{Text: "b1", Start: "0", End: "4", StartVideo: "12", EndVideo: "16"},
			{Text: "b2", Start: "4", End: "9", StartVideo: "16", EndVideo: "40"},
		}},
		{Index: 1, Title: "Intro", Lines: []RawLine{
			{Text: "a1", Start: "0", End: "12", StartVideo: "0", EndVideo: "12"},
		}},
	}

	idx := Build(raw, testLogger())

	if idx.SlideCount() != 2 {
		t.Fatalf("SlideCount = %d, want 2", idx.SlideCount())
	}

	all := idx.AllLines()
	var texts []string
	for _, l := range all {
		texts = append(texts, l.Text)
	}
	want := []string{"a1", "b1", "b2"}
	for i := range want {
		if texts[i] != want[i] {
			t.Fatalf("AllLines order = %v, want %v", texts, want)
		}
	}

	if all[2].Slide != 2 || all[2].Seq != 2 {
		t.Errorf("last line identity = (%d,%d), want (2,2)", all[2].Slide, all[2].Seq)
	}

	slide, ok := idx.Slide(2)
	if !ok {
		t.Fatal("slide 2 not found")
	}
	if slide.Title != "Slide 2" {
		t.Errorf("default title = %q, want %q", slide.Title, "Slide 2")
	}
	if s1, _ := idx.Slide(1); s1.Title != "Intro" {
		t.Errorf("title = %q, want Intro", s1.Title)
	}

	if idx.TotalDuration() != 40 {
		t.Errorf("TotalDuration = %v, want 40", idx.TotalDuration())
	}

	if idx.Position(all[1]) != 1 {
		t.Errorf("Position = %d, want 1", idx.Position(all[1]))
	}
	if idx.At(1) != all[1] {
		t.Error("At(1) should return the same line pointer")
	}
	if idx.Line(2, 1) != all[1] {
		t.Error("Line(2,1) should reference the shared line")
	}
	if idx.FirstLine(3) != nil {
		t.Error("FirstLine of missing slide should be nil")
	}
}

func TestBuild_MalformedTimestampsDegrade(t *testing.T) {
	raw := []RawSlide{
		{Index: 1, Lines: []RawLine{
			{Text: "ok", Start: "0", End: "3", StartVideo: "0", EndVideo: "3"},
			{Text: "bad", Start: "oops", End: "", StartVideo: "3", EndVideo: "nope"},
		}},
	}

	idx := Build(raw, testLogger())
	bad := idx.Line(1, 2)
	if bad == nil {
		t.Fatal("malformed line should still be indexed")
	}
	if bad.Audio.Valid || bad.Video.Valid {
		t.Errorf("expected invalid spans, got audio=%+v video=%+v", bad.Audio, bad.Video)
	}
	if bad.Video.Contains(3) {
		t.Error("invalid span must not contain any time")
	}
	if idx.TotalDuration() != 3 {
		t.Errorf("TotalDuration = %v, want 3", idx.TotalDuration())
	}
}

func TestBuild_SkipsInvalidAndDuplicateSlides(t *testing.T) {
	raw := []RawSlide{
		{Index: 0},
		{Index: 1, Title: "first"},
		{Index: 1, Title: "dup"},
	}

	idx := Build(raw, testLogger())
	if idx.SlideCount() != 1 {
		t.Fatalf("SlideCount = %d, want 1", idx.SlideCount())
	}
	if s, _ := idx.Slide(1); s.Title != "first" {
		t.Errorf("kept slide title = %q, want first", s.Title)
	}
}

func TestIndex_ReturnsCopies(t *testing.T) {
	raw := []RawSlide{{Index: 1, Lines: []RawLine{{Text: "a", Start: "0", End: "1", StartVideo: "0", EndVideo: "1"}}}}
	idx := Build(raw, testLogger())

	lines := idx.AllLines()
	lines[0] = nil
	if idx.AllLines()[0] == nil {
		t.Error("mutating AllLines result must not affect the index")
	}

	of := idx.LinesOfSlide(1)
	of[0] = nil
	if idx.LinesOfSlide(1)[0] == nil {
		t.Error("mutating LinesOfSlide result must not affect the index")
	}
}

func TestSlideVideoBounds(t *testing.T) {
	raw := []RawSlide{{Index: 3, Lines: []RawLine{
		{Text: "x", Start: "a", End: "b", StartVideo: "", EndVideo: ""},
		{Text: "y", Start: "0", End: "2", StartVideo: "50", EndVideo: "52"},
		{Text: "z", Start: "2", End: "5", StartVideo: "52", EndVideo: "55"},
	}}}
	idx := Build(raw, testLogger())

	start, ok := idx.SlideVideoStart(3)
	if !ok || start != 50 {
		t.Errorf("SlideVideoStart = %v,%v, want 50,true", start, ok)
	}
	end, ok := idx.SlideVideoEnd(3)
	if !ok || end != 55 {
		t.Errorf("SlideVideoEnd = %v,%v, want 55,true", end, ok)
	}
	if _, ok := idx.SlideVideoStart(9); ok {
		t.Error("missing slide should report ok=false")
	}
}

package player

import (
	"math"
	"testing"
	"time"
)

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "0:00"},
		{5.9, "0:05"},
		{65, "1:05"},
		{599, "9:59"},
		{3599, "59:59"},
		{3600, "1:00:00"},
		{3725, "1:02:05"},
		{-1, "0:00"},
		{math.NaN(), "0:00"},
		{math.Inf(1), "0:00"},
	}

	for _, tt := range tests {
		if got := FormatTimestamp(tt.seconds); got != tt.want {
			t.Errorf("FormatTimestamp(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestNewProgress(t *testing.T) {
	p := newProgress(90, 360)
	if p.Fraction != 0.25 {
		t.Errorf("fraction = %v, want 0.25", p.Fraction)
	}
	if p.Label != "1:30 / 6:00" {
		t.Errorf("label = %q", p.Label)
	}

	if p := newProgress(400, 360); p.Fraction != 1 {
		t.Errorf("overrun fraction = %v, want 1", p.Fraction)
	}
	if p := newProgress(10, 0); p.Fraction != 0 {
		t.Errorf("zero total fraction = %v, want 0", p.Fraction)
	}
}

func TestParseViewMode(t *testing.T) {
	tests := []struct {
		input   string
		want    ViewMode
		wantErr bool
	}{
		{"article", Article, false},
		{"Presentation", Presentation, false},
		{" VIDEO ", Video, false},
		{"slides", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseViewMode(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseViewMode(%q) expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseViewMode(%q) unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseViewMode(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}

	for _, m := range Modes {
		if got, err := ParseViewMode(m.String()); err != nil || got != m {
			t.Errorf("round trip of %v = %v, %v", m, got, err)
		}
	}
}

func TestOptionsDefaults(t *testing.T) {
	opts := Options{ArticleSettle: time.Second}.withDefaults()
	def := DefaultOptions()

	if opts.ArticleSettle != time.Second {
		t.Errorf("explicit ArticleSettle overwritten: %v", opts.ArticleSettle)
	}
	if opts.ReadyTimeout != def.ReadyTimeout {
		t.Errorf("ReadyTimeout = %v, want default %v", opts.ReadyTimeout, def.ReadyTimeout)
	}
	if opts.VideoPollInterval != def.VideoPollInterval {
		t.Errorf("VideoPollInterval = %v, want default %v", opts.VideoPollInterval, def.VideoPollInterval)
	}
	if def.ReadyTimeout != 5*time.Second {
		t.Errorf("default ReadyTimeout = %v, want 5s", def.ReadyTimeout)
	}
}

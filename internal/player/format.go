package player

import (
	"fmt"
	"math"
)

// FormatTimestamp renders seconds as m:ss, or h:mm:ss from one hour up.
func FormatTimestamp(seconds float64) string {
	if math.IsNaN(seconds) || math.IsInf(seconds, 0) || seconds < 0 {
		return "0:00"
	}

	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60

	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// Progress is the state of the progress bar.
type Progress struct {
	Current  float64 `json:"current"`
	Total    float64 `json:"total"`
	Fraction float64 `json:"fraction"`
	Label    string  `json:"label"`
}

func newProgress(current, total float64) Progress {
	p := Progress{Current: current, Total: total}
	if total > 0 {
		p.Fraction = math.Max(0, math.Min(1, current/total))
	}
	p.Label = FormatTimestamp(current) + " / " + FormatTimestamp(total)
	return p
}

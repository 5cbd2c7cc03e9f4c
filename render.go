package txwatch

import (
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/txwatch/txwatch/internal/anomaly"
)

// Axis rescale constants.
const (
	// XPadding is how far the x axis starts before the first sample.
	XPadding = time.Minute
	// YScale multiplies the running maximum to leave headroom above it.
	YScale = 1.4
	// YEpsilon keeps the y axis non-degenerate when every value is 0.
	YEpsilon = 0.01
)

// Point is one plotted sample.
type Point struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// TimeBounds is the visible x range.
type TimeBounds struct {
	Min time.Time `json:"min"`
	Max time.Time `json:"max"`
}

// ValueBounds is the visible y range.
type ValueBounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// RenderState is the visual state of one status. Plotted grows append-only
// and AnomalyMarks only ever gains indices.
type RenderState struct {
	Status       string      `json:"status"`
	Color        string      `json:"color"`
	Plotted      []Point     `json:"plotted"`
	AnomalyMarks []int       `json:"anomaly_marks"`
	XBounds      TimeBounds  `json:"x_bounds"`
	YBounds      ValueBounds `json:"y_bounds"`
	Banner       string      `json:"banner"`
	BannerColor  string      `json:"banner_color,omitempty"`
	Detail       string      `json:"detail"`
	Frozen       bool        `json:"frozen"`
	Error        string      `json:"error,omitempty"`
}

// Clone returns a deep copy.
func (r RenderState) Clone() RenderState {
	out := r
	if r.Plotted != nil {
		out.Plotted = append([]Point(nil), r.Plotted...)
	}
	if r.AnomalyMarks != nil {
		out.AnomalyMarks = append([]int(nil), r.AnomalyMarks...)
	}
	return out
}

// IsMarked reports whether index carries an anomaly marker.
func (r RenderState) IsMarked(index int) bool {
	for _, m := range r.AnomalyMarks {
		if m == index {
			return true
		}
	}
	return false
}

// Len returns the number of plotted points.
func (r RenderState) Len() int { return len(r.Plotted) }

// renderUpdate carries everything one step needs to advance a RenderState.
type renderUpdate struct {
	index   int
	sample  Sample
	verdict anomaly.Verdict
	// window is samples[0..index] of the series.
	window []Sample
	next   Sample
	// hasNext is false when sample is the last of its series.
	hasNext bool
}

// apply returns the state after u. r is not modified, so a failed or
// abandoned step leaves the committed state untouched.
func (r RenderState) apply(u renderUpdate) RenderState {
	out := r.Clone()
	out.Plotted = append(out.Plotted, Point{Timestamp: u.sample.Timestamp, Value: u.sample.Value})

	if u.verdict.IsAnomalous {
		if !out.IsMarked(u.index) {
			out.AnomalyMarks = append(out.AnomalyMarks, u.index)
		}
		out.Banner = bannerText(r.Status, u.verdict)
		out.BannerColor = r.Color
		out.Detail = detailText(r.Status, u.sample)
	} else {
		out.Banner = ""
		out.BannerColor = ""
	}

	if u.hasNext && len(u.window) > 0 {
		out.XBounds = TimeBounds{
			Min: u.window[0].Timestamp.Add(-XPadding),
			Max: u.next.Timestamp,
		}
	}
	out.YBounds = yBounds(u.window)

	if !u.hasNext {
		out.Frozen = true
	}
	return out
}

// yBounds recomputes [0, max*YScale + YEpsilon] over the whole window.
func yBounds(window []Sample) ValueBounds {
	maxY := 0.0
	for _, s := range window {
		if s.Value > maxY {
			maxY = s.Value
		}
	}
	return ValueBounds{Min: 0, Max: maxY*YScale + YEpsilon}
}

func bannerText(status string, v anomaly.Verdict) string {
	dir := anomaly.DirectionAbove
	if v.Direction() == anomaly.DirectionBelow {
		dir = anomaly.DirectionBelow
	}
	return capitalize(status) + " is " + dir.String() + " normal!"
}

func detailText(status string, s Sample) string {
	var b strings.Builder
	b.WriteString("Latest possible anomaly: ")
	b.WriteString(strconv.FormatFloat(s.Value, 'f', -1, 64))
	b.WriteString(" transactions ")
	b.WriteString(status)
	b.WriteString(" at ")
	b.WriteString(s.Timestamp.Format(time.TimeOnly))
	return b.String()
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

package txwatch

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/txwatch/txwatch/internal/anomaly"
	"github.com/txwatch/txwatch/internal/testutil"
)

// wantYMax mirrors the y bound formula with runtime float arithmetic.
func wantYMax(maxValue float64) float64 {
	return maxValue*YScale + YEpsilon
}

func TestRenderState_ApplyAnomalous(t *testing.T) {
	window := []Sample{
		{Timestamp: testutil.At(10, 0), Value: 5},
		{Timestamp: testutil.At(10, 1), Value: 20},
	}
	state := RenderState{Status: "denied", Color: "#e41a1c", Plotted: []Point{{Timestamp: window[0].Timestamp, Value: 5}}}

	got := state.apply(renderUpdate{
		index:   1,
		sample:  window[1],
		verdict: anomaly.Verdict{IsAnomalous: true, ZScore: 15},
		window:  window,
		next:    Sample{Timestamp: testutil.At(10, 2), Value: 4},
		hasNext: true,
	})

	want := RenderState{
		Status: "denied",
		Color:  "#e41a1c",
		Plotted: []Point{
			{Timestamp: testutil.At(10, 0), Value: 5},
			{Timestamp: testutil.At(10, 1), Value: 20},
		},
		AnomalyMarks: []int{1},
		XBounds:      TimeBounds{Min: testutil.At(9, 59), Max: testutil.At(10, 2)},
		YBounds:      ValueBounds{Min: 0, Max: wantYMax(20)},
		Banner:       "Denied is above normal!",
		BannerColor:  "#e41a1c",
		Detail:       "Latest possible anomaly: 20 transactions denied at 10:01:00",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}

	if len(state.Plotted) != 1 || state.Banner != "" {
		t.Error("apply must not modify the receiver")
	}
}

func TestRenderState_ApplyNormalClearsBannerKeepsDetail(t *testing.T) {
	state := RenderState{
		Status:       "failed",
		Color:        "#a65628",
		Banner:       "Failed is above normal!",
		BannerColor:  "#a65628",
		Detail:       "Latest possible anomaly: 9 transactions failed at 10:00:00",
		AnomalyMarks: []int{0},
		Plotted:      []Point{{Timestamp: testutil.At(10, 0), Value: 9}},
	}
	window := []Sample{
		{Timestamp: testutil.At(10, 0), Value: 9},
		{Timestamp: testutil.At(10, 1), Value: 2},
	}
	got := state.apply(renderUpdate{
		index:   1,
		sample:  window[1],
		verdict: anomaly.Verdict{ZScore: 0.1},
		window:  window,
		next:    Sample{Timestamp: testutil.At(10, 2)},
		hasNext: true,
	})

	if got.Banner != "" || got.BannerColor != "" {
		t.Errorf("banner should be cleared, got %q/%q", got.Banner, got.BannerColor)
	}
	if got.Detail != state.Detail {
		t.Errorf("detail should persist, got %q", got.Detail)
	}
	if diff := cmp.Diff([]int{0}, got.AnomalyMarks); diff != "" {
		t.Errorf("marks must be permanent:\n%s", diff)
	}
	if got.YBounds.Max != wantYMax(9) {
		t.Errorf("y max = %v, want running max based bound", got.YBounds.Max)
	}
}

func TestRenderState_ApplyLastSampleKeepsXBounds(t *testing.T) {
	prev := TimeBounds{Min: testutil.At(9, 59), Max: testutil.At(10, 1)}
	state := RenderState{Status: "reversed", XBounds: prev}
	window := []Sample{
		{Timestamp: testutil.At(10, 0), Value: 1},
		{Timestamp: testutil.At(10, 1), Value: 3},
	}
	got := state.apply(renderUpdate{
		index:   1,
		sample:  window[1],
		window:  window,
		hasNext: false,
	})
	if diff := cmp.Diff(prev, got.XBounds); diff != "" {
		t.Errorf("x bounds must persist on the last sample:\n%s", diff)
	}
	if got.YBounds.Max != wantYMax(3) {
		t.Errorf("y bounds must still be updated, got %v", got.YBounds.Max)
	}
	if !got.Frozen {
		t.Error("state should freeze after the last sample")
	}
}

func TestRenderState_BelowNormalBanner(t *testing.T) {
	state := RenderState{Status: "denied"}
	got := state.apply(renderUpdate{
		sample:  Sample{Timestamp: testutil.At(12, 30), Value: 0},
		verdict: anomaly.Verdict{IsAnomalous: true, ZScore: -4},
		window:  []Sample{{Timestamp: testutil.At(12, 30), Value: 0}},
		hasNext: true,
		next:    Sample{Timestamp: testutil.At(12, 31)},
	})
	if got.Banner != "Denied is below normal!" {
		t.Errorf("Banner = %q", got.Banner)
	}
	if got.YBounds.Max != YEpsilon {
		t.Errorf("all-zero window should give y max %v, got %v", YEpsilon, got.YBounds.Max)
	}
}

func TestRenderState_ZeroStddevBelowBanner(t *testing.T) {
	verdict := anomaly.NewClassifier(5, 0, 3).Evaluate(3)
	if !verdict.IsAnomalous || !math.IsInf(verdict.ZScore, -1) {
		t.Fatalf("verdict = %+v, want anomalous with z = -Inf", verdict)
	}

	state := RenderState{Status: "denied", Color: "#e41a1c"}
	got := state.apply(renderUpdate{
		index:   0,
		sample:  Sample{Timestamp: testutil.At(9, 15), Value: 3},
		verdict: verdict,
		window:  []Sample{{Timestamp: testutil.At(9, 15), Value: 3}},
	})
	if got.Banner != "Denied is below normal!" {
		t.Errorf("Banner = %q", got.Banner)
	}
	if got.BannerColor != "#e41a1c" || !got.IsMarked(0) {
		t.Errorf("expected colored banner and a mark, got %+v", got)
	}
}

func TestRenderState_Clone(t *testing.T) {
	orig := RenderState{Plotted: []Point{{Value: 1}}, AnomalyMarks: []int{0}}
	c := orig.Clone()
	c.Plotted[0].Value = 2
	c.AnomalyMarks[0] = 5
	if orig.Plotted[0].Value != 1 || orig.AnomalyMarks[0] != 0 {
		t.Error("Clone must deep copy slices")
	}
}

func TestCapitalize(t *testing.T) {
	for in, want := range map[string]string{
		"denied":   "Denied",
		"REVERSED": "Reversed",
		"":         "",
		"éclair":   "Éclair",
	} {
		if got := capitalize(in); got != want {
			t.Errorf("capitalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDetailTextFormatsTimeOfDay(t *testing.T) {
	got := detailText("failed", Sample{Timestamp: testutil.Day.Add(13*time.Hour + 5*time.Minute + 7*time.Second), Value: 12.5})
	want := "Latest possible anomaly: 12.5 transactions failed at 13:05:07"
	if got != want {
		t.Errorf("detailText = %q, want %q", got, want)
	}
}

package anomaly

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEvaluate_WithinThreshold(t *testing.T) {
	mean, std := 5.0, 1.0
	for _, v := range []float64{5, 6, 4, 2, 8, 2.0001, 7.9999} {
		if got := Evaluate(mean, std, v, DefaultThreshold); got.IsAnomalous {
			t.Errorf("value %v: expected normal, got anomalous (z=%v)", v, got.ZScore)
		}
	}
}

func TestEvaluate_BeyondThreshold(t *testing.T) {
	mean, std := 5.0, 1.0
	for _, v := range []float64{8.0001, 1.9999, 20, 0} {
		got := Evaluate(mean, std, v, DefaultThreshold)
		if math.Abs(v-mean) > 3*std && !got.IsAnomalous {
			t.Errorf("value %v: expected anomalous, got normal (z=%v)", v, got.ZScore)
		}
	}
}

func TestEvaluate_ExactlyAtThresholdIsNormal(t *testing.T) {
	got := Evaluate(10, 2, 16, 3)
	if got.IsAnomalous {
		t.Error("|z| == threshold must not be anomalous")
	}
	if got.ZScore != 3 {
		t.Errorf("expected z=3, got %v", got.ZScore)
	}
}

func TestEvaluate_Idempotent(t *testing.T) {
	a := Evaluate(5, 1, 20, 3)
	b := Evaluate(5, 1, 20, 3)
	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("verdicts differ (-first +second):\n%s", diff)
	}
}

func TestEvaluate_Scenario(t *testing.T) {
	values := []float64{5, 6, 4, 20, 5}
	want := []bool{false, false, false, true, false}

	c := NewClassifier(5, 1, 3)
	got := make([]bool, len(values))
	for i, v := range values {
		got[i] = c.Evaluate(v).IsAnomalous
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("verdicts mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluate_ZeroStddev(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		want  Verdict
	}{
		{"equal", 4, Verdict{}},
		{"above", 5, Verdict{IsAnomalous: true, ZScore: math.Inf(1)}},
		{"below", 3, Verdict{IsAnomalous: true, ZScore: math.Inf(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(4, 0, tt.value, DefaultThreshold)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestVerdictDirection(t *testing.T) {
	if d := Evaluate(5, 1, 20, 3).Direction(); d != DirectionAbove {
		t.Errorf("expected above, got %s", d)
	}
	if d := Evaluate(50, 1, 20, 3).Direction(); d != DirectionBelow {
		t.Errorf("expected below, got %s", d)
	}
	if d := Evaluate(5, 1, 5, 3).Direction(); d != DirectionNone {
		t.Errorf("expected none, got %s", d)
	}
}

func TestNewClassifier_DefaultThreshold(t *testing.T) {
	c := NewClassifier(1, 1, 0)
	if c.Threshold() != DefaultThreshold {
		t.Errorf("expected default threshold %v, got %v", DefaultThreshold, c.Threshold())
	}
	c = NewClassifier(1, 1, 2.5)
	if c.Threshold() != 2.5 {
		t.Errorf("expected threshold 2.5, got %v", c.Threshold())
	}
}

func TestFit(t *testing.T) {
	mean, std := Fit([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if mean != 5 {
		t.Errorf("expected mean 5, got %v", mean)
	}
	if std != 2 {
		t.Errorf("expected stddev 2, got %v", std)
	}

	mean, std = Fit(nil)
	if mean != 0 || std != 0 {
		t.Errorf("expected zeros for empty input, got %v %v", mean, std)
	}
}

func TestVerdictJSON_Unbounded(t *testing.T) {
	for _, v := range []Verdict{
		{IsAnomalous: true, ZScore: math.Inf(1)},
		{IsAnomalous: true, ZScore: math.Inf(-1)},
		{IsAnomalous: false, ZScore: 1.5},
	} {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("Marshal(%v) failed: %v", v, err)
		}
		var got Verdict
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("Unmarshal(%s) failed: %v", data, err)
		}
		if diff := cmp.Diff(v, got); diff != "" {
			t.Errorf("verdict changed over JSON (-want +got):\n%s", diff)
		}
	}
}

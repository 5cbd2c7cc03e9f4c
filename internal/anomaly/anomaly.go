// Package anomaly implements the z-score decision rule used to flag samples
// that deviate from a regular-day baseline.
package anomaly

import (
	"encoding/json"
	"math"
)

// DefaultThreshold is the number of standard deviations a sample may drift
// from the baseline mean before it is reported as anomalous.
const DefaultThreshold = 3.0

// Verdict is the outcome of evaluating one sample.
type Verdict struct {
	// IsAnomalous reports whether |ZScore| exceeded the threshold.
	IsAnomalous bool `json:"is_anomalous"`

	// ZScore is the signed distance from the mean in standard deviations.
	// It is ±Inf when the baseline has zero spread and the value differs
	// from the mean.
	ZScore float64 `json:"z_score"`
}

// Direction describes on which side of the mean a verdict lies.
type Direction int

const (
	// DirectionNone means the value equals the mean.
	DirectionNone Direction = iota
	// DirectionAbove means the value is above the mean.
	DirectionAbove
	// DirectionBelow means the value is below the mean.
	DirectionBelow
)

func (d Direction) String() string {
	switch d {
	case DirectionAbove:
		return "above"
	case DirectionBelow:
		return "below"
	default:
		return "at"
	}
}

// Direction returns the side of the mean the evaluated value fell on.
func (v Verdict) Direction() Direction {
	switch {
	case v.ZScore > 0:
		return DirectionAbove
	case v.ZScore < 0:
		return DirectionBelow
	default:
		return DirectionNone
	}
}

// verdictJSON is the wire form of Verdict. JSON has no infinity, so an
// unbounded z-score is sent as null with its sign in Unbounded.
type verdictJSON struct {
	IsAnomalous bool     `json:"is_anomalous"`
	ZScore      *float64 `json:"z_score"`
	Unbounded   string   `json:"unbounded,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (v Verdict) MarshalJSON() ([]byte, error) {
	w := verdictJSON{IsAnomalous: v.IsAnomalous}
	switch {
	case math.IsInf(v.ZScore, 1):
		w.Unbounded = "+Inf"
	case math.IsInf(v.ZScore, -1):
		w.Unbounded = "-Inf"
	default:
		z := v.ZScore
		w.ZScore = &z
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Verdict) UnmarshalJSON(data []byte) error {
	var w verdictJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	v.IsAnomalous = w.IsAnomalous
	switch {
	case w.Unbounded == "+Inf":
		v.ZScore = math.Inf(1)
	case w.Unbounded == "-Inf":
		v.ZScore = math.Inf(-1)
	case w.ZScore != nil:
		v.ZScore = *w.ZScore
	default:
		v.ZScore = 0
	}
	return nil
}

// Evaluate applies the z-score rule to a single value.
//
// A zero stddev cannot be divided by, so any non-zero deviation is treated
// as anomalous and an exact match as normal.
func Evaluate(mean, stddev, value, threshold float64) Verdict {
	deviation := value - mean
	if stddev == 0 {
		switch {
		case deviation > 0:
			return Verdict{IsAnomalous: true, ZScore: math.Inf(1)}
		case deviation < 0:
			return Verdict{IsAnomalous: true, ZScore: math.Inf(-1)}
		default:
			return Verdict{}
		}
	}

	z := deviation / stddev
	return Verdict{
		IsAnomalous: math.Abs(z) > threshold,
		ZScore:      z,
	}
}

// Classifier binds a baseline and threshold so callers only pass values.
// It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	mean      float64
	stddev    float64
	threshold float64
}

// NewClassifier creates a classifier for one baseline. A non-positive
// threshold falls back to DefaultThreshold.
func NewClassifier(mean, stddev, threshold float64) *Classifier {
	if threshold <= 0 || math.IsNaN(threshold) {
		threshold = DefaultThreshold
	}
	return &Classifier{
		mean:      mean,
		stddev:    stddev,
		threshold: threshold,
	}
}

// Evaluate classifies value against the bound baseline.
func (c *Classifier) Evaluate(value float64) Verdict {
	return Evaluate(c.mean, c.stddev, value, c.threshold)
}

// Threshold returns the configured threshold.
func (c *Classifier) Threshold() float64 {
	return c.threshold
}

// Mean returns the baseline mean.
func (c *Classifier) Mean() float64 {
	return c.mean
}

// Stddev returns the baseline standard deviation.
func (c *Classifier) Stddev() float64 {
	return c.stddev
}

package txwatch

import (
	"fmt"
	"math"
	"time"
)

// Sample is one observation of a status count at a time of day.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Series is an immutable, time-ordered sequence of samples for one status.
type Series struct {
	status  string
	samples []Sample
}

// NewSeries validates samples and returns a series that owns a copy of them.
// Values must be finite and non-negative and timestamps non-decreasing;
// ties keep their arrival order.
func NewSeries(status string, samples []Sample) (*Series, error) {
	for i, s := range samples {
		if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
			return nil, &SampleError{Status: status, Index: i, Reason: fmt.Sprintf("value %v is not finite", s.Value)}
		}
		if s.Value < 0 {
			return nil, &SampleError{Status: status, Index: i, Reason: fmt.Sprintf("value %v is negative", s.Value)}
		}
		if s.Timestamp.IsZero() {
			return nil, &SampleError{Status: status, Index: i, Reason: "missing timestamp"}
		}
		if i > 0 && s.Timestamp.Before(samples[i-1].Timestamp) {
			return nil, &SampleError{Status: status, Index: i, Reason: fmt.Sprintf(
				"timestamp %s precedes %s", s.Timestamp.Format(time.TimeOnly), samples[i-1].Timestamp.Format(time.TimeOnly))}
		}
	}
	return &Series{
		status:  status,
		samples: append([]Sample(nil), samples...),
	}, nil
}

// Status returns the status label.
func (s *Series) Status() string { return s.status }

// Len returns the number of samples.
func (s *Series) Len() int { return len(s.samples) }

// At returns the sample at index i.
func (s *Series) At(i int) Sample { return s.samples[i] }

// Samples returns a copy of every sample.
func (s *Series) Samples() []Sample {
	return append([]Sample(nil), s.samples...)
}

// Values returns the sample values in order.
func (s *Series) Values() []float64 {
	out := make([]float64, len(s.samples))
	for i, smp := range s.samples {
		out[i] = smp.Value
	}
	return out
}

// SeriesCursor replays a series one sample at a time. The playback
// position is the only mutable state; the series itself is never modified.
type SeriesCursor struct {
	series *Series
	frame  int
}

// NewSeriesCursor returns a cursor positioned at the first sample.
func NewSeriesCursor(series *Series) *SeriesCursor {
	return &SeriesCursor{series: series}
}

// Advance returns the sample at the current frame and moves past it.
// It returns ErrEndOfSeries once every sample has been consumed.
func (c *SeriesCursor) Advance() (Sample, error) {
	if c.frame >= c.series.Len() {
		return Sample{}, ErrEndOfSeries
	}
	s := c.series.At(c.frame)
	c.frame++
	return s, nil
}

// PeekWindow returns samples [0..frame] inclusive. The slice is rebuilt on
// every call; callers may keep it.
func (c *SeriesCursor) PeekWindow(frame int) []Sample {
	if frame < 0 {
		return nil
	}
	end := frame + 1
	if end > c.series.Len() {
		end = c.series.Len()
	}
	return append([]Sample(nil), c.series.samples[:end]...)
}

// Next returns the next unconsumed sample without advancing.
func (c *SeriesCursor) Next() (Sample, bool) {
	if c.frame >= c.series.Len() {
		return Sample{}, false
	}
	return c.series.At(c.frame), true
}

// Frame returns the index of the next sample Advance will return.
func (c *SeriesCursor) Frame() int { return c.frame }

// Len returns the length of the underlying series.
func (c *SeriesCursor) Len() int { return c.series.Len() }

// Exhausted reports whether every sample has been consumed.
func (c *SeriesCursor) Exhausted() bool { return c.frame >= c.series.Len() }

// Series returns the underlying series.
func (c *SeriesCursor) Series() *Series { return c.series }

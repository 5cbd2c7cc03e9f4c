package txwatch

import (
	"context"
	"errors"
	"time"
)

// Stepper is what a clock drives. *Session implements it.
type Stepper interface {
	Step() ([]Frame, error)
	State() SessionState
}

// Clock issues one Step per interval until the stepper finishes or the
// context is canceled. A step always runs to completion; cancellation is
// only observed between ticks.
type Clock struct {
	interval time.Duration
}

// NewClock creates a clock. A non-positive interval replays without pausing.
func NewClock(interval time.Duration) *Clock {
	return &Clock{interval: interval}
}

// Interval returns the tick interval.
func (c *Clock) Interval() time.Duration {
	return c.interval
}

// Run drives s until it finishes. It returns nil when the session finished
// and ctx.Err() when it was stopped early.
func (c *Clock) Run(ctx context.Context, s Stepper) error {
	if c.interval <= 0 {
		_, err := Replay(ctx, s)
		return err
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for s.State() != SessionFinished {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Step(); err != nil {
				if errors.Is(err, ErrSessionFinished) {
					return nil
				}
				return err
			}
		}
	}
	return nil
}

// Replay steps s synchronously until it finishes and returns the number of
// ticks taken. It is the clock used by tests and batch runs.
func Replay(ctx context.Context, s Stepper) (int, error) {
	ticks := 0
	for s.State() != SessionFinished {
		if err := ctx.Err(); err != nil {
			return ticks, err
		}
		if _, err := s.Step(); err != nil {
			if errors.Is(err, ErrSessionFinished) {
				return ticks, nil
			}
			return ticks, err
		}
		ticks++
	}
	return ticks, nil
}

package txwatch

import (
	"context"
	"errors"
	"testing"
	"time"
)

// countingStepper finishes after n steps.
type countingStepper struct {
	n     int
	steps int
	fail  error
}

func (c *countingStepper) Step() ([]Frame, error) {
	if c.steps >= c.n {
		return nil, ErrSessionFinished
	}
	if c.fail != nil {
		return nil, c.fail
	}
	c.steps++
	return nil, nil
}

func (c *countingStepper) State() SessionState {
	if c.steps >= c.n {
		return SessionFinished
	}
	return SessionRunning
}

func TestClock_RunUntilFinished(t *testing.T) {
	baselines := testBaselines(t, "tx", map[string]Baseline{"denied": {Mean: 5, Stddev: 1}})
	s := newTestSession(t, []string{"denied"}, baselines,
		map[string]*Series{"denied": minuteSeries(t, "denied", 5, 6, 20)})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := NewClock(time.Millisecond).Run(ctx, s); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if s.State() != SessionFinished || s.Tick() != 3 {
		t.Errorf("state=%s tick=%d, want finished after 3", s.State(), s.Tick())
	}
}

func TestClock_RunCanceled(t *testing.T) {
	st := &countingStepper{n: 1 << 20}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewClock(time.Hour).Run(ctx, st)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if st.steps != 0 {
		t.Errorf("no tick should run after cancellation, ran %d", st.steps)
	}
}

func TestClock_RunPropagatesStepError(t *testing.T) {
	boom := errors.New("boom")
	st := &countingStepper{n: 3, fail: boom}
	if err := NewClock(time.Millisecond).Run(context.Background(), st); !errors.Is(err, boom) {
		t.Errorf("expected step error, got %v", err)
	}
}

func TestClock_ZeroIntervalReplays(t *testing.T) {
	st := &countingStepper{n: 4}
	c := NewClock(0)
	if c.Interval() != 0 {
		t.Errorf("Interval = %v", c.Interval())
	}
	if err := c.Run(context.Background(), st); err != nil {
		t.Fatal(err)
	}
	if st.steps != 4 {
		t.Errorf("steps = %d, want 4", st.steps)
	}
}

func TestReplay(t *testing.T) {
	tests := []struct {
		name  string
		n     int
		ticks int
	}{
		{"empty", 0, 0},
		{"one", 1, 1},
		{"many", 25, 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &countingStepper{n: tt.n}
			ticks, err := Replay(context.Background(), st)
			if err != nil {
				t.Fatal(err)
			}
			if ticks != tt.ticks {
				t.Errorf("ticks = %d, want %d", ticks, tt.ticks)
			}
		})
	}
}

func TestReplay_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ticks, err := Replay(ctx, &countingStepper{n: 3})
	if !errors.Is(err, context.Canceled) || ticks != 0 {
		t.Errorf("ticks=%d err=%v", ticks, err)
	}
}

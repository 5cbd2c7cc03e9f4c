package txwatch

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/txwatch/txwatch/internal/anomaly"
)

// SessionState is the lifecycle state of a Session.
type SessionState int

const (
	// SessionIdle means no tick has been stepped yet.
	SessionIdle SessionState = iota
	// SessionRunning means ticks are being stepped.
	SessionRunning
	// SessionFinished is terminal; render state is frozen.
	SessionFinished
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionRunning:
		return "running"
	case SessionFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *SessionState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "idle":
		*s = SessionIdle
	case "running":
		*s = SessionRunning
	case "finished":
		*s = SessionFinished
	default:
		return fmt.Errorf("unknown session state %q", text)
	}
	return nil
}

// pipeline owns everything one status needs. Pipelines never share
// mutable state.
type pipeline struct {
	status     string
	classifier *anomaly.Classifier
	cursor     *SeriesCursor
	state      RenderState
	err        error
}

func (p *pipeline) fail(err error) {
	p.err = err
	p.state.Frozen = true
	p.state.Error = err.Error()
}

// step consumes the next sample. It reports false when the pipeline has
// failed or is exhausted, in which case nothing changes.
func (p *pipeline) step(tick int) (Frame, bool) {
	if p.err != nil || p.state.Frozen {
		return Frame{}, false
	}
	index := p.cursor.Frame()
	sample, err := p.cursor.Advance()
	if err != nil {
		// Only reachable for an empty series, which is frozen up front.
		return Frame{}, false
	}
	next, hasNext := p.cursor.Next()
	verdict := p.classifier.Evaluate(sample.Value)

	p.state = p.state.apply(renderUpdate{
		index:   index,
		sample:  sample,
		verdict: verdict,
		window:  p.cursor.PeekWindow(index),
		next:    next,
		hasNext: hasNext,
	})

	return Frame{
		Tick:    tick,
		Status:  p.status,
		Index:   index,
		Sample:  sample,
		Verdict: verdict,
		State:   p.state.Clone(),
	}, true
}

// SessionSnapshot is a consistent copy of every status at one tick.
type SessionSnapshot struct {
	TransactionType string        `json:"transaction_type"`
	State           SessionState  `json:"state"`
	Tick            int           `json:"tick"`
	TotalTicks      int           `json:"total_ticks"`
	Threshold       float64       `json:"threshold"`
	Statuses        []RenderState `json:"statuses"`
}

// Status returns the render state of one status.
func (s SessionSnapshot) Status(status string) (RenderState, bool) {
	for _, st := range s.Statuses {
		if st.Status == status {
			return st, true
		}
	}
	return RenderState{}, false
}

// Session steps every status pipeline once per tick. It moves from
// SessionIdle to SessionRunning on the first Step and to SessionFinished
// after TotalTicks steps. Step and the read methods may be called from
// different goroutines; readers only observe committed state.
type Session struct {
	cfg Config

	mu         sync.RWMutex
	state      SessionState
	tick       int
	totalTicks int
	pipelines  []*pipeline
	byStatus   map[string]*pipeline

	sinks []RenderSink
}

// NewSession builds one pipeline per configured status.
//
// A status without a baseline or without a series gets a failed, frozen
// pipeline and a single warning; the remaining statuses still run. The
// tick count is the length of the longest series.
func NewSession(cfg Config, baselines *BaselineStore, series map[string]*Series, sinks ...RenderSink) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := &Session{
		cfg:       cfg,
		byStatus:  make(map[string]*pipeline, len(cfg.Statuses)),
		pipelines: make([]*pipeline, 0, len(cfg.Statuses)),
		sinks:     sinks,
	}

	for _, status := range cfg.Statuses {
		p := &pipeline{
			status: status,
			state: RenderState{
				Status: status,
				Color:  cfg.ColorFor(status),
			},
		}
		s.pipelines = append(s.pipelines, p)
		s.byStatus[status] = p

		sr, ok := series[status]
		if !ok || sr == nil {
			p.fail(fmt.Errorf("%w for status %q", ErrMissingSeries, status))
			slog.Warn("status disabled: no series", "status", status, "type", cfg.TransactionType)
			continue
		}
		p.cursor = NewSeriesCursor(sr)
		if sr.Len() > s.totalTicks {
			s.totalTicks = sr.Len()
		}

		b, err := baselines.Lookup(cfg.TransactionType, status)
		if err != nil {
			p.fail(err)
			msg := "status disabled: no baseline"
			if errors.Is(err, ErrInvalidBaseline) {
				msg = "status disabled: invalid baseline"
			}
			slog.Warn(msg, "status", status, "type", cfg.TransactionType, "err", err)
			continue
		}
		p.classifier = anomaly.NewClassifier(b.Mean, b.Stddev, cfg.Threshold)

		if sr.Len() == 0 {
			p.state.Frozen = true
		}
	}

	return s, nil
}

// Step advances every status by one sample and commits the results. It
// returns the frames of the statuses that changed. After the last tick
// the session is finished and further calls return ErrSessionFinished
// without touching any state.
func (s *Session) Step() ([]Frame, error) {
	s.mu.Lock()
	if s.state == SessionFinished {
		s.mu.Unlock()
		return nil, ErrSessionFinished
	}
	if s.tick >= s.totalTicks {
		s.state = SessionFinished
		s.mu.Unlock()
		s.finish()
		return nil, ErrSessionFinished
	}
	s.state = SessionRunning

	frames := make([]Frame, 0, len(s.pipelines))
	for _, p := range s.pipelines {
		if f, ok := p.step(s.tick); ok {
			frames = append(frames, f)
		}
	}
	s.tick++
	finished := s.tick >= s.totalTicks
	if finished {
		s.state = SessionFinished
	}
	s.mu.Unlock()

	s.deliver(frames)
	if finished {
		s.finish()
	}
	return frames, nil
}

func (s *Session) deliver(frames []Frame) {
	for _, f := range frames {
		for _, sink := range s.sinks {
			if err := sink.Render(f); err != nil {
				slog.Error("render sink failed", "status", f.Status, "tick", f.Tick, "err", err)
			}
		}
	}
}

func (s *Session) finish() {
	snap := s.Snapshot()
	slog.Info("session finished", "type", snap.TransactionType, "ticks", snap.Tick)
	for _, sink := range s.sinks {
		fs, ok := sink.(FinishSink)
		if !ok {
			continue
		}
		if err := fs.Finish(snap); err != nil {
			slog.Error("finish sink failed", "err", err)
		}
	}
}

// State returns the lifecycle state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Tick returns the number of steps taken so far.
func (s *Session) Tick() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tick
}

// TotalTicks returns the number of steps until the session finishes.
func (s *Session) TotalTicks() int {
	return s.totalTicks
}

// Config returns the session configuration.
func (s *Session) Config() Config {
	return s.cfg
}

// Statuses returns the status labels in configuration order.
func (s *Session) Statuses() []string {
	return append([]string(nil), s.cfg.Statuses...)
}

// StatusState returns a copy of one status's render state.
func (s *Session) StatusState(status string) (RenderState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byStatus[status]
	if !ok {
		return RenderState{}, fmt.Errorf("%w: %q", ErrUnknownStatus, status)
	}
	return p.state.Clone(), nil
}

// Snapshot returns a consistent copy of every status.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := SessionSnapshot{
		TransactionType: s.cfg.TransactionType,
		State:           s.state,
		Tick:            s.tick,
		TotalTicks:      s.totalTicks,
		Threshold:       s.cfg.Threshold,
		Statuses:        make([]RenderState, 0, len(s.pipelines)),
	}
	for _, p := range s.pipelines {
		snap.Statuses = append(snap.Statuses, p.state.Clone())
	}
	return snap
}

// Failures returns the error of every failed status pipeline.
func (s *Session) Failures() map[string]error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]error)
	for _, p := range s.pipelines {
		if p.err != nil {
			out[p.status] = p.err
		}
	}
	return out
}

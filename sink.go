package txwatch

import (
	"log/slog"
	"strconv"
	"sync"

	"github.com/txwatch/txwatch/internal/anomaly"
)

// Frame is what a status produced on one tick: the consumed sample, its
// verdict and the committed render state.
type Frame struct {
	Tick    int             `json:"tick"`
	Status  string          `json:"status"`
	Index   int             `json:"index"`
	Sample  Sample          `json:"sample"`
	Verdict anomaly.Verdict `json:"verdict"`
	State   RenderState     `json:"state"`
}

// RenderSink consumes committed frames. Render is called after the step's
// mutations are committed, once per updated status, in status order.
type RenderSink interface {
	Render(frame Frame) error
}

// FinishSink is implemented by sinks that want the frozen session once
// the last tick has been stepped.
type FinishSink interface {
	Finish(snapshot SessionSnapshot) error
}

// SinkFunc adapts a function to RenderSink.
type SinkFunc func(Frame) error

// Render calls f(frame).
func (f SinkFunc) Render(frame Frame) error { return f(frame) }

// LogSink logs anomalies at warn level and every other frame at debug.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Render implements RenderSink.
func (s LogSink) Render(f Frame) error {
	if f.Verdict.IsAnomalous {
		s.logger().Warn(f.State.Banner,
			"status", f.Status,
			"index", f.Index,
			"value", f.Sample.Value,
			"at", f.Sample.Timestamp.Format("15:04:05"),
			"z", strconv.FormatFloat(f.Verdict.ZScore, 'g', 4, 64))
		return nil
	}
	s.logger().Debug("frame",
		"status", f.Status,
		"tick", f.Tick,
		"value", f.Sample.Value,
		"y_max", f.State.YBounds.Max)
	return nil
}

// Finish implements FinishSink.
func (s LogSink) Finish(snap SessionSnapshot) error {
	for _, st := range snap.Statuses {
		attrs := []any{"status", st.Status, "points", len(st.Plotted), "anomalies", len(st.AnomalyMarks)}
		if st.Error != "" {
			attrs = append(attrs, "err", st.Error)
		}
		s.logger().Info("status summary", attrs...)
	}
	return nil
}

// FrameRecorder keeps every frame and the final snapshot in memory.
type FrameRecorder struct {
	mu       sync.Mutex
	frames   []Frame
	finished *SessionSnapshot
}

// Render implements RenderSink.
func (r *FrameRecorder) Render(f Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
	return nil
}

// Finish implements FinishSink.
func (r *FrameRecorder) Finish(snap SessionSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = &snap
	return nil
}

// Frames returns the recorded frames, optionally filtered by status.
func (r *FrameRecorder) Frames(status string) []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Frame
	for _, f := range r.frames {
		if status == "" || f.Status == status {
			out = append(out, f)
		}
	}
	return out
}

// Finished returns the final snapshot, if the session has finished.
func (r *FrameRecorder) Finished() (SessionSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished == nil {
		return SessionSnapshot{}, false
	}
	return *r.finished, true
}

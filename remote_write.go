package txwatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/prometheus/prompb"
)

// HTTPDoer is an interface for making HTTP requests.
// *http.Client implements this interface.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Metric names pushed by RemoteWriteSink.
const (
	MetricTransactions = "txwatch_transactions"
	MetricAnomaly      = "txwatch_anomaly"
	MetricZScore       = "txwatch_zscore"
	MetricYBoundMax    = "txwatch_y_bound_max"
)

// RemoteWriteConfig configures the Prometheus remote-write push.
type RemoteWriteConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`

	// BatchSize is the number of frames per request. Default: 500.
	BatchSize int `yaml:"batch_size"`
	// FlushInterval pushes a partial batch after this long. Default: 1s.
	FlushInterval time.Duration `yaml:"flush_interval"`
	// Timeout bounds a single request. Default: 10s.
	Timeout time.Duration `yaml:"timeout"`
	// QueueSize is the number of frames buffered before dropping. Default: 10000.
	QueueSize int `yaml:"queue_size"`

	// Retry configuration
	MaxRetries   int           `yaml:"max_retries"`   // Max attempts (default: 3)
	RetryBackoff time.Duration `yaml:"retry_backoff"` // Initial backoff (default: 100ms)

	// WallClock stamps samples with the push time instead of the sample's
	// time of day.
	WallClock bool `yaml:"wall_clock"`

	// Labels are added to every series.
	Labels map[string]string `yaml:"labels"`

	// HTTPClient allows injecting a custom HTTP client for testing.
	// If nil, a default client is created with the configured timeout.
	HTTPClient HTTPDoer `yaml:"-"`
}

// RemoteWriteSink pushes every frame to a Prometheus remote-write
// endpoint. Frames are queued by Render and sent in batches by a
// background loop; Close flushes what is left.
type RemoteWriteSink struct {
	cfg             RemoteWriteConfig
	transactionType string

	queue   chan Frame
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	client  HTTPDoer
	retryer *Retryer
	cb      *CircuitBreaker
	now     func() time.Time

	started atomic.Bool
	sent    atomic.Int64
	dropped atomic.Int64
}

// NewRemoteWriteSink creates a sink for one transaction type.
// Call Start before the session runs.
func NewRemoteWriteSink(cfg RemoteWriteConfig, transactionType string) (*RemoteWriteSink, error) {
	if cfg.URL == "" {
		return nil, errors.New("remote write requires a URL")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 10000
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}

	s := &RemoteWriteSink{
		cfg:             cfg,
		transactionType: transactionType,
		queue:           make(chan Frame, cfg.QueueSize),
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
		client:          cfg.HTTPClient,
		now:             time.Now,
		retryer: NewRetryer(RetryConfig{
			MaxAttempts:       cfg.MaxRetries,
			InitialBackoff:    cfg.RetryBackoff,
			MaxBackoff:        30 * time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            0.1,
			RetryIf:           IsRetryable,
		}),
		cb: NewCircuitBreaker(5, 30*time.Second),
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: cfg.Timeout}
	}
	return s, nil
}

// Start launches the push loop. Calls after the first are no-ops.
func (s *RemoteWriteSink) Start() {
	if s.started.CompareAndSwap(false, true) {
		go s.loop()
	}
}

// Close stops the loop after flushing queued frames. It is safe to call
// more than once, and on a sink that was never started.
func (s *RemoteWriteSink) Close() error {
	s.once.Do(func() {
		close(s.stop)
		// Claim the loop slot so a late Start cannot launch it.
		if s.started.CompareAndSwap(false, true) {
			close(s.done)
		}
	})
	<-s.done
	return nil
}

// Render implements RenderSink. It never blocks; frames are dropped when
// the queue is full.
func (s *RemoteWriteSink) Render(f Frame) error {
	select {
	case s.queue <- f:
	default:
		s.dropped.Add(1)
	}
	return nil
}

// Sent returns the number of frames accepted by the endpoint.
func (s *RemoteWriteSink) Sent() int64 { return s.sent.Load() }

// Dropped returns the number of frames that were never delivered.
func (s *RemoteWriteSink) Dropped() int64 { return s.dropped.Load() }

func (s *RemoteWriteSink) loop() {
	defer close(s.done)
	ticker := time.NewTicker(s.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]Frame, 0, s.cfg.BatchSize)
	for {
		select {
		case <-s.stop:
			for {
				select {
				case f := <-s.queue:
					batch = append(batch, f)
					if len(batch) >= s.cfg.BatchSize {
						s.flush(batch)
						batch = batch[:0]
					}
				default:
					s.flush(batch)
					return
				}
			}
		case f := <-s.queue:
			batch = append(batch, f)
			if len(batch) >= s.cfg.BatchSize {
				s.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

func (s *RemoteWriteSink) flush(frames []Frame) {
	if len(frames) == 0 {
		return
	}
	req := s.buildRequest(frames)
	data, err := req.Marshal()
	if err != nil {
		slog.Error("remote write marshal error", "err", err)
		s.dropped.Add(int64(len(frames)))
		return
	}
	payload := snappy.Encode(nil, data)

	rejected := false
	err = s.cb.Execute(func() error {
		err := s.sendWithRetry(payload)
		var se *StatusError
		if errors.As(err, &se) && !se.Temporary() {
			// Rejected batches are dropped without tripping the breaker.
			slog.Warn("remote write rejected", "status", se.Code, "body", se.Body, "count", len(frames))
			rejected = true
			return nil
		}
		return err
	})
	switch {
	case rejected:
		s.dropped.Add(int64(len(frames)))
	case err == nil:
		s.sent.Add(int64(len(frames)))
	case errors.Is(err, ErrCircuitOpen):
		slog.Warn("remote write circuit breaker open, dropping frames", "count", len(frames))
		s.dropped.Add(int64(len(frames)))
	default:
		slog.Error("remote write failed", "count", len(frames), "err", err)
		s.dropped.Add(int64(len(frames)))
	}
}

func (s *RemoteWriteSink) sendWithRetry(payload []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout*time.Duration(s.cfg.MaxRetries))
	defer cancel()

	result := s.retryer.Do(ctx, func() error {
		return s.send(ctx, payload)
	})
	if result.LastErr != nil {
		return fmt.Errorf("after %d attempts: %w", result.Attempts, result.LastErr)
	}
	return nil
}

func (s *RemoteWriteSink) send(ctx context.Context, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Encoding", "snappy")
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 == 2 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
}

// buildRequest converts frames into one time series per metric and status.
func (s *RemoteWriteSink) buildRequest(frames []Frame) *prompb.WriteRequest {
	type seriesKey struct{ metric, status string }
	index := make(map[seriesKey]int)
	req := &prompb.WriteRequest{}

	add := func(metric, status string, ts int64, v float64) {
		k := seriesKey{metric, status}
		i, ok := index[k]
		if !ok {
			i = len(req.Timeseries)
			index[k] = i
			req.Timeseries = append(req.Timeseries, prompb.TimeSeries{Labels: s.labels(metric, status)})
		}
		req.Timeseries[i].Samples = append(req.Timeseries[i].Samples, prompb.Sample{Value: v, Timestamp: ts})
	}

	for _, f := range frames {
		ts := f.Sample.Timestamp.UnixMilli()
		if s.cfg.WallClock {
			ts = s.now().UnixMilli()
		}
		anomalous := 0.0
		if f.Verdict.IsAnomalous {
			anomalous = 1
		}
		add(MetricTransactions, f.Status, ts, f.Sample.Value)
		add(MetricAnomaly, f.Status, ts, anomalous)
		if !math.IsInf(f.Verdict.ZScore, 0) {
			add(MetricZScore, f.Status, ts, f.Verdict.ZScore)
		}
		add(MetricYBoundMax, f.Status, ts, f.State.YBounds.Max)
	}
	return req
}

func (s *RemoteWriteSink) labels(metric, status string) []prompb.Label {
	labels := []prompb.Label{
		{Name: "__name__", Value: metric},
		{Name: "status", Value: status},
		{Name: "transaction_type", Value: s.transactionType},
	}
	for k, v := range s.cfg.Labels {
		switch k {
		case "__name__", "status", "transaction_type":
			continue
		}
		labels = append(labels, prompb.Label{Name: k, Value: v})
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i].Name < labels[j].Name })
	return labels
}

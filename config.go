package txwatch

import (
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/txwatch/txwatch/internal/anomaly"
)

// Default statuses and their display colours.
var (
	DefaultStatuses = []string{"denied", "failed", "reversed"}
	DefaultColors   = map[string]string{
		"denied":   "#e41a1c",
		"failed":   "#a65628",
		"reversed": "#4daf4a",
	}
)

// DefaultMarkerColor is the fill colour of anomaly markers.
const DefaultMarkerColor = "#fdb863"

// Config defines session configuration.
type Config struct {
	// TransactionType selects the baseline family, usually the series id.
	TransactionType string `yaml:"transaction_type"`

	// Threshold is the |z| above which a sample is anomalous.
	// Default: 3.
	Threshold float64 `yaml:"threshold"`

	// TickInterval is the pause between two steps when driven by Clock.
	// Default: 200ms.
	TickInterval time.Duration `yaml:"tick_interval"`

	// Statuses is the ordered set of status labels to replay.
	Statuses []string `yaml:"statuses"`

	// Colors maps each status to its display colour.
	Colors map[string]string `yaml:"colors"`

	// MarkerColor is the fill colour render sinks use for anomaly markers.
	MarkerColor string `yaml:"marker_color"`

	// SessionDate anchors time-of-day samples on a calendar date.
	// Zero means today in UTC.
	SessionDate time.Time `yaml:"session_date"`

	// Storage selects where datasets, baselines and exports live.
	Storage StorageConfig `yaml:"storage"`

	// HTTP configures the read API and WebSocket stream.
	HTTP HTTPConfig `yaml:"http"`

	// Stream configures WebSocket subscriptions.
	Stream StreamConfig `yaml:"stream"`

	// RemoteWrite pushes every frame to a Prometheus remote-write endpoint.
	// If nil or Enabled is false, nothing is pushed.
	RemoteWrite *RemoteWriteConfig `yaml:"remote_write"`

	// Export writes the frozen session snapshot when the session finishes.
	// If nil or Enabled is false, nothing is written.
	Export *ExportConfig `yaml:"export"`
}

// StorageConfig groups dataset storage settings.
type StorageConfig struct {
	// Backend is one of "file", "memory" or "s3".
	// Default: "file".
	Backend string `yaml:"backend"`

	// Dir is the base directory of the file backend.
	// Default: "transactions_datasets".
	Dir string `yaml:"dir"`

	// S3 configures the S3 backend.
	S3 S3BackendConfig `yaml:"s3"`

	// CacheDir, when set with the s3 backend, mirrors every object read
	// from or written to S3 in this local directory.
	CacheDir string `yaml:"cache_dir"`

	// BaselinesKey is the key of the baseline document.
	// Default: "baselines.yaml".
	BaselinesKey string `yaml:"baselines_key"`

	// BaselinesDB, when set, loads baselines from this SQLite file instead
	// of BaselinesKey.
	BaselinesDB string `yaml:"baselines_db"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig(transactionType string) Config {
	colors := make(map[string]string, len(DefaultColors))
	for k, v := range DefaultColors {
		colors[k] = v
	}
	return Config{
		TransactionType: transactionType,
		Threshold:       anomaly.DefaultThreshold,
		TickInterval:    200 * time.Millisecond,
		Statuses:        append([]string(nil), DefaultStatuses...),
		Colors:          colors,
		MarkerColor:     DefaultMarkerColor,
		Storage: StorageConfig{
			Backend:      "file",
			Dir:          "transactions_datasets",
			BaselinesKey: "baselines.yaml",
		},
		HTTP: HTTPConfig{
			Enabled: false,
			Addr:    "127.0.0.1:8087",
		},
		Stream: DefaultStreamConfig(),
	}
}

// Validate reports configuration errors.
func (c Config) Validate() error {
	var errs []error
	if c.TransactionType == "" {
		errs = append(errs, errors.New("transaction type is required"))
	}
	if c.Threshold <= 0 || math.IsNaN(c.Threshold) || math.IsInf(c.Threshold, 0) {
		errs = append(errs, fmt.Errorf("threshold must be positive and finite, got %v", c.Threshold))
	}
	if c.TickInterval < 0 {
		errs = append(errs, fmt.Errorf("tick interval must not be negative, got %s", c.TickInterval))
	}
	if len(c.Statuses) == 0 {
		errs = append(errs, errors.New("at least one status is required"))
	}
	seen := make(map[string]struct{}, len(c.Statuses))
	for _, s := range c.Statuses {
		if s == "" {
			errs = append(errs, errors.New("status labels must not be empty"))
			continue
		}
		if _, dup := seen[s]; dup {
			errs = append(errs, fmt.Errorf("duplicate status %q", s))
		}
		seen[s] = struct{}{}
	}
	switch c.Storage.Backend {
	case "", "file", "memory", "s3":
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	if c.Storage.Backend == "s3" && c.Storage.S3.Bucket == "" {
		errs = append(errs, errors.New("s3 storage requires a bucket"))
	}
	if c.RemoteWrite != nil && c.RemoteWrite.Enabled && c.RemoteWrite.URL == "" {
		errs = append(errs, errors.New("remote write requires a URL"))
	}
	if c.Export != nil {
		switch c.Export.Format {
		case "", ExportFormatSnapshot, ExportFormatCSV:
		default:
			errs = append(errs, fmt.Errorf("unknown export format %q", c.Export.Format))
		}
		if c.Export.Format == ExportFormatCSV && c.Export.Password != "" {
			errs = append(errs, errors.New("csv exports cannot be sealed"))
		}
	}
	return errors.Join(errs...)
}

// ColorFor returns the colour assigned to status, or black when unset.
func (c Config) ColorFor(status string) string {
	if col, ok := c.Colors[status]; ok && col != "" {
		return col
	}
	return "#000000"
}

// Date returns the session anchor date truncated to midnight.
func (c Config) Date() time.Time {
	d := c.SessionDate
	if d.IsZero() {
		d = time.Now().UTC()
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
}

// ParseConfig decodes YAML on top of DefaultConfig. Fields absent from
// the document keep their defaults.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig("")
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// LoadConfigFile reads and decodes a YAML configuration file.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

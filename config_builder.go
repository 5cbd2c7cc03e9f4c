package txwatch

import "time"

// ConfigBuilder provides a fluent API for constructing a [Config].
// It starts from [DefaultConfig] defaults, so only fields that differ
// from the defaults need to be set.
//
//	cfg, err := txwatch.NewConfigBuilder("transactions_1").
//	    WithThreshold(2.5).
//	    WithTickInterval(100 * time.Millisecond).
//	    WithHTTP("127.0.0.1:8087").
//	    Build()
type ConfigBuilder struct {
	cfg Config
}

// NewConfigBuilder creates a builder pre-populated with [DefaultConfig] values.
func NewConfigBuilder(transactionType string) *ConfigBuilder {
	return &ConfigBuilder{cfg: DefaultConfig(transactionType)}
}

// Detection settings

// WithThreshold sets the |z| threshold shared by every status.
func (b *ConfigBuilder) WithThreshold(threshold float64) *ConfigBuilder {
	b.cfg.Threshold = threshold
	return b
}

// WithStatuses replaces the ordered status set.
func (b *ConfigBuilder) WithStatuses(statuses ...string) *ConfigBuilder {
	b.cfg.Statuses = append([]string(nil), statuses...)
	return b
}

// WithColor assigns a display colour to a status.
func (b *ConfigBuilder) WithColor(status, color string) *ConfigBuilder {
	if b.cfg.Colors == nil {
		b.cfg.Colors = make(map[string]string)
	}
	b.cfg.Colors[status] = color
	return b
}

// Playback settings

// WithTickInterval sets the pause between two steps.
func (b *ConfigBuilder) WithTickInterval(d time.Duration) *ConfigBuilder {
	b.cfg.TickInterval = d
	return b
}

// WithSessionDate anchors time-of-day samples on the given date.
func (b *ConfigBuilder) WithSessionDate(d time.Time) *ConfigBuilder {
	b.cfg.SessionDate = d
	return b
}

// Storage settings

// WithFileStorage stores datasets under dir.
func (b *ConfigBuilder) WithFileStorage(dir string) *ConfigBuilder {
	b.cfg.Storage.Backend = "file"
	b.cfg.Storage.Dir = dir
	return b
}

// WithS3Storage stores datasets in an S3 bucket.
func (b *ConfigBuilder) WithS3Storage(s3 S3BackendConfig) *ConfigBuilder {
	b.cfg.Storage.Backend = "s3"
	b.cfg.Storage.S3 = s3
	return b
}

// WithBaselinesDB loads baselines from a SQLite file.
func (b *ConfigBuilder) WithBaselinesDB(path string) *ConfigBuilder {
	b.cfg.Storage.BaselinesDB = path
	return b
}

// Output settings

// WithHTTP enables the HTTP API on addr.
func (b *ConfigBuilder) WithHTTP(addr string) *ConfigBuilder {
	b.cfg.HTTP.Enabled = true
	b.cfg.HTTP.Addr = addr
	return b
}

// WithRemoteWrite pushes every frame to a Prometheus remote-write URL.
func (b *ConfigBuilder) WithRemoteWrite(url string) *ConfigBuilder {
	b.cfg.RemoteWrite = &RemoteWriteConfig{Enabled: true, URL: url}
	return b
}

// WithExport writes the final snapshot under key. A non-empty password
// seals the export with AES-256-GCM.
func (b *ConfigBuilder) WithExport(key, password string) *ConfigBuilder {
	b.cfg.Export = &ExportConfig{Enabled: true, Key: key, Password: password}
	return b
}

// WithExportFormat selects the export encoding. Call it after WithExport.
func (b *ConfigBuilder) WithExportFormat(format ExportFormat) *ConfigBuilder {
	if b.cfg.Export == nil {
		b.cfg.Export = &ExportConfig{Enabled: true}
	}
	b.cfg.Export.Format = format
	return b
}

// Build validates and returns the configuration.
func (b *ConfigBuilder) Build() (Config, error) {
	if err := b.cfg.Validate(); err != nil {
		return Config{}, err
	}
	return b.cfg, nil
}

// MustBuild is like Build but panics on error.
func (b *ConfigBuilder) MustBuild() Config {
	cfg, err := b.Build()
	if err != nil {
		panic("txwatch: invalid config: " + err.Error())
	}
	return cfg
}

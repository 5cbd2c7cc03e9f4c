package txwatch

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestConfigBuilder_Defaults(t *testing.T) {
	cfg, err := NewConfigBuilder("transactions_1").Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if cfg.TransactionType != "transactions_1" {
		t.Errorf("TransactionType = %q, want transactions_1", cfg.TransactionType)
	}
	if cfg.Threshold != 3 {
		t.Errorf("Threshold = %v, want 3", cfg.Threshold)
	}
	if diff := cmp.Diff([]string{"denied", "failed", "reversed"}, cfg.Statuses); diff != "" {
		t.Errorf("Statuses mismatch (-want +got):\n%s", diff)
	}
	if cfg.ColorFor("failed") != "#a65628" {
		t.Errorf("ColorFor(failed) = %q, want #a65628", cfg.ColorFor("failed"))
	}
}

func TestConfigBuilder_Chaining(t *testing.T) {
	date := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	cfg, err := NewConfigBuilder("transactions_2").
		WithThreshold(2.5).
		WithStatuses("denied", "approved").
		WithColor("approved", "#377eb8").
		WithTickInterval(50 * time.Millisecond).
		WithSessionDate(date).
		WithFileStorage("/data").
		WithBaselinesDB("/data/baselines.db").
		WithHTTP("127.0.0.1:9999").
		WithRemoteWrite("http://prom:9090/api/v1/write").
		WithExport("exports/run.snap", "secret").
		Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	if cfg.Threshold != 2.5 {
		t.Errorf("Threshold = %v, want 2.5", cfg.Threshold)
	}
	if cfg.TickInterval != 50*time.Millisecond {
		t.Errorf("TickInterval = %v, want 50ms", cfg.TickInterval)
	}
	if !cfg.SessionDate.Equal(date) {
		t.Errorf("SessionDate = %v, want %v", cfg.SessionDate, date)
	}
	if cfg.ColorFor("approved") != "#377eb8" {
		t.Errorf("ColorFor(approved) = %q", cfg.ColorFor("approved"))
	}
	if cfg.Storage.Dir != "/data" || cfg.Storage.BaselinesDB != "/data/baselines.db" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if !cfg.HTTP.Enabled || cfg.HTTP.Addr != "127.0.0.1:9999" {
		t.Errorf("HTTP = %+v, want enabled on 127.0.0.1:9999", cfg.HTTP)
	}
	if cfg.RemoteWrite == nil || cfg.RemoteWrite.URL != "http://prom:9090/api/v1/write" {
		t.Errorf("RemoteWrite = %+v", cfg.RemoteWrite)
	}
	if cfg.Export == nil || cfg.Export.Password != "secret" {
		t.Errorf("Export = %+v", cfg.Export)
	}
}

func TestConfigBuilder_Invalid(t *testing.T) {
	if _, err := NewConfigBuilder("t").WithThreshold(-1).Build(); err == nil {
		t.Error("expected error for negative threshold")
	}
	if _, err := NewConfigBuilder("t").WithStatuses().Build(); err == nil {
		t.Error("expected error for empty statuses")
	}
	if _, err := NewConfigBuilder("t").WithStatuses("a", "a").Build(); err == nil {
		t.Error("expected error for duplicate status")
	}
	if _, err := NewConfigBuilder("").Build(); err == nil {
		t.Error("expected error for missing transaction type")
	}
}

func TestConfigBuilder_MustBuildPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	NewConfigBuilder("t").WithThreshold(0).MustBuild()
}

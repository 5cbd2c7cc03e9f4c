package txwatch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func finishedSnapshot(t *testing.T) SessionSnapshot {
	t.Helper()
	baselines := testBaselines(t, "pix", map[string]Baseline{
		"denied": {Mean: 5, Stddev: 1},
		"failed": {Mean: 1, Stddev: 1},
	})
	cfg := NewConfigBuilder("pix").WithStatuses("denied", "failed", "reversed").MustBuild()
	s, err := NewSession(cfg, baselines, map[string]*Series{
		"denied": minuteSeries(t, "denied", 5, 6, 20),
		"failed": minuteSeries(t, "failed", 1, 1.5),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Replay(context.Background(), s); err != nil {
		t.Fatal(err)
	}
	return s.Snapshot()
}

func TestSnapshotEncoding(t *testing.T) {
	snap := finishedSnapshot(t)

	for _, password := range []string{"", "hunter2"} {
		data, err := EncodeSnapshot(snap, password)
		if err != nil {
			t.Fatalf("EncodeSnapshot(%q) failed: %v", password, err)
		}
		if string(data[:4]) != "TXW1" {
			t.Errorf("missing magic header: %q", data[:4])
		}
		got, err := DecodeSnapshot(data, password)
		if err != nil {
			t.Fatalf("DecodeSnapshot(%q) failed: %v", password, err)
		}
		if diff := cmp.Diff(snap, got); diff != "" {
			t.Errorf("snapshot mismatch with password %q (-want +got):\n%s", password, diff)
		}
	}
}

func TestDecodeSnapshot_Errors(t *testing.T) {
	snap := finishedSnapshot(t)
	sealed, err := EncodeSnapshot(snap, "hunter2")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := DecodeSnapshot(sealed, ""); err == nil {
		t.Error("sealed export without password should fail")
	}
	if _, err := DecodeSnapshot(sealed, "wrong"); !errors.Is(err, ErrWrongPassword) {
		t.Errorf("expected ErrWrongPassword, got %v", err)
	}
	if _, err := DecodeSnapshot([]byte("time,status,value\n"), ""); !errors.Is(err, ErrNotAnExport) {
		t.Errorf("expected ErrNotAnExport, got %v", err)
	}
	if _, err := DecodeSnapshot([]byte("TXW1\x00garbage"), ""); err == nil {
		t.Error("corrupt payload should fail")
	}
}

func TestExporter_FinishSink(t *testing.T) {
	backend := NewMemoryBackend()
	exp := NewExporter(backend, ExportConfig{Enabled: true})

	baselines := testBaselines(t, "pix", map[string]Baseline{"denied": {Mean: 5, Stddev: 1}})
	cfg := NewConfigBuilder("pix").WithStatuses("denied").MustBuild()
	s, err := NewSession(cfg, baselines, map[string]*Series{"denied": minuteSeries(t, "denied", 5, 30)}, exp)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Replay(context.Background(), s); err != nil {
		t.Fatal(err)
	}

	key := exp.KeyFor("pix")
	if key != "exports/pix.txw" {
		t.Errorf("KeyFor = %q", key)
	}
	got, err := ReadExport(context.Background(), backend, key, "")
	if err != nil {
		t.Fatalf("ReadExport failed: %v", err)
	}
	if diff := cmp.Diff(s.Snapshot(), got); diff != "" {
		t.Errorf("exported snapshot mismatch (-want +got):\n%s", diff)
	}
	st, _ := got.Status("denied")
	if diff := cmp.Diff([]int{1}, st.AnomalyMarks); diff != "" {
		t.Errorf("anomaly marks mismatch:\n%s", diff)
	}
}

func TestExporter_CSV(t *testing.T) {
	backend := NewMemoryBackend()
	exp := NewExporter(backend, ExportConfig{Enabled: true, Format: ExportFormatCSV})

	key, err := exp.Export(context.Background(), finishedSnapshot(t))
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if key != "exports/pix.csv" {
		t.Errorf("key = %q", key)
	}
	data, _ := backend.Read(context.Background(), key)
	want := strings.Join([]string{
		"status,time,value,anomaly",
		"denied,10:00:00,5,false",
		"denied,10:01:00,6,false",
		"denied,10:02:00,20,true",
		"failed,10:00:00,1,false",
		"failed,10:01:00,1.5,false",
		"",
	}, "\n")
	if diff := cmp.Diff(want, string(data)); diff != "" {
		t.Errorf("csv mismatch (-want +got):\n%s", diff)
	}
}

func TestExporter_ExplicitKeyAndBadFormat(t *testing.T) {
	backend := NewMemoryBackend()
	exp := NewExporter(backend, ExportConfig{Enabled: true, Key: "custom/run.txw", Password: "pw"})
	key, err := exp.Export(context.Background(), finishedSnapshot(t))
	if err != nil || key != "custom/run.txw" {
		t.Fatalf("Export = %q, %v", key, err)
	}
	if _, err := ReadExport(context.Background(), backend, key, "pw"); err != nil {
		t.Errorf("ReadExport failed: %v", err)
	}

	bad := NewExporter(backend, ExportConfig{Enabled: true, Format: "parquet"})
	if _, err := bad.Export(context.Background(), finishedSnapshot(t)); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestSealer(t *testing.T) {
	s, err := NewSealer("secret")
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := s.Seal([]byte("payload"))
	if err != nil {
		t.Fatal(err)
	}
	again, err := NewSealerWithSalt("secret", s.Salt())
	if err != nil {
		t.Fatal(err)
	}
	plain, err := again.Open(sealed)
	if err != nil || string(plain) != "payload" {
		t.Errorf("Open = %q, %v", plain, err)
	}
	if _, err := again.Open(sealed[:5]); err == nil {
		t.Error("short ciphertext should fail")
	}
	if _, err := NewSealer(""); err == nil {
		t.Error("empty password should fail")
	}
	if _, err := NewSealerWithSalt("secret", []byte("short")); err == nil {
		t.Error("bad salt should fail")
	}
}

package txwatch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/txwatch/txwatch/internal/testutil"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"13h 45", testutil.At(13, 45), false},
		{"09h 05", testutil.At(9, 5), false},
		{"13:45", testutil.At(13, 45), false},
		{"13:45:30", testutil.At(13, 45).Add(30 * time.Second), false},
		{"7h", testutil.At(7, 0), false},
		{" 00h 00 ", testutil.At(0, 0), false},
		{"noon", time.Time{}, true},
		{"25h 00", time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.in, testutil.Day)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("ParseTimeOfDay(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

const transactionsCSV = `time,status,f0_
13h 45,denied,4
13h 45,failed,1
13h 46,denied,6
13h 46,denied,9
13h 47,failed,2
13h 44,approved,120
`

func TestParseTransactionsCSV(t *testing.T) {
	series, err := ParseTransactionsCSV(strings.NewReader(transactionsCSV), testutil.Day)
	if err != nil {
		t.Fatalf("ParseTransactionsCSV failed: %v", err)
	}
	if len(series) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(series))
	}

	// Shared sorted index 13:44..13:47, max aggregation, zero fill.
	want := map[string][]float64{
		"approved": {120, 0, 0, 0},
		"denied":   {0, 4, 9, 0},
		"failed":   {0, 1, 0, 2},
	}
	for status, values := range want {
		s, ok := series[status]
		if !ok {
			t.Fatalf("missing status %s", status)
		}
		if diff := cmp.Diff(values, s.Values()); diff != "" {
			t.Errorf("%s values mismatch (-want +got):\n%s", status, diff)
		}
		if !s.At(0).Timestamp.Equal(testutil.At(13, 44)) || !s.At(3).Timestamp.Equal(testutil.At(13, 47)) {
			t.Errorf("%s index not sorted: %v .. %v", status, s.At(0).Timestamp, s.At(3).Timestamp)
		}
	}
}

func TestReadRecords_Errors(t *testing.T) {
	tests := []struct {
		name string
		csv  string
	}{
		{"bad time", "time,status,value\nlunch,denied,1\n"},
		{"bad value", "time,status,value\n13h 45,denied,many\n"},
		{"empty status", "time,status,value\n13h 45, ,1\n"},
		{"wrong arity", "time,status,value\n13h 45,denied\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadRecords(strings.NewReader(tt.csv), testutil.Day); err == nil {
				t.Error("expected error")
			}
		})
	}

	records, err := ReadRecords(strings.NewReader(""), testutil.Day)
	if err != nil || len(records) != 0 {
		t.Errorf("empty input = %v, %v", records, err)
	}
}

func TestParseTransactionsCSV_NegativeValue(t *testing.T) {
	_, err := ParseTransactionsCSV(strings.NewReader("time,status,value\n13h 45,denied,-3\n"), testutil.Day)
	if !errors.Is(err, ErrMalformedSample) {
		t.Errorf("expected ErrMalformedSample, got %v", err)
	}
}

func TestLoadSeries(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	if err := backend.Write(ctx, "pix.csv", []byte(transactionsCSV)); err != nil {
		t.Fatal(err)
	}

	series, err := LoadSeries(ctx, backend, "pix", testutil.Day)
	if err != nil {
		t.Fatalf("LoadSeries failed: %v", err)
	}
	if series["denied"].Len() != 4 {
		t.Errorf("denied len = %d", series["denied"].Len())
	}

	if _, err := LoadSeries(ctx, backend, "ted", testutil.Day); err == nil {
		t.Error("expected error for a missing dataset")
	}
}

func TestDatasetKey(t *testing.T) {
	if got := DatasetKey("pix"); got != "pix.csv" {
		t.Errorf("DatasetKey(pix) = %q", got)
	}
	if got := DatasetKey("2024/pix.csv"); got != "2024/pix.csv" {
		t.Errorf("DatasetKey kept extension = %q", got)
	}
}

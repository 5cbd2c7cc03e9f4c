package txwatch

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Record is one raw row of a transactions file.
type Record struct {
	Time   time.Time
	Status string
	Value  float64
}

// ParseTimeOfDay parses "13h 45", "13:45" or "13:45:30" and anchors the
// result on date.
func ParseTimeOfDay(s string, date time.Time) (time.Time, error) {
	norm := strings.TrimSpace(strings.ReplaceAll(s, "h ", ":"))
	norm = strings.TrimSuffix(norm, "h")
	var (
		t   time.Time
		err error
	)
	for _, layout := range []string{"15:04:05", "15:04", "15"} {
		t, err = time.Parse(layout, norm)
		if err == nil {
			return time.Date(date.Year(), date.Month(), date.Day(),
				t.Hour(), t.Minute(), t.Second(), 0, date.Location()), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable time of day %q: %w", s, err)
}

// ReadRecords reads a CSV with a header row and the columns time, status,
// value. Header names are ignored; columns are positional.
func ReadRecords(r io.Reader, date time.Time) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 3
	cr.TrimLeadingSpace = true

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	var records []Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}
		ts, err := ParseTimeOfDay(row[0], date)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", line, err)
		}
		status := strings.TrimSpace(row[1])
		if status == "" {
			return nil, fmt.Errorf("row %d: empty status", line)
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: parse value: %w", line, err)
		}
		records = append(records, Record{Time: ts, Status: status, Value: value})
	}
	return records, nil
}

// PivotRecords builds one series per status over the shared, sorted set of
// timestamps. Duplicate (time, status) rows keep the maximum value and
// missing cells are filled with 0, so every series has the same length.
func PivotRecords(records []Record) (map[string]*Series, error) {
	cells := make(map[string]map[time.Time]float64)
	index := make(map[time.Time]struct{})
	for _, r := range records {
		if cells[r.Status] == nil {
			cells[r.Status] = make(map[time.Time]float64)
		}
		if cur, ok := cells[r.Status][r.Time]; !ok || r.Value > cur {
			cells[r.Status][r.Time] = r.Value
		}
		index[r.Time] = struct{}{}
	}

	times := make([]time.Time, 0, len(index))
	for t := range index {
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	out := make(map[string]*Series, len(cells))
	for status, col := range cells {
		samples := make([]Sample, len(times))
		for i, t := range times {
			samples[i] = Sample{Timestamp: t, Value: col[t]}
		}
		series, err := NewSeries(status, samples)
		if err != nil {
			return nil, err
		}
		out[status] = series
	}
	return out, nil
}

// ParseTransactionsCSV reads and pivots a transactions file.
func ParseTransactionsCSV(r io.Reader, date time.Time) (map[string]*Series, error) {
	records, err := ReadRecords(r, date)
	if err != nil {
		return nil, err
	}
	return PivotRecords(records)
}

// LoadSeries reads "<id>.csv" from a storage backend and pivots it.
func LoadSeries(ctx context.Context, backend StorageBackend, id string, date time.Time) (map[string]*Series, error) {
	key := DatasetKey(id)
	data, err := backend.Read(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read dataset %q: %w", key, err)
	}
	series, err := ParseTransactionsCSV(bytes.NewReader(data), date)
	if err != nil {
		return nil, fmt.Errorf("parse dataset %q: %w", key, err)
	}
	return series, nil
}

// DatasetKey returns the storage key of a series id.
func DatasetKey(id string) string {
	if strings.HasSuffix(id, ".csv") {
		return id
	}
	return id + ".csv"
}

package txwatch

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/txwatch/txwatch/internal/anomaly"
)

// BaselineKey identifies a baseline.
type BaselineKey struct {
	TransactionType string
	Status          string
}

// Baseline summarises regular-day behaviour of one status.
type Baseline struct {
	Mean   float64 `json:"mean" yaml:"mean"`
	Stddev float64 `json:"stddev" yaml:"stddev"`
}

func (b Baseline) validate(key BaselineKey) *BaselineError {
	if math.IsNaN(b.Mean) || math.IsInf(b.Mean, 0) {
		return newInvalidBaselineError(key, fmt.Sprintf("mean %v is not finite", b.Mean))
	}
	if math.IsNaN(b.Stddev) || math.IsInf(b.Stddev, 0) || b.Stddev < 0 {
		return newInvalidBaselineError(key, fmt.Sprintf("stddev %v must be finite and >= 0", b.Stddev))
	}
	return nil
}

// BaselineStore is an immutable set of baselines. It is built once before
// playback and only read afterwards, so it is safe for concurrent use.
//
// Entries with unusable statistics are kept aside rather than rejecting
// the whole set: Lookup reports them as invalid, so only the affected
// status is disabled.
type BaselineStore struct {
	entries map[BaselineKey]Baseline
	invalid map[BaselineKey]*BaselineError
}

// NewBaselineStore validates and copies entries into a read-only store.
func NewBaselineStore(entries map[BaselineKey]Baseline) *BaselineStore {
	s := &BaselineStore{
		entries: make(map[BaselineKey]Baseline, len(entries)),
		invalid: make(map[BaselineKey]*BaselineError),
	}
	for k, b := range entries {
		if err := b.validate(k); err != nil {
			s.invalid[k] = err
			continue
		}
		s.entries[k] = b
	}
	return s
}

// Lookup returns the baseline for a transaction type and status.
func (s *BaselineStore) Lookup(transactionType, status string) (Baseline, error) {
	key := BaselineKey{TransactionType: transactionType, Status: status}
	if s == nil {
		return Baseline{}, newMissingBaselineError(key)
	}
	if err, ok := s.invalid[key]; ok {
		return Baseline{}, err
	}
	b, ok := s.entries[key]
	if !ok {
		return Baseline{}, newMissingBaselineError(key)
	}
	return b, nil
}

// Invalid returns the validation errors of the entries left out of the
// store, ordered by key.
func (s *BaselineStore) Invalid() []error {
	if s == nil || len(s.invalid) == 0 {
		return nil
	}
	keys := make([]BaselineKey, 0, len(s.invalid))
	for k := range s.invalid {
		keys = append(keys, k)
	}
	sortKeys(keys)
	errs := make([]error, len(keys))
	for i, k := range keys {
		errs[i] = s.invalid[k]
	}
	return errs
}

// Len returns the number of baselines.
func (s *BaselineStore) Len() int {
	if s == nil {
		return 0
	}
	return len(s.entries)
}

// Keys returns every key sorted by transaction type, then status.
func (s *BaselineStore) Keys() []BaselineKey {
	if s == nil {
		return nil
	}
	keys := make([]BaselineKey, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}

func sortKeys(keys []BaselineKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].TransactionType != keys[j].TransactionType {
			return keys[i].TransactionType < keys[j].TransactionType
		}
		return keys[i].Status < keys[j].Status
	})
}

// Entries returns a copy of every baseline.
func (s *BaselineStore) Entries() map[BaselineKey]Baseline {
	out := make(map[BaselineKey]Baseline, s.Len())
	if s == nil {
		return out
	}
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// baselineDocument is the persisted form: transaction type → status → baseline.
// JSON documents decode too since YAML is a superset of JSON.
type baselineDocument map[string]map[string]Baseline

// ParseBaselines decodes a YAML or JSON baseline document. Entries with
// unusable statistics do not fail the parse; see BaselineStore.Invalid.
func ParseBaselines(data []byte) (*BaselineStore, error) {
	var doc baselineDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse baselines: %w", err)
	}
	entries := make(map[BaselineKey]Baseline)
	for txType, statuses := range doc {
		for status, b := range statuses {
			entries[BaselineKey{TransactionType: txType, Status: status}] = b
		}
	}
	return NewBaselineStore(entries), nil
}

// MarshalBaselines encodes the store as a YAML baseline document.
func MarshalBaselines(s *BaselineStore) ([]byte, error) {
	doc := make(baselineDocument)
	for _, k := range s.Keys() {
		if doc[k.TransactionType] == nil {
			doc[k.TransactionType] = make(map[string]Baseline)
		}
		doc[k.TransactionType][k.Status] = s.entries[k]
	}
	return yaml.Marshal(doc)
}

// LoadBaselines reads a baseline document from a storage backend.
func LoadBaselines(ctx context.Context, backend StorageBackend, key string) (*BaselineStore, error) {
	data, err := backend.Read(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read baselines %q: %w", key, err)
	}
	return ParseBaselines(data)
}

// SaveBaselines writes the store as a YAML document to a storage backend.
func SaveBaselines(ctx context.Context, backend StorageBackend, key string, s *BaselineStore) error {
	data, err := MarshalBaselines(s)
	if err != nil {
		return fmt.Errorf("encode baselines: %w", err)
	}
	return backend.Write(ctx, key, data)
}

// FitBaselines summarises regular days into baselines for one transaction
// type. Every day contributes all of its samples for a status.
func FitBaselines(transactionType string, days ...map[string]*Series) (*BaselineStore, error) {
	values := make(map[string][]float64)
	for _, day := range days {
		for status, series := range day {
			for _, s := range series.Samples() {
				values[status] = append(values[status], s.Value)
			}
		}
	}
	entries := make(map[BaselineKey]Baseline, len(values))
	for status, vs := range values {
		mean, stddev := anomaly.Fit(vs)
		entries[BaselineKey{TransactionType: transactionType, Status: status}] = Baseline{Mean: mean, Stddev: stddev}
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("fit baselines for %q: no samples", transactionType)
	}
	return NewBaselineStore(entries), nil
}

// Merge returns a store holding the entries of s overlaid by other. A key
// of other replaces the same key of s whether or not either is valid.
func (s *BaselineStore) Merge(other *BaselineStore) *BaselineStore {
	out := &BaselineStore{
		entries: s.Entries(),
		invalid: make(map[BaselineKey]*BaselineError),
	}
	if s != nil {
		for k, err := range s.invalid {
			out.invalid[k] = err
		}
	}
	for k, v := range other.Entries() {
		out.entries[k] = v
		delete(out.invalid, k)
	}
	if other != nil {
		for k, err := range other.invalid {
			out.invalid[k] = err
			delete(out.entries, k)
		}
	}
	return out
}

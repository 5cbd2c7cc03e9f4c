package txwatch

import (
	"errors"
	"fmt"
)

// Common sentinel errors for the txwatch package.
var (
	// ErrMissingBaseline is returned when no baseline exists for a
	// (transaction type, status) pair.
	ErrMissingBaseline = errors.New("missing baseline")

	// ErrInvalidBaseline is returned when a baseline has a negative or
	// non-finite standard deviation or a non-finite mean.
	ErrInvalidBaseline = errors.New("invalid baseline")

	// ErrEndOfSeries is returned by SeriesCursor.Advance once every sample
	// has been consumed. It is an expected terminal condition.
	ErrEndOfSeries = errors.New("end of series")

	// ErrMalformedSample is returned when a sample violates the input
	// contract (negative or non-finite value, decreasing timestamp).
	ErrMalformedSample = errors.New("malformed sample")

	// ErrSessionFinished is returned when Step is called after the last tick.
	ErrSessionFinished = errors.New("session finished")

	// ErrUnknownStatus is returned when a status is not part of the session.
	ErrUnknownStatus = errors.New("unknown status")

	// ErrMissingSeries is returned when a configured status has no series.
	ErrMissingSeries = errors.New("missing series")

	// ErrStorageClosed is returned by a storage backend used after Close.
	ErrStorageClosed = errors.New("storage closed")
)

// BaselineErrorType categorizes baseline errors.
type BaselineErrorType int

const (
	// BaselineErrorTypeMissing indicates no entry for the key.
	BaselineErrorTypeMissing BaselineErrorType = iota
	// BaselineErrorTypeInvalid indicates an entry with unusable statistics.
	BaselineErrorTypeInvalid
)

// BaselineError identifies the transaction type and status whose baseline
// could not be used.
type BaselineError struct {
	Type            BaselineErrorType
	TransactionType string
	Status          string
	Message         string
}

func (e *BaselineError) Error() string {
	kind := "missing baseline"
	if e.Type == BaselineErrorTypeInvalid {
		kind = "invalid baseline"
	}
	if e.Message != "" {
		return fmt.Sprintf("%s for type %q status %q: %s", kind, e.TransactionType, e.Status, e.Message)
	}
	return fmt.Sprintf("%s for type %q status %q", kind, e.TransactionType, e.Status)
}

// Is implements error matching for BaselineError.
func (e *BaselineError) Is(target error) bool {
	switch e.Type {
	case BaselineErrorTypeMissing:
		return target == ErrMissingBaseline
	case BaselineErrorTypeInvalid:
		return target == ErrInvalidBaseline
	}
	return false
}

func newMissingBaselineError(key BaselineKey) *BaselineError {
	return &BaselineError{
		Type:            BaselineErrorTypeMissing,
		TransactionType: key.TransactionType,
		Status:          key.Status,
	}
}

func newInvalidBaselineError(key BaselineKey, message string) *BaselineError {
	return &BaselineError{
		Type:            BaselineErrorTypeInvalid,
		TransactionType: key.TransactionType,
		Status:          key.Status,
		Message:         message,
	}
}

// SampleError reports a sample that violates the input contract.
type SampleError struct {
	Status string
	Index  int
	Reason string
}

func (e *SampleError) Error() string {
	return fmt.Sprintf("malformed sample %d for status %q: %s", e.Index, e.Status, e.Reason)
}

func (e *SampleError) Unwrap() error {
	return ErrMalformedSample
}

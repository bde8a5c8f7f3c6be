package core

import (
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch is returned when a vector's length differs from
	// the dimension declared by the store or backend.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrEmbeddingUnavailable is returned when an embedding backend cannot
	// be initialized.
	ErrEmbeddingUnavailable = errors.New("embedding backend unavailable")

	// ErrIngestion marks a file that could not be read or decoded.
	ErrIngestion = errors.New("ingestion failed")

	// ErrTimeoutExceeded marks a run that hit its time or iteration budget.
	ErrTimeoutExceeded = errors.New("timeout exceeded")

	// ErrMemoryWrite marks a failed task log write.
	ErrMemoryWrite = errors.New("memory write failed")

	// ErrGenerationFailure marks a generator that failed after retries.
	ErrGenerationFailure = errors.New("generation failed")

	// ErrInvalidConfig is returned by configuration validation.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// DimensionMismatchError carries the expected and actual vector lengths.
type DimensionMismatchError struct {
	Expected int
	Got      int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %d, got %d", ErrDimensionMismatch, e.Expected, e.Got)
}

// Is makes errors.Is(err, ErrDimensionMismatch) match.
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// IngestionError records why a single file was skipped.
type IngestionError struct {
	Path string
	Err  error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrIngestion, e.Path, e.Err)
}

func (e *IngestionError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrIngestion) match.
func (e *IngestionError) Is(target error) bool {
	return target == ErrIngestion
}

package rag

import (
	"errors"
	"fmt"
)

// ErrFetchUnavailable is returned by IngestURL when the pipeline has no fetcher.
var ErrFetchUnavailable = errors.New("url ingestion is not configured")

// ValidationError reports bad caller input. Boundaries map it to a client fault.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is or wraps a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// FetchError reports a failure retrieving a URL item.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Package provider holds the error type shared by embedding and answer
// generation backends.
package provider

import "fmt"

// Error reports a failure from an external model provider (transport, quota,
// malformed response). Callers use errors.As to tell provider failures apart
// from local ones.
type Error struct {
	Provider string // "openai", "gemini", ...
	Op       string // "embed", "generate", ...
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Wrap returns err wrapped in an *Error, or nil when err is nil.
func Wrap(name, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Provider: name, Op: op, Err: err}
}

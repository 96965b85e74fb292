// Package errors defines the error taxonomy shared by the retrieval pipeline.
// Sentinels classify a failure; AppError attaches a human-readable message
// while keeping the sentinel reachable through errors.Is.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrParse        = errors.New("parse error")
	ErrConfig       = errors.New("config error")
	ErrRanking      = errors.New("ranking error")
	ErrWrite        = errors.New("write error")
	ErrInvalidInput = errors.New("invalid input")
	ErrDuplicateID  = errors.New("duplicate id")
	ErrCorrupt      = errors.New("corrupt data")
)

// Exit codes reported by the command-line drivers.
const (
	ExitOK      = 0
	ExitFatal   = 1
	ExitPartial = 2
)

type AppError struct {
	Err     error
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Err.Error(), e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

func New(sentinel error, message string) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: message,
	}
}

func Newf(sentinel error, format string, args ...any) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap attaches sentinel to cause so that both remain visible to errors.Is.
func Wrap(sentinel error, cause error, message string) error {
	if cause == nil {
		return nil
	}
	return &AppError{
		Err:     sentinel,
		Message: message,
		Cause:   cause,
	}
}

// IsFatal reports whether err must abort the whole run. Only per-query
// ranking failures are recoverable.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrRanking)
}

func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	return ExitFatal
}

package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppErrorUnwrapsToSentinel(t *testing.T) {
	err := Newf(ErrParse, "line %d: bad field", 7)
	if !errors.Is(err, ErrParse) {
		t.Fatalf("expected errors.Is(err, ErrParse)")
	}
	if got, want := err.Error(), "parse error: line 7: bad field"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	wrapped := fmt.Errorf("loading corpus: %w", err)
	var appErr *AppError
	if !errors.As(wrapped, &appErr) {
		t.Fatalf("expected errors.As to find *AppError")
	}
	if appErr.Message != "line 7: bad field" {
		t.Errorf("Message = %q", appErr.Message)
	}
}

func TestWrap(t *testing.T) {
	if Wrap(ErrWrite, nil, "ignored") != nil {
		t.Fatalf("Wrap with nil cause should return nil")
	}
	cause := errors.New("disk full")
	err := Wrap(ErrWrite, cause, "writing run")
	if !errors.Is(err, ErrWrite) || !errors.Is(err, cause) {
		t.Fatalf("expected both ErrWrite and the cause to match")
	}
	if got, want := err.Error(), "write error: writing run: disk full"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestIsFatalAndExitCode(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
		code  int
	}{
		{"nil", nil, false, ExitOK},
		{"parse", New(ErrParse, "x"), true, ExitFatal},
		{"config", New(ErrConfig, "x"), true, ExitFatal},
		{"write", New(ErrWrite, "x"), true, ExitFatal},
		{"ranking", fmt.Errorf("query 3: %w", New(ErrRanking, "empty")), false, ExitFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFatal(tt.err); got != tt.fatal {
				t.Errorf("IsFatal() = %v, want %v", got, tt.fatal)
			}
			if got := ExitCode(tt.err); got != tt.code {
				t.Errorf("ExitCode() = %d, want %d", got, tt.code)
			}
		})
	}
}

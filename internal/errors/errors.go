// Package errors provides custom error types for pipeline-specific failures.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrAllQuantModelsFailed = errors.New("all quant models failed")
	ErrProviderUnavailable  = errors.New("provider unavailable")
	ErrProviderTimeout      = errors.New("provider call timed out")
	ErrMalformedResponse    = errors.New("malformed provider response")
	ErrRunFinalized         = errors.New("run state already finalized")
	ErrRunCancelled         = errors.New("run cancelled")
	ErrRunNotFound          = errors.New("run not found")
	ErrConfigInvalid        = errors.New("invalid configuration")
	ErrSinkClosed           = errors.New("audit sink closed")
)

// ProviderError represents a failed call to an external collaborator.
type ProviderError struct {
	Provider string // upstream source, e.g. "openai-primary"
	Role     string // bound role, e.g. "bull", "judge", "panel-member"
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error [%s/%s] %s: %v", e.Provider, e.Role, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a new ProviderError.
func NewProviderError(provider, role, op string, err error) *ProviderError {
	return &ProviderError{
		Provider: provider,
		Role:     role,
		Op:       op,
		Err:      err,
	}
}

// StageError represents a failure inside one pipeline stage. A stage
// either resolves an upstream error locally (retry, fallback, recorded
// flag) or surfaces it as a StageError that halts the run.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage error [%s]: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError creates a new StageError.
func NewStageError(stage string, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}

// RunFailure is the typed failure the orchestrator converts a fatal
// stage error into. The run it belongs to is finalized as ESCALATED
// with Reason recorded; it is never converted into a default action.
type RunFailure struct {
	RunID  string
	Symbol string
	Stage  string
	Reason string
	Err    error
}

func (e *RunFailure) Error() string {
	return fmt.Sprintf("run failure [%s %s] at %s: %s: %v", e.RunID, e.Symbol, e.Stage, e.Reason, e.Err)
}

func (e *RunFailure) Unwrap() error {
	return e.Err
}

// NewRunFailure creates a new RunFailure.
func NewRunFailure(runID, symbol, stage, reason string, err error) *RunFailure {
	return &RunFailure{
		RunID:  runID,
		Symbol: symbol,
		Stage:  stage,
		Reason: reason,
		Err:    err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

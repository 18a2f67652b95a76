package runtime

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrValidation marks every load-time structural failure.
	ErrValidation = errors.New("invalid workflow definition")

	// ErrUnknownWorkflow is returned by catalog lookups for missing names.
	ErrUnknownWorkflow = errors.New("unknown workflow")

	ErrKeyNotFound  = errors.New("key not found in execution context")
	ErrTypeMismatch = errors.New("execution context value has unexpected type")
)

// ValidationError reports a definition that cannot be turned into a Workflow.
// It always matches ErrValidation via errors.Is.
type ValidationError struct {
	Locator string
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Field, e.Message)
	if e.Locator != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Locator)
	}
	return fmt.Sprintf("%s: %s", ErrValidation, msg)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// StepErrorType classifies why a step failed.
type StepErrorType string

const (
	StepErrorRuntime   StepErrorType = "runtime"
	StepErrorTimeout   StepErrorType = "timeout"
	StepErrorCancelled StepErrorType = "cancelled"
	StepErrorPanic     StepErrorType = "panic"
)

// StepError wraps a failure raised while executing one step. Its message is
// the text written to the context's output key.
type StepError struct {
	Step   string
	Engine string
	Type   StepErrorType
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("Error in step '%s': %s", e.Step, e.message())
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func (e *StepError) message() string {
	if e.Err == nil {
		return "unknown error"
	}
	return e.Err.Error()
}

// ToMap converts the error into the entry stored under the errors key.
func (e *StepError) ToMap() map[string]any {
	return map[string]any{
		"step":    e.Step,
		"engine":  e.Engine,
		"type":    string(e.Type),
		"message": e.message(),
	}
}

// NewStepError classifies err for step. An error that already is a
// StepError for the same step is returned unchanged.
func NewStepError(step Step, err error) *StepError {
	var se *StepError
	if errors.As(err, &se) && se.Step == step.Name {
		return se
	}

	errType := StepErrorRuntime
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		errType = StepErrorTimeout
	case errors.Is(err, context.Canceled):
		errType = StepErrorCancelled
	}

	return &StepError{
		Step:   step.Name,
		Engine: step.Engine,
		Type:   errType,
		Err:    err,
	}
}

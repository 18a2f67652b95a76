package runtime

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestValidationError_IsErrValidation(t *testing.T) {
	err := error(&ValidationError{Locator: "flows/a.yaml", Field: "name", Message: "name is required"})

	if !errors.Is(err, ErrValidation) {
		t.Error("Expected errors.Is(err, ErrValidation) to be true")
	}

	wrapped := fmt.Errorf("loading: %w", err)
	if !errors.Is(wrapped, ErrValidation) {
		t.Error("Expected wrapped validation error to match ErrValidation")
	}

	var target *ValidationError
	if !errors.As(wrapped, &target) || target.Field != "name" {
		t.Errorf("errors.As should find ValidationError with field 'name', got %+v", target)
	}
}

func TestValidationError_Error(t *testing.T) {
	withLocator := &ValidationError{Locator: "a.yaml", Field: "name", Message: "name is required"}
	expected := "invalid workflow definition: name: name is required (a.yaml)"
	if withLocator.Error() != expected {
		t.Errorf("Expected '%s', got '%s'", expected, withLocator.Error())
	}

	without := &ValidationError{Field: "steps", Message: "must be a list"}
	expected = "invalid workflow definition: steps: must be a list"
	if without.Error() != expected {
		t.Errorf("Expected '%s', got '%s'", expected, without.Error())
	}
}

func TestStepError_Error(t *testing.T) {
	se := NewStepError(Step{Name: "fetch", Engine: EngineScript}, errors.New("boom"))

	if se.Error() != "Error in step 'fetch': boom" {
		t.Errorf("Expected formatted step error, got '%s'", se.Error())
	}

	empty := &StepError{Step: "fetch"}
	if empty.Error() != "Error in step 'fetch': unknown error" {
		t.Errorf("Expected placeholder message for nil error, got '%s'", empty.Error())
	}
}

func TestStepError_Unwrap(t *testing.T) {
	baseErr := errors.New("base error")
	se := NewStepError(Step{Name: "a"}, baseErr)

	if !errors.Is(se, baseErr) {
		t.Error("Expected StepError to unwrap to the base error")
	}

	var target *StepError
	if !errors.As(fmt.Errorf("wrapped: %w", se), &target) {
		t.Fatal("errors.As should find StepError")
	}
	if target.Step != "a" {
		t.Errorf("Expected step 'a', got '%s'", target.Step)
	}
}

func TestNewStepError_Classification(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected StepErrorType
	}{
		{"plain error", errors.New("bad input"), StepErrorRuntime},
		{"deadline", context.DeadlineExceeded, StepErrorTimeout},
		{"wrapped deadline", fmt.Errorf("eval: %w", context.DeadlineExceeded), StepErrorTimeout},
		{"cancelled", context.Canceled, StepErrorCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			se := NewStepError(Step{Name: "s", Engine: EngineScript}, tt.err)
			if se.Type != tt.expected {
				t.Errorf("Expected type %s, got %s", tt.expected, se.Type)
			}
			if se.Engine != EngineScript {
				t.Errorf("Expected engine to be recorded, got '%s'", se.Engine)
			}
		})
	}
}

func TestNewStepError_ReusesExisting(t *testing.T) {
	original := &StepError{Step: "s", Engine: EngineScript, Type: StepErrorPanic, Err: errors.New("panic: x")}

	if got := NewStepError(Step{Name: "s"}, original); got != original {
		t.Error("Expected the existing StepError for the same step to be returned")
	}

	other := NewStepError(Step{Name: "t"}, original)
	if other == original {
		t.Error("Expected a new StepError for a different step")
	}
	if other.Type != StepErrorRuntime {
		t.Errorf("Expected runtime type for re-wrapped error, got %s", other.Type)
	}
}

func TestStepError_ToMap(t *testing.T) {
	se := &StepError{Step: "s", Engine: "render", Type: StepErrorTimeout, Err: errors.New("too slow")}
	m := se.ToMap()

	expected := map[string]any{
		"step":    "s",
		"engine":  "render",
		"type":    "timeout",
		"message": "too slow",
	}
	for key, value := range expected {
		if m[key] != value {
			t.Errorf("Key %s: expected %v, got %v", key, value, m[key])
		}
	}
}

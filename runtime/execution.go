package runtime

import (
	"fmt"
	"maps"
	"reflect"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Execution is the mutable state threaded through one workflow run. It is
// owned by a single run and is never shared between runs, so it carries no
// locking of its own.
type Execution struct {
	ID     string
	values map[string]any
}

// NewExecution layers defaults, inputs and extra (right-hand layers win) and
// always adds an output key set to nil.
func NewExecution(defaults, inputs, extra map[string]any) *Execution {
	values := make(map[string]any, len(defaults)+len(inputs)+len(extra)+1)
	maps.Copy(values, defaults)
	maps.Copy(values, inputs)
	maps.Copy(values, extra)
	values[OutputKey] = nil

	return &Execution{
		ID:     uuid.New().String(),
		values: values,
	}
}

func (e *Execution) Get(key string) (any, bool) {
	v, ok := e.values[key]
	return v, ok
}

func (e *Execution) Set(key string, value any) {
	e.values[key] = value
}

// Delete removes key. The output key cannot be removed; it is reset to nil.
func (e *Execution) Delete(key string) {
	if key == OutputKey {
		e.values[OutputKey] = nil
		return
	}
	delete(e.values, key)
}

func (e *Execution) Has(key string) bool {
	_, ok := e.values[key]
	return ok
}

func (e *Execution) Output() any {
	return e.values[OutputKey]
}

func (e *Execution) SetOutput(value any) {
	e.values[OutputKey] = value
}

// Values returns the live context map.
func (e *Execution) Values() map[string]any {
	return e.values
}

// Snapshot returns a shallow copy of the context map.
func (e *Execution) Snapshot() map[string]any {
	return maps.Clone(e.values)
}

// Lookup resolves a dot-separated path through nested maps, so
// Lookup("user.address.city") reads values["user"]["address"]["city"].
func (e *Execution) Lookup(path string) (any, bool) {
	parts := strings.Split(path, ".")
	current := e.values
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part]
		if !ok {
			return nil, false
		}
		m, ok := next.(map[string]any)
		if !ok {
			return nil, false
		}
		current = m
	}

	v, ok := current[parts[len(parts)-1]]
	return v, ok
}

func (e *Execution) String(key string) (string, error) {
	v, err := e.require(key)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", mismatch(key, "string", v)
	}
	return s, nil
}

// Int accepts any integer kind and floats without a fractional part.
func (e *Execution) Int(key string) (int64, error) {
	v, err := e.require(key)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case float64:
		if n == float64(int64(n)) {
			return int64(n), nil
		}
	}
	return 0, mismatch(key, "integer", v)
}

func (e *Execution) Float(key string) (float64, error) {
	v, err := e.require(key)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	}
	return 0, mismatch(key, "number", v)
}

func (e *Execution) Bool(key string) (bool, error) {
	v, err := e.require(key)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, mismatch(key, "bool", v)
	}
	return b, nil
}

func (e *Execution) List(key string) ([]any, error) {
	v, err := e.require(key)
	if err != nil {
		return nil, err
	}
	l, ok := v.([]any)
	if !ok {
		return nil, mismatch(key, "list", v)
	}
	return l, nil
}

func (e *Execution) Map(key string) (map[string]any, error) {
	v, err := e.require(key)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, mismatch(key, "map", v)
	}
	return m, nil
}

// Func returns a callable stored in the context, such as an action handler
// bound by the host or a component factory produced by a render step.
func (e *Execution) Func(key string) (any, error) {
	v, err := e.require(key)
	if err != nil {
		return nil, err
	}
	if v == nil || reflect.TypeOf(v).Kind() != reflect.Func {
		return nil, mismatch(key, "function", v)
	}
	return v, nil
}

// Component returns a component factory stored under key.
func (e *Execution) Component(key string) (ComponentFactory, error) {
	v, err := e.require(key)
	if err != nil {
		return nil, err
	}
	f, ok := v.(ComponentFactory)
	if !ok {
		return nil, mismatch(key, "component factory", v)
	}
	return f, nil
}

// RunReport is the JSON-friendly summary of a finished execution.
type RunReport struct {
	ExecutionID string         `json:"execution_id" yaml:"execution_id"`
	Output      any            `json:"output" yaml:"output"`
	Errors      []any          `json:"errors,omitempty" yaml:"errors,omitempty"`
	Context     map[string]any `json:"context" yaml:"context"`
}

// Errors lists the failures recorded so far, oldest first.
func (e *Execution) Errors() []any {
	errs, _ := e.values[ErrorsKey].([]any)
	return errs
}

func (e *Execution) Report() RunReport {
	return RunReport{
		ExecutionID: e.ID,
		Output:      toSerializable(e.Output()),
		Errors:      e.Errors(),
		Context:     ToSerializableMap(e.Snapshot()),
	}
}

// recordFailure overwrites output and appends to the errors list. The list
// is copied first since it may be a slice the caller passed in. A non-list
// value under the reserved errors key is replaced and returned.
func (e *Execution) recordFailure(se *StepError) (displaced any) {
	e.values[OutputKey] = se.Error()
	prev, ok := e.values[ErrorsKey]
	if _, isList := prev.([]any); ok && prev != nil && !isList {
		displaced = prev
	}
	e.values[ErrorsKey] = append(slices.Clone(e.Errors()), se.ToMap())
	return displaced
}

func (e *Execution) require(key string) (any, error) {
	v, ok := e.values[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return v, nil
}

func mismatch(key, want string, got any) error {
	return fmt.Errorf("%w: %s is %T, want %s", ErrTypeMismatch, key, got, want)
}

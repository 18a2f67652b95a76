package runtime

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultLoadConcurrency = 4

// YAMLParser parses definition text with gopkg.in/yaml.v3.
type YAMLParser struct{}

func (YAMLParser) Parse(raw []byte) (map[string]any, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("error unmarshalling YAML: %w", err)
	}
	return doc, nil
}

// Loader turns raw definitions into validated workflows.
type Loader struct {
	l           *slog.Logger
	parser      Parser
	concurrency int
}

type LoaderOption func(*Loader)

// WithParser replaces the default YAML parser.
func WithParser(p Parser) LoaderOption {
	return func(l *Loader) {
		l.parser = p
	}
}

// WithConcurrency bounds how many definitions LoadMany parses at once.
func WithConcurrency(n int) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.concurrency = n
		}
	}
}

func NewLoader(l *slog.Logger, opts ...LoaderOption) *Loader {
	loader := &Loader{
		l:           l,
		parser:      YAMLParser{},
		concurrency: defaultLoadConcurrency,
	}
	for _, opt := range opts {
		opt(loader)
	}
	return loader
}

// Load accepts definition text (string or []byte) or an already-parsed
// object and returns the normalized workflow. A missing or empty name is a
// *ValidationError.
func (l *Loader) Load(raw any, locator string) (*Workflow, error) {
	var doc map[string]any
	switch v := raw.(type) {
	case string:
		parsed, err := l.parse([]byte(v), locator)
		if err != nil {
			return nil, err
		}
		doc = parsed
	case []byte:
		parsed, err := l.parse(v, locator)
		if err != nil {
			return nil, err
		}
		doc = parsed
	case map[string]any:
		doc = v
	case nil:
		return nil, &ValidationError{Locator: locator, Field: "name", Message: "definition is empty"}
	default:
		return nil, &ValidationError{
			Locator: locator,
			Field:   "definition",
			Message: fmt.Sprintf("unsupported definition type %T", raw),
		}
	}
	return decodeWorkflow(doc, locator)
}

func (l *Loader) parse(raw []byte, locator string) (map[string]any, error) {
	doc, err := l.parser.Parse(raw)
	if err != nil {
		return nil, &ValidationError{Locator: locator, Field: "definition", Message: err.Error()}
	}
	return doc, nil
}

func decodeWorkflow(doc map[string]any, locator string) (*Workflow, error) {
	name, ok := doc["name"].(string)
	if !ok || strings.TrimSpace(name) == "" {
		return nil, &ValidationError{Locator: locator, Field: "name", Message: "name is required"}
	}

	inputs, err := decodeInputs(doc["inputs"], locator)
	if err != nil {
		return nil, err
	}
	steps, err := decodeSteps(doc["steps"], locator)
	if err != nil {
		return nil, err
	}

	return &Workflow{
		Name:          name,
		Description:   scalarString(doc["description"]),
		Inputs:        inputs,
		Steps:         steps,
		SourceLocator: locator,
	}, nil
}

func decodeInputs(raw any, locator string) ([]Input, error) {
	inputs := []Input{}
	if raw == nil {
		return inputs, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, &ValidationError{Locator: locator, Field: "inputs", Message: "must be a list"}
	}

	for i, item := range list {
		switch v := item.(type) {
		case string:
			inputs = append(inputs, Input{Name: v})
		case map[string]any:
			if len(v) != 1 {
				return nil, &ValidationError{
					Locator: locator,
					Field:   fmt.Sprintf("inputs[%d]", i),
					Message: fmt.Sprintf("expected a single name: default pair, got %d keys", len(v)),
				}
			}
			for name, def := range v {
				inputs = append(inputs, Input{Name: name, Default: def, HasDefault: true})
			}
		default:
			return nil, &ValidationError{
				Locator: locator,
				Field:   fmt.Sprintf("inputs[%d]", i),
				Message: fmt.Sprintf("unsupported input declaration %T", item),
			}
		}
	}
	return inputs, nil
}

func decodeSteps(raw any, locator string) ([]Step, error) {
	steps := []Step{}
	if raw == nil {
		return steps, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, &ValidationError{Locator: locator, Field: "steps", Message: "must be a list"}
	}

	for i, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, &ValidationError{
				Locator: locator,
				Field:   fmt.Sprintf("steps[%d]", i),
				Message: fmt.Sprintf("expected a mapping, got %T", item),
			}
		}
		steps = append(steps, Step{
			Name:   scalarString(m["name"]),
			Engine: scalarString(m["engine"]),
			Source: scalarString(m["source"]),
		})
	}
	return steps, nil
}

func scalarString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprintf("%v", s)
	}
}

// DefaultInputs flattens keyed input declarations into one map. Later
// declarations of the same name override earlier ones; bare identifiers
// contribute nothing. Map and list defaults are copied, so a run that
// mutates them leaves the definition alone.
func DefaultInputs(w *Workflow) map[string]any {
	defaults := make(map[string]any)
	for _, in := range w.Inputs {
		if in.HasDefault {
			defaults[in.Name] = cloneValue(in.Default)
		}
	}
	return defaults
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = cloneValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

// RequiredInputs lists bare identifiers in declaration order. A name that
// also has a keyed declaration has a default and is not required.
func RequiredInputs(w *Workflow) []string {
	defaults := DefaultInputs(w)
	seen := make(map[string]bool)
	required := []string{}
	for _, in := range w.Inputs {
		if in.HasDefault || seen[in.Name] {
			continue
		}
		seen[in.Name] = true
		if _, ok := defaults[in.Name]; ok {
			continue
		}
		required = append(required, in.Name)
	}
	return required
}

// Serialize emits name, description, inputs and steps as YAML, in that
// order. The source locator is not part of the output.
func Serialize(w *Workflow) ([]byte, error) {
	doc := struct {
		Name        string  `yaml:"name"`
		Description string  `yaml:"description"`
		Inputs      []Input `yaml:"inputs"`
		Steps       []Step  `yaml:"steps"`
	}{
		Name:        w.Name,
		Description: w.Description,
		Inputs:      w.Inputs,
		Steps:       w.Steps,
	}
	if doc.Inputs == nil {
		doc.Inputs = []Input{}
	}
	if doc.Steps == nil {
		doc.Steps = []Step{}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("error marshalling workflow %s: %w", w.Name, err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("error marshalling workflow %s: %w", w.Name, err)
	}
	return buf.Bytes(), nil
}

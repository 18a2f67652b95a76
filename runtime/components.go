package runtime

// Built-in engine identifiers. The engine set is open: any other identifier
// is accepted at load time and resolves to the no-op executor at run time.
const (
	EngineRender = "render"
	EngineScript = "script"
)

// Reserved execution context keys.
const (
	OutputKey = "output"
	ErrorsKey = "errors"
)

// Workflow is a named, ordered sequence of steps with declared inputs.
// SourceLocator is diagnostic only: it is never serialized and does not
// take part in identity.
type Workflow struct {
	Name          string  `yaml:"name" json:"name"`
	Description   string  `yaml:"description" json:"description"`
	Inputs        []Input `yaml:"inputs" json:"inputs"`
	Steps         []Step  `yaml:"steps" json:"steps"`
	SourceLocator string  `yaml:"-" json:"-"`
}

// Step is one unit of work. Source is opaque to everything but the engine
// registered under Engine.
type Step struct {
	Name   string `yaml:"name" json:"name"`
	Engine string `yaml:"engine" json:"engine"`
	Source string `yaml:"source" json:"source"`
}

// Input is a declared workflow parameter. A bare identifier in the
// definition is required and has no default; a single-key map
// declares an optional parameter with a default value.
type Input struct {
	Name       string `json:"name"`
	Default    any    `json:"default,omitempty"`
	HasDefault bool   `json:"has_default"`
}

// MarshalYAML emits the declaration in the same shape it is read from.
func (i Input) MarshalYAML() (any, error) {
	if !i.HasDefault {
		return i.Name, nil
	}
	return map[string]any{i.Name: i.Default}, nil
}

// RawDefinition is unparsed definition text plus the locator it came from.
type RawDefinition struct {
	Text    []byte
	Locator string
}

// RenderResult pairs a component factory with the props it should be
// rendered with.
type RenderResult struct {
	Component ComponentFactory
	Props     map[string]any
}

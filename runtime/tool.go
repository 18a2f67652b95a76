package runtime

import "fmt"

// ToolDescriptor describes a workflow as a callable tool for LLM agents.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  ToolParameters `json:"parameters"`
}

type ToolParameters struct {
	Type       string                  `json:"type"`
	Properties map[string]ToolProperty `json:"properties"`
	Required   []string                `json:"required"`
}

type ToolProperty struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

// Tool generates the descriptor for w. Every input is typed as string.
// Inputs declared with a default are never required, and a non-empty
// default is mentioned in the property description.
func Tool(w *Workflow) ToolDescriptor {
	description := w.Description
	if description == "" {
		description = fmt.Sprintf("Workflow: %s", w.Name)
	}

	defaults := ToStringValueMap(DefaultInputs(w))
	properties := make(map[string]ToolProperty, len(w.Inputs))
	for _, in := range w.Inputs {
		prop := ToolProperty{
			Type:        "string",
			Description: fmt.Sprintf("Input parameter: %s", in.Name),
		}
		if def := defaults[in.Name]; def != "" {
			prop.Description = fmt.Sprintf("Input parameter: %s (default: %s)", in.Name, def)
		}
		properties[in.Name] = prop
	}

	return ToolDescriptor{
		Name:        w.Name,
		Description: description,
		Parameters: ToolParameters{
			Type:       "object",
			Properties: properties,
			Required:   RequiredInputs(w),
		},
	}
}

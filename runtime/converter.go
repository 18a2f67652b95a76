package runtime

import (
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"
)

// ToStringValueMap renders every value as display text. Floats use the
// shortest representation that round-trips, so 1.5 stays "1.5".
func ToStringValueMap(m map[string]any) map[string]string {
	result := make(map[string]string, len(m))
	for key, value := range m {
		result[key] = toDisplayString(value)
	}
	return result
}

func toDisplayString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ToSerializableMap copies an execution context into a form encoding/json
// can handle. Callables (action handlers, component factories) become
// descriptive placeholders.
func ToSerializableMap(m map[string]any) map[string]any {
	result := make(map[string]any, len(m))
	for key, value := range m {
		result[key] = toSerializable(value)
	}
	return result
}

func toSerializable(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case map[string]any:
		return ToSerializableMap(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = toSerializable(item)
		}
		return out
	case ComponentFactory:
		return "<component>"
	}
	if reflect.TypeOf(value).Kind() == reflect.Func {
		return "<function>"
	}
	return value
}

// mapToStructFromYAML decodes m into target using yaml tags, the tags every
// config struct in this module carries. Durations may be given as strings.
func mapToStructFromYAML(m map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  target,
		TagName: "yaml",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
		WeaklyTypedInput: true, // env vars arrive as strings
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(m); err != nil {
		return fmt.Errorf("failed to decode map to struct: %w", err)
	}

	return nil
}

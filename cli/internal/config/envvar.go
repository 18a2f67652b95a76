package config

import (
	"fmt"
	"regexp"
	"strings"
)

// EnvVarSpec is one ${VAR} or ${VAR:default} reference.
type EnvVarSpec struct {
	VarName      string
	HasDefault   bool
	DefaultValue string
}

// Matches ${VAR} and ${VAR:default}. The default runs to the first '}'.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z0-9_\-.]*)(:[^}]*)?\}`)

// ParseEnvVar parses a value that is exactly one reference.
//
//	ParseEnvVar("${REDIS_ADDR}")                -> required REDIS_ADDR
//	ParseEnvVar("${REDIS_ADDR:localhost:6379}") -> REDIS_ADDR, default localhost:6379
//	ParseEnvVar("localhost:6379")               -> nil, literal
func ParseEnvVar(value string) (*EnvVarSpec, error) {
	loc := envVarPattern.FindStringSubmatchIndex(value)
	if loc == nil || loc[0] != 0 || loc[1] != len(value) {
		return nil, nil
	}
	return specFrom(value, loc)
}

func specFrom(value string, loc []int) (*EnvVarSpec, error) {
	name := value[loc[2]:loc[3]]
	if !isValidEnvVarName(name) {
		return nil, fmt.Errorf("invalid environment variable name: %q", name)
	}
	spec := &EnvVarSpec{VarName: name}
	if loc[4] >= 0 {
		spec.HasDefault = true
		spec.DefaultValue = value[loc[4]+1 : loc[5]]
	}
	return spec, nil
}

// LookupFunc resolves an environment variable, os.LookupEnv style.
type LookupFunc func(name string) (string, bool)

// Expand replaces every reference in value. A missing variable without a
// default is an error.
func Expand(value string, lookup LookupFunc) (string, error) {
	matches := envVarPattern.FindAllStringSubmatchIndex(value, -1)
	if len(matches) == 0 {
		return value, nil
	}

	var b strings.Builder
	last := 0
	for _, loc := range matches {
		spec, err := specFrom(value, loc)
		if err != nil {
			return "", err
		}
		resolved, ok := lookup(spec.VarName)
		if !ok {
			if !spec.HasDefault {
				return "", fmt.Errorf("environment variable %s is not set", spec.VarName)
			}
			resolved = spec.DefaultValue
		}
		b.WriteString(value[last:loc[0]])
		b.WriteString(resolved)
		last = loc[1]
	}
	b.WriteString(value[last:])
	return b.String(), nil
}

// ExpandTree expands references in every string of a decoded YAML document.
// Keys are left untouched.
func ExpandTree(node any, lookup LookupFunc) (any, error) {
	switch v := node.(type) {
	case string:
		return Expand(v, lookup)
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			expanded, err := ExpandTree(item, lookup)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			out[k] = expanded
		}
		return out, nil
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			expanded, err := ExpandTree(item, lookup)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = expanded
		}
		return out, nil
	default:
		return node, nil
	}
}

// Valid names start with A-Z or underscore and contain only A-Z, 0-9 and
// underscore.
func isValidEnvVarName(name string) bool {
	if name == "" {
		return false
	}
	first := name[0]
	if !((first >= 'A' && first <= 'Z') || first == '_') {
		return false
	}
	for i := 1; i < len(name); i++ {
		c := name[i]
		if !((c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_') {
			return false
		}
	}
	return true
}

package config

import (
	"fmt"
	"regexp"
	"strings"
)

// EnvVarSpec is a parsed config value: either a literal or a ${VAR} reference
// with an optional default.
type EnvVarSpec struct {
	VarName      string
	HasDefault   bool
	DefaultValue string
	IsLiteral    bool
	LiteralValue string
}

// envVarPattern matches ${VAR} and ${VAR:default} syntax
var envVarPattern = regexp.MustCompile(`^\$\{([A-Z_][A-Z0-9_]*)(:[^}]*)?\}$`)

// ParseEnvVar parses a config value that may reference an environment
// variable.
//
//	ParseEnvVar("${DOSSIER_API_BASE}")                    // required
//	ParseEnvVar("${DOSSIER_API_BASE:http://localhost/api}") // with default
//	ParseEnvVar("http://localhost/api")                   // literal
//
// Values that only look like a reference, such as "${lower}" or "${A-B}",
// are kept as literals.
func ParseEnvVar(value string) *EnvVarSpec {
	matches := envVarPattern.FindStringSubmatch(value)
	if matches == nil {
		return &EnvVarSpec{IsLiteral: true, LiteralValue: value}
	}

	spec := &EnvVarSpec{VarName: matches[1], HasDefault: matches[2] != ""}
	if spec.HasDefault {
		spec.DefaultValue = strings.TrimPrefix(matches[2], ":")
	}
	return spec
}

// Resolve returns the value the spec stands for. A required variable that
// is not set is an error.
func (s *EnvVarSpec) Resolve(lookup func(string) (string, bool)) (string, error) {
	if s.IsLiteral {
		return s.LiteralValue, nil
	}
	if v, ok := lookup(s.VarName); ok {
		return v, nil
	}
	if s.HasDefault {
		return s.DefaultValue, nil
	}
	return "", fmt.Errorf("environment variable %s is required but not set", s.VarName)
}

// ExpandValues resolves every string in a decoded YAML tree. Maps and
// slices are walked; other scalars pass through unchanged.
func ExpandValues(values map[string]any, lookup func(string) (string, bool)) (map[string]any, error) {
	out := make(map[string]any, len(values))
	for k, v := range values {
		resolved, err := expandValue(v, lookup)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = resolved
	}
	return out, nil
}

func expandValue(value any, lookup func(string) (string, bool)) (any, error) {
	switch v := value.(type) {
	case string:
		return ParseEnvVar(v).Resolve(lookup)
	case map[string]any:
		return ExpandValues(v, lookup)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			resolved, err := expandValue(item, lookup)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return value, nil
	}
}

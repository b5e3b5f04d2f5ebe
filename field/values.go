package field

import (
	"fmt"
	"sort"
	"strings"

	contaconmigo "github.com/contaconmigo/contaconmigo-go"
)

// ValidationError lists the fields whose input was rejected.
type ValidationError struct {
	// Empty holds required fields left blank.
	Empty []string
	// Invalid maps a field name to why its input could not be parsed.
	Invalid map[string]string
}

func (e *ValidationError) Error() string {
	var parts []string
	if len(e.Empty) > 0 {
		parts = append(parts, "missing: "+strings.Join(e.Empty, ", "))
	}
	if len(e.Invalid) > 0 {
		names := make([]string, 0, len(e.Invalid))
		for name, reason := range e.Invalid {
			names = append(names, fmt.Sprintf("%s (%s)", name, reason))
		}
		sort.Strings(names)
		parts = append(parts, "invalid: "+strings.Join(names, ", "))
	}
	return "contaconmigo/field: " + strings.Join(parts, "; ")
}

// ParseValues converts raw form input into typed values for fields. Every
// field must be present and parse; booleans default to false. Keys in raw
// that name no field are ignored.
func ParseValues(fields []contaconmigo.Field, raw map[string]string) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	verr := &ValidationError{}

	for _, f := range fields {
		v, err := For(f.Type)
		if err != nil {
			if verr.Invalid == nil {
				verr.Invalid = make(map[string]string)
			}
			verr.Invalid[f.Name] = fmt.Sprintf("unknown type %q", f.Type)
			continue
		}

		in := raw[f.Name]
		if f.Type != contaconmigo.FieldBoolean && strings.TrimSpace(in) == "" {
			verr.Empty = append(verr.Empty, f.Name)
			continue
		}

		value, err := v.Parse(in)
		if err != nil {
			if verr.Invalid == nil {
				verr.Invalid = make(map[string]string)
			}
			verr.Invalid[f.Name] = err.Error()
			continue
		}
		out[f.Name] = value
	}

	if len(verr.Empty) > 0 || len(verr.Invalid) > 0 {
		return nil, verr
	}
	return out, nil
}

// ZeroValues returns the initial form values for fields.
func ZeroValues(fields []contaconmigo.Field) map[string]any {
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[f.Name] = Zero(f.Type)
	}
	return out
}

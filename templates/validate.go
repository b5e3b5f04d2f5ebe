package templates

import (
	"fmt"
	"strings"
	"unicode/utf8"

	contaconmigo "github.com/contaconmigo/contaconmigo-go"
	"github.com/contaconmigo/contaconmigo-go/field"
)

const (
	minNameLen      = 3
	minFieldNameLen = 2
)

// Validate checks template input: a name of at least three characters, at
// least one field, unique field names of at least two characters and known
// types. The first field holds the counted quantity and must be an int or
// a float.
func Validate(in contaconmigo.TemplateInput) error {
	if utf8.RuneCountInString(strings.TrimSpace(in.Name)) < minNameLen {
		return fmt.Errorf("%w: name must have at least %d characters", ErrInvalidTemplate, minNameLen)
	}
	if len(in.Fields) == 0 {
		return fmt.Errorf("%w: at least one field is required", ErrInvalidTemplate)
	}

	seen := make(map[string]bool, len(in.Fields))
	for i, f := range in.Fields {
		name := strings.TrimSpace(f.Name)
		if name == "" {
			return fmt.Errorf("%w: field %d has no name", ErrInvalidTemplate, i+1)
		}
		if utf8.RuneCountInString(name) < minFieldNameLen {
			return fmt.Errorf("%w: field %q must have at least %d characters", ErrInvalidTemplate, name, minFieldNameLen)
		}
		if seen[name] {
			return fmt.Errorf("%w: duplicate field %q", ErrInvalidTemplate, name)
		}
		seen[name] = true
		if !field.Known(f.Type) {
			return fmt.Errorf("%w: field %q has unknown type %q", ErrInvalidTemplate, name, f.Type)
		}
	}

	switch first := in.Fields[0]; first.Type {
	case contaconmigo.FieldInt, contaconmigo.FieldFloat:
	default:
		return fmt.Errorf("%w: first field %q must be of type int or float", ErrInvalidTemplate, first.Name)
	}
	return nil
}

// Package field parses and formats the typed values of template fields.
package field

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	contaconmigo "github.com/contaconmigo/contaconmigo-go"
)

// DateLayout is the wire and input format of date fields.
const DateLayout = "2006-01-02"

// ErrUnknownType is returned for a field type with no variant.
var ErrUnknownType = errors.New("contaconmigo/field: unknown field type")

// Variant handles one field type.
type Variant interface {
	// Type returns the field type this variant handles.
	Type() contaconmigo.FieldType
	// Parse converts trimmed user input into the typed value sent to the
	// backend. Empty input is an error except for booleans.
	Parse(raw string) (any, error)
	// Zero returns the initial form value.
	Zero() any
	// Format renders a stored value for display.
	Format(v any) string
}

var variants = map[contaconmigo.FieldType]Variant{
	contaconmigo.FieldInt:     intVariant{},
	contaconmigo.FieldFloat:   floatVariant{},
	contaconmigo.FieldBoolean: boolVariant{},
	contaconmigo.FieldString:  stringVariant{},
	contaconmigo.FieldDate:    dateVariant{},
}

// For returns the variant of t.
func For(t contaconmigo.FieldType) (Variant, error) {
	v, ok := variants[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	return v, nil
}

// Known reports whether t has a variant.
func Known(t contaconmigo.FieldType) bool {
	_, ok := variants[t]
	return ok
}

// Types lists the known field types in a stable order.
func Types() []contaconmigo.FieldType {
	out := make([]contaconmigo.FieldType, 0, len(variants))
	for t := range variants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Parse parses raw as a value of type t.
func Parse(t contaconmigo.FieldType, raw string) (any, error) {
	v, err := For(t)
	if err != nil {
		return nil, err
	}
	return v.Parse(raw)
}

// Zero returns the initial value of type t, or nil for unknown types.
func Zero(t contaconmigo.FieldType) any {
	v, err := For(t)
	if err != nil {
		return nil
	}
	return v.Zero()
}

// Format renders v as type t. Unknown types fall back to fmt.
func Format(t contaconmigo.FieldType, v any) string {
	variant, err := For(t)
	if err != nil {
		return fmt.Sprint(v)
	}
	return variant.Format(v)
}

// Number converts a numeric value, including JSON-decoded ones, to float64.
// NaN and infinities are rejected.
func Number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case float32:
		f = float64(n)
	case float64:
		f = n
	case string:
		var err error
		if f, err = strconv.ParseFloat(strings.TrimSpace(n), 64); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Bool converts a boolean value, including JSON-decoded ones.
func Bool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := parseBool(b)
		return parsed, err == nil
	default:
		return false, false
	}
}

var errEmpty = errors.New("value is required")

type intVariant struct{}

func (intVariant) Type() contaconmigo.FieldType { return contaconmigo.FieldInt }
func (intVariant) Zero() any                    { return "" }

func (intVariant) Parse(raw string) (any, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, errEmpty
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%q is not a whole number", s)
	}
	return n, nil
}

func (intVariant) Format(v any) string {
	n, ok := Number(v)
	if !ok {
		return fmt.Sprint(v)
	}
	return strconv.FormatInt(int64(math.Round(n)), 10)
}

type floatVariant struct{}

func (floatVariant) Type() contaconmigo.FieldType { return contaconmigo.FieldFloat }
func (floatVariant) Zero() any                    { return "" }

func (floatVariant) Parse(raw string) (any, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, errEmpty
	}
	// Accept a decimal comma.
	f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%q is not a number", s)
	}
	return f, nil
}

func (floatVariant) Format(v any) string {
	n, ok := Number(v)
	if !ok {
		return fmt.Sprint(v)
	}
	return strconv.FormatFloat(n, 'f', -1, 64)
}

type boolVariant struct{}

func (boolVariant) Type() contaconmigo.FieldType { return contaconmigo.FieldBoolean }
func (boolVariant) Zero() any                    { return false }

// Parse treats empty input as false; a toggle always has a value.
func (boolVariant) Parse(raw string) (any, error) {
	if strings.TrimSpace(raw) == "" {
		return false, nil
	}
	return parseBool(raw)
}

func (boolVariant) Format(v any) string {
	b, ok := Bool(v)
	if !ok {
		return fmt.Sprint(v)
	}
	if b {
		return "yes"
	}
	return "no"
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "y", "yes", "on", "si", "sí":
		return true, nil
	case "0", "f", "false", "n", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%q is not yes or no", raw)
	}
}

type stringVariant struct{}

func (stringVariant) Type() contaconmigo.FieldType { return contaconmigo.FieldString }
func (stringVariant) Zero() any                    { return "" }

func (stringVariant) Parse(raw string) (any, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, errEmpty
	}
	return s, nil
}

func (stringVariant) Format(v any) string { return fmt.Sprint(v) }

type dateVariant struct{}

func (dateVariant) Type() contaconmigo.FieldType { return contaconmigo.FieldDate }
func (dateVariant) Zero() any                    { return "" }

func (dateVariant) Parse(raw string) (any, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, errEmpty
	}
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("%q is not a date (YYYY-MM-DD)", s)
	}
	return d.Format(DateLayout), nil
}

func (dateVariant) Format(v any) string {
	s, ok := v.(string)
	if !ok {
		return fmt.Sprint(v)
	}
	if d, err := time.Parse(DateLayout, s); err == nil {
		return d.Format(DateLayout)
	}
	if d, err := time.Parse(time.RFC3339, s); err == nil {
		return d.Format(DateLayout)
	}
	return s
}

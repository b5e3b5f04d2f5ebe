package contaconmigo

import "time"

// Tokens is the credential pair issued at login.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

// UserProfile is the user record returned at login.
type UserProfile struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	Metadata map[string]any `json:"user_metadata,omitempty"`
}

// FieldType tags the kind of value a template field holds.
type FieldType string

const (
	FieldInt     FieldType = "int"
	FieldFloat   FieldType = "float"
	FieldBoolean FieldType = "boolean"
	FieldString  FieldType = "string"
	FieldDate    FieldType = "date"
)

// Field is one typed slot of a template.
type Field struct {
	Name        string    `json:"name"`
	Type        FieldType `json:"type"`
	DisplayUnit string    `json:"display_unit,omitempty"`
}

// Template is a user-defined named schema of typed fields.
type Template struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	UserID    string     `json:"user_id,omitempty"`
	Fields    []Field    `json:"fields"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Entry is one dated submission of values conforming to a template.
type Entry struct {
	ID         string         `json:"id"`
	TemplateID string         `json:"template_id,omitempty"`
	Values     map[string]any `json:"values"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Totals aggregates the entries of a single template.
type Totals struct {
	TemplateID   string `json:"template_id"`
	TemplateName string `json:"template_name"`
	Count        int    `json:"count"`
	// Sums holds the sum of every numeric (int/float) field.
	Sums map[string]float64 `json:"sums"`
	// TrueCounts holds how many entries had each boolean field set.
	TrueCounts  map[string]int `json:"true_counts"`
	LastEntryAt time.Time      `json:"last_entry_at"`
}

package models

import "github.com/google/uuid"

// FieldInput is one field descriptor of an upsert request
type FieldInput struct {
	Name        string
	Description Optional[*string]
}

// ObjectUpsert carries an idempotent metadata merge for one object
type ObjectUpsert struct {
	UserID       uuid.UUID
	ConnectionID uuid.UUID
	ObjectName   string
	Description  Optional[*string]
	Fields       []FieldInput
}

// FieldSummary is a field with its description normalized for display
type FieldSummary struct {
	Name        string `json:"field_name"`
	Description string `json:"field_description"`
}

// ObjectWithFields is an object and its fields with descriptions normalized
// to empty strings.
type ObjectWithFields struct {
	ID           uuid.UUID      `json:"id"`
	ConnectionID uuid.UUID      `json:"connection_id"`
	Name         string         `json:"object_name"`
	Description  string         `json:"object_description"`
	Fields       []FieldSummary `json:"fields"`
}

// FieldContext is a field entry of a context document
type FieldContext struct {
	Name        string  `json:"field_name"`
	Description *string `json:"field_description"`
}

// ObjectContext is one entry of the context document handed to SQL
// generation. A nil Description marks a name that is not in the catalog.
type ObjectContext struct {
	Name        string         `json:"object_name"`
	Description *string        `json:"object_description"`
	Fields      []FieldContext `json:"fields"`
}

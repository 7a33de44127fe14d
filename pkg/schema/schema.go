// Package schema validates documents against JSON schemas.
package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidSchema is returned when the schema itself cannot be compiled.
var ErrInvalidSchema = errors.New("invalid json schema")

// ViolationError lists the schema violations of a document.
type ViolationError struct {
	Violations []Violation
}

// Violation is one failed schema rule.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ViolationError) Error() string {
	messages := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		messages = append(messages, v.Field+": "+v.Message)
	}

	return "validation errors: " + strings.Join(messages, "; ")
}

// Schema is a compiled JSON schema.
type Schema struct {
	compiled *gojsonschema.Schema
}

// Compile compiles a schema given as a decoded JSON document.
func Compile(document map[string]any) (*Schema, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(document))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}

	return &Schema{compiled: compiled}, nil
}

// Validate checks data, returning a *ViolationError when it does not match.
func (s *Schema) Validate(data any) error {
	result, err := s.compiled.Validate(gojsonschema.NewGoLoader(data))
	if err != nil {
		return fmt.Errorf("failed to validate document: %w", err)
	}

	if result.Valid() {
		return nil
	}

	violations := make([]Violation, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, Violation{
			Field:   desc.Field(),
			Message: desc.Description(),
		})
	}

	return &ViolationError{Violations: violations}
}

// Validate compiles document and checks data against it.
func Validate(document map[string]any, data any) error {
	compiled, err := Compile(document)
	if err != nil {
		return err
	}

	return compiled.Validate(data)
}

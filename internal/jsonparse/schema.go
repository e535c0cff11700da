package jsonparse

import (
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	llmerrors "github.com/ahrav/go-grader/internal/llm/errors"
)

// Schema is a compiled JSON Schema for model output.
type Schema struct {
	name   string
	schema *jsonschema.Schema
}

// MustCompile compiles an embedded schema and panics when it is invalid.
func MustCompile(name, src string) *Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(src)); err != nil {
		panic(fmt.Sprintf("failed to add %s resource: %v", name, err))
	}
	sch, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("failed to compile %s: %v", name, err))
	}
	return &Schema{name: name, schema: sch}
}

// Validate checks a generic JSON value (as produced by Object) against the
// schema. Violations wrap ErrMalformedResponse.
func (s *Schema) Validate(v any) error {
	err := s.schema.Validate(v)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if errors.As(err, &ve) {
		return fmt.Errorf("%w: %s: %s", llmerrors.ErrMalformedResponse, s.name, strings.Join(leafMessages(ve), "; "))
	}
	return fmt.Errorf("%w: %s: %w", llmerrors.ErrMalformedResponse, s.name, err)
}

func leafMessages(ve *jsonschema.ValidationError) []string {
	if len(ve.Causes) == 0 {
		loc := ve.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return []string{loc + ": " + ve.Message}
	}
	var out []string
	for _, c := range ve.Causes {
		out = append(out, leafMessages(c)...)
	}
	return out
}

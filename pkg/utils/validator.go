package utils

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// DocumentSchema is a compiled JSON schema used to check YAML configuration documents
type DocumentSchema struct {
	name   string
	schema *jsonschema.Schema
}

// CompileSchema compiles a JSON schema document registered under name
func CompileSchema(name string, schemaJSON []byte) (*DocumentSchema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema %s: %w", name, err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return &DocumentSchema{name: name, schema: schema}, nil
}

// MustCompileSchema is CompileSchema for schemas embedded in the binary
func MustCompileSchema(name string, schemaJSON []byte) *DocumentSchema {
	s, err := CompileSchema(name, schemaJSON)
	if err != nil {
		panic(err)
	}
	return s
}

// ValidateYAML checks a YAML document against the schema.
// The document is round-tripped through JSON so numbers and maps take the shapes the validator expects.
func (s *DocumentSchema) ValidateYAML(data []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("convert yaml to json: %w", err)
	}
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	if err := s.schema.Validate(v); err != nil {
		return fmt.Errorf("document does not match %s: %w", s.name, err)
	}
	return nil
}

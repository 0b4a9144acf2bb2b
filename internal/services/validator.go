package services

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Payload kinds with a bundled schema.
const (
	SchemaCompanyCreate = "company.create"
	SchemaCompanyUpdate = "company.update"
	SchemaPersonCreate  = "person.create"
	SchemaPersonUpdate  = "person.update"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Validator checks request payloads against the bundled JSON schemas.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// NewValidator compiles every schemas/<kind>.json file.
func NewValidator() (*Validator, error) {
	entries, err := fs.ReadDir(schemaFS, "schemas")
	if err != nil {
		return nil, fmt.Errorf("read schemas: %w", err)
	}
	compiled := make(map[string]*jsonschema.Schema, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		kind := strings.TrimSuffix(e.Name(), ".json")
		data, err := schemaFS.ReadFile(path.Join("schemas", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", e.Name(), err)
		}
		c := jsonschema.NewCompiler()
		c.AssertFormat = true
		url := "https://leadvault.dev/schemas/" + e.Name()
		if err := c.AddResource(url, strings.NewReader(string(data))); err != nil {
			return nil, fmt.Errorf("add schema %q: %w", kind, err)
		}
		s, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile schema %q: %w", kind, err)
		}
		compiled[kind] = s
	}
	return &Validator{schemas: compiled}, nil
}

// Validate returns an ErrValidation-wrapped error if raw does not match kind.
func (v *Validator) Validate(kind string, raw json.RawMessage) error {
	schema, ok := v.schemas[kind]
	if !ok {
		return fmt.Errorf("unknown schema %q", kind)
	}
	if len(raw) == 0 {
		return fmt.Errorf("%w: empty body", ErrValidation)
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", ErrValidation, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

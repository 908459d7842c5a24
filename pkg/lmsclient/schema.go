package lmsclient

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBase = "mem://lmsclient/"

// Schema names of the response bodies the client accepts.
const (
	schemaAssignment         = "assignment.json"
	schemaAssignmentList     = "assignment_list.json"
	schemaAssignmentEnvelope = "assignment_envelope.json"
	schemaSubmissionEnvelope = "submission_envelope.json"
	schemaMessage            = "message.json"
)

type schemaSet map[string]*jsonschema.Schema

func loadSchemas() (schemaSet, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	entries, err := fs.ReadDir(schemaFS, "schemas")
	if err != nil {
		return nil, fmt.Errorf("read embedded schemas: %w", err)
	}
	for _, entry := range entries {
		raw, err := schemaFS.ReadFile(path.Join("schemas", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", entry.Name(), err)
		}
		if err := compiler.AddResource(schemaBase+entry.Name(), bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", entry.Name(), err)
		}
	}

	set := schemaSet{}
	for _, name := range []string{schemaAssignment, schemaAssignmentList, schemaAssignmentEnvelope, schemaSubmissionEnvelope, schemaMessage} {
		schema, err := compiler.Compile(schemaBase + name)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		set[name] = schema
	}
	return set, nil
}

// validate checks raw against the named schema.
func (s schemaSet) validate(name string, raw []byte) error {
	schema, ok := s[name]
	if !ok {
		return fmt.Errorf("unknown schema %s", name)
	}

	var doc interface{}
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	if err := decoder.Decode(&doc); err != nil {
		return &SchemaError{Schema: name, Err: err}
	}
	if err := schema.Validate(doc); err != nil {
		return &SchemaError{Schema: name, Err: err}
	}
	return nil
}

/*Package schema validates entity payloads against JSON schemas.

Each entity schema is compiled twice: once as authored for creation, and
once with the required list suspended for updates, so partial update
documents are accepted while every present field still has to satisfy its
full constraint. Violations are collected, never reported fail-fast.
*/
package schema

import (
	"embed"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/xeipuuv/gojsonschema"

	"github.com/mediora-tech/mediora/core"
)

// FieldError is one violation, reported as a path plus message pair so a
// caller can fix all issues in one round trip.
type FieldError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Path    string `json:"path"`
}

// Validator validates JSON documents against a set of entity schemas.
type Validator struct {
	createValidators map[string]*gojsonschema.Schema
	updateValidators map[string]*gojsonschema.Schema
}

// NewValidatorFromFS creates a new Validator using schemas from schemaFS.
// Json files from / will be used as toplevel schemas, while json files in
// /refs/ will be used as references.
func NewValidatorFromFS(schemaFS embed.FS) (*Validator, error) {

	readDir := func(dir string) ([]string, error) {
		var strs []string
		files, err := schemaFS.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("cannot read dir %w", err)
		}
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
				continue
			}
			fullPath := f.Name()
			if dir != "." {
				fullPath = dir + "/" + f.Name()
			}
			str, err := schemaFS.ReadFile(fullPath)
			if err != nil {
				return nil, fmt.Errorf("cannot read file '%s' %w", f.Name(), err)
			}
			strs = append(strs, string(str))
		}
		return strs, nil
	}

	schemasString, err := readDir(".")
	if err != nil {
		return nil, err
	}

	refsString, err := readDir("refs")
	if err != nil {
		// refs are optional
		refsString = nil
	}

	return NewValidator(schemasString, refsString)
}

// NewValidator creates a new Validator using schemas for the top level JSON
// schemas and refs for refs that may be referenced in the top level schemas.
// Top level schemas cannot reference each other; references only resolve
// from the refs list.
func NewValidator(schemas []string, refs []string) (*Validator, error) {
	type schemaID struct {
		ID string `json:"$id"`
	}
	validator := Validator{
		createValidators: make(map[string]*gojsonschema.Schema),
		updateValidators: make(map[string]*gojsonschema.Schema),
	}
	compile := func(str string) (*gojsonschema.Schema, error) {
		sl := gojsonschema.NewSchemaLoader()
		for _, ref := range refs {
			loader := gojsonschema.NewStringLoader(ref)
			if err := sl.AddSchemas(loader); err != nil {
				return nil, fmt.Errorf("cannot add ref %s", err)
			}
		}
		return sl.Compile(gojsonschema.NewStringLoader(str))
	}
	for _, str := range schemas {
		s := schemaID{}
		err := json.Unmarshal([]byte(str), &s)
		if err != nil {
			return nil, fmt.Errorf("parse error '%v' in schema: '%s'", err, str)
		}
		if s.ID == "" {
			return nil, fmt.Errorf("schema does not contain $id: '%s'", str)
		}
		createSchema, err := compile(str)
		if err != nil {
			return nil, fmt.Errorf("cannot compile schema %s %s", s.ID, err)
		}
		validator.createValidators[s.ID] = createSchema

		partial, err := withoutRequired(str)
		if err != nil {
			return nil, fmt.Errorf("cannot derive update schema %s %s", s.ID, err)
		}
		updateSchema, err := compile(partial)
		if err != nil {
			return nil, fmt.Errorf("cannot compile update schema %s %s", s.ID, err)
		}
		validator.updateValidators[s.ID] = updateSchema
	}

	return &validator, nil
}

// withoutRequired strips the top-level required list from a schema
// document, turning it into its partial-update variant.
func withoutRequired(schema string) (string, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(schema), &doc); err != nil {
		return "", err
	}
	delete(doc, "required")
	out, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// HasSchema returns true if schemaID is known
func (v *Validator) HasSchema(schemaID string) bool {
	_, ok := v.createValidators[schemaID]
	return ok
}

// Validate checks document against the schema for the given operation and
// returns the parsed object plus all collected violations. For creation the
// authored schema applies (the identifier is server-assigned and must not be
// listed as required there); for updates the required list is suspended.
func (v *Validator) Validate(schemaID string, op core.Operation, document []byte) (map[string]interface{}, []FieldError) {
	validators := v.createValidators
	if op == core.OperationUpdate {
		validators = v.updateValidators
	}
	schema, ok := validators[schemaID]
	if !ok {
		return nil, []FieldError{{Code: "unknown_schema", Message: "there is no schema " + schemaID, Path: ""}}
	}

	var object map[string]interface{}
	if err := json.Unmarshal(document, &object); err != nil {
		return nil, []FieldError{{Code: "invalid_json", Message: "body is not a JSON object", Path: ""}}
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(document))
	if err != nil {
		return nil, []FieldError{{Code: "invalid_json", Message: "body is not a JSON object", Path: ""}}
	}
	if result.Valid() {
		return object, nil
	}
	errs := make([]FieldError, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		errs = append(errs, FieldError{
			Code:    e.Type(),
			Message: e.Description(),
			Path:    fieldPath(e),
		})
	}
	return nil, errs
}

// fieldPath extracts the offending field path. Required-property errors
// are reported by gojsonschema against the parent object, so the path is
// taken from the error details instead.
func fieldPath(e gojsonschema.ResultError) string {
	field := e.Field()
	if e.Type() == "required" || e.Type() == "additional_property_not_allowed" {
		if property, ok := e.Details()["property"].(string); ok {
			if field == "(root)" {
				return property
			}
			return field + "." + property
		}
	}
	if field == "(root)" {
		return ""
	}
	return field
}

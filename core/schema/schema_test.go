package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediora-tech/mediora/core"
)

var showSchema = `{
	"$id": "show",
	"type": "object",
	"additionalProperties": false,
	"required": ["title", "seasons"],
	"properties": {
		"title": { "type": "string", "minLength": 1 },
		"seasons": { "type": "integer", "minimum": 1 },
		"synopsis": { "type": "string" }
	}
}`

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := NewValidator([]string{showSchema}, nil)
	require.NoError(t, err)
	return v
}

func TestHasSchema(t *testing.T) {
	v := newTestValidator(t)
	assert.True(t, v.HasSchema("show"))
	assert.False(t, v.HasSchema("movie"))
}

func TestValidateCreate(t *testing.T) {
	v := newTestValidator(t)
	object, errs := v.Validate("show", core.OperationCreate,
		[]byte(`{"title":"Dark","seasons":3}`))
	require.Empty(t, errs)
	assert.Equal(t, "Dark", object["title"])
}

func TestValidateCollectsAllViolations(t *testing.T) {
	v := newTestValidator(t)
	_, errs := v.Validate("show", core.OperationCreate,
		[]byte(`{"title":"","seasons":0}`))
	require.Len(t, errs, 2)

	paths := []string{errs[0].Path, errs[1].Path}
	assert.Contains(t, paths, "title")
	assert.Contains(t, paths, "seasons")
	for _, e := range errs {
		assert.NotEmpty(t, e.Code)
		assert.NotEmpty(t, e.Message)
	}
}

func TestValidateMissingRequiredField(t *testing.T) {
	v := newTestValidator(t)
	_, errs := v.Validate("show", core.OperationCreate, []byte(`{"title":"Dark"}`))
	require.Len(t, errs, 1)
	assert.Equal(t, "required", errs[0].Code)
	assert.Equal(t, "seasons", errs[0].Path)
}

func TestValidateUpdateSuspendsRequired(t *testing.T) {
	v := newTestValidator(t)

	// a partial document is fine for update
	_, errs := v.Validate("show", core.OperationUpdate, []byte(`{"seasons":4}`))
	assert.Empty(t, errs)

	// present fields still have to satisfy their constraints
	_, errs = v.Validate("show", core.OperationUpdate, []byte(`{"seasons":0}`))
	require.Len(t, errs, 1)
	assert.Equal(t, "seasons", errs[0].Path)
}

func TestValidateRejectsUnknownField(t *testing.T) {
	v := newTestValidator(t)
	_, errs := v.Validate("show", core.OperationCreate,
		[]byte(`{"title":"Dark","seasons":3,"show_id":"abc"}`))
	require.Len(t, errs, 1)
	assert.Equal(t, "additional_property_not_allowed", errs[0].Code)
	assert.Equal(t, "show_id", errs[0].Path)
}

func TestValidateRejectsNonObject(t *testing.T) {
	v := newTestValidator(t)
	for _, body := range []string{`not json`, `[1,2,3]`, `"string"`} {
		_, errs := v.Validate("show", core.OperationCreate, []byte(body))
		require.NotEmpty(t, errs, body)
		assert.Equal(t, "invalid_json", errs[0].Code)
	}
}

func TestValidateUnknownSchema(t *testing.T) {
	v := newTestValidator(t)
	_, errs := v.Validate("movie", core.OperationCreate, []byte(`{}`))
	require.Len(t, errs, 1)
	assert.Equal(t, "unknown_schema", errs[0].Code)
}

func TestSchemaWithoutIDFails(t *testing.T) {
	_, err := NewValidator([]string{`{"type":"object"}`}, nil)
	assert.Error(t, err)
}

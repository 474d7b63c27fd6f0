package core

import (
	"net/http"
	"testing"

	"github.com/goccy/go-json"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperationForMethod(t *testing.T) {
	cases := []struct {
		method string
		withID bool
		want   Operation
		ok     bool
	}{
		{http.MethodGet, false, OperationList, true},
		{http.MethodGet, true, OperationRead, true},
		{http.MethodPost, false, OperationCreate, true},
		{http.MethodPost, true, OperationCreate, true},
		{http.MethodPut, true, OperationUpdate, true},
		{http.MethodPut, false, OperationUpdate, true},
		{http.MethodDelete, true, OperationDelete, true},
		{http.MethodPatch, true, "", false},
		{http.MethodHead, false, "", false},
	}
	for _, c := range cases {
		op, ok := OperationForMethod(c.method, c.withID)
		assert.Equal(t, c.ok, ok, "%s withID=%v", c.method, c.withID)
		assert.Equal(t, c.want, op, "%s withID=%v", c.method, c.withID)
	}
}

func TestIsMutation(t *testing.T) {
	assert.True(t, OperationCreate.IsMutation())
	assert.True(t, OperationUpdate.IsMutation())
	assert.False(t, OperationRead.IsMutation())
	assert.False(t, OperationList.IsMutation())
	assert.False(t, OperationDelete.IsMutation())
}

func TestOperationUnmarshalJSON(t *testing.T) {
	var op Operation
	require.NoError(t, json.Unmarshal([]byte(`"create"`), &op))
	assert.Equal(t, OperationCreate, op)

	assert.Error(t, json.Unmarshal([]byte(`"upsert"`), &op))
	assert.Error(t, json.Unmarshal([]byte(`42`), &op))
}

func TestRoleUnmarshalJSON(t *testing.T) {
	var role Role
	require.NoError(t, json.Unmarshal([]byte(`"medior"`), &role))
	assert.Equal(t, RoleMedior, role)

	assert.Error(t, json.Unmarshal([]byte(`"owner"`), &role))
}

func TestRolesIsComplete(t *testing.T) {
	assert.Equal(t, []Role{RoleJunior, RoleMedior, RoleSenior, RoleAdmin}, Roles())
}

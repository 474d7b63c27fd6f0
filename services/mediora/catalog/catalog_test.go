package catalog

import (
	"net/http"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediora-tech/mediora/core"
	"github.com/mediora-tech/mediora/core/client"
	"github.com/mediora-tech/mediora/core/dispatch"
)

func newCatalogRouter(t *testing.T) *mux.Router {
	t.Helper()
	registry := NewRegistry()
	validator, err := NewValidator()
	require.NoError(t, err)

	router := mux.NewRouter()
	dispatch.New(&dispatch.Builder{
		Registry:  registry,
		Validator: validator,
		Store:     dispatch.NewMemStore(registry),
		Router:    router,
	})
	return router
}

func TestEverySchemaCompiles(t *testing.T) {
	registry := NewRegistry()
	validator, err := NewValidator()
	require.NoError(t, err)

	for _, def := range registry.Definitions() {
		assert.True(t, validator.HasSchema(def.SchemaID), def.EntityKey)
	}
}

func TestUnauthenticatedGenreListing(t *testing.T) {
	router := newCatalogRouter(t)
	cl := client.NewWithRouter(router)

	status, body, _, err := cl.RawRequest(http.MethodGet, "/genre", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.JSONEq(t, `{"error":{"message":"Unauthorized"}}`, string(body))
}

func TestJuniorCannotChangeSubscriptions(t *testing.T) {
	router := newCatalogRouter(t)
	junior := client.NewWithRouter(router).WithRole(core.RoleJunior)

	status, apiErr, err := junior.Error(http.MethodPut,
		"/subscription/11111111-1111-1111-1111-111111111111",
		map[string]interface{}{"price_cents": 1})
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "Forbidden", apiErr.Message)

	// reading is fine
	var subscriptions []map[string]interface{}
	_, status, err = junior.List("/subscription", &subscriptions)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
}

func TestInvalidLanguageAsXML(t *testing.T) {
	router := newCatalogRouter(t)
	admin := client.NewWithRouter(router).WithAdminPrincipal()

	headers := map[string]string{"Accept": "application/xml"}
	status, body, header, err := admin.RawRequest(http.MethodPost, "/language",
		headers, []byte(`{"code":"ENGLISH"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "application/xml; charset=utf-8", header.Get("Content-Type"))
	assert.Contains(t, string(body), "<error><message>validation failed</message>")
	assert.Contains(t, string(body), "<path>code</path>")
	assert.Contains(t, string(body), "<path>language</path>")
}

func TestMissingLanguageFieldAsXML(t *testing.T) {
	router := newCatalogRouter(t)
	admin := client.NewWithRouter(router).WithAdminPrincipal()

	headers := map[string]string{"Accept": "application/xml"}
	status, body, _, err := admin.RawRequest(http.MethodPost, "/language",
		headers, []byte(`{"code":"en"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "<path>language</path>")
	assert.NotContains(t, string(body), "<path>code</path>")
}

func TestAccountRoleIsClosed(t *testing.T) {
	router := newCatalogRouter(t)
	admin := client.NewWithRouter(router).WithAdminPrincipal()

	status, apiErr, err := admin.Error(http.MethodPost, "/account", map[string]interface{}{
		"name":  "Jo",
		"email": "jo@mediora.example",
		"role":  "owner",
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotEmpty(t, apiErr.Details)
	assert.Equal(t, "role", apiErr.Details[0].Path)
}

func TestMovieLifecycle(t *testing.T) {
	router := newCatalogRouter(t)
	admin := client.NewWithRouter(router).WithAdminPrincipal()

	genre := map[string]interface{}{}
	_, err := admin.Post("/genre", map[string]string{"name": "Crime"}, &genre)
	require.NoError(t, err)
	language := map[string]interface{}{}
	_, err = admin.Post("/language", map[string]string{"code": "en", "language": "English"}, &language)
	require.NoError(t, err)

	movie := map[string]interface{}{}
	status, err := admin.Post("/movie", map[string]interface{}{
		"title":        "Heat",
		"genre_id":     genre["genre_id"],
		"language_id":  language["language_id"],
		"release_year": 1995,
		"rating":       8.3,
	}, &movie)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, status)

	// a junior may add movies but not remove them
	junior := client.NewWithRouter(router).WithRole(core.RoleJunior)
	status, _, err = junior.Error(http.MethodDelete, "/movie/"+movie["movie_id"].(string), nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, status)

	status, err = admin.Delete("/movie/" + movie["movie_id"].(string))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
}

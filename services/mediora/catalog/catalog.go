/*Package catalog declares the streaming catalog: the route table for the
dispatcher plus the JSON schemas validating entity payloads.

The catalog is the only place that knows which entities exist and who may
touch them. Everything below it is generic.
*/
package catalog

import (
	"embed"

	"github.com/mediora-tech/mediora/core"
	"github.com/mediora-tech/mediora/core/routes"
	"github.com/mediora-tech/mediora/core/schema"
)

//go:embed *.json
var schemaFS embed.FS

// NewValidator compiles the embedded entity schemas.
func NewValidator() (*schema.Validator, error) {
	return schema.NewValidatorFromFS(schemaFS)
}

// NewRegistry builds the route table for the catalog entities.
func NewRegistry() *routes.Registry {
	return routes.MustNewRegistry(definitions)
}

// referenceData is the matrix for genres and languages. Juniors read,
// mediors also write, seniors and admins may delete.
var referenceData = routes.PermissionMatrix{
	core.RoleJunior: routes.CanRead,
	core.RoleMedior: routes.CanRead | routes.CanCreate | routes.CanUpdate,
	core.RoleSenior: routes.All,
	core.RoleAdmin:  routes.All,
}

var definitions = []routes.RouteDefinition{
	{
		EntityKey:   "genre",
		PublicName:  "genre",
		Description: "a movie genre",
		SchemaID:    "genre",
		Permissions: referenceData,
		Filterable:  []string{"name"},
		Unique:      []string{"name"},
	},
	{
		EntityKey:   "language",
		PublicName:  "language",
		Description: "an audio or subtitle language",
		SchemaID:    "language",
		Permissions: referenceData,
		Filterable:  []string{"code", "language"},
		Unique:      []string{"code"},
	},
	{
		EntityKey:   "movie",
		PublicName:  "movie",
		Description: "a movie in the catalog",
		SchemaID:    "movie",
		Permissions: routes.PermissionMatrix{
			core.RoleJunior: routes.CanRead | routes.CanCreate,
			core.RoleMedior: routes.CanRead | routes.CanCreate | routes.CanUpdate,
			core.RoleSenior: routes.All,
			core.RoleAdmin:  routes.All,
		},
		Filterable: []string{"title"},
		References: map[string]string{
			"genre_id":    "genre",
			"language_id": "language",
		},
	},
	{
		EntityKey:   "subscription",
		PublicName:  "subscription",
		Description: "a subscription plan",
		SchemaID:    "subscription",
		Permissions: routes.PermissionMatrix{
			core.RoleJunior: routes.CanRead,
			core.RoleMedior: routes.CanRead,
			core.RoleSenior: routes.CanRead | routes.CanCreate | routes.CanUpdate,
			core.RoleAdmin:  routes.All,
		},
		Filterable: []string{"name"},
		Unique:     []string{"name"},
	},
	{
		EntityKey:   "account",
		PublicName:  "account",
		Description: "a backoffice account",
		SchemaID:    "account",
		Permissions: routes.PermissionMatrix{
			core.RoleJunior: routes.None,
			core.RoleMedior: routes.CanRead,
			core.RoleSenior: routes.CanRead | routes.CanCreate | routes.CanUpdate,
			core.RoleAdmin:  routes.All,
		},
		Filterable: []string{"email", "role"},
		Unique:     []string{"email", "api_key"},
		References: map[string]string{
			"subscription_id": "subscription",
		},
	},
}

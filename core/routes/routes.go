/*Package routes holds the static route table: the mapping from entity keys
to public route names, per-role permission matrices and validation schema
references.

The table is declarative and immutable. NewRegistry validates it once at
startup and builds lookup indexes, so request handling never scans the
table. Permission evaluation is a pure function over the registry.
*/
package routes

import (
	"fmt"

	"github.com/mediora-tech/mediora/core"
)

// VerbSet is a bitset of permitted operations for one role on one entity.
type VerbSet uint8

// the four permission bits
const (
	CanRead VerbSet = 1 << iota
	CanCreate
	CanUpdate
	CanDelete
)

// All grants every operation.
const All = CanRead | CanCreate | CanUpdate | CanDelete

// None grants nothing. Spelling it out keeps matrix literals explicit,
// which the completeness check requires anyway.
const None VerbSet = 0

// Has returns true if the set contains the permission bit for op.
// List is governed by the read bit.
func (v VerbSet) Has(op core.Operation) bool {
	switch op {
	case core.OperationRead, core.OperationList:
		return v&CanRead != 0
	case core.OperationCreate:
		return v&CanCreate != 0
	case core.OperationUpdate:
		return v&CanUpdate != 0
	case core.OperationDelete:
		return v&CanDelete != 0
	}
	return false
}

// PermissionMatrix maps every declared role to its verb set. A role
// missing from the matrix means denial, but NewRegistry refuses matrices
// with missing roles so that denial is always spelled out.
type PermissionMatrix map[core.Role]VerbSet

// RouteDefinition describes one domain entity exposed by the dispatcher.
type RouteDefinition struct {
	// EntityKey is the stable internal identifier of the entity.
	EntityKey string
	// PublicName is the URL path segment clients use. Decoupled from
	// EntityKey so routes can be renamed without breaking internal wiring.
	PublicName string
	// Description is optional documentation.
	Description string
	// SchemaID references the JSON schema that validates payloads.
	SchemaID string
	// Permissions is the role x verb matrix.
	Permissions PermissionMatrix
	// Filterable lists the fields that may appear as list query
	// parameters. They become indexed varchar columns in the store.
	Filterable []string
	// Unique lists fields under a unique constraint in the store.
	Unique []string
	// References maps a field to the entity key it points at. The store
	// enforces them as foreign keys; a dangling reference surfaces as an
	// integrity violation.
	References map[string]string
}

// Registry is the immutable route table with prebuilt indexes. Safe for
// unsynchronized concurrent reads.
type Registry struct {
	defs     []RouteDefinition
	byPublic map[string]*RouteDefinition
	byEntity map[string]*RouteDefinition
}

// NewRegistry builds a registry from the declarative table. It fails on
// duplicate keys or names, on permission matrices that do not cover every
// declared role, and on references to undeclared entities.
func NewRegistry(defs []RouteDefinition) (*Registry, error) {
	r := &Registry{
		defs:     defs,
		byPublic: make(map[string]*RouteDefinition, len(defs)),
		byEntity: make(map[string]*RouteDefinition, len(defs)),
	}
	for i := range r.defs {
		def := &r.defs[i]
		if def.EntityKey == "" || def.PublicName == "" {
			return nil, fmt.Errorf("route %d: entity key and public name are mandatory", i)
		}
		if _, ok := r.byEntity[def.EntityKey]; ok {
			return nil, fmt.Errorf("duplicate entity key %s", def.EntityKey)
		}
		if _, ok := r.byPublic[def.PublicName]; ok {
			return nil, fmt.Errorf("duplicate public name %s", def.PublicName)
		}
		for _, role := range core.Roles() {
			if _, ok := def.Permissions[role]; !ok {
				return nil, fmt.Errorf("entity %s: permission matrix has no entry for role %s", def.EntityKey, role)
			}
		}
		for _, field := range def.Filterable {
			if field == "" {
				return nil, fmt.Errorf("entity %s: empty filterable field", def.EntityKey)
			}
		}
		for _, field := range def.Unique {
			if field == "" {
				return nil, fmt.Errorf("entity %s: empty unique field", def.EntityKey)
			}
		}
		r.byEntity[def.EntityKey] = def
		r.byPublic[def.PublicName] = def
	}
	for _, def := range r.defs {
		for field, target := range def.References {
			if _, ok := r.byEntity[target]; !ok {
				return nil, fmt.Errorf("entity %s: field %s references undeclared entity %s", def.EntityKey, field, target)
			}
		}
	}
	return r, nil
}

// MustNewRegistry is NewRegistry, panicking on invalid tables. Route
// tables are static, so an invalid one is a programming error.
func MustNewRegistry(defs []RouteDefinition) *Registry {
	r, err := NewRegistry(defs)
	if err != nil {
		panic(err)
	}
	return r
}

// ByPublicName resolves a public route segment to its definition.
func (r *Registry) ByPublicName(name string) (*RouteDefinition, bool) {
	def, ok := r.byPublic[name]
	return def, ok
}

// ByEntityKey resolves an entity key to its definition.
func (r *Registry) ByEntityKey(key string) (*RouteDefinition, bool) {
	def, ok := r.byEntity[key]
	return def, ok
}

// EntityKeyForPublicName returns the entity key behind a public route name.
func (r *Registry) EntityKeyForPublicName(name string) (string, bool) {
	def, ok := r.byPublic[name]
	if !ok {
		return "", false
	}
	return def.EntityKey, true
}

// Definitions returns the route table in declaration order.
func (r *Registry) Definitions() []RouteDefinition {
	return r.defs
}

// IsAllowed decides whether role may perform op on the entity. Unknown
// entities and roles absent from the matrix deny. Pure function, no I/O.
func (r *Registry) IsAllowed(entityKey string, role core.Role, op core.Operation) bool {
	def, ok := r.byEntity[entityKey]
	if !ok {
		return false
	}
	verbs, ok := def.Permissions[role]
	if !ok {
		return false
	}
	return verbs.Has(op)
}

// IsFilterable returns true if the entity declares the field as a list
// filter.
func (def *RouteDefinition) IsFilterable(field string) bool {
	for _, f := range def.Filterable {
		if f == field {
			return true
		}
	}
	return false
}

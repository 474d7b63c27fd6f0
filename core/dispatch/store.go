package dispatch

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Object is one entity instance as handed over the wire: identifier,
// server-stamped timestamps, and the entity's fields.
type Object = map[string]interface{}

// Filter is a case-insensitive "contains" predicate on one filterable
// field.
type Filter struct {
	Field    string
	Contains string
}

// Pagination selects one page of a list. Both values are validated by the
// dispatcher before any store call; stores may assume Page >= 1, Limit >= 1.
type Pagination struct {
	Page  int
	Limit int
}

// ErrNotFound is returned by id-addressed store operations when the record
// does not exist.
var ErrNotFound = errors.New("no such record")

// IntegrityKind classifies a backend integrity violation.
type IntegrityKind int

// the integrity violation kinds
const (
	// IntegrityDuplicate is a unique-constraint violation.
	IntegrityDuplicate IntegrityKind = iota
	// IntegrityReference is a dangling or still-referenced foreign key.
	IntegrityReference
	// IntegrityOther covers any remaining constraint violation.
	IntegrityOther
)

// IntegrityError is a backend constraint failure. The dispatcher maps it
// to 422; Message is safe to show to clients.
type IntegrityError struct {
	Kind    IntegrityKind
	Message string
}

func (e *IntegrityError) Error() string {
	return e.Message
}

// Store is the persistence backend contract. The dispatcher performs at
// most one logical store operation per request; implementations provide
// their own pooling and per-operation atomicity.
type Store interface {
	// List returns one page of objects matching all filters, plus the
	// total match count. An empty result is not an error.
	List(ctx context.Context, entityKey string, filters []Filter, page Pagination) ([]Object, int, error)
	// Read fetches one object by id. Misses are ErrNotFound.
	Read(ctx context.Context, entityKey string, id uuid.UUID) (Object, error)
	// Create inserts an object with server-stamped created_at/updated_at
	// and a generated identifier, and returns the stored object.
	Create(ctx context.Context, entityKey string, obj Object) (Object, error)
	// Update merges a partial object into the stored one, restamps
	// updated_at, and returns the result. Misses are ErrNotFound.
	Update(ctx context.Context, entityKey string, id uuid.UUID, partial Object) (Object, error)
	// Delete removes one object by id. Misses are ErrNotFound.
	Delete(ctx context.Context, entityKey string, id uuid.UUID) error
}

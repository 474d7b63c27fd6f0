package dispatch

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mediora-tech/mediora/core/routes"
)

// MemStore is an in-memory persistence backend. It honours the same
// contract as the SQL backend, including unique and reference
// constraints from the route registry, and exists so the dispatcher can
// be tested without a database.
type MemStore struct {
	mutex    sync.RWMutex
	registry *routes.Registry
	records  map[string]map[uuid.UUID]Object
	lastTime time.Time
}

// NewMemStore returns an empty store for the registry's entities.
func NewMemStore(registry *routes.Registry) *MemStore {
	records := make(map[string]map[uuid.UUID]Object)
	for _, def := range registry.Definitions() {
		records[def.EntityKey] = make(map[uuid.UUID]Object)
	}
	return &MemStore{registry: registry, records: records}
}

// now returns a strictly increasing timestamp so creation order survives
// coarse clock resolution. Call with the write lock held.
func (m *MemStore) now() time.Time {
	t := time.Now().UTC()
	if !t.After(m.lastTime) {
		t = m.lastTime.Add(time.Microsecond)
	}
	m.lastTime = t
	return t
}

func cloneObject(object Object) Object {
	clone := make(Object, len(object))
	for key, value := range object {
		clone[key] = value
	}
	return clone
}

func (m *MemStore) definition(entityKey string) (*routes.RouteDefinition, error) {
	def, ok := m.registry.ByEntityKey(entityKey)
	if !ok {
		return nil, fmt.Errorf("unknown entity %s", entityKey)
	}
	return def, nil
}

// checkConstraints enforces unique fields and reference integrity the way
// the database would, reporting the first violation.
func (m *MemStore) checkConstraints(def *routes.RouteDefinition, id uuid.UUID, object Object) error {
	for _, field := range def.Unique {
		value, _ := object[field].(string)
		if value == "" {
			continue
		}
		for otherID, other := range m.records[def.EntityKey] {
			if otherID == id {
				continue
			}
			if existing, _ := other[field].(string); existing == value {
				return &IntegrityError{Kind: IntegrityDuplicate, Message: "duplicate " + field}
			}
		}
	}
	for field, targetKey := range def.References {
		raw, ok := object[field]
		if !ok || raw == nil {
			continue
		}
		value, ok := raw.(string)
		if !ok {
			return &IntegrityError{Kind: IntegrityOther, Message: "invalid reference " + field}
		}
		targetID, err := uuid.Parse(value)
		if err != nil {
			return &IntegrityError{Kind: IntegrityOther, Message: "invalid reference " + field}
		}
		if _, ok := m.records[targetKey][targetID]; !ok {
			return &IntegrityError{Kind: IntegrityReference, Message: "missing " + targetKey}
		}
	}
	return nil
}

func (m *MemStore) List(ctx context.Context, entityKey string, filters []Filter, page Pagination) ([]Object, int, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	def, err := m.definition(entityKey)
	if err != nil {
		return nil, 0, err
	}

	matched := make([]Object, 0, len(m.records[entityKey]))
	for _, object := range m.records[entityKey] {
		keep := true
		for _, filter := range filters {
			// a record without the field behaves like the empty column default
			value := ""
			if raw, ok := object[filter.Field]; ok && raw != nil {
				value = fmt.Sprint(raw)
			}
			if !strings.Contains(strings.ToLower(value), strings.ToLower(filter.Contains)) {
				keep = false
				break
			}
		}
		if keep {
			matched = append(matched, object)
		}
	}
	idField := def.EntityKey + "_id"
	sort.Slice(matched, func(i, j int) bool {
		left, _ := matched[i]["created_at"].(time.Time)
		right, _ := matched[j]["created_at"].(time.Time)
		if !left.Equal(right) {
			return left.Before(right)
		}
		return fmt.Sprint(matched[i][idField]) < fmt.Sprint(matched[j][idField])
	})

	total := len(matched)
	from := (page.Page - 1) * page.Limit
	if from > total {
		from = total
	}
	to := from + page.Limit
	if to > total {
		to = total
	}

	result := make([]Object, 0, to-from)
	for _, object := range matched[from:to] {
		result = append(result, cloneObject(object))
	}
	return result, total, nil
}

func (m *MemStore) Read(ctx context.Context, entityKey string, id uuid.UUID) (Object, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if _, err := m.definition(entityKey); err != nil {
		return nil, err
	}
	object, ok := m.records[entityKey][id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneObject(object), nil
}

func (m *MemStore) Create(ctx context.Context, entityKey string, body Object) (Object, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	def, err := m.definition(entityKey)
	if err != nil {
		return nil, err
	}
	if err := m.checkConstraints(def, uuid.Nil, body); err != nil {
		return nil, err
	}

	id := uuid.New()
	now := m.now()
	object := cloneObject(body)
	object[def.EntityKey+"_id"] = id.String()
	object["created_at"] = now
	object["updated_at"] = now
	m.records[entityKey][id] = object
	return cloneObject(object), nil
}

func (m *MemStore) Update(ctx context.Context, entityKey string, id uuid.UUID, body Object) (Object, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	def, err := m.definition(entityKey)
	if err != nil {
		return nil, err
	}
	current, ok := m.records[entityKey][id]
	if !ok {
		return nil, ErrNotFound
	}

	object := cloneObject(current)
	for key, value := range body {
		object[key] = value
	}
	object[def.EntityKey+"_id"] = id.String()
	object["created_at"] = current["created_at"]
	object["updated_at"] = m.now()

	if err := m.checkConstraints(def, id, object); err != nil {
		return nil, err
	}
	m.records[entityKey][id] = object
	return cloneObject(object), nil
}

func (m *MemStore) Delete(ctx context.Context, entityKey string, id uuid.UUID) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, err := m.definition(entityKey); err != nil {
		return err
	}
	if _, ok := m.records[entityKey][id]; !ok {
		return ErrNotFound
	}
	for _, def := range m.registry.Definitions() {
		for field, targetKey := range def.References {
			if targetKey != entityKey {
				continue
			}
			for _, object := range m.records[def.EntityKey] {
				if value, _ := object[field].(string); value == id.String() {
					return &IntegrityError{Kind: IntegrityReference, Message: def.EntityKey + " still references " + field}
				}
			}
		}
	}
	delete(m.records[entityKey], id)
	return nil
}

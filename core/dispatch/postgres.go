package dispatch

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/mediora-tech/mediora/core/csql"
	"github.com/mediora-tech/mediora/core/logger"
	"github.com/mediora-tech/mediora/core/routes"
)

// entityTable is the compiled column layout for one entity. Reference
// fields and filterable fields live in dedicated columns so the database
// can index and constrain them; everything else goes into the properties
// object.
type entityTable struct {
	def         *routes.RouteDefinition
	idColumn    string
	refColumns  []string
	charColumns []string
}

func (t *entityTable) hasColumn(field string) bool {
	for _, column := range t.refColumns {
		if column == field {
			return true
		}
	}
	for _, column := range t.charColumns {
		if column == field {
			return true
		}
	}
	return false
}

// PostgresStore is the production persistence backend. It creates one
// table per entity at startup and keeps entity data in a properties
// object plus dedicated columns for references and filterable fields.
type PostgresStore struct {
	db     *csql.DB
	tables map[string]*entityTable
}

// NewPostgresStore creates the schema for the registry's entities and
// returns a store bound to it. Tables are created in dependency order so
// foreign keys always point at existing tables.
func NewPostgresStore(db *csql.DB, registry *routes.Registry) (*PostgresStore, error) {
	s := &PostgresStore{
		db:     db,
		tables: make(map[string]*entityTable),
	}
	defs := registry.Definitions()
	for i := range defs {
		def := &defs[i]
		table := &entityTable{
			def:      def,
			idColumn: def.EntityKey + "_id",
		}
		for field := range def.References {
			table.refColumns = append(table.refColumns, field)
		}
		for _, field := range def.Filterable {
			table.charColumns = append(table.charColumns, field)
		}
		for _, field := range def.Unique {
			if !table.hasColumn(field) {
				table.charColumns = append(table.charColumns, field)
			}
		}
		s.tables[def.EntityKey] = table
	}

	if _, err := db.Exec(`CREATE extension IF NOT EXISTS "uuid-ossp";`); err != nil {
		return nil, err
	}
	if _, err := db.Exec(fmt.Sprintf(`CREATE schema IF NOT EXISTS %s;`, db.Schema)); err != nil {
		return nil, err
	}
	for _, entityKey := range dependencyOrder(registry) {
		if err := s.createTable(s.tables[entityKey]); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// dependencyOrder sorts entities so every reference target comes before
// the entity referencing it. Self references are allowed, cycles between
// entities are not.
func dependencyOrder(registry *routes.Registry) []string {
	definitions := registry.Definitions()
	done := make(map[string]bool)
	var ordered []string
	for len(ordered) < len(definitions) {
		progress := len(ordered)
		for _, def := range definitions {
			if done[def.EntityKey] {
				continue
			}
			ready := true
			for _, targetKey := range def.References {
				if targetKey != def.EntityKey && !done[targetKey] {
					ready = false
					break
				}
			}
			if ready {
				done[def.EntityKey] = true
				ordered = append(ordered, def.EntityKey)
			}
		}
		if len(ordered) == progress {
			panic("cyclic entity references")
		}
	}
	return ordered
}

// qualified returns the schema qualified, quoted table name for an
// entity.
func (s *PostgresStore) qualified(entityKey string) string {
	return s.db.Schema + "." + csql.QuoteIdentifier(entityKey)
}

func (s *PostgresStore) createTable(table *entityTable) error {
	def := table.def
	qualified := s.qualified(def.EntityKey)
	createColumns := []string{
		table.idColumn + " uuid NOT NULL DEFAULT uuid_generate_v4() PRIMARY KEY",
		"created_at timestamp NOT NULL DEFAULT now()",
		"updated_at timestamp NOT NULL DEFAULT now()",
	}
	for _, column := range table.refColumns {
		targetKey := def.References[column]
		targetID := s.tables[targetKey].idColumn
		createColumns = append(createColumns,
			fmt.Sprintf("%s uuid REFERENCES %s(%s) ON DELETE RESTRICT",
				csql.QuoteIdentifier(column), s.qualified(targetKey), targetID))
	}
	createColumns = append(createColumns, "properties json NOT NULL DEFAULT '{}'::jsonb")

	createQuery := fmt.Sprintf("CREATE table IF NOT EXISTS %s(%s);",
		qualified, strings.Join(createColumns, ", "))

	for _, column := range table.charColumns {
		createQuery += fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s varchar NOT NULL DEFAULT '';",
			qualified, csql.QuoteIdentifier(column))
	}
	createQuery += fmt.Sprintf("CREATE index IF NOT EXISTS %s ON %s(created_at);",
		"sort_index_"+def.EntityKey+"_created_at", qualified)
	for _, column := range def.Filterable {
		createQuery += fmt.Sprintf("CREATE index IF NOT EXISTS %s ON %s(%s);",
			"filterable_property_"+def.EntityKey+"_"+column, qualified, csql.QuoteIdentifier(column))
	}
	for _, column := range def.Unique {
		createQuery += fmt.Sprintf("CREATE UNIQUE index IF NOT EXISTS %s ON %s(%s) WHERE %s <> '';",
			"unique_property_"+def.EntityKey+"_"+column, qualified,
			csql.QuoteIdentifier(column), csql.QuoteIdentifier(column))
	}

	if _, err := s.db.Exec(createQuery); err != nil {
		logger.Default().WithError(err).Errorf("error while updating schema when running: %s", createQuery)
		return err
	}
	return nil
}

func (s *PostgresStore) table(entityKey string) (*entityTable, error) {
	table, ok := s.tables[entityKey]
	if !ok {
		return nil, fmt.Errorf("unknown entity %s", entityKey)
	}
	return table, nil
}

// splitFields routes body fields into dedicated columns or the properties
// object.
func (table *entityTable) splitFields(body Object) (map[string]interface{}, Object) {
	columns := make(map[string]interface{})
	properties := make(Object)
	for field, value := range body {
		if table.hasColumn(field) {
			columns[field] = value
		} else {
			properties[field] = value
		}
	}
	return columns, properties
}

func (table *entityTable) selectColumns(qualified string) string {
	columns := []string{table.idColumn}
	columns = append(columns, table.refColumns...)
	columns = append(columns, table.charColumns...)
	columns = append(columns, "properties", "created_at", "updated_at")
	quoted := make([]string, len(columns))
	for i, column := range columns {
		quoted[i] = csql.QuoteIdentifier(column)
	}
	return "SELECT " + strings.Join(quoted, ", ") + " FROM " + qualified + " "
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanObject reads one row back into an object. The properties object is
// the base; dedicated columns overwrite it so the database remains the
// authority for constrained fields.
func (table *entityTable) scanObject(row rowScanner, extra ...interface{}) (Object, error) {
	var id uuid.UUID
	refs := make([]sql.NullString, len(table.refColumns))
	chars := make([]string, len(table.charColumns))
	var propertiesJSON []byte
	var createdAt, updatedAt time.Time

	values := []interface{}{&id}
	for i := range refs {
		values = append(values, &refs[i])
	}
	for i := range chars {
		values = append(values, &chars[i])
	}
	values = append(values, &propertiesJSON, &createdAt, &updatedAt)
	values = append(values, extra...)
	if err := row.Scan(values...); err != nil {
		return nil, err
	}

	object := make(Object)
	if err := json.Unmarshal(propertiesJSON, &object); err != nil {
		return nil, err
	}
	object[table.idColumn] = id.String()
	for i, column := range table.refColumns {
		if refs[i].Valid {
			object[column] = refs[i].String
		}
	}
	for i, column := range table.charColumns {
		if chars[i] != "" {
			object[column] = chars[i]
		}
	}
	object["created_at"] = createdAt.UTC()
	object["updated_at"] = updatedAt.UTC()
	return object, nil
}

// integrity maps database failures to integrity violations the dispatcher
// can report. Unique and foreign key violations keep their kind so the
// response can tell them apart.
func integrity(err error) error {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return err
	}
	switch pqErr.Code {
	case "23505":
		return &IntegrityError{Kind: IntegrityDuplicate, Message: pqErr.Detail}
	case "23503":
		return &IntegrityError{Kind: IntegrityReference, Message: pqErr.Detail}
	case "22P02":
		return &IntegrityError{Kind: IntegrityOther, Message: pqErr.Message}
	}
	return err
}

func (s *PostgresStore) List(ctx context.Context, entityKey string, filters []Filter, page Pagination) ([]Object, int, error) {
	table, err := s.table(entityKey)
	if err != nil {
		return nil, 0, err
	}

	query := table.selectColumns(s.qualified(entityKey))
	query = strings.Replace(query, " FROM", ", count(*) OVER() AS full_count FROM", 1)
	var queryParameters []interface{}
	var where []string
	for _, filter := range filters {
		queryParameters = append(queryParameters, "%"+filter.Contains+"%")
		where = append(where, fmt.Sprintf("%s ILIKE $%d", csql.QuoteIdentifier(filter.Field), len(queryParameters)))
	}
	if len(where) > 0 {
		query += "WHERE " + strings.Join(where, " AND ") + " "
	}
	queryParameters = append(queryParameters, page.Limit, (page.Page-1)*page.Limit)
	query += fmt.Sprintf("ORDER BY created_at, %s LIMIT $%d OFFSET $%d;",
		table.idColumn, len(queryParameters)-1, len(queryParameters))

	rows, err := s.db.QueryContext(ctx, query, queryParameters...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	objects := []Object{}
	total := 0
	for rows.Next() {
		object, err := table.scanObject(rows, &total)
		if err != nil {
			return nil, 0, err
		}
		objects = append(objects, object)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	// the window count is only available on returned rows; pages past the
	// end need a separate count
	if total == 0 && page.Page > 1 {
		countQuery := "SELECT count(*) FROM " + s.qualified(entityKey) + " "
		if len(where) > 0 {
			countQuery += "WHERE " + strings.Join(where, " AND ")
		}
		if err := s.db.QueryRowContext(ctx, countQuery+";", queryParameters[:len(queryParameters)-2]...).Scan(&total); err != nil {
			return nil, 0, err
		}
	}
	return objects, total, nil
}

func (s *PostgresStore) Read(ctx context.Context, entityKey string, id uuid.UUID) (Object, error) {
	table, err := s.table(entityKey)
	if err != nil {
		return nil, err
	}
	query := table.selectColumns(s.qualified(entityKey)) + fmt.Sprintf("WHERE %s = $1;", table.idColumn)
	object, err := table.scanObject(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return object, nil
}

func (s *PostgresStore) Create(ctx context.Context, entityKey string, body Object) (Object, error) {
	table, err := s.table(entityKey)
	if err != nil {
		return nil, err
	}
	columns, properties := table.splitFields(body)
	propertiesJSON, err := json.Marshal(properties)
	if err != nil {
		return nil, err
	}

	insertColumns := []string{"properties"}
	queryParameters := []interface{}{propertiesJSON}
	for field, value := range columns {
		insertColumns = append(insertColumns, csql.QuoteIdentifier(field))
		queryParameters = append(queryParameters, value)
	}
	placeholders := make([]string, len(queryParameters))
	for i := range placeholders {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	query := fmt.Sprintf("INSERT INTO %s(%s) VALUES(%s) RETURNING %s;",
		s.qualified(entityKey),
		strings.Join(insertColumns, ", "), strings.Join(placeholders, ", "), table.idColumn)

	var id uuid.UUID
	if err := s.db.QueryRowContext(ctx, query, queryParameters...).Scan(&id); err != nil {
		return nil, integrity(err)
	}
	return s.Read(ctx, entityKey, id)
}

func (s *PostgresStore) Update(ctx context.Context, entityKey string, id uuid.UUID, body Object) (Object, error) {
	table, err := s.table(entityKey)
	if err != nil {
		return nil, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// merge the incoming fields over the stored properties inside the
	// transaction so concurrent updates do not lose fields
	var propertiesJSON []byte
	lockQuery := fmt.Sprintf("SELECT properties FROM %s WHERE %s = $1 FOR UPDATE;",
		s.qualified(entityKey), table.idColumn)
	if err := tx.QueryRowContext(ctx, lockQuery, id).Scan(&propertiesJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	properties := make(Object)
	if err := json.Unmarshal(propertiesJSON, &properties); err != nil {
		return nil, err
	}
	columns, incoming := table.splitFields(body)
	for field, value := range incoming {
		properties[field] = value
	}
	mergedJSON, err := json.Marshal(properties)
	if err != nil {
		return nil, err
	}

	assignments := []string{"properties = $1", "updated_at = now()"}
	queryParameters := []interface{}{mergedJSON}
	for field, value := range columns {
		queryParameters = append(queryParameters, value)
		assignments = append(assignments, fmt.Sprintf("%s = $%d", csql.QuoteIdentifier(field), len(queryParameters)))
	}
	queryParameters = append(queryParameters, id)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d;",
		s.qualified(entityKey), strings.Join(assignments, ", "), table.idColumn, len(queryParameters))
	if _, err := tx.ExecContext(ctx, query, queryParameters...); err != nil {
		return nil, integrity(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, integrity(err)
	}
	return s.Read(ctx, entityKey, id)
}

func (s *PostgresStore) Delete(ctx context.Context, entityKey string, id uuid.UUID) error {
	table, err := s.table(entityKey)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = $1;", s.qualified(entityKey), table.idColumn)
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return integrity(err)
	}
	count, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}

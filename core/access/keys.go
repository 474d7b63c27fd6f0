package access

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mediora-tech/mediora/core"
	"github.com/mediora-tech/mediora/core/csql"
)

// SQLKeys is a KeyLookup backed by the account table the dispatcher's
// postgres store maintains. Accounts carry their API key and role as
// filterable columns.
type SQLKeys struct {
	db    *csql.DB
	query string
}

// NewSQLKeys creates a postgres-backed API key lookup.
func NewSQLKeys(db *csql.DB) *SQLKeys {
	return &SQLKeys{
		db:    db,
		query: fmt.Sprintf(`SELECT account_id, role FROM %s."account" WHERE api_key = $1 AND api_key <> '';`, db.Schema),
	}
}

// ByAPIKey resolves the principal owning the key. Unknown keys and unknown
// roles both come back as ErrNoKey; the caller cannot tell them apart,
// which is the point.
func (k *SQLKeys) ByAPIKey(ctx context.Context, key string) (Principal, error) {
	var id uuid.UUID
	var role string
	err := k.db.QueryRowContext(ctx, k.query, key).Scan(&id, &role)
	if err == csql.ErrNoRows {
		return Principal{}, ErrNoKey
	}
	if err != nil {
		return Principal{}, err
	}
	p := Principal{ID: id, Role: core.Role(role)}
	switch p.Role {
	case core.RoleJunior, core.RoleMedior, core.RoleSenior, core.RoleAdmin:
		return p, nil
	}
	return Principal{}, ErrNoKey
}

package policy

import (
	"context"
	"database/sql"
	"fmt"

	"planbase/internal/ident"
)

// StoreMembershipResolver resolves membership relations against the shared
// read pool. It implements MembershipResolver.
type StoreMembershipResolver struct {
	db *sql.DB
}

// NewStoreMembershipResolver creates a resolver backed by db.
func NewStoreMembershipResolver(db *sql.DB) *StoreMembershipResolver {
	return &StoreMembershipResolver{db: db}
}

// ResourceIDs returns up to limit resource ids reachable by userID through
// the rule's join table. The rule identifiers were validated when the
// registry was built; they are re-checked here because this is the one place
// configuration strings become query text.
func (r *StoreMembershipResolver) ResourceIDs(ctx context.Context, rule MembershipRule, userID string, limit int) ([]string, error) {
	for _, col := range []string{rule.JoinTable, rule.UserColumn, rule.ResourceColumn} {
		if err := ident.Validate(col); err != nil {
			return nil, fmt.Errorf("membership rule identifier: %w", err)
		}
	}
	if limit <= 0 {
		limit = 1
	}

	q := "SELECT " + rule.ResourceColumn + " FROM " + rule.JoinTable +
		" WHERE " + rule.UserColumn + " = ? LIMIT ?"

	rows, err := r.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

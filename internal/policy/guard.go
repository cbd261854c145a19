package policy

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"

	"planbase/internal/domain"
	"planbase/internal/ident"
)

// Action names the operation being guarded. The current policy model does
// not distinguish read from write rights, but callers declare intent so the
// distinction can be introduced without changing call sites.
type Action string

const (
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// idColumn is the primary-key column every governed table exposes.
const idColumn = "id"

// Guard answers point questions about a single record, used before
// single-record reads and mutations where compiling a full list predicate
// would be wasteful.
type Guard struct {
	reg    *Registry
	db     *sql.DB
	logger *slog.Logger
}

// NewGuard creates a Guard backed by the read pool.
func NewGuard(reg *Registry, db *sql.DB, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{reg: reg, db: db, logger: logger}
}

// CanAccess reports whether user may perform action on the identified row.
// A missing record yields (false, nil), not an error; whether that is later
// presented as "not found" or "forbidden" is the endpoint's choice.
func (g *Guard) CanAccess(ctx context.Context, user domain.UserContext, table, recordID string, _ Action) (bool, error) {
	if err := ident.Validate(table); err != nil {
		return false, err
	}

	entry, registered := g.reg.Lookup(table)
	if !registered {
		entry = Entry{AdminRoles: []string{domain.RoleAdmin}}
	}
	if entry.HasAdminRole(user.Role) {
		return true, nil
	}

	hasOwner := entry.OwnerColumn != ""
	hasMembership := entry.Membership != nil
	if !hasOwner && !hasMembership {
		if registered {
			g.logger.Error("policy misconfigured: entry grants no owner or membership visibility",
				"table", table)
		}
		return false, nil
	}

	owner, resource, found, err := g.fetchRecord(ctx, entry, table, recordID)
	if err != nil {
		return false, domain.ErrStore(err)
	}
	if !found {
		return false, nil
	}

	if hasOwner && owner.Valid && owner.String == user.UserID {
		return true, nil
	}

	if hasMembership && resource.Valid {
		ok, err := g.isMember(ctx, *entry.Membership, user.UserID, resource.String)
		if err != nil {
			// Fail closed: a broken membership relation never widens access.
			g.logger.Error("membership check failed, denying access",
				"table", table, "error", err)
			return false, domain.ErrStore(err)
		}
		return ok, nil
	}

	return false, nil
}

// fetchRecord reads the owner and membership-resource columns for one row.
func (g *Guard) fetchRecord(ctx context.Context, entry Entry, table, recordID string) (owner, resource sql.NullString, found bool, err error) {
	cols := make([]string, 0, 2)
	dests := make([]any, 0, 2)
	if entry.OwnerColumn != "" {
		cols = append(cols, entry.OwnerColumn)
		dests = append(dests, &owner)
	}
	if entry.Membership != nil {
		cols = append(cols, entry.Membership.ResourceColumn)
		dests = append(dests, &resource)
	}

	q := "SELECT " + strings.Join(cols, ", ") + " FROM " + table + " WHERE " + idColumn + " = ?"
	err = g.db.QueryRowContext(ctx, q, recordID).Scan(dests...)
	if errors.Is(err, sql.ErrNoRows) {
		return owner, resource, false, nil
	}
	if err != nil {
		return owner, resource, false, err
	}
	return owner, resource, true, nil
}

// isMember checks for a membership row linking userID to resourceID.
func (g *Guard) isMember(ctx context.Context, rule MembershipRule, userID, resourceID string) (bool, error) {
	q := "SELECT EXISTS(SELECT 1 FROM " + rule.JoinTable +
		" WHERE " + rule.UserColumn + " = ? AND " + rule.ResourceColumn + " = ?)"
	var exists bool
	if err := g.db.QueryRowContext(ctx, q, userID, resourceID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

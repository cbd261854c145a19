package policy

import (
	"context"
	"log/slog"

	"planbase/internal/domain"
	"planbase/internal/query"
)

// Kind classifies an effective filter.
type Kind int

const (
	// Unrestricted means the caller bypasses row filtering entirely.
	Unrestricted Kind = iota
	// Restricted means rows are limited to the owner/membership predicate.
	Restricted
	// DenyAll means no row is visible to the caller.
	DenyAll
)

// EffectiveFilter is the outcome of merging caller identity with table
// policy. It is created per request, applied to exactly one query, and
// discarded.
type EffectiveFilter struct {
	Kind      Kind
	predicate query.Expr
}

// Expr returns the policy predicate to conjoin with the caller's own
// conditions: nil for Unrestricted, a constant-false predicate for DenyAll.
// DenyAll never compiles to "no predicate".
func (f EffectiveFilter) Expr() query.Expr {
	switch f.Kind {
	case Unrestricted:
		return nil
	case Restricted:
		return f.predicate
	default:
		return query.False()
	}
}

// inlineMembershipLimit is the largest membership set that is inlined as an
// IN list; beyond it the predicate falls back to the subquery form.
const inlineMembershipLimit = 64

// MembershipResolver looks up the resources a user can reach through a
// membership relation. Implementations must treat failures as authorization
// failures: the compiler converts any error into DenyAll.
type MembershipResolver interface {
	ResourceIDs(ctx context.Context, rule MembershipRule, userID string, limit int) ([]string, error)
}

// Compiler produces effective filters from the registry and caller identity.
type Compiler struct {
	reg     *Registry
	members MembershipResolver
	logger  *slog.Logger
}

// NewCompiler creates a Compiler. members may be nil only if no registered
// table declares a membership rule.
func NewCompiler(reg *Registry, members MembershipResolver, logger *slog.Logger) *Compiler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Compiler{reg: reg, members: members, logger: logger}
}

// Compile determines row visibility for user on table.
//
//  1. Unregistered tables are admin-only.
//  2. Admin roles bypass filtering.
//  3. An entry with neither owner nor membership branch denies everything;
//     if such an entry exists it is a configuration bug and is logged loudly.
//  4. Otherwise the filter is the OR of the configured branches.
//
// Every failure path, including a failed membership lookup, resolves to
// DenyAll rather than an open filter.
func (c *Compiler) Compile(ctx context.Context, user domain.UserContext, table string) EffectiveFilter {
	entry, registered := c.reg.Lookup(table)
	if !registered {
		entry = Entry{AdminRoles: []string{domain.RoleAdmin}}
	}

	if entry.HasAdminRole(user.Role) {
		return EffectiveFilter{Kind: Unrestricted}
	}

	hasOwner := entry.OwnerColumn != ""
	hasMembership := entry.Membership != nil
	if !hasOwner && !hasMembership {
		if registered {
			c.logger.Error("policy misconfigured: entry grants no owner or membership visibility",
				"table", table)
		}
		return EffectiveFilter{Kind: DenyAll}
	}

	var branches []query.Expr
	if hasOwner {
		branches = append(branches, query.Eq(entry.OwnerColumn, user.UserID))
	}
	if hasMembership {
		branch, ok := c.membershipBranch(ctx, table, *entry.Membership, user.UserID)
		if !ok {
			return EffectiveFilter{Kind: DenyAll}
		}
		branches = append(branches, branch)
	}

	return EffectiveFilter{Kind: Restricted, predicate: query.Or(branches...)}
}

// membershipBranch materializes the user's resource set as an IN list when
// it is small, falling back to the subquery form for large sets. A resolver
// failure fails closed.
func (c *Compiler) membershipBranch(ctx context.Context, table string, rule MembershipRule, userID string) (query.Expr, bool) {
	if c.members == nil {
		c.logger.Error("policy misconfigured: membership rule with no resolver", "table", table)
		return nil, false
	}

	ids, err := c.members.ResourceIDs(ctx, rule, userID, inlineMembershipLimit+1)
	if err != nil {
		c.logger.Error("membership lookup failed, denying access",
			"table", table, "join_table", rule.JoinTable, "error", err)
		return nil, false
	}

	if len(ids) > inlineMembershipLimit {
		return query.MemberOf(rule.ResourceColumn, rule.JoinTable, rule.UserColumn, rule.ResourceColumn, userID), true
	}

	vals := make([]any, len(ids))
	for i, id := range ids {
		vals[i] = id
	}
	return query.In(rule.ResourceColumn, vals), true
}

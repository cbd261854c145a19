package domain

import "context"

// RoleAdmin is the role name that bypasses row-visibility filtering on
// tables whose policy lists it. Tables without a policy entry are implicitly
// restricted to this role.
const RoleAdmin = "admin"

// UserContext carries the authenticated identity through request handling.
// It is supplied by the auth middleware on every call and never persisted.
type UserContext struct {
	UserID string
	Role   string
}

// IsZero reports whether no identity is present.
func (u UserContext) IsZero() bool { return u.UserID == "" }

type userKey struct{}

// WithUser stores a UserContext in the context.
func WithUser(ctx context.Context, u UserContext) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFromContext extracts the UserContext from the context.
func UserFromContext(ctx context.Context) (UserContext, bool) {
	u, ok := ctx.Value(userKey{}).(UserContext)
	return u, ok
}

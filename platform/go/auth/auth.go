package auth

import (
	"context"
)

type ctxKey struct{}

// Role is a coarse permission carried by the credentials.
type Role string

const (
	// RoleAdmin is a platform operator allowed to onboard and inspect tenants.
	RoleAdmin Role = "admin"
	// RoleTenantMember is any caller whose token names a tenant.
	RoleTenantMember Role = "tenant"
)

// UserCredentials is the caller identity established by the JWT middleware.
// TenantID is the tenant the caller acts for; platform admins usually have none.
type UserCredentials struct {
	Id            string
	Email         string
	EmailVerified bool
	Name          *string
	IsAdmin       bool
	TenantID      *string
}

// HasRole reports whether the credentials grant role.
func (c *UserCredentials) HasRole(role Role) bool {
	if c == nil {
		return false
	}
	switch role {
	case RoleAdmin:
		return c.IsAdmin
	case RoleTenantMember:
		return c.TenantID != nil && *c.TenantID != ""
	default:
		return false
	}
}

// UserFromContext returns the credentials stored by WithUser.
func UserFromContext(ctx context.Context) (*UserCredentials, bool) {
	u, ok := ctx.Value(ctxKey{}).(*UserCredentials)
	return u, ok && u != nil
}

// WithUser stores creds on ctx. The JWT middleware uses it; tests and the CLI may too.
func WithUser(ctx context.Context, creds *UserCredentials) context.Context {
	return context.WithValue(ctx, ctxKey{}, creds)
}

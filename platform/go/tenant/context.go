package tenant

import (
	"context"

	"github.com/google/uuid"
)

// StoreDescriptor is the connection information for one tenant's isolated store.
// It is produced by the store allocator and treated as an immutable value afterwards;
// re-provisioning yields a new descriptor instead of mutating an existing one.
type StoreDescriptor struct {
	TenantID  uuid.UUID
	StoreName string // PostgreSQL schema holding the tenant data
	RoleName  string // role assumed with SET LOCAL ROLE for every tenant transaction
	Host      string
	Port      uint16
	Database  string
}

// Valid reports whether the descriptor carries enough information to open a tenant scope.
func (d StoreDescriptor) Valid() bool {
	return d.TenantID != uuid.Nil && d.StoreName != "" && d.RoleName != ""
}

// Session binds the current request to exactly one tenant store.
// It lives on the request context and is never cached beyond it.
type Session struct {
	TenantID   uuid.UUID
	Descriptor StoreDescriptor
}

type ctxKey string

const sessionKey ctxKey = "PALMYRA_TENANT_SESSION"

// WithSession returns a derived context carrying the tenant Session.
func WithSession(ctx context.Context, session Session) context.Context {
	return context.WithValue(ctx, sessionKey, session)
}

// FromContext extracts the tenant Session and a boolean indicating presence.
func FromContext(ctx context.Context) (Session, bool) {
	v := ctx.Value(sessionKey)
	if v == nil {
		return Session{}, false
	}

	session, ok := v.(Session)
	return session, ok
}

// Package requesttrace carries who triggered an operation, so provisioning records and logs can name the actor.
package requesttrace

import (
	"context"
	"errors"

	"go.uber.org/zap"

	platformauth "github.com/zenGate-Global/palmyra-tenancy/platform/go/auth"
)

type contextKey string

const ctxAuditInfo contextKey = "PALMYRA_REQUEST_TRACE"

// ActorKind represents who initiated a request.
type ActorKind string

const (
	ActorKindUser      ActorKind = "user"
	ActorKindAnonymous ActorKind = "anonymous"
	// ActorKindSystem covers the CLI and background jobs.
	ActorKindSystem ActorKind = "system"
)

// AuditInfo is the request-scoped actor. UserID is set only for ActorKindUser.
// TenantID is the tenant the caller acts for, when the credentials carry one.
type AuditInfo struct {
	ActorKind ActorKind
	UserID    *string
	TenantID  *string
	RequestID string
	IsAdmin   bool
}

// Actor is the value stamped into audit columns: the user id, or the actor kind when there is no user.
func (a AuditInfo) Actor() string {
	if a.UserID != nil && *a.UserID != "" {
		return *a.UserID
	}
	if a.ActorKind == "" {
		return string(ActorKindAnonymous)
	}
	return string(a.ActorKind)
}

// Fields renders the audit info as log fields.
func (a AuditInfo) Fields() []zap.Field {
	fields := []zap.Field{zap.String("actor_kind", string(a.ActorKind))}
	if a.UserID != nil && *a.UserID != "" {
		fields = append(fields, zap.String("actor_id", *a.UserID))
	}
	if a.TenantID != nil && *a.TenantID != "" {
		fields = append(fields, zap.String("actor_tenant_id", *a.TenantID))
	}
	if a.IsAdmin {
		fields = append(fields, zap.Bool("actor_admin", true))
	}
	return fields
}

// IntoContext stores the AuditInfo in the provided context.
func IntoContext(ctx context.Context, audit AuditInfo) context.Context {
	return context.WithValue(ctx, ctxAuditInfo, audit)
}

// FromContext extracts the AuditInfo from context, returning false when not present.
func FromContext(ctx context.Context) (AuditInfo, bool) {
	if ctx == nil {
		return AuditInfo{}, false
	}
	audit, ok := ctx.Value(ctxAuditInfo).(AuditInfo)
	return audit, ok
}

// FromContextOrAnonymous returns the AuditInfo stored on the context, or an anonymous record when absent.
func FromContextOrAnonymous(ctx context.Context) AuditInfo {
	if audit, ok := FromContext(ctx); ok {
		return audit
	}
	return Anonymous("")
}

// FromCredentials builds an AuditInfo for an authenticated caller.
func FromCredentials(creds *platformauth.UserCredentials, requestID string) (AuditInfo, error) {
	if creds == nil {
		return AuditInfo{}, errors.New("credentials are required to build audit info")
	}
	if creds.Id == "" {
		return AuditInfo{}, errors.New("user id is required to build audit info")
	}

	id := creds.Id
	return AuditInfo{
		ActorKind: ActorKindUser,
		UserID:    &id,
		TenantID:  creds.TenantID,
		RequestID: requestID,
		IsAdmin:   creds.IsAdmin,
	}, nil
}

// Anonymous builds an AuditInfo for unauthenticated requests.
func Anonymous(requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindAnonymous, RequestID: requestID}
}

// System builds an AuditInfo for CLI and background operations.
func System(requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindSystem, RequestID: requestID}
}

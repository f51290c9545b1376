package auth

import (
	"errors"

	"github.com/google/uuid"
)

// Claims is a decoded token payload.
type Claims map[string]any

// ExtractFunc converts claims into UserCredentials.
type ExtractFunc func(claims Claims) (*UserCredentials, error)

var subjectClaims = []string{"uid", "user_id", "sub"}

// DefaultCredentialExtractor converts standard claims into UserCredentials.
func DefaultCredentialExtractor(claims Claims) (*UserCredentials, error) {
	if claims == nil {
		return nil, errors.New("missing claims")
	}

	var id string
	for _, key := range subjectClaims {
		if id = claims.str(key); id != "" {
			break
		}
	}
	if id == "" {
		return nil, errors.New("token has no subject")
	}

	return &UserCredentials{
		Id:            id,
		Email:         claims.str("email"),
		EmailVerified: claims.flag("email_verified"),
		Name:          claims.optional("name"),
		IsAdmin:       claims.flag("isAdmin"),
		TenantID:      claims.tenantID(),
	}, nil
}

// CanonicalTenantExtractor wraps next and rewrites UUID tenant claims to their canonical lowercase form.
// Non-UUID tenants are kept as-is and left for the tenant session middleware to reject.
func CanonicalTenantExtractor(next ExtractFunc) ExtractFunc {
	if next == nil {
		next = DefaultCredentialExtractor
	}
	return func(claims Claims) (*UserCredentials, error) {
		creds, err := next(claims)
		if err != nil {
			return nil, err
		}
		if creds.TenantID != nil {
			if tid, parseErr := uuid.Parse(*creds.TenantID); parseErr == nil {
				canonical := tid.String()
				creds.TenantID = &canonical
			}
		}
		return creds, nil
	}
}

func (c Claims) str(key string) string {
	s, _ := c[key].(string)
	return s
}

func (c Claims) flag(key string) bool {
	b, _ := c[key].(bool)
	return b
}

func (c Claims) optional(key string) *string {
	if s := c.str(key); s != "" {
		return &s
	}
	return nil
}

// tenantID prefers the tenantId custom claim and falls back to the Firebase tenant.
func (c Claims) tenantID() *string {
	if tenant := c.optional("tenantId"); tenant != nil {
		return tenant
	}
	fb, ok := c["firebase"].(map[string]any)
	if !ok {
		return nil
	}
	if tenant, _ := fb["tenant"].(string); tenant != "" {
		return &tenant
	}
	return nil
}

package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"
)

const bearerPrefix = "Bearer "

// VerifyFunc validates the incoming token and returns its claims.
type VerifyFunc func(ctx context.Context, token string) (Claims, error)

// JWT verifies bearer tokens and stores the resulting credentials on the request context.
// Requests without a bearer token pass through anonymously; role checks happen in RequireRole.
func JWT(verify VerifyFunc, extract ExtractFunc) func(http.Handler) http.Handler {
	if verify == nil {
		panic("auth.JWT: verify func must not be nil")
	}
	if extract == nil {
		extract = DefaultCredentialExtractor
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, found := ExtractJWTToken(r)
			if r.Method == http.MethodOptions || !found {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := verify(r.Context(), token)
			if err != nil {
				reject(w, http.StatusUnauthorized, "invalid_token", "")
				return
			}
			creds, err := extract(claims)
			if err != nil {
				reject(w, http.StatusUnauthorized, "invalid_token", "invalid claims")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), creds)))
		})
	}
}

// RequireRole rejects requests whose credentials do not grant role.
func RequireRole(role Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			creds, ok := UserFromContext(r.Context())
			if !ok {
				reject(w, http.StatusUnauthorized, "", "")
				return
			}
			if !creds.HasRole(role) {
				reject(w, http.StatusForbidden, "insufficient_scope", string(role)+" role required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ExtractJWTToken returns the bearer token of the Authorization header.
func ExtractJWTToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	// Scheme match is case-insensitive.
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}

// FirebaseTokenVerifier validates ID tokens via Firebase Auth and flattens uid, subject and tenant into the claims.
func FirebaseTokenVerifier(fbAuth *firebaseauth.Client) VerifyFunc {
	return func(ctx context.Context, token string) (Claims, error) {
		t, err := fbAuth.VerifyIDToken(ctx, token)
		if err != nil {
			return nil, err
		}

		claims := make(Claims, len(t.Claims)+2)
		for k, v := range t.Claims {
			claims[k] = v
		}
		claims["uid"] = t.UID
		claims["sub"] = t.Subject
		if tenant := t.Firebase.Tenant; tenant != "" {
			fb, _ := claims["firebase"].(map[string]any)
			if fb == nil {
				fb = map[string]any{}
			}
			fb["tenant"] = tenant
			claims["firebase"] = fb
		}
		return claims, nil
	}
}

// UnsignedTokenVerifier decodes the JWT payload without checking the signature.
// Only for local development.
func UnsignedTokenVerifier() VerifyFunc {
	return func(_ context.Context, token string) (Claims, error) {
		parts := strings.Split(token, ".")
		if len(parts) < 2 {
			return nil, errors.New("invalid token format")
		}
		decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
		if err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		claims := Claims{}
		if err := json.Unmarshal(decoded, &claims); err != nil {
			return nil, fmt.Errorf("unmarshal claims: %w", err)
		}
		return claims, nil
	}
}

func reject(w http.ResponseWriter, status int, code, description string) {
	challenge := `Bearer realm="palmyra-tenancy"`
	if code != "" {
		challenge += fmt.Sprintf(`, error=%q`, code)
	}
	if description != "" {
		challenge += fmt.Sprintf(`, error_description=%q`, description)
	}
	w.Header().Set("WWW-Authenticate", challenge)
	http.Error(w, strings.ToLower(http.StatusText(status)), status)
}

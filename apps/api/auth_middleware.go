package main

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	platformauth "github.com/zenGate-Global/palmyra-tenancy/platform/go/auth"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/gcp"
)

// buildAuthMiddleware constructs the JWT middleware for the configured provider.
func buildAuthMiddleware(ctx context.Context, cfg config, logger *zap.Logger) func(http.Handler) http.Handler {
	var verify platformauth.VerifyFunc
	switch cfg.AuthProvider {
	case "firebase":
		fbAuth, err := gcp.InitFirebaseAuth(ctx, gcp.FirebaseConfig{
			ProjectID:       cfg.FirebaseProjectID,
			CredentialsFile: cfg.FirebaseCredentials,
		})
		if err != nil {
			logger.Fatal("init firebase auth", zap.Error(err))
		}
		verify = platformauth.FirebaseTokenVerifier(fbAuth)
	case "dev":
		logger.Warn("using dev auth middleware; do not use in production")
		verify = platformauth.UnsignedTokenVerifier()
	default:
		logger.Fatal("unsupported auth provider", zap.String("provider", cfg.AuthProvider))
	}

	return platformauth.JWT(verify, platformauth.CanonicalTenantExtractor(nil))
}

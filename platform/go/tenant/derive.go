package tenant

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// StorePrefix is the fixed prefix of every tenant store name.
const StorePrefix = "tenant_"

var storeNamePattern = regexp.MustCompile(`^tenant_[0-9a-f]{32}$`)

// BuildStoreName derives the store name from the tenant id: `tenant_<32 hex chars>`.
// The mapping is deterministic and injective, so no global naming registry is needed.
func BuildStoreName(id uuid.UUID) string {
	return StorePrefix + strings.ReplaceAll(id.String(), "-", "")
}

// BuildRoleName returns the role that owns a tenant store.
func BuildRoleName(storeName string) string {
	return storeName + "_role"
}

// IsStoreName reports whether name has the shape produced by BuildStoreName.
func IsStoreName(name string) bool {
	return storeNamePattern.MatchString(name)
}

// NormalizeName folds a company name into the key used for uniqueness checks.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

var envKeyPattern = regexp.MustCompile(`[^a-z0-9_]+`)

// AdminSchemaName returns the registry schema of an environment, e.g. "dev" -> "dev_tenancy_admin".
// The result never matches IsStoreName.
func AdminSchemaName(envKey string) string {
	key := envKeyPattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(envKey)), "_")
	key = strings.Trim(key, "_")
	if key == "" {
		return "tenancy_admin"
	}
	return key + "_tenancy_admin"
}

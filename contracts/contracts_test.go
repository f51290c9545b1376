package contracts

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTenantsContractLoads(t *testing.T) {
	doc, err := Tenants()
	require.NoError(t, err)

	for _, path := range []string{"/admin/tenants", "/admin/tenants/{tenantId}", "/admin/system/resources", "/tenant/session"} {
		require.NotNil(t, doc.Paths.Find(path), path)
	}
	require.Contains(t, doc.Components.SecuritySchemes, "bearerAuth")

	plan := doc.Components.Schemas["BillingPlan"].Value
	require.Len(t, plan.Enum, 4)
}

func TestLoadUnknown(t *testing.T) {
	_, err := Load("nope")
	require.Error(t, err)
	require.Equal(t, []string{"tenants"}, Names())
}

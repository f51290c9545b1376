package sqlassets

import _ "embed"

// CompaniesSQL creates the tenant registry inside the admin schema.
//
//go:embed schema/platform/companies.sql
var CompaniesSQL string

// BaselineSQL is applied to every freshly allocated tenant store.
//
//go:embed schema/tenant_space/baseline.sql
var BaselineSQL string

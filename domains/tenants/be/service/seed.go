package service

import (
	"strings"

	"github.com/google/uuid"
)

// adminUserID derives the seeded admin id so that re-running the seed on the same tenant is stable.
func adminUserID(c Company) uuid.UUID {
	return uuid.NewSHA1(c.ID, []byte(strings.ToLower(c.AdminEmail)))
}

// seedScript renders the per-tenant inserts applied right after the baseline schema.
// actor is recorded in the tenant audit log.
func seedScript(c Company, actor string) string {
	var b strings.Builder

	b.WriteString("INSERT INTO company_settings (setting_key, setting_value) VALUES\n")
	b.WriteString("    ('tenant_id', " + quoteLiteral(c.ID.String()) + "),\n")
	b.WriteString("    ('company_name', " + quoteLiteral(c.Name) + "),\n")
	b.WriteString("    ('billing_plan', " + quoteLiteral(string(c.BillingPlan)) + ");\n")

	b.WriteString("INSERT INTO users (user_id, email, full_name, is_admin) VALUES (")
	b.WriteString(quoteLiteral(adminUserID(c).String()) + ", " + quoteLiteral(c.AdminEmail) + ", '', TRUE);\n")

	rows := make([]string, 0, len(c.Modules)+len(c.Submodules))
	for _, m := range c.Modules {
		rows = append(rows, "("+quoteLiteral(m)+", '')")
	}
	for _, s := range c.Submodules {
		parent, name, _ := strings.Cut(s, ".")
		rows = append(rows, "("+quoteLiteral(parent)+", "+quoteLiteral(name)+")")
	}
	if len(rows) > 0 {
		b.WriteString("INSERT INTO enabled_modules (module_name, submodule) VALUES\n    ")
		b.WriteString(strings.Join(rows, ",\n    "))
		b.WriteString(";\n")
	}

	b.WriteString("INSERT INTO audit_log (actor, action, detail) VALUES (" + quoteLiteral(actor) + ", 'tenant.provisioned', ")
	b.WriteString(quoteLiteral("plan=" + string(c.BillingPlan)) + ");\n")
	return b.String()
}

// quoteLiteral renders s as a standard-conforming SQL string literal.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

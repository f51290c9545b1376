package service

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ProvisioningRequest is the onboarding input. The service works on a normalized copy.
type ProvisioningRequest struct {
	CompanyName string      `json:"companyName" validate:"required,max=200"`
	AdminEmail  string      `json:"adminEmail" validate:"required,email,max=320"`
	BillingPlan BillingPlan `json:"billingPlan" validate:"required,billingplan"`
	Modules     []string    `json:"modules" validate:"dive,modulename"`
	Submodules  []string    `json:"submodules" validate:"dive,submodulename"`
}

var (
	moduleNamePattern    = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,63}$`)
	submoduleNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,63}\.[A-Za-z][A-Za-z0-9_]{0,63}$`)
)

// BillingPlans lists the accepted plans in display order.
var BillingPlans = []BillingPlan{PlanFree, PlanStandard, PlanProfessional, PlanEnterprise}

// ValidationError lists the rejected fields of a ProvisioningRequest.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], ", "))
	}
	return "invalid provisioning request: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

type requestValidator struct {
	v *validator.Validate
}

func newRequestValidator() *requestValidator {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("billingplan", func(fl validator.FieldLevel) bool {
		plan := BillingPlan(fl.Field().String())
		for _, p := range BillingPlans {
			if p == plan {
				return true
			}
		}
		return false
	})
	_ = v.RegisterValidation("modulename", func(fl validator.FieldLevel) bool {
		return moduleNamePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("submodulename", func(fl validator.FieldLevel) bool {
		return submoduleNamePattern.MatchString(fl.Field().String())
	})
	v.RegisterStructValidation(submoduleParentValidation, ProvisioningRequest{})
	return &requestValidator{v: v}
}

// submoduleParentValidation requires the parent module of every submodule to be enabled.
func submoduleParentValidation(sl validator.StructLevel) {
	req := sl.Current().Interface().(ProvisioningRequest)

	enabled := make(map[string]struct{}, len(req.Modules))
	for _, m := range req.Modules {
		enabled[m] = struct{}{}
	}
	for i, sub := range req.Submodules {
		parent, _, ok := strings.Cut(sub, ".")
		if !ok {
			continue
		}
		if _, ok := enabled[parent]; !ok {
			field := fmt.Sprintf("submodules[%d]", i)
			sl.ReportError(sub, field, field, "parentmodule", parent)
		}
	}
}

// Validate normalizes req and checks it. The returned request is safe to persist.
func (rv *requestValidator) Validate(req ProvisioningRequest) (ProvisioningRequest, error) {
	normalized := ProvisioningRequest{
		CompanyName: strings.TrimSpace(req.CompanyName),
		AdminEmail:  strings.TrimSpace(req.AdminEmail),
		BillingPlan: BillingPlan(strings.TrimSpace(string(req.BillingPlan))),
		Modules:     dedupe(req.Modules),
		Submodules:  dedupe(req.Submodules),
	}

	err := rv.v.Struct(normalized)
	if err == nil {
		return normalized, nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return ProvisioningRequest{}, err
	}

	out := &ValidationError{}
	for _, fe := range fieldErrs {
		field := fe.Field()
		if idx := strings.IndexByte(field, '['); idx > 0 {
			field = field[:idx]
		}
		out.add(field, describeFieldError(fe))
	}
	return ProvisioningRequest{}, out
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "billingplan":
		names := make([]string, 0, len(BillingPlans))
		for _, p := range BillingPlans {
			names = append(names, string(p))
		}
		return "must be one of " + strings.Join(names, ", ")
	case "modulename":
		return fmt.Sprintf("%q is not a valid module name", fe.Value())
	case "submodulename":
		return fmt.Sprintf("%q must have the form <Module>.<Name>", fe.Value())
	case "parentmodule":
		return fmt.Sprintf("%q requires module %q to be enabled", fe.Value(), fe.Param())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

// dedupe trims entries and drops repeats, keeping first-seen order.
func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

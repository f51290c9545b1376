package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/domains/tenants/be/service"
	platformlogging "github.com/zenGate-Global/palmyra-tenancy/platform/go/logging"
	platformmiddleware "github.com/zenGate-Global/palmyra-tenancy/platform/go/middleware"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// Service is the subset of the tenants service used over HTTP.
type Service interface {
	Provision(ctx context.Context, req service.ProvisioningRequest) service.ProvisioningResult
	Get(ctx context.Context, id uuid.UUID) (service.Company, error)
	List(ctx context.Context, opts service.ListOptions) (service.ListResult, error)
}

// StoreProbe checks that the session's tenant store answers.
type StoreProbe interface {
	SessionSchema(ctx context.Context) (string, error)
}

// Handler exposes tenant onboarding and inspection.
type Handler struct {
	svc    Service
	probe  StoreProbe
	logger *zap.Logger
}

// Option customizes a Handler.
type Option func(*Handler)

// WithStoreProbe makes GET /tenant/session round-trip to the tenant store.
func WithStoreProbe(p StoreProbe) Option {
	return func(h *Handler) { h.probe = p }
}

// New constructs a Handler instance.
func New(svc Service, logger *zap.Logger, opts ...Option) *Handler {
	if svc == nil {
		panic("tenants service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	h := &Handler{svc: svc, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// AdminRoutes mounts the operator endpoints. Callers gate r on the admin role.
func (h *Handler) AdminRoutes(r chi.Router) {
	r.Post("/admin/tenants", h.Provision)
	r.Get("/admin/tenants", h.List)
	r.Get("/admin/tenants/{tenantId}", h.Get)
}

// TenantRoutes mounts the data plane endpoints. Callers install the tenant session middleware on r.
func (h *Handler) TenantRoutes(r chi.Router) {
	r.Get("/tenant/session", h.Session)
}

// Tenant is the operator view of a registry entry.
type Tenant struct {
	TenantID        uuid.UUID           `json:"tenantId"`
	CompanyName     string              `json:"companyName"`
	AdminEmail      string              `json:"adminEmail"`
	BillingPlan     service.BillingPlan `json:"billingPlan"`
	Modules         []string            `json:"modules"`
	Submodules      []string            `json:"submodules"`
	State           service.State       `json:"state"`
	StoreName       *string             `json:"storeName"`
	CleanupRequired bool                `json:"cleanupRequired"`
	LastError       *string             `json:"lastError"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

// TenantList is a page of tenants.
type TenantList struct {
	Items      []Tenant `json:"items"`
	Page       int      `json:"page"`
	PageSize   int      `json:"pageSize"`
	TotalItems int      `json:"totalItems"`
	TotalPages int      `json:"totalPages"`
}

// SessionView is the body of GET /tenant/session.
type SessionView struct {
	TenantID  uuid.UUID `json:"tenantId"`
	StoreName string    `json:"storeName"`
	Schema    string    `json:"schema,omitempty"`
}

// Provision implements POST /admin/tenants
func (h *Handler) Provision(w http.ResponseWriter, r *http.Request) {
	var req service.ProvisioningRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		msg := "invalid request body: " + err.Error()
		writeJSON(w, http.StatusBadRequest, service.ProvisioningResult{Error: &msg})
		return
	}

	res := h.svc.Provision(r.Context(), req)
	if res.Success {
		w.Header().Set("Location", fmt.Sprintf("/api/v1/admin/tenants/%s", res.CompanyID))
		writeJSON(w, http.StatusCreated, res)
		return
	}

	status := statusForKind(res.Kind)
	if status >= http.StatusInternalServerError {
		logger := platformlogging.FromRequest(r, h.logger)
		fields := []zap.Field{zap.String("kind", string(res.Kind)), zap.Bool("cleanup_required", res.CleanupRequired)}
		if res.RecordID != nil {
			fields = append(fields, zap.String("tenant_id", res.RecordID.String()))
		}
		logger.Warn("tenant provisioning failed", fields...)
	}
	writeJSON(w, status, res)
}

// ProvisionRejection renders contract rejections of POST /admin/tenants as a failed
// ProvisioningResult, so every provisioning failure shares one body shape.
// It is a middleware.RejectionRenderer.
func ProvisionRejection(w http.ResponseWriter, r *http.Request, message string, status int) bool {
	if r.Method != http.MethodPost || status != http.StatusBadRequest || !strings.HasSuffix(strings.TrimRight(r.URL.Path, "/"), "/admin/tenants") {
		return false
	}
	msg := "invalid provisioning request: " + message
	writeJSON(w, status, service.ProvisioningResult{Error: &msg})
	return true
}

// Get implements GET /admin/tenants/{tenantId}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "tenantId"))
	if err != nil {
		h.problem(w, http.StatusBadRequest, "Invalid tenant id", err.Error(), platformmiddleware.ProblemTypeValidation, nil)
		return
	}

	c, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.problemForError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTenant(c))
}

// List implements GET /admin/tenants
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	opts, errs := buildListOptions(r)
	if len(errs) > 0 {
		h.problem(w, http.StatusBadRequest, "Invalid query", "invalid list parameters", platformmiddleware.ProblemTypeValidation, errs)
		return
	}

	result, err := h.svc.List(r.Context(), opts)
	if err != nil {
		h.problemForError(w, r, err)
		return
	}

	items := make([]Tenant, 0, len(result.Companies))
	for _, c := range result.Companies {
		items = append(items, toTenant(c))
	}
	writeJSON(w, http.StatusOK, TenantList{
		Items:      items,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalItems: result.TotalItems,
		TotalPages: result.TotalPages,
	})
}

// Session implements GET /tenant/session
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	session, ok := tenant.FromContext(r.Context())
	if !ok {
		h.problem(w, http.StatusUnauthorized, "Unauthorized", "tenant session required", platformmiddleware.ProblemTypeUnauthorize, nil)
		return
	}
	view := SessionView{TenantID: session.TenantID, StoreName: session.Descriptor.StoreName}
	if h.probe != nil {
		schema, err := h.probe.SessionSchema(r.Context())
		if err != nil {
			platformlogging.FromRequest(r, h.logger).Error("tenant store probe failed",
				zap.String("tenant_id", session.TenantID.String()), zap.Error(err))
			h.problem(w, http.StatusServiceUnavailable, "Tenant store unavailable", "tenant store did not answer", platformmiddleware.ProblemTypeUpstream, nil)
			return
		}
		view.Schema = schema
	}
	writeJSON(w, http.StatusOK, view)
}

func statusForKind(kind service.Kind) int {
	switch kind {
	case service.KindValidation:
		return http.StatusBadRequest
	case service.KindConflict:
		return http.StatusConflict
	case service.KindAllocation, service.KindSchema:
		return http.StatusBadGateway
	case service.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) problemForError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		h.problem(w, http.StatusNotFound, "Not found", err.Error(), platformmiddleware.ProblemTypeNotFound, nil)
	default:
		platformlogging.FromRequest(r, h.logger).Error("tenant operation failed", zap.Error(err))
		h.problem(w, http.StatusInternalServerError, "Internal error", "internal error", platformmiddleware.ProblemTypeInternal, nil)
	}
}

func (h *Handler) problem(w http.ResponseWriter, status int, title, detail, problemType string, errs map[string][]string) {
	platformmiddleware.WriteProblem(w, platformmiddleware.Problem{
		Type:   problemType,
		Title:  title,
		Status: status,
		Detail: detail,
		Errors: errs,
	})
}

func buildListOptions(r *http.Request) (service.ListOptions, map[string][]string) {
	opts := service.ListOptions{Page: 1, PageSize: 20}
	errs := map[string][]string{}
	q := r.URL.Query()

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			errs["page"] = append(errs["page"], "must be a positive integer")
		} else {
			opts.Page = n
		}
	}
	if v := q.Get("pageSize"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			errs["pageSize"] = append(errs["pageSize"], "must be a positive integer")
		} else {
			opts.PageSize = n
		}
	}
	if v := q.Get("state"); v != "" {
		state, ok := service.ParseState(v)
		if !ok {
			errs["state"] = append(errs["state"], "must be one of pending, active, failed")
		} else {
			opts.State = &state
		}
	}
	return opts, errs
}

func toTenant(c service.Company) Tenant {
	modules := c.Modules
	if modules == nil {
		modules = []string{}
	}
	submodules := c.Submodules
	if submodules == nil {
		submodules = []string{}
	}
	return Tenant{
		TenantID:        c.ID,
		CompanyName:     c.Name,
		AdminEmail:      c.AdminEmail,
		BillingPlan:     c.BillingPlan,
		Modules:         modules,
		Submodules:      submodules,
		State:           c.State,
		StoreName:       c.StoreName,
		CleanupRequired: c.CleanupRequired,
		LastError:       c.LastError,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/logging"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/notify"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/requesttrace"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// Kind classifies a provisioning failure.
type Kind string

const (
	KindNone       Kind = ""
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindAllocation Kind = "allocation"
	KindSchema     Kind = "schema"
	KindTimeout    Kind = "timeout"
	// KindInternal covers registry failures that are none of the above.
	KindInternal Kind = "internal"
)

// Phase names a step of the provisioning flow.
type Phase string

const (
	PhaseValidating      Phase = "validating"
	PhaseCreatingRecord  Phase = "creating_record"
	PhaseAllocatingStore Phase = "allocating_store"
	PhaseApplyingSchema  Phase = "applying_schema"
	PhaseFinalizing      Phase = "finalizing"
)

// ProvisioningResult is the consolidated outcome of Provision.
// Either Success is true with CompanyID and TenantDBName set, or Error holds the reason.
type ProvisioningResult struct {
	Success      bool       `json:"success"`
	Error        *string    `json:"error"`
	CompanyID    *uuid.UUID `json:"companyId"`
	TenantDBName *string    `json:"tenantDbName"`
	// Errors lists the rejected fields of a validation failure.
	Errors map[string][]string `json:"errors,omitempty"`

	Kind Kind `json:"-"`
	// Validation holds the rejected fields when Kind is KindValidation.
	Validation *ValidationError `json:"-"`
	// RecordID points at the failed tenant record, when one was created.
	RecordID        *uuid.UUID `json:"-"`
	PartialSchema   bool       `json:"-"`
	CleanupRequired bool       `json:"-"`
}

func failedResult(kind Kind, msg string) ProvisioningResult {
	return ProvisioningResult{Success: false, Error: &msg, Kind: kind}
}

// Provision onboards a company: validate, record as pending, allocate a store, apply the
// baseline schema and seed data, then mark the tenant active. Any failure after the record
// exists marks it failed, releases what was allocated and is reported in the result.
//
// Cancelling ctx only has an effect before store allocation starts; from then on the flow
// runs to completion bounded by the configured timeouts.
func (s *Service) Provision(ctx context.Context, req ProvisioningRequest) ProvisioningResult {
	logger := s.loggerFor(ctx)

	done := s.phase(logger, PhaseValidating)
	valid, err := s.validator.Validate(req)
	done()
	if err != nil {
		logger.Info("provisioning request rejected", zap.Error(err))
		s.metrics.RecordOutcome(string(KindValidation))
		res := failedResult(KindValidation, err.Error())
		var verr *ValidationError
		if errors.As(err, &verr) {
			res.Validation = verr
			res.Errors = verr.Fields
		}
		return res
	}

	now := s.now()
	company := Company{
		ID:             uuid.New(),
		Name:           valid.CompanyName,
		NormalizedName: tenant.NormalizeName(valid.CompanyName),
		AdminEmail:     valid.AdminEmail,
		BillingPlan:    valid.BillingPlan,
		Modules:        valid.Modules,
		Submodules:     valid.Submodules,
		State:          StatePending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	logger = logger.With(zap.String("tenant_id", company.ID.String()), zap.String("company_name", company.Name))

	done = s.phase(logger, PhaseCreatingRecord)
	created, err := s.repo.Create(ctx, company)
	done()
	if err != nil {
		if errors.Is(err, ErrConflictName) {
			logger.Info("company already provisioned or in progress")
			s.metrics.RecordOutcome(string(KindConflict))
			return failedResult(KindConflict, fmt.Sprintf("company %q is already provisioned or being provisioned", company.Name))
		}
		logger.Error("could not record tenant", zap.Error(err))
		s.metrics.RecordOutcome(string(KindInternal))
		return failedResult(KindInternal, "could not record tenant: "+err.Error())
	}
	company = created

	// The record exists from here on, so every exit must leave it active or failed.
	detached := context.WithoutCancel(ctx)

	if err := ctx.Err(); err != nil {
		kind := KindAllocation
		if errors.Is(err, context.DeadlineExceeded) {
			kind = KindTimeout
		}
		return s.fail(detached, logger, company, kind, "provisioning cancelled before store allocation", Failure{})
	}

	done = s.phase(logger, PhaseAllocatingStore)
	desc, err := s.allocate(detached, company)
	done()
	if err != nil {
		kind, msg := classifyAllocation(err, s.cfg.AllocateTimeout)
		failure := Failure{Reason: msg}
		if kind == KindTimeout {
			// The store may have been created right before the deadline.
			failure = s.releaseAfterTimeout(detached, logger, company, failure)
		}
		return s.fail(detached, logger, company, kind, msg, failure)
	}
	logger = logger.With(zap.String("store_name", desc.StoreName))

	done = s.phase(logger, PhaseApplyingSchema)
	err = s.applySchema(detached, desc, company)
	done()
	if err != nil {
		kind, msg, partial := classifySchema(err, s.cfg.SchemaTimeout)
		failure := s.release(detached, logger, desc, Failure{Reason: msg})
		res := s.fail(detached, logger, company, kind, msg, failure)
		res.PartialSchema = partial
		return res
	}

	done = s.phase(logger, PhaseFinalizing)
	active, err := s.repo.MarkActive(detached, company.ID, desc.StoreName, s.now())
	done()
	if err != nil {
		msg := "could not finalize tenant: " + err.Error()
		failure := s.release(detached, logger, desc, Failure{Reason: msg})
		return s.fail(detached, logger, company, KindInternal, msg, failure)
	}

	s.notifier.Notify(detached, notify.Notification{
		TenantID:    active.ID,
		CompanyName: active.Name,
		AdminEmail:  active.AdminEmail,
		Outcome:     notify.OutcomeActive,
		StoreName:   desc.StoreName,
		At:          active.UpdatedAt,
	})
	s.metrics.RecordOutcome("success")
	logger.Info("tenant provisioned")

	id := active.ID
	store := desc.StoreName
	return ProvisioningResult{Success: true, CompanyID: &id, TenantDBName: &store}
}

func (s *Service) allocate(ctx context.Context, company Company) (tenant.StoreDescriptor, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.AllocateTimeout)
	defer cancel()

	desc, err := s.allocator.Allocate(ctx, company.ID, tenant.BuildStoreName(company.ID))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
		}
		return tenant.StoreDescriptor{}, err
	}
	return desc, nil
}

func (s *Service) applySchema(ctx context.Context, desc tenant.StoreDescriptor, company Company) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SchemaTimeout)
	defer cancel()

	script := s.cfg.BaselineScript + "\n" + seedScript(company, requesttrace.FromContextOrAnonymous(ctx).Actor())
	err := s.executor.ExecuteScript(ctx, desc, script)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
	}
	return err
}

// release deallocates a store this flow created. When cleanup fails the store is kept on
// the record and flagged for manual cleanup.
func (s *Service) release(ctx context.Context, logger *zap.Logger, desc tenant.StoreDescriptor, f Failure) Failure {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CleanupTimeout)
	defer cancel()

	ok := s.allocator.Deallocate(ctx, desc)
	s.metrics.RecordCleanup(ok)
	if !ok {
		logger.Error("tenant store cleanup failed, manual cleanup required")
		store := desc.StoreName
		f.StoreName = &store
		f.CleanupRequired = true
	}
	return f
}

func (s *Service) releaseAfterTimeout(ctx context.Context, logger *zap.Logger, company Company, f Failure) Failure {
	storeName := tenant.BuildStoreName(company.ID)

	probeCtx, cancel := context.WithTimeout(ctx, s.cfg.CleanupTimeout)
	exists, err := s.allocator.Exists(probeCtx, storeName)
	cancel()
	if err == nil && !exists {
		return f
	}
	if err != nil {
		logger.Warn("could not probe tenant store after allocation timeout", zap.Error(err))
	}
	return s.release(ctx, logger, s.allocator.Describe(company.ID, storeName), f)
}

// fail marks the tenant failed, announces it and builds the result.
func (s *Service) fail(ctx context.Context, logger *zap.Logger, company Company, kind Kind, msg string, f Failure) ProvisioningResult {
	f.Reason = msg
	at := s.now()
	if _, err := s.repo.MarkFailed(ctx, company.ID, f, at); err != nil {
		logger.Error("could not record tenant failure", zap.Error(err))
	}

	logger.Warn("tenant provisioning failed",
		zap.String("kind", string(kind)),
		zap.String("reason", msg),
		zap.Bool("cleanup_required", f.CleanupRequired),
	)
	s.notifier.Notify(ctx, notify.Notification{
		TenantID:    company.ID,
		CompanyName: company.Name,
		AdminEmail:  company.AdminEmail,
		Outcome:     notify.OutcomeFailed,
		Error:       msg,
		At:          at,
	})
	s.metrics.RecordOutcome(string(kind))

	res := failedResult(kind, msg)
	id := company.ID
	res.RecordID = &id
	res.CleanupRequired = f.CleanupRequired
	return res
}

func (s *Service) phase(logger *zap.Logger, p Phase) func() {
	start := time.Now()
	logger.Debug("provisioning phase started", zap.String("phase", string(p)))
	return func() {
		elapsed := time.Since(start)
		s.metrics.ObservePhase(string(p), elapsed)
		logger.Debug("provisioning phase finished", zap.String("phase", string(p)), zap.Duration("duration", elapsed))
	}
}

// loggerFor prefers the request logger, which already carries the actor fields.
func (s *Service) loggerFor(ctx context.Context) *zap.Logger {
	if l, ok := logging.FromContext(ctx); ok {
		return l
	}
	if audit, ok := requesttrace.FromContext(ctx); ok {
		return s.logger.With(audit.Fields()...)
	}
	return s.logger
}

func classifyAllocation(err error, timeout time.Duration) (Kind, string) {
	switch {
	case errors.Is(err, ErrStoreExists):
		return KindConflict, "tenant store already exists: " + err.Error()
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrTimeout):
		return KindTimeout, fmt.Sprintf("tenant store allocation timed out after %s", timeout)
	case errors.Is(err, ErrQuotaExceeded):
		return KindAllocation, "tenant store quota exceeded"
	default:
		return KindAllocation, "tenant store allocation failed: " + err.Error()
	}
}

func classifySchema(err error, timeout time.Duration) (Kind, string, bool) {
	var scriptErr *ScriptError
	partial := errors.As(err, &scriptErr) && scriptErr.Partial

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
		msg := fmt.Sprintf("schema application timed out after %s", timeout)
		if partial {
			msg += fmt.Sprintf("; %d statement(s) were already applied", scriptErr.Index)
		}
		return KindTimeout, msg, partial
	}
	if scriptErr != nil {
		return KindSchema, scriptErr.Error(), partial
	}
	return KindSchema, "schema application failed: " + err.Error(), false
}

package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/notify"
	"github.com/zenGate-Global/palmyra-tenancy/platform/go/tenant"
)

// Errors reported by StoreAllocator and SchemaExecutor implementations.
var (
	// ErrStoreExists means a store with the derived name already exists; nothing was created.
	ErrStoreExists = errors.New("tenant store already exists")
	// ErrQuotaExceeded means the store host refused another tenant store.
	ErrQuotaExceeded = errors.New("tenant store quota exceeded")
	// ErrAllocation wraps any other allocation failure.
	ErrAllocation = errors.New("tenant store allocation failed")
	// ErrConnection means the executor could not reach the tenant store.
	ErrConnection = errors.New("tenant store unreachable")
	// ErrTimeout marks work that exceeded its deadline.
	ErrTimeout = errors.New("tenant store operation timed out")
)

// StoreAllocator creates and removes isolated tenant stores.
// Allocate must fail with ErrStoreExists, without touching anything, when the store is already there.
// Deallocate never fails the caller; it reports whether the store is gone.
type StoreAllocator interface {
	Allocate(ctx context.Context, tenantID uuid.UUID, desiredName string) (tenant.StoreDescriptor, error)
	Exists(ctx context.Context, storeName string) (bool, error)
	Deallocate(ctx context.Context, d tenant.StoreDescriptor) bool
	StoreDescriber
}

// StoreDescriber rebuilds the connection descriptor of an already allocated store.
type StoreDescriber interface {
	Describe(tenantID uuid.UUID, storeName string) tenant.StoreDescriptor
}

// SchemaExecutor runs a multi-statement script against one tenant store.
type SchemaExecutor interface {
	ExecuteScript(ctx context.Context, d tenant.StoreDescriptor, script string) error
}

// ExecutorFunc adapts a function to SchemaExecutor.
type ExecutorFunc func(ctx context.Context, d tenant.StoreDescriptor, script string) error

func (f ExecutorFunc) ExecuteScript(ctx context.Context, d tenant.StoreDescriptor, script string) error {
	return f(ctx, d, script)
}

// Notifier receives terminal provisioning outcomes. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, n notify.Notification)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, notify.Notification) {}

// ScriptError reports the statement that stopped a schema script.
// Partial is true when earlier statements were committed and stay applied.
type ScriptError struct {
	Index     int
	Statement string
	Partial   bool
	Err       error
}

func (e *ScriptError) Error() string {
	if e.Partial {
		return fmt.Sprintf("schema partially applied: statement %d failed after %d statement(s) were committed: %v", e.Index+1, e.Index, e.Err)
	}
	return fmt.Sprintf("schema not applied: statement %d failed: %v", e.Index+1, e.Err)
}

func (e *ScriptError) Unwrap() error { return e.Err }

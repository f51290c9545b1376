package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zenGate-Global/palmyra-tenancy/platform/go/metrics"
)

// Outcome is the terminal provisioning state being announced.
type Outcome string

const (
	OutcomeActive Outcome = "active"
	OutcomeFailed Outcome = "failed"
)

// Notification is the payload handed to a Sink once a tenant leaves pending.
type Notification struct {
	TenantID    uuid.UUID `json:"tenantId"`
	CompanyName string    `json:"companyName"`
	AdminEmail  string    `json:"adminEmail"`
	Outcome     Outcome   `json:"outcome"`
	StoreName   string    `json:"storeName,omitempty"`
	Error       string    `json:"error,omitempty"`
	At          time.Time `json:"at"`
}

// Sink delivers notifications to an external transport.
type Sink interface {
	Send(ctx context.Context, n Notification) error
}

// ErrClosed is returned by Dispatcher.Close when called twice.
var ErrClosed = errors.New("notification dispatcher closed")

// DispatcherConfig tunes the asynchronous dispatcher.
type DispatcherConfig struct {
	// Buffer is the queue capacity; notifications beyond it are dropped.
	Buffer int
	// SendTimeout bounds a single Sink.Send call.
	SendTimeout time.Duration
	Metrics     *metrics.Provisioning
}

// Dispatcher queues notifications and delivers them from a single worker goroutine.
// Notify never blocks the caller; delivery failures are logged and dropped.
type Dispatcher struct {
	sink    Sink
	logger  *zap.Logger
	metrics *metrics.Provisioning
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan Notification
	done   chan struct{}
}

// NewDispatcher starts the delivery worker.
func NewDispatcher(sink Sink, cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	if sink == nil {
		panic("notification sink is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}

	d := &Dispatcher{
		sink:    sink,
		logger:  logger,
		metrics: cfg.Metrics,
		timeout: cfg.SendTimeout,
		queue:   make(chan Notification, cfg.Buffer),
		done:    make(chan struct{}),
	}
	go d.run()
	return d
}

// Notify enqueues n for delivery. It returns immediately.
func (d *Dispatcher) Notify(_ context.Context, n Notification) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Warn("notification dropped, dispatcher closed", zap.String("tenant_id", n.TenantID.String()))
		d.metrics.RecordNotification("dropped")
		return
	}

	select {
	case d.queue <- n:
	default:
		d.logger.Warn("notification dropped, queue full",
			zap.String("tenant_id", n.TenantID.String()),
			zap.String("outcome", string(n.Outcome)),
		)
		d.metrics.RecordNotification("dropped")
	}
}

// Close stops accepting notifications and waits for queued ones to be delivered
// or for ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for n := range d.queue {
		d.deliver(n)
	}
}

func (d *Dispatcher) deliver(n Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.sink.Send(ctx, n); err != nil {
		d.logger.Error("notification delivery failed",
			zap.String("tenant_id", n.TenantID.String()),
			zap.String("outcome", string(n.Outcome)),
			zap.Error(err),
		)
		d.metrics.RecordNotification("failed")
		return
	}
	d.metrics.RecordNotification("sent")
}

// LogSink writes notifications to the structured log. Used when no transport is configured.
type LogSink struct {
	Logger *zap.Logger
}

func (s LogSink) Send(_ context.Context, n Notification) error {
	logger := s.Logger
	if logger == nil {
		return errors.New("log sink has no logger")
	}
	logger.Info("tenant provisioning finished",
		zap.String("tenant_id", n.TenantID.String()),
		zap.String("company_name", n.CompanyName),
		zap.String("admin_email", n.AdminEmail),
		zap.String("outcome", string(n.Outcome)),
		zap.String("store_name", n.StoreName),
		zap.String("error", n.Error),
	)
	return nil
}

// Package worker runs validation passes dispatched through the event bus.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/claimguard/internal/bus"
	"github.com/opensource-finance/claimguard/internal/domain"
)

// Worker consumes validation requests from the EventBus.
type Worker struct {
	bus      domain.EventBus
	repo     domain.Repository
	pipeline *Pipeline
	logger   *slog.Logger

	// sem bounds passes running at once across tenants.
	sem     chan struct{}
	tenants *tenantMutex
	running atomic.Int32

	// mu guards subscriptions and stopped, and orders wg.Add before Stop's Wait.
	mu            sync.Mutex
	subscriptions []domain.Subscription
	stopped       bool
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a worker running at most concurrency passes at once.
func NewWorker(eventBus domain.EventBus, repo domain.Repository, pipeline *Pipeline, concurrency int, logger *slog.Logger) *Worker {
	if concurrency <= 0 {
		concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      eventBus,
		repo:     repo,
		pipeline: pipeline,
		logger:   logger,
		sem:      make(chan struct{}, concurrency),
		tenants:  newTenantMutex(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to the shared validation queue.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.QueueTenantID, domain.TopicValidationRequested, w.handleMessage)
	if err != nil {
		return fmt.Errorf("subscribe to validation queue: %w", err)
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	w.logger.Info("validation worker started",
		"topic", domain.TopicValidationRequested,
		"concurrency", cap(w.sem),
	)
	return nil
}

// Enqueue records a queued job for tenantID and publishes the request.
func (w *Worker) Enqueue(ctx context.Context, tenantID string) (*domain.ValidationJob, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	job := &domain.ValidationJob{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		Status:   domain.JobQueued,
	}
	if err := w.repo.SaveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	req := domain.ValidationRequest{JobID: job.ID, TenantID: tenantID}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		req.TraceID = sc.TraceID().String()
	}

	if err := bus.PublishJSON(ctx, w.bus, domain.QueueTenantID, domain.TopicValidationRequested, req); err != nil {
		return nil, fmt.Errorf("publish validation request: %w", err)
	}

	w.logger.Debug("validation enqueued", "tenant_id", tenantID, "job_id", job.ID)
	return job, nil
}

// handleMessage starts a pass in the background so the subscription keeps
// draining while passes run.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	var req domain.ValidationRequest
	if err := bus.Decode(msg, &req); err != nil {
		return err
	}
	if req.TenantID == "" {
		return fmt.Errorf("validation request %s has no tenant", msg.ID)
	}

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		w.process(req)
	}()
	return nil
}

func (w *Worker) process(req domain.ValidationRequest) {
	unlock := w.tenants.lock(req.TenantID)
	defer unlock()

	select {
	case w.sem <- struct{}{}:
	case <-w.ctx.Done():
		return
	}
	defer func() { <-w.sem }()

	// Jobs still queued at shutdown stay queued; the sweep picks their
	// claims up again.
	if w.ctx.Err() != nil {
		return
	}

	w.running.Add(1)
	defer w.running.Add(-1)

	// Pipeline.Run logs and records its own failures.
	_, _ = w.pipeline.Run(w.ctx, req.JobID, req.TenantID)
}

// Stop unsubscribes and waits for running passes to return.
func (w *Worker) Stop() error {
	w.mu.Lock()
	w.stopped = true
	subs := w.subscriptions
	w.subscriptions = nil
	w.mu.Unlock()

	w.cancel()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}

	w.wg.Wait()

	w.logger.Info("validation worker stopped")
	return nil
}

// Stats describes the worker state.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Running           int      `json:"running"`
	Concurrency       int      `json:"concurrency"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Running:           int(w.running.Load()),
		Concurrency:       cap(w.sem),
	}
}

// tenantMutex serialises work per tenant inside one process.
type tenantMutex struct {
	mu    sync.Mutex
	locks map[string]*tenantLock
}

type tenantLock struct {
	mu   sync.Mutex
	refs int
}

func newTenantMutex() *tenantMutex {
	return &tenantMutex{locks: make(map[string]*tenantLock)}
}

// lock blocks until tenantID is free and returns its unlock function.
func (t *tenantMutex) lock(tenantID string) func() {
	t.mu.Lock()
	l, ok := t.locks[tenantID]
	if !ok {
		l = &tenantLock{}
		t.locks[tenantID] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, tenantID)
		}
		t.mu.Unlock()
	}
}

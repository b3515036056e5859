// Package scheduler periodically queues validation for tenants that still
// have Pending claims, such as claims left behind by a busy or failed pass.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/opensource-finance/claimguard/internal/domain"
)

// PendingLister reports tenants with Pending claims.
type PendingLister interface {
	ListPendingTenants(ctx context.Context) ([]string, error)
}

// Enqueuer schedules a validation pass for a tenant.
type Enqueuer interface {
	Enqueue(ctx context.Context, tenantID string) (*domain.ValidationJob, error)
}

// Sweeper runs a pending-claim sweep on a cron schedule.
type Sweeper struct {
	repo     PendingLister
	enqueuer Enqueuer
	logger   *slog.Logger
	cron     *cron.Cron
	spec     string

	mu      sync.Mutex
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// New creates a sweeper for a six-field (seconds first) cron spec.
func New(spec string, repo PendingLister, enqueuer Enqueuer, logger *slog.Logger) (*Sweeper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if spec == "" {
		return nil, errors.New("cron spec is required")
	}

	clog := cronLogger{logger: logger}
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Sweeper{
		repo:     repo,
		enqueuer: enqueuer,
		logger:   logger,
		cron:     c,
		spec:     spec,
		ctx:      ctx,
		cancel:   cancel,
	}

	if _, err := c.AddFunc(spec, s.run); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	return s, nil
}

// Start begins the schedule.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return errors.New("sweeper already started")
	}
	s.cron.Start()
	s.started = true

	s.logger.Info("pending claim sweep scheduled", "cron", s.spec)
	return nil
}

// Stop cancels an in-flight sweep and waits for it to return.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.cancel()
	<-s.cron.Stop().Done()
	s.started = false

	s.logger.Info("pending claim sweep stopped")
}

func (s *Sweeper) run() {
	if _, err := s.Sweep(s.ctx); err != nil {
		s.logger.Error("pending claim sweep failed", "error", err)
	}
}

// Sweep enqueues one validation per tenant with Pending claims and returns
// how many were enqueued. A failed enqueue does not stop the sweep.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	tenants, err := s.repo.ListPendingTenants(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pending tenants: %w", err)
	}

	var errs []error
	enqueued := 0
	for _, tenantID := range tenants {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		job, err := s.enqueuer.Enqueue(ctx, tenantID)
		if err != nil {
			errs = append(errs, fmt.Errorf("enqueue %s: %w", tenantID, err))
			continue
		}
		enqueued++
		s.logger.Debug("sweep queued validation", "tenant_id", tenantID, "job_id", job.ID)
	}

	if enqueued > 0 {
		s.logger.Info("pending claim sweep finished", "tenants", len(tenants), "enqueued", enqueued)
	}
	return enqueued, errors.Join(errs...)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

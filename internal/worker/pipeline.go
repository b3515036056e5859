package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/claimguard/internal/aggregate"
	"github.com/opensource-finance/claimguard/internal/bus"
	"github.com/opensource-finance/claimguard/internal/decision"
	"github.com/opensource-finance/claimguard/internal/domain"
	"github.com/opensource-finance/claimguard/internal/repository"
	"github.com/opensource-finance/claimguard/internal/rules"
	"github.com/opensource-finance/claimguard/internal/telemetry"
)

// ErrTenantBusy is returned when another pass holds the tenant lock for
// longer than the configured wait.
var ErrTenantBusy = errors.New("tenant validation already running")

// ErrLockLost aborts a pass whose tenant lock could not be renewed.
var ErrLockLost = errors.New("tenant lock lost during validation pass")

const lockKey = "validation"

var tracer = otel.Tracer("claimguard-worker")

// Pipeline runs one validation pass over a tenant's pending claims.
type Pipeline struct {
	repo    domain.Repository
	loader  *rules.Loader
	engine  *rules.Engine
	decider *decision.Processor
	locks   domain.Cache
	bus     domain.EventBus
	logger  *slog.Logger

	// LockTTL expires the tenant lock if a worker dies mid-pass.
	LockTTL time.Duration
	// LockWait bounds how long Run waits for a busy tenant.
	LockWait time.Duration
	// LockPoll is the retry interval while waiting for the lock.
	LockPoll time.Duration
	// LockRefresh is the renewal interval of a held lock. Zero uses LockTTL/3.
	LockRefresh time.Duration
}

// PipelineDeps are the collaborators of a Pipeline. Locks and Bus are optional.
type PipelineDeps struct {
	Repo    domain.Repository
	Loader  *rules.Loader
	Engine  *rules.Engine
	Decider *decision.Processor
	Locks   domain.Cache
	Bus     domain.EventBus
	Logger  *slog.Logger
}

// NewPipeline creates a pipeline with a 10 minute lock TTL and 30 second wait.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		repo:     deps.Repo,
		loader:   deps.Loader,
		engine:   deps.Engine,
		decider:  deps.Decider,
		locks:    deps.Locks,
		bus:      deps.Bus,
		logger:   logger,
		LockTTL:  10 * time.Minute,
		LockWait: 30 * time.Second,
		LockPoll: 100 * time.Millisecond,
	}
}

// Run validates every Pending claim of tenantID and returns the finished job.
// Every claim is decided before the first outcome is written. Outcomes are
// then committed one by one, so an aborted pass leaves processed claims in
// their new state and the rest Pending. Run never panics.
func (p *Pipeline) Run(ctx context.Context, jobID, tenantID string) (job *domain.ValidationJob, err error) {
	start := time.Now()
	if jobID == "" {
		jobID = uuid.NewString()
	}

	ctx, span := tracer.Start(ctx, "validation.pass",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("job.id", jobID),
		),
	)
	defer span.End()

	logger := p.logger.With("tenant_id", tenantID, "job_id", jobID)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("validation pass panicked: %v", r)
		}
		if job == nil {
			job = &domain.ValidationJob{ID: jobID, TenantID: tenantID}
		}
		p.finish(ctx, job, err, start, logger)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	job = p.loadJob(ctx, jobID, tenantID)
	if tenantID == "" {
		return job, fmt.Errorf("%w: tenantID is required", repository.ErrInvalidInput)
	}

	passCtx, release, err := p.acquire(ctx, tenantID)
	if err != nil {
		return job, err
	}
	defer release()
	ctx = passCtx

	job.Status = domain.JobRunning
	if err := p.repo.SaveJob(ctx, job); err != nil {
		return job, fmt.Errorf("mark job running: %w", err)
	}

	return job, p.pass(ctx, job, logger)
}

func (p *Pipeline) pass(ctx context.Context, job *domain.ValidationJob, logger *slog.Logger) error {
	tenantID := job.TenantID
	set := p.loader.Load(ctx, tenantID)

	pending, err := p.repo.ListClaimsByStatus(ctx, tenantID, domain.StatusPending)
	if err != nil {
		return fmt.Errorf("select pending claims: %w", err)
	}
	job.ClaimsSelected = len(pending)

	logger.Info("validation pass started",
		"rules_version", set.Version(),
		"custom_rules", set.CustomCount(),
		"pending", len(pending),
	)

	claims := make([]domain.Claim, len(pending))
	ids := make([]string, len(pending))
	for i, c := range pending {
		claims[i] = *c
		ids[i] = c.ID
	}

	if err := p.repo.DeleteViolations(ctx, tenantID, ids); err != nil {
		return fmt.Errorf("clear stale violations: %w", err)
	}

	results, err := p.engine.EvaluateAll(ctx, claims, set)
	if err != nil {
		return fmt.Errorf("evaluate claims: %w", err)
	}

	decided := make([]domain.Claim, len(claims))
	for i := range claims {
		if ctx.Err() != nil {
			return fmt.Errorf("pass cancelled after deciding %d claims: %w", i, context.Cause(ctx))
		}
		decided[i] = p.decider.Decide(ctx, claims[i], results[i])
	}

	for i := range decided {
		if ctx.Err() != nil {
			return fmt.Errorf("pass cancelled after %d claims: %w", i, context.Cause(ctx))
		}

		violations := results[i]
		err := p.repo.SaveOutcome(ctx, tenantID, &decided[i], violations)
		if errors.Is(err, repository.ErrStaleClaim) {
			// Resubmitted mid-pass; it stays Pending for the next pass.
			logger.Info("claim changed during pass, outcome discarded", "claim_id", decided[i].ID)
			telemetry.SupersededClaims.Inc()
			continue
		}
		if err != nil {
			return fmt.Errorf("persist claim %s: %w", decided[i].ID, err)
		}

		if decided[i].Status == domain.StatusValidated {
			job.ClaimsValidated++
		} else {
			job.ClaimsNotValidated++
		}
		telemetry.ClaimsValidated.WithLabelValues(string(decided[i].Status)).Inc()
		for _, v := range violations {
			telemetry.Violations.WithLabelValues(string(v.Category)).Inc()
		}
	}

	population, err := p.repo.ListClaims(ctx, tenantID, domain.ClaimFilter{})
	if err != nil {
		return fmt.Errorf("load claim population: %w", err)
	}
	if err := p.repo.ReplaceMetrics(ctx, tenantID, aggregate.Recompute(tenantID, population)); err != nil {
		return fmt.Errorf("replace metrics: %w", err)
	}
	return nil
}

// loadJob returns the stored job or a fresh queued one.
func (p *Pipeline) loadJob(ctx context.Context, jobID, tenantID string) *domain.ValidationJob {
	if tenantID != "" {
		job, err := p.repo.GetJob(ctx, tenantID, jobID)
		if err == nil {
			return job
		}
		if !errors.Is(err, repository.ErrNotFound) {
			p.logger.Warn("failed to load job, starting fresh",
				"tenant_id", tenantID,
				"job_id", jobID,
				"error", err,
			)
		}
	}
	return &domain.ValidationJob{
		ID:       jobID,
		TenantID: tenantID,
		Status:   domain.JobQueued,
	}
}

// acquire takes the tenant lock, polling until LockWait elapses. The
// returned context is cancelled with ErrLockLost if renewing the lock fails;
// release stops the renewal and drops the lock.
func (p *Pipeline) acquire(ctx context.Context, tenantID string) (context.Context, func(), error) {
	if p.locks == nil {
		return ctx, func() {}, nil
	}

	deadline := time.Now().Add(p.LockWait)
	for {
		ok, err := p.locks.AcquireLock(ctx, tenantID, lockKey, p.LockTTL)
		if err != nil {
			return nil, nil, fmt.Errorf("acquire tenant lock: %w", err)
		}
		if ok {
			break
		}
		if !time.Now().Before(deadline) {
			return nil, nil, ErrTenantBusy
		}

		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(p.LockPoll):
		}
	}

	passCtx, cancel := context.WithCancelCause(ctx)
	stop := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		p.keepLock(passCtx, tenantID, stop, cancel)
	}()

	release := func() {
		close(stop)
		<-stopped
		cancel(nil)

		// Release even when the pass was cancelled.
		rctx, rcancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer rcancel()
		if err := p.locks.ReleaseLock(rctx, tenantID, lockKey); err != nil {
			p.logger.Warn("failed to release tenant lock", "tenant_id", tenantID, "error", err)
		}
	}
	return passCtx, release, nil
}

// keepLock renews the tenant lock until stop closes. A lock that expired or
// was taken over cancels the pass.
func (p *Pipeline) keepLock(ctx context.Context, tenantID string, stop <-chan struct{}, cancel context.CancelCauseFunc) {
	interval := p.LockRefresh
	if interval <= 0 {
		interval = p.LockTTL / 3
	}
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		ok, err := p.locks.RefreshLock(ctx, tenantID, lockKey, p.LockTTL)
		if err != nil {
			// A lock that lapsed meanwhile shows up as !ok on a later tick.
			p.logger.Warn("failed to refresh tenant lock", "tenant_id", tenantID, "error", err)
			continue
		}
		if !ok {
			p.logger.Error("tenant lock lost, aborting pass", "tenant_id", tenantID)
			cancel(ErrLockLost)
			return
		}
	}
}

// finish records the terminal job state and announces it.
func (p *Pipeline) finish(ctx context.Context, job *domain.ValidationJob, err error, start time.Time, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	outcome := "succeeded"
	switch {
	case errors.Is(err, ErrTenantBusy):
		outcome = "busy"
		job.Status = domain.JobFailed
		job.Error = err.Error()
	case err != nil:
		outcome = "failed"
		job.Status = domain.JobFailed
		job.Error = err.Error()
	default:
		job.Status = domain.JobSucceeded
		job.Error = ""
	}

	telemetry.ValidationPasses.WithLabelValues(outcome).Inc()
	telemetry.PassDuration.Observe(time.Since(start).Seconds())

	if job.TenantID != "" {
		if serr := p.repo.SaveJob(ctx, job); serr != nil {
			logger.Error("failed to record job state", "error", serr)
		}
	}

	if err != nil {
		logger.Error("validation pass failed",
			"outcome", outcome,
			"claims_validated", job.ClaimsValidated,
			"claims_not_validated", job.ClaimsNotValidated,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
	} else {
		logger.Info("validation pass finished",
			"claims_selected", job.ClaimsSelected,
			"claims_validated", job.ClaimsValidated,
			"claims_not_validated", job.ClaimsNotValidated,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	if p.bus != nil && job.TenantID != "" {
		if perr := bus.PublishJSON(ctx, p.bus, job.TenantID, domain.TopicValidationCompleted, job); perr != nil {
			logger.Warn("failed to publish completion", "error", perr)
		}
	}
}

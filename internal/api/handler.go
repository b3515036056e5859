package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/opensource-finance/claimguard/internal/domain"
	"github.com/opensource-finance/claimguard/internal/normalize"
	"github.com/opensource-finance/claimguard/internal/repository"
	"github.com/opensource-finance/claimguard/internal/rules"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000

	// maxRuleDocument bounds PUT /api/rules bodies.
	maxRuleDocument = 1 << 20
)

// Enqueuer schedules a validation pass for a tenant.
type Enqueuer interface {
	Enqueue(ctx context.Context, tenantID string) (*domain.ValidationJob, error)
}

// Deps are the collaborators of the HTTP handlers. Cache and Bus are only
// used for health reporting and may be nil.
type Deps struct {
	Repo     domain.Repository
	Cache    domain.Cache
	Bus      domain.EventBus
	Loader   *rules.Loader
	Engine   *rules.Engine
	Enqueuer Enqueuer
	Version  string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	loader   *rules.Loader
	engine   *rules.Engine
	enqueuer Enqueuer
	version  string
	logger   *slog.Logger
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		repo:     deps.Repo,
		cache:    deps.Cache,
		bus:      deps.Bus,
		loader:   deps.Loader,
		engine:   deps.Engine,
		enqueuer: deps.Enqueuer,
		version:  deps.Version,
		logger:   logger,
	}
}

// UploadRequest is the request body for POST /api/claims.
type UploadRequest struct {
	Claims []domain.ClaimRecord `json:"claims"`
}

// UploadResponse is the response for POST /api/claims.
type UploadResponse struct {
	Accepted int      `json:"accepted"`
	ClaimIDs []string `json:"claimIds"`
	JobID    string   `json:"jobId,omitempty"`
	TraceID  string   `json:"traceId,omitempty"`
}

// UploadClaims handles POST /api/claims. Claims are stored Pending and a
// validation pass is queued unless ?validate=false.
func (h *Handler) UploadClaims(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req UploadRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if len(req.Claims) == 0 {
		writeError(w, r, http.StatusBadRequest, "claims must not be empty")
		return
	}

	claims := make([]*domain.Claim, len(req.Claims))
	ids := make([]string, len(req.Claims))
	for i, rec := range req.Claims {
		c := normalize.Record(tenantID, rec)
		claims[i] = &c
		ids[i] = c.ID
	}

	if err := h.repo.SaveClaims(ctx, tenantID, claims); err != nil {
		h.logger.Error("failed to save claims", "tenant_id", tenantID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "failed to save claims")
		return
	}

	resp := UploadResponse{
		Accepted: len(claims),
		ClaimIDs: ids,
		TraceID:  GetTraceID(ctx),
	}

	if r.URL.Query().Get("validate") == "false" || h.enqueuer == nil {
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, resp)
		return
	}

	job, err := h.enqueuer.Enqueue(ctx, tenantID)
	if err != nil {
		// The claims are stored Pending; the scheduled sweep will pick them up.
		h.logger.Error("failed to enqueue validation", "tenant_id", tenantID, "error", err)
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, resp)
		return
	}

	resp.JobID = job.ID
	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, resp)
}

// ListClaims handles GET /api/claims.
func (h *Handler) ListClaims(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	q := r.URL.Query()

	filter := domain.ClaimFilter{
		Status:    domain.ClaimStatus(q.Get("status")),
		ErrorType: domain.ErrorType(q.Get("errorType")),
		Limit:     defaultPageSize,
	}

	if filter.Status != "" && !slices.Contains(claimStatuses, filter.Status) {
		writeError(w, r, http.StatusBadRequest, "unknown status "+strconv.Quote(q.Get("status")))
		return
	}
	if filter.ErrorType != "" && !slices.Contains(errorTypes, filter.ErrorType) {
		writeError(w, r, http.StatusBadRequest, "unknown errorType "+strconv.Quote(q.Get("errorType")))
		return
	}

	var err error
	if filter.Limit, err = intParam(q.Get("limit"), defaultPageSize); err != nil || filter.Limit < 1 || filter.Limit > maxPageSize {
		writeError(w, r, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(maxPageSize))
		return
	}
	if filter.Offset, err = intParam(q.Get("offset"), 0); err != nil || filter.Offset < 0 {
		writeError(w, r, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	claims, err := h.repo.ListClaims(ctx, tenantID, filter)
	if err != nil {
		h.logger.Error("failed to list claims", "tenant_id", tenantID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "failed to list claims")
		return
	}

	render.JSON(w, r, map[string]any{
		"claims": claims,
		"count":  len(claims),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

var (
	claimStatuses = []domain.ClaimStatus{domain.StatusPending, domain.StatusValidated, domain.StatusNotValidated}
	errorTypes    = []domain.ErrorType{domain.ErrorNone, domain.ErrorTechnical, domain.ErrorMedical, domain.ErrorBoth}
)

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// GetClaim handles GET /api/claims/{id}.
func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	claimID := chi.URLParam(r, "id")

	claim, err := h.repo.GetClaim(ctx, tenantID, claimID)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "claim not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get claim", "tenant_id", tenantID, "claim_id", claimID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "failed to get claim")
		return
	}

	violations, err := h.repo.ListViolations(ctx, tenantID, claimID)
	if err != nil {
		h.logger.Error("failed to list violations", "tenant_id", tenantID, "claim_id", claimID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "failed to get claim")
		return
	}

	render.JSON(w, r, domain.ClaimDetail{Claim: claim, Violations: violations})
}

// ListMetrics handles GET /api/metrics.
func (h *Handler) ListMetrics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	metrics, err := h.repo.ListMetrics(ctx, tenantID)
	if err != nil {
		h.logger.Error("failed to list metrics", "tenant_id", tenantID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "failed to list metrics")
		return
	}

	render.JSON(w, r, map[string]any{"metrics": metrics})
}

// GetRules handles GET /api/rules and returns the tenant's effective rule set.
func (h *Handler) GetRules(w http.ResponseWriter, r *http.Request) {
	set := h.loader.Load(r.Context(), GetTenantID(r.Context()))
	render.JSON(w, r, set.RuleSet())
}

// PutRuleDocument handles PUT /api/rules/{category}. The document is parsed
// and its custom expressions compiled before it is stored, so a pass never
// sees a document the API rejected.
func (h *Handler) PutRuleDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	category := chi.URLParam(r, "category")

	if !slices.Contains(domain.RuleDocCategories, category) {
		writeError(w, r, http.StatusNotFound, "unknown rule category "+strconv.Quote(category))
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxRuleDocument+1))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(data) > maxRuleDocument {
		writeError(w, r, http.StatusRequestEntityTooLarge, "rule document too large")
		return
	}

	override, err := rules.ParseDocument(category, data)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if custom, ok := override.(*rules.CustomOverride); ok {
		if err := h.engine.ValidateCustom(custom.Rules); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
	}

	if err := h.repo.SaveRuleDocument(ctx, tenantID, category, data); err != nil {
		h.logger.Error("failed to save rule document", "tenant_id", tenantID, "category", category, "error", err)
		writeError(w, r, http.StatusInternalServerError, "failed to save rule document")
		return
	}

	h.logger.Info("rule document stored", "tenant_id", tenantID, "category", category)
	render.JSON(w, r, map[string]string{
		"category": category,
		"status":   "stored",
	})
}

// StartValidation handles POST /api/validations.
func (h *Handler) StartValidation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.enqueuer == nil {
		writeError(w, r, http.StatusServiceUnavailable, "validation worker not running")
		return
	}

	job, err := h.enqueuer.Enqueue(ctx, tenantID)
	if err != nil {
		h.logger.Error("failed to enqueue validation", "tenant_id", tenantID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "failed to enqueue validation")
		return
	}

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, map[string]string{
		"jobId":  job.ID,
		"status": string(job.Status),
	})
}

// GetJob handles GET /api/jobs/{id}.
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	jobID := chi.URLParam(r, "id")

	job, err := h.repo.GetJob(ctx, tenantID, jobID)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get job", "tenant_id", tenantID, "job_id", jobID, "error", err)
		writeError(w, r, http.StatusInternalServerError, "failed to get job")
		return
	}

	render.JSON(w, r, job)
}

// Health handles GET /health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	render.JSON(w, r, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready handles GET /ready. The service is ready once the database answers.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, map[string]string{"ready": "false"})
			return
		}
	}
	render.JSON(w, r, map[string]string{"ready": "true"})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": msg})
}

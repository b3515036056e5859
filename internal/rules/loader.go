package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/opensource-finance/claimguard/internal/domain"
	"github.com/opensource-finance/claimguard/internal/repository"
)

// Source provides raw tenant rule documents. A nil document with a nil
// error means the source has nothing for that tenant and category.
type Source interface {
	Document(ctx context.Context, tenantID, category string) ([]byte, error)
}

// DocumentStore is the subset of the repository a RepositorySource needs.
type DocumentStore interface {
	GetRuleDocument(ctx context.Context, tenantID string, category string) ([]byte, error)
}

// RepositorySource reads rule documents uploaded through the API.
type RepositorySource struct {
	Store DocumentStore
}

// Document returns the stored document, or nil when none was uploaded.
func (s RepositorySource) Document(ctx context.Context, tenantID, category string) ([]byte, error) {
	doc, err := s.Store.GetRuleDocument(ctx, tenantID, category)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// tenantFileName guards against path traversal through tenant ids.
var tenantFileName = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// FileSource reads <dir>/<tenant>_<category>.{json,yaml,yml}.
type FileSource struct {
	Dir string
}

// Document returns the first matching file's contents, or nil if none exist.
func (s FileSource) Document(_ context.Context, tenantID, category string) ([]byte, error) {
	if s.Dir == "" || !tenantFileName.MatchString(tenantID) || tenantID == "." || tenantID == ".." {
		return nil, nil
	}
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		path := filepath.Join(s.Dir, tenantID+"_"+category+ext)
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		return data, nil
	}
	return nil, nil
}

// Loader builds the effective rule set for a tenant.
type Loader struct {
	defaults domain.RuleSet
	sources  []Source
	engine   *Engine
	logger   *slog.Logger
}

// NewLoader creates a loader. Sources are consulted in order per category and
// the first one holding a document wins.
func NewLoader(defaults domain.RuleSet, engine *Engine, logger *slog.Logger, sources ...Source) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		defaults: defaults,
		sources:  sources,
		engine:   engine,
		logger:   logger,
	}
}

// Load returns the tenant's rule set. Missing or malformed documents fall
// back to defaults and never fail the load.
func (l *Loader) Load(ctx context.Context, tenantID string) *Set {
	rs := cloneRuleSet(l.defaults)
	rs.TenantID = tenantID

	for _, category := range domain.RuleDocCategories {
		doc, err := l.document(ctx, tenantID, category)
		if err != nil {
			l.logger.Warn("rule document unavailable, using defaults",
				"tenant_id", tenantID,
				"category", category,
				"error", err,
			)
			continue
		}
		if doc == nil {
			continue
		}

		override, err := ParseDocument(category, doc)
		if err != nil {
			l.logger.Warn("ignoring malformed rule document",
				"tenant_id", tenantID,
				"category", category,
				"error", err,
			)
			continue
		}
		override.Apply(&rs)
	}

	set, errs := l.engine.Compile(rs)
	for _, err := range errs {
		l.logger.Warn("dropping custom rule", "tenant_id", tenantID, "error", err)
	}
	return set
}

func (l *Loader) document(ctx context.Context, tenantID, category string) ([]byte, error) {
	for _, src := range l.sources {
		doc, err := src.Document(ctx, tenantID, category)
		if err != nil {
			return nil, err
		}
		if doc != nil {
			return doc, nil
		}
	}
	return nil, nil
}

// cloneRuleSet deep-copies rs so overrides never alias the defaults.
func cloneRuleSet(rs domain.RuleSet) domain.RuleSet {
	out := rs
	out.Technical.ApprovalServices = cloneStrings(rs.Technical.ApprovalServices)
	out.Technical.DiagnosisApproval = cloneStrings(rs.Technical.DiagnosisApproval)
	out.Technical.ApprovalPlaceholders = cloneStrings(rs.Technical.ApprovalPlaceholders)
	out.Medical.InpatientOnly = cloneStrings(rs.Medical.InpatientOnly)
	out.Medical.OutpatientOnly = cloneStrings(rs.Medical.OutpatientOnly)

	out.Medical.FacilityRegistry = make(map[string]string, len(rs.Medical.FacilityRegistry))
	for k, v := range rs.Medical.FacilityRegistry {
		out.Medical.FacilityRegistry[k] = v
	}
	out.Medical.FacilityAllowed = cloneListMap(rs.Medical.FacilityAllowed)
	out.Medical.ServiceRequiredDiag = cloneListMap(rs.Medical.ServiceRequiredDiag)

	out.Medical.MutualExclusive = make([]domain.ExclusivePair, len(rs.Medical.MutualExclusive))
	for i, p := range rs.Medical.MutualExclusive {
		out.Medical.MutualExclusive[i] = domain.ExclusivePair{A: cloneStrings(p.A), B: cloneStrings(p.B)}
	}
	out.Custom = append([]domain.CustomRule(nil), rs.Custom...)
	return out
}

func cloneStrings(in []string) []string {
	return append([]string(nil), in...)
}

func cloneListMap(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[k] = cloneStrings(v)
	}
	return out
}

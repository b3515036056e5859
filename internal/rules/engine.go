// Package rules provides claim rule configuration, evaluation and the
// CEL-Go engine for tenant-defined custom rules.
package rules

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/opensource-finance/claimguard/internal/domain"
)

// Engine compiles rule sets and evaluates claim batches in parallel.
type Engine struct {
	env        *cel.Env
	maxWorkers int
}

// compiledRule holds a pre-compiled CEL program.
type compiledRule struct {
	Config  domain.CustomRule
	Program cel.Program
}

// NewEngine creates a new rule evaluation engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	// Create CEL environment with claim variables
	env, err := cel.NewEnv(
		cel.Variable("claim_id", cel.StringType),
		cel.Variable("encounter_type", cel.StringType),
		cel.Variable("service_date", cel.StringType),
		cel.Variable("national_id", cel.StringType),
		cel.Variable("member_id", cel.StringType),
		cel.Variable("facility_id", cel.StringType),
		cel.Variable("unique_id", cel.StringType),
		cel.Variable("service_code", cel.StringType),
		cel.Variable("approval_number", cel.StringType),
		cel.Variable("diagnosis_codes", cel.ListType(cel.StringType)),
		cel.Variable("paid_amount", cel.DoubleType),
		cel.Variable("has_paid_amount", cel.BoolType),
		cel.Variable("has_approval", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:        env,
		maxWorkers: maxWorkers,
	}, nil
}

// Compile canonicalises rs and compiles its enabled custom rules into an
// immutable Set. Custom rules that fail to compile are dropped and reported.
func (e *Engine) Compile(rs domain.RuleSet) (*Set, []error) {
	rs = canonical(rs)
	set := newSet(rs)

	var errs []error
	custom := make([]domain.CustomRule, 0, len(rs.Custom))
	for _, cfg := range rs.Custom {
		if !cfg.Enabled {
			custom = append(custom, cfg)
			continue
		}
		compiled, err := e.compileRule(cfg)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		custom = append(custom, cfg)
		set.custom = append(set.custom, compiled)
	}
	sort.Slice(set.custom, func(i, j int) bool {
		return set.custom[i].Config.ID < set.custom[j].Config.ID
	})
	set.ruleSet.Custom = custom

	return set, errs
}

// ValidateCustom compiles rules without keeping them.
func (e *Engine) ValidateCustom(rules []domain.CustomRule) error {
	for _, cfg := range rules {
		if _, err := e.compileRule(cfg); err != nil {
			return err
		}
	}
	return nil
}

// EvaluateAll evaluates every claim against set in parallel.
// Results are index-aligned with claims.
func (e *Engine) EvaluateAll(ctx context.Context, claims []domain.Claim, set *Set) ([][]domain.Violation, error) {
	results := make([][]domain.Violation, len(claims))
	if len(claims) == 0 {
		return results, nil
	}

	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for i := range claims {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, err
		}
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil, ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			results[idx] = Evaluate(claims[idx], set)
		}(i)
	}

	wg.Wait()

	return results, nil
}

func (e *Engine) compileRule(cfg domain.CustomRule) (*compiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &compiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}

// canonical upper-cases every code in rs and returns a deep copy.
func canonical(rs domain.RuleSet) domain.RuleSet {
	out := cloneRuleSet(rs)

	upperAll(out.Technical.ApprovalServices)
	upperAll(out.Technical.DiagnosisApproval)
	for i, p := range out.Technical.ApprovalPlaceholders {
		out.Technical.ApprovalPlaceholders[i] = strings.ToLower(strings.TrimSpace(p))
	}
	upperAll(out.Medical.InpatientOnly)
	upperAll(out.Medical.OutpatientOnly)

	registry := make(map[string]string, len(out.Medical.FacilityRegistry))
	for id, typ := range out.Medical.FacilityRegistry {
		registry[upper(id)] = upper(typ)
	}
	out.Medical.FacilityRegistry = registry

	out.Medical.FacilityAllowed = upperListMap(out.Medical.FacilityAllowed)
	out.Medical.ServiceRequiredDiag = upperListMap(out.Medical.ServiceRequiredDiag)

	for _, p := range out.Medical.MutualExclusive {
		upperAll(p.A)
		upperAll(p.B)
	}
	return out
}

func upper(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func upperAll(list []string) {
	for i, s := range list {
		list[i] = upper(s)
	}
}

func upperListMap(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, v := range in {
		upperAll(v)
		out[upper(k)] = v
	}
	return out
}

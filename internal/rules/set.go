package rules

import "github.com/opensource-finance/claimguard/internal/domain"

type stringSet map[string]struct{}

func toSet(list []string) stringSet {
	s := make(stringSet, len(list))
	for _, v := range list {
		s[v] = struct{}{}
	}
	return s
}

func (s stringSet) has(v string) bool {
	_, ok := s[v]
	return ok
}

// Set is a compiled, immutable rule set ready for evaluation.
// It is safe for concurrent use.
type Set struct {
	ruleSet domain.RuleSet

	approvalServices stringSet
	diagApproval     stringSet
	placeholders     stringSet
	inpatientOnly    stringSet
	outpatientOnly   stringSet
	facilityAllowed  map[string]stringSet

	custom []*compiledRule
}

func newSet(rs domain.RuleSet) *Set {
	s := &Set{
		ruleSet:          rs,
		approvalServices: toSet(rs.Technical.ApprovalServices),
		diagApproval:     toSet(rs.Technical.DiagnosisApproval),
		placeholders:     toSet(rs.Technical.ApprovalPlaceholders),
		inpatientOnly:    toSet(rs.Medical.InpatientOnly),
		outpatientOnly:   toSet(rs.Medical.OutpatientOnly),
		facilityAllowed:  make(map[string]stringSet, len(rs.Medical.FacilityAllowed)),
	}
	for typ, services := range rs.Medical.FacilityAllowed {
		s.facilityAllowed[typ] = toSet(services)
	}
	return s
}

// Version returns the rule set version.
func (s *Set) Version() string {
	return s.ruleSet.Version
}

// RuleSet returns a copy of the effective configuration.
func (s *Set) RuleSet() domain.RuleSet {
	return cloneRuleSet(s.ruleSet)
}

// CustomCount returns the number of active custom rules.
func (s *Set) CustomCount() int {
	return len(s.custom)
}

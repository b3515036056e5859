package rules

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/claimguard/internal/domain"
)

// ErrInvalidDocument is returned for rule documents that cannot be applied.
var ErrInvalidDocument = errors.New("invalid rule document")

// Override is a parsed tenant rule document. Apply replaces every key the
// document carried and leaves the rest of the set untouched.
type Override interface {
	Apply(rs *domain.RuleSet)
}

// TechnicalOverride carries the keys present in a technical document.
type TechnicalOverride struct {
	ApprovalServices     *[]string
	DiagnosisApproval    *[]string
	PaidThreshold        *float64
	ApprovalPlaceholders *[]string
}

// Apply replaces the technical collections present in o.
func (o *TechnicalOverride) Apply(rs *domain.RuleSet) {
	if o.ApprovalServices != nil {
		rs.Technical.ApprovalServices = *o.ApprovalServices
	}
	if o.DiagnosisApproval != nil {
		rs.Technical.DiagnosisApproval = *o.DiagnosisApproval
	}
	if o.PaidThreshold != nil {
		rs.Technical.PaidThreshold = *o.PaidThreshold
	}
	if o.ApprovalPlaceholders != nil {
		rs.Technical.ApprovalPlaceholders = *o.ApprovalPlaceholders
	}
}

// MedicalOverride carries the keys present in a medical document.
type MedicalOverride struct {
	InpatientOnly       *[]string
	OutpatientOnly      *[]string
	FacilityRegistry    map[string]string
	FacilityAllowed     map[string][]string
	ServiceRequiredDiag map[string][]string
	MutualExclusive     *[]domain.ExclusivePair
}

// Apply replaces the medical collections present in o.
func (o *MedicalOverride) Apply(rs *domain.RuleSet) {
	if o.InpatientOnly != nil {
		rs.Medical.InpatientOnly = *o.InpatientOnly
	}
	if o.OutpatientOnly != nil {
		rs.Medical.OutpatientOnly = *o.OutpatientOnly
	}
	if o.FacilityRegistry != nil {
		rs.Medical.FacilityRegistry = o.FacilityRegistry
	}
	if o.FacilityAllowed != nil {
		rs.Medical.FacilityAllowed = o.FacilityAllowed
	}
	if o.ServiceRequiredDiag != nil {
		rs.Medical.ServiceRequiredDiag = o.ServiceRequiredDiag
	}
	if o.MutualExclusive != nil {
		rs.Medical.MutualExclusive = *o.MutualExclusive
	}
}

// CustomOverride replaces the tenant's custom rule list.
type CustomOverride struct {
	Rules []domain.CustomRule
}

// Apply replaces the custom rules.
func (o *CustomOverride) Apply(rs *domain.RuleSet) {
	rs.Custom = o.Rules
}

// ParseDocument decodes a YAML or JSON rule document of the given category.
// Unknown keys are ignored; a known key of the wrong shape rejects the whole document.
func ParseDocument(category string, data []byte) (Override, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidDocument)
	}

	if category == domain.RuleDocCustom {
		return parseCustom(data)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: document is not a mapping", ErrInvalidDocument)
	}

	switch category {
	case domain.RuleDocTechnical:
		return parseTechnical(doc)
	case domain.RuleDocMedical:
		return parseMedical(doc)
	default:
		return nil, fmt.Errorf("%w: unknown category %q", ErrInvalidDocument, category)
	}
}

func parseTechnical(doc map[string]any) (*TechnicalOverride, error) {
	o := &TechnicalOverride{}
	var err error
	if v, ok := doc["approval_services"]; ok {
		if o.ApprovalServices, err = stringList("approval_services", v); err != nil {
			return nil, err
		}
	}
	if v, ok := doc["diag_approval"]; ok {
		if o.DiagnosisApproval, err = stringList("diag_approval", v); err != nil {
			return nil, err
		}
	}
	if v, ok := doc["paid_threshold"]; ok {
		f, ferr := cast.ToFloat64E(v)
		if ferr != nil || v == nil {
			return nil, fmt.Errorf("%w: paid_threshold must be a number", ErrInvalidDocument)
		}
		o.PaidThreshold = &f
	}
	if v, ok := doc["approval_placeholders"]; ok {
		if o.ApprovalPlaceholders, err = stringList("approval_placeholders", v); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func parseMedical(doc map[string]any) (*MedicalOverride, error) {
	o := &MedicalOverride{}
	var err error
	if v, ok := doc["inpatient_only"]; ok {
		if o.InpatientOnly, err = stringList("inpatient_only", v); err != nil {
			return nil, err
		}
	}
	if v, ok := doc["outpatient_only"]; ok {
		if o.OutpatientOnly, err = stringList("outpatient_only", v); err != nil {
			return nil, err
		}
	}
	if v, ok := doc["facility_registry"]; ok {
		m, merr := cast.ToStringMapStringE(v)
		if merr != nil || v == nil {
			return nil, fmt.Errorf("%w: facility_registry must map facility id to type", ErrInvalidDocument)
		}
		o.FacilityRegistry = m
	}
	if v, ok := doc["facility_allowed"]; ok {
		if o.FacilityAllowed, err = stringListMap("facility_allowed", v); err != nil {
			return nil, err
		}
	}
	if v, ok := doc["service_required_diag"]; ok {
		if o.ServiceRequiredDiag, err = stringListMap("service_required_diag", v); err != nil {
			return nil, err
		}
	}
	if v, ok := doc["mutual_exclusive"]; ok {
		items, lerr := cast.ToSliceE(v)
		if lerr != nil || v == nil {
			return nil, fmt.Errorf("%w: mutual_exclusive must be a list of pairs", ErrInvalidDocument)
		}
		pairs := make([]domain.ExclusivePair, 0, len(items))
		for i, item := range items {
			p, perr := exclusivePair(item)
			if perr != nil {
				return nil, fmt.Errorf("%w: mutual_exclusive[%d]: %v", ErrInvalidDocument, i, perr)
			}
			pairs = append(pairs, p)
		}
		o.MutualExclusive = &pairs
	}
	return o, nil
}

// exclusivePair accepts [a, b] where each side is a code or a list of codes,
// or a mapping with keys a and b.
func exclusivePair(v any) (domain.ExclusivePair, error) {
	if m, err := cast.ToStringMapE(v); err == nil && m != nil {
		a, aerr := codeSide(m["a"])
		b, berr := codeSide(m["b"])
		if aerr != nil || berr != nil {
			return domain.ExclusivePair{}, fmt.Errorf("pair needs non-empty a and b")
		}
		return domain.ExclusivePair{A: a, B: b}, nil
	}

	sides, err := cast.ToSliceE(v)
	if err != nil || len(sides) != 2 {
		return domain.ExclusivePair{}, fmt.Errorf("pair must have exactly two sides")
	}
	a, aerr := codeSide(sides[0])
	b, berr := codeSide(sides[1])
	if aerr != nil || berr != nil {
		return domain.ExclusivePair{}, fmt.Errorf("pair sides must be non-empty")
	}
	return domain.ExclusivePair{A: a, B: b}, nil
}

func codeSide(v any) ([]string, error) {
	if s, ok := v.(string); ok {
		v = []string{s}
	}
	codes, err := cast.ToStringSliceE(v)
	if err != nil || len(codes) == 0 {
		return nil, fmt.Errorf("empty side")
	}
	return codes, nil
}

func stringList(key string, v any) (*[]string, error) {
	if _, isMap := v.(map[string]any); isMap || v == nil {
		return nil, fmt.Errorf("%w: %s must be a list", ErrInvalidDocument, key)
	}
	if s, ok := v.(string); ok {
		v = strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' || r == '|' })
	}
	list, err := cast.ToStringSliceE(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a list", ErrInvalidDocument, key)
	}
	return &list, nil
}

func stringListMap(key string, v any) (map[string][]string, error) {
	raw, err := cast.ToStringMapE(v)
	if err != nil || v == nil {
		return nil, fmt.Errorf("%w: %s must be a mapping", ErrInvalidDocument, key)
	}
	out := make(map[string][]string, len(raw))
	for k, item := range raw {
		list, lerr := stringList(key+"."+k, item)
		if lerr != nil {
			return nil, lerr
		}
		out[k] = *list
	}
	return out, nil
}

type customDocument struct {
	Rules []struct {
		ID             string `yaml:"id"`
		Category       string `yaml:"category"`
		Expression     string `yaml:"expression"`
		Message        string `yaml:"message"`
		Recommendation string `yaml:"recommendation"`
		Enabled        *bool  `yaml:"enabled"`
	} `yaml:"rules"`
}

func parseCustom(data []byte) (*CustomOverride, error) {
	var doc customDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	seen := make(map[string]struct{}, len(doc.Rules))
	o := &CustomOverride{Rules: make([]domain.CustomRule, 0, len(doc.Rules))}
	for i, r := range doc.Rules {
		id := strings.ToUpper(strings.TrimSpace(r.ID))
		if id == "" || strings.TrimSpace(r.Expression) == "" {
			return nil, fmt.Errorf("%w: rules[%d] needs id and expression", ErrInvalidDocument, i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: duplicate rule id %s", ErrInvalidDocument, id)
		}
		seen[id] = struct{}{}

		category := domain.Category(strings.ToLower(strings.TrimSpace(r.Category)))
		switch category {
		case "":
			category = domain.CategoryTechnical
		case domain.CategoryTechnical, domain.CategoryMedical:
		default:
			return nil, fmt.Errorf("%w: rules[%d] has unknown category %q", ErrInvalidDocument, i, r.Category)
		}

		enabled := true
		if r.Enabled != nil {
			enabled = *r.Enabled
		}
		o.Rules = append(o.Rules, domain.CustomRule{
			ID:             id,
			Category:       category,
			Expression:     r.Expression,
			Message:        r.Message,
			Recommendation: r.Recommendation,
			Enabled:        enabled,
		})
	}
	return o, nil
}

package domain

// Rule document categories accepted per tenant.
const (
	RuleDocTechnical = "technical"
	RuleDocMedical   = "medical"
	RuleDocCustom    = "custom"
)

// RuleDocCategories lists the document categories in load order.
var RuleDocCategories = []string{RuleDocTechnical, RuleDocMedical, RuleDocCustom}

// RuleSet is the complete, serialisable rule configuration for one tenant.
type RuleSet struct {
	Version   string         `json:"version"`
	TenantID  string         `json:"tenantId,omitempty"`
	Technical TechnicalRules `json:"technical"`
	Medical   MedicalRules   `json:"medical"`
	Custom    []CustomRule   `json:"custom,omitempty"`
}

// TechnicalRules holds formatting and administrative requirements.
type TechnicalRules struct {
	ApprovalServices     []string `json:"approval_services" yaml:"approval_services"`
	DiagnosisApproval    []string `json:"diag_approval" yaml:"diag_approval"`
	PaidThreshold        float64  `json:"paid_threshold" yaml:"paid_threshold"`
	ApprovalPlaceholders []string `json:"approval_placeholders" yaml:"approval_placeholders"`
}

// MedicalRules holds clinical-consistency requirements.
type MedicalRules struct {
	InpatientOnly       []string            `json:"inpatient_only" yaml:"inpatient_only"`
	OutpatientOnly      []string            `json:"outpatient_only" yaml:"outpatient_only"`
	FacilityRegistry    map[string]string   `json:"facility_registry" yaml:"facility_registry"`
	FacilityAllowed     map[string][]string `json:"facility_allowed" yaml:"facility_allowed"`
	ServiceRequiredDiag map[string][]string `json:"service_required_diag" yaml:"service_required_diag"`
	MutualExclusive     []ExclusivePair     `json:"mutual_exclusive" yaml:"mutual_exclusive"`
}

// ExclusivePair is two diagnosis code sets that must not co-occur on a claim.
// The first code of each side names the rule.
type ExclusivePair struct {
	A []string `json:"a" yaml:"a"`
	B []string `json:"b" yaml:"b"`
}

// CustomRule is a tenant-defined CEL expression evaluated after the built-in checks.
type CustomRule struct {
	ID             string   `json:"id" yaml:"id"`
	Category       Category `json:"category" yaml:"category"`
	Expression     string   `json:"expression" yaml:"expression"`
	Message        string   `json:"message" yaml:"message"`
	Recommendation string   `json:"recommendation" yaml:"recommendation"`
	Enabled        bool     `json:"enabled" yaml:"enabled"`
}

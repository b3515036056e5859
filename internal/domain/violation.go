package domain

// Category is the rule family a violation belongs to.
type Category string

const (
	CategoryTechnical Category = "technical"
	CategoryMedical   Category = "medical"
)

// Violation is one rule breach found for one claim during one validation pass.
type Violation struct {
	ClaimID        string   `json:"claimId"`
	RuleID         string   `json:"ruleId"`
	Category       Category `json:"category"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation"`
}

// Explanation is the human-readable text attached to a rejected claim.
type Explanation struct {
	Bullets        []string `json:"bullets"`
	Recommendation string   `json:"recommendation"`
}

// Metric is one derived aggregate row of the claim population.
type Metric struct {
	TenantID string  `json:"tenantId"`
	Category string  `json:"category"`
	Count    int     `json:"count"`
	Paid     float64 `json:"paid"`
}

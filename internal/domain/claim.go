package domain

import (
	"time"
)

// ClaimStatus is the validation lifecycle state of a claim.
type ClaimStatus string

const (
	// StatusPending marks a claim waiting for the next validation pass.
	StatusPending ClaimStatus = "Pending"

	// StatusValidated marks a claim that produced no violations.
	StatusValidated ClaimStatus = "Validated"

	// StatusNotValidated marks a claim with at least one violation.
	StatusNotValidated ClaimStatus = "Not validated"
)

// ErrorType classifies the categories of violations found on a claim.
type ErrorType string

const (
	ErrorNone      ErrorType = "No error"
	ErrorTechnical ErrorType = "Technical error"
	ErrorMedical   ErrorType = "Medical error"
	ErrorBoth      ErrorType = "Both"
)

// NoActionNeeded is the recommended action for a validated claim.
const NoActionNeeded = "No action needed."

// Encounter types recognised by the medical rules.
const (
	EncounterInpatient  = "INPATIENT"
	EncounterOutpatient = "OUTPATIENT"
)

// Claim represents one billed healthcare encounter submitted for adjudication.
type Claim struct {
	// Core identifiers
	ID       string `json:"claimId"`
	TenantID string `json:"tenantId"`

	// Encounter
	EncounterType string `json:"encounterType"`
	ServiceDate   string `json:"serviceDate,omitempty"` // YYYY-MM-DD when parseable

	// Parties
	NationalID string `json:"nationalId"`
	MemberID   string `json:"memberId"`
	FacilityID string `json:"facilityId"`

	// UniqueID is first4(national)-middle4(member)-last4(facility).
	UniqueID string `json:"uniqueId"`

	// Clinical details
	DiagnosisCodes []string `json:"diagnosisCodes"`
	ServiceCode    string   `json:"serviceCode"`

	// Financial details
	PaidAmount     *float64 `json:"paidAmount,omitempty"`
	ApprovalNumber string   `json:"approvalNumber,omitempty"`

	// Validation outcome
	Status            ClaimStatus `json:"status"`
	ErrorType         ErrorType   `json:"errorType"`
	ErrorExplanation  []string    `json:"errorExplanation"`
	RecommendedAction string      `json:"recommendedAction"`

	// Revision increases on every resubmission. An outcome is only written
	// against the revision it was computed from.
	Revision int64 `json:"-"`

	// Audit timestamps
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// ClaimRecord is one loosely-typed row handed over by an upload collaborator,
// keyed by column name (claim_id, encounter_type, paid_amount_aed, ...).
type ClaimRecord map[string]any

// ClaimFilter narrows claim listings.
type ClaimFilter struct {
	Status    ClaimStatus
	ErrorType ErrorType
	Limit     int
	Offset    int
}

// ClaimDetail is a claim together with its persisted violations.
type ClaimDetail struct {
	*Claim
	Violations []Violation `json:"violations"`
}

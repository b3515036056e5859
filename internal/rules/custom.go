package rules

import (
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/claimguard/internal/domain"
)

// activation builds the CEL variables for a normalized claim.
func (ev *evaluation) activation() map[string]any {
	paid := 0.0
	if ev.claim.PaidAmount != nil {
		paid = *ev.claim.PaidAmount
	}
	diagnoses := ev.claim.DiagnosisCodes
	if diagnoses == nil {
		diagnoses = []string{}
	}

	return map[string]any{
		"claim_id":        ev.claim.ID,
		"encounter_type":  ev.claim.EncounterType,
		"service_date":    ev.claim.ServiceDate,
		"national_id":     ev.claim.NationalID,
		"member_id":       ev.claim.MemberID,
		"facility_id":     ev.claim.FacilityID,
		"unique_id":       ev.claim.UniqueID,
		"service_code":    ev.claim.ServiceCode,
		"approval_number": ev.claim.ApprovalNumber,
		"diagnosis_codes": diagnoses,
		"paid_amount":     paid,
		"has_paid_amount": ev.claim.PaidAmount != nil,
		"has_approval":    ev.approved,
	}
}

// customRules runs tenant CEL rules in id order. A rule that errors at
// runtime is skipped for this claim.
func (ev *evaluation) customRules() {
	if len(ev.set.custom) == 0 {
		return
	}
	vars := ev.activation()

	for _, rule := range ev.set.custom {
		out, _, err := rule.Program.Eval(vars)
		if err != nil {
			continue
		}
		if out != types.True {
			continue
		}

		category := rule.Config.Category
		if category == "" {
			category = domain.CategoryTechnical
		}
		message := rule.Config.Message
		if message == "" {
			message = "Custom rule " + rule.Config.ID + " failed."
		}
		ev.add("CUSTOM_"+rule.Config.ID, category, message, rule.Config.Recommendation)
	}
}

package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/opensource-finance/claimguard/internal/domain"
	"github.com/opensource-finance/claimguard/internal/normalize"
)

var (
	upperAlnum   = regexp.MustCompile(`^[A-Z0-9]+$`)
	uniqueIDForm = regexp.MustCompile(`^[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)
)

// Evaluate runs every check against claim in a fixed order and returns the
// violations found. It has no side effects and never fails: a check whose
// input is absent is skipped.
func Evaluate(claim domain.Claim, set *Set) []domain.Violation {
	c := normalize.Claim(claim)
	ev := evaluation{claim: c, set: set, approved: set.validApproval(c.ApprovalNumber)}

	ev.identifierFormat()
	ev.uniqueID()
	ev.paidThreshold()
	ev.serviceApproval()
	ev.diagnosisApproval()
	ev.encounterRestriction()
	ev.facilityRestriction()
	ev.requiredDiagnosis()
	ev.mutualExclusion()
	ev.customRules()

	if ev.out == nil {
		return []domain.Violation{}
	}
	return ev.out
}

type evaluation struct {
	claim    domain.Claim
	set      *Set
	approved bool
	out      []domain.Violation
}

func (ev *evaluation) add(ruleID string, category domain.Category, message, recommendation string) {
	ev.out = append(ev.out, domain.Violation{
		ClaimID:        ev.claim.ID,
		RuleID:         ruleID,
		Category:       category,
		Message:        message,
		Recommendation: recommendation,
	})
}

// validApproval reports whether an approval number is usable: present and
// not a placeholder such as "Obtain approval".
func (s *Set) validApproval(approval string) bool {
	a := normalize.String(approval)
	if a == "" {
		return false
	}
	return !s.placeholders.has(strings.ToLower(a))
}

func (ev *evaluation) identifierFormat() {
	fields := []struct {
		name  string
		value string
	}{
		{"claim_id", ev.claim.ID},
		{"national_id", ev.claim.NationalID},
		{"member_id", ev.claim.MemberID},
		{"facility_id", ev.claim.FacilityID},
	}
	for _, f := range fields {
		if f.value != "" && upperAlnum.MatchString(strings.ToUpper(f.value)) {
			continue
		}
		ev.add(
			"TECH_"+strings.ToUpper(f.name)+"_FORMAT",
			domain.CategoryTechnical,
			fmt.Sprintf("%s must be UPPERCASE alphanumeric (A–Z, 0–9).", f.name),
			fmt.Sprintf("Ensure %s uses uppercase letters and digits only.", f.name),
		)
	}
}

func (ev *evaluation) uniqueID() {
	if ev.claim.UniqueID == "" {
		ev.add("TECH_UNIQUEID_MISSING", domain.CategoryTechnical,
			"unique_id is missing.",
			"Provide unique_id using first4(national_id)-middle4(member_id)-last4(facility_id).")
		return
	}

	uid := strings.ToUpper(ev.claim.UniqueID)
	if !uniqueIDForm.MatchString(uid) {
		ev.add("TECH_UNIQUEID_FORMAT", domain.CategoryTechnical,
			"unique_id must be 3 segments of 4 UPPERCASE alphanumeric characters separated by hyphens.",
			"Format unique_id as first4(national)-middle4(member)-last4(facility).")
		return
	}

	segments := strings.Split(uid, "-")
	expected := ExpectedUniqueIDSegments(ev.claim.NationalID, ev.claim.MemberID, ev.claim.FacilityID)

	var mismatches []string
	for i, want := range expected {
		if want != "" && segments[i] != want {
			mismatches = append(mismatches,
				fmt.Sprintf("segment%d expected %s but got %s", i+1, want, segments[i]))
		}
	}
	if len(mismatches) > 0 {
		ev.add("TECH_UNIQUEID_MISMATCH", domain.CategoryTechnical,
			"unique_id segments do not match underlying ID sources: "+strings.Join(mismatches, "; "),
			"Rebuild unique_id using the specified segments from national_id, member_id and facility_id.")
	}
}

// ExpectedUniqueIDSegments derives the three unique id segments from their
// source identifiers. A segment is empty when its source is absent.
func ExpectedUniqueIDSegments(nationalID, memberID, facilityID string) [3]string {
	var seg [3]string

	if n := strings.ToUpper(nationalID); n != "" {
		seg[0] = prefix(n, 4)
	}
	seg[1] = Middle4(memberID)
	if f := []rune(strings.ToUpper(facilityID)); len(f) > 0 {
		if len(f) > 4 {
			f = f[len(f)-4:]
		}
		seg[2] = string(f)
	}
	return seg
}

// Middle4 returns the four characters centred in id. Ids of four characters
// or fewer are right-padded with X. Lengths count runes, not bytes.
func Middle4(id string) string {
	s := []rune(strings.ToUpper(id))
	n := len(s)
	if n == 0 {
		return ""
	}
	if n <= 4 {
		return string(s) + strings.Repeat("X", 4-n)
	}
	start := (n - 4) / 2
	return string(s[start : start+4])
}

func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) > n {
		return string(r[:n])
	}
	return s
}

func (ev *evaluation) paidThreshold() {
	paid := ev.claim.PaidAmount
	threshold := ev.set.ruleSet.Technical.PaidThreshold
	if paid == nil || *paid <= threshold || ev.approved {
		return
	}
	ev.add("TECH_PAID_THRESHOLD_APPROVAL", domain.CategoryTechnical,
		fmt.Sprintf("Paid amount AED %s exceeds threshold AED %s and no valid approval number present.",
			formatAmount(*paid), formatAmount(threshold)),
		"Obtain prior approval and include approval number in approval_number field.")
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (ev *evaluation) serviceApproval() {
	svc := ev.claim.ServiceCode
	if svc == "" || ev.approved || !ev.set.approvalServices.has(svc) {
		return
	}
	ev.add("TECH_SERVICE_"+svc+"_REQUIRES_APPROVAL", domain.CategoryTechnical,
		fmt.Sprintf("Service %s requires prior approval but no valid approval number was supplied.", svc),
		"Obtain and include prior approval number for this service.")
}

// diagnosisApproval reports only the first matching diagnosis.
func (ev *evaluation) diagnosisApproval() {
	if ev.approved {
		return
	}
	for _, d := range ev.claim.DiagnosisCodes {
		if !ev.set.diagApproval.has(d) {
			continue
		}
		ev.add("TECH_DIAG_"+d+"_REQUIRES_APPROVAL", domain.CategoryTechnical,
			fmt.Sprintf("Diagnosis %s requires prior approval, but approval number missing.", d),
			"Obtain and include prior approval number for claims with this diagnosis.")
		return
	}
}

func (ev *evaluation) encounterRestriction() {
	svc := ev.claim.ServiceCode
	if svc == "" {
		return
	}
	enc := ev.claim.EncounterType
	shown := enc
	if shown == "" {
		shown = "missing"
	}

	if ev.set.inpatientOnly.has(svc) && enc != domain.EncounterInpatient {
		ev.add("MED_ENCOUNTER_"+svc+"_INPATIENT_ONLY", domain.CategoryMedical,
			fmt.Sprintf("Service %s is inpatient-only but claim encounter_type=%s.", svc, shown),
			"Verify encounter_type is INPATIENT for this service.")
	}
	if ev.set.outpatientOnly.has(svc) && enc != domain.EncounterOutpatient {
		ev.add("MED_ENCOUNTER_"+svc+"_OUTPATIENT_ONLY", domain.CategoryMedical,
			fmt.Sprintf("Service %s is outpatient-only but claim encounter_type=%s.", svc, shown),
			"Verify encounter_type is OUTPATIENT for this service.")
	}
}

// facilityRestriction skips facilities missing from the registry.
func (ev *evaluation) facilityRestriction() {
	svc := ev.claim.ServiceCode
	fid := strings.ToUpper(ev.claim.FacilityID)
	if svc == "" || fid == "" {
		return
	}
	typ, ok := ev.set.ruleSet.Medical.FacilityRegistry[fid]
	if !ok || typ == "" {
		return
	}
	if ev.set.facilityAllowed[typ].has(svc) {
		return
	}
	ev.add("MED_FACILITY_"+svc+"_NOT_ALLOWED", domain.CategoryMedical,
		fmt.Sprintf("Service %s is not allowed at facility %s (type %s).", svc, fid, typ),
		fmt.Sprintf("Perform %s at a facility type that supports it (current facility type: %s).", svc, typ))
}

func (ev *evaluation) requiredDiagnosis() {
	svc := ev.claim.ServiceCode
	required := ev.set.ruleSet.Medical.ServiceRequiredDiag[svc]
	if svc == "" || len(required) == 0 {
		return
	}
	if containsAny(ev.claim.DiagnosisCodes, required) {
		return
	}
	codes := strings.Join(required, ", ")
	ev.add("MED_SERVICE_"+svc+"_MISSING_REQUIRED_DIAG", domain.CategoryMedical,
		fmt.Sprintf("Service %s requires one of diagnoses: %s but none present.", svc, codes),
		fmt.Sprintf("Include required diagnosis code(s): %s when billing %s.", codes, svc))
}

func (ev *evaluation) mutualExclusion() {
	for _, pair := range ev.set.ruleSet.Medical.MutualExclusive {
		if len(pair.A) == 0 || len(pair.B) == 0 {
			continue
		}
		if !containsAny(ev.claim.DiagnosisCodes, pair.A) || !containsAny(ev.claim.DiagnosisCodes, pair.B) {
			continue
		}
		ev.add("MED_MUTUAL_"+pair.A[0]+"_"+pair.B[0], domain.CategoryMedical,
			fmt.Sprintf("Mutually exclusive diagnoses present: %s cannot co-exist with %s.",
				strings.Join(pair.A, ", "), strings.Join(pair.B, ", ")),
			"Review diagnosis list and remove incorrect / conflicting diagnosis codes.")
	}
}

func containsAny(codes []string, wanted []string) bool {
	for _, c := range codes {
		for _, w := range wanted {
			if c == w {
				return true
			}
		}
	}
	return false
}

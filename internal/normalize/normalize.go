// Package normalize turns loosely-typed claim fields into their canonical form.
//
// Normalization never fails. Values that cannot be interpreted collapse to
// "absent" and the rule evaluator decides what absence means.
package normalize

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"

	"github.com/opensource-finance/claimguard/internal/domain"
)

// nullMarkers are compared after trimming and upper-casing.
var nullMarkers = map[string]struct{}{
	"":     {},
	"NA":   {},
	"N/A":  {},
	"NONE": {},
	"NULL": {},
	"-":    {},
}

// String trims v and returns "" for empty values and null markers.
func String(v any) string {
	if v == nil {
		return ""
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return ""
	}
	s = strings.TrimSpace(s)
	if _, ok := nullMarkers[strings.ToUpper(s)]; ok {
		return ""
	}
	return s
}

// Upper is String followed by upper-casing.
func Upper(v any) string {
	return strings.ToUpper(String(v))
}

// DiagnosisCodes accepts a delimited string or a list and returns the
// trimmed, upper-cased codes in order. Duplicates are kept.
func DiagnosisCodes(v any) []string {
	var parts []string
	switch t := v.(type) {
	case nil:
		return []string{}
	case string:
		parts = strings.FieldsFunc(t, func(r rune) bool {
			return r == ';' || r == ',' || r == '|'
		})
	case []string:
		parts = t
	default:
		list, err := cast.ToSliceE(v)
		if err != nil {
			parts = []string{String(v)}
			break
		}
		for _, item := range list {
			parts = append(parts, String(item))
		}
	}

	codes := make([]string, 0, len(parts))
	for _, p := range parts {
		if code := Upper(p); code != "" {
			codes = append(codes, code)
		}
	}
	return codes
}

// PaidAmount coerces v to a number. Absent, non-numeric or non-finite input
// returns nil.
func PaidAmount(v any) *float64 {
	switch t := v.(type) {
	case nil:
		return nil
	case *float64:
		if t == nil {
			return nil
		}
		v = *t
	case string:
		v = String(strings.ReplaceAll(t, ",", ""))
		if v == "" {
			return nil
		}
	case bool:
		return nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// ServiceDate renders v as YYYY-MM-DD when it parses as a date,
// otherwise returns the normalized string form.
func ServiceDate(v any) string {
	if t, ok := v.(time.Time); ok {
		if t.IsZero() {
			return ""
		}
		return t.Format(time.DateOnly)
	}
	s := String(v)
	if s == "" {
		return ""
	}
	if t, err := cast.ToTimeE(s); err == nil {
		return t.Format(time.DateOnly)
	}
	return s
}

// Claim returns a canonical copy of c. Identifiers are trimmed, codes
// upper-cased and null markers collapsed.
func Claim(c domain.Claim) domain.Claim {
	out := c
	out.ID = String(c.ID)
	out.TenantID = String(c.TenantID)
	out.EncounterType = Upper(c.EncounterType)
	out.ServiceDate = ServiceDate(c.ServiceDate)
	out.NationalID = String(c.NationalID)
	out.MemberID = String(c.MemberID)
	out.FacilityID = String(c.FacilityID)
	out.UniqueID = String(c.UniqueID)
	out.DiagnosisCodes = DiagnosisCodes(c.DiagnosisCodes)
	out.ServiceCode = Upper(c.ServiceCode)
	out.ApprovalNumber = String(c.ApprovalNumber)
	if c.PaidAmount != nil {
		paid := *c.PaidAmount
		out.PaidAmount = &paid
	}
	return out
}

// Record builds a Pending claim from an upload row. A missing claim id is
// replaced by a generated AUTO_<UUID> identifier.
func Record(tenantID string, r domain.ClaimRecord) domain.Claim {
	paid, ok := r["paid_amount_aed"]
	if !ok {
		paid = r["paid_amount"]
	}

	c := domain.Claim{
		ID:             String(r["claim_id"]),
		TenantID:       tenantID,
		EncounterType:  Upper(r["encounter_type"]),
		ServiceDate:    ServiceDate(r["service_date"]),
		NationalID:     String(r["national_id"]),
		MemberID:       String(r["member_id"]),
		FacilityID:     String(r["facility_id"]),
		UniqueID:       String(r["unique_id"]),
		DiagnosisCodes: DiagnosisCodes(r["diagnosis_codes"]),
		ServiceCode:    Upper(r["service_code"]),
		PaidAmount:     PaidAmount(paid),
		ApprovalNumber: String(r["approval_number"]),
		Status:         domain.StatusPending,
	}
	if c.ID == "" {
		c.ID = strings.ToUpper("auto_" + uuid.NewString())
	}
	return c
}

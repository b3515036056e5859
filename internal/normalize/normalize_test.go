package normalize

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/claimguard/internal/domain"
)

func TestString(t *testing.T) {
	cases := map[string]struct {
		in   any
		want string
	}{
		"nil":          {nil, ""},
		"trimmed":      {"  AB12 ", "AB12"},
		"empty":        {"   ", ""},
		"na":           {"na", ""},
		"n/a":          {"N/A", ""},
		"none":         {"None", ""},
		"null":         {"NULL", ""},
		"dash":         {" - ", ""},
		"keeps case":   {"abc", "abc"},
		"integer":      {12345, "12345"},
		"float":        {12345.0, "12345"},
		"not a marker": {"NAN", "NAN"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, String(tc.in))
		})
	}
}

func TestDiagnosisCodes(t *testing.T) {
	t.Run("delimited string", func(t *testing.T) {
		assert.Equal(t, []string{"E11.9", "R07.9", "Z34.0"}, DiagnosisCodes(" e11.9; r07.9 | Z34.0 "))
	})

	t.Run("mixed delimiters and empties", func(t *testing.T) {
		assert.Equal(t, []string{"A", "B", "C"}, DiagnosisCodes("a,,b;;|c"))
	})

	t.Run("duplicates kept", func(t *testing.T) {
		assert.Equal(t, []string{"E11.9", "E11.9"}, DiagnosisCodes("E11.9;e11.9"))
	})

	t.Run("list input", func(t *testing.T) {
		assert.Equal(t, []string{"E66.9", "R51"}, DiagnosisCodes([]any{" e66.9", nil, "NA", "r51"}))
	})

	t.Run("string slice", func(t *testing.T) {
		assert.Equal(t, []string{"G43.9"}, DiagnosisCodes([]string{"g43.9", ""}))
	})

	t.Run("absent", func(t *testing.T) {
		assert.Empty(t, DiagnosisCodes(nil))
		assert.Empty(t, DiagnosisCodes(""))
		assert.Empty(t, DiagnosisCodes("N/A"))
	})
}

func TestPaidAmount(t *testing.T) {
	t.Run("numeric string", func(t *testing.T) {
		got := PaidAmount(" 300.50 ")
		require.NotNil(t, got)
		assert.InDelta(t, 300.5, *got, 1e-9)
	})

	t.Run("thousands separator", func(t *testing.T) {
		got := PaidAmount("1,250")
		require.NotNil(t, got)
		assert.InDelta(t, 1250.0, *got, 1e-9)
	})

	t.Run("number", func(t *testing.T) {
		got := PaidAmount(42)
		require.NotNil(t, got)
		assert.InDelta(t, 42.0, *got, 1e-9)
	})

	t.Run("json number", func(t *testing.T) {
		got := PaidAmount(json.Number("99.5"))
		require.NotNil(t, got)
		assert.InDelta(t, 99.5, *got, 1e-9)
	})

	t.Run("absent or non-numeric", func(t *testing.T) {
		assert.Nil(t, PaidAmount(nil))
		assert.Nil(t, PaidAmount(""))
		assert.Nil(t, PaidAmount("NA"))
		assert.Nil(t, PaidAmount("abc"))
		assert.Nil(t, PaidAmount(true))
	})

	t.Run("non-finite", func(t *testing.T) {
		for _, in := range []any{"NaN", "Inf", "+Inf", "-Infinity", math.NaN(), math.Inf(1), json.Number("NaN")} {
			assert.Nil(t, PaidAmount(in), "input %v", in)
		}
		nan := math.NaN()
		assert.Nil(t, PaidAmount(&nan))
	})
}

func TestServiceDate(t *testing.T) {
	assert.Equal(t, "2024-03-05", ServiceDate("2024-03-05"))
	assert.Equal(t, "2024-03-05", ServiceDate("2024-03-05T10:00:00Z"))
	assert.Equal(t, "", ServiceDate("null"))
	assert.Equal(t, "sometime", ServiceDate("sometime"))
}

func TestClaim(t *testing.T) {
	paid := 120.0
	in := domain.Claim{
		ID:             " c1 ",
		EncounterType:  "inpatient",
		NationalID:     "N/A",
		MemberID:       " m1 ",
		DiagnosisCodes: []string{"e11.9", " "},
		ServiceCode:    " srv1001",
		PaidAmount:     &paid,
		ApprovalNumber: "none",
	}

	out := Claim(in)
	assert.Equal(t, "c1", out.ID)
	assert.Equal(t, domain.EncounterInpatient, out.EncounterType)
	assert.Empty(t, out.NationalID)
	assert.Equal(t, "m1", out.MemberID)
	assert.Equal(t, []string{"E11.9"}, out.DiagnosisCodes)
	assert.Equal(t, "SRV1001", out.ServiceCode)
	assert.Empty(t, out.ApprovalNumber)

	require.NotNil(t, out.PaidAmount)
	*out.PaidAmount = 1
	assert.Equal(t, 120.0, paid, "input paid amount must not be shared")
}

func TestRecord(t *testing.T) {
	t.Run("maps columns", func(t *testing.T) {
		c := Record("tenant-a", domain.ClaimRecord{
			"claim_id":        "CLM001",
			"encounter_type":  "Outpatient",
			"service_date":    "2024-01-02",
			"national_id":     "AB12XXXX",
			"member_id":       "12CDEFGH",
			"facility_id":     "9XYZ",
			"unique_id":       "AB12-CDEF-9XYZ",
			"diagnosis_codes": "e11.9;r07.9",
			"service_code":    "srv2007",
			"paid_amount_aed": "300",
			"approval_number": "Obtain approval",
		})

		assert.Equal(t, "CLM001", c.ID)
		assert.Equal(t, "tenant-a", c.TenantID)
		assert.Equal(t, domain.EncounterOutpatient, c.EncounterType)
		assert.Equal(t, []string{"E11.9", "R07.9"}, c.DiagnosisCodes)
		assert.Equal(t, "SRV2007", c.ServiceCode)
		require.NotNil(t, c.PaidAmount)
		assert.Equal(t, 300.0, *c.PaidAmount)
		assert.Equal(t, "Obtain approval", c.ApprovalNumber)
		assert.Equal(t, domain.StatusPending, c.Status)
	})

	t.Run("paid amount alias", func(t *testing.T) {
		c := Record("t", domain.ClaimRecord{"claim_id": "X", "paid_amount": 10})
		require.NotNil(t, c.PaidAmount)
		assert.Equal(t, 10.0, *c.PaidAmount)
	})

	t.Run("generated id", func(t *testing.T) {
		c := Record("t", domain.ClaimRecord{"claim_id": "NA"})
		assert.True(t, strings.HasPrefix(c.ID, "AUTO_"))
		assert.Equal(t, strings.ToUpper(c.ID), c.ID)
		assert.Nil(t, c.PaidAmount)
	})
}

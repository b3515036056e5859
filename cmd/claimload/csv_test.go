package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = "\ufeffClaim_ID,encounter_type,diagnosis_codes,paid_amount_aed,approval_number\n" +
	"CLM001,OUTPATIENT,J45.909;E11.9,100,\n" +
	"CLM002,INPATIENT,\"R07.9,Z34.0\",300,APR-1\n" +
	"CLM003,OUTPATIENT\n" +
	"CLM004,OUTPATIENT,J45.909,50,\n"

func TestParseClaims(t *testing.T) {
	records, skipped, err := parseClaims(strings.NewReader(sample), 0)
	require.NoError(t, err)

	// The short row fails the csv field count check.
	assert.Equal(t, 1, skipped)
	require.Len(t, records, 3)

	assert.Equal(t, "CLM001", records[0]["claim_id"])
	assert.Equal(t, "J45.909;E11.9", records[0]["diagnosis_codes"])
	assert.NotContains(t, records[0], "approval_number")

	assert.Equal(t, "R07.9,Z34.0", records[1]["diagnosis_codes"])
	assert.Equal(t, "APR-1", records[1]["approval_number"])
}

func TestParseClaimsLimit(t *testing.T) {
	records, _, err := parseClaims(strings.NewReader(sample), 2)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestParseClaimsEmpty(t *testing.T) {
	_, _, err := parseClaims(strings.NewReader(""), 0)
	assert.Error(t, err)
}

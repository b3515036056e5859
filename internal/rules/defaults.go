package rules

import "github.com/opensource-finance/claimguard/internal/domain"

// DefaultVersion identifies the built-in rule tables.
const DefaultVersion = "defaults-2025.1"

// Defaults returns a fresh copy of the built-in rule tables.
// Callers may modify the returned value without affecting later calls.
func Defaults() domain.RuleSet {
	return domain.RuleSet{
		Version: DefaultVersion,
		Technical: domain.TechnicalRules{
			ApprovalServices:     []string{"SRV1001", "SRV1002", "SRV2008"},
			DiagnosisApproval:    []string{"E11.9", "R07.9", "Z34.0"},
			PaidThreshold:        250,
			ApprovalPlaceholders: []string{"obtain approval"},
		},
		Medical: domain.MedicalRules{
			InpatientOnly: []string{"SRV1001", "SRV1002", "SRV1003"},
			OutpatientOnly: []string{
				"SRV2001", "SRV2002", "SRV2003", "SRV2004", "SRV2006",
				"SRV2007", "SRV2008", "SRV2010", "SRV2011",
			},
			FacilityRegistry: map[string]string{
				"0DBYE6KP": "DIALYSIS_CENTER",
				"2XKSZK4T": "MATERNITY_HOSPITAL",
				"7R1VMIGX": "CARDIOLOGY_CENTER",
				"96GUDLMT": "GENERAL_HOSPITAL",
				"9V7HTI6E": "GENERAL_HOSPITAL",
				"EGVP0QAQ": "GENERAL_HOSPITAL",
				"EPRETQTL": "DIALYSIS_CENTER",
				"FLXFBIMD": "GENERAL_HOSPITAL",
				"GLCTDQAJ": "MATERNITY_HOSPITAL",
				"GY0GUI8G": "GENERAL_HOSPITAL",
				"I2MFYKYM": "GENERAL_HOSPITAL",
				"LB7I54Z7": "CARDIOLOGY_CENTER",
				"M1XCZVQD": "CARDIOLOGY_CENTER",
				"M7DJYNG5": "GENERAL_HOSPITAL",
				"MT5W4HIR": "MATERNITY_HOSPITAL",
				"OCQUMGDW": "GENERAL_HOSPITAL",
				"OIAP2DTP": "CARDIOLOGY_CENTER",
				"Q3G9N34N": "GENERAL_HOSPITAL",
				"Q8OZ5Z7C": "GENERAL_HOSPITAL",
				"RNPGDXCU": "MATERNITY_HOSPITAL",
				"S174K5QK": "GENERAL_HOSPITAL",
				"SKH7D31V": "CARDIOLOGY_CENTER",
				"SZC62NTW": "GENERAL_HOSPITAL",
				"VV1GS6P0": "MATERNITY_HOSPITAL",
				"ZDE6M6NJ": "GENERAL_HOSPITAL",
			},
			FacilityAllowed: map[string][]string{
				"MATERNITY_HOSPITAL": {"SRV2008"},
				"DIALYSIS_CENTER":    {"SRV1003", "SRV2010"},
				"CARDIOLOGY_CENTER":  {"SRV2001", "SRV2011"},
				"GENERAL_HOSPITAL": {
					"SRV1001", "SRV1002", "SRV1003", "SRV2001", "SRV2002", "SRV2003",
					"SRV2004", "SRV2006", "SRV2007", "SRV2008", "SRV2010", "SRV2011",
				},
			},
			ServiceRequiredDiag: map[string][]string{
				"SRV2007": {"E11.9"},   // HbA1c: diabetes
				"SRV2006": {"J45.909"}, // pulmonary function test: asthma
				"SRV2001": {"R07.9"},   // ECG: chest pain
				"SRV2008": {"Z34.0"},   // pregnancy ultrasound: pregnancy
				"SRV2005": {"N39.0"},   // urine culture: UTI
			},
			MutualExclusive: []domain.ExclusivePair{
				{A: []string{"R73.03"}, B: []string{"E11.9"}},
				{A: []string{"E66.9"}, B: []string{"E66.3"}},
				{A: []string{"R51"}, B: []string{"G43.9"}},
			},
		},
	}
}

package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVCFValidationError_Error(t *testing.T) {
	err := &VCFValidationError{Errors: []string{"Empty VCF file"}}
	assert.Equal(t, "invalid VCF v4.2 file: Empty VCF file", err.Error())

	err = &VCFValidationError{Errors: []string{"first", "second"}}
	assert.Equal(t, "invalid VCF v4.2 file: first; second", err.Error())
}

func TestExplanationRequest_FallbackExplanation(t *testing.T) {
	req := &ExplanationRequest{
		Drug:      "CODEINE",
		Gene:      "CYP2D6",
		Diplotype: "*4/*4",
		Phenotype: PhenotypePM,
		RiskLabel: RiskIneffective,
	}

	exp := req.FallbackExplanation()

	assert.Equal(t,
		"Patient's CYP2D6 *4/*4 results in PM phenotype, classifying CODEINE risk as Ineffective.",
		exp.Summary)
	assert.Contains(t, exp.MechanismOfAction, "CYP2D6 encodes an enzyme/transporter")
	assert.Contains(t, exp.VariantSignificance, "PM status per CPIC")
	assert.Contains(t, exp.DosingRationale, "CPIC guidelines recommend action")
}

func TestParseResult_ErrorInvalidatesResult(t *testing.T) {
	result := NewParseResult()
	require.True(t, result.IsValid)

	result.AddWarning("informational only")
	assert.True(t, result.IsValid)

	result.AddError("something fatal")
	assert.False(t, result.IsValid)
	assert.Len(t, result.Errors, 1)
	assert.Len(t, result.Warnings, 1)
}

func TestParseResult_AddVariantBucketsByGene(t *testing.T) {
	result := NewParseResult()

	result.AddVariant(VariantRecord{RSID: "rs3892097", Gene: "CYP2D6"})
	result.AddVariant(VariantRecord{RSID: "rs1065852", Gene: "CYP2D6"})
	result.AddVariant(VariantRecord{RSID: "rs4244285", Gene: "CYP2C19"})

	assert.Len(t, result.Variants, 3)
	require.Len(t, result.VariantsForGene("CYP2D6"), 2)
	assert.Equal(t, "rs3892097", result.VariantsForGene("CYP2D6")[0].RSID)
	assert.Len(t, result.VariantsForGene("CYP2C19"), 1)
	assert.Nil(t, result.VariantsForGene("TPMT"))
}

func TestVariantRecord_Validate(t *testing.T) {
	valid := VariantRecord{
		RSID:       "rs3892097",
		Chromosome: "chr22",
		Position:   42524947,
		Gene:       "CYP2D6",
		StarAllele: "*4",
		Impact:     NoFunction,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name    string
		mutate  func(v *VariantRecord)
		wantErr error
	}{
		{"Unsupported gene", func(v *VariantRecord) { v.Gene = "CYP3A4" }, ErrUnsupportedGene},
		{"Zero position", func(v *VariantRecord) { v.Position = 0 }, nil},
		{"Invalid impact", func(v *VariantRecord) { v.Impact = AlleleFunction("bogus") }, ErrInvalidAlleleFunc},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := valid
			tt.mutate(&v)
			err := v.Validate()
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestRiskRule_Validate(t *testing.T) {
	valid := RiskRule{
		RiskLabel:  RiskSafe,
		Severity:   SeverityNone,
		Confidence: 0.95,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(r *RiskRule)
	}{
		{"Invalid label", func(r *RiskRule) { r.RiskLabel = RiskLabel("bad") }},
		{"Invalid severity", func(r *RiskRule) { r.Severity = Severity("bad") }},
		{"Confidence above one", func(r *RiskRule) { r.Confidence = 1.1 }},
		{"Negative confidence", func(r *RiskRule) { r.Confidence = -0.1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			assert.Error(t, r.Validate())
		})
	}
}

func TestIsSupportedGene(t *testing.T) {
	for _, g := range SupportedGenes {
		assert.True(t, IsSupportedGene(g))
	}
	assert.False(t, IsSupportedGene("cyp2d6")) // callers normalize case first
	assert.False(t, IsSupportedGene("BRCA1"))
}

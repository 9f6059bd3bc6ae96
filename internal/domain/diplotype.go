package domain

import "fmt"

// DiplotypeResult holds the resolved two-allele genotype and derived
// metabolizer phenotype for one gene. Allele1 is the more functionally
// severe (or first-detected) of the two.
type DiplotypeResult struct {
	Gene            string          `json:"gene"`
	Allele1         string          `json:"allele1"`
	Allele2         string          `json:"allele2"`
	Allele1Function AlleleFunction  `json:"allele1_function"`
	Allele2Function AlleleFunction  `json:"allele2_function"`
	Diplotype       string          `json:"diplotype"` // "allele1/allele2"
	ActivityScore   float64         `json:"activity_score"`
	Phenotype       Phenotype       `json:"phenotype"`
	Variants        []VariantRecord `json:"detected_variants"`
}

// LogFields returns structured logging fields for audit trails.
func (d *DiplotypeResult) LogFields() map[string]any {
	return map[string]any{
		"gene":           d.Gene,
		"diplotype":      d.Diplotype,
		"activity_score": d.ActivityScore,
		"phenotype":      d.Phenotype.String(),
		"variant_count":  len(d.Variants),
	}
}

// RiskRule is a static clinical-decision record keyed by (drug, phenotype).
// The rule table is immutable and loaded once at startup; rules are never
// mutated at runtime.
type RiskRule struct {
	RiskLabel          RiskLabel `json:"risk_label"`
	Severity           Severity  `json:"severity"`
	Confidence         float64   `json:"confidence"` // in [0,1]
	RecommendedAction  string    `json:"recommended_action"`
	DoseAdjustment     string    `json:"dose_adjustment"`
	AlternativeDrugs   []string  `json:"alternative_drugs"`
	MonitoringRequired bool      `json:"monitoring_required"`
	GuidelineReference string    `json:"cpic_guideline_reference"`
}

// Validate ensures the rule satisfies the table invariants. Used by the
// risk engine's startup self-check over the whole rule table.
func (r *RiskRule) Validate() error {
	if !r.RiskLabel.IsValid() {
		return fmt.Errorf("risk rule validation: %w", ErrInvalidRiskLabel)
	}
	if !r.Severity.IsValid() {
		return fmt.Errorf("risk rule validation: %w", ErrInvalidSeverity)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("risk rule validation: confidence %.2f out of [0,1]", r.Confidence)
	}
	return nil
}

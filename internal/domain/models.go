package domain

import (
	"fmt"
	"strings"
	"time"
)

// RiskAssessment is the risk portion of a drug analysis response.
type RiskAssessment struct {
	RiskLabel       RiskLabel `json:"risk_label"`
	ConfidenceScore float64   `json:"confidence_score"`
	Severity        Severity  `json:"severity"`
}

// DetectedVariant is the trimmed, user-facing view of a variant record.
type DetectedVariant struct {
	RSID       string         `json:"rsid"`
	Chromosome string         `json:"chromosome"`
	Position   int64          `json:"position"`
	Genotype   string         `json:"genotype"`
	Impact     AlleleFunction `json:"impact"`
}

// PharmacogenomicProfile is the genetics portion of a drug analysis response.
type PharmacogenomicProfile struct {
	PrimaryGene      string            `json:"primary_gene"`
	Diplotype        string            `json:"diplotype"`
	Phenotype        Phenotype         `json:"phenotype"`
	ActivityScore    float64           `json:"activity_score"`
	DetectedVariants []DetectedVariant `json:"detected_variants"`
}

// ClinicalRecommendation carries the CPIC prescribing guidance for the
// resolved phenotype.
type ClinicalRecommendation struct {
	GuidelineReference string   `json:"cpic_guideline_reference"`
	RecommendedAction  string   `json:"recommended_action"`
	DoseAdjustment     string   `json:"dose_adjustment"`
	AlternativeDrugs   []string `json:"alternative_drugs"`
	MonitoringRequired bool     `json:"monitoring_required"`
}

// Explanation is a generated clinical narrative grounded on the detected
// variants and the matched guideline. Produced by an external collaborator;
// the core only carries it through.
type Explanation struct {
	Summary             string `json:"summary"`
	MechanismOfAction   string `json:"mechanism_of_action"`
	VariantSignificance string `json:"variant_significance"`
	DosingRationale     string `json:"dosing_rationale"`
}

// QualityMetrics records per-drug processing quality for audit purposes.
type QualityMetrics struct {
	ParsingSuccess         bool    `json:"vcf_parsing_success"`
	VariantMatchConfidence float64 `json:"variant_match_confidence"`
	ExplanationGrounded    bool    `json:"explanation_grounded_on_guidelines"`
	ProcessingTimeMs       int64   `json:"processing_time_ms"`
}

// AnalysisResult is the complete analysis output for a single drug.
type AnalysisResult struct {
	ID                     string                 `json:"id"`
	PatientID              string                 `json:"patient_id"`
	Drug                   string                 `json:"drug"`
	Timestamp              time.Time              `json:"timestamp"`
	RiskAssessment         RiskAssessment         `json:"risk_assessment"`
	PharmacogenomicProfile PharmacogenomicProfile `json:"pharmacogenomic_profile"`
	ClinicalRecommendation ClinicalRecommendation `json:"clinical_recommendation"`
	Explanation            Explanation            `json:"llm_generated_explanation"`
	QualityMetrics         QualityMetrics         `json:"quality_metrics"`
}

// AnalysisResponse wraps the per-drug results of one uploaded file.
type AnalysisResponse struct {
	Results                 []AnalysisResult `json:"results"`
	TotalDrugsAnalyzed      int              `json:"total_drugs_analyzed"`
	OverallProcessingTimeMs int64            `json:"overall_processing_time_ms"`
}

// SupportedDrug is one entry of the supported-drugs listing.
type SupportedDrug struct {
	Name        string `json:"name"`
	PrimaryGene string `json:"primary_gene"`
}

// ExplanationRequest carries everything an explanation generator needs to
// produce a guideline-grounded clinical narrative for one drug analysis.
type ExplanationRequest struct {
	Drug              string
	Gene              string
	Diplotype         string
	Phenotype         Phenotype
	Variants          []VariantRecord
	RiskLabel         RiskLabel
	RecommendedAction string
}

// FallbackExplanation builds the deterministic explanation used when no
// generator is configured or generation fails. The analysis itself never
// depends on generation succeeding.
func (r *ExplanationRequest) FallbackExplanation() Explanation {
	return Explanation{
		Summary: fmt.Sprintf("Patient's %s %s results in %s phenotype, classifying %s risk as %s.",
			r.Gene, r.Diplotype, r.Phenotype, r.Drug, r.RiskLabel),
		MechanismOfAction: fmt.Sprintf("%s encodes an enzyme/transporter involved in %s metabolism. "+
			"The %s diplotype alters enzymatic activity.", r.Gene, r.Drug, r.Diplotype),
		VariantSignificance: fmt.Sprintf("The detected %s variants indicate %s status per CPIC "+
			"allele function tables.", r.Gene, r.Phenotype),
		DosingRationale: fmt.Sprintf("CPIC guidelines recommend action for %s metabolizers prescribed "+
			"%s. Consult full guideline for specific dosing.", r.Phenotype, r.Drug),
	}
}

// VCFValidationError reports a rejected VCF file together with the parser's
// structured error list. API handlers map it to 422 Unprocessable Entity.
type VCFValidationError struct {
	Errors []string
}

func (e *VCFValidationError) Error() string {
	return fmt.Sprintf("invalid VCF v4.2 file: %s", strings.Join(e.Errors, "; "))
}

// ValidationResult is the response body for a validate-only request.
type ValidationResult struct {
	IsValid                 bool     `json:"is_valid"`
	Errors                  []string `json:"errors"`
	Warnings                []string `json:"warnings"`
	SampleID                string   `json:"sample_id,omitempty"`
	VariantCount            int      `json:"variant_count"`
	PharmacogeneVariantsHit int      `json:"pharmacogene_variants_found"`
}

// Package domain contains core business entities and types for pharmacogenomic
// drug-response risk classification following CPIC (Clinical Pharmacogenetics
// Implementation Consortium) guidelines.
//
// Reference: Relling MV, Klein TE (2011) CPIC: Clinical Pharmacogenetics
// Implementation Consortium of the Pharmacogenomics Research Network.
// Clin Pharmacol Ther. 89(3):464-7. doi: 10.1038/clpt.2010.279
package domain

import (
	"errors"
)

// RiskLabel represents the clinical drug-response risk verdict for a
// (drug, phenotype) combination. These labels follow CPIC prescribing
// guidance and represent the actionable outcome of an analysis.
type RiskLabel string

const (
	RiskSafe         RiskLabel = "Safe"
	RiskAdjustDosage RiskLabel = "Adjust Dosage"
	RiskToxic        RiskLabel = "Toxic"
	RiskIneffective  RiskLabel = "Ineffective"
	RiskUnknown      RiskLabel = "Unknown"
)

// Severity represents the severity tier attached to a risk verdict.
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Phenotype represents the metabolizer status derived from a diplotype's
// activity score: poor, intermediate, normal, rapid or ultra-rapid.
type Phenotype string

const (
	PhenotypePM      Phenotype = "PM"
	PhenotypeIM      Phenotype = "IM"
	PhenotypeNM      Phenotype = "NM"
	PhenotypeRM      Phenotype = "RM"
	PhenotypeURM     Phenotype = "URM"
	PhenotypeUnknown Phenotype = "Unknown"
)

// AlleleFunction represents the functional impact category of a star allele.
// Modeled as a closed set with explicit uncertain/unknown members so that a
// classifier switch cannot silently fall through.
type AlleleFunction string

const (
	NormalFunction    AlleleFunction = "normal_function"
	DecreasedFunction AlleleFunction = "decreased_function"
	NoFunction        AlleleFunction = "no_function"
	IncreasedFunction AlleleFunction = "increased_function"
	UncertainFunction AlleleFunction = "uncertain_function"
	UnknownFunction   AlleleFunction = "unknown"
)

// Validation errors for medical data integrity
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidRiskLabel  = errors.New("invalid risk label")
	ErrInvalidSeverity   = errors.New("invalid severity tier")
	ErrInvalidPhenotype  = errors.New("invalid metabolizer phenotype")
	ErrInvalidAlleleFunc = errors.New("invalid allele function category")
	ErrUnsupportedGene   = errors.New("unsupported pharmacogene")
	ErrUnsupportedDrug   = errors.New("unsupported drug")
)

// IsValid validates that the RiskLabel is one of the CPIC-aligned verdicts.
// This is critical for medical software to ensure only valid verdicts are
// used in clinical decision-making.
func (r RiskLabel) IsValid() bool {
	switch r {
	case RiskSafe, RiskAdjustDosage, RiskToxic, RiskIneffective, RiskUnknown:
		return true
	default:
		return false
	}
}

// String returns the string representation of the risk label.
// Required for proper logging and audit trails in medical software.
func (r RiskLabel) String() string {
	return string(r)
}

// LogFields returns structured logging fields for audit trails.
// Critical for medical software compliance and traceability.
func (r RiskLabel) LogFields() map[string]any {
	return map[string]any{
		"risk_label":      string(r),
		"is_valid":        r.IsValid(),
		"requires_action": r.RequiresClinicalAction(),
	}
}

// RequiresClinicalAction determines if the verdict requires clinical
// follow-up before prescribing.
func (r RiskLabel) RequiresClinicalAction() bool {
	switch r {
	case RiskSafe:
		return false
	case RiskAdjustDosage, RiskToxic, RiskIneffective:
		return true
	default:
		return true // Conservative approach for unknown verdicts
	}
}

// IsValid validates the severity tier.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityNone, SeverityLow, SeverityModerate, SeverityHigh, SeverityCritical:
		return true
	default:
		return false
	}
}

// String returns the string representation of the severity tier.
func (s Severity) String() string {
	return string(s)
}

// IsValid validates the metabolizer phenotype code.
func (p Phenotype) IsValid() bool {
	switch p {
	case PhenotypePM, PhenotypeIM, PhenotypeNM, PhenotypeRM, PhenotypeURM, PhenotypeUnknown:
		return true
	default:
		return false
	}
}

// String returns the string representation of the phenotype code.
func (p Phenotype) String() string {
	return string(p)
}

// Description returns a human-readable description of the phenotype for
// clinical reporting.
func (p Phenotype) Description() string {
	switch p {
	case PhenotypePM:
		return "Poor Metabolizer"
	case PhenotypeIM:
		return "Intermediate Metabolizer"
	case PhenotypeNM:
		return "Normal Metabolizer"
	case PhenotypeRM:
		return "Rapid Metabolizer"
	case PhenotypeURM:
		return "Ultra-Rapid Metabolizer"
	default:
		return "Unknown metabolizer status"
	}
}

// IsValid validates the allele function category.
func (f AlleleFunction) IsValid() bool {
	switch f {
	case NormalFunction, DecreasedFunction, NoFunction, IncreasedFunction,
		UncertainFunction, UnknownFunction:
		return true
	default:
		return false
	}
}

// String returns the string representation of the allele function category.
func (f AlleleFunction) String() string {
	return string(f)
}

// Score returns the CPIC activity-score weight of the allele function.
// Uncertain and unknown categories weigh 0.5 so that an unannotated variant
// degrades the score conservatively rather than being ignored.
func (f AlleleFunction) Score() float64 {
	switch f {
	case NoFunction:
		return 0.0
	case DecreasedFunction, UncertainFunction, UnknownFunction:
		return 0.5
	case NormalFunction:
		return 1.0
	case IncreasedFunction:
		return 1.5
	default:
		return 0.5
	}
}

// ParsePhenotype converts a raw phenotype string to the closed Phenotype
// set, mapping anything unrecognized to PhenotypeUnknown.
func ParsePhenotype(s string) Phenotype {
	p := Phenotype(s)
	if p.IsValid() {
		return p
	}
	return PhenotypeUnknown
}

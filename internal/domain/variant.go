package domain

import (
	"errors"
	"fmt"
)

// SupportedGenes is the fixed set of pharmacogenes the pipeline recognizes,
// in reporting order. Process-wide immutable data.
var SupportedGenes = []string{"CYP2D6", "CYP2C19", "CYP2C9", "SLCO1B1", "TPMT", "DPYD"}

// IsSupportedGene reports whether the given symbol is one of the supported
// pharmacogenes. Matching is exact; callers normalize case first.
func IsSupportedGene(symbol string) bool {
	for _, g := range SupportedGenes {
		if g == symbol {
			return true
		}
	}
	return false
}

// VariantRecord represents one genomic call of pharmacogenomic interest,
// produced by the VCF extractor and consumed unchanged by the diplotype
// resolver.
type VariantRecord struct {
	// Identity
	RSID       string `json:"rsid"`
	Chromosome string `json:"chromosome"` // normalized with a single "chr" prefix
	Position   int64  `json:"position"`   // 1-based genomic position

	// Call data
	Ref      string  `json:"ref"`
	Alt      string  `json:"alt"` // comma-joined if multiallelic
	Genotype string  `json:"genotype"`
	Quality  float64 `json:"quality"`

	// Annotation
	Gene       string         `json:"gene"`
	StarAllele string         `json:"star_allele"`
	Impact     AlleleFunction `json:"impact"`
}

// Validate ensures the variant record meets the invariants required before
// it may enter the resolution pipeline.
func (v *VariantRecord) Validate() error {
	if !IsSupportedGene(v.Gene) {
		return fmt.Errorf("variant validation: %w: %s", ErrUnsupportedGene, v.Gene)
	}
	if v.Position <= 0 {
		return fmt.Errorf("variant validation: %w", errors.New("position must be positive"))
	}
	if !v.Impact.IsValid() {
		return fmt.Errorf("variant validation: %w", ErrInvalidAlleleFunc)
	}
	return nil
}

// ParseResult is the outcome of one VCF extraction pass. Errors are fatal
// for the file; warnings are informational and never invalidate the result.
type ParseResult struct {
	IsValid       bool                       `json:"is_valid"`
	Errors        []string                   `json:"errors"`
	Warnings      []string                   `json:"warnings"`
	SampleID      string                     `json:"sample_id,omitempty"`
	TotalVariants int                        `json:"total_variants"`
	Variants      []VariantRecord            `json:"pharmacogene_variants"`
	GeneVariants  map[string][]VariantRecord `json:"gene_variants"`
}

// NewParseResult returns an empty, valid parse result ready to accumulate
// variants and diagnostics.
func NewParseResult() *ParseResult {
	return &ParseResult{
		IsValid:      true,
		GeneVariants: make(map[string][]VariantRecord),
	}
}

// AddError records a fatal error and flips the validity flag, preserving the
// invariant that a result with errors is never valid.
func (r *ParseResult) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.IsValid = false
}

// AddWarning records a non-fatal diagnostic.
func (r *ParseResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// AddVariant appends a record to the flat variant list and to its gene's
// bucket, preserving first-encountered order.
func (r *ParseResult) AddVariant(v VariantRecord) {
	r.Variants = append(r.Variants, v)
	r.GeneVariants[v.Gene] = append(r.GeneVariants[v.Gene], v)
}

// VariantsForGene returns the ordered variant bucket for a gene, or nil when
// the file carried no informative calls for it.
func (r *ParseResult) VariantsForGene(gene string) []VariantRecord {
	return r.GeneVariants[gene]
}

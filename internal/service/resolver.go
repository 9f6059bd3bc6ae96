package service

import (
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-server/internal/domain"
)

// ResolverService derives a gene's diplotype and metabolizer phenotype from
// its detected variants. It has no error path by construction: absence of
// data degrades gracefully to the wild-type *1/*1 diplotype.
type ResolverService struct {
	logger *logrus.Logger
}

// NewResolverService creates a new diplotype resolver service
func NewResolverService(logger *logrus.Logger) *ResolverService {
	return &ResolverService{logger: logger}
}

// wildTypeAllele is the reference star allele assumed for each undetected
// gene copy.
const wildTypeAllele = "*1"

type detectedAllele struct {
	star     string
	function domain.AlleleFunction
}

// Resolve determines the two-allele genotype for a gene from the variants
// detected in it, then maps the summed activity score onto a phenotype.
//
// A homozygous-alternate call contributes its allele twice; every other call
// (heterozygous or undetermined) contributes it once. With two or more
// contributed alleles the two most severe win, ties broken by detection
// order.
func (s *ResolverService) Resolve(gene string, variants []domain.VariantRecord) *domain.DiplotypeResult {
	gentable := alleleFunctions[gene]

	var detected []detectedAllele
	for _, v := range variants {
		fn := alleleFunction(gentable, v)

		allele := detectedAllele{star: v.StarAllele, function: fn}
		if isHomozygousAlt(v.Genotype) {
			detected = append(detected, allele, allele)
		} else {
			detected = append(detected, allele)
		}
	}

	var a1, a2 detectedAllele
	switch len(detected) {
	case 0:
		a1 = detectedAllele{wildTypeAllele, domain.NormalFunction}
		a2 = a1
	case 1:
		a1 = detected[0]
		a2 = detectedAllele{wildTypeAllele, domain.NormalFunction}
	default:
		// Most severe first; the sort must be stable so that detection
		// order breaks ties.
		sort.SliceStable(detected, func(i, j int) bool {
			return detected[i].function.Score() < detected[j].function.Score()
		})
		a1 = detected[0]
		a2 = detected[1]
	}

	score := a1.function.Score() + a2.function.Score()
	phenotype := scoreToPhenotype(score, gene)

	result := &domain.DiplotypeResult{
		Gene:            gene,
		Allele1:         a1.star,
		Allele2:         a2.star,
		Allele1Function: a1.function,
		Allele2Function: a2.function,
		Diplotype:       a1.star + "/" + a2.star,
		ActivityScore:   score,
		Phenotype:       phenotype,
		Variants:        variants,
	}

	s.logger.WithFields(result.LogFields()).Debug("Resolved diplotype")

	return result
}

// alleleFunction picks the functional category for a detected variant. A
// record annotated `unknown` came from the INFO GENE-tag fallback, where the
// star allele is unverified free text; such calls are always treated as
// uncertain_function rather than trusted against the curated table. Everything
// else resolves through the gene's star-allele table, keeping the variant's
// own annotation for stars the table doesn't know.
func alleleFunction(gentable map[string]domain.AlleleFunction, v domain.VariantRecord) domain.AlleleFunction {
	if v.Impact == domain.UnknownFunction {
		return domain.UncertainFunction
	}
	if fn, ok := gentable[v.StarAllele]; ok {
		return fn
	}
	return v.Impact
}

// isHomozygousAlt reports whether a decoded genotype string carries the same
// called allele on both chromosomes. Undetermined calls (".") never count.
func isHomozygousAlt(genotype string) bool {
	parts := strings.FieldsFunc(genotype, func(r rune) bool {
		return r == '/' || r == '|'
	})
	return len(parts) == 2 && parts[0] == parts[1] && parts[0] != "."
}

// scoreToPhenotype buckets an activity score into a metabolizer phenotype.
// Genes with recognized increased-function alleles use the extended RM/URM
// ladder; for the rest, scores of 1.0 and 1.5 both land on NM. The flat
// region is intentional, since only five distinct weight sums are reachable.
func scoreToPhenotype(score float64, gene string) domain.Phenotype {
	if increasedFunctionGenes[gene] {
		switch {
		case score >= 2.5:
			return domain.PhenotypeURM
		case score >= 1.75:
			return domain.PhenotypeRM
		case score >= 1.0:
			return domain.PhenotypeNM
		case score >= 0.5:
			return domain.PhenotypeIM
		default:
			return domain.PhenotypePM
		}
	}

	switch {
	case score >= 1.0:
		return domain.PhenotypeNM
	case score >= 0.5:
		return domain.PhenotypeIM
	default:
		return domain.PhenotypePM
	}
}

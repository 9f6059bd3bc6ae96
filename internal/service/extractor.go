package service

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-server/internal/domain"
)

// ExtractorService parses VCF v4.2 text and extracts the variants relevant
// to the supported pharmacogenes. It performs no I/O; callers hand it the
// decoded file content.
type ExtractorService struct {
	logger *logrus.Logger
}

// NewExtractorService creates a new VCF extractor service
func NewExtractorService(logger *logrus.Logger) *ExtractorService {
	return &ExtractorService{logger: logger}
}

var vcfVersionPattern = regexp.MustCompile(`VCFv?(\d+\.?\d*)`)

// Extract parses VCF file content and returns the structured parse result.
// Matching applies three strategies in order: known rsIDs in the ID column,
// RS tags in INFO, and GENE tags in INFO as a fallback. A record is added
// at most once per exact chromosome+position.
func (s *ExtractorService) Extract(content string, maxSizeMB int) *domain.ParseResult {
	result := domain.NewParseResult()

	sizeMB := float64(len(content)) / (1024 * 1024)
	if sizeMB > float64(maxSizeMB) {
		result.AddError(fmt.Sprintf("File size %.1fMB exceeds %dMB limit", sizeMB, maxSizeMB))
		return result
	}

	lines := strings.Split(strings.TrimSpace(content), "\n")

	headerIdx, ok := s.validateHeader(lines, result)
	if !ok {
		return result
	}

	seen := make(map[string]bool) // chrom:pos dedupe across strategies

	for i := headerIdx + 1; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		cols := strings.Split(line, "\t")
		if len(cols) < 8 {
			continue
		}

		result.TotalVariants++

		chrom := strings.TrimPrefix(cols[0], "chr")
		pos, err := strconv.ParseInt(cols[1], 10, 64)
		if err != nil {
			result.AddError(fmt.Sprintf("Malformed position %q on data line %d", cols[1], i+1))
			return result
		}
		varID := cols[2]
		ref := cols[3]
		alt := cols[4]

		qual := 0.0
		if cols[5] != "." {
			qual, err = strconv.ParseFloat(cols[5], 64)
			if err != nil {
				result.AddError(fmt.Sprintf("Malformed quality %q on data line %d", cols[5], i+1))
				return result
			}
		}
		info := cols[7]

		genotype := "."
		if len(cols) >= 10 {
			genotype = decodeGenotype(cols[9], ref, alt)
		}

		posKey := chrom + ":" + cols[1]

		// Strategy 1: known rsIDs in the ID column
		rsids := make([]string, 0, 2)
		for _, tok := range strings.Split(varID, ";") {
			if strings.HasPrefix(tok, "rs") {
				rsids = append(rsids, tok)
			}
		}

		// Strategy 2: RS tag in the INFO field
		if rsInfo, ok := extractInfoField(info, "RS"); ok {
			rsTag := rsInfo
			if !strings.HasPrefix(rsTag, "rs") {
				rsTag = "rs" + rsTag
			}
			if !containsString(rsids, rsTag) {
				rsids = append(rsids, rsTag)
			}
		}

		for _, rsid := range rsids {
			ann, hit := LookupVariant(rsid)
			if !hit || seen[posKey] {
				continue
			}
			result.AddVariant(domain.VariantRecord{
				RSID:       rsid,
				Chromosome: "chr" + chrom,
				Position:   pos,
				Ref:        ref,
				Alt:        alt,
				Genotype:   genotype,
				Quality:    qual,
				Gene:       ann.Gene,
				StarAllele: ann.StarAllele,
				Impact:     ann.Impact,
			})
			seen[posKey] = true
		}

		// Strategy 3: GENE tag fallback for target genes with no rsID match
		if geneInfo, ok := extractInfoField(info, "GENE"); ok {
			gene := strings.ToUpper(geneInfo)
			if domain.IsSupportedGene(gene) && !seen[posKey] {
				rsid := varID
				if rsid == "." {
					rsid = fmt.Sprintf("chr%s:%d", chrom, pos)
				}
				star := "unknown"
				if starInfo, ok := extractInfoField(info, "STAR"); ok {
					star = starInfo
				}
				result.AddVariant(domain.VariantRecord{
					RSID:       rsid,
					Chromosome: "chr" + chrom,
					Position:   pos,
					Ref:        ref,
					Alt:        alt,
					Genotype:   genotype,
					Quality:    qual,
					Gene:       gene,
					StarAllele: star,
					Impact:     domain.UnknownFunction,
				})
				seen[posKey] = true
			}
		}
	}

	if len(result.Variants) == 0 {
		result.AddWarning("No pharmacogenomic variants detected in the uploaded VCF")
	}

	s.logger.WithFields(logrus.Fields{
		"sample_id":             result.SampleID,
		"total_variants":        result.TotalVariants,
		"pharmacogene_variants": len(result.Variants),
		"genes_hit":             len(result.GeneVariants),
		"warnings":              len(result.Warnings),
	}).Info("Completed VCF extraction")

	return result
}

// validateHeader checks the VCF header structure, records the sample ID and
// returns the index of the #CHROM column-header line. A false return means
// parsing must stop; the fatal error is already on the result.
func (s *ExtractorService) validateHeader(lines []string, result *domain.ParseResult) (int, bool) {
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		result.AddError("Empty VCF file")
		return 0, false
	}

	first := strings.TrimSpace(lines[0])
	if !strings.HasPrefix(first, "##fileformat=VCF") {
		result.AddError("Invalid VCF file: missing ##fileformat header")
		return 0, false
	}

	if m := vcfVersionPattern.FindStringSubmatch(first); m != nil {
		if !strings.HasPrefix(m[1], "4") {
			result.AddWarning(fmt.Sprintf("VCF version %s detected; v4.2 expected", m[1]))
		}
	} else {
		result.AddWarning("Could not determine VCF version")
	}

	for i, line := range lines {
		if !strings.HasPrefix(line, "#CHROM") {
			continue
		}
		cols := strings.Split(strings.TrimSpace(line), "\t")
		if len(cols) < 10 {
			result.AddWarning("No sample genotype column detected")
		} else {
			result.SampleID = cols[9]
		}
		return i, true
	}

	result.AddError("Missing #CHROM header line")
	return 0, false
}

// decodeGenotype maps the first colon-delimited GT subfield of a sample
// column onto actual allele letters. Allele index 0 is the reference, 1-based
// indices select comma-split alternates, "." stays as-is and anything else
// becomes "?". The source separator ("|" phased, "/" unphased) is preserved.
func decodeGenotype(sampleField, ref, alt string) string {
	gt := strings.SplitN(sampleField, ":", 2)[0]

	alleles := map[string]string{
		"0": ref,
		".": ".",
	}
	for i, a := range strings.Split(alt, ",") {
		alleles[strconv.Itoa(i+1)] = a
	}

	sep := "/"
	if strings.Contains(gt, "|") {
		sep = "|"
	}

	indices := strings.FieldsFunc(gt, func(r rune) bool {
		return r == '/' || r == '|'
	})

	called := make([]string, 0, len(indices))
	for _, idx := range indices {
		if a, ok := alleles[idx]; ok {
			called = append(called, a)
		} else {
			called = append(called, "?")
		}
	}

	return strings.Join(called, sep)
}

// extractInfoField pulls a specific key out of a semicolon-separated VCF
// INFO field. Keys match case-insensitively; bare flag tokens report "true".
func extractInfoField(info, key string) (string, bool) {
	for _, part := range strings.Split(info, ";") {
		if k, v, found := strings.Cut(part, "="); found {
			if strings.EqualFold(k, key) {
				return v, true
			}
		} else if strings.EqualFold(part, key) {
			return "true", true
		}
	}
	return "", false
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-server/internal/domain"
)

// ExplanationGenerator produces a clinical narrative for one drug analysis.
// Implementations may call an external model; failures are tolerated and the
// analyzer substitutes a deterministic fallback.
type ExplanationGenerator interface {
	GenerateExplanation(ctx context.Context, req *domain.ExplanationRequest) (domain.Explanation, error)
}

// AnalysisStore persists completed drug analyses for later retrieval.
type AnalysisStore interface {
	SaveAnalysis(ctx context.Context, result *domain.AnalysisResult) error
}

// defaultPatientID is used when the VCF carries no sample genotype column.
const defaultPatientID = "PATIENT_001"

// AnalyzerService orchestrates the full per-request pipeline: VCF extraction,
// per-drug diplotype resolution, risk classification, explanation generation
// and persistence. Extraction runs once per request; the per-drug chains run
// concurrently because the underlying services are pure.
type AnalyzerService struct {
	logger     *logrus.Logger
	extractor  *ExtractorService
	resolver   *ResolverService
	riskEngine *RiskEngine
	explainer  ExplanationGenerator
	store      AnalysisStore

	drugGenes    map[string]string
	maxVCFSizeMB int
	saveTimeout  time.Duration
}

// NewAnalyzerService creates the analysis orchestrator. explainer and store
// are optional; a nil explainer yields deterministic fallback narratives and
// a nil store disables persistence.
func NewAnalyzerService(
	logger *logrus.Logger,
	cfg domain.AnalysisConfig,
	explainer ExplanationGenerator,
	store AnalysisStore,
) *AnalyzerService {
	drugGenes := make(map[string]string, len(cfg.DrugGenes))
	for drug, gene := range cfg.DrugGenes {
		drugGenes[strings.ToUpper(drug)] = strings.ToUpper(gene)
	}

	return &AnalyzerService{
		logger:       logger,
		extractor:    NewExtractorService(logger),
		resolver:     NewResolverService(logger),
		riskEngine:   NewRiskEngine(logger),
		explainer:    explainer,
		store:        store,
		drugGenes:    drugGenes,
		maxVCFSizeMB: cfg.MaxVCFSizeMB,
		saveTimeout:  10 * time.Second,
	}
}

// SupportedDrugs returns the drug→primary-gene table, sorted by drug name.
func (s *AnalyzerService) SupportedDrugs() []domain.SupportedDrug {
	drugs := make([]domain.SupportedDrug, 0, len(s.drugGenes))
	for drug, gene := range s.drugGenes {
		drugs = append(drugs, domain.SupportedDrug{Name: drug, PrimaryGene: gene})
	}
	sort.Slice(drugs, func(i, j int) bool { return drugs[i].Name < drugs[j].Name })
	return drugs
}

// NormalizeDrugs upper-cases and de-blanks a raw drug list and rejects any
// drug missing from the supported table.
func (s *AnalyzerService) NormalizeDrugs(raw []string) ([]string, error) {
	drugs := make([]string, 0, len(raw))
	for _, d := range raw {
		d = strings.ToUpper(strings.TrimSpace(d))
		if d != "" {
			drugs = append(drugs, d)
		}
	}
	if len(drugs) == 0 {
		return nil, fmt.Errorf("at least one drug name is required: %w", domain.ErrUnsupportedDrug)
	}

	var unsupported []string
	for _, d := range drugs {
		if _, ok := s.drugGenes[d]; !ok {
			unsupported = append(unsupported, d)
		}
	}
	if len(unsupported) > 0 {
		supported := make([]string, 0, len(s.drugGenes))
		for d := range s.drugGenes {
			supported = append(supported, d)
		}
		sort.Strings(supported)
		return nil, fmt.Errorf("unsupported drugs: %s (supported: %s): %w",
			strings.Join(unsupported, ", "), strings.Join(supported, ", "),
			domain.ErrUnsupportedDrug)
	}
	return drugs, nil
}

// Validate parses the VCF content without running the full analysis.
func (s *AnalyzerService) Validate(content string) *domain.ValidationResult {
	parsed := s.extractor.Extract(content, s.maxVCFSizeMB)
	return &domain.ValidationResult{
		IsValid:                 parsed.IsValid && len(parsed.Errors) == 0,
		Errors:                  parsed.Errors,
		Warnings:                parsed.Warnings,
		SampleID:                parsed.SampleID,
		VariantCount:            parsed.TotalVariants,
		PharmacogeneVariantsHit: len(parsed.Variants),
	}
}

// Analyze runs the complete pipeline for every requested drug against one
// VCF file. Drugs must already be normalized via NormalizeDrugs. Results are
// returned in request order regardless of completion order; persistence runs
// asynchronously and never fails the analysis.
func (s *AnalyzerService) Analyze(ctx context.Context, content string, drugs []string) (*domain.AnalysisResponse, error) {
	overallStart := time.Now()

	parsed := s.extractor.Extract(content, s.maxVCFSizeMB)
	if !parsed.IsValid {
		return nil, &domain.VCFValidationError{Errors: parsed.Errors}
	}

	patientID := parsed.SampleID
	if patientID == "" {
		patientID = defaultPatientID
	}

	results := make([]domain.AnalysisResult, len(drugs))
	var wg sync.WaitGroup
	for i, drug := range drugs {
		wg.Add(1)
		go func(i int, drug string) {
			defer wg.Done()
			results[i] = s.analyzeSingleDrug(ctx, drug, parsed, patientID)
		}(i, drug)
	}
	wg.Wait()

	if s.store != nil {
		for i := range results {
			go s.persist(results[i])
		}
	}

	return &domain.AnalysisResponse{
		Results:                 results,
		TotalDrugsAnalyzed:      len(results),
		OverallProcessingTimeMs: time.Since(overallStart).Milliseconds(),
	}, nil
}

// analyzeSingleDrug runs resolution, classification and explanation for one
// drug against an already-parsed VCF.
func (s *AnalyzerService) analyzeSingleDrug(
	ctx context.Context,
	drug string,
	parsed *domain.ParseResult,
	patientID string,
) domain.AnalysisResult {
	drugStart := time.Now()

	gene := s.drugGenes[drug]
	geneVariants := parsed.VariantsForGene(gene)

	diplo := s.resolver.Resolve(gene, geneVariants)
	rule := s.riskEngine.Classify(drug, diplo.Phenotype.String())

	detected := make([]domain.DetectedVariant, 0, len(geneVariants))
	for _, v := range geneVariants {
		detected = append(detected, domain.DetectedVariant{
			RSID:       v.RSID,
			Chromosome: v.Chromosome,
			Position:   v.Position,
			Genotype:   v.Genotype,
			Impact:     v.Impact,
		})
	}

	explainReq := &domain.ExplanationRequest{
		Drug:              drug,
		Gene:              gene,
		Diplotype:         diplo.Diplotype,
		Phenotype:         diplo.Phenotype,
		Variants:          geneVariants,
		RiskLabel:         rule.RiskLabel,
		RecommendedAction: rule.RecommendedAction,
	}

	explanation, grounded := s.explain(ctx, explainReq)

	s.logger.WithFields(logrus.Fields{
		"drug":           drug,
		"gene":           gene,
		"diplotype":      diplo.Diplotype,
		"phenotype":      diplo.Phenotype.String(),
		"risk_label":     rule.RiskLabel.String(),
		"severity":       rule.Severity.String(),
		"variant_count":  len(geneVariants),
		"explanation_ok": grounded,
	}).Info("Drug analysis completed")

	return domain.AnalysisResult{
		ID:        uuid.New().String(),
		PatientID: patientID,
		Drug:      drug,
		Timestamp: time.Now().UTC(),
		RiskAssessment: domain.RiskAssessment{
			RiskLabel:       rule.RiskLabel,
			ConfidenceScore: rule.Confidence,
			Severity:        rule.Severity,
		},
		PharmacogenomicProfile: domain.PharmacogenomicProfile{
			PrimaryGene:      gene,
			Diplotype:        diplo.Diplotype,
			Phenotype:        diplo.Phenotype,
			ActivityScore:    diplo.ActivityScore,
			DetectedVariants: detected,
		},
		ClinicalRecommendation: domain.ClinicalRecommendation{
			GuidelineReference: rule.GuidelineReference,
			RecommendedAction:  rule.RecommendedAction,
			DoseAdjustment:     rule.DoseAdjustment,
			AlternativeDrugs:   rule.AlternativeDrugs,
			MonitoringRequired: rule.MonitoringRequired,
		},
		Explanation: explanation,
		QualityMetrics: domain.QualityMetrics{
			ParsingSuccess:         parsed.IsValid,
			VariantMatchConfidence: rule.Confidence,
			ExplanationGrounded:    grounded,
			ProcessingTimeMs:       time.Since(drugStart).Milliseconds(),
		},
	}
}

// explain calls the configured generator, substituting the deterministic
// fallback when none is configured or generation fails. The second return
// reports whether the narrative came from the generator.
func (s *AnalyzerService) explain(ctx context.Context, req *domain.ExplanationRequest) (domain.Explanation, bool) {
	if s.explainer == nil {
		return req.FallbackExplanation(), false
	}

	explanation, err := s.explainer.GenerateExplanation(ctx, req)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"drug": req.Drug,
			"gene": req.Gene,
		}).WithError(err).Error("Explanation generation failed, using fallback")
		return req.FallbackExplanation(), false
	}
	return explanation, true
}

// persist writes one result to the store on its own context so that a slow
// or failing store cannot delay or fail the HTTP response.
func (s *AnalyzerService) persist(result domain.AnalysisResult) {
	ctx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
	defer cancel()

	if err := s.store.SaveAnalysis(ctx, &result); err != nil {
		s.logger.WithFields(logrus.Fields{
			"analysis_id": result.ID,
			"drug":        result.Drug,
		}).WithError(err).Error("Failed to persist analysis result")
	}
}

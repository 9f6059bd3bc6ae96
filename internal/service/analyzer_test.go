package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaguard-server/internal/domain"
)

func testAnalysisConfig() domain.AnalysisConfig {
	return domain.AnalysisConfig{
		MaxVCFSizeMB: 5,
		DrugGenes: map[string]string{
			"CODEINE":      "CYP2D6",
			"WARFARIN":     "CYP2C9",
			"CLOPIDOGREL":  "CYP2C19",
			"SIMVASTATIN":  "SLCO1B1",
			"AZATHIOPRINE": "TPMT",
			"FLUOROURACIL": "DPYD",
		},
	}
}

type stubExplainer struct {
	mu       sync.Mutex
	requests []*domain.ExplanationRequest
	err      error
}

func (s *stubExplainer) GenerateExplanation(_ context.Context, req *domain.ExplanationRequest) (domain.Explanation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return domain.Explanation{}, s.err
	}
	return domain.Explanation{Summary: "generated for " + req.Drug}, nil
}

type stubStore struct {
	mu    sync.Mutex
	saved []*domain.AnalysisResult
	err   error
	done  chan struct{}
}

func newStubStore(expected int) *stubStore {
	return &stubStore{done: make(chan struct{}, expected)}
}

func (s *stubStore) SaveAnalysis(_ context.Context, result *domain.AnalysisResult) error {
	s.mu.Lock()
	s.saved = append(s.saved, result)
	s.mu.Unlock()
	s.done <- struct{}{}
	return s.err
}

func (s *stubStore) waitForSaves(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-s.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for save %d of %d", i+1, n)
		}
	}
}

func TestAnalyzerService_NormalizeDrugs(t *testing.T) {
	analyzer := NewAnalyzerService(newTestLogger(), testAnalysisConfig(), nil, nil)

	tests := []struct {
		name    string
		raw     []string
		want    []string
		wantErr bool
	}{
		{"Upper-cases and trims", []string{" codeine ", "Warfarin"}, []string{"CODEINE", "WARFARIN"}, false},
		{"Drops blanks", []string{"", "  ", "codeine"}, []string{"CODEINE"}, false},
		{"All blank", []string{"", "  "}, nil, true},
		{"Empty input", nil, nil, true},
		{"Unsupported drug", []string{"ASPIRIN"}, nil, true},
		{"Mixed supported and unsupported", []string{"CODEINE", "IBUPROFEN"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := analyzer.NormalizeDrugs(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrUnsupportedDrug)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAnalyzerService_SupportedDrugs(t *testing.T) {
	analyzer := NewAnalyzerService(newTestLogger(), testAnalysisConfig(), nil, nil)

	drugs := analyzer.SupportedDrugs()

	require.Len(t, drugs, 6)
	assert.Equal(t, domain.SupportedDrug{Name: "AZATHIOPRINE", PrimaryGene: "TPMT"}, drugs[0])
	assert.Equal(t, domain.SupportedDrug{Name: "WARFARIN", PrimaryGene: "CYP2C9"}, drugs[5])
}

func TestAnalyzerService_Validate(t *testing.T) {
	analyzer := NewAnalyzerService(newTestLogger(), testAnalysisConfig(), nil, nil)

	content := vcfHeader +
		"22\t42524947\trs3892097\tG\tA\t99\tPASS\t.\tGT\t1/1\n"

	result := analyzer.Validate(content)

	assert.True(t, result.IsValid)
	assert.Equal(t, "S1", result.SampleID)
	assert.Equal(t, 1, result.VariantCount)
	assert.Equal(t, 1, result.PharmacogeneVariantsHit)
	assert.Empty(t, result.Errors)
}

func TestAnalyzerService_Validate_InvalidFile(t *testing.T) {
	analyzer := NewAnalyzerService(newTestLogger(), testAnalysisConfig(), nil, nil)

	result := analyzer.Validate("not a vcf")

	assert.False(t, result.IsValid)
	assert.NotEmpty(t, result.Errors)
}

func TestAnalyzerService_Analyze_SingleDrug(t *testing.T) {
	analyzer := NewAnalyzerService(newTestLogger(), testAnalysisConfig(), nil, nil)

	content := vcfHeader +
		"22\t42524947\trs3892097\tG\tA\t99\tPASS\t.\tGT\t1/1\n"

	resp, err := analyzer.Analyze(context.Background(), content, []string{"CODEINE"})

	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, 1, resp.TotalDrugsAnalyzed)

	result := resp.Results[0]
	assert.NotEmpty(t, result.ID)
	assert.Equal(t, "S1", result.PatientID)
	assert.Equal(t, "CODEINE", result.Drug)
	assert.Equal(t, "CYP2D6", result.PharmacogenomicProfile.PrimaryGene)
	assert.Equal(t, "*4/*4", result.PharmacogenomicProfile.Diplotype)
	assert.Equal(t, domain.PhenotypePM, result.PharmacogenomicProfile.Phenotype)
	assert.Equal(t, 0.0, result.PharmacogenomicProfile.ActivityScore)
	assert.Equal(t, domain.RiskIneffective, result.RiskAssessment.RiskLabel)
	assert.Equal(t, domain.SeverityHigh, result.RiskAssessment.Severity)
	require.Len(t, result.PharmacogenomicProfile.DetectedVariants, 1)
	assert.Equal(t, "rs3892097", result.PharmacogenomicProfile.DetectedVariants[0].RSID)

	// Nil explainer: the deterministic fallback narrative, not grounded.
	assert.False(t, result.QualityMetrics.ExplanationGrounded)
	assert.Contains(t, result.Explanation.Summary, "CYP2D6 *4/*4")
	assert.True(t, result.QualityMetrics.ParsingSuccess)
}

func TestAnalyzerService_Analyze_ResultsInRequestOrder(t *testing.T) {
	analyzer := NewAnalyzerService(newTestLogger(), testAnalysisConfig(), nil, nil)

	content := vcfHeader +
		"22\t42524947\trs3892097\tG\tA\t99\tPASS\t.\tGT\t1/1\n"

	drugs := []string{"WARFARIN", "CODEINE", "AZATHIOPRINE"}
	resp, err := analyzer.Analyze(context.Background(), content, drugs)

	require.NoError(t, err)
	require.Len(t, resp.Results, 3)
	for i, drug := range drugs {
		assert.Equal(t, drug, resp.Results[i].Drug)
	}

	// Genes without detected variants resolve to wild-type.
	assert.Equal(t, "*1/*1", resp.Results[0].PharmacogenomicProfile.Diplotype)
	assert.Equal(t, domain.PhenotypeNM, resp.Results[0].PharmacogenomicProfile.Phenotype)
	assert.Equal(t, domain.RiskSafe, resp.Results[0].RiskAssessment.RiskLabel)
}

func TestAnalyzerService_Analyze_InvalidVCF(t *testing.T) {
	analyzer := NewAnalyzerService(newTestLogger(), testAnalysisConfig(), nil, nil)

	resp, err := analyzer.Analyze(context.Background(), "not a vcf", []string{"CODEINE"})

	require.Error(t, err)
	assert.Nil(t, resp)

	var vErr *domain.VCFValidationError
	require.ErrorAs(t, err, &vErr)
	assert.NotEmpty(t, vErr.Errors)
}

func TestAnalyzerService_Analyze_UsesExplainer(t *testing.T) {
	explainer := &stubExplainer{}
	analyzer := NewAnalyzerService(newTestLogger(), testAnalysisConfig(), explainer, nil)

	content := vcfHeader +
		"22\t42524947\trs3892097\tG\tA\t99\tPASS\t.\tGT\t1/1\n"

	resp, err := analyzer.Analyze(context.Background(), content, []string{"CODEINE"})

	require.NoError(t, err)
	result := resp.Results[0]
	assert.True(t, result.QualityMetrics.ExplanationGrounded)
	assert.Equal(t, "generated for CODEINE", result.Explanation.Summary)

	require.Len(t, explainer.requests, 1)
	assert.Equal(t, "CODEINE", explainer.requests[0].Drug)
	assert.Equal(t, "*4/*4", explainer.requests[0].Diplotype)
}

func TestAnalyzerService_Analyze_ExplainerFailureFallsBack(t *testing.T) {
	explainer := &stubExplainer{err: errors.New("model unavailable")}
	analyzer := NewAnalyzerService(newTestLogger(), testAnalysisConfig(), explainer, nil)

	content := vcfHeader +
		"22\t42524947\trs3892097\tG\tA\t99\tPASS\t.\tGT\t1/1\n"

	resp, err := analyzer.Analyze(context.Background(), content, []string{"CODEINE"})

	require.NoError(t, err)
	result := resp.Results[0]
	assert.False(t, result.QualityMetrics.ExplanationGrounded)
	assert.Contains(t, result.Explanation.Summary, "CYP2D6 *4/*4")
}

func TestAnalyzerService_Analyze_PersistsResults(t *testing.T) {
	store := newStubStore(2)
	analyzer := NewAnalyzerService(newTestLogger(), testAnalysisConfig(), nil, store)

	content := vcfHeader +
		"22\t42524947\trs3892097\tG\tA\t99\tPASS\t.\tGT\t1/1\n"

	resp, err := analyzer.Analyze(context.Background(), content, []string{"CODEINE", "WARFARIN"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)

	store.waitForSaves(t, 2)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.saved, 2)
	drugs := map[string]bool{}
	for _, saved := range store.saved {
		drugs[saved.Drug] = true
	}
	assert.True(t, drugs["CODEINE"])
	assert.True(t, drugs["WARFARIN"])
}

func TestAnalyzerService_Analyze_StoreFailureDoesNotFailAnalysis(t *testing.T) {
	store := newStubStore(1)
	store.err = errors.New("database down")
	analyzer := NewAnalyzerService(newTestLogger(), testAnalysisConfig(), nil, store)

	content := vcfHeader +
		"22\t42524947\trs3892097\tG\tA\t99\tPASS\t.\tGT\t1/1\n"

	resp, err := analyzer.Analyze(context.Background(), content, []string{"CODEINE"})

	require.NoError(t, err)
	assert.Len(t, resp.Results, 1)
	store.waitForSaves(t, 1)
}

func TestAnalyzerService_Analyze_DefaultPatientID(t *testing.T) {
	analyzer := NewAnalyzerService(newTestLogger(), testAnalysisConfig(), nil, nil)

	// Header without a sample column still parses; patient falls back to
	// the default identifier.
	content := "##fileformat=VCFv4.2\n" +
		"#CHROM\tPOS\tID\tREF\tALT\tQUAL\tFILTER\tINFO\n" +
		"22\t42524947\trs3892097\tG\tA\t99\tPASS\t.\n"

	resp, err := analyzer.Analyze(context.Background(), content, []string{"CODEINE"})

	require.NoError(t, err)
	assert.Equal(t, defaultPatientID, resp.Results[0].PatientID)
}

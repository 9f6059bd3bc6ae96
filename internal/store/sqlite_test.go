package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaguard-server/internal/domain"
)

func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	return store
}

func sampleAnalysis(id, patientID, drug string) *domain.AnalysisResult {
	return &domain.AnalysisResult{
		ID:        id,
		PatientID: patientID,
		Drug:      drug,
		Timestamp: time.Now().UTC(),
		RiskAssessment: domain.RiskAssessment{
			RiskLabel:       domain.RiskIneffective,
			ConfidenceScore: 0.95,
			Severity:        domain.SeverityHigh,
		},
		PharmacogenomicProfile: domain.PharmacogenomicProfile{
			PrimaryGene:   "CYP2D6",
			Diplotype:     "*4/*4",
			Phenotype:     domain.PhenotypePM,
			ActivityScore: 0.0,
			DetectedVariants: []domain.DetectedVariant{
				{
					RSID:       "rs3892097",
					Chromosome: "chr22",
					Position:   42524947,
					Genotype:   "A/A",
					Impact:     domain.NoFunction,
				},
			},
		},
		ClinicalRecommendation: domain.ClinicalRecommendation{
			GuidelineReference: "https://cpicpgx.org/guidelines/guideline-for-codeine-and-cyp2d6/",
			RecommendedAction:  "AVOID codeine.",
			DoseAdjustment:     "Avoid (do not dose)",
			AlternativeDrugs:   []string{"Morphine", "Oxycodone"},
			MonitoringRequired: false,
		},
		Explanation: domain.Explanation{
			Summary:             "Poor metabolizer, no analgesic effect expected.",
			MechanismOfAction:   "CYP2D6 activates codeine to morphine.",
			VariantSignificance: "rs3892097 abolishes enzyme activity.",
			DosingRationale:     "Alternative analgesics recommended.",
		},
		QualityMetrics: domain.QualityMetrics{
			ParsingSuccess:         true,
			VariantMatchConfidence: 0.95,
			ExplanationGrounded:    true,
			ProcessingTimeMs:       12,
		},
	}
}

func TestNewSQLiteStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NotNil(t, store)
	defer store.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "Database file should exist")
}

func TestSQLiteStore_SaveAndGet(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	original := sampleAnalysis("a1", "S1", "CODEINE")

	require.NoError(t, store.SaveAnalysis(ctx, original))

	loaded, err := store.GetAnalysis(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, original.ID, loaded.ID)
	assert.Equal(t, original.PatientID, loaded.PatientID)
	assert.Equal(t, original.Drug, loaded.Drug)
	assert.Equal(t, original.RiskAssessment, loaded.RiskAssessment)
	assert.Equal(t, original.PharmacogenomicProfile, loaded.PharmacogenomicProfile)
	assert.Equal(t, original.ClinicalRecommendation, loaded.ClinicalRecommendation)
	assert.Equal(t, original.Explanation, loaded.Explanation)
	assert.Equal(t, original.QualityMetrics.ExplanationGrounded, loaded.QualityMetrics.ExplanationGrounded)
	assert.WithinDuration(t, original.Timestamp, loaded.Timestamp, time.Second)
}

func TestSQLiteStore_GetAnalysis_NotFound(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	loaded, err := store.GetAnalysis(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestSQLiteStore_SaveAnalysis_NilSlices(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	original := sampleAnalysis("a2", "S1", "WARFARIN")
	original.PharmacogenomicProfile.DetectedVariants = nil
	original.ClinicalRecommendation.AlternativeDrugs = nil

	require.NoError(t, store.SaveAnalysis(ctx, original))

	loaded, err := store.GetAnalysis(ctx, "a2")
	require.NoError(t, err)
	require.NotNil(t, loaded)

	// Nil slices normalize to empty, never to JSON null.
	assert.Equal(t, []domain.DetectedVariant{}, loaded.PharmacogenomicProfile.DetectedVariants)
	assert.Equal(t, []string{}, loaded.ClinicalRecommendation.AlternativeDrugs)
}

func TestSQLiteStore_ListAnalyses(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()

	for i, spec := range []struct {
		id      string
		patient string
		drug    string
	}{
		{"a1", "S1", "CODEINE"},
		{"a2", "S1", "WARFARIN"},
		{"a3", "S2", "CODEINE"},
	} {
		result := sampleAnalysis(spec.id, spec.patient, spec.drug)
		result.Timestamp = time.Now().UTC().Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.SaveAnalysis(ctx, result))
	}

	all, err := store.ListAnalyses(ctx, "", 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Newest first
	assert.Equal(t, "a3", all[0].ID)
	assert.Equal(t, "a1", all[2].ID)

	forPatient, err := store.ListAnalyses(ctx, "S1", 10, 0)
	require.NoError(t, err)
	assert.Len(t, forPatient, 2)

	page, err := store.ListAnalyses(ctx, "", 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "a2", page[0].ID)
}

func TestSQLiteStore_CountAndDelete(t *testing.T) {
	store := createTestStore(t)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.SaveAnalysis(ctx, sampleAnalysis("a1", "S1", "CODEINE")))
	require.NoError(t, store.SaveAnalysis(ctx, sampleAnalysis("a2", "S1", "WARFARIN")))

	count, err := store.CountAnalyses(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.NoError(t, store.DeleteAnalysis(ctx, "a1"))

	count, err = store.CountAnalyses(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	loaded, err := store.GetAnalysis(ctx, "a1")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

package store

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaguard-server/internal/domain"
)

var analysisTestColumns = []string{
	"id", "patient_id", "drug", "analyzed_at",
	"risk_label", "confidence_score", "severity",
	"primary_gene", "diplotype", "phenotype", "activity_score", "detected_variants",
	"recommended_action", "dose_adjustment", "alternative_drugs", "monitoring_required",
	"cpic_guideline_reference",
	"explanation_summary", "explanation_mechanism",
	"explanation_variant_significance", "explanation_dosing_rationale",
	"explanation_grounded", "processing_time_ms",
}

func analysisRow(id, patientID, drug string) []driver.Value {
	return []driver.Value{
		id, patientID, drug, time.Now().UTC(),
		"Ineffective", 0.95, "high",
		"CYP2D6", "*4/*4", "PM", 0.0,
		`[{"rsid":"rs3892097","chromosome":"chr22","position":42524947,"genotype":"A/A","impact":"no_function"}]`,
		"AVOID codeine.", "Avoid (do not dose)", `["Morphine"]`, false,
		"https://cpicpgx.org/guidelines/guideline-for-codeine-and-cyp2d6/",
		"summary", "mechanism", "significance", "rationale",
		true, int64(12),
	}
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	mock.ExpectPing()
	store, err := NewPostgresStore(db)
	require.NoError(t, err)

	return store, mock
}

func TestNewPostgresStore_NilConnection(t *testing.T) {
	store, err := NewPostgresStore(nil)
	assert.Error(t, err)
	assert.Nil(t, store)
}

func TestPostgresStore_SaveAnalysis(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.Close()

	result := sampleAnalysis("a1", "S1", "CODEINE")

	mock.ExpectExec("INSERT INTO patient_analyses").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.SaveAnalysis(context.Background(), result)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetAnalysis(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.Close()

	rows := sqlmock.NewRows(analysisTestColumns).AddRow(analysisRow("a1", "S1", "CODEINE")...)
	mock.ExpectQuery("FROM patient_analyses WHERE id =").
		WithArgs("a1").
		WillReturnRows(rows)

	result, err := store.GetAnalysis(context.Background(), "a1")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "a1", result.ID)
	assert.Equal(t, "CODEINE", result.Drug)
	assert.Equal(t, domain.RiskIneffective, result.RiskAssessment.RiskLabel)
	assert.Equal(t, domain.PhenotypePM, result.PharmacogenomicProfile.Phenotype)
	require.Len(t, result.PharmacogenomicProfile.DetectedVariants, 1)
	assert.Equal(t, "rs3892097", result.PharmacogenomicProfile.DetectedVariants[0].RSID)
	assert.Equal(t, []string{"Morphine"}, result.ClinicalRecommendation.AlternativeDrugs)
	// Fields derived on load rather than stored
	assert.True(t, result.QualityMetrics.ParsingSuccess)
	assert.Equal(t, 0.95, result.QualityMetrics.VariantMatchConfidence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetAnalysis_NotFound(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.Close()

	mock.ExpectQuery("FROM patient_analyses WHERE id =").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(analysisTestColumns))

	result, err := store.GetAnalysis(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListAnalyses(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.Close()

	rows := sqlmock.NewRows(analysisTestColumns).
		AddRow(analysisRow("a2", "S1", "WARFARIN")...).
		AddRow(analysisRow("a1", "S1", "CODEINE")...)
	mock.ExpectQuery("FROM patient_analyses WHERE patient_id =").
		WithArgs("S1", 10, 0).
		WillReturnRows(rows)

	results, err := store.ListAnalyses(context.Background(), "S1", 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a2", results[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListAnalyses_NoFilter(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.Close()

	mock.ExpectQuery("FROM patient_analyses\\s+ORDER BY").
		WithArgs(5, 0).
		WillReturnRows(sqlmock.NewRows(analysisTestColumns))

	results, err := store.ListAnalyses(context.Background(), "", 5, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CountAnalyses(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.Close()

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := store.CountAnalyses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteAnalysis(t *testing.T) {
	store, mock := newMockStore(t)
	defer store.Close()

	mock.ExpectExec("DELETE FROM patient_analyses").
		WithArgs("a1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.DeleteAnalysis(context.Background(), "a1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

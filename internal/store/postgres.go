package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/pharmaguard-server/internal/domain"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL analysis store.
// It expects the database and schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewPostgresStoreFromURL creates a new PostgreSQL analysis store from a
// connection URL.
func NewPostgresStoreFromURL(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store, err := NewPostgresStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

// SaveAnalysis stores one completed drug analysis. Replaying the same
// analysis ID upserts rather than duplicating the row.
func (s *PostgresStore) SaveAnalysis(ctx context.Context, result *domain.AnalysisResult) error {
	detected, alternatives, err := encodeJSONColumns(result)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO patient_analyses (
			id, patient_id, drug, analyzed_at,
			risk_label, confidence_score, severity,
			primary_gene, diplotype, phenotype, activity_score, detected_variants,
			recommended_action, dose_adjustment, alternative_drugs, monitoring_required,
			cpic_guideline_reference,
			explanation_summary, explanation_mechanism,
			explanation_variant_significance, explanation_dosing_rationale,
			explanation_grounded, processing_time_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
		ON CONFLICT (id) DO UPDATE SET
			risk_label = EXCLUDED.risk_label,
			confidence_score = EXCLUDED.confidence_score,
			severity = EXCLUDED.severity,
			explanation_summary = EXCLUDED.explanation_summary,
			explanation_mechanism = EXCLUDED.explanation_mechanism,
			explanation_variant_significance = EXCLUDED.explanation_variant_significance,
			explanation_dosing_rationale = EXCLUDED.explanation_dosing_rationale,
			explanation_grounded = EXCLUDED.explanation_grounded,
			processing_time_ms = EXCLUDED.processing_time_ms
	`

	_, err = s.db.ExecContext(ctx, query,
		result.ID, result.PatientID, result.Drug, result.Timestamp,
		result.RiskAssessment.RiskLabel.String(),
		result.RiskAssessment.ConfidenceScore,
		result.RiskAssessment.Severity.String(),
		result.PharmacogenomicProfile.PrimaryGene,
		result.PharmacogenomicProfile.Diplotype,
		result.PharmacogenomicProfile.Phenotype.String(),
		result.PharmacogenomicProfile.ActivityScore,
		detected,
		result.ClinicalRecommendation.RecommendedAction,
		result.ClinicalRecommendation.DoseAdjustment,
		alternatives,
		result.ClinicalRecommendation.MonitoringRequired,
		result.ClinicalRecommendation.GuidelineReference,
		result.Explanation.Summary,
		result.Explanation.MechanismOfAction,
		result.Explanation.VariantSignificance,
		result.Explanation.DosingRationale,
		result.QualityMetrics.ExplanationGrounded,
		result.QualityMetrics.ProcessingTimeMs,
	)
	if err != nil {
		return fmt.Errorf("failed to save analysis: %w", err)
	}

	return nil
}

// GetAnalysis retrieves an analysis by ID.
func (s *PostgresStore) GetAnalysis(ctx context.Context, id string) (*domain.AnalysisResult, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+analysisColumns+" FROM patient_analyses WHERE id = $1 LIMIT 1", id)

	result, err := scanAnalysis(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	return result, nil
}

// ListAnalyses returns stored analyses, newest first, with pagination.
func (s *PostgresStore) ListAnalyses(ctx context.Context, patientID string, limit, offset int) ([]*domain.AnalysisResult, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if patientID != "" {
		rows, err = s.db.QueryContext(ctx,
			"SELECT "+analysisColumns+" FROM patient_analyses WHERE patient_id = $1 "+
				"ORDER BY analyzed_at DESC LIMIT $2 OFFSET $3",
			patientID, limit, offset)
	} else {
		rows, err = s.db.QueryContext(ctx,
			"SELECT "+analysisColumns+" FROM patient_analyses "+
				"ORDER BY analyzed_at DESC LIMIT $1 OFFSET $2",
			limit, offset)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	var results []*domain.AnalysisResult
	for rows.Next() {
		result, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		results = append(results, result)
	}
	return results, rows.Err()
}

// CountAnalyses returns the total number of stored analyses.
func (s *PostgresStore) CountAnalyses(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM patient_analyses").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count analyses: %w", err)
	}
	return count, nil
}

// DeleteAnalysis removes a stored analysis by ID.
func (s *PostgresStore) DeleteAnalysis(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM patient_analyses WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete analysis: %w", err)
	}
	return nil
}

// Close closes the store and releases resources.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/pharmaguard-server/internal/domain"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore creates a new SQLite analysis store.
// It creates the database file and schema if they don't exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS patient_analyses (
		id TEXT PRIMARY KEY,
		patient_id TEXT NOT NULL,
		drug TEXT NOT NULL,
		analyzed_at DATETIME NOT NULL,
		risk_label TEXT NOT NULL,
		confidence_score REAL NOT NULL,
		severity TEXT NOT NULL,
		primary_gene TEXT NOT NULL,
		diplotype TEXT NOT NULL,
		phenotype TEXT NOT NULL,
		activity_score REAL NOT NULL,
		detected_variants TEXT NOT NULL DEFAULT '[]',
		recommended_action TEXT NOT NULL,
		dose_adjustment TEXT DEFAULT '',
		alternative_drugs TEXT NOT NULL DEFAULT '[]',
		monitoring_required INTEGER NOT NULL DEFAULT 0,
		cpic_guideline_reference TEXT DEFAULT '',
		explanation_summary TEXT DEFAULT '',
		explanation_mechanism TEXT DEFAULT '',
		explanation_variant_significance TEXT DEFAULT '',
		explanation_dosing_rationale TEXT DEFAULT '',
		explanation_grounded INTEGER NOT NULL DEFAULT 0,
		processing_time_ms INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_analyses_patient_id ON patient_analyses(patient_id);
	CREATE INDEX IF NOT EXISTS idx_analyses_drug ON patient_analyses(drug);
	CREATE INDEX IF NOT EXISTS idx_analyses_analyzed_at ON patient_analyses(analyzed_at);
	`

	_, err := db.Exec(schema)
	return err
}

// analysisColumns is the column list shared by every SELECT on
// patient_analyses; scanAnalysis expects this exact order.
const analysisColumns = `id, patient_id, drug, analyzed_at,
	risk_label, confidence_score, severity,
	primary_gene, diplotype, phenotype, activity_score, detected_variants,
	recommended_action, dose_adjustment, alternative_drugs, monitoring_required,
	cpic_guideline_reference,
	explanation_summary, explanation_mechanism,
	explanation_variant_significance, explanation_dosing_rationale,
	explanation_grounded, processing_time_ms`

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanAnalysis scans a row into an AnalysisResult.
func scanAnalysis(s scanner) (*domain.AnalysisResult, error) {
	result := &domain.AnalysisResult{}
	var riskLabel, severity, phenotype string
	var detectedJSON, alternativesJSON string

	err := s.Scan(
		&result.ID, &result.PatientID, &result.Drug, &result.Timestamp,
		&riskLabel, &result.RiskAssessment.ConfidenceScore, &severity,
		&result.PharmacogenomicProfile.PrimaryGene,
		&result.PharmacogenomicProfile.Diplotype,
		&phenotype,
		&result.PharmacogenomicProfile.ActivityScore,
		&detectedJSON,
		&result.ClinicalRecommendation.RecommendedAction,
		&result.ClinicalRecommendation.DoseAdjustment,
		&alternativesJSON,
		&result.ClinicalRecommendation.MonitoringRequired,
		&result.ClinicalRecommendation.GuidelineReference,
		&result.Explanation.Summary,
		&result.Explanation.MechanismOfAction,
		&result.Explanation.VariantSignificance,
		&result.Explanation.DosingRationale,
		&result.QualityMetrics.ExplanationGrounded,
		&result.QualityMetrics.ProcessingTimeMs,
	)
	if err != nil {
		return nil, err
	}

	result.RiskAssessment.RiskLabel = domain.RiskLabel(riskLabel)
	result.RiskAssessment.Severity = domain.Severity(severity)
	result.PharmacogenomicProfile.Phenotype = domain.Phenotype(phenotype)
	result.QualityMetrics.ParsingSuccess = true
	result.QualityMetrics.VariantMatchConfidence = result.RiskAssessment.ConfidenceScore

	if err := json.Unmarshal([]byte(detectedJSON), &result.PharmacogenomicProfile.DetectedVariants); err != nil {
		return nil, fmt.Errorf("failed to decode detected variants: %w", err)
	}
	if err := json.Unmarshal([]byte(alternativesJSON), &result.ClinicalRecommendation.AlternativeDrugs); err != nil {
		return nil, fmt.Errorf("failed to decode alternative drugs: %w", err)
	}

	return result, nil
}

// encodeJSONColumns marshals the variant and alternative-drug slices for
// storage, normalizing nil slices to empty JSON arrays.
func encodeJSONColumns(result *domain.AnalysisResult) (detected string, alternatives string, err error) {
	variants := result.PharmacogenomicProfile.DetectedVariants
	if variants == nil {
		variants = []domain.DetectedVariant{}
	}
	detectedBytes, err := json.Marshal(variants)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode detected variants: %w", err)
	}

	drugs := result.ClinicalRecommendation.AlternativeDrugs
	if drugs == nil {
		drugs = []string{}
	}
	alternativeBytes, err := json.Marshal(drugs)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode alternative drugs: %w", err)
	}

	return string(detectedBytes), string(alternativeBytes), nil
}

// SaveAnalysis stores one completed drug analysis.
func (s *SQLiteStore) SaveAnalysis(ctx context.Context, result *domain.AnalysisResult) error {
	detected, alternatives, err := encodeJSONColumns(result)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO patient_analyses (
			id, patient_id, drug, analyzed_at,
			risk_label, confidence_score, severity,
			primary_gene, diplotype, phenotype, activity_score, detected_variants,
			recommended_action, dose_adjustment, alternative_drugs, monitoring_required,
			cpic_guideline_reference,
			explanation_summary, explanation_mechanism,
			explanation_variant_significance, explanation_dosing_rationale,
			explanation_grounded, processing_time_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
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
		return fmt.Errorf("failed to insert analysis: %w", err)
	}

	return nil
}

// GetAnalysis retrieves an analysis by ID.
func (s *SQLiteStore) GetAnalysis(ctx context.Context, id string) (*domain.AnalysisResult, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+analysisColumns+" FROM patient_analyses WHERE id = ? LIMIT 1", id)

	result, err := scanAnalysis(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan: %w", err)
	}
	return result, nil
}

// ListAnalyses returns stored analyses, newest first, with pagination.
func (s *SQLiteStore) ListAnalyses(ctx context.Context, patientID string, limit, offset int) ([]*domain.AnalysisResult, error) {
	query := "SELECT " + analysisColumns + " FROM patient_analyses"
	args := []interface{}{}
	if patientID != "" {
		query += " WHERE patient_id = ?"
		args = append(args, patientID)
	}
	query += " ORDER BY analyzed_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
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
func (s *SQLiteStore) CountAnalyses(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM patient_analyses").Scan(&count)
	return count, err
}

// DeleteAnalysis removes a stored analysis by ID.
func (s *SQLiteStore) DeleteAnalysis(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM patient_analyses WHERE id = ?", id)
	return err
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

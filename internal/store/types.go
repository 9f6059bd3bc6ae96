// Package store persists completed drug-analysis results. One row is written
// per (patient, drug) analysis, mirroring the response document so a stored
// analysis can be returned verbatim later.
package store

import (
	"context"

	"github.com/pharmaguard-server/internal/domain"
)

// Store defines the interface for analysis persistence.
type Store interface {
	// SaveAnalysis stores one completed drug analysis.
	SaveAnalysis(ctx context.Context, result *domain.AnalysisResult) error

	// GetAnalysis retrieves an analysis by ID. Returns (nil, nil) when the
	// ID is unknown.
	GetAnalysis(ctx context.Context, id string) (*domain.AnalysisResult, error)

	// ListAnalyses returns stored analyses, newest first, with pagination.
	// An empty patientID lists across all patients.
	ListAnalyses(ctx context.Context, patientID string, limit, offset int) ([]*domain.AnalysisResult, error)

	// CountAnalyses returns the total number of stored analyses.
	CountAnalyses(ctx context.Context) (int64, error)

	// DeleteAnalysis removes a stored analysis by ID.
	DeleteAnalysis(ctx context.Context, id string) error

	// Close closes the store and releases resources.
	Close() error
}

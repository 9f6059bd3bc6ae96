// Package api exposes the pharmacogenomic analysis pipeline over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-server/internal/domain"
	"github.com/pharmaguard-server/internal/middleware"
	"github.com/pharmaguard-server/internal/service"
	"github.com/pharmaguard-server/internal/store"
)

// appVersion is reported by the health endpoint.
const appVersion = "1.0.0"

// Server represents the HTTP server
type Server struct {
	cfg      *domain.Config
	logger   *logrus.Logger
	analyzer *service.AnalyzerService
	store    store.Store
	router   *gin.Engine
	server   *http.Server
}

// NewServer creates a new HTTP server instance. st may be nil when
// persistence is disabled; the analyses retrieval endpoint then reports 404.
func NewServer(cfg *domain.Config, logger *logrus.Logger, analyzer *service.AnalyzerService, st store.Store) *Server {
	// Set Gin mode based on environment
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.AuditLogger())
	router.Use(middleware.SecurityHeaders())
	router.Use(corsMiddleware())
	if cfg.Server.RateLimitRPS > 0 {
		router.Use(middleware.RateLimit(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst))
	}
	if cfg.Server.RequestTimeout > 0 {
		router.Use(middleware.RequestTimeout(cfg.Server.RequestTimeout))
	}

	server := &Server{
		cfg:      cfg,
		logger:   logger,
		analyzer: analyzer,
		store:    st,
		router:   router,
	}

	// Setup routes
	server.setupRoutes()

	return server
}

// Start starts the HTTP server and blocks until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.cfg.Server
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("HTTP server listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// Router exposes the underlying gin engine for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRoutes configures the API routes
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.GET("/health", s.handleHealth)

	// API v1 routes
	v1 := s.router.Group("/api/v1")
	{
		v1.POST("/analyze", s.handleAnalyze)
		v1.POST("/validate-vcf", s.handleValidateVCF)
		v1.GET("/supported-drugs", s.handleSupportedDrugs)
		v1.GET("/analyses/:id", s.handleGetAnalysis)
	}
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"app":       "pharmaguard-server",
		"version":   appVersion,
		"timestamp": time.Now().UTC(),
	})
}

// handleAnalyze runs the full pharmacogenomic analysis for an uploaded VCF
// and a comma-separated drugs form field.
func (s *Server) handleAnalyze(c *gin.Context) {
	drugs, err := s.analyzer.NormalizeDrugs(strings.Split(c.PostForm("drugs"), ","))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	content, ok := s.readVCFUpload(c)
	if !ok {
		return
	}

	response, err := s.analyzer.Analyze(c.Request.Context(), content, drugs)
	if err != nil {
		var vcfErr *domain.VCFValidationError
		if errors.As(err, &vcfErr) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": vcfErr.Error()})
			return
		}
		s.logger.WithError(err).Error("Analysis failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Analysis failed"})
		return
	}

	c.JSON(http.StatusOK, response)
}

// handleValidateVCF validates an uploaded VCF without running the analysis.
func (s *Server) handleValidateVCF(c *gin.Context) {
	content, ok := s.readVCFUpload(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, s.analyzer.Validate(content))
}

// handleSupportedDrugs lists the drugs the risk engine covers with their
// primary genes.
func (s *Server) handleSupportedDrugs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"drugs": s.analyzer.SupportedDrugs()})
}

// handleGetAnalysis returns one stored analysis by ID.
func (s *Server) handleGetAnalysis(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Analysis persistence is not configured"})
		return
	}

	id := c.Param("id")
	result, err := s.store.GetAnalysis(c.Request.Context(), id)
	if err != nil {
		s.logger.WithError(err).WithField("analysis_id", id).Error("Failed to load analysis")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load analysis"})
		return
	}
	if result == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Analysis not found"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// readVCFUpload extracts and sanity-checks the uploaded VCF from the "file"
// multipart field. Writes the error response itself and reports ok=false
// when the upload is rejected.
func (s *Server) readVCFUpload(c *gin.Context) (string, bool) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "VCF file is required"})
		return "", false
	}

	if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".vcf") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File must be a .vcf file"})
		return "", false
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read uploaded file"})
		return "", false
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read uploaded file"})
		return "", false
	}

	if !utf8.Valid(raw) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File is not valid UTF-8 text"})
		return "", false
	}

	return string(raw), true
}

// corsMiddleware adds CORS headers to responses
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, X-Correlation-ID")
		c.Header("Access-Control-Expose-Headers", "Content-Length, X-Correlation-ID")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Package httpapi exposes the assessment core over HTTP. It only translates
// between JSON and the domain types; all computation lives in the core
// packages.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fieldsense/crop-risk-service/internal/catalog"
	"github.com/fieldsense/crop-risk-service/internal/domain"
	"github.com/fieldsense/crop-risk-service/internal/model"
	"github.com/fieldsense/crop-risk-service/internal/observability"
	"github.com/fieldsense/crop-risk-service/internal/trainer"
)

// Assessor produces merged risk assessments. Implemented by risk.Arbiter.
type Assessor interface {
	Assess(crop string, obs domain.Observation) (domain.Assessment, error)
}

// Recommender turns assessments into guidance. Implemented by recommend.Engine.
type Recommender interface {
	Generate(crop string, assessment domain.Assessment, obs domain.Observation) ([]domain.Recommendation, error)
}

// Explainer supplies the rule engine's presentation extras. Implemented by
// risk.Engine.
type Explainer interface {
	Compare(crop string, obs domain.Observation) (map[domain.Factor]domain.FactorComparison, error)
	OptimalRanges(crop string) (catalog.CropProfile, error)
	Formula(crop string) (string, error)
}

// TrainTrigger schedules background training. Implemented by trainer.Trainer.
type TrainTrigger interface {
	TrainAsync(ctx context.Context, onDone func(trainer.Result)) error
	Running() bool
}

// ModelInfo reports learned-model state. Implemented by model.Model.
type ModelInfo interface {
	Trained() bool
	ActiveBundle() *model.Bundle
}

// Publisher hands completed assessments to the external persistence layer.
// Implemented by kafka.AssessmentWriter; nil disables publishing.
type Publisher interface {
	Publish(ctx context.Context, assessment domain.Assessment, recs []domain.Recommendation) error
}

// Deps collects everything the server serves from.
type Deps struct {
	Catalog   *catalog.Catalog
	Assessor  Assessor
	Recommend Recommender
	Explain   Explainer
	Trainer   TrainTrigger
	Model     ModelInfo
	Publisher Publisher
	Metrics   *observability.Metrics
}

// Server exposes the assessment API plus health, readiness, and metrics.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	deps       Deps
	logger     *slog.Logger
}

// NewServer builds the router and wires all routes.
func NewServer(addr string, deps Deps, logger *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      engine,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		engine: engine,
		deps:   deps,
		logger: logger,
	}

	engine.GET("/healthz", s.handleHealth)
	engine.GET("/readyz", s.handleReady)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api/v1")
	{
		api.POST("/assess", s.handleAssess)
		api.GET("/crops", s.handleListCrops)
		api.GET("/crops/:name", s.handleGetCrop)
		api.POST("/model/train", s.handleTrain)
		api.GET("/model", s.handleModelInfo)
	}

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.engine.ServeHTTP(w, r)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) handleReady(c *gin.Context) {
	if s.deps.Catalog == nil || s.deps.Catalog.Len() == 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"error":  "crop catalog not loaded",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// assessRequest is the POST /assess body. Pointer fields distinguish a
// missing reading from an explicit zero.
type assessRequest struct {
	Crop        string   `json:"crop" binding:"required"`
	Temperature *float64 `json:"temperature" binding:"required"`
	Moisture    *float64 `json:"moisture" binding:"required"`
	Humidity    *float64 `json:"humidity" binding:"required"`
	NDVI        *float64 `json:"ndvi" binding:"required"`
	Rainfall    *float64 `json:"rainfall" binding:"required"`
}

type assessResponse struct {
	domain.Assessment
	Recommendations []domain.Recommendation                   `json:"recommendations"`
	OptimalRanges   catalog.CropProfile                       `json:"optimal_ranges"`
	Comparison      map[domain.Factor]domain.FactorComparison `json:"comparison"`
	Formula         string                                    `json:"formula"`
}

func (s *Server) handleAssess(c *gin.Context) {
	start := time.Now()

	var req assessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	obs := domain.Observation{
		Temperature: *req.Temperature,
		Moisture:    *req.Moisture,
		Humidity:    *req.Humidity,
		NDVI:        *req.NDVI,
		Rainfall:    *req.Rainfall,
	}

	assessment, err := s.deps.Assessor.Assess(req.Crop, obs)
	if err != nil {
		s.respondError(c, req.Crop, err)
		return
	}

	recs, err := s.deps.Recommend.Generate(req.Crop, assessment, obs)
	if err != nil {
		s.respondError(c, req.Crop, err)
		return
	}

	comparison, err := s.deps.Explain.Compare(req.Crop, obs)
	if err != nil {
		s.respondError(c, req.Crop, err)
		return
	}
	ranges, err := s.deps.Explain.OptimalRanges(req.Crop)
	if err != nil {
		s.respondError(c, req.Crop, err)
		return
	}
	formula, err := s.deps.Explain.Formula(req.Crop)
	if err != nil {
		s.respondError(c, req.Crop, err)
		return
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.AssessmentsTotal.WithLabelValues(string(assessment.Method)).Inc()
		s.deps.Metrics.AssessmentDuration.Observe(time.Since(start).Seconds())
		s.deps.Metrics.RecommendationsCount.Observe(float64(len(recs)))
	}

	if s.deps.Publisher != nil {
		if perr := s.deps.Publisher.Publish(c.Request.Context(), assessment, recs); perr != nil {
			s.logger.Warn("assessment publish failed", "crop", req.Crop, "error", perr)
			if s.deps.Metrics != nil {
				s.deps.Metrics.PublishErrors.Inc()
			}
		} else if s.deps.Metrics != nil {
			s.deps.Metrics.AssessmentsPublished.Inc()
		}
	}

	c.JSON(http.StatusOK, assessResponse{
		Assessment:      assessment,
		Recommendations: recs,
		OptimalRanges:   ranges,
		Comparison:      comparison,
		Formula:         formula,
	})
}

func (s *Server) handleListCrops(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"crops": s.deps.Catalog.Names()})
}

func (s *Server) handleGetCrop(c *gin.Context) {
	profile, err := s.deps.Catalog.Get(c.Param("name"))
	if err != nil {
		s.respondError(c, c.Param("name"), err)
		return
	}
	formula, _ := s.deps.Explain.Formula(profile.Name)
	c.JSON(http.StatusOK, gin.H{"profile": profile, "formula": formula})
}

func (s *Server) handleTrain(c *gin.Context) {
	// Detached from the request context: training outlives the HTTP call.
	err := s.deps.Trainer.TrainAsync(context.Background(), func(res trainer.Result) {
		if res.Err != nil {
			s.logger.Error("scheduled training failed", "error", res.Err)
			return
		}
		s.logger.Info("scheduled training finished", "duration", res.Duration, "mae", res.Metrics.MAE)
	})
	if err != nil {
		if errors.Is(err, trainer.ErrTrainingInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "training started"})
}

func (s *Server) handleModelInfo(c *gin.Context) {
	if !s.deps.Model.Trained() {
		c.JSON(http.StatusOK, gin.H{
			"trained":  false,
			"training": s.deps.Trainer.Running(),
		})
		return
	}
	bundle := s.deps.Model.ActiveBundle()
	c.JSON(http.StatusOK, gin.H{
		"trained":             true,
		"training":            s.deps.Trainer.Running(),
		"trained_at":          bundle.TrainedAt,
		"metrics":             bundle.Metrics,
		"schema_version":      bundle.SchemaVersion,
		"catalog_fingerprint": bundle.CatalogFingerprint,
	})
}

func (s *Server) respondError(c *gin.Context, crop string, err error) {
	if errors.Is(err, catalog.ErrCropNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	s.logger.Error("assessment failed", "crop", crop, "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/fieldsense/crop-risk-service/internal/adapter/httpapi"
	kafkaadapter "github.com/fieldsense/crop-risk-service/internal/adapter/kafka"
	"github.com/fieldsense/crop-risk-service/internal/catalog"
	"github.com/fieldsense/crop-risk-service/internal/config"
	"github.com/fieldsense/crop-risk-service/internal/model"
	"github.com/fieldsense/crop-risk-service/internal/observability"
	"github.com/fieldsense/crop-risk-service/internal/recommend"
	"github.com/fieldsense/crop-risk-service/internal/risk"
	"github.com/fieldsense/crop-risk-service/internal/trainer"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the assessment API server",
	Long: `Start the HTTP API, load the crop catalog and any persisted model
bundle, and (when Kafka is enabled) consume training samples and publish
completed assessments.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return err
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	kb, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Error("failed to load crop catalog", "path", cfg.CatalogPath, "error", err)
		return err
	}
	logger.Info("crop catalog loaded", "path", cfg.CatalogPath, "crops", kb.Len())

	mdl := model.New(kb, model.DefaultConfig(), logger)
	if _, statErr := os.Stat(cfg.ModelPath); statErr == nil {
		if loadErr := mdl.Load(cfg.ModelPath); loadErr != nil {
			logger.Warn("persisted model bundle rejected, starting untrained",
				"path", cfg.ModelPath, "error", loadErr)
		} else {
			logger.Info("model bundle loaded", "path", cfg.ModelPath)
			metrics.ModelTrained.Set(1)
		}
	}

	engine := risk.NewEngine(kb)
	arbiter := risk.NewArbiter(engine, mdl, logger)
	recommender := recommend.New(kb)

	// Kafka wiring (feature-flagged via KAFKA_ENABLED).
	var (
		sampleReader *kafkaadapter.SampleReader
		writer       *kafkaadapter.AssessmentWriter
		source       trainer.SampleSource
		publisher    httpapi.Publisher
	)
	if cfg.KafkaEnabled {
		sampleReader = kafkaadapter.NewSampleReader(cfg, logger)
		writer = kafkaadapter.NewAssessmentWriter(cfg, logger)
		source = sampleReader
		publisher = writer
		logger.Info("kafka enabled",
			"brokers", cfg.KafkaBrokers,
			"samples_topic", cfg.KafkaSamplesTopic,
			"assessments_topic", cfg.KafkaAssessmentsTopic,
		)
	} else {
		logger.Info("kafka disabled")
	}

	bgTrainer := trainer.New(mdl, source, trainer.Config{
		BundlePath:     cfg.ModelPath,
		TargetSamples:  cfg.TrainMinSamples,
		FetchBatchSize: cfg.TrainBatchSize,
	}, logger, metrics)

	srv := httpapi.NewServer(cfg.HTTPAddr, httpapi.Deps{
		Catalog:   kb,
		Assessor:  arbiter,
		Recommend: recommender,
		Explain:   engine,
		Trainer:   bgTrainer,
		Model:     mdl,
		Publisher: publisher,
		Metrics:   metrics,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Periodic retraining on a cron schedule, when configured and a sample
	// source exists.
	var scheduler *cron.Cron
	if cfg.TrainSchedule != "" && source != nil {
		scheduler = cron.New()
		_, cronErr := scheduler.AddFunc(cfg.TrainSchedule, func() {
			err := bgTrainer.TrainAsync(ctx, nil)
			if errors.Is(err, trainer.ErrTrainingInProgress) {
				logger.Warn("scheduled training skipped, run already active")
			}
		})
		if cronErr != nil {
			logger.Error("invalid training schedule", "schedule", cfg.TrainSchedule, "error", cronErr)
			return cronErr
		}
		scheduler.Start()
		logger.Info("training schedule active", "schedule", cfg.TrainSchedule)
	}

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if sampleReader != nil {
		if err := sampleReader.Close(); err != nil {
			logger.Error("kafka reader close error", "error", err)
		}
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return nil
}

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/fieldsense/crop-risk-service/internal/catalog"
	"github.com/fieldsense/crop-risk-service/internal/config"
	"github.com/fieldsense/crop-risk-service/internal/domain"
	"github.com/fieldsense/crop-risk-service/internal/model"
	"github.com/fieldsense/crop-risk-service/internal/observability"
	"github.com/fieldsense/crop-risk-service/internal/trainer"
)

var trainFlags struct {
	samplesPath string
	bundleOut   string
}

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train the learned model from a JSONL sample file",
	Long: `Read labeled training samples from a JSONL file (one sample per line),
train the model, print evaluation metrics, and persist the bundle.

Example:
  croprisk train --samples data/samples.jsonl --out models/bundle.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTrain()
	},
}

func init() {
	trainCmd.Flags().StringVar(&trainFlags.samplesPath, "samples", "", "path to JSONL training samples (required)")
	trainCmd.Flags().StringVar(&trainFlags.bundleOut, "out", "", "bundle output path (defaults to MODEL_PATH)")
	_ = trainCmd.MarkFlagRequired("samples")
	rootCmd.AddCommand(trainCmd)
}

// fileSource feeds trainer.Trainer from an in-memory slice, so one-shot CLI
// training reuses the same collect-train-persist path as the server.
type fileSource struct {
	samples []domain.TrainingSample
	offset  int
}

func (f *fileSource) FetchBatch(_ context.Context, max int) ([]domain.TrainingSample, error) {
	if f.offset >= len(f.samples) {
		return nil, nil
	}
	end := f.offset + max
	if end > len(f.samples) {
		end = len(f.samples)
	}
	batch := f.samples[f.offset:end]
	f.offset = end
	return batch, nil
}

func runTrain() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := observability.NewLogger(cfg.LogLevel, "text")

	kb, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	samples, err := readSamples(trainFlags.samplesPath)
	if err != nil {
		return err
	}
	logger.Info("samples loaded", "path", trainFlags.samplesPath, "count", len(samples))

	bundleOut := trainFlags.bundleOut
	if bundleOut == "" {
		bundleOut = cfg.ModelPath
	}

	mdl := model.New(kb, model.DefaultConfig(), logger)
	t := trainer.New(mdl, &fileSource{samples: samples}, trainer.Config{
		BundlePath:    bundleOut,
		TargetSamples: len(samples),
	}, logger, nil)

	res := t.TrainOnce(context.Background())
	if res.Err != nil {
		return res.Err
	}

	fmt.Printf("trained on %d samples in %s\n", res.Metrics.Samples, res.Duration.Round(time.Millisecond))
	fmt.Printf("  MAE   %.4f\n", res.Metrics.MAE)
	fmt.Printf("  RMSE  %.4f\n", res.Metrics.RMSE)
	fmt.Printf("  R²    %.4f\n", res.Metrics.R2)
	fmt.Printf("  CV    %.4f ± %.4f\n", res.Metrics.CVMAE, res.Metrics.CVMAEStd)
	fmt.Printf("bundle written to %s\n", bundleOut)
	return nil
}

func readSamples(path string) ([]domain.TrainingSample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var samples []domain.TrainingSample
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var s domain.TrainingSample
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, line, err)
		}
		samples = append(samples, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return samples, nil
}

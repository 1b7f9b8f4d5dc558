package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fieldsense/crop-risk-service/internal/catalog"
	"github.com/fieldsense/crop-risk-service/internal/config"
	"github.com/fieldsense/crop-risk-service/internal/domain"
	"github.com/fieldsense/crop-risk-service/internal/model"
	"github.com/fieldsense/crop-risk-service/internal/observability"
	"github.com/fieldsense/crop-risk-service/internal/recommend"
	"github.com/fieldsense/crop-risk-service/internal/risk"
)

var assessFlags struct {
	crop        string
	temperature float64
	moisture    float64
	humidity    float64
	ndvi        float64
	rainfall    float64
	bundlePath  string
}

var assessCmd = &cobra.Command{
	Use:   "assess",
	Short: "Score a single reading from the command line",
	Long: `Assess one set of environmental readings against the crop catalog and
print the assessment plus recommendations as JSON. When --bundle points at a
trained model bundle, the learned score is used; otherwise the rule-based
score is reported.

Example:
  croprisk assess --crop wheat --temperature 31 --moisture 0.18 \
    --humidity 48 --ndvi 0.42 --rainfall 0.6`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAssess()
	},
}

func init() {
	assessCmd.Flags().StringVar(&assessFlags.crop, "crop", "", "crop name (required)")
	assessCmd.Flags().Float64Var(&assessFlags.temperature, "temperature", 0, "temperature in °C")
	assessCmd.Flags().Float64Var(&assessFlags.moisture, "moisture", 0, "soil moisture, 0–1")
	assessCmd.Flags().Float64Var(&assessFlags.humidity, "humidity", 0, "relative humidity in percent")
	assessCmd.Flags().Float64Var(&assessFlags.ndvi, "ndvi", 0, "vegetation index, 0–1")
	assessCmd.Flags().Float64Var(&assessFlags.rainfall, "rainfall", 0, "rainfall index")
	assessCmd.Flags().StringVar(&assessFlags.bundlePath, "bundle", "", "path to a trained model bundle (optional)")
	_ = assessCmd.MarkFlagRequired("crop")
	rootCmd.AddCommand(assessCmd)
}

func runAssess() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := observability.NewLogger("warn", "text")

	kb, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	mdl := model.New(kb, model.DefaultConfig(), logger)
	if assessFlags.bundlePath != "" {
		if err := mdl.Load(assessFlags.bundlePath); err != nil {
			return fmt.Errorf("load bundle: %w", err)
		}
	}

	engine := risk.NewEngine(kb)
	arbiter := risk.NewArbiter(engine, mdl, logger)

	obs := domain.Observation{
		Temperature: assessFlags.temperature,
		Moisture:    assessFlags.moisture,
		Humidity:    assessFlags.humidity,
		NDVI:        assessFlags.ndvi,
		Rainfall:    assessFlags.rainfall,
	}

	assessment, err := arbiter.Assess(assessFlags.crop, obs)
	if err != nil {
		return err
	}
	recs, err := recommend.New(kb).Generate(assessFlags.crop, assessment, obs)
	if err != nil {
		return err
	}

	out := struct {
		Assessment      domain.Assessment       `json:"assessment"`
		Recommendations []domain.Recommendation `json:"recommendations"`
	}{assessment, recs}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

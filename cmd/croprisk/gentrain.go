package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/fieldsense/crop-risk-service/internal/catalog"
	"github.com/fieldsense/crop-risk-service/internal/config"
	"github.com/fieldsense/crop-risk-service/internal/domain"
	"github.com/fieldsense/crop-risk-service/internal/risk"
)

var gentrainFlags struct {
	count  int
	seed   int64
	noise  float64
	output string
}

var gentrainCmd = &cobra.Command{
	Use:   "gentrain",
	Short: "Generate synthetic labeled training samples",
	Long: `Generate labeled training samples by perturbing readings around each
crop's optimal ranges and labeling them with the rule-based score plus noise.
Useful for exercising the training path before real labels exist.

Example:
  croprisk gentrain --count 2000 --out data/samples.jsonl`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGentrain()
	},
}

func init() {
	gentrainCmd.Flags().IntVar(&gentrainFlags.count, "count", 1000, "number of samples to generate")
	gentrainCmd.Flags().Int64Var(&gentrainFlags.seed, "seed", 1, "random seed")
	gentrainCmd.Flags().Float64Var(&gentrainFlags.noise, "noise", 0.05, "label noise standard deviation")
	gentrainCmd.Flags().StringVar(&gentrainFlags.output, "out", "data/samples.jsonl", "output JSONL path")
	rootCmd.AddCommand(gentrainCmd)
}

func runGentrain() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	kb, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(gentrainFlags.output), 0o755); err != nil {
		return err
	}
	f, err := os.Create(gentrainFlags.output)
	if err != nil {
		return err
	}
	defer f.Close()

	rng := rand.New(rand.NewSource(gentrainFlags.seed))
	names := kb.Names()
	enc := json.NewEncoder(f)

	for i := 0; i < gentrainFlags.count; i++ {
		name := names[rng.Intn(len(names))]
		profile, _ := kb.Get(name)

		obs := domain.Observation{
			Temperature: perturb(rng, profile.Temperature),
			Moisture:    clampUnit(perturb(rng, profile.Moisture)),
			Humidity:    perturb(rng, profile.Humidity),
			NDVI:        clampUnit(perturb(rng, profile.NDVI)),
			Rainfall:    perturb(rng, profile.Rainfall),
		}

		label := risk.ComputeProfile(profile, obs).RiskScore
		label = clampUnit(label + rng.NormFloat64()*gentrainFlags.noise)

		if err := enc.Encode(domain.TrainingSample{
			Crop:        name,
			Temperature: obs.Temperature,
			Moisture:    obs.Moisture,
			Humidity:    obs.Humidity,
			NDVI:        obs.NDVI,
			Rainfall:    obs.Rainfall,
			RiskScore:   label,
		}); err != nil {
			return err
		}
	}

	fmt.Printf("wrote %d samples to %s\n", gentrainFlags.count, gentrainFlags.output)
	return nil
}

// perturb draws a reading centered on the optimum, spread across roughly
// three tolerances so the generated set covers all three risk levels.
func perturb(rng *rand.Rand, r catalog.FactorRange) float64 {
	return r.Optimal + rng.NormFloat64()*r.Tolerance*1.5
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

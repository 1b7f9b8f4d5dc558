// Package model implements the learned risk scoring path: a versioned
// feature pipeline feeding a bagged regression-tree ensemble, with the whole
// trained state held as one atomically-swapped bundle.
package model

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/fieldsense/crop-risk-service/internal/catalog"
	"github.com/fieldsense/crop-risk-service/internal/domain"
)

// ErrModelNotTrained is returned by Predict when no bundle is active.
var ErrModelNotTrained = errors.New("model not trained")

// TrainingError reports an unusable training set. It is fatal to the
// training run only; any previously active bundle stays in service.
type TrainingError struct {
	Reason string
}

func (e *TrainingError) Error() string {
	return "training: " + e.Reason
}

// minTrainingSamples is the floor below which the 80/20 holdout and 5-fold
// cross-validation stop being meaningful.
const minTrainingSamples = 10

// Config controls ensemble fitting and evaluation.
type Config struct {
	NumTrees        int
	MaxDepth        int
	MinLeaf         int
	MaxFeatures     int
	Seed            int64
	HoldoutFraction float64
	CVFolds         int
}

// DefaultConfig mirrors the dimensions the scoring model has always been
// trained with.
func DefaultConfig() Config {
	return Config{
		NumTrees:        100,
		MaxDepth:        10,
		MinLeaf:         2,
		MaxFeatures:     5,
		Seed:            42,
		HoldoutFraction: 0.2,
		CVFolds:         5,
	}
}

// Metrics summarizes a training run: held-out error plus cross-validated
// MAE as diagnostics.
type Metrics struct {
	MAE      float64 `json:"mae"`
	RMSE     float64 `json:"rmse"`
	R2       float64 `json:"r2"`
	CVMAE    float64 `json:"cv_mae_mean"`
	CVMAEStd float64 `json:"cv_mae_std"`
	Samples  int     `json:"samples"`
}

// Model is the learned risk scorer. Training replaces the active bundle
// atomically, so concurrent Predict calls observe either the previous fully
// trained bundle or the new one, never a partial state.
type Model struct {
	kb     *catalog.Catalog
	cfg    Config
	logger *slog.Logger
	active bundleHolder
}

// New creates an untrained Model bound to the given knowledge base.
func New(kb *catalog.Catalog, cfg Config, logger *slog.Logger) *Model {
	return &Model{kb: kb, cfg: cfg, logger: logger}
}

// Trained reports whether a bundle is active.
func (m *Model) Trained() bool {
	return m.active.load() != nil
}

// ActiveBundle returns the bundle currently serving predictions, or nil.
func (m *Model) ActiveBundle() *Bundle {
	return m.active.load()
}

// Train fits a new bundle from labeled samples and swaps it in. The sample
// set must be non-empty, large enough to split, reference only cataloged
// crops, and carry label variance; otherwise a TrainingError is returned and
// the previous bundle (if any) keeps serving.
func (m *Model) Train(samples []domain.TrainingSample) (Metrics, error) {
	if len(samples) == 0 {
		return Metrics{}, &TrainingError{Reason: "empty sample set"}
	}
	if len(samples) < minTrainingSamples {
		return Metrics{}, &TrainingError{Reason: fmt.Sprintf("need at least %d samples, got %d", minTrainingSamples, len(samples))}
	}

	encoder, err := fitEncoder(samples, m.kb)
	if err != nil {
		return Metrics{}, &TrainingError{Reason: err.Error()}
	}

	x := make([][]float64, len(samples))
	y := make([]float64, len(samples))
	for i, s := range samples {
		profile, _ := m.kb.Get(s.Crop) // existence verified by fitEncoder
		cropCode, categoryCode, cerr := encoder.codes(profile)
		if cerr != nil {
			return Metrics{}, &TrainingError{Reason: cerr.Error()}
		}
		x[i] = buildVector(profile, s.Observation(), cropCode, categoryCode)
		y[i] = s.RiskScore
	}
	if !hasVariance(y) {
		return Metrics{}, &TrainingError{Reason: "all samples carry the same risk score"}
	}

	rng := rand.New(rand.NewSource(m.cfg.Seed))

	perm := rng.Perm(len(x))
	holdout := int(float64(len(x)) * m.cfg.HoldoutFraction)
	if holdout < 1 {
		holdout = 1
	}
	testIdx, trainIdx := perm[:holdout], perm[holdout:]

	xTrain, yTrain := gather(x, y, trainIdx)
	xTest, yTest := gather(x, y, testIdx)

	scaler := fitScaler(xTrain)
	scaler.transform(xTrain)
	scaler.transform(xTest)

	fc := forestConfig{
		numTrees:    m.cfg.NumTrees,
		maxDepth:    m.cfg.MaxDepth,
		minLeaf:     m.cfg.MinLeaf,
		maxFeatures: m.cfg.MaxFeatures,
	}
	forest := fitForest(xTrain, yTrain, fc, rng)

	metrics := evaluate(forest, xTest, yTest)
	metrics.CVMAE, metrics.CVMAEStd = crossValidate(xTrain, yTrain, fc, m.cfg.CVFolds, rng)
	metrics.Samples = len(samples)

	bundle := &Bundle{
		SchemaVersion:      SchemaVersion,
		CatalogFingerprint: m.kb.Fingerprint(),
		FeatureNames:       FeatureNames(),
		Encoder:            encoder,
		Scaler:             scaler,
		Forest:             forest,
		TrainedAt:          domain.Now(),
		Metrics:            metrics,
	}
	m.active.store(bundle)

	m.logger.Info("model trained",
		"samples", len(samples),
		"mae", metrics.MAE,
		"rmse", metrics.RMSE,
		"r2", metrics.R2,
		"cv_mae", metrics.CVMAE,
	)
	return metrics, nil
}

// Predict scores one observation with the active bundle. Fails with
// ErrModelNotTrained when no bundle is loaded and with
// ErrUnknownCrop/ErrUnknownCategory for anything outside the encoder tables.
func (m *Model) Predict(crop string, obs domain.Observation) (domain.LearnedPrediction, error) {
	bundle := m.active.load()
	if bundle == nil {
		return domain.LearnedPrediction{}, ErrModelNotTrained
	}

	profile, err := m.kb.Get(crop)
	if err != nil {
		return domain.LearnedPrediction{}, err
	}
	cropCode, categoryCode, err := bundle.Encoder.codes(profile)
	if err != nil {
		return domain.LearnedPrediction{}, err
	}

	row := bundle.Scaler.transformRow(buildVector(profile, obs, cropCode, categoryCode))
	score := clampUnit(bundle.Forest.Predict(row))

	importances := bundle.Forest.FeatureImportances()
	weights, unattributed := aggregateFactorWeights(bundle.FeatureNames, importances)

	byName := make(map[string]float64, len(importances))
	for i, name := range bundle.FeatureNames {
		byName[name] = importances[i]
	}

	return domain.LearnedPrediction{
		RiskScore:              score,
		RiskLevel:              domain.LevelForScore(score),
		FormulaWeights:         weights,
		FeatureImportances:     byName,
		UnattributedImportance: unattributed,
	}, nil
}

// aggregateFactorWeights folds per-feature importances into the five factor
// buckets: each raw factor feature and its deviation feature land in the
// same bucket, then the bucket sums are renormalized to total 1.0.
// Interaction and categorical-code importance has no bucket and is returned
// as the unattributed remainder of the pre-normalization total.
func aggregateFactorWeights(names []string, importances []float64) (map[domain.Factor]float64, float64) {
	weights := make(map[domain.Factor]float64, len(domain.Factors))
	for _, f := range domain.Factors {
		weights[f] = 0
	}

	var attributed, total float64
	for i, name := range names {
		total += importances[i]
		if f := domain.Factor(name); isFactorName(f) {
			weights[f] += importances[i]
			attributed += importances[i]
			continue
		}
		if f, ok := deviationFactor[name]; ok {
			weights[f] += importances[i]
			attributed += importances[i]
		}
	}

	if attributed > 0 {
		for f := range weights {
			weights[f] /= attributed
		}
	}
	return weights, total - attributed
}

func isFactorName(f domain.Factor) bool {
	for _, known := range domain.Factors {
		if f == known {
			return true
		}
	}
	return false
}

// evaluate computes MAE, RMSE, and R² on the held-out split.
func evaluate(f *Forest, x [][]float64, y []float64) Metrics {
	var absSum, sqSum, mean float64
	for _, v := range y {
		mean += v
	}
	mean /= float64(len(y))

	var ssTot float64
	for i, row := range x {
		pred := f.Predict(row)
		d := pred - y[i]
		absSum += math.Abs(d)
		sqSum += d * d
		ssTot += (y[i] - mean) * (y[i] - mean)
	}

	n := float64(len(y))
	r2 := 0.0
	if ssTot > 0 {
		r2 = 1 - sqSum/ssTot
	}
	return Metrics{
		MAE:  absSum / n,
		RMSE: math.Sqrt(sqSum / n),
		R2:   r2,
	}
}

// crossValidate reports the mean and standard deviation of per-fold MAE over
// k folds of the training split.
func crossValidate(x [][]float64, y []float64, fc forestConfig, folds int, rng *rand.Rand) (mean, std float64) {
	if folds < 2 || len(x) < folds {
		return 0, 0
	}

	maes := make([]float64, 0, folds)
	foldSize := len(x) / folds
	for k := range folds {
		lo := k * foldSize
		hi := lo + foldSize
		if k == folds-1 {
			hi = len(x)
		}

		var xTrain [][]float64
		var yTrain []float64
		for i := range x {
			if i >= lo && i < hi {
				continue
			}
			xTrain = append(xTrain, x[i])
			yTrain = append(yTrain, y[i])
		}

		f := fitForest(xTrain, yTrain, fc, rng)
		var absSum float64
		for i := lo; i < hi; i++ {
			absSum += math.Abs(f.Predict(x[i]) - y[i])
		}
		maes = append(maes, absSum/float64(hi-lo))
	}

	for _, m := range maes {
		mean += m
	}
	mean /= float64(len(maes))
	for _, m := range maes {
		std += (m - mean) * (m - mean)
	}
	std = math.Sqrt(std / float64(len(maes)))
	return mean, std
}

func gather(x [][]float64, y []float64, indices []int) ([][]float64, []float64) {
	gx := make([][]float64, len(indices))
	gy := make([]float64, len(indices))
	for i, idx := range indices {
		gx[i] = append([]float64(nil), x[idx]...)
		gy[i] = y[idx]
	}
	return gx, gy
}

func hasVariance(y []float64) bool {
	for _, v := range y[1:] {
		if v != y[0] {
			return true
		}
	}
	return false
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

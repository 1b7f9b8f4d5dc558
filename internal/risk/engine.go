package risk

import (
	"fmt"
	"math"
	"strings"

	"github.com/fieldsense/crop-risk-service/internal/catalog"
	"github.com/fieldsense/crop-risk-service/internal/domain"
)

// categoryWeights fixes the relative weighting of factor risks per crop
// category. Every row sums to 1.0.
var categoryWeights = map[domain.Category]map[domain.Factor]float64{
	domain.CategoryHighMoisture: {
		domain.FactorTemperature: 0.15,
		domain.FactorMoisture:    0.35,
		domain.FactorHumidity:    0.20,
		domain.FactorNDVI:        0.20,
		domain.FactorRainfall:    0.10,
	},
	domain.CategoryModerateMoisture: {
		domain.FactorTemperature: 0.20,
		domain.FactorMoisture:    0.25,
		domain.FactorHumidity:    0.20,
		domain.FactorNDVI:        0.25,
		domain.FactorRainfall:    0.10,
	},
	domain.CategoryDroughtTolerant: {
		domain.FactorTemperature: 0.30,
		domain.FactorMoisture:    0.15,
		domain.FactorHumidity:    0.20,
		domain.FactorNDVI:        0.25,
		domain.FactorRainfall:    0.10,
	},
	domain.CategoryTemperatureSensitive: {
		domain.FactorTemperature: 0.35,
		domain.FactorMoisture:    0.20,
		domain.FactorHumidity:    0.15,
		domain.FactorNDVI:        0.20,
		domain.FactorRainfall:    0.10,
	},
}

// Engine is the deterministic rule-based risk calculator. It holds no
// mutable state and is safe for concurrent use.
type Engine struct {
	kb *catalog.Catalog
}

// NewEngine creates an Engine backed by the given crop knowledge base.
func NewEngine(kb *catalog.Catalog) *Engine {
	return &Engine{kb: kb}
}

// Compute scores an observation against a crop's optimal ranges. Pure:
// identical inputs always yield identical outputs. Returns
// catalog.ErrCropNotFound for unknown crops.
func (e *Engine) Compute(crop string, obs domain.Observation) (domain.Assessment, error) {
	profile, err := e.kb.Get(crop)
	if err != nil {
		return domain.Assessment{}, err
	}
	return ComputeProfile(profile, obs), nil
}

// ComputeProfile scores an observation against an already-resolved profile.
func ComputeProfile(profile catalog.CropProfile, obs domain.Observation) domain.Assessment {
	factorRisks := map[domain.Factor]float64{
		domain.FactorTemperature: temperatureRisk(obs.Temperature, profile.Temperature),
		domain.FactorMoisture:    moistureRisk(obs.Moisture, profile.Moisture),
		domain.FactorHumidity:    humidityRisk(obs.Humidity, profile.Humidity),
		domain.FactorNDVI:        ndviRisk(obs.NDVI, profile.NDVI),
		domain.FactorRainfall:    rainfallRisk(obs.Rainfall, profile.Rainfall),
	}

	weights := weightsForCategory(profile.Category)

	var score float64
	for _, f := range domain.Factors {
		score += weights[f] * factorRisks[f]
	}
	score = clamp(score, 0, 1)

	return domain.Assessment{
		Crop:          profile.Name,
		RiskScore:     score,
		RiskLevel:     domain.LevelForScore(score),
		FactorRisks:   factorRisks,
		Weights:       weights,
		WeakestFactor: weakestFactor(factorRisks),
		Method:        domain.MethodRuleBased,
		GeneratedAt:   domain.Now(),
	}
}

// temperatureRisk normalizes the deviation by tolerance and adds a 0.2
// penalty for extreme readings more than two tolerances out, either side.
func temperatureRisk(t float64, r catalog.FactorRange) float64 {
	risk := math.Min(math.Abs(t-r.Optimal)/r.Tolerance, 1)
	if math.Abs(t-r.Optimal) > 2*r.Tolerance {
		risk = math.Min(risk+0.2, 1)
	}
	return risk
}

// moistureRisk penalizes drought harder than excess: readings more than one
// tolerance below optimal carry an extra 0.3.
func moistureRisk(m float64, r catalog.FactorRange) float64 {
	risk := math.Min(math.Abs(m-r.Optimal)/r.Tolerance, 1)
	if m < r.Optimal-r.Tolerance {
		risk = math.Min(risk+0.3, 1)
	}
	return risk
}

func humidityRisk(h float64, r catalog.FactorRange) float64 {
	return math.Min(math.Abs(h-r.Optimal)/r.Tolerance, 1)
}

// ndviRisk is asymmetric: vegetation below optimal scores like any other
// factor, but excess vegetation is capped at half risk over a doubled
// tolerance.
func ndviRisk(v float64, r catalog.FactorRange) float64 {
	if v < r.Optimal {
		return math.Min((r.Optimal-v)/r.Tolerance, 1)
	}
	return math.Min((v-r.Optimal)/(2*r.Tolerance), 0.5)
}

// rainfallRisk adds a 0.2 drought penalty when rainfall falls more than one
// tolerance below optimal.
func rainfallRisk(rf float64, r catalog.FactorRange) float64 {
	risk := math.Min(math.Abs(rf-r.Optimal)/r.Tolerance, 1)
	if rf < r.Optimal-r.Tolerance {
		risk = math.Min(risk+0.2, 1)
	}
	return risk
}

// weightsForCategory returns a copy of the category's weight table. Unknown
// categories fall back to moderate_moisture.
func weightsForCategory(cat domain.Category) map[domain.Factor]float64 {
	table, ok := categoryWeights[cat]
	if !ok {
		table = categoryWeights[domain.CategoryModerateMoisture]
	}
	out := make(map[domain.Factor]float64, len(table))
	for f, w := range table {
		out[f] = w
	}
	return out
}

// weakestFactor picks the factor with maximal risk. Ties resolve to the
// first maximum in precedence order (temperature first, rainfall last).
func weakestFactor(risks map[domain.Factor]float64) domain.Factor {
	weakest := domain.Factors[0]
	best := risks[weakest]
	for _, f := range domain.Factors[1:] {
		if risks[f] > best {
			weakest = f
			best = risks[f]
		}
	}
	return weakest
}

// Compare relates each current reading to the crop's optimal band.
func (e *Engine) Compare(crop string, obs domain.Observation) (map[domain.Factor]domain.FactorComparison, error) {
	profile, err := e.kb.Get(crop)
	if err != nil {
		return nil, err
	}

	out := make(map[domain.Factor]domain.FactorComparison, len(domain.Factors))
	for _, f := range domain.Factors {
		r := profile.Range(f)
		current := obs.Value(f)
		deviation := math.Abs(current - r.Optimal)
		out[f] = domain.FactorComparison{
			Current:          current,
			Optimal:          r.Optimal,
			Tolerance:        r.Tolerance,
			Deviation:        deviation,
			WithinRange:      deviation <= r.Tolerance,
			DeviationPercent: deviation / r.Tolerance * 100,
		}
	}
	return out, nil
}

// OptimalRanges returns the crop's profile for presentation layers.
func (e *Engine) OptimalRanges(crop string) (catalog.CropProfile, error) {
	return e.kb.Get(crop)
}

// Formula renders the crop's weighted risk formula as a human-readable
// string, listing only factors weighted above 0.1.
func (e *Engine) Formula(crop string) (string, error) {
	profile, err := e.kb.Get(crop)
	if err != nil {
		return "", err
	}
	return FormulaForWeights(weightsForCategory(profile.Category)), nil
}

// FormulaForWeights renders a weight table as a risk formula string.
func FormulaForWeights(weights map[domain.Factor]float64) string {
	labels := map[domain.Factor]string{
		domain.FactorTemperature: "Temperature Risk",
		domain.FactorMoisture:    "Moisture Risk",
		domain.FactorHumidity:    "Humidity Risk",
		domain.FactorNDVI:        "NDVI Risk",
		domain.FactorRainfall:    "Rainfall Risk",
	}

	parts := make([]string, 0, len(domain.Factors))
	for _, f := range domain.Factors {
		if weights[f] > 0.1 {
			parts = append(parts, fmt.Sprintf("%.2f × %s", weights[f], labels[f]))
		}
	}
	return "Risk Score = " + strings.Join(parts, " + ")
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

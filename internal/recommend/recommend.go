// Package recommend turns a risk assessment's factor breakdown into
// prioritized, human-readable guidance.
package recommend

import (
	"fmt"
	"math"
	"sort"

	"github.com/fieldsense/crop-risk-service/internal/catalog"
	"github.com/fieldsense/crop-risk-service/internal/domain"
)

// factorThreshold is the factor risk above which a factor earns its own
// recommendation.
const factorThreshold = 0.3

// Engine synthesizes recommendations. Pure function of its inputs; holds no
// mutable state and performs no I/O.
type Engine struct {
	kb *catalog.Catalog
}

// New creates an Engine backed by the crop knowledge base.
func New(kb *catalog.Catalog) *Engine {
	return &Engine{kb: kb}
}

// Generate produces the ordered recommendation list for an assessment: one
// entry per factor whose risk exceeds 0.3, sorted by priority (the factor
// risk) descending, followed by exactly one general recommendation keyed by
// the overall risk level. The general entry is appended after sorting and
// keeps its place regardless of its own priority.
func (e *Engine) Generate(crop string, assessment domain.Assessment, obs domain.Observation) ([]domain.Recommendation, error) {
	profile, err := e.kb.Get(crop)
	if err != nil {
		return nil, err
	}

	recs := make([]domain.Recommendation, 0, len(domain.Factors)+1)
	for _, f := range domain.Factors {
		risk := assessment.FactorRisks[f]
		if risk <= factorThreshold {
			continue
		}
		recs = append(recs, factorRecommendation(f, risk, obs.Value(f), profile.Range(f)))
	}

	sort.SliceStable(recs, func(i, j int) bool { return recs[i].Priority > recs[j].Priority })

	recs = append(recs, generalRecommendation(assessment.RiskLevel, assessment.RiskScore))
	return recs, nil
}

func factorRecommendation(f domain.Factor, risk, current float64, r catalog.FactorRange) domain.Recommendation {
	rec := domain.Recommendation{
		Factor:    f,
		Priority:  risk,
		RiskLevel: domain.LevelForScore(risk),
	}

	deviation := math.Abs(current - r.Optimal)
	improvement := improvementString(deviation, r.Tolerance)

	switch f {
	case domain.FactorTemperature:
		fillTemperature(&rec, current, r, improvement)
	case domain.FactorMoisture:
		fillMoisture(&rec, current, r, improvement)
	case domain.FactorHumidity:
		fillHumidity(&rec, current, r, improvement)
	case domain.FactorNDVI:
		fillNDVI(&rec, current, r, improvement)
	case domain.FactorRainfall:
		fillRainfall(&rec, current, r, improvement)
	}
	return rec
}

// improvementString illustrates the normalized deviation before and after a
// one-tolerance correction. Textual illustration only, not a guaranteed
// post-action value.
func improvementString(deviation, tolerance float64) string {
	return fmt.Sprintf("Risk reduction: %.1f%% → %.1f%%",
		deviation/tolerance*100, (deviation-tolerance)/tolerance*100)
}

func fillTemperature(rec *domain.Recommendation, current float64, r catalog.FactorRange, improvement string) {
	switch {
	case current > r.Optimal+r.Tolerance:
		rec.Issue = "High Temperature Stress"
		rec.Recommendation = fmt.Sprintf("Implement cooling measures to reduce temperature from %.1f°C to %.1f°C", current, r.Optimal)
		rec.Actions = []string{
			"Install shade nets or temporary covers",
			"Increase irrigation frequency for evaporative cooling",
			"Consider planting heat-tolerant varieties",
			"Adjust planting schedule to avoid peak heat periods",
		}
		rec.ExpectedImprovement = improvement
	case current < r.Optimal-r.Tolerance:
		rec.Issue = "Low Temperature Stress"
		rec.Recommendation = fmt.Sprintf("Implement warming measures to increase temperature from %.1f°C to %.1f°C", current, r.Optimal)
		rec.Actions = []string{
			"Use row covers or greenhouses",
			"Apply mulch to retain soil heat",
			"Consider planting cold-tolerant varieties",
			"Adjust planting schedule for warmer periods",
		}
		rec.ExpectedImprovement = improvement
	default:
		rec.Issue = "Temperature within acceptable range"
		rec.Recommendation = "Monitor temperature trends"
		rec.Actions = []string{"Continue current practices"}
		rec.ExpectedImprovement = "Minimal risk"
	}
}

func fillMoisture(rec *domain.Recommendation, current float64, r catalog.FactorRange, improvement string) {
	switch {
	case current < r.Optimal-r.Tolerance:
		irrigation := (r.Optimal - current) * 100 // unit interval → mm
		rec.Issue = "Soil Moisture Deficit"
		rec.Recommendation = fmt.Sprintf("Increase irrigation by %.0fmm to raise soil moisture from %.2f to %.2f", irrigation, current, r.Optimal)
		rec.Actions = []string{
			fmt.Sprintf("Apply %.0fmm of irrigation water", irrigation),
			"Improve irrigation system efficiency",
			"Consider drip irrigation for water conservation",
			"Monitor soil moisture with sensors",
		}
		rec.ExpectedImprovement = improvement
	case current > r.Optimal+r.Tolerance:
		rec.Issue = "Excessive Soil Moisture"
		rec.Recommendation = fmt.Sprintf("Improve drainage to reduce soil moisture from %.2f to %.2f", current, r.Optimal)
		rec.Actions = []string{
			"Improve field drainage systems",
			"Reduce irrigation frequency",
			"Consider raised beds for better drainage",
			"Monitor for waterlogging damage",
		}
		rec.ExpectedImprovement = improvement
	default:
		rec.Issue = "Soil moisture within optimal range"
		rec.Recommendation = "Maintain current irrigation practices"
		rec.Actions = []string{"Continue monitoring soil moisture"}
		rec.ExpectedImprovement = "Optimal conditions"
	}
}

func fillHumidity(rec *domain.Recommendation, current float64, r catalog.FactorRange, improvement string) {
	switch {
	case current > r.Optimal+r.Tolerance:
		rec.Issue = "High Humidity"
		rec.Recommendation = fmt.Sprintf("Improve ventilation to reduce humidity from %.0f%% to %.0f%%", current, r.Optimal)
		rec.Actions = []string{
			"Increase air circulation with fans",
			"Improve greenhouse ventilation",
			"Consider dehumidification systems",
			"Monitor for fungal diseases",
		}
		rec.ExpectedImprovement = improvement
	case current < r.Optimal-r.Tolerance:
		rec.Issue = "Low Humidity"
		rec.Recommendation = fmt.Sprintf("Increase humidity from %.0f%% to %.0f%%", current, r.Optimal)
		rec.Actions = []string{
			"Use misting systems",
			"Increase irrigation frequency",
			"Consider humidification systems",
			"Monitor for water stress",
		}
		rec.ExpectedImprovement = improvement
	default:
		rec.Issue = "Humidity within optimal range"
		rec.Recommendation = "Maintain current practices"
		rec.Actions = []string{"Continue monitoring humidity levels"}
		rec.ExpectedImprovement = "Optimal conditions"
	}
}

// fillNDVI has no too-high branch: excess vegetation is never flagged.
func fillNDVI(rec *domain.Recommendation, current float64, r catalog.FactorRange, improvement string) {
	if current < r.Optimal-r.Tolerance {
		rec.Issue = "Poor Vegetation Health (Low NDVI)"
		rec.Recommendation = fmt.Sprintf("Improve crop health to increase NDVI from %.2f to %.2f", current, r.Optimal)
		rec.Actions = []string{
			"Apply appropriate fertilizers",
			"Check for pest and disease issues",
			"Improve soil health and nutrition",
			"Consider crop rotation or intercropping",
		}
		rec.ExpectedImprovement = improvement
		return
	}
	rec.Issue = "Good Vegetation Health"
	rec.Recommendation = "Maintain current crop health practices"
	rec.Actions = []string{"Continue monitoring crop health"}
	rec.ExpectedImprovement = "Optimal conditions"
}

func fillRainfall(rec *domain.Recommendation, current float64, r catalog.FactorRange, improvement string) {
	switch {
	case current < r.Optimal-r.Tolerance:
		deficit := (r.Optimal - current) * 100 // index → mm
		rec.Issue = "Rainfall Deficit"
		rec.Recommendation = fmt.Sprintf("Supplement with irrigation - %.0fmm needed", deficit)
		rec.Actions = []string{
			fmt.Sprintf("Apply %.0fmm of supplemental irrigation", deficit),
			"Implement water conservation practices",
			"Consider drought-tolerant varieties",
			"Monitor soil moisture closely",
		}
		rec.ExpectedImprovement = improvement
	case current > r.Optimal+r.Tolerance:
		rec.Issue = "Excessive Rainfall"
		rec.Recommendation = "Improve drainage and water management"
		rec.Actions = []string{
			"Improve field drainage systems",
			"Consider raised beds",
			"Monitor for waterlogging",
			"Plan for flood management",
		}
		rec.ExpectedImprovement = improvement
	default:
		rec.Issue = "Rainfall within optimal range"
		rec.Recommendation = "Continue current water management"
		rec.Actions = []string{"Monitor rainfall patterns"}
		rec.ExpectedImprovement = "Optimal conditions"
	}
}

// generalRecommendation is the single always-present entry keyed by overall
// risk level, with a fixed priority per level.
func generalRecommendation(level domain.RiskLevel, score float64) domain.Recommendation {
	switch level {
	case domain.RiskHigh:
		return domain.Recommendation{
			Factor:         domain.FactorGeneral,
			Priority:       1.0,
			RiskLevel:      domain.RiskHigh,
			Issue:          "High Overall Risk",
			Recommendation: "Immediate action required to reduce crop risk",
			Actions: []string{
				"Prioritize the highest risk factors identified above",
				"Consider crop insurance for risk mitigation",
				"Consult with agricultural extension services",
				"Develop contingency plans for extreme weather",
			},
			ExpectedImprovement: fmt.Sprintf("Potential risk reduction: %.1f%% → %.1f%%", score*100, score*50),
		}
	case domain.RiskMedium:
		return domain.Recommendation{
			Factor:         domain.FactorGeneral,
			Priority:       0.5,
			RiskLevel:      domain.RiskMedium,
			Issue:          "Moderate Risk",
			Recommendation: "Monitor conditions and implement preventive measures",
			Actions: []string{
				"Regular monitoring of environmental conditions",
				"Implement preventive measures for identified risks",
				"Prepare for potential weather changes",
				"Maintain good agricultural practices",
			},
			ExpectedImprovement: fmt.Sprintf("Potential risk reduction: %.1f%% → %.1f%%", score*100, score*70),
		}
	default:
		return domain.Recommendation{
			Factor:         domain.FactorGeneral,
			Priority:       0.2,
			RiskLevel:      domain.RiskLow,
			Issue:          "Low Risk",
			Recommendation: "Continue current practices with regular monitoring",
			Actions: []string{
				"Maintain current agricultural practices",
				"Regular monitoring of conditions",
				"Prepare for seasonal changes",
				"Keep contingency plans ready",
			},
			ExpectedImprovement: "Maintain low risk levels",
		}
	}
}

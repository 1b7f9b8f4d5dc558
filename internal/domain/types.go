package domain

import "time"

// Factor identifies one of the five environmental factors that contribute to
// a crop risk score.
type Factor string

const (
	FactorTemperature Factor = "temperature"
	FactorMoisture    Factor = "moisture"
	FactorHumidity    Factor = "humidity"
	FactorNDVI        Factor = "ndvi"
	FactorRainfall    Factor = "rainfall"

	// FactorGeneral tags the overall-risk recommendation that is not tied to
	// a single environmental factor.
	FactorGeneral Factor = "general"
)

// Factors lists the environmental factors in precedence order. The order is
// load-bearing: ties in weakest-factor selection resolve to the first factor
// listed here, and feature vectors follow the same ordering.
var Factors = []Factor{
	FactorTemperature,
	FactorMoisture,
	FactorHumidity,
	FactorNDVI,
	FactorRainfall,
}

// Category groups crops by their dominant environmental sensitivity. The
// category fixes the relative weighting of factor risks.
type Category string

const (
	CategoryHighMoisture         Category = "high_moisture"
	CategoryModerateMoisture     Category = "moderate_moisture"
	CategoryDroughtTolerant      Category = "drought_tolerant"
	CategoryTemperatureSensitive Category = "temperature_sensitive"
)

// Observation holds one set of environmental readings for a field.
// Transient; created per assessment request.
type Observation struct {
	Temperature float64 `json:"temperature"` // °C
	Moisture    float64 `json:"moisture"`    // soil moisture, unit interval
	Humidity    float64 `json:"humidity"`    // percent
	NDVI        float64 `json:"ndvi"`        // unit interval
	Rainfall    float64 `json:"rainfall"`    // rainfall index, roughly 0–2
}

// Value returns the reading for the given factor.
func (o Observation) Value(f Factor) float64 {
	switch f {
	case FactorTemperature:
		return o.Temperature
	case FactorMoisture:
		return o.Moisture
	case FactorHumidity:
		return o.Humidity
	case FactorNDVI:
		return o.NDVI
	case FactorRainfall:
		return o.Rainfall
	default:
		return 0
	}
}

// RiskLevel is the coarse classification of a risk score.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// LevelForScore maps a [0,1] risk score onto a RiskLevel.
// Thresholds: <0.3 Low, <0.6 Medium, else High.
func LevelForScore(score float64) RiskLevel {
	switch {
	case score < 0.3:
		return RiskLow
	case score < 0.6:
		return RiskMedium
	default:
		return RiskHigh
	}
}

// Method records which scoring path produced the headline risk score.
type Method string

const (
	MethodRuleBased Method = "rule-based"
	MethodLearned   Method = "learned"
)

// Assessment is the merged result of scoring one observation against one
// crop. The headline score may come from either path; the factor-level
// breakdown always comes from the rule engine.
type Assessment struct {
	Crop          string             `json:"crop"`
	RiskScore     float64            `json:"risk_score"`
	RiskLevel     RiskLevel          `json:"risk_level"`
	FactorRisks   map[Factor]float64 `json:"factor_risks"`
	Weights       map[Factor]float64 `json:"weights"`
	WeakestFactor Factor             `json:"weakest_factor"`
	Method        Method             `json:"method"`
	GeneratedAt   time.Time          `json:"generated_at"`

	// Learned is set when the learned model supplied the headline score.
	Learned *LearnedPrediction `json:"learned,omitempty"`
}

// LearnedPrediction is the output of the learned risk model for one
// (crop, observation) pair.
type LearnedPrediction struct {
	RiskScore          float64            `json:"risk_score"`
	RiskLevel          RiskLevel          `json:"risk_level"`
	FormulaWeights     map[Factor]float64 `json:"formula_weights"`
	FeatureImportances map[string]float64 `json:"feature_importances"`

	// UnattributedImportance is the importance mass carried by interaction
	// and categorical features, which has no factor bucket. The displayed
	// formula weights underrepresent the model by this fraction.
	UnattributedImportance float64 `json:"unattributed_importance"`
}

// FactorComparison relates a current reading to the crop's optimal band for
// one factor.
type FactorComparison struct {
	Current          float64 `json:"current"`
	Optimal          float64 `json:"optimal"`
	Tolerance        float64 `json:"tolerance"`
	Deviation        float64 `json:"deviation"`
	WithinRange      bool    `json:"within_range"`
	DeviationPercent float64 `json:"deviation_percent"`
}

// Recommendation is one prioritized, human-readable action item.
type Recommendation struct {
	Factor              Factor    `json:"factor"`
	Priority            float64   `json:"priority"`
	Issue               string    `json:"issue"`
	Recommendation      string    `json:"recommendation"`
	Actions             []string  `json:"actions"`
	ExpectedImprovement string    `json:"expected_improvement"`
	RiskLevel           RiskLevel `json:"risk_level"`
}

// TrainingSample is one labeled tuple from the external training-data
// provider: observed conditions for a crop plus the risk score recorded for
// them.
type TrainingSample struct {
	Crop        string  `json:"crop"`
	Temperature float64 `json:"temperature"`
	Moisture    float64 `json:"moisture"`
	Humidity    float64 `json:"humidity"`
	NDVI        float64 `json:"ndvi"`
	Rainfall    float64 `json:"rainfall"`
	RiskScore   float64 `json:"risk_score"`
}

// Observation extracts the environmental readings from the sample.
func (s TrainingSample) Observation() Observation {
	return Observation{
		Temperature: s.Temperature,
		Moisture:    s.Moisture,
		Humidity:    s.Humidity,
		NDVI:        s.NDVI,
		Rainfall:    s.Rainfall,
	}
}

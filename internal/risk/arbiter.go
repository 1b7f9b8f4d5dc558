package risk

import (
	"log/slog"

	"github.com/fieldsense/crop-risk-service/internal/domain"
)

// Predictor is the learned scoring path. Implemented by model.Model.
type Predictor interface {
	Predict(crop string, obs domain.Observation) (domain.LearnedPrediction, error)
}

// Arbiter reconciles the two scoring paths. The learned model supplies a
// potentially more accurate headline number when it can; the rule engine is
// always run as well, because only it produces the factor-level breakdown.
type Arbiter struct {
	engine    *Engine
	predictor Predictor
	logger    *slog.Logger
}

// NewArbiter creates an Arbiter. A nil predictor disables the learned path
// entirely.
func NewArbiter(engine *Engine, predictor Predictor, logger *slog.Logger) *Arbiter {
	return &Arbiter{engine: engine, predictor: predictor, logger: logger}
}

// Assess scores an observation, preferring the learned model for the
// headline score and falling back to the rule-based result on any learned
// failure (untrained model, unseen crop or category code). Learned-path
// errors never propagate to the caller; an unknown crop does.
func (a *Arbiter) Assess(crop string, obs domain.Observation) (domain.Assessment, error) {
	assessment, err := a.engine.Compute(crop, obs)
	if err != nil {
		return domain.Assessment{}, err
	}

	if a.predictor == nil {
		return assessment, nil
	}

	pred, err := a.predictor.Predict(crop, obs)
	if err != nil {
		a.logger.Debug("learned prediction unavailable, using rule-based score",
			"crop", crop, "reason", err)
		return assessment, nil
	}

	assessment.RiskScore = pred.RiskScore
	assessment.RiskLevel = pred.RiskLevel
	assessment.Weights = pred.FormulaWeights
	assessment.Method = domain.MethodLearned
	assessment.Learned = &pred
	return assessment, nil
}

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// crop risk service.
type Metrics struct {
	AssessmentsTotal     *prometheus.CounterVec // labels: method={rule-based,learned}
	AssessmentDuration   prometheus.Histogram
	RecommendationsCount prometheus.Histogram

	// Training metrics.
	TrainingRuns     *prometheus.CounterVec // labels: outcome={success,error}
	TrainingDuration prometheus.Histogram
	ModelTrained     prometheus.Gauge

	// Kafka adapter metrics.
	SamplesConsumed      prometheus.Counter
	AssessmentsPublished prometheus.Counter
	PublishErrors        prometheus.Counter
}

// NewMetrics creates and registers all service metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		AssessmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crop_risk",
			Name:      "assessments_total",
			Help:      "Total risk assessments by scoring method.",
		}, []string{"method"}),
		AssessmentDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "crop_risk",
			Name:      "assessment_duration_seconds",
			Help:      "Duration of a complete assess-and-recommend cycle.",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		RecommendationsCount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "crop_risk",
			Name:      "recommendations_per_assessment",
			Help:      "Number of recommendations produced per assessment.",
			Buckets:   []float64{1, 2, 3, 4, 5, 6},
		}),
		TrainingRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crop_risk",
			Name:      "training_runs_total",
			Help:      "Training runs by outcome.",
		}, []string{"outcome"}),
		TrainingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "crop_risk",
			Name:      "training_duration_seconds",
			Help:      "Duration of a complete training run including sample collection.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}),
		ModelTrained: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "crop_risk",
			Name:      "model_trained",
			Help:      "1 when a trained model bundle is active, 0 otherwise.",
		}),
		SamplesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crop_risk",
			Name:      "training_samples_consumed_total",
			Help:      "Training samples read from the samples topic.",
		}),
		AssessmentsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crop_risk",
			Name:      "assessments_published_total",
			Help:      "Completed assessments published to the sink topic.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crop_risk",
			Name:      "assessment_publish_errors_total",
			Help:      "Failed publishes of completed assessments.",
		}),
	}

	prometheus.MustRegister(
		m.AssessmentsTotal,
		m.AssessmentDuration,
		m.RecommendationsCount,
		m.TrainingRuns,
		m.TrainingDuration,
		m.ModelTrained,
		m.SamplesConsumed,
		m.AssessmentsPublished,
		m.PublishErrors,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		AssessmentsTotal:     prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "crop_risk", Name: "assessments_total"}, []string{"method"}),
		AssessmentDuration:   prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "crop_risk", Name: "assessment_duration_seconds"}),
		RecommendationsCount: prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "crop_risk", Name: "recommendations_per_assessment"}),
		TrainingRuns:         prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "crop_risk", Name: "training_runs_total"}, []string{"outcome"}),
		TrainingDuration:     prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: "crop_risk", Name: "training_duration_seconds"}),
		ModelTrained:         prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "crop_risk", Name: "model_trained"}),
		SamplesConsumed:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "crop_risk", Name: "training_samples_consumed_total"}),
		AssessmentsPublished: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "crop_risk", Name: "assessments_published_total"}),
		PublishErrors:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: "crop_risk", Name: "assessment_publish_errors_total"}),
	}
}

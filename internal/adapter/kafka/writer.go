package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/fieldsense/crop-risk-service/internal/config"
	"github.com/fieldsense/crop-risk-service/internal/domain"
)

// AssessmentWriter publishes completed assessments to the sink topic for
// the external persistence layer.
type AssessmentWriter struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewAssessmentWriter creates a Kafka producer for the assessments topic.
func NewAssessmentWriter(cfg *config.Config, logger *slog.Logger) *AssessmentWriter {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaAssessmentsTopic,
		Balancer:     &kafkago.LeastBytes{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &AssessmentWriter{writer: w, logger: logger}
}

// assessmentEnvelope is the serialized form destined for the sink topic.
type assessmentEnvelope struct {
	Assessment      domain.Assessment      `json:"assessment"`
	Recommendations []domain.Recommendation `json:"recommendations"`
}

// Publish serializes one assessment plus its recommendations and writes it
// keyed by crop so per-crop history stays in partition order.
func (w *AssessmentWriter) Publish(ctx context.Context, assessment domain.Assessment, recs []domain.Recommendation) error {
	msg, err := serializeAssessment(assessment, recs)
	if err != nil {
		return err
	}
	return w.writer.WriteMessages(ctx, msg)
}

func (w *AssessmentWriter) Close() error {
	return w.writer.Close()
}

func serializeAssessment(assessment domain.Assessment, recs []domain.Recommendation) (kafkago.Message, error) {
	data, err := json.Marshal(assessmentEnvelope{Assessment: assessment, Recommendations: recs})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize assessment: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(assessment.Crop),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "risk_level", Value: []byte(assessment.RiskLevel)},
			{Key: "method", Value: []byte(assessment.Method)},
			{Key: "generated_at", Value: []byte(assessment.GeneratedAt.Format(time.RFC3339))},
		},
	}, nil
}

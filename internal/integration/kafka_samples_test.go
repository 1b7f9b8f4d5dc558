//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	kafkaadapter "github.com/fieldsense/crop-risk-service/internal/adapter/kafka"
	"github.com/fieldsense/crop-risk-service/internal/config"
	"github.com/fieldsense/crop-risk-service/internal/domain"
)

const (
	testSamplesTopic     = "test-training-samples"
	testAssessmentsTopic = "test-assessments"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node Kafka in a container and returns its broker
// address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()

	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("crop-risk-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

func createTopic(t *testing.T, broker, topic string) {
	t.Helper()

	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// TestSampleReaderRoundTrip publishes labeled samples (and one poison pill)
// to the samples topic and verifies the reader returns only the valid ones.
func TestSampleReaderRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testSamplesTopic)

	cfg := &config.Config{
		KafkaBrokers:      []string{broker},
		KafkaSamplesTopic: testSamplesTopic,
		KafkaGroupID:      fmt.Sprintf("test-reader-%d", time.Now().UnixNano()),
	}

	samples := []domain.TrainingSample{
		{Crop: "wheat", Temperature: 24, Moisture: 0.4, Humidity: 58, NDVI: 0.6, Rainfall: 0.8, RiskScore: 0.3},
		{Crop: "rice", Temperature: 28, Moisture: 0.7, Humidity: 82, NDVI: 0.76, Rainfall: 1.5, RiskScore: 0.1},
	}

	producer := &kafkago.Writer{
		Addr:  kafkago.TCP(broker),
		Topic: testSamplesTopic,
	}
	t.Cleanup(func() { _ = producer.Close() })

	msgs := make([]kafkago.Message, 0, len(samples)+1)
	// Poison pill first: it must be skipped and committed, not returned.
	msgs = append(msgs, kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{")})
	for i, s := range samples {
		payload, err := json.Marshal(s)
		require.NoError(t, err)
		msgs = append(msgs, kafkago.Message{Key: []byte(fmt.Sprintf("sample-%d", i)), Value: payload})
	}
	require.NoError(t, producer.WriteMessages(ctx, msgs...))

	reader := kafkaadapter.NewSampleReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	// Retry until the consumer group rebalances and messages flow.
	var got []domain.TrainingSample
	for len(got) < len(samples) {
		batch, err := reader.FetchBatch(ctx, 10)
		require.NoError(t, err)
		got = append(got, batch...)
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for samples")
		}
	}

	require.Len(t, got, 2)
	assert.Equal(t, samples[0], got[0])
	assert.Equal(t, samples[1], got[1])
}

// TestAssessmentWriterRoundTrip publishes an assessment and verifies the
// envelope and headers on the sink topic.
func TestAssessmentWriterRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testAssessmentsTopic)

	cfg := &config.Config{
		KafkaBrokers:          []string{broker},
		KafkaAssessmentsTopic: testAssessmentsTopic,
	}

	writer := kafkaadapter.NewAssessmentWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	assessment := domain.Assessment{
		Crop:          "maize",
		RiskScore:     0.45,
		RiskLevel:     domain.RiskMedium,
		WeakestFactor: domain.FactorMoisture,
		Method:        domain.MethodRuleBased,
		GeneratedAt:   time.Date(2026, 8, 20, 9, 30, 0, 0, time.UTC),
	}
	recs := []domain.Recommendation{
		{Factor: domain.FactorMoisture, Priority: 0.6, Issue: "Soil Moisture Deficit"},
		{Factor: domain.FactorGeneral, Priority: 0.5, Issue: "Moderate Risk"},
	}
	require.NoError(t, writer.Publish(ctx, assessment, recs))

	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testAssessmentsTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
	defer readCancel()
	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err)

	assert.Equal(t, []byte("maize"), msg.Key)

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "Medium", headers["risk_level"])
	assert.Equal(t, "rule-based", headers["method"])
	_, err = time.Parse(time.RFC3339, headers["generated_at"])
	assert.NoError(t, err)

	var envelope struct {
		Assessment      domain.Assessment       `json:"assessment"`
		Recommendations []domain.Recommendation `json:"recommendations"`
	}
	require.NoError(t, json.Unmarshal(msg.Value, &envelope))
	assert.Equal(t, assessment.Crop, envelope.Assessment.Crop)
	assert.Equal(t, assessment.RiskScore, envelope.Assessment.RiskScore)
	require.Len(t, envelope.Recommendations, 2)
	assert.Equal(t, domain.FactorGeneral, envelope.Recommendations[1].Factor)
}

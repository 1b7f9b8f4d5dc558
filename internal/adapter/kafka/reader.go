// Package kafka adapts the service to its Kafka topics: labeled training
// samples in, completed assessments out.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/fieldsense/crop-risk-service/internal/config"
	"github.com/fieldsense/crop-risk-service/internal/domain"
)

// batchWait bounds how long FetchBatch blocks waiting for the next message
// before returning what it has.
const batchWait = 2 * time.Second

// SampleReader consumes training tuples from the samples topic.
// It implements trainer.SampleSource.
type SampleReader struct {
	reader *kafkago.Reader
	logger *slog.Logger
}

// NewSampleReader creates a consumer-group reader for the samples topic.
func NewSampleReader(cfg *config.Config, logger *slog.Logger) *SampleReader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     cfg.KafkaBrokers,
		Topic:       cfg.KafkaSamplesTopic,
		GroupID:     cfg.KafkaGroupID,
		StartOffset: kafkago.FirstOffset,
	})
	return &SampleReader{reader: r, logger: logger}
}

// FetchBatch reads up to max samples, returning early once the topic stops
// producing within the batch window. Messages that fail to parse are logged,
// committed, and skipped; they never poison training.
func (r *SampleReader) FetchBatch(ctx context.Context, max int) ([]domain.TrainingSample, error) {
	samples := make([]domain.TrainingSample, 0, max)

	for len(samples) < max {
		fetchCtx, cancel := context.WithTimeout(ctx, batchWait)
		msg, err := r.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				break // window elapsed, return the partial batch
			}
			if ctx.Err() != nil {
				return samples, ctx.Err()
			}
			return samples, err
		}

		sample, perr := parseSample(msg.Value)
		if perr != nil {
			r.logger.Warn("skipping malformed training sample",
				"error", perr,
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
			)
		} else {
			samples = append(samples, sample)
		}

		if cerr := r.reader.CommitMessages(ctx, msg); cerr != nil {
			r.logger.Warn("commit offset failed", "error", cerr,
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset)
		}
	}

	return samples, nil
}

func (r *SampleReader) Close() error {
	return r.reader.Close()
}

// parseSample deserializes one training tuple and rejects labels outside
// [0,1] so a bad producer cannot push the model off the unit interval.
func parseSample(value []byte) (domain.TrainingSample, error) {
	var s domain.TrainingSample
	if err := json.Unmarshal(value, &s); err != nil {
		return domain.TrainingSample{}, err
	}
	if s.Crop == "" {
		return domain.TrainingSample{}, errors.New("sample missing crop")
	}
	if s.RiskScore < 0 || s.RiskScore > 1 {
		return domain.TrainingSample{}, errors.New("sample risk_score outside [0,1]")
	}
	return s, nil
}

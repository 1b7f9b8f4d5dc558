// Package trainer coordinates background model training: it collects labeled
// samples from an external provider, retrains the model, and swaps the new
// bundle in without disturbing in-flight predictions.
package trainer

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fieldsense/crop-risk-service/internal/domain"
	"github.com/fieldsense/crop-risk-service/internal/model"
	"github.com/fieldsense/crop-risk-service/internal/observability"
)

// ErrTrainingInProgress means a run was requested while another is active.
// Training is single-flight; callers retry after the active run reports.
var ErrTrainingInProgress = errors.New("a training run is already in progress")

// ErrNoSampleSource means the trainer was built without a sample source, so
// there is nothing to train from.
var ErrNoSampleSource = errors.New("no training sample source configured")

// SampleSource supplies labeled training tuples from the external provider.
type SampleSource interface {
	FetchBatch(ctx context.Context, max int) ([]domain.TrainingSample, error)
}

// Result reports a completed (or failed) training run.
type Result struct {
	Metrics  model.Metrics
	Err      error
	Duration time.Duration
}

// Config sizes sample collection and names where the fresh bundle goes.
type Config struct {
	// BundlePath is where the trained bundle is persisted. Empty disables
	// persistence; the bundle still becomes active in memory.
	BundlePath string

	// TargetSamples is how many samples a run tries to collect before
	// training. Collection stops early when the source runs dry.
	TargetSamples int

	// FetchBatchSize bounds a single FetchBatch call.
	FetchBatchSize int
}

// Trainer runs training off the request path. A run observes either the
// previous fully-trained bundle or the new one, never a half-updated state,
// because the swap happens inside model.Train as a single pointer store.
type Trainer struct {
	model   *model.Model
	source  SampleSource
	cfg     Config
	logger  *slog.Logger
	metrics *observability.Metrics
	running atomic.Bool
}

// New creates a Trainer.
func New(m *model.Model, source SampleSource, cfg Config, logger *slog.Logger, metrics *observability.Metrics) *Trainer {
	if cfg.FetchBatchSize <= 0 {
		cfg.FetchBatchSize = 500
	}
	return &Trainer{model: m, source: source, cfg: cfg, logger: logger, metrics: metrics}
}

// Running reports whether a training run is active.
func (t *Trainer) Running() bool {
	return t.running.Load()
}

// TrainOnce runs a full collect-train-persist cycle synchronously. Returns
// ErrTrainingInProgress if another run is active.
func (t *Trainer) TrainOnce(ctx context.Context) Result {
	if !t.running.CompareAndSwap(false, true) {
		return Result{Err: ErrTrainingInProgress}
	}
	defer t.running.Store(false)
	return t.run(ctx)
}

// TrainAsync starts a run in the background and reports through onDone when
// it finishes. The error return only covers starting: ErrTrainingInProgress
// when a run is already active.
func (t *Trainer) TrainAsync(ctx context.Context, onDone func(Result)) error {
	if !t.running.CompareAndSwap(false, true) {
		return ErrTrainingInProgress
	}
	go func() {
		defer t.running.Store(false)
		res := t.run(ctx)
		if onDone != nil {
			onDone(res)
		}
	}()
	return nil
}

func (t *Trainer) run(ctx context.Context) Result {
	start := time.Now()

	if t.source == nil {
		return t.finish(start, model.Metrics{}, ErrNoSampleSource)
	}

	samples, err := t.collect(ctx)
	if err != nil {
		return t.finish(start, model.Metrics{}, err)
	}

	t.logger.Info("training started", "samples", len(samples))
	metrics, err := t.model.Train(samples)
	if err != nil {
		return t.finish(start, model.Metrics{}, err)
	}

	if t.cfg.BundlePath != "" {
		if err := t.model.Save(t.cfg.BundlePath); err != nil {
			// The new bundle is already active; a failed save only costs
			// warm start on the next boot.
			t.logger.Warn("bundle save failed", "path", t.cfg.BundlePath, "error", err)
		}
	}

	return t.finish(start, metrics, nil)
}

// collect pulls batches until the target is reached or the source runs dry.
// Transient fetch errors back off and retry; persistent ones abort the run.
func (t *Trainer) collect(ctx context.Context) ([]domain.TrainingSample, error) {
	samples := make([]domain.TrainingSample, 0, t.cfg.TargetSamples)

	backoff := 200 * time.Millisecond
	const maxBackoff = 5 * time.Second
	failures := 0

	for len(samples) < t.cfg.TargetSamples {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		want := t.cfg.FetchBatchSize
		if remaining := t.cfg.TargetSamples - len(samples); remaining < want {
			want = remaining
		}

		batch, err := t.source.FetchBatch(ctx, want)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failures++
			if failures >= 5 {
				return nil, err
			}
			t.logger.Warn("sample fetch failed, backing off", "error", err, "attempt", failures)
			if !sleepWithContext(ctx, backoff) {
				return nil, ctx.Err()
			}
			backoff = nextBackoff(backoff, maxBackoff)
			continue
		}
		failures = 0
		backoff = 200 * time.Millisecond

		if len(batch) == 0 {
			break // source exhausted
		}
		samples = append(samples, batch...)
		if t.metrics != nil {
			t.metrics.SamplesConsumed.Add(float64(len(batch)))
		}
	}

	return samples, nil
}

func (t *Trainer) finish(start time.Time, metrics model.Metrics, err error) Result {
	duration := time.Since(start)
	if t.metrics != nil {
		t.metrics.TrainingDuration.Observe(duration.Seconds())
		if err != nil {
			t.metrics.TrainingRuns.WithLabelValues("error").Inc()
		} else {
			t.metrics.TrainingRuns.WithLabelValues("success").Inc()
			t.metrics.ModelTrained.Set(1)
		}
	}

	if err != nil {
		t.logger.Error("training run failed", "error", err, "duration", duration)
	} else {
		t.logger.Info("training run complete",
			"duration", duration,
			"samples", metrics.Samples,
			"mae", metrics.MAE,
			"r2", metrics.R2,
		)
	}
	return Result{Metrics: metrics, Err: err, Duration: duration}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

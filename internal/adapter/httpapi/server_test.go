package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsense/crop-risk-service/internal/catalog"
	"github.com/fieldsense/crop-risk-service/internal/domain"
	"github.com/fieldsense/crop-risk-service/internal/model"
	"github.com/fieldsense/crop-risk-service/internal/recommend"
	"github.com/fieldsense/crop-risk-service/internal/risk"
	"github.com/fieldsense/crop-risk-service/internal/trainer"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	kb, err := catalog.Parse([]byte(`
maize:
  category: moderate_moisture
  optimal_temp: 25
  temp_tolerance: 5
  optimal_moisture: 0.5
  moisture_tolerance: 0.1
  optimal_humidity: 60
  humidity_tolerance: 10
  optimal_ndvi: 0.7
  ndvi_tolerance: 0.1
  optimal_rainfall: 1.0
  rainfall_tolerance: 0.25
rice:
  category: high_moisture
  optimal_temp: 27
  temp_tolerance: 4
  optimal_moisture: 0.7
  moisture_tolerance: 0.12
  optimal_humidity: 80
  humidity_tolerance: 10
  optimal_ndvi: 0.75
  ndvi_tolerance: 0.1
  optimal_rainfall: 1.4
  rainfall_tolerance: 0.35
`))
	require.NoError(t, err)
	return kb
}

type stubTrainer struct {
	startErr error
	running  bool
}

func (s stubTrainer) TrainAsync(context.Context, func(trainer.Result)) error { return s.startErr }
func (s stubTrainer) Running() bool                                          { return s.running }

type stubModel struct{ bundle *model.Bundle }

func (s stubModel) Trained() bool               { return s.bundle != nil }
func (s stubModel) ActiveBundle() *model.Bundle { return s.bundle }

type recordingPublisher struct {
	published int
	err       error
}

func (p *recordingPublisher) Publish(context.Context, domain.Assessment, []domain.Recommendation) error {
	p.published++
	return p.err
}

func newTestServer(t *testing.T, mutate func(*Deps)) *Server {
	t.Helper()
	kb := testCatalog(t)
	engine := risk.NewEngine(kb)
	logger := slog.Default()

	deps := Deps{
		Catalog:   kb,
		Assessor:  risk.NewArbiter(engine, nil, logger),
		Recommend: recommend.New(kb),
		Explain:   engine,
		Trainer:   stubTrainer{},
		Model:     stubModel{},
	}
	if mutate != nil {
		mutate(&deps)
	}
	return NewServer(":0", deps, logger)
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndReadiness(t *testing.T) {
	srv := newTestServer(t, nil)

	t.Run("healthz", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/healthz", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("readyz with catalog", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/readyz", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("readyz without catalog", func(t *testing.T) {
		bare := newTestServer(t, func(d *Deps) { d.Catalog = nil })
		rec := doJSON(t, bare, http.MethodGet, "/readyz", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestListAndGetCrops(t *testing.T) {
	srv := newTestServer(t, nil)

	t.Run("list", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/api/v1/crops", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Crops []string `json:"crops"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, []string{"maize", "rice"}, body.Crops)
	})

	t.Run("get known crop", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/api/v1/crops/rice", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Profile catalog.CropProfile `json:"profile"`
			Formula string              `json:"formula"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "rice", body.Profile.Name)
		assert.Equal(t, domain.CategoryHighMoisture, body.Profile.Category)
		assert.Contains(t, body.Formula, "Moisture Risk")
	})

	t.Run("get unknown crop", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/api/v1/crops/durian", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestAssess(t *testing.T) {
	const body = `{"crop":"maize","temperature":34,"moisture":0.3,"humidity":45,"ndvi":0.5,"rainfall":0.6}`

	t.Run("success", func(t *testing.T) {
		srv := newTestServer(t, nil)
		rec := doJSON(t, srv, http.MethodPost, "/api/v1/assess", body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp struct {
			Crop            string                     `json:"crop"`
			RiskScore       float64                    `json:"risk_score"`
			RiskLevel       domain.RiskLevel           `json:"risk_level"`
			Method          domain.Method              `json:"method"`
			WeakestFactor   domain.Factor              `json:"weakest_factor"`
			Recommendations []domain.Recommendation    `json:"recommendations"`
			Comparison      map[string]json.RawMessage `json:"comparison"`
			Formula         string                     `json:"formula"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

		assert.Equal(t, "maize", resp.Crop)
		assert.Greater(t, resp.RiskScore, 0.0)
		assert.Equal(t, domain.MethodRuleBased, resp.Method)
		assert.NotEmpty(t, resp.WeakestFactor)
		assert.NotEmpty(t, resp.Recommendations)
		assert.Len(t, resp.Comparison, 5)
		assert.Contains(t, resp.Formula, "Risk Score =")
		// The general recommendation always closes the list.
		assert.Equal(t, domain.FactorGeneral, resp.Recommendations[len(resp.Recommendations)-1].Factor)
	})

	t.Run("missing reading is rejected", func(t *testing.T) {
		srv := newTestServer(t, nil)
		rec := doJSON(t, srv, http.MethodPost, "/api/v1/assess",
			`{"crop":"maize","temperature":34,"moisture":0.3,"humidity":45,"ndvi":0.5}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("explicit zero reading is accepted", func(t *testing.T) {
		srv := newTestServer(t, nil)
		rec := doJSON(t, srv, http.MethodPost, "/api/v1/assess",
			`{"crop":"maize","temperature":0,"moisture":0,"humidity":0,"ndvi":0,"rainfall":0}`)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unknown crop", func(t *testing.T) {
		srv := newTestServer(t, nil)
		rec := doJSON(t, srv, http.MethodPost, "/api/v1/assess",
			`{"crop":"durian","temperature":34,"moisture":0.3,"humidity":45,"ndvi":0.5,"rainfall":0.6}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("publishes the assessment when a publisher is wired", func(t *testing.T) {
		pub := &recordingPublisher{}
		srv := newTestServer(t, func(d *Deps) { d.Publisher = pub })

		rec := doJSON(t, srv, http.MethodPost, "/api/v1/assess", body)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, pub.published)
	})

	t.Run("publish failure does not fail the request", func(t *testing.T) {
		pub := &recordingPublisher{err: assert.AnError}
		srv := newTestServer(t, func(d *Deps) { d.Publisher = pub })

		rec := doJSON(t, srv, http.MethodPost, "/api/v1/assess", body)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestTrainEndpoint(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		srv := newTestServer(t, nil)
		rec := doJSON(t, srv, http.MethodPost, "/api/v1/model/train", "")
		assert.Equal(t, http.StatusAccepted, rec.Code)
	})

	t.Run("conflict while a run is active", func(t *testing.T) {
		srv := newTestServer(t, func(d *Deps) {
			d.Trainer = stubTrainer{startErr: trainer.ErrTrainingInProgress, running: true}
		})
		rec := doJSON(t, srv, http.MethodPost, "/api/v1/model/train", "")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("other start failures surface as 500", func(t *testing.T) {
		srv := newTestServer(t, func(d *Deps) {
			d.Trainer = stubTrainer{startErr: trainer.ErrNoSampleSource}
		})
		rec := doJSON(t, srv, http.MethodPost, "/api/v1/model/train", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestModelInfoEndpoint(t *testing.T) {
	t.Run("untrained", func(t *testing.T) {
		srv := newTestServer(t, nil)
		rec := doJSON(t, srv, http.MethodGet, "/api/v1/model", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Trained  bool `json:"trained"`
			Training bool `json:"training"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.False(t, body.Trained)
		assert.False(t, body.Training)
	})

	t.Run("trained", func(t *testing.T) {
		bundle := &model.Bundle{
			SchemaVersion:      model.SchemaVersion,
			CatalogFingerprint: "abc123",
			TrainedAt:          time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
			Metrics:            model.Metrics{MAE: 0.04, Samples: 500},
		}
		srv := newTestServer(t, func(d *Deps) { d.Model = stubModel{bundle: bundle} })

		rec := doJSON(t, srv, http.MethodGet, "/api/v1/model", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Trained            bool          `json:"trained"`
			CatalogFingerprint string        `json:"catalog_fingerprint"`
			Metrics            model.Metrics `json:"metrics"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.True(t, body.Trained)
		assert.Equal(t, "abc123", body.CatalogFingerprint)
		assert.Equal(t, 0.04, body.Metrics.MAE)
		assert.Equal(t, 500, body.Metrics.Samples)
	})
}

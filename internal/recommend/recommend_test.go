package recommend

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsense/crop-risk-service/internal/catalog"
	"github.com/fieldsense/crop-risk-service/internal/domain"
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
`))
	require.NoError(t, err)
	return kb
}

func assessment(score float64, risks map[domain.Factor]float64) domain.Assessment {
	return domain.Assessment{
		Crop:        "maize",
		RiskScore:   score,
		RiskLevel:   domain.LevelForScore(score),
		FactorRisks: risks,
	}
}

func TestGenerate(t *testing.T) {
	engine := New(testCatalog(t))

	t.Run("unknown crop", func(t *testing.T) {
		_, err := engine.Generate("durian", domain.Assessment{}, domain.Observation{})
		assert.ErrorIs(t, err, catalog.ErrCropNotFound)
	})

	t.Run("all factors calm yields only the general entry", func(t *testing.T) {
		a := assessment(0.1, map[domain.Factor]float64{
			domain.FactorTemperature: 0.1,
			domain.FactorMoisture:    0.2,
			domain.FactorHumidity:    0.3, // exactly at threshold, excluded
			domain.FactorNDVI:        0.0,
			domain.FactorRainfall:    0.1,
		})

		recs, err := engine.Generate("maize", a, domain.Observation{
			Temperature: 25, Moisture: 0.5, Humidity: 60, NDVI: 0.7, Rainfall: 1.0,
		})
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, domain.FactorGeneral, recs[0].Factor)
		assert.Equal(t, 0.2, recs[0].Priority)
		assert.Equal(t, "Low Risk", recs[0].Issue)
		assert.Equal(t, "Maintain low risk levels", recs[0].ExpectedImprovement)
	})

	t.Run("one entry per factor above threshold plus general, sorted", func(t *testing.T) {
		a := assessment(0.65, map[domain.Factor]float64{
			domain.FactorTemperature: 0.9,
			domain.FactorMoisture:    0.5,
			domain.FactorHumidity:    0.2,
			domain.FactorNDVI:        0.7,
			domain.FactorRainfall:    0.1,
		})
		obs := domain.Observation{Temperature: 34, Moisture: 0.35, Humidity: 60, NDVI: 0.5, Rainfall: 1.0}

		recs, err := engine.Generate("maize", a, obs)
		require.NoError(t, err)
		require.Len(t, recs, 4)

		// Factor entries descend by priority; the general entry is last even
		// though its priority (1.0 for high risk) would sort it first.
		assert.Equal(t, domain.FactorTemperature, recs[0].Factor)
		assert.Equal(t, 0.9, recs[0].Priority)
		assert.Equal(t, domain.FactorNDVI, recs[1].Factor)
		assert.Equal(t, domain.FactorMoisture, recs[2].Factor)
		assert.Equal(t, domain.FactorGeneral, recs[3].Factor)
		assert.Equal(t, 1.0, recs[3].Priority)
		assert.Equal(t, "High Overall Risk", recs[3].Issue)
	})

	t.Run("equal priorities keep precedence order", func(t *testing.T) {
		a := assessment(0.4, map[domain.Factor]float64{
			domain.FactorTemperature: 0.5,
			domain.FactorMoisture:    0.5,
			domain.FactorHumidity:    0.0,
			domain.FactorNDVI:        0.0,
			domain.FactorRainfall:    0.5,
		})
		obs := domain.Observation{Temperature: 28, Moisture: 0.45, Humidity: 60, NDVI: 0.7, Rainfall: 0.9}

		recs, err := engine.Generate("maize", a, obs)
		require.NoError(t, err)
		require.Len(t, recs, 4)
		assert.Equal(t, domain.FactorTemperature, recs[0].Factor)
		assert.Equal(t, domain.FactorMoisture, recs[1].Factor)
		assert.Equal(t, domain.FactorRainfall, recs[2].Factor)
	})
}

func TestFactorRecommendationTexts(t *testing.T) {
	engine := New(testCatalog(t))

	t.Run("high temperature", func(t *testing.T) {
		a := assessment(0.5, map[domain.Factor]float64{domain.FactorTemperature: 0.8})
		obs := domain.Observation{Temperature: 34, Moisture: 0.5, Humidity: 60, NDVI: 0.7, Rainfall: 1.0}

		recs, err := engine.Generate("maize", a, obs)
		require.NoError(t, err)

		temp := recs[0]
		assert.Equal(t, "High Temperature Stress", temp.Issue)
		assert.Equal(t, "Implement cooling measures to reduce temperature from 34.0°C to 25.0°C", temp.Recommendation)
		assert.Contains(t, temp.Actions, "Install shade nets or temporary covers")
		assert.Equal(t, "Risk reduction: 180.0% → 80.0%", temp.ExpectedImprovement)
		assert.Equal(t, domain.RiskHigh, temp.RiskLevel)
	})

	t.Run("low temperature", func(t *testing.T) {
		a := assessment(0.5, map[domain.Factor]float64{domain.FactorTemperature: 0.8})
		obs := domain.Observation{Temperature: 14, Moisture: 0.5, Humidity: 60, NDVI: 0.7, Rainfall: 1.0}

		recs, err := engine.Generate("maize", a, obs)
		require.NoError(t, err)
		assert.Equal(t, "Low Temperature Stress", recs[0].Issue)
		assert.Contains(t, recs[0].Actions, "Use row covers or greenhouses")
	})

	t.Run("moisture deficit converts to millimetres", func(t *testing.T) {
		a := assessment(0.5, map[domain.Factor]float64{domain.FactorMoisture: 0.9})
		obs := domain.Observation{Temperature: 25, Moisture: 0.3, Humidity: 60, NDVI: 0.7, Rainfall: 1.0}

		recs, err := engine.Generate("maize", a, obs)
		require.NoError(t, err)

		m := recs[0]
		assert.Equal(t, "Soil Moisture Deficit", m.Issue)
		assert.Equal(t, "Increase irrigation by 20mm to raise soil moisture from 0.30 to 0.50", m.Recommendation)
		assert.Contains(t, m.Actions, "Apply 20mm of irrigation water")
	})

	t.Run("excess moisture", func(t *testing.T) {
		a := assessment(0.5, map[domain.Factor]float64{domain.FactorMoisture: 0.9})
		obs := domain.Observation{Temperature: 25, Moisture: 0.75, Humidity: 60, NDVI: 0.7, Rainfall: 1.0}

		recs, err := engine.Generate("maize", a, obs)
		require.NoError(t, err)
		assert.Equal(t, "Excessive Soil Moisture", recs[0].Issue)
	})

	t.Run("low ndvi", func(t *testing.T) {
		a := assessment(0.5, map[domain.Factor]float64{domain.FactorNDVI: 0.8})
		obs := domain.Observation{Temperature: 25, Moisture: 0.5, Humidity: 60, NDVI: 0.4, Rainfall: 1.0}

		recs, err := engine.Generate("maize", a, obs)
		require.NoError(t, err)
		assert.Equal(t, "Poor Vegetation Health (Low NDVI)", recs[0].Issue)
		assert.Contains(t, recs[0].Actions, "Apply appropriate fertilizers")
	})

	t.Run("high ndvi is never flagged as a problem", func(t *testing.T) {
		a := assessment(0.2, map[domain.Factor]float64{domain.FactorNDVI: 0.5})
		obs := domain.Observation{Temperature: 25, Moisture: 0.5, Humidity: 60, NDVI: 0.95, Rainfall: 1.0}

		recs, err := engine.Generate("maize", a, obs)
		require.NoError(t, err)
		assert.Equal(t, "Good Vegetation Health", recs[0].Issue)
	})

	t.Run("rainfall deficit", func(t *testing.T) {
		a := assessment(0.5, map[domain.Factor]float64{domain.FactorRainfall: 0.8})
		obs := domain.Observation{Temperature: 25, Moisture: 0.5, Humidity: 60, NDVI: 0.7, Rainfall: 0.5}

		recs, err := engine.Generate("maize", a, obs)
		require.NoError(t, err)
		assert.Equal(t, "Rainfall Deficit", recs[0].Issue)
		assert.Equal(t, "Supplement with irrigation - 50mm needed", recs[0].Recommendation)
	})

	t.Run("humidity branches", func(t *testing.T) {
		a := assessment(0.5, map[domain.Factor]float64{domain.FactorHumidity: 0.9})

		high, err := engine.Generate("maize", a, domain.Observation{Temperature: 25, Moisture: 0.5, Humidity: 85, NDVI: 0.7, Rainfall: 1.0})
		require.NoError(t, err)
		assert.Equal(t, "High Humidity", high[0].Issue)

		low, err := engine.Generate("maize", a, domain.Observation{Temperature: 25, Moisture: 0.5, Humidity: 35, NDVI: 0.7, Rainfall: 1.0})
		require.NoError(t, err)
		assert.Equal(t, "Low Humidity", low[0].Issue)
	})
}

func TestGeneralRecommendationLevels(t *testing.T) {
	t.Run("medium", func(t *testing.T) {
		rec := generalRecommendation(domain.RiskMedium, 0.5)
		assert.Equal(t, 0.5, rec.Priority)
		assert.Equal(t, "Moderate Risk", rec.Issue)
		assert.Equal(t, "Potential risk reduction: 50.0% → 35.0%", rec.ExpectedImprovement)
	})

	t.Run("high", func(t *testing.T) {
		rec := generalRecommendation(domain.RiskHigh, 0.8)
		assert.Equal(t, 1.0, rec.Priority)
		assert.Equal(t, "Potential risk reduction: 80.0% → 40.0%", rec.ExpectedImprovement)
	})

	t.Run("low", func(t *testing.T) {
		rec := generalRecommendation(domain.RiskLow, 0.1)
		assert.Equal(t, 0.2, rec.Priority)
		assert.Equal(t, "Maintain low risk levels", rec.ExpectedImprovement)
	})
}

package domain

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestObservationValue(t *testing.T) {
	obs := Observation{Temperature: 1, Moisture: 2, Humidity: 3, NDVI: 4, Rainfall: 5}

	assert.Equal(t, 1.0, obs.Value(FactorTemperature))
	assert.Equal(t, 2.0, obs.Value(FactorMoisture))
	assert.Equal(t, 3.0, obs.Value(FactorHumidity))
	assert.Equal(t, 4.0, obs.Value(FactorNDVI))
	assert.Equal(t, 5.0, obs.Value(FactorRainfall))
	assert.Equal(t, 0.0, obs.Value(FactorGeneral))
}

func TestTrainingSampleObservation(t *testing.T) {
	s := TrainingSample{
		Crop:        "wheat",
		Temperature: 21,
		Moisture:    0.4,
		Humidity:    55,
		NDVI:        0.6,
		Rainfall:    0.8,
		RiskScore:   0.25,
	}

	obs := s.Observation()
	assert.Equal(t, Observation{Temperature: 21, Moisture: 0.4, Humidity: 55, NDVI: 0.6, Rainfall: 0.8}, obs)
}

func TestSetClock(t *testing.T) {
	frozen := time.Date(2026, 8, 23, 10, 0, 0, 0, time.UTC)
	SetClock(clockwork.NewFakeClockAt(frozen))
	defer SetClock(nil)

	assert.Equal(t, frozen, Now())

	SetClock(nil)
	assert.WithinDuration(t, time.Now(), Now(), time.Second)
}

package model

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stepData is a two-feature set where only the first feature matters:
// y = 0.8 when x0 > 0.5, else 0.2.
func stepData(n int, rng *rand.Rand) ([][]float64, []float64) {
	x := make([][]float64, n)
	y := make([]float64, n)
	for i := range x {
		x[i] = []float64{rng.Float64(), rng.Float64()}
		if x[i][0] > 0.5 {
			y[i] = 0.8
		} else {
			y[i] = 0.2
		}
	}
	return x, y
}

func stepConfig() forestConfig {
	return forestConfig{numTrees: 10, maxDepth: 4, minLeaf: 2, maxFeatures: 2}
}

func TestFitForest(t *testing.T) {
	x, y := stepData(200, rand.New(rand.NewSource(3)))
	f := fitForest(x, y, stepConfig(), rand.New(rand.NewSource(3)))

	require.Len(t, f.Trees, 10)

	t.Run("learns the step function", func(t *testing.T) {
		assert.InDelta(t, 0.8, f.Predict([]float64{0.9, 0.5}), 0.1)
		assert.InDelta(t, 0.2, f.Predict([]float64{0.1, 0.5}), 0.1)
	})

	t.Run("importance concentrates on the informative feature", func(t *testing.T) {
		imp := f.FeatureImportances()
		require.Len(t, imp, 2)
		assert.Greater(t, imp[0], imp[1])
		assert.InDelta(t, 1.0, imp[0]+imp[1], 1e-9, "importances are normalized")
	})

	t.Run("same seed reproduces the forest", func(t *testing.T) {
		g := fitForest(x, y, stepConfig(), rand.New(rand.NewSource(3)))
		row := []float64{0.42, 0.77}
		assert.Equal(t, f.Predict(row), g.Predict(row))
	})
}

func TestFitForestConstantLabels(t *testing.T) {
	x := [][]float64{{1, 2}, {3, 4}, {5, 6}, {7, 8}}
	y := []float64{0.5, 0.5, 0.5, 0.5}

	f := fitForest(x, y, stepConfig(), rand.New(rand.NewSource(1)))
	// Zero variance collapses every tree to a single leaf.
	assert.Equal(t, 0.5, f.Predict([]float64{2, 2}))
}

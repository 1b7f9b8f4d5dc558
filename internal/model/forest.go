package model

import (
	"math/rand"
	"sort"
)

// Forest is a bagged ensemble of regression trees. Each tree trains on a
// bootstrap sample over a random feature subset; predictions average the
// per-tree outputs. Read-only after fitting.
type Forest struct {
	Trees       []regressionTree `json:"trees"`
	Importances []float64        `json:"importances"`
}

// treeNode is one node in a serialized regression tree. Interior nodes route
// on Feature/Threshold; leaves carry the mean label of their samples.
type treeNode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
	Leaf      bool    `json:"leaf,omitempty"`
}

type regressionTree struct {
	Nodes []treeNode `json:"nodes"`
}

func (t regressionTree) predict(row []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Predict returns the ensemble mean for one feature row.
func (f *Forest) Predict(row []float64) float64 {
	var sum float64
	for _, t := range f.Trees {
		sum += t.predict(row)
	}
	return sum / float64(len(f.Trees))
}

type forestConfig struct {
	numTrees    int
	maxDepth    int
	minLeaf     int
	maxFeatures int
}

// fitForest trains the ensemble. All randomness (bootstrap draws, feature
// subsets) comes from rng, so a fixed seed reproduces the forest exactly.
func fitForest(x [][]float64, y []float64, cfg forestConfig, rng *rand.Rand) *Forest {
	nFeatures := len(x[0])
	f := &Forest{
		Trees:       make([]regressionTree, 0, cfg.numTrees),
		Importances: make([]float64, nFeatures),
	}

	for range cfg.numTrees {
		indices := make([]int, len(x))
		for i := range indices {
			indices[i] = rng.Intn(len(x))
		}
		b := treeBuilder{x: x, y: y, cfg: cfg, rng: rng, importances: f.Importances}
		b.grow(indices, 0)
		f.Trees = append(f.Trees, regressionTree{Nodes: b.nodes})
	}

	normalize(f.Importances)
	return f
}

// FeatureImportances returns the normalized total impurity decrease
// attributed to each feature column across all trees.
func (f *Forest) FeatureImportances() []float64 {
	out := make([]float64, len(f.Importances))
	copy(out, f.Importances)
	return out
}

type treeBuilder struct {
	x           [][]float64
	y           []float64
	cfg         forestConfig
	rng         *rand.Rand
	nodes       []treeNode
	importances []float64
}

// grow recursively builds the subtree for the given sample indices and
// returns its node index.
func (b *treeBuilder) grow(indices []int, depth int) int {
	sum, sumSq := labelSums(b.y, indices)
	n := float64(len(indices))
	sse := sumSq - sum*sum/n

	if depth >= b.cfg.maxDepth || len(indices) < 2*b.cfg.minLeaf || sse <= 0 {
		return b.leaf(sum / n)
	}

	feature, threshold, splitSSE, ok := b.bestSplit(indices, sse)
	if !ok {
		return b.leaf(sum / n)
	}

	// Importance: impurity decrease weighted by the node's sample share.
	b.importances[feature] += (sse - splitSSE) / float64(len(b.y))

	left := make([]int, 0, len(indices))
	right := make([]int, 0, len(indices))
	for _, i := range indices {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	idx := len(b.nodes)
	b.nodes = append(b.nodes, treeNode{Feature: feature, Threshold: threshold})
	b.nodes[idx].Left = b.grow(left, depth+1)
	b.nodes[idx].Right = b.grow(right, depth+1)
	return idx
}

func (b *treeBuilder) leaf(value float64) int {
	b.nodes = append(b.nodes, treeNode{Leaf: true, Value: value})
	return len(b.nodes) - 1
}

// bestSplit scans a random subset of features for the split minimizing the
// summed squared error of the two children. Returns ok=false when no split
// leaves both children with at least minLeaf samples.
func (b *treeBuilder) bestSplit(indices []int, parentSSE float64) (feature int, threshold, bestSSE float64, ok bool) {
	bestSSE = parentSSE

	nFeatures := len(b.x[0])
	subset := b.rng.Perm(nFeatures)[:b.cfg.maxFeatures]

	sorted := make([]int, len(indices))
	for _, f := range subset {
		copy(sorted, indices)
		sort.Slice(sorted, func(i, j int) bool { return b.x[sorted[i]][f] < b.x[sorted[j]][f] })

		var sumL, sumSqL float64
		sumR, sumSqR := labelSums(b.y, sorted)

		for i := 0; i < len(sorted)-1; i++ {
			yi := b.y[sorted[i]]
			sumL += yi
			sumSqL += yi * yi
			sumR -= yi
			sumSqR -= yi * yi

			vi, vnext := b.x[sorted[i]][f], b.x[sorted[i+1]][f]
			if vi == vnext {
				continue
			}
			nL, nR := i+1, len(sorted)-i-1
			if nL < b.cfg.minLeaf || nR < b.cfg.minLeaf {
				continue
			}

			sse := (sumSqL - sumL*sumL/float64(nL)) + (sumSqR - sumR*sumR/float64(nR))
			if sse < bestSSE {
				feature = f
				threshold = (vi + vnext) / 2
				bestSSE = sse
				ok = true
			}
		}
	}
	return feature, threshold, bestSSE, ok
}

func labelSums(y []float64, indices []int) (sum, sumSq float64) {
	for _, i := range indices {
		sum += y[i]
		sumSq += y[i] * y[i]
	}
	return sum, sumSq
}

func normalize(vals []float64) {
	var total float64
	for _, v := range vals {
		total += v
	}
	if total == 0 {
		return
	}
	for i := range vals {
		vals[i] /= total
	}
}

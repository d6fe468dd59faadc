package detectors

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// standardScaler centers and scales each feature column; constant columns
// keep a scale of 1 so they pass through unchanged.
type standardScaler struct {
	means []float64
	stds  []float64
}

func fitScaler(x [][]float64) *standardScaler {
	if len(x) == 0 {
		return &standardScaler{}
	}
	dims := len(x[0])
	s := &standardScaler{
		means: make([]float64, dims),
		stds:  make([]float64, dims),
	}
	col := make([]float64, len(x))
	for d := 0; d < dims; d++ {
		for i := range x {
			col[i] = x[i][d]
		}
		s.means[d] = stat.Mean(col, nil)
		std := stat.StdDev(col, nil)
		if std == 0 || math.IsNaN(std) {
			std = 1
		}
		s.stds[d] = std
	}
	return s
}

func (s *standardScaler) transform(v []float64) []float64 {
	out := make([]float64, len(v))
	for d := range v {
		out[d] = (v[d] - s.means[d]) / s.stds[d]
	}
	return out
}

// isolationForest is a seeded isolation-forest outlier model. Anomalies are
// isolated by fewer random axis-aligned splits than regular points, so a
// short mean path length over the ensemble marks a record anomalous. The
// decision value follows the usual convention: negative = anomaly, and lower
// means more anomalous.
type isolationForest struct {
	trees       []*iTree
	subsample   int
	avgPath     float64 // c(subsample), the normalization constant
	scoreOffset float64 // anomaly-score threshold from the contamination rate
}

type iTree struct {
	feature float64 // split value
	dim     int     // split feature index
	size    int     // leaf size (external nodes only)
	left    *iTree
	right   *iTree
}

const defaultTrees = 100
const defaultSubsample = 256

// fitIsolationForest trains the ensemble on the scaled feature matrix and
// derives the anomaly threshold so that roughly a contamination fraction of
// the training points score as anomalous.
func fitIsolationForest(x [][]float64, contamination float64, rng *rand.Rand) *isolationForest {
	sub := defaultSubsample
	if sub > len(x) {
		sub = len(x)
	}
	heightLimit := int(math.Ceil(math.Log2(math.Max(2, float64(sub)))))

	f := &isolationForest{
		trees:     make([]*iTree, 0, defaultTrees),
		subsample: sub,
		avgPath:   avgPathLength(sub),
	}

	sample := make([][]float64, sub)
	for t := 0; t < defaultTrees; t++ {
		for i := 0; i < sub; i++ {
			sample[i] = x[rng.Intn(len(x))]
		}
		f.trees = append(f.trees, buildTree(sample, 0, heightLimit, rng))
	}

	// Threshold at the (1 - contamination) quantile of training scores.
	scores := make([]float64, len(x))
	for i := range x {
		scores[i] = f.anomalyScore(x[i])
	}
	sort.Float64s(scores)
	idx := int(math.Ceil(float64(len(scores))*(1-contamination))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(scores) {
		idx = len(scores) - 1
	}
	f.scoreOffset = scores[idx]

	return f
}

func buildTree(sample [][]float64, height, limit int, rng *rand.Rand) *iTree {
	if height >= limit || len(sample) <= 1 {
		return &iTree{size: len(sample)}
	}

	dims := len(sample[0])
	dim := rng.Intn(dims)
	lo, hi := sample[0][dim], sample[0][dim]
	for _, v := range sample[1:] {
		if v[dim] < lo {
			lo = v[dim]
		}
		if v[dim] > hi {
			hi = v[dim]
		}
	}
	if lo == hi {
		return &iTree{size: len(sample)}
	}

	split := lo + rng.Float64()*(hi-lo)
	var left, right [][]float64
	for _, v := range sample {
		if v[dim] < split {
			left = append(left, v)
		} else {
			right = append(right, v)
		}
	}

	return &iTree{
		dim:     dim,
		feature: split,
		left:    buildTree(left, height+1, limit, rng),
		right:   buildTree(right, height+1, limit, rng),
	}
}

// anomalyScore returns s(x) in (0,1); higher = more anomalous.
func (f *isolationForest) anomalyScore(v []float64) float64 {
	total := 0.0
	for _, t := range f.trees {
		total += pathLength(t, v, 0)
	}
	mean := total / float64(len(f.trees))
	return math.Pow(2, -mean/f.avgPath)
}

// decision mirrors the sklearn convention: negative values are anomalies and
// lower values are more anomalous.
func (f *isolationForest) decision(v []float64) float64 {
	return f.scoreOffset - f.anomalyScore(v)
}

func (f *isolationForest) isAnomaly(v []float64) bool {
	return f.decision(v) < 0
}

func pathLength(t *iTree, v []float64, depth float64) float64 {
	if t.left == nil {
		return depth + avgPathLength(t.size)
	}
	if v[t.dim] < t.feature {
		return pathLength(t.left, v, depth+1)
	}
	return pathLength(t.right, v, depth+1)
}

// avgPathLength is c(n), the expected path length of an unsuccessful BST
// search, used to normalize isolation depths.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+0.5772156649) - 2*(fn-1)/fn
}

package anomaly

import (
	"math"
	"math/rand"
)

const eulerGamma = 0.5772156649015329

// ForestConfig parameterizes isolation forest training.
type ForestConfig struct {
	Trees      int   `yaml:"trees" default:"100"`
	MaxSamples int   `yaml:"max_samples" default:"256"`
	Seed       int64 `yaml:"seed" default:"42"`
}

type inode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Size      int     `json:"n"`
}

type itree struct {
	Nodes []inode `json:"nodes"`
}

// IsolationForest isolates points with random axis-aligned splits; short
// average path lengths mean anomalies.
type IsolationForest struct {
	Trees      []itree `json:"trees"`
	MaxSamples int     `json:"max_samples"`
}

// FitForest grows cfg.Trees isolation trees on subsamples of X. The result
// only depends on X and cfg.Seed.
func FitForest(X [][]float64, cfg ForestConfig) *IsolationForest {
	n := len(X)
	psi := cfg.MaxSamples
	if psi <= 0 || psi > n {
		psi = n
	}
	maxDepth := int(math.Ceil(math.Log2(math.Max(float64(psi), 2))))
	rng := rand.New(rand.NewSource(cfg.Seed))

	f := &IsolationForest{Trees: make([]itree, cfg.Trees), MaxSamples: psi}
	for t := range f.Trees {
		idx := rng.Perm(n)[:psi]
		var tree itree
		tree.grow(X, idx, 0, maxDepth, rng)
		f.Trees[t] = tree
	}
	return f
}

func (t *itree) grow(X [][]float64, idx []int, depth, maxDepth int, rng *rand.Rand) int {
	pos := len(t.Nodes)
	t.Nodes = append(t.Nodes, inode{Feature: -1, Size: len(idx)})
	if depth >= maxDepth || len(idx) <= 1 {
		return pos
	}

	d := len(X[idx[0]])
	var candidates []int
	lows := make([]float64, d)
	highs := make([]float64, d)
	for j := 0; j < d; j++ {
		lo, hi := X[idx[0]][j], X[idx[0]][j]
		for _, i := range idx[1:] {
			v := X[i][j]
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		lows[j], highs[j] = lo, hi
		if hi > lo {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		return pos
	}

	f := candidates[rng.Intn(len(candidates))]
	lo, hi := lows[f], highs[f]
	thr := lo + (hi-lo)*rng.Float64()
	if thr <= lo {
		thr = lo + (hi-lo)/2
	}

	var left, right []int
	for _, i := range idx {
		if X[i][f] < thr {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := t.grow(X, left, depth+1, maxDepth, rng)
	r := t.grow(X, right, depth+1, maxDepth, rng)
	t.Nodes[pos].Feature = f
	t.Nodes[pos].Threshold = thr
	t.Nodes[pos].Left = l
	t.Nodes[pos].Right = r
	return pos
}

func (t itree) pathLength(x []float64) float64 {
	i, depth := 0, 0
	for {
		nd := t.Nodes[i]
		if nd.Feature < 0 {
			return float64(depth) + averagePathLength(nd.Size)
		}
		if x[nd.Feature] < nd.Threshold {
			i = nd.Left
		} else {
			i = nd.Right
		}
		depth++
	}
}

// averagePathLength is c(n), the expected path length of an unsuccessful
// BST search over n points.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}

// ScoreSample returns the opposite of the anomaly score, in [-1, 0).
// Lower is more abnormal.
func (f *IsolationForest) ScoreSample(x []float64) float64 {
	if len(f.Trees) == 0 {
		return 0
	}
	sum := 0.0
	for _, t := range f.Trees {
		sum += t.pathLength(x)
	}
	mean := sum / float64(len(f.Trees))
	c := averagePathLength(f.MaxSamples)
	if c == 0 {
		return -0.5
	}
	return -math.Pow(2, -mean/c)
}

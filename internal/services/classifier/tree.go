package classifier

import (
	"math/rand"
	"sort"
)

// TreeConfig bounds the growth of a single decision tree.
type TreeConfig struct {
	MaxDepth    int
	MinSplit    int
	MinLeaf     int
	MaxFeatures int
}

type tnode struct {
	Feature   int       `json:"f"`
	Threshold float64   `json:"t,omitempty"`
	Left      int       `json:"l,omitempty"`
	Right     int       `json:"r,omitempty"`
	Dist      []float64 `json:"d,omitempty"`
}

// Tree is a weighted gini CART tree stored as a flat node slice.
// Leaves carry the normalized class distribution.
type Tree struct {
	Nodes []tnode `json:"nodes"`
}

type treeBuilder struct {
	X       [][]float64
	y       []int
	w       []float64
	classes int
	cfg     TreeConfig
	rng     *rand.Rand
	tree    Tree
}

func growTree(X [][]float64, y []int, w []float64, idx []int, classes int, cfg TreeConfig, rng *rand.Rand) Tree {
	b := &treeBuilder{X: X, y: y, w: w, classes: classes, cfg: cfg, rng: rng}
	b.grow(idx, 0)
	return b.tree
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	pos := len(b.tree.Nodes)
	dist, total := b.distribution(idx)
	b.tree.Nodes = append(b.tree.Nodes, tnode{Feature: -1})

	if (b.cfg.MaxDepth > 0 && depth >= b.cfg.MaxDepth) || len(idx) < b.cfg.MinSplit || pure(dist) {
		b.tree.Nodes[pos].Dist = normalize(dist, total)
		return pos
	}

	feature, threshold, ok := b.bestSplit(idx, gini(dist, total))
	if !ok {
		b.tree.Nodes[pos].Dist = normalize(dist, total)
		return pos
	}

	var left, right []int
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.tree.Nodes[pos] = tnode{Feature: feature, Threshold: threshold, Left: l, Right: r}
	return pos
}

func (b *treeBuilder) distribution(idx []int) ([]float64, float64) {
	dist := make([]float64, b.classes)
	total := 0.0
	for _, i := range idx {
		dist[b.y[i]] += b.w[i]
		total += b.w[i]
	}
	return dist, total
}

// bestSplit scans k randomly ordered features and returns the threshold
// with the largest weighted gini decrease.
func (b *treeBuilder) bestSplit(idx []int, parent float64) (int, float64, bool) {
	nFeatures := len(b.X[idx[0]])
	k := b.cfg.MaxFeatures
	if k <= 0 || k > nFeatures {
		k = nFeatures
	}
	order := b.rng.Perm(nFeatures)

	minLeaf := b.cfg.MinLeaf
	if minLeaf < 1 {
		minLeaf = 1
	}

	bestFeature, bestThreshold := -1, 0.0
	bestGain := 1e-12
	sorted := append([]int(nil), idx...)
	leftDist := make([]float64, b.classes)
	rightDist := make([]float64, b.classes)

	for tried, f := range order {
		// keep looking past k features until some valid split exists
		if tried >= k && bestFeature >= 0 {
			break
		}
		sort.SliceStable(sorted, func(a, c int) bool { return b.X[sorted[a]][f] < b.X[sorted[c]][f] })

		for c := range leftDist {
			leftDist[c] = 0
			rightDist[c] = 0
		}
		rightTotal := 0.0
		for _, i := range sorted {
			rightDist[b.y[i]] += b.w[i]
			rightTotal += b.w[i]
		}
		all := rightTotal
		leftTotal := 0.0

		for pos := 0; pos < len(sorted)-1; pos++ {
			i := sorted[pos]
			leftDist[b.y[i]] += b.w[i]
			rightDist[b.y[i]] -= b.w[i]
			leftTotal += b.w[i]
			rightTotal -= b.w[i]

			cur, next := b.X[i][f], b.X[sorted[pos+1]][f]
			if cur == next {
				continue
			}
			if pos+1 < minLeaf || len(sorted)-pos-1 < minLeaf {
				continue
			}
			if leftTotal <= 0 || rightTotal <= 0 {
				continue
			}

			child := (leftTotal*gini(leftDist, leftTotal) + rightTotal*gini(rightDist, rightTotal)) / all
			if gain := parent - child; gain > bestGain {
				bestGain = gain
				bestFeature = f
				bestThreshold = cur + (next-cur)/2
			}
		}
	}
	return bestFeature, bestThreshold, bestFeature >= 0
}

func (t Tree) predict(x []float64) []float64 {
	n := t.Nodes[0]
	for n.Feature >= 0 {
		if x[n.Feature] <= n.Threshold {
			n = t.Nodes[n.Left]
		} else {
			n = t.Nodes[n.Right]
		}
	}
	return n.Dist
}

func gini(dist []float64, total float64) float64 {
	if total <= 0 {
		return 0
	}
	g := 1.0
	for _, v := range dist {
		p := v / total
		g -= p * p
	}
	return g
}

func pure(dist []float64) bool {
	seen := 0
	for _, v := range dist {
		if v > 0 {
			seen++
		}
	}
	return seen <= 1
}

func normalize(dist []float64, total float64) []float64 {
	out := make([]float64, len(dist))
	if total <= 0 {
		return out
	}
	for i, v := range dist {
		out[i] = v / total
	}
	return out
}

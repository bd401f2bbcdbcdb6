package classifier

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"SOCPulse/internal/domain/models"
)

// ErrSingleClass is returned when training rows carry fewer than two labels.
var ErrSingleClass = errors.New("training data has fewer than two classes")

// ForestConfig parameterizes random forest training.
type ForestConfig struct {
	Trees    int   `yaml:"trees" default:"200" validate:"gt=0"`
	MaxDepth int   `yaml:"max_depth" default:"15" validate:"gte=0"`
	MinSplit int   `yaml:"min_samples_split" default:"5" validate:"gte=2"`
	MinLeaf  int   `yaml:"min_samples_leaf" default:"2" validate:"gte=1"`
	Seed     int64 `yaml:"seed" default:"42"`
	// Balanced applies n / (k * count) class weights.
	Balanced bool `yaml:"balanced" default:"true"`
}

// PrimaryForest is used for the first fit of any training set.
func PrimaryForest() ForestConfig {
	return ForestConfig{Trees: 200, MaxDepth: 15, MinSplit: 5, MinLeaf: 2, Seed: 42, Balanced: true}
}

// FallbackForest is used when the primary fit fails.
func FallbackForest() ForestConfig {
	return ForestConfig{Trees: 100, MaxDepth: 10, MinSplit: 2, MinLeaf: 1, Seed: 42}
}

// RandomForest averages the leaf distributions of bootstrapped gini trees.
type RandomForest struct {
	Classes []models.IncidentType `json:"classes"`
	Trees   []Tree                `json:"trees"`
}

// FitForest trains on X with labels y. Classes are ordered as in
// models.TrainingLabels, followed by any extra labels in first-seen order.
func FitForest(X [][]float64, y []models.IncidentType, cfg ForestConfig) (*RandomForest, error) {
	if len(X) == 0 || len(X) != len(y) {
		return nil, fmt.Errorf("fit forest: %d rows, %d labels", len(X), len(y))
	}
	width := len(X[0])
	for i, row := range X {
		if len(row) != width {
			return nil, fmt.Errorf("fit forest: row %d has %d features, want %d", i, len(row), width)
		}
	}

	classes := classOrder(y)
	if len(classes) < 2 {
		return nil, ErrSingleClass
	}
	index := make(map[models.IncidentType]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	labels := make([]int, len(y))
	for i, l := range y {
		labels[i] = index[l]
	}

	weights := make([]float64, len(y))
	for i := range weights {
		weights[i] = 1
	}
	if cfg.Balanced {
		weights = balancedWeights(labels, len(classes))
	}

	trees := cfg.Trees
	if trees <= 0 {
		trees = 100
	}
	tcfg := TreeConfig{
		MaxDepth:    cfg.MaxDepth,
		MinSplit:    cfg.MinSplit,
		MinLeaf:     cfg.MinLeaf,
		MaxFeatures: int(math.Max(1, math.Sqrt(float64(width)))),
	}
	if tcfg.MinSplit < 2 {
		tcfg.MinSplit = 2
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	f := &RandomForest{Classes: classes, Trees: make([]Tree, trees)}
	n := len(X)
	for t := range f.Trees {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = rng.Intn(n)
		}
		f.Trees[t] = growTree(X, labels, weights, idx, len(classes), tcfg, rng)
	}
	return f, nil
}

// PredictProba returns the class distribution for x, aligned with Classes.
func (f *RandomForest) PredictProba(x []float64) []float64 {
	out := make([]float64, len(f.Classes))
	if len(f.Trees) == 0 {
		return out
	}
	for _, t := range f.Trees {
		for i, p := range t.predict(x) {
			out[i] += p
		}
	}
	for i := range out {
		out[i] /= float64(len(f.Trees))
	}
	return out
}

func classOrder(y []models.IncidentType) []models.IncidentType {
	present := make(map[models.IncidentType]bool)
	for _, l := range y {
		present[l] = true
	}
	var out []models.IncidentType
	for _, l := range models.TrainingLabels {
		if present[l] {
			out = append(out, l)
			delete(present, l)
		}
	}
	for _, l := range y {
		if present[l] {
			out = append(out, l)
			delete(present, l)
		}
	}
	return out
}

// balancedWeights gives every row the weight n / (k * count(class)).
func balancedWeights(labels []int, k int) []float64 {
	counts := make([]float64, k)
	for _, l := range labels {
		counts[l]++
	}
	n := float64(len(labels))
	w := make([]float64, len(labels))
	for i, l := range labels {
		w[i] = n / (float64(k) * counts[l])
	}
	return w
}

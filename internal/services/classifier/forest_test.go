package classifier

import (
	"math/rand"
	"testing"

	"SOCPulse/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitForestSeparableData(t *testing.T) {
	var X [][]float64
	var y []models.IncidentType
	for i := 0; i < 60; i++ {
		X = append(X, []float64{float64(i % 5), 0})
		y = append(y, models.TypeNormal)
		X = append(X, []float64{float64(i % 5), 10})
		y = append(y, models.TypeMalware)
	}

	f, err := FitForest(X, y, ForestConfig{Trees: 10, MaxDepth: 5, MinSplit: 2, MinLeaf: 1, Seed: 42})
	require.NoError(t, err)
	assert.Equal(t, []models.IncidentType{models.TypeMalware, models.TypeNormal}, f.Classes)

	p := f.PredictProba([]float64{2, 9})
	assert.Greater(t, p[0], 0.9)
	p = f.PredictProba([]float64{2, 1})
	assert.Greater(t, p[1], 0.9)
}

func TestFitForestErrors(t *testing.T) {
	_, err := FitForest(nil, nil, PrimaryForest())
	assert.Error(t, err)

	_, err = FitForest([][]float64{{1}, {2}}, []models.IncidentType{models.TypeNormal, models.TypeNormal}, PrimaryForest())
	assert.ErrorIs(t, err, ErrSingleClass)

	_, err = FitForest([][]float64{{1}, {2, 3}}, []models.IncidentType{models.TypeNormal, models.TypeMalware}, PrimaryForest())
	assert.Error(t, err)
}

func TestBalancedWeights(t *testing.T) {
	w := balancedWeights([]int{0, 0, 0, 1}, 2)
	assert.InDeltaSlice(t, []float64{4.0 / 6, 4.0 / 6, 4.0 / 6, 2}, w, 1e-12)
}

func TestGini(t *testing.T) {
	assert.Equal(t, 0.0, gini([]float64{5, 0}, 5))
	assert.InDelta(t, 0.5, gini([]float64{2, 2}, 4), 1e-12)
}

func TestPoissonMean(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	sum := 0.0
	for i := 0; i < 5000; i++ {
		sum += poisson(rng, 5)
	}
	assert.InDelta(t, 5.0, sum/5000, 0.2)
}

func TestSyntheticIsSeeded(t *testing.T) {
	a := Synthetic(50, 9)
	b := Synthetic(50, 9)
	assert.Equal(t, a, b)
	for _, r := range a {
		assert.Contains(t, models.TrainingLabels, r.Label)
		sig, _ := r.Get("known_malware_signature")
		assert.Equal(t, r.Label == models.TypeMalware, sig == 1)
	}
}

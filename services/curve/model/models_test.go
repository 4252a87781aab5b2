// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// linearData returns y = 3*x0 - 2*x1 + 0.5 with small noise. For cls, y is
// the sign of the same linear form.
func linearData(n int, t MLType, seed uint64) (*mat.Dense, []float64) {
	rng := rand.New(rand.NewPCG(seed, 1))
	X := mat.NewDense(n, 3, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x0, x1, x2 := rng.Float64()*2-1, rng.Float64()*2-1, rng.Float64()*2-1
		X.SetRow(i, []float64{x0, x1, x2})
		v := 3*x0 - 2*x1 + 0.5 + rng.NormFloat64()*0.01
		if t == MLTypeClassification {
			if 3*x0-2*x1 > 0 {
				v = 1
			} else {
				v = 0
			}
		}
		y[i] = v
	}
	return X, y
}

func fitAndScore(t *testing.T, cfg Config, seed uint64) (Scores, Prediction) {
	t.Helper()
	adapter, err := NewAdapter(cfg)
	require.NoError(t, err)

	X, y := linearData(300, cfg.MLType, 7)
	Xv, yv := linearData(100, cfg.MLType, 8)

	m, err := adapter.Construct(seed)
	require.NoError(t, err)
	require.NoError(t, m.Fit(context.Background(), X, y))
	pred, err := m.Predict(Xv)
	require.NoError(t, err)
	scores, err := adapter.Score(yv, pred)
	require.NoError(t, err)
	return scores, pred
}

func TestTreeEnsemble_GBDTRegression(t *testing.T) {
	scores, _ := fitAndScore(t, Config{Family: FamilyTree, MLType: MLTypeRegression}, 1)
	assert.Greater(t, scores[MetricR2], 0.8)
}

func TestTreeEnsemble_GBDTClassification(t *testing.T) {
	scores, pred := fitAndScore(t, Config{Family: FamilyTree, MLType: MLTypeClassification}, 1)
	assert.Greater(t, scores[MetricAccuracy], 0.8)
	assert.Greater(t, scores[MetricAUROC], 0.85)
	for _, p := range pred.Proba {
		assert.True(t, p >= 0 && p <= 1)
	}
}

func TestTreeEnsemble_Forest(t *testing.T) {
	forest := DefaultForestParams()
	forest.NEstimators = 30
	forest.FeatureFraction = 1
	scores, _ := fitAndScore(t, Config{Family: FamilyTree, MLType: MLTypeRegression, Tree: &forest}, 3)
	assert.Greater(t, scores[MetricR2], 0.7)
}

func TestTreeEnsemble_Deterministic(t *testing.T) {
	params := DefaultTreeParams()
	params.Subsample = 0.7
	params.FeatureFraction = 0.67
	params.NJobs = 4
	cfg := Config{Family: FamilyTree, MLType: MLTypeRegression, Tree: &params}

	_, a := fitAndScore(t, cfg, 42)
	_, b := fitAndScore(t, cfg, 42)
	assert.Equal(t, a.Values, b.Values)

	_, c := fitAndScore(t, cfg, 43)
	assert.NotEqual(t, a.Values, c.Values)
}

func TestTreeAdapter_MinSamples(t *testing.T) {
	adapter, err := NewAdapter(Config{Family: FamilyTree, MLType: MLTypeRegression})
	require.NoError(t, err)
	assert.Equal(t, 30, adapter.MinSamples())
	assert.Equal(t, FamilyTree, adapter.Family())
}

func TestTreeEnsemble_Cancelled(t *testing.T) {
	adapter, err := NewAdapter(Config{Family: FamilyTree, MLType: MLTypeRegression})
	require.NoError(t, err)
	m, err := adapter.Construct(1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	X, y := linearData(100, MLTypeRegression, 1)
	assert.ErrorIs(t, m.Fit(ctx, X, y), context.Canceled)
}

func TestModels_PredictBeforeFit(t *testing.T) {
	cfgs := []Config{
		{Family: FamilyTree, MLType: MLTypeRegression},
		{Family: FamilyNeural, MLType: MLTypeRegression},
		{Family: FamilyEstimator, MLType: MLTypeRegression, Estimator: &EstimatorParams{Name: "ridge", Alpha: 1}},
		{Family: FamilyEstimator, MLType: MLTypeClassification, Estimator: &EstimatorParams{Name: "knn", K: 3}},
	}
	X, _ := linearData(5, MLTypeRegression, 1)
	for _, cfg := range cfgs {
		adapter, err := NewAdapter(cfg)
		require.NoError(t, err)
		m, err := adapter.Construct(1)
		require.NoError(t, err)
		_, err = m.Predict(X)
		assert.ErrorIs(t, err, ErrNotFitted, "family %s", cfg.Family)
	}
}

func TestModels_ShapeMismatch(t *testing.T) {
	adapter, err := NewAdapter(Config{Family: FamilyTree, MLType: MLTypeRegression})
	require.NoError(t, err)
	m, err := adapter.Construct(1)
	require.NoError(t, err)

	X, y := linearData(40, MLTypeRegression, 1)
	assert.ErrorIs(t, m.Fit(context.Background(), X, y[:39]), ErrShapeMismatch)
}

func TestModels_InvalidClassTargets(t *testing.T) {
	adapter, err := NewAdapter(Config{Family: FamilyTree, MLType: MLTypeClassification})
	require.NoError(t, err)
	m, err := adapter.Construct(1)
	require.NoError(t, err)

	X, y := linearData(40, MLTypeRegression, 1)
	assert.ErrorIs(t, m.Fit(context.Background(), X, y), ErrInvalidTarget)
}

func TestRidge_RecoversCoefficients(t *testing.T) {
	X, y := linearData(200, MLTypeRegression, 5)
	r := &ridgeRegression{alpha: 1e-6}
	require.NoError(t, r.Fit(X, y))

	assert.InDelta(t, 3.0, r.coef.AtVec(0), 0.01)
	assert.InDelta(t, -2.0, r.coef.AtVec(1), 0.01)
	assert.InDelta(t, 0.0, r.coef.AtVec(2), 0.01)
	assert.InDelta(t, 0.5, r.intercept, 0.01)
}

func TestEstimator_Logistic(t *testing.T) {
	cfg := Config{Family: FamilyEstimator, MLType: MLTypeClassification, Estimator: &EstimatorParams{
		Name: "logistic", Alpha: 0, MaxIter: 500, LearningRate: 0.5,
	}}
	scores, pred := fitAndScore(t, cfg, 1)
	assert.Greater(t, scores[MetricAccuracy], 0.9)
	require.NotNil(t, pred.Proba)
}

func TestEstimator_KNN(t *testing.T) {
	p := DefaultEstimatorParams("knn")
	p.K = 5
	adapter, err := NewAdapter(Config{Family: FamilyEstimator, MLType: MLTypeRegression, Estimator: &p})
	require.NoError(t, err)
	assert.Equal(t, 5, adapter.MinSamples())

	scores, _ := fitAndScore(t, Config{Family: FamilyEstimator, MLType: MLTypeRegression, Estimator: &p}, 1)
	assert.Greater(t, scores[MetricR2], 0.8)
}

func TestEstimator_KNNMinSamplesMatchesFit(t *testing.T) {
	for _, tc := range []struct {
		k, want int
	}{{0, defaultNeighbours}, {3, 3}} {
		p := DefaultEstimatorParams("knn")
		p.K = tc.k
		adapter, err := NewAdapter(Config{Family: FamilyEstimator, MLType: MLTypeRegression, Estimator: &p})
		require.NoError(t, err)
		assert.Equal(t, tc.want, adapter.MinSamples(), "k=%d", tc.k)

		est := &kNearest{k: tc.k}
		require.NoError(t, est.Fit(mat.NewDense(1, 1, []float64{1}), []float64{1}))
		assert.Equal(t, tc.want, est.k, "k=%d", tc.k)
	}
}

func TestMLP_Regression(t *testing.T) {
	params := NeuralParams{
		Hidden:       []int{16},
		Optimizer:    OptimizerAdam,
		LearningRate: 0.01,
		Epochs:       100,
		BatchSize:    16,
	}
	scores, _ := fitAndScore(t, Config{Family: FamilyNeural, MLType: MLTypeRegression, Neural: &params}, 1)
	assert.Greater(t, scores[MetricR2], 0.5)
}

func TestMLP_DeterministicWithCLR(t *testing.T) {
	params := DefaultNeuralParams()
	params.Epochs = 5
	params.CLR = &CLRParams{Mode: CLRTriangular2, BaseLR: 1e-4, MaxLR: 1e-2}
	cfg := Config{Family: FamilyNeural, MLType: MLTypeClassification, Neural: &params}

	_, a := fitAndScore(t, cfg, 9)
	_, b := fitAndScore(t, cfg, 9)
	assert.Equal(t, a.Proba, b.Proba)
}

func TestMLP_Diverges(t *testing.T) {
	params := DefaultNeuralParams()
	params.LearningRate = 1e12
	params.DropoutRate = 0
	adapter, err := NewAdapter(Config{Family: FamilyNeural, MLType: MLTypeRegression, Neural: &params})
	require.NoError(t, err)
	m, err := adapter.Construct(1)
	require.NoError(t, err)

	X, y := linearData(64, MLTypeRegression, 1)
	err = m.Fit(context.Background(), X, y)
	assert.True(t, errors.Is(err, ErrDiverged), "got %v", err)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	spec := EstimatorSpec{
		Name:    "mean",
		MLTypes: []MLType{MLTypeRegression},
		New: func(EstimatorParams, MLType, uint64) (Estimator, error) {
			return &kNearest{k: 1}, nil
		},
	}
	require.NoError(t, reg.Register(spec))
	assert.ErrorIs(t, reg.Register(spec), ErrEstimatorRegistered)
	assert.ErrorIs(t, reg.Register(EstimatorSpec{Name: "broken"}), ErrConfiguration)
	assert.Equal(t, []string{"mean"}, reg.Names())

	adapter, err := NewAdapterWithRegistry(Config{
		Family: FamilyEstimator, MLType: MLTypeRegression, Estimator: &EstimatorParams{Name: "mean"},
	}, reg)
	require.NoError(t, err)
	assert.Equal(t, 2, adapter.MinSamples())

	_, err = NewAdapterWithRegistry(Config{
		Family: FamilyEstimator, MLType: MLTypeClassification, Estimator: &EstimatorParams{Name: "mean"},
	}, reg)
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewAdapter(Config{Family: FamilyEstimator, MLType: MLTypeRegression, Estimator: &EstimatorParams{Name: "svm"}})
	assert.ErrorIs(t, err, ErrEstimatorNotFound)
	assert.ErrorIs(t, err, ErrConfiguration)

	assert.Equal(t, []string{"knn", "logistic", "ridge"}, DefaultRegistry.Names())
}

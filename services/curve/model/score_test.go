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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore_RegressionPerfect(t *testing.T) {
	y := []float64{0.1, 0.2, 0.8, 0.9}
	scores, err := Score(MLTypeRegression, y, Prediction{Values: y})
	require.NoError(t, err)

	assert.Len(t, scores, len(MetricNames(MLTypeRegression)))
	assert.InDelta(t, 1.0, scores[MetricR2], 1e-12)
	assert.InDelta(t, 0.0, scores[MetricMAE], 1e-12)
	assert.InDelta(t, 0.0, scores[MetricMedianAE], 1e-12)
	assert.InDelta(t, 0.0, scores[MetricMSE], 1e-12)
	assert.InDelta(t, 1.0, scores[MetricPearson], 1e-9)
	assert.InDelta(t, 1.0, scores[MetricSpearman], 1e-9)
	assert.InDelta(t, 1.0, scores[MetricRegAUROC], 1e-9)
}

func TestScore_RegressionErrors(t *testing.T) {
	y := []float64{1, 2, 3, 4}
	p := []float64{2, 2, 3, 7}
	scores, err := Score(MLTypeRegression, y, Prediction{Values: p})
	require.NoError(t, err)

	// errors: 1, 0, 0, 3
	assert.InDelta(t, 1.0, scores[MetricMAE], 1e-12)
	assert.InDelta(t, 0.5, scores[MetricMedianAE], 1e-12)
	assert.InDelta(t, 2.5, scores[MetricMSE], 1e-12)
	// sst = 5, sse = 10
	assert.InDelta(t, -1.0, scores[MetricR2], 1e-12)
}

func TestScore_ConstantTargetUsesSentinels(t *testing.T) {
	y := []float64{3, 3, 3, 3}
	scores, err := Score(MLTypeRegression, y, Prediction{Values: []float64{1, 2, 3, 4}})
	require.NoError(t, err)

	assert.Equal(t, 0.0, scores[MetricR2])
	assert.Equal(t, UndefinedCorrelation, scores[MetricPearson])
	assert.Equal(t, UndefinedCorrelation, scores[MetricSpearman])
	assert.Equal(t, UndefinedAUROC, scores[MetricRegAUROC])
	for name, v := range scores {
		assert.False(t, math.IsNaN(v), "metric %s is NaN", name)
	}

	exact, err := Score(MLTypeRegression, y, Prediction{Values: y})
	require.NoError(t, err)
	assert.Equal(t, 1.0, exact[MetricR2])
}

func TestScore_Classification(t *testing.T) {
	y := []float64{0, 0, 1, 1}
	proba := []float64{0.1, 0.6, 0.7, 0.9}
	scores, err := Score(MLTypeClassification, y, Prediction{Values: labelsFromProba(proba), Proba: proba})
	require.NoError(t, err)

	assert.Len(t, scores, len(MetricNames(MLTypeClassification)))
	assert.InDelta(t, 0.75, scores[MetricAccuracy], 1e-12)
	assert.InDelta(t, 1.0, scores[MetricAUROC], 1e-9)
	// tp=2 fp=1 fn=0
	assert.InDelta(t, 0.8, scores[MetricF1], 1e-12)
	assert.Greater(t, scores[MetricLogLoss], 0.0)
}

func TestScore_SingleClassAUROC(t *testing.T) {
	y := []float64{1, 1, 1}
	scores, err := Score(MLTypeClassification, y, Prediction{Values: y, Proba: []float64{0.2, 0.5, 0.9}})
	require.NoError(t, err)
	assert.Equal(t, UndefinedAUROC, scores[MetricAUROC])
}

func TestScore_InputErrors(t *testing.T) {
	_, err := Score(MLTypeRegression, []float64{1, 2}, Prediction{Values: []float64{1}})
	assert.ErrorIs(t, err, ErrShapeMismatch)

	_, err = Score(MLTypeRegression, []float64{1, 2}, Prediction{Values: []float64{1, math.NaN()}})
	assert.ErrorIs(t, err, ErrNonFinitePrediction)

	_, err = Score(MLType("multi"), []float64{1}, Prediction{Values: []float64{1}})
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = Score(MLTypeRegression, nil, Prediction{})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestRanks_AveragesTies(t *testing.T) {
	assert.Equal(t, []float64{1, 2.5, 2.5, 4}, ranks([]float64{1, 5, 5, 9}))
	assert.Equal(t, []float64{3, 1, 2}, ranks([]float64{30, 10, 20}))
}

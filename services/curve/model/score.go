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
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// Metric names.
const (
	MetricR2       = "r2"
	MetricMAE      = "mean_absolute_error"
	MetricMedianAE = "median_absolute_error"
	MetricMSE      = "mean_squared_error"
	MetricPearson  = "pearson"
	MetricSpearman = "spearman"
	MetricRegAUROC = "reg_auroc"

	MetricAccuracy = "accuracy"
	MetricAUROC    = "auroc"
	MetricF1       = "f1"
	MetricLogLoss  = "log_loss"
)

// RegAUROCThreshold splits continuous response values into the positive
// (responsive, below threshold) and negative classes for reg_auroc.
const RegAUROCThreshold = 0.5

// Sentinel values returned when a metric is undefined for the inputs.
const (
	// UndefinedCorrelation is returned when either input has zero variance.
	UndefinedCorrelation = 0.0
	// UndefinedAUROC is returned when only one class is present.
	UndefinedAUROC = 0.5
)

const logLossEps = 1e-15

// Scores maps metric name to value.
type Scores map[string]float64

// MetricNames returns the metric columns produced for a task kind, in
// reporting order.
func MetricNames(t MLType) []string {
	switch t {
	case MLTypeRegression:
		return []string{MetricR2, MetricMAE, MetricMedianAE, MetricMSE, MetricPearson, MetricSpearman, MetricRegAUROC}
	case MLTypeClassification:
		return []string{MetricAccuracy, MetricAUROC, MetricF1, MetricLogLoss}
	default:
		return nil
	}
}

// Score computes every metric for the task kind.
//
// Description:
//
//	Undefined metrics never divide by zero: a zero-variance target yields
//	r2 = 0 (or 1 when predictions are exact) and correlation sentinels of
//	UndefinedCorrelation; a single-class target yields UndefinedAUROC.
//
// Inputs:
//
//	t - Task kind.
//	yTrue - Ground truth. For classification, labels must be 0 or 1.
//	pred - Model output aligned with yTrue.
//
// Outputs:
//
//	Scores - One entry per name in MetricNames(t).
//	error - ErrConfiguration for an unknown task kind, ErrShapeMismatch for
//	  misaligned inputs, ErrNonFinitePrediction for NaN/Inf predictions.
func Score(t MLType, yTrue []float64, pred Prediction) (Scores, error) {
	if !t.Valid() {
		return nil, configError("unknown mltype %q (want reg or cls)", t)
	}
	if len(yTrue) == 0 {
		return nil, fmt.Errorf("%w: empty target", ErrShapeMismatch)
	}
	if len(pred.Values) != len(yTrue) {
		return nil, fmt.Errorf("%w: %d predictions for %d targets", ErrShapeMismatch, len(pred.Values), len(yTrue))
	}
	if err := checkFinite(pred.Values); err != nil {
		return nil, err
	}
	if t == MLTypeRegression {
		return regressionScores(yTrue, pred.Values), nil
	}

	proba := pred.Proba
	if proba == nil {
		proba = pred.Values
	}
	if len(proba) != len(yTrue) {
		return nil, fmt.Errorf("%w: %d probabilities for %d targets", ErrShapeMismatch, len(proba), len(yTrue))
	}
	if err := checkFinite(proba); err != nil {
		return nil, err
	}
	return classificationScores(yTrue, pred.Values, proba), nil
}

func checkFinite(values []float64) error {
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w at row %d", ErrNonFinitePrediction, i)
		}
	}
	return nil
}

func regressionScores(y, p []float64) Scores {
	n := float64(len(y))
	absErr := make([]float64, len(y))
	var sse float64
	for i := range y {
		d := p[i] - y[i]
		absErr[i] = math.Abs(d)
		sse += d * d
	}

	positive := make([]bool, len(y))
	negated := make([]float64, len(p))
	for i := range y {
		positive[i] = y[i] < RegAUROCThreshold
		negated[i] = -p[i]
	}

	return Scores{
		MetricR2:       r2(y, sse),
		MetricMAE:      floats.Sum(absErr) / n,
		MetricMedianAE: median(absErr),
		MetricMSE:      sse / n,
		MetricPearson:  correlation(y, p),
		MetricSpearman: correlation(ranks(y), ranks(p)),
		MetricRegAUROC: auroc(negated, positive),
	}
}

func classificationScores(y, labels, proba []float64) Scores {
	var correct, tp, fp, fn float64
	var logLoss float64
	positive := make([]bool, len(y))
	for i := range y {
		truth := y[i] >= 0.5
		guess := labels[i] >= 0.5
		positive[i] = truth
		if truth == guess {
			correct++
		}
		switch {
		case truth && guess:
			tp++
		case !truth && guess:
			fp++
		case truth && !guess:
			fn++
		}
		q := math.Min(math.Max(proba[i], logLossEps), 1-logLossEps)
		if truth {
			logLoss -= math.Log(q)
		} else {
			logLoss -= math.Log(1 - q)
		}
	}
	n := float64(len(y))

	f1 := 0.0
	if denom := 2*tp + fp + fn; denom > 0 {
		f1 = 2 * tp / denom
	}

	return Scores{
		MetricAccuracy: correct / n,
		MetricAUROC:    auroc(proba, positive),
		MetricF1:       f1,
		MetricLogLoss:  logLoss / n,
	}
}

// r2 is the coefficient of determination with sklearn's finite convention.
func r2(y []float64, sse float64) float64 {
	mean := stat.Mean(y, nil)
	var sst float64
	for _, v := range y {
		d := v - mean
		sst += d * d
	}
	if sst == 0 {
		if sse == 0 {
			return 1
		}
		return 0
	}
	return 1 - sse/sst
}

func correlation(x, y []float64) float64 {
	if stat.Variance(x, nil) == 0 || stat.Variance(y, nil) == 0 {
		return UndefinedCorrelation
	}
	c := stat.Correlation(x, y, nil)
	if math.IsNaN(c) {
		return UndefinedCorrelation
	}
	return c
}

// auroc is the area under the ROC curve of scores against classes.
func auroc(scores []float64, classes []bool) float64 {
	var pos int
	for _, c := range classes {
		if c {
			pos++
		}
	}
	if pos == 0 || pos == len(classes) {
		return UndefinedAUROC
	}

	sorted := make([]float64, len(scores))
	copy(sorted, scores)
	inds := make([]int, len(sorted))
	floats.Argsort(sorted, inds)
	ordered := make([]bool, len(classes))
	for i, j := range inds {
		ordered[i] = classes[j]
	}

	tpr, fpr, _ := stat.ROC(nil, sorted, ordered, nil)
	return integrate.Trapezoidal(fpr, tpr)
}

// ranks assigns 1-based ranks, averaging ties.
func ranks(x []float64) []float64 {
	sorted := make([]float64, len(x))
	copy(sorted, x)
	inds := make([]int, len(x))
	floats.Argsort(sorted, inds)

	out := make([]float64, len(x))
	for i := 0; i < len(sorted); {
		j := i + 1
		for j < len(sorted) && sorted[j] == sorted[i] {
			j++
		}
		avg := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			out[inds[k]] = avg
		}
		i = j
	}
	return out
}

func median(x []float64) float64 {
	sorted := make([]float64, len(x))
	copy(sorted, x)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

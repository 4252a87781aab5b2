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
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ridgeRegression is L2-penalised least squares with an unpenalised
// intercept, solved in closed form.
type ridgeRegression struct {
	alpha     float64
	coef      *mat.VecDense
	intercept float64
}

func (r *ridgeRegression) Fit(X mat.Matrix, y []float64) error {
	n, p, err := checkXY(X, y)
	if err != nil {
		return err
	}

	xc := mat.DenseCopyOf(X)
	means := make([]float64, p)
	col := make([]float64, n)
	for j := 0; j < p; j++ {
		mat.Col(col, j, xc)
		means[j] = stat.Mean(col, nil)
		for i := 0; i < n; i++ {
			xc.Set(i, j, col[i]-means[j])
		}
	}
	yMean := stat.Mean(y, nil)
	yc := make([]float64, n)
	for i, v := range y {
		yc[i] = v - yMean
	}

	var gram mat.SymDense
	gram.SymOuterK(1, xc.T())
	for j := 0; j < p; j++ {
		gram.SetSym(j, j, gram.At(j, j)+r.alpha)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(&gram); !ok {
		return errors.New("ridge: normal equations are not positive definite; increase alpha")
	}
	var xty mat.VecDense
	xty.MulVec(xc.T(), mat.NewVecDense(n, yc))

	coef := mat.NewVecDense(p, nil)
	if err := chol.SolveVecTo(coef, &xty); err != nil {
		return fmt.Errorf("ridge: solve: %w", err)
	}

	r.coef = coef
	r.intercept = yMean
	for j := 0; j < p; j++ {
		r.intercept -= coef.AtVec(j) * means[j]
	}
	return nil
}

func (r *ridgeRegression) Predict(X mat.Matrix) ([]float64, error) {
	if r.coef == nil {
		return nil, ErrNotFitted
	}
	n, p := X.Dims()
	if p != r.coef.Len() {
		return nil, fmt.Errorf("%w: model has %d features, X has %d", ErrShapeMismatch, r.coef.Len(), p)
	}
	var out mat.VecDense
	out.MulVec(X, r.coef)
	preds := make([]float64, n)
	for i := range preds {
		preds[i] = out.AtVec(i) + r.intercept
	}
	return preds, nil
}

// logisticRegression is L2-penalised binary logistic regression fitted with
// full-batch gradient descent.
type logisticRegression struct {
	alpha     float64
	maxIter   int
	lr        float64
	coef      *mat.VecDense
	intercept float64
}

func (l *logisticRegression) Fit(X mat.Matrix, y []float64) error {
	n, p, err := checkXY(X, y)
	if err != nil {
		return err
	}
	maxIter := l.maxIter
	if maxIter < 1 {
		maxIter = 300
	}
	lr := l.lr
	if lr <= 0 {
		lr = 0.1
	}

	w := mat.NewVecDense(p, nil)
	var b float64
	var z, grad mat.VecDense
	resid := mat.NewVecDense(n, nil)
	fn := float64(n)

	for iter := 0; iter < maxIter; iter++ {
		z.MulVec(X, w)
		var db float64
		for i := 0; i < n; i++ {
			r := sigmoid(z.AtVec(i)+b) - y[i]
			resid.SetVec(i, r)
			db += r
		}
		grad.MulVec(X.T(), resid)
		for j := 0; j < p; j++ {
			g := grad.AtVec(j)/fn + l.alpha*w.AtVec(j)/fn
			w.SetVec(j, w.AtVec(j)-lr*g)
		}
		b -= lr * db / fn
	}

	for j := 0; j < p; j++ {
		if v := w.AtVec(j); math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrDiverged
		}
	}
	l.coef = w
	l.intercept = b
	return nil
}

func (l *logisticRegression) PredictProba(X mat.Matrix) ([]float64, error) {
	if l.coef == nil {
		return nil, ErrNotFitted
	}
	n, p := X.Dims()
	if p != l.coef.Len() {
		return nil, fmt.Errorf("%w: model has %d features, X has %d", ErrShapeMismatch, l.coef.Len(), p)
	}
	var z mat.VecDense
	z.MulVec(X, l.coef)
	proba := make([]float64, n)
	for i := range proba {
		proba[i] = sigmoid(z.AtVec(i) + l.intercept)
	}
	return proba, nil
}

func (l *logisticRegression) Predict(X mat.Matrix) ([]float64, error) {
	proba, err := l.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return labelsFromProba(proba), nil
}

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

	"gonum.org/v1/gonum/mat"
)

// estimatorAdapter wraps a registry estimator in the Adapter contract.
type estimatorAdapter struct {
	scorer
	params EstimatorParams
	entry  EstimatorSpec
}

func (a *estimatorAdapter) Family() Family { return FamilyEstimator }

func (a *estimatorAdapter) MinSamples() int {
	if a.entry.MinSamples == nil {
		return 2
	}
	return a.entry.MinSamples(a.params)
}

func (a *estimatorAdapter) Construct(seed uint64) (Model, error) {
	est, err := a.entry.New(a.params, a.mlType, seed)
	if err != nil {
		return nil, err
	}
	return &estimatorModel{est: est, mlType: a.mlType}, nil
}

// estimatorModel adapts an Estimator to Model.
type estimatorModel struct {
	est    Estimator
	mlType MLType
}

func (m *estimatorModel) Fit(ctx context.Context, X mat.Matrix, y []float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, _, err := checkXY(X, y); err != nil {
		return err
	}
	if err := CheckTargets(m.mlType, y); err != nil {
		return err
	}
	return m.est.Fit(X, y)
}

func (m *estimatorModel) Predict(X mat.Matrix) (Prediction, error) {
	values, err := m.est.Predict(X)
	if err != nil {
		return Prediction{}, err
	}
	if m.mlType != MLTypeClassification {
		return Prediction{Values: values}, nil
	}
	pe, ok := m.est.(ProbaEstimator)
	if !ok {
		return Prediction{Values: values}, nil
	}
	proba, err := pe.PredictProba(X)
	if err != nil {
		return Prediction{}, err
	}
	return Prediction{Values: values, Proba: proba}, nil
}

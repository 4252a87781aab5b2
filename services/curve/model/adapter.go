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
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Prediction is the output of Model.Predict.
type Prediction struct {
	// Values holds regression outputs, or predicted 0/1 labels for
	// classification.
	Values []float64
	// Proba holds positive-class probabilities. Nil for regression.
	Proba []float64
}

// Model is one trainable instance. A Model is owned by a single shard and is
// never shared across goroutines.
type Model interface {
	// Fit trains on X (rows are samples) and y. The context is checked
	// between training iterations.
	Fit(ctx context.Context, X mat.Matrix, y []float64) error

	// Predict returns predictions for every row of X.
	Predict(X mat.Matrix) (Prediction, error)
}

// Adapter is the family-specific factory and scorer used by the engine.
//
// Thread Safety: Adapters are immutable and safe for concurrent use.
type Adapter interface {
	// Family returns the family this adapter was built for.
	Family() Family

	// MLType returns the task kind used for scoring.
	MLType() MLType

	// MinSamples is the smallest training set this family can fit
	// meaningfully. It is the floor of the shard schedule.
	MinSamples() int

	// Construct returns a fresh, unfitted model seeded with seed.
	Construct(seed uint64) (Model, error)

	// Score computes the metrics for the adapter's task kind.
	Score(yTrue []float64, pred Prediction) (Scores, error)
}

// NewAdapter validates cfg, fills family defaults and returns the adapter.
// Estimator names are resolved against DefaultRegistry.
func NewAdapter(cfg Config) (Adapter, error) {
	return NewAdapterWithRegistry(cfg, DefaultRegistry)
}

// NewAdapterWithRegistry is NewAdapter with an explicit estimator registry.
//
// Description:
//
//	The family is resolved once here. Callers hold the returned Adapter for
//	the whole run; no string dispatch happens per shard.
//
// Inputs:
//
//	cfg - Model configuration.
//	reg - Estimator registry. Nil means DefaultRegistry.
//
// Outputs:
//
//	Adapter - Ready to construct models.
//	error - Wraps ErrConfiguration if cfg is invalid.
func NewAdapterWithRegistry(cfg Config, reg *Registry) (Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if reg == nil {
		reg = DefaultRegistry
	}
	sc := scorer{mlType: cfg.MLType}

	switch cfg.Family {
	case FamilyTree:
		params := DefaultTreeParams()
		if cfg.Tree != nil {
			params = *cfg.Tree
		}
		return &treeAdapter{scorer: sc, params: params}, nil

	case FamilyEstimator:
		entry, err := reg.lookup(cfg.Estimator.Name, cfg.MLType)
		if err != nil {
			return nil, err
		}
		return &estimatorAdapter{scorer: sc, params: *cfg.Estimator, entry: entry}, nil

	case FamilyNeural:
		params := DefaultNeuralParams()
		if cfg.Neural != nil {
			params = *cfg.Neural
		}
		return &neuralAdapter{scorer: sc, params: params}, nil
	}
	return nil, configError("unknown model family %s", cfg.Family)
}

// scorer implements MLType and Score for every adapter.
type scorer struct {
	mlType MLType
}

func (s scorer) MLType() MLType { return s.mlType }

func (s scorer) Score(yTrue []float64, pred Prediction) (Scores, error) {
	return Score(s.mlType, yTrue, pred)
}

// labelsFromProba thresholds probabilities at 0.5.
func labelsFromProba(proba []float64) []float64 {
	labels := make([]float64, len(proba))
	for i, p := range proba {
		if p >= 0.5 {
			labels[i] = 1
		}
	}
	return labels
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// checkXY verifies X and y agree in length and are non-empty.
func checkXY(X mat.Matrix, y []float64) (rows, cols int, err error) {
	rows, cols = X.Dims()
	if rows == 0 || cols == 0 {
		return 0, 0, fmt.Errorf("%w: empty feature matrix", ErrShapeMismatch)
	}
	if len(y) != rows {
		return 0, 0, fmt.Errorf("%w: X has %d rows, y has %d values", ErrShapeMismatch, rows, len(y))
	}
	return rows, cols, nil
}

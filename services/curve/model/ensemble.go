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
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// seedStream separates the ensemble's random stream from other consumers of
// the same seed.
const seedStream = 0x7f4a7c159e3779b9

// treeAdapter builds gradient-boosted or bagged tree ensembles.
type treeAdapter struct {
	scorer
	params TreeParams
}

func (a *treeAdapter) Family() Family { return FamilyTree }

// MinSamples is the smallest set that admits one split.
func (a *treeAdapter) MinSamples() int { return 2 * a.params.MinSamplesLeaf }

func (a *treeAdapter) Construct(seed uint64) (Model, error) {
	return &treeEnsemble{params: a.params, mlType: a.mlType, seed: seed}, nil
}

// treeEnsemble is a fitted ensemble. It is stateless between shards: the
// engine constructs a new one for every shard.
type treeEnsemble struct {
	params  TreeParams
	mlType  MLType
	seed    uint64
	base    float64
	trees   []*regressionTree
	nFeat   int
	trained bool
}

func (e *treeEnsemble) Fit(ctx context.Context, X mat.Matrix, y []float64) error {
	n, p, err := checkXY(X, y)
	if err != nil {
		return err
	}
	if err := CheckTargets(e.mlType, y); err != nil {
		return err
	}
	cols := columns(X)
	rng := rand.New(rand.NewPCG(e.seed, seedStream))

	e.trees = make([]*regressionTree, 0, e.params.NEstimators)
	e.nFeat = p
	switch e.params.Method {
	case MethodRandomForest:
		err = e.fitForest(ctx, cols, y, n, rng)
	default:
		err = e.fitBoosted(ctx, cols, y, n, rng)
	}
	if err != nil {
		return err
	}
	e.trained = true
	return nil
}

func (e *treeEnsemble) fitBoosted(ctx context.Context, cols [][]float64, y []float64, n int, rng *rand.Rand) error {
	classify := e.mlType == MLTypeClassification
	mean := stat.Mean(y, nil)
	if classify {
		q := math.Min(math.Max(mean, 1e-6), 1-1e-6)
		e.base = math.Log(q / (1 - q))
	} else {
		e.base = mean
	}

	raw := make([]float64, n)
	for i := range raw {
		raw[i] = e.base
	}
	g := make([]float64, n)
	h := make([]float64, n)
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}
	m := max(1, int(e.params.Subsample*float64(n)+0.5))

	for round := 0; round < e.params.NEstimators; round++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i := range raw {
			if classify {
				prob := sigmoid(raw[i])
				g[i] = prob - y[i]
				h[i] = math.Max(prob*(1-prob), 1e-16)
			} else {
				g[i] = raw[i] - y[i]
				h[i] = 1
			}
		}
		idx := all
		if m < n {
			idx = rng.Perm(n)[:m]
		}
		tree, err := growTree(ctx, cols, g, h, idx, e.params, rng)
		if err != nil {
			return err
		}
		e.trees = append(e.trees, tree)
		for i := range raw {
			raw[i] += e.params.LearningRate * tree.value(cols, i)
		}
	}
	return nil
}

func (e *treeEnsemble) fitForest(ctx context.Context, cols [][]float64, y []float64, n int, rng *rand.Rand) error {
	g := make([]float64, n)
	h := make([]float64, n)
	for i := range y {
		g[i] = -y[i]
		h[i] = 1
	}
	m := max(1, int(e.params.Subsample*float64(n)+0.5))
	idx := make([]int, m)

	for round := 0; round < e.params.NEstimators; round++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for k := range idx {
			idx[k] = rng.IntN(n)
		}
		tree, err := growTree(ctx, cols, g, h, idx, e.params, rng)
		if err != nil {
			return err
		}
		e.trees = append(e.trees, tree)
	}
	return nil
}

func (e *treeEnsemble) Predict(X mat.Matrix) (Prediction, error) {
	if !e.trained {
		return Prediction{}, ErrNotFitted
	}
	n, p := X.Dims()
	if p != e.nFeat {
		return Prediction{}, fmt.Errorf("%w: model has %d features, X has %d", ErrShapeMismatch, e.nFeat, p)
	}
	cols := columns(X)

	out := make([]float64, n)
	for i := range out {
		if e.params.Method == MethodRandomForest {
			var sum float64
			for _, t := range e.trees {
				sum += t.value(cols, i)
			}
			out[i] = sum / float64(len(e.trees))
			continue
		}
		v := e.base
		for _, t := range e.trees {
			v += e.params.LearningRate * t.value(cols, i)
		}
		out[i] = v
	}

	if e.mlType != MLTypeClassification {
		return Prediction{Values: out}, nil
	}
	proba := out
	if e.params.Method != MethodRandomForest {
		for i, v := range out {
			proba[i] = sigmoid(v)
		}
	} else {
		for i, v := range out {
			proba[i] = math.Min(math.Max(v, 0), 1)
		}
	}
	return Prediction{Values: labelsFromProba(proba), Proba: proba}, nil
}

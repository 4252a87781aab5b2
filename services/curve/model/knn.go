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
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// defaultNeighbours is k when none is configured.
const defaultNeighbours = 5

// neighbours returns k, or defaultNeighbours when k < 1.
func neighbours(k int) int {
	if k < 1 {
		return defaultNeighbours
	}
	return k
}

// kNearest is a brute-force k-nearest-neighbour estimator. Regression
// averages neighbour targets; classification reports the positive fraction
// as the probability. Distance ties resolve to the lower training row.
type kNearest struct {
	k        int
	classify bool
	train    *mat.Dense
	y        []float64
}

func (m *kNearest) Fit(X mat.Matrix, y []float64) error {
	if _, _, err := checkXY(X, y); err != nil {
		return err
	}
	m.k = neighbours(m.k)
	m.train = mat.DenseCopyOf(X)
	m.y = append([]float64(nil), y...)
	return nil
}

func (m *kNearest) neighbourMeans(X mat.Matrix) ([]float64, error) {
	if m.train == nil {
		return nil, ErrNotFitted
	}
	n, p := X.Dims()
	nTrain, pTrain := m.train.Dims()
	if p != pTrain {
		return nil, fmt.Errorf("%w: model has %d features, X has %d", ErrShapeMismatch, pTrain, p)
	}
	k := min(m.k, nTrain)

	type neighbour struct {
		d   float64
		row int
	}
	nbrs := make([]neighbour, nTrain)
	row := make([]float64, p)
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		mat.Row(row, i, X)
		for j := 0; j < nTrain; j++ {
			d := floats.Distance(row, m.train.RawRowView(j), 2)
			nbrs[j] = neighbour{d: d, row: j}
		}
		sort.SliceStable(nbrs, func(a, b int) bool { return nbrs[a].d < nbrs[b].d })
		var sum float64
		for _, nb := range nbrs[:k] {
			sum += m.y[nb.row]
		}
		out[i] = sum / float64(k)
	}
	return out, nil
}

func (m *kNearest) Predict(X mat.Matrix) ([]float64, error) {
	means, err := m.neighbourMeans(X)
	if err != nil {
		return nil, err
	}
	if m.classify {
		return labelsFromProba(means), nil
	}
	return means, nil
}

func (m *kNearest) PredictProba(X mat.Matrix) ([]float64, error) {
	return m.neighbourMeans(X)
}

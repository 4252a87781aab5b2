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
	"math/rand/v2"
	"slices"
	"sort"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// minSplitGain rejects splits that do not reduce the objective.
const minSplitGain = 1e-12

// treeNode is a node of a regression tree stored in a flat slice.
type treeNode struct {
	leaf      bool
	value     float64
	feature   int
	threshold float64
	left      int
	right     int
}

// regressionTree fits per-sample gradients g and hessians h. Leaf values are
// the Newton step -G/(H+lambda), which reduces to the leaf mean of the target
// when g = -y and h = 1.
type regressionTree struct {
	nodes []treeNode
}

// value returns the leaf value reached by sample i of the column-major
// matrix cols.
func (t *regressionTree) value(cols [][]float64, i int) float64 {
	n := 0
	for {
		node := &t.nodes[n]
		if node.leaf {
			return node.value
		}
		if cols[node.feature][i] <= node.threshold {
			n = node.left
		} else {
			n = node.right
		}
	}
}

// splitCandidate is the best split found on a single feature.
type splitCandidate struct {
	ok        bool
	feature   int
	threshold float64
	gain      float64
}

// treeGrower holds the read-only training state for one tree.
type treeGrower struct {
	ctx    context.Context
	cols   [][]float64
	g, h   []float64
	params TreeParams
	rng    *rand.Rand
	nodes  []treeNode
}

// growTree builds one tree over the sample indices idx.
func growTree(ctx context.Context, cols [][]float64, g, h []float64, idx []int, params TreeParams, rng *rand.Rand) (*regressionTree, error) {
	gr := &treeGrower{ctx: ctx, cols: cols, g: g, h: h, params: params, rng: rng}
	if _, err := gr.grow(idx, 0); err != nil {
		return nil, err
	}
	return &regressionTree{nodes: gr.nodes}, nil
}

func (t *treeGrower) grow(idx []int, depth int) (int, error) {
	if err := t.ctx.Err(); err != nil {
		return 0, err
	}
	var gSum, hSum float64
	for _, i := range idx {
		gSum += t.g[i]
		hSum += t.h[i]
	}

	id := len(t.nodes)
	t.nodes = append(t.nodes, treeNode{leaf: true, value: -gSum / (hSum + t.params.Lambda)})

	if t.params.MaxDepth > 0 && depth >= t.params.MaxDepth {
		return id, nil
	}
	if len(idx) < 2*t.params.MinSamplesLeaf {
		return id, nil
	}

	best, err := t.bestSplit(idx, t.sampleFeatures(), gSum, hSum)
	if err != nil {
		return 0, err
	}
	if !best.ok || best.gain <= minSplitGain {
		return id, nil
	}

	col := t.cols[best.feature]
	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if col[i] <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l, err := t.grow(left, depth+1)
	if err != nil {
		return 0, err
	}
	r, err := t.grow(right, depth+1)
	if err != nil {
		return 0, err
	}
	t.nodes[id] = treeNode{feature: best.feature, threshold: best.threshold, left: l, right: r}
	return id, nil
}

// sampleFeatures draws the candidate columns for one split, ascending.
func (t *treeGrower) sampleFeatures() []int {
	p := len(t.cols)
	k := p
	if t.params.FeatureFraction < 1 {
		k = max(1, int(t.params.FeatureFraction*float64(p)+0.5))
	}
	if k >= p {
		all := make([]int, p)
		for j := range all {
			all[j] = j
		}
		return all
	}
	features := t.rng.Perm(p)[:k]
	slices.Sort(features)
	return features
}

// bestSplit scans the candidate features, in parallel when NJobs > 1.
// The winner is the highest gain, ties broken by the lower feature index, so
// the result does not depend on scheduling.
func (t *treeGrower) bestSplit(idx []int, features []int, gSum, hSum float64) (splitCandidate, error) {
	results := make([]splitCandidate, len(features))

	if t.params.NJobs <= 1 || len(features) == 1 {
		for i, f := range features {
			results[i] = t.scanFeature(f, idx, gSum, hSum)
		}
	} else {
		eg, ctx := errgroup.WithContext(t.ctx)
		eg.SetLimit(t.params.NJobs)
		for i, f := range features {
			eg.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				results[i] = t.scanFeature(f, idx, gSum, hSum)
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return splitCandidate{}, err
		}
	}

	var best splitCandidate
	for _, c := range results {
		if c.ok && (!best.ok || c.gain > best.gain) {
			best = c
		}
	}
	return best, nil
}

// scanFeature finds the best threshold on feature f by sweeping the sorted
// samples and accumulating gradient statistics.
func (t *treeGrower) scanFeature(f int, idx []int, gSum, hSum float64) splitCandidate {
	col := t.cols[f]
	order := make([]int, len(idx))
	copy(order, idx)
	sort.Slice(order, func(a, b int) bool { return col[order[a]] < col[order[b]] })

	lambda := t.params.Lambda
	minLeaf := t.params.MinSamplesLeaf
	parent := gSum * gSum / (hSum + lambda)
	best := splitCandidate{feature: f}

	var gl, hl float64
	for k := 0; k < len(order)-1; k++ {
		i := order[k]
		gl += t.g[i]
		hl += t.h[i]
		nLeft := k + 1
		if nLeft < minLeaf {
			continue
		}
		if len(order)-nLeft < minLeaf {
			break
		}
		v, next := col[i], col[order[k+1]]
		if v == next {
			continue
		}
		gr, hr := gSum-gl, hSum-hl
		gain := gl*gl/(hl+lambda) + gr*gr/(hr+lambda) - parent
		if !best.ok || gain > best.gain {
			best = splitCandidate{ok: true, feature: f, threshold: v + (next-v)/2, gain: gain}
		}
	}
	return best
}

// columns copies X into column-major slices.
func columns(X mat.Matrix) [][]float64 {
	_, p := X.Dims()
	cols := make([][]float64, p)
	for j := range cols {
		cols[j] = mat.Col(nil, j, X)
	}
	return cols
}

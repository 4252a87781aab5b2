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

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	mlpSeedStream = 0x2545f4914f6cdd1d
	momentum      = 0.9
	adamBeta1     = 0.9
	adamBeta2     = 0.999
	adamEpsilon   = 1e-8
)

// neuralAdapter builds multilayer perceptrons.
type neuralAdapter struct {
	scorer
	params NeuralParams
}

func (a *neuralAdapter) Family() Family { return FamilyNeural }

// MinSamples is one full mini-batch.
func (a *neuralAdapter) MinSamples() int { return a.params.BatchSize }

func (a *neuralAdapter) Construct(seed uint64) (Model, error) {
	return &mlpModel{params: a.params, mlType: a.mlType, seed: seed}, nil
}

// mlpLayer is a fully connected layer. w is in x out.
type mlpLayer struct {
	w *mat.Dense
	b []float64
}

// mlpModel is a ReLU perceptron with a single linear output unit. The
// output is passed through a sigmoid for classification.
type mlpModel struct {
	params NeuralParams
	mlType MLType
	seed   uint64
	layers []mlpLayer

	// regression targets are standardized during training
	yMean, yStd float64
	nFeat       int
}

// Fit trains with mini-batch gradient descent.
//
// Description:
//
//	Rows are reshuffled every epoch from the model seed. The learning rate
//	comes from the configured CLR policy when present, otherwise it is
//	constant. The context is checked once per epoch.
//
// Outputs:
//
//	error - ErrDiverged if the loss becomes non-finite, ctx.Err() on
//	cancellation, ErrShapeMismatch or ErrInvalidTarget on bad input.
func (m *mlpModel) Fit(ctx context.Context, X mat.Matrix, y []float64) error {
	n, p, err := checkXY(X, y)
	if err != nil {
		return err
	}
	if err := CheckTargets(m.mlType, y); err != nil {
		return err
	}
	rng := rand.New(rand.NewPCG(m.seed, mlpSeedStream))
	m.nFeat = p
	m.initLayers(p, rng)

	x := mat.DenseCopyOf(X)
	target := make([]float64, n)
	copy(target, y)
	m.yMean, m.yStd = 0, 1
	if m.mlType == MLTypeRegression {
		m.yMean, m.yStd = stat.MeanStdDev(target, nil)
		if m.yStd == 0 || math.IsNaN(m.yStd) {
			m.yStd = 1
		}
		for i := range target {
			target[i] = (target[i] - m.yMean) / m.yStd
		}
	}

	batch := min(m.params.BatchSize, n)
	stepsPerEpoch := (n + batch - 1) / batch
	sched := scheduleFor(m.params, stepsPerEpoch)
	opt := newOptimizer(m.params.Optimizer, m.weights())

	iter := 0
	for epoch := 0; epoch < m.params.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		perm := rng.Perm(n)
		for start := 0; start < n; start += batch {
			idx := perm[start:min(start+batch, n)]
			xb := mat.NewDense(len(idx), p, nil)
			yb := make([]float64, len(idx))
			for r, i := range idx {
				xb.SetRow(r, x.RawRowView(i))
				yb[r] = target[i]
			}
			loss, grads := m.step(xb, yb, rng)
			if math.IsNaN(loss) || math.IsInf(loss, 0) {
				return fmt.Errorf("%w: loss %g at epoch %d", ErrDiverged, loss, epoch)
			}
			opt.update(m.weights(), grads, sched.Rate(iter))
			iter++
		}
	}
	return nil
}

func (m *mlpModel) initLayers(p int, rng *rand.Rand) {
	sizes := append([]int{p}, m.params.Hidden...)
	sizes = append(sizes, 1)
	m.layers = make([]mlpLayer, len(sizes)-1)
	for l := range m.layers {
		in, out := sizes[l], sizes[l+1]
		scale := math.Sqrt(2 / float64(in))
		data := make([]float64, in*out)
		for i := range data {
			data[i] = rng.NormFloat64() * scale
		}
		m.layers[l] = mlpLayer{w: mat.NewDense(in, out, data), b: make([]float64, out)}
	}
}

// weights returns the parameter slices in optimizer order. The slices alias
// the layer storage.
func (m *mlpModel) weights() [][]float64 {
	out := make([][]float64, 0, 2*len(m.layers))
	for _, l := range m.layers {
		out = append(out, l.w.RawMatrix().Data, l.b)
	}
	return out
}

// forward returns the activations of every layer, input first. The final
// entry is the raw output column. rng is nil outside training.
func (m *mlpModel) forward(x *mat.Dense, rng *rand.Rand) []*mat.Dense {
	acts := []*mat.Dense{x}
	keep := 1 - m.params.DropoutRate
	last := len(m.layers) - 1
	for l, layer := range m.layers {
		z := new(mat.Dense)
		z.Mul(acts[l], layer.w)
		hidden := l < last
		z.Apply(func(_, j int, v float64) float64 {
			v += layer.b[j]
			if !hidden {
				return v
			}
			if v <= 0 {
				return 0
			}
			if rng != nil && keep < 1 {
				if rng.Float64() >= keep {
					return 0
				}
				return v / keep
			}
			return v
		}, z)
		acts = append(acts, z)
	}
	return acts
}

// step runs forward and backward on one batch and returns the mean loss and
// the gradients aligned with weights().
func (m *mlpModel) step(xb *mat.Dense, yb []float64, rng *rand.Rand) (float64, [][]float64) {
	acts := m.forward(xb, rng)
	out := acts[len(acts)-1]
	rows := len(yb)
	inv := 1 / float64(rows)

	var loss float64
	delta := mat.NewDense(rows, 1, nil)
	for i := 0; i < rows; i++ {
		z := out.At(i, 0)
		if m.mlType == MLTypeClassification {
			loss += math.Max(z, 0) - z*yb[i] + math.Log1p(math.Exp(-math.Abs(z)))
			delta.Set(i, 0, (sigmoid(z)-yb[i])*inv)
		} else {
			d := z - yb[i]
			loss += 0.5 * d * d
			delta.Set(i, 0, d*inv)
		}
	}
	loss *= inv

	scale := 1.0
	if rng != nil && m.params.DropoutRate > 0 {
		scale = 1 / (1 - m.params.DropoutRate)
	}
	grads := make([][]float64, 2*len(m.layers))
	for l := len(m.layers) - 1; l >= 0; l-- {
		gw := new(mat.Dense)
		gw.Mul(acts[l].T(), delta)
		_, cols := delta.Dims()
		gb := make([]float64, cols)
		for j := range gb {
			gb[j] = floats.Sum(mat.Col(nil, j, delta))
		}
		grads[2*l], grads[2*l+1] = gw.RawMatrix().Data, gb

		if l == 0 {
			break
		}
		prev := acts[l]
		da := new(mat.Dense)
		da.Mul(delta, m.layers[l].w.T())
		da.Apply(func(i, j int, v float64) float64 {
			if prev.At(i, j) > 0 {
				return v * scale
			}
			return 0
		}, da)
		delta = da
	}
	return loss, grads
}

func (m *mlpModel) Predict(X mat.Matrix) (Prediction, error) {
	if m.layers == nil {
		return Prediction{}, ErrNotFitted
	}
	n, p := X.Dims()
	if p != m.nFeat {
		return Prediction{}, fmt.Errorf("%w: model has %d features, X has %d", ErrShapeMismatch, m.nFeat, p)
	}
	acts := m.forward(mat.DenseCopyOf(X), nil)
	out := mat.Col(nil, 0, acts[len(acts)-1])

	if m.mlType == MLTypeClassification {
		for i, z := range out {
			out[i] = sigmoid(z)
		}
		return Prediction{Values: labelsFromProba(out), Proba: out}, nil
	}
	values := make([]float64, n)
	for i, z := range out {
		values[i] = z*m.yStd + m.yMean
	}
	return Prediction{Values: values}, nil
}

// optimizer applies sgd-with-momentum or adam updates in place.
type optimizer struct {
	kind string
	m, v [][]float64
	t    int
}

func newOptimizer(kind string, params [][]float64) *optimizer {
	o := &optimizer{kind: kind, m: make([][]float64, len(params))}
	for i, p := range params {
		o.m[i] = make([]float64, len(p))
	}
	if kind == OptimizerAdam {
		o.v = make([][]float64, len(params))
		for i, p := range params {
			o.v[i] = make([]float64, len(p))
		}
	}
	return o
}

func (o *optimizer) update(params, grads [][]float64, lr float64) {
	if o.kind == OptimizerAdam {
		o.t++
		c1 := 1 - math.Pow(adamBeta1, float64(o.t))
		c2 := 1 - math.Pow(adamBeta2, float64(o.t))
		for k, p := range params {
			g, m, v := grads[k], o.m[k], o.v[k]
			for i := range p {
				m[i] = adamBeta1*m[i] + (1-adamBeta1)*g[i]
				v[i] = adamBeta2*v[i] + (1-adamBeta2)*g[i]*g[i]
				p[i] -= lr * (m[i] / c1) / (math.Sqrt(v[i]/c2) + adamEpsilon)
			}
		}
		return
	}
	for k, p := range params {
		g, vel := grads[k], o.m[k]
		for i := range p {
			vel[i] = momentum*vel[i] - lr*g[i]
			p[i] += vel[i]
		}
	}
}

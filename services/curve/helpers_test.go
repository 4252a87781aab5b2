// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package curve

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/learningcurve/services/curve/model"
)

// testData returns n rows with y = 2*x0 - x1 + noise, the first nTrain rows
// as the training fold and the rest as validation.
func testData(n, nTrain int) (*Dataset, Fold) {
	rng := rand.New(rand.NewPCG(11, 12))
	X := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x0, x1 := rng.Float64(), rng.Float64()
		X.SetRow(i, []float64{x0, x1})
		y[i] = 2*x0 - x1 + rng.NormFloat64()*0.05
	}
	fold := Fold{}
	for i := 0; i < n; i++ {
		if i < nTrain {
			fold.Train = append(fold.Train, i)
		} else {
			fold.Validation = append(fold.Validation, i)
		}
	}
	return &Dataset{Features: []string{"x0", "x1"}, X: X, Y: y}, fold
}

// meanEstimator predicts the training mean. It can be told to fail, panic
// or sleep for a given training size.
type meanEstimator struct {
	failAt  map[int]bool
	panicAt map[int]bool
	sleep   time.Duration
	fits    *atomic.Int64
	mean    float64
	fitted  bool
}

func (m *meanEstimator) Fit(_ mat.Matrix, y []float64) error {
	if m.fits != nil {
		m.fits.Add(1)
	}
	if m.sleep > 0 {
		time.Sleep(m.sleep)
	}
	if m.panicAt[len(y)] {
		panic(fmt.Sprintf("boom at %d", len(y)))
	}
	if m.failAt[len(y)] {
		return fmt.Errorf("refusing size %d", len(y))
	}
	var sum float64
	for _, v := range y {
		sum += v
	}
	m.mean = sum / float64(len(y))
	m.fitted = true
	return nil
}

func (m *meanEstimator) Predict(X mat.Matrix) ([]float64, error) {
	if !m.fitted {
		return nil, model.ErrNotFitted
	}
	r, _ := X.Dims()
	out := make([]float64, r)
	for i := range out {
		out[i] = m.mean
	}
	return out, nil
}

// meanRegistry registers "mean" with the behaviour of template.
func meanRegistry(template meanEstimator) *model.Registry {
	reg := model.NewRegistry()
	reg.MustRegister(model.EstimatorSpec{
		Name:       "mean",
		MLTypes:    []model.MLType{model.MLTypeRegression},
		MinSamples: func(model.EstimatorParams) int { return 2 },
		New: func(model.EstimatorParams, model.MLType, uint64) (model.Estimator, error) {
			est := template
			return &est, nil
		},
	})
	return reg
}

func meanConfig() model.Config {
	return model.Config{
		Family:    model.FamilyEstimator,
		MLType:    model.MLTypeRegression,
		Estimator: &model.EstimatorParams{Name: "mean"},
	}
}

// memorySink records the row count at every write.
type memorySink struct {
	mu     sync.Mutex
	writes []int
	failAt int
}

func (s *memorySink) Write(_ context.Context, t *ScoreTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes = append(s.writes, t.Len())
	if s.failAt > 0 && len(s.writes) >= s.failAt {
		return errors.New("disk full")
	}
	return nil
}

// memoryCheckpoint is an in-memory Checkpoint.
type memoryCheckpoint struct {
	mu   sync.Mutex
	runs map[string][]ShardResult
}

func newMemoryCheckpoint() *memoryCheckpoint {
	return &memoryCheckpoint{runs: make(map[string][]ShardResult)}
}

func (c *memoryCheckpoint) Load(_ context.Context, runKey string) ([]ShardResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ShardResult(nil), c.runs[runKey]...), nil
}

func (c *memoryCheckpoint) Save(_ context.Context, runKey string, r ShardResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.runs[runKey] = append(c.runs[runKey], r)
	return nil
}

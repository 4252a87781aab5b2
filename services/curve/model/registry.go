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
	"sort"
	"sync"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrEstimatorNotFound is returned when an estimator name is not registered.
	ErrEstimatorNotFound = errors.New("estimator not found")

	// ErrEstimatorRegistered is returned when registering a duplicate name.
	ErrEstimatorRegistered = errors.New("estimator already registered")
)

// Estimator is the minimal fit/predict contract wrapped by FamilyEstimator.
// For classification, Predict returns 0/1 labels.
type Estimator interface {
	Fit(X mat.Matrix, y []float64) error
	Predict(X mat.Matrix) ([]float64, error)
}

// ProbaEstimator is an Estimator that also exposes positive-class
// probabilities. Classification estimators without it are scored on labels.
type ProbaEstimator interface {
	Estimator
	PredictProba(X mat.Matrix) ([]float64, error)
}

// EstimatorFactory builds a fresh estimator for one shard.
type EstimatorFactory func(params EstimatorParams, mlType MLType, seed uint64) (Estimator, error)

// EstimatorSpec describes a registered estimator.
type EstimatorSpec struct {
	// Name is the registry key.
	Name string
	// MLTypes lists the task kinds the estimator supports.
	MLTypes []MLType
	// MinSamples returns the smallest trainable shard for the given params.
	MinSamples func(params EstimatorParams) int
	// New builds an estimator.
	New EstimatorFactory
}

// Registry maps estimator names to factories.
//
// Thread Safety: Safe for concurrent use via read-write mutex.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]EstimatorSpec
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]EstimatorSpec)}
}

// DefaultRegistry holds the built-in estimators: ridge, logistic and knn.
var DefaultRegistry = newDefaultRegistry()

func newDefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(EstimatorSpec{
		Name:       "ridge",
		MLTypes:    []MLType{MLTypeRegression},
		MinSamples: func(EstimatorParams) int { return 2 },
		New: func(p EstimatorParams, _ MLType, _ uint64) (Estimator, error) {
			return &ridgeRegression{alpha: p.Alpha}, nil
		},
	})
	r.MustRegister(EstimatorSpec{
		Name:       "logistic",
		MLTypes:    []MLType{MLTypeClassification},
		MinSamples: func(EstimatorParams) int { return 2 },
		New: func(p EstimatorParams, _ MLType, _ uint64) (Estimator, error) {
			return &logisticRegression{alpha: p.Alpha, maxIter: p.MaxIter, lr: p.LearningRate}, nil
		},
	})
	r.MustRegister(EstimatorSpec{
		Name:    "knn",
		MLTypes: []MLType{MLTypeRegression, MLTypeClassification},
		MinSamples: func(p EstimatorParams) int { return neighbours(p.K) },
		New: func(p EstimatorParams, t MLType, _ uint64) (Estimator, error) {
			return &kNearest{k: p.K, classify: t == MLTypeClassification}, nil
		},
	})
	return r
}

// Register adds an estimator.
//
// Outputs:
//
//	error - ErrEstimatorRegistered if the name is taken, ErrConfiguration if
//	  the EstimatorSpec is incomplete.
func (r *Registry) Register(spec EstimatorSpec) error {
	if spec.Name == "" || spec.New == nil || len(spec.MLTypes) == 0 {
		return configError("estimator spec requires a name, a factory and at least one mltype")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.specs[spec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrEstimatorRegistered, spec.Name)
	}
	r.specs[spec.Name] = spec
	return nil
}

// MustRegister registers a spec and panics on error. Use during init only.
func (r *Registry) MustRegister(spec EstimatorSpec) {
	if err := r.Register(spec); err != nil {
		panic(fmt.Sprintf("model: failed to register estimator %q: %v", spec.Name, err))
	}
}

// Names returns the registered estimator names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// lookup resolves name and checks it supports the task kind.
func (r *Registry) lookup(name string, t MLType) (EstimatorSpec, error) {
	r.mu.RLock()
	spec, ok := r.specs[name]
	r.mu.RUnlock()
	if !ok {
		return EstimatorSpec{}, fmt.Errorf("%w: %w: %s", ErrConfiguration, ErrEstimatorNotFound, name)
	}
	for _, supported := range spec.MLTypes {
		if supported == t {
			return spec, nil
		}
	}
	return EstimatorSpec{}, configError("estimator %s does not support mltype %s", name, t)
}

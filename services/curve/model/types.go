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
	"strings"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrConfiguration is returned when a model configuration is invalid.
	// It is fatal to a curve run and is raised before any shard executes.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrShapeMismatch is returned when matrix and target lengths disagree.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrNotFitted is returned when Predict is called before Fit.
	ErrNotFitted = errors.New("model is not fitted")

	// ErrDiverged is returned when training produces non-finite values.
	ErrDiverged = errors.New("training diverged")

	// ErrNonFinitePrediction is returned when a prediction is NaN or Inf.
	ErrNonFinitePrediction = errors.New("non-finite prediction")

	// ErrInvalidTarget is returned when classification targets are not 0/1.
	ErrInvalidTarget = errors.New("classification targets must be 0 or 1")
)

// configError wraps ErrConfiguration with a field-specific reason.
func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// -----------------------------------------------------------------------------
// Task kind
// -----------------------------------------------------------------------------

// MLType is the coarse task kind. It governs which metrics apply.
type MLType string

const (
	// MLTypeRegression scores with r2, absolute errors and correlations.
	MLTypeRegression MLType = "reg"
	// MLTypeClassification scores binary 0/1 targets with accuracy and auroc.
	MLTypeClassification MLType = "cls"
)

// ParseMLType converts "reg" or "cls" into an MLType.
func ParseMLType(s string) (MLType, error) {
	switch MLType(strings.ToLower(strings.TrimSpace(s))) {
	case MLTypeRegression:
		return MLTypeRegression, nil
	case MLTypeClassification:
		return MLTypeClassification, nil
	default:
		return "", configError("unknown mltype %q (want reg or cls)", s)
	}
}

// Valid reports whether t is one of the known task kinds.
func (t MLType) Valid() bool {
	return t == MLTypeRegression || t == MLTypeClassification
}

// CheckTargets verifies y is usable for the task kind: finite values, and
// only 0/1 labels for classification.
func CheckTargets(t MLType, y []float64) error {
	for i, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite target at row %d", ErrShapeMismatch, i)
		}
		if t == MLTypeClassification && v != 0 && v != 1 {
			return fmt.Errorf("%w: row %d has %g", ErrInvalidTarget, i, v)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Families
// -----------------------------------------------------------------------------

// Family identifies a model family. The set is closed.
type Family int

const (
	// FamilyUnknown is the zero value and is never valid.
	FamilyUnknown Family = iota
	// FamilyTree is a regression-tree ensemble (gbdt or random forest).
	FamilyTree
	// FamilyEstimator is a registry-backed generic estimator.
	FamilyEstimator
	// FamilyNeural is a multilayer perceptron.
	FamilyNeural
)

// String returns the canonical family name.
func (f Family) String() string {
	switch f {
	case FamilyTree:
		return "tree"
	case FamilyEstimator:
		return "estimator"
	case FamilyNeural:
		return "neural"
	default:
		return fmt.Sprintf("family(%d)", int(f))
	}
}

// ParseFamily accepts the canonical names and the framework aliases used by
// older run configurations (lightgbm, sklearn, keras).
func ParseFamily(s string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tree", "lightgbm", "lgb":
		return FamilyTree, nil
	case "estimator", "sklearn":
		return FamilyEstimator, nil
	case "neural", "keras", "nn":
		return FamilyNeural, nil
	default:
		return FamilyUnknown, configError("unknown model family %q", s)
	}
}

// MarshalYAML writes the canonical family name.
func (f Family) MarshalYAML() (any, error) {
	return f.String(), nil
}

// UnmarshalYAML reads a family name.
func (f *Family) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := ParseFamily(s)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// MarshalText writes the canonical family name for JSON.
func (f Family) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText reads a family name from JSON.
func (f *Family) UnmarshalText(text []byte) error {
	parsed, err := ParseFamily(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// Tree ensemble methods.
const (
	MethodGBDT         = "gbdt"
	MethodRandomForest = "rf"
)

// Neural optimizers.
const (
	OptimizerSGD  = "sgd"
	OptimizerAdam = "adam"
)

// Cyclical learning-rate modes.
const (
	CLRTriangular  = "trng1"
	CLRTriangular2 = "trng2"
	CLRExpRange    = "exp"
)

// Config selects a model family and carries its hyperparameters.
//
// Exactly one of Tree, Estimator or Neural may be set, and it must match
// Family. A nil parameter block for the selected family means defaults.
type Config struct {
	Family    Family           `yaml:"family"`
	MLType    MLType           `yaml:"mltype"`
	Tree      *TreeParams      `yaml:"tree,omitempty"`
	Estimator *EstimatorParams `yaml:"estimator,omitempty"`
	Neural    *NeuralParams    `yaml:"neural,omitempty"`
}

// TreeParams configures a regression-tree ensemble.
type TreeParams struct {
	// Method is "gbdt" (gradient boosting) or "rf" (bagged random forest).
	Method string `yaml:"method"`
	// NEstimators is the number of trees.
	NEstimators int `yaml:"n_estimators"`
	// LearningRate is the shrinkage applied to each boosted tree. Ignored by rf.
	LearningRate float64 `yaml:"learning_rate"`
	// MaxDepth bounds tree depth. 0 means unlimited.
	MaxDepth int `yaml:"max_depth"`
	// MinSamplesLeaf is the minimum number of samples in each leaf.
	MinSamplesLeaf int `yaml:"min_samples_leaf"`
	// Lambda is the L2 penalty on leaf values.
	Lambda float64 `yaml:"lambda"`
	// Subsample is the row fraction drawn for each boosted tree.
	Subsample float64 `yaml:"subsample"`
	// FeatureFraction is the column fraction considered at each split.
	FeatureFraction float64 `yaml:"feature_fraction"`
	// NJobs bounds the goroutines used by the split search.
	NJobs int `yaml:"n_jobs"`
}

// EstimatorParams configures a registry-backed estimator.
type EstimatorParams struct {
	// Name is the registry key, e.g. "ridge", "logistic", "knn".
	Name string `yaml:"name"`
	// Alpha is the L2 penalty for ridge and logistic.
	Alpha float64 `yaml:"alpha"`
	// K is the neighbour count for knn.
	K int `yaml:"k"`
	// MaxIter bounds iterative solvers.
	MaxIter int `yaml:"max_iter"`
	// LearningRate is the step size for iterative solvers.
	LearningRate float64 `yaml:"learning_rate"`
}

// NeuralParams configures the multilayer perceptron.
type NeuralParams struct {
	Hidden       []int      `yaml:"hidden"`
	DropoutRate  float64    `yaml:"dropout_rate"`
	Optimizer    string     `yaml:"optimizer"`
	LearningRate float64    `yaml:"learning_rate"`
	Epochs       int        `yaml:"epochs"`
	BatchSize    int        `yaml:"batch_size"`
	CLR          *CLRParams `yaml:"clr,omitempty"`
}

// CLRParams describes a cyclical learning-rate schedule.
type CLRParams struct {
	Mode   string  `yaml:"mode"`
	BaseLR float64 `yaml:"base_lr"`
	MaxLR  float64 `yaml:"max_lr"`
	Gamma  float64 `yaml:"gamma"`
	// StepSize is the half-cycle length in iterations. 0 derives it from the
	// shard size (four epochs per half cycle).
	StepSize int `yaml:"step_size"`
}

// DefaultTreeParams returns gradient boosting defaults.
func DefaultTreeParams() TreeParams {
	return TreeParams{
		Method:          MethodGBDT,
		NEstimators:     100,
		LearningRate:    0.1,
		MaxDepth:        6,
		MinSamplesLeaf:  15,
		Lambda:          1.0,
		Subsample:       1.0,
		FeatureFraction: 1.0,
		NJobs:           1,
	}
}

// DefaultForestParams returns random forest defaults.
func DefaultForestParams() TreeParams {
	return TreeParams{
		Method:          MethodRandomForest,
		NEstimators:     100,
		MaxDepth:        0,
		MinSamplesLeaf:  5,
		Subsample:       1.0,
		FeatureFraction: 0.33,
		NJobs:           1,
	}
}

// DefaultEstimatorParams returns defaults for the named estimator.
func DefaultEstimatorParams(name string) EstimatorParams {
	return EstimatorParams{
		Name:         name,
		Alpha:        1.0,
		K:            5,
		MaxIter:      300,
		LearningRate: 0.1,
	}
}

// DefaultNeuralParams returns perceptron defaults.
func DefaultNeuralParams() NeuralParams {
	return NeuralParams{
		Hidden:       []int{64, 32},
		DropoutRate:  0.2,
		Optimizer:    OptimizerSGD,
		LearningRate: 1e-3,
		Epochs:       200,
		BatchSize:    32,
	}
}

// Validate checks the configuration without applying defaults.
//
// Description:
//
//	Verifies the family and task kind are known, that only the parameter
//	block of the selected family is present, and that every present
//	hyperparameter is in range.
//
// Outputs:
//
//	error - nil if valid, otherwise wraps ErrConfiguration.
func (c Config) Validate() error {
	if !c.MLType.Valid() {
		return configError("unknown mltype %q (want reg or cls)", c.MLType)
	}
	switch c.Family {
	case FamilyTree:
		if c.Estimator != nil || c.Neural != nil {
			return configError("tree family does not accept estimator or neural parameters")
		}
		if c.Tree != nil {
			return c.Tree.validate()
		}
	case FamilyEstimator:
		if c.Tree != nil || c.Neural != nil {
			return configError("estimator family does not accept tree or neural parameters")
		}
		if c.Estimator == nil || c.Estimator.Name == "" {
			return configError("estimator family requires an estimator name")
		}
		return c.Estimator.validate()
	case FamilyNeural:
		if c.Tree != nil || c.Estimator != nil {
			return configError("neural family does not accept tree or estimator parameters")
		}
		if c.Neural != nil {
			return c.Neural.validate()
		}
	default:
		return configError("unknown model family %s", c.Family)
	}
	return nil
}

func (p *TreeParams) validate() error {
	switch p.Method {
	case MethodGBDT, MethodRandomForest:
	default:
		return configError("tree method %q (want gbdt or rf)", p.Method)
	}
	if p.NEstimators < 1 {
		return configError("tree n_estimators must be >= 1, got %d", p.NEstimators)
	}
	if p.Method == MethodGBDT && (p.LearningRate <= 0 || p.LearningRate > 1) {
		return configError("tree learning_rate must be in (0, 1], got %g", p.LearningRate)
	}
	if p.MaxDepth < 0 {
		return configError("tree max_depth must be >= 0, got %d", p.MaxDepth)
	}
	if p.MinSamplesLeaf < 1 {
		return configError("tree min_samples_leaf must be >= 1, got %d", p.MinSamplesLeaf)
	}
	if p.Lambda < 0 {
		return configError("tree lambda must be >= 0, got %g", p.Lambda)
	}
	if p.Subsample <= 0 || p.Subsample > 1 {
		return configError("tree subsample must be in (0, 1], got %g", p.Subsample)
	}
	if p.FeatureFraction <= 0 || p.FeatureFraction > 1 {
		return configError("tree feature_fraction must be in (0, 1], got %g", p.FeatureFraction)
	}
	if p.NJobs < 1 {
		return configError("tree n_jobs must be >= 1, got %d", p.NJobs)
	}
	return nil
}

func (p *EstimatorParams) validate() error {
	if p.Alpha < 0 {
		return configError("estimator alpha must be >= 0, got %g", p.Alpha)
	}
	if p.K < 0 {
		return configError("estimator k must be >= 0, got %d", p.K)
	}
	if p.MaxIter < 0 {
		return configError("estimator max_iter must be >= 0, got %d", p.MaxIter)
	}
	if p.LearningRate < 0 {
		return configError("estimator learning_rate must be >= 0, got %g", p.LearningRate)
	}
	return nil
}

func (p *NeuralParams) validate() error {
	if len(p.Hidden) == 0 {
		return configError("neural hidden layers must not be empty")
	}
	for i, h := range p.Hidden {
		if h < 1 {
			return configError("neural hidden[%d] must be >= 1, got %d", i, h)
		}
	}
	if p.DropoutRate < 0 || p.DropoutRate >= 1 {
		return configError("neural dropout_rate must be in [0, 1), got %g", p.DropoutRate)
	}
	switch p.Optimizer {
	case OptimizerSGD, OptimizerAdam:
	default:
		return configError("neural optimizer %q (want sgd or adam)", p.Optimizer)
	}
	if p.LearningRate <= 0 {
		return configError("neural learning_rate must be > 0, got %g", p.LearningRate)
	}
	if p.Epochs < 1 {
		return configError("neural epochs must be >= 1, got %d", p.Epochs)
	}
	if p.BatchSize < 1 {
		return configError("neural batch_size must be >= 1, got %d", p.BatchSize)
	}
	if p.CLR != nil {
		return p.CLR.validate()
	}
	return nil
}

func (p *CLRParams) validate() error {
	switch p.Mode {
	case CLRTriangular, CLRTriangular2, CLRExpRange:
	default:
		return configError("clr mode %q (want trng1, trng2 or exp)", p.Mode)
	}
	if p.BaseLR <= 0 || p.MaxLR <= 0 {
		return configError("clr learning rates must be > 0")
	}
	if p.MaxLR < p.BaseLR {
		return configError("clr max_lr %g is below base_lr %g", p.MaxLR, p.BaseLR)
	}
	if p.Mode == CLRExpRange && (p.Gamma <= 0 || p.Gamma > 1) {
		return configError("clr gamma must be in (0, 1], got %g", p.Gamma)
	}
	if p.StepSize < 0 {
		return configError("clr step_size must be >= 0, got %d", p.StepSize)
	}
	return nil
}

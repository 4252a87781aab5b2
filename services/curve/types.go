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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/AleutianAI/learningcurve/services/curve/model"
	"gonum.org/v1/gonum/mat"
)

// -----------------------------------------------------------------------------
// Errors
// -----------------------------------------------------------------------------

var (
	// ErrConfiguration is returned for invalid inputs detected before any
	// shard runs. It is the same sentinel the model package uses.
	ErrConfiguration = model.ErrConfiguration

	// ErrPersistence is returned when the sink or checkpoint cannot be
	// written. Dispatch stops when it occurs.
	ErrPersistence = errors.New("persistence failure")

	// ErrAllShardsFailed is returned, together with the table, when no shard
	// succeeded.
	ErrAllShardsFailed = errors.New("all shards failed")

	// ErrInterrupted is returned when the caller's context stopped dispatch.
	ErrInterrupted = errors.New("run interrupted")

	// ErrTableFinalized is returned when adding to a finalized table.
	ErrTableFinalized = errors.New("score table is finalized")

	// ErrDuplicateShard is returned when a size is added twice.
	ErrDuplicateShard = errors.New("duplicate shard size")
)

func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// -----------------------------------------------------------------------------
// Data
// -----------------------------------------------------------------------------

// Dataset is the feature matrix and target vector for one run. It is
// treated as read-only by the engine.
type Dataset struct {
	// Features names the columns of X.
	Features []string
	// X holds one row per sample. Values are already scaled.
	X *mat.Dense
	// Y holds one target per row of X.
	Y []float64
}

// NewDataset validates shapes and returns a Dataset.
//
// Outputs:
//
//	*Dataset - The dataset.
//	error - Wraps ErrConfiguration if X is empty, or if Y or features do not
//	  match the matrix shape.
func NewDataset(features []string, X *mat.Dense, y []float64) (*Dataset, error) {
	d := &Dataset{Features: features, X: X, Y: y}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Validate checks the dataset shape.
func (d *Dataset) Validate() error {
	if d == nil || d.X == nil || d.X.IsEmpty() {
		return configError("dataset has no feature matrix")
	}
	rows, cols := d.X.Dims()
	if len(d.Y) != rows {
		return configError("dataset has %d rows but %d targets", rows, len(d.Y))
	}
	if d.Features != nil && len(d.Features) != cols {
		return configError("dataset has %d columns but %d feature names", cols, len(d.Features))
	}
	return nil
}

// Rows returns the number of samples.
func (d *Dataset) Rows() int {
	r, _ := d.X.Dims()
	return r
}

// Fold is a single train/validation split of dataset row ids.
type Fold struct {
	Train      []int
	Validation []int
}

// Validate checks that both sets are non-empty, contain unique in-range ids
// and are disjoint.
func (f Fold) Validate(nRows int) error {
	if len(f.Train) == 0 {
		return configError("training fold is empty")
	}
	if len(f.Validation) == 0 {
		return configError("validation fold is empty")
	}
	seen := make(map[int]bool, len(f.Train)+len(f.Validation))
	for _, id := range f.Train {
		if id < 0 || id >= nRows {
			return configError("training id %d out of range [0, %d)", id, nRows)
		}
		if seen[id] {
			return configError("training id %d appears twice", id)
		}
		seen[id] = true
	}
	vl := make(map[int]bool, len(f.Validation))
	for _, id := range f.Validation {
		if id < 0 || id >= nRows {
			return configError("validation id %d out of range [0, %d)", id, nRows)
		}
		if vl[id] {
			return configError("validation id %d appears twice", id)
		}
		if seen[id] {
			return configError("id %d is in both training and validation folds", id)
		}
		vl[id] = true
	}
	return nil
}

// -----------------------------------------------------------------------------
// Shard configuration
// -----------------------------------------------------------------------------

// Scale is the spacing of shard sizes.
type Scale string

const (
	// ScaleLinear spaces sizes evenly.
	ScaleLinear Scale = "linear"
	// ScaleLog10 spaces sizes geometrically.
	ScaleLog10 Scale = "log10"
)

// ParseScale converts a scale name. Empty means log10.
func ParseScale(s string) (Scale, error) {
	switch Scale(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScaleLog10, "log":
		return ScaleLog10, nil
	case ScaleLinear:
		return ScaleLinear, nil
	default:
		return "", configError("unknown shard scale %q (want linear or log10)", s)
	}
}

// ShardConfig controls the shard schedule.
type ShardConfig struct {
	// NShards is the requested number of shard sizes.
	NShards int `yaml:"n_shards"`
	// Scale is the size spacing.
	Scale Scale `yaml:"scale"`
	// MinSize overrides the model family's minimum trainable size when > 0.
	MinSize int `yaml:"min_size"`
	// PreserveOrder draws shards from the training fold in the order given
	// instead of a seeded permutation.
	PreserveOrder bool `yaml:"preserve_order"`
	// ScoreTrain also scores each model on its own training shard.
	ScoreTrain bool `yaml:"score_train"`
}

// -----------------------------------------------------------------------------
// Results
// -----------------------------------------------------------------------------

// ShardStatus is the outcome of one shard.
type ShardStatus string

const (
	StatusOK      ShardStatus = "ok"
	StatusFailed  ShardStatus = "failed"
	StatusSkipped ShardStatus = "skipped"
)

// ShardResult is the immutable record of one shard.
type ShardResult struct {
	Size     int              `json:"size"`
	Status   ShardStatus      `json:"status"`
	Duration time.Duration    `json:"duration"`
	Scores   model.Scores     `json:"scores,omitempty"`
	// TrainScores are set when ShardConfig.ScoreTrain is enabled.
	TrainScores model.Scores `json:"train_scores,omitempty"`
	// Error summarises the failure cause. Empty unless Status is failed
	// or skipped.
	Error string `json:"error,omitempty"`
}

// Succeeded reports whether the shard produced scores.
func (r ShardResult) Succeeded() bool { return r.Status == StatusOK }

// ShardError is a failure inside one shard. It is captured into a failed
// ShardResult and never returned from Generate.
type ShardError struct {
	Size  int
	Stage string
	Err   error
}

func (e *ShardError) Error() string {
	return fmt.Sprintf("shard %d: %s: %v", e.Size, e.Stage, e.Err)
}

func (e *ShardError) Unwrap() error { return e.Err }

// Shard stages reported in ShardError.
const (
	StageDraw      = "draw"
	StageConstruct = "construct"
	StageFit       = "fit"
	StagePredict   = "predict"
	StageScore     = "score"
)

// RunMeta identifies a run.
type RunMeta struct {
	// RunID is unique per invocation.
	RunID string `json:"run_id" yaml:"run_id"`
	// RunKey is derived from the inputs and is stable across invocations;
	// it keys checkpoints.
	RunKey      string       `json:"run_key" yaml:"run_key"`
	Source      string       `json:"source" yaml:"source"`
	ModelName   string       `json:"model_name" yaml:"model_name"`
	Family      model.Family `json:"family" yaml:"family"`
	MLType      model.MLType `json:"mltype" yaml:"mltype"`
	Seed        uint64       `json:"seed" yaml:"seed"`
	NTrain      int          `json:"n_train" yaml:"n_train"`
	NValidation int          `json:"n_validation" yaml:"n_validation"`
	Sizes       []int        `json:"sizes" yaml:"sizes"`
	StartedAt   time.Time    `json:"started_at" yaml:"started_at"`
	FinishedAt  time.Time    `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// RunSummary is the outcome count of a run.
type RunSummary struct {
	Elapsed   time.Duration `yaml:"elapsed"`
	Succeeded int           `yaml:"succeeded"`
	Failed    int           `yaml:"failed"`
	Skipped   int           `yaml:"skipped"`
	Resumed   int           `yaml:"resumed"`
}

// Total is the number of rows accounted for.
func (s RunSummary) Total() int { return s.Succeeded + s.Failed + s.Skipped }

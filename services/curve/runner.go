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
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/mat"

	"github.com/AleutianAI/learningcurve/services/curve/model"
)

var tracer = otel.Tracer("lrncrv.curve")

// drawStream separates the shard permutation from the model's random
// streams derived from the same seed.
const drawStream = 0x9e3779b97f4a7c15

// DrawOrder returns the order in which training ids enter shards.
//
// Description:
//
//	The order is a permutation of train seeded by seed, or train itself
//	when preserve is set. Every shard is a prefix of this order, so shards
//	of increasing size are nested and the same (seed, size, fold) always
//	yields the same shard.
func DrawOrder(train []int, seed uint64, preserve bool) []int {
	order := make([]int, len(train))
	copy(order, train)
	if preserve {
		return order
	}
	rng := rand.New(rand.NewPCG(seed, drawStream))
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	return order
}

// DrawShard returns the first size ids of order.
func DrawShard(order []int, size int) ([]int, error) {
	if size < 1 || size > len(order) {
		return nil, fmt.Errorf("shard size %d outside [1, %d]", size, len(order))
	}
	return order[:size:size], nil
}

// gatherRows copies the rows ids of data into a new matrix and vector.
func gatherRows(data *Dataset, ids []int) (*mat.Dense, []float64) {
	_, cols := data.X.Dims()
	X := mat.NewDense(len(ids), cols, nil)
	y := make([]float64, len(ids))
	for r, id := range ids {
		X.SetRow(r, data.X.RawRowView(id))
		y[r] = data.Y[id]
	}
	return X, y
}

// ShardRunner trains and scores a single shard size.
//
// Thread Safety:
//
//	Run is safe for concurrent use. All fields are read-only after
//	NewShardRunner and every call constructs its own model.
type ShardRunner struct {
	adapter    model.Adapter
	data       *Dataset
	order      []int
	xVal       *mat.Dense
	yVal       []float64
	seed       uint64
	scoreTrain bool
	logger     *slog.Logger
}

// NewShardRunner prepares a runner for one run.
//
// Inputs:
//
//	adapter - Model family adapter.
//	data - The dataset. Must be valid.
//	fold - The train/validation split. Must be valid for data.
//	shards - Controls shard order and train scoring.
//	seed - Seeds the shard permutation and every model.
//	logger - Logger for shard failures. Nil means slog.Default().
func NewShardRunner(adapter model.Adapter, data *Dataset, fold Fold, shards ShardConfig, seed uint64, logger *slog.Logger) *ShardRunner {
	if logger == nil {
		logger = slog.Default()
	}
	xVal, yVal := gatherRows(data, fold.Validation)
	return &ShardRunner{
		adapter:    adapter,
		data:       data,
		order:      DrawOrder(fold.Train, seed, shards.PreserveOrder),
		xVal:       xVal,
		yVal:       yVal,
		seed:       seed,
		scoreTrain: shards.ScoreTrain,
		logger:     logger,
	}
}

// Run executes the shard of the given size and always returns a result.
//
// Description:
//
//	Draws the shard, constructs and fits a fresh model, predicts and scores
//	on the validation fold. Errors and panics from any stage are recorded
//	as a failed result; they are logged but never returned.
//
// Inputs:
//
//	ctx - Passed to Fit. Cancelling it fails the shard.
//	size - Shard size.
//
// Outputs:
//
//	ShardResult - StatusOK with scores, or StatusFailed with the cause.
func (r *ShardRunner) Run(ctx context.Context, size int) (result ShardResult) {
	ctx, span := tracer.Start(ctx, "curve.ShardRunner.Run",
		trace.WithAttributes(
			attribute.Int("shard.size", size),
			attribute.String("model.family", r.adapter.Family().String()),
		),
	)
	defer span.End()

	start := time.Now()
	stage := StageDraw
	defer func() {
		if p := recover(); p != nil {
			err := &ShardError{Size: size, Stage: stage, Err: fmt.Errorf("panic: %v", p)}
			r.logger.Debug("shard panic stack", slog.Int("size", size), slog.String("stack", string(debug.Stack())))
			result = r.fail(span, err, time.Since(start))
		}
	}()

	ids, err := DrawShard(r.order, size)
	if err != nil {
		return r.fail(span, &ShardError{Size: size, Stage: stage, Err: err}, time.Since(start))
	}
	X, y := gatherRows(r.data, ids)

	stage = StageConstruct
	m, err := r.adapter.Construct(r.seed)
	if err != nil {
		return r.fail(span, &ShardError{Size: size, Stage: stage, Err: err}, time.Since(start))
	}

	stage = StageFit
	if err := m.Fit(ctx, X, y); err != nil {
		return r.fail(span, &ShardError{Size: size, Stage: stage, Err: err}, time.Since(start))
	}

	stage = StagePredict
	pred, err := m.Predict(r.xVal)
	if err != nil {
		return r.fail(span, &ShardError{Size: size, Stage: stage, Err: err}, time.Since(start))
	}

	stage = StageScore
	scores, err := r.adapter.Score(r.yVal, pred)
	if err != nil {
		return r.fail(span, &ShardError{Size: size, Stage: stage, Err: err}, time.Since(start))
	}

	var trainScores model.Scores
	if r.scoreTrain {
		stage = StagePredict
		trainPred, err := m.Predict(X)
		if err != nil {
			return r.fail(span, &ShardError{Size: size, Stage: stage, Err: err}, time.Since(start))
		}
		stage = StageScore
		if trainScores, err = r.adapter.Score(y, trainPred); err != nil {
			return r.fail(span, &ShardError{Size: size, Stage: stage, Err: err}, time.Since(start))
		}
	}

	elapsed := time.Since(start)
	recordShard(r.adapter.Family(), StatusOK, elapsed)
	span.SetStatus(codes.Ok, "")
	r.logger.Info("shard completed",
		slog.Int("size", size),
		slog.Duration("duration", elapsed),
	)
	return ShardResult{
		Size:        size,
		Status:      StatusOK,
		Duration:    elapsed,
		Scores:      scores,
		TrainScores: trainScores,
	}
}

func (r *ShardRunner) fail(span trace.Span, err *ShardError, elapsed time.Duration) ShardResult {
	recordShard(r.adapter.Family(), StatusFailed, elapsed)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	r.logger.Warn("shard failed",
		slog.Int("size", err.Size),
		slog.String("stage", err.Stage),
		slog.String("error", err.Err.Error()),
	)
	return ShardResult{
		Size:     err.Size,
		Status:   StatusFailed,
		Duration: elapsed,
		Error:    err.Error(),
	}
}

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
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/learningcurve/services/curve/model"
)

// runKeyNamespace is the UUID namespace for run keys.
var runKeyNamespace = uuid.MustParse("6f1b0c4e-2a57-4f0e-9a53-2d9c3b8e7a41")

// errMaxDuration is the dispatch stop cause when MaxDuration elapses.
var errMaxDuration = errors.New("max duration exceeded")

// Sink persists the score table. Write is called by the collector after
// every completed shard and once more when the run ends.
type Sink interface {
	Write(ctx context.Context, table *ScoreTable) error
}

// Checkpoint stores completed shards so an interrupted run can resume.
type Checkpoint interface {
	// Load returns the results saved under runKey. No results is not an
	// error.
	Load(ctx context.Context, runKey string) ([]ShardResult, error)

	// Save stores one result under runKey.
	Save(ctx context.Context, runKey string, result ShardResult) error
}

// Options configures an Engine. Every field is optional.
type Options struct {
	// Logger receives run and shard logs. Nil means slog.Default().
	Logger *slog.Logger
	// Sink persists the table after every shard.
	Sink Sink
	// Checkpoint enables resume of succeeded shards.
	Checkpoint Checkpoint
	// Registry resolves estimator names. Nil means model.DefaultRegistry.
	Registry *model.Registry
}

// Request describes one learning-curve run.
type Request struct {
	// Source identifies the data source, e.g. "GDSC".
	Source string
	// ModelName is a display name for the model, e.g. "lgb_reg".
	ModelName string
	// Target names the response column, e.g. "AUC".
	Target string
	// Scaler names the feature scaling already applied to Data.
	Scaler string
	Data   *Dataset
	Fold      Fold
	Model     model.Config
	Shards    ShardConfig
	// NJobs bounds concurrent shards. 0 means 1.
	NJobs int
	// Seed drives the shard permutation and every model.
	Seed uint64
	// MaxDuration stops dispatch of new shards once exceeded. 0 disables.
	MaxDuration time.Duration
}

// Engine generates learning curves.
//
// Thread Safety:
//
//	Engine is safe for concurrent use; each Generate call owns its state.
type Engine struct {
	logger     *slog.Logger
	sink       Sink
	checkpoint Checkpoint
	registry   *model.Registry
}

// NewEngine creates an Engine.
func NewEngine(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := opts.Registry
	if registry == nil {
		registry = model.DefaultRegistry
	}
	return &Engine{
		logger:     logger,
		sink:       opts.Sink,
		checkpoint: opts.Checkpoint,
		registry:   registry,
	}
}

// plan is the validated form of a Request.
type plan struct {
	req     Request
	adapter model.Adapter
	sizes   []int
	meta    RunMeta
}

// prepare validates the request and computes the schedule. Every error
// wraps ErrConfiguration.
func (e *Engine) prepare(req Request) (*plan, error) {
	if req.Data == nil {
		return nil, configError("request has no dataset")
	}
	if err := req.Data.Validate(); err != nil {
		return nil, err
	}
	if err := req.Fold.Validate(req.Data.Rows()); err != nil {
		return nil, err
	}
	if req.NJobs < 0 {
		return nil, configError("n_jobs must be >= 0, got %d", req.NJobs)
	}
	if req.NJobs == 0 {
		req.NJobs = 1
	}
	if req.MaxDuration < 0 {
		return nil, configError("max duration must be >= 0, got %s", req.MaxDuration)
	}
	scale, err := ParseScale(string(req.Shards.Scale))
	if err != nil {
		return nil, err
	}
	req.Shards.Scale = scale

	adapter, err := model.NewAdapterWithRegistry(req.Model, e.registry)
	if err != nil {
		return nil, err
	}
	if err := model.CheckTargets(req.Model.MLType, req.Data.Y); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}

	minSize := adapter.MinSamples()
	if req.Shards.MinSize > 0 {
		minSize = req.Shards.MinSize
	}
	sizes, err := ShardSizes(len(req.Fold.Train), req.Shards.NShards, scale, minSize)
	if err != nil {
		return nil, err
	}

	meta := RunMeta{
		RunID:       uuid.NewString(),
		RunKey:      RunKey(req, sizes),
		Source:      req.Source,
		ModelName:   req.ModelName,
		Family:      adapter.Family(),
		MLType:      adapter.MLType(),
		Seed:        req.Seed,
		NTrain:      len(req.Fold.Train),
		NValidation: len(req.Fold.Validation),
		Sizes:       sizes,
	}
	return &plan{req: req, adapter: adapter, sizes: sizes, meta: meta}, nil
}

// RunKey derives a stable identifier from everything that determines a
// run's results: source, target, scaler, model configuration, seed, fold,
// sizes, feature names and a digest of the data values.
func RunKey(req Request, sizes []int) string {
	payload, _ := json.Marshal(struct {
		Source   string       `json:"source"`
		Target   string       `json:"target"`
		Scaler   string       `json:"scaler"`
		Model    model.Config `json:"model"`
		Shards   ShardConfig  `json:"shards"`
		Seed     uint64       `json:"seed"`
		Train    []int        `json:"train"`
		Valid    []int        `json:"validation"`
		Sizes    []int        `json:"sizes"`
		Features []string     `json:"features"`
		Digest   string       `json:"data_sha256"`
	}{
		Source:   req.Source,
		Target:   req.Target,
		Scaler:   req.Scaler,
		Model:    req.Model,
		Shards:   req.Shards,
		Seed:     req.Seed,
		Train:    req.Fold.Train,
		Valid:    req.Fold.Validation,
		Sizes:    sizes,
		Features: req.Data.Features,
		Digest:   dataDigest(req.Data),
	})
	return uuid.NewSHA1(runKeyNamespace, payload).String()
}

// dataDigest hashes the shape, X row by row and Y.
func dataDigest(d *Dataset) string {
	h := sha256.New()
	var buf [8]byte
	put := func(v uint64) {
		binary.LittleEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	rows, cols := d.X.Dims()
	put(uint64(rows))
	put(uint64(cols))
	for i := range rows {
		for _, v := range d.X.RawRowView(i) {
			put(math.Float64bits(v))
		}
	}
	for _, v := range d.Y {
		put(math.Float64bits(v))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Validate checks req the way Generate does, without running anything.
// Every error wraps ErrConfiguration.
func (e *Engine) Validate(req Request) error {
	_, err := e.prepare(req)
	return err
}

// Generate runs the learning curve.
//
// Description:
//
//	Validates the request, computes the shard sizes and runs one shard per
//	size, sequentially when NJobs is 1 or on a pool of NJobs workers. The
//	calling goroutine collects results, inserts them into the table in size
//	order and persists the table after each one. Shards already succeeded
//	in the checkpoint are restored instead of re-run.
//
//	Cancelling ctx, or exceeding MaxDuration, stops dispatch of shards that
//	have not started; shards in flight run to completion. Undispatched sizes
//	are recorded as skipped rows.
//
// Inputs:
//
//	ctx - Stop signal for dispatch. Must not be nil.
//	req - The run.
//
// Outputs:
//
//	*ScoreTable - The finalized table. Nil only for configuration errors.
//	error - nil on full or partial success. ErrConfiguration before any
//	  shard runs. ErrAllShardsFailed when nothing succeeded. ErrPersistence
//	  when the sink or checkpoint failed. ErrInterrupted (joined with the
//	  context error) when ctx stopped dispatch.
func (e *Engine) Generate(ctx context.Context, req Request) (*ScoreTable, error) {
	p, err := e.prepare(req)
	if err != nil {
		return nil, err
	}
	req = p.req
	family := p.adapter.Family()

	ctx, span := tracer.Start(ctx, "curve.Engine.Generate",
		trace.WithAttributes(
			attribute.String("curve.source", req.Source),
			attribute.String("curve.run_id", p.meta.RunID),
			attribute.String("model.family", family.String()),
			attribute.String("model.mltype", string(p.meta.MLType)),
			attribute.IntSlice("curve.sizes", p.sizes),
			attribute.Int("curve.n_jobs", req.NJobs),
		),
	)
	defer span.End()

	logger := e.logger.With(slog.String("run_id", p.meta.RunID))
	p.meta.StartedAt = time.Now()
	table := NewScoreTable(p.meta, req.Shards.ScoreTrain)

	logger.Info("curve run started",
		slog.String("source", req.Source),
		slog.String("model", req.ModelName),
		slog.String("family", family.String()),
		slog.String("run_key", p.meta.RunKey),
		slog.Any("sizes", p.sizes),
		slog.Int("n_jobs", req.NJobs),
	)

	pending, err := e.resume(ctx, table, p, logger)
	if err != nil {
		return e.finish(ctx, span, table, logger, err)
	}

	runner := NewShardRunner(p.adapter, req.Data, req.Fold, req.Shards, req.Seed, logger)
	persistErr := e.execute(ctx, req, runner, pending, table, logger)

	// Sizes never dispatched become skipped rows.
	cause := "not dispatched"
	switch {
	case persistErr != nil:
		cause = "stopped after persistence failure"
	case ctx.Err() != nil:
		cause = "interrupted: " + ctx.Err().Error()
	case req.MaxDuration > 0:
		cause = errMaxDuration.Error()
	}
	var skipped int
	for _, size := range pending {
		if _, ok := table.Lookup(size); ok {
			continue
		}
		_ = table.Add(ShardResult{Size: size, Status: StatusSkipped, Error: cause})
		skipped++
	}
	recordSkipped(family, skipped)
	if skipped > 0 {
		logger.Warn("shards skipped", slog.Int("count", skipped), slog.String("reason", cause))
	}

	if persistErr == nil && e.sink != nil {
		if err := e.sink.Write(context.WithoutCancel(ctx), table); err != nil {
			persistErr = err
		}
	}

	switch {
	case persistErr != nil:
		err = fmt.Errorf("%w: %w", ErrPersistence, persistErr)
	case ctx.Err() != nil && skipped > 0:
		err = errors.Join(ErrInterrupted, ctx.Err())
	case table.Summary().Succeeded == 0:
		err = ErrAllShardsFailed
	}
	return e.finish(ctx, span, table, logger, err)
}

// resume restores succeeded shards from the checkpoint and returns the sizes
// still to run.
func (e *Engine) resume(ctx context.Context, table *ScoreTable, p *plan, logger *slog.Logger) ([]int, error) {
	if e.checkpoint == nil {
		return p.sizes, nil
	}
	saved, err := e.checkpoint.Load(ctx, p.meta.RunKey)
	if err != nil {
		return nil, fmt.Errorf("%w: loading checkpoint: %w", ErrPersistence, err)
	}
	wanted := make(map[int]bool, len(p.sizes))
	for _, s := range p.sizes {
		wanted[s] = true
	}
	for _, r := range saved {
		if !r.Succeeded() || !wanted[r.Size] {
			continue
		}
		// duplicates keep the first copy
		_ = table.addResumed(r)
	}
	pending := make([]int, 0, len(p.sizes))
	for _, s := range p.sizes {
		if _, ok := table.Lookup(s); !ok {
			pending = append(pending, s)
		}
	}
	if n := len(p.sizes) - len(pending); n > 0 {
		logger.Info("resumed shards from checkpoint", slog.Int("resumed", n), slog.Int("pending", len(pending)))
	}
	return pending, nil
}

// execute dispatches pending sizes to the worker pool and collects results
// on the calling goroutine. It returns the first persistence error.
func (e *Engine) execute(
	ctx context.Context,
	req Request,
	runner *ShardRunner,
	pending []int,
	table *ScoreTable,
	logger *slog.Logger,
) error {
	if len(pending) == 0 {
		return nil
	}

	dispatchCtx, stop := context.WithCancelCause(ctx)
	defer stop(nil)
	if req.MaxDuration > 0 {
		var cancel context.CancelFunc
		dispatchCtx, cancel = context.WithTimeoutCause(dispatchCtx, req.MaxDuration, errMaxDuration)
		defer cancel()
	}
	// Shards in flight are not interrupted by the stop signal.
	workCtx := context.WithoutCancel(ctx)

	tasks := make(chan int)
	results := make(chan ShardResult, len(pending))

	go func() {
		defer close(tasks)
		for _, size := range pending {
			if dispatchCtx.Err() != nil {
				return
			}
			select {
			case tasks <- size:
			case <-dispatchCtx.Done():
				return
			}
		}
	}()

	var g errgroup.Group
	for w := 0; w < min(req.NJobs, len(pending)); w++ {
		g.Go(func() error {
			for size := range tasks {
				shardsInFlight.Inc()
				results <- runner.Run(workCtx, size)
				shardsInFlight.Dec()
			}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(results)
	}()

	var persistErr error
	for r := range results {
		if err := table.Add(r); err != nil {
			logger.Error("dropping shard result", slog.Int("size", r.Size), slog.String("error", err.Error()))
			continue
		}
		if persistErr != nil {
			continue
		}
		if err := e.persist(ctx, table, r); err != nil {
			persistErr = err
			stop(err)
			logger.Error("persistence failed, stopping dispatch",
				slog.Int("size", r.Size),
				slog.String("error", err.Error()),
			)
		}
	}
	return persistErr
}

// persist saves one result to the checkpoint and rewrites the sink.
func (e *Engine) persist(ctx context.Context, table *ScoreTable, r ShardResult) error {
	ctx = context.WithoutCancel(ctx)
	if e.checkpoint != nil && r.Succeeded() {
		if err := e.checkpoint.Save(ctx, table.Meta().RunKey, r); err != nil {
			return fmt.Errorf("checkpoint shard %d: %w", r.Size, err)
		}
	}
	if e.sink != nil {
		if err := e.sink.Write(ctx, table); err != nil {
			return fmt.Errorf("sink after shard %d: %w", r.Size, err)
		}
	}
	return nil
}

// finish finalizes the table, records telemetry and logs the outcome.
func (e *Engine) finish(ctx context.Context, span trace.Span, table *ScoreTable, logger *slog.Logger, err error) (*ScoreTable, error) {
	table.Finalize(time.Now())
	summary := table.Summary()
	family := table.Meta().Family

	span.SetAttributes(
		attribute.Int("curve.succeeded", summary.Succeeded),
		attribute.Int("curve.failed", summary.Failed),
		attribute.Int("curve.skipped", summary.Skipped),
		attribute.Int("curve.resumed", summary.Resumed),
	)

	attrs := []any{
		slog.Duration("elapsed", summary.Elapsed),
		slog.Int("succeeded", summary.Succeeded),
		slog.Int("failed", summary.Failed),
		slog.Int("skipped", summary.Skipped),
		slog.Int("resumed", summary.Resumed),
	}

	outcome := "ok"
	switch {
	case errors.Is(err, ErrInterrupted):
		outcome = "interrupted"
	case errors.Is(err, ErrAllShardsFailed):
		outcome = "failed"
	case err != nil:
		outcome = "error"
	case summary.Failed > 0 || summary.Skipped > 0:
		outcome = "partial"
	}
	recordRun(family, outcome)
	initOtelMetrics(logger)
	recordRunOtel(ctx, family, summary)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("curve run finished with error", append(attrs, slog.String("error", err.Error()))...)
		return table, err
	}
	span.SetStatus(codes.Ok, "")
	logger.Info("curve run completed", attrs...)
	return table, nil
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/AleutianAI/learningcurve/cmd/lrncrv/config"
	"github.com/AleutianAI/learningcurve/pkg/dataset"
	"github.com/AleutianAI/learningcurve/pkg/logging"
	"github.com/AleutianAI/learningcurve/pkg/plot"
	"github.com/AleutianAI/learningcurve/pkg/ux"
	"github.com/AleutianAI/learningcurve/pkg/validation"
	"github.com/AleutianAI/learningcurve/services/curve"
	"github.com/AleutianAI/learningcurve/services/curve/storage"
	"github.com/AleutianAI/learningcurve/services/curve/telemetry"
)

// runFlags holds flag values and how each one overrides a loaded config.
type runFlags struct {
	configPath string
	values     config.Config
	overrides  map[string]func(dst *config.Config)
}

func newRunCmd() *cobra.Command {
	f := &runFlags{values: config.DefaultConfig()}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate a learning curve for one data split and model",
		Long: `Generate a learning curve for one data split and model.

Exit status is 0 when every shard succeeded, 3 when the run completed with
failed or skipped shards, 2 for configuration errors, 130 when interrupted
and 1 for any other failure.`,
		Example: `  lrncrv run --dirpath data/GDSC_cv_simple --model lgb_reg
  lrncrv run --dirpath data/CTRP_cv_group -t IC50 --model nn_reg --opt adam --clr-mode trng1
  lrncrv run --config run.yaml --n-jobs 8 --resume`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.resolve(cmd.Flags())
			if err != nil {
				return err
			}
			if cfg.Output.Personality != "" && !cmd.Flags().Changed("personality") {
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(cfg.Output.Personality))
			}
			_, err = executeRun(cmd.Context(), cfg)
			return err
		},
	}
	f.bind(cmd.Flags())
	return cmd
}

// bind registers every flag against f.values and records its override.
func (f *runFlags) bind(fs *pflag.FlagSet) {
	v := &f.values
	f.overrides = map[string]func(dst *config.Config){}
	set := func(name string, apply func(dst *config.Config)) { f.overrides[name] = apply }

	fs.StringVar(&f.configPath, "config", "", "YAML run configuration; flags override its values")

	// Data
	fs.StringVar(&v.Data.Dir, "dirpath", v.Data.Dir, "data directory with xdata and meta tables (parquet or csv) and fold id files")
	set("dirpath", func(d *config.Config) { d.Data.Dir = v.Data.Dir })
	fs.StringVarP(&v.Data.Target, "target", "t", v.Data.Target, "target column: AUC, AUC1 or IC50")
	set("target", func(d *config.Config) { d.Data.Target = v.Data.Target })
	fs.StringSliceVar(&v.Data.CellFeatures, "cell-features", v.Data.CellFeatures, "cell feature types: rna, cnv, clb")
	set("cell-features", func(d *config.Config) { d.Data.CellFeatures = v.Data.CellFeatures })
	fs.StringSliceVar(&v.Data.DrugFeatures, "drug-features", v.Data.DrugFeatures, "drug feature types: dsc, fng, dlb")
	set("drug-features", func(d *config.Config) { d.Data.DrugFeatures = v.Data.DrugFeatures })
	fs.StringVar(&v.Data.CVMethod, "cv-method", v.Data.CVMethod, "split method the fold files were built with: simple or group")
	set("cv-method", func(d *config.Config) { d.Data.CVMethod = v.Data.CVMethod })
	fs.IntVar(&v.Data.CVFolds, "cv-folds", v.Data.CVFolds, "number of folds in the split files")
	set("cv-folds", func(d *config.Config) { d.Data.CVFolds = v.Data.CVFolds })
	fs.IntVar(&v.Data.Fold, "fold", v.Data.Fold, "fold column to use")
	set("fold", func(d *config.Config) { d.Data.Fold = v.Data.Fold })
	fs.StringVar(&v.Data.Scaler, "scaler", v.Data.Scaler, "feature scaling: stnd, minmax, rbst or none")
	set("scaler", func(d *config.Config) { d.Data.Scaler = v.Data.Scaler })

	// Model
	fs.StringVarP(&v.Model.Name, "model", "m", v.Model.Name, "model preset (see lrncrv models)")
	set("model", func(d *config.Config) { d.Model.Name = v.Model.Name })
	fs.IntVar(&v.Model.NEstimators, "n-estimators", v.Model.NEstimators, "tree count for lgb_* and rf_* (0 keeps the preset)")
	set("n-estimators", func(d *config.Config) { d.Model.NEstimators = v.Model.NEstimators })
	fs.IntVar(&v.Model.Epochs, "epochs", v.Model.Epochs, "training epochs for nn_*")
	set("epochs", func(d *config.Config) { d.Model.Epochs = v.Model.Epochs })
	fs.IntVar(&v.Model.BatchSize, "batch-size", v.Model.BatchSize, "mini-batch size for nn_*")
	set("batch-size", func(d *config.Config) { d.Model.BatchSize = v.Model.BatchSize })
	fs.Float64Var(&v.Model.DropoutRate, "dr-rate", v.Model.DropoutRate, "dropout rate for nn_*")
	set("dr-rate", func(d *config.Config) { d.Model.DropoutRate = v.Model.DropoutRate })
	fs.StringVar(&v.Model.Optimizer, "opt", v.Model.Optimizer, "optimizer for nn_*: sgd or adam")
	set("opt", func(d *config.Config) { d.Model.Optimizer = v.Model.Optimizer })
	fs.Float64Var(&v.Model.LearningRate, "lr", v.Model.LearningRate, "learning rate for nn_* without CLR")
	set("lr", func(d *config.Config) { d.Model.LearningRate = v.Model.LearningRate })
	fs.StringVar(&v.Model.CLR.Mode, "clr-mode", v.Model.CLR.Mode, "cyclical learning rate: trng1, trng2 or exp")
	set("clr-mode", func(d *config.Config) { d.Model.CLR.Mode = v.Model.CLR.Mode })
	fs.Float64Var(&v.Model.CLR.BaseLR, "clr-base-lr", v.Model.CLR.BaseLR, "CLR base learning rate")
	set("clr-base-lr", func(d *config.Config) { d.Model.CLR.BaseLR = v.Model.CLR.BaseLR })
	fs.Float64Var(&v.Model.CLR.MaxLR, "clr-max-lr", v.Model.CLR.MaxLR, "CLR max learning rate")
	set("clr-max-lr", func(d *config.Config) { d.Model.CLR.MaxLR = v.Model.CLR.MaxLR })
	fs.Float64Var(&v.Model.CLR.Gamma, "clr-gamma", v.Model.CLR.Gamma, "CLR decay for exp mode")
	set("clr-gamma", func(d *config.Config) { d.Model.CLR.Gamma = v.Model.CLR.Gamma })

	// Curve
	fs.IntVar(&v.Curve.NShards, "n-shards", v.Curve.NShards, "number of training-set sizes")
	set("n-shards", func(d *config.Config) { d.Curve.NShards = v.Curve.NShards })
	fs.StringVar(&v.Curve.Scale, "scale", v.Curve.Scale, "shard size spacing: log10 or linear")
	set("scale", func(d *config.Config) { d.Curve.Scale = v.Curve.Scale })
	fs.IntVar(&v.Curve.MinSize, "min-size", v.Curve.MinSize, "smallest shard (0 uses the model's minimum)")
	set("min-size", func(d *config.Config) { d.Curve.MinSize = v.Curve.MinSize })
	fs.BoolVar(&v.Curve.PreserveOrder, "preserve-order", v.Curve.PreserveOrder, "take shards in fold order instead of a seeded shuffle")
	set("preserve-order", func(d *config.Config) { d.Curve.PreserveOrder = v.Curve.PreserveOrder })
	fs.BoolVar(&v.Curve.ScoreTrain, "score-train", v.Curve.ScoreTrain, "also score each model on its training shard")
	set("score-train", func(d *config.Config) { d.Curve.ScoreTrain = v.Curve.ScoreTrain })
	fs.IntVar(&v.Curve.NJobs, "n-jobs", v.Curve.NJobs, "shards trained concurrently")
	set("n-jobs", func(d *config.Config) { d.Curve.NJobs = v.Curve.NJobs })
	fs.DurationVar(&v.Curve.MaxDuration, "max-duration", v.Curve.MaxDuration, "stop starting new shards after this long (0 disables)")
	set("max-duration", func(d *config.Config) { d.Curve.MaxDuration = v.Curve.MaxDuration })
	fs.BoolVar(&v.Curve.Resume, "resume", v.Curve.Resume, "reuse shards completed by an earlier identical run")
	set("resume", func(d *config.Config) { d.Curve.Resume = v.Curve.Resume })
	fs.Uint64Var(&v.Seed, "seed", v.Seed, "random seed")
	set("seed", func(d *config.Config) { d.Seed = v.Seed })

	// Output
	fs.StringVar(&v.Output.Root, "outdir", v.Output.Root, "parent of run directories (env "+config.OutDirEnv+")")
	set("outdir", func(d *config.Config) { d.Output.Root = v.Output.Root })
	fs.StringVar(&v.Output.Dir, "run-dir", v.Output.Dir, "exact run directory instead of a generated name")
	set("run-dir", func(d *config.Config) { d.Output.Dir = v.Output.Dir })
	fs.StringVar(&v.Output.CheckpointDir, "checkpoint-dir", v.Output.CheckpointDir, "checkpoint store for --resume")
	set("checkpoint-dir", func(d *config.Config) { d.Output.CheckpointDir = v.Output.CheckpointDir })
	fs.BoolVar(&v.Output.Plot, "plot", v.Output.Plot, "write one PNG per metric")
	set("plot", func(d *config.Config) { d.Output.Plot = v.Output.Plot })
	fs.StringVar(&v.Output.LogLevel, "log-level", v.Output.LogLevel, "debug, info, warn or error")
	set("log-level", func(d *config.Config) { d.Output.LogLevel = v.Output.LogLevel })

	fs.StringVar(&v.Output.Influx.URL, "influx-url", v.Output.Influx.URL, "also write shard scores to this InfluxDB (env INFLUXDB_URL, token from INFLUXDB_TOKEN)")
	set("influx-url", func(d *config.Config) { d.Output.Influx.URL = v.Output.Influx.URL })
	fs.StringVar(&v.Output.Influx.Org, "influx-org", v.Output.Influx.Org, "InfluxDB organization")
	set("influx-org", func(d *config.Config) { d.Output.Influx.Org = v.Output.Influx.Org })
	fs.StringVar(&v.Output.Influx.Bucket, "influx-bucket", v.Output.Influx.Bucket, "InfluxDB bucket")
	set("influx-bucket", func(d *config.Config) { d.Output.Influx.Bucket = v.Output.Influx.Bucket })

	// Telemetry
	fs.StringVar(&v.Telemetry.TraceExporter, "trace-exporter", v.Telemetry.TraceExporter, "none, otlp, stdout or file")
	set("trace-exporter", func(d *config.Config) { d.Telemetry.TraceExporter = v.Telemetry.TraceExporter })
	fs.StringVar(&v.Telemetry.MetricExporter, "metric-exporter", v.Telemetry.MetricExporter, "none, prometheus or stdout")
	set("metric-exporter", func(d *config.Config) { d.Telemetry.MetricExporter = v.Telemetry.MetricExporter })
	fs.StringVar(&v.Telemetry.MetricsAddr, "metrics-addr", v.Telemetry.MetricsAddr, "serve /metrics during the run, e.g. localhost:9464")
	set("metrics-addr", func(d *config.Config) { d.Telemetry.MetricsAddr = v.Telemetry.MetricsAddr })
}

// resolve builds the effective configuration: defaults, then the YAML file,
// then every flag the user set.
func (f *runFlags) resolve(fs *pflag.FlagSet) (config.Config, error) {
	cfg := f.values
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return config.Config{}, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
		}
		fs.Visit(func(fl *pflag.Flag) {
			if apply, ok := f.overrides[fl.Name]; ok {
				apply(&loaded)
			}
		})
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// treeJobs splits the CPUs between concurrent shards.
func treeJobs(nJobs int) int {
	return max(1, runtime.NumCPU()/max(1, nJobs))
}

// errRunDegraded reports a run that completed with failed or skipped shards.
var errRunDegraded = errors.New("run degraded")

// executeRun loads the data, runs the engine and writes every artifact
// into a new run directory, which it returns.
func executeRun(ctx context.Context, cfg config.Config) (string, error) {
	split, err := dataset.Load(dataset.Options{
		Dir:          cfg.Data.Dir,
		Target:       cfg.Data.Target,
		CellFeatures: cfg.Data.CellFeatures,
		DrugFeatures: cfg.Data.DrugFeatures,
		CVFolds:      cfg.Data.CVFolds,
		Fold:         cfg.Data.Fold,
	})
	if err != nil {
		return "", fmt.Errorf("load data: %w", err)
	}
	if err := validation.ValidateSource(split.Source); err != nil {
		return "", fmt.Errorf("%w: data directory %s: %v", curve.ErrConfiguration, cfg.Data.Dir, err)
	}
	scaler, err := dataset.ParseScaler(cfg.Data.Scaler)
	if err != nil {
		return "", fmt.Errorf("%w: %v", curve.ErrConfiguration, err)
	}
	if err := scaler.FitTransform(split.X); err != nil {
		return "", fmt.Errorf("scale features: %w", err)
	}
	data, err := curve.NewDataset(split.Features, split.X, split.Y)
	if err != nil {
		return "", err
	}
	mcfg, err := modelConfig(cfg.Model, treeJobs(cfg.Curve.NJobs))
	if err != nil {
		return "", err
	}
	scale, err := curve.ParseScale(cfg.Curve.Scale)
	if err != nil {
		return "", err
	}

	req := curve.Request{
		Source:    split.Source,
		ModelName: cfg.Model.Name,
		Target:    cfg.Data.Target,
		Scaler:    string(scaler),
		Data:      data,
		Fold:      curve.Fold{Train: split.Train, Validation: split.Validation},
		Model:     mcfg,
		Shards: curve.ShardConfig{
			NShards:       cfg.Curve.NShards,
			Scale:         scale,
			MinSize:       cfg.Curve.MinSize,
			PreserveOrder: cfg.Curve.PreserveOrder,
			ScoreTrain:    cfg.Curve.ScoreTrain,
		},
		NJobs:       cfg.Curve.NJobs,
		Seed:        cfg.Seed,
		MaxDuration: cfg.Curve.MaxDuration,
	}
	// Fold and schedule errors must surface before the run directory exists.
	if err := curve.NewEngine(curve.Options{}).Validate(req); err != nil {
		return "", err
	}
	level, err := logging.ParseLevel(cfg.Output.LogLevel)
	if err != nil {
		return "", fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}

	outdir, err := createRunDir(cfg, split.Source, time.Now())
	if err != nil {
		return "", err
	}
	logger, err := logging.New(logging.Config{
		Level:   level,
		LogFile: filepath.Join(outdir, logging.LogFileName),
		Service: "lrncrv",
		Quiet:   ux.GetPersonality().Level == ux.PersonalityMachine,
	})
	if err != nil {
		return outdir, err
	}
	defer logger.Close()

	logger.Info("data loaded",
		slog.String("dirpath", cfg.Data.Dir),
		slog.String("outdir", outdir),
		slog.Int("rows", data.Rows()),
		slog.Int("features", len(split.Features)),
		slog.Int("n_train", len(split.Train)),
		slog.Int("n_validation", len(split.Validation)),
		slog.String("scaler", string(scaler)),
	)
	if err := config.Write(filepath.Join(outdir, argsFileName), cfg); err != nil {
		return outdir, err
	}

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return outdir, fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(sctx); err != nil {
			logger.Warn("telemetry shutdown", slog.String("error", err.Error()))
		}
	}()
	if addr := telemetry.MetricsAddr(); addr != "" {
		logger.Info("serving metrics", slog.String("addr", addr))
	}

	opts := curve.Options{
		Logger: logger.Slog(),
		Sink:   storage.NewCSVSink(outdir),
	}
	if cfg.Output.Influx.URL != "" {
		influx, err := storage.NewInfluxSink(cfg.Output.Influx)
		if err != nil {
			return outdir, fmt.Errorf("connect influxdb: %w", err)
		}
		defer influx.Close()
		opts.Sink = storage.Tee(opts.Sink, influx)
		logger.Info("writing scores to influxdb",
			slog.String("url", cfg.Output.Influx.URL),
			slog.String("bucket", cfg.Output.Influx.Bucket),
		)
	}
	if cfg.Curve.Resume {
		scfg := storage.DefaultConfig(cfg.Output.CheckpointPath())
		scfg.Logger = logger.Slog()
		ckpt, err := storage.OpenCheckpoint(scfg)
		if err != nil {
			return outdir, fmt.Errorf("open checkpoint: %w", err)
		}
		defer ckpt.Close()
		opts.Checkpoint = ckpt
	}

	table, runErr := curve.NewEngine(opts).Generate(ctx, req)
	if table == nil {
		logger.Error("run rejected", slog.String("error", runErr.Error()))
		return outdir, runErr
	}

	var plots []string
	if cfg.Output.Plot && table.Summary().Succeeded > 0 {
		popts := plot.DefaultOptions(split.Source + " " + cfg.Model.Name)
		popts.LinearX = scale == curve.ScaleLinear
		popts.Train = cfg.Curve.ScoreTrain
		paths, err := plot.All(table, outdir, popts)
		if err != nil {
			logger.Warn("plotting failed", slog.String("error", err.Error()))
		}
		for _, p := range paths {
			plots = append(plots, filepath.Base(p))
		}
	}
	if err := writeRunRecord(outdir, table, plots, runErr); err != nil {
		logger.Error("run summary not written", slog.String("error", err.Error()))
		runErr = errors.Join(runErr, err)
	}

	ux.PrintRunReport(buildReport(table, outdir, runErr))
	if sum := table.Summary(); runErr == nil && runStatus(sum, nil) == "degraded" {
		return outdir, fmt.Errorf("%w: %d failed, %d skipped of %d shards",
			errRunDegraded, sum.Failed, sum.Skipped, table.Len())
	}
	return outdir, runErr
}

// buildReport collects the terminal summary, including each metric's value
// at the largest succeeded shard.
func buildReport(table *curve.ScoreTable, outdir string, runErr error) ux.RunReport {
	meta, sum := table.Meta(), table.Summary()
	r := ux.RunReport{
		RunID:     meta.RunID,
		Source:    meta.Source,
		Model:     meta.ModelName,
		OutDir:    outdir,
		Elapsed:   sum.Elapsed,
		Succeeded: sum.Succeeded,
		Failed:    sum.Failed,
		Skipped:   sum.Skipped,
		Resumed:   sum.Resumed,
		Err:       runErr,
	}
	for _, m := range table.Metrics() {
		sizes, values := table.Series(m)
		if n := len(sizes); n > 0 {
			r.Final = append(r.Final, ux.MetricPoint{Name: m, Size: sizes[n-1], Value: values[n-1]})
		}
	}
	return r
}

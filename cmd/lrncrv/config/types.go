// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the lrncrv run configuration.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/AleutianAI/learningcurve/services/curve/storage"
	"github.com/AleutianAI/learningcurve/services/curve/telemetry"
)

// OutDirEnv overrides the default output root.
const OutDirEnv = "LRNCRV_OUTDIR"

// Config is one learning-curve run, as read from YAML and overridden by
// command-line flags.
type Config struct {
	// Data selects the data directory, target and fold.
	Data DataConfig `yaml:"data"`

	// Model selects the preset and its hyperparameters.
	Model ModelConfig `yaml:"model"`

	// Curve controls the shard schedule and execution.
	Curve CurveConfig `yaml:"curve"`

	// Output controls where results go.
	Output OutputConfig `yaml:"output"`

	// Telemetry configures trace and metric export.
	Telemetry telemetry.Config `yaml:"telemetry"`

	// Seed drives shard sampling and model initialization.
	Seed uint64 `yaml:"seed"`
}

type DataConfig struct {
	Dir          string   `yaml:"dirpath" validate:"required"`
	Target       string   `yaml:"target" validate:"oneof=AUC AUC1 IC50"`
	CellFeatures []string `yaml:"cell_features" validate:"dive,oneof=rna cnv clb"`
	DrugFeatures []string `yaml:"drug_features" validate:"dive,oneof=dsc fng dlb"`
	CVMethod     string   `yaml:"cv_method" validate:"oneof=simple group"`
	CVFolds      int      `yaml:"cv_folds" validate:"gte=2"`
	Fold         int      `yaml:"fold" validate:"gte=0,ltfield=CVFolds"`
	Scaler       string   `yaml:"scaler" validate:"oneof=stnd minmax rbst none"`
}

type ModelConfig struct {
	// Name is a preset such as lgb_reg or nn_cls.
	Name string `yaml:"name" validate:"required"`

	// NEstimators overrides the tree count of lgb_* and rf_* presets.
	NEstimators int `yaml:"n_estimators" validate:"gte=0"`

	// Neural network settings (nn_* presets).
	Epochs       int       `yaml:"epochs" validate:"gte=1"`
	BatchSize    int       `yaml:"batch_size" validate:"gte=1"`
	DropoutRate  float64   `yaml:"dr_rate" validate:"gte=0,lt=1"`
	Optimizer    string    `yaml:"opt" validate:"oneof=sgd adam"`
	LearningRate float64   `yaml:"learning_rate" validate:"gt=0"`
	Hidden       []int     `yaml:"hidden,omitempty" validate:"dive,gte=1"`
	CLR          CLRConfig `yaml:"clr"`
}

// CLRConfig configures the cyclical learning rate. An empty Mode disables it.
type CLRConfig struct {
	Mode   string  `yaml:"mode" validate:"omitempty,oneof=trng1 trng2 exp"`
	BaseLR float64 `yaml:"base_lr" validate:"gt=0"`
	MaxLR  float64 `yaml:"max_lr" validate:"gtfield=BaseLR"`
	Gamma  float64 `yaml:"gamma" validate:"gt=0,lte=1"`
}

type CurveConfig struct {
	NShards       int           `yaml:"n_shards" validate:"gte=1"`
	Scale         string        `yaml:"scale" validate:"oneof=log10 log linear"`
	MinSize       int           `yaml:"min_size" validate:"gte=0"`
	PreserveOrder bool          `yaml:"preserve_order"`
	ScoreTrain    bool          `yaml:"score_train"`
	NJobs         int           `yaml:"n_jobs" validate:"gte=1"`
	MaxDuration   time.Duration `yaml:"max_duration" validate:"gte=0"`

	// Resume loads and saves completed shards in the checkpoint store.
	Resume bool `yaml:"resume"`
}

type OutputConfig struct {
	// Root is the parent of generated run directories.
	Root string `yaml:"root"`

	// Dir, when set, is used as the run directory instead of a generated name.
	Dir string `yaml:"dir"`

	// CheckpointDir holds the BadgerDB checkpoint store. Empty means
	// <Root>/.checkpoint.
	CheckpointDir string `yaml:"checkpoint_dir"`

	// Plot writes one PNG per metric.
	Plot bool `yaml:"plot"`

	LogLevel    string `yaml:"log_level" validate:"oneof=debug info warn warning error"`
	Personality string `yaml:"personality" validate:"omitempty,oneof=full minimal machine"`

	// Influx additionally writes shard scores to InfluxDB when URL is set.
	Influx storage.InfluxConfig `yaml:"influx"`
}

// CheckpointPath resolves the checkpoint directory.
func (o OutputConfig) CheckpointPath() string {
	if o.CheckpointDir != "" {
		return o.CheckpointDir
	}
	return filepath.Join(o.Root, ".checkpoint")
}

// DefaultOutRoot returns $LRNCRV_OUTDIR or ./out/lrn_crv.
func DefaultOutRoot() string {
	if v := os.Getenv(OutDirEnv); v != "" {
		return v
	}
	return filepath.Join("out", "lrn_crv")
}

// DefaultConfig returns the defaults of the original driver: LightGBM-style
// boosting on rna and dsc features, AUC target, 5 folds, 5 log10 shards.
func DefaultConfig() Config {
	return Config{
		Data: DataConfig{
			Target:       "AUC",
			CellFeatures: []string{"rna"},
			DrugFeatures: []string{"dsc"},
			CVMethod:     "simple",
			CVFolds:      5,
			Scaler:       "stnd",
		},
		Model: ModelConfig{
			Name:         "lgb_reg",
			Epochs:       200,
			BatchSize:    32,
			DropoutRate:  0.2,
			Optimizer:    "sgd",
			LearningRate: 1e-3,
			CLR: CLRConfig{
				BaseLR: 1e-4,
				MaxLR:  1e-3,
				Gamma:  0.999994,
			},
		},
		Curve: CurveConfig{
			NShards: 5,
			Scale:   "log10",
			NJobs:   4,
		},
		Output: OutputConfig{
			Root:     DefaultOutRoot(),
			Plot:     true,
			LogLevel: "info",
			Influx:   storage.DefaultInfluxConfig(),
		},
		Telemetry: telemetry.DefaultConfig(),
		Seed:      42,
	}
}

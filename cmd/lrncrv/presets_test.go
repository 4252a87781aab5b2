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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/learningcurve/cmd/lrncrv/config"
	"github.com/AleutianAI/learningcurve/services/curve"
	"github.com/AleutianAI/learningcurve/services/curve/model"
)

func TestPresetNames(t *testing.T) {
	assert.Equal(t, []string{
		"knn_cls", "knn_reg",
		"lgb_cls", "lgb_reg",
		"logistic_cls",
		"nn_cls", "nn_reg",
		"rf_cls", "rf_reg",
		"ridge_reg",
	}, PresetNames())
}

func TestModelConfig_AllPresetsValidate(t *testing.T) {
	for _, name := range PresetNames() {
		t.Run(name, func(t *testing.T) {
			m := config.DefaultConfig().Model
			m.Name = name

			cfg, err := modelConfig(m, 2)
			require.NoError(t, err)
			assert.NoError(t, cfg.Validate())

			want := model.MLTypeRegression
			if strings.HasSuffix(name, "_cls") {
				want = model.MLTypeClassification
			}
			assert.Equal(t, want, cfg.MLType)
		})
	}
}

func TestModelConfig_Neural(t *testing.T) {
	m := config.DefaultConfig().Model
	m.Name = "nn_reg"
	m.Optimizer = "adam"
	m.Epochs = 7
	m.Hidden = []int{16}
	m.CLR.Mode = "exp"

	cfg, err := modelConfig(m, 1)
	require.NoError(t, err)
	assert.Equal(t, model.FamilyNeural, cfg.Family)
	require.NotNil(t, cfg.Neural)
	assert.Equal(t, "adam", cfg.Neural.Optimizer)
	assert.Equal(t, 7, cfg.Neural.Epochs)
	assert.Equal(t, 32, cfg.Neural.BatchSize)
	assert.Equal(t, []int{16}, cfg.Neural.Hidden)
	require.NotNil(t, cfg.Neural.CLR)
	assert.Equal(t, "exp", cfg.Neural.CLR.Mode)
	assert.Equal(t, 1e-4, cfg.Neural.CLR.BaseLR)
	assert.Equal(t, 1e-3, cfg.Neural.CLR.MaxLR)
	assert.Equal(t, 0.999994, cfg.Neural.CLR.Gamma)

	// hidden sizes are copied, not aliased
	m.Hidden[0] = 99
	assert.Equal(t, []int{16}, cfg.Neural.Hidden)
}

func TestModelConfig_NeuralWithoutCLR(t *testing.T) {
	m := config.DefaultConfig().Model
	m.Name = "nn_cls"

	cfg, err := modelConfig(m, 1)
	require.NoError(t, err)
	require.NotNil(t, cfg.Neural)
	assert.Nil(t, cfg.Neural.CLR)
	assert.NotEmpty(t, cfg.Neural.Hidden)
}

func TestModelConfig_Trees(t *testing.T) {
	m := config.DefaultConfig().Model
	m.Name = "rf_cls"
	m.NEstimators = 11

	cfg, err := modelConfig(m, 3)
	require.NoError(t, err)
	require.NotNil(t, cfg.Tree)
	assert.Equal(t, model.MethodRandomForest, cfg.Tree.Method)
	assert.Equal(t, 11, cfg.Tree.NEstimators)
	assert.Equal(t, 3, cfg.Tree.NJobs)

	m.Name = "lgb_reg"
	m.NEstimators = 0
	cfg, err = modelConfig(m, 1)
	require.NoError(t, err)
	assert.Equal(t, model.MethodGBDT, cfg.Tree.Method)
	assert.Equal(t, model.DefaultTreeParams().NEstimators, cfg.Tree.NEstimators)
}

func TestModelConfig_Unknown(t *testing.T) {
	for _, name := range []string{"", "svm_reg", "lgb", "lgb_multi", "ridge_cls", "logistic_reg", "_reg"} {
		m := config.DefaultConfig().Model
		m.Name = name
		_, err := modelConfig(m, 1)
		assert.ErrorIs(t, err, curve.ErrConfiguration, "model %q", name)
	}
}

func TestModelConfig_InvalidParams(t *testing.T) {
	m := config.DefaultConfig().Model
	m.Name = "nn_reg"
	m.Epochs = 0

	_, err := modelConfig(m, 1)
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestTreeJobs(t *testing.T) {
	assert.GreaterOrEqual(t, treeJobs(1), 1)
	assert.Equal(t, 1, treeJobs(1<<20))
	assert.Equal(t, treeJobs(1), treeJobs(0))
}

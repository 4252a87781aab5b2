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
	"fmt"
	"slices"
	"strings"

	"github.com/AleutianAI/learningcurve/cmd/lrncrv/config"
	"github.com/AleutianAI/learningcurve/services/curve"
	"github.com/AleutianAI/learningcurve/services/curve/model"
)

// presetFunc builds the family-specific part of a model configuration.
type presetFunc func(m config.ModelConfig, nJobs int) model.Config

// presets maps a base name (without _reg/_cls) to its builder.
var presets = map[string]presetFunc{
	"lgb": func(m config.ModelConfig, nJobs int) model.Config {
		p := model.DefaultTreeParams()
		if m.NEstimators > 0 {
			p.NEstimators = m.NEstimators
		}
		p.NJobs = nJobs
		return model.Config{Family: model.FamilyTree, Tree: &p}
	},
	"rf": func(m config.ModelConfig, nJobs int) model.Config {
		p := model.DefaultForestParams()
		if m.NEstimators > 0 {
			p.NEstimators = m.NEstimators
		}
		p.NJobs = nJobs
		return model.Config{Family: model.FamilyTree, Tree: &p}
	},
	"nn": func(m config.ModelConfig, _ int) model.Config {
		p := model.DefaultNeuralParams()
		p.Epochs = m.Epochs
		p.BatchSize = m.BatchSize
		p.DropoutRate = m.DropoutRate
		p.Optimizer = m.Optimizer
		p.LearningRate = m.LearningRate
		if len(m.Hidden) > 0 {
			p.Hidden = slices.Clone(m.Hidden)
		}
		if m.CLR.Mode != "" {
			p.CLR = &model.CLRParams{
				Mode:   m.CLR.Mode,
				BaseLR: m.CLR.BaseLR,
				MaxLR:  m.CLR.MaxLR,
				Gamma:  m.CLR.Gamma,
			}
		}
		return model.Config{Family: model.FamilyNeural, Neural: &p}
	},
	"ridge":    estimatorPreset("ridge"),
	"logistic": estimatorPreset("logistic"),
	"knn":      estimatorPreset("knn"),
}

// presetTasks restricts presets that only make sense for one task kind.
var presetTasks = map[string]model.MLType{
	"ridge":    model.MLTypeRegression,
	"logistic": model.MLTypeClassification,
}

func estimatorPreset(name string) presetFunc {
	return func(config.ModelConfig, int) model.Config {
		p := model.DefaultEstimatorParams(name)
		return model.Config{Family: model.FamilyEstimator, Estimator: &p}
	}
}

// PresetNames lists every accepted --model value, sorted.
func PresetNames() []string {
	var names []string
	for base := range presets {
		for _, t := range []model.MLType{model.MLTypeRegression, model.MLTypeClassification} {
			if only, ok := presetTasks[base]; ok && only != t {
				continue
			}
			names = append(names, base+"_"+string(t))
		}
	}
	slices.Sort(names)
	return names
}

// splitPreset returns the base name and task kind of a preset name.
func splitPreset(name string) (string, model.MLType, bool) {
	i := strings.LastIndexByte(name, '_')
	if i <= 0 {
		return "", "", false
	}
	t, err := model.ParseMLType(name[i+1:])
	if err != nil {
		return "", "", false
	}
	return name[:i], t, true
}

// modelConfig resolves a preset into a validated model configuration.
//
// Outputs:
//
//	model.Config - The configuration with MLType taken from the name suffix.
//	error - Wraps curve.ErrConfiguration for an unknown preset.
func modelConfig(m config.ModelConfig, nJobs int) (model.Config, error) {
	base, mlType, ok := splitPreset(m.Name)
	build, known := presets[base]
	if only, restricted := presetTasks[base]; restricted && only != mlType {
		known = false
	}
	if !ok || !known {
		return model.Config{}, fmt.Errorf("%w: unknown model %q (want one of %s)",
			curve.ErrConfiguration, m.Name, strings.Join(PresetNames(), ", "))
	}
	cfg := build(m, nJobs)
	cfg.MLType = mlType
	if err := cfg.Validate(); err != nil {
		return model.Config{}, err
	}
	return cfg, nil
}

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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/learningcurve/cmd/lrncrv/config"
	"github.com/AleutianAI/learningcurve/services/curve"
)

// Files written into a run directory besides the score table and the log.
const (
	argsFileName    = "args.yaml"
	summaryFileName = "run_summary.yaml"
)

// runDirName names a run directory:
//
//	<src>.<model>[.<opt>][.<clr>].cvf<k>.<features...>.<target>_<timestamp>
//
// The optimizer only appears for nn_* models.
func runDirName(cfg config.Config, src string, now time.Time) string {
	parts := []string{src, cfg.Model.Name}
	if strings.HasPrefix(cfg.Model.Name, "nn") {
		parts = append(parts, cfg.Model.Optimizer)
	}
	if cfg.Model.CLR.Mode != "" {
		parts = append(parts, cfg.Model.CLR.Mode)
	}
	parts = append(parts, fmt.Sprintf("cvf%d", cfg.Data.CVFolds))
	parts = append(parts, cfg.Data.CellFeatures...)
	parts = append(parts, cfg.Data.DrugFeatures...)
	parts = append(parts, cfg.Data.Target)

	stamp := fmt.Sprintf("%d-%d-%d_h%d-m%d", now.Year(), int(now.Month()), now.Day(), now.Hour(), now.Minute())
	return strings.Join(parts, ".") + "_" + stamp
}

// createRunDir creates the run directory. An explicit Output.Dir is used
// as is and may already exist; a generated name that collides gets a
// numeric suffix.
func createRunDir(cfg config.Config, src string, now time.Time) (string, error) {
	if cfg.Output.Dir != "" {
		if err := os.MkdirAll(cfg.Output.Dir, 0750); err != nil {
			return "", fmt.Errorf("create output directory: %w", err)
		}
		return cfg.Output.Dir, nil
	}
	if err := os.MkdirAll(cfg.Output.Root, 0750); err != nil {
		return "", fmt.Errorf("create output root: %w", err)
	}
	base := filepath.Join(cfg.Output.Root, runDirName(cfg, src, now))
	dir := base
	for i := 2; ; i++ {
		err := os.Mkdir(dir, 0750)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("create output directory: %w", err)
		}
		dir = fmt.Sprintf("%s_%d", base, i)
	}
}

// runRecord is the run_summary.yaml document.
type runRecord struct {
	Meta    curve.RunMeta    `yaml:"meta"`
	Summary curve.RunSummary `yaml:"summary"`
	Status  string           `yaml:"status"`
	Error   string           `yaml:"error,omitempty"`
	Plots   []string         `yaml:"plots,omitempty"`
}

// runStatus classifies a finished run: ok, degraded (some shards failed
// or were skipped), or failed.
func runStatus(s curve.RunSummary, err error) string {
	switch {
	case err != nil:
		return "failed"
	case s.Failed > 0 || s.Skipped > 0:
		return "degraded"
	default:
		return "ok"
	}
}

func writeRunRecord(dir string, table *curve.ScoreTable, plots []string, runErr error) error {
	rec := runRecord{
		Meta:    table.Meta(),
		Summary: table.Summary(),
		Status:  runStatus(table.Summary(), runErr),
		Plots:   plots,
	}
	if runErr != nil {
		rec.Error = runErr.Error()
	}
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, summaryFileName), data, 0640); err != nil {
		return fmt.Errorf("write run summary: %w", err)
	}
	return nil
}

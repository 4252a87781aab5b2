// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/AleutianAI/learningcurve/services/curve"
)

// ScoresFileName is the conventional name of the score table file.
const ScoresFileName = "lrn_crv_scores.csv"

// CSVSink rewrites the score table to a CSV file after every shard.
//
// Description:
//
//	Each Write goes to a temporary file in the same directory which is then
//	renamed over Path, so readers never see a partially written table.
//
// Thread Safety: Write is called only by the engine's collector goroutine.
type CSVSink struct {
	Path string
}

// NewCSVSink returns a sink writing to dir/lrn_crv_scores.csv.
func NewCSVSink(dir string) *CSVSink {
	return &CSVSink{Path: filepath.Join(dir, ScoresFileName)}
}

// Write replaces the file with the current table.
func (s *CSVSink) Write(ctx context.Context, table *curve.ScoreTable) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create output directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".scores-*.csv")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := table.WriteCSV(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, s.Path); err != nil {
		return fmt.Errorf("rename to %s: %w", s.Path, err)
	}
	return nil
}

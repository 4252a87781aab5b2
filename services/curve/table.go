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
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/learningcurve/services/curve/model"
)

// Fixed leading columns of the flat table.
const (
	ColShardSize = "shard_size"
	ColDuration  = "duration_sec"
	ColStatus    = "status"
	ColFailed    = "failed"
	ColError     = "error"

	// TrainPrefix prefixes training-shard metric columns.
	TrainPrefix = "train_"
)

// ScoreTable holds one result per shard size, ordered by size.
//
// Description:
//
//	Rows are inserted in size order regardless of arrival order. After
//	Finalize the table is read-only.
//
// Thread Safety:
//
//	Not safe for concurrent mutation. During a run the engine's collector
//	goroutine is the only writer; after Finalize concurrent reads are safe.
type ScoreTable struct {
	meta       RunMeta
	metrics    []string
	scoreTrain bool
	rows       []ShardResult
	resumed    int
	finalized  bool
}

// NewScoreTable creates an empty table for the run. scoreTrain adds the
// train_ metric columns.
func NewScoreTable(meta RunMeta, scoreTrain bool) *ScoreTable {
	return &ScoreTable{
		meta:       meta,
		metrics:    model.MetricNames(meta.MLType),
		scoreTrain: scoreTrain,
	}
}

// Meta returns the run metadata.
func (t *ScoreTable) Meta() RunMeta { return t.meta }

// Metrics returns the metric column names in reporting order.
func (t *ScoreTable) Metrics() []string { return append([]string(nil), t.metrics...) }

// Add inserts a result at its size position.
//
// Outputs:
//
//	error - ErrTableFinalized after Finalize, ErrDuplicateShard if the size
//	  is already present.
func (t *ScoreTable) Add(r ShardResult) error {
	if t.finalized {
		return ErrTableFinalized
	}
	i := sort.Search(len(t.rows), func(i int) bool { return t.rows[i].Size >= r.Size })
	if i < len(t.rows) && t.rows[i].Size == r.Size {
		return fmt.Errorf("%w: %d", ErrDuplicateShard, r.Size)
	}
	t.rows = append(t.rows, ShardResult{})
	copy(t.rows[i+1:], t.rows[i:])
	t.rows[i] = r
	return nil
}

// addResumed inserts a result restored from a checkpoint.
func (t *ScoreTable) addResumed(r ShardResult) error {
	if err := t.Add(r); err != nil {
		return err
	}
	t.resumed++
	return nil
}

// Lookup returns the result for size.
func (t *ScoreTable) Lookup(size int) (ShardResult, bool) {
	i := sort.Search(len(t.rows), func(i int) bool { return t.rows[i].Size >= size })
	if i < len(t.rows) && t.rows[i].Size == size {
		return t.rows[i], true
	}
	return ShardResult{}, false
}

// Rows returns a copy of the results in ascending size order.
func (t *ScoreTable) Rows() []ShardResult {
	return append([]ShardResult(nil), t.rows...)
}

// Len returns the number of rows.
func (t *ScoreTable) Len() int { return len(t.rows) }

// Finalize stamps the finish time and makes the table read-only.
func (t *ScoreTable) Finalize(finishedAt time.Time) {
	if t.finalized {
		return
	}
	t.meta.FinishedAt = finishedAt
	t.finalized = true
}

// Finalized reports whether Finalize was called.
func (t *ScoreTable) Finalized() bool { return t.finalized }

// Summary counts the outcomes.
func (t *ScoreTable) Summary() RunSummary {
	var s RunSummary
	for _, r := range t.rows {
		switch r.Status {
		case StatusOK:
			s.Succeeded++
		case StatusFailed:
			s.Failed++
		case StatusSkipped:
			s.Skipped++
		}
	}
	s.Resumed = t.resumed
	if !t.meta.FinishedAt.IsZero() {
		s.Elapsed = t.meta.FinishedAt.Sub(t.meta.StartedAt)
	}
	return s
}

// Series returns the sizes and values of one metric over the succeeded
// rows. A train_ prefix selects training-shard scores.
func (t *ScoreTable) Series(metric string) (sizes []int, values []float64) {
	for _, r := range t.rows {
		if !r.Succeeded() {
			continue
		}
		v, ok := r.metric(metric)
		if !ok {
			continue
		}
		sizes = append(sizes, r.Size)
		values = append(values, v)
	}
	return sizes, values
}

func (r ShardResult) metric(name string) (float64, bool) {
	if base, ok := strings.CutPrefix(name, TrainPrefix); ok {
		if v, ok := r.TrainScores[base]; ok {
			return v, true
		}
	}
	v, ok := r.Scores[name]
	return v, ok
}

// Header returns the flat column names.
func (t *ScoreTable) Header() []string {
	h := []string{ColShardSize, ColDuration, ColStatus, ColFailed, ColError}
	h = append(h, t.metrics...)
	if t.scoreTrain {
		for _, m := range t.metrics {
			h = append(h, TrainPrefix+m)
		}
	}
	return h
}

// Records returns one string record per row, aligned with Header. Missing
// scores are empty fields.
func (t *ScoreTable) Records() [][]string {
	out := make([][]string, 0, len(t.rows))
	for _, r := range t.rows {
		rec := []string{
			strconv.Itoa(r.Size),
			strconv.FormatFloat(r.Duration.Seconds(), 'f', 3, 64),
			string(r.Status),
			strconv.FormatBool(r.Status == StatusFailed),
			r.Error,
		}
		rec = appendScores(rec, t.metrics, r.Scores)
		if t.scoreTrain {
			rec = appendScores(rec, t.metrics, r.TrainScores)
		}
		out = append(out, rec)
	}
	return out
}

func appendScores(rec []string, metrics []string, scores model.Scores) []string {
	for _, m := range metrics {
		v, ok := scores[m]
		if !ok {
			rec = append(rec, "")
			continue
		}
		rec = append(rec, strconv.FormatFloat(v, 'g', -1, 64))
	}
	return rec
}

// WriteCSV writes the header and all rows.
func (t *ScoreTable) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header()); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if err := cw.WriteAll(t.Records()); err != nil {
		return fmt.Errorf("writing rows: %w", err)
	}
	return nil
}

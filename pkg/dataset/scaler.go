// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package dataset

import (
	"fmt"
	"slices"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ErrUnknownScaler is returned by ParseScaler for unrecognized names.
var ErrUnknownScaler = fmt.Errorf("unknown scaler")

// Scaler names a per-column feature normalization.
type Scaler string

const (
	// ScalerNone leaves features unchanged.
	ScalerNone Scaler = "none"
	// ScalerStandard centers to zero mean and unit population variance.
	ScalerStandard Scaler = "stnd"
	// ScalerMinMax maps each column onto [0, 1].
	ScalerMinMax Scaler = "minmax"
	// ScalerRobust centers on the median and divides by the interquartile range.
	ScalerRobust Scaler = "rbst"
)

// ParseScaler validates a scaler name. An empty name means ScalerNone.
func ParseScaler(s string) (Scaler, error) {
	switch sc := Scaler(strings.ToLower(strings.TrimSpace(s))); sc {
	case "":
		return ScalerNone, nil
	case ScalerNone, ScalerStandard, ScalerMinMax, ScalerRobust:
		return sc, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownScaler, s)
	}
}

// columnStats returns per-column (center, scale) for the scaler.
func (s Scaler) columnStats(col []float64) (center, scale float64) {
	switch s {
	case ScalerStandard:
		return stat.PopMeanStdDev(col, nil)
	case ScalerMinMax:
		lo, hi := floats.Min(col), floats.Max(col)
		return lo, hi - lo
	case ScalerRobust:
		sorted := slices.Clone(col)
		slices.Sort(sorted)
		q1 := stat.Quantile(0.25, stat.Empirical, sorted, nil)
		q3 := stat.Quantile(0.75, stat.Empirical, sorted, nil)
		return stat.Quantile(0.5, stat.Empirical, sorted, nil), q3 - q1
	default:
		return 0, 1
	}
}

// FitTransform scales every column of X in place.
//
// Description:
//
//	Statistics come from the full matrix, before any split, matching how
//	the data directory's folds were produced. Constant columns (zero
//	scale) are only centered.
//
// Outputs:
//
//	error - Wraps ErrUnknownScaler for an invalid scaler.
func (s Scaler) FitTransform(X *mat.Dense) error {
	if _, err := ParseScaler(string(s)); err != nil {
		return err
	}
	if s == ScalerNone || X == nil || X.IsEmpty() {
		return nil
	}
	rows, cols := X.Dims()
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, X)
		center, scale := s.columnStats(col)
		if scale == 0 {
			scale = 1
		}
		floats.AddConst(-center, col)
		floats.Scale(1/scale, col)
		X.SetCol(j, col)
	}
	return nil
}

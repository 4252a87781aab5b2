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
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/parquet-go/parquet-go"
)

// rowBatch is the number of rows read from a row group at a time.
const rowBatch = 256

// parquetColumns reads the top-level columns of a parquet file whose names
// satisfy keep, in schema order. Every selected column must be numeric and
// every value non-null and finite.
func parquetColumns(path string, keep func(name string) bool) ([]string, [][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", ErrMissingFile, path)
		}
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, nil, fmt.Errorf("stat %s: %w", path, err)
	}
	pf, err := parquet.OpenFile(f, st.Size())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}

	// slot maps a leaf column index to its position in the output.
	slot := map[int]int{}
	var names []string
	for i, p := range pf.Schema().Columns() {
		if len(p) != 1 || !keep(p[0]) {
			continue
		}
		slot[i] = len(names)
		names = append(names, p[0])
	}
	if len(names) == 0 {
		return nil, nil, nil
	}

	cols := make([][]float64, len(names))
	for i := range cols {
		cols[i] = make([]float64, 0, pf.NumRows())
	}
	buf := make([]parquet.Row, rowBatch)
	line := 0
	for _, rg := range pf.RowGroups() {
		rows := rg.Rows()
		for {
			n, err := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				line++
				for _, v := range row {
					s, ok := slot[v.Column()]
					if !ok {
						continue
					}
					x, verr := parquetFloat(v)
					if verr != nil {
						rows.Close()
						return nil, nil, fmt.Errorf("%w: %s row %d column %q: %v", ErrMalformed, path, line, names[s], verr)
					}
					cols[s] = append(cols[s], x)
				}
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				rows.Close()
				return nil, nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
			}
		}
		if err := rows.Close(); err != nil {
			return nil, nil, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
		}
	}
	for s, c := range cols {
		if len(c) != line {
			return nil, nil, fmt.Errorf("%w: %s column %q has %d values for %d rows", ErrMalformed, path, names[s], len(c), line)
		}
	}
	return names, cols, nil
}

var errNotNumeric = errors.New("value is not numeric")

func parquetFloat(v parquet.Value) (float64, error) {
	if v.IsNull() {
		return 0, errNonFinite
	}
	var x float64
	switch v.Kind() {
	case parquet.Double:
		x = v.Double()
	case parquet.Float:
		x = float64(v.Float())
	case parquet.Int32:
		x = float64(v.Int32())
	case parquet.Int64:
		x = float64(v.Int64())
	case parquet.Boolean:
		if v.Boolean() {
			x = 1
		}
	default:
		return 0, errNotNumeric
	}
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, errNonFinite
	}
	return x, nil
}

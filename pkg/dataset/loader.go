// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package dataset loads drug-response data splits from disk and scales
// their feature matrices.
//
// A data directory holds:
//
//	xdata.parquet        feature matrix, column names = feature names
//	meta.parquet         per-row metadata including the target columns
//	<k>fold_tr_id.csv    training row ids, one fold per column
//	<k>fold_vl_id.csv    validation row ids, one fold per column
//
// xdata.csv and meta.csv (header row first) are read when the parquet
// files are absent.
//
// Feature columns are named <entity>_<type>.<name>, e.g. cell_rna.TP53 or
// drug_dsc.MW, and are selected by type prefix.
package dataset

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// File names inside a data directory.
const (
	FeaturesFile        = "xdata.csv"
	MetaFile            = "meta.csv"
	FeaturesParquetFile = "xdata.parquet"
	MetaParquetFile     = "meta.parquet"
)

var (
	// ErrMissingFile indicates a required file is absent.
	ErrMissingFile = errors.New("missing data file")

	// ErrMalformed indicates a file that cannot be parsed.
	ErrMalformed = errors.New("malformed data file")

	// ErrNoFeatures indicates the feature selection matched no columns.
	ErrNoFeatures = errors.New("no features selected")

	// ErrUnknownTarget indicates the target column is absent from meta.csv.
	ErrUnknownTarget = errors.New("unknown target")

	// ErrUnknownFold indicates the fold column is absent from a split file.
	ErrUnknownFold = errors.New("unknown fold")
)

// Options selects what to load from a data directory.
type Options struct {
	// Dir is the data directory.
	Dir string
	// Target is the metadata column used as the response (AUC, AUC1, IC50).
	Target string
	// CellFeatures are cell-line feature types (rna, cnv, clb).
	CellFeatures []string
	// DrugFeatures are drug feature types (dsc, fng, dlb).
	DrugFeatures []string
	// CVFolds selects the <k>fold_*_id.csv split files.
	CVFolds int
	// Fold is the column of the split files to use.
	Fold int
}

// Prefixes returns the column prefixes selected by the options.
func (o Options) Prefixes() []string {
	out := make([]string, 0, len(o.CellFeatures)+len(o.DrugFeatures))
	for _, f := range o.CellFeatures {
		out = append(out, "cell_"+f+".")
	}
	for _, f := range o.DrugFeatures {
		out = append(out, "drug_"+f+".")
	}
	return out
}

// Split is a loaded, unscaled dataset with one train/validation fold.
type Split struct {
	// Source is the data source name, e.g. GDSC.
	Source     string
	Features   []string
	X          *mat.Dense
	Y          []float64
	Train      []int
	Validation []int
}

// SourceName returns the first "_"-separated token of the directory name,
// so ".../GDSC_cv_simple" yields "GDSC".
func SourceName(dir string) string {
	base := filepath.Base(filepath.Clean(dir))
	name, _, _ := strings.Cut(base, "_")
	return name
}

// Load reads the feature matrix, target and fold from opts.Dir.
//
// Description:
//
//	Each of the feature and metadata tables is read from its parquet file
//	when present and from its CSV file otherwise. Rows of the two tables
//	are aligned by position. Only columns
//	whose names start with one of opts.Prefixes() are kept, in file order.
//	Split files may have ragged columns; empty cells are skipped.
//
// Outputs:
//
//	*Split - The loaded data.
//	error - Wraps ErrMissingFile, ErrMalformed, ErrNoFeatures,
//	  ErrUnknownTarget or ErrUnknownFold.
func Load(opts Options) (*Split, error) {
	xpath, err := pickFile(opts.Dir, FeaturesParquetFile, FeaturesFile)
	if err != nil {
		return nil, err
	}
	features, X, err := readFeatures(xpath, opts.Prefixes())
	if err != nil {
		return nil, err
	}
	mpath, err := pickFile(opts.Dir, MetaParquetFile, MetaFile)
	if err != nil {
		return nil, err
	}
	y, err := readTarget(mpath, opts.Target)
	if err != nil {
		return nil, err
	}
	if rows, _ := X.Dims(); rows != len(y) {
		return nil, fmt.Errorf("%w: %s has %d rows but %s has %d", ErrMalformed,
			filepath.Base(xpath), rows, filepath.Base(mpath), len(y))
	}

	train, err := readFold(filepath.Join(opts.Dir, splitFile(opts.CVFolds, "tr")), opts.Fold)
	if err != nil {
		return nil, err
	}
	validation, err := readFold(filepath.Join(opts.Dir, splitFile(opts.CVFolds, "vl")), opts.Fold)
	if err != nil {
		return nil, err
	}

	return &Split{
		Source:     SourceName(opts.Dir),
		Features:   features,
		X:          X,
		Y:          y,
		Train:      train,
		Validation: validation,
	}, nil
}

// pickFile returns dir/parquetName if it exists and dir/csvName otherwise.
func pickFile(dir, parquetName, csvName string) (string, error) {
	path := filepath.Join(dir, parquetName)
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return path, nil
	case errors.Is(err, os.ErrNotExist):
		return filepath.Join(dir, csvName), nil
	default:
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
}

func isParquet(path string) bool {
	return strings.HasSuffix(path, ".parquet")
}

func splitFile(folds int, kind string) string {
	return fmt.Sprintf("%dfold_%s_id.csv", folds, kind)
}

// openCSV opens path and returns a reader positioned after the header.
func openCSV(path string) (*os.File, *csv.Reader, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, nil, fmt.Errorf("%w: %s", ErrMissingFile, path)
		}
		return nil, nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	r := csv.NewReader(bufio.NewReader(f))
	r.ReuseRecord = true
	header, err := r.Read()
	if err != nil {
		f.Close()
		return nil, nil, nil, fmt.Errorf("%w: %s: read header: %v", ErrMalformed, path, err)
	}
	return f, r, slices.Clone(header), nil
}

func readFeatures(path string, prefixes []string) ([]string, *mat.Dense, error) {
	if isParquet(path) {
		return readParquetFeatures(path, prefixes)
	}
	f, r, header, err := openCSV(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	var cols []int
	var names []string
	for i, name := range header {
		if hasAnyPrefix(name, prefixes) {
			cols = append(cols, i)
			names = append(names, name)
		}
	}
	if len(cols) == 0 {
		return nil, nil, fmt.Errorf("%w: prefixes %v in %s", ErrNoFeatures, prefixes, path)
	}

	var data []float64
	line := 1
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s line %d: %v", ErrMalformed, path, line, err)
		}
		for _, c := range cols {
			v, err := parseFloat(rec[c])
			if err != nil {
				return nil, nil, fmt.Errorf("%w: %s line %d column %q: %v", ErrMalformed, path, line, header[c], err)
			}
			data = append(data, v)
		}
	}
	rows := len(data) / len(cols)
	if rows == 0 {
		return nil, nil, fmt.Errorf("%w: %s has no rows", ErrMalformed, path)
	}
	return names, mat.NewDense(rows, len(cols), data), nil
}

func readParquetFeatures(path string, prefixes []string) ([]string, *mat.Dense, error) {
	names, cols, err := parquetColumns(path, func(name string) bool { return hasAnyPrefix(name, prefixes) })
	if err != nil {
		return nil, nil, err
	}
	if len(names) == 0 {
		return nil, nil, fmt.Errorf("%w: prefixes %v in %s", ErrNoFeatures, prefixes, path)
	}
	rows := len(cols[0])
	if rows == 0 {
		return nil, nil, fmt.Errorf("%w: %s has no rows", ErrMalformed, path)
	}
	X := mat.NewDense(rows, len(cols), nil)
	for j, c := range cols {
		X.SetCol(j, c)
	}
	return names, X, nil
}

func hasAnyPrefix(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func readTarget(path, target string) ([]float64, error) {
	if isParquet(path) {
		_, cols, err := parquetColumns(path, func(name string) bool { return name == target })
		if err != nil {
			return nil, err
		}
		if len(cols) == 0 {
			return nil, fmt.Errorf("%w: %q not in %s", ErrUnknownTarget, target, path)
		}
		return cols[0], nil
	}
	f, r, header, err := openCSV(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	col := slices.Index(header, target)
	if col < 0 {
		return nil, fmt.Errorf("%w: %q not in %s", ErrUnknownTarget, target, path)
	}

	var y []float64
	line := 1
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", ErrMalformed, path, line, err)
		}
		v, err := parseFloat(rec[col])
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", ErrMalformed, path, line, err)
		}
		y = append(y, v)
	}
	return y, nil
}

func readFold(path string, fold int) ([]int, error) {
	f, r, header, err := openCSV(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r.FieldsPerRecord = -1

	if fold < 0 || fold >= len(header) {
		return nil, fmt.Errorf("%w: fold %d, %s has %d", ErrUnknownFold, fold, path, len(header))
	}

	var ids []int
	line := 1
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("%w: %s line %d: %v", ErrMalformed, path, line, err)
		}
		if fold >= len(rec) {
			continue
		}
		cell := strings.TrimSpace(rec[fold])
		if cell == "" || strings.EqualFold(cell, "nan") {
			continue
		}
		// Ragged columns are written as floats, e.g. "12.0".
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil || v != math.Trunc(v) {
			return nil, fmt.Errorf("%w: %s line %d: id %q", ErrMalformed, path, line, cell)
		}
		ids = append(ids, int(v))
	}
	return ids, nil
}

var errNonFinite = errors.New("value is not finite")

// parseFloat rejects empty cells and NaN/Inf; models cannot train on them.
func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errNonFinite
	}
	return v, nil
}

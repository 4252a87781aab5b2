// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package plot renders learning curves as PNG images.
package plot

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"

	gplot "gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// ErrNoPoints indicates a metric with no succeeded shards to draw.
var ErrNoPoints = errors.New("no points to plot")

// trainPrefix marks training-shard metric series.
const trainPrefix = "train_"

// Source is the view of a score table the plotter needs.
type Source interface {
	Metrics() []string
	Series(metric string) (sizes []int, values []float64)
}

// Options controls figure appearance.
type Options struct {
	// Title prefixes each figure title, usually "<source> <model>".
	Title string
	// LinearX draws shard sizes on a linear axis instead of log10.
	LinearX bool
	// Train overlays the train_<metric> series when the source has it.
	Train  bool
	Width  vg.Length
	Height vg.Length
}

// DefaultOptions returns a 7x5 inch log-x figure.
func DefaultOptions(title string) Options {
	return Options{Title: title, Width: 7 * vg.Inch, Height: 5 * vg.Inch}
}

var (
	validationColor = color.RGBA{R: 20, G: 80, B: 200, A: 255}
	trainColor      = color.RGBA{R: 200, G: 30, B: 30, A: 255}
)

// FileName returns the image name for a metric.
func FileName(metric string) string {
	return "lrn_crv_" + metric + ".png"
}

// Metric saves one figure for metric to path.
//
// Outputs:
//
//	error - ErrNoPoints when the validation series is empty, otherwise any
//	  plotting or I/O error.
func Metric(src Source, metric, path string, opts Options) error {
	sizes, values := src.Series(metric)
	if len(sizes) == 0 {
		return fmt.Errorf("%w: %s", ErrNoPoints, metric)
	}

	p := gplot.New()
	p.Title.Text = strings.TrimSpace(opts.Title + " " + metric)
	p.X.Label.Text = "shard size"
	p.Y.Label.Text = metric
	if !opts.LinearX {
		p.X.Scale = gplot.LogScale{}
		p.X.Tick.Marker = gplot.LogTicks{Prec: -1}
	}
	p.Add(plotter.NewGrid())
	p.Legend.Top = true

	if err := addSeries(p, "validation", sizes, values, validationColor); err != nil {
		return err
	}
	if opts.Train {
		if ts, tv := src.Series(trainPrefix + metric); len(ts) > 0 {
			if err := addSeries(p, "train", ts, tv, trainColor); err != nil {
				return err
			}
		}
	}

	width, height := opts.Width, opts.Height
	if width == 0 || height == 0 {
		width, height = 7*vg.Inch, 5*vg.Inch
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("create plot directory: %w", err)
	}
	if err := p.Save(width, height, path); err != nil {
		return fmt.Errorf("save plot %s: %w", path, err)
	}
	return nil
}

func addSeries(p *gplot.Plot, name string, sizes []int, values []float64, c color.Color) error {
	pts := make(plotter.XYs, 0, len(sizes))
	for i := range sizes {
		if math.IsNaN(values[i]) || math.IsInf(values[i], 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(sizes[i]), Y: values[i]})
	}
	if len(pts) == 0 {
		return fmt.Errorf("%w: %s series has no finite values", ErrNoPoints, name)
	}
	line, scatter, err := plotter.NewLinePoints(pts)
	if err != nil {
		return fmt.Errorf("plot %s series: %w", name, err)
	}
	line.Color = c
	line.Width = vg.Points(1.5)
	scatter.Color = c
	scatter.Shape = draw.CircleGlyph{}
	scatter.Radius = vg.Points(3)
	p.Add(line, scatter)
	p.Legend.Add(name, line, scatter)
	return nil
}

// All saves one figure per metric into dir and returns the written paths.
// Metrics without points are skipped; other errors stop the loop.
func All(src Source, dir string, opts Options) ([]string, error) {
	var written []string
	for _, m := range src.Metrics() {
		path := filepath.Join(dir, FileName(m))
		err := Metric(src, m, path, opts)
		if errors.Is(err, ErrNoPoints) {
			continue
		}
		if err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

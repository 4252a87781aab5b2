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
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/AleutianAI/learningcurve/services/curve"
)

// InfluxMeasurement is the measurement every shard point is written to.
const InfluxMeasurement = "learning_curve"

// ErrInfluxURL is returned when an InfluxSink is created without a URL.
var ErrInfluxURL = errors.New("influxdb url is required")

// InfluxConfig locates the InfluxDB bucket for score points.
type InfluxConfig struct {
	URL    string `yaml:"url" validate:"omitempty,url"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
	// Token is read from INFLUXDB_TOKEN and never written to disk.
	Token string `yaml:"-"`
	// Timeout bounds each write request. 0 means 10s.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultInfluxConfig reads INFLUXDB_URL, INFLUXDB_TOKEN, INFLUXDB_ORG and
// INFLUXDB_BUCKET. An empty URL leaves the sink disabled.
func DefaultInfluxConfig() InfluxConfig {
	return InfluxConfig{
		URL:    os.Getenv("INFLUXDB_URL"),
		Token:  os.Getenv("INFLUXDB_TOKEN"),
		Org:    getEnvOr("INFLUXDB_ORG", "aleutian"),
		Bucket: getEnvOr("INFLUXDB_BUCKET", "learning-curves"),
	}
}

// InfluxSink writes one point per shard row to InfluxDB.
//
// Description:
//
//	Each Write sends only the rows not written before, so the engine's
//	write-after-every-shard pattern produces one point per shard. Points
//	are tagged with the run identity and shard size and timestamped with
//	the run's start time, which makes rewriting a row idempotent.
//
// Thread Safety: Write is called only by the engine's collector goroutine.
type InfluxSink struct {
	client  influxdb2.Client
	writer  api.WriteAPIBlocking
	written map[int]bool
}

// NewInfluxSink connects a blocking write API to cfg.Bucket.
func NewInfluxSink(cfg InfluxConfig) (*InfluxSink, error) {
	if cfg.URL == "" {
		return nil, ErrInfluxURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	opts := influxdb2.DefaultOptions().SetHTTPRequestTimeout(uint(timeout.Seconds()))
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)
	return &InfluxSink{
		client:  client,
		writer:  client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		written: make(map[int]bool),
	}, nil
}

// Write sends the rows added since the previous call.
func (s *InfluxSink) Write(ctx context.Context, table *curve.ScoreTable) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	meta := table.Meta()
	ts := meta.StartedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	var points []*write.Point
	var sizes []int
	for _, r := range table.Rows() {
		if s.written[r.Size] {
			continue
		}
		points = append(points, shardPoint(meta, r, ts))
		sizes = append(sizes, r.Size)
	}
	if len(points) == 0 {
		return nil
	}
	if err := s.writer.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("write %d points to influxdb: %w", len(points), err)
	}
	for _, size := range sizes {
		s.written[size] = true
	}
	return nil
}

// Close releases the client's HTTP resources.
func (s *InfluxSink) Close() {
	s.client.Close()
}

func shardPoint(meta curve.RunMeta, r curve.ShardResult, ts time.Time) *write.Point {
	p := influxdb2.NewPointWithMeasurement(InfluxMeasurement).
		AddTag("run_id", meta.RunID).
		AddTag("run_key", meta.RunKey).
		AddTag("source", meta.Source).
		AddTag("model", meta.ModelName).
		AddTag("mltype", string(meta.MLType)).
		AddTag("shard_size", strconv.Itoa(r.Size)).
		AddField("status", string(r.Status)).
		AddField("duration_sec", r.Duration.Seconds()).
		SetTime(ts)
	if r.Error != "" {
		p.AddField("error", r.Error)
	}
	for name, v := range r.Scores {
		p.AddField(name, v)
	}
	for name, v := range r.TrainScores {
		p.AddField(curve.TrainPrefix+name, v)
	}
	return p
}

// Tee returns a sink that writes to every sink in order. Every sink is
// tried; the errors are joined.
func Tee(sinks ...curve.Sink) curve.Sink {
	return teeSink(sinks)
}

type teeSink []curve.Sink

func (t teeSink) Write(ctx context.Context, table *curve.ScoreTable) error {
	var errs []error
	for _, s := range t {
		if err := s.Write(ctx, table); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

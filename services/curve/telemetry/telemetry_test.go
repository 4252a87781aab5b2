// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "")
	cfg := DefaultConfig()

	assert.Equal(t, "lrncrv", cfg.ServiceName)
	assert.Equal(t, ExporterNone, cfg.TraceExporter)
	assert.Equal(t, ExporterPrometheus, cfg.MetricExporter)
	assert.Empty(t, cfg.MetricsAddr)
}

func TestDefaultConfig_EnvOverride(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "stdout")
	assert.Equal(t, ExporterStdout, DefaultConfig().TraceExporter)
}

func TestInit_NilContext(t *testing.T) {
	_, err := Init(nil, Config{})
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestInit_UnknownExporter(t *testing.T) {
	_, err := Init(context.Background(), Config{TraceExporter: "zipkin"})
	assert.ErrorIs(t, err, ErrUnknownExporter)

	_, err = Init(context.Background(), Config{MetricExporter: "statsd"})
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func TestInit_FileExporterRequiresPath(t *testing.T) {
	_, err := Init(context.Background(), Config{TraceExporter: ExporterFile})
	assert.Error(t, err)
}

func TestInit_FileTraces(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces.json")
	shutdown, err := Init(context.Background(), Config{
		ServiceName:    "lrncrv-test",
		TraceExporter:  ExporterFile,
		TraceFile:      path,
		MetricExporter: ExporterNone,
	})
	require.NoError(t, err)

	_, span := otel.Tracer("telemetry.test").Start(context.Background(), "curve.test.span")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "curve.test.span")
}

func TestInit_MetricsEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{
		ServiceName:    "lrncrv-test",
		TraceExporter:  ExporterNone,
		MetricExporter: ExporterPrometheus,
		MetricsAddr:    "127.0.0.1:0",
	})
	require.NoError(t, err)

	addr := MetricsAddr()
	require.NotEmpty(t, addr)

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")

	health, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	defer health.Body.Close()
	hb, err := io.ReadAll(health.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, health.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(hb))

	missing, err := http.Get("http://" + addr + "/nope")
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)

	require.NoError(t, shutdown(context.Background()))
	assert.Empty(t, MetricsAddr())
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.level.String(); got != tt.want {
			t.Errorf("Level(%d).String() = %q, want %q", tt.level, got, tt.want)
		}
	}
}

func TestLevel_toSlogLevel(t *testing.T) {
	tests := []struct {
		level Level
		want  slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{Level(99), slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := tt.level.toSlogLevel(); got != tt.want {
			t.Errorf("Level(%d).toSlogLevel() = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{" Warn ", LevelWarn, false},
		{"error", LevelError, false},
		{"trace", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownLevel) {
					t.Fatalf("ParseLevel(%q) error = %v, want ErrUnknownLevel", tt.input, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLevel(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLevel_TextRoundTrip(t *testing.T) {
	text, err := LevelWarn.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	if string(text) != "warn" {
		t.Errorf("MarshalText = %q, want warn", text)
	}

	var l Level
	if err := l.UnmarshalText([]byte("debug")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if l != LevelDebug {
		t.Errorf("UnmarshalText = %v, want DEBUG", l)
	}
	if err := l.UnmarshalText([]byte("loud")); err == nil {
		t.Error("UnmarshalText accepted an unknown level")
	}
}

// =============================================================================
// Constructor Tests
// =============================================================================

func TestNew_DefaultConfig(t *testing.T) {
	logger, err := New(Config{Quiet: true})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer logger.Close()

	if logger.slog == nil {
		t.Error("logger.slog is nil")
	}
	if logger.Path() != "" {
		t.Errorf("Path() = %q, want empty without LogFile", logger.Path())
	}
}

func TestNew_ConsoleText(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Console: &buf, Service: "lrncrv"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	logger.Info("run started", "shards", 5)

	out := buf.String()
	for _, want := range []string{"run started", "shards=5", "service=lrncrv"} {
		if !strings.Contains(out, want) {
			t.Errorf("console output %q missing %q", out, want)
		}
	}
}

func TestNew_ConsoleJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Console: &buf, JSON: true})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	logger.Warn("shard failed", "shard_size", 128)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("console output is not JSON: %v", err)
	}
	if entry["msg"] != "shard failed" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["shard_size"] != float64(128) {
		t.Errorf("shard_size = %v", entry["shard_size"])
	}
}

func TestNew_WithLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", LogFileName)
	var console bytes.Buffer
	logger, err := New(Config{
		Level:   LevelDebug,
		LogFile: path,
		Console: &console,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if logger.Path() != path {
		t.Errorf("Path() = %q, want %q", logger.Path(), path)
	}

	logger.Debug("fit done", "shard_size", 64)
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(data), &entry); err != nil {
		t.Fatalf("log file line is not JSON: %v", err)
	}
	if entry["msg"] != "fit done" {
		t.Errorf("file msg = %v", entry["msg"])
	}
	if !strings.Contains(console.String(), "fit done") {
		t.Error("console did not receive the record")
	}
}

func TestNew_LogFileAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), LogFileName)
	for i := 0; i < 2; i++ {
		logger, err := New(Config{LogFile: path, Quiet: true})
		if err != nil {
			t.Fatalf("New() error: %v", err)
		}
		logger.Info("attempt", "n", i)
		if err := logger.Close(); err != nil {
			t.Fatalf("Close() error: %v", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 2 {
		t.Errorf("log file has %d lines, want 2", lines)
	}
}

func TestNew_LogFileUnwritable(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	_, err := New(Config{LogFile: filepath.Join(blocker, "sub", LogFileName), Quiet: true})
	if err == nil {
		t.Fatal("New() succeeded with a log directory under a regular file")
	}
}

func TestDefault(t *testing.T) {
	logger := Default()
	if logger == nil {
		t.Fatal("Default() returned nil")
	}
	if logger.config.Service != "lrncrv" {
		t.Errorf("Service = %q, want lrncrv", logger.config.Service)
	}
	if logger.config.Level != LevelInfo {
		t.Errorf("Level = %v, want INFO", logger.config.Level)
	}
}

// =============================================================================
// Logger Method Tests
// =============================================================================

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: LevelWarn, Console: &buf})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	logger.Debug("debug msg")
	logger.Info("info msg")
	logger.Warn("warn msg")
	logger.Error("error msg")

	out := buf.String()
	if strings.Contains(out, "debug msg") || strings.Contains(out, "info msg") {
		t.Errorf("records below Warn were written: %q", out)
	}
	if !strings.Contains(out, "warn msg") || !strings.Contains(out, "error msg") {
		t.Errorf("records at or above Warn were dropped: %q", out)
	}
}

func TestLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Console: &buf})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	child := logger.With("run_id", "abc")
	child.Info("child")
	logger.Info("parent")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if !strings.Contains(lines[0], "run_id=abc") {
		t.Errorf("child line missing attribute: %q", lines[0])
	}
	if strings.Contains(lines[1], "run_id") {
		t.Errorf("parent line gained child attribute: %q", lines[1])
	}
}

func TestLogger_With_SharesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), LogFileName)
	logger, err := New(Config{LogFile: path, Quiet: true})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	child := logger.With("k", "v")
	if child.file != logger.file {
		t.Error("With() did not share the file handle")
	}

	if err := child.Close(); err != nil {
		t.Fatalf("child Close() error: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() through parent error: %v", err)
	}
}

func TestLogger_Slog(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Console: &buf})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	logger.Slog().Info("via slog")
	if !strings.Contains(buf.String(), "via slog") {
		t.Error("Slog() logger did not write through the configured handler")
	}
}

func TestLogger_Close_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), LogFileName)
	logger, err := New(Config{LogFile: path, Quiet: true})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
}

func TestLogger_ConcurrentUse(t *testing.T) {
	path := filepath.Join(t.TempDir(), LogFileName)
	logger, err := New(Config{LogFile: path, Quiet: true})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			logger.With("worker", n).Info("shard done")
		}(i)
	}
	wg.Wait()
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if lines := strings.Count(string(data), "\n"); lines != 100 {
		t.Errorf("log file has %d lines, want 100", lines)
	}
}

// =============================================================================
// multiHandler Tests
// =============================================================================

func TestMultiHandler_Enabled(t *testing.T) {
	var buf bytes.Buffer
	h1 := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	h2 := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})
	mh := &multiHandler{handlers: []slog.Handler{h1, h2}}

	if !mh.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("Debug should be enabled")
	}

	only := &multiHandler{handlers: []slog.Handler{h2}}
	if only.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("Info should not be enabled")
	}
}

func TestMultiHandler_Handle_LevelFiltering(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	h1 := slog.NewTextHandler(&buf1, &slog.HandlerOptions{Level: slog.LevelDebug})
	h2 := slog.NewTextHandler(&buf2, &slog.HandlerOptions{Level: slog.LevelError})
	mh := &multiHandler{handlers: []slog.Handler{h1, h2}}

	record := slog.Record{Level: slog.LevelInfo, Message: "m"}
	if err := mh.Handle(context.Background(), record); err != nil {
		t.Fatalf("Handle() error: %v", err)
	}
	if buf1.Len() == 0 {
		t.Error("buf1 should have content")
	}
	if buf2.Len() != 0 {
		t.Error("buf2 should be empty")
	}
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error {
	return errors.New("disk full")
}

func TestMultiHandler_Handle_ContinuesAfterError(t *testing.T) {
	var buf bytes.Buffer
	good := slog.NewTextHandler(&buf, nil)
	bad := failingHandler{Handler: slog.NewTextHandler(&bytes.Buffer{}, nil)}
	mh := &multiHandler{handlers: []slog.Handler{bad, good}}

	err := mh.Handle(context.Background(), slog.Record{Level: slog.LevelInfo, Message: "m"})
	if err == nil {
		t.Error("Handle() should report the failing handler")
	}
	if buf.Len() == 0 {
		t.Error("healthy handler should still receive the record")
	}
}

func TestMultiHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	mh := &multiHandler{handlers: []slog.Handler{slog.NewTextHandler(&buf, nil)}}

	h := mh.WithAttrs([]slog.Attr{slog.String("key", "value")}).WithGroup("g")
	if _, ok := h.(*multiHandler); !ok {
		t.Fatal("WithAttrs/WithGroup should return *multiHandler")
	}
	slog.New(h).Info("m", "x", 1)
	out := buf.String()
	if !strings.Contains(out, "key=value") || !strings.Contains(out, "g.x=1") {
		t.Errorf("output %q missing attrs or group", out)
	}
}

// =============================================================================
// Helper Function Tests
// =============================================================================

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	tests := []struct {
		input string
		want  string
	}{
		{"~/runs/logfile.log", filepath.Join(home, "runs/logfile.log")},
		{"~", home},
		{"/var/log/x.log", "/var/log/x.log"},
		{"relative/x.log", "relative/x.log"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := expandPath(tt.input); got != tt.want {
			t.Errorf("expandPath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"
)

// Helper to capture stdout
func captureStdout(f func()) string {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	f()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

// Helper to capture stderr
func captureStderr(f func()) string {
	old := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	f()

	w.Close()
	os.Stderr = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

func withPersonality(t *testing.T, level PersonalityLevel) {
	t.Helper()
	old := GetPersonality()
	SetPersonalityLevel(level)
	t.Cleanup(func() { SetPersonality(old) })
}

func sampleReport() RunReport {
	return RunReport{
		RunID:     "abc123",
		Source:    "GDSC",
		Model:     "lgb_reg",
		OutDir:    "/tmp/out",
		Elapsed:   1500 * time.Millisecond,
		Succeeded: 8,
		Failed:    1,
		Skipped:   1,
		Resumed:   2,
		Final: []MetricPoint{
			{Name: "r2", Size: 1000, Value: 0.8123},
			{Name: "mae", Size: 1000, Value: 0.25},
		},
	}
}

// =============================================================================
// Icon.Render Tests
// =============================================================================

func TestIcon_Render(t *testing.T) {
	for _, icon := range []Icon{IconSuccess, IconWarning, IconError, IconPending, IconArrow} {
		if got := icon.Render(); !strings.Contains(got, string(icon)) {
			t.Errorf("Render(%q) = %q, missing icon", icon, got)
		}
	}
}

// =============================================================================
// Print Helper Tests
// =============================================================================

func TestTitle_MachineSilent(t *testing.T) {
	withPersonality(t, PersonalityMachine)
	if out := captureStdout(func() { Title("hello") }); out != "" {
		t.Errorf("Title printed %q in machine mode", out)
	}
}

func TestSuccess_Levels(t *testing.T) {
	withPersonality(t, PersonalityMachine)
	if out := captureStdout(func() { Success("done") }); out != "OK: done\n" {
		t.Errorf("machine Success = %q", out)
	}

	SetPersonalityLevel(PersonalityFull)
	out := captureStdout(func() { Success("done") })
	if !strings.Contains(out, "done") || !strings.Contains(out, string(IconSuccess)) {
		t.Errorf("full Success = %q", out)
	}
}

func TestWarningAndError_MachineUseStderr(t *testing.T) {
	withPersonality(t, PersonalityMachine)
	errOut := captureStderr(func() {
		Warning("slow shard")
		Error("broken")
	})
	if !strings.Contains(errOut, "WARN: slow shard") {
		t.Errorf("stderr missing warning: %q", errOut)
	}
	if !strings.Contains(errOut, "ERROR: broken") {
		t.Errorf("stderr missing error: %q", errOut)
	}
}

func TestInfo(t *testing.T) {
	withPersonality(t, PersonalityMachine)
	if out := captureStdout(func() { Info("plain") }); out != "plain\n" {
		t.Errorf("machine Info = %q", out)
	}
}

func TestBox_Machine(t *testing.T) {
	withPersonality(t, PersonalityMachine)
	if out := captureStdout(func() { Box("Title", "content") }); out != "Title: content\n" {
		t.Errorf("machine Box = %q", out)
	}
}

func TestBox_Full(t *testing.T) {
	withPersonality(t, PersonalityFull)
	out := captureStdout(func() { Box("Title", "content") })
	if !strings.Contains(out, "Title") || !strings.Contains(out, "content") {
		t.Errorf("full Box = %q", out)
	}
}

func TestSummary_Machine(t *testing.T) {
	withPersonality(t, PersonalityMachine)
	out := captureStdout(func() { Summary(3, 1, 2, 6) })
	want := "SUMMARY: succeeded=3 failed=1 skipped=2 total=6\n"
	if out != want {
		t.Errorf("Summary = %q, want %q", out, want)
	}
}

func TestProgressBar(t *testing.T) {
	withPersonality(t, PersonalityMachine)
	if got := ProgressBar(3, 10, 20); got != "3/10" {
		t.Errorf("machine ProgressBar = %q", got)
	}

	SetPersonalityLevel(PersonalityFull)
	if got := ProgressBar(5, 10, 20); !strings.Contains(got, "50%") {
		t.Errorf("full ProgressBar = %q, want 50%%", got)
	}
	if got := ProgressBar(0, 0, 20); !strings.Contains(got, "0%") {
		t.Errorf("ProgressBar with zero total = %q", got)
	}
}

// =============================================================================
// Run Report Tests
// =============================================================================

func TestRunReport_Total(t *testing.T) {
	if got := sampleReport().Total(); got != 10 {
		t.Errorf("Total() = %d, want 10", got)
	}
}

func TestRenderRunReport_Machine(t *testing.T) {
	withPersonality(t, PersonalityMachine)
	r := sampleReport()
	r.Err = errors.New("interrupted")

	out := RenderRunReport(r)
	for _, want := range []string{
		"run_id=abc123",
		"model=lgb_reg",
		"succeeded=8 failed=1 skipped=1 resumed=2",
		"metric=r2 shard_size=1000 value=0.8123",
		"metric=mae shard_size=1000 value=0.2500",
		`error="interrupted"`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("machine report missing %q:\n%s", want, out)
		}
	}
}

func TestRenderRunReport_Full(t *testing.T) {
	withPersonality(t, PersonalityFull)
	out := RenderRunReport(sampleReport())
	for _, want := range []string{"abc123", "GDSC", "lgb_reg", "8/10 shards", "1 failed", "1 skipped", "2 resumed", "r2", "0.8123"} {
		if !strings.Contains(out, want) {
			t.Errorf("full report missing %q:\n%s", want, out)
		}
	}
}

func TestRenderRunReport_CleanRunOmitsCounts(t *testing.T) {
	withPersonality(t, PersonalityFull)
	r := sampleReport()
	r.Failed, r.Skipped, r.Resumed = 0, 0, 0
	out := RenderRunReport(r)
	if strings.Contains(out, "failed") || strings.Contains(out, "skipped") {
		t.Errorf("clean report mentions failures:\n%s", out)
	}
}

func TestPrintRunReport(t *testing.T) {
	withPersonality(t, PersonalityMachine)
	out := captureStdout(func() { PrintRunReport(sampleReport()) })
	if !strings.HasPrefix(out, "run_id=abc123") {
		t.Errorf("PrintRunReport = %q", out)
	}
}

// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides terminal output styling for the lrncrv CLI.
package ux

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Color palette - deep ocean teals and arctic waters
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // highlights, success
	ColorTealPrimary = lipgloss.Color("#20B9B4") // main brand color
	ColorTealDeep    = lipgloss.Color("#16858E") // borders, accents
	ColorSlate       = lipgloss.Color("#2C4A54") // muted text, borders

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style

	Box        lipgloss.Style
	WarningBox lipgloss.Style
	ErrorBox   lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
	WarningBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// Title prints a styled title
func Title(text string) {
	if GetPersonality().Level == PersonalityMachine {
		return
	}
	fmt.Println(Styles.Title.Render(text))
}

// Success prints a success message with checkmark
func Success(text string) {
	switch GetPersonality().Level {
	case PersonalityMachine:
		fmt.Fprintf(os.Stdout, "OK: %s\n", text)
	case PersonalityMinimal:
		fmt.Printf("%s %s\n", IconSuccess.Render(), text)
	default:
		fmt.Printf("%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
	}
}

// Warning prints a warning message
func Warning(text string) {
	switch GetPersonality().Level {
	case PersonalityMachine:
		fmt.Fprintf(os.Stderr, "WARN: %s\n", text)
	case PersonalityMinimal:
		fmt.Printf("%s %s\n", IconWarning.Render(), text)
	default:
		fmt.Printf("%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
	}
}

// Error prints an error message
func Error(text string) {
	switch GetPersonality().Level {
	case PersonalityMachine:
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", text)
	case PersonalityMinimal:
		fmt.Printf("%s %s\n", IconError.Render(), text)
	default:
		fmt.Printf("%s %s\n", IconError.Render(), Styles.Error.Render(text))
	}
}

// Info prints an informational message
func Info(text string) {
	if GetPersonality().Level == PersonalityMachine {
		fmt.Println(text)
		return
	}
	fmt.Printf("%s %s\n", Styles.Muted.Render("│"), text)
}

// Box prints text in a rounded box
func Box(title, content string) {
	if GetPersonality().Level == PersonalityMachine {
		fmt.Printf("%s: %s\n", title, content)
		return
	}
	boxStyle := Styles.Box.Width(64)
	titleLine := Styles.Title.Render(title)
	fmt.Println(boxStyle.Render(titleLine + "\n" + content))
}

// WarningBox prints text in a warning-styled box
func WarningBox(title, content string) {
	if GetPersonality().Level == PersonalityMachine {
		fmt.Fprintf(os.Stderr, "WARN %s: %s\n", title, content)
		return
	}
	boxStyle := Styles.WarningBox.Width(64)
	titleLine := Styles.Warning.Bold(true).Render(title)
	fmt.Println(boxStyle.Render(titleLine + "\n" + content))
}

// Summary prints a summary line with shard outcome counts
func Summary(succeeded, failed, skipped, total int) {
	if GetPersonality().Level == PersonalityMachine {
		fmt.Printf("SUMMARY: succeeded=%d failed=%d skipped=%d total=%d\n", succeeded, failed, skipped, total)
		return
	}
	fmt.Printf("\n%s %s  %s %s  %s %s  %s %s\n",
		Styles.Success.Render(strconv.Itoa(succeeded)), Styles.Muted.Render("succeeded"),
		Styles.Error.Render(strconv.Itoa(failed)), Styles.Muted.Render("failed"),
		Styles.Warning.Render(strconv.Itoa(skipped)), Styles.Muted.Render("skipped"),
		Styles.Bold.Render(strconv.Itoa(total)), Styles.Muted.Render("total"),
	)
}

// ProgressBar renders a simple progress bar
func ProgressBar(current, total int, width int) string {
	if GetPersonality().Level == PersonalityMachine {
		return fmt.Sprintf("%d/%d", current, total)
	}
	pct := 0.0
	if total > 0 {
		pct = float64(current) / float64(total)
	}
	filled := int(pct * float64(width))
	empty := width - filled

	bar := Styles.Success.Render(strings.Repeat("█", max(filled, 0))) +
		Styles.Muted.Render(strings.Repeat("░", max(empty, 0)))

	return fmt.Sprintf("%s %3.0f%%", bar, pct*100)
}

// =============================================================================
// Run Report
// =============================================================================

// MetricPoint is a metric's value at the largest successful shard.
type MetricPoint struct {
	Name  string
	Size  int
	Value float64
}

// RunReport is what the CLI shows after a learning-curve run.
type RunReport struct {
	RunID     string
	Source    string
	Model     string
	OutDir    string
	Elapsed   time.Duration
	Succeeded int
	Failed    int
	Skipped   int
	Resumed   int
	Final     []MetricPoint
	Err       error
}

// Total returns the number of shards the report accounts for.
func (r RunReport) Total() int { return r.Succeeded + r.Failed + r.Skipped }

// RenderRunReport formats the report for the current personality.
func RenderRunReport(r RunReport) string {
	if GetPersonality().Level == PersonalityMachine {
		var b strings.Builder
		fmt.Fprintf(&b, "run_id=%s source=%s model=%s outdir=%s elapsed=%s succeeded=%d failed=%d skipped=%d resumed=%d\n",
			r.RunID, r.Source, r.Model, r.OutDir, r.Elapsed.Round(time.Millisecond),
			r.Succeeded, r.Failed, r.Skipped, r.Resumed)
		for _, m := range r.Final {
			fmt.Fprintf(&b, "metric=%s shard_size=%d value=%s\n", m.Name, m.Size, formatScore(m.Value))
		}
		if r.Err != nil {
			fmt.Fprintf(&b, "error=%q\n", r.Err.Error())
		}
		return b.String()
	}

	var lines []string
	lines = append(lines,
		fmt.Sprintf("%s %s", Styles.Muted.Render("source "), r.Source),
		fmt.Sprintf("%s %s", Styles.Muted.Render("model  "), r.Model),
		fmt.Sprintf("%s %s", Styles.Muted.Render("outdir "), r.OutDir),
		fmt.Sprintf("%s %s", Styles.Muted.Render("elapsed"), r.Elapsed.Round(time.Millisecond)),
		"",
		fmt.Sprintf("%s %s", ProgressBar(r.Succeeded, r.Total(), 30),
			Styles.Muted.Render(fmt.Sprintf("%d/%d shards", r.Succeeded, r.Total()))),
	)
	if r.Failed > 0 {
		lines = append(lines, fmt.Sprintf("%s %d failed", IconError.Render(), r.Failed))
	}
	if r.Skipped > 0 {
		lines = append(lines, fmt.Sprintf("%s %d skipped", IconWarning.Render(), r.Skipped))
	}
	if r.Resumed > 0 {
		lines = append(lines, fmt.Sprintf("%s %d resumed from checkpoint", IconArrow.Render(), r.Resumed))
	}
	if len(r.Final) > 0 {
		lines = append(lines, "", Styles.Subtitle.Render("scores at largest shard"))
		for _, m := range r.Final {
			lines = append(lines, fmt.Sprintf("  %-10s %s %s",
				m.Name, Styles.Highlight.Render(formatScore(m.Value)),
				Styles.Muted.Render(fmt.Sprintf("(n=%d)", m.Size))))
		}
	}
	if r.Err != nil {
		lines = append(lines, "", Styles.Error.Render(r.Err.Error()))
	}

	style := Styles.Box
	titleStyle := Styles.Title
	switch {
	case r.Succeeded == 0:
		style, titleStyle = Styles.ErrorBox, Styles.Error.Bold(true)
	case r.Failed > 0 || r.Skipped > 0 || r.Err != nil:
		style, titleStyle = Styles.WarningBox, Styles.Warning.Bold(true)
	}
	title := titleStyle.Render("Learning curve " + r.RunID)
	return style.Width(64).Render(title + "\n" + strings.Join(lines, "\n"))
}

// PrintRunReport writes the rendered report to stdout.
func PrintRunReport(r RunReport) {
	fmt.Print(RenderRunReport(r))
	if GetPersonality().Level != PersonalityMachine {
		fmt.Println()
	}
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

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
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Brand palette
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorInfo    = lipgloss.Color("#5DADE2")
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title     lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Info      lipgloss.Style
	Highlight lipgloss.Style

	Box        lipgloss.Style
	WarningBox lipgloss.Style
	Header     lipgloss.Style
	Cell       lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Info:      lipgloss.NewStyle().Foreground(ColorInfo),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
	WarningBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1),
	Header: lipgloss.NewStyle().Bold(true).Foreground(ColorTealPrimary).Padding(0, 1),
	Cell:   lipgloss.NewStyle().Padding(0, 1),
}

// Icon is a status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
	IconDrift   Icon = "▲"
	IconHealthy Icon = "●"
)

// Render returns the icon with its color.
func (i Icon) Render() string {
	switch i {
	case IconSuccess, IconHealthy:
		return Styles.Success.Render(string(i))
	case IconWarning, IconDrift:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// =============================================================================
// Output destinations
// =============================================================================

var (
	outMu  sync.RWMutex
	stdout io.Writer = os.Stdout
	stderr io.Writer = os.Stderr
)

// SetOutput redirects normal and error output. Nil leaves a stream
// unchanged. Returns a func restoring the previous writers.
func SetOutput(out, errOut io.Writer) (restore func()) {
	outMu.Lock()
	defer outMu.Unlock()
	prevOut, prevErr := stdout, stderr
	if out != nil {
		stdout = out
	}
	if errOut != nil {
		stderr = errOut
	}
	return func() {
		outMu.Lock()
		defer outMu.Unlock()
		stdout, stderr = prevOut, prevErr
	}
}

func out() io.Writer {
	outMu.RLock()
	defer outMu.RUnlock()
	return stdout
}

func errOut() io.Writer {
	outMu.RLock()
	defer outMu.RUnlock()
	return stderr
}

// =============================================================================
// Print helpers
// =============================================================================

// Title prints a styled title. Silent in machine mode.
func Title(text string) {
	if GetPersonality().Level == PersonalityMachine {
		return
	}
	fmt.Fprintln(out(), Styles.Title.Render(text))
}

// Success prints a message with a checkmark.
func Success(text string) {
	switch GetPersonality().Level {
	case PersonalityMachine:
		fmt.Fprintf(out(), "OK: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(out(), "%s %s\n", IconSuccess.Render(), text)
	default:
		fmt.Fprintf(out(), "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
	}
}

// Warning prints a warning. Machine mode writes to stderr.
func Warning(text string) {
	switch GetPersonality().Level {
	case PersonalityMachine:
		fmt.Fprintf(errOut(), "WARN: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(out(), "%s %s\n", IconWarning.Render(), text)
	default:
		fmt.Fprintf(out(), "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
	}
}

// Error prints an error. Always goes to stderr.
func Error(text string) {
	switch GetPersonality().Level {
	case PersonalityMachine:
		fmt.Fprintf(errOut(), "ERROR: %s\n", text)
	default:
		fmt.Fprintf(errOut(), "%s %s\n", IconError.Render(), Styles.Error.Render(text))
	}
}

// Info prints an informational line.
func Info(text string) {
	if GetPersonality().Level == PersonalityMachine {
		fmt.Fprintln(out(), text)
		return
	}
	fmt.Fprintf(out(), "%s %s\n", Styles.Muted.Render("│"), text)
}

// Muted prints secondary text. Silent in machine mode.
func Muted(text string) {
	if GetPersonality().Level == PersonalityMachine {
		return
	}
	fmt.Fprintln(out(), Styles.Muted.Render(text))
}

// Box prints content in a rounded box under a title.
func Box(title, content string) {
	if GetPersonality().Level != PersonalityFull {
		fmt.Fprintf(out(), "%s\n%s\n", title, content)
		return
	}
	fmt.Fprintln(out(), Styles.Box.Width(72).Render(Styles.Title.Render(title)+"\n"+content))
}

// WarningBox is Box with warning colors.
func WarningBox(title, content string) {
	if GetPersonality().Level != PersonalityFull {
		fmt.Fprintf(out(), "%s\n%s\n", title, content)
		return
	}
	fmt.Fprintln(out(), Styles.WarningBox.Width(72).Render(Styles.Warning.Bold(true).Render(title)+"\n"+content))
}

// KeyValues prints aligned "key: value" pairs. pairs alternates key and value.
func KeyValues(pairs ...string) {
	width := 0
	for i := 0; i+1 < len(pairs); i += 2 {
		width = max(width, len(pairs[i]))
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		if GetPersonality().Level == PersonalityMachine {
			fmt.Fprintf(out(), "%s\t%s\n", pairs[i], pairs[i+1])
			continue
		}
		key := fmt.Sprintf("%-*s", width, pairs[i])
		fmt.Fprintf(out(), "%s  %s\n", Styles.Muted.Render(key), pairs[i+1])
	}
}

// =============================================================================
// Domain renderers
// =============================================================================

// StatusBadge renders a source status such as HEALTHY or DRIFT_DETECTED.
func StatusBadge(status string) string {
	if GetPersonality().Level == PersonalityMachine {
		return status
	}
	switch status {
	case "HEALTHY":
		return IconHealthy.Render() + " " + Styles.Success.Render("HEALTHY")
	case "DRIFT_DETECTED":
		return IconDrift.Render() + " " + Styles.Warning.Bold(true).Render("DRIFT")
	default:
		return IconPending.Render() + " " + Styles.Muted.Render(status)
	}
}

// Table prints rows under headers. Machine mode prints tab-separated lines
// with the header first.
func Table(headers []string, rows [][]string) {
	if GetPersonality().Level == PersonalityMachine {
		fmt.Fprintln(out(), strings.Join(headers, "\t"))
		for _, r := range rows {
			fmt.Fprintln(out(), strings.Join(r, "\t"))
		}
		return
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ColorTealDeep)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return Styles.Header
			}
			return Styles.Cell
		})
	fmt.Fprintln(out(), t.Render())
}

// LogLine formats one event log entry.
//
// # Examples
//
//	ux.LogLine(ts, "SUCCESS", "BigQuery", "Schema evolution applied.", "")
//	// 10:04:05 SUCCESS [BigQuery] Schema evolution applied.
func LogLine(ts time.Time, level, source, message, details string) string {
	stamp := ts.Local().Format("15:04:05")
	if GetPersonality().Level == PersonalityMachine {
		line := fmt.Sprintf("%s\t%s\t%s\t%s", ts.UTC().Format(time.RFC3339), level, source, message)
		if details != "" {
			line += "\t" + details
		}
		return line
	}

	lvl := fmt.Sprintf("%-7s", level)
	switch level {
	case "ERROR":
		lvl = Styles.Error.Bold(true).Render(lvl)
	case "WARN":
		lvl = Styles.Warning.Render(lvl)
	case "SUCCESS":
		lvl = Styles.Success.Render(lvl)
	default:
		lvl = Styles.Info.Render(lvl)
	}
	line := fmt.Sprintf("%s %s %s %s", Styles.Muted.Render(stamp), lvl, Styles.Highlight.Render("["+source+"]"), message)
	if details != "" {
		line += "\n" + Styles.Muted.Render(indent(details, "         "))
	}
	return line
}

// Println writes s to the current output.
func Println(s string) {
	fmt.Fprintln(out(), s)
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}

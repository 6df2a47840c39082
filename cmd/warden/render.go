// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/DriftWarden/pkg/ux"
	"github.com/AleutianAI/DriftWarden/services/warden/markdown"
)

// Output formats accepted by -o.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

var errUnknownFormat = errors.New("unknown output format")

// printStructured writes v as JSON or YAML. YAML keys follow the JSON tags.
func printStructured(format string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	switch format {
	case formatJSON:
		ux.Println(string(data))
		return nil
	case formatYAML:
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		out, err := yaml.Marshal(generic)
		if err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		ux.Println(strings.TrimRight(string(out), "\n"))
		return nil
	default:
		return fmt.Errorf("%w %q (want table, json or yaml)", errUnknownFormat, format)
	}
}

func checkFormat(format string) error {
	switch format {
	case formatTable, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("%w %q (want table, json or yaml)", errUnknownFormat, format)
	}
}

// termStyler renders markdown spans with the CLI palette.
type termStyler struct{}

func (termStyler) Heading(s string) string { return ux.Styles.Title.Render(s) }
func (termStyler) Bold(s string) string    { return ux.Styles.Bold.Render(s) }
func (termStyler) Italic(s string) string  { return lipgloss.NewStyle().Italic(true).Render(s) }
func (termStyler) Code(s string) string    { return ux.Styles.Highlight.Render(s) }

// renderMarkdown renders AI text for the terminal. Machine output stays plain.
func renderMarkdown(text string) string {
	var styler markdown.Styler = termStyler{}
	if ux.GetPersonality().Level == ux.PersonalityMachine {
		styler = markdown.PlainStyler{}
	}
	return markdown.RenderText(markdown.Parse(text), styler)
}

// colorDiff highlights added and removed lines of a unified diff.
func colorDiff(diff string) string {
	if ux.GetPersonality().Level == ux.PersonalityMachine {
		return diff
	}
	lines := strings.Split(strings.TrimRight(diff, "\n"), "\n")
	for i, l := range lines {
		switch {
		case strings.HasPrefix(l, "+++"), strings.HasPrefix(l, "---"):
			lines[i] = ux.Styles.Bold.Render(l)
		case strings.HasPrefix(l, "@@"):
			lines[i] = ux.Styles.Info.Render(l)
		case strings.HasPrefix(l, "+"):
			lines[i] = ux.Styles.Success.Render(l)
		case strings.HasPrefix(l, "-"):
			lines[i] = ux.Styles.Error.Render(l)
		}
	}
	return strings.Join(lines, "\n")
}

// promptConfirm asks a yes/no question on the terminal.
func promptConfirm(title, description string) (bool, error) {
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Description(description).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}

var errNeedsConfirmation = errors.New("confirmation required")

// confirmed returns true when skip is set, or asks when the terminal
// allows it. Non-interactive runs without skip fail with
// errNeedsConfirmation.
func (c *cli) confirmed(skip bool, flag, title, description string) (bool, error) {
	if skip {
		return true, nil
	}
	if !c.interactive() {
		return false, fmt.Errorf("%w: re-run with %s", errNeedsConfirmation, flag)
	}
	return c.confirm(title, description)
}

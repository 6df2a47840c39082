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
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-isatty"
)

// PersonalityLevel controls how rich CLI output is.
type PersonalityLevel string

const (
	// PersonalityFull enables colors, icons, boxes and spinners.
	PersonalityFull PersonalityLevel = "full"

	// PersonalityMinimal keeps icons but drops boxes and spinners.
	PersonalityMinimal PersonalityLevel = "minimal"

	// PersonalityMachine prints plain tab-separated text for scripts.
	PersonalityMachine PersonalityLevel = "machine"
)

// EnvPersonality overrides terminal detection when set.
const EnvPersonality = "WARDEN_OUTPUT"

// Personality holds the current output settings.
type Personality struct {
	Level PersonalityLevel

	// Confirm enables interactive confirmation prompts.
	Confirm bool
}

var (
	currentPersonality = DefaultPersonality()
	personalityMu      sync.RWMutex
)

// GetPersonality returns the current personality settings.
func GetPersonality() Personality {
	personalityMu.RLock()
	defer personalityMu.RUnlock()
	return currentPersonality
}

// SetPersonality replaces the current personality settings.
func SetPersonality(p Personality) {
	personalityMu.Lock()
	defer personalityMu.Unlock()
	currentPersonality = p
}

// SetPersonalityLevel updates just the level.
func SetPersonalityLevel(level PersonalityLevel) {
	personalityMu.Lock()
	defer personalityMu.Unlock()
	currentPersonality.Level = level
}

// ParsePersonalityLevel converts a flag or env value. Unknown values map
// to PersonalityFull.
func ParsePersonalityLevel(s string) PersonalityLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minimal", "min", "m":
		return PersonalityMinimal
	case "machine", "plain", "quiet", "q":
		return PersonalityMachine
	default:
		return PersonalityFull
	}
}

// InitPersonality picks a level from WARDEN_OUTPUT, falling back to
// machine output when stdout is not a terminal.
func InitPersonality() {
	if env := os.Getenv(EnvPersonality); env != "" {
		SetPersonalityLevel(ParsePersonalityLevel(env))
		return
	}
	if !isTerminal(os.Stdout) {
		SetPersonalityLevel(PersonalityMachine)
		return
	}
	SetPersonalityLevel(PersonalityFull)
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// IsInteractive reports whether prompts may be shown: the level is not
// machine and both stdin and stdout are terminals.
func IsInteractive() bool {
	p := GetPersonality()
	return p.Confirm && p.Level != PersonalityMachine && isTerminal(os.Stdin) && isTerminal(os.Stdout)
}

// ShouldShowProgress reports whether spinners should animate.
func ShouldShowProgress() bool {
	return GetPersonality().Level == PersonalityFull
}

// DefaultPersonality returns full output with confirmations on.
func DefaultPersonality() Personality {
	return Personality{Level: PersonalityFull, Confirm: true}
}

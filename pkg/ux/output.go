// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the driftwatch CLI.
package ux

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// driftwatch palette - slate base with signal colors for risk levels
var (
	ColorLow    = lipgloss.Color("#27AE60") // green - LOW risk, success
	ColorMedium = lipgloss.Color("#F39C12") // amber - MEDIUM risk, warnings
	ColorHigh   = lipgloss.Color("#E74C3C") // red - HIGH risk, errors
	ColorAccent = lipgloss.Color("#3498DB") // blue - headers, highlights
	ColorMuted  = lipgloss.Color("#566573") // slate - labels, secondary text
)

// Styles bundles the lipgloss styles used by CLI reports.
type Styles struct {
	Header lipgloss.Style
	Label  lipgloss.Style
	Value  lipgloss.Style
	Muted  lipgloss.Style

	// Risk level styles
	Low    lipgloss.Style
	Medium lipgloss.Style
	High   lipgloss.Style

	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}

// NewStyles builds the style set. With noColor every style renders
// plain text, for pipes and NO_COLOR terminals.
func NewStyles(noColor bool) Styles {
	if noColor {
		plain := lipgloss.NewStyle()
		return Styles{
			Header:  plain,
			Label:   plain,
			Value:   plain,
			Muted:   plain,
			Low:     plain,
			Medium:  plain,
			High:    plain,
			Success: plain,
			Warning: plain,
			Error:   plain,
		}
	}

	return Styles{
		Header:  lipgloss.NewStyle().Bold(true).Foreground(ColorAccent),
		Label:   lipgloss.NewStyle().Foreground(ColorMuted),
		Value:   lipgloss.NewStyle(),
		Muted:   lipgloss.NewStyle().Foreground(ColorMuted),
		Low:     lipgloss.NewStyle().Bold(true).Foreground(ColorLow),
		Medium:  lipgloss.NewStyle().Bold(true).Foreground(ColorMedium),
		High:    lipgloss.NewStyle().Bold(true).Foreground(ColorHigh),
		Success: lipgloss.NewStyle().Foreground(ColorLow),
		Warning: lipgloss.NewStyle().Foreground(ColorMedium),
		Error:   lipgloss.NewStyle().Foreground(ColorHigh),
	}
}

// Level returns the style for a risk level name. Unknown levels render
// muted.
func (s Styles) Level(name string) lipgloss.Style {
	switch name {
	case "LOW":
		return s.Low
	case "MEDIUM":
		return s.Medium
	case "HIGH":
		return s.High
	default:
		return s.Muted
	}
}

// ColorEnabled reports whether styled output makes sense: stdout is a
// terminal and NO_COLOR is unset.
func ColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// std is the active style set. Plain until Init runs so library misuse
// never emits escape codes into a pipe.
var std = NewStyles(true)

// Init selects the active style set. Called once by the CLI root
// command; forceNoColor wins over terminal detection.
func Init(forceNoColor bool) {
	std = NewStyles(forceNoColor || !ColorEnabled())
}

// Default returns the active style set.
func Default() Styles {
	return std
}

// Status icons
const (
	IconSuccess = "✓"
	IconWarning = "⚠"
	IconError   = "✗"
)

// Success prints a success line with a checkmark.
func Success(text string) {
	fmt.Printf("%s %s\n", std.Success.Render(IconSuccess), text)
}

// Warning prints a warning line to stderr.
func Warning(text string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", std.Warning.Render(IconWarning), text)
}

// Error prints an error line to stderr.
func Error(text string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", std.Error.Render(IconError), text)
}

// Info prints a secondary line.
func Info(text string) {
	fmt.Printf("%s %s\n", std.Muted.Render("│"), text)
}

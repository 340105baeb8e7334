// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"
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

func TestNewStyles_NoColorIsPlain(t *testing.T) {
	s := NewStyles(true)

	if s.High.GetBold() {
		t.Error("expected plain style without bold in no-color mode")
	}
	if got := s.High.Render("HIGH"); got != "HIGH" {
		t.Errorf("expected unstyled text, got %q", got)
	}
}

func TestNewStyles_ColorSetsLevelStyles(t *testing.T) {
	s := NewStyles(false)

	if !s.Low.GetBold() || !s.Medium.GetBold() || !s.High.GetBold() {
		t.Error("expected bold risk level styles")
	}
	if s.Low.GetForeground() != ColorLow {
		t.Errorf("Low foreground = %v, want %v", s.Low.GetForeground(), ColorLow)
	}
	if s.High.GetForeground() != ColorHigh {
		t.Errorf("High foreground = %v, want %v", s.High.GetForeground(), ColorHigh)
	}
}

func TestStyles_Level(t *testing.T) {
	s := NewStyles(false)

	cases := map[string]interface{}{
		"LOW":     ColorLow,
		"MEDIUM":  ColorMedium,
		"HIGH":    ColorHigh,
		"UNKNOWN": ColorMuted,
		"":        ColorMuted,
	}

	for name, want := range cases {
		if got := s.Level(name).GetForeground(); got != want {
			t.Errorf("Level(%q) foreground = %v, want %v", name, got, want)
		}
	}
}

func TestColorEnabled_RespectsNoColorEnv(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	if ColorEnabled() {
		t.Error("expected ColorEnabled to be false with NO_COLOR set")
	}
}

func TestInit_ForceNoColor(t *testing.T) {
	defer Init(true)

	Init(true)
	if Default().High.GetBold() {
		t.Error("expected plain styles after Init(true)")
	}
}

func TestSuccess(t *testing.T) {
	output := captureStdout(func() {
		Success("backup written")
	})

	if !strings.Contains(output, "backup written") {
		t.Errorf("expected message in output, got %q", output)
	}
	if !strings.Contains(output, IconSuccess) {
		t.Errorf("expected success icon in output, got %q", output)
	}
}

func TestWarning_GoesToStderr(t *testing.T) {
	output := captureStderr(func() {
		Warning("file descriptor limit is low")
	})

	if !strings.Contains(output, "file descriptor limit is low") {
		t.Errorf("expected message on stderr, got %q", output)
	}
}

func TestError_GoesToStderr(t *testing.T) {
	output := captureStderr(func() {
		Error("store open failed")
	})

	if !strings.Contains(output, "store open failed") {
		t.Errorf("expected message on stderr, got %q", output)
	}
	if !strings.Contains(output, IconError) {
		t.Errorf("expected error icon on stderr, got %q", output)
	}
}

func TestInfo(t *testing.T) {
	output := captureStdout(func() {
		Info("3 users scanned")
	})

	if !strings.Contains(output, "3 users scanned") {
		t.Errorf("expected message in output, got %q", output)
	}
}

// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"errors"
	"strings"
	"testing"
)

func TestSpinner_NonTerminalPrintsOnce(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	output := captureStdout(func() {
		s := NewSpinner("streaming backup")
		s.Start()
		s.Stop()
	})

	if output != "streaming backup...\n" {
		t.Errorf("expected single message line, got %q", output)
	}
}

func TestSpinner_StartTwiceIsNoop(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	output := captureStdout(func() {
		s := NewSpinner("working")
		s.Start()
		s.Start()
		s.Stop()
	})

	if strings.Count(output, "working") != 1 {
		t.Errorf("expected one message line, got %q", output)
	}
}

func TestSpinner_StopWithoutStart(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	// Must not panic or block.
	s := NewSpinner("idle")
	s.Stop()
}

func TestWithSpinner_Success(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	var ran bool
	output := captureStdout(func() {
		err := WithSpinner("uploading", func() error {
			ran = true
			return nil
		})
		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	if !ran {
		t.Error("expected wrapped function to run")
	}
	if !strings.Contains(output, IconSuccess) {
		t.Errorf("expected success icon, got %q", output)
	}
}

func TestWithSpinner_Error(t *testing.T) {
	t.Setenv("NO_COLOR", "1")

	wantErr := errors.New("bucket unreachable")
	var got error
	stderr := captureStderr(func() {
		captureStdout(func() {
			got = WithSpinner("uploading", func() error {
				return wantErr
			})
		})
	})

	if !errors.Is(got, wantErr) {
		t.Errorf("expected wrapped error back, got %v", got)
	}
	if !strings.Contains(stderr, "bucket unreachable") {
		t.Errorf("expected error detail on stderr, got %q", stderr)
	}
}

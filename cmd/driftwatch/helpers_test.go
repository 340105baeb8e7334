// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/saltline/driftwatch/services/identity/envelope"
	"github.com/saltline/driftwatch/services/identity/risk"
)

// ============================================================================
// Exit Code Tests
// ============================================================================

func TestRiskExitCode(t *testing.T) {
	tests := []struct {
		level risk.Level
		want  int
	}{
		{risk.LevelLow, exitRiskLow},
		{risk.LevelMedium, exitRiskMedium},
		{risk.LevelHigh, exitRiskHigh},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			if got := riskExitCode(tt.level); got != tt.want {
				t.Errorf("riskExitCode(%s) = %d, want %d", tt.level, got, tt.want)
			}
		})
	}
}

func TestFactorMarker(t *testing.T) {
	tests := []struct {
		score int
		want  string
	}{
		{5, " -"},
		{19, " -"},
		{20, " !"},
		{39, " !"},
		{40, "!!"},
		{100, "!!"},
	}

	for _, tt := range tests {
		if got := factorMarker(tt.score); got != tt.want {
			t.Errorf("factorMarker(%d) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

// ============================================================================
// Store Helper Tests
// ============================================================================

func TestOpenStore_EmptyDir(t *testing.T) {
	_, err := openStore("")
	if err == nil {
		t.Fatal("openStore with empty dir should return error")
	}
	if !strings.Contains(err.Error(), "--dir is required") {
		t.Errorf("Error should mention the missing flag, got: %v", err)
	}
}

func TestOpenStore_NonExistentDir(t *testing.T) {
	_, err := openStore("/nonexistent/driftwatch/store")
	if err == nil {
		t.Fatal("openStore with non-existent dir should return error")
	}
}

func TestOpenStore_FileInsteadOfDir(t *testing.T) {
	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "not-a-dir")
	if err := os.WriteFile(filePath, []byte("x"), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	_, err := openStore(filePath)
	if err == nil {
		t.Fatal("openStore with a file path should return error")
	}
	if !strings.Contains(err.Error(), "not a directory") {
		t.Errorf("Error should mention not a directory, got: %v", err)
	}
}

func TestOpenTracker_RoundTrip(t *testing.T) {
	db, trk, err := openTracker(t.TempDir())
	if err != nil {
		t.Fatalf("openTracker failed: %v", err)
	}
	defer db.Close()

	if trk == nil {
		t.Fatal("openTracker returned nil tracker")
	}
}

// ============================================================================
// Backup Helper Tests
// ============================================================================

func TestBackupObjectName(t *testing.T) {
	name := backupObjectName("/var/backups/drift.bak")

	if !strings.HasSuffix(name, "-drift.bak") {
		t.Errorf("object name %q should end with the local file name", name)
	}
	// Timestamp prefix: 20060102T150405Z is 16 characters.
	if len(name) != len("20060102T150405Z")+len("-drift.bak") {
		t.Errorf("object name %q should carry a fixed-width timestamp prefix", name)
	}
}

func TestWriteBackup(t *testing.T) {
	db, err := openStore(t.TempDir())
	if err != nil {
		t.Fatalf("openStore failed: %v", err)
	}
	defer db.Close()

	outPath := filepath.Join(t.TempDir(), "drift.bak")
	if _, err := writeBackup(db, outPath); err != nil {
		t.Fatalf("writeBackup failed: %v", err)
	}

	if _, err := os.Stat(outPath); err != nil {
		t.Errorf("backup file should exist: %v", err)
	}
}

func TestWriteBackup_BadPath(t *testing.T) {
	db, err := openStore(t.TempDir())
	if err != nil {
		t.Fatalf("openStore failed: %v", err)
	}
	defer db.Close()

	_, err = writeBackup(db, "/nonexistent/dir/drift.bak")
	if err == nil {
		t.Fatal("writeBackup to an unwritable path should return error")
	}
	if !strings.Contains(err.Error(), "create backup file") {
		t.Errorf("Error should mention file creation, got: %v", err)
	}
}

// ============================================================================
// Envelope Key Loading Tests
// ============================================================================

func TestLoadOpener_RoundTrip(t *testing.T) {
	pub, priv, err := envelope.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair failed: %v", err)
	}

	keyPath := filepath.Join(t.TempDir(), "envelope.key")
	encoded := base64.StdEncoding.EncodeToString(priv) + "\n"
	if err := os.WriteFile(keyPath, []byte(encoded), 0600); err != nil {
		t.Fatalf("Failed to write key file: %v", err)
	}

	opener, err := loadOpener(keyPath)
	if err != nil {
		t.Fatalf("loadOpener failed: %v", err)
	}

	// The derived public key must match the generated one, or sealed
	// payloads from clients will never open.
	if opener.PublicKey() != pub {
		t.Error("derived public key does not match the generated pair")
	}

	sealed, err := envelope.Seal(&envelope.Payload{
		UserID:      "u-1",
		IP:          "203.0.113.7",
		Fingerprint: "fp-a",
	}, pub)
	if err != nil {
		t.Fatalf("Seal failed: %v", err)
	}

	payload, err := opener.Open(sealed)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if payload.UserID != "u-1" {
		t.Errorf("UserID = %q, want %q", payload.UserID, "u-1")
	}
}

func TestLoadOpener_MissingFile(t *testing.T) {
	_, err := loadOpener("/nonexistent/envelope.key")
	if err == nil {
		t.Fatal("loadOpener with missing file should return error")
	}
	if !strings.Contains(err.Error(), "read envelope key") {
		t.Errorf("Error should mention the read failure, got: %v", err)
	}
}

func TestLoadOpener_BadBase64(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "envelope.key")
	if err := os.WriteFile(keyPath, []byte("not base64!!!\n"), 0600); err != nil {
		t.Fatalf("Failed to write key file: %v", err)
	}

	_, err := loadOpener(keyPath)
	if err == nil {
		t.Fatal("loadOpener with invalid base64 should return error")
	}
	if !strings.Contains(err.Error(), "decode envelope key") {
		t.Errorf("Error should mention the decode failure, got: %v", err)
	}
}

func TestLoadOpener_WrongLength(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "envelope.key")
	short := base64.StdEncoding.EncodeToString([]byte("too short"))
	if err := os.WriteFile(keyPath, []byte(short+"\n"), 0600); err != nil {
		t.Fatalf("Failed to write key file: %v", err)
	}

	_, err := loadOpener(keyPath)
	if err == nil {
		t.Fatal("loadOpener with a short key should return error")
	}
	if !strings.Contains(err.Error(), "want 32") {
		t.Errorf("Error should mention the expected length, got: %v", err)
	}
}

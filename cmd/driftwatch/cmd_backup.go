// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/saltline/driftwatch/cmd/driftwatch/gcs"
	"github.com/saltline/driftwatch/pkg/ux"
	"github.com/saltline/driftwatch/services/identity/config"
	"github.com/saltline/driftwatch/services/identity/storage/badger"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	backupDir    string
	backupOut    string
	backupUpload bool
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Stream a store snapshot to a local file",
	Long: `Write a full backup of a driftwatch store to a single file.

The backup command streams every key-value pair at the store's current
version into Badger's backup format. The resulting file restores with
'badger restore' tooling or a future driftwatch release. With --upload
the file is also pushed to the GCS bucket named in the service config.

Examples:
  driftwatch backup --dir /var/lib/driftwatch --out drift.bak
  driftwatch backup --dir ./data --out drift.bak --upload -c config.yaml

Exit Codes:
  0 = Backup written (and uploaded, if requested)
  1 = Error (store unreadable, write failure, upload failure)`,
	Run: runBackupCommand,
}

func init() {
	backupCmd.Flags().StringVar(&backupDir, "dir", "",
		"Path to the driftwatch store directory (required)")
	backupCmd.Flags().StringVar(&backupOut, "out", "",
		"Destination file for the backup stream (required)")
	backupCmd.Flags().BoolVar(&backupUpload, "upload", false,
		"Upload the backup to the configured GCS bucket")

	// Add to root
	rootCmd.AddCommand(backupCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runBackupCommand(cmd *cobra.Command, args []string) {
	if backupOut == "" {
		fmt.Fprintf(os.Stderr, "Error: --out is required\n")
		os.Exit(1)
	}

	db, err := openStore(backupDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	version, err := writeBackup(db, backupOut)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: backup failed: %v\n", err)
		os.Exit(1)
	}
	ux.Success(fmt.Sprintf("backup written to %s (version %d)", backupOut, version))

	if !backupUpload {
		return
	}
	if err := uploadBackup(backupOut); err != nil {
		fmt.Fprintf(os.Stderr, "Error: upload failed: %v\n", err)
		os.Exit(1)
	}
}

// writeBackup streams the store at its current version into path.
func writeBackup(db *badger.DB, path string) (uint64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create backup file: %w", err)
	}

	w := bufio.NewWriter(f)
	version, err := db.Backup(context.Background(), w)
	if err != nil {
		f.Close()
		return 0, err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return 0, fmt.Errorf("flush backup file: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close backup file: %w", err)
	}
	return version, nil
}

// uploadBackup pushes the finished backup file to the bucket named in
// the service config.
func uploadBackup(localPath string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Backup.Bucket == "" {
		return fmt.Errorf("no backup bucket configured; set backup.bucket in the config file")
	}

	ctx := context.Background()
	client, err := gcs.NewClient(ctx, cfg.Backup.Bucket, cfg.Backup.Prefix, cfg.Backup.CredentialsFile)
	if err != nil {
		return fmt.Errorf("create gcs client: %w", err)
	}
	defer client.Close()

	var uri string
	err = ux.WithSpinner("uploading "+filepath.Base(localPath), func() error {
		var uploadErr error
		uri, uploadErr = client.UploadFile(ctx, localPath, backupObjectName(localPath))
		return uploadErr
	})
	if err != nil {
		return err
	}

	ux.Success("uploaded to " + uri)
	return nil
}

// backupObjectName prefixes the local file name with a UTC timestamp so
// repeated uploads never clobber each other.
func backupObjectName(localPath string) string {
	return time.Now().UTC().Format("20060102T150405Z") + "-" + filepath.Base(localPath)
}

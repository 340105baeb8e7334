// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/saltline/driftwatch/pkg/logging"
	"github.com/saltline/driftwatch/services/identity/graph"
	"github.com/saltline/driftwatch/services/identity/storage"
	"github.com/saltline/driftwatch/services/identity/storage/badger"
	"github.com/saltline/driftwatch/services/identity/tracker"
)

// openStore opens a Badger store directory for an offline command. No GC
// loop and no fsync; these commands read or stream and exit.
func openStore(dir string) (*badger.DB, error) {
	if dir == "" {
		return nil, fmt.Errorf("--dir is required")
	}
	if info, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("store directory %s: %w", dir, err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("store path %s is not a directory", dir)
	}

	cfg := badger.DefaultConfig()
	cfg.Path = dir
	cfg.SyncWrites = false
	cfg.GCInterval = 0
	cfg.Logger = storeLogger()
	return badger.OpenDB(cfg)
}

// openTracker opens the store and builds the graph and tracker over it.
// The caller closes the returned DB.
func openTracker(dir string) (*badger.DB, *tracker.Tracker, error) {
	db, err := openStore(dir)
	if err != nil {
		return nil, nil, err
	}
	store := storage.NewBadgerStore(db)
	trk := tracker.New(graph.New(store))
	return db, trk, nil
}

// storeLogger surfaces Badger internals only when the user asked for
// debug output; anything louder drowns the command's own output.
func storeLogger() *slog.Logger {
	if logging.ParseLevel(logLevel) != logging.LevelDebug {
		return nil
	}
	return logging.New(logging.Config{
		Level:   logging.LevelDebug,
		Service: "driftwatch",
	}).Slog()
}

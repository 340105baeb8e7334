// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"

	"github.com/saltline/driftwatch/pkg/ux"
)

// --- Global Command Variables ---
var (
	cfgFile  string
	noColor  bool
	logLevel string

	rootCmd = &cobra.Command{
		Use:   "driftwatch",
		Short: "Track user session identity drift and score behavioral risk",
		Long: `Driftwatch records which IPs and browser fingerprints each user
connects with, keeps the relationships in an embedded graph, and scores
recent behavior for account-sharing and credential-theft patterns.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			ux.Init(noColor)
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the driftwatch HTTP service",
		Long: `Start the identity tracking service.

Loads the YAML config (or compiled defaults when --config is omitted),
opens the Badger store, and serves the /v1/identity API until SIGINT or
SIGTERM. When --config is given the file is also watched, and the
dynamically-safe settings (rate limits, alert threshold, risk overrides)
apply without a restart.

Examples:
  driftwatch serve
  driftwatch serve --config /etc/driftwatch/config.yaml

Exit Codes:
  0 = Clean shutdown
  1 = Startup or listen failure`,
		Run: runServe, // Defined in cmd_serve.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"Path to the YAML config file")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false,
		"Disable styled terminal output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Diagnostic log level for offline commands (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
}

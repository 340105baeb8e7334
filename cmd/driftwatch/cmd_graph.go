// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/saltline/driftwatch/services/identity/tracker"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	graphDir       string
	graphHours     int
	graphThreshold int
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the recent connection graph as JSON",
	Long: `Project the identity graph's recent activity into node-link JSON.

The graph command opens a driftwatch store directly and emits the same
projection the service serves at /v1/graph: USER, IP, and FINGERPRINT
nodes joined by usage edges, filtered to a recency window. Pipe the
output into jq or a visualization frontend.

Examples:
  driftwatch graph --dir /var/lib/driftwatch
  driftwatch graph --dir ./data --hours 168
  driftwatch graph --dir ./data --threshold 50 | jq '.nodes | length'

Exit Codes:
  0 = Graph written to stdout
  1 = Error (store unreadable, bad flags)`,
	Run: runGraphCommand,
}

func init() {
	graphCmd.Flags().StringVar(&graphDir, "dir", "",
		"Path to the driftwatch store directory (required)")
	graphCmd.Flags().IntVar(&graphHours, "hours", tracker.DefaultGraphHours,
		"Recency window in hours")
	graphCmd.Flags().IntVar(&graphThreshold, "threshold", 0,
		"Drop users scoring below this risk score (0 keeps everyone)")

	// Add to root
	rootCmd.AddCommand(graphCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runGraphCommand(cmd *cobra.Command, args []string) {
	db, trk, err := openTracker(graphDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	graph, err := trk.GetConnectionGraph(context.Background(), tracker.GraphOptions{
		Hours:         graphHours,
		RiskThreshold: graphThreshold,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: graph projection failed: %v\n", err)
		os.Exit(1)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(graph); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to encode JSON: %v\n", err)
		os.Exit(1)
	}
}

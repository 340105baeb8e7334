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
	"sort"

	"github.com/spf13/cobra"

	"github.com/saltline/driftwatch/pkg/ux"
	"github.com/saltline/driftwatch/pkg/validation"
	"github.com/saltline/driftwatch/services/identity/risk"
	"github.com/saltline/driftwatch/services/identity/tracker"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	riskDir  string
	riskUser string
	riskJSON bool
)

// Exit codes double as a severity signal for scripts and CI gates.
const (
	exitRiskLow    = 0
	exitRiskError  = 1
	exitRiskMedium = 2
	exitRiskHigh   = 3
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var riskCmd = &cobra.Command{
	Use:   "risk",
	Short: "Score one user's identity drift from a local store",
	Long: `Compute the behavioral risk assessment for a single user.

The risk command opens a driftwatch store directly, without a running
service, and scores the user's recent identity activity: distinct IPs,
distinct device fingerprints, and rapid identity changes. This is useful
for incident triage and batch review scripts.

Examples:
  driftwatch risk --dir /var/lib/driftwatch --user u-1942
  driftwatch risk --dir ./data --user u-1942 --json
  driftwatch risk --dir ./data --user u-1942 && echo "low risk"

Exit Codes:
  0 = LOW risk
  1 = Error (store unreadable, unknown user, bad flags)
  2 = MEDIUM risk
  3 = HIGH risk`,
	Run: runRiskCommand,
}

func init() {
	riskCmd.Flags().StringVar(&riskDir, "dir", "",
		"Path to the driftwatch store directory (required)")
	riskCmd.Flags().StringVar(&riskUser, "user", "",
		"User ID to score (required)")
	riskCmd.Flags().BoolVar(&riskJSON, "json", false,
		"Output as JSON")

	// Add to root
	rootCmd.AddCommand(riskCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runRiskCommand(cmd *cobra.Command, args []string) {
	if riskUser == "" {
		outputRiskError("Missing required flag", fmt.Errorf("--user is required"))
		os.Exit(exitRiskError)
	}
	if err := validation.ValidateUserID(riskUser); err != nil {
		outputRiskError("Invalid user ID", err)
		os.Exit(exitRiskError)
	}

	db, trk, err := openTracker(riskDir)
	if err != nil {
		outputRiskError("Failed to open store", err)
		os.Exit(exitRiskError)
	}
	defer db.Close()

	ctx := context.Background()

	known, err := trk.HasUser(ctx, riskUser)
	if err != nil {
		outputRiskError("Failed to look up user", err)
		os.Exit(exitRiskError)
	}
	if !known {
		outputRiskError("Unknown user", fmt.Errorf("no identity events recorded for %q", riskUser))
		os.Exit(exitRiskError)
	}

	assessment, err := trk.CalculateUserRisk(ctx, riskUser)
	if err != nil {
		outputRiskError("Risk calculation failed", err)
		os.Exit(exitRiskError)
	}

	conns, err := trk.GetUserConnections(ctx, riskUser)
	if err != nil {
		outputRiskError("Failed to load connections", err)
		os.Exit(exitRiskError)
	}

	if riskJSON {
		outputRiskJSON(assessment, conns)
	} else {
		outputRiskReport(assessment, conns)
	}

	os.Exit(riskExitCode(assessment.Level))
}

// riskExitCode maps a severity level onto the documented exit codes.
func riskExitCode(level risk.Level) int {
	switch level {
	case risk.LevelHigh:
		return exitRiskHigh
	case risk.LevelMedium:
		return exitRiskMedium
	default:
		return exitRiskLow
	}
}

// =============================================================================
// OUTPUT FUNCTIONS
// =============================================================================

func outputRiskError(msg string, err error) {
	if riskJSON {
		result := map[string]interface{}{
			"success": false,
			"error":   fmt.Sprintf("%s: %v", msg, err),
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		encoder.Encode(result)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	}
}

func outputRiskJSON(a risk.Assessment, conns *tracker.UserConnections) {
	result := struct {
		User         string        `json:"user"`
		Score        int           `json:"score"`
		Level        risk.Level    `json:"level"`
		Factors      []risk.Factor `json:"factors"`
		IPs          int           `json:"ips"`
		Fingerprints int           `json:"fingerprints"`
	}{
		User:         riskUser,
		Score:        a.Score,
		Level:        a.Level,
		Factors:      a.Factors,
		IPs:          len(conns.IPs),
		Fingerprints: len(conns.Fingerprints),
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
		os.Exit(exitRiskError)
	}
}

func outputRiskReport(a risk.Assessment, conns *tracker.UserConnections) {
	styles := ux.Default()

	fmt.Printf("%s %s\n", styles.Label.Render("User:"), styles.Value.Render(riskUser))
	fmt.Printf("%s %s\n", styles.Label.Render("Risk:"), styles.Level(string(a.Level)).Render(string(a.Level)))
	fmt.Printf("%s %s\n", styles.Label.Render("Score:"), styles.Value.Render(fmt.Sprintf("%d", a.Score)))
	fmt.Printf("%s %s\n", styles.Label.Render("Seen:"),
		styles.Value.Render(fmt.Sprintf("%d IPs, %d fingerprints", len(conns.IPs), len(conns.Fingerprints))))
	fmt.Println()

	if len(a.Factors) == 0 {
		fmt.Println(styles.Muted.Render("No contributing factors in the scoring windows."))
		return
	}

	fmt.Println(styles.Header.Render("Contributing Factors"))
	for _, f := range a.Factors {
		fmt.Printf("  %s %s (+%d)\n", factorMarker(f.Score), f.Reason, f.Score)
		keys := make([]string, 0, len(f.Details))
		for k := range f.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("       %s\n", styles.Muted.Render(fmt.Sprintf("%s: %v", k, f.Details[k])))
		}
	}
}

func factorMarker(score int) string {
	switch {
	case score >= 40:
		return "!!"
	case score >= 20:
		return " !"
	default:
		return " -"
	}
}

// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/saltline/driftwatch/pkg/ux"
	"github.com/saltline/driftwatch/services/identity/envelope"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var keygenOut string

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an X25519 key pair for sealed ingest",
	Long: `Generate the key pair that protects sealed track events.

The private key is written to a file readable only by the owner; point
server.envelope_key_file at it and restart the service. The public key
is printed to stdout for distribution to edge clients, which seal their
track payloads against it.

Examples:
  driftwatch keygen
  driftwatch keygen --out /etc/driftwatch/envelope.key

Exit Codes:
  0 = Key pair generated
  1 = Error (file exists, write failure)`,
	Run: runKeygenCommand,
}

func init() {
	keygenCmd.Flags().StringVar(&keygenOut, "out", "envelope.key",
		"Destination file for the private key")

	// Add to root
	rootCmd.AddCommand(keygenCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runKeygenCommand(cmd *cobra.Command, args []string) {
	if _, err := os.Stat(keygenOut); err == nil {
		fmt.Fprintf(os.Stderr, "Error: %s already exists; refusing to overwrite a key file\n", keygenOut)
		os.Exit(1)
	}

	pub, priv, err := envelope.GenerateKeyPair()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: key generation failed: %v\n", err)
		os.Exit(1)
	}

	encoded := base64.StdEncoding.EncodeToString(priv) + "\n"
	for i := range priv {
		priv[i] = 0
	}

	if err := os.WriteFile(keygenOut, []byte(encoded), 0600); err != nil {
		fmt.Fprintf(os.Stderr, "Error: write key file: %v\n", err)
		os.Exit(1)
	}

	ux.Success("private key written to " + keygenOut)
	fmt.Printf("public key: %s\n", base64.StdEncoding.EncodeToString(pub[:]))
}

// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command driftwatch runs the identity drift service and its operational
// tooling.
//
// Usage:
//
//	driftwatch serve --config config.yaml
//	driftwatch risk --dir ./data/driftwatch --user alice
//	driftwatch graph --dir ./data/driftwatch --hours 48
//	driftwatch backup --dir ./data/driftwatch --out driftwatch.bak --upload
//	driftwatch keygen --out envelope.key
//
// Example requests against a running service:
//
//	# Record a connection event
//	curl -X POST http://localhost:8480/v1/identity/track \
//	  -H "Content-Type: application/json" \
//	  -d '{"userId": "alice", "ip": "203.0.113.7", "fingerprint": "a1b2c3d4"}'
//
//	# Everything a user has connected with
//	curl http://localhost:8480/v1/identity/users/alice/connections | jq
//
//	# Current risk assessment
//	curl http://localhost:8480/v1/identity/users/alice/risk | jq
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

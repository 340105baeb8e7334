// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation for identity ingest.
//
// Natural keys (user ids, fingerprints) end up embedded in
// colon-delimited store keys and in index prefixes, so the validators
// reject ':' and control characters outright. Validate at the boundary;
// the graph layer stores what it is given.
package validation

import (
	"fmt"
	"net/netip"
	"regexp"
)

const (
	// MaxUserIDLength bounds user identifiers.
	MaxUserIDLength = 128

	// MaxFingerprintLength bounds client fingerprints.
	MaxFingerprintLength = 256

	// MaxUserAgentLength bounds raw User-Agent headers before they are
	// stored for classification.
	MaxUserAgentLength = 1024
)

// userIDPattern matches account identifiers as issued by upstream auth:
// letters, digits, then dots, underscores, hyphens, and '@' for
// email-shaped ids. No colons: ids embed in colon-delimited store keys.
var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._@\-]{0,127}$`)

// fingerprintPattern matches client fingerprints: hex digests, base64url
// blobs, and UUID-shaped values all fit.
var fingerprintPattern = regexp.MustCompile(`^[A-Za-z0-9._\-]{1,256}$`)

// ValidateUserID validates an account identifier.
//
// Valid user ids:
//   - 1-128 characters
//   - Start with a letter or digit
//   - Continue with letters, digits, dots, underscores, hyphens, or '@'
//
// Returns an error describing the first violated rule.
func ValidateUserID(userID string) error {
	if userID == "" {
		return fmt.Errorf("userId cannot be empty")
	}
	if len(userID) > MaxUserIDLength {
		return fmt.Errorf("userId exceeds %d characters", MaxUserIDLength)
	}
	if !userIDPattern.MatchString(userID) {
		return fmt.Errorf("invalid userId format: %q", userID)
	}
	return nil
}

// ValidateIP validates an IPv4 or IPv6 address literal.
func ValidateIP(ip string) error {
	if ip == "" {
		return fmt.Errorf("ip cannot be empty")
	}
	if _, err := netip.ParseAddr(ip); err != nil {
		return fmt.Errorf("invalid ip address: %q", ip)
	}
	return nil
}

// ValidateFingerprint validates a client fingerprint.
//
// Valid fingerprints:
//   - 1-256 characters
//   - Letters, digits, dots, underscores, hyphens
func ValidateFingerprint(fingerprint string) error {
	if fingerprint == "" {
		return fmt.Errorf("fingerprint cannot be empty")
	}
	if len(fingerprint) > MaxFingerprintLength {
		return fmt.Errorf("fingerprint exceeds %d characters", MaxFingerprintLength)
	}
	if !fingerprintPattern.MatchString(fingerprint) {
		return fmt.Errorf("invalid fingerprint format: %q", fingerprint)
	}
	return nil
}

// ValidateUserAgent bounds a raw User-Agent header. Empty is allowed;
// classification falls back to unknowns.
func ValidateUserAgent(userAgent string) error {
	if len(userAgent) > MaxUserAgentLength {
		return fmt.Errorf("user agent exceeds %d characters", MaxUserAgentLength)
	}
	return nil
}

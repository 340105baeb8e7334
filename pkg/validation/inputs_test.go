// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateUserID(t *testing.T) {
	tests := []struct {
		name    string
		userID  string
		wantErr bool
	}{
		{name: "simple", userID: "user123"},
		{name: "email shaped", userID: "jane.doe@example.com"},
		{name: "uuid shaped", userID: "550e8400-e29b-41d4-a716-446655440000"},
		{name: "single char", userID: "u"},
		{name: "max length", userID: strings.Repeat("a", 128)},
		{name: "empty", userID: "", wantErr: true},
		{name: "too long", userID: strings.Repeat("a", 129), wantErr: true},
		{name: "leading dot", userID: ".user", wantErr: true},
		{name: "colon", userID: "user:123", wantErr: true},
		{name: "space", userID: "user 123", wantErr: true},
		{name: "control char", userID: "user\n123", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUserID(tt.userID)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateIP(t *testing.T) {
	tests := []struct {
		name    string
		ip      string
		wantErr bool
	}{
		{name: "ipv4", ip: "203.0.113.7"},
		{name: "ipv6", ip: "2001:db8::1"},
		{name: "ipv6 full", ip: "2001:0db8:0000:0000:0000:0000:0000:0001"},
		{name: "empty", ip: "", wantErr: true},
		{name: "hostname", ip: "example.com", wantErr: true},
		{name: "cidr", ip: "203.0.113.0/24", wantErr: true},
		{name: "port suffix", ip: "203.0.113.7:443", wantErr: true},
		{name: "octet overflow", ip: "256.1.1.1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIP(tt.ip)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateFingerprint(t *testing.T) {
	tests := []struct {
		name        string
		fingerprint string
		wantErr     bool
	}{
		{name: "hex digest", fingerprint: "a3f1b2c4d5e6f708"},
		{name: "base64url", fingerprint: "dGVzdC1maW5nZXJwcmludA"},
		{name: "uuid", fingerprint: "550e8400-e29b-41d4-a716-446655440000"},
		{name: "max length", fingerprint: strings.Repeat("f", 256)},
		{name: "empty", fingerprint: "", wantErr: true},
		{name: "too long", fingerprint: strings.Repeat("f", 257), wantErr: true},
		{name: "colon", fingerprint: "fp:1", wantErr: true},
		{name: "plus", fingerprint: "fp+1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFingerprint(tt.fingerprint)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateUserAgent(t *testing.T) {
	assert.NoError(t, ValidateUserAgent(""))
	assert.NoError(t, ValidateUserAgent("Mozilla/5.0 (X11; Linux x86_64)"))
	assert.Error(t, ValidateUserAgent(strings.Repeat("x", 1025)))
}

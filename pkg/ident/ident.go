// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ident generates the opaque identifiers used for graph records.
//
// Identifiers are 14-character URL-safe random strings drawn from a
// 64-symbol alphabet. They never contain ':' so they can be embedded as
// the trailing segment of colon-delimited store keys and recovered with
// a last-separator split.
package ident

import (
	"fmt"
	"regexp"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Length is the number of characters in every generated identifier.
const Length = 14

// Alphabet is the URL-safe symbol set identifiers are drawn from.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{14}$`)

// New returns a fresh 14-character identifier.
//
// Returns an error only if the platform's entropy source fails.
func New() (string, error) {
	id, err := gonanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return id, nil
}

// MustNew returns a fresh identifier and panics on entropy failure.
// Intended for tests and fixtures.
func MustNew() string {
	return gonanoid.MustGenerate(Alphabet, Length)
}

// Valid reports whether s is a well-formed identifier.
func Valid(s string) bool {
	return idPattern.MatchString(s)
}

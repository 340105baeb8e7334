// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ident

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("has fixed length", func(t *testing.T) {
		id, err := New()
		require.NoError(t, err)
		assert.Len(t, id, Length)
	})

	t.Run("uses only alphabet symbols", func(t *testing.T) {
		for i := 0; i < 100; i++ {
			id, err := New()
			require.NoError(t, err)
			for _, r := range id {
				assert.True(t, strings.ContainsRune(Alphabet, r), "unexpected symbol %q in %q", r, id)
			}
		}
	})

	t.Run("never contains the key separator", func(t *testing.T) {
		for i := 0; i < 100; i++ {
			id, err := New()
			require.NoError(t, err)
			assert.NotContains(t, id, ":")
		}
	})

	t.Run("does not repeat", func(t *testing.T) {
		seen := make(map[string]struct{}, 1000)
		for i := 0; i < 1000; i++ {
			id, err := New()
			require.NoError(t, err)
			_, dup := seen[id]
			require.False(t, dup, "duplicate id %q after %d draws", id, i)
			seen[id] = struct{}{}
		}
	})
}

func TestValid(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want bool
	}{
		{"generated id", MustNew(), true},
		{"too short", "abc123", false},
		{"too long", strings.Repeat("a", 15), false},
		{"empty", "", false},
		{"contains separator", "abcd:fghij1234", false},
		{"contains space", "abcd fghij1234", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Valid(tc.in))
		})
	}
}

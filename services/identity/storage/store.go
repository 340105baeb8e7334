// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package storage narrows the embedded key-value store to the four
// operations the graph layer needs: point get, put, delete, and ordered
// prefix listing with opaque cursors.
//
// # Contract
//
// Keys are UTF-8 strings, values are JSON bytes. List returns keys with the
// given prefix in ascending lexicographic order. Cursors are opaque and
// valid only with the prefix that produced them. No atomicity is promised
// across operations; callers that need multi-key consistency must build it
// above this interface.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
package storage

import "context"

// ListPage is one page of keys from a prefix listing.
type ListPage struct {
	// Keys in ascending lexicographic order, at most the requested limit.
	Keys []string

	// Cursor resumes the listing after the last key in Keys.
	// Empty when Complete is true.
	Cursor string

	// Complete is true iff no further keys remain under the prefix.
	Complete bool
}

// Store is the flat ordered key-value surface the graph layer is built on.
type Store interface {
	// Get returns the value at key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes value at key, overwriting any existing value.
	Put(ctx context.Context, key string, value []byte) error

	// Delete removes key. Succeeds whether or not the key existed.
	Delete(ctx context.Context, key string) error

	// List returns up to limit keys with the given prefix in ascending
	// order, resuming after cursor when one is supplied.
	List(ctx context.Context, prefix string, limit int, cursor string) (*ListPage, error)
}

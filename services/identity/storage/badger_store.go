// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/saltline/driftwatch/services/identity/storage/badger"
)

var (
	// ErrKeyNotFound is returned by Get for absent keys.
	ErrKeyNotFound = errors.New("key not found")

	// ErrInvalidCursor is returned by List for cursors that do not decode.
	ErrInvalidCursor = errors.New("invalid cursor")

	// ErrInvalidLimit is returned by List for non-positive limits.
	ErrInvalidLimit = errors.New("limit must be positive")
)

// BadgerStore implements Store over the managed Badger instance.
//
// Cursors are the base64 encoding of the last key returned; resuming seeks
// to that key and skips it. Badger iterates keys in ascending byte order,
// which for UTF-8 keys is the lexicographic order the contract requires.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore wraps an open Badger database.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// Get returns the value at key, or ErrKeyNotFound.
func (s *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return ErrKeyNotFound
		}
		if err != nil {
			return fmt.Errorf("get %q: %w", key, err)
		}
		value, err = item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("read value %q: %w", key, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Put writes value at key, overwriting any existing value.
func (s *BadgerStore) Put(ctx context.Context, key string, value []byte) error {
	return s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		if err := txn.Set([]byte(key), value); err != nil {
			return fmt.Errorf("put %q: %w", key, err)
		}
		return nil
	})
}

// Delete removes key. Deleting an absent key is not an error.
func (s *BadgerStore) Delete(ctx context.Context, key string) error {
	return s.db.WithTxn(ctx, func(txn *badgerdb.Txn) error {
		if err := txn.Delete([]byte(key)); err != nil {
			return fmt.Errorf("delete %q: %w", key, err)
		}
		return nil
	})
}

// List returns up to limit keys with the given prefix in ascending order.
//
// Description:
//
//	Runs a keys-only iteration over the prefix. With a cursor, iteration
//	seeks to the cursor's key and skips it, so pages never overlap. The
//	page reports Complete=true when the iterator is exhausted at the page
//	boundary; otherwise it carries a cursor for the next page.
//
// Outputs:
//
//	*ListPage - Keys, resume cursor, completeness flag.
//	error - ErrInvalidLimit, ErrInvalidCursor, or a store failure.
func (s *BadgerStore) List(ctx context.Context, prefix string, limit int, cursor string) (*ListPage, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}

	seekKey := []byte(prefix)
	skipFirst := false
	if cursor != "" {
		decoded, err := base64.RawURLEncoding.DecodeString(cursor)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
		}
		seekKey = decoded
		skipFirst = true
	}

	page := &ListPage{}
	err := s.db.WithReadTxn(ctx, func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		it.Seek(seekKey)
		if skipFirst && it.ValidForPrefix([]byte(prefix)) && string(it.Item().Key()) == string(seekKey) {
			it.Next()
		}

		for ; it.ValidForPrefix([]byte(prefix)); it.Next() {
			if len(page.Keys) == limit {
				// One key past the limit: more pages remain.
				page.Cursor = base64.RawURLEncoding.EncodeToString([]byte(page.Keys[limit-1]))
				return nil
			}
			page.Keys = append(page.Keys, string(it.Item().KeyCopy(nil)))
		}

		page.Complete = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}
	return page, nil
}

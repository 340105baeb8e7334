// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saltline/driftwatch/services/identity/storage/badger"
)

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	db, err := badger.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewBadgerStore(db)
}

func TestBadgerStore_GetPutDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t.Run("get missing key", func(t *testing.T) {
		_, err := s.Get(ctx, "node:missing")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("put then get", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "node:a", []byte(`{"id":"a"}`)))

		got, err := s.Get(ctx, "node:a")
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"id":"a"}`), got)
	})

	t.Run("put overwrites", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "node:a", []byte("v1")))
		require.NoError(t, s.Put(ctx, "node:a", []byte("v2")))

		got, err := s.Get(ctx, "node:a")
		require.NoError(t, err)
		assert.Equal(t, []byte("v2"), got)
	})

	t.Run("delete then get", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "node:b", []byte("v")))
		require.NoError(t, s.Delete(ctx, "node:b"))

		_, err := s.Get(ctx, "node:b")
		assert.ErrorIs(t, err, ErrKeyNotFound)
	})

	t.Run("delete missing key succeeds", func(t *testing.T) {
		assert.NoError(t, s.Delete(ctx, "node:never-existed"))
	})
}

func TestBadgerStore_List(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Ten index rows under one prefix, plus noise under others.
	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("index:type:USER:%02d", i)
		require.NoError(t, s.Put(ctx, key, []byte("{}")))
	}
	require.NoError(t, s.Put(ctx, "index:type:IP:00", []byte("{}")))
	require.NoError(t, s.Put(ctx, "node:00", []byte("{}")))

	t.Run("returns keys in ascending order", func(t *testing.T) {
		page, err := s.List(ctx, "index:type:USER:", 100, "")
		require.NoError(t, err)
		assert.True(t, page.Complete)
		assert.Empty(t, page.Cursor)
		require.Len(t, page.Keys, 10)
		for i := 1; i < len(page.Keys); i++ {
			assert.Less(t, page.Keys[i-1], page.Keys[i])
		}
	})

	t.Run("respects prefix boundaries", func(t *testing.T) {
		page, err := s.List(ctx, "index:type:IP:", 100, "")
		require.NoError(t, err)
		require.Len(t, page.Keys, 1)
		assert.Equal(t, "index:type:IP:00", page.Keys[0])
	})

	t.Run("pages with cursor", func(t *testing.T) {
		var all []string
		cursor := ""
		pages := 0
		for {
			page, err := s.List(ctx, "index:type:USER:", 3, cursor)
			require.NoError(t, err)
			all = append(all, page.Keys...)
			pages++
			if page.Complete {
				assert.Empty(t, page.Cursor)
				break
			}
			require.NotEmpty(t, page.Cursor)
			cursor = page.Cursor
		}
		assert.Equal(t, 4, pages)
		require.Len(t, all, 10)
		for i := 1; i < len(all); i++ {
			assert.Less(t, all[i-1], all[i], "pages must not overlap")
		}
	})

	t.Run("exact page boundary is complete", func(t *testing.T) {
		page, err := s.List(ctx, "index:type:USER:", 10, "")
		require.NoError(t, err)
		assert.True(t, page.Complete)
		assert.Len(t, page.Keys, 10)
	})

	t.Run("empty prefix space", func(t *testing.T) {
		page, err := s.List(ctx, "index:nothing:", 10, "")
		require.NoError(t, err)
		assert.True(t, page.Complete)
		assert.Empty(t, page.Keys)
	})

	t.Run("rejects invalid cursor", func(t *testing.T) {
		_, err := s.List(ctx, "index:type:USER:", 10, "not base64!!")
		assert.ErrorIs(t, err, ErrInvalidCursor)
	})

	t.Run("rejects non-positive limit", func(t *testing.T) {
		_, err := s.List(ctx, "index:type:USER:", 0, "")
		assert.ErrorIs(t, err, ErrInvalidLimit)
	})
}

func TestBadgerStore_ContextCancelled(t *testing.T) {
	s := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Get(ctx, "node:a")
	assert.Error(t, err)

	err = s.Put(ctx, "node:a", []byte("v"))
	assert.Error(t, err)
}

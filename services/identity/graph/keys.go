// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Key layout over the flat store. Three namespaces, colon-delimited:
//
//	node:<nodeId>                          node record
//	edge:<edgeId>                          edge record
//	index:<propKey>:<propValue>:<nodeId>   index row {nodeId, value}
//
// Neither property keys nor encoded values are escaped. The node id is
// always the trailing segment and ids never contain ':', so extraction
// takes the substring after the last separator regardless of what the
// value segment contains.

const keySeparator = ":"

// indexRecord is the small JSON payload stored under each index key.
type indexRecord struct {
	NodeID string `json:"nodeId"`
	Value  any    `json:"value"`
}

func (db *DB) nodeKey(id string) string {
	return db.nodePrefix + id
}

func (db *DB) edgeKey(id string) string {
	return db.edgePrefix + id
}

func (db *DB) indexKey(prop string, value any, nodeID string) string {
	return db.indexValuePrefix(prop, value) + nodeID
}

// indexValuePrefix is the prefix shared by all index rows for one
// (property, value) pair. Listing it enumerates the matching node ids.
func (db *DB) indexValuePrefix(prop string, value any) string {
	return db.indexPrefix + prop + keySeparator + encodeIndexValue(value) + keySeparator
}

// encodeIndexValue renders a property value for embedding in an index key.
// Strings embed as themselves; other values embed as compact JSON.
func encodeIndexValue(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		// Property values are JSON-serializable by contract; this path
		// only triggers on caller misuse (channels, funcs).
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// nodeIDFromIndexKey recovers the node id from an index key.
func nodeIDFromIndexKey(key string) string {
	i := strings.LastIndex(key, keySeparator)
	if i < 0 {
		return key
	}
	return key[i+1:]
}

// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package graph

// PropType is the property key that carries a node's type tag. Queries by
// node type resolve through the index rows written for this property.
const PropType = "type"

// Properties is a property map for nodes and edges. Values must be
// JSON-serializable; string values index as themselves, everything else
// indexes as its compact JSON encoding.
type Properties map[string]any

// Clone returns a shallow copy. Nested values are shared.
func (p Properties) Clone() Properties {
	if p == nil {
		return Properties{}
	}
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// merge applies delta over p, overwriting existing keys.
func (p Properties) merge(delta Properties) {
	for k, v := range delta {
		p[k] = v
	}
}

// String returns the named property when present and a string, otherwise
// the empty string.
func (p Properties) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// Int returns the named property as an int. Numeric values round-trip
// through JSON as float64.
func (p Properties) Int(key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Node is a graph node record as persisted under the node key namespace.
type Node struct {
	ID         string     `json:"id"`
	Properties Properties `json:"properties"`
	InEdges    []string   `json:"inEdges"`
	OutEdges   []string   `json:"outEdges"`
}

// Type returns the node's type tag, or empty string if untyped.
func (n *Node) Type() string {
	return n.Properties.String(PropType)
}

// Edge is a directed typed edge record as persisted under the edge key
// namespace. Type is an arbitrary caller-chosen string.
type Edge struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	FromNodeID string     `json:"fromNodeId"`
	ToNodeID   string     `json:"toNodeId"`
	Properties Properties `json:"properties"`
}

// Direction selects which adjacency list an operation walks.
type Direction string

const (
	// DirectionIn walks edges pointing at the node.
	DirectionIn Direction = "in"

	// DirectionOut walks edges originating at the node.
	DirectionOut Direction = "out"

	// DirectionBoth walks both lists. Accepted by Traverse only.
	DirectionBoth Direction = "both"
)

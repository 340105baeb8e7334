// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tracker

import (
	"github.com/saltline/driftwatch/services/identity/deviceinfo"
	"github.com/saltline/driftwatch/services/identity/risk"
)

// Node types in the identity graph.
const (
	NodeTypeUser        = "USER"
	NodeTypeIP          = "IP"
	NodeTypeFingerprint = "FINGERPRINT"
)

// Edge types in the identity graph.
const (
	EdgeTypeUsesIP          = "USES_IP"
	EdgeTypeUsesFingerprint = "USES_FINGERPRINT"
)

// Property keys written by the tracker. Each node type carries exactly one
// natural key: userId, ip, or fingerprint.
const (
	PropUserID      = "userId"
	PropIP          = "ip"
	PropFingerprint = "fingerprint"
	PropFirstSeen   = "firstSeen"
	PropLastSeen    = "lastSeen"
	PropCount       = "count"
	PropMetadata    = "metadata"
)

// Classifier turns a raw user-agent header into device metadata.
type Classifier interface {
	Classify(rawUA string) deviceinfo.Metadata
}

// Stats carries the occurrence statistics of an edge.
type Stats struct {
	FirstSeen string `json:"firstSeen"`
	LastSeen  string `json:"lastSeen"`
	Count     int    `json:"count"`
}

// IPConnection is one IP linked to a user.
type IPConnection struct {
	IP    string `json:"ip"`
	Stats Stats  `json:"stats"`
}

// FingerprintConnection is one fingerprint linked to a user. Metadata is
// the device classification captured when the fingerprint node was first
// created.
type FingerprintConnection struct {
	Fingerprint string `json:"fingerprint"`
	Metadata    any    `json:"metadata,omitempty"`
	Stats       Stats  `json:"stats"`
}

// UserConnections lists everything linked to one user. Both slices are
// non-nil; an unknown user yields empty lists.
type UserConnections struct {
	IPs          []IPConnection          `json:"ips"`
	Fingerprints []FingerprintConnection `json:"fingerprints"`
}

// GraphNode is one node in the connection graph projection. Risk and
// RiskScore are set on USER nodes only. Metadata rides on FINGERPRINT
// nodes.
type GraphNode struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	Label     string     `json:"label"`
	Risk      risk.Level `json:"risk,omitempty"`
	RiskScore *int       `json:"riskScore,omitempty"`
	Metadata  any        `json:"metadata,omitempty"`
	Stats     Stats      `json:"stats"`
}

// GraphLink is one edge in the connection graph projection.
type GraphLink struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
	Stats  Stats  `json:"stats"`
}

// ConnectionGraph is a node-link projection of recent identity activity.
type ConnectionGraph struct {
	Nodes []GraphNode `json:"nodes"`
	Links []GraphLink `json:"links"`
}

// GraphOptions filter the connection graph projection.
//
// # Fields
//
//   - Hours: Window size; edges older than this are dropped. Zero or
//     negative means DefaultGraphHours.
//   - RiskThreshold: Users scoring below this are dropped. Zero keeps
//     everyone.
type GraphOptions struct {
	Hours         int
	RiskThreshold int
}

// DefaultGraphHours is the projection window used when none is given.
const DefaultGraphHours = 24

// userPageSize bounds each page of the USER enumeration during graph
// projection.
const userPageSize = 250

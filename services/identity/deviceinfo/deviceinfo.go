// Copyright (C) 2026 Saltline Systems (engineering@saltline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package deviceinfo classifies raw user-agent headers into the device
// metadata stored on fingerprint nodes. Fields the parser cannot determine
// fall back to "Unknown"; a missing device type falls back to "desktop".
package deviceinfo

import (
	"strings"

	"github.com/mileusna/useragent"
)

// Unknown is the fallback for fields the parser cannot determine.
const Unknown = "Unknown"

// DefaultDeviceType is the fallback device type.
const DefaultDeviceType = "desktop"

// Metadata describes the client device parsed from a user agent.
type Metadata struct {
	Browser        string `json:"browser"`
	BrowserVersion string `json:"browserVersion"`
	OS             string `json:"os"`
	OSVersion      string `json:"osVersion"`
	Device         string `json:"device"`
	DeviceType     string `json:"deviceType"`
	CPU            string `json:"cpu"`
}

// Classifier parses user-agent headers.
//
// # Thread Safety
//
// Classifier is stateless and safe for concurrent use.
type Classifier struct{}

// NewClassifier creates a Classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify parses rawUA into device metadata. Every field is populated;
// unparseable input yields the fallbacks rather than an error.
func (c *Classifier) Classify(rawUA string) Metadata {
	ua := useragent.Parse(rawUA)
	return Metadata{
		Browser:        orUnknown(ua.Name),
		BrowserVersion: orUnknown(ua.Version),
		OS:             orUnknown(ua.OS),
		OSVersion:      orUnknown(ua.OSVersion),
		Device:         orUnknown(ua.Device),
		DeviceType:     deviceType(ua),
		CPU:            cpuArchitecture(rawUA),
	}
}

func orUnknown(s string) string {
	if s == "" {
		return Unknown
	}
	return s
}

func deviceType(ua useragent.UserAgent) string {
	switch {
	case ua.Mobile:
		return "mobile"
	case ua.Tablet:
		return "tablet"
	default:
		return DefaultDeviceType
	}
}

// cpuArchitecture scans the raw header for architecture tokens. The 64-bit
// tokens must be checked before their 32-bit substrings.
func cpuArchitecture(rawUA string) string {
	s := strings.ToLower(rawUA)
	switch {
	case strings.Contains(s, "x86_64"),
		strings.Contains(s, "x64"),
		strings.Contains(s, "wow64"),
		strings.Contains(s, "win64"),
		strings.Contains(s, "amd64"):
		return "amd64"
	case strings.Contains(s, "aarch64"), strings.Contains(s, "arm64"):
		return "arm64"
	case strings.Contains(s, "arm"):
		return "arm"
	case strings.Contains(s, "i686"),
		strings.Contains(s, "i386"),
		strings.Contains(s, "x86"):
		return "ia32"
	case strings.Contains(s, "ppc"), strings.Contains(s, "powerpc"):
		return "ppc"
	default:
		return Unknown
	}
}

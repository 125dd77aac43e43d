// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

// Package geoip resolves client IP addresses to a coarse human-readable
// location ("City, Region") for session metadata.
//
// # Architecture
//
// Resolution is best-effort enrichment only: a session is never rejected
// because its origin could not be located, so every resolver must return
// an empty string rather than an error for unknown or private addresses.
package geoip

import (
	"context"
	"net"
)

// Resolver maps an IP address to a display location.
type Resolver interface {
	// Locate returns "City, Region" for the given IP, or "" when the
	// address is empty, private, or unknown.
	Locate(ctx context.Context, ip string) string
}

// # Static Resolver

// StaticResolver serves fixed lookups from an in-memory table. It backs
// development and testing environments where no GeoIP database is mounted.
type StaticResolver struct {
	locations map[string]string
}

// NewStaticResolver creates a resolver over a fixed ip→location table.
// A nil table yields a resolver that locates nothing.
func NewStaticResolver(locations map[string]string) *StaticResolver {
	return &StaticResolver{locations: locations}
}

// Locate implements [Resolver].
func (resolver *StaticResolver) Locate(_ context.Context, ip string) string {
	if ip == "" {
		return ""
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}

	// Private and loopback ranges never resolve to a real place.
	if parsed.IsLoopback() || parsed.IsPrivate() {
		return ""
	}

	return resolver.locations[ip]
}

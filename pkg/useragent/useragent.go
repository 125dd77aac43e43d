// Copyright (c) 2026 Dashtam. All rights reserved.
// Author: platform@dashtam.app

/*
Package useragent provides User-Agent string parsing to extract browser,
operating system, and device information for session enrichment.

The parser is keyword-based and intentionally small: session listings need
"Chrome on macOS (desktop)" level fidelity, not full UA-database precision.

Usage:

	info := useragent.Parse(r.UserAgent())
	fmt.Println(info.DeviceType, info.OS, info.Browser)
*/
package useragent

import "strings"

// # Device Classification

// DeviceType is the coarse classification of the requesting device.
type DeviceType string

const (
	DeviceDesktop DeviceType = "desktop"
	DeviceMobile  DeviceType = "mobile"
	DeviceTablet  DeviceType = "tablet"
	DeviceBot     DeviceType = "bot"
	DeviceUnknown DeviceType = "unknown"
)

// Info holds the parsed components of a User-Agent string.
//
// All fields fall back to "unknown" rather than empty strings so that
// serialized sessions always render a readable device description.
type Info struct {
	Raw        string     `json:"-"`
	DeviceType DeviceType `json:"device_type"`
	OS         string     `json:"os"`
	Browser    string     `json:"browser"`
}

// Describe renders a human-readable device summary for session listings.
//
// Example: "chrome on macos (desktop)".
func (i Info) Describe() string {
	return i.Browser + " on " + i.OS + " (" + string(i.DeviceType) + ")"
}

// # Parsing

// Parse extracts device information from a User-Agent header value.
//
// An empty input is permitted and yields an all-unknown [Info]; the session
// creation workflow treats a missing User-Agent as valid.
func Parse(raw string) Info {
	info := Info{
		Raw:        raw,
		DeviceType: DeviceUnknown,
		OS:         "unknown",
		Browser:    "unknown",
	}

	if raw == "" {
		return info
	}

	ua := strings.ToLower(raw)

	// Bots are detected first: many crawlers embed browser tokens too.
	for _, marker := range []string{"bot", "crawler", "spider", "slurp", "curl/", "wget/"} {
		if strings.Contains(ua, marker) {
			info.DeviceType = DeviceBot
			info.Browser = "bot"
			return info
		}
	}

	switch {
	case strings.Contains(ua, "ipad"):
		info.DeviceType = DeviceTablet
		info.OS = "ipados"
	case strings.Contains(ua, "iphone"):
		info.DeviceType = DeviceMobile
		info.OS = "ios"
	case strings.Contains(ua, "android") && strings.Contains(ua, "mobile"):
		info.DeviceType = DeviceMobile
		info.OS = "android"
	case strings.Contains(ua, "android"):
		info.DeviceType = DeviceTablet
		info.OS = "android"
	case strings.Contains(ua, "mac os x") || strings.Contains(ua, "macintosh"):
		info.DeviceType = DeviceDesktop
		info.OS = "macos"
	case strings.Contains(ua, "windows"):
		info.DeviceType = DeviceDesktop
		info.OS = "windows"
	case strings.Contains(ua, "linux"):
		info.DeviceType = DeviceDesktop
		info.OS = "linux"
	}

	// Browser detection order matters: Edge and Opera embed "chrome",
	// Chrome and Safari both embed "safari".
	switch {
	case strings.Contains(ua, "edg/") || strings.Contains(ua, "edge/"):
		info.Browser = "edge"
	case strings.Contains(ua, "opr/") || strings.Contains(ua, "opera"):
		info.Browser = "opera"
	case strings.Contains(ua, "firefox/"):
		info.Browser = "firefox"
	case strings.Contains(ua, "chrome/"):
		info.Browser = "chrome"
	case strings.Contains(ua, "safari/"):
		info.Browser = "safari"
	}

	return info
}

// internal/ua/ua.go
//
// User-Agent parsing helpers.
//
// This wrapper isolates the third-party `github.com/avct/uasurfer` API so
// the rest of the codebase never sees its enums or structs.  The audit
// trail records the summarised form, never the raw enums.
package ua

import (
	"fmt"
	"strconv"
	"strings"

	surfer "github.com/avct/uasurfer"
)

// Info carries the UA attributes recorded on audit events.
//
// Example (python-openstackclient):
//
//	Browser   "Unknown"
//	OS        "Linux"
//	Device    "Desktop"
//	IsBot     false
//
// Device will be one of: "Desktop", "Mobile", "Tablet", or "Other".
type Info struct {
	Browser   string `json:"browser,omitempty"`
	Version   string `json:"version,omitempty"`
	OS        string `json:"os,omitempty"`
	OSVersion string `json:"os_version,omitempty"`
	Device    string `json:"device,omitempty"`
	Platform  string `json:"platform,omitempty"`
	IsBot     bool   `json:"is_bot,omitempty"`
	Raw       string `json:"raw,omitempty"`
}

// Parse converts a raw header into an Info struct.  An empty header yields
// an empty Info.
func Parse(raw string) Info {
	if raw == "" {
		return Info{}
	}
	u := surfer.Parse(raw)

	info := Info{
		Browser:   strings.TrimPrefix(u.Browser.Name.String(), "Browser"),
		Version:   versionToString(u.Browser.Version),
		OS:        strings.TrimPrefix(u.OS.Name.String(), "OS"),
		OSVersion: versionToString(u.OS.Version),
		Platform:  strings.TrimPrefix(u.OS.Platform.String(), "Platform"),
		IsBot:     u.IsBot(),
		Raw:       raw,
	}

	switch u.DeviceType {
	case surfer.DeviceComputer:
		info.Device = "Desktop"
	case surfer.DeviceTablet:
		info.Device = "Tablet"
	case surfer.DevicePhone, surfer.DeviceWearable:
		info.Device = "Mobile"
	default:
		info.Device = "Other"
	}

	return info
}

// versionToString renders a semantic version in dotted form while trimming
// trailing zeros, e.g. 17.0.0 → "17", 17.3.0 → "17.3", 17.3.1 → "17.3.1".
func versionToString(v surfer.Version) string {
	if v.Major == 0 && v.Minor == 0 && v.Patch == 0 {
		return ""
	}
	if v.Patch != 0 {
		return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	}
	if v.Minor != 0 {
		return fmt.Sprintf("%d.%d", v.Major, v.Minor)
	}
	return strconv.Itoa(int(v.Major))
}

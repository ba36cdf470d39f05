package netwalker

import (
	"bufio"
	"regexp"
	"strings"
)

// DeviceIdentity is the parsed result of "show version".
type DeviceIdentity struct {
	Hostname        string // raw, pre-clean
	Platform        string
	SoftwareVersion string
	Serial          string
	HardwareModel   string
	Uptime          string
}

var (
	reMarkerIOSXE = regexp.MustCompile(`(?i)IOS-XE`)
	reMarkerIOS   = regexp.MustCompile(`(?i)IOS Software`)
	reMarkerNXOS  = regexp.MustCompile(`(?i)NX-OS`)
)

// DetectPlatform examines "show version" output for marker strings.
func DetectPlatform(showVersionOutput string) string {
	switch {
	case reMarkerNXOS.MatchString(showVersionOutput):
		return PlatformNXOS
	case reMarkerIOSXE.MatchString(showVersionOutput):
		return PlatformIOSXE
	case reMarkerIOS.MatchString(showVersionOutput):
		return PlatformIOS
	default:
		return PlatformUnknown
	}
}

var hostnameStopWords = map[string]struct{}{
	"kernel": {}, "system": {}, "device": {}, "switch": {}, "router": {}, "nexus": {}, "cisco": {},
}

var (
	reNXOSDeviceName   = regexp.MustCompile(`(?i)^\s*Device\s+name:\s*(\S+)\s*$`)
	rePromptLine       = regexp.MustCompile(`^(\S+)[#>]\s*$`)
	reUptimeIsLine     = regexp.MustCompile(`(?i)^\s*(\S+)\s+uptime\s+is\s+(.+)$`)
	reSoftwareVersion  = regexp.MustCompile(`(?i)Version\s+([A-Za-z0-9.()_-]+)`)
	reHardwareModel    = regexp.MustCompile(`(?i)cisco\s+(\S+)\s*\(`)
)

// ExtractHostname applies the prioritized pattern set from spec.md §4.3, in
// order: NX-OS "Device name:" line; prompt-line extraction; "<hostname>
// uptime is ..." line. Words in the stop-set never become the hostname.
func ExtractHostname(showVersionOutput string) string {
	candidate := ""
	sc := bufio.NewScanner(strings.NewReader(showVersionOutput))
	for sc.Scan() {
		line := sc.Text()
		if m := reNXOSDeviceName.FindStringSubmatch(line); m != nil {
			if isValidHostnameCandidate(m[1]) {
				return m[1]
			}
		}
	}

	sc = bufio.NewScanner(strings.NewReader(showVersionOutput))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if m := rePromptLine.FindStringSubmatch(line); m != nil {
			if isValidHostnameCandidate(m[1]) {
				candidate = m[1]
			}
		}
	}
	if candidate != "" {
		return candidate
	}

	sc = bufio.NewScanner(strings.NewReader(showVersionOutput))
	for sc.Scan() {
		if m := reUptimeIsLine.FindStringSubmatch(sc.Text()); m != nil {
			if isValidHostnameCandidate(m[1]) {
				return m[1]
			}
		}
	}

	return ""
}

func isValidHostnameCandidate(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	if _, stop := hostnameStopWords[strings.ToLower(s)]; stop {
		return false
	}
	return true
}

// ParseDeviceIdentity extracts a DeviceIdentity from "show version" output.
// The serial comes only from "show inventory" output, which also supplies
// the model when show version does not carry one.
func ParseDeviceIdentity(showVersionOutput, showInventoryOutput string) DeviceIdentity {
	id := DeviceIdentity{
		Hostname: ExtractHostname(showVersionOutput),
		Platform: DetectPlatform(showVersionOutput),
	}
	if m := reSoftwareVersion.FindStringSubmatch(showVersionOutput); m != nil {
		id.SoftwareVersion = m[1]
	}
	if m := reHardwareModel.FindStringSubmatch(showVersionOutput); m != nil {
		id.HardwareModel = m[1]
	}
	if m := reUptimeIsLine.FindStringSubmatch(showVersionOutput); m != nil {
		id.Uptime = strings.TrimSpace(m[2])
	}

	serial, model := parseInventorySerialModel(showInventoryOutput)
	if serial != "" {
		id.Serial = serial
	}
	if model != "" && id.HardwareModel == "" {
		id.HardwareModel = model
	}
	return id
}

var (
	reInvPID = regexp.MustCompile(`(?i)PID:\s*(\S+)`)
	reInvSN  = regexp.MustCompile(`(?i)SN:\s*(\S+)`)
)

// parseInventorySerialModel picks the serial/model from the first "show
// inventory" entry (the chassis entry is always listed first). PID and SN
// usually share the line after the NAME line, but some images put PID on
// the NAME line itself; both layouts are handled.
func parseInventorySerialModel(showInventoryOutput string) (serial, model string) {
	sc := bufio.NewScanner(strings.NewReader(showInventoryOutput))
	var pendingPID string
	for sc.Scan() {
		line := sc.Text()
		if m := reInvPID.FindStringSubmatch(line); m != nil {
			pendingPID = strings.TrimRight(m[1], ",")
		}
		if m := reInvSN.FindStringSubmatch(line); m != nil {
			return m[1], pendingPID
		}
	}
	return "", ""
}

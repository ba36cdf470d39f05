package netwalker

import (
	"regexp"
	"strings"
)

// NormalizeInterface canonicalizes an interface name for the given platform
// family. It is a pure function: no I/O, no failures, and unrecognized
// input is returned unchanged. It is idempotent:
// NormalizeInterface(NormalizeInterface(n, p), p) == NormalizeInterface(n, p).
func NormalizeInterface(name string, platform string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return name
	}

	if po := normalizePortChannel(name); po != "" {
		return po
	}

	if mgmt := normalizeManagement(name, platform); mgmt != "" {
		return mgmt
	}

	switch platform {
	case PlatformNXOS:
		return normalizeNXOS(name)
	case PlatformIOS, PlatformIOSXE:
		return normalizeIOSFamily(name)
	default:
		return name
	}
}

var reManagementAlias = regexp.MustCompile(`(?i)^(mgmt|management|ma|mgt)\s*0*$`)

func normalizeManagement(name, platform string) string {
	if !reManagementAlias.MatchString(strings.TrimSpace(name)) {
		return ""
	}
	if platform == PlatformNXOS {
		return "mgmt0"
	}
	return "Management0"
}

var rePortChannel = regexp.MustCompile(`(?i)^(port-?channel|po)\s*0*(\d+)$`)

func normalizePortChannel(name string) string {
	m := rePortChannel.FindStringSubmatch(strings.TrimSpace(name))
	if m == nil {
		return ""
	}
	return "Port-channel" + m[2]
}

// nxosPreserved matches interface forms NX-OS keeps verbatim: Ethernet<slot>/<port>.
var nxosPreserved = regexp.MustCompile(`(?i)^ethernet(\d+(/\d+)+)$`)

func normalizeNXOS(name string) string {
	trimmed := strings.TrimSpace(name)
	if m := nxosPreserved.FindStringSubmatch(trimmed); m != nil {
		return "Ethernet" + m[1]
	}
	return trimmed
}

// iosAbbrevs maps IOS/IOS-XE interface abbreviations to their long form.
// Order matters: longer/more specific prefixes must be tried before shorter
// ones that would otherwise match a prefix of them (e.g. "Te" before "T").
var iosAbbrevs = []struct {
	re   *regexp.Regexp
	long string
}{
	{regexp.MustCompile(`(?i)^twe(nty)?(gig(abit)?(e(thernet)?)?)?(\d.*)$`), "TwentyFiveGigE"},
	{regexp.MustCompile(`(?i)^hu(ndred)?(gig(abit)?(e(thernet)?)?)?(\d.*)$`), "HundredGigE"},
	{regexp.MustCompile(`(?i)^fo(rty)?(gig(abit)?(e(thernet)?)?)?(\d.*)$`), "FortyGigabitEthernet"},
	{regexp.MustCompile(`(?i)^te(n)?(gig(abit)?(e(thernet)?)?)?(\d.*)$`), "TenGigabitEthernet"},
	{regexp.MustCompile(`(?i)^gi(g(abit)?(e(thernet)?)?)?(\d.*)$`), "GigabitEthernet"},
	{regexp.MustCompile(`(?i)^fa(st)?(e(thernet)?)?(\d.*)$`), "FastEthernet"},
	{regexp.MustCompile(`(?i)^lo(opback)?(\d.*)$`), "Loopback"},
	{regexp.MustCompile(`(?i)^tu(nnel)?(\d.*)$`), "Tunnel"},
	{regexp.MustCompile(`(?i)^vl(an)?(\d.*)$`), "Vlan"},
}

// reIfaceSpacedAbbrev collapses the space tabular output puts between the
// type abbreviation and the port number ("Gig 1/0/1", "Ten 1/1").
var reIfaceSpacedAbbrev = regexp.MustCompile(`^([A-Za-z-]+)\s+(\d.*)$`)

func normalizeIOSFamily(name string) string {
	trimmed := strings.TrimSpace(name)
	if m := reIfaceSpacedAbbrev.FindStringSubmatch(trimmed); m != nil {
		trimmed = m[1] + m[2]
	}
	for _, a := range iosAbbrevs {
		m := a.re.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		suffix := m[len(m)-1]
		return a.long + suffix
	}
	return trimmed
}

// InterfaceTypeFor infers an InterfaceType tag from a canonical interface name.
func InterfaceTypeFor(canonicalName string) InterfaceType {
	lower := strings.ToLower(canonicalName)
	switch {
	case strings.HasPrefix(lower, "loopback"):
		return IfaceLoopback
	case strings.HasPrefix(lower, "vlan"):
		return IfaceVLAN
	case strings.HasPrefix(lower, "tunnel"):
		return IfaceTunnel
	case strings.HasPrefix(lower, "port-channel"):
		return IfacePortChannel
	case strings.HasPrefix(lower, "management"), lower == "mgmt0":
		return IfaceManagement
	default:
		return IfacePhysical
	}
}

// normalizeCapabilityToken maps a single CDP/LLDP capability code or word to
// the closed Capability set defined in the data model.
func normalizeCapabilityToken(s string) Capability {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch s {
	case "R", "ROUTER":
		return CapRouter
	case "S", "SWITCH":
		return CapSwitch
	case "B", "BRIDGE":
		return CapBridge
	case "H", "HOST":
		return CapHost
	case "T", "PHONE", "TELEPHONE":
		return CapPhone
	case "C", "CAMERA":
		return CapCamera
	case "PR", "PRINTER":
		return CapPrinter
	case "W", "AP", "ACCESS-POINT", "WLAN_AP":
		return CapAccessPoint
	case "WIRELESS":
		return CapWireless
	case "ST", "STATION":
		return CapStation
	default:
		return Capability(strings.ToLower(s))
	}
}

func normalizeCapabilities(tokens []string) []Capability {
	out := make([]Capability, 0, len(tokens))
	seen := make(map[Capability]struct{}, len(tokens))
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		c := normalizeCapabilityToken(t)
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

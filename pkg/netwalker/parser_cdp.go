package netwalker

import (
	"bufio"
	"strings"
)

// ParseCDPNeighborsDetail parses "show cdp neighbors detail" block output.
// Each block is separated by a line of dashes. Fields recognized:
// "Device ID:", "IP address:"/"IPv4 Address:"/"Mgmt address:", "Platform:",
// "Interface:", "Port ID (outgoing port):", "Capabilities:".
func ParseCDPNeighborsDetail(output string) []Neighbor {
	var out []Neighbor

	type blk struct {
		deviceID, ip, platform, localIntf, portID, caps string
	}
	flush := func(b *blk) {
		if b == nil || strings.TrimSpace(b.deviceID) == "" {
			return
		}
		n := Neighbor{
			RemoteHostname:  CleanHostname(b.deviceID),
			RemoteIP:        strings.TrimSpace(b.ip),
			LocalInterface:  NormalizeInterface(b.localIntf, PlatformIOSXE),
			RemoteInterface: NormalizeInterface(b.portID, PlatformIOSXE),
			Platform:        strings.TrimSpace(b.platform),
			Capabilities:    normalizeCapabilities(strings.Fields(strings.ReplaceAll(b.caps, ",", " "))),
			Protocol:        ProtocolCDP,
		}
		out = append(out, n)
	}

	var cur *blk
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		line := sc.Text()
		trim := strings.TrimSpace(line)

		if strings.HasPrefix(trim, "----") {
			flush(cur)
			cur = &blk{}
			continue
		}
		if cur == nil {
			cur = &blk{}
		}

		switch {
		case strings.HasPrefix(trim, "Device ID:"):
			cur.deviceID = strings.TrimSpace(strings.TrimPrefix(trim, "Device ID:"))
		case strings.HasPrefix(trim, "IP address:"):
			cur.ip = strings.TrimSpace(strings.TrimPrefix(trim, "IP address:"))
		case strings.HasPrefix(trim, "IPv4 Address:"):
			cur.ip = strings.TrimSpace(strings.TrimPrefix(trim, "IPv4 Address:"))
		case strings.HasPrefix(trim, "Mgmt address:"):
			if cur.ip == "" {
				cur.ip = strings.TrimSpace(strings.TrimPrefix(trim, "Mgmt address:"))
			}
		case strings.HasPrefix(trim, "Platform:"):
			// Platform and Capabilities share a line in IOS output:
			// "Platform: cisco WS-C3850-24T,  Capabilities: Switch IGMP"
			rest := strings.TrimPrefix(trim, "Platform:")
			if i := strings.Index(rest, "Capabilities:"); i >= 0 {
				cur.caps = strings.TrimSpace(rest[i+len("Capabilities:"):])
				rest = rest[:i]
			}
			cur.platform = strings.TrimSuffix(strings.TrimSpace(rest), ",")
		case strings.HasPrefix(trim, "Interface:"):
			rest := strings.TrimPrefix(trim, "Interface:")
			parts := strings.SplitN(rest, ",", 2)
			cur.localIntf = strings.TrimSpace(parts[0])
			if len(parts) == 2 {
				if i := strings.Index(parts[1], ":"); i >= 0 {
					cur.portID = strings.TrimSpace(parts[1][i+1:])
				}
			}
		case strings.HasPrefix(trim, "Port ID"):
			if i := strings.Index(trim, ":"); i >= 0 {
				cur.portID = strings.TrimSpace(trim[i+1:])
			}
		case strings.HasPrefix(trim, "Capabilities:"):
			cur.caps = strings.TrimSpace(strings.TrimPrefix(trim, "Capabilities:"))
		}
	}
	flush(cur)
	return out
}

// ParseCDPNeighborsTable parses "show cdp neighbors" tabular output, the
// Device Collector's fallback when the detail variant yields nothing.
//
// Grounded on the column-index approach: locate the header line, derive
// each field's starting column from its label, then slice each data row by
// those offsets. A device whose ID is too long to share a line with its
// other fields spills onto a following "detail" line that starts with
// whitespace under the Local Intrfce column.
func ParseCDPNeighborsTable(output string) []Neighbor {
	var out []Neighbor
	lines := strings.Split(output, "\n")

	headerLine := ""
	headerIndex := -1
	for i, line := range lines {
		if strings.Contains(line, "Local Intrfce") && strings.Contains(line, "Port ID") {
			headerLine = line
			headerIndex = i
			break
		}
	}
	if headerIndex == -1 {
		return out
	}

	localIntfIdx := strings.Index(headerLine, "Local Intrfce")
	holdtmeIdx := strings.Index(headerLine, "Holdtme")
	if holdtmeIdx == -1 {
		holdtmeIdx = strings.Index(headerLine, "Hldtme")
	}
	capIdx := strings.Index(headerLine, "Capability")
	platIdx := strings.Index(headerLine, "Platform")
	portIdx := strings.Index(headerLine, "Port ID")
	if localIntfIdx == -1 || holdtmeIdx == -1 || capIdx == -1 || platIdx == -1 || portIdx == -1 {
		return out
	}

	var lastDeviceID string
	for i := headerIndex + 1; i < len(lines); i++ {
		line := lines[i]
		trim := strings.TrimSpace(line)
		if trim == "" || strings.Contains(trim, "Total cdp entries") || strings.Contains(trim, "Device ID") {
			continue
		}

		isDetailLine := false
		if len(line) > localIntfIdx {
			deviceArea := strings.TrimSpace(line[:localIntfIdx])
			if deviceArea == "" && strings.TrimSpace(line[localIntfIdx:]) != "" {
				isDetailLine = true
			}
		}

		field := func(from, to int) string {
			if from >= len(line) {
				return ""
			}
			if to < 0 || to > len(line) {
				to = len(line)
			}
			if to < from {
				return ""
			}
			return strings.TrimSpace(line[from:to])
		}

		if isDetailLine {
			if lastDeviceID == "" {
				continue
			}
			n := cdpRowToNeighbor(lastDeviceID, field(localIntfIdx, holdtmeIdx), field(capIdx, platIdx), field(portIdx, -1))
			out = append(out, n)
			lastDeviceID = ""
			continue
		}

		if len(line) >= platIdx {
			deviceID := trim
			if len(line) > localIntfIdx {
				deviceID = strings.TrimSpace(line[:localIntfIdx])
			}
			n := cdpRowToNeighbor(deviceID, field(localIntfIdx, holdtmeIdx), field(capIdx, platIdx), field(portIdx, -1))
			out = append(out, n)
			lastDeviceID = ""
		} else {
			lastDeviceID = trim
		}
	}
	return out
}

func cdpRowToNeighbor(deviceID, localIntf, capsRaw, portID string) Neighbor {
	codes := strings.Fields(capsRaw)
	for i, c := range codes {
		// The CDP table legend uses "P" for Phone.
		if c == "P" {
			codes[i] = "PHONE"
		}
	}
	return Neighbor{
		RemoteHostname:  CleanHostname(deviceID),
		LocalInterface:  NormalizeInterface(localIntf, PlatformIOSXE),
		RemoteInterface: NormalizeInterface(portID, PlatformIOSXE),
		Capabilities:    normalizeCapabilities(codes),
		Protocol:        ProtocolCDP,
	}
}

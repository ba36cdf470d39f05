package netwalker

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"
)

// reVLANLine matches a "show vlan" / "show vlan brief" row:
// <number> <name> <status> <optional port list>. The trailing class is "*"
// (not "+") so a VLAN with no ports still matches (spec.md §4.3).
var reVLANLine = regexp.MustCompile(`^\s*(\d{1,4})\s+(\S[^\s].*?)\s+(active|act/unsup|suspended|shutdown)\s*(.*)\s*$`)

// ParseVLANs parses "show vlan" / "show vlan brief" output for IOS/IOS-XE.
func ParseVLANs(output string) []VLAN {
	var out []VLAN
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		line := sc.Text()
		m := reVLANLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		num, err := strconv.Atoi(m[1])
		if err != nil || num < 1 || num > 4094 {
			continue
		}
		ports := strings.TrimSpace(m[4])
		portCount := 0
		if ports != "" {
			portCount = len(strings.Split(ports, ","))
		}
		out = append(out, VLAN{
			Number:    num,
			Name:      strings.TrimSpace(m[2]),
			PortCount: portCount,
		})
	}
	return out
}

// reNXOSSectionHeader matches the "VLAN Type" section header that ends the
// NX-OS VLAN table; rows before it share reVLANLine's IOS row shape.
var reNXOSSectionHeader = regexp.MustCompile(`^\s*VLAN\s+Type\b`)

// ParseVLANsNXOS parses NX-OS "show vlan" output, stopping at the "VLAN
// Type" section header so type-info rows are never mistaken for VLANs
// (spec.md §4.3).
func ParseVLANsNXOS(output string) []VLAN {
	var out []VLAN
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		line := sc.Text()
		if reNXOSSectionHeader.MatchString(line) {
			break
		}
		m := reVLANLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		num, err := strconv.Atoi(m[1])
		if err != nil || num < 1 || num > 4094 {
			continue
		}
		ports := strings.TrimSpace(m[4])
		portCount := 0
		if ports != "" {
			portCount = len(strings.Split(ports, ","))
		}
		out = append(out, VLAN{
			Number:    num,
			Name:      strings.TrimSpace(m[2]),
			PortCount: portCount,
		})
	}
	return out
}

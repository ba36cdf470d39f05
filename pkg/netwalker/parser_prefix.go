package netwalker

import (
	"bufio"
	"fmt"
	"net"
	"regexp"
	"strings"
)

// PrefixException records an input line that could not be resolved to a
// valid IPv4 network (spec.md §4.8 step 6/7), tagged with the VRF/source
// scope it was found in so it can be persisted to parse_exceptions.
type PrefixException struct {
	VRF     string
	Source  string
	RawLine string
	Reason  string
}

var (
	reCIDRForm   = regexp.MustCompile(`\b(\d{1,3}(?:\.\d{1,3}){3})/(\d{1,2})\b`)
	reMaskForm   = regexp.MustCompile(`\b(\d{1,3}(?:\.\d{1,3}){3})\s+(\d{1,3}(?:\.\d{1,3}){3})\b`)
	reHostRoute  = regexp.MustCompile(`(?m)^\s*L\s+(\d{1,3}(?:\.\d{1,3}){3})/(\d{1,2})`)
	reProtocolCode = regexp.MustCompile(`^\s*([BCDLOS])\s`)
	reBGPAmbiguous = regexp.MustCompile(`(?m)^\s*\*?>?\s*(\d{1,3}(?:\.\d{1,3}){3})\s`)
)

// NormalizeCIDR converts an IPv4 network literal (CIDR or dotted mask form,
// the mask after a space or a slash) to canonical CIDR form: network address
// with prefix length, address bits outside the mask zeroed. Returns an error
// for anything that does not parse as a valid IPv4 network.
func NormalizeCIDR(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty prefix")
	}
	if i := strings.IndexByte(raw, '/'); i >= 0 && !strings.Contains(raw[i+1:], ".") {
		ip, network, err := net.ParseCIDR(raw)
		if err != nil {
			return "", err
		}
		if ip.To4() == nil {
			return "", fmt.Errorf("not an IPv4 prefix: %q", raw)
		}
		return network.String(), nil
	}
	parts := strings.Fields(strings.Replace(raw, "/", " ", 1))
	if len(parts) != 2 {
		return "", fmt.Errorf("not a recognized CIDR or mask-form prefix: %q", raw)
	}
	ip := net.ParseIP(parts[0]).To4()
	maskIP := net.ParseIP(parts[1]).To4()
	if ip == nil || maskIP == nil {
		return "", fmt.Errorf("invalid address or mask in %q", raw)
	}
	mask := net.IPv4Mask(maskIP[0], maskIP[1], maskIP[2], maskIP[3])
	ones, bits := mask.Size()
	if bits == 0 {
		return "", fmt.Errorf("non-contiguous mask in %q", raw)
	}
	network := ip.Mask(mask)
	return fmt.Sprintf("%s/%d", network.String(), ones), nil
}

// ParseRIBPrefixes extracts prefixes from "show ip route" family output.
// source should be "rib" or "connected" depending on which command variant
// produced the text.
func ParseRIBPrefixes(output, vrf, source string) ([]Prefix, []PrefixException) {
	var prefixes []Prefix
	var exceptions []PrefixException

	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		var raw string
		if m := reCIDRForm.FindStringSubmatch(line); m != nil {
			raw = m[1] + "/" + m[2]
		} else if m := reMaskForm.FindStringSubmatch(line); m != nil {
			raw = m[1] + " " + m[2]
		} else {
			continue
		}

		cidr, err := NormalizeCIDR(raw)
		if err != nil {
			exceptions = append(exceptions, PrefixException{VRF: vrfOrGlobal(vrf), Source: source, RawLine: line, Reason: err.Error()})
			continue
		}

		proto := ""
		if m := reProtocolCode.FindStringSubmatch(line); m != nil {
			proto = m[1]
		}

		prefixes = append(prefixes, Prefix{
			CIDR:     cidr,
			VRF:      vrfOrGlobal(vrf),
			Source:   source,
			Protocol: proto,
		})
	}
	return prefixes, exceptions
}

// ParseBGPPrefixes extracts prefixes from "show ip bgp" family output. Lines
// that carry a full CIDR parse directly; lines lacking a prefix length are
// returned separately as ambiguous for resolution per spec.md §4.8 step 7.
func ParseBGPPrefixes(output, vrf string) (resolved []Prefix, ambiguous []string, exceptions []PrefixException) {
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		line := sc.Text()
		trim := strings.TrimSpace(line)
		if trim == "" || strings.HasPrefix(trim, "Network") || strings.HasPrefix(trim, "BGP table") {
			continue
		}

		if m := reCIDRForm.FindStringSubmatch(line); m != nil {
			cidr, err := NormalizeCIDR(m[1] + "/" + m[2])
			if err != nil {
				exceptions = append(exceptions, PrefixException{VRF: vrfOrGlobal(vrf), Source: "bgp", RawLine: line, Reason: err.Error()})
				continue
			}
			resolved = append(resolved, Prefix{CIDR: cidr, VRF: vrfOrGlobal(vrf), Source: "bgp"})
			continue
		}

		if m := reBGPAmbiguous.FindStringSubmatch(line); m != nil {
			ambiguous = append(ambiguous, m[1])
		}
	}
	return resolved, ambiguous, exceptions
}

// ParseHostRoutes extracts "L a.b.c.d/32" style local host routes.
func ParseHostRoutes(output, vrf string) []Prefix {
	var out []Prefix
	matches := reHostRoute.FindAllStringSubmatch(output, -1)
	for _, m := range matches {
		cidr, err := NormalizeCIDR(m[1] + "/" + m[2])
		if err != nil {
			continue
		}
		out = append(out, Prefix{CIDR: cidr, VRF: vrfOrGlobal(vrf), Source: "connected", Protocol: "L"})
	}
	return out
}

func vrfOrGlobal(vrf string) string {
	vrf = strings.TrimSpace(vrf)
	if vrf == "" {
		return "global"
	}
	return vrf
}

// ParseVRFNames parses "show vrf" output for VRF names. Empty output is
// legal and yields an empty (not nil) slice.
func ParseVRFNames(output string) []string {
	names := make([]string, 0)
	sc := bufio.NewScanner(strings.NewReader(output))
	header := true
	for sc.Scan() {
		line := sc.Text()
		trim := strings.TrimSpace(line)
		if trim == "" {
			continue
		}
		if header {
			if strings.Contains(trim, "Name") || strings.Contains(trim, "VRF-Name") {
				header = false
			}
			continue
		}
		fields := strings.Fields(trim)
		if len(fields) == 0 {
			continue
		}
		names = append(names, sanitizeVRFName(fields[0]))
	}
	return names
}

// PrefixAggregateKey is the cross-device aggregation key.
func PrefixAggregateKey(vrf, cidr string) string {
	return vrfOrGlobal(vrf) + "|" + cidr
}

// SummaryRelation records that Summary strictly contains Component within
// one (device, vrf) scope (spec.md §4.8 step 9).
type SummaryRelation struct {
	Summary   string
	Component string
}

// FindSummarizations scans prefixes within one (device, vrf) scope for
// summary/component relationships. Prefixes are sorted ascending by mask
// length before scanning so the comparison is O(n^2) in prefixes per VRF,
// never needing to re-scan already-emitted relations.
func FindSummarizations(prefixes []string) []SummaryRelation {
	type parsed struct {
		raw string
		net *net.IPNet
		len int
	}
	parsedList := make([]parsed, 0, len(prefixes))
	for _, p := range prefixes {
		_, n, err := net.ParseCIDR(p)
		if err != nil {
			continue
		}
		ones, _ := n.Mask.Size()
		parsedList = append(parsedList, parsed{raw: p, net: n, len: ones})
	}

	for i := 0; i < len(parsedList); i++ {
		for j := i + 1; j < len(parsedList); j++ {
			if parsedList[j].len < parsedList[i].len {
				parsedList[i], parsedList[j] = parsedList[j], parsedList[i]
			}
		}
	}

	var out []SummaryRelation
	for i := 0; i < len(parsedList); i++ {
		for j := i + 1; j < len(parsedList); j++ {
			if parsedList[i].len >= parsedList[j].len {
				continue
			}
			if parsedList[i].net.Contains(parsedList[j].net.IP) {
				out = append(out, SummaryRelation{Summary: parsedList[i].raw, Component: parsedList[j].raw})
			}
		}
	}
	return out
}

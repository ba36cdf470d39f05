package netwalker

import (
	"net"
	"path/filepath"
	"regexp"
	"strings"
)

// FilterCriteria holds the four independent exclusion lists from spec.md
// §4.4. Any hit excludes the candidate device.
type FilterCriteria struct {
	ExcludeHostnames    []string // fnmatch-style, case-insensitive
	ExcludeIPRanges     []string // CIDR
	ExcludePlatforms    []string // substrings, case-insensitive
	ExcludeCapabilities []string // whole-word matches
}

// Filter evaluates FilterCriteria. It is pure: no I/O, always returns in
// finite time (spec.md §8 property 3).
type Filter struct {
	criteria FilterCriteria
	ipNets   []*net.IPNet
}

// NewFilter compiles a FilterCriteria into a ready-to-use Filter. Malformed
// CIDR entries are skipped; they can never match, so they behave as if
// absent rather than failing the whole crawl.
func NewFilter(c FilterCriteria) *Filter {
	f := &Filter{criteria: c}
	for _, cidr := range c.ExcludeIPRanges {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}
		_, n, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		f.ipNets = append(f.ipNets, n)
	}
	return f
}

// ShouldExclude decides whether to drop a candidate device. platform and
// capabilities are optional (pass "" / nil before they are known — stage 1
// of spec.md §4.4); when present, they are also evaluated (stage 2).
func (f *Filter) ShouldExclude(hostname, ip, platform string, capabilities []string) (bool, string) {
	if f.matchesHostnamePattern(hostname) {
		return true, ReasonFilteredPattern
	}
	if f.matchesIPRange(ip) {
		return true, ReasonFilteredPattern
	}
	if platform == "" && len(capabilities) == 0 {
		return false, ""
	}
	if f.matchesPlatform(platform) || f.matchesCapability(capabilities) {
		return true, FilteredByPlatform(platform, capabilities)
	}
	return false, ""
}

func (f *Filter) matchesHostnamePattern(hostname string) bool {
	h := strings.ToLower(strings.TrimSpace(hostname))
	if h == "" {
		return false
	}
	for _, pattern := range f.criteria.ExcludeHostnames {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if pattern == "" {
			continue
		}
		if matched, err := filepath.Match(pattern, h); err == nil && matched {
			return true
		}
	}
	return false
}

func (f *Filter) matchesIPRange(ip string) bool {
	ip = strings.TrimSpace(ip)
	if ip == "" || len(f.ipNets) == 0 {
		return false
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, n := range f.ipNets {
		if n.Contains(parsed) {
			return true
		}
	}
	return false
}

func (f *Filter) matchesPlatform(platform string) bool {
	platform = strings.ToLower(strings.TrimSpace(platform))
	if platform == "" {
		return false
	}
	for _, substr := range f.criteria.ExcludePlatforms {
		substr = strings.ToLower(strings.TrimSpace(substr))
		if substr == "" {
			continue
		}
		if strings.Contains(platform, substr) {
			return true
		}
	}
	return false
}

// matchesCapability performs a word-boundary match: an exclusion of
// "host phone" does not match a lone capability "phone" (spec.md §4.4).
func (f *Filter) matchesCapability(capabilities []string) bool {
	if len(capabilities) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(capabilities))
	for _, c := range capabilities {
		set[strings.ToLower(strings.TrimSpace(c))] = struct{}{}
	}
	for _, tok := range f.criteria.ExcludeCapabilities {
		tok = strings.ToLower(strings.TrimSpace(tok))
		if tok == "" {
			continue
		}
		if _, ok := set[tok]; ok {
			return true
		}
	}
	return false
}

// sanitizeVRFName replaces characters outside [A-Za-z0-9_-] for use in CLI
// command construction (spec.md §4.8 step 3).
var reVRFUnsafe = regexp.MustCompile(`[^A-Za-z0-9_-]`)

func sanitizeVRFName(vrf string) string {
	return reVRFUnsafe.ReplaceAllString(strings.TrimSpace(vrf), "")
}

package netwalker

import "testing"

func TestFilterHostnamePattern(t *testing.T) {
	f := NewFilter(FilterCriteria{ExcludeHostnames: []string{"lab-*"}})
	excl, reason := f.ShouldExclude("LAB-SW01", "", "", nil)
	if !excl {
		t.Fatalf("expected exclusion for lab-sw01")
	}
	if reason != ReasonFilteredPattern {
		t.Errorf("got reason %q, want %q", reason, ReasonFilteredPattern)
	}
}

func TestFilterIPRange(t *testing.T) {
	f := NewFilter(FilterCriteria{ExcludeIPRanges: []string{"10.99.0.0/16"}})
	excl, _ := f.ShouldExclude("", "10.99.5.5", "", nil)
	if !excl {
		t.Fatalf("expected exclusion for address inside excluded CIDR")
	}
	if excl, _ := f.ShouldExclude("", "10.1.1.1", "", nil); excl {
		t.Fatalf("address outside excluded CIDR should not be excluded")
	}
}

func TestFilterMalformedCIDRIgnored(t *testing.T) {
	f := NewFilter(FilterCriteria{ExcludeIPRanges: []string{"not-a-cidr"}})
	if excl, _ := f.ShouldExclude("", "10.1.1.1", "", nil); excl {
		t.Fatalf("malformed CIDR entry must never match")
	}
}

func TestFilterPlatformSubstring(t *testing.T) {
	f := NewFilter(FilterCriteria{ExcludePlatforms: []string{"nx-os"}})
	excl, reason := f.ShouldExclude("sw01", "", "nx-os", nil)
	if !excl {
		t.Fatalf("expected platform exclusion")
	}
	if reason == "" {
		t.Errorf("expected a non-empty reason")
	}
}

func TestFilterStage1SkipsPlatformWhenUnknown(t *testing.T) {
	f := NewFilter(FilterCriteria{ExcludePlatforms: []string{"nx-os"}})
	excl, _ := f.ShouldExclude("sw01", "10.0.0.1", "", nil)
	if excl {
		t.Fatalf("stage 1 (pre-connect) must not evaluate platform/capability criteria")
	}
}

func TestFilterCapabilityWordBoundary(t *testing.T) {
	f := NewFilter(FilterCriteria{ExcludeCapabilities: []string{"host phone"}})
	if excl, _ := f.ShouldExclude("sw01", "", "ios", []string{"phone"}); excl {
		t.Fatalf("a two-word exclusion token must not match a lone capability")
	}
}

func TestFilterCapabilityExactMatch(t *testing.T) {
	f := NewFilter(FilterCriteria{ExcludeCapabilities: []string{"phone"}})
	if excl, _ := f.ShouldExclude("sw01", "", "ios", []string{"phone"}); !excl {
		t.Fatalf("expected capability match")
	}
}

func TestFilterTotalityNeverPanics(t *testing.T) {
	f := NewFilter(FilterCriteria{})
	inputs := []struct{ hostname, ip, platform string }{
		{"", "", ""},
		{"  ", "garbage-ip", "???"},
		{"UP.PER.Case", "256.256.256.256", "IOS-XE"},
	}
	for _, in := range inputs {
		_, _ = f.ShouldExclude(in.hostname, in.ip, in.platform, nil)
	}
}

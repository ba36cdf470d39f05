package netwalker

import "testing"

func TestNormalizeCIDRRoundTrip(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"10.0.0.5/24", "10.0.0.0/24"},
		{"10.0.0.0/255.255.255.0", "10.0.0.0/24"},
		{"10.0.0.0/24", "10.0.0.0/24"},
	}
	for _, c := range cases {
		got, err := NormalizeCIDR(c.in)
		if err != nil {
			t.Fatalf("NormalizeCIDR(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("NormalizeCIDR(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizeCIDRRejectsGarbage(t *testing.T) {
	if _, err := NormalizeCIDR("not-a-prefix"); err == nil {
		t.Fatalf("expected an error for malformed input")
	}
}

func TestPrefixAggregateKeyDistinguishesVRF(t *testing.T) {
	a := PrefixAggregateKey("", "10.0.0.0/24")
	b := PrefixAggregateKey("CUSTOMER-A", "10.0.0.0/24")
	if a == b {
		t.Errorf("same CIDR in different VRFs must not collide")
	}
}

func TestFindSummarizationsDetectsContainment(t *testing.T) {
	rels := FindSummarizations([]string{"10.0.0.0/24", "10.0.1.0/24", "10.0.0.0/16"})
	if len(rels) != 2 {
		t.Fatalf("got %d relations, want 2 (both /24s summarized by the /16): %+v", len(rels), rels)
	}
	for _, r := range rels {
		if r.Summary != "10.0.0.0/16" {
			t.Errorf("got summary %q, want 10.0.0.0/16", r.Summary)
		}
	}
}

func TestFindSummarizationsNoFalsePositives(t *testing.T) {
	rels := FindSummarizations([]string{"10.0.0.0/24", "10.1.0.0/24"})
	if len(rels) != 0 {
		t.Errorf("disjoint prefixes must produce no summarization relations, got %+v", rels)
	}
}

package netwalker

import "testing"

const cdpDetailFixture = `-------------------------
Device ID: core-sw01.lab.local(FCW1111A0BC)
Entry address(es):
  IP address: 10.0.0.1
Platform: cisco WS-C3850-24T,  Capabilities: Switch IGMP
Interface: GigabitEthernet1/0/1,  Port ID (outgoing port): GigabitEthernet1/0/24
-------------------------
Device ID: phone01
Entry address(es):
  IP address: 10.0.1.5
Platform: cisco IP Phone,  Capabilities: Host Phone
Interface: GigabitEthernet1/0/2,  Port ID (outgoing port): Port 1
`

func TestParseCDPNeighborsDetail(t *testing.T) {
	neighbors := ParseCDPNeighborsDetail(cdpDetailFixture)
	if len(neighbors) != 2 {
		t.Fatalf("got %d neighbors, want 2", len(neighbors))
	}

	first := neighbors[0]
	if first.RemoteHostname != "core-sw01.lab.local" {
		t.Errorf("got hostname %q, want cleaned hostname without serial suffix", first.RemoteHostname)
	}
	if first.RemoteIP != "10.0.0.1" {
		t.Errorf("got IP %q, want 10.0.0.1", first.RemoteIP)
	}
	if first.LocalInterface != "GigabitEthernet1/0/1" {
		t.Errorf("got local interface %q", first.LocalInterface)
	}
	if first.RemoteInterface != "GigabitEthernet1/0/24" {
		t.Errorf("got remote interface %q", first.RemoteInterface)
	}
	if first.Protocol != ProtocolCDP {
		t.Errorf("got protocol %q, want cdp", first.Protocol)
	}

	second := neighbors[1]
	if second.RemoteHostname != "phone01" {
		t.Errorf("got hostname %q", second.RemoteHostname)
	}
	foundHost, foundPhone := false, false
	for _, c := range second.Capabilities {
		if c == CapHost {
			foundHost = true
		}
		if c == CapPhone {
			foundPhone = true
		}
	}
	if !foundHost || !foundPhone {
		t.Errorf("expected Host and Phone capabilities, got %v", second.Capabilities)
	}
}

const cdpTableFixture = `Capability Codes: R - Router, T - Trans Bridge, B - Source Route Bridge
                  S - Switch, H - Host, I - IGMP, r - Repeater, P - Phone

Device ID        Local Intrfce     Holdtme    Capability  Platform  Port ID
core-sw01.lab.local
                 Gig 1/0/1         155          S I       WS-C3850  Gig 1/0/24
phone01          Gig 1/0/2         120          H P       IP Phone  Port 1

Total cdp entries displayed : 2
`

func TestParseCDPNeighborsTable(t *testing.T) {
	neighbors := ParseCDPNeighborsTable(cdpTableFixture)
	if len(neighbors) != 2 {
		t.Fatalf("got %d neighbors, want 2: %+v", len(neighbors), neighbors)
	}

	first := neighbors[0]
	if first.RemoteHostname != "core-sw01.lab.local" {
		t.Errorf("got hostname %q, want the spilled-over device id", first.RemoteHostname)
	}
	if first.LocalInterface != "GigabitEthernet1/0/1" {
		t.Errorf("got local interface %q", first.LocalInterface)
	}
	if first.RemoteInterface != "GigabitEthernet1/0/24" {
		t.Errorf("got remote interface %q", first.RemoteInterface)
	}

	second := neighbors[1]
	if second.RemoteHostname != "phone01" {
		t.Errorf("got hostname %q", second.RemoteHostname)
	}
	foundPhone := false
	for _, c := range second.Capabilities {
		if c == CapPhone {
			foundPhone = true
		}
	}
	if !foundPhone {
		t.Errorf("expected Phone capability from the P code, got %v", second.Capabilities)
	}
}

func TestParseCDPNeighborsDetailEmptyOutput(t *testing.T) {
	if got := ParseCDPNeighborsDetail(""); len(got) != 0 {
		t.Errorf("expected no neighbors for empty input, got %v", got)
	}
}

package netwalker

import "testing"

const vlanBriefFixture = `
VLAN Name                             Status    Ports
---- -------------------------------- --------- -------------------------------
1    default                          active    Gi1/0/1, Gi1/0/2
10   USERS                            active
20   VOICE                            active    Gi1/0/3
`

func TestParseVLANs(t *testing.T) {
	vlans := ParseVLANs(vlanBriefFixture)
	if len(vlans) != 3 {
		t.Fatalf("got %d vlans, want 3: %+v", len(vlans), vlans)
	}
	if vlans[0].Number != 1 || vlans[0].Name != "default" || vlans[0].PortCount != 2 {
		t.Errorf("unexpected vlan 1: %+v", vlans[0])
	}
	if vlans[1].Number != 10 || vlans[1].PortCount != 0 {
		t.Errorf("a VLAN with zero ports must still be parsed: %+v", vlans[1])
	}
}

const vlanNXOSFixture = `
VLAN Name                             Status    Ports
---- -------------------------------- --------- -------------------------------
1    default                          active    Eth1/1
100  SERVERS                          active    Eth1/2, Eth1/3

VLAN Type         Vlan-mode
---- ----- ----------------
1    enet  CE
`

func TestParseVLANsNXOSStopsAtTypeSection(t *testing.T) {
	vlans := ParseVLANsNXOS(vlanNXOSFixture)
	if len(vlans) != 2 {
		t.Fatalf("got %d vlans, want 2 (the trailing 'VLAN Type' section must be excluded): %+v", len(vlans), vlans)
	}
	if vlans[1].Number != 100 || vlans[1].PortCount != 2 {
		t.Errorf("unexpected vlan 100: %+v", vlans[1])
	}
}

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"netwalker/pkg/netwalker"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "netwalker.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func deviceCount(t *testing.T, s *Store, hostname string) int {
	t.Helper()
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM devices WHERE device_name = ?`, hostname).Scan(&n); err != nil {
		t.Fatalf("count devices %s: %v", hostname, err)
	}
	return n
}

// Scenario B (spec.md §8 Scenario B, property 6): a two-hop linear chain
// observed from both sides of each adjacency stores each link exactly once.
func TestWriteDeviceReportDedupesBidirectionalLinks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now()

	a := netwalker.DeviceReport{
		Hostname: "a", Platform: netwalker.PlatformIOS, Serials: []string{"SERA1"},
		CollectedAt: now,
		Neighbors: []netwalker.Neighbor{
			{RemoteHostname: "b", LocalInterface: "GigabitEthernet1/0/1", RemoteInterface: "GigabitEthernet1/0/2", Protocol: netwalker.ProtocolCDP},
		},
	}
	b := netwalker.DeviceReport{
		Hostname: "b", Platform: netwalker.PlatformIOS, Serials: []string{"SERB1"},
		CollectedAt: now,
		Neighbors: []netwalker.Neighbor{
			{RemoteHostname: "a", LocalInterface: "GigabitEthernet1/0/2", RemoteInterface: "GigabitEthernet1/0/1", Protocol: netwalker.ProtocolCDP},
			{RemoteHostname: "c", LocalInterface: "GigabitEthernet1/0/3", RemoteInterface: "GigabitEthernet1/0/1", Protocol: netwalker.ProtocolCDP},
		},
	}
	c := netwalker.DeviceReport{
		Hostname: "c", Platform: netwalker.PlatformIOS, Serials: []string{"SERC1"},
		CollectedAt: now,
		Neighbors: []netwalker.Neighbor{
			{RemoteHostname: "b", LocalInterface: "GigabitEthernet1/0/1", RemoteInterface: "GigabitEthernet1/0/3", Protocol: netwalker.ProtocolCDP},
		},
	}

	for _, r := range []netwalker.DeviceReport{a, b, c} {
		if err := s.WriteDeviceReport(ctx, r); err != nil {
			t.Fatalf("WriteDeviceReport(%s): %v", r.Hostname, err)
		}
	}

	var deviceRows int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM devices`).Scan(&deviceRows); err != nil {
		t.Fatalf("count devices: %v", err)
	}
	if deviceRows != 3 {
		t.Errorf("expected 3 device rows, got %d", deviceRows)
	}

	var neighborRows int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM device_neighbors`).Scan(&neighborRows); err != nil {
		t.Fatalf("count neighbors: %v", err)
	}
	if neighborRows != 2 {
		t.Errorf("expected 2 neighbor rows (A-B and B-C, each deduped), got %d", neighborRows)
	}
}

// Scenario C / property 7: a placeholder created by a neighbor observation
// is promoted, not duplicated, once the real device is walked; first_seen
// is preserved.
func TestPlaceholderPromotionPreservesFirstSeen(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	t1 := time.Now().Add(-time.Hour)

	a := netwalker.DeviceReport{
		Hostname: "a", Platform: netwalker.PlatformIOS, Serials: []string{"SERA1"},
		CollectedAt: t1,
		Neighbors: []netwalker.Neighbor{
			{RemoteHostname: "b-sw01", RemoteIP: "10.0.0.2", LocalInterface: "Gi1/0/1", RemoteInterface: "Gi1/0/1", Protocol: netwalker.ProtocolCDP},
		},
	}
	if err := s.WriteDeviceReport(ctx, a); err != nil {
		t.Fatalf("write A: %v", err)
	}

	if n := deviceCount(t, s, "a"); n != 1 {
		t.Fatalf("expected 1 row for a, got %d", n)
	}
	if n := deviceCount(t, s, "b-sw01"); n != 1 {
		t.Fatalf("expected 1 placeholder row for b-sw01, got %d", n)
	}

	var placeholderFirstSeen time.Time
	var placeholderSerialVal string
	if err := s.db.QueryRow(`SELECT first_seen, serial_number FROM devices WHERE device_name = 'b-sw01'`).Scan(&placeholderFirstSeen, &placeholderSerialVal); err != nil {
		t.Fatalf("query placeholder: %v", err)
	}
	if placeholderSerialVal != placeholderSerial {
		t.Fatalf("expected placeholder serial %q, got %q", placeholderSerial, placeholderSerialVal)
	}

	t2 := t1.Add(30 * time.Minute)
	walked := netwalker.DeviceReport{
		Hostname: "b-sw01", Platform: netwalker.PlatformIOS, Serials: []string{"SERB-REAL"}, HardwareModel: "WS-C3850-24",
		CollectedAt: t2,
	}
	if err := s.WriteDeviceReport(ctx, walked); err != nil {
		t.Fatalf("write walked b-sw01: %v", err)
	}

	if n := deviceCount(t, s, "b-sw01"); n != 1 {
		t.Fatalf("expected exactly 1 row for b-sw01 after promotion, got %d", n)
	}

	var gotFirstSeen time.Time
	var gotSerial, gotModel string
	if err := s.db.QueryRow(`SELECT first_seen, serial_number, hardware_model FROM devices WHERE device_name = 'b-sw01'`).Scan(&gotFirstSeen, &gotSerial, &gotModel); err != nil {
		t.Fatalf("query promoted row: %v", err)
	}
	if gotSerial != "SERB-REAL" {
		t.Errorf("expected promoted serial SERB-REAL, got %q", gotSerial)
	}
	if gotModel != "WS-C3850-24" {
		t.Errorf("expected promoted model WS-C3850-24, got %q", gotModel)
	}
	if !gotFirstSeen.Equal(placeholderFirstSeen) {
		t.Errorf("expected first_seen preserved from placeholder (%v), got %v", placeholderFirstSeen, gotFirstSeen)
	}
}

// §4.7 neighbor upsert step 1: a domain-qualified Device ID (with the
// serial suffix some platforms append) must key the same row as the bare
// prompt-extracted hostname, so the placeholder it creates is promoted by
// the real walk instead of surviving as a duplicate.
func TestFQDNNeighborResolvesToBareHostnameRow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	t1 := time.Now().Add(-time.Hour)

	a := netwalker.DeviceReport{
		Hostname: "a", Platform: netwalker.PlatformIOS, Serials: []string{"SERA1"},
		CollectedAt: t1,
		Neighbors: []netwalker.Neighbor{
			{RemoteHostname: "core-sw1.example.com(FCW1234X0YZ)", RemoteIP: "10.0.0.9", LocalInterface: "GigabitEthernet1/0/1", RemoteInterface: "TenGigabitEthernet1/1", Protocol: netwalker.ProtocolCDP},
		},
	}
	if err := s.WriteDeviceReport(ctx, a); err != nil {
		t.Fatalf("write A: %v", err)
	}

	if n := deviceCount(t, s, "core-sw1"); n != 1 {
		t.Fatalf("expected the placeholder keyed by the bare label, got %d rows for core-sw1", n)
	}
	if n := deviceCount(t, s, "core-sw1.example.com"); n != 0 {
		t.Fatalf("expected no FQDN-keyed row, got %d", n)
	}

	walked := netwalker.DeviceReport{
		Hostname: "core-sw1", Platform: netwalker.PlatformIOS, Serials: []string{"SERCORE"},
		HardwareModel: "WS-C4500X-32", CollectedAt: t1.Add(30 * time.Minute),
	}
	if err := s.WriteDeviceReport(ctx, walked); err != nil {
		t.Fatalf("write walked core-sw1: %v", err)
	}

	if n := deviceCount(t, s, "core-sw1"); n != 1 {
		t.Fatalf("expected exactly 1 row for core-sw1 after promotion, got %d", n)
	}
	var gotSerial string
	if err := s.db.QueryRow(`SELECT serial_number FROM devices WHERE device_name = 'core-sw1'`).Scan(&gotSerial); err != nil {
		t.Fatalf("query promoted row: %v", err)
	}
	if gotSerial != "SERCORE" {
		t.Errorf("expected promoted serial SERCORE, got %q", gotSerial)
	}

	var linkCount int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM device_neighbors`).Scan(&linkCount); err != nil {
		t.Fatalf("count links: %v", err)
	}
	if linkCount != 1 {
		t.Errorf("expected 1 link row still pointing at the promoted device, got %d", linkCount)
	}
}

// Property 8: re-observing a VLAN number under a new name on the same
// device leaves exactly one device-vlan link, pointing at the latest name.
func TestVLANNameReconciliation(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := netwalker.DeviceReport{
		Hostname: "d1", Serials: []string{"SERD1"}, CollectedAt: time.Now(),
		VLANs: []netwalker.VLAN{{Number: 100, Name: "USERS", PortCount: 4}},
	}
	if err := s.WriteDeviceReport(ctx, first); err != nil {
		t.Fatalf("write first: %v", err)
	}

	second := netwalker.DeviceReport{
		Hostname: "d1", Serials: []string{"SERD1"}, CollectedAt: time.Now(),
		VLANs: []netwalker.VLAN{{Number: 100, Name: "GUESTS", PortCount: 2}},
	}
	if err := s.WriteDeviceReport(ctx, second); err != nil {
		t.Fatalf("write second: %v", err)
	}

	var deviceID int64
	if err := s.db.QueryRow(`SELECT device_id FROM devices WHERE device_name = 'd1'`).Scan(&deviceID); err != nil {
		t.Fatalf("lookup device: %v", err)
	}

	var linkCount int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM device_vlans WHERE device_id = ? AND vlan_number = 100`, deviceID).Scan(&linkCount); err != nil {
		t.Fatalf("count links: %v", err)
	}
	if linkCount != 1 {
		t.Fatalf("expected exactly 1 device_vlans row for (d1, 100), got %d", linkCount)
	}

	var name string
	if err := s.db.QueryRow(`SELECT vlan_name FROM device_vlans WHERE device_id = ? AND vlan_number = 100`, deviceID).Scan(&name); err != nil {
		t.Fatalf("query name: %v", err)
	}
	if name != "GUESTS" {
		t.Errorf("expected current name GUESTS, got %q", name)
	}

	var globalRows int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM vlans WHERE vlan_number = 100`).Scan(&globalRows); err != nil {
		t.Fatalf("count global vlans: %v", err)
	}
	if globalRows != 2 {
		t.Errorf("expected both historical vlan names retained globally, got %d rows", globalRows)
	}
}

// Scenario D: a VLAN line with no trailing port list still produces a
// device-vlan link with port_count 0.
func TestVLANZeroPorts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	r := netwalker.DeviceReport{
		Hostname: "sw01", Serials: []string{"SER1"}, CollectedAt: time.Now(),
		VLANs: []netwalker.VLAN{{Number: 461, Name: "FW-RINGCENTRAL", PortCount: 0}},
	}
	if err := s.WriteDeviceReport(ctx, r); err != nil {
		t.Fatalf("write: %v", err)
	}

	var portCount int
	if err := s.db.QueryRow(`SELECT port_count FROM device_vlans WHERE vlan_number = 461`).Scan(&portCount); err != nil {
		t.Fatalf("query: %v", err)
	}
	if portCount != 0 {
		t.Errorf("expected port_count 0, got %d", portCount)
	}
}

// WriteSkip gives every observed endpoint exactly one final-disposition row
// (spec.md §7), even when it never connects.
func TestWriteSkipCreatesDispositionRow(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	ep := netwalker.Endpoint{Host: "10.1.1.50", HostnameHint: "LAB-PHONE-01"}
	status := netwalker.DeviceStatus{Kind: netwalker.StatusFiltered, Reason: netwalker.ReasonFilteredPattern}
	if err := s.WriteSkip(ctx, ep, status); err != nil {
		t.Fatalf("WriteSkip: %v", err)
	}

	var gotStatus, gotReason string
	if err := s.db.QueryRow(`SELECT status, status_reason FROM devices WHERE device_name = 'lab-phone-01'`).Scan(&gotStatus, &gotReason); err != nil {
		t.Fatalf("query: %v", err)
	}
	if gotStatus != string(netwalker.StatusFiltered) {
		t.Errorf("expected status filtered, got %q", gotStatus)
	}
	if gotReason != netwalker.ReasonFilteredPattern {
		t.Errorf("expected reason %q, got %q", netwalker.ReasonFilteredPattern, gotReason)
	}
}

func TestPurgeMarkedAndCleanupStaleLinks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	old := time.Now().AddDate(0, 0, -365)
	a := netwalker.DeviceReport{
		Hostname: "old-a", Serials: []string{"SEROLDA"}, CollectedAt: old,
		Neighbors: []netwalker.Neighbor{{RemoteHostname: "old-b", LocalInterface: "Gi1/0/1", RemoteInterface: "Gi1/0/1", Protocol: netwalker.ProtocolCDP}},
	}
	if err := s.WriteDeviceReport(ctx, a); err != nil {
		t.Fatalf("write: %v", err)
	}

	removed, err := s.CleanupStaleLinks(30)
	if err != nil {
		t.Fatalf("CleanupStaleLinks: %v", err)
	}
	if removed != 1 {
		t.Errorf("expected 1 stale link removed, got %d", removed)
	}

	if err := s.MarkForPurge("old-a"); err != nil {
		t.Fatalf("MarkForPurge: %v", err)
	}
	n, err := s.PurgeMarked()
	if err != nil {
		t.Fatalf("PurgeMarked: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 device purged, got %d", n)
	}
	if got := deviceCount(t, s, "old-a"); got != 0 {
		t.Errorf("expected old-a gone after purge, got %d rows", got)
	}
}

func TestSeedFromStaleExcludesPlaceholders(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	old := time.Now().AddDate(0, 0, -100)
	a := netwalker.DeviceReport{
		Hostname: "stale-real", Serials: []string{"SERSTALE"}, PrimaryIP: "10.5.5.5", CollectedAt: old,
		Neighbors: []netwalker.Neighbor{{RemoteHostname: "stale-ghost", LocalInterface: "Gi1/0/1", RemoteInterface: "Gi1/0/1", Protocol: netwalker.ProtocolCDP}},
	}
	if err := s.WriteDeviceReport(ctx, a); err != nil {
		t.Fatalf("write: %v", err)
	}

	seeds, err := s.SeedFromStale(30)
	if err != nil {
		t.Fatalf("SeedFromStale: %v", err)
	}
	for _, sd := range seeds {
		if sd.Endpoint.HostnameHint == "stale-ghost" {
			t.Fatalf("placeholder stale-ghost must not appear in SeedFromStale")
		}
	}
	found := false
	for _, sd := range seeds {
		if sd.Endpoint.HostnameHint == "stale-real" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected stale-real in SeedFromStale result")
	}

	unwalked, err := s.SeedUnwalked()
	if err != nil {
		t.Fatalf("SeedUnwalked: %v", err)
	}
	foundGhost := false
	for _, sd := range unwalked {
		if sd.Endpoint.HostnameHint == "stale-ghost" {
			foundGhost = true
		}
	}
	if !foundGhost {
		t.Fatalf("expected stale-ghost placeholder in SeedUnwalked result")
	}
}

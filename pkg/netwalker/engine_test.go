package netwalker

import (
	"context"
	"sync"
	"testing"
	"time"
)

// mockStore is a Store implementation recording every write for assertions,
// standing in for the sibling store package the same way connection_test.go's
// fakeDevice stands in for a real SSH/Telnet target.
type mockStore struct {
	mu       sync.Mutex
	reports  []DeviceReport
	skips    []Endpoint
	skipReas []string
}

func (m *mockStore) WriteDeviceReport(ctx context.Context, report DeviceReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports = append(m.reports, report)
	return nil
}

func (m *mockStore) WriteSkip(ctx context.Context, ep Endpoint, status DeviceStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.skips = append(m.skips, ep)
	m.skipReas = append(m.skipReas, status.Reason)
	return nil
}

func (m *mockStore) ExpandStackMembers(ctx context.Context, parentHostname, softwareVersion string, members []StackMember, observedAt time.Time) error {
	return nil
}

func (m *mockStore) reportedHostnames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, r := range m.reports {
		out = append(out, r.Hostname)
	}
	return out
}

// showVersionFixture builds a minimal "show version" response whose last
// line is a CLI prompt carrying hostname, exercising ExtractHostname's
// prompt-line tier (§4.3).
func showVersionFixture(hostname string) string {
	return "Cisco IOS Software, Version 15.2(4)M\r\n" + hostname + "#"
}

// cdpNeighborFixture builds a "show cdp neighbors detail" block whose Device
// ID and IP address are both the loopback address the neighbor's fakeDevice
// is bound to - engine.go's enqueueNeighbors dials a neighbor's routable
// RemoteIP, so the next hop is directly dialable without any DNS
// resolution.
func cdpNeighborFixture(neighborIP string) string {
	return "Device ID: " + neighborIP + "\r\n" +
		"IP address: " + neighborIP + "\r\n" +
		"Platform: cisco WS-C3560\r\n" +
		"Interface: GigabitEthernet0/1,  Port ID (outgoing port): GigabitEthernet0/1\r\n" +
		"----------------------------------------\r\n"
}

func chainConfig(port, maxDepth int) Config {
	return Config{
		Discovery: DiscoveryConfig{
			MaxDepth:              maxDepth,
			ConcurrentConnections: 3,
			ConnectionTimeout:     2,
			DiscoveryTimeout:      30,
			DiscoveryProtocols:    []string{"CDP"},
		},
		Connection: ConnectionConfig{
			TelnetPort:      port,
			SSHPort:         22,
			PreferredMethod: "telnet",
		},
	}
}

// startChain brings up three fakeDevices on 127.0.0.1 -> 127.0.0.2 -> 127.0.0.3,
// a linear CDP chain matching spec.md §8 Scenario B (two-hop linear chain),
// sharing one telnet port since ConnectOptions.TelnetPort is a single
// config-wide value applied to every dial target.
func startChain(t *testing.T, port int) {
	t.Helper()
	startFakeDevice(t, mustHostPort(t, "127.0.0.1", port), fakeDevice{
		prompt: "r1#",
		responses: map[string]string{
			"show version":             showVersionFixture("r1"),
			"show cdp neighbors detail": cdpNeighborFixture("127.0.0.2"),
		},
	})
	startFakeDevice(t, mustHostPort(t, "127.0.0.2", port), fakeDevice{
		prompt: "r2#",
		responses: map[string]string{
			"show version":             showVersionFixture("r2"),
			"show cdp neighbors detail": cdpNeighborFixture("127.0.0.3"),
		},
	})
	startFakeDevice(t, mustHostPort(t, "127.0.0.3", port), fakeDevice{
		prompt: "r3#",
		responses: map[string]string{
			"show version": showVersionFixture("r3"),
		},
	})
}

func TestEngineTwoHopChainDiscoversAllDepths(t *testing.T) {
	port := freeLoopbackPort(t)
	startChain(t, port)

	cfg := chainConfig(port, 5)
	store := &mockStore{}
	filter := NewFilter(FilterCriteria{})
	eng := NewEngine(cfg, NewManager(), filter, store, EngineOptions{
		Credentials: Credentials{Username: "admin", Password: "pw"},
		Sink:        NopEventSink{},
	})

	seeds := []PendingNode{{
		Endpoint: Endpoint{Host: "127.0.0.1", PrimaryIP: "10.0.0.1"},
		Depth:    0,
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	eng.Run(ctx, seeds)

	got := store.reportedHostnames()
	if len(got) != 3 {
		t.Fatalf("got %d device reports %v, want 3 (r1, r2, r3)", len(got), got)
	}
	seen := map[string]bool{}
	for _, h := range got {
		seen[h] = true
	}
	for _, want := range []string{"r1", "r2", "r3"} {
		if !seen[want] {
			t.Errorf("device report for %q missing from %v", want, got)
		}
	}
}

func TestEngineDepthLimitSkipsBeyondMaxDepth(t *testing.T) {
	port := freeLoopbackPort(t)
	startChain(t, port)

	cfg := chainConfig(port, 1)
	store := &mockStore{}
	filter := NewFilter(FilterCriteria{})
	eng := NewEngine(cfg, NewManager(), filter, store, EngineOptions{
		Credentials: Credentials{Username: "admin", Password: "pw"},
		Sink:        NopEventSink{},
	})

	seeds := []PendingNode{{
		Endpoint: Endpoint{Host: "127.0.0.1", PrimaryIP: "10.0.0.1"},
		Depth:    0,
	}}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	eng.Run(ctx, seeds)

	got := store.reportedHostnames()
	if len(got) != 2 {
		t.Fatalf("got %d device reports %v, want 2 (r1, r2 only; r3 exceeds max_depth=1)", len(got), got)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.skips) == 0 {
		t.Fatalf("expected at least one skip row for the over-depth neighbor, got none")
	}
	foundDepthSkip := false
	for i, ep := range store.skips {
		if ep.Host == "127.0.0.3" {
			foundDepthSkip = true
			if store.skipReas[i] == "" {
				t.Errorf("skip row for 127.0.0.3 has empty reason")
			}
		}
	}
	if !foundDepthSkip {
		t.Errorf("no skip row recorded for over-depth neighbor 127.0.0.3, got skips %v", store.skips)
	}
}

// TestMaybeResetDeadlineCapsAtTen covers the deadline-reset bound from §4.6:
// no matter how many times the remaining-time threshold is crossed, the
// Engine grants at most maxDeadlineResets (10) resets.
func TestMaybeResetDeadlineCapsAtTen(t *testing.T) {
	cfg := Config{Discovery: DiscoveryConfig{DiscoveryTimeout: 10}}
	eng := NewEngine(cfg, nil, NewFilter(FilterCriteria{}), nil, EngineOptions{Sink: NopEventSink{}})

	eng.deadlineAnchor = time.Now()
	for i := 0; i < 25; i++ {
		eng.deadlineAnchor = eng.deadlineAnchor.Add(-9 * time.Second)
		eng.maybeResetDeadline()
	}

	if eng.deadlineResets != maxDeadlineResets {
		t.Fatalf("got %d deadline resets, want exactly %d", eng.deadlineResets, maxDeadlineResets)
	}
}

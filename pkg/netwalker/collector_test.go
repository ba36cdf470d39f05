package netwalker

import (
	"context"
	"errors"
	"testing"
	"time"
)

// TestCollectRecordsParseExceptionForInvalidRIBLine covers spec.md §4.8
// steps 6-7: a syntactically CIDR-shaped but out-of-range RIB line must
// surface as a PrefixException on the DeviceReport, not be silently
// dropped.
func TestCollectRecordsParseExceptionForInvalidRIBLine(t *testing.T) {
	port := freeLoopbackPort(t)
	addr := mustHostPort(t, "127.0.0.1", port)

	const badRoute = "D    300.1.1.0/24 [90/2] via 10.0.0.1, GigabitEthernet0/1\r\n" +
		"C    10.0.0.0/24 is directly connected, GigabitEthernet0/1\r\n"

	startFakeDevice(t, addr, fakeDevice{
		prompt: "devtest#",
		responses: map[string]string{
			"show version":   showVersionFixture("devtest"),
			"show ip route":  badRoute,
		},
	})

	cfg := Config{
		Discovery: DiscoveryConfig{ConnectionTimeout: 2},
		Connection: ConnectionConfig{
			TelnetPort:      port,
			SSHPort:         22,
			PreferredMethod: "telnet",
		},
		IPv4Prefix: IPv4PrefixConfig{
			Enabled:   true,
			EnableRIB: true,
		},
	}

	mgr := NewManager()
	ep := Endpoint{Host: "127.0.0.1"}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := mgr.Open(ctx, ep, Credentials{Username: "admin", Password: "pw"}, ConnectOptions{
		TelnetPort:      port,
		SSHPort:         22,
		PreferredMethod: "telnet",
		ConnectTimeout:  2 * time.Second,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer mgr.Close(sess)

	collector := NewCollector(mgr, cfg)
	report, err := collector.Collect(ctx, sess, ep)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	if report.Hostname != "devtest" {
		t.Errorf("got hostname %q, want %q", report.Hostname, "devtest")
	}

	var ribExceptions []PrefixException
	for _, exc := range report.ParseExceptions {
		if exc.Source == "rib" {
			ribExceptions = append(ribExceptions, exc)
		}
	}
	if len(ribExceptions) == 0 {
		t.Fatalf("got no rib parse exceptions, want one for the invalid octet line; report.ParseExceptions=%v", report.ParseExceptions)
	}
	exc := ribExceptions[0]
	if exc.Reason == "" {
		t.Errorf("exception has empty Reason")
	}
	if exc.RawLine == "" {
		t.Errorf("exception has empty RawLine")
	}
}

// A device whose image rejects "show cdp neighbors detail" must still
// yield neighbors via the tabular fallback.
func TestCollectFallsBackToTabularCDP(t *testing.T) {
	port := freeLoopbackPort(t)
	addr := mustHostPort(t, "127.0.0.1", port)

	tabular := "Device ID        Local Intrfce     Holdtme    Capability  Platform  Port ID\r\n" +
		"nb01             Gig 1/0/1         155          S I       WS-C3850  Gig 1/0/24\r\n"

	startFakeDevice(t, addr, fakeDevice{
		prompt: "devtab#",
		responses: map[string]string{
			"show version":       showVersionFixture("devtab"),
			"show cdp neighbors": tabular,
			// "show cdp neighbors detail" intentionally absent: the prompt-only
			// response parses to zero neighbors, triggering the fallback.
		},
	})

	cfg := Config{
		Discovery:  DiscoveryConfig{ConnectionTimeout: 2, DiscoveryProtocols: []string{"CDP"}},
		Connection: ConnectionConfig{TelnetPort: port, SSHPort: 22, PreferredMethod: "telnet"},
	}

	mgr := NewManager()
	ep := Endpoint{Host: "127.0.0.1"}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := mgr.Open(ctx, ep, Credentials{Username: "admin", Password: "pw"}, ConnectOptions{
		TelnetPort:      port,
		SSHPort:         22,
		PreferredMethod: "telnet",
		ConnectTimeout:  2 * time.Second,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer mgr.Close(sess)

	collector := NewCollector(mgr, cfg)
	report, err := collector.Collect(ctx, sess, ep)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(report.Neighbors) != 1 {
		t.Fatalf("got %d neighbors, want 1 from the tabular fallback: %+v", len(report.Neighbors), report.Neighbors)
	}
	nb := report.Neighbors[0]
	if nb.RemoteHostname != "nb01" {
		t.Errorf("got hostname %q, want nb01", nb.RemoteHostname)
	}
	if nb.LocalInterface != "GigabitEthernet1/0/1" {
		t.Errorf("got local interface %q", nb.LocalInterface)
	}
}

// TestCollectFailsWhenShowVersionYieldsNoHostname covers §4.5/§7: a "show
// version" response with no valid hostname is terminal and returns a
// *CollectFailedError instead of a partial DeviceReport.
func TestCollectFailsWhenShowVersionYieldsNoHostname(t *testing.T) {
	port := freeLoopbackPort(t)
	addr := mustHostPort(t, "127.0.0.1", port)
	// "switch" is a hostname stopword (§4.3), so ExtractHostname finds no
	// valid candidate anywhere in the (otherwise prompt-only) response.
	startFakeDevice(t, addr, fakeDevice{prompt: "switch#"})

	cfg := Config{
		Discovery:  DiscoveryConfig{ConnectionTimeout: 2},
		Connection: ConnectionConfig{TelnetPort: port, SSHPort: 22, PreferredMethod: "telnet"},
	}

	mgr := NewManager()
	ep := Endpoint{Host: "127.0.0.1"}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sess, err := mgr.Open(ctx, ep, Credentials{Username: "admin", Password: "pw"}, ConnectOptions{
		TelnetPort:      port,
		SSHPort:         22,
		PreferredMethod: "telnet",
		ConnectTimeout:  2 * time.Second,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer mgr.Close(sess)

	collector := NewCollector(mgr, cfg)
	report, err := collector.Collect(ctx, sess, ep)
	if err == nil {
		t.Fatalf("expected Collect to fail when show version never extracts a hostname, got report %+v", report)
	}
	var cfe *CollectFailedError
	if !errors.As(err, &cfe) {
		t.Fatalf("expected a *CollectFailedError, got %T: %v", err, err)
	}
}

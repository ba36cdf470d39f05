package netwalker

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Collector drives the command sequence for one device (§4.5): run
// commands in order, hand output to the Parser, and shape a DeviceReport.
// It never dials; it operates on an already-open Session.
type Collector struct {
	Manager *Manager
	Config  Config
}

// NewCollector constructs a Collector bound to a Connection Manager.
func NewCollector(mgr *Manager, cfg Config) *Collector {
	return &Collector{Manager: mgr, Config: cfg}
}

// CollectFailedError marks a terminal "show version" failure (§4.5/§7): the
// device is reported as collect_failed with no DeviceReport.
type CollectFailedError struct {
	Classification string
	Err            error
}

func (e *CollectFailedError) Error() string { return e.Classification + ": " + e.Err.Error() }
func (e *CollectFailedError) Unwrap() error { return e.Err }

// runRequired executes command and, on an *ExecError, runs it once more
// unless the session is StateBroken. Execute marks a session Broken on
// every read or write error, so such errors are returned without a second
// attempt. Returns the last error if no attempt succeeds.
func (c *Collector) runRequired(ctx context.Context, s *Session, command string, timeout time.Duration) (string, error) {
	out, err := c.Manager.Execute(ctx, s, command, timeout)
	if err == nil {
		return out, nil
	}
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		return "", err
	}
	if s.State() == StateBroken {
		return "", err
	}
	return c.Manager.Execute(ctx, s, command, timeout)
}

// runBestEffort executes command and discards any error (used for commands
// whose absence is tolerable, e.g. "show inventory" on older images).
func (c *Collector) runBestEffort(ctx context.Context, s *Session, command string, timeout time.Duration) string {
	out, err := c.runRequired(ctx, s, command, timeout)
	if err != nil {
		return ""
	}
	return out
}

// Collect runs the full command sequence from spec.md §4.5 against an
// already-open Session and returns a DeviceReport, or a *CollectFailedError
// if "show version" itself failed.
func (c *Collector) Collect(ctx context.Context, s *Session, ep Endpoint) (*DeviceReport, error) {
	timeout := c.Config.ConnectTimeout()
	partial := false

	showVersion, err := c.runRequired(ctx, s, "show version", timeout)
	if err != nil {
		return nil, &CollectFailedError{Classification: classifyExecError(err), Err: err}
	}

	showInventory := c.runBestEffort(ctx, s, "show inventory", timeout)
	identity := ParseDeviceIdentity(showVersion, showInventory)

	hostname := CleanHostname(identity.Hostname)
	if hostname == "" {
		return nil, &CollectFailedError{Classification: "no-hostname", Err: errors.New("could not extract hostname from show version")}
	}

	ifaceCmd := "show interfaces"
	if identity.Platform == PlatformIOS {
		ifaceCmd = "show ip interface brief"
	}
	showIfaces, err := c.runRequired(ctx, s, ifaceCmd, timeout)
	if err != nil {
		partial = true
	}
	interfaces := ParseInterfaces(showIfaces, identity.Platform)

	vlanCmd := "show vlan"
	if identity.Platform == PlatformIOS {
		vlanCmd = "show vlan brief"
	}
	showVLANs, err := c.runRequired(ctx, s, vlanCmd, timeout)
	if err != nil {
		partial = true
	}
	var vlans []VLAN
	if identity.Platform == PlatformNXOS {
		vlans = ParseVLANsNXOS(showVLANs)
	} else {
		vlans = ParseVLANs(showVLANs)
	}

	var neighbors []Neighbor
	if c.Config.WantsCDP() {
		out, err := c.runRequired(ctx, s, "show cdp neighbors detail", timeout)
		if err != nil {
			partial = true
		} else {
			cdp := ParseCDPNeighborsDetail(out)
			if len(cdp) == 0 {
				// Older images reject the detail variant; fall back to the
				// tabular form, same shape as the show switch -> show mod
				// fallback.
				tab := c.runBestEffort(ctx, s, "show cdp neighbors", timeout)
				cdp = ParseCDPNeighborsTable(tab)
			}
			neighbors = append(neighbors, cdp...)
		}
	}
	if c.Config.WantsLLDP() {
		out, err := c.runRequired(ctx, s, "show lldp neighbors detail", timeout)
		if err != nil {
			partial = true
		} else {
			var lldp []Neighbor
			switch identity.Platform {
			case PlatformNXOS:
				lldp = ParseLLDPNeighborsNXOS(out)
			default:
				lldp = ParseLLDPNeighborsDetail(out, identity.Platform)
			}
			if len(lldp) == 0 {
				tab := c.runBestEffort(ctx, s, "show lldp neighbors", timeout)
				lldp = ParseLLDPNeighborsTable(tab, identity.Platform)
			}
			neighbors = append(neighbors, lldp...)
		}
	}

	var stackMembers []StackMember
	if c.Config.Stack.Enabled && identity.Platform != PlatformNXOS {
		stackMembers = c.collectStackMembers(ctx, s, timeout, identity)
	}

	var prefixes []Prefix
	var prefixExceptions []PrefixException
	if c.Config.IPv4Prefix.Enabled {
		prefixes, prefixExceptions = c.collectPrefixes(ctx, s, hostname, identity.Platform)
	}

	serials := []string{identity.Serial}
	if len(stackMembers) > 0 {
		serials = serials[:0]
		for i := range stackMembers {
			stackMembers[i].HardwareModel = firstNonEmpty(stackMembers[i].HardwareModel, identity.HardwareModel)
			serials = append(serials, stackMembers[i].Serial)
		}
	}

	report := &DeviceReport{
		Hostname:        hostname,
		RawHostname:     identity.Hostname,
		Platform:        identity.Platform,
		SoftwareVersion: identity.SoftwareVersion,
		Serials:         serials,
		HardwareModel:   identity.HardwareModel,
		Uptime:          identity.Uptime,
		Interfaces:      interfaces,
		VLANs:           vlans,
		Neighbors:       neighbors,
		Prefixes:        prefixes,
		StackMembers:    stackMembers,
		ParseExceptions: prefixExceptions,
		PrimaryIP:       firstNonEmpty(ep.PrimaryIP, primaryManagementIP(interfaces)),
		Partial:         partial,
		CollectedAt:     collectTimestamp(),
	}
	return report, nil
}

// collectTimestamp is split out so a future test can substitute a fixed
// clock without having to intercept Collect itself.
func collectTimestamp() time.Time { return time.Now() }

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func primaryManagementIP(interfaces []Interface) string {
	for _, i := range interfaces {
		if i.Type == IfaceManagement && i.IPv4Address != "" {
			return i.IPv4Address
		}
	}
	return ""
}

// collectStackMembers runs "show switch detail", falling back to "show mod"
// when the primary command is unsupported or empty (§4.3/§4.5).
func (c *Collector) collectStackMembers(ctx context.Context, s *Session, timeout time.Duration, identity DeviceIdentity) []StackMember {
	out := c.runBestEffort(ctx, s, "show switch detail", timeout)
	if members := ParseStackMembers(out); len(members) > 0 {
		return members
	}
	modOut := c.runBestEffort(ctx, s, "show mod", timeout)
	return ParseStackMembersVSSFallback(modOut)
}

// collectPrefixes drives the VRF-discovery -> RIB -> BGP sub-pipeline from
// spec.md §4.8, on the same session, after the main collect commands. Every
// unresolved or invalid line encountered along the way is returned as a
// PrefixException instead of being dropped (§4.8 steps 6-7).
func (c *Collector) collectPrefixes(ctx context.Context, s *Session, hostname, platform string) ([]Prefix, []PrefixException) {
	timeout := time.Duration(c.Config.IPv4Prefix.CommandTimeout) * time.Second
	if timeout <= 0 {
		timeout = c.Config.ConnectTimeout()
	}

	var vrfs []string
	if c.Config.IPv4Prefix.EnableVRF {
		out := c.runBestEffort(ctx, s, "show vrf", timeout)
		vrfs = ParseVRFNames(out)
	}

	var all []Prefix
	var exceptions []PrefixException
	scopes := append([]string{""}, vrfs...)

	if c.Config.IPv4Prefix.EnableRIB {
		for _, vrf := range scopes {
			cmd, connCmd := ribCommands(vrf)
			out := c.runBestEffort(ctx, s, cmd, timeout)
			prefixes, exc := ParseRIBPrefixes(out, vrf, "rib")
			all = append(all, prefixes...)
			exceptions = append(exceptions, exc...)
			all = append(all, ParseHostRoutes(out, vrf)...)

			connOut := c.runBestEffort(ctx, s, connCmd, timeout)
			connPrefixes, connExc := ParseRIBPrefixes(connOut, vrf, "connected")
			all = append(all, connPrefixes...)
			exceptions = append(exceptions, connExc...)
		}
	}

	if c.Config.IPv4Prefix.EnableBGP {
		for _, vrf := range scopes {
			cmd := bgpCommand(vrf, platform)
			out := c.runBestEffort(ctx, s, cmd, timeout)
			resolved, ambiguous, exc := ParseBGPPrefixes(out, vrf)
			all = append(all, resolved...)
			exceptions = append(exceptions, exc...)
			for _, amb := range ambiguous {
				if resolvedPrefix, ok := c.resolveAmbiguousBGP(ctx, s, amb, vrf, platform, timeout); ok {
					all = append(all, resolvedPrefix)
				} else {
					exceptions = append(exceptions, PrefixException{
						VRF:     vrfOrGlobal(vrf),
						Source:  "bgp",
						RawLine: amb,
						Reason:  "ambiguous prefix unresolved after bgp and route lookup",
					})
				}
			}
		}
	}

	return all, exceptions
}

func ribCommands(vrf string) (ribCmd, connectedCmd string) {
	if vrf == "" {
		return "show ip route", "show ip route connected"
	}
	v := sanitizeVRFName(vrf)
	return "show ip route vrf " + v, "show ip route vrf " + v + " connected"
}

func bgpCommand(vrf, platform string) string {
	if vrf == "" {
		return "show ip bgp"
	}
	v := sanitizeVRFName(vrf)
	if platform == PlatformNXOS {
		return "show ip bgp vrf " + v
	}
	return "show ip bgp vpnv4 vrf " + v
}

// resolveAmbiguousBGP issues the two-step disambiguation from §4.8 step 7
// for a BGP line that lacked a prefix length.
func (c *Collector) resolveAmbiguousBGP(ctx context.Context, s *Session, addr, vrf, platform string, timeout time.Duration) (Prefix, bool) {
	bgpCmd := bgpCommand(vrf, platform) + " " + addr
	out := c.runBestEffort(ctx, s, bgpCmd, timeout)
	if m := reCIDRForm.FindStringSubmatch(out); m != nil {
		if cidr, err := NormalizeCIDR(m[1] + "/" + m[2]); err == nil {
			return Prefix{CIDR: cidr, VRF: vrfOrGlobal(vrf), Source: "bgp"}, true
		}
	}

	routeCmd := "show ip route " + addr
	if vrf != "" {
		routeCmd = "show ip route vrf " + sanitizeVRFName(vrf) + " " + addr
	}
	out = c.runBestEffort(ctx, s, routeCmd, timeout)
	if m := reCIDRForm.FindStringSubmatch(out); m != nil {
		if cidr, err := NormalizeCIDR(m[1] + "/" + m[2]); err == nil {
			return Prefix{CIDR: cidr, VRF: vrfOrGlobal(vrf), Source: "bgp"}, true
		}
	}
	return Prefix{}, false
}

func classifyExecError(err error) string {
	var execErr *ExecError
	if errors.As(err, &execErr) {
		return string(execErr.Kind)
	}
	var connErr *ConnectError
	if errors.As(err, &connErr) {
		return string(connErr.Kind)
	}
	return "unknown"
}

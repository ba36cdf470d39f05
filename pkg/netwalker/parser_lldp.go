package netwalker

import (
	"bufio"
	"regexp"
	"strings"
)

// reLLDPTableRow matches a Cisco "show lldp neighbors" table row, e.g.:
//   sonic               Gi2            120        R               Ethernet1
var reLLDPTableRow = regexp.MustCompile(`^\s*(?P<device>\S+)\s+(?P<local>\S+)\s+(?P<hold>\d+)\s+(?P<caps>[A-Za-z,]+)\s+(?P<port>\S+)\s*$`)

// ParseLLDPNeighborsTable parses "show lldp neighbors" tabular output.
func ParseLLDPNeighborsTable(output string, platform string) []Neighbor {
	var out []Neighbor
	sc := bufio.NewScanner(strings.NewReader(output))
	inTable := false
	for sc.Scan() {
		line := sc.Text()
		trim := strings.TrimSpace(line)

		if !inTable {
			if strings.HasPrefix(trim, "Device ID") && strings.Contains(trim, "Local Intf") && strings.Contains(trim, "Port ID") {
				inTable = true
			}
			continue
		}
		if trim == "" || strings.HasPrefix(trim, "Total entries") {
			break
		}
		if strings.HasPrefix(trim, "Capability codes") {
			continue
		}

		m := reLLDPTableRow.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		device := m[reLLDPTableRow.SubexpIndex("device")]
		local := m[reLLDPTableRow.SubexpIndex("local")]
		capsRaw := m[reLLDPTableRow.SubexpIndex("caps")]
		port := m[reLLDPTableRow.SubexpIndex("port")]

		out = append(out, Neighbor{
			RemoteHostname:  CleanHostname(device),
			LocalInterface:  NormalizeInterface(local, platform),
			RemoteInterface: NormalizeInterface(port, platform),
			Capabilities:    normalizeCapabilities(strings.Split(capsRaw, ",")),
			Protocol:        ProtocolLLDP,
		})
	}
	return out
}

var (
	reLLDPDetailLocalIntf = regexp.MustCompile(`^\s*Local\s+Intf:\s*(\S+)\s*$`)
	reLLDPDetailPortID    = regexp.MustCompile(`^\s*Port\s+[Ii]d:\s*(\S+)\s*$`)
	reLLDPDetailSysName   = regexp.MustCompile(`^\s*System\s+Name:\s*(.+?)\s*$`)
	reLLDPDetailSysCaps   = regexp.MustCompile(`^\s*System\s+Capabilities:\s*(.+?)\s*$`)
	reLLDPDetailMgmtIP    = regexp.MustCompile(`^\s*IP:\s*(\S+)\s*$`)
)

// ParseLLDPNeighborsDetail parses "show lldp neighbors detail" block output
// (Cisco IOS/IOS-XE form).
func ParseLLDPNeighborsDetail(output string, platform string) []Neighbor {
	var out []Neighbor

	type blk struct {
		localIntf, remotePort, remoteName, caps, mgmtIP string
	}
	flush := func(b *blk) {
		if b == nil || strings.TrimSpace(b.localIntf) == "" || strings.TrimSpace(b.remoteName) == "" {
			return
		}
		out = append(out, Neighbor{
			RemoteHostname:  CleanHostname(b.remoteName),
			RemoteIP:        strings.TrimSpace(b.mgmtIP),
			LocalInterface:  NormalizeInterface(b.localIntf, platform),
			RemoteInterface: NormalizeInterface(b.remotePort, platform),
			Capabilities:    normalizeCapabilities(strings.Split(b.caps, ",")),
			Protocol:        ProtocolLLDP,
		})
	}

	var cur *blk
	inMgmtAddrs := false
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		line := sc.Text()
		trim := strings.TrimSpace(line)

		if strings.HasPrefix(trim, "----") {
			flush(cur)
			cur = &blk{}
			inMgmtAddrs = false
			continue
		}
		if cur == nil {
			cur = &blk{}
		}

		if m := reLLDPDetailLocalIntf.FindStringSubmatch(trim); m != nil {
			cur.localIntf = m[1]
			inMgmtAddrs = false
			continue
		}
		if m := reLLDPDetailPortID.FindStringSubmatch(trim); m != nil {
			cur.remotePort = m[1]
			continue
		}
		if m := reLLDPDetailSysName.FindStringSubmatch(trim); m != nil {
			cur.remoteName = m[1]
			continue
		}
		if m := reLLDPDetailSysCaps.FindStringSubmatch(trim); m != nil {
			cur.caps = m[1]
			continue
		}
		if strings.HasPrefix(trim, "Management Addresses") {
			inMgmtAddrs = true
			continue
		}
		if inMgmtAddrs {
			if m := reLLDPDetailMgmtIP.FindStringSubmatch(trim); m != nil {
				if cur.mgmtIP == "" {
					cur.mgmtIP = m[1]
				}
			}
		}
	}
	flush(cur)
	return out
}

var (
	reSonicInterface = regexp.MustCompile(`^\s*Interface:\s*([^,]+),\s*via:\s*LLDP(?:,.*)?\s*$`)
	reSonicSysName   = regexp.MustCompile(`^\s*SysName:\s*(.+?)\s*$`)
	reSonicMgmtIP    = regexp.MustCompile(`^\s*MgmtIP:\s*(\S+)\s*$`)
	reSonicPortID    = regexp.MustCompile(`^\s*PortID:\s*(.+?)\s*$`)
	reSonicCap       = regexp.MustCompile(`^\s*Capability:\s*([^,]+),\s*(ON|OFF|on|off)\s*$`)
)

// ParseLLDPNeighborsNXOS parses the NX-OS "show lldp neighbors detail"
// block form, which labels fields as "Interface:"/"SysName:"/"MgmtIP:"/
// "PortID:"/"Capability:".
func ParseLLDPNeighborsNXOS(output string) []Neighbor {
	var out []Neighbor

	type blk struct {
		localIntf, remotePort, remoteName, mgmtIP string
		caps                                       []string
	}
	flush := func(b *blk) {
		if b == nil || strings.TrimSpace(b.localIntf) == "" || strings.TrimSpace(b.remoteName) == "" {
			return
		}
		out = append(out, Neighbor{
			RemoteHostname:  CleanHostname(b.remoteName),
			RemoteIP:        strings.TrimSpace(b.mgmtIP),
			LocalInterface:  NormalizeInterface(b.localIntf, PlatformNXOS),
			RemoteInterface: NormalizeInterface(b.remotePort, PlatformNXOS),
			Capabilities:    normalizeCapabilities(b.caps),
			Protocol:        ProtocolLLDP,
		})
	}

	var cur *blk
	sc := bufio.NewScanner(strings.NewReader(output))
	for sc.Scan() {
		line := sc.Text()
		trim := strings.TrimSpace(line)

		if m := reSonicInterface.FindStringSubmatch(trim); m != nil {
			flush(cur)
			cur = &blk{localIntf: strings.TrimSpace(m[1])}
			continue
		}
		if cur == nil {
			continue
		}
		if m := reSonicSysName.FindStringSubmatch(trim); m != nil {
			cur.remoteName = m[1]
			continue
		}
		if m := reSonicMgmtIP.FindStringSubmatch(trim); m != nil {
			cur.mgmtIP = m[1]
			continue
		}
		if m := reSonicPortID.FindStringSubmatch(trim); m != nil {
			cur.remotePort = strings.TrimSpace(m[1])
			continue
		}
		if m := reSonicCap.FindStringSubmatch(trim); m != nil {
			if strings.EqualFold(m[2], "on") {
				cur.caps = append(cur.caps, m[1])
			}
			continue
		}
	}
	flush(cur)
	return out
}

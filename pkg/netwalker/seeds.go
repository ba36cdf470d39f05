package netwalker

import (
	"bufio"
	"net"
	"os"
	"strings"
)

// LoadSeeds parses a line-oriented seed file (§6). Each line is a bare
// hostname, "hostname:ip", or a bare IPv4 address. Blank lines and lines
// starting with "#" are ignored. Everything from a line's first comma on is
// ignored, so trailing comma-separated fields after the hostname, hostname:ip
// or IP entry are dropped, matching the teacher's tolerant line-parsing style
// (pkg/manager config/sshconfig line readers).
func LoadSeeds(path string) ([]PendingNode, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []PendingNode
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		node, ok := ParseSeedLine(sc.Text())
		if ok {
			out = append(out, node)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ParseSeedLine parses one seed-file line into a depth-0 PendingNode. ok is
// false for blank lines and comments.
func ParseSeedLine(line string) (PendingNode, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return PendingNode{}, false
	}

	// Trailing comma-separated fields beyond the first are ignored.
	if i := strings.IndexByte(line, ','); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	if line == "" {
		return PendingNode{}, false
	}

	var ep Endpoint
	if i := strings.IndexByte(line, ':'); i >= 0 {
		ep.HostnameHint = strings.TrimSpace(line[:i])
		ep.PrimaryIP = strings.TrimSpace(line[i+1:])
		// Dial the IP when one was given; the hostname half may not resolve.
		if net.ParseIP(ep.PrimaryIP) != nil {
			ep.Host = ep.PrimaryIP
		} else {
			ep.Host = ep.HostnameHint
		}
	} else if net.ParseIP(line) != nil {
		ep.Host = line
		ep.PrimaryIP = line
	} else {
		ep.Host = line
		ep.HostnameHint = line
	}

	return PendingNode{
		Endpoint:        ep,
		Depth:           0,
		DiscoveryMethod: DiscoverySeed,
	}, true
}

package netwalker

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full configuration for a crawl, loaded from a single YAML
// file with the named sections from spec.md §6.
type Config struct {
	Discovery  DiscoveryConfig  `yaml:"discovery"`
	Filtering  FilteringConfig  `yaml:"filtering"`
	Connection ConnectionConfig `yaml:"connection"`
	Output     OutputConfig     `yaml:"output"`
	Stack      StackConfig      `yaml:"stack"`
	IPv4Prefix IPv4PrefixConfig `yaml:"ipv4_prefix"`
	Database   DatabaseConfig   `yaml:"database"`
}

// DiscoveryConfig controls BFS scope, concurrency, and deadlines.
type DiscoveryConfig struct {
	MaxDepth             int      `yaml:"max_depth"`
	ConcurrentConnections int     `yaml:"concurrent_connections"`
	ConnectionTimeout    int      `yaml:"connection_timeout"` // seconds
	DiscoveryTimeout     int      `yaml:"discovery_timeout"`  // seconds
	DiscoveryProtocols   []string `yaml:"discovery_protocols"`
}

// FilteringConfig holds the four independent exclusion lists (§4.4).
type FilteringConfig struct {
	ExcludeHostnames    []string `yaml:"exclude_hostnames"`
	ExcludeIPRanges     []string `yaml:"exclude_ip_ranges"`
	ExcludePlatforms    []string `yaml:"exclude_platforms"`
	ExcludeCapabilities []string `yaml:"exclude_capabilities"`
}

// ConnectionConfig controls transport selection and ports (§4.1).
type ConnectionConfig struct {
	SSHPort          int    `yaml:"ssh_port"`
	TelnetPort       int    `yaml:"telnet_port"`
	PreferredMethod  string `yaml:"preferred_method"` // ssh | telnet
}

// OutputConfig controls where external report writers place artifacts;
// NetWalker's core reads neither field.
type OutputConfig struct {
	ReportsDirectory   string `yaml:"reports_directory"`
	SiteBoundaryPattern string `yaml:"site_boundary_pattern"`
}

// StackConfig toggles stack/VSS member collection (§4.5).
type StackConfig struct {
	Enabled bool `yaml:"enabled"`
	// ExpandMembers materializes one device row per stack member
	// (spec.md §9 open question 3 / Scenario E), off by default.
	ExpandMembers bool `yaml:"expand_members"`
}

// IPv4PrefixConfig controls the optional prefix sub-pipeline (§4.8).
type IPv4PrefixConfig struct {
	Enabled        bool `yaml:"enabled"`
	EnableRIB      bool `yaml:"enable_rib"`
	EnableBGP      bool `yaml:"enable_bgp"`
	EnableVRF      bool `yaml:"enable_vrf"`
	Concurrency    int  `yaml:"concurrency"`
	CommandTimeout int  `yaml:"command_timeout"` // seconds
}

// DatabaseConfig holds the Inventory Store backend's connection parameters.
type DatabaseConfig struct {
	Enabled                bool   `yaml:"enabled"`
	Server                 string `yaml:"server"`
	Port                   int    `yaml:"port"`
	Database               string `yaml:"database"`
	Username               string `yaml:"username"`
	Password               string `yaml:"password"`
	TrustServerCertificate bool   `yaml:"trust_server_certificate"`
	ConnectionTimeout      int    `yaml:"connection_timeout"`
	CommandTimeout         int    `yaml:"command_timeout"`
}

// DefaultConfig returns a Config with every default from spec.md §2/§4/§6
// applied (5-worker pool, 30s timeouts, CDP+LLDP enabled).
func DefaultConfig() Config {
	return Config{
		Discovery: DiscoveryConfig{
			MaxDepth:              10,
			ConcurrentConnections: 5,
			ConnectionTimeout:     30,
			DiscoveryTimeout:      3600,
			DiscoveryProtocols:    []string{"CDP", "LLDP"},
		},
		Connection: ConnectionConfig{
			SSHPort:         22,
			TelnetPort:      23,
			PreferredMethod: "ssh",
		},
		Stack: StackConfig{Enabled: true},
	}
}

// LoadConfig reads and validates a YAML configuration file, starting from
// DefaultConfig and then filling in defaults for discovery, connection and
// (when enabled) ipv4_prefix settings left zero or empty (matching the
// teacher's resolve-then-validate pattern in pkg/manager/config.go).
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Discovery.ConcurrentConnections <= 0 {
		c.Discovery.ConcurrentConnections = 5
	}
	if c.Discovery.ConnectionTimeout <= 0 {
		c.Discovery.ConnectionTimeout = 30
	}
	if c.Discovery.DiscoveryTimeout <= 0 {
		c.Discovery.DiscoveryTimeout = 3600
	}
	if len(c.Discovery.DiscoveryProtocols) == 0 {
		c.Discovery.DiscoveryProtocols = []string{"CDP", "LLDP"}
	}
	if c.Connection.SSHPort <= 0 {
		c.Connection.SSHPort = 22
	}
	if c.Connection.TelnetPort <= 0 {
		c.Connection.TelnetPort = 23
	}
	if c.Connection.PreferredMethod == "" {
		c.Connection.PreferredMethod = "ssh"
	}
	if c.IPv4Prefix.Enabled && c.IPv4Prefix.Concurrency <= 0 {
		c.IPv4Prefix.Concurrency = 3
	}
	if c.IPv4Prefix.Enabled && c.IPv4Prefix.CommandTimeout <= 0 {
		c.IPv4Prefix.CommandTimeout = c.Discovery.ConnectionTimeout
	}
}

// Validate performs the same sanity checks the teacher's Config.Validate
// applies to groups/hosts, adapted to NetWalker's sections.
func (c *Config) Validate() error {
	if c.Discovery.MaxDepth < 0 {
		return fmt.Errorf("discovery.max_depth: must be >= 0")
	}
	if c.Discovery.ConcurrentConnections <= 0 {
		return fmt.Errorf("discovery.concurrent_connections: must be > 0")
	}
	if c.Discovery.ConnectionTimeout <= 0 {
		return fmt.Errorf("discovery.connection_timeout: must be > 0")
	}
	if c.Discovery.DiscoveryTimeout <= 0 {
		return fmt.Errorf("discovery.discovery_timeout: must be > 0")
	}
	for _, p := range c.Discovery.DiscoveryProtocols {
		switch strings.ToUpper(strings.TrimSpace(p)) {
		case "CDP", "LLDP":
		default:
			return fmt.Errorf("discovery.discovery_protocols: unrecognized protocol %q", p)
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Connection.PreferredMethod)) {
	case "ssh", "telnet":
	default:
		return fmt.Errorf("connection.preferred_method: must be ssh or telnet, got %q", c.Connection.PreferredMethod)
	}
	if c.Connection.SSHPort <= 0 || c.Connection.SSHPort > 65535 {
		return fmt.Errorf("connection.ssh_port: out of range")
	}
	if c.Connection.TelnetPort <= 0 || c.Connection.TelnetPort > 65535 {
		return fmt.Errorf("connection.telnet_port: out of range")
	}
	if c.Database.Enabled && strings.TrimSpace(c.Database.Database) == "" {
		return fmt.Errorf("database.database: required when database.enabled is true")
	}
	return nil
}

// ConnectTimeout returns discovery.connection_timeout as a time.Duration.
func (c Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Discovery.ConnectionTimeout) * time.Second
}

// DiscoveryDeadline returns discovery.discovery_timeout as a time.Duration.
func (c Config) DiscoveryDeadline() time.Duration {
	return time.Duration(c.Discovery.DiscoveryTimeout) * time.Second
}

// WantsCDP reports whether CDP parsing is enabled.
func (c Config) WantsCDP() bool { return c.wantsProtocol("CDP") }

// WantsLLDP reports whether LLDP parsing is enabled.
func (c Config) WantsLLDP() bool { return c.wantsProtocol("LLDP") }

func (c Config) wantsProtocol(name string) bool {
	for _, p := range c.Discovery.DiscoveryProtocols {
		if strings.EqualFold(strings.TrimSpace(p), name) {
			return true
		}
	}
	return false
}

package domain

import (
	"net/netip"
	"slices"
	"strings"
	"time"

	"go.trai.ch/zerr"
)

// Config is the runtime configuration of pkgd.
type Config struct {
	DataDir      string             `yaml:"dataDir"`
	Registry     RegistryConfig     `yaml:"registry"`
	ContentStore ContentStoreConfig `yaml:"contentStore"`
	Releases     ReleasesConfig     `yaml:"releases"`
	Network      NetworkConfig      `yaml:"network"`
	Cache        CacheConfig        `yaml:"cache"`

	// CorePackages are treated as system-critical in addition to manifests flagged core.
	CorePackages []string `yaml:"corePackages"`

	// Concurrency bounds parallel registry enumeration and artifact acquisition.
	Concurrency int `yaml:"concurrency"`
}

// RegistryConfig points at the versioned package registry.
type RegistryConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// ContentStoreConfig points at the content-addressable store gateway.
type ContentStoreConfig struct {
	Gateway string        `yaml:"gateway"`
	Timeout time.Duration `yaml:"timeout"`
}

// ReleasesConfig points at the HTTP release host.
type ReleasesConfig struct {
	BaseURL string        `yaml:"baseURL"`
	Timeout time.Duration `yaml:"timeout"`
}

// CacheConfig sizes the in-memory KV front.
type CacheConfig struct {
	Entries int           `yaml:"entries"`
	TTL     time.Duration `yaml:"ttl"`
}

// NetworkConfig describes the private container network.
type NetworkConfig struct {
	Name            string         `yaml:"name"`
	Subnet          string         `yaml:"subnet"`
	DomainSuffix    string         `yaml:"domainSuffix"`
	ContainerPrefix string         `yaml:"containerPrefix"`
	ConnectAttempts int            `yaml:"connectAttempts"`
	FixedAddresses  []FixedAddress `yaml:"fixedAddresses"`
}

// DefaultConfig returns the configuration used when no file overrides it.
func DefaultConfig() Config {
	return Config{
		DataDir: DefaultDataDir,
		Registry: RegistryConfig{
			URL:     "http://127.0.0.1:8545/registry",
			Timeout: 30 * time.Second,
		},
		ContentStore: ContentStoreConfig{
			Gateway: "http://127.0.0.1:8080",
			Timeout: 30 * time.Minute,
		},
		Releases: ReleasesConfig{
			BaseURL: "https://github.com",
			Timeout: 30 * time.Minute,
		},
		Network: NetworkConfig{
			Name:            "pkgd_net",
			Subnet:          "172.33.0.0/16",
			DomainSuffix:    "pkgd",
			ContainerPrefix: "pkgd-",
			ConnectAttempts: 3,
			FixedAddresses: []FixedAddress{
				{Container: "pkgd-manager.core", IP: "172.33.1.7"},
				{Container: "pkgd-names.core", IP: "172.33.1.2"},
			},
		},
		Cache: CacheConfig{
			Entries: 1024,
			TTL:     30 * time.Minute,
		},
		Concurrency: 4,
	}
}

// IsCore reports whether pkg is listed as system-critical.
func (c *Config) IsCore(pkg string) bool {
	return slices.Contains(c.CorePackages, pkg)
}

// FixedIP returns the fixed address configured for container, if any.
func (n *NetworkConfig) FixedIP(container string) (string, bool) {
	for _, fa := range n.FixedAddresses {
		if fa.Container == container {
			return fa.IP, true
		}
	}
	return "", false
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return zerr.Wrap(ErrInvalidConfig, "dataDir is empty")
	}
	if c.Network.Name == "" {
		return zerr.Wrap(ErrInvalidConfig, "network.name is empty")
	}
	if c.Network.ConnectAttempts < 1 {
		return zerr.With(zerr.Wrap(ErrInvalidConfig, "network.connectAttempts must be positive"),
			"connectAttempts", c.Network.ConnectAttempts)
	}
	prefix, err := netip.ParsePrefix(c.Network.Subnet)
	if err != nil {
		return zerr.With(zerr.Wrap(ErrInvalidConfig, "network.subnet is not a CIDR"), "subnet", c.Network.Subnet)
	}
	seenIP := make(map[string]string)
	seenName := make(map[string]struct{})
	for _, fa := range c.Network.FixedAddresses {
		addr, err := netip.ParseAddr(fa.IP)
		if err != nil || !prefix.Contains(addr) {
			err := zerr.With(zerr.Wrap(ErrInvalidConfig, "fixed address outside subnet"), "container", fa.Container)
			return zerr.With(err, "ip", fa.IP)
		}
		if other, dup := seenIP[fa.IP]; dup {
			err := zerr.With(zerr.Wrap(ErrInvalidConfig, "fixed address assigned twice"), "ip", fa.IP)
			return zerr.With(err, "containers", other+","+fa.Container)
		}
		if _, dup := seenName[fa.Container]; dup {
			return zerr.With(zerr.Wrap(ErrInvalidConfig, "container pinned twice"), "container", fa.Container)
		}
		seenIP[fa.IP] = fa.Container
		seenName[fa.Container] = struct{}{}
	}
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	return nil
}

// ContainerName returns the container name of a package service.
// Single-service packages drop the service part.
func (n *NetworkConfig) ContainerName(pkg, service string, single bool) string {
	if single {
		return n.ContainerPrefix + pkg
	}
	return n.ContainerPrefix + service + "." + pkg
}

// Aliases returns the DNS aliases of a package service on the private network.
// The main service additionally answers to the bare package alias.
func (n *NetworkConfig) Aliases(pkg, service string, main bool) []string {
	base := strings.TrimSuffix(pkg, "."+n.DomainSuffix)
	aliases := []string{service + "." + base + "." + n.DomainSuffix}
	if main {
		aliases = append(aliases, base+"."+n.DomainSuffix)
	}
	return aliases
}

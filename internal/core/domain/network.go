package domain

import (
	"net/netip"
	"slices"
)

// NetworkState is the observed condition of the private container network.
type NetworkState int

const (
	// NetworkAbsent means the network does not exist.
	NetworkAbsent NetworkState = iota
	// NetworkWrongSubnet means the network exists with a non-canonical address range.
	NetworkWrongSubnet
	// NetworkCorrect means the network exists with the canonical subnet.
	NetworkCorrect
)

// String returns the name of the state.
func (s NetworkState) String() string {
	switch s {
	case NetworkAbsent:
		return "absent"
	case NetworkWrongSubnet:
		return "wrong-subnet"
	case NetworkCorrect:
		return "correct"
	default:
		return "unknown"
	}
}

// NetworkInfo is the runtime's view of a network.
type NetworkInfo struct {
	Name      string
	Subnets   []string
	Endpoints []Endpoint
}

// Endpoint is one container attachment on a network.
type Endpoint struct {
	ContainerName string
	IP            string
	Aliases       []string
}

// HolderOf returns the container holding ip on the network, if any.
func (n *NetworkInfo) HolderOf(ip string) (string, bool) {
	for _, ep := range n.Endpoints {
		if ep.IP == ip {
			return ep.ContainerName, true
		}
	}
	return "", false
}

// ClassifyNetwork returns the state of info against the canonical subnet. A nil info is absent.
func ClassifyNetwork(info *NetworkInfo, canonicalSubnet string) NetworkState {
	if info == nil {
		return NetworkAbsent
	}
	want, err := netip.ParsePrefix(canonicalSubnet)
	if err != nil {
		return NetworkWrongSubnet
	}
	for _, s := range info.Subnets {
		got, err := netip.ParsePrefix(s)
		if err == nil && got.Masked() == want.Masked() {
			return NetworkCorrect
		}
	}
	return NetworkWrongSubnet
}

// ContainerInfo is the runtime's view of a container.
type ContainerInfo struct {
	Name    string
	Running bool

	// Networks maps network names to the container's endpoint on each.
	Networks map[string]Endpoint
}

// NetworkAssignment is the desired attachment of one container to the private network.
type NetworkAssignment struct {
	ContainerName string

	// IP is the required fixed address. Empty lets the runtime assign one.
	IP string

	Aliases []string
}

// Fixed reports whether the assignment requires a specific address.
func (a NetworkAssignment) Fixed() bool {
	return a.IP != ""
}

// SatisfiedBy reports whether ep already realises the assignment.
func (a NetworkAssignment) SatisfiedBy(ep Endpoint) bool {
	if a.IP != "" && ep.IP != a.IP {
		return false
	}
	for _, alias := range a.Aliases {
		if !slices.Contains(ep.Aliases, alias) {
			return false
		}
	}
	return true
}

// FixedAddress pins a container to an address on the private network.
type FixedAddress struct {
	Container string `yaml:"container"`
	IP        string `yaml:"ip"`
}

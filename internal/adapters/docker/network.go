package docker

import (
	"context"
	"net/netip"
	"strings"

	"github.com/docker/docker/api/types/network"
	"go.trai.ch/pkgd/internal/core/domain"
)

// InspectNetwork returns the network with its subnets and endpoints.
func (r *Runtime) InspectNetwork(ctx context.Context, name string) (*domain.NetworkInfo, error) {
	res, err := r.api.NetworkInspect(ctx, name, network.InspectOptions{})
	if err != nil {
		return nil, wrap(err, domain.ErrNetworkNotFound, "inspect network", "network", name)
	}

	info := &domain.NetworkInfo{Name: res.Name}
	for _, cfg := range res.IPAM.Config {
		if cfg.Subnet != "" {
			info.Subnets = append(info.Subnets, cfg.Subnet)
		}
	}
	for _, ep := range res.Containers {
		info.Endpoints = append(info.Endpoints, domain.Endpoint{
			ContainerName: ep.Name,
			IP:            stripPrefixLen(ep.IPv4Address),
		})
	}
	return info, nil
}

// CreateNetwork creates a bridge network with one IPv4 subnet.
func (r *Runtime) CreateNetwork(ctx context.Context, name, subnet string) error {
	_, err := r.api.NetworkCreate(ctx, name, network.CreateOptions{
		Driver: "bridge",
		IPAM: &network.IPAM{
			Driver: "default",
			Config: []network.IPAMConfig{{Subnet: subnet}},
		},
	})
	if err != nil {
		return wrap(err, nil, "create network", "network", name)
	}
	r.logger.Debug("network created", "network", name, "subnet", subnet)
	return nil
}

// RemoveNetwork deletes the network.
func (r *Runtime) RemoveNetwork(ctx context.Context, name string) error {
	if err := r.api.NetworkRemove(ctx, name); err != nil {
		return wrap(err, domain.ErrNetworkNotFound, "remove network", "network", name)
	}
	return nil
}

// Connect attaches a container with its aliases and, when set, a fixed address.
func (r *Runtime) Connect(ctx context.Context, networkName string, a domain.NetworkAssignment) error {
	settings := &network.EndpointSettings{Aliases: a.Aliases}
	if a.IP != "" {
		settings.IPAMConfig = &network.EndpointIPAMConfig{IPv4Address: a.IP}
	}
	if err := r.api.NetworkConnect(ctx, networkName, a.ContainerName, settings); err != nil {
		return wrap(err, domain.ErrContainerNotFound, "connect container", "container", a.ContainerName)
	}
	return nil
}

// Disconnect detaches a container from the network.
func (r *Runtime) Disconnect(ctx context.Context, networkName, containerName string) error {
	if err := r.api.NetworkDisconnect(ctx, networkName, containerName, true); err != nil {
		return wrap(err, domain.ErrContainerNotFound, "disconnect container", "container", containerName)
	}
	return nil
}

// stripPrefixLen turns "172.33.1.2/16" into "172.33.1.2".
func stripPrefixLen(addr string) string {
	if p, err := netip.ParsePrefix(addr); err == nil {
		return p.Addr().String()
	}
	return strings.TrimSpace(addr)
}

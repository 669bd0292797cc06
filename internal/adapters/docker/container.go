package docker

import (
	"context"
	"strings"

	"github.com/docker/docker/api/types/container"
	"go.trai.ch/pkgd/internal/core/domain"
)

// InspectContainer returns the container's state and network endpoints.
func (r *Runtime) InspectContainer(ctx context.Context, name string) (*domain.ContainerInfo, error) {
	res, err := r.api.ContainerInspect(ctx, name)
	if err != nil {
		return nil, wrap(err, domain.ErrContainerNotFound, "inspect container", "container", name)
	}

	info := &domain.ContainerInfo{
		Name:     name,
		Networks: make(map[string]domain.Endpoint),
	}
	if res.ContainerJSONBase != nil {
		info.Name = strings.TrimPrefix(res.Name, "/")
		if res.State != nil {
			info.Running = res.State.Running
		}
	}
	if res.NetworkSettings != nil {
		for netName, ep := range res.NetworkSettings.Networks {
			if ep == nil {
				continue
			}
			endpoint := domain.Endpoint{
				ContainerName: info.Name,
				IP:            ep.IPAddress,
				Aliases:       ep.Aliases,
			}
			if endpoint.IP == "" && ep.IPAMConfig != nil {
				endpoint.IP = ep.IPAMConfig.IPv4Address
			}
			info.Networks[netName] = endpoint
		}
	}
	return info, nil
}

// StartContainer starts a stopped container.
func (r *Runtime) StartContainer(ctx context.Context, name string) error {
	if err := r.api.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
		return wrap(err, domain.ErrContainerNotFound, "start container", "container", name)
	}
	return nil
}

// RestartContainer restarts a container with the engine's default stop timeout.
func (r *Runtime) RestartContainer(ctx context.Context, name string) error {
	if err := r.api.ContainerRestart(ctx, name, container.StopOptions{}); err != nil {
		return wrap(err, domain.ErrContainerNotFound, "restart container", "container", name)
	}
	return nil
}

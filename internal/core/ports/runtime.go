package ports

import (
	"context"

	"go.trai.ch/pkgd/internal/core/domain"
)

// ContainerRuntime is the subset of the container engine the pipeline drives.
//
// Implementations report address conflicts as domain.ErrAddressInUse and duplicate
// attachments as domain.ErrAlreadyAttached so callers can classify them with errors.Is.
type ContainerRuntime interface {
	// InspectNetwork returns the network, or domain.ErrNetworkNotFound.
	InspectNetwork(ctx context.Context, name string) (*domain.NetworkInfo, error)

	// CreateNetwork creates a bridge network with the given subnet.
	CreateNetwork(ctx context.Context, name, subnet string) error

	// RemoveNetwork deletes the network.
	RemoveNetwork(ctx context.Context, name string) error

	// Connect attaches a container to the network with an optional fixed IP and aliases.
	Connect(ctx context.Context, network string, assignment domain.NetworkAssignment) error

	// Disconnect detaches a container from the network.
	Disconnect(ctx context.Context, network, container string) error

	// InspectContainer returns the container, or domain.ErrContainerNotFound.
	InspectContainer(ctx context.Context, name string) (*domain.ContainerInfo, error)

	// StartContainer starts a stopped container.
	StartContainer(ctx context.Context, name string) error

	// RestartContainer restarts a running container.
	RestartContainer(ctx context.Context, name string) error

	// LoadImage loads an image bundle archive into the engine.
	LoadImage(ctx context.Context, path string) error

	// ComposeUp creates or recreates the services of a compose file.
	ComposeUp(ctx context.Context, composePath string) error

	// ComposeDown stops and removes the services of a compose file.
	ComposeDown(ctx context.Context, composePath string) error
}

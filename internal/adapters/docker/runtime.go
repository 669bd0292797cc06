// Package docker implements the ContainerRuntime port with the Docker Engine SDK
// and the docker compose CLI.
package docker

import (
	"context"
	"io"
	"os/exec"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"go.trai.ch/pkgd/internal/core/ports"
	"go.trai.ch/zerr"
)

// engineAPI is the part of the Docker client the runtime uses.
type engineAPI interface {
	NetworkInspect(ctx context.Context, networkID string, options network.InspectOptions) (network.Inspect, error)
	NetworkCreate(ctx context.Context, name string, options network.CreateOptions) (network.CreateResponse, error)
	NetworkRemove(ctx context.Context, networkID string) error
	NetworkConnect(ctx context.Context, networkID, containerID string, config *network.EndpointSettings) error
	NetworkDisconnect(ctx context.Context, networkID, containerID string, force bool) error
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerRestart(ctx context.Context, containerID string, options container.StopOptions) error
	ImageLoad(ctx context.Context, input io.Reader, loadOpts ...client.ImageLoadOption) (image.LoadResponse, error)
}

// ExecCommandFunc creates the exec.Cmd for compose invocations.
type ExecCommandFunc func(ctx context.Context, name string, arg ...string) *exec.Cmd

// Option configures a Runtime.
type Option func(*Runtime)

// WithExecCommand sets a custom exec command function for testing.
func WithExecCommand(fn ExecCommandFunc) Option {
	return func(r *Runtime) {
		r.execCommand = fn
	}
}

// WithBinary sets the docker binary used for compose.
func WithBinary(path string) Option {
	return func(r *Runtime) {
		r.binary = path
	}
}

// Runtime implements ports.ContainerRuntime.
type Runtime struct {
	api         engineAPI
	logger      ports.Logger
	binary      string
	execCommand ExecCommandFunc
}

// New connects to the engine described by the DOCKER_* environment.
func New(logger ports.Logger, opts ...Option) (*Runtime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, zerr.Wrap(err, "failed to create docker client")
	}
	return newRuntime(cli, logger, opts...), nil
}

func newRuntime(api engineAPI, logger ports.Logger, opts ...Option) *Runtime {
	r := &Runtime{
		api:         api,
		logger:      logger,
		binary:      "docker",
		execCommand: exec.CommandContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

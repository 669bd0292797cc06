package docker

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/pkgd/internal/adapters/logger"
	"go.trai.ch/pkgd/internal/core/ports"
)

// NodeID is the unique identifier for the container runtime Graft node.
const NodeID graft.ID = "adapter.docker"

func init() {
	graft.Register(graft.Node[ports.ContainerRuntime]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{logger.NodeID},
		Run: func(ctx context.Context) (ports.ContainerRuntime, error) {
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			rt, err := New(log)
			if err != nil {
				return nil, err
			}
			return rt, nil
		},
	})
}

package network

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/pkgd/internal/adapters/config" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/pkgd/internal/adapters/docker" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/pkgd/internal/adapters/logger" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/pkgd/internal/core/domain"
	"go.trai.ch/pkgd/internal/core/ports"
)

// NodeID is the unique identifier for the network reconciler Graft node.
const NodeID graft.ID = "engine.network"

func init() {
	graft.Register(graft.Node[*Reconciler]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			docker.NodeID,
			config.ConfigNodeID,
			logger.NodeID,
		},
		Run: func(ctx context.Context) (*Reconciler, error) {
			runtime, err := graft.Dep[ports.ContainerRuntime](ctx)
			if err != nil {
				return nil, err
			}

			cfg, err := graft.Dep[*domain.Config](ctx)
			if err != nil {
				return nil, err
			}

			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}

			return New(runtime, cfg.Network, log), nil
		},
	})
}

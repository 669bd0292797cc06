package compose

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/pkgd/internal/adapters/config"
	"go.trai.ch/pkgd/internal/adapters/logger"
	"go.trai.ch/pkgd/internal/core/domain"
	"go.trai.ch/pkgd/internal/core/ports"
)

// NodeID is the unique identifier for the compose reconciler Graft node.
const NodeID graft.ID = "adapter.compose"

func init() {
	graft.Register(graft.Node[ports.ComposeReconciler]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{config.ConfigNodeID, logger.NodeID},
		Run: func(ctx context.Context) (ports.ComposeReconciler, error) {
			cfg, err := graft.Dep[*domain.Config](ctx)
			if err != nil {
				return nil, err
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			return New(cfg.DataDir, cfg.Network, log), nil
		},
	})
}

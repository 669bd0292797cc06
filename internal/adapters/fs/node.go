package fs

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/pkgd/internal/adapters/config"
	"go.trai.ch/pkgd/internal/adapters/logger"
	"go.trai.ch/pkgd/internal/core/domain"
	"go.trai.ch/pkgd/internal/core/ports"
)

const (
	// WalkerNodeID is the unique identifier for the package directory walker Graft node.
	WalkerNodeID graft.ID = "adapter.fs.walker"
	// FleetNodeID is the unique identifier for the installed fleet Graft node.
	FleetNodeID graft.ID = "adapter.fs.fleet"
)

func init() {
	graft.Register(graft.Node[*Walker]{
		ID:        WalkerNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (*Walker, error) {
			return NewWalker(), nil
		},
	})

	graft.Register(graft.Node[ports.FleetSource]{
		ID:        FleetNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{WalkerNodeID, config.ConfigNodeID, logger.NodeID},
		Run: func(ctx context.Context) (ports.FleetSource, error) {
			walker, err := graft.Dep[*Walker](ctx)
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
			return NewFleet(cfg.DataDir, walker, log), nil
		},
	})
}

package contentstore

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/pkgd/internal/adapters/config"
	"go.trai.ch/pkgd/internal/adapters/kvstore"
	"go.trai.ch/pkgd/internal/adapters/logger"
	"go.trai.ch/pkgd/internal/core/domain"
	"go.trai.ch/pkgd/internal/core/ports"
)

const (
	// NodeID is the unique identifier for the content store Graft node.
	NodeID graft.ID = "adapter.contentstore"
	// ReleaseSourceNodeID is the unique identifier for the release source Graft node.
	ReleaseSourceNodeID graft.ID = "adapter.contentstore.releases"
	gatewayNodeID       graft.ID = "adapter.contentstore.gateway"
)

func init() {
	graft.Register(graft.Node[*Gateway]{
		ID:        gatewayNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{config.ConfigNodeID, kvstore.NodeID, logger.NodeID},
		Run: func(ctx context.Context) (*Gateway, error) {
			cfg, err := graft.Dep[*domain.Config](ctx)
			if err != nil {
				return nil, err
			}
			cache, err := graft.Dep[ports.KVStore](ctx)
			if err != nil {
				return nil, err
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			return New(cfg.ContentStore.Gateway, cfg.ContentStore.Timeout, cache, log), nil
		},
	})

	graft.Register(graft.Node[ports.ContentStore]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{gatewayNodeID},
		Run: func(ctx context.Context) (ports.ContentStore, error) {
			gw, err := graft.Dep[*Gateway](ctx)
			if err != nil {
				return nil, err
			}
			return gw, nil
		},
	})

	graft.Register(graft.Node[ports.ReleaseSource]{
		ID:        ReleaseSourceNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{gatewayNodeID},
		Run: func(ctx context.Context) (ports.ReleaseSource, error) {
			gw, err := graft.Dep[*Gateway](ctx)
			if err != nil {
				return nil, err
			}
			return gw, nil
		},
	})
}

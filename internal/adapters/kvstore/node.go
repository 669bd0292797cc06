package kvstore

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/pkgd/internal/adapters/config"
	"go.trai.ch/pkgd/internal/core/domain"
	"go.trai.ch/pkgd/internal/core/ports"
)

// NodeID is the unique identifier for the KV store Graft node.
const NodeID graft.ID = "adapter.kvstore"

func init() {
	graft.Register(graft.Node[ports.KVStore]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{config.ConfigNodeID},
		Run: func(ctx context.Context) (ports.KVStore, error) {
			cfg, err := graft.Dep[*domain.Config](ctx)
			if err != nil {
				return nil, err
			}
			return NewStore(domain.CachePath(cfg.DataDir), cfg.Cache.Entries, cfg.Cache.TTL)
		},
	})
}

package release

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/pkgd/internal/adapters/config"
	"go.trai.ch/pkgd/internal/core/domain"
	"go.trai.ch/pkgd/internal/core/ports"
)

// NodeID is the unique identifier for the release host Graft node.
const NodeID graft.ID = "adapter.release"

func init() {
	graft.Register(graft.Node[ports.ReleaseHost]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{config.ConfigNodeID},
		Run: func(ctx context.Context) (ports.ReleaseHost, error) {
			cfg, err := graft.Dep[*domain.Config](ctx)
			if err != nil {
				return nil, err
			}
			return New(cfg.Releases.BaseURL, cfg.Releases.Timeout), nil
		},
	})
}

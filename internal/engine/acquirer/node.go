package acquirer

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/pkgd/internal/adapters/contentstore" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/pkgd/internal/adapters/logger"       //nolint:depguard // Wired in engine wiring
	"go.trai.ch/pkgd/internal/adapters/release"      //nolint:depguard // Wired in engine wiring
	"go.trai.ch/pkgd/internal/core/ports"
)

// NodeID is the unique identifier for the acquirer Graft node.
const NodeID graft.ID = "engine.acquirer"

func init() {
	graft.Register(graft.Node[*Acquirer]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			contentstore.NodeID,
			release.NodeID,
			logger.NodeID,
		},
		Run: func(ctx context.Context) (*Acquirer, error) {
			content, err := graft.Dep[ports.ContentStore](ctx)
			if err != nil {
				return nil, err
			}

			releases, err := graft.Dep[ports.ReleaseHost](ctx)
			if err != nil {
				return nil, err
			}

			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}

			return New(content, releases, log), nil
		},
	})
}

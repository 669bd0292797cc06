package resolver

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/pkgd/internal/adapters/config"       //nolint:depguard // Wired in engine wiring
	"go.trai.ch/pkgd/internal/adapters/contentstore" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/pkgd/internal/adapters/kvstore"      //nolint:depguard // Wired in engine wiring
	"go.trai.ch/pkgd/internal/adapters/logger"       //nolint:depguard // Wired in engine wiring
	"go.trai.ch/pkgd/internal/adapters/registry"     //nolint:depguard // Wired in engine wiring
	"go.trai.ch/pkgd/internal/core/domain"
	"go.trai.ch/pkgd/internal/core/ports"
)

const (
	// VersionNodeID is the unique identifier for the version resolver Graft node.
	VersionNodeID graft.ID = "engine.resolver.version"
	// DependencyNodeID is the unique identifier for the dependency resolver Graft node.
	DependencyNodeID graft.ID = "engine.resolver.dependency"
)

func init() {
	graft.Register(graft.Node[*VersionResolver]{
		ID:        VersionNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			registry.NodeID,
			kvstore.NodeID,
			logger.NodeID,
			config.ConfigNodeID,
		},
		Run: func(ctx context.Context) (*VersionResolver, error) {
			reg, err := graft.Dep[ports.Registry](ctx)
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

			cfg, err := graft.Dep[*domain.Config](ctx)
			if err != nil {
				return nil, err
			}

			return NewVersionResolver(reg, cache, log, cfg.Concurrency), nil
		},
	})

	graft.Register(graft.Node[*DependencyResolver]{
		ID:        DependencyNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			VersionNodeID,
			contentstore.ReleaseSourceNodeID,
			logger.NodeID,
			config.ConfigNodeID,
		},
		Run: func(ctx context.Context) (*DependencyResolver, error) {
			versions, err := graft.Dep[*VersionResolver](ctx)
			if err != nil {
				return nil, err
			}

			releases, err := graft.Dep[ports.ReleaseSource](ctx)
			if err != nil {
				return nil, err
			}

			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}

			cfg, err := graft.Dep[*domain.Config](ctx)
			if err != nil {
				return nil, err
			}

			return NewDependencyResolver(versions, releases, log, cfg.Concurrency), nil
		},
	})
}

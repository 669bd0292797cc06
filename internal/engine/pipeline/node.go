package pipeline

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/pkgd/internal/adapters/compose"            //nolint:depguard // Wired in engine wiring
	"go.trai.ch/pkgd/internal/adapters/config"             //nolint:depguard // Wired in engine wiring
	"go.trai.ch/pkgd/internal/adapters/contentstore"       //nolint:depguard // Wired in engine wiring
	"go.trai.ch/pkgd/internal/adapters/docker"             //nolint:depguard // Wired in engine wiring
	"go.trai.ch/pkgd/internal/adapters/fs"                 //nolint:depguard // Wired in engine wiring
	"go.trai.ch/pkgd/internal/adapters/kvstore"            //nolint:depguard // Wired in engine wiring
	"go.trai.ch/pkgd/internal/adapters/logger"             //nolint:depguard // Wired in engine wiring
	"go.trai.ch/pkgd/internal/adapters/telemetry/progrock" //nolint:depguard // Wired in engine wiring
	"go.trai.ch/pkgd/internal/core/domain"
	"go.trai.ch/pkgd/internal/core/ports"
	"go.trai.ch/pkgd/internal/engine/acquirer"
	"go.trai.ch/pkgd/internal/engine/network"
	"go.trai.ch/pkgd/internal/engine/resolver"
)

// NodeID is the unique identifier for the installer Graft node.
const NodeID graft.ID = "engine.pipeline"

func init() {
	graft.Register(graft.Node[*Installer]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{
			config.ConfigNodeID,
			resolver.VersionNodeID,
			resolver.DependencyNodeID,
			contentstore.ReleaseSourceNodeID,
			acquirer.NodeID,
			compose.NodeID,
			network.NodeID,
			docker.NodeID,
			fs.FleetNodeID,
			kvstore.NodeID,
			progrock.NodeID,
			logger.NodeID,
		},
		Run: runNode,
	})
}

func runNode(ctx context.Context) (*Installer, error) {
	cfg, err := graft.Dep[*domain.Config](ctx)
	if err != nil {
		return nil, err
	}

	var deps Deps
	if deps.Versions, err = graft.Dep[*resolver.VersionResolver](ctx); err != nil {
		return nil, err
	}
	if deps.Dependencies, err = graft.Dep[*resolver.DependencyResolver](ctx); err != nil {
		return nil, err
	}
	if deps.Releases, err = graft.Dep[ports.ReleaseSource](ctx); err != nil {
		return nil, err
	}
	if deps.Acquirer, err = graft.Dep[*acquirer.Acquirer](ctx); err != nil {
		return nil, err
	}
	if deps.Compose, err = graft.Dep[ports.ComposeReconciler](ctx); err != nil {
		return nil, err
	}
	if deps.Network, err = graft.Dep[*network.Reconciler](ctx); err != nil {
		return nil, err
	}
	if deps.Runtime, err = graft.Dep[ports.ContainerRuntime](ctx); err != nil {
		return nil, err
	}
	if deps.Fleet, err = graft.Dep[ports.FleetSource](ctx); err != nil {
		return nil, err
	}
	if deps.Store, err = graft.Dep[ports.KVStore](ctx); err != nil {
		return nil, err
	}
	if deps.Telemetry, err = graft.Dep[ports.Telemetry](ctx); err != nil {
		return nil, err
	}
	if deps.Logger, err = graft.Dep[ports.Logger](ctx); err != nil {
		return nil, err
	}

	return New(cfg, deps), nil
}

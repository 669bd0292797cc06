// Package pipeline runs install requests through resolution, acquisition, compose
// and network stages.
package pipeline

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/moby/locker"
	"go.trai.ch/pkgd/internal/core/domain"
	"go.trai.ch/pkgd/internal/core/ports"
	"go.trai.ch/zerr"
)

const (
	// transferAttempts bounds the attempts per artifact when a transfer breaks off.
	transferAttempts = 3
	// storeAttempts bounds the attempts to persist an install state.
	storeAttempts = 3
)

// VersionResolver resolves a version requirement of one package.
type VersionResolver interface {
	Resolve(ctx context.Context, name, requirement string) ([]domain.VersionRecord, error)
	Lookup(ctx context.Context, name, version string) (domain.VersionRecord, error)
}

// DependencyResolver computes the packages an install needs.
type DependencyResolver interface {
	Resolve(
		ctx context.Context,
		rootName string,
		root domain.VersionRecord,
		fleet domain.FleetSnapshot,
	) (domain.ResolvedDependencySet, error)
}

// ArtifactAcquirer makes sure a validated image bundle is on disk.
type ArtifactAcquirer interface {
	Acquire(ctx context.Context, req domain.ArtifactRequest, dest string) (domain.Artifact, error)
}

// NetworkReconciler converges the private network.
type NetworkReconciler interface {
	Reconcile(ctx context.Context, assignments []domain.NetworkAssignment) (*domain.ReconcileReport, error)
	Detach(ctx context.Context, containers []string) error
}

// Deps are the collaborators of an Installer.
type Deps struct {
	Versions     VersionResolver
	Dependencies DependencyResolver
	Releases     ports.ReleaseSource
	Acquirer     ArtifactAcquirer
	Compose      ports.ComposeReconciler
	Network      NetworkReconciler
	Runtime      ports.ContainerRuntime
	Fleet        ports.FleetSource
	Store        ports.KVStore
	Telemetry    ports.Telemetry
	Logger       ports.Logger
}

// Installer turns install requests into running, connected packages.
// Installs of disjoint package sets run concurrently; overlapping ones are
// serialized by per-package locks held for the whole pipeline.
type Installer struct {
	cfg *domain.Config
	Deps

	locks *packageLocks

	mu     sync.RWMutex
	states map[string]domain.InstallState
}

// New creates an Installer.
func New(cfg *domain.Config, deps Deps) *Installer {
	return &Installer{
		cfg:    cfg,
		Deps:   deps,
		locks:  newPackageLocks(domain.LocksPath(cfg.DataDir), locker.New()),
		states: make(map[string]domain.InstallState),
	}
}

// Install resolves req with its dependencies and installs every package that needs it.
//
// Resolution and integrity failures abort before any compose file is written. Core
// packages that fail after resolution are skipped and reported in the result instead.
// The result is returned alongside any error and describes how far the install got.
func (i *Installer) Install(ctx context.Context, req domain.InstallRequest) (*domain.InstallResult, error) {
	set, err := i.Resolve(ctx, req)
	if err != nil {
		return nil, err
	}

	names := set.Names()
	i.Logger.Info("install resolved", "package", req.Name, "packages", names)

	unlock, err := i.locks.acquire(ctx, names)
	if err != nil {
		return nil, domain.NewPackageError(req.Name, domain.StageResolve, err)
	}
	defer unlock()

	if err := i.begin(ctx, names); err != nil {
		return nil, domain.NewPackageError(req.Name, domain.StageResolve, err)
	}

	r := newRun(i, req, set)
	err = r.execute(ctx)
	i.finish(ctx, r, err)
	return r.result, err
}

// Resolve computes the packages req would install without touching the host.
func (i *Installer) Resolve(ctx context.Context, req domain.InstallRequest) (domain.ResolvedDependencySet, error) {
	rctx, v := i.Telemetry.Record(ctx, "resolve "+req.Name)
	set, err := i.resolve(rctx, req)
	v.Done(err)
	if err != nil {
		return nil, domain.NewPackageError(req.Name, domain.StageResolve, err)
	}
	return set, nil
}

func (i *Installer) resolve(ctx context.Context, req domain.InstallRequest) (domain.ResolvedDependencySet, error) {
	recs, err := i.Versions.Resolve(ctx, req.Name, req.Requirement)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, zerr.With(zerr.Wrap(domain.ErrNoSatisfyingVersion, req.Name), "requirement", req.Requirement)
	}

	root := recs[0]
	if !root.Resolved() {
		if root, err = i.Versions.Lookup(ctx, req.Name, root.Version); err != nil {
			return nil, err
		}
	}

	fleet, err := i.Fleet.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return i.Dependencies.Resolve(ctx, req.Name, root, fleet)
}

// Reconcile runs the network reconciliation over every installed package.
// Packages whose compose file cannot be read are left out and logged.
func (i *Installer) Reconcile(ctx context.Context) (*domain.ReconcileReport, error) {
	fleet, err := i.Fleet.Snapshot(ctx)
	if err != nil {
		return nil, zerr.Wrap(err, "cannot read installed packages")
	}

	assignments := i.fleetAssignments(ctx, fleet, nil)

	rctx, v := i.Telemetry.Record(ctx, "network")
	report, err := i.Network.Reconcile(rctx, assignments)
	v.Done(err)
	if err != nil {
		return report, zerr.Wrap(err, "network reconciliation failed")
	}
	return report, nil
}

// fleetAssignments returns the network assignments of every installed package not in skip.
func (i *Installer) fleetAssignments(
	ctx context.Context,
	fleet domain.FleetSnapshot,
	skip []string,
) []domain.NetworkAssignment {
	var assignments []domain.NetworkAssignment
	for _, name := range slices.Sorted(maps.Keys(fleet)) {
		if slices.Contains(skip, name) {
			continue
		}
		targets, err := i.Compose.Targets(ctx, name)
		if err != nil {
			i.Logger.Warn("package left out of network reconciliation", "package", name, "error", err)
			continue
		}
		for _, t := range targets {
			assignments = append(assignments, t.Assignment())
		}
	}
	return assignments
}

// Uninstall detaches the package's containers, stops its services and deletes its directory.
func (i *Installer) Uninstall(ctx context.Context, name string) error {
	unlock, err := i.locks.acquire(ctx, []string{name})
	if err != nil {
		return domain.NewPackageError(name, domain.StageUninstall, err)
	}
	defer unlock()

	if _, err := i.Fleet.Manifest(ctx, name); err != nil {
		return domain.NewPackageError(name, domain.StageUninstall, err)
	}

	cur := i.current(ctx, name, domain.StateInstalled)
	if cur == domain.StateToInstall || cur == domain.StateInstalling {
		// The lock is held, so an install in progress was interrupted.
		cur = domain.StateInstallingError
	}
	next, err := cur.Transition(domain.EventUninstall)
	if err != nil {
		return domain.NewPackageError(name, domain.StageUninstall, err)
	}

	targets, err := i.Compose.Targets(ctx, name)
	switch {
	case errors.Is(err, domain.ErrComposeMissing):
		i.Logger.Warn("package has no compose file", "package", name)
	case err != nil:
		return domain.NewPackageError(name, domain.StageUninstall, err)
	default:
		containers := make([]string, 0, len(targets))
		for _, t := range targets {
			containers = append(containers, t.ContainerName)
		}
		if err := i.Network.Detach(ctx, containers); err != nil {
			i.Logger.Warn("containers could not be detached", "package", name, "error", err)
		}
		if err := i.Runtime.ComposeDown(ctx, domain.ComposePath(i.cfg.DataDir, name)); err != nil {
			return domain.NewPackageError(name, domain.StageUninstall, err)
		}
	}

	if err := i.Fleet.Remove(ctx, name); err != nil {
		return domain.NewPackageError(name, domain.StageUninstall, err)
	}

	i.setState(ctx, name, next)
	i.Logger.Info("package uninstalled", "package", name)
	return nil
}

// Status returns the install state of name.
func (i *Installer) Status(ctx context.Context, name string) (domain.InstallState, error) {
	if st, ok := i.lookupState(name); ok {
		return st, nil
	}
	if _, err := i.Fleet.Manifest(ctx, name); err != nil {
		return domain.StateUninstalled, err
	}
	return domain.StateInstalled, nil
}

package pipeline

import (
	"context"
	"errors"
	"sync"

	"go.trai.ch/pkgd/internal/core/domain"
	"go.trai.ch/pkgd/internal/core/ports"
	"go.trai.ch/pkgd/internal/engine/network"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// run is the state of one install request while it moves through the stages.
type run struct {
	i   *Installer
	req domain.InstallRequest
	set domain.ResolvedDependencySet

	mu       sync.Mutex
	releases map[string]*domain.Release
	skipped  map[string]error
	order    []string
	plans    map[string]*ports.ComposePlan

	// committed holds the plans written to disk; started the packages brought up from
	// them, including a failed attempt.
	committed []*ports.ComposePlan
	started   []string

	result *domain.InstallResult
}

func newRun(i *Installer, req domain.InstallRequest, set domain.ResolvedDependencySet) *run {
	return &run{
		i:        i,
		req:      req,
		set:      set,
		releases: make(map[string]*domain.Release),
		skipped:  make(map[string]error),
		plans:    make(map[string]*ports.ComposePlan),
		result: &domain.InstallResult{
			Resolved:  set,
			Artifacts: make(map[string]domain.Artifact),
			Skipped:   make(map[string]error),
		},
	}
}

func (r *run) execute(ctx context.Context) error {
	stages := []func(context.Context) error{
		r.fetchReleases,
		r.orderPackages,
		r.acquire,
		r.load,
		r.compose,
		r.start,
		r.connect,
		r.record,
	}
	for _, stage := range stages {
		err := ctx.Err()
		if err != nil {
			err = zerr.Wrap(err, "install interrupted")
		} else {
			err = stage(ctx)
		}
		if err != nil {
			r.rollback(ctx)
			return err
		}
	}
	return nil
}

// rollback undoes a failed install from the compose commit on. Services brought up
// from new compose files are taken down, the previous files are put back and the
// packages that had them are brought up again.
func (r *run) rollback(ctx context.Context) {
	if len(r.committed) == 0 {
		return
	}
	ctx = context.WithoutCancel(ctx)

	for i := len(r.started) - 1; i >= 0; i-- {
		plan := r.plans[r.started[i]]
		if plan.Existed {
			continue
		}
		if err := r.i.Runtime.ComposeDown(ctx, plan.Path); err != nil {
			r.i.Logger.Warn("cannot stop services of failed install", "package", plan.Package, "error", err)
		}
	}
	if err := r.i.Compose.Restore(ctx, r.committed); err != nil {
		r.i.Logger.Warn("cannot restore compose files", "package", r.req.Name, "error", err)
	}
	for _, name := range r.started {
		plan := r.plans[name]
		if !plan.Existed {
			continue
		}
		if err := r.i.Runtime.ComposeUp(ctx, plan.Path); err != nil {
			r.i.Logger.Warn("cannot restart previous services", "package", name, "error", err)
		}
	}
}

// core reports whether a failure of name may be tolerated.
func (r *run) core(name string) bool {
	if r.i.cfg.IsCore(name) {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rel, ok := r.releases[name]
	return ok && rel.Manifest.Core
}

// tolerate skips name when it is a core package and returns nil, otherwise it
// returns the failure as the error of the install.
func (r *run) tolerate(name string, stage domain.Stage, err error) error {
	perr := domain.NewPackageError(name, stage, err)
	if !r.core(name) {
		return perr
	}
	r.i.Logger.Warn("core package failed, continuing without it", "package", name, "stage", string(stage), "error", err)
	r.mu.Lock()
	r.skipped[name] = perr
	r.result.Skipped[name] = perr
	r.mu.Unlock()
	return nil
}

// active returns the packages still taking part, dependencies first.
func (r *run) active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.order))
	for _, name := range r.order {
		if _, skip := r.skipped[name]; !skip {
			out = append(out, name)
		}
	}
	return out
}

func (r *run) fetchReleases(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.i.cfg.Concurrency)

	for _, name := range r.set.Names() {
		rec := r.set[name]
		g.Go(func() error {
			rel, err := r.i.Releases.Release(gctx, name, rec)
			if err != nil {
				return r.tolerate(name, domain.StageResolve, err)
			}
			r.mu.Lock()
			r.releases[name] = rel
			r.mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

func (r *run) orderPackages(_ context.Context) error {
	g := domain.NewGraph()
	for _, name := range r.set.Names() {
		rel, ok := r.releases[name]
		if !ok {
			continue
		}
		if err := g.AddPackage(name, rel.Manifest.DependencyNames()); err != nil {
			return domain.NewPackageError(r.req.Name, domain.StageResolve, err)
		}
	}
	if err := g.Validate(); err != nil {
		return domain.NewPackageError(r.req.Name, domain.StageResolve, err)
	}
	for name := range g.Walk() {
		r.order = append(r.order, name)
	}
	return nil
}

func (r *run) acquire(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.i.cfg.Concurrency)

	for _, name := range r.active() {
		g.Go(func() error {
			art, err := r.acquireOne(gctx, name)
			if err != nil {
				return r.tolerate(name, domain.StageAcquire, err)
			}
			r.mu.Lock()
			r.result.Artifacts[name] = art
			r.mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

func (r *run) acquireOne(ctx context.Context, name string) (domain.Artifact, error) {
	r.mu.Lock()
	manifest := r.releases[name].Manifest
	r.mu.Unlock()

	src, err := manifest.ArtifactSource()
	if err != nil {
		return domain.Artifact{}, err
	}

	rec := r.set[name]
	if domain.IsContentLocator(rec.Version) && manifest.Version != "" {
		rec.Version = manifest.Version
	}
	req := domain.ArtifactRequest{
		Package: name,
		Version: rec,
		Source:  src,
		Core:    r.core(name),
	}
	dest := domain.ArtifactPath(r.i.cfg.DataDir, name, manifest.Version, manifest.ArtifactName())

	var art domain.Artifact
	err = r.step(ctx, "acquire "+name, func(ctx context.Context) error {
		return network.Retry(ctx, transferAttempts, func(ctx context.Context) error {
			var aerr error
			art, aerr = r.i.Acquirer.Acquire(ctx, req, dest)
			return aerr
		}, func(_ context.Context, err error) bool {
			retry := errors.Is(err, domain.ErrArtifactTransfer)
			if retry {
				r.i.Logger.Warn("artifact transfer failed, retrying", "package", name, "error", err)
			}
			return retry
		})
	})
	if err == nil && art.TagMismatch {
		r.i.Logger.Warn("installing core package with mismatched image tag", "package", name)
	}
	return art, err
}

func (r *run) load(ctx context.Context) error {
	for _, name := range r.active() {
		art := r.result.Artifacts[name]
		err := r.step(ctx, "load "+name, func(ctx context.Context) error {
			return r.i.Runtime.LoadImage(ctx, art.LocalPath)
		})
		if err != nil {
			if err := r.tolerate(name, domain.StageLoad, err); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *run) compose(ctx context.Context) error {
	var plans []*ports.ComposePlan
	for _, name := range r.active() {
		settings := domain.PackageSettings{}
		if name == r.req.Name {
			settings = r.req.Settings
		}
		rel := r.releases[name]
		plan, err := r.i.Compose.Plan(ctx, rel.Manifest, rel.Compose, settings)
		if err != nil {
			if err := r.tolerate(name, domain.StageCompose, err); err != nil {
				return err
			}
			continue
		}
		r.plans[name] = plan
		plans = append(plans, plan)
	}

	err := r.step(ctx, "compose", func(ctx context.Context) error {
		return r.i.Compose.Commit(ctx, plans)
	})
	if err != nil {
		return domain.NewPackageError(r.req.Name, domain.StageCompose, err)
	}
	r.committed = plans
	return nil
}

func (r *run) start(ctx context.Context) error {
	for _, name := range r.active() {
		plan := r.plans[name]
		r.started = append(r.started, name)
		err := r.step(ctx, "start "+name, func(ctx context.Context) error {
			return r.i.Runtime.ComposeUp(ctx, plan.Path)
		})
		if err != nil {
			if err := r.tolerate(name, domain.StageStart, err); err != nil {
				return err
			}
		}
	}
	return nil
}

// connect reconciles the network for the new containers together with the rest of the
// fleet, so a network that has to be recreated takes the running packages along.
func (r *run) connect(ctx context.Context) error {
	active := r.active()
	var assignments []domain.NetworkAssignment
	for _, name := range active {
		for _, t := range r.plans[name].Targets {
			assignments = append(assignments, t.Assignment())
		}
	}
	fleet, err := r.i.Fleet.Snapshot(ctx)
	if err != nil {
		r.i.Logger.Warn("installed packages left out of network reconciliation", "error", err)
	} else {
		assignments = append(assignments, r.i.fleetAssignments(ctx, fleet, active)...)
	}

	nctx, v := r.i.Telemetry.Record(ctx, "network")
	report, err := r.i.Network.Reconcile(nctx, assignments)
	v.Done(err)
	r.result.Network = report
	if err != nil {
		return domain.NewPackageError(r.req.Name, domain.StageNetwork, err)
	}
	return nil
}

func (r *run) record(ctx context.Context) error {
	for _, name := range r.active() {
		if err := r.i.Fleet.Record(ctx, r.releases[name].Manifest); err != nil {
			if err := r.tolerate(name, domain.StageRecord, err); err != nil {
				return err
			}
		}
	}
	return nil
}

// step runs fn inside a telemetry vertex.
func (r *run) step(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	vctx, v := r.i.Telemetry.Record(ctx, name)
	err := fn(vctx)
	v.Done(err)
	return err
}

// Package network converges the private container network towards the desired addressing.
package network

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"

	"go.trai.ch/pkgd/internal/core/domain"
	"go.trai.ch/pkgd/internal/core/ports"
	"go.trai.ch/zerr"
)

// Reconciler brings the private network and its attachments in line with a set of
// NetworkAssignments. Running it twice without external change issues no mutating
// runtime call the second time.
type Reconciler struct {
	runtime ports.ContainerRuntime
	cfg     domain.NetworkConfig
	logger  ports.Logger

	// fixedMu serialises every change to fixed-address containers across installs.
	fixedMu sync.Mutex
}

// New creates a Reconciler for the network described by cfg.
func New(runtime ports.ContainerRuntime, cfg domain.NetworkConfig, logger ports.Logger) *Reconciler {
	return &Reconciler{
		runtime: runtime,
		cfg:     cfg,
		logger:  logger,
	}
}

// Reconcile makes sure the network exists with the canonical subnet, then attaches every
// assignment. Per-container failures are logged and reported, not returned; only a failure
// to converge the network itself is an error.
func (r *Reconciler) Reconcile(ctx context.Context, assignments []domain.NetworkAssignment) (*domain.ReconcileReport, error) {
	report := &domain.ReconcileReport{Failed: make(map[string]error)}

	info, migrated, err := r.ensureNetwork(ctx, report)
	if err != nil {
		return report, err
	}

	fixed, dynamic := r.order(withMigrated(assignments, migrated))

	if len(fixed) > 0 {
		r.fixedMu.Lock()
		err := r.attachAll(ctx, info, fixed, report)
		r.fixedMu.Unlock()
		if err != nil {
			return report, err
		}
	}
	if err := r.attachAll(ctx, info, dynamic, report); err != nil {
		return report, err
	}
	return report, nil
}

// Detach disconnects containers from the network. Containers that are not attached are skipped.
func (r *Reconciler) Detach(ctx context.Context, containers []string) error {
	info, err := r.inspect(ctx)
	if err != nil || info == nil {
		return err
	}
	var errs []error
	for _, name := range containers {
		if !attached(info, name) {
			continue
		}
		if err := r.runtime.Disconnect(ctx, r.cfg.Name, name); err != nil {
			errs = append(errs, zerr.With(zerr.Wrap(err, "disconnect failed"), "container", name))
		}
	}
	return errors.Join(errs...)
}

// ensureNetwork converges the network topology and returns the network as it now stands,
// along with the endpoints a subnet migration took off it.
func (r *Reconciler) ensureNetwork(ctx context.Context, report *domain.ReconcileReport) (*domain.NetworkInfo, []domain.Endpoint, error) {
	info, err := r.inspect(ctx)
	if err != nil {
		return nil, nil, err
	}

	var migrated []domain.Endpoint
	report.State = domain.ClassifyNetwork(info, r.cfg.Subnet)
	switch report.State {
	case domain.NetworkCorrect:
		return info, nil, nil

	case domain.NetworkWrongSubnet:
		r.logger.Warn("network subnet changed, recreating network",
			"network", r.cfg.Name, "subnets", info.Subnets, "subnet", r.cfg.Subnet)
		for _, ep := range info.Endpoints {
			if err := r.runtime.Disconnect(ctx, r.cfg.Name, ep.ContainerName); err != nil {
				return nil, nil, r.networkError(err, "disconnect before migration failed")
			}
			report.Disconnected = append(report.Disconnected, ep.ContainerName)
			migrated = append(migrated, ep)
		}
		if err := r.runtime.RemoveNetwork(ctx, r.cfg.Name); err != nil {
			return nil, nil, r.networkError(err, "remove network failed")
		}
	}

	if err := r.runtime.CreateNetwork(ctx, r.cfg.Name, r.cfg.Subnet); err != nil {
		return nil, nil, r.networkError(err, "create network failed")
	}
	r.logger.Info("network ready", "network", r.cfg.Name, "subnet", r.cfg.Subnet)
	return &domain.NetworkInfo{Name: r.cfg.Name, Subnets: []string{r.cfg.Subnet}}, migrated, nil
}

// withMigrated adds an assignment for every migrated container that assignments do not
// name. The old address belongs to the old subnet and is dropped.
func withMigrated(assignments []domain.NetworkAssignment, migrated []domain.Endpoint) []domain.NetworkAssignment {
	out := slices.Clone(assignments)
	for _, ep := range migrated {
		listed := slices.ContainsFunc(assignments, func(a domain.NetworkAssignment) bool {
			return a.ContainerName == ep.ContainerName
		})
		if !listed {
			out = append(out, domain.NetworkAssignment{ContainerName: ep.ContainerName, Aliases: slices.Clone(ep.Aliases)})
		}
	}
	return out
}

func (r *Reconciler) inspect(ctx context.Context) (*domain.NetworkInfo, error) {
	info, err := r.runtime.InspectNetwork(ctx, r.cfg.Name)
	if errors.Is(err, domain.ErrNetworkNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, r.networkError(err, "inspect network failed")
	}
	return info, nil
}

// order splits assignments into fixed-address ones, in configured order, and the rest,
// sorted by container name. Configured fixed addresses override assignment IPs.
func (r *Reconciler) order(assignments []domain.NetworkAssignment) (fixed, dynamic []domain.NetworkAssignment) {
	rank := make(map[string]int, len(r.cfg.FixedAddresses))
	for i, fa := range r.cfg.FixedAddresses {
		rank[fa.Container] = i
	}

	for _, a := range assignments {
		if ip, ok := r.cfg.FixedIP(a.ContainerName); ok {
			a.IP = ip
		}
		if a.Fixed() {
			fixed = append(fixed, a)
		} else {
			dynamic = append(dynamic, a)
		}
	}

	slices.SortStableFunc(fixed, func(a, b domain.NetworkAssignment) int {
		ra, oka := rank[a.ContainerName]
		rb, okb := rank[b.ContainerName]
		switch {
		case oka && okb:
			return cmp.Compare(ra, rb)
		case oka:
			return -1
		case okb:
			return 1
		default:
			return cmp.Compare(a.ContainerName, b.ContainerName)
		}
	})
	slices.SortStableFunc(dynamic, func(a, b domain.NetworkAssignment) int {
		return cmp.Compare(a.ContainerName, b.ContainerName)
	})
	return fixed, dynamic
}

// attachAll reconciles each assignment in turn. It stops early only when ctx is done.
func (r *Reconciler) attachAll(
	ctx context.Context,
	info *domain.NetworkInfo,
	assignments []domain.NetworkAssignment,
	report *domain.ReconcileReport,
) error {
	for _, a := range assignments {
		if err := ctx.Err(); err != nil {
			return zerr.Wrap(err, "network reconciliation interrupted")
		}
		changed, err := r.attach(ctx, info, a, report)
		switch {
		case err != nil:
			r.logger.Warn("container could not be attached", "container", a.ContainerName, "error", err)
			report.Failed[a.ContainerName] = err
		case changed:
			report.Connected = append(report.Connected, a.ContainerName)
		default:
			report.Unchanged = append(report.Unchanged, a.ContainerName)
		}
	}
	return nil
}

// attach brings one container to its assignment. It reports whether anything changed.
func (r *Reconciler) attach(
	ctx context.Context,
	info *domain.NetworkInfo,
	a domain.NetworkAssignment,
	report *domain.ReconcileReport,
) (bool, error) {
	ctr, err := r.runtime.InspectContainer(ctx, a.ContainerName)
	if err != nil {
		return false, err
	}

	current, isAttached := ctr.Networks[r.cfg.Name]
	if isAttached && a.SatisfiedBy(current) && r.exclusive(info, a) {
		return false, nil
	}

	if a.Fixed() {
		if holder, ok := info.HolderOf(a.IP); ok && holder != a.ContainerName {
			if err := r.evict(ctx, info, holder, report); err != nil {
				return false, err
			}
		}
	}

	if isAttached {
		if err := r.runtime.Disconnect(ctx, r.cfg.Name, a.ContainerName); err != nil {
			return false, err
		}
		forget(info, a.ContainerName)
	}

	err = Retry(ctx, r.cfg.ConnectAttempts, func(ctx context.Context) error {
		return r.runtime.Connect(ctx, r.cfg.Name, a)
	}, r.classifier(info, a, report))
	if err != nil {
		return false, err
	}

	info.Endpoints = append(info.Endpoints, domain.Endpoint{
		ContainerName: a.ContainerName,
		IP:            a.IP,
		Aliases:       a.Aliases,
	})
	return true, nil
}

// classifier repairs address and attachment conflicts so the next attempt can succeed.
func (r *Reconciler) classifier(info *domain.NetworkInfo, a domain.NetworkAssignment, report *domain.ReconcileReport) Classifier {
	return func(ctx context.Context, err error) bool {
		switch {
		case errors.Is(err, domain.ErrAddressInUse):
			fresh, ierr := r.inspect(ctx)
			if ierr != nil || fresh == nil {
				return false
			}
			*info = *fresh
			holder, ok := info.HolderOf(a.IP)
			if !ok || holder == a.ContainerName {
				// The address was released in the meantime.
				return true
			}
			return r.evict(ctx, info, holder, report) == nil

		case errors.Is(err, domain.ErrAlreadyAttached):
			if derr := r.runtime.Disconnect(ctx, r.cfg.Name, a.ContainerName); derr != nil {
				return false
			}
			forget(info, a.ContainerName)
			return true

		default:
			return false
		}
	}
}

// evict disconnects holder so its address becomes free.
func (r *Reconciler) evict(ctx context.Context, info *domain.NetworkInfo, holder string, report *domain.ReconcileReport) error {
	r.logger.Info("freeing reserved address", "container", holder)
	if err := r.runtime.Disconnect(ctx, r.cfg.Name, holder); err != nil {
		return zerr.With(zerr.Wrap(err, "cannot disconnect address holder"), "holder", holder)
	}
	forget(info, holder)
	report.Disconnected = append(report.Disconnected, holder)
	return nil
}

// exclusive reports whether no other container holds the assignment's fixed address.
func (r *Reconciler) exclusive(info *domain.NetworkInfo, a domain.NetworkAssignment) bool {
	if !a.Fixed() {
		return true
	}
	holder, ok := info.HolderOf(a.IP)
	return !ok || holder == a.ContainerName
}

func (r *Reconciler) networkError(err error, msg string) error {
	return zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrRuntimeCall), msg), "network", r.cfg.Name)
}

func attached(info *domain.NetworkInfo, name string) bool {
	for _, ep := range info.Endpoints {
		if ep.ContainerName == name {
			return true
		}
	}
	return false
}

func forget(info *domain.NetworkInfo, name string) {
	info.Endpoints = slices.DeleteFunc(info.Endpoints, func(ep domain.Endpoint) bool {
		return ep.ContainerName == name
	})
}

package resolver

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"go.trai.ch/pkgd/internal/core/domain"
	"go.trai.ch/pkgd/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxRounds bounds the number of fixpoint iterations of a dependency resolution.
const DefaultMaxRounds = 32

// requirement is one constraint placed on a package by one of its dependents.
type requirement struct {
	parent string
	expr   string
}

// DependencyResolver computes the set of packages and exact versions an install needs.
type DependencyResolver struct {
	versions  *VersionResolver
	releases  ports.ReleaseSource
	logger    ports.Logger
	limit     int
	maxRounds int
}

// NewDependencyResolver creates a DependencyResolver.
func NewDependencyResolver(
	versions *VersionResolver,
	releases ports.ReleaseSource,
	logger ports.Logger,
	limit int,
) *DependencyResolver {
	if limit < 1 {
		limit = 1
	}
	return &DependencyResolver{
		versions:  versions,
		releases:  releases,
		logger:    logger,
		limit:     limit,
		maxRounds: DefaultMaxRounds,
	}
}

// Resolve returns the root and every dependency that must be installed alongside it.
//
// Optional dependencies only join when fleet has them installed. Dependencies whose
// installed version already satisfies every requirement on them are left out. The
// result does not depend on the order in which manifests declare their dependencies.
func (d *DependencyResolver) Resolve(
	ctx context.Context,
	rootName string,
	root domain.VersionRecord,
	fleet domain.FleetSnapshot,
) (domain.ResolvedDependencySet, error) {
	manifests := make(map[domain.VersionRecord]*domain.Manifest)
	selected := domain.ResolvedDependencySet{rootName: root}

	for range d.maxRounds {
		if err := d.loadManifests(ctx, selected, manifests); err != nil {
			return nil, err
		}

		reqs := collectRequirements(rootName, selected, manifests, fleet)

		next := domain.ResolvedDependencySet{rootName: root}
		for _, name := range slices.Sorted(maps.Keys(reqs)) {
			list := reqs[name]
			if installed, ok := fleet[name]; ok && satisfiesAll(installed, list) {
				d.logger.Debug("dependency already satisfied", "package", name, "installed", installed)
				continue
			}
			rec, err := d.selectVersion(ctx, name, list)
			if err != nil {
				return nil, err
			}
			next[name] = rec
		}

		if maps.Equal(next, selected) {
			return selected, nil
		}
		selected = next
	}

	return nil, zerr.With(zerr.Wrap(domain.ErrResolutionDiverged, rootName), "rounds", d.maxRounds)
}

// loadManifests fetches the manifest of every selected package not yet loaded.
func (d *DependencyResolver) loadManifests(
	ctx context.Context,
	selected domain.ResolvedDependencySet,
	manifests map[domain.VersionRecord]*domain.Manifest,
) error {
	pending := make([]string, 0, len(selected))
	for _, name := range selected.Names() {
		if _, ok := manifests[selected[name]]; !ok {
			pending = append(pending, name)
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.limit)

	for _, name := range pending {
		rec := selected[name]
		g.Go(func() error {
			release, err := d.releases.Release(gctx, name, rec)
			if err != nil {
				err = zerr.Wrap(domain.Classify(err, domain.ErrManifestFetchFailed), "manifest unavailable")
				err = zerr.With(err, "package", name)
				return zerr.With(err, "version", rec.Version)
			}
			mu.Lock()
			manifests[rec] = &release.Manifest
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// collectRequirements gathers, per dependency name, the requirements of every selected
// package that depends on it, sorted by parent.
func collectRequirements(
	rootName string,
	selected domain.ResolvedDependencySet,
	manifests map[domain.VersionRecord]*domain.Manifest,
	fleet domain.FleetSnapshot,
) map[string][]requirement {
	reqs := make(map[string][]requirement)
	for _, parent := range selected.Names() {
		m := manifests[selected[parent]]
		if m == nil {
			continue
		}
		for dep, expr := range m.Dependencies {
			if dep == rootName {
				continue
			}
			reqs[dep] = append(reqs[dep], requirement{parent: parent, expr: expr})
		}
		for dep, expr := range m.OptionalDependencies {
			if dep == rootName || !fleet.Installed(dep) {
				continue
			}
			if _, mandatory := m.Dependencies[dep]; mandatory {
				continue
			}
			reqs[dep] = append(reqs[dep], requirement{parent: parent, expr: expr})
		}
	}
	for name := range reqs {
		slices.SortFunc(reqs[name], func(a, b requirement) int {
			return strings.Compare(a.parent, b.parent)
		})
	}
	return reqs
}

// satisfiesAll reports whether the installed version meets every requirement.
func satisfiesAll(installed string, reqs []requirement) bool {
	v, verr := semver.NewVersion(installed)
	for _, r := range reqs {
		expr := strings.TrimSpace(r.expr)
		switch domain.ClassifyRequirement(expr) {
		case domain.RequirementUniversal:
			continue
		case domain.RequirementLocator:
			if installed != expr {
				return false
			}
		case domain.RequirementExact, domain.RequirementRange:
			if verr != nil {
				return false
			}
			c, err := semver.NewConstraint(expr)
			if err != nil || !c.Check(v) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// selectVersion picks the single version of name that satisfies every requirement.
func (d *DependencyResolver) selectVersion(ctx context.Context, name string, reqs []requirement) (domain.VersionRecord, error) {
	var (
		locator     string
		exact       string
		constraints []*semver.Constraints
		semverReqs  []string
	)

	for _, r := range reqs {
		expr := strings.TrimSpace(r.expr)
		switch domain.ClassifyRequirement(expr) {
		case domain.RequirementUniversal:
		case domain.RequirementLocator:
			if locator != "" && locator != expr {
				return domain.VersionRecord{}, conflictError(name, reqs)
			}
			locator = expr
		case domain.RequirementExact, domain.RequirementRange:
			c, err := semver.NewConstraint(expr)
			if err != nil {
				return domain.VersionRecord{}, invalidRangeError(name, r)
			}
			if domain.ClassifyRequirement(expr) == domain.RequirementExact {
				exact = expr
			}
			constraints = append(constraints, c)
			semverReqs = append(semverReqs, expr)
		default:
			return domain.VersionRecord{}, invalidRangeError(name, r)
		}
	}

	switch {
	case locator != "" && len(constraints) > 0:
		return domain.VersionRecord{}, conflictError(name, reqs)
	case locator != "":
		return domain.LocatorRecord(locator), nil
	case len(constraints) == 0:
		recs, err := d.versions.Resolve(ctx, name, "*")
		if err != nil {
			return domain.VersionRecord{}, err
		}
		return recs[0], nil
	case len(constraints) == 1 && exact != "":
		return d.versions.Lookup(ctx, name, exact)
	}

	all, err := d.versions.Enumerate(ctx, name)
	if err != nil {
		return domain.VersionRecord{}, err
	}
	for _, rec := range all {
		v, err := semver.NewVersion(rec.Version)
		if err != nil {
			continue
		}
		if checkAll(constraints, v) {
			return rec, nil
		}
	}
	return domain.VersionRecord{}, zerr.With(
		zerr.Wrap(domain.ErrNoSatisfyingVersion, name),
		"requirements", strings.Join(semverReqs, ", "),
	)
}

func checkAll(cs []*semver.Constraints, v *semver.Version) bool {
	for _, c := range cs {
		if !c.Check(v) {
			return false
		}
	}
	return true
}

func invalidRangeError(name string, r requirement) error {
	err := zerr.With(zerr.Wrap(domain.ErrInvalidRange, name), "requirement", r.expr)
	return zerr.With(err, "requiredBy", r.parent)
}

func conflictError(name string, reqs []requirement) error {
	parts := make([]string, len(reqs))
	for i, r := range reqs {
		parts[i] = r.parent + "=" + r.expr
	}
	return zerr.With(zerr.Wrap(domain.ErrConflictingRequirements, name), "requirements", strings.Join(parts, ", "))
}

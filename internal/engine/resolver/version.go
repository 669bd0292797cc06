// Package resolver turns version requirements into concrete registry versions.
package resolver

import (
	"context"
	"encoding/json"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
	"go.trai.ch/pkgd/internal/core/domain"
	"go.trai.ch/pkgd/internal/core/ports"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const cacheKeyPrefix = "registry/"

// VersionResolver classifies version requirements and resolves them against the registry.
type VersionResolver struct {
	registry ports.Registry
	cache    ports.KVStore
	logger   ports.Logger
	limit    int

	enumerations singleflight.Group
}

// NewVersionResolver creates a VersionResolver. limit bounds concurrent registry calls
// during enumeration.
func NewVersionResolver(registry ports.Registry, cache ports.KVStore, logger ports.Logger, limit int) *VersionResolver {
	if limit < 1 {
		limit = 1
	}
	return &VersionResolver{
		registry: registry,
		cache:    cache,
		logger:   logger,
		limit:    limit,
	}
}

// Resolve returns the versions of name matching requirement, newest first.
//
// Universal requirements return only the registry's latest version. Exact versions are
// returned without a registry call and carry no content locator. Anything that is not
// semver is returned as a self-describing content-locator literal.
func (r *VersionResolver) Resolve(ctx context.Context, name, requirement string) ([]domain.VersionRecord, error) {
	req := strings.TrimSpace(requirement)

	switch domain.ClassifyRequirement(req) {
	case domain.RequirementUniversal:
		rec, err := r.latest(ctx, name)
		if err != nil {
			return nil, err
		}
		return []domain.VersionRecord{rec}, nil

	case domain.RequirementExact:
		v, err := semver.StrictNewVersion(req)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrInvalidRange), name), "requirement", req)
		}
		return []domain.VersionRecord{{Version: v.String()}}, nil

	case domain.RequirementRange:
		constraint, err := semver.NewConstraint(req)
		if err != nil {
			return nil, zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrInvalidRange), name), "requirement", req)
		}
		all, err := r.Enumerate(ctx, name)
		if err != nil {
			return nil, err
		}
		matching := filterSatisfying(all, constraint)
		if len(matching) == 0 {
			return nil, zerr.With(zerr.Wrap(domain.ErrNoSatisfyingVersion, name), "requirement", req)
		}
		return matching, nil

	default:
		return []domain.VersionRecord{domain.LocatorRecord(req)}, nil
	}
}

// Lookup returns the record of an exact version, consulting the cache first.
// Content-locator literals are returned as-is.
func (r *VersionResolver) Lookup(ctx context.Context, name, version string) (domain.VersionRecord, error) {
	if domain.IsContentLocator(version) {
		return domain.LocatorRecord(version), nil
	}

	v, err := semver.NewVersion(version)
	if err != nil {
		return domain.VersionRecord{}, zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrInvalidRange), name), "version", version)
	}

	key := cacheKey(name, v.String())
	if rec, ok := r.cached(key); ok {
		return rec, nil
	}

	rec, err := r.registry.VersionBySemver(ctx, name, [3]uint64{v.Major(), v.Minor(), v.Patch()})
	if err != nil {
		err = zerr.Wrap(domain.Classify(err, domain.ErrRegistryUnavailable), "version lookup failed")
		err = zerr.With(err, "package", name)
		return domain.VersionRecord{}, zerr.With(err, "version", v.String())
	}
	if rec.Version == "" {
		rec.Version = v.String()
	}

	r.store(key, rec)
	return rec, nil
}

// Enumerate returns every published version of name, newest first.
// Concurrent enumerations of the same name share one set of registry calls.
// A caller whose ctx ends stops waiting; the shared calls run on for the others,
// bounded by the registry client's timeout.
func (r *VersionResolver) Enumerate(ctx context.Context, name string) ([]domain.VersionRecord, error) {
	ch := r.enumerations.DoChan(name, func() (any, error) {
		return r.enumerate(context.WithoutCancel(ctx), name)
	})
	select {
	case <-ctx.Done():
		return nil, zerr.With(zerr.Wrap(ctx.Err(), "version enumeration abandoned"), "package", name)
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]domain.VersionRecord)), nil
	}
}

func (r *VersionResolver) enumerate(ctx context.Context, name string) ([]domain.VersionRecord, error) {
	count, err := r.registry.VersionCount(ctx, name)
	if err != nil {
		err = zerr.Wrap(domain.Classify(err, domain.ErrRegistryUnavailable), "version count failed")
		return nil, zerr.With(err, "package", name)
	}

	records := make([]domain.VersionRecord, count)
	ok := make([]bool, count)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.limit)
	for i := range count {
		g.Go(func() error {
			rec, err := r.registry.VersionByIndex(gctx, name, i)
			if err != nil {
				// Partial enumeration is tolerated; the index is skipped.
				r.logger.Warn("skipping unreadable registry entry", "package", name, "index", i, "error", err)
				return nil
			}
			records[i] = rec
			ok[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, zerr.With(zerr.Wrap(err, "version enumeration cancelled"), "package", name)
	}

	type parsed struct {
		v   *semver.Version
		rec domain.VersionRecord
	}
	valid := make([]parsed, 0, count)
	for i, rec := range records {
		if !ok[i] {
			continue
		}
		v, err := semver.NewVersion(rec.Version)
		if err != nil {
			r.logger.Debug("skipping non-semver registry entry", "package", name, "version", rec.Version)
			continue
		}
		valid = append(valid, parsed{v: v, rec: rec})
	}

	slices.SortStableFunc(valid, func(a, b parsed) int {
		return b.v.Compare(a.v)
	})

	out := make([]domain.VersionRecord, 0, len(valid))
	for i, p := range valid {
		if i > 0 && p.v.Equal(valid[i-1].v) {
			continue
		}
		out = append(out, p.rec)
		r.store(cacheKey(name, p.v.String()), p.rec)
	}
	return out, nil
}

func (r *VersionResolver) latest(ctx context.Context, name string) (domain.VersionRecord, error) {
	rec, err := r.registry.LatestVersion(ctx, name)
	if err != nil {
		err = zerr.Wrap(domain.Classify(err, domain.ErrRegistryUnavailable), "latest version lookup failed")
		return domain.VersionRecord{}, zerr.With(err, "package", name)
	}
	if v, err := semver.NewVersion(rec.Version); err == nil {
		r.store(cacheKey(name, v.String()), rec)
	}
	return rec, nil
}

func (r *VersionResolver) cached(key string) (domain.VersionRecord, bool) {
	if r.cache == nil {
		return domain.VersionRecord{}, false
	}
	data, ok, err := r.cache.Get(key)
	if err != nil {
		r.logger.Debug("version cache read failed", "key", key, "error", err)
		return domain.VersionRecord{}, false
	}
	if !ok {
		return domain.VersionRecord{}, false
	}
	var rec domain.VersionRecord
	if err := json.Unmarshal(data, &rec); err != nil || !rec.Resolved() {
		return domain.VersionRecord{}, false
	}
	return rec, true
}

func (r *VersionResolver) store(key string, rec domain.VersionRecord) {
	if r.cache == nil || !rec.Resolved() {
		return
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := r.cache.Put(key, data); err != nil {
		r.logger.Debug("version cache write failed", "key", key, "error", err)
	}
}

func cacheKey(name, version string) string {
	return cacheKeyPrefix + name + "@" + version
}

// filterSatisfying keeps the records whose version satisfies c, preserving order.
func filterSatisfying(records []domain.VersionRecord, c *semver.Constraints) []domain.VersionRecord {
	out := make([]domain.VersionRecord, 0, len(records))
	for _, rec := range records {
		v, err := semver.NewVersion(rec.Version)
		if err != nil {
			continue
		}
		if c.Check(v) {
			out = append(out, rec)
		}
	}
	return out
}

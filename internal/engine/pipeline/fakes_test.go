package pipeline_test

import (
	"context"
	"maps"
	"path/filepath"
	"slices"
	"strconv"
	"sync"

	"go.trai.ch/pkgd/internal/core/domain"
	"go.trai.ch/pkgd/internal/core/ports"
	"go.trai.ch/zerr"
)

type fakeVersions struct {
	records map[string]domain.VersionRecord
	err     error
}

func (f *fakeVersions) Resolve(_ context.Context, name, _ string) ([]domain.VersionRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []domain.VersionRecord{{Version: f.records[name].Version}}, nil
}

func (f *fakeVersions) Lookup(_ context.Context, name, _ string) (domain.VersionRecord, error) {
	return f.records[name], nil
}

type fakeDependencies struct {
	set domain.ResolvedDependencySet
	err error

	gotFleet domain.FleetSnapshot
}

func (f *fakeDependencies) Resolve(
	_ context.Context,
	_ string,
	_ domain.VersionRecord,
	fleet domain.FleetSnapshot,
) (domain.ResolvedDependencySet, error) {
	f.gotFleet = fleet
	return f.set, f.err
}

type fakeReleases struct {
	releases map[string]*domain.Release
}

func (f *fakeReleases) Release(_ context.Context, name string, _ domain.VersionRecord) (*domain.Release, error) {
	rel, ok := f.releases[name]
	if !ok {
		return nil, zerr.Wrap(domain.ErrManifestFetchFailed, name)
	}
	return rel, nil
}

type fakeAcquirer struct {
	mu    sync.Mutex
	calls map[string]int
	// failures maps packages to the errors returned by their first attempts, in order.
	failures map[string][]error
}

func newFakeAcquirer() *fakeAcquirer {
	return &fakeAcquirer{calls: make(map[string]int), failures: make(map[string][]error)}
}

func (f *fakeAcquirer) Acquire(_ context.Context, req domain.ArtifactRequest, dest string) (domain.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.calls[req.Package]
	f.calls[req.Package]++
	if errs := f.failures[req.Package]; n < len(errs) {
		return domain.Artifact{}, errs[n]
	}
	return domain.Artifact{LocalPath: dest, SourceKind: req.Source.Kind, ContentLocator: req.Version.ContentLocator}, nil
}

func (f *fakeAcquirer) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

// fakeCompose stages one service per package.
type fakeCompose struct {
	dataDir   string
	committed []string
	restored  []string
	commitErr error
	planErr   map[string]error
	settings  map[string]domain.PackageSettings
	installed map[string][]domain.ServiceTarget
}

func newFakeCompose(dataDir string) *fakeCompose {
	return &fakeCompose{
		dataDir:   dataDir,
		planErr:   make(map[string]error),
		settings:  make(map[string]domain.PackageSettings),
		installed: make(map[string][]domain.ServiceTarget),
	}
}

func target(name string) domain.ServiceTarget {
	return domain.ServiceTarget{
		Service:       name,
		ContainerName: "pkgd-" + name,
		Aliases:       []string{name},
	}
}

func (f *fakeCompose) Plan(
	_ context.Context,
	manifest domain.Manifest,
	_ []byte,
	settings domain.PackageSettings,
) (*ports.ComposePlan, error) {
	if err := f.planErr[manifest.Name]; err != nil {
		return nil, err
	}
	f.settings[manifest.Name] = settings
	return &ports.ComposePlan{
		Package: manifest.Name,
		Path:    domain.ComposePath(f.dataDir, manifest.Name),
		Targets: []domain.ServiceTarget{target(manifest.Name)},
	}, nil
}

func (f *fakeCompose) Commit(_ context.Context, plans []*ports.ComposePlan) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	for _, p := range plans {
		_, p.Existed = f.installed[p.Package]
		f.committed = append(f.committed, p.Package)
		f.installed[p.Package] = p.Targets
	}
	return nil
}

func (f *fakeCompose) Restore(_ context.Context, plans []*ports.ComposePlan) error {
	for _, p := range plans {
		f.restored = append(f.restored, p.Package)
		if !p.Existed {
			delete(f.installed, p.Package)
		}
	}
	return nil
}

func (f *fakeCompose) Targets(_ context.Context, pkg string) ([]domain.ServiceTarget, error) {
	t, ok := f.installed[pkg]
	if !ok {
		return nil, zerr.Wrap(domain.ErrComposeMissing, pkg)
	}
	return t, nil
}

type fakeNetwork struct {
	assignments []domain.NetworkAssignment
	detached    []string
	err         error
}

func (f *fakeNetwork) Reconcile(_ context.Context, assignments []domain.NetworkAssignment) (*domain.ReconcileReport, error) {
	f.assignments = append(f.assignments, assignments...)
	report := &domain.ReconcileReport{State: domain.NetworkCorrect, Failed: map[string]error{}}
	for _, a := range assignments {
		report.Connected = append(report.Connected, a.ContainerName)
	}
	return report, f.err
}

func (f *fakeNetwork) Detach(_ context.Context, containers []string) error {
	f.detached = append(f.detached, containers...)
	return nil
}

// fakeRuntime records the image loads and compose calls of the pipeline.
type fakeRuntime struct {
	loaded   []string
	up       []string
	down     []string
	loadErrs map[string]error
	upErrs   map[string]error
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{loadErrs: make(map[string]error), upErrs: make(map[string]error)}
}

func (f *fakeRuntime) InspectNetwork(context.Context, string) (*domain.NetworkInfo, error) {
	return nil, domain.ErrNetworkNotFound
}
func (f *fakeRuntime) CreateNetwork(context.Context, string, string) error { return nil }
func (f *fakeRuntime) RemoveNetwork(context.Context, string) error         { return nil }
func (f *fakeRuntime) Connect(context.Context, string, domain.NetworkAssignment) error {
	return nil
}
func (f *fakeRuntime) Disconnect(context.Context, string, string) error { return nil }
func (f *fakeRuntime) InspectContainer(context.Context, string) (*domain.ContainerInfo, error) {
	return nil, domain.ErrContainerNotFound
}
func (f *fakeRuntime) StartContainer(context.Context, string) error   { return nil }
func (f *fakeRuntime) RestartContainer(context.Context, string) error { return nil }

func (f *fakeRuntime) LoadImage(_ context.Context, path string) error {
	pkg := filepath.Base(filepath.Dir(filepath.Dir(path)))
	if err := f.loadErrs[pkg]; err != nil {
		return err
	}
	f.loaded = append(f.loaded, pkg)
	return nil
}

func (f *fakeRuntime) ComposeUp(_ context.Context, path string) error {
	pkg := filepath.Base(filepath.Dir(path))
	f.up = append(f.up, pkg)
	return f.upErrs[pkg]
}

func (f *fakeRuntime) ComposeDown(_ context.Context, path string) error {
	f.down = append(f.down, filepath.Base(filepath.Dir(path)))
	return nil
}

type fakeFleet struct {
	manifests map[string]domain.Manifest
}

func newFakeFleet(installed ...domain.Manifest) *fakeFleet {
	f := &fakeFleet{manifests: make(map[string]domain.Manifest)}
	for _, m := range installed {
		f.manifests[m.Name] = m
	}
	return f
}

func (f *fakeFleet) Snapshot(context.Context) (domain.FleetSnapshot, error) {
	snap := make(domain.FleetSnapshot)
	for name, m := range f.manifests {
		snap[name] = m.Version
	}
	return snap, nil
}

func (f *fakeFleet) Manifest(_ context.Context, name string) (*domain.Manifest, error) {
	m, ok := f.manifests[name]
	if !ok {
		return nil, zerr.Wrap(domain.ErrPackageNotInstalled, name)
	}
	return &m, nil
}

func (f *fakeFleet) Record(_ context.Context, m domain.Manifest) error {
	f.manifests[m.Name] = m
	return nil
}

func (f *fakeFleet) Remove(_ context.Context, name string) error {
	if _, ok := f.manifests[name]; !ok {
		return zerr.Wrap(domain.ErrPackageNotInstalled, name)
	}
	delete(f.manifests, name)
	return nil
}

func (f *fakeFleet) Names() []string {
	return slices.Sorted(maps.Keys(f.manifests))
}

// memStore is a KV store whose first writes can be made to fail.
type memStore struct {
	mu         sync.Mutex
	data       map[string][]byte
	failWrites int
	puts       int
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte)}
}

func (s *memStore) Get(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *memStore) Put(key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	if s.failWrites > 0 {
		s.failWrites--
		return zerr.Wrap(domain.ErrStoreWriteFailed, key)
	}
	s.data[key] = value
	return nil
}

func (s *memStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

// recordingTelemetry keeps the names of the vertices it was asked to record.
type recordingTelemetry struct {
	mu    sync.Mutex
	names []string
}

func (r *recordingTelemetry) Record(ctx context.Context, name string) (context.Context, ports.Vertex) {
	r.mu.Lock()
	r.names = append(r.names, name)
	r.mu.Unlock()
	v := nopVertex{}
	return ports.ContextWithVertex(ctx, v), v
}

func (r *recordingTelemetry) Close() error { return nil }

func (r *recordingTelemetry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.names)
}

type nopVertex struct{}

func (nopVertex) Progress(int64, int64) {}
func (nopVertex) Log(string)            {}
func (nopVertex) Done(error)            {}

// netRuntime adds one in-memory network to fakeRuntime, for tests that run the real
// network reconciler.
type netRuntime struct {
	*fakeRuntime

	mu      sync.Mutex
	network *domain.NetworkInfo
	host    int
}

func newNetRuntime(name, subnet string, endpoints ...domain.Endpoint) *netRuntime {
	return &netRuntime{
		fakeRuntime: newFakeRuntime(),
		network:     &domain.NetworkInfo{Name: name, Subnets: []string{subnet}, Endpoints: endpoints},
		host:        10,
	}
}

func (n *netRuntime) InspectNetwork(_ context.Context, name string) (*domain.NetworkInfo, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.network == nil || n.network.Name != name {
		return nil, zerr.Wrap(domain.ErrNetworkNotFound, name)
	}
	cp := *n.network
	cp.Subnets = slices.Clone(n.network.Subnets)
	cp.Endpoints = slices.Clone(n.network.Endpoints)
	return &cp, nil
}

func (n *netRuntime) CreateNetwork(_ context.Context, name, subnet string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.network = &domain.NetworkInfo{Name: name, Subnets: []string{subnet}}
	return nil
}

func (n *netRuntime) RemoveNetwork(_ context.Context, name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.network.Endpoints) > 0 {
		return zerr.Wrap(domain.ErrRuntimeCall, "network "+name+" has active endpoints")
	}
	n.network = nil
	return nil
}

func (n *netRuntime) Connect(_ context.Context, _ string, a domain.NetworkAssignment) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	ip := a.IP
	if ip == "" {
		n.host++
		ip = "172.33.0." + strconv.Itoa(n.host)
	}
	n.network.Endpoints = append(n.network.Endpoints, domain.Endpoint{
		ContainerName: a.ContainerName,
		IP:            ip,
		Aliases:       slices.Clone(a.Aliases),
	})
	return nil
}

func (n *netRuntime) Disconnect(_ context.Context, _, container string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.network.Endpoints = slices.DeleteFunc(n.network.Endpoints, func(ep domain.Endpoint) bool {
		return ep.ContainerName == container
	})
	return nil
}

func (n *netRuntime) InspectContainer(_ context.Context, name string) (*domain.ContainerInfo, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	info := &domain.ContainerInfo{Name: name, Running: true, Networks: map[string]domain.Endpoint{}}
	if n.network != nil {
		for _, ep := range n.network.Endpoints {
			if ep.ContainerName == name {
				info.Networks[n.network.Name] = ep
			}
		}
	}
	return info, nil
}

// Attached maps the containers on the network to their aliases.
func (n *netRuntime) Attached() map[string][]string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make(map[string][]string)
	for _, ep := range n.network.Endpoints {
		out[ep.ContainerName] = ep.Aliases
	}
	return out
}

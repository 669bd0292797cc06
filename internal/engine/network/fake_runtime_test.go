package network_test

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"go.trai.ch/pkgd/internal/core/domain"
	"go.trai.ch/zerr"
)

// fakeRuntime is an in-memory container engine with a single network.
// It refuses to hand out an address twice, like the real engine.
type fakeRuntime struct {
	mu sync.Mutex

	network    *domain.NetworkInfo
	containers map[string]bool
	nextHost   int

	// mutations records every call that changes state, in order.
	mutations []string

	// connectHook runs before each Connect and may return an injected error.
	connectHook func(f *fakeRuntime, a domain.NetworkAssignment) error
}

func newFakeRuntime(containers ...string) *fakeRuntime {
	f := &fakeRuntime{containers: make(map[string]bool), nextHost: 100}
	for _, c := range containers {
		f.containers[c] = true
	}
	return f
}

func (f *fakeRuntime) withNetwork(name, subnet string, endpoints ...domain.Endpoint) *fakeRuntime {
	f.network = &domain.NetworkInfo{Name: name, Subnets: []string{subnet}, Endpoints: endpoints}
	return f
}

func (f *fakeRuntime) record(format string, args ...any) {
	f.mutations = append(f.mutations, fmt.Sprintf(format, args...))
}

func (f *fakeRuntime) Mutations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.mutations)
}

func (f *fakeRuntime) InspectNetwork(_ context.Context, name string) (*domain.NetworkInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.network == nil || f.network.Name != name {
		return nil, zerr.Wrap(domain.ErrNetworkNotFound, name)
	}
	cp := *f.network
	cp.Subnets = slices.Clone(f.network.Subnets)
	cp.Endpoints = slices.Clone(f.network.Endpoints)
	return &cp, nil
}

func (f *fakeRuntime) CreateNetwork(_ context.Context, name, subnet string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("create %s %s", name, subnet)
	f.network = &domain.NetworkInfo{Name: name, Subnets: []string{subnet}}
	return nil
}

func (f *fakeRuntime) RemoveNetwork(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("remove %s", name)
	if len(f.network.Endpoints) > 0 {
		return fmt.Errorf("network %s has active endpoints", name)
	}
	f.network = nil
	return nil
}

func (f *fakeRuntime) Connect(_ context.Context, network string, a domain.NetworkAssignment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectHook != nil {
		if err := f.connectHook(f, a); err != nil {
			f.record("connect %s (failed)", a.ContainerName)
			return err
		}
	}
	f.record("connect %s %s", a.ContainerName, a.IP)
	if !f.containers[a.ContainerName] {
		return zerr.Wrap(domain.ErrContainerNotFound, a.ContainerName)
	}
	for _, ep := range f.network.Endpoints {
		if ep.ContainerName == a.ContainerName {
			return zerr.Wrap(domain.ErrAlreadyAttached, a.ContainerName)
		}
		if a.IP != "" && ep.IP == a.IP {
			return zerr.Wrap(domain.ErrAddressInUse, a.IP)
		}
	}
	ip := a.IP
	if ip == "" {
		ip = f.allocate()
	}
	f.network.Endpoints = append(f.network.Endpoints, domain.Endpoint{
		ContainerName: a.ContainerName,
		IP:            ip,
		Aliases:       slices.Clone(a.Aliases),
	})
	return nil
}

func (f *fakeRuntime) allocate() string {
	for {
		ip := fmt.Sprintf("172.33.0.%d", f.nextHost)
		f.nextHost++
		if _, taken := f.network.HolderOf(ip); !taken {
			return ip
		}
	}
}

func (f *fakeRuntime) Disconnect(_ context.Context, network, container string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("disconnect %s", container)
	before := len(f.network.Endpoints)
	f.network.Endpoints = slices.DeleteFunc(f.network.Endpoints, func(ep domain.Endpoint) bool {
		return ep.ContainerName == container
	})
	if len(f.network.Endpoints) == before {
		return fmt.Errorf("container %s is not connected to %s", container, network)
	}
	return nil
}

func (f *fakeRuntime) InspectContainer(_ context.Context, name string) (*domain.ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.containers[name] {
		return nil, zerr.Wrap(domain.ErrContainerNotFound, name)
	}
	info := &domain.ContainerInfo{Name: name, Running: true, Networks: map[string]domain.Endpoint{}}
	if f.network != nil {
		for _, ep := range f.network.Endpoints {
			if ep.ContainerName == name {
				info.Networks[f.network.Name] = ep
			}
		}
	}
	return info, nil
}

func (f *fakeRuntime) StartContainer(context.Context, string) error   { return nil }
func (f *fakeRuntime) RestartContainer(context.Context, string) error { return nil }
func (f *fakeRuntime) LoadImage(context.Context, string) error        { return nil }
func (f *fakeRuntime) ComposeUp(context.Context, string) error        { return nil }
func (f *fakeRuntime) ComposeDown(context.Context, string) error      { return nil }

// holders maps every address on the network to the containers holding it.
func (f *fakeRuntime) holders() map[string][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string][]string)
	for _, ep := range f.network.Endpoints {
		out[ep.IP] = append(out[ep.IP], ep.ContainerName)
	}
	return out
}

func (f *fakeRuntime) attachedNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make(map[string]struct{})
	for _, ep := range f.network.Endpoints {
		names[ep.ContainerName] = struct{}{}
	}
	return slices.Sorted(maps.Keys(names))
}

func hasPrefix(calls []string, prefix string) int {
	return slices.IndexFunc(calls, func(c string) bool { return strings.HasPrefix(c, prefix) })
}

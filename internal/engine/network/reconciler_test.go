package network_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/pkgd/internal/core/domain"
	"go.trai.ch/pkgd/internal/core/ports/mocks"
	"go.trai.ch/pkgd/internal/engine/network"
	"go.uber.org/mock/gomock"
)

const (
	managerName = "pkgd-manager.core"
	namesName   = "pkgd-names.core"
	managerIP   = "172.33.1.7"
	namesIP     = "172.33.1.2"
)

func quietLogger(ctrl *gomock.Controller) *mocks.MockLogger {
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Debug(gomock.Any(), gomock.Any()).AnyTimes()
	log.EXPECT().Info(gomock.Any(), gomock.Any()).AnyTimes()
	log.EXPECT().Warn(gomock.Any(), gomock.Any()).AnyTimes()
	log.EXPECT().Error(gomock.Any()).AnyTimes()
	return log
}

func networkConfig() domain.NetworkConfig {
	return domain.DefaultConfig().Network
}

func fleetAssignments() []domain.NetworkAssignment {
	return []domain.NetworkAssignment{
		{ContainerName: "pkgd-db.app", Aliases: []string{"db.app.pkgd"}},
		{ContainerName: namesName, Aliases: []string{"names.core.pkgd"}},
		{ContainerName: managerName, Aliases: []string{"manager.core.pkgd"}},
		{ContainerName: "pkgd-api.app", Aliases: []string{"api.app.pkgd", "app.pkgd"}},
	}
}

func newReconciler(t *testing.T, rt *fakeRuntime) *network.Reconciler {
	t.Helper()
	return network.New(rt, networkConfig(), quietLogger(gomock.NewController(t)))
}

func allContainers() []string {
	return []string{managerName, namesName, "pkgd-db.app", "pkgd-api.app"}
}

func TestReconcile_CreatesAbsentNetwork(t *testing.T) {
	rt := newFakeRuntime(allContainers()...)
	r := newReconciler(t, rt)

	report, err := r.Reconcile(context.Background(), fleetAssignments())
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, domain.NetworkAbsent, report.State)

	assert.Equal(t, []string{
		"create pkgd_net 172.33.0.0/16",
		"connect " + managerName + " " + managerIP,
		"connect " + namesName + " " + namesIP,
		"connect pkgd-api.app ",
		"connect pkgd-db.app ",
	}, rt.Mutations())
	assert.Equal(t, []string{managerName, namesName, "pkgd-api.app", "pkgd-db.app"}, report.Connected)
}

func TestReconcile_IsIdempotent(t *testing.T) {
	rt := newFakeRuntime(allContainers()...)
	r := newReconciler(t, rt)

	_, err := r.Reconcile(context.Background(), fleetAssignments())
	require.NoError(t, err)
	before := len(rt.Mutations())

	report, err := r.Reconcile(context.Background(), fleetAssignments())
	require.NoError(t, err)
	assert.Equal(t, domain.NetworkCorrect, report.State)
	assert.Len(t, rt.Mutations(), before, "second run must not mutate")
	assert.Empty(t, report.Connected)
	assert.ElementsMatch(t, []string{managerName, namesName, "pkgd-api.app", "pkgd-db.app"}, report.Unchanged)
}

func TestReconcile_MigratesWrongSubnet(t *testing.T) {
	rt := newFakeRuntime(allContainers()...).withNetwork("pkgd_net", "172.30.0.0/16",
		domain.Endpoint{ContainerName: managerName, IP: "172.30.1.7", Aliases: []string{"manager.core.pkgd"}},
		domain.Endpoint{ContainerName: "pkgd-db.app", IP: "172.30.0.9", Aliases: []string{"db.app.pkgd"}},
	)
	r := newReconciler(t, rt)

	report, err := r.Reconcile(context.Background(), fleetAssignments())
	require.NoError(t, err)
	assert.Equal(t, domain.NetworkWrongSubnet, report.State)
	assert.ElementsMatch(t, []string{managerName, "pkgd-db.app"}, report.Disconnected)

	calls := rt.Mutations()
	remove := hasPrefix(calls, "remove ")
	create := hasPrefix(calls, "create ")
	firstConnect := hasPrefix(calls, "connect ")
	require.GreaterOrEqual(t, remove, 0)
	assert.Less(t, remove, create)
	assert.Less(t, create, firstConnect)
	for _, c := range calls[:remove] {
		assert.Contains(t, c, "disconnect ")
	}
	assert.Equal(t, []string{managerName}, rt.holders()[managerIP])
}

func TestReconcile_MigrationReconnectsUnlistedContainers(t *testing.T) {
	rt := newFakeRuntime(append(allContainers(), "pkgd-other.pkgd")...).withNetwork("pkgd_net", "172.30.0.0/16",
		domain.Endpoint{ContainerName: "pkgd-other.pkgd", IP: "172.30.0.4", Aliases: []string{"other.pkgd"}},
		domain.Endpoint{ContainerName: managerName, IP: "172.30.1.7"},
	)
	r := newReconciler(t, rt)

	report, err := r.Reconcile(context.Background(), []domain.NetworkAssignment{
		{ContainerName: "pkgd-api.app", Aliases: []string{"app.pkgd"}},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.NetworkWrongSubnet, report.State)
	assert.True(t, report.OK())

	assert.Equal(t, []string{"pkgd-api.app", managerName, "pkgd-other.pkgd"}, rt.attachedNames())
	assert.Equal(t, []string{managerName}, rt.holders()[managerIP], "fixed addresses come from the configuration")
	assert.ElementsMatch(t, []string{managerName, "pkgd-api.app", "pkgd-other.pkgd"}, report.Connected)
}

func TestReconcile_DisconnectsAddressHolder(t *testing.T) {
	rt := newFakeRuntime(append(allContainers(), "squatter")...).withNetwork("pkgd_net", "172.33.0.0/16",
		domain.Endpoint{ContainerName: "squatter", IP: managerIP},
	)
	r := newReconciler(t, rt)

	report, err := r.Reconcile(context.Background(), fleetAssignments())
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Contains(t, report.Disconnected, "squatter")

	calls := rt.Mutations()
	evict := hasPrefix(calls, "disconnect squatter")
	connect := hasPrefix(calls, "connect "+managerName)
	require.GreaterOrEqual(t, evict, 0)
	assert.Less(t, evict, connect)

	for ip, holders := range rt.holders() {
		assert.Len(t, holders, 1, "address %s held twice", ip)
	}
	assert.Equal(t, []string{managerName}, rt.holders()[managerIP])
}

func TestReconcile_ReconnectsWrongAddress(t *testing.T) {
	rt := newFakeRuntime(allContainers()...).withNetwork("pkgd_net", "172.33.0.0/16",
		domain.Endpoint{ContainerName: managerName, IP: "172.33.0.50", Aliases: []string{"manager.core.pkgd"}},
	)
	r := newReconciler(t, rt)

	_, err := r.Reconcile(context.Background(), fleetAssignments())
	require.NoError(t, err)

	calls := rt.Mutations()
	assert.Equal(t, "disconnect "+managerName, calls[0])
	assert.Equal(t, "connect "+managerName+" "+managerIP, calls[1])
}

func TestReconcile_LeavesCorrectlyAliasedContainersAlone(t *testing.T) {
	rt := newFakeRuntime(allContainers()...).withNetwork("pkgd_net", "172.33.0.0/16",
		domain.Endpoint{ContainerName: "pkgd-db.app", IP: "172.33.0.9", Aliases: []string{"db.app.pkgd", "abc123"}},
	)
	r := newReconciler(t, rt)

	report, err := r.Reconcile(context.Background(), []domain.NetworkAssignment{
		{ContainerName: "pkgd-db.app", Aliases: []string{"db.app.pkgd"}},
	})
	require.NoError(t, err)
	assert.Empty(t, rt.Mutations())
	assert.Equal(t, []string{"pkgd-db.app"}, report.Unchanged)
}

func TestReconcile_RetriesAddressInUse(t *testing.T) {
	rt := newFakeRuntime(append(allContainers(), "late")...).withNetwork("pkgd_net", "172.33.0.0/16")

	// Another container grabs the manager address between inspect and connect.
	raced := false
	rt.connectHook = func(f *fakeRuntime, a domain.NetworkAssignment) error {
		if a.ContainerName == managerName && !raced {
			raced = true
			f.network.Endpoints = append(f.network.Endpoints, domain.Endpoint{ContainerName: "late", IP: managerIP})
		}
		return nil
	}
	r := newReconciler(t, rt)

	report, err := r.Reconcile(context.Background(), fleetAssignments())
	require.NoError(t, err)
	assert.True(t, report.OK(), "failed: %v", report.Failed)
	assert.Contains(t, report.Disconnected, "late")
	assert.Equal(t, []string{managerName}, rt.holders()[managerIP])
}

func TestReconcile_RetriesAlreadyAttached(t *testing.T) {
	rt := newFakeRuntime(allContainers()...).withNetwork("pkgd_net", "172.33.0.0/16")

	attachedBehindOurBack := false
	rt.connectHook = func(f *fakeRuntime, a domain.NetworkAssignment) error {
		if a.ContainerName == "pkgd-db.app" && !attachedBehindOurBack {
			attachedBehindOurBack = true
			f.network.Endpoints = append(f.network.Endpoints, domain.Endpoint{ContainerName: "pkgd-db.app", IP: "172.33.0.77"})
		}
		return nil
	}
	r := newReconciler(t, rt)

	report, err := r.Reconcile(context.Background(), fleetAssignments())
	require.NoError(t, err)
	assert.True(t, report.OK(), "failed: %v", report.Failed)
	assert.Contains(t, report.Connected, "pkgd-db.app")
}

func TestReconcile_ReportsAndContinuesOnFailure(t *testing.T) {
	rt := newFakeRuntime(allContainers()...).withNetwork("pkgd_net", "172.33.0.0/16")
	boom := errors.New("engine exploded")
	calls := 0
	rt.connectHook = func(_ *fakeRuntime, a domain.NetworkAssignment) error {
		if a.ContainerName == "pkgd-api.app" {
			calls++
			return boom
		}
		return nil
	}
	r := newReconciler(t, rt)

	report, err := r.Reconcile(context.Background(), fleetAssignments())
	require.NoError(t, err)
	assert.False(t, report.OK())
	require.ErrorIs(t, report.Failed["pkgd-api.app"], boom)
	assert.Equal(t, 1, calls, "non-conflict errors are not retried")
	assert.Contains(t, report.Connected, "pkgd-db.app")
}

func TestReconcile_RetryBudgetIsBounded(t *testing.T) {
	rt := newFakeRuntime(allContainers()...).withNetwork("pkgd_net", "172.33.0.0/16")
	calls := 0
	rt.connectHook = func(f *fakeRuntime, a domain.NetworkAssignment) error {
		if a.ContainerName == namesName {
			calls++
			f.network.Endpoints = append(f.network.Endpoints, domain.Endpoint{ContainerName: namesName, IP: "172.33.0.99"})
			return domain.ErrAlreadyAttached
		}
		return nil
	}
	r := newReconciler(t, rt)

	report, err := r.Reconcile(context.Background(), fleetAssignments())
	require.NoError(t, err)
	require.ErrorIs(t, report.Failed[namesName], domain.ErrAlreadyAttached)
	assert.Equal(t, networkConfig().ConnectAttempts, calls)
}

func TestReconcile_MissingContainerIsReported(t *testing.T) {
	rt := newFakeRuntime(managerName, namesName, "pkgd-db.app")
	r := newReconciler(t, rt)

	report, err := r.Reconcile(context.Background(), fleetAssignments())
	require.NoError(t, err)
	require.ErrorIs(t, report.Failed["pkgd-api.app"], domain.ErrContainerNotFound)
	assert.Len(t, report.Connected, 3)
}

func TestDetach(t *testing.T) {
	rt := newFakeRuntime(allContainers()...)
	r := newReconciler(t, rt)
	_, err := r.Reconcile(context.Background(), fleetAssignments())
	require.NoError(t, err)

	require.NoError(t, r.Detach(context.Background(), []string{"pkgd-db.app", "pkgd-api.app", "not-attached"}))
	assert.Equal(t, []string{managerName, namesName}, rt.attachedNames())
}

func TestRetry(t *testing.T) {
	errRetry := errors.New("retry me")
	errStop := errors.New("stop")

	t.Run("stops on success", func(t *testing.T) {
		n := 0
		err := network.Retry(context.Background(), 5, func(context.Context) error {
			n++
			if n < 3 {
				return errRetry
			}
			return nil
		}, func(context.Context, error) bool { return true })
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("stops on fatal error", func(t *testing.T) {
		n := 0
		err := network.Retry(context.Background(), 5, func(context.Context) error {
			n++
			return errStop
		}, func(_ context.Context, err error) bool { return !errors.Is(err, errStop) })
		require.ErrorIs(t, err, errStop)
		assert.Equal(t, 1, n)
	})

	t.Run("honours the attempt budget", func(t *testing.T) {
		n, classified := 0, 0
		err := network.Retry(context.Background(), 3, func(context.Context) error {
			n++
			return errRetry
		}, func(context.Context, error) bool {
			classified++
			return true
		})
		require.ErrorIs(t, err, errRetry)
		assert.Equal(t, 3, n)
		assert.Equal(t, 2, classified)
	})
}

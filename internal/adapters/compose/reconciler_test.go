package compose_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/pkgd/internal/adapters/compose"
	"go.trai.ch/pkgd/internal/core/domain"
	"go.trai.ch/pkgd/internal/core/ports"
	"go.trai.ch/pkgd/internal/core/ports/mocks"
	"go.uber.org/mock/gomock"
	"gopkg.in/yaml.v3"
)

const singleTemplate = `# node service
version: "3.5"
services:
  geth.pkgd:
    image: "geth.pkgd:0.1.0"
    restart: unless-stopped # keep running
    volumes:
      - data:/root/.ethereum
    environment:
      - SYNCMODE=snap
      - EXTRA_OPTS=
volumes:
  data: {}
`

const multiTemplate = `services:
  beacon:
    image: registry.local:5000/beacon:0.1.0
    networks:
      - default
    environment:
      GRAFFITI: old
  validator:
    restart: always
`

func newReconciler(t *testing.T, dataDir string) *compose.Reconciler {
	t.Helper()
	ctrl := gomock.NewController(t)
	log := mocks.NewMockLogger(ctrl)
	log.EXPECT().Warn(gomock.Any(), gomock.Any()).AnyTimes()
	return compose.New(dataDir, domain.DefaultConfig().Network, log)
}

func decode(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, yaml.Unmarshal(data, &out))
	return out
}

func service(t *testing.T, doc map[string]any, name string) map[string]any {
	t.Helper()
	services, ok := doc["services"].(map[string]any)
	require.True(t, ok)
	svc, ok := services[name].(map[string]any)
	require.True(t, ok, "service %s", name)
	return svc
}

func TestPlan_SingleServiceFromTemplate(t *testing.T) {
	dir := t.TempDir()
	r := newReconciler(t, dir)

	manifest := domain.Manifest{Name: "geth.pkgd", Version: "0.2.0"}
	settings := domain.PackageSettings{Environment: map[string]map[string]string{
		"geth.pkgd": {"SYNCMODE": "full", "CACHE": "4096"},
	}}

	plan, err := r.Plan(context.Background(), manifest, []byte(singleTemplate), settings)
	require.NoError(t, err)

	assert.Equal(t, "geth.pkgd", plan.Package)
	assert.Equal(t, domain.ComposePath(dir, "geth.pkgd"), plan.Path)
	assert.Contains(t, string(plan.Data), "# node service")
	assert.Contains(t, string(plan.Data), "# keep running")

	doc := decode(t, plan.Data)
	svc := service(t, doc, "geth.pkgd")
	assert.Equal(t, "geth.pkgd:0.2.0", svc["image"])
	assert.Equal(t, "pkgd-geth.pkgd", svc["container_name"])
	assert.Equal(t, "unless-stopped", svc["restart"])
	assert.Equal(t, []any{"data:/root/.ethereum"}, svc["volumes"])
	assert.Equal(t, []any{"SYNCMODE=full", "EXTRA_OPTS=", "CACHE=4096"}, svc["environment"])

	networks := svc["networks"].(map[string]any)
	private := networks["pkgd_net"].(map[string]any)
	assert.Equal(t, []any{"geth.pkgd.geth.pkgd", "geth.pkgd"}, private["aliases"])
	assert.NotContains(t, private, "ipv4_address")

	top := doc["networks"].(map[string]any)
	assert.Equal(t, map[string]any{"external": true}, top["pkgd_net"])

	require.Len(t, plan.Targets, 1)
	target := plan.Targets[0]
	assert.Equal(t, "geth.pkgd", target.Service)
	assert.Equal(t, "pkgd-geth.pkgd", target.ContainerName)
	assert.Equal(t, "full", target.Environment["SYNCMODE"])
	assert.Equal(t, domain.NetworkAssignment{
		ContainerName: "pkgd-geth.pkgd",
		Aliases:       []string{"geth.pkgd.geth.pkgd", "geth.pkgd"},
	}, target.Assignment())

	_, err = os.Stat(plan.Path)
	assert.ErrorIs(t, err, os.ErrNotExist, "plan must not write")
}

func TestPlan_MultiService(t *testing.T) {
	r := newReconciler(t, t.TempDir())
	manifest := domain.Manifest{Name: "prysm.pkgd", Version: "1.4.0", MainService: "beacon"}
	settings := domain.PackageSettings{Environment: map[string]map[string]string{
		"beacon": {"GRAFFITI": "new"},
	}}

	plan, err := r.Plan(context.Background(), manifest, []byte(multiTemplate), settings)
	require.NoError(t, err)

	doc := decode(t, plan.Data)
	beacon := service(t, doc, "beacon")
	assert.Equal(t, "registry.local:5000/beacon:1.4.0", beacon["image"])
	assert.Equal(t, "pkgd-beacon.prysm.pkgd", beacon["container_name"])
	assert.Equal(t, map[string]any{"GRAFFITI": "new"}, beacon["environment"])
	beaconNets := beacon["networks"].(map[string]any)
	assert.Contains(t, beaconNets, "default")
	assert.Equal(t, []any{"beacon.prysm.pkgd", "prysm.pkgd"}, beaconNets["pkgd_net"].(map[string]any)["aliases"])

	validator := service(t, doc, "validator")
	assert.Equal(t, "validator.prysm.pkgd:1.4.0", validator["image"])
	assert.Equal(t, "always", validator["restart"])
	assert.Equal(t, []any{"validator.prysm.pkgd"},
		validator["networks"].(map[string]any)["pkgd_net"].(map[string]any)["aliases"])

	require.Len(t, plan.Targets, 2)
	assert.Equal(t, "beacon", plan.Targets[0].Service)
	assert.Equal(t, "validator", plan.Targets[1].Service)
}

func TestPlan_FixedAddress(t *testing.T) {
	r := newReconciler(t, t.TempDir())
	tmpl := "services:\n  manager.core:\n    image: manager.core:0.1.0\n"

	plan, err := r.Plan(context.Background(), domain.Manifest{Name: "manager.core", Version: "0.3.0"}, []byte(tmpl), domain.PackageSettings{})
	require.NoError(t, err)

	require.Len(t, plan.Targets, 1)
	assert.Equal(t, "pkgd-manager.core", plan.Targets[0].ContainerName)
	assert.Equal(t, "172.33.1.7", plan.Targets[0].IP)

	svc := service(t, decode(t, plan.Data), "manager.core")
	private := svc["networks"].(map[string]any)["pkgd_net"].(map[string]any)
	assert.Equal(t, "172.33.1.7", private["ipv4_address"])
}

func TestPlan_PrefersFileOnDisk(t *testing.T) {
	dir := t.TempDir()
	r := newReconciler(t, dir)
	manifest := domain.Manifest{Name: "geth.pkgd", Version: "0.3.0"}

	onDisk := "services:\n  geth.pkgd:\n    image: geth.pkgd:0.2.0\n    mem_limit: 4g # tuned by hand\n"
	path := domain.ComposePath(dir, "geth.pkgd")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(onDisk), 0o600))

	plan, err := r.Plan(context.Background(), manifest, []byte(singleTemplate), domain.PackageSettings{})
	require.NoError(t, err)

	svc := service(t, decode(t, plan.Data), "geth.pkgd")
	assert.Equal(t, "geth.pkgd:0.3.0", svc["image"])
	assert.Equal(t, "4g", svc["mem_limit"])
	assert.NotContains(t, svc, "volumes")
	assert.Contains(t, string(plan.Data), "# tuned by hand")
}

func TestPlan_Idempotent(t *testing.T) {
	dir := t.TempDir()
	r := newReconciler(t, dir)
	manifest := domain.Manifest{Name: "prysm.pkgd", Version: "1.4.0", MainService: "beacon"}
	settings := domain.PackageSettings{Environment: map[string]map[string]string{"validator": {"A": "1"}}}

	first, err := r.Plan(context.Background(), manifest, []byte(multiTemplate), settings)
	require.NoError(t, err)
	require.NoError(t, r.Commit(context.Background(), []*ports.ComposePlan{first}))

	second, err := r.Plan(context.Background(), manifest, nil, settings)
	require.NoError(t, err)
	assert.Equal(t, string(first.Data), string(second.Data))
	assert.Equal(t, first.Targets, second.Targets)
}

func TestPlan_Errors(t *testing.T) {
	tests := []struct {
		name     string
		template string
		want     error
	}{
		{name: "no definition", template: "", want: domain.ErrComposeMissing},
		{name: "invalid yaml", template: "services: [", want: domain.ErrComposeReadFailed},
		{name: "not a mapping", template: "- a\n- b\n", want: domain.ErrComposeReadFailed},
		{name: "no services", template: "volumes:\n  data: {}\n", want: domain.ErrComposeReadFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newReconciler(t, t.TempDir())
			_, err := r.Plan(context.Background(), domain.Manifest{Name: "x.pkgd", Version: "1.0.0"},
				[]byte(tt.template), domain.PackageSettings{})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCommit_WritesAll(t *testing.T) {
	dir := t.TempDir()
	r := newReconciler(t, dir)

	a, err := r.Plan(context.Background(), domain.Manifest{Name: "geth.pkgd", Version: "0.2.0"}, []byte(singleTemplate), domain.PackageSettings{})
	require.NoError(t, err)
	b, err := r.Plan(context.Background(), domain.Manifest{Name: "prysm.pkgd", Version: "1.4.0"}, []byte(multiTemplate), domain.PackageSettings{})
	require.NoError(t, err)

	require.NoError(t, r.Commit(context.Background(), []*ports.ComposePlan{a, b}))

	for _, plan := range []*ports.ComposePlan{a, b} {
		got, err := os.ReadFile(plan.Path)
		require.NoError(t, err)
		assert.Equal(t, plan.Data, got)
	}
}

func TestCommit_RollsBack(t *testing.T) {
	dir := t.TempDir()
	r := newReconciler(t, dir)

	existing := domain.ComposePath(dir, "geth.pkgd")
	require.NoError(t, os.MkdirAll(filepath.Dir(existing), 0o750))
	require.NoError(t, os.WriteFile(existing, []byte(singleTemplate), 0o600))

	a, err := r.Plan(context.Background(), domain.Manifest{Name: "geth.pkgd", Version: "0.2.0"}, nil, domain.PackageSettings{})
	require.NoError(t, err)
	b, err := r.Plan(context.Background(), domain.Manifest{Name: "prysm.pkgd", Version: "1.4.0"}, []byte(multiTemplate), domain.PackageSettings{})
	require.NoError(t, err)

	// A regular file where the package directory should be makes the third write fail.
	blocked := filepath.Join(dir, "blocked")
	require.NoError(t, os.WriteFile(blocked, nil, 0o600))
	c := &ports.ComposePlan{Package: "blocked", Path: filepath.Join(blocked, "docker-compose.yml"), Data: []byte("services: {}\n")}

	err = r.Commit(context.Background(), []*ports.ComposePlan{a, b, c})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrComposeWriteFailed)

	got, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, singleTemplate, string(got))

	_, err = os.Stat(b.Path)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRestore(t *testing.T) {
	dir := t.TempDir()
	r := newReconciler(t, dir)

	existing := domain.ComposePath(dir, "geth.pkgd")
	require.NoError(t, os.MkdirAll(filepath.Dir(existing), 0o750))
	require.NoError(t, os.WriteFile(existing, []byte(singleTemplate), 0o600))

	a, err := r.Plan(context.Background(), domain.Manifest{Name: "geth.pkgd", Version: "0.2.0"}, nil, domain.PackageSettings{})
	require.NoError(t, err)
	b, err := r.Plan(context.Background(), domain.Manifest{Name: "prysm.pkgd", Version: "1.4.0"}, []byte(multiTemplate), domain.PackageSettings{})
	require.NoError(t, err)

	plans := []*ports.ComposePlan{a, b}
	require.NoError(t, r.Commit(context.Background(), plans))
	assert.True(t, a.Existed)
	assert.Equal(t, singleTemplate, string(a.Previous))
	assert.False(t, b.Existed)

	require.NoError(t, r.Restore(context.Background(), plans))

	got, err := os.ReadFile(existing)
	require.NoError(t, err)
	assert.Equal(t, singleTemplate, string(got))
	_, err = os.Stat(b.Path)
	require.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, r.Restore(context.Background(), plans), "restoring twice is harmless")
}

func TestTargets(t *testing.T) {
	dir := t.TempDir()
	r := newReconciler(t, dir)

	_, err := r.Targets(context.Background(), "geth.pkgd")
	require.ErrorIs(t, err, domain.ErrComposeMissing)

	plan, err := r.Plan(context.Background(), domain.Manifest{Name: "prysm.pkgd", Version: "1.4.0", MainService: "beacon"},
		[]byte(multiTemplate), domain.PackageSettings{})
	require.NoError(t, err)
	require.NoError(t, r.Commit(context.Background(), []*ports.ComposePlan{plan}))

	targets, err := r.Targets(context.Background(), "prysm.pkgd")
	require.NoError(t, err)
	assert.Equal(t, plan.Targets, targets)
}

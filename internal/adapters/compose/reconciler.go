// Package compose merges desired package settings into on-disk compose files.
package compose

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"go.trai.ch/pkgd/internal/core/domain"
	"go.trai.ch/pkgd/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// Reconciler implements ports.ComposeReconciler. Only the targeted fields are
// touched; every other field and comment of the file survives a merge.
type Reconciler struct {
	dataDir string
	network domain.NetworkConfig
	logger  ports.Logger
}

// New creates a Reconciler for packages under dataDir.
func New(dataDir string, network domain.NetworkConfig, logger ports.Logger) *Reconciler {
	return &Reconciler{dataDir: dataDir, network: network, logger: logger}
}

// Plan re-reads the package's compose file, falling back to template, and merges
// the desired state into it.
func (r *Reconciler) Plan(
	_ context.Context,
	manifest domain.Manifest,
	template []byte,
	settings domain.PackageSettings,
) (*ports.ComposePlan, error) {
	path := domain.ComposePath(r.dataDir, manifest.Name)

	//nolint:gosec // Path is constructed from the data dir layout
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if len(bytes.TrimSpace(template)) == 0 {
			return nil, zerr.With(zerr.Wrap(domain.ErrComposeMissing, manifest.Name), "path", path)
		}
		data = template
	case err != nil:
		return nil, zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrComposeReadFailed), manifest.Name), "path", path)
	}

	doc, services, err := parse(data)
	if err != nil {
		return nil, zerr.With(zerr.With(err, "package", manifest.Name), "path", path)
	}

	names := keys(services)
	single := len(names) == 1
	for _, name := range names {
		svc := lookup(services, name)
		if svc.Kind != yaml.MappingNode {
			*svc = *mapping()
		}
		r.mergeService(svc, manifest, name, single, settings.Environment[name])
	}
	r.declareNetwork(doc.Content[0])

	out, err := encode(doc)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrComposeWriteFailed), "encode compose file"), "package", manifest.Name)
	}

	return &ports.ComposePlan{
		Package: manifest.Name,
		Path:    path,
		Data:    out,
		Targets: r.targets(manifest.Name, manifest.MainService, services),
	}, nil
}

// Commit writes every plan, recording in each what it replaced. If any write fails,
// the plans already written are restored.
func (r *Reconciler) Commit(ctx context.Context, plans []*ports.ComposePlan) error {
	var done []*ports.ComposePlan
	rollback := func() {
		if err := r.Restore(ctx, done); err != nil {
			r.logger.Warn("compose rollback failed", "error", err)
		}
	}

	for _, plan := range plans {
		if err := ctx.Err(); err != nil {
			rollback()
			return zerr.Wrap(err, "compose commit interrupted")
		}

		//nolint:gosec // Path is constructed from the data dir layout
		old, err := os.ReadFile(plan.Path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			rollback()
			return zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrComposeWriteFailed), "cannot back up compose file"), "path", plan.Path)
		}
		plan.Previous, plan.Existed = old, err == nil

		err = os.MkdirAll(filepath.Dir(plan.Path), domain.DirPerm)
		if err == nil {
			err = atomicWriteFile(plan.Path, plan.Data)
		}
		if err != nil {
			rollback()
			return zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrComposeWriteFailed), plan.Package), "path", plan.Path)
		}
		done = append(done, plan)
	}
	return nil
}

// Restore writes back the previous content of each committed plan, or removes the
// file when Commit created it. Plans are undone in reverse order.
func (r *Reconciler) Restore(_ context.Context, plans []*ports.ComposePlan) error {
	var errs []error
	for i := len(plans) - 1; i >= 0; i-- {
		p := plans[i]
		var err error
		if p.Existed {
			err = atomicWriteFile(p.Path, p.Previous)
		} else if err = os.Remove(p.Path); errors.Is(err, fs.ErrNotExist) {
			err = nil
		}
		if err != nil {
			errs = append(errs, zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrComposeWriteFailed), "cannot restore compose file"), "path", p.Path))
		}
	}
	return errors.Join(errs...)
}

// Targets reads the service targets of an installed package.
func (r *Reconciler) Targets(_ context.Context, pkg string) ([]domain.ServiceTarget, error) {
	path := domain.ComposePath(r.dataDir, pkg)
	//nolint:gosec // Path is constructed from the data dir layout
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, zerr.With(zerr.Wrap(domain.ErrComposeMissing, pkg), "path", path)
	}
	if err != nil {
		return nil, zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrComposeReadFailed), pkg), "path", path)
	}
	_, services, err := parse(data)
	if err != nil {
		return nil, zerr.With(zerr.With(err, "package", pkg), "path", path)
	}
	return r.targets(pkg, "", services), nil
}

func (r *Reconciler) mergeService(svc *yaml.Node, manifest domain.Manifest, service string, single bool, env map[string]string) {
	pkg := manifest.Name
	main := isMain(service, manifest.MainService, single)

	image := domain.ImageTag(pkg, manifest.Version)
	if current := lookup(svc, "image"); current != nil && current.Value != "" {
		image = imageWithTag(current.Value, manifest.Version)
	} else if !main {
		image = domain.ImageTag(service+"."+pkg, manifest.Version)
	}
	set(svc, "image", scalar(image))

	containerName := r.network.ContainerName(pkg, service, single)
	set(svc, "container_name", scalar(containerName))

	mergeEnvironment(svc, env)

	networks := ensureMapping(svc, "networks")
	private := lookup(networks, r.network.Name)
	if private == nil || private.Kind != yaml.MappingNode {
		private = mapping()
		set(networks, r.network.Name, private)
	}

	aliases := stringsOf(lookup(private, "aliases"))
	for _, alias := range r.network.Aliases(pkg, service, main) {
		if !slices.Contains(aliases, alias) {
			aliases = append(aliases, alias)
		}
	}
	set(private, "aliases", sequence(aliases))

	if ip, ok := r.network.FixedIP(containerName); ok {
		set(private, "ipv4_address", scalar(ip))
	}
}

// declareNetwork makes the private network an external top-level network.
func (r *Reconciler) declareNetwork(root *yaml.Node) {
	networks := ensureMapping(root, "networks")
	decl := lookup(networks, r.network.Name)
	if decl == nil || decl.Kind != yaml.MappingNode {
		decl = mapping()
		set(networks, r.network.Name, decl)
	}
	set(decl, "external", boolean(true))
}

func (r *Reconciler) targets(pkg, mainService string, services *yaml.Node) []domain.ServiceTarget {
	names := keys(services)
	single := len(names) == 1
	slices.Sort(names)

	out := make([]domain.ServiceTarget, 0, len(names))
	for _, name := range names {
		svc := lookup(services, name)
		t := domain.ServiceTarget{
			Service:       name,
			ContainerName: r.network.ContainerName(pkg, name, single),
			Environment:   environment(lookup(svc, "environment")),
		}
		if n := lookup(svc, "image"); n != nil {
			t.Image = n.Value
		}
		if n := lookup(svc, "container_name"); n != nil && n.Value != "" {
			t.ContainerName = n.Value
		}
		private := lookup(lookup(svc, "networks"), r.network.Name)
		t.Aliases = stringsOf(lookup(private, "aliases"))
		if len(t.Aliases) == 0 {
			t.Aliases = r.network.Aliases(pkg, name, isMain(name, mainService, single))
		}
		if n := lookup(private, "ipv4_address"); n != nil {
			t.IP = n.Value
		}
		if ip, ok := r.network.FixedIP(t.ContainerName); ok {
			t.IP = ip
		}
		out = append(out, t)
	}
	return out
}

func isMain(service, mainService string, single bool) bool {
	return single || service == mainService
}

func parse(data []byte) (*yaml.Node, *yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, zerr.Wrap(domain.Classify(err, domain.ErrComposeReadFailed), "parse compose file")
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return nil, nil, zerr.Wrap(domain.ErrComposeReadFailed, "compose file is not a mapping")
	}
	services := lookup(doc.Content[0], "services")
	if services == nil || services.Kind != yaml.MappingNode || len(services.Content) == 0 {
		return nil, nil, zerr.Wrap(domain.ErrComposeReadFailed, "compose file declares no services")
	}
	return &doc, services, nil
}

func encode(doc *yaml.Node) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func atomicWriteFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".compose-*.yml")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if _, statErr := os.Stat(tmpName); statErr == nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, domain.FilePerm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

package fs

import (
	"context"
	"encoding/json"
	"errors"
	iofs "io/fs"
	"os"
	"path/filepath"

	"go.trai.ch/pkgd/internal/core/domain"
	"go.trai.ch/pkgd/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.FleetSource = (*Fleet)(nil)

// Fleet reads installed packages from one directory per package, each holding the
// manifest it was installed from.
type Fleet struct {
	dataDir string
	walker  *Walker
	logger  ports.Logger
}

// NewFleet creates a Fleet rooted at dataDir.
func NewFleet(dataDir string, walker *Walker, logger ports.Logger) *Fleet {
	return &Fleet{dataDir: dataDir, walker: walker, logger: logger}
}

// Snapshot returns every installed package and its version. Directories without a
// manifest are not installed packages and are skipped.
func (f *Fleet) Snapshot(_ context.Context) (domain.FleetSnapshot, error) {
	snap := make(domain.FleetSnapshot)
	for dir, err := range f.walker.PackageDirs(domain.PackagesPath(f.dataDir)) {
		if err != nil {
			return nil, zerr.Wrap(domain.Classify(err, domain.ErrFleetReadFailed), "list packages")
		}
		name := filepath.Base(dir)
		m, err := f.read(name)
		if errors.Is(err, domain.ErrPackageNotInstalled) {
			f.logger.Debug("skipping directory without manifest", "path", dir)
			continue
		}
		if err != nil {
			return nil, err
		}
		snap[name] = m.Version
	}
	return snap, nil
}

// Manifest returns the installed manifest of name.
func (f *Fleet) Manifest(_ context.Context, name string) (*domain.Manifest, error) {
	return f.read(name)
}

// Record stores manifest as the installed state of its package.
func (f *Fleet) Record(_ context.Context, manifest domain.Manifest) error {
	dir := domain.PackagePath(f.dataDir, manifest.Name)
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrFleetWriteFailed), "encode manifest"), "package", manifest.Name)
	}
	if err := os.MkdirAll(dir, domain.DirPerm); err != nil {
		return zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrFleetWriteFailed), "create package directory"), "path", dir)
	}
	path := filepath.Join(dir, domain.ManifestFileName)
	if err := writeFileAtomic(path, append(data, '\n')); err != nil {
		return zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrFleetWriteFailed), "write manifest"), "path", path)
	}
	return nil
}

// Remove deletes the package directory of name.
func (f *Fleet) Remove(_ context.Context, name string) error {
	dir := domain.PackagePath(f.dataDir, name)
	if _, err := os.Stat(dir); errors.Is(err, iofs.ErrNotExist) {
		return zerr.Wrap(domain.ErrPackageNotInstalled, name)
	}
	if err := os.RemoveAll(dir); err != nil {
		return zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrFleetWriteFailed), "remove package directory"), "path", dir)
	}
	return nil
}

func (f *Fleet) read(name string) (*domain.Manifest, error) {
	path := filepath.Join(domain.PackagePath(f.dataDir, name), domain.ManifestFileName)
	//nolint:gosec // Path is constructed from the data dir layout
	data, err := os.ReadFile(path)
	if errors.Is(err, iofs.ErrNotExist) {
		return nil, zerr.Wrap(domain.ErrPackageNotInstalled, name)
	}
	if err != nil {
		return nil, zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrFleetReadFailed), "read manifest"), "path", path)
	}

	var m domain.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrFleetReadFailed), "decode manifest"), "path", path)
	}
	if m.Name == "" {
		m.Name = name
	}
	return &m, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".manifest-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

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

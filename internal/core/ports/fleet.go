package ports

import (
	"context"

	"go.trai.ch/pkgd/internal/core/domain"
)

// FleetSource reads and records which packages are installed on the host.
type FleetSource interface {
	// Snapshot returns every installed package and its version.
	Snapshot(ctx context.Context) (domain.FleetSnapshot, error)

	// Manifest returns the installed manifest of a package, or domain.ErrPackageNotInstalled.
	Manifest(ctx context.Context, name string) (*domain.Manifest, error)

	// Record stores the manifest of a freshly installed package.
	Record(ctx context.Context, manifest domain.Manifest) error

	// Remove deletes the package directory.
	Remove(ctx context.Context, name string) error
}

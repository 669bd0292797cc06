// Package ports defines the core interfaces for the application.
package ports

import (
	"context"

	"go.trai.ch/pkgd/internal/core/domain"
)

// Registry is the versioned name -> version -> content locator service.
// Calls are slow and may fail independently of each other.
//
//go:generate go run go.uber.org/mock/mockgen -source=registry.go -destination=mocks/mock_registry.go -package=mocks
type Registry interface {
	// LatestVersion returns the most recently published version of name.
	LatestVersion(ctx context.Context, name string) (domain.VersionRecord, error)

	// VersionCount returns how many versions of name are published.
	VersionCount(ctx context.Context, name string) (int, error)

	// VersionByIndex returns the i-th published version of name, in publication order.
	VersionByIndex(ctx context.Context, name string, i int) (domain.VersionRecord, error)

	// VersionBySemver returns the record for an exact version triple.
	VersionBySemver(ctx context.Context, name string, semver [3]uint64) (domain.VersionRecord, error)
}

package ports

import (
	"context"
	"io"

	"go.trai.ch/pkgd/internal/core/domain"
)

// ContentStore fetches immutable content by hash.
//
//go:generate go run go.uber.org/mock/mockgen -source=content.go -destination=mocks/mock_content.go -package=mocks
type ContentStore interface {
	// Fetch streams the content behind hash. size is -1 when the store does not report it.
	Fetch(ctx context.Context, hash string) (body io.ReadCloser, size int64, err error)
}

// ReleaseHost downloads release assets over plain HTTP.
type ReleaseHost interface {
	// ReleaseURL returns the asset URL for a repository, version tag and asset name.
	ReleaseURL(repo, version, asset string) string

	// Download streams the asset at url. size is -1 when unknown.
	Download(ctx context.Context, url string) (body io.ReadCloser, size int64, err error)
}

// ReleaseSource loads the manifest and compose template of a published version.
type ReleaseSource interface {
	// Release returns the release published at rec for package name.
	Release(ctx context.Context, name string, rec domain.VersionRecord) (*domain.Release, error)
}

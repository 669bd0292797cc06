// Package acquirer downloads, validates and caches image bundles.
package acquirer

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"go.trai.ch/pkgd/internal/core/domain"
	"go.trai.ch/pkgd/internal/core/ports"
	"go.trai.ch/zerr"
)

const partialSuffix = ".partial"

// Acquirer fetches image bundles from the content store or an HTTP release host.
// Transfers are never retried here; the caller decides.
type Acquirer struct {
	content  ports.ContentStore
	releases ports.ReleaseHost
	logger   ports.Logger
}

// New creates an Acquirer.
func New(content ports.ContentStore, releases ports.ReleaseHost, logger ports.Logger) *Acquirer {
	return &Acquirer{
		content:  content,
		releases: releases,
		logger:   logger,
	}
}

// Acquire makes sure a valid bundle for req is present at dest.
//
// A valid file already at dest is returned without any transfer. Otherwise the bundle is
// streamed into dest+".partial", validated, checked for the expected image tag and only
// then renamed to dest.
func (a *Acquirer) Acquire(ctx context.Context, req domain.ArtifactRequest, dest string) (domain.Artifact, error) {
	if _, err := os.Stat(dest); err == nil {
		bundle, verr := Inspect(dest)
		if verr == nil {
			a.logger.Debug("using cached artifact", "package", req.Package, "path", dest)
			return newArtifact(req, dest, bundle, true), nil
		}
		a.logger.Warn("cached artifact is invalid, fetching again", "package", req.Package, "path", dest)
		if err := os.Remove(dest); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return domain.Artifact{}, zerr.With(zerr.Wrap(err, "cannot remove invalid artifact"), "path", dest)
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), domain.DirPerm); err != nil {
		return domain.Artifact{}, zerr.With(zerr.Wrap(err, "cannot create artifact directory"), "path", dest)
	}

	partial := dest + partialSuffix
	if err := a.transfer(ctx, req, partial); err != nil {
		_ = os.Remove(partial)
		return domain.Artifact{}, err
	}

	bundle, err := Inspect(partial)
	if err != nil {
		_ = os.Remove(partial)
		return domain.Artifact{}, zerr.With(zerr.Wrap(err, "downloaded artifact is corrupt"), "package", req.Package)
	}

	if req.Source.Size > 0 && bundle.Size != req.Source.Size {
		_ = os.Remove(partial)
		err := zerr.With(zerr.Wrap(domain.ErrArtifactCorrupt, "size mismatch"), "package", req.Package)
		err = zerr.With(err, "expected", req.Source.Size)
		return domain.Artifact{}, zerr.With(err, "actual", bundle.Size)
	}

	tagMismatch := false
	if want := domain.ImageTag(req.Package, req.Version.Version); !bundle.HasTag(want) {
		err := zerr.With(zerr.Wrap(domain.ErrImageTagMismatch, req.Package), "expected", want)
		if !req.Core {
			_ = os.Remove(partial)
			return domain.Artifact{}, err
		}
		a.logger.Warn("image tag mismatch tolerated for core package", "package", req.Package, "expected", want)
		tagMismatch = true
	}

	if err := os.Rename(partial, dest); err != nil {
		_ = os.Remove(partial)
		return domain.Artifact{}, zerr.With(zerr.Wrap(err, "cannot move artifact into place"), "path", dest)
	}

	art := newArtifact(req, dest, bundle, false)
	art.TagMismatch = tagMismatch
	return art, nil
}

// transfer streams the bundle of req into path.
func (a *Acquirer) transfer(ctx context.Context, req domain.ArtifactRequest, path string) error {
	body, size, err := a.open(ctx, req)
	if err != nil {
		return err
	}
	defer func() { _ = body.Close() }()

	if size <= 0 {
		size = req.Source.Size
	}

	//nolint:gosec // Path is constructed by the acquirer from the data dir layout
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, domain.FilePerm)
	if err != nil {
		return zerr.With(zerr.Wrap(err, "cannot create partial artifact"), "path", path)
	}

	w := newProgressWriter(f, size, progressSink(ctx))
	_, copyErr := io.Copy(w, body)
	closeErr := f.Close()

	if copyErr != nil {
		err := zerr.Wrap(domain.Classify(copyErr, domain.ErrArtifactTransfer), "transfer interrupted")
		err = zerr.With(err, "package", req.Package)
		return zerr.With(err, "received", w.written)
	}
	if closeErr != nil {
		return zerr.With(zerr.Wrap(closeErr, "cannot write partial artifact"), "path", path)
	}
	w.finish()
	return nil
}

// open starts the transfer from the declared source.
func (a *Acquirer) open(ctx context.Context, req domain.ArtifactRequest) (io.ReadCloser, int64, error) {
	var (
		body io.ReadCloser
		size int64
		err  error
		from string
	)

	switch req.Source.Kind {
	case domain.SourceContentStore:
		from = req.Source.Hash
		body, size, err = a.content.Fetch(ctx, req.Source.Hash)
	case domain.SourceHTTPRelease:
		from = a.releases.ReleaseURL(req.Source.Repo, req.Version.Version, req.Source.Name)
		body, size, err = a.releases.Download(ctx, from)
	default:
		return nil, 0, zerr.With(zerr.Wrap(domain.ErrNoArtifactSource, req.Package), "kind", string(req.Source.Kind))
	}
	if err != nil {
		err = zerr.Wrap(domain.Classify(err, domain.ErrArtifactTransfer), "cannot start transfer")
		err = zerr.With(err, "package", req.Package)
		return nil, 0, zerr.With(err, "source", from)
	}
	return body, size, nil
}

func newArtifact(req domain.ArtifactRequest, path string, bundle *Bundle, cached bool) domain.Artifact {
	locator := req.Version.ContentLocator
	if req.Source.Kind == domain.SourceContentStore && req.Source.Hash != "" {
		locator = req.Source.Hash
	}
	return domain.Artifact{
		ContentLocator: locator,
		ByteSize:       bundle.Size,
		SourceKind:     req.Source.Kind,
		LocalPath:      path,
		Digest:         bundle.Digest.String(),
		Cached:         cached,
	}
}

// Package contentstore fetches content-addressed data through an HTTP gateway.
package contentstore

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.trai.ch/pkgd/internal/core/domain"
	"go.trai.ch/pkgd/internal/core/ports"
	"go.trai.ch/zerr"
)

const (
	manifestFile = "manifest.json"
	composeFile  = "docker-compose.yml"

	// maxDocumentBytes bounds manifests and compose templates.
	maxDocumentBytes = 4 << 20

	releaseKeyPrefix = "release/"
)

var errNotFound = errors.New("content not found")

// Gateway implements ports.ContentStore and ports.ReleaseSource over an IPFS-style gateway.
type Gateway struct {
	base       string
	httpClient *http.Client
	cache      ports.KVStore
	logger     ports.Logger
}

// cachedRelease is the KV form of a release. Content behind a locator never changes.
type cachedRelease struct {
	Manifest domain.Manifest `json:"manifest"`
	Compose  []byte          `json:"compose,omitempty"`
}

// New creates a Gateway for base. cache may be nil.
func New(base string, timeout time.Duration, cache ports.KVStore, logger ports.Logger) *Gateway {
	return NewWithClient(base, &http.Client{Timeout: timeout}, cache, logger)
}

// NewWithClient creates a Gateway using the given http client.
func NewWithClient(base string, client *http.Client, cache ports.KVStore, logger ports.Logger) *Gateway {
	return &Gateway{
		base:       strings.TrimRight(base, "/"),
		httpClient: client,
		cache:      cache,
		logger:     logger,
	}
}

// CID strips the locator prefixes off hash.
func CID(hash string) string {
	h := strings.TrimSpace(hash)
	for _, prefix := range []string{"ipfs://", "/ipfs/", "/content/"} {
		h = strings.TrimPrefix(h, prefix)
	}
	return strings.Trim(h, "/")
}

// Fetch streams the content behind hash.
func (g *Gateway) Fetch(ctx context.Context, hash string) (io.ReadCloser, int64, error) {
	cid := CID(hash)
	if cid == "" {
		return nil, 0, zerr.With(zerr.Wrap(domain.ErrArtifactTransfer, "empty content hash"), "hash", hash)
	}
	body, size, err := g.open(ctx, g.base+"/ipfs/"+cid)
	if err != nil {
		return nil, 0, zerr.With(domain.Classify(err, domain.ErrArtifactTransfer), "hash", cid)
	}
	return body, size, nil
}

// Release loads the manifest and compose template published at rec.
func (g *Gateway) Release(ctx context.Context, name string, rec domain.VersionRecord) (*domain.Release, error) {
	cid := CID(rec.ContentLocator)
	if cid == "" {
		err := zerr.With(zerr.Wrap(domain.ErrManifestFetchFailed, "version has no content locator"), "package", name)
		return nil, zerr.With(err, "version", rec.Version)
	}

	if rel, ok := g.cached(cid); ok {
		return g.check(name, rec, rel)
	}

	raw, err := g.document(ctx, cid, manifestFile)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrManifestFetchFailed), name), "locator", cid)
	}
	var manifest domain.Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrManifestFetchFailed), "decode manifest"), "locator", cid)
	}

	compose, err := g.document(ctx, cid, composeFile)
	switch {
	case errors.Is(err, errNotFound):
		compose = nil
	case err != nil:
		return nil, zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrManifestFetchFailed), "compose template"), "locator", cid)
	}

	rel := &domain.Release{Manifest: manifest, Compose: compose}
	g.store(cid, rel)
	return g.check(name, rec, rel)
}

// check fills the version from rec when the manifest omits it and rejects foreign manifests.
func (g *Gateway) check(name string, rec domain.VersionRecord, rel *domain.Release) (*domain.Release, error) {
	if rel.Manifest.Name == "" {
		rel.Manifest.Name = name
	}
	if rel.Manifest.Name != name {
		err := zerr.With(zerr.Wrap(domain.ErrManifestFetchFailed, "manifest names another package"), "package", name)
		return nil, zerr.With(err, "manifest_name", rel.Manifest.Name)
	}
	if rel.Manifest.Version == "" {
		rel.Manifest.Version = rec.Version
	}
	return rel, nil
}

func (g *Gateway) cached(cid string) (*domain.Release, bool) {
	if g.cache == nil {
		return nil, false
	}
	data, ok, err := g.cache.Get(releaseKeyPrefix + cid)
	if err != nil {
		g.logger.Warn("release cache read failed", "locator", cid, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var c cachedRelease
	if err := json.Unmarshal(data, &c); err != nil {
		g.logger.Warn("release cache entry is corrupt", "locator", cid, "error", err)
		return nil, false
	}
	return &domain.Release{Manifest: c.Manifest, Compose: c.Compose}, true
}

func (g *Gateway) store(cid string, rel *domain.Release) {
	if g.cache == nil {
		return
	}
	data, err := json.Marshal(cachedRelease{Manifest: rel.Manifest, Compose: rel.Compose})
	if err == nil {
		err = g.cache.Put(releaseKeyPrefix+cid, data)
	}
	if err != nil {
		g.logger.Warn("release cache write failed", "locator", cid, "error", err)
	}
}

func (g *Gateway) document(ctx context.Context, cid, file string) ([]byte, error) {
	body, _, err := g.open(ctx, g.base+"/ipfs/"+cid+"/"+file)
	if err != nil {
		return nil, err
	}
	defer func() { _ = body.Close() }()

	data, err := io.ReadAll(io.LimitReader(body, maxDocumentBytes))
	if err != nil {
		return nil, zerr.With(zerr.Wrap(err, "read document"), "file", file)
	}
	return data, nil
}

// open issues a GET and returns the body of a 200 response.
func (g *Gateway) open(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, 0, zerr.With(zerr.Wrap(err, "build request"), "url", url)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, 0, zerr.With(zerr.Wrap(err, "request failed"), "url", url)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return resp.Body, resp.ContentLength, nil
	case http.StatusNotFound:
		_ = resp.Body.Close()
		return nil, 0, zerr.With(zerr.Wrap(errNotFound, "gateway"), "url", url)
	default:
		_ = resp.Body.Close()
		err := zerr.With(zerr.New("unexpected gateway status"), "status_code", resp.StatusCode)
		return nil, 0, zerr.With(err, "url", url)
	}
}

// Package release downloads image bundles published as release assets on an HTTP host.
package release

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.trai.ch/pkgd/internal/core/domain"
	"go.trai.ch/zerr"
)

// Host implements ports.ReleaseHost.
type Host struct {
	base       string
	httpClient *http.Client
}

// New creates a Host for base, e.g. "https://github.com".
func New(base string, timeout time.Duration) *Host {
	return NewWithClient(base, &http.Client{Timeout: timeout})
}

// NewWithClient creates a Host using the given http client.
func NewWithClient(base string, client *http.Client) *Host {
	return &Host{
		base:       strings.TrimRight(base, "/"),
		httpClient: client,
	}
}

// ReleaseURL returns {base}/{owner}/{repo}/releases/download/{version}/{asset}.
func (h *Host) ReleaseURL(repo, version, asset string) string {
	parts := []string{h.base}
	for _, seg := range strings.Split(strings.Trim(repo, "/"), "/") {
		parts = append(parts, url.PathEscape(seg))
	}
	parts = append(parts, "releases", "download", url.PathEscape(version), url.PathEscape(asset))
	return strings.Join(parts, "/")
}

// Download streams the asset at target. Redirects are followed by the http client.
func (h *Host) Download(ctx context.Context, target string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, 0, zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrArtifactTransfer), "build request"), "url", target)
	}
	req.Header.Set("Accept", "application/octet-stream")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, 0, zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrArtifactTransfer), "request failed"), "url", target)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		err := zerr.With(zerr.Wrap(domain.ErrArtifactTransfer, "unexpected status"), "status_code", resp.StatusCode)
		return nil, 0, zerr.With(err, "url", target)
	}
	return resp.Body, resp.ContentLength, nil
}

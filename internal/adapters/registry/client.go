// Package registry implements the Registry port against the registry's JSON HTTP API.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.trai.ch/pkgd/internal/core/domain"
	"go.trai.ch/zerr"
)

// maxResponseBytes bounds registry responses, which are small JSON documents.
const maxResponseBytes = 1 << 20

// Client implements ports.Registry over HTTP.
type Client struct {
	base       string
	httpClient *http.Client
}

type versionResponse struct {
	Version        string `json:"version"`
	ContentLocator string `json:"contentLocator"`
}

type countResponse struct {
	Count int `json:"count"`
}

// New creates a Client for the registry at base.
func New(base string, timeout time.Duration) *Client {
	return NewWithClient(base, &http.Client{Timeout: timeout})
}

// NewWithClient creates a Client using the given http client.
func NewWithClient(base string, client *http.Client) *Client {
	return &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: client,
	}
}

// LatestVersion returns the most recently published version of name.
func (c *Client) LatestVersion(ctx context.Context, name string) (domain.VersionRecord, error) {
	var resp versionResponse
	if err := c.get(ctx, name, c.packageURL(name, "latest"), &resp); err != nil {
		return domain.VersionRecord{}, err
	}
	return resp.record(name)
}

// VersionCount returns how many versions of name are published.
func (c *Client) VersionCount(ctx context.Context, name string) (int, error) {
	var resp countResponse
	if err := c.get(ctx, name, c.packageURL(name, "count"), &resp); err != nil {
		return 0, err
	}
	if resp.Count < 0 {
		return 0, zerr.With(zerr.Wrap(domain.ErrRegistryUnavailable, "negative version count"), "package", name)
	}
	return resp.Count, nil
}

// VersionByIndex returns the i-th published version of name.
func (c *Client) VersionByIndex(ctx context.Context, name string, i int) (domain.VersionRecord, error) {
	var resp versionResponse
	if err := c.get(ctx, name, c.packageURL(name, "versions", strconv.Itoa(i)), &resp); err != nil {
		return domain.VersionRecord{}, zerr.With(err, "index", i)
	}
	return resp.record(name)
}

// VersionBySemver returns the record for an exact version triple.
func (c *Client) VersionBySemver(ctx context.Context, name string, semver [3]uint64) (domain.VersionRecord, error) {
	var resp versionResponse
	if err := c.get(ctx, name, c.packageURL(name, "semver", FormatTriple(semver)), &resp); err != nil {
		return domain.VersionRecord{}, zerr.With(err, "version", FormatTriple(semver))
	}
	return resp.record(name)
}

// FormatTriple renders a version triple as "major.minor.patch".
func FormatTriple(v [3]uint64) string {
	return fmt.Sprintf("%d.%d.%d", v[0], v[1], v[2])
}

func (c *Client) packageURL(name string, parts ...string) string {
	segments := append([]string{c.base, "packages", url.PathEscape(name)}, parts...)
	return strings.Join(segments, "/")
}

func (c *Client) get(ctx context.Context, name, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrRegistryUnavailable), "build request"), "package", name)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrRegistryUnavailable), "request failed"), "package", name)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return zerr.With(zerr.Wrap(domain.ErrVersionNotFound, name), "url", target)
	case resp.StatusCode != http.StatusOK:
		err := zerr.With(zerr.Wrap(domain.ErrRegistryUnavailable, name), "status_code", resp.StatusCode)
		return zerr.With(err, "url", target)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrRegistryUnavailable), "read response"), "package", name)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrRegistryUnavailable), "decode response"), "package", name)
	}
	return nil
}

func (r versionResponse) record(name string) (domain.VersionRecord, error) {
	if r.Version == "" {
		return domain.VersionRecord{}, zerr.With(zerr.Wrap(domain.ErrRegistryUnavailable, "record without version"), "package", name)
	}
	return domain.VersionRecord{Version: r.Version, ContentLocator: r.ContentLocator}, nil
}

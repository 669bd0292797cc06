package domain

import (
	"slices"
	"strings"

	"go.trai.ch/zerr"
)

// Manifest is the release metadata published alongside each package version.
type Manifest struct {
	// Name is the registry name of the package (e.g., "geth.dnp.example.eth").
	Name string `json:"name"`

	// Version is the semver version of this release.
	Version string `json:"version"`

	// Core marks a system-critical package whose failures must not block the pipeline.
	Core bool `json:"core,omitempty"`

	// MainService is the service that receives the short package alias.
	MainService string `json:"mainService,omitempty"`

	// Dependencies are mandatory requirements keyed by package name.
	Dependencies map[string]string `json:"dependencies,omitempty"`

	// OptionalDependencies only apply when the named package is already installed.
	OptionalDependencies map[string]string `json:"optionalDependencies,omitempty"`

	// Image describes the content-addressed image bundle.
	Image ImageSpec `json:"image"`

	// Upstream describes an HTTP release host for the image bundle.
	Upstream *Upstream `json:"upstream,omitempty"`
}

// ImageSpec locates the image bundle in the content store.
type ImageSpec struct {
	Hash string `json:"hash,omitempty"`
	Size int64  `json:"size,omitempty"`
	Path string `json:"path,omitempty"`
}

// Upstream locates the image bundle on an HTTP release host.
type Upstream struct {
	// Repo is "owner/repo".
	Repo string `json:"repo"`

	// Artifact is the release asset name. Defaults to the image path.
	Artifact string `json:"artifact,omitempty"`
}

// Release bundles a manifest with the compose template it ships with.
type Release struct {
	Manifest Manifest
	Compose  []byte
}

// ArtifactName returns the file name of the image bundle.
func (m *Manifest) ArtifactName() string {
	if m.Image.Path != "" {
		return m.Image.Path
	}
	if m.Upstream != nil && m.Upstream.Artifact != "" {
		return m.Upstream.Artifact
	}
	return strings.ReplaceAll(m.Name, "/", "_") + "_" + m.Version + ".tar.xz"
}

// ImageTag returns the repository tag the bundle's image must carry.
func (m *Manifest) ImageTag() string {
	return ImageTag(m.Name, m.Version)
}

// ImageTag returns the repository tag for a package version.
func ImageTag(pkg, version string) string {
	return pkg + ":" + version
}

// ArtifactSource resolves where the image bundle is fetched from.
func (m *Manifest) ArtifactSource() (ArtifactSource, error) {
	switch {
	case m.Image.Hash != "":
		return ArtifactSource{
			Kind: SourceContentStore,
			Hash: m.Image.Hash,
			Size: m.Image.Size,
			Name: m.ArtifactName(),
		}, nil
	case m.Upstream != nil && m.Upstream.Repo != "":
		return ArtifactSource{
			Kind: SourceHTTPRelease,
			Repo: m.Upstream.Repo,
			Size: m.Image.Size,
			Name: m.ArtifactName(),
		}, nil
	default:
		return ArtifactSource{}, zerr.With(zerr.Wrap(ErrNoArtifactSource, m.Name), "version", m.Version)
	}
}

// DependencyNames returns every declared dependency name, mandatory and optional, sorted.
func (m *Manifest) DependencyNames() []string {
	names := make([]string, 0, len(m.Dependencies)+len(m.OptionalDependencies))
	for name := range m.Dependencies {
		names = append(names, name)
	}
	for name := range m.OptionalDependencies {
		if _, dup := m.Dependencies[name]; !dup {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

func sortStrings(s []string) {
	slices.Sort(s)
}

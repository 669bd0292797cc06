package domain

// SourceKind identifies where an artifact is fetched from.
type SourceKind string

const (
	// SourceContentStore fetches by content hash from the content-addressable store.
	SourceContentStore SourceKind = "content-store"

	// SourceHTTPRelease fetches from an upstream HTTP release host.
	SourceHTTPRelease SourceKind = "http-release"
)

// ArtifactSource is the declared origin of an image bundle.
type ArtifactSource struct {
	Kind SourceKind

	// Hash is the content hash for SourceContentStore.
	Hash string

	// Size is the expected byte size when known in advance. Zero means unknown.
	Size int64

	// Repo is "owner/repo" for SourceHTTPRelease.
	Repo string

	// Name is the artifact file name.
	Name string
}

// ArtifactRequest asks the acquirer for the image bundle of one package version.
type ArtifactRequest struct {
	Package string
	Version VersionRecord
	Source  ArtifactSource

	// Core tolerates tag verification failures instead of aborting.
	Core bool
}

// Artifact is a downloaded and validated image bundle.
type Artifact struct {
	ContentLocator string     `json:"contentLocator"`
	ByteSize       int64      `json:"byteSize"`
	SourceKind     SourceKind `json:"sourceKind"`
	LocalPath      string     `json:"localPath"`

	// Digest is the sha256 digest of the bundle on disk.
	Digest string `json:"digest"`

	// Cached reports that a valid file was already present and nothing was transferred.
	Cached bool `json:"-"`

	// TagMismatch records a tolerated tag verification failure on a core package.
	TagMismatch bool `json:"-"`
}

package acquirer

import (
	"archive/tar"
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/opencontainers/go-digest"
	"github.com/ulikunitz/xz"
	"go.trai.ch/pkgd/internal/core/domain"
	"go.trai.ch/zerr"
)

const (
	dockerManifestName = "manifest.json"
	ociIndexName       = "index.json"

	// containerdImageNameAnnotation is set by containerd and docker on exported OCI layouts.
	containerdImageNameAnnotation = "io.containerd.image.name"
)

var (
	xzMagic   = []byte{0xFD, '7', 'z', 'X', 'Z', 0x00}
	gzipMagic = []byte{0x1F, 0x8B}
	zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}
)

// Compression names the outer compression of an image bundle.
type Compression string

const (
	// CompressionNone is a plain tar archive.
	CompressionNone Compression = "none"
	// CompressionXZ is an xz stream.
	CompressionXZ Compression = "xz"
	// CompressionGzip is a gzip stream.
	CompressionGzip Compression = "gzip"
	// CompressionZstd is a zstd stream.
	CompressionZstd Compression = "zstd"
)

// Bundle is what validating an image bundle learned about it.
type Bundle struct {
	Size        int64
	Digest      digest.Digest
	Compression Compression

	// RepoTags are the image references the bundle declares.
	RepoTags []string
}

// HasTag reports whether the bundle carries tag, with or without a registry prefix.
func (b *Bundle) HasTag(tag string) bool {
	for _, t := range b.RepoTags {
		if t == tag || strings.HasSuffix(t, "/"+tag) {
			return true
		}
	}
	return false
}

// dockerManifestEntry is one image of a `docker save` archive.
type dockerManifestEntry struct {
	Config   string   `json:"Config"`
	RepoTags []string `json:"RepoTags"`
	Layers   []string `json:"Layers"`
}

// Inspect validates the bundle at p. The whole archive is decompressed and walked,
// which exercises the compression checksums, and the sha256 of the file is computed
// on the way.
func Inspect(p string) (*Bundle, error) {
	//nolint:gosec // Path is constructed by the acquirer from the data dir layout
	f, err := os.Open(p)
	if err != nil {
		return nil, zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrArtifactCorrupt), "cannot open bundle"), "path", p)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrArtifactCorrupt), "cannot stat bundle"), "path", p)
	}
	if info.Size() == 0 {
		return nil, zerr.With(zerr.Wrap(domain.ErrArtifactCorrupt, "bundle is empty"), "path", p)
	}

	digester := digest.Canonical.Digester()
	br := bufio.NewReader(io.TeeReader(f, digester.Hash()))

	bundle := &Bundle{Size: info.Size()}
	if err := walk(br, bundle); err != nil {
		return nil, zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrArtifactCorrupt), "bundle failed validation"), "path", p)
	}

	// Trailing bytes still count towards the digest.
	if _, err := io.Copy(io.Discard, br); err != nil {
		return nil, zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrArtifactCorrupt), "cannot read bundle"), "path", p)
	}
	bundle.Digest = digester.Digest()
	return bundle, nil
}

func walk(br *bufio.Reader, bundle *Bundle) error {
	compression, err := detect(br)
	if err != nil {
		return err
	}
	bundle.Compression = compression

	var r io.Reader
	switch compression {
	case CompressionXZ:
		xr, err := xz.NewReader(br)
		if err != nil {
			return err
		}
		r = xr
	case CompressionGzip:
		gr, err := gzip.NewReader(br)
		if err != nil {
			return err
		}
		defer func() { _ = gr.Close() }()
		r = gr
	case CompressionZstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			return err
		}
		defer zr.Close()
		r = zr
	default:
		r = br
	}

	tags, err := walkTar(r)
	if err != nil {
		return err
	}
	bundle.RepoTags = tags

	// Reading the stream to its end verifies the trailing checksum.
	_, err = io.Copy(io.Discard, r)
	return err
}

func detect(br *bufio.Reader) (Compression, error) {
	head, err := br.Peek(len(xzMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	switch {
	case bytes.HasPrefix(head, xzMagic):
		return CompressionXZ, nil
	case bytes.HasPrefix(head, gzipMagic):
		return CompressionGzip, nil
	case bytes.HasPrefix(head, zstdMagic):
		return CompressionZstd, nil
	default:
		return CompressionNone, nil
	}
}

// walkTar reads every entry of the archive and returns the image tags it declares.
func walkTar(r io.Reader) ([]string, error) {
	tr := tar.NewReader(r)
	var tags []string
	entries := 0
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		entries++

		switch path.Clean(hdr.Name) {
		case dockerManifestName:
			var manifest []dockerManifestEntry
			if err := json.NewDecoder(tr).Decode(&manifest); err != nil {
				return nil, zerr.Wrap(err, "invalid image manifest")
			}
			for _, m := range manifest {
				tags = append(tags, m.RepoTags...)
			}
		case ociIndexName:
			var index ocispec.Index
			if err := json.NewDecoder(tr).Decode(&index); err != nil {
				return nil, zerr.Wrap(err, "invalid image index")
			}
			tags = append(tags, indexTags(index)...)
		}

		if _, err := io.Copy(io.Discard, tr); err != nil {
			return nil, err
		}
	}
	if entries == 0 {
		return nil, zerr.New("archive has no entries")
	}
	return tags, nil
}

func indexTags(index ocispec.Index) []string {
	var tags []string
	for _, desc := range index.Manifests {
		if name, ok := desc.Annotations[containerdImageNameAnnotation]; ok {
			tags = append(tags, name)
			continue
		}
		if ref, ok := desc.Annotations[ocispec.AnnotationRefName]; ok && strings.Contains(ref, ":") {
			tags = append(tags, ref)
		}
	}
	return tags
}

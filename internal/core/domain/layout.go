package domain

import "path/filepath"

const (
	// DefaultDataDir is the root of all pkgd state on the host.
	DefaultDataDir = "/var/lib/pkgd"

	// PackagesDirName holds one directory per installed package.
	PackagesDirName = "packages"

	// ArtifactsDirName holds downloaded image bundles.
	ArtifactsDirName = "artifacts"

	// CacheDirName holds the KV store files.
	CacheDirName = "cache"

	// LocksDirName holds per-package lock files.
	LocksDirName = "locks"

	// ConfigFileName is the name of the configuration file.
	ConfigFileName = "pkgd.yaml"

	// ConfigEnvVar overrides the configuration file location.
	ConfigEnvVar = "PKGD_CONFIG"

	// ComposeFileName is the compose file of each package.
	ComposeFileName = "docker-compose.yml"

	// ManifestFileName is the installed manifest of each package.
	ManifestFileName = "manifest.json"

	// DirPerm is the default permission for directories (rwxr-x---).
	DirPerm = 0o750

	// FilePerm is the default permission for files (rw-r--r--).
	FilePerm = 0o644

	// PrivateFilePerm is the default permission for private files (rw-------).
	PrivateFilePerm = 0o600
)

// PackagesPath returns the directory holding all package directories.
func PackagesPath(dataDir string) string {
	return filepath.Join(dataDir, PackagesDirName)
}

// PackagePath returns the directory of one package.
func PackagePath(dataDir, pkg string) string {
	return filepath.Join(dataDir, PackagesDirName, pkg)
}

// ComposePath returns the compose file of one package.
func ComposePath(dataDir, pkg string) string {
	return filepath.Join(PackagePath(dataDir, pkg), ComposeFileName)
}

// ArtifactPath returns where the image bundle of a package version is cached.
func ArtifactPath(dataDir, pkg, version, name string) string {
	return filepath.Join(dataDir, ArtifactsDirName, pkg, version, filepath.Base(name))
}

// CachePath returns the KV store directory.
func CachePath(dataDir string) string {
	return filepath.Join(dataDir, CacheDirName)
}

// LocksPath returns the lock file directory.
func LocksPath(dataDir string) string {
	return filepath.Join(dataDir, LocksDirName)
}

package domain

import (
	"errors"

	"go.trai.ch/zerr"
)

var (
	// ErrNoSatisfyingVersion is returned when no published version satisfies a requested range.
	ErrNoSatisfyingVersion = zerr.New("no version satisfies the requested range")

	// ErrInvalidRange is returned when a dependency requirement is not a valid semver range.
	ErrInvalidRange = zerr.New("invalid semver range")

	// ErrConflictingRequirements is returned when two requirements on one package cannot both hold.
	ErrConflictingRequirements = zerr.New("conflicting requirements")

	// ErrDependencyCycle is returned when the packages of one install depend on each other in a cycle.
	ErrDependencyCycle = zerr.New("dependency cycle detected")

	// ErrDuplicatePackage is returned when a package is added to a dependency graph twice.
	ErrDuplicatePackage = zerr.New("package already in graph")

	// ErrResolutionDiverged is returned when dependency resolution does not reach a fixpoint.
	ErrResolutionDiverged = zerr.New("dependency resolution did not converge")

	// ErrRegistryUnavailable is returned when a registry call fails.
	ErrRegistryUnavailable = zerr.New("registry unavailable")

	// ErrVersionNotFound is returned when the registry has no record for a version.
	ErrVersionNotFound = zerr.New("version not found in registry")

	// ErrManifestFetchFailed is returned when a release manifest cannot be fetched or decoded.
	ErrManifestFetchFailed = zerr.New("failed to fetch release manifest")

	// ErrArtifactTransfer is returned when streaming an artifact fails mid-transfer.
	ErrArtifactTransfer = zerr.New("artifact transfer failed")

	// ErrArtifactCorrupt is returned when an artifact fails its integrity self-check.
	ErrArtifactCorrupt = zerr.New("artifact failed integrity check")

	// ErrImageTagMismatch is returned when an image bundle is tagged for a different package or version.
	ErrImageTagMismatch = zerr.New("image tag does not match package version")

	// ErrNoArtifactSource is returned when a manifest declares neither a content hash nor an upstream release.
	ErrNoArtifactSource = zerr.New("manifest declares no artifact source")

	// ErrAddressInUse is returned by the runtime when a requested IP is held by another container.
	ErrAddressInUse = zerr.New("address already in use")

	// ErrAlreadyAttached is returned by the runtime when a container is already attached to the network.
	ErrAlreadyAttached = zerr.New("container already attached to network")

	// ErrNetworkNotFound is returned when the private network does not exist.
	ErrNetworkNotFound = zerr.New("network not found")

	// ErrContainerNotFound is returned when a container does not exist.
	ErrContainerNotFound = zerr.New("container not found")

	// ErrRuntimeCall is returned when a container runtime call fails for any other reason.
	ErrRuntimeCall = zerr.New("container runtime call failed")

	// ErrIllegalTransition is returned when an install state machine receives an event it cannot accept.
	ErrIllegalTransition = zerr.New("illegal install state transition")

	// ErrComposeReadFailed is returned when a compose file cannot be read or parsed.
	ErrComposeReadFailed = zerr.New("failed to read compose file")

	// ErrComposeWriteFailed is returned when a compose file cannot be written.
	ErrComposeWriteFailed = zerr.New("failed to write compose file")

	// ErrComposeMissing is returned when a package has neither an on-disk compose file nor a template.
	ErrComposeMissing = zerr.New("no compose definition for package")

	// ErrConfigReadFailed is returned when the config file cannot be read.
	ErrConfigReadFailed = zerr.New("failed to read config file")

	// ErrConfigParseFailed is returned when the config file cannot be parsed.
	ErrConfigParseFailed = zerr.New("failed to parse config file")

	// ErrInvalidConfig is returned when the configuration fails validation.
	ErrInvalidConfig = zerr.New("invalid configuration")

	// ErrStoreReadFailed is returned when a KV entry cannot be read.
	ErrStoreReadFailed = zerr.New("failed to read store entry")

	// ErrStoreWriteFailed is returned when a KV entry cannot be written.
	ErrStoreWriteFailed = zerr.New("failed to write store entry")

	// ErrFleetReadFailed is returned when the installed package directory cannot be read.
	ErrFleetReadFailed = zerr.New("failed to read installed packages")

	// ErrFleetWriteFailed is returned when an installed package record cannot be written.
	ErrFleetWriteFailed = zerr.New("failed to record installed package")

	// ErrLockFailed is returned when a package lock cannot be acquired.
	ErrLockFailed = zerr.New("failed to acquire package lock")

	// ErrPackageNotInstalled is returned when an operation targets a package that is not installed.
	ErrPackageNotInstalled = zerr.New("package not installed")

	// ErrInstallFailed is returned when an install request fails.
	ErrInstallFailed = zerr.New("install failed")

	// ErrInvalidSetting is returned when a package setting cannot be parsed.
	ErrInvalidSetting = zerr.New("invalid package setting")
)

// Kind is the coarse classification of a pipeline error.
type Kind int

const (
	// KindUnknown is any error outside the taxonomy.
	KindUnknown Kind = iota
	// KindResolution covers unsatisfiable or malformed version requirements.
	KindResolution
	// KindIntegrity covers artifacts that fail validation or tag checks.
	KindIntegrity
	// KindConflict covers address and attachment conflicts on the network.
	KindConflict
	// KindTransient covers registry, transfer and runtime failures that a caller may retry.
	KindTransient
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindResolution:
		return "resolution"
	case KindIntegrity:
		return "integrity"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// ErrorKind classifies err into the pipeline error taxonomy.
func ErrorKind(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrNoSatisfyingVersion),
		errors.Is(err, ErrInvalidRange),
		errors.Is(err, ErrConflictingRequirements),
		errors.Is(err, ErrResolutionDiverged),
		errors.Is(err, ErrDependencyCycle),
		errors.Is(err, ErrVersionNotFound):
		return KindResolution
	case errors.Is(err, ErrArtifactCorrupt),
		errors.Is(err, ErrImageTagMismatch):
		return KindIntegrity
	case errors.Is(err, ErrAddressInUse),
		errors.Is(err, ErrAlreadyAttached):
		return KindConflict
	case errors.Is(err, ErrRegistryUnavailable),
		errors.Is(err, ErrArtifactTransfer),
		errors.Is(err, ErrRuntimeCall),
		errors.Is(err, ErrManifestFetchFailed):
		return KindTransient
	default:
		return KindUnknown
	}
}

// Stage names a step of the install pipeline.
type Stage string

const (
	// StageResolve is version and dependency resolution.
	StageResolve Stage = "resolve"
	// StageAcquire is artifact download and validation.
	StageAcquire Stage = "acquire"
	// StageLoad is loading image bundles into the runtime.
	StageLoad Stage = "load"
	// StageCompose is compose file reconciliation.
	StageCompose Stage = "compose"
	// StageStart is starting package containers.
	StageStart Stage = "start"
	// StageNetwork is network reconciliation.
	StageNetwork Stage = "network"
	// StageRecord is recording the installed manifest.
	StageRecord Stage = "record"
	// StageUninstall is removing a package.
	StageUninstall Stage = "uninstall"
)

// PackageError reports which package and pipeline stage an error came from.
type PackageError struct {
	Package string
	Stage   Stage
	Err     error
}

// NewPackageError wraps err with the package and stage it failed in.
func NewPackageError(pkg string, stage Stage, err error) *PackageError {
	return &PackageError{Package: pkg, Stage: stage, Err: err}
}

func (e *PackageError) Error() string {
	return "package " + e.Package + " failed at " + string(e.Stage) + ": " + e.Err.Error()
}

func (e *PackageError) Unwrap() error {
	return e.Err
}

// Classify marks err as an instance of sentinel while keeping err as the cause,
// so errors.Is matches both.
func Classify(err, sentinel error) error {
	if err == nil || errors.Is(err, sentinel) {
		return err
	}
	return &classifiedError{sentinel: sentinel, cause: err}
}

type classifiedError struct {
	sentinel error
	cause    error
}

func (e *classifiedError) Error() string {
	return e.sentinel.Error() + ": " + e.cause.Error()
}

func (e *classifiedError) Unwrap() []error {
	return []error{e.sentinel, e.cause}
}

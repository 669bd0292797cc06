package docker

import (
	"strings"

	cerrdefs "github.com/containerd/errdefs"
	"go.trai.ch/pkgd/internal/core/domain"
	"go.trai.ch/zerr"
)

// classify maps engine errors onto the domain taxonomy. notFound is the sentinel
// used when the engine reports a missing object.
func classify(err error, notFound error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "address already in use"):
		return domain.Classify(err, domain.ErrAddressInUse)
	case strings.Contains(msg, "already exists in network"),
		strings.Contains(msg, "is already attached to network"):
		return domain.Classify(err, domain.ErrAlreadyAttached)
	case notFound != nil && cerrdefs.IsNotFound(err):
		return domain.Classify(err, notFound)
	default:
		return domain.Classify(err, domain.ErrRuntimeCall)
	}
}

func wrap(err error, notFound error, msg, key, value string) error {
	return zerr.With(zerr.Wrap(classify(err, notFound), msg), key, value)
}

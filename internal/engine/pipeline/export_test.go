package pipeline

import (
	"context"

	"github.com/moby/locker"
)

// LockPackages exposes the package locks rooted at dir for tests.
func LockPackages(ctx context.Context, dir string, names []string) (func(), error) {
	return newPackageLocks(dir, locker.New()).acquire(ctx, names)
}

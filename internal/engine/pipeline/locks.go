package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/moby/locker"
	"go.trai.ch/pkgd/internal/core/domain"
	"go.trai.ch/zerr"
)

const lockRetryDelay = 50 * time.Millisecond

// packageLocks serializes work on a package within the process and across processes
// sharing the data dir.
type packageLocks struct {
	dir string
	mem *locker.Locker
}

func newPackageLocks(dir string, mem *locker.Locker) *packageLocks {
	return &packageLocks{dir: dir, mem: mem}
}

// acquire locks every name in sorted order and returns the function releasing them.
// Sorted acquisition keeps overlapping installs from deadlocking.
func (l *packageLocks) acquire(ctx context.Context, names []string) (func(), error) {
	sorted := slices.Clone(names)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	if err := os.MkdirAll(l.dir, domain.DirPerm); err != nil {
		return nil, zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrLockFailed), "create lock directory"), "path", l.dir)
	}

	var held []*flock.Flock
	var heldNames []string
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			_ = held[i].Unlock()
			_ = l.mem.Unlock(heldNames[i])
		}
	}

	for _, name := range sorted {
		l.mem.Lock(name)
		fl := flock.New(filepath.Join(l.dir, lockFileName(name)))
		ok, err := fl.TryLockContext(ctx, lockRetryDelay)
		if err == nil && !ok {
			err = domain.ErrLockFailed
		}
		if err != nil {
			_ = l.mem.Unlock(name)
			release()
			return nil, zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrLockFailed), name), "path", fl.Path())
		}
		held = append(held, fl)
		heldNames = append(heldNames, name)
	}
	return release, nil
}

func lockFileName(name string) string {
	return strings.ReplaceAll(name, string(filepath.Separator), "_") + ".lock"
}

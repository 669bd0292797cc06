// Package fs keeps the record of installed packages on the host file system.
package fs

import (
	"errors"
	iofs "io/fs"
	"iter"
	"os"
	"path/filepath"
	"strings"
)

// Walker lists package directories.
type Walker struct{}

// NewWalker creates a new Walker.
func NewWalker() *Walker {
	return &Walker{}
}

// PackageDirs yields the directories directly under root, in name order.
// Hidden entries and plain files are skipped. A missing root yields nothing.
func (w *Walker) PackageDirs(root string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		entries, err := os.ReadDir(root)
		if errors.Is(err, iofs.ErrNotExist) {
			return
		}
		if err != nil {
			yield("", err)
			return
		}

		for _, e := range entries {
			if w.shouldSkip(e) {
				continue
			}
			if !yield(filepath.Join(root, e.Name()), nil) {
				return
			}
		}
	}
}

func (w *Walker) shouldSkip(d iofs.DirEntry) bool {
	return !d.IsDir() || strings.HasPrefix(d.Name(), ".")
}

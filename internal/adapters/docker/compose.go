package docker

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"

	"go.trai.ch/pkgd/internal/core/domain"
	"go.trai.ch/zerr"
)

// ComposeUp creates or recreates the services of a compose file, detached.
func (r *Runtime) ComposeUp(ctx context.Context, composePath string) error {
	return r.compose(ctx, composePath, "up", "-d", "--remove-orphans")
}

// ComposeDown stops and removes the services of a compose file.
func (r *Runtime) ComposeDown(ctx context.Context, composePath string) error {
	return r.compose(ctx, composePath, "down", "--remove-orphans")
}

func (r *Runtime) compose(ctx context.Context, composePath string, args ...string) error {
	full := append([]string{"compose", "--file", composePath}, args...)
	cmd := r.execCommand(ctx, r.binary, full...)
	cmd.Dir = filepath.Dir(composePath)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		err = zerr.Wrap(domain.Classify(err, domain.ErrRuntimeCall), "docker compose "+args[0]+" failed")
		err = zerr.With(err, "path", composePath)
		if out := strings.TrimSpace(stderr.String()); out != "" {
			err = zerr.With(err, "stderr", out)
		}
		return err
	}
	return nil
}

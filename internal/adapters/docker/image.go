package docker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"go.trai.ch/pkgd/internal/core/domain"
	"go.trai.ch/zerr"
)

// LoadImage streams an image bundle archive into the engine. The engine
// decompresses xz, gzip and zstd archives itself.
func (r *Runtime) LoadImage(ctx context.Context, path string) error {
	//nolint:gosec // Path comes from the artifact layout
	f, err := os.Open(path)
	if err != nil {
		return zerr.With(zerr.Wrap(domain.Classify(err, domain.ErrRuntimeCall), "open image bundle"), "path", path)
	}
	defer func() { _ = f.Close() }()

	res, err := r.api.ImageLoad(ctx, f, client.ImageLoadWithQuiet(true))
	if err != nil {
		return wrap(err, nil, "load image", "path", path)
	}
	defer func() { _ = res.Body.Close() }()

	if err := drainLoadStream(res.Body, res.JSON); err != nil {
		return wrap(err, nil, "load image", "path", path)
	}
	r.logger.Debug("image loaded", "path", path)
	return nil
}

// drainLoadStream consumes the engine's progress stream and surfaces its error, if any.
func drainLoadStream(body io.Reader, isJSON bool) error {
	if !isJSON {
		_, err := io.Copy(io.Discard, body)
		return err
	}
	dec := json.NewDecoder(body)
	for {
		var msg jsonmessage.JSONMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if msg.Error != nil {
			return msg.Error
		}
	}
}

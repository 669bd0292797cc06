// Package telemetry holds the telemetry adapters that need no recording backend.
package telemetry

import (
	"context"

	"go.trai.ch/pkgd/internal/core/ports"
)

// NoOp is a ports.Telemetry that records nothing.
type NoOp struct{}

// NewNoOp creates a new NoOp.
func NewNoOp() *NoOp {
	return &NoOp{}
}

// Record returns a vertex that discards everything.
func (t *NoOp) Record(ctx context.Context, _ string) (context.Context, ports.Vertex) {
	v := NoOpVertex{}
	return ports.ContextWithVertex(ctx, v), v
}

// Close does nothing.
func (t *NoOp) Close() error { return nil }

// NoOpVertex is a no-op implementation of ports.Vertex.
type NoOpVertex struct{}

// Progress does nothing.
func (NoOpVertex) Progress(_, _ int64) {}

// Log does nothing.
func (NoOpVertex) Log(_ string) {}

// Done does nothing.
func (NoOpVertex) Done(_ error) {}

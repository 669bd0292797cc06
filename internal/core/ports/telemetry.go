package ports

import "context"

// Telemetry records progress of long-running pipeline steps.
type Telemetry interface {
	// Record starts a vertex for a named unit of work.
	Record(ctx context.Context, name string) (context.Context, Vertex)

	// Close flushes the recording session.
	Close() error
}

// Vertex is one unit of work.
type Vertex interface {
	// Progress reports cur out of total units. total <= 0 means unknown.
	Progress(cur, total int64)

	// Log records a line of output for the vertex.
	Log(msg string)

	// Done completes the vertex, failed when err is non-nil.
	Done(err error)
}

type vertexKey struct{}

// ContextWithVertex returns a context carrying v.
func ContextWithVertex(ctx context.Context, v Vertex) context.Context {
	return context.WithValue(ctx, vertexKey{}, v)
}

// VertexFromContext returns the vertex carried by ctx, if any.
func VertexFromContext(ctx context.Context) (Vertex, bool) {
	v, ok := ctx.Value(vertexKey{}).(Vertex)
	return v, ok
}

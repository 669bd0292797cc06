package acquirer

import (
	"context"
	"io"

	"go.trai.ch/pkgd/internal/core/ports"
)

// progressStep is the minimum number of bytes between two progress reports.
const progressStep = 256 << 10

// progressWriter counts bytes written and reports them as downloaded/total.
type progressWriter struct {
	w        io.Writer
	total    int64
	written  int64
	reported int64
	sink     ports.Vertex
}

func newProgressWriter(w io.Writer, total int64, sink ports.Vertex) *progressWriter {
	return &progressWriter{w: w, total: total, sink: sink}
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	if p.sink != nil && p.written-p.reported >= progressStep {
		p.reported = p.written
		p.sink.Progress(p.written, p.total)
	}
	return n, err
}

// finish reports the final byte count.
func (p *progressWriter) finish() {
	if p.sink != nil && p.reported != p.written {
		p.reported = p.written
		p.sink.Progress(p.written, p.total)
	}
}

func progressSink(ctx context.Context) ports.Vertex {
	v, ok := ports.VertexFromContext(ctx)
	if !ok {
		return nil
	}
	return v
}

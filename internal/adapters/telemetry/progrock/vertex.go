package progrock

import (
	"fmt"
	"sync"

	"github.com/vito/progrock"
)

// Vertex implements ports.Vertex wrapping *progrock.VertexRecorder.
type Vertex struct {
	vertex *progrock.VertexRecorder
	name   string

	mu   sync.Mutex
	task *progrock.TaskRecorder
}

// Progress reports cur out of total units on a task of the vertex, created on first use.
func (v *Vertex) Progress(cur, total int64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.task == nil {
		if total > 0 {
			v.task = v.vertex.ProgressTask(total, "%s", v.name)
		} else {
			v.task = v.vertex.Task("%s", v.name)
		}
	}
	v.task.Current(cur)
}

// Log records a line of output for this vertex.
func (v *Vertex) Log(msg string) {
	_, _ = fmt.Fprintln(v.vertex.Stdout(), msg)
}

// Done marks the vertex, and its progress task if any, as finished.
func (v *Vertex) Done(err error) {
	v.mu.Lock()
	if v.task != nil {
		v.task.Done(err)
	}
	v.mu.Unlock()
	v.vertex.Done(err)
}

package progrock

import (
	"strings"
	"sync"
	"time"

	"github.com/vito/progrock"
	"go.trai.ch/pkgd/internal/core/ports"
)

// LogWriter is a progrock.Writer that reports vertex completion and output
// through the structured logger.
type LogWriter struct {
	logger ports.Logger

	mu    sync.Mutex
	names map[string]string
	done  map[string]bool
}

// NewLogWriter creates a LogWriter.
func NewLogWriter(logger ports.Logger) *LogWriter {
	return &LogWriter{
		logger: logger,
		names:  make(map[string]string),
		done:   make(map[string]bool),
	}
}

// WriteStatus logs the vertexes that completed in update and their output lines.
func (w *LogWriter) WriteStatus(update *progrock.StatusUpdate) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, v := range update.Vertexes {
		w.names[v.Id] = v.Name
		if v.Completed == nil || w.done[v.Id] {
			continue
		}
		w.done[v.Id] = true

		args := []any{"step", v.Name}
		if v.Started != nil {
			args = append(args, "duration", v.Completed.AsTime().Sub(v.Started.AsTime()).Round(time.Millisecond).String())
		}
		switch {
		case v.Error != nil:
			w.logger.Warn("step failed", append(args, "error", *v.Error)...)
		case v.Cached:
			w.logger.Debug("step cached", args...)
		default:
			w.logger.Debug("step done", args...)
		}
	}

	for _, l := range update.Logs {
		for _, line := range strings.Split(strings.TrimRight(string(l.Data), "\n"), "\n") {
			if line == "" {
				continue
			}
			w.logger.Debug(line, "step", w.names[l.Vertex])
		}
	}
	return nil
}

// Close does nothing.
func (w *LogWriter) Close() error {
	return nil
}

package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/muesli/termenv"
	"go.trai.ch/pkgd/internal/ui/output"
	"go.trai.ch/pkgd/internal/ui/style"
)

// Keys given a fixed place in a pretty line. They are only recognised outside groups.
const (
	keyPackage   = "package"
	keyContainer = "container"
	keyStage     = "stage"
	keyError     = "error"
)

// PrettyHandler is a slog.Handler writing one colored line per record:
//
//	! geth.pkgd [acquire]: artifact transfer failed, retrying: connection reset locator=/ipfs/Qm...
//
// The package (or, without one, the container) leads the line, the stage follows it
// in brackets, an error attribute closes the message and everything else trails as
// key=value pairs.
type PrettyHandler struct {
	out    *termenv.Output
	level  slog.Leveler
	attrs  []slog.Attr
	prefix string
}

// NewPrettyHandler creates a PrettyHandler writing to w, or stderr when w is nil.
func NewPrettyHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyHandler {
	if w == nil {
		w = os.Stderr
	}
	var level slog.Leveler = slog.LevelInfo
	if opts != nil && opts.Level != nil {
		level = opts.Level
	}
	return &PrettyHandler{out: output.New(w), level: level}
}

// Enabled reports whether the handler handles records at the given level.
func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// line collects the parts of one record.
type line struct {
	subject string
	stage   string
	err     string
	rest    []string
}

func (l *line) add(attr slog.Attr) {
	attr.Value = attr.Value.Resolve()
	if attr.Value.Kind() == slog.KindGroup {
		for _, member := range attr.Value.Group() {
			if attr.Key != "" {
				member.Key = attr.Key + "." + member.Key
			}
			l.add(member)
		}
		return
	}

	value := attr.Value.String()
	switch {
	case attr.Key == keyPackage && l.subject == "":
		l.subject = value
	case attr.Key == keyContainer && l.subject == "":
		l.subject = value
	case attr.Key == keyStage && l.stage == "":
		l.stage = value
	case attr.Key == keyError && l.err == "":
		l.err = value
	default:
		l.rest = append(l.rest, attr.Key+"="+value)
	}
}

func (l *line) render(icon, msg string) string {
	var b strings.Builder
	if icon != "" {
		b.WriteString(icon + " ")
	}
	if l.subject != "" {
		b.WriteString(l.subject)
		if l.stage != "" {
			b.WriteString(" [" + l.stage + "]")
		}
		b.WriteString(": ")
	} else if l.stage != "" {
		b.WriteString("[" + l.stage + "] ")
	}
	b.WriteString(msg)
	if l.err != "" {
		b.WriteString(": " + l.err)
	}
	for _, part := range l.rest {
		b.WriteString(" " + part)
	}
	return b.String()
}

// Handle formats and writes the record.
//
//nolint:gocritic // slog.Handler interface requires slog.Record by value
func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	var icon string
	var color termenv.Color
	switch {
	case r.Level >= slog.LevelError:
		icon, color = style.Cross, termenv.RGBColor(string(style.Red))
	case r.Level >= slog.LevelWarn:
		icon, color = style.Warning, termenv.RGBColor(string(style.Yellow))
	default:
		color = termenv.RGBColor(string(style.Slate))
	}

	var l line
	for _, attr := range h.attrs {
		l.add(attr)
	}
	r.Attrs(func(attr slog.Attr) bool {
		attr.Key = h.prefix + attr.Key
		l.add(attr)
		return true
	})

	styled := h.out.String(l.render(icon, r.Message)).Foreground(color)
	_, err := h.out.WriteString(styled.String() + "\n")
	return err
}

// WithAttrs returns a new Handler with the given attributes appended, qualified by
// the groups opened so far.
func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := h.clone()
	for _, attr := range attrs {
		attr.Key = h.prefix + attr.Key
		next.attrs = append(next.attrs, attr)
	}
	return next
}

// WithGroup returns a new Handler that qualifies later attributes with name.
func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := h.clone()
	next.prefix = h.prefix + name + "."
	return next
}

func (h *PrettyHandler) clone() *PrettyHandler {
	return &PrettyHandler{
		out:    h.out,
		level:  h.level,
		attrs:  append([]slog.Attr(nil), h.attrs...),
		prefix: h.prefix,
	}
}

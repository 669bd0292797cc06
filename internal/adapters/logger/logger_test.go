package logger_test

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/pkgd/internal/adapters/logger"
	"go.trai.ch/zerr"
)

// newTestLogger creates a logger writing to a buffer without ANSI escape codes.
func newTestLogger(t *testing.T) (*logger.Logger, *bytes.Buffer) {
	t.Helper()
	t.Setenv("NO_COLOR", "1")

	buf := &bytes.Buffer{}
	lg := logger.New().(*logger.Logger)
	lg.SetOutput(buf)
	return lg, buf
}

func TestLogger_Levels(t *testing.T) {
	lg, buf := newTestLogger(t)

	lg.Debug("hidden")
	lg.Info("network ready", "network", "pkgd_net")
	lg.Warn("cached artifact is invalid", "package", "geth")

	assert.Equal(t, "network ready network=pkgd_net\n! geth: cached artifact is invalid\n", buf.String())
}

func TestLogger_SetVerbose(t *testing.T) {
	lg, buf := newTestLogger(t)
	lg.SetVerbose(true)

	lg.Debug("using cached artifact", "path", "/tmp/a.tar.xz")
	assert.Equal(t, "using cached artifact path=/tmp/a.tar.xz\n", buf.String())

	buf.Reset()
	lg.SetVerbose(false)
	lg.Debug("hidden")
	assert.Empty(t, buf.String())
}

func TestLogger_Error_Chain(t *testing.T) {
	lg, buf := newTestLogger(t)

	inner := errors.New("connection refused")
	middle := zerr.Wrap(inner, "registry call failed")
	outer := zerr.Wrap(middle, "cannot resolve geth")

	lg.Error(outer)

	out := buf.String()
	require.True(t, strings.HasPrefix(out, "✗ Error: cannot resolve geth"), out)
	assert.Contains(t, out, "Caused by:")
	assert.Contains(t, out, "→ registry call failed")
	assert.Contains(t, out, "→ connection refused")
}

func TestLogger_Error_Plain(t *testing.T) {
	lg, buf := newTestLogger(t)
	lg.Error(errors.New("boom"))

	assert.Equal(t, "✗ Error: boom\n", buf.String())
}

func TestLogger_Error_Nil(t *testing.T) {
	lg, buf := newTestLogger(t)
	lg.Error(nil)

	assert.Empty(t, buf.String())
}

func TestLogger_SetJSON(t *testing.T) {
	lg, buf := newTestLogger(t)
	lg.SetJSON(true)

	lg.Info("installed", "package", "geth")
	lg.Error(zerr.With(zerr.New("install failed"), "package", "geth"))

	out := buf.String()
	assert.Contains(t, out, `"level":"INFO"`)
	assert.Contains(t, out, `"package":"geth"`)
	assert.Contains(t, out, `"level":"ERROR"`)
	assert.Contains(t, out, "install failed")
	assert.NotContains(t, out, "✗")
}

func TestLogger_FormatSwitching(t *testing.T) {
	lg, buf := newTestLogger(t)

	lg.SetJSON(true)
	lg.Warn("json")
	assert.Contains(t, buf.String(), `"msg":"json"`)

	buf.Reset()
	lg.SetJSON(false)
	lg.Warn("pretty")
	assert.Equal(t, "! pretty\n", buf.String())
}

func TestLogger_ConcurrentAccess(t *testing.T) {
	lg, _ := newTestLogger(t)

	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			switch i % 4 {
			case 0:
				lg.Info("concurrent info")
			case 1:
				lg.Warn("concurrent warn")
			case 2:
				lg.SetJSON(i%8 == 2)
			default:
				lg.SetOutput(&bytes.Buffer{})
			}
		}()
	}
	wg.Wait()
}

func TestPrettyHandler_AttrsAndGroups(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	buf := &bytes.Buffer{}

	h := logger.NewPrettyHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo})
	lg := slog.New(h).With("package", "geth").WithGroup("net")
	lg.Info("attached", "ip", "172.33.1.2")

	assert.Equal(t, "geth: attached net.ip=172.33.1.2\n", buf.String())
}

func TestPrettyHandler_PackageLine(t *testing.T) {
	tests := []struct {
		name string
		args []any
		want string
	}{
		{
			name: "package stage and error",
			args: []any{"package", "geth.pkgd", "stage", "acquire", "error", errors.New("connection reset"), "attempt", 2},
			want: "! geth.pkgd [acquire]: transfer failed: connection reset attempt=2\n",
		},
		{
			name: "container without package",
			args: []any{"container", "pkgd-geth", "error", errors.New("address in use")},
			want: "! pkgd-geth: transfer failed: address in use\n",
		},
		{
			name: "package leads over container",
			args: []any{"container", "pkgd-geth", "package", "geth.pkgd"},
			want: "! geth.pkgd: transfer failed container=pkgd-geth\n",
		},
		{
			name: "stage only",
			args: []any{"stage", "network"},
			want: "! [network] transfer failed\n",
		},
		{
			name: "grouped keys stay plain attributes",
			args: []any{slog.Group("old", "package", "besu.pkgd")},
			want: "! transfer failed old.package=besu.pkgd\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("NO_COLOR", "1")
			buf := &bytes.Buffer{}
			slog.New(logger.NewPrettyHandler(buf, nil)).Warn("transfer failed", tt.args...)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestPrettyHandler_Levels(t *testing.T) {
	tests := []struct {
		name  string
		level slog.Level
		want  string
	}{
		{name: "info", level: slog.LevelInfo, want: "message\n"},
		{name: "warn", level: slog.LevelWarn, want: "! message\n"},
		{name: "error", level: slog.LevelError, want: "✗ message\n"},
		{name: "debug filtered", level: slog.LevelDebug, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("NO_COLOR", "1")
			buf := &bytes.Buffer{}
			lg := slog.New(logger.NewPrettyHandler(buf, nil))

			lg.Log(t.Context(), tt.level, "message")
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

func TestSetup_FileOnly_NoStdout(t *testing.T) {
	// Capture stdout to verify nothing is written there
	origStdout := captureStdout(t)

	var fileBuf bytes.Buffer
	m := NewSlogManager()
	m.Setup(Options{File: &fileBuf, Level: "info"})
	m.Logger().Info("hello file")

	stdout := origStdout()

	assert.Contains(t, fileBuf.String(), "hello file", "log should appear in file")
	// The "Logging initialized" message from Setup also goes to file, not stdout
	assert.Empty(t, stdout, "nothing should be written to stdout when file is provided")
}

func TestSetup_NoFile_WritesToStdout(t *testing.T) {
	origStdout := captureStdout(t)

	m := NewSlogManager()
	m.Setup(Options{Level: "info"})
	m.Logger().Info("hello console")

	stdout := origStdout()

	assert.Contains(t, stdout, "hello console", "log should appear on stdout")
}

func TestSetup_DebugLevel(t *testing.T) {
	var buf bytes.Buffer
	m := NewSlogManager()
	m.Setup(Options{File: &buf, Level: "debug"})

	m.Logger().Debug("debug msg")
	m.Logger().Info("info msg")

	output := buf.String()
	assert.Contains(t, output, "debug msg")
	assert.Contains(t, output, "info msg")
}

func TestSetup_InfoLevel_FiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	m := NewSlogManager()
	m.Setup(Options{File: &buf, Level: "info"})

	m.Logger().Debug("should be filtered")
	m.Logger().Info("should appear")

	output := buf.String()
	assert.NotContains(t, output, "should be filtered")
	assert.Contains(t, output, "should appear")
}

func TestSetup_ReplacesLogger(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	m := NewSlogManager()

	m.Setup(Options{File: &buf1, Level: "info"})
	m.Logger().Info("first")

	m.Setup(Options{File: &buf2, Level: "info"})
	m.Logger().Info("second")

	assert.Contains(t, buf1.String(), "first")
	assert.NotContains(t, buf1.String(), "second", "old file should not receive new logs")
	assert.Contains(t, buf2.String(), "second")
}

func TestLogger_DefaultBeforeSetup(t *testing.T) {
	m := NewSlogManager()
	logger := m.Logger()
	assert.Equal(t, slog.Default(), logger)
}

func TestFlush_NilProvider(t *testing.T) {
	m := NewSlogManager()
	err := m.Flush(context.Background())
	assert.NoError(t, err)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"trace", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"WARN", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"", slog.LevelInfo},
		{"invalid", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.input))
		})
	}
}

func textSink(name string, buf *bytes.Buffer, level slog.Level) Sink {
	return Sink{Name: name, Handler: slog.NewTextHandler(buf, &slog.HandlerOptions{Level: level})}
}

func TestMultiHandler_FansOut(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	multi := NewMultiHandler(textSink("a", &buf1, slog.LevelInfo), textSink("b", &buf2, slog.LevelInfo))
	slog.New(multi).Info("fanned out")

	assert.Contains(t, buf1.String(), "fanned out")
	assert.Contains(t, buf2.String(), "fanned out")
}

func TestMultiHandler_DropsEmptySinks(t *testing.T) {
	var buf bytes.Buffer
	multi := NewMultiHandler(Sink{Name: "gelf"}, textSink("text", &buf, slog.LevelInfo), Sink{Name: "otel"})
	assert.Equal(t, []string{"text"}, multi.Sinks())

	slog.New(multi).Info("works")
	assert.Contains(t, buf.String(), "works")
}

func TestMultiHandler_Enabled(t *testing.T) {
	info := textSink("info", &bytes.Buffer{}, slog.LevelInfo)
	debug := textSink("debug", &bytes.Buffer{}, slog.LevelDebug)

	infoOnly := NewMultiHandler(info)
	assert.False(t, infoOnly.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, infoOnly.Enabled(context.Background(), slog.LevelInfo))

	both := NewMultiHandler(info, debug)
	assert.True(t, both.Enabled(context.Background(), slog.LevelDebug))

	assert.False(t, NewMultiHandler().Enabled(context.Background(), slog.LevelError))
}

func TestMultiHandler_WithAttrsAndGroup(t *testing.T) {
	var buf bytes.Buffer
	multi := NewMultiHandler(textSink("text", &buf, slog.LevelInfo))

	slog.New(multi.WithAttrs([]slog.Attr{slog.Uint64("entry", 20808)})).Info("with attrs")
	assert.Contains(t, buf.String(), "entry=20808")

	slog.New(multi.WithGroup("path")).Info("grouped", "frame", 3)
	assert.Contains(t, buf.String(), "path.frame=3")

	assert.Same(t, multi, multi.WithGroup(""))
}

// errorHandler is a slog.Handler that always returns an error from Handle.
type errorHandler struct {
	slog.Handler
}

func (h *errorHandler) Handle(_ context.Context, _ slog.Record) error {
	return errors.New("connection refused")
}

func (h *errorHandler) Enabled(_ context.Context, _ slog.Level) bool {
	return true
}

func TestMultiHandler_FailingSinkIsReported(t *testing.T) {
	var buf bytes.Buffer
	multi := NewMultiHandler(Sink{Name: "gelf", Handler: &errorHandler{}}, textSink("text", &buf, slog.LevelInfo))

	r := slog.NewRecord(time.Now(), slog.LevelInfo, "should reach text", 0)
	err := multi.Handle(context.Background(), r)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "gelf sink: connection refused")
	assert.Contains(t, buf.String(), "should reach text")
}

func TestContextHandler_FlattensProviders(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(NewContextHandler(slog.NewTextHandler(&buf, nil), SessionContext("abc")))

	mapID := uint64(0)
	logger := With(base, nil, func() []slog.Attr { return []slog.Attr{slog.Uint64("map", mapID)} })
	h, ok := logger.Handler().(*ContextHandler)
	require.True(t, ok)
	assert.Len(t, h.providers, 2)
	_, nested := h.inner.(*ContextHandler)
	assert.False(t, nested)

	logger.Info("before")
	mapID = 1
	logger.Info("after")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "session=abc map=0")
	assert.Contains(t, lines[1], "session=abc map=1")
}

func TestContextHandler_WithAttrsKeepsProviders(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewContextHandler(slog.NewTextHandler(&buf, nil), SessionContext("abc")))

	logger.With("transport", "transport:1").WithGroup("").Info("tagged")
	assert.Contains(t, buf.String(), "transport=transport:1")
	assert.Contains(t, buf.String(), "session=abc")
}

func TestFlush_WithProvider(t *testing.T) {
	provider := sdklog.NewLoggerProvider() // no exporter, just validates non-nil path
	m := NewSlogManager()

	var buf bytes.Buffer
	m.Setup(Options{File: &buf, Level: "info", Provider: provider})

	err := m.Flush(context.Background())
	assert.NoError(t, err)
}

func TestSetup_WithOTelProvider(t *testing.T) {
	provider := sdklog.NewLoggerProvider()

	var buf bytes.Buffer
	m := NewSlogManager()
	m.Setup(Options{File: &buf, Level: "info", Provider: provider})

	m.Logger().Info("otel integrated")
	assert.Contains(t, buf.String(), "otel integrated")
}

// captureStdout redirects the console sink to a buffer and returns a
// function that restores it and returns what was captured.
func captureStdout(t *testing.T) func() string {
	t.Helper()

	var buf bytes.Buffer
	orig := stdout
	stdout = &buf

	return func() string {
		stdout = orig
		return buf.String()
	}
}

func TestSetup_Graylog(t *testing.T) {
	var file, gelf bytes.Buffer
	m := NewSlogManager()
	m.Setup(Options{File: &file, Level: "info", Graylog: &gelf})

	m.Logger().Info("to graylog", "entry", 20808)

	assert.Contains(t, gelf.String(), `"msg":"to graylog"`)
	assert.Contains(t, gelf.String(), `"entry":20808`)
}

func TestSetup_ContextProvider(t *testing.T) {
	var file bytes.Buffer
	m := NewSlogManager()
	m.Setup(Options{File: &file, Level: "info", Context: SessionContext("abc")})

	m.Logger().Info("tagged")
	assert.Contains(t, file.String(), "session=abc")
}

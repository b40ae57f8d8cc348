package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/OCAP2/transport/internal/dispatcher"
	"github.com/OCAP2/transport/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ dispatcher.Logger = (*DispatcherLogger)(nil)

func dispatcherLogger(level zerolog.Level) (*DispatcherLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	return NewDispatcherLogger(zerolog.New(&buf).Level(level)), &buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestDispatcherLogger_Levels(t *testing.T) {
	tests := []struct {
		level string
		log   func(*DispatcherLogger, string, ...any)
	}{
		{"debug", (*DispatcherLogger).Debug},
		{"info", (*DispatcherLogger).Info},
		{"error", (*DispatcherLogger).Error},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			dl, buf := dispatcherLogger(zerolog.DebugLevel)
			tt.log(dl, "handling event", "event", 1001, "entry", uint32(20808))

			entry := lastEntry(t, buf)
			assert.Equal(t, tt.level, entry["level"])
			assert.Equal(t, "handling event", entry["message"])
			assert.Equal(t, "dispatcher", entry["component"])
			assert.Equal(t, float64(1001), entry["event"])
			assert.Equal(t, float64(20808), entry["entry"])
		})
	}
}

func TestDispatcherLogger_Stringers(t *testing.T) {
	dl, buf := dispatcherLogger(zerolog.DebugLevel)
	dl.Error("event failed",
		"transport", core.MakeGUID(core.TypeTransport, 3),
		"kind", dispatcher.Departure,
		"error", errors.New("queue full"),
	)

	entry := lastEntry(t, buf)
	assert.Equal(t, "transport:3", entry["transport"])
	assert.Equal(t, "departure", entry["kind"])
	assert.Equal(t, "queue full", entry["error"])
}

func TestDispatcherLogger_MalformedPairs(t *testing.T) {
	dl, buf := dispatcherLogger(zerolog.DebugLevel)
	dl.Info("odd", 42, "skipped", "event", 7, "dangling")

	entry := lastEntry(t, buf)
	assert.Equal(t, float64(7), entry["event"])
	assert.NotContains(t, entry, "dangling")
	assert.NotContains(t, entry, "42")
}

func TestDispatcherLogger_DisabledLevel(t *testing.T) {
	dl, buf := dispatcherLogger(zerolog.InfoLevel)
	dl.Debug("hidden", "event", 1)
	assert.Empty(t, buf.String())

	dl.Info("shown")
	assert.Equal(t, "shown", lastEntry(t, buf)["message"])
}

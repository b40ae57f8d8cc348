package logging

import (
	"fmt"

	"github.com/rs/zerolog"
)

// DispatcherLogger adapts a zerolog.Logger to dispatcher.Logger. Records
// are tagged component=dispatcher, and Stringer values such as GUIDs and
// event kinds are written in their string form.
type DispatcherLogger struct {
	logger zerolog.Logger
}

func NewDispatcherLogger(logger zerolog.Logger) *DispatcherLogger {
	return &DispatcherLogger{logger: logger.With().Str("component", "dispatcher").Logger()}
}

func (l *DispatcherLogger) Debug(msg string, keysAndValues ...any) {
	write(l.logger.Debug(), msg, keysAndValues)
}

func (l *DispatcherLogger) Info(msg string, keysAndValues ...any) {
	write(l.logger.Info(), msg, keysAndValues)
}

func (l *DispatcherLogger) Error(msg string, keysAndValues ...any) {
	write(l.logger.Error(), msg, keysAndValues)
}

// write skips the field conversion when the level is disabled.
func write(e *zerolog.Event, msg string, keysAndValues []any) {
	if e == nil {
		return
	}
	e.Fields(fields(keysAndValues)).Msg(msg)
}

// fields keeps the string-keyed pairs. A trailing key without a value is
// dropped.
func fields(keysAndValues []any) []any {
	out := make([]any, 0, len(keysAndValues))
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		v := keysAndValues[i+1]
		if _, isErr := v.(error); !isErr {
			if s, ok := v.(fmt.Stringer); ok {
				v = s.String()
			}
		}
		out = append(out, key, v)
	}
	return out
}

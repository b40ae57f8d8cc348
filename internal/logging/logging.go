// Package logging sets up the slog and zerolog loggers of the daemon.
package logging

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"
)

// LogFilePath builds a log file path using OS-appropriate path separators.
func LogFilePath(logsDir, name string, sessionStart time.Time) string {
	return filepath.Join(
		logsDir,
		fmt.Sprintf("%s.%s.log", name, sessionStart.Format("20060102_150405")),
	)
}

// SessionContext returns a provider that tags records with the session id.
func SessionContext(sessionID string) ContextProvider {
	return func() []slog.Attr {
		return []slog.Attr{slog.String("session", sessionID)}
	}
}

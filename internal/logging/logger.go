// v0
// internal/logging/logger.go
package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// ParseLevel maps debug/info/warn/error to a slog level. Anything else is info.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Init returns a text logger writing to stdout and to the file at path.
// The returned closer releases the file; it is a no-op when the file could
// not be opened and the logger fell back to stdout only.
func Init(path, level string) (*slog.Logger, io.Closer) {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if dir := filepath.Dir(path); dir != "." {
		_ = os.MkdirAll(dir, 0o755)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger := slog.New(slog.NewTextHandler(os.Stdout, opts))
		logger.Error("failed to open log file; falling back to stdout only", "path", path, "error", err)
		return logger, io.NopCloser(nil)
	}
	mw := io.MultiWriter(os.Stdout, f)
	log.SetOutput(mw)
	return slog.New(slog.NewTextHandler(mw, opts)), f
}

// Discard is the logger used by tests and library defaults.
func Discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

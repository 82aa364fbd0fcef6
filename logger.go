package hamtree

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with forest-specific helpers.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000),
	}))
}

// WithDir adds the forest directory to the logger.
func (l *Logger) WithDir(dir string) *Logger {
	return &Logger{Logger: l.Logger.With("dir", dir)}
}

// WithRoot adds a root index field to the logger.
func (l *Logger) WithRoot(root RootIndex) *Logger {
	return &Logger{Logger: l.Logger.With("root", uint32(root))}
}

// LogCreate logs forest creation.
func (l *Logger) LogCreate(dir string, keyType string, err error) {
	if err != nil {
		l.Error("create failed", "dir", dir, "key_type", keyType, "error", err)
		return
	}
	l.Info("forest created", "dir", dir, "key_type", keyType)
}

// LogOpen logs opening a forest.
func (l *Logger) LogOpen(dir string, records int64, readOnly bool, err error) {
	if err != nil {
		l.Error("open failed", "dir", dir, "error", err)
		return
	}
	l.Info("forest opened", "dir", dir, "records", records, "read_only", readOnly)
}

// LogClose logs closing a forest.
func (l *Logger) LogClose(dir string, err error) {
	if err != nil {
		l.Error("close failed", "dir", dir, "error", err)
		return
	}
	l.Info("forest closed", "dir", dir)
}

// LogPush logs a push.
func (l *Logger) LogPush(root, next RootIndex, err error) {
	if err != nil {
		l.Error("push failed", "root", uint32(root), "error", err)
		return
	}
	l.Debug("push completed", "root", uint32(root), "new_root", uint32(next))
}

// LogFind logs a lookup.
func (l *Logger) LogFind(root RootIndex, found bool, err error) {
	if err != nil {
		l.Error("find failed", "root", uint32(root), "error", err)
		return
	}
	l.Debug("find completed", "root", uint32(root), "found", found)
}

// LogSave logs the commit of one push.
func (l *Logger) LogSave(stats SaveStats, duration time.Duration) {
	l.Debug("save completed",
		"nodes", stats.Nodes,
		"deduplicated", stats.Deduplicated,
		"records", stats.Records,
		"duration", duration,
	)
}

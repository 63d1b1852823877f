package logger

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	maxLogSizeMB  = 10
	maxLogBackups = 5
	maxLogAgeDays = 28
)

// Setup installs a text slog handler as the default logger.
func Setup(w io.Writer, debug bool) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	logger := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// Output returns stdout, teed into a size-rotated file when logFile is set.
// The returned closer must be called on shutdown.
func Output(logFile string) (io.Writer, io.Closer) {
	if logFile == "" {
		return os.Stdout, io.NopCloser(nil)
	}

	rotated := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    maxLogSizeMB,
		MaxBackups: maxLogBackups,
		MaxAge:     maxLogAgeDays,
		Compress:   true,
	}
	return io.MultiWriter(os.Stdout, rotated), rotated
}

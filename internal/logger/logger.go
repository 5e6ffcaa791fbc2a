package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	slogmulti "github.com/samber/slog-multi"
)

type Options struct {
	Verbose bool
	// LogFile, when set, receives a JSON copy of every record
	LogFile string
}

// NewLogger builds the process logger: coloured text on stderr, plus an
// optional JSON file. The returned closer releases the log file.
func NewLogger(opts Options) (*slog.Logger, io.Closer, error) {
	return newLogger(os.Stderr, opts)
}

func newLogger(console *os.File, opts Options) (*slog.Logger, io.Closer, error) {
	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}

	handler := tint.NewHandler(console, &tint.Options{
		Level:   level,
		NoColor: !isatty.IsTerminal(console.Fd()),
	})

	if opts.LogFile == "" {
		return slog.New(handler), nopCloser{}, nil
	}

	f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	fanout := slogmulti.Fanout(
		handler,
		slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}),
	)
	return slog.New(fanout), f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func Fatal(logger *slog.Logger, msg string, args ...interface{}) {
	logger.Error(msg, args...)
	os.Exit(1)
}

package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

var Logger = slog.Default()

type Options struct {
	Level string // DEBUG, INFO, WARN or ERROR
	File  string // rotated log file, empty for stdout only
}

// ParseLevel maps a level name to slog. Unknown names are INFO.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init installs the process logger: text to stdout and, when File is set, to
// a rotating file (2 MB, 3 backups).
func Init(opts Options) io.Closer {
	var out io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}
	var fileErr error

	if opts.File != "" {
		if fileErr = os.MkdirAll(filepath.Dir(opts.File), 0o755); fileErr == nil {
			rot := &lumberjack.Logger{
				Filename:   opts.File,
				MaxSize:    2,
				MaxBackups: 3,
			}
			out = io.MultiWriter(os.Stdout, rot)
			closer = rot
		}
	}

	Logger = New(out, ParseLevel(opts.Level))
	slog.SetDefault(Logger)
	if fileErr != nil {
		Warn("log file disabled, logging to stdout only", "path", opts.File, "err", fileErr)
	}
	return closer
}

func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

func Error(msg string, args ...any) {
	Logger.Error(msg, args...)
}

func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

func Warn(msg string, args ...any) {
	Logger.Warn(msg, args...)
}

// Package logging provides the slog backed logger of the executables.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Logger sends informational messages to a bracketed text stream and
// errors to a JSON stream.
type Logger struct {
	InfoLog  *slog.Logger
	ErrorLog *slog.Logger
}

func New(info io.Writer, errs io.Writer) Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}
	return Logger{
		InfoLog:  slog.New(NewHandler(info, opts)),
		ErrorLog: slog.New(slog.NewJSONHandler(errs, opts)),
	}
}

// NewStd logs info to stdout and errors to stderr.
func NewStd() Logger {
	return New(os.Stdout, os.Stderr)
}

func (l Logger) Info(message string, module string) {
	l.InfoLog.Info(message, "module", module)
}

func (l Logger) Error(message string) {
	l.ErrorLog.Error(message)
}

// logutil.go - slog-Konfiguration fuer captioner
//
// Enthaelt:
// - LevelTrace: Log-Level unterhalb von Debug
// - NewLogger: Text-Logger mit Quellangabe ab Debug
// - Trace, TraceContext: Hilfsfunktionen fuer Trace-Ausgaben
package logutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
)

// LevelTrace liegt unterhalb von slog.LevelDebug
const LevelTrace slog.Level = -8

// NewLogger erstellt einen Text-Logger fuer w mit dem gegebenen Level.
// Ab Debug wird die Quelldatei mitgeloggt.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.LevelKey:
				if lvl, ok := attr.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					attr.Value = slog.StringValue("TRACE")
				}
			case slog.SourceKey:
				if source, ok := attr.Value.Any().(*slog.Source); ok {
					source.File = filepath.Base(source.File)
				}
			}
			return attr
		},
	}))
}

// Trace loggt auf LevelTrace ueber den Default-Logger
func Trace(msg string, args ...any) {
	TraceContext(context.TODO(), msg, args...)
}

// TraceContext loggt auf LevelTrace mit Context
func TraceContext(ctx context.Context, msg string, args ...any) {
	slog.Log(ctx, LevelTrace, msg, args...)
}

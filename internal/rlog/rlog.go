// Package rlog abstracts the structured logger the bridge's components take
// as a collaborator.
//
// The narrow interface is modeled on the teacher-adjacent bassosimone-nop's
// SLogger so *slog.Logger satisfies it directly, with a discarding default
// so a component constructed without an explicit logger never writes to
// stdout — stdout is the MCP stdio transport's wire, and writing to it
// outside of framed JSON-RPC responses would corrupt the protocol. The
// bridge's default construction (FromZap) is backed by go.uber.org/zap,
// grounded on kdlbs-kandev's internal/common/logger package.
package rlog

import (
	"log/slog"

	"go.uber.org/zap"
)

// Logger is the logging surface every component takes at construction.
//
// Two extra levels beyond bassosimone-nop's Debug/Info: Warn, for
// operator-visible degraded conditions (trap-context fallback, truncated
// values, partial breakpoint restore) the bridge must still surface per
// spec §9's "fail-fast or degrade is an explicit product choice" — this
// bridge chooses degrade-with-warning — and Error, for conditions the
// reaper and disconnect paths swallow internally but still want on record.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Default returns a no-op Logger that discards everything.
func Default() Logger { return discard{} }

// FromSlog adapts a *slog.Logger to Logger.
func FromSlog(l *slog.Logger) Logger { return slogAdapter{l} }

// FromZap adapts a *zap.Logger to Logger via its sugared form, whose
// Debugw/Infow/Warnw/Errorw methods already take the same
// msg-then-alternating-key-value shape this interface does.
func FromZap(l *zap.Logger) Logger { return zapAdapter{l.Sugar()} }

type discard struct{}

func (discard) Debug(string, ...any) {}
func (discard) Info(string, ...any)  {}
func (discard) Warn(string, ...any)  {}
func (discard) Error(string, ...any) {}

type slogAdapter struct{ l *slog.Logger }

func (s slogAdapter) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s slogAdapter) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s slogAdapter) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s slogAdapter) Error(msg string, args ...any) { s.l.Error(msg, args...) }

type zapAdapter struct{ l *zap.SugaredLogger }

func (z zapAdapter) Debug(msg string, args ...any) { z.l.Debugw(msg, args...) }
func (z zapAdapter) Info(msg string, args ...any)  { z.l.Infow(msg, args...) }
func (z zapAdapter) Warn(msg string, args ...any)  { z.l.Warnw(msg, args...) }
func (z zapAdapter) Error(msg string, args ...any) { z.l.Errorw(msg, args...) }

// With returns a Logger with the given key/value pairs attached to every
// subsequent call, when the underlying logger supports it (slog- and
// zap-backed loggers do; the discard logger is a no-op either way).
func With(l Logger, args ...any) Logger {
	switch v := l.(type) {
	case slogAdapter:
		return slogAdapter{v.l.With(args...)}
	case zapAdapter:
		return zapAdapter{v.l.With(args...)}
	}
	return l
}

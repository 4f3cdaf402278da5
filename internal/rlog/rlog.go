// Package rlog is the engine's structured logger. It mirrors the key-value
// call shape go-ethereum's log package uses throughout the codebase
// (log.Info("message", "key", value, ...)), built on log/slog so records are
// leveled and attributable, with colorized console output when attached to a
// terminal.
package rlog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Logger is the engine-wide structured logger handle. A zero value is not
// usable; construct one with New or use the package-level default.
type Logger struct {
	slog *slog.Logger
	tty  bool
}

var (
	levelColor = map[slog.Level]*color.Color{
		slog.LevelDebug: color.New(color.FgHiBlack),
		slog.LevelInfo:  color.New(color.FgGreen),
		slog.LevelWarn:  color.New(color.FgYellow),
		slog.LevelError: color.New(color.FgRed),
	}
	critColor = color.New(color.FgHiRed, color.Bold)
)

// New builds a Logger writing to w. Color is enabled automatically when w is
// a terminal (detected via go-isatty), matching go-ethereum's console handler.
func New(w io.Writer, level slog.Level) *Logger {
	tty := false
	if f, ok := w.(*os.File); ok {
		tty = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	out := w
	if tty {
		out = colorable.NewColorable(w.(*os.File))
	}
	h := slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	return &Logger{slog: slog.New(h), tty: tty}
}

var std = New(os.Stderr, slog.LevelInfo)

// SetDefault replaces the package-level default logger.
func SetDefault(l *Logger) { std = l }

func (l *Logger) log(level slog.Level, msg string, kv ...any) {
	if l.tty {
		if c, ok := levelColor[level]; ok {
			msg = c.Sprint(levelTag(level)) + " " + time.Now().Format("15:04:05.000") + " " + msg
		}
	}
	l.slog.Log(nil, level, msg, kv...)
}

func levelTag(level slog.Level) string {
	switch level {
	case slog.LevelDebug:
		return "DEBG"
	case slog.LevelInfo:
		return "INFO"
	case slog.LevelWarn:
		return "WARN"
	case slog.LevelError:
		return "EROR"
	default:
		return "????"
	}
}

// Debug logs at debug level with key-value pairs.
func (l *Logger) Debug(msg string, kv ...any) { l.log(slog.LevelDebug, msg, kv...) }

// Info logs at info level with key-value pairs.
func (l *Logger) Info(msg string, kv ...any) { l.log(slog.LevelInfo, msg, kv...) }

// Warn logs at warn level with key-value pairs.
func (l *Logger) Warn(msg string, kv ...any) { l.log(slog.LevelWarn, msg, kv...) }

// Error logs at error level with key-value pairs.
func (l *Logger) Error(msg string, kv ...any) { l.log(slog.LevelError, msg, kv...) }

// Crit logs at error level, tagged critical, then terminates the process.
func (l *Logger) Crit(msg string, kv ...any) {
	tagged := critColor.Sprint("CRIT") + " " + msg
	l.slog.Log(nil, slog.LevelError, tagged, kv...)
	os.Exit(1)
}

// Package-level convenience wrappers delegating to the default logger.

func Debug(msg string, kv ...any) { std.Debug(msg, kv...) }
func Info(msg string, kv ...any)  { std.Info(msg, kv...) }
func Warn(msg string, kv ...any)  { std.Warn(msg, kv...) }
func Error(msg string, kv ...any) { std.Error(msg, kv...) }
func Crit(msg string, kv ...any)  { std.Crit(msg, kv...) }

// ParseLevel maps a textual level name (Config.LogLevel) to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("rlog: unknown level %q", s)
	}
}

// Package log provides a small leveled logger for command-line use. A Logger
// is constructed once at startup from verbosity flags and passed explicitly
// to the components that need it; a nil *Logger discards everything.
package log

import (
	"fmt"
	"io"
	"os"
	"time"
)

type Level int

const (
	LevelNone    Level = iota // Disables logging.
	LevelError                // Logs anomalies that are not expected to occur during normal use.
	LevelWarning              // Logs anomalies that are expected to occur occasionally during normal use.
	LevelInfo                 // Logs major events.
	LevelDebug                // Logs detailed IO
)

var labels = map[Level]string{
	LevelDebug:   "[debug]",
	LevelInfo:    "[info ]",
	LevelWarning: "[warn ]",
	LevelError:   "[error]",
}

// Logger writes timestamped, level-filtered messages to a single destination.
type Logger struct {
	level Level
	out   io.Writer
}

func New(level Level) *Logger {
	return &Logger{level: level, out: os.Stderr}
}

// NewWithOutput is intended for tests that need to capture log output.
func NewWithOutput(level Level, out io.Writer) *Logger {
	return &Logger{level: level, out: out}
}

func (l *Logger) log(level Level, format string, a ...interface{}) {
	if l == nil || level > l.level {
		return
	}
	msg := fmt.Sprintf("%s %s ", time.Now().Format(time.RFC3339), labels[level])
	msg += fmt.Sprintf(format, a...)
	fmt.Fprintln(l.out, msg)
}

func (l *Logger) Debug(format string, a ...interface{}) {
	l.log(LevelDebug, format, a...)
}
func (l *Logger) Info(format string, a ...interface{}) {
	l.log(LevelInfo, format, a...)
}
func (l *Logger) Warning(format string, a ...interface{}) {
	l.log(LevelWarning, format, a...)
}
func (l *Logger) Error(format string, a ...interface{}) {
	l.log(LevelError, format, a...)
}

// Package logger prints leveled console diagnostics.
//
// Infof is for messages the user asked for (results of a command, decrypted
// key counts). Debugf is for background diagnostics that are only shown when
// Verbose is set. Quiet silences everything except Errorf.
package logger

import (
	"fmt"
	"io"
	"os"

	"github.com/xmazu/cryptoenv/internal/tui"
)

const (
	EnvNoLogs    = "NO_LOGS"
	EnvAlwaysLog = "ALWAYS_LOG"
)

type Logger struct {
	Out     io.Writer
	Quiet   bool
	Verbose bool
}

// New returns a logger writing to stderr, honoring NO_LOGS and ALWAYS_LOG.
func New() *Logger {
	return &Logger{
		Out:     os.Stderr,
		Quiet:   os.Getenv(EnvNoLogs) != "",
		Verbose: os.Getenv(EnvAlwaysLog) != "",
	}
}

// Discard returns a logger that drops every message.
func Discard() *Logger {
	return &Logger{Out: io.Discard, Quiet: true}
}

func (l *Logger) out() io.Writer {
	if l.Out == nil {
		return os.Stderr
	}
	return l.Out
}

func (l *Logger) Infof(msg string, args ...any) {
	if l == nil || l.Quiet {
		return
	}
	fmt.Fprintf(l.out(), msg+"\n", args...)
}

func (l *Logger) Debugf(msg string, args ...any) {
	if l == nil || l.Quiet || !l.Verbose {
		return
	}
	fmt.Fprintln(l.out(), tui.Muted(fmt.Sprintf(msg, args...)))
}

func (l *Logger) Warnf(msg string, args ...any) {
	if l == nil || l.Quiet {
		return
	}
	fmt.Fprintln(l.out(), tui.Warning("warning: ")+fmt.Sprintf(msg, args...))
}

func (l *Logger) Errorf(msg string, args ...any) {
	if l == nil {
		return
	}
	fmt.Fprintln(l.out(), tui.Error("error: ")+fmt.Sprintf(msg, args...))
}

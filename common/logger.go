package common

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Severity orders diagnostic messages from chattiest to most urgent.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "DEBUG"
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger receives the diagnostics of the fabric build steps and the cycle
// engines: shadow balancing decisions at debug level, lister and simulator
// progress at info, and degraded-but-continuing conditions (an overlap
// limit that cannot be met) at warning. Components take a Logger in their
// Config and default to the no-op implementation.
type Logger interface {
	// Log logs a message with the specified severity.
	Log(severity Severity, msg string)

	// Logf logs a formatted message with the specified severity.
	Logf(severity Severity, format string, args ...interface{})

	// Error logs an error. A nil error is ignored.
	Error(err error)

	// Debug logs a debug message.
	Debug(msg string)

	// Info logs an info message.
	Info(msg string)

	// Warning logs a warning message.
	Warning(msg string)
}

// StdLogger writes diagnostics through Go's standard logger, errors to one
// destination and everything else to another, each line prefixed with its
// severity. Messages below the minimum level are dropped.
type StdLogger struct {
	out      *log.Logger
	err      *log.Logger
	minLevel Severity
}

// NewStdLogger returns a logger writing to stdout and stderr.
func NewStdLogger(minLevel Severity) *StdLogger {
	return NewStdLoggerWithWriter(os.Stdout, os.Stderr, minLevel)
}

// NewStdLoggerWithWriter returns a logger writing to the given
// destinations, so tests can capture the output.
func NewStdLoggerWithWriter(stdout, stderr io.Writer, minLevel Severity) *StdLogger {
	return &StdLogger{
		out:      log.New(stdout, "", log.Ltime),
		err:      log.New(stderr, "", log.Ltime),
		minLevel: minLevel,
	}
}

// Log writes msg when severity reaches the minimum level. Errors go to
// the error destination, all other severities to the regular one.
func (l *StdLogger) Log(severity Severity, msg string) {
	if severity < l.minLevel {
		return
	}
	dst := l.out
	if severity >= SeverityError {
		dst = l.err
	}
	dst.Output(2, severity.String()+": "+msg)
}

// Logf formats and logs a message with the specified severity.
func (l *StdLogger) Logf(severity Severity, format string, args ...interface{}) {
	l.Log(severity, fmt.Sprintf(format, args...))
}

// Error logs an error at error severity. A nil error is ignored.
func (l *StdLogger) Error(err error) {
	if err != nil {
		l.Log(SeverityError, err.Error())
	}
}

// Debug logs a debug message.
func (l *StdLogger) Debug(msg string) {
	l.Log(SeverityDebug, msg)
}

// Info logs an info message.
func (l *StdLogger) Info(msg string) {
	l.Log(SeverityInfo, msg)
}

// Warning logs a warning message.
func (l *StdLogger) Warning(msg string) {
	l.Log(SeverityWarning, msg)
}

// NoOpLogger discards every message. It is the default of every component
// Config, keeping library builds silent unless a caller asks otherwise.
type NoOpLogger struct{}

// NewNoOpLogger returns a logger that discards everything.
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

// Log does nothing.
func (l *NoOpLogger) Log(severity Severity, msg string) {}

// Logf does nothing.
func (l *NoOpLogger) Logf(severity Severity, format string, args ...interface{}) {}

// Error does nothing.
func (l *NoOpLogger) Error(err error) {}

// Debug does nothing.
func (l *NoOpLogger) Debug(msg string) {}

// Info does nothing.
func (l *NoOpLogger) Info(msg string) {}

// Warning does nothing.
func (l *NoOpLogger) Warning(msg string) {}

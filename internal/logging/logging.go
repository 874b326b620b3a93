package logging

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// LevelDebug is the debug log level
	LevelDebug LogLevel = iota
	// LevelInfo is the info log level
	LevelInfo
	// LevelWarn is the warning log level
	LevelWarn
	// LevelError is the error log level
	LevelError
)

var (
	currentLevel LogLevel
	levelOnce    sync.Once
)

// initLevel initializes the log level from environment variables
func initLevel() {
	levelOnce.Do(func() {
		currentLevel = ParseLevel(os.Getenv("LOG_LEVEL"))

		// DEBUG=1 wins over LOG_LEVEL
		switch strings.ToLower(os.Getenv("DEBUG")) {
		case "1", "true", "yes", "on":
			currentLevel = LevelDebug
		}
	})
}

// ParseLevel converts a level name to a LogLevel. Unknown names map to
// LevelInfo.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// GetLevel returns the current log level
func GetLevel() LogLevel {
	initLevel()
	return currentLevel
}

// IsDebugEnabled returns true if debug logging is enabled
func IsDebugEnabled() bool {
	return GetLevel() <= LevelDebug
}

func logf(level LogLevel, tag, format string, args ...interface{}) {
	if GetLevel() <= level {
		log.Printf("["+tag+"] "+format, args...)
	}
}

// Debug logs a debug message (only if DEBUG=true or LOG_LEVEL=debug)
func Debug(format string, args ...interface{}) {
	logf(LevelDebug, "DEBUG", format, args...)
}

// Info logs an info message
func Info(format string, args ...interface{}) {
	logf(LevelInfo, "INFO", format, args...)
}

// Warn logs a warning message
func Warn(format string, args ...interface{}) {
	logf(LevelWarn, "WARN", format, args...)
}

// Error logs an error message
func Error(format string, args ...interface{}) {
	logf(LevelError, "ERROR", format, args...)
}

// Fatal logs an error message and exits
func Fatal(format string, args ...interface{}) {
	log.Fatalf("[FATAL] "+format, args...)
}

// Printf is a pass-through to log.Printf for messages that should always print
func Printf(format string, args ...interface{}) {
	log.Printf(format, args...)
}

// Logger prefixes messages with a component name and optional request ID.
// The zero value logs without a prefix.
type Logger struct {
	prefix string
}

// Component returns a logger for the named component.
func Component(name string) *Logger {
	return &Logger{prefix: name + ": "}
}

// With returns a copy of l that also tags lines with id.
func (l *Logger) With(id string) *Logger {
	if l == nil {
		return &Logger{prefix: "[" + id + "] "}
	}
	return &Logger{prefix: l.prefix + "[" + id + "] "}
}

func (l *Logger) p() string {
	if l == nil {
		return ""
	}
	return l.prefix
}

// Debug logs a debug message with the logger's prefix
func (l *Logger) Debug(format string, args ...interface{}) { Debug(l.p()+format, args...) }

// Info logs an info message with the logger's prefix
func (l *Logger) Info(format string, args ...interface{}) { Info(l.p()+format, args...) }

// Warn logs a warning with the logger's prefix
func (l *Logger) Warn(format string, args ...interface{}) { Warn(l.p()+format, args...) }

// Error logs an error with the logger's prefix
func (l *Logger) Error(format string, args ...interface{}) { Error(l.p()+format, args...) }

// String returns the string representation of a log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return fmt.Sprintf("unknown(%d)", l)
	}
}

// SPDX-FileCopyrightText: © 2025 Nfrastack <code@nfrastack.com>
//
// SPDX-License-Identifier: BSD-3-Clause

// Package log provides unified logging functionality for the application
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Log levels
const (
	LevelError   = "error"
	LevelWarn    = "warn"
	LevelInfo    = "info"
	LevelVerbose = "verbose"
	LevelDebug   = "debug"
	LevelTrace   = "trace"
)

// levelRank orders levels from most to least severe
var levelRank = map[string]int{
	LevelError:   0,
	LevelWarn:    1,
	LevelInfo:    2,
	LevelVerbose: 3,
	LevelDebug:   4,
	LevelTrace:   5,
}

const timestampFormat = "2006-01-02 15:04:05"

// Logger provides logging functionality for the application
type Logger struct {
	mu             sync.Mutex
	out            io.Writer
	errOut         io.Writer
	file           *dailyFile
	level          string
	showTimestamps bool
	now            func() time.Time
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// Initialize creates the default logger with the specified level
func Initialize(level string, timestamps bool) {
	once.Do(func() {
		defaultLogger = NewLogger(level, timestamps)
	})
}

// GetLogger returns the default logger instance
func GetLogger() *Logger {
	once.Do(func() {
		// Default to info if not initialized
		defaultLogger = NewLogger(os.Getenv("LOG_LEVEL"), true)
	})
	return defaultLogger
}

// NewLogger creates a new console logger with the specified level
func NewLogger(level string, timestamps bool) *Logger {
	return &Logger{
		out:            os.Stdout,
		errOut:         os.Stderr,
		level:          normalizeLevel(level),
		showTimestamps: timestamps,
		now:            time.Now,
	}
}

func normalizeLevel(level string) string {
	level = strings.ToLower(strings.TrimSpace(level))
	if _, ok := levelRank[level]; !ok {
		return LevelInfo
	}
	return level
}

// SetOutput replaces the console writers
func (l *Logger) SetOutput(out, errOut io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = out
	l.errOut = errOut
}

// SetLogFile mirrors all output into a file. A "{date}" placeholder in the
// path is replaced by the current day, producing one file per day.
func (l *Logger) SetLogFile(pattern string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
	if pattern == "" {
		return nil
	}
	f := &dailyFile{pattern: pattern, now: l.now}
	if _, err := f.current(); err != nil {
		return fmt.Errorf("[log] failed to open log file: %w", err)
	}
	l.file = f
	return nil
}

// Close releases the log file, if any
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// SetLevel sets the logger level
func (l *Logger) SetLevel(level string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = normalizeLevel(level)
}

// GetLevel returns the current logger level
func (l *Logger) GetLevel() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

// SetShowTimestamps toggles the timestamp prefix
func (l *Logger) SetShowTimestamps(show bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.showTimestamps = show
}

// Enabled reports whether messages at level would be written
func (l *Logger) Enabled(level string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return levelRank[level] <= levelRank[l.level]
}

func (l *Logger) write(level, tag, message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if levelRank[level] > levelRank[l.level] {
		return
	}
	l.emit(level, tag, message)
}

// emit writes unconditionally, callers hold l.mu
func (l *Logger) emit(level, tag, message string) {
	line := fmt.Sprintf("%s %s\n", tag, message)
	stamped := fmt.Sprintf("%s %s", l.now().Format(timestampFormat), line)
	if l.showTimestamps {
		line = stamped
	}

	w := l.out
	if level == LevelError {
		w = l.errOut
	}
	io.WriteString(w, line)

	if l.file != nil {
		if f, err := l.file.current(); err == nil {
			// files always carry timestamps
			io.WriteString(f, stamped)
		}
	}
}

// Trace logs a trace message with optional formatting
func (l *Logger) Trace(format string, args ...interface{}) {
	l.write(LevelTrace, "TRACE", fmt.Sprintf(format, args...))
}

// Debug logs a debug message with optional formatting
func (l *Logger) Debug(format string, args ...interface{}) {
	l.write(LevelDebug, "DEBUG", fmt.Sprintf(format, args...))
}

// Verbose logs a verbose message with optional formatting
func (l *Logger) Verbose(format string, args ...interface{}) {
	l.write(LevelVerbose, "VERBOSE", fmt.Sprintf(format, args...))
}

// Info logs an info message with optional formatting
func (l *Logger) Info(format string, args ...interface{}) {
	l.write(LevelInfo, "INFO", fmt.Sprintf(format, args...))
}

// Warn logs a warning message with optional formatting
func (l *Logger) Warn(format string, args ...interface{}) {
	l.write(LevelWarn, "WARN", fmt.Sprintf(format, args...))
}

// Error logs an error message with optional formatting
func (l *Logger) Error(format string, args ...interface{}) {
	l.write(LevelError, "ERROR", fmt.Sprintf(format, args...))
}

// Fatal logs an error message and exits the program
func (l *Logger) Fatal(format string, args ...interface{}) {
	l.write(LevelError, "FATAL", fmt.Sprintf(format, args...))
	os.Exit(1)
}

// Action records an operator action. Actions are audit entries and are
// written regardless of the configured level.
func (l *Logger) Action(conversationID, action, details string) {
	message := fmt.Sprintf("User: %s | Action: %s", conversationID, action)
	if details != "" {
		message += " | Details: " + details
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.emit(LevelInfo, "ACTION", message)
}

// Helper functions that use the default logger

// Trace logs a trace message with the default logger
func Trace(format string, args ...interface{}) {
	GetLogger().Trace(format, args...)
}

// Debug logs a debug message with the default logger
func Debug(format string, args ...interface{}) {
	GetLogger().Debug(format, args...)
}

// Verbose logs a verbose message with the default logger
func Verbose(format string, args ...interface{}) {
	GetLogger().Verbose(format, args...)
}

// Info logs an info message with the default logger
func Info(format string, args ...interface{}) {
	GetLogger().Info(format, args...)
}

// Warn logs a warning message with the default logger
func Warn(format string, args ...interface{}) {
	GetLogger().Warn(format, args...)
}

// Error logs an error message with the default logger
func Error(format string, args ...interface{}) {
	GetLogger().Error(format, args...)
}

// Fatal logs an error message with the default logger and exits
func Fatal(format string, args ...interface{}) {
	GetLogger().Fatal(format, args...)
}

// Action records an operator action with the default logger
func Action(conversationID, action, details string) {
	GetLogger().Action(conversationID, action, details)
}

// GetTimestampsEnabled reports whether the default logger prints timestamps
func GetTimestampsEnabled() bool {
	l := GetLogger()
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.showTimestamps
}

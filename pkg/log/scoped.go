// SPDX-FileCopyrightText: © 2025 Nfrastack <code@nfrastack.com>
//
// SPDX-License-Identifier: BSD-3-Clause

package log

import (
	"fmt"
)

// ScopedLogger provides logging with a component prefix and an optional
// component-specific log level
type ScopedLogger struct {
	prefix   string
	logLevel string
	base     *Logger
}

// NewScopedLogger creates a new scoped logger on top of the default logger
func NewScopedLogger(prefix, logLevel string) *ScopedLogger {
	return &ScopedLogger{
		prefix:   prefix,
		logLevel: logLevel,
	}
}

// WithLogger binds the scoped logger to a specific base logger
func (s *ScopedLogger) WithLogger(base *Logger) *ScopedLogger {
	return &ScopedLogger{prefix: s.prefix, logLevel: s.logLevel, base: base}
}

// Prefix returns the bracketed component prefix
func (s *ScopedLogger) Prefix() string {
	return s.prefix
}

func (s *ScopedLogger) logger() *Logger {
	if s.base != nil {
		return s.base
	}
	return GetLogger()
}

// shouldLog checks if the message should be logged based on the scoped log level
func (s *ScopedLogger) shouldLog(level string) bool {
	if s.logLevel == "" {
		return true // Use global log level - let the global logger decide
	}

	scopeRank, scopeExists := levelRank[s.logLevel]
	messageRank, messageExists := levelRank[level]
	if !scopeExists || !messageExists {
		return true
	}
	return messageRank <= scopeRank
}

func (s *ScopedLogger) log(level, tag, format string, args ...interface{}) {
	if !s.shouldLog(level) {
		return
	}
	message := fmt.Sprintf("%s %s", s.prefix, fmt.Sprintf(format, args...))
	l := s.logger()

	// Only TRACE and DEBUG bypass global filtering when a scope level is set
	if s.logLevel != "" && (level == LevelTrace || level == LevelDebug) {
		l.mu.Lock()
		l.emit(level, tag, message)
		l.mu.Unlock()
		return
	}
	l.write(level, tag, message)
}

func (s *ScopedLogger) Trace(format string, args ...interface{}) {
	s.log(LevelTrace, "TRACE", format, args...)
}

func (s *ScopedLogger) Debug(format string, args ...interface{}) {
	s.log(LevelDebug, "DEBUG", format, args...)
}

func (s *ScopedLogger) Verbose(format string, args ...interface{}) {
	s.log(LevelVerbose, "VERBOSE", format, args...)
}

func (s *ScopedLogger) Info(format string, args ...interface{}) {
	s.log(LevelInfo, "INFO", format, args...)
}

func (s *ScopedLogger) Warn(format string, args ...interface{}) {
	s.log(LevelWarn, "WARN", format, args...)
}

func (s *ScopedLogger) Error(format string, args ...interface{}) {
	s.log(LevelError, "ERROR", format, args...)
}

// SPDX-FileCopyrightText: © 2025 Nfrastack <code@nfrastack.com>
//
// SPDX-License-Identifier: BSD-3-Clause

package log

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestLogger(level string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := NewLogger(level, false)
	l.SetOutput(&buf, &buf)
	return l, &buf
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		level string
		log   func(l *Logger)
		want  bool
	}{
		{LevelInfo, func(l *Logger) { l.Debug("x") }, false},
		{LevelInfo, func(l *Logger) { l.Info("x") }, true},
		{LevelInfo, func(l *Logger) { l.Verbose("x") }, false},
		{LevelVerbose, func(l *Logger) { l.Verbose("x") }, true},
		{LevelWarn, func(l *Logger) { l.Info("x") }, false},
		{LevelError, func(l *Logger) { l.Error("x") }, true},
		{LevelTrace, func(l *Logger) { l.Trace("x") }, true},
		{"bogus", func(l *Logger) { l.Info("x") }, true},
		{"bogus", func(l *Logger) { l.Debug("x") }, false},
	}

	for _, tt := range tests {
		l, buf := newTestLogger(tt.level)
		tt.log(l)
		if got := buf.Len() > 0; got != tt.want {
			t.Errorf("level %q: wrote=%v, want %v (%q)", tt.level, got, tt.want, buf.String())
		}
	}
}

func TestActionAlwaysWritten(t *testing.T) {
	l, buf := newTestLogger(LevelError)
	l.Action("42", "AUTH_SUCCESS", "")
	l.Action("42", "ADD_API_TOKEN", "Name: prod")

	out := buf.String()
	if !strings.Contains(out, "ACTION User: 42 | Action: AUTH_SUCCESS\n") {
		t.Errorf("missing plain action line: %q", out)
	}
	if !strings.Contains(out, "User: 42 | Action: ADD_API_TOKEN | Details: Name: prod") {
		t.Errorf("missing detailed action line: %q", out)
	}
}

func TestScopedLoggerPrefixAndLevel(t *testing.T) {
	l, buf := newTestLogger(LevelInfo)

	scoped := NewScopedLogger("[bulk]", "").WithLogger(l)
	scoped.Info("batch %d done", 1)
	if !strings.Contains(buf.String(), "INFO [bulk] batch 1 done") {
		t.Errorf("unexpected output %q", buf.String())
	}

	buf.Reset()
	scoped.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug should follow global level, got %q", buf.String())
	}

	buf.Reset()
	debugScoped := NewScopedLogger("[bulk]", LevelDebug).WithLogger(l)
	debugScoped.Debug("shown")
	if !strings.Contains(buf.String(), "DEBUG [bulk] shown") {
		t.Errorf("scoped debug level should bypass global filter, got %q", buf.String())
	}

	buf.Reset()
	warnScoped := NewScopedLogger("[bulk]", LevelWarn).WithLogger(l)
	warnScoped.Info("suppressed")
	if buf.Len() != 0 {
		t.Errorf("scoped warn level should drop info, got %q", buf.String())
	}
}

func TestDailyLogFile(t *testing.T) {
	dir := t.TempDir()
	l, _ := newTestLogger(LevelInfo)
	day := time.Date(2025, 3, 9, 10, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return day }

	if err := l.SetLogFile(filepath.Join(dir, "logs", "{date}.log")); err != nil {
		t.Fatalf("SetLogFile: %v", err)
	}
	l.Info("first")
	day = day.Add(24 * time.Hour)
	l.Info("second")
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	first, err := os.ReadFile(filepath.Join(dir, "logs", "2025-03-09.log"))
	if err != nil {
		t.Fatalf("read first day: %v", err)
	}
	if !strings.Contains(string(first), "2025-03-09 10:00:00 INFO first") {
		t.Errorf("unexpected first day content %q", first)
	}
	second, err := os.ReadFile(filepath.Join(dir, "logs", "2025-03-10.log"))
	if err != nil {
		t.Fatalf("read second day: %v", err)
	}
	if !strings.Contains(string(second), "INFO second") {
		t.Errorf("unexpected second day content %q", second)
	}
}

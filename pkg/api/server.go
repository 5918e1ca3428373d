// SPDX-FileCopyrightText: © 2025 Nfrastack <code@nfrastack.com>
//
// SPDX-License-Identifier: BSD-3-Clause

// Package api serves the Telegram webhook endpoint
package api

import (
	"zonesync/pkg/config"
	"zonesync/pkg/log"
	"zonesync/pkg/telegram"
	"zonesync/pkg/util"

	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"
)

const (
	// SecretTokenHeader carries the secret registered with setWebhook
	SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

	maxUpdateSize   = 1 << 20
	shutdownTimeout = 10 * time.Second
	cleanupInterval = time.Hour
)

// Server receives webhook updates and hands them to a telegram.Handler
type Server struct {
	config         config.APIConfig
	handler        telegram.Handler
	logger         *log.ScopedLogger
	failedAttempts map[string]*FailedAttemptTracker // Track failed authentication attempts by IP
	attemptsMutex  sync.RWMutex
	now            func() time.Time
}

// FailedAttemptTracker tracks failed authentication attempts from an IP
type FailedAttemptTracker struct {
	Count       int
	FirstFailed time.Time
	LastFailed  time.Time
}

// Generate a short connection ID (8 characters)
func generateConnectionID() string {
	bytes := make([]byte, 4)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

type contextKey string

const connectionIDKey contextKey = "connectionID"

// connectionIDMiddleware adds a unique connection ID to each request
func connectionIDMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		connID := generateConnectionID()
		ctx := context.WithValue(r.Context(), connectionIDKey, connID)
		r = r.WithContext(ctx)
		next(w, r)
	}
}

// getConnectionID extracts the connection ID from request context
func getConnectionID(r *http.Request) string {
	if id, ok := r.Context().Value(connectionIDKey).(string); ok {
		return id
	}
	return "unknown"
}

// NewServer creates a webhook server for apiConfig
func NewServer(apiConfig *config.APIConfig, handler telegram.Handler) *Server {
	var cfg config.APIConfig
	if apiConfig != nil {
		cfg = *apiConfig
	}

	scopedLogger := log.NewScopedLogger("[api]", cfg.LogLevel)
	if cfg.LogLevel != "" {
		scopedLogger.Info("API server log_level set to: '%s'", cfg.LogLevel)
	}

	return &Server{
		config:         cfg,
		handler:        handler,
		logger:         scopedLogger,
		failedAttempts: make(map[string]*FailedAttemptTracker),
		now:            time.Now,
	}
}

// Handler returns the HTTP handler serving the webhook path
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.config.Path, connectionIDMiddleware(s.HandleUpdate))
	return mux
}

func remoteIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// recordFailedAttempt tracks a failed authentication attempt from an IP
func (s *Server) recordFailedAttempt(remoteAddr, reason string) {
	ip := remoteIP(remoteAddr)

	s.attemptsMutex.Lock()
	defer s.attemptsMutex.Unlock()

	now := s.now()
	tracker, exists := s.failedAttempts[ip]
	if exists {
		tracker.Count++
		tracker.LastFailed = now
	} else {
		tracker = &FailedAttemptTracker{Count: 1, FirstFailed: now, LastFailed: now}
		s.failedAttempts[ip] = tracker
	}

	// Log with increasing severity based on attempt count
	if tracker.Count >= 10 {
		s.logger.Error("SECURITY: %d failed webhook auth attempts from %s (reason: %s)", tracker.Count, ip, reason)
	} else if tracker.Count >= 5 {
		s.logger.Warn("Multiple failed webhook auth attempts from %s: %d attempts (reason: %s)", ip, tracker.Count, reason)
	} else {
		s.logger.Verbose("Failed webhook auth attempt from %s (reason: %s)", ip, reason)
	}
}

// isRateLimited checks if an IP should be rate limited based on failed attempts
func (s *Server) isRateLimited(remoteAddr string) bool {
	ip := remoteIP(remoteAddr)

	s.attemptsMutex.RLock()
	defer s.attemptsMutex.RUnlock()

	tracker, exists := s.failedAttempts[ip]
	if !exists {
		return false
	}

	// Rate limit if more than 20 failed attempts in the last hour
	return tracker.Count >= 20 && s.now().Sub(tracker.FirstFailed) < time.Hour
}

// cleanupFailedAttempts removes old failed attempt records (called periodically)
func (s *Server) cleanupFailedAttempts() {
	s.attemptsMutex.Lock()
	defer s.attemptsMutex.Unlock()

	now := s.now()
	cleanedCount := 0
	for ip, tracker := range s.failedAttempts {
		if now.Sub(tracker.FirstFailed) > 24*time.Hour {
			delete(s.failedAttempts, ip)
			cleanedCount++
		}
	}

	if cleanedCount > 0 {
		s.logger.Debug("Cleaned up %d old failed attempt records", cleanedCount)
	}
}

// resetFailedAttempts clears failed attempts for an IP (called on successful auth)
func (s *Server) resetFailedAttempts(remoteAddr string) {
	ip := remoteIP(remoteAddr)

	s.attemptsMutex.Lock()
	defer s.attemptsMutex.Unlock()

	if tracker, exists := s.failedAttempts[ip]; exists && tracker.Count > 0 {
		s.logger.Debug("Clearing %d failed attempts for %s after successful auth", tracker.Count, ip)
		delete(s.failedAttempts, ip)
	}
}

// authenticate checks the secret token header when a secret is configured
func (s *Server) authenticate(r *http.Request) bool {
	if s.config.SecretToken == "" {
		return true
	}

	got := r.Header.Get(SecretTokenHeader)
	s.logger.Debug("[%s] Secret token header: '%s'", getConnectionID(r), func() string {
		if got == "" {
			return "(missing)"
		}
		return util.MaskSecret(got)
	}())

	if got == "" {
		s.recordFailedAttempt(r.RemoteAddr, "missing secret token")
		return false
	}
	if subtle.ConstantTimeCompare([]byte(got), []byte(s.config.SecretToken)) != 1 {
		s.recordFailedAttempt(r.RemoteAddr, "invalid secret token")
		return false
	}

	s.resetFailedAttempts(r.RemoteAddr)
	return true
}

// HandleUpdate processes a single webhook delivery. The update is handled
// before the response is written so Telegram delivers the next one in order.
func (s *Server) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	connID := getConnectionID(r)

	if r.Method != http.MethodPost {
		s.logger.Debug("[%s] Method not allowed: %s", connID, r.Method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if s.isRateLimited(r.RemoteAddr) {
		s.logger.Warn("[%s] SECURITY: Rate limited IP attempted connection: %s", connID, r.RemoteAddr)
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	if !s.authenticate(r) {
		s.logger.Warn("[%s] Unauthorized webhook request from %s", connID, r.RemoteAddr)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxUpdateSize))
	if err != nil {
		s.logger.Error("[%s] Failed to read request body: %v", connID, err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	update, err := telegram.ParseUpdate(body)
	if err != nil {
		s.logger.Warn("[%s] Rejected update from %s: %v", connID, r.RemoteAddr, err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	if !update.Handled() {
		s.logger.Trace("[%s] Ignoring update %d", connID, update.ID)
		w.WriteHeader(http.StatusOK)
		return
	}

	s.logger.Verbose("[%s] Update %d for conversation %s", connID, update.ID, update.ConversationID)
	s.handler.HandleUpdate(context.WithoutCancel(r.Context()), update)
	w.WriteHeader(http.StatusOK)
}

// ListenAndServe runs the webhook server until ctx is done, then shuts it
// down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.config.Address(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	useTLS := s.config.TLS != nil && (s.config.TLS.Cert != "" || s.config.TLS.Key != "")
	if useTLS && (s.config.TLS.Cert == "" || s.config.TLS.Key == "") {
		return fmt.Errorf("TLS configuration requires both cert and key")
	}

	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.cleanupFailedAttempts()
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		if useTLS {
			s.logger.Info("Starting HTTPS webhook server on %s%s", httpServer.Addr, s.config.Path)
			errCh <- httpServer.ListenAndServeTLS(s.config.TLS.Cert, s.config.TLS.Key)
			return
		}
		s.logger.Info("Starting HTTP webhook server on %s%s", httpServer.Addr, s.config.Path)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down webhook server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

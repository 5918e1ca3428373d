// SPDX-FileCopyrightText: © 2025 Nfrastack <code@nfrastack.com>
//
// SPDX-License-Identifier: BSD-3-Clause

package session

import (
	"zonesync/pkg/log"

	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Repository stores sessions by conversation ID. Sessions are created lazily
// by Upsert and TryAcquire; Get on an unknown ID returns an empty session.
type Repository interface {
	Get(conversationID string) (Session, error)
	Upsert(conversationID string, fn func(*Session) error) (Session, error)
	Delete(conversationID string) error

	// TryAcquire sets the processing flag and reports true only when it was
	// previously clear
	TryAcquire(conversationID string) (bool, error)
	Release(conversationID string) error
}

// Store is a Repository kept in memory and mirrored to a JSON file. An empty
// path keeps it memory-only.
type Store struct {
	path   string
	logger *log.ScopedLogger

	mu       sync.Mutex
	sessions map[string]*Session
}

// Open loads the store from path. A missing file starts an empty store.
// Processing flags are cleared on load since no run survives a restart.
func Open(path, logLevel string) (*Store, error) {
	s := &Store{
		path:     path,
		logger:   log.NewScopedLogger("[session]", logLevel),
		sessions: make(map[string]*Session),
	}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		s.logger.Info("No session file at %s, starting fresh", path)
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	if err := json.Unmarshal(data, &s.sessions); err != nil {
		return nil, fmt.Errorf("failed to parse session file %s: %w", path, err)
	}
	for id, sess := range s.sessions {
		if sess == nil {
			delete(s.sessions, id)
			continue
		}
		sess.normalize()
		if sess.IsProcessing {
			s.logger.Verbose("Clearing stale processing flag for %s", id)
			sess.IsProcessing = false
		}
	}
	s.logger.Info("Loaded %d sessions from %s", len(s.sessions), path)
	return s, nil
}

// Path returns the backing file, empty for memory-only stores
func (s *Store) Path() string {
	return s.path
}

// Len returns the number of known sessions
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) Get(conversationID string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[conversationID]; ok {
		return sess.clone(), nil
	}
	return newSession().clone(), nil
}

// Upsert applies fn to the session, creating it first if needed, and saves.
// When fn returns an error nothing is changed.
func (s *Store) Upsert(conversationID string, fn func(*Session) error) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sessions[conversationID]
	if !ok {
		current = newSession()
	}
	working := current.clone()
	if err := fn(&working); err != nil {
		return current.clone(), err
	}
	working.normalize()
	s.sessions[conversationID] = &working

	return working.clone(), s.save()
}

func (s *Store) Delete(conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[conversationID]; !ok {
		return nil
	}
	delete(s.sessions, conversationID)
	return s.save()
}

func (s *Store) TryAcquire(conversationID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[conversationID]
	if !ok {
		sess = newSession()
		s.sessions[conversationID] = sess
	}
	if sess.IsProcessing {
		return false, nil
	}
	sess.IsProcessing = true
	if err := s.save(); err != nil {
		sess.IsProcessing = false
		return false, err
	}
	return true, nil
}

func (s *Store) Release(conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[conversationID]
	if !ok || !sess.IsProcessing {
		return nil
	}
	sess.IsProcessing = false
	return s.save()
}

// save writes the whole store through a temp file and rename. Callers hold mu.
func (s *Store) save() error {
	if s.path == "" {
		return nil
	}

	data, err := json.MarshalIndent(s.sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize sessions: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	s.logger.Trace("Saved %d sessions to %s", len(s.sessions), s.path)
	return nil
}

// SPDX-FileCopyrightText: © 2025 Nfrastack <code@nfrastack.com>
//
// SPDX-License-Identifier: BSD-3-Clause

// Package session keeps per-conversation state: authentication, the dialog
// state, stored credentials and the processing lock.
package session

import (
	"errors"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// State is the dialog state of a conversation
type State string

const (
	StateNone          State = ""
	StateAwaitPassword State = "AWAIT_PASSWORD"
	StateAwaitName     State = "AWAIT_TOKEN_NAME"
	StateAwaitToken    State = "AWAIT_API_TOKEN"
	StateAwaitSub      State = "AWAIT_SUBDOMAIN"
	StateAwaitIP       State = "AWAIT_IP"
	StateMainMenu      State = "MAIN_MENU"
)

// Temp data keys
const (
	TempSelectedToken = "selected_token"
	TempTokenName     = "token_name"
	TempSubdomain     = "subdomain"
)

var ErrCredentialNotFound = errors.New("credential not found")

// Credential is a stored provider API token
type Credential struct {
	Token     string    `json:"token"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the persisted state of one conversation
type Session struct {
	Tokens        map[string]Credential `json:"tokens"`
	Authenticated bool                  `json:"authenticated"`
	State         State                 `json:"state"`
	TempData      map[string]string     `json:"tempData"`
	IsProcessing  bool                  `json:"isProcessing"`
	MenuMessageID int                   `json:"menuMessageId,omitempty"`
}

func newSession() *Session {
	return &Session{
		Tokens:   make(map[string]Credential),
		TempData: make(map[string]string),
	}
}

// normalize fills nil maps left by older files
func (s *Session) normalize() {
	if s.Tokens == nil {
		s.Tokens = make(map[string]Credential)
	}
	if s.TempData == nil {
		s.TempData = make(map[string]string)
	}
}

func (s *Session) clone() Session {
	c := *s
	c.Tokens = maps.Clone(s.Tokens)
	c.TempData = maps.Clone(s.TempData)
	c.normalize()
	return c
}

// AddCredential stores a token under a new "token_<uuid>" ID
func (s *Session) AddCredential(name, token string, now time.Time) string {
	s.normalize()
	id := "token_" + uuid.NewString()
	s.Tokens[id] = Credential{Token: token, Name: name, CreatedAt: now.UTC()}
	return id
}

// RemoveCredential deletes a token and reports whether it existed. A removed
// token is also unselected.
func (s *Session) RemoveCredential(id string) bool {
	if _, ok := s.Tokens[id]; !ok {
		return false
	}
	delete(s.Tokens, id)
	if s.TempData[TempSelectedToken] == id {
		delete(s.TempData, TempSelectedToken)
	}
	return true
}

// Credential looks up a stored token by ID
func (s Session) Credential(id string) (Credential, bool) {
	c, ok := s.Tokens[id]
	return c, ok
}

// CredentialIDs returns token IDs ordered by creation time
func (s Session) CredentialIDs() []string {
	ids := slices.Collect(maps.Keys(s.Tokens))
	slices.SortFunc(ids, func(a, b string) int {
		if c := s.Tokens[a].CreatedAt.Compare(s.Tokens[b].CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return ids
}

// SelectedCredential returns the credential chosen for the next sync
func (s Session) SelectedCredential() (string, Credential, bool) {
	id := s.TempData[TempSelectedToken]
	if id == "" {
		return "", Credential{}, false
	}
	c, ok := s.Tokens[id]
	return id, c, ok
}

// SetTemp stores a temp value; an empty value removes the key
func (s *Session) SetTemp(key, value string) {
	s.normalize()
	if value == "" {
		delete(s.TempData, key)
		return
	}
	s.TempData[key] = value
}

// ClearTemp wipes all temp data, including the selected credential
func (s *Session) ClearTemp() {
	s.TempData = make(map[string]string)
}

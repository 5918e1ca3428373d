// SPDX-FileCopyrightText: © 2025 Nfrastack <code@nfrastack.com>
//
// SPDX-License-Identifier: BSD-3-Clause

package session

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestStoreRoundTripsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "users.json")
	store, err := Open(path, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	var tokenID string
	_, err = store.Upsert("42", func(s *Session) error {
		s.Authenticated = true
		s.State = StateMainMenu
		tokenID = s.AddCredential("main", "cf-secret", time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC))
		s.SetTemp(TempSelectedToken, tokenID)
		s.MenuMessageID = 77
		return nil
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if !strings.HasPrefix(tokenID, "token_") {
		t.Errorf("credential ID %q lacks token_ prefix", tokenID)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	var layout map[string]map[string]json.RawMessage
	if err := json.Unmarshal(raw, &layout); err != nil {
		t.Fatalf("file is not a JSON object keyed by conversation: %v", err)
	}
	for _, key := range []string{"tokens", "authenticated", "state", "tempData", "isProcessing", "menuMessageId"} {
		if _, ok := layout["42"][key]; !ok {
			t.Errorf("persisted session missing %q", key)
		}
	}

	reopened, err := Open(path, "")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	sess, _ := reopened.Get("42")
	if !sess.Authenticated || sess.State != StateMainMenu || sess.MenuMessageID != 77 {
		t.Errorf("reloaded session = %+v", sess)
	}
	id, cred, ok := sess.SelectedCredential()
	if !ok || id != tokenID || cred.Token != "cf-secret" || cred.Name != "main" {
		t.Errorf("selected credential = %s %+v %v", id, cred, ok)
	}
}

func TestOpenClearsProcessingFlag(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	content := `{"7": {"tokens": {}, "authenticated": true, "state": null, "tempData": {}, "isProcessing": true, "menuMessageId": null}}`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	store, err := Open(path, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	sess, _ := store.Get("7")
	if sess.IsProcessing {
		t.Error("processing flag should be cleared on load")
	}
	if !sess.Authenticated || sess.State != StateNone {
		t.Errorf("unexpected session %+v", sess)
	}
}

func TestOpenRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	os.WriteFile(path, []byte("{not json"), 0600)
	if _, err := Open(path, ""); err == nil {
		t.Error("expected parse error")
	}
}

func TestGetUnknownIsEmpty(t *testing.T) {
	store, _ := Open("", "")
	sess, err := store.Get("nobody")
	if err != nil {
		t.Fatal(err)
	}
	if sess.Authenticated || sess.State != StateNone || len(sess.Tokens) != 0 {
		t.Errorf("expected empty session, got %+v", sess)
	}
	if store.Len() != 0 {
		t.Error("Get must not create sessions")
	}
}

func TestUpsertErrorLeavesSessionUnchanged(t *testing.T) {
	store, _ := Open("", "")
	store.Upsert("1", func(s *Session) error { s.State = StateAwaitIP; return nil })

	boom := errors.New("boom")
	_, err := store.Upsert("1", func(s *Session) error {
		s.State = StateMainMenu
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
	if sess, _ := store.Get("1"); sess.State != StateAwaitIP {
		t.Errorf("state = %s, want unchanged", sess.State)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	store, _ := Open("", "")
	store.Upsert("1", func(s *Session) error { s.SetTemp(TempSubdomain, "api"); return nil })

	sess, _ := store.Get("1")
	sess.TempData[TempSubdomain] = "changed"

	if again, _ := store.Get("1"); again.TempData[TempSubdomain] != "api" {
		t.Error("mutating a returned session leaked into the store")
	}
}

func TestTryAcquireIsExclusive(t *testing.T) {
	store, _ := Open(filepath.Join(t.TempDir(), "users.json"), "")

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.TryAcquire("9")
			if err != nil {
				t.Error(err)
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Fatalf("expected exactly one acquire, got %d", wins.Load())
	}
	if err := store.Release("9"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := store.TryAcquire("9"); !ok {
		t.Error("acquire after release should succeed")
	}
}

func TestTryAcquireRollsBackOnSaveFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")
	store, err := Open(path, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(path+".tmp", 0755); err != nil {
		t.Fatal(err)
	}

	ok, err := store.TryAcquire("42")
	if err == nil {
		t.Fatal("expected a write error")
	}
	if ok {
		t.Error("failed acquire should not report success")
	}
	if sess, _ := store.Get("42"); sess.IsProcessing {
		t.Error("processing flag should be cleared after a failed save")
	}

	if err := os.Remove(path + ".tmp"); err != nil {
		t.Fatal(err)
	}
	if ok, err := store.TryAcquire("42"); !ok || err != nil {
		t.Errorf("acquire after recovery = %v, %v", ok, err)
	}
}

func TestDelete(t *testing.T) {
	store, _ := Open("", "")
	store.Upsert("1", func(s *Session) error { s.Authenticated = true; return nil })
	if err := store.Delete("1"); err != nil {
		t.Fatal(err)
	}
	if sess, _ := store.Get("1"); sess.Authenticated {
		t.Error("session should be gone")
	}
}

func TestCredentialHelpers(t *testing.T) {
	s := newSession()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	first := s.AddCredential("first", "t1", base)
	second := s.AddCredential("second", "t2", base.Add(time.Minute))

	if ids := s.CredentialIDs(); len(ids) != 2 || ids[0] != first || ids[1] != second {
		t.Errorf("CredentialIDs = %v", ids)
	}

	s.SetTemp(TempSelectedToken, second)
	if !s.RemoveCredential(second) {
		t.Fatal("RemoveCredential returned false")
	}
	if _, _, ok := s.SelectedCredential(); ok {
		t.Error("removed credential should be unselected")
	}
	if s.RemoveCredential(second) {
		t.Error("second removal should report false")
	}

	s.SetTemp(TempSubdomain, "api")
	s.ClearTemp()
	if len(s.TempData) != 0 {
		t.Error("ClearTemp should wipe temp data")
	}
}

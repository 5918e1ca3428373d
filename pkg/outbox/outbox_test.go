// SPDX-FileCopyrightText: © 2025 Nfrastack <code@nfrastack.com>
//
// SPDX-License-Identifier: BSD-3-Clause

package outbox

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		limit      int
		wantChunks int
	}{
		{"short", "hello", 4000, 1},
		{"exact", strings.Repeat("a", 4000), 4000, 1},
		{"single long line", strings.Repeat("a", 9000), 4000, 3},
		{"lines packed", strings.Repeat("0123456789\n", 10), 25, 5},
		{"empty", "", 4000, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := Split(tt.text, tt.limit)
			if len(chunks) != tt.wantChunks {
				t.Fatalf("got %d chunks, want %d: %q", len(chunks), tt.wantChunks, chunks)
			}
			for i, c := range chunks {
				if len([]rune(c)) > tt.limit {
					t.Errorf("chunk %d has %d chars, limit %d", i, len([]rune(c)), tt.limit)
				}
			}
		})
	}
}

func TestSplitPreservesContent(t *testing.T) {
	var lines []string
	for i := 0; i < 500; i++ {
		lines = append(lines, fmt.Sprintf("✅ host%03d.example.com -> 203.0.113.7", i))
	}
	text := strings.Join(lines, "\n")

	chunks := Split(text, 4000)
	if len(chunks) < 2 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	if got := strings.Join(chunks, "\n"); got != text {
		t.Error("rejoined chunks differ from input")
	}
	for _, c := range chunks {
		if strings.HasPrefix(c, "\n") || strings.HasSuffix(c, "\n") {
			t.Error("chunks should be cut on line boundaries")
		}
	}
}

func TestSplitLongLineAfterShortOnes(t *testing.T) {
	text := "first\n" + strings.Repeat("x", 25) + "\nlast"
	chunks := Split(text, 10)
	want := []string{"first", "xxxxxxxxxx", "xxxxxxxxxx", "xxxxx\nlast"}
	if strings.Join(chunks, "|") != strings.Join(want, "|") {
		t.Errorf("got %q, want %q", chunks, want)
	}
}

func TestSplitKeepsBlankLineAtChunkStart(t *testing.T) {
	text := "aaaaaaaaaa\n\nb"
	chunks := Split(text, 10)
	want := []string{"aaaaaaaaaa", "\nb"}
	if strings.Join(chunks, "|") != strings.Join(want, "|") {
		t.Errorf("got %q, want %q", chunks, want)
	}
	if got := strings.Join(chunks, "\n"); got != text {
		t.Errorf("rejoined %q, want %q", got, text)
	}
}

type recordingSender struct {
	mu     sync.Mutex
	sent   map[string][]string
	failOn string
	active map[string]int
	maxPar int
}

func newRecordingSender() *recordingSender {
	return &recordingSender{sent: map[string][]string{}, active: map[string]int{}}
}

func (s *recordingSender) Send(ctx context.Context, conversationID, text string) error {
	s.mu.Lock()
	s.active[conversationID]++
	if s.active[conversationID] > s.maxPar {
		s.maxPar = s.active[conversationID]
	}
	s.mu.Unlock()

	time.Sleep(time.Millisecond)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[conversationID]--
	if text == s.failOn {
		return errors.New("chat API rejected message")
	}
	s.sent[conversationID] = append(s.sent[conversationID], text)
	return nil
}

func TestThrottlerFIFO(t *testing.T) {
	sender := newRecordingSender()
	th := New(sender, time.Millisecond, "")

	for i := 0; i < 20; i++ {
		th.Enqueue("100", fmt.Sprintf("a%d", i))
		th.Enqueue("200", fmt.Sprintf("b%d", i))
	}
	th.Wait()

	for conv, prefix := range map[string]string{"100": "a", "200": "b"} {
		got := sender.sent[conv]
		if len(got) != 20 {
			t.Fatalf("conversation %s: %d messages sent", conv, len(got))
		}
		for i, text := range got {
			if text != fmt.Sprintf("%s%d", prefix, i) {
				t.Fatalf("conversation %s: message %d = %s", conv, i, text)
			}
		}
	}
	if sender.maxPar != 1 {
		t.Errorf("expected a single sender per conversation, saw %d concurrent", sender.maxPar)
	}
	if th.Pending("100") != 0 {
		t.Error("queue should be empty after Wait")
	}
}

func TestThrottlerDropsFailedItem(t *testing.T) {
	sender := newRecordingSender()
	sender.failOn = "second"
	th := New(sender, -1, "")

	th.Enqueue("1", "first")
	th.Enqueue("1", "second")
	th.Enqueue("1", "third")
	th.Wait()

	got := strings.Join(sender.sent["1"], ",")
	if got != "first,third" {
		t.Errorf("sent = %s, want first,third", got)
	}
}

func TestThrottlerRestartsDrain(t *testing.T) {
	sender := newRecordingSender()
	th := New(sender, -1, "")

	th.Enqueue("1", "one")
	th.Wait()
	th.Enqueue("1", "two")
	th.Wait()

	if got := strings.Join(sender.sent["1"], ","); got != "one,two" {
		t.Errorf("sent = %s", got)
	}
}

func TestEnqueueTextChunks(t *testing.T) {
	sender := newRecordingSender()
	th := New(sender, -1, "")

	th.EnqueueText("1", strings.Repeat("z", 9000))
	th.Wait()

	if n := len(sender.sent["1"]); n != 3 {
		t.Errorf("expected 3 messages, got %d", n)
	}
}

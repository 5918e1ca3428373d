// SPDX-FileCopyrightText: © 2025 Nfrastack <code@nfrastack.com>
//
// SPDX-License-Identifier: BSD-3-Clause

// Package outbox serializes outgoing chat messages per conversation so bursts
// of result lines reach the chat API one at a time and in order.
package outbox

import (
	"zonesync/pkg/log"

	"context"
	"sync"
	"time"
)

// DefaultSendDelay is the pause after each successful send
const DefaultSendDelay = 50 * time.Millisecond

// Sender delivers one text message to a conversation
type Sender interface {
	Send(ctx context.Context, conversationID, text string) error
}

// SenderFunc adapts a function to Sender
type SenderFunc func(ctx context.Context, conversationID, text string) error

func (f SenderFunc) Send(ctx context.Context, conversationID, text string) error {
	return f(ctx, conversationID, text)
}

// Throttler keeps one FIFO queue and at most one drain goroutine per
// conversation
type Throttler struct {
	sender    Sender
	sendDelay time.Duration
	logger    *log.ScopedLogger

	mu       sync.Mutex
	queues   map[string][]string
	draining map[string]bool
	wg       sync.WaitGroup
}

// New creates a throttler. A zero delay uses DefaultSendDelay, a negative
// delay disables spacing.
func New(sender Sender, sendDelay time.Duration, logLevel string) *Throttler {
	if sendDelay == 0 {
		sendDelay = DefaultSendDelay
	}
	if sendDelay < 0 {
		sendDelay = 0
	}
	return &Throttler{
		sender:    sender,
		sendDelay: sendDelay,
		logger:    log.NewScopedLogger("[outbox]", logLevel),
		queues:    make(map[string][]string),
		draining:  make(map[string]bool),
	}
}

// Enqueue appends text to the conversation queue and starts a drain when
// none is running
func (t *Throttler) Enqueue(conversationID, text string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.queues[conversationID] = append(t.queues[conversationID], text)
	if t.draining[conversationID] {
		return
	}
	t.draining[conversationID] = true
	t.wg.Add(1)
	go t.drain(conversationID)
}

// EnqueueText splits text into MaxMessageLength chunks and enqueues each
func (t *Throttler) EnqueueText(conversationID, text string) {
	for _, chunk := range Split(text, MaxMessageLength) {
		t.Enqueue(conversationID, chunk)
	}
}

// Pending returns the number of queued, unsent messages for a conversation
func (t *Throttler) Pending(conversationID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queues[conversationID])
}

// Wait blocks until every drain goroutine has exited
func (t *Throttler) Wait() {
	t.wg.Wait()
}

func (t *Throttler) next(conversationID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	queue := t.queues[conversationID]
	if len(queue) == 0 {
		delete(t.queues, conversationID)
		delete(t.draining, conversationID)
		return "", false
	}
	t.queues[conversationID] = queue[1:]
	return queue[0], true
}

func (t *Throttler) drain(conversationID string) {
	defer t.wg.Done()

	for {
		text, ok := t.next(conversationID)
		if !ok {
			return
		}

		if err := t.sender.Send(context.Background(), conversationID, text); err != nil {
			t.logger.Error("Dropping message for %s: %v", conversationID, err)
			continue
		}
		if t.sendDelay > 0 {
			time.Sleep(t.sendDelay)
		}
	}
}

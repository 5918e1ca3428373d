// SPDX-FileCopyrightText: © 2025 Nfrastack <code@nfrastack.com>
//
// SPDX-License-Identifier: BSD-3-Clause

package bot

import (
	"zonesync/pkg/bulk"
	"zonesync/pkg/session"

	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

// startSync takes the processing lock and launches a run in the background.
// An error means nothing was launched.
func (c *Controller) startSync(ctx context.Context, conversationID, ip string) error {
	sess, err := c.sessions.Get(conversationID)
	if err != nil {
		return err
	}

	credID, cred, ok := sess.SelectedCredential()
	if !ok {
		c.reply(ctx, conversationID, msgNoSelection, nil)
		c.showMenu(ctx, conversationID)
		return nil
	}

	req := bulk.Request{
		Subdomain:  sess.TempData[session.TempSubdomain],
		IP:         ip,
		Credential: bulk.Credential{ID: credID, Name: cred.Name, Token: cred.Token},
	}
	if err := req.Validate(); err != nil {
		return err
	}

	acquired, err := c.sessions.TryAcquire(conversationID)
	if err != nil {
		return err
	}
	if !acquired {
		c.reply(ctx, conversationID, msgAlreadyRunning, nil)
		return nil
	}
	c.setState(conversationID, session.StateMainMenu)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	statusID, err := c.messenger.SendMessage(runCtx, conversationID, msgFetching, cancelKeyboard)
	if err != nil {
		cancel()
		c.release(conversationID)
		return fmt.Errorf("failed to send status message: %w", err)
	}

	c.runsMu.Lock()
	c.runs[conversationID] = cancel
	c.runsMu.Unlock()

	c.logger.Info("Starting sync for %s: %s -> %s using '%s'", conversationID, req.Subdomain, req.IP, cred.Name)
	c.wg.Add(1)
	go c.runSync(runCtx, cancel, conversationID, statusID, req)
	return nil
}

// runSync drives one engine run and always releases the processing lock
func (c *Controller) runSync(ctx context.Context, cancel context.CancelFunc, conversationID string, statusID int, req bulk.Request) {
	notify := context.WithoutCancel(ctx)
	showMenu := true

	defer c.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Panic during sync for %s: %v\n%s", conversationID, r, debug.Stack())
			c.reply(notify, conversationID, msgGenericError, nil)
		}
		c.runsMu.Lock()
		delete(c.runs, conversationID)
		c.runsMu.Unlock()
		cancel()
		c.release(conversationID)
		if showMenu {
			c.showMenu(notify, conversationID)
		}
	}()

	observer := bulk.ObserverFuncs{
		Progress: func(p bulk.Progress) {
			keyboard := cancelKeyboard
			if p.Done {
				keyboard = nil
			}
			if err := c.messenger.EditMessageText(notify, conversationID, statusID, p.Text(), keyboard); err != nil {
				c.logger.Debug("Failed to update status for %s: %v", conversationID, err)
			}
		},
		Results: func(lines []string) {
			c.outbox.EnqueueText(conversationID, strings.Join(lines, "\n"))
		},
	}

	result, err := c.engine.Run(ctx, req, observer)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			c.logger.Info("Sync for %s cancelled while fetching zones", conversationID)
			return
		}
		c.logger.Error("Sync for %s failed: %v", conversationID, err)
		if editErr := c.messenger.EditMessageText(notify, conversationID, statusID, runErrorText(err), nil); editErr != nil {
			c.reply(notify, conversationID, runErrorText(err), nil)
		}
		c.offerRetry(notify, conversationID)
		showMenu = false
		return
	}
	if result.Cancelled && result.Processed() == 0 {
		c.logger.Info("Sync for %s cancelled before any zone was processed", conversationID)
		return
	}

	c.outbox.EnqueueText(conversationID, result.Summary())

	_, animation := c.settings()
	if !result.Cancelled && animation != "" {
		if err := c.messenger.SendAnimation(notify, conversationID, animation, msgAllProcessed); err != nil {
			c.logger.Warn("Failed to send completion animation to %s: %v", conversationID, err)
		}
	}
}

// handleCancel stops the running sync, if any, and resets the dialog. A
// running sync releases the lock itself once its current batch returns.
func (c *Controller) handleCancel(ctx context.Context, conversationID string) error {
	c.runsMu.Lock()
	cancel, running := c.runs[conversationID]
	c.runsMu.Unlock()

	if running {
		c.logger.Info("Cancelling sync for %s", conversationID)
		cancel()
	} else {
		c.release(conversationID)
	}

	if _, err := c.sessions.Upsert(conversationID, func(s *session.Session) error {
		s.State = session.StateMainMenu
		s.ClearTemp()
		return nil
	}); err != nil {
		return err
	}

	c.reply(ctx, conversationID, msgCancelled, nil)
	c.showMenu(ctx, conversationID)
	return nil
}

func (c *Controller) offerRetry(ctx context.Context, conversationID string) {
	c.reply(ctx, conversationID, msgRetryPrompt, nil)
	c.reply(ctx, conversationID, msgChooseOption, retryKeyboard)
}

func (c *Controller) release(conversationID string) {
	if err := c.sessions.Release(conversationID); err != nil {
		c.logger.Error("Failed to release processing lock for %s: %v", conversationID, err)
	}
}

// Running reports whether a sync is in progress for the conversation
func (c *Controller) Running(conversationID string) bool {
	c.runsMu.Lock()
	defer c.runsMu.Unlock()
	_, ok := c.runs[conversationID]
	return ok
}

func runErrorText(err error) string {
	if errors.Is(err, bulk.ErrNoZonesFound) {
		return "❌ Error: No domains found for this API token!"
	}
	return errorText(err)
}

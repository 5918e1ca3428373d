// SPDX-FileCopyrightText: © 2025 Nfrastack <code@nfrastack.com>
//
// SPDX-License-Identifier: BSD-3-Clause

// Package bot implements the conversation controller: authentication,
// credential management and launching bulk DNS syncs from chat.
package bot

import (
	"zonesync/pkg/bulk"
	"zonesync/pkg/log"
	"zonesync/pkg/outbox"
	"zonesync/pkg/session"
	"zonesync/pkg/telegram"

	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"
)

// DefaultClearDelay spaces deletions issued by /clear
const DefaultClearDelay = 20 * time.Millisecond

// clearDepth is how many messages /clear walks back
const clearDepth = 100

// Messenger is the chat surface the controller drives
type Messenger interface {
	SendMessage(ctx context.Context, conversationID, text string, keyboard telegram.Keyboard) (int, error)
	EditMessageText(ctx context.Context, conversationID string, messageID int, text string, keyboard telegram.Keyboard) error
	DeleteMessage(ctx context.Context, conversationID string, messageID int) error
	SendAnimation(ctx context.Context, conversationID, animation, caption string) error
	AnswerCallbackQuery(ctx context.Context, callbackID string) error
}

// Options configures a Controller
type Options struct {
	AdminPassword    string
	SuccessAnimation string
	ClearDelay       time.Duration
	LogLevel         string
}

// Controller routes chat updates to the conversation state machine
type Controller struct {
	messenger Messenger
	sessions  session.Repository
	engine    *bulk.Engine
	outbox    *outbox.Throttler
	logger    *log.ScopedLogger

	clearDelay time.Duration

	settingsMu       sync.RWMutex
	adminPassword    string
	successAnimation string

	runsMu sync.Mutex
	runs   map[string]context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a controller
func New(messenger Messenger, sessions session.Repository, engine *bulk.Engine, out *outbox.Throttler, opts Options) *Controller {
	if opts.ClearDelay <= 0 {
		opts.ClearDelay = DefaultClearDelay
	}
	c := &Controller{
		messenger:        messenger,
		sessions:         sessions,
		engine:           engine,
		outbox:           out,
		logger:           log.NewScopedLogger("[bot]", opts.LogLevel),
		clearDelay:       opts.ClearDelay,
		adminPassword:    opts.AdminPassword,
		successAnimation: opts.SuccessAnimation,
		runs:             make(map[string]context.CancelFunc),
	}
	if opts.LogLevel != "" {
		c.logger.Info("Bot log_level set to: '%s'", opts.LogLevel)
	}
	return c
}

// SetAdminPassword replaces the password checked at login
func (c *Controller) SetAdminPassword(password string) {
	c.settingsMu.Lock()
	defer c.settingsMu.Unlock()
	c.adminPassword = password
}

// SetSuccessAnimation replaces the animation sent after a completed run
func (c *Controller) SetSuccessAnimation(animation string) {
	c.settingsMu.Lock()
	defer c.settingsMu.Unlock()
	c.successAnimation = animation
}

func (c *Controller) settings() (password, animation string) {
	c.settingsMu.RLock()
	defer c.settingsMu.RUnlock()
	return c.adminPassword, c.successAnimation
}

// Wait blocks until every running sync has finished
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Shutdown cancels every running sync and waits for them to finish
func (c *Controller) Shutdown() {
	c.runsMu.Lock()
	for id, cancel := range c.runs {
		c.logger.Info("Cancelling sync for %s", id)
		cancel()
	}
	c.runsMu.Unlock()
	c.Wait()
}

// HandleUpdate processes one update. Failures are reported to the
// conversation and never propagate to the transport.
func (c *Controller) HandleUpdate(ctx context.Context, u telegram.Update) {
	if !u.Handled() {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Panic handling update %d: %v\n%s", u.ID, r, debug.Stack())
			c.reply(ctx, u.ConversationID, msgGenericError, nil)
			c.showMenu(ctx, u.ConversationID)
		}
	}()

	if u.IsCallback() {
		if err := c.messenger.AnswerCallbackQuery(ctx, u.CallbackID); err != nil {
			c.logger.Debug("Failed to answer callback %s: %v", u.CallbackID, err)
		}
		c.handleCallback(ctx, u.ConversationID, u.CallbackData)
		return
	}

	if err := c.handleText(ctx, u.ConversationID, u.MessageID, strings.TrimSpace(u.Text)); err != nil {
		c.logger.Error("Error processing message from %s: %v", u.ConversationID, err)
		c.reply(ctx, u.ConversationID, msgGenericError, nil)
		c.showMenu(ctx, u.ConversationID)
	}
}

func (c *Controller) handleText(ctx context.Context, conversationID string, messageID int, text string) error {
	command := strings.ToLower(strings.SplitN(text, " ", 2)[0])
	if at := strings.IndexByte(command, '@'); at > 0 {
		command = command[:at]
	}

	switch command {
	case "/start":
		return c.handleStart(ctx, conversationID)
	case "/cancel":
		return c.handleCancel(ctx, conversationID)
	case "/clear":
		c.clearChat(ctx, conversationID, messageID)
		return nil
	}

	sess, err := c.sessions.Get(conversationID)
	if err != nil {
		return err
	}

	if sess.State == session.StateAwaitPassword {
		return c.handlePassword(ctx, conversationID, text)
	}
	if !c.checkAuth(ctx, conversationID, sess) {
		return nil
	}

	switch sess.State {
	case session.StateAwaitName:
		return c.handleTokenName(ctx, conversationID, text)
	case session.StateAwaitToken:
		return c.handleToken(ctx, conversationID, sess, text)
	case session.StateAwaitSub:
		return c.handleSubdomain(ctx, conversationID, text)
	case session.StateAwaitIP:
		return c.handleIP(ctx, conversationID, text)
	default:
		c.showMenu(ctx, conversationID)
		return nil
	}
}

func (c *Controller) handleCallback(ctx context.Context, conversationID, data string) {
	if data == cbCancel {
		if err := c.handleCancel(ctx, conversationID); err != nil {
			c.logger.Error("Error in cancel handler: %v", err)
		}
		return
	}

	sess, err := c.sessions.Get(conversationID)
	if err != nil {
		c.logger.Error("Failed to load session %s: %v", conversationID, err)
		c.reply(ctx, conversationID, msgGenericError, nil)
		return
	}
	if !c.checkAuth(ctx, conversationID, sess) {
		return
	}

	action, arg, _ := strings.Cut(data, ":")
	switch action {
	case cbAddToken:
		err = c.handleAddToken(ctx, conversationID)
	case cbListTokens:
		err = c.handleListTokens(ctx, conversationID, sess)
	case cbAddDNS:
		err = c.handleAddDNS(ctx, conversationID, sess)
	case cbSelectToken:
		err = c.handleSelectToken(ctx, conversationID, arg)
	case cbDeleteToken:
		err = c.handleDeleteToken(ctx, conversationID, arg)
	case cbShowMenu:
		c.showMenu(ctx, conversationID)
	default:
		c.logger.Debug("Unknown callback '%s' from %s", data, conversationID)
	}

	if err != nil {
		c.logger.Error("Error in %s handler: %v", action, err)
		c.showMenu(ctx, conversationID)
	}
}

// reply sends a message and logs failures. It returns the message ID, or 0.
func (c *Controller) reply(ctx context.Context, conversationID, text string, keyboard telegram.Keyboard) int {
	id, err := c.messenger.SendMessage(ctx, conversationID, text, keyboard)
	if err != nil {
		c.logger.Error("Failed to send message to %s: %v", conversationID, err)
		return 0
	}
	return id
}

// checkAuth prompts for the password when the conversation is not
// authenticated
func (c *Controller) checkAuth(ctx context.Context, conversationID string, sess session.Session) bool {
	if sess.Authenticated {
		return true
	}
	c.reply(ctx, conversationID, msgAuthFirst, nil)
	c.reply(ctx, conversationID, msgEnterPassword, nil)
	c.setState(conversationID, session.StateAwaitPassword)
	return false
}

func (c *Controller) setState(conversationID string, state session.State) {
	if _, err := c.sessions.Upsert(conversationID, func(s *session.Session) error {
		s.State = state
		return nil
	}); err != nil {
		c.logger.Error("Failed to set state %s for %s: %v", state, conversationID, err)
	}
}

// clearChat deletes the command and up to clearDepth earlier messages,
// stopping at the first message that cannot be deleted
func (c *Controller) clearChat(ctx context.Context, conversationID string, messageID int) {
	deleted := 0
	for id := messageID; id > messageID-clearDepth && id > 0; id-- {
		if err := c.messenger.DeleteMessage(ctx, conversationID, id); err != nil {
			c.logger.Debug("Stopped clearing %s at message %d: %v", conversationID, id, err)
			break
		}
		deleted++
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.clearDelay):
		}
	}
	c.logger.Verbose("Cleared %d messages from %s", deleted, conversationID)
}

func errorText(err error) string {
	return fmt.Sprintf("❌ Error: %s", err)
}

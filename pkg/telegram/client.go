// SPDX-FileCopyrightText: © 2025 Nfrastack <code@nfrastack.com>
//
// SPDX-License-Identifier: BSD-3-Clause

// Package telegram is a small Bot API client covering the calls the bot
// controller needs: messages, edits, deletions, animations, callback answers,
// webhooks and long polling.
package telegram

import (
	"zonesync/pkg/log"
	"zonesync/pkg/util"
	"zonesync/pkg/version"

	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/carlmjohnson/requests"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	DefaultAPIURL  = "https://api.telegram.org"
	DefaultTimeout = 60 * time.Second
)

var ErrMissingToken = errors.New("telegram bot token is required")

// APIError is a Bot API response with ok=false
type APIError struct {
	Method      string
	Code        int64
	Description string
	RetryAfter  int64
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("telegram %s: %d %s (retry after %ds)", e.Method, e.Code, e.Description, e.RetryAfter)
	}
	return fmt.Sprintf("telegram %s: %d %s", e.Method, e.Code, e.Description)
}

// Options configure a Client; zero values take defaults
type Options struct {
	APIURL   string
	Timeout  time.Duration
	LogLevel string
}

// Client calls the Bot API for one bot token
type Client struct {
	apiURL     string
	token      string
	httpClient *http.Client
	logger     *log.ScopedLogger
}

// New creates a client
func New(token string, opts Options) (*Client, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	if opts.APIURL == "" {
		opts.APIURL = DefaultAPIURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Client{
		apiURL:     opts.APIURL,
		token:      token,
		httpClient: &http.Client{Timeout: opts.Timeout},
		logger:     log.NewScopedLogger("[telegram]", opts.LogLevel),
	}, nil
}

// call posts a JSON payload to a Bot API method and returns its "result"
func (c *Client) call(ctx context.Context, method, payload string) (gjson.Result, error) {
	c.logger.Trace("-> %s %s", method, payload)

	var body string
	err := requests.
		URL(c.apiURL).
		Client(c.httpClient).
		Path(fmt.Sprintf("/bot%s/%s", c.token, method)).
		Post().
		UserAgent(version.UserAgent()).
		BodyBytes([]byte(payload)).
		ContentType("application/json").
		AddValidator(nil).
		ToString(&body).
		Fetch(ctx)
	if err != nil {
		return gjson.Result{}, c.redact(method, err)
	}
	if !gjson.Valid(body) {
		return gjson.Result{}, fmt.Errorf("telegram %s: invalid JSON response", method)
	}

	res := gjson.Parse(body)
	if !res.Get("ok").Bool() {
		return res, &APIError{
			Method:      method,
			Code:        res.Get("error_code").Int(),
			Description: res.Get("description").String(),
			RetryAfter:  res.Get("parameters.retry_after").Int(),
		}
	}
	return res.Get("result"), nil
}

// redactedError hides the bot token, which is part of every request URL
type redactedError struct {
	msg string
	err error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.err }

func (c *Client) redact(method string, err error) error {
	msg := strings.ReplaceAll(err.Error(), c.token, util.MaskSecret(c.token))
	return &redactedError{msg: fmt.Sprintf("telegram %s: %s", method, msg), err: err}
}

// payload builds a JSON object from alternating key/value pairs
func payload(kv ...interface{}) (string, error) {
	out := "{}"
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		var err error
		switch v := kv[i+1].(type) {
		case Keyboard:
			if v == nil {
				continue
			}
			out, err = sjson.SetRaw(out, key, v.Markup())
		default:
			out, err = sjson.Set(out, key, v)
		}
		if err != nil {
			return "", fmt.Errorf("failed to build payload: %w", err)
		}
	}
	return out, nil
}

// chatID sends numeric IDs as numbers and anything else (channel names) as strings
func chatID(id string) interface{} {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}

// SendMessage sends text with an optional inline keyboard and returns the
// new message ID
func (c *Client) SendMessage(ctx context.Context, conversationID, text string, keyboard Keyboard) (int, error) {
	body, err := payload("chat_id", chatID(conversationID), "text", text, "reply_markup", keyboard)
	if err != nil {
		return 0, err
	}
	res, err := c.call(ctx, "sendMessage", body)
	if err != nil {
		return 0, err
	}
	return int(res.Get("message_id").Int()), nil
}

// Send implements the outbox sender
func (c *Client) Send(ctx context.Context, conversationID, text string) error {
	_, err := c.SendMessage(ctx, conversationID, text, nil)
	return err
}

// EditMessageText replaces the text and keyboard of a sent message. An edit
// that changes nothing is not an error.
func (c *Client) EditMessageText(ctx context.Context, conversationID string, messageID int, text string, keyboard Keyboard) error {
	body, err := payload("chat_id", chatID(conversationID), "message_id", messageID, "text", text, "reply_markup", keyboard)
	if err != nil {
		return err
	}
	_, err = c.call(ctx, "editMessageText", body)
	if IsNotModified(err) {
		return nil
	}
	return err
}

// DeleteMessage removes a message from the chat
func (c *Client) DeleteMessage(ctx context.Context, conversationID string, messageID int) error {
	body, err := payload("chat_id", chatID(conversationID), "message_id", messageID)
	if err != nil {
		return err
	}
	_, err = c.call(ctx, "deleteMessage", body)
	return err
}

// SendAnimation sends a GIF by file ID or URL
func (c *Client) SendAnimation(ctx context.Context, conversationID, animation, caption string) error {
	body, err := payload("chat_id", chatID(conversationID), "animation", animation, "caption", caption)
	if err != nil {
		return err
	}
	_, err = c.call(ctx, "sendAnimation", body)
	return err
}

// AnswerCallbackQuery acknowledges a button press
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackID string) error {
	body, err := payload("callback_query_id", callbackID)
	if err != nil {
		return err
	}
	_, err = c.call(ctx, "answerCallbackQuery", body)
	return err
}

// SetWebhook registers the update endpoint; secretToken is echoed by
// Telegram in the X-Telegram-Bot-Api-Secret-Token header
func (c *Client) SetWebhook(ctx context.Context, url, secretToken string) error {
	kv := []interface{}{"url", url, "allowed_updates", []string{"message", "callback_query"}}
	if secretToken != "" {
		kv = append(kv, "secret_token", secretToken)
	}
	body, err := payload(kv...)
	if err != nil {
		return err
	}
	_, err = c.call(ctx, "setWebhook", body)
	return err
}

// DeleteWebhook switches the bot back to getUpdates delivery
func (c *Client) DeleteWebhook(ctx context.Context) error {
	_, err := c.call(ctx, "deleteWebhook", "{}")
	return err
}

// GetMe returns the bot username, useful to check the token on start
func (c *Client) GetMe(ctx context.Context) (string, error) {
	res, err := c.call(ctx, "getMe", "{}")
	if err != nil {
		return "", err
	}
	return res.Get("username").String(), nil
}

// GetUpdates long-polls for updates after offset
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	body, err := payload("offset", offset, "timeout", int(timeout.Seconds()), "allowed_updates", []string{"message", "callback_query"})
	if err != nil {
		return nil, err
	}
	res, err := c.call(ctx, "getUpdates", body)
	if err != nil {
		return nil, err
	}

	var updates []Update
	for _, raw := range res.Array() {
		updates = append(updates, parseUpdate(raw))
	}
	return updates, nil
}

// IsNotModified reports the harmless "message is not modified" edit error
func IsNotModified(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(apiErr.Description), "message is not modified")
}

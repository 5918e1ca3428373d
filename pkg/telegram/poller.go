// SPDX-FileCopyrightText: © 2025 Nfrastack <code@nfrastack.com>
//
// SPDX-License-Identifier: BSD-3-Clause

package telegram

import (
	"context"
	"errors"
	"time"
)

const (
	DefaultPollTimeout = 30 * time.Second
	pollRetryDelay     = 3 * time.Second
)

// Handler receives updates from the poller or the webhook server
type Handler interface {
	HandleUpdate(ctx context.Context, u Update)
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, u Update)

func (f HandlerFunc) HandleUpdate(ctx context.Context, u Update) {
	f(ctx, u)
}

// Poll receives updates with getUpdates until ctx is done. Updates are
// handed to h one at a time, in order.
func (c *Client) Poll(ctx context.Context, h Handler, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}
	if timeout >= c.httpClient.Timeout {
		timeout = c.httpClient.Timeout / 2
	}

	c.logger.Info("Starting long polling (timeout %v)", timeout)
	var offset int64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		updates, err := c.GetUpdates(ctx, offset, timeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			delay := pollRetryDelay
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
				delay = time.Duration(apiErr.RetryAfter) * time.Second
			}
			c.logger.Warn("getUpdates failed, retrying in %v: %v", delay, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}

		for _, u := range updates {
			if u.ID >= offset {
				offset = u.ID + 1
			}
			if !u.Handled() {
				c.logger.Trace("Skipping update %d", u.ID)
				continue
			}
			h.HandleUpdate(ctx, u)
		}
	}
}

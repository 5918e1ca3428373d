// SPDX-FileCopyrightText: © 2025 Nfrastack <code@nfrastack.com>
//
// SPDX-License-Identifier: BSD-3-Clause

package bot

import (
	"zonesync/pkg/bulk"
	"zonesync/pkg/log"
	"zonesync/pkg/session"
	"zonesync/pkg/util"

	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

func (c *Controller) handleStart(ctx context.Context, conversationID string) error {
	sess, err := c.sessions.Get(conversationID)
	if err != nil {
		return err
	}
	if sess.Authenticated {
		c.reply(ctx, conversationID, msgWelcomeBack, nil)
		c.showMenu(ctx, conversationID)
		return nil
	}
	c.reply(ctx, conversationID, msgWelcome, nil)
	c.setState(conversationID, session.StateAwaitPassword)
	return nil
}

// handlePassword compares the upper-cased input with the admin password
func (c *Controller) handlePassword(ctx context.Context, conversationID, text string) error {
	password, _ := c.settings()
	if password == "" || strings.ToUpper(text) != password {
		log.Action(conversationID, "AUTH_FAIL", util.MaskSecret(text))
		c.reply(ctx, conversationID, msgAuthFailed, nil)
		return nil
	}

	if _, err := c.sessions.Upsert(conversationID, func(s *session.Session) error {
		s.Authenticated = true
		s.State = session.StateMainMenu
		return nil
	}); err != nil {
		return err
	}
	log.Action(conversationID, "AUTH_SUCCESS", "")
	c.reply(ctx, conversationID, msgAuthOK, nil)
	c.showMenu(ctx, conversationID)
	return nil
}

func (c *Controller) handleAddToken(ctx context.Context, conversationID string) error {
	if _, err := c.sessions.Upsert(conversationID, func(s *session.Session) error {
		s.State = session.StateAwaitName
		s.SetTemp(session.TempTokenName, "")
		return nil
	}); err != nil {
		return err
	}
	c.reply(ctx, conversationID, msgEnterTokenName, nil)
	return nil
}

func (c *Controller) handleTokenName(ctx context.Context, conversationID, name string) error {
	if name == "" {
		c.reply(ctx, conversationID, msgEmptyTokenName, nil)
		return nil
	}
	if _, err := c.sessions.Upsert(conversationID, func(s *session.Session) error {
		s.SetTemp(session.TempTokenName, name)
		s.State = session.StateAwaitToken
		return nil
	}); err != nil {
		return err
	}
	c.reply(ctx, conversationID, msgEnterToken, nil)
	return nil
}

func (c *Controller) handleToken(ctx context.Context, conversationID string, sess session.Session, token string) error {
	if token == "" {
		c.reply(ctx, conversationID, msgEmptyToken, nil)
		return nil
	}

	name := sess.TempData[session.TempTokenName]
	_, err := c.sessions.Upsert(conversationID, func(s *session.Session) error {
		if name == "" {
			return errors.New("token name was not staged")
		}
		s.AddCredential(name, token, time.Now())
		s.SetTemp(session.TempTokenName, "")
		s.State = session.StateMainMenu
		return nil
	})
	if err != nil {
		c.logger.Error("Failed to save API token for %s: %v", conversationID, err)
		c.reply(ctx, conversationID, msgTokenSaveFailed, nil)
		return nil
	}

	log.Action(conversationID, "ADD_API_TOKEN", name)
	c.reply(ctx, conversationID, fmt.Sprintf(msgTokenSaved, name), nil)
	c.showMenu(ctx, conversationID)
	return nil
}

func (c *Controller) handleListTokens(ctx context.Context, conversationID string, sess session.Session) error {
	if len(sess.Tokens) == 0 {
		c.reply(ctx, conversationID, msgNoTokens, nil)
		c.showMenu(ctx, conversationID)
		return nil
	}
	c.reply(ctx, conversationID, msgTokenList, tokenKeyboard(sess, true))
	c.showMenu(ctx, conversationID)
	return nil
}

func (c *Controller) handleSelectToken(ctx context.Context, conversationID, id string) error {
	_, err := c.sessions.Upsert(conversationID, func(s *session.Session) error {
		if _, ok := s.Credential(id); !ok {
			return session.ErrCredentialNotFound
		}
		s.SetTemp(session.TempSelectedToken, id)
		return nil
	})
	if errors.Is(err, session.ErrCredentialNotFound) {
		c.reply(ctx, conversationID, msgTokenInvalid, nil)
		return nil
	}
	if err != nil {
		return err
	}
	c.reply(ctx, conversationID, msgTokenSelected, nil)
	c.showMenu(ctx, conversationID)
	return nil
}

func (c *Controller) handleDeleteToken(ctx context.Context, conversationID, id string) error {
	var name string
	_, err := c.sessions.Upsert(conversationID, func(s *session.Session) error {
		cred, _ := s.Credential(id)
		name = cred.Name
		if !s.RemoveCredential(id) {
			return session.ErrCredentialNotFound
		}
		return nil
	})
	switch {
	case errors.Is(err, session.ErrCredentialNotFound):
		c.reply(ctx, conversationID, msgTokenDeleteFail, nil)
	case err != nil:
		return err
	default:
		log.Action(conversationID, "DELETE_API_TOKEN", name)
		c.reply(ctx, conversationID, msgTokenDeleted, nil)
	}
	c.showMenu(ctx, conversationID)
	return nil
}

func (c *Controller) handleAddDNS(ctx context.Context, conversationID string, sess session.Session) error {
	if len(sess.Tokens) == 0 {
		c.reply(ctx, conversationID, msgAddTokenFirst, nil)
		c.showMenu(ctx, conversationID)
		return nil
	}

	_, cred, ok := sess.SelectedCredential()
	if !ok {
		c.reply(ctx, conversationID, msgSelectFirst, nil)
		c.reply(ctx, conversationID, msgSelectToken, tokenKeyboard(sess, false))
		c.showMenu(ctx, conversationID)
		return nil
	}

	c.setState(conversationID, session.StateAwaitSub)
	c.reply(ctx, conversationID, fmt.Sprintf(msgUsingAccount, cred.Name), nil)
	c.reply(ctx, conversationID, msgEnterSubdomain, nil)
	return nil
}

func (c *Controller) handleSubdomain(ctx context.Context, conversationID, subdomain string) error {
	if err := bulk.ValidateSubdomain(subdomain); err != nil {
		c.reply(ctx, conversationID, msgBadSubdomain, nil)
		return nil
	}
	if _, err := c.sessions.Upsert(conversationID, func(s *session.Session) error {
		s.SetTemp(session.TempSubdomain, subdomain)
		s.State = session.StateAwaitIP
		return nil
	}); err != nil {
		return err
	}
	c.reply(ctx, conversationID, msgEnterIP, nil)
	return nil
}

func (c *Controller) handleIP(ctx context.Context, conversationID, ip string) error {
	if err := bulk.ValidateIP(ip); err != nil {
		if errors.Is(err, bulk.ErrPrivateIP) {
			c.reply(ctx, conversationID, msgPrivateIP, nil)
		} else {
			c.reply(ctx, conversationID, msgBadIP, nil)
		}
		return nil
	}

	if err := c.startSync(ctx, conversationID, ip); err != nil {
		c.logger.Error("Error processing DNS records for %s: %v", conversationID, err)
		c.offerRetry(ctx, conversationID)
	}
	return nil
}

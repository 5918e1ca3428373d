// SPDX-FileCopyrightText: © 2025 Nfrastack <code@nfrastack.com>
//
// SPDX-License-Identifier: BSD-3-Clause

package bot

import (
	"zonesync/pkg/session"
	"zonesync/pkg/telegram"

	"context"
)

// Callback data carried by inline buttons
const (
	cbAddToken    = "add_token"
	cbListTokens  = "list_tokens"
	cbAddDNS      = "add_dns"
	cbCancel      = "cancel"
	cbShowMenu    = "show_menu"
	cbSelectToken = "select_token"
	cbDeleteToken = "delete_token"
)

const (
	msgWelcomeBack     = "Welcome back! 🤡"
	msgWelcome         = "Welcome! Please enter your password:"
	msgAuthFirst       = "⚠️ Please authenticate first!"
	msgEnterPassword   = "Enter your password:"
	msgAuthOK          = "Authentication successful!"
	msgAuthFailed      = "Invalid password. Try again:"
	msgMainMenu        = "Main Menu:"
	msgGenericError    = "❌ An error occurred. Returning to main menu..."
	msgCancelled       = "✅ Operation cancelled."
	msgEnterTokenName  = "Enter a name for the API token:"
	msgEmptyTokenName  = "❌ Token name cannot be empty. Please try again:"
	msgEnterToken      = "Enter the Cloudflare API Token:"
	msgEmptyToken      = "❌ API Token cannot be empty. Please try again:"
	msgTokenSaved      = "✅ API Token '%s' saved successfully!"
	msgTokenSaveFailed = "❌ Failed to save API token. Please try again:"
	msgNoTokens        = "No API tokens found. Add one first!"
	msgTokenList       = "Your API Tokens:"
	msgTokenDeleted    = "✅ Token deleted successfully!"
	msgTokenDeleteFail = "❌ Failed to delete token."
	msgTokenSelected   = "✅ Token selected successfully!"
	msgTokenInvalid    = "❌ Invalid token."
	msgAddTokenFirst   = "Please add an API token first!"
	msgSelectFirst     = "Please select an API token first!"
	msgSelectToken     = "Select a token:"
	msgUsingAccount    = "👻 👻 Using Selected account: %s"
	msgEnterSubdomain  = "Enter the subdomain (use @ for root domain, * for wildcard):"
	msgBadSubdomain    = "❌ Invalid subdomain format! Please try again:"
	msgEnterIP         = "Enter the IP address for the subdomain:"
	msgBadIP           = "❌ Invalid IPv4 address! Please try again:"
	msgPrivateIP       = "⚠️ Private IPs are not allowed. Enter a public IP:"
	msgAlreadyRunning  = "⚠️ A process is already running. Use /cancel to stop it first."
	msgNoSelection     = "❌ No token selected. Please select a token first."
	msgFetching        = "🔍 Fetching domains..."
	msgRetryPrompt     = "❌ Failed to process DNS records. Would you like to try again?"
	msgChooseOption    = "Choose an option:"
	msgAllProcessed    = "🎉 All DNS records have been processed!"
)

var (
	cancelKeyboard = telegram.Keyboard{
		{{Text: "❌ Cancel Operation", Data: cbCancel}},
	}
	retryKeyboard = telegram.Keyboard{
		{{Text: "🔄 Try Again", Data: cbAddDNS}},
		{{Text: "🏠 Main Menu", Data: cbShowMenu}},
	}
)

func menuKeyboard(state session.State) telegram.Keyboard {
	kb := telegram.Keyboard{
		{{Text: "➕ Add API Token", Data: cbAddToken}},
		{{Text: "🔑 Manage API Tokens", Data: cbListTokens}},
		{{Text: "🌐 Add DNS Record", Data: cbAddDNS}},
	}
	if state != session.StateMainMenu {
		kb = append(kb, []telegram.Button{{Text: "❌ Cancel", Data: cbCancel}})
	}
	return kb
}

// tokenKeyboard lists credentials in creation order with a select button
// and, when withDelete is set, a delete button per row
func tokenKeyboard(sess session.Session, withDelete bool) telegram.Keyboard {
	var kb telegram.Keyboard
	for _, id := range sess.CredentialIDs() {
		cred, _ := sess.Credential(id)
		row := []telegram.Button{{Text: "✅ " + cred.Name, Data: cbSelectToken + ":" + id}}
		if withDelete {
			row = append(row, telegram.Button{Text: "🗑️ " + cred.Name, Data: cbDeleteToken + ":" + id})
		}
		kb = append(kb, row)
	}
	return kb
}

// showMenu replaces the previous menu message with a fresh one
func (c *Controller) showMenu(ctx context.Context, conversationID string) {
	sess, err := c.sessions.Get(conversationID)
	if err != nil {
		c.logger.Error("Failed to load session %s: %v", conversationID, err)
		return
	}

	if sess.MenuMessageID != 0 {
		if err := c.messenger.DeleteMessage(ctx, conversationID, sess.MenuMessageID); err != nil {
			c.logger.Trace("Old menu %d for %s already gone: %v", sess.MenuMessageID, conversationID, err)
		}
	}

	id := c.reply(ctx, conversationID, msgMainMenu, menuKeyboard(sess.State))
	if _, err := c.sessions.Upsert(conversationID, func(s *session.Session) error {
		s.MenuMessageID = id
		return nil
	}); err != nil {
		c.logger.Error("Failed to store menu message for %s: %v", conversationID, err)
	}
}

// SPDX-FileCopyrightText: © 2025 Nfrastack <code@nfrastack.com>
//
// SPDX-License-Identifier: BSD-3-Clause

package telegram

import (
	"errors"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var ErrInvalidUpdate = errors.New("invalid update payload")

// Update is the subset of a Bot API update the bot reacts to: a text
// message or a callback button press
type Update struct {
	ID             int64
	ConversationID string
	MessageID      int
	Text           string
	CallbackID     string
	CallbackData   string
}

// IsCallback reports whether the update is a button press
func (u Update) IsCallback() bool {
	return u.CallbackID != ""
}

// Handled reports whether the update carries anything the bot reacts to
func (u Update) Handled() bool {
	return u.ConversationID != "" && (u.IsCallback() || u.Text != "")
}

func parseUpdate(raw gjson.Result) Update {
	u := Update{ID: raw.Get("update_id").Int()}

	if cb := raw.Get("callback_query"); cb.Exists() {
		u.CallbackID = cb.Get("id").String()
		u.CallbackData = cb.Get("data").String()
		u.ConversationID = cb.Get("message.chat.id").String()
		u.MessageID = int(cb.Get("message.message_id").Int())
		return u
	}

	msg := raw.Get("message")
	if !msg.Exists() {
		msg = raw.Get("edited_message")
	}
	u.ConversationID = msg.Get("chat.id").String()
	u.MessageID = int(msg.Get("message_id").Int())
	u.Text = msg.Get("text").String()
	return u
}

// ParseUpdate decodes a webhook request body
func ParseUpdate(data []byte) (Update, error) {
	if !gjson.ValidBytes(data) {
		return Update{}, ErrInvalidUpdate
	}
	res := gjson.ParseBytes(data)
	if !res.Get("update_id").Exists() {
		return Update{}, ErrInvalidUpdate
	}
	return parseUpdate(res), nil
}

// Button is one inline keyboard button
type Button struct {
	Text string
	Data string
}

// Keyboard is an inline keyboard, one slice per row
type Keyboard [][]Button

// Markup renders the keyboard as a reply_markup object
func (k Keyboard) Markup() string {
	markup := `{"inline_keyboard":[]}`
	for _, row := range k {
		rowJSON := "[]"
		for _, b := range row {
			button, _ := sjson.Set("{}", "text", b.Text)
			button, _ = sjson.Set(button, "callback_data", b.Data)
			rowJSON, _ = sjson.SetRaw(rowJSON, "-1", button)
		}
		markup, _ = sjson.SetRaw(markup, "inline_keyboard.-1", rowJSON)
	}
	return markup
}

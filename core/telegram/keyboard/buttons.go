// Package keyboard builds inline keyboards whose callback payloads go through
// the callbacks codec.
package keyboard

import (
	"fmt"

	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/callbacks"

	tele "gopkg.in/telebot.v4"
)

// InlineBtn is a callback button when Data is set and a link button when URL is.
type InlineBtn struct {
	Text string
	Data string
	URL  string
}

func (b InlineBtn) tele() tele.InlineButton {
	return tele.InlineButton{Text: b.Text, Data: b.Data, URL: b.URL}
}

// Action encodes tag and args into a callback button.
func Action(text string, tag callbacks.Tag, args ...string) (InlineBtn, error) {
	data, err := callbacks.Encode(tag, args...)
	if err != nil {
		return InlineBtn{}, err
	}
	return InlineBtn{Text: text, Data: data}, nil
}

// Static is Action for argument-free tags. A tag that needs arguments panics.
func Static(text string, tag callbacks.Tag) InlineBtn {
	btn, err := Action(text, tag)
	if err != nil {
		panic(fmt.Sprintf("keyboard: static %q: %v", tag, err))
	}
	return btn
}

func Link(text, url string) InlineBtn { return InlineBtn{Text: text, URL: url} }

// CancelButton is the shared ❌ Cancel button; label replaces the text.
func CancelButton(label ...string) InlineBtn {
	if len(label) > 0 && label[0] != "" {
		return Static(label[0], callbacks.Cancel)
	}
	return Static("❌ Cancel", callbacks.Cancel)
}

// SingleCancelMarkup is a keyboard holding only CancelButton.
func SingleCancelMarkup() *tele.ReplyMarkup {
	return InlineButtonsRows([]InlineBtn{CancelButton()})
}

// ForceReply asks the client to open a reply to the bot's message.
func ForceReply() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{ForceReply: true, Selective: true}
}

// InlineButtons stacks buttons one per row.
func InlineButtons(buttons []InlineBtn) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{}
	for _, b := range buttons {
		m.InlineKeyboard = append(m.InlineKeyboard, []tele.InlineButton{b.tele()})
	}
	return m
}

// InlineButtonsRows lays out rows as given, skipping empty ones.
func InlineButtonsRows(rows ...[]InlineBtn) *tele.ReplyMarkup {
	m := &tele.ReplyMarkup{InlineKeyboard: [][]tele.InlineButton{}}
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		line := make([]tele.InlineButton, 0, len(row))
		for _, b := range row {
			line = append(line, b.tele())
		}
		m.InlineKeyboard = append(m.InlineKeyboard, line)
	}
	return m
}

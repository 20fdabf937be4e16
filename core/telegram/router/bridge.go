// Package router binds Telegram endpoints to the conversation engine.
package router

import (
	"context"
	"strings"

	"github.com/ritikbhatt20/copperx-telegram-bot/core/conversation"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/callbacks"
	tghelpers "github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// Engine consumes chat events. *conversation.Engine implements it.
type Engine interface {
	Handle(ctx context.Context, ev conversation.Event, out conversation.Responder) error
}

// eventFrom converts the update in c into an engine event of the given kind.
func eventFrom(c tele.Context, kind conversation.EventKind) conversation.Event {
	ev := conversation.Event{Kind: kind}
	ev.UserID, ev.ChatID = tghelpers.Identity(c)
	switch kind {
	case conversation.EventButton:
		ev.Payload = callbacks.RawData(c.Callback())
	case conversation.EventCommand:
		text := strings.TrimSpace(c.Text())
		name, args, _ := strings.Cut(text, " ")
		ev.Name = strings.TrimPrefix(name, "/")
		ev.Args = strings.TrimSpace(args)
		ev.Text = text
	default:
		ev.Text = c.Text()
	}
	return ev
}

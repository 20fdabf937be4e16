package router

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ritikbhatt20/copperx-telegram-bot/core/conversation"
	tg "github.com/ritikbhatt20/copperx-telegram-bot/core/telegram"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/callbacks"

	tele "gopkg.in/telebot.v4"
)

// mediaEndpoints are message kinds the bot cannot read.
var mediaEndpoints = []string{
	tele.OnDocument, tele.OnPhoto, tele.OnVideo, tele.OnAnimation,
	tele.OnVoice, tele.OnAudio, tele.OnSticker, tele.OnLocation, tele.OnContact,
}

// CallbackRoute hands every inline button press to the engine after clearing
// the client's loading spinner.
func CallbackRoute(eng Engine) tg.Route {
	return tg.Route{Endpoint: tele.OnCallback, Handler: func(c tele.Context) error {
		if c.Callback() == nil {
			return nil
		}
		_ = c.Respond()
		ev := eventFrom(c, conversation.EventButton)
		tag, _, _ := strings.Cut(ev.Payload, callbacks.Delimiter)
		return summarized(c, "callback."+handlerName(tag), func(ctx context.Context) error {
			return eng.Handle(ctx, ev, c)
		}, slog.String("action", tag))
	}}
}

// TextOptions controls replies to non-text messages.
type TextOptions struct {
	// UnknownMedia answers attachments. Nil leaves them unanswered.
	UnknownMedia tele.HandlerFunc
}

// TextRoutes sends free text to the engine. Slash text that matches no
// registered command arrives here too and the engine decides what to do.
func TextRoutes(eng Engine, opts TextOptions) []tg.Route {
	routes := []tg.Route{{Endpoint: tele.OnText, Handler: func(c tele.Context) error {
		ev := eventFrom(c, conversation.EventText)
		return summarized(c, "text", func(ctx context.Context) error {
			return eng.Handle(ctx, ev, c)
		})
	}}}

	media := func(c tele.Context) error {
		if opts.UnknownMedia == nil {
			skipped(c, "media")
			return nil
		}
		return summarized(c, "media", func(context.Context) error { return opts.UnknownMedia(c) })
	}
	for _, ep := range mediaEndpoints {
		routes = append(routes, tg.Route{Endpoint: ep, Handler: media})
	}
	return routes
}

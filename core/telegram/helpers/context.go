// Package helpers carries per-update state from the middleware chain to handlers.
package helpers

import (
	"context"

	"github.com/ritikbhatt20/copperx-telegram-bot/core/logger"

	tele "gopkg.in/telebot.v4"
)

const (
	keyContext = "copperx.ctx"
	// KeyRID holds the update's correlation id on tele.Context.
	KeyRID = "rid"
)

// Identity returns the sender and chat of the update. Either may be zero.
func Identity(c tele.Context) (userID, chatID int64) {
	if u := c.Sender(); u != nil {
		userID = u.ID
	}
	if ch := c.Chat(); ch != nil {
		chatID = ch.ID
	}
	return userID, chatID
}

// NewContext derives the logging context of the update in c and stores it on c,
// replacing any earlier one.
func NewContext(c tele.Context) context.Context {
	userID, chatID := Identity(c)
	updateID := c.Update().ID
	rid := logger.BuildRID(updateID, chatID, userID)

	ctx := logger.WithRID(context.Background(), rid)
	ctx = logger.WithUpdateMeta(ctx, updateID, userID, chatID)
	ctx = logger.WithLogger(ctx, logger.Component(logger.CompTG))
	c.Set(KeyRID, rid)
	c.Set(keyContext, ctx)
	return ctx
}

// BuildContext returns the context stored on c, creating it on first use.
func BuildContext(c tele.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if ctx, ok := c.Get(keyContext).(context.Context); ok {
		return ctx
	}
	return NewContext(c)
}

// WithHandler names the handler in the stored context.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := logger.WithHandler(BuildContext(c), handler)
	c.Set(keyContext, ctx)
	return ctx
}

package logger

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
)

type ctxKey int

const (
	keyMeta ctxKey = iota
	keyLogger
)

// Meta is the correlation data carried alongside one update.
type Meta struct {
	RID      string
	UpdateID int
	UserID   int64
	ChatID   int64
	Handler  string
	// Flow is the conversation flow active when the update arrived.
	Flow string
}

// MetaFrom returns the metadata stored in ctx, or the zero Meta.
func MetaFrom(ctx context.Context) Meta {
	if ctx == nil {
		return Meta{}
	}
	m, _ := ctx.Value(keyMeta).(Meta)
	return m
}

func withMeta(ctx context.Context, fn func(*Meta)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	m := MetaFrom(ctx)
	fn(&m)
	return context.WithValue(ctx, keyMeta, m)
}

// WithLogger stores log in ctx for propagation across layers.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, keyLogger, log)
}

// FromContext returns the logger stored in ctx, falling back to L.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(keyLogger).(*slog.Logger); ok {
			return l
		}
	}
	return L
}

// WithRID sets the correlation id.
func WithRID(ctx context.Context, rid string) context.Context {
	return withMeta(ctx, func(m *Meta) { m.RID = rid })
}

// RIDFrom returns the correlation id, if any.
func RIDFrom(ctx context.Context) string { return MetaFrom(ctx).RID }

// WithUpdateMeta records the Telegram identifiers of the update being handled.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	return withMeta(ctx, func(m *Meta) {
		m.UpdateID, m.UserID, m.ChatID = updateID, userID, chatID
	})
}

// WithHandler names the handler serving the update. Empty names are ignored.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" {
		return ctx
	}
	return withMeta(ctx, func(m *Meta) { m.Handler = handler })
}

// HandlerFrom returns the handler name, if any.
func HandlerFrom(ctx context.Context) string { return MetaFrom(ctx).Handler }

// WithFlow tags ctx with the active conversation flow. Empty kinds are ignored.
func WithFlow(ctx context.Context, flow string) context.Context {
	if flow == "" {
		return ctx
	}
	return withMeta(ctx, func(m *Meta) { m.Flow = flow })
}

// BuildRID derives a short correlation id from the update identifiers, each in
// base 36: "update.chat.user".
func BuildRID(updateID int, chatID, userID int64) string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(int64(updateID), 36))
	b.WriteByte('.')
	b.WriteString(strconv.FormatInt(chatID, 36))
	b.WriteByte('.')
	b.WriteString(strconv.FormatInt(userID, 36))
	return b.String()
}

func (m Meta) fields(e entry) {
	e.setDefault("rid", m.RID)
	e.setDefault("handler", m.Handler)
	e.setDefault("flow", m.Flow)
	if m.UpdateID != 0 {
		e.setDefault("update_id", int64(m.UpdateID))
	}
	if m.UserID != 0 {
		e.setDefault("user_id", m.UserID)
	}
	if m.ChatID != 0 {
		e.setDefault("chat_id", m.ChatID)
	}
}

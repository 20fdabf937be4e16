package router

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/ritikbhatt20/copperx-telegram-bot/core/logger"
	tghelpers "github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/helpers"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// summarized runs fn under a handler-scoped context and logs one line for it.
func summarized(c tele.Context, name string, fn func(ctx context.Context) error, extras ...slog.Attr) error {
	start := time.Now()
	ctx := tghelpers.WithHandler(c, name)
	err := fn(ctx)

	status, outcome := "ok", "ok"
	if err != nil {
		status, outcome = "fail", "fail"
	}
	replies := middleware.RepliesFrom(c)
	attrs := append([]slog.Attr{
		slog.String("status", status),
		slog.String("outcome", outcome),
		slog.Int("messages", replies.Messages),
		slog.Int("keyboards", replies.Keyboards),
		slog.Duration("duration", time.Since(start)),
	}, extras...)
	if replies.Failed > 0 {
		attrs = append(attrs, slog.Int("send_failed", replies.Failed))
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", deriveErrorCode(err)),
		)
	}
	logger.Info(ctx, logger.CompTG, "handler.handled", attrs...)
	return err
}

// skipped logs an update that was deliberately left unanswered.
func skipped(c tele.Context, name string) {
	logger.Info(tghelpers.WithHandler(c, name), logger.CompTG, "handler.handled",
		slog.String("status", "skip"),
		slog.String("outcome", "ok"),
	)
}

// handlerName lowercases name, drops a leading slash and replaces spaces.
func handlerName(name string) string {
	name = strings.TrimPrefix(strings.TrimSpace(name), "/")
	if name == "" {
		return "unknown"
	}
	return strings.ToLower(strings.ReplaceAll(name, " ", "_"))
}

// deriveErrorCode prefers an error's own Code and falls back to its type name.
func deriveErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var c interface{ Code() string }
	if errors.As(err, &c) {
		if code := strings.TrimSpace(c.Code()); code != "" {
			return strings.ToUpper(strings.ReplaceAll(code, " ", "_"))
		}
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return "UNKNOWN_ERROR"
	}
	return strings.ToUpper(t.Name())
}

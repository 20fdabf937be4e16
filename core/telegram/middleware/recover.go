package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/ritikbhatt20/copperx-telegram-bot/core/logger"
	tghelpers "github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// PanicError replaces a recovered handler panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("handler panic: %v", e.Value) }

// Code classifies the error for handler summaries.
func (e *PanicError) Code() string { return "PANIC" }

// RecoverMiddleware turns a handler panic into a *PanicError.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			perr := &PanicError{Value: r, Stack: debug.Stack()}
			logger.Error(tghelpers.BuildContext(c), logger.CompTG, "tg.panic",
				slog.Any("err", r),
				slog.String("stack", logger.SanitizeLimit(string(perr.Stack), 4096)),
			)
			err = perr
		}()
		return next(c)
	}
}

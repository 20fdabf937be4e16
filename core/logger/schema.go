package logger

import (
	"log/slog"
	"strings"
)

// Component names used across the bot.
const (
	CompApp     = "app"
	CompDB      = "db"
	CompMigrate = "db.migrate"
	CompTG      = "tg"
	CompTGWire  = "tg.wire"
	CompSession = "session"
	CompCopperx = "copperx"
	CompFlow    = "flow"
	CompNotify  = "notify"
	CompHealth  = "health"
)

type vocab map[string]struct{}

func newVocab(words ...string) vocab {
	v := make(vocab, len(words))
	for _, w := range words {
		v[w] = struct{}{}
	}
	return v
}

func (v vocab) lookup(s string) (string, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	_, ok := v[s]
	return s, ok
}

var (
	statuses = newVocab("ok", "fail", "skip", "retry", "rate_limited", "cancelled")
	outcomes = newVocab("ok", "fail", "cancelled", "rate_limited", "expired")
)

// levelLabel renders slog levels with the four names the sinks expect; anything
// above error is FATAL.
func levelLabel(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return "DEBUG"
	case l < slog.LevelWarn:
		return "INFO"
	case l < slog.LevelError:
		return "WARN"
	case l == slog.LevelError:
		return "ERROR"
	}
	return "FATAL"
}

const redactedValue = "[redacted]"

// sensitiveKeys never reach a sink in clear text. Grouped keys match on the leaf name.
var sensitiveKeys = map[string]struct{}{
	"access_token":    {},
	"token":           {},
	"otp":             {},
	"quote_signature": {},
	"quote_payload":   {},
	"auth":            {},
}

func isSensitive(key string) bool {
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		key = key[i+1:]
	}
	_, ok := sensitiveKeys[strings.ToLower(key)]
	return ok
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"update_id",
	"user_id",
	"chat_id",
	"handler",
	"flow",
	"step",
	"action",
	"kind",
	"login_state",
	"outcome",
	"duration_ms",
	"took_ms",
	"op",
	"method",
	"endpoint",
	"http_code",
	"network",
	"channel",
	"items",
	"responses",
	"backend",
	"mode",
	"listen",
	"public_url",
	"err",
	"err_code",
	"retryable",
	"retry_after_ms",
	"attempts",
	"backoff_ms",
	"queue_depth",
	"ts_unix_nano",
}

// Package logger is the bot's structured logging layer on top of log/slog.
//
// Records are flattened into one JSON object or key=value line per event, with
// the correlation fields of the current update (see Meta) attached from the
// context. Secrets listed in sensitiveKeys are redacted before encoding.
package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/ritikbhatt20/copperx-telegram-bot/core/buildinfo"
	coreconfig "github.com/ritikbhatt20/copperx-telegram-bot/core/config"
)

var (
	initOnce sync.Once

	shutdownMu sync.Mutex
	shutDown   bool

	logWriter  *lineWriter
	logClosers []io.Closer

	levelVar slog.LevelVar

	debugSampler  = newSampler(1, 50)
	traceOverride bool

	// L is the base logger. It stays nil until InitLogger runs; the helpers below
	// drop events in that case.
	L *slog.Logger
)

var levelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// InitLogger configures the global logger from cfg. Only the first call has effect.
func InitLogger(cfg *coreconfig.Config) error {
	var initErr error
	initOnce.Do(func() {
		var lc coreconfig.LoggingConfig
		var runMode, backend string
		if cfg != nil {
			lc = cfg.Logging
			runMode, backend = cfg.Telegram.RunMode, cfg.Session.Backend
		}

		levelVar.Set(selectLevel(lc.Level))
		debugSampler.Set(parseDebugSample(lc.DebugSample))
		traceOverride = envFlag("TRACE") || envFlag("LOG_TRACE")

		outputs := []io.Writer{os.Stdout}
		if f, err := openLogFile(lc.Dir, lc.BotFile); err != nil {
			initErr = err
			return
		} else if f != nil {
			outputs = append(outputs, f)
			logClosers = append(logClosers, f)
		}
		logWriter = newLineWriter(outputs, 64<<10, 512)

		L = slog.New(newStructuredHandler(handlerConfig{
			level:    &levelVar,
			out:      logWriter,
			format:   selectFormat(lc),
			keyOrder: selectKeyOrder(lc.KeysOrder),
		}))
		slog.SetDefault(L)

		L.LogAttrs(context.Background(), slog.LevelInfo, "startup",
			slog.String("component", "app"),
			slog.String("event", "startup"),
			slog.String("go_version", runtime.Version()),
			slog.String("build_version", buildinfo.Version),
			slog.String("build_commit", buildinfo.Commit),
			slog.String("profile", selectProfile(lc.Profile)),
			slog.String("mode", runMode),
			slog.String("backend", backend),
		)
	})
	return initErr
}

// Shutdown flushes buffered output and closes file sinks. Later calls are no-ops.
func Shutdown() error {
	shutdownMu.Lock()
	defer shutdownMu.Unlock()
	if shutDown {
		return nil
	}
	shutDown = true

	var errs []error
	if logWriter != nil {
		errs = append(errs, logWriter.Flush(), logWriter.Close())
	}
	for _, c := range logClosers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func selectFormat(lc coreconfig.LoggingConfig) logFormat {
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		return formatKV
	case "json":
		return formatJSON
	}
	switch selectProfile(lc.Profile) {
	case "debug", "dev":
		return formatKV
	}
	return formatJSON
}

// selectKeyOrder parses a comma separated key list; "" and "default" keep the
// built-in order.
func selectKeyOrder(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "default" {
		return defaultKeyOrder
	}
	var order []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			order = append(order, k)
		}
	}
	if len(order) == 0 {
		return defaultKeyOrder
	}
	return order
}

func selectLevel(raw string) slog.Level {
	if lvl, ok := levelNames[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return lvl
	}
	return slog.LevelInfo
}

func selectProfile(raw string) string {
	if p := strings.ToLower(strings.TrimSpace(raw)); p != "" {
		return p
	}
	return "prod"
}

// openLogFile opens dir/name for appending. It returns nil when either part is empty.
func openLogFile(dir, name string) (*os.File, error) {
	dir, name = strings.TrimSpace(dir), strings.TrimSpace(name)
	if dir == "" || name == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logger: create log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logger: open log file: %w", err)
	}
	return f, nil
}

// parseDebugSample reads logging.debug_sample. Unreadable or empty specs keep
// one in fifty.
func parseDebugSample(spec string) (int, int) {
	num, den, ok := parseRatio(spec)
	if !ok {
		return 1, 50
	}
	return num, den
}

func envFlag(name string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(name))) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// LogEvent writes an event through logg, or through the context logger when logg is nil.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if logg == nil {
		return
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

// Component returns L scoped to a component, or nil before InitLogger.
func Component(name string) *slog.Logger {
	if L == nil {
		return nil
	}
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

// Event logs under component, preferring the base logger over the context one.
func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	logg := Component(component)
	if logg == nil {
		if logg = FromContext(ctx); logg != nil && component != "" {
			logg = logg.With("component", component)
		}
	}
	LogEvent(ctx, logg, level, event, attrs...)
}

func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}

// ShouldSampleDebug reports whether a high-volume debug event should be logged.
// TRACE=1 disables sampling.
func ShouldSampleDebug() bool {
	return traceOverride || debugSampler.Allow()
}

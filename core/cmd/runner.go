// Package cmd holds the process entry point shared by the bot binaries.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	coreconfig "github.com/ritikbhatt20/copperx-telegram-bot/core/config"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/logger"
	coretelegram "github.com/ritikbhatt20/copperx-telegram-bot/core/telegram"
)

// App is what Run drives. Close, if implemented, runs after the bot stops.
type App interface {
	TelegramRunOptions() (coretelegram.RunOptions, error)
}

// Options wires Run to a concrete binary.
type Options struct {
	// ConfigEnvVar names the variable holding the config path. Defaults to CONFIG_PATH.
	ConfigEnvVar      string
	DefaultConfigPath string

	LoadConfig func(path string) (*coreconfig.Config, error)
	Bootstrap  func(ctx context.Context, cfg *coreconfig.Config) (App, error)

	// Test seams.
	ShutdownLogger func() error
	RunTelegram    func(ctx context.Context, opts coretelegram.RunOptions) error
	Signals        []os.Signal
}

var errNoConfigPath = errors.New("cmd: no config path")

// Run loads configuration, builds the app and blocks until the bot stops or a
// shutdown signal arrives.
func Run(opts Options) error {
	if opts.LoadConfig == nil || opts.Bootstrap == nil {
		return errors.New("cmd: LoadConfig and Bootstrap are required")
	}
	path, err := configPath(opts)
	if err != nil {
		return err
	}

	started := time.Now()
	cfg, err := opts.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("cmd: load %s: %w", path, err)
	}

	shutdown := opts.ShutdownLogger
	if shutdown == nil {
		shutdown = logger.Shutdown
	}
	defer func() {
		if serr := shutdown(); serr != nil {
			log.Printf("logger shutdown: %v", serr)
		}
	}()

	sigs := opts.Signals
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	ctx, stop := signal.NotifyContext(context.Background(), sigs...)
	defer stop()

	app, err := opts.Bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap: %w", err)
	}
	if c, ok := app.(interface{ Close() error }); ok {
		defer func() {
			if cerr := c.Close(); cerr != nil {
				logger.Warn(context.Background(), logger.CompApp, "app.close_failed", slog.String("err", cerr.Error()))
			}
		}()
	}

	runOpts, err := app.TelegramRunOptions()
	if err != nil {
		return fmt.Errorf("cmd: run options: %w", err)
	}
	withLifecycleLogs(&runOpts, started)

	run := opts.RunTelegram
	if run == nil {
		run = coretelegram.RunTelegram
	}
	return run(ctx, runOpts)
}

func configPath(opts Options) (string, error) {
	env := opts.ConfigEnvVar
	if env == "" {
		env = "CONFIG_PATH"
	}
	if p := os.Getenv(env); p != "" {
		return p, nil
	}
	if opts.DefaultConfigPath != "" {
		return opts.DefaultConfigPath, nil
	}
	return "", fmt.Errorf("%w: set %s", errNoConfigPath, env)
}

// withLifecycleLogs logs app.ready after the existing OnStart hook and
// app.stopping before OnStop.
func withLifecycleLogs(opts *coretelegram.RunOptions, started time.Time) {
	onStart, onStop := opts.OnStart, opts.OnStop
	opts.OnStart = func(ctx context.Context, rt coretelegram.Runtime) error {
		if onStart != nil {
			if err := onStart(ctx, rt); err != nil {
				return err
			}
		}
		logger.Info(ctx, logger.CompApp, "app.ready", slog.Duration("startup", logger.Took(started)))
		return nil
	}
	opts.OnStop = func(ctx context.Context, rt coretelegram.Runtime) error {
		logger.Info(ctx, logger.CompApp, "app.stopping")
		if onStop == nil {
			return nil
		}
		return onStop(ctx, rt)
	}
}

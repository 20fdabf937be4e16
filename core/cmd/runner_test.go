package cmd

import (
	"context"
	"errors"
	"testing"

	coreconfig "github.com/ritikbhatt20/copperx-telegram-bot/core/config"
	coretelegram "github.com/ritikbhatt20/copperx-telegram-bot/core/telegram"
)

type fakeApp struct {
	started, stopped, closed bool
}

func (a *fakeApp) TelegramRunOptions() (coretelegram.RunOptions, error) {
	return coretelegram.RunOptions{
		OnStart: func(context.Context, coretelegram.Runtime) error { a.started = true; return nil },
		OnStop:  func(context.Context, coretelegram.Runtime) error { a.stopped = true; return nil },
	}, nil
}

func (a *fakeApp) Close() error { a.closed = true; return nil }

func TestRunDrivesLifecycle(t *testing.T) {
	t.Setenv("COPPERX_TEST_CONFIG", "from-env.yaml")
	app := &fakeApp{}
	var loaded string
	shutdowns := 0

	err := Run(Options{
		ConfigEnvVar:      "COPPERX_TEST_CONFIG",
		DefaultConfigPath: "ignored.yaml",
		LoadConfig: func(path string) (*coreconfig.Config, error) {
			loaded = path
			return &coreconfig.Config{}, nil
		},
		Bootstrap: func(context.Context, *coreconfig.Config) (App, error) { return app, nil },
		ShutdownLogger: func() error {
			shutdowns++
			return nil
		},
		RunTelegram: func(ctx context.Context, opts coretelegram.RunOptions) error {
			if err := opts.OnStart(ctx, coretelegram.Runtime{}); err != nil {
				return err
			}
			return opts.OnStop(ctx, coretelegram.Runtime{})
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if loaded != "from-env.yaml" {
		t.Fatalf("loaded %q", loaded)
	}
	if !app.started || !app.stopped || !app.closed {
		t.Fatalf("lifecycle = %+v", app)
	}
	if shutdowns != 1 {
		t.Fatalf("logger shutdowns = %d", shutdowns)
	}
}

func TestRunRequiresConfigPath(t *testing.T) {
	t.Setenv("COPPERX_TEST_CONFIG", "")
	err := Run(Options{
		ConfigEnvVar: "COPPERX_TEST_CONFIG",
		LoadConfig:   func(string) (*coreconfig.Config, error) { return nil, nil },
		Bootstrap:    func(context.Context, *coreconfig.Config) (App, error) { return nil, nil },
	})
	if !errors.Is(err, errNoConfigPath) {
		t.Fatalf("err = %v", err)
	}
}

func TestRunSurfacesBootstrapError(t *testing.T) {
	boom := errors.New("boom")
	err := Run(Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig:        func(string) (*coreconfig.Config, error) { return &coreconfig.Config{}, nil },
		Bootstrap:         func(context.Context, *coreconfig.Config) (App, error) { return nil, boom },
		ShutdownLogger:    func() error { return nil },
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

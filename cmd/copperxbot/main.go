package main

import (
	"context"
	"log"

	"github.com/ritikbhatt20/copperx-telegram-bot/core/app"
	corecmd "github.com/ritikbhatt20/copperx-telegram-bot/core/cmd"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/config"
)

func main() {
	err := corecmd.Run(corecmd.Options{
		DefaultConfigPath: "config.yaml",
		LoadConfig:        config.Load,
		Bootstrap: func(ctx context.Context, cfg *config.Config) (corecmd.App, error) {
			return app.New(ctx, cfg, app.Deps{})
		},
	})
	if err != nil {
		log.Fatal(err)
	}
}

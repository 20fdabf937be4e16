package router

import (
	"context"
	"log/slog"

	"github.com/ritikbhatt20/copperx-telegram-bot/core/buildinfo"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/conversation"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/logger"
	tg "github.com/ritikbhatt20/copperx-telegram-bot/core/telegram"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/commands"
	tghelpers "github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/helpers"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// CommandSpec describes one engine command for the menu.
type CommandSpec struct {
	Name        string
	Description string
	Hidden      bool
	Aliases     []string
}

// RegisterEngineCommands registers each CommandSpec as a command that forwards to eng.
func RegisterEngineCommands(reg *tg.Registry, eng Engine, specs []CommandSpec) error {
	h := EngineCommand(eng)
	for _, spec := range specs {
		err := reg.RegisterCommand("/"+spec.Name, commands.Command{
			Handler:     h,
			Description: spec.Description,
			Hidden:      spec.Hidden,
			Aliases:     spec.Aliases,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// EngineCommand forwards the current command update to eng.
func EngineCommand(eng Engine) tele.HandlerFunc {
	return func(c tele.Context) error {
		ev := eventFrom(c, conversation.EventCommand)
		return eng.Handle(tghelpers.BuildContext(c), ev, c)
	}
}

// VersionCommand replies with the build identifiers. Register it admin-only.
func VersionCommand() commands.Command {
	return commands.Command{
		Description: "Show build version",
		AdminOnly:   true,
		Hidden:      true,
		Handler: func(c tele.Context) error {
			return c.Send("copperx-bot " + buildinfo.Summary())
		},
	}
}

// CommandRouteOptions configures how commands are wrapped and exposed.
type CommandRouteOptions struct {
	AdminID       int64
	OnAdminReject tele.HandlerFunc
}

// CommandRoutes binds every registered command, and its aliases, to an endpoint.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}

	adminOnly := middleware.AdminOnlyMiddleware(middleware.AdminOptions{
		AdminID:  opts.AdminID,
		OnReject: opts.OnAdminReject,
	})

	entries := reg.Commands()
	var routes []tg.Route
	for _, e := range entries {
		name := "cmd." + handlerName(e.Name)
		inner := e.Handler
		if e.AdminOnly {
			inner = adminOnly(inner)
		}
		h := func(c tele.Context) error {
			return summarized(c, name, func(context.Context) error { return inner(c) })
		}
		routes = append(routes, tg.Route{Endpoint: e.Name, Handler: h})
		for _, alias := range e.Aliases {
			routes = append(routes, tg.Route{Endpoint: "/" + handlerName(alias), Handler: h})
		}
	}

	logger.Info(context.Background(), logger.CompTGWire, "routes.commands",
		slog.String("status", "ok"),
		slog.Int("commands", len(entries)),
		slog.Int("endpoints", len(routes)),
	)
	return routes
}

package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ritikbhatt20/copperx-telegram-bot/core/logger"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

var (
	ErrInvalidCommand   = errors.New("telegram: invalid command")
	ErrDuplicateCommand = errors.New("telegram: duplicate command")
)

// Entry is a registered command under its canonical "/name".
type Entry struct {
	Name string
	commands.Command
}

// Registry holds slash commands in registration order, which is also the
// order of the published menu. Button presses never pass through here.
type Registry struct {
	entries []Entry
	index   map[string]int // canonical names and aliases
}

func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// RegisterCommand adds cmd under name. Names and aliases are case-insensitive
// and may not collide with an existing registration.
func (r *Registry) RegisterCommand(name string, cmd commands.Command) error {
	key := canonical(name)
	if key == "/" || !strings.HasPrefix(strings.TrimSpace(name), "/") || cmd.Handler == nil || cmd.Description == "" {
		return fmt.Errorf("%w: %q", ErrInvalidCommand, name)
	}
	keys := []string{key}
	for _, a := range cmd.Aliases {
		keys = append(keys, canonical(a))
	}
	for _, k := range keys {
		if _, taken := r.index[k]; taken {
			return fmt.Errorf("%w: %s", ErrDuplicateCommand, k)
		}
	}
	for _, k := range keys {
		r.index[k] = len(r.entries)
	}
	r.entries = append(r.entries, Entry{Name: key, Command: cmd})
	return nil
}

// canonical lowercases name, strips a bot mention and ensures a leading slash.
func canonical(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name, _, _ = strings.Cut(name, "@")
	return "/" + strings.TrimPrefix(name, "/")
}

// LookupCommand resolves a name or alias, with or without slash or @mention.
func (r *Registry) LookupCommand(name string) (Entry, bool) {
	i, ok := r.index[canonical(name)]
	if !ok {
		return Entry{}, false
	}
	return r.entries[i], true
}

// Commands returns every registration in order.
func (r *Registry) Commands() []Entry {
	return append([]Entry(nil), r.entries...)
}

// Menu lists the commands shown in the Telegram menu.
func (r *Registry) Menu() []tele.Command {
	var menu []tele.Command
	for _, e := range r.entries {
		if e.Listed() {
			menu = append(menu, tele.Command{Text: strings.TrimPrefix(e.Name, "/"), Description: e.Description})
		}
	}
	return menu
}

// CommandSetter is the part of *tele.Bot that publishes the command menu.
type CommandSetter interface {
	SetCommands(opts ...interface{}) error
}

// PublishMenu sends the menu to Telegram. Failures are logged only.
func PublishMenu(bot CommandSetter, reg *Registry) {
	menu := reg.Menu()
	if err := bot.SetCommands(menu); err != nil {
		logger.Error(context.Background(), logger.CompTGWire, "menu.publish_failed", slog.String("err", err.Error()))
		return
	}
	logger.Info(context.Background(), logger.CompTGWire, "menu.published", slog.Int("commands", len(menu)))
}

// Package commands describes bot commands independently of how they are routed.
package commands

import tele "gopkg.in/telebot.v4"

// Command is one slash command. Aliases route to the same handler but are never
// shown in the menu.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	// AdminOnly commands answer only the configured admin and stay out of the menu.
	AdminOnly bool
	Hidden    bool
	Aliases   []string
}

// Listed reports whether the command belongs in the public command menu.
func (c Command) Listed() bool { return !c.Hidden && !c.AdminOnly }

package middleware

import tele "gopkg.in/telebot.v4"

// AdminOptions configures AdminOnlyMiddleware.
type AdminOptions struct {
	AdminID int64
	// OnReject answers everyone else. Nil drops the update silently.
	OnReject tele.HandlerFunc
}

// AdminOnlyMiddleware passes only updates sent by AdminID. With no admin
// configured, nobody passes.
func AdminOnlyMiddleware(opts AdminOptions) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if isAdmin(c, opts.AdminID) {
				return next(c)
			}
			if opts.OnReject == nil {
				return nil
			}
			return opts.OnReject(c)
		}
	}
}

func isAdmin(c tele.Context, adminID int64) bool {
	u := c.Sender()
	return adminID != 0 && u != nil && u.ID == adminID
}

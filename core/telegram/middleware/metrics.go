package middleware

import tele "gopkg.in/telebot.v4"

const keyReplies = "replies"

// Replies tallies what handlers sent back for one update.
type Replies struct {
	Messages int
	// Keyboards counts messages that carried reply markup.
	Keyboards int
	Failed    int
}

type replyCounter struct {
	tele.Context
	r *Replies
}

func (rc replyCounter) tally(err error, opts []interface{}) error {
	if err != nil {
		rc.r.Failed++
		return err
	}
	rc.r.Messages++
	if carriesMarkup(opts) {
		rc.r.Keyboards++
	}
	return nil
}

func (rc replyCounter) Send(what interface{}, opts ...interface{}) error {
	return rc.tally(rc.Context.Send(what, opts...), opts)
}

func (rc replyCounter) Reply(what interface{}, opts ...interface{}) error {
	return rc.tally(rc.Context.Reply(what, opts...), opts)
}

func (rc replyCounter) Edit(what interface{}, opts ...interface{}) error {
	return rc.tally(rc.Context.Edit(what, opts...), opts)
}

func (rc replyCounter) EditOrSend(what interface{}, opts ...interface{}) error {
	return rc.tally(rc.Context.EditOrSend(what, opts...), opts)
}

func carriesMarkup(opts []interface{}) bool {
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.ReplyMarkup:
			return v != nil
		case *tele.SendOptions:
			return v != nil && v.ReplyMarkup != nil
		}
	}
	return false
}

// MessageMetricsMiddleware hands downstream handlers a context whose replies are
// tallied. Read the tally with RepliesFrom.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		r := &Replies{}
		c.Set(keyReplies, r)
		return next(replyCounter{Context: c, r: r})
	}
}

// RepliesFrom returns the tally of the current update, or zero outside the middleware.
func RepliesFrom(c tele.Context) Replies {
	if r, ok := c.Get(keyReplies).(*Replies); ok && r != nil {
		return *r
	}
	return Replies{}
}

// Package conversation routes chat events through per-user flows.
//
// The Engine is transport-agnostic: the Telegram router turns updates into Events
// and hands the engine something that can Send. All state lives in the session
// store, so routing depends only on the event and the stored session.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	tele "gopkg.in/telebot.v4"

	"github.com/ritikbhatt20/copperx-telegram-bot/core/config"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/copperx"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/logger"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/callbacks"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/state"
)

// EventKind tells commands, button presses and free text apart.
type EventKind int

const (
	EventCommand EventKind = iota + 1
	EventButton
	EventText
)

func (k EventKind) String() string {
	switch k {
	case EventCommand:
		return "command"
	case EventButton:
		return "button"
	case EventText:
		return "text"
	}
	return "unknown"
}

// Event is one inbound chat event for a single user.
type Event struct {
	Kind   EventKind
	UserID int64
	ChatID int64
	// Name is the command without its leading slash.
	Name string
	Args string
	// Payload is the raw callback data of a button press.
	Payload string
	Text    string
}

// Responder delivers replies to the user who produced the event.
type Responder interface {
	Send(what interface{}, opts ...interface{}) error
}

// Gateway is the subset of the Copperx API the flows call.
type Gateway interface {
	RequestOTP(ctx context.Context, email string) (copperx.OTPRequest, error)
	Authenticate(ctx context.Context, email, otp, sid string) (copperx.Auth, error)
	Profile(ctx context.Context, token string) (copperx.Profile, error)
	KYCs(ctx context.Context, token string) (copperx.KYCList, error)
	Wallets(ctx context.Context, token string) ([]copperx.Wallet, error)
	Balances(ctx context.Context, token string) ([]copperx.WalletBalances, error)
	DefaultBalance(ctx context.Context, token string) (copperx.WalletBalance, error)
	SetDefaultWallet(ctx context.Context, token, walletID string) (copperx.Wallet, error)
	Payees(ctx context.Context, token string) (copperx.PayeeList, error)
	CreatePayee(ctx context.Context, token string, req copperx.CreatePayeeRequest) (copperx.Payee, error)
	SendEmail(ctx context.Context, token string, req copperx.SendEmailRequest) (copperx.Transfer, error)
	SendWallet(ctx context.Context, token string, req copperx.SendWalletRequest) (copperx.Transfer, error)
	Accounts(ctx context.Context, token string) ([]copperx.Account, error)
	Quote(ctx context.Context, token string, req copperx.QuoteRequest) (copperx.Quote, error)
	ConfirmOfframp(ctx context.Context, token string, req copperx.OfframpTransferRequest) (copperx.Transfer, error)
	History(ctx context.Context, token string, page, limit int) (copperx.TransferList, error)
	SendBatch(ctx context.Context, token string, items []copperx.BatchItem) (copperx.BatchResult, error)
	Points(ctx context.Context, token, email string) (copperx.Points, error)
}

// Subscription identifies whose deposits to forward and where.
type Subscription struct {
	UserID         int64
	ChatID         int64
	Token          string
	OrganizationID string
}

// Notifier manages deposit notification subscriptions.
type Notifier interface {
	Subscribe(ctx context.Context, sub Subscription) error
	Unsubscribe(userID int64)
}

type noopNotifier struct{}

func (noopNotifier) Subscribe(context.Context, Subscription) error { return nil }
func (noopNotifier) Unsubscribe(int64)                             {}

// Options wires the engine's collaborators.
type Options struct {
	Store    state.Store
	Gateway  Gateway
	Notifier Notifier
	Copperx  config.CopperxConfig
	// Now and NewRequestID are overridable for tests.
	Now          func() time.Time
	NewRequestID func() string
}

// Engine dispatches events. It is safe for concurrent use across users; events of
// one user must be delivered sequentially.
type Engine struct {
	store        state.Store
	gw           Gateway
	notify       Notifier
	cfg          config.CopperxConfig
	scale        copperx.Scale
	now          func() time.Time
	newRequestID func() string

	commands map[string]handler
	actions  map[callbacks.Tag]actionHandler
}

type (
	handler       func(t *turn) error
	actionHandler func(t *turn, a callbacks.Action) error
)

// New validates opts and builds the routing tables.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil {
		return nil, errors.New("conversation: nil session store")
	}
	if opts.Gateway == nil {
		return nil, errors.New("conversation: nil gateway")
	}
	e := &Engine{
		store:        opts.Store,
		gw:           opts.Gateway,
		notify:       opts.Notifier,
		cfg:          opts.Copperx,
		now:          opts.Now,
		newRequestID: opts.NewRequestID,
	}
	if e.notify == nil {
		e.notify = noopNotifier{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newRequestID == nil {
		e.newRequestID = func() string { return uuid.New().String() }
	}
	decimals := e.cfg.ScaleDecimals
	if decimals <= 0 {
		decimals = int(copperx.DefaultScale.Decimals)
	}
	e.scale = copperx.Scale{Decimals: int32(decimals)}
	if e.cfg.Currency == "" {
		e.cfg.Currency = "USDC"
	}
	if e.cfg.PurposeCode == "" {
		e.cfg.PurposeCode = "self"
	}
	if e.cfg.HistoryLimit <= 0 {
		e.cfg.HistoryLimit = 10
	}
	e.routes()
	return e, nil
}

// Commands lists the command names the engine understands, without slashes.
func (e *Engine) Commands() []string {
	out := make([]string, 0, len(e.commands))
	for name := range e.commands {
		out = append(out, name)
	}
	return out
}

// HasCommand reports whether name (with or without slash) is routable.
func (e *Engine) HasCommand(name string) bool {
	_, ok := e.commands[strings.TrimPrefix(strings.ToLower(name), "/")]
	return ok
}

func (e *Engine) routes() {
	e.commands = map[string]handler{
		"start":      (*turn).showStart,
		"help":       (*turn).showHelp,
		"login":      (*turn).startLogin,
		"logout":     (*turn).logout,
		"cancel":     (*turn).cancel,
		"profile":    authed((*turn).showProfile),
		"kyc":        authed((*turn).showKYC),
		"wallets":    authed((*turn).showWallets),
		"balance":    authed((*turn).showBalances),
		"deposit":    authed((*turn).showDeposit),
		"setdefault": authed((*turn).showDefaultPicker),
		"send":       authed((*turn).startSend),
		"sendemail":  authed((*turn).startSendEmail),
		"addpayee":   authed((*turn).startAddPayee),
		"withdraw":   authed((*turn).startWithdraw),
		"sendbatch":  authed((*turn).startBatch),
		"history":    authed((*turn).showHistoryFirst),
		"points":     authed((*turn).showPoints),
	}

	plain := func(h handler) actionHandler {
		return func(t *turn, _ callbacks.Action) error { return h(t) }
	}
	e.actions = map[callbacks.Tag]actionHandler{
		callbacks.Login:        plain((*turn).startLogin),
		callbacks.LoginCancel:  plain((*turn).cancelLogin),
		callbacks.OTPNew:       plain((*turn).requestNewOTP),
		callbacks.Logout:       plain((*turn).logout),
		callbacks.Menu:         plain((*turn).showStart),
		callbacks.Help:         plain((*turn).showHelp),
		callbacks.Cancel:       plain((*turn).cancel),
		callbacks.Profile:      plain(authed((*turn).showProfile)),
		callbacks.KYC:          plain(authed((*turn).showKYC)),
		callbacks.Wallets:      plain(authed((*turn).showWallets)),
		callbacks.Balance:      plain(authed((*turn).showBalances)),
		callbacks.Deposit:      plain(authed((*turn).showDeposit)),
		callbacks.DepositNet:   authedAction((*turn).showDepositAddress),
		callbacks.Default:      plain(authed((*turn).showDefaultPicker)),
		callbacks.DefaultSet:   authedAction((*turn).setDefaultWallet),
		callbacks.SendMenu:     plain(authed((*turn).showSendMenu)),
		callbacks.Send:         plain(authed((*turn).startSend)),
		callbacks.SendOK:       plain(authed((*turn).confirmWalletSend)),
		callbacks.Email:        plain(authed((*turn).startSendEmail)),
		callbacks.EmailTo:      authedAction((*turn).pickEmailPayee),
		callbacks.EmailOK:      plain(authed((*turn).confirmEmailSend)),
		callbacks.PayeeAdd:     plain(authed((*turn).startAddPayee)),
		callbacks.Withdraw:     plain(authed((*turn).startWithdraw)),
		callbacks.WithdrawBank: authedAction((*turn).pickWithdrawAccount),
		callbacks.WithdrawOK:   plain(authed((*turn).confirmWithdraw)),
		callbacks.Batch:        plain(authed((*turn).startBatch)),
		callbacks.BatchTo:      authedAction((*turn).pickBatchPayee),
		callbacks.BatchNew:     plain(authed((*turn).promptBatchEmail)),
		callbacks.BatchOK:      plain(authed((*turn).confirmBatch)),
		callbacks.History:      authedAction((*turn).showHistoryPage),
		callbacks.Points:       plain(authed((*turn).showPoints)),
	}
}

// turn carries one event through the engine.
type turn struct {
	e    *Engine
	ctx  context.Context
	ev   Event
	id   string
	sess *state.Session
	out  Responder
}

// Handle routes ev for its user and writes every reply to out. Flow failures are
// answered and logged here; the returned error reports store or delivery problems.
func (e *Engine) Handle(ctx context.Context, ev Event, out Responder) error {
	if ev.UserID == 0 {
		return errors.New("conversation: event without user")
	}
	if out == nil {
		return errors.New("conversation: nil responder")
	}
	id := strconv.FormatInt(ev.UserID, 10)
	sess, found, err := e.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if !found {
		if sess, err = e.store.Merge(ctx, id, func(*state.Session) {}); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
	}

	ctx = logger.WithFlow(ctx, string(sess.Flow.Kind))
	t := &turn{e: e, ctx: ctx, ev: ev, id: id, sess: sess, out: out}
	h, name := e.route(t)
	logger.Debug(ctx, logger.CompFlow, "flow.route",
		slog.String("kind", ev.Kind.String()),
		slog.String("action", name),
		slog.String("login_state", string(sess.LoginState)),
		slog.String("step", string(sess.Flow.Step())),
	)
	if herr := h(t); herr != nil {
		return t.fail(name, herr)
	}
	return nil
}

// route picks the handler for the event. Free text is matched against login state
// first, then the active flow step.
func (e *Engine) route(t *turn) (handler, string) {
	ev := t.ev
	switch ev.Kind {
	case EventCommand:
		name := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ev.Name)), "/")
		if at := strings.IndexByte(name, '@'); at >= 0 {
			name = name[:at]
		}
		if h, ok := e.commands[name]; ok {
			return h, "cmd." + name
		}
		return (*turn).fallback, "cmd.unknown"
	case EventButton:
		action, err := callbacks.Decode(ev.Payload)
		if err != nil {
			return func(t *turn) error { return t.unknownAction(err) }, "cb.unrecognized"
		}
		h, ok := e.actions[action.Tag]
		if !ok {
			return func(t *turn) error { return t.unknownAction(callbacks.ErrUnrecognized) }, "cb.unrecognized"
		}
		return func(t *turn) error { return h(t, action) }, "cb." + string(action.Tag)
	case EventText:
		return e.routeText(t)
	}
	return (*turn).fallback, "unknown"
}

func (e *Engine) routeText(t *turn) (handler, string) {
	switch t.sess.LoginState {
	case state.LoginAwaitingEmail:
		return (*turn).submitEmail, "login.email"
	case state.LoginAwaitingOTP:
		return (*turn).submitOTP, "login.otp"
	}

	f := t.sess.Flow
	switch f.Kind {
	case state.KindSend:
		switch f.Step() {
		case state.SendAwaitAddress:
			return authed((*turn).submitSendAddress), "send.address"
		case state.SendAwaitAmount:
			return authed((*turn).submitSendAmount), "send.amount"
		}
	case state.KindSendEmail:
		if f.Step() == state.SendAwaitAmount {
			return authed((*turn).submitSendAmount), "send_email.amount"
		}
	case state.KindAddPayee:
		switch f.Step() {
		case state.PayeeAwaitEmail:
			return authed((*turn).submitPayeeEmail), "payee.email"
		case state.PayeeAwaitNickname:
			return authed((*turn).submitPayeeNickname), "payee.nickname"
		}
	case state.KindWithdraw:
		if f.Step() == state.WithdrawAwaitAmount {
			return authed((*turn).submitWithdrawAmount), "withdraw.amount"
		}
	case state.KindBatch:
		switch f.Step() {
		case state.BatchSelectPayee, state.BatchAwaitEmail:
			return authed((*turn).submitBatchEmail), "batch.email"
		case state.BatchAwaitAmount:
			return authed((*turn).submitBatchAmount), "batch.amount"
		}
	}

	text := strings.TrimSpace(t.ev.Text)
	if strings.HasPrefix(text, "/") {
		name := strings.Fields(text)[0]
		if e.HasCommand(name) {
			t.ev.Kind = EventCommand
			t.ev.Name = strings.TrimPrefix(name, "/")
			return e.route(t)
		}
	}
	return (*turn).fallback, "text.unmatched"
}

// authed gates h behind a usable credential.
func authed(h handler) handler {
	return func(t *turn) error {
		if !t.authenticated() {
			return t.askLogin()
		}
		return h(t)
	}
}

func authedAction(h actionHandler) actionHandler {
	return func(t *turn, a callbacks.Action) error {
		if !t.authenticated() {
			return t.askLogin()
		}
		return h(t, a)
	}
}

func (t *turn) authenticated() bool {
	return t.sess.IsAuthenticatedAt(t.e.now())
}

func (t *turn) token() string { return t.sess.AccessToken }

// save merges fn into the stored session and keeps the turn's copy current.
func (t *turn) save(fn func(*state.Session)) error {
	sess, err := t.e.store.Merge(t.ctx, t.id, fn)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	t.sess = sess
	return nil
}

func (t *turn) setFlow(f state.Flow) error {
	return t.save(func(s *state.Session) { s.Flow = f })
}

func (t *turn) clearFlow() error {
	return t.setFlow(state.NoFlow())
}

func (t *turn) send(text string, markup *tele.ReplyMarkup) error {
	return t.out.Send(text, &tele.SendOptions{ReplyMarkup: markup, DisableWebPagePreview: true})
}

func (t *turn) sendMD(text string, markup *tele.ReplyMarkup) error {
	return t.out.Send(text, &tele.SendOptions{
		ParseMode:             tele.ModeMarkdown,
		ReplyMarkup:           markup,
		DisableWebPagePreview: true,
	})
}

func (t *turn) fallback() error {
	return t.send(msgFallback, nil)
}

func (t *turn) unknownAction(err error) error {
	logger.Debug(t.ctx, logger.CompFlow, "flow.unknown_action",
		slog.String("payload", logger.SanitizeLimit(t.ev.Payload, 64)),
		slog.String("err", err.Error()),
	)
	return t.send(msgUnknownAction, nil)
}

func (t *turn) askLogin() error {
	return t.send(msgLoginRequired, loginMarkup())
}

// Package notify forwards Copperx deposit events from the Pusher socket to chat.
//
// Each subscribed user gets one socket connection bound to the private channel of
// their organization. Connections reconnect with backoff until the user logs out
// or the gateway rejects the credential.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ritikbhatt20/copperx-telegram-bot/core/conversation"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/copperx"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/logger"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/format"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/sender"
)

const (
	msgSubscribed   = "🔔 Successfully subscribed to deposit notifications!"
	msgSubscribeErr = "⚠️ Failed to subscribe to deposit notifications. Please try logging in again."

	channelPrefix = "private-org-"
)

var errRejected = errors.New("notify: subscription rejected")

// Authorizer signs private channel subscriptions. *copperx.Client implements it.
type Authorizer interface {
	AuthorizeChannel(ctx context.Context, token, socketID, channel string) (copperx.ChannelAuth, error)
}

// Deliverer sends a chat message. *sender.Outbox implements it.
type Deliverer interface {
	Deliver(ctx context.Context, m sender.Message) error
}

// Options configures a Manager.
type Options struct {
	Key     string
	Cluster string
	Host    string

	Dialer *websocket.Dialer
	// ReconnectMin and ReconnectMax bound the reconnect backoff.
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	// PingInterval overrides the server's activity timeout.
	PingInterval time.Duration
	Currency     string
}

type subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager owns one socket per subscribed user.
type Manager struct {
	opts Options
	url  string
	auth Authorizer

	mu      sync.Mutex
	deliver Deliverer
	subs    map[int64]*subscription
	closed  bool
	wg      sync.WaitGroup
}

// NewManager validates opts. Attach must be called before events can be delivered.
func NewManager(auth Authorizer, opts Options) (*Manager, error) {
	if auth == nil {
		return nil, errors.New("notify: nil authorizer")
	}
	u, err := socketURL(opts.Key, opts.Cluster, opts.Host)
	if err != nil {
		return nil, err
	}
	if opts.Dialer == nil {
		opts.Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	}
	if opts.ReconnectMin <= 0 {
		opts.ReconnectMin = time.Second
	}
	if opts.ReconnectMax < opts.ReconnectMin {
		opts.ReconnectMax = time.Minute
	}
	if opts.Currency == "" {
		opts.Currency = "USDC"
	}
	return &Manager{opts: opts, url: u, auth: auth, subs: make(map[int64]*subscription)}, nil
}

// Attach sets the outbound message sink.
func (m *Manager) Attach(d Deliverer) {
	m.mu.Lock()
	m.deliver = d
	m.mu.Unlock()
}

// Subscribe replaces any existing connection for the user with a fresh one.
func (m *Manager) Subscribe(ctx context.Context, sub conversation.Subscription) error {
	if sub.UserID == 0 || sub.ChatID == 0 {
		return errors.New("notify: subscription without user or chat")
	}
	if sub.Token == "" || sub.OrganizationID == "" {
		return errors.New("notify: subscription needs a token and organization")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errors.New("notify: manager closed")
	}
	if old, ok := m.subs[sub.UserID]; ok {
		old.cancel()
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &subscription{cancel: cancel, done: make(chan struct{})}
	m.subs[sub.UserID] = s
	m.wg.Add(1)
	go m.run(runCtx, sub, s)
	logger.Info(ctx, logger.CompNotify, "notify.subscribe", slog.String("channel", channelPrefix+sub.OrganizationID))
	return nil
}

// Unsubscribe stops the user's connection, if any. It does not wait for it to close.
func (m *Manager) Unsubscribe(userID int64) {
	m.mu.Lock()
	s, ok := m.subs[userID]
	if ok {
		delete(m.subs, userID)
	}
	m.mu.Unlock()
	if ok {
		s.cancel()
	}
}

// Active reports the number of running subscriptions.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

// Close stops every connection and waits for them to exit.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	for id, s := range m.subs {
		s.cancel()
		delete(m.subs, id)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Manager) run(ctx context.Context, sub conversation.Subscription, s *subscription) {
	defer m.wg.Done()
	defer close(s.done)
	defer func() {
		m.mu.Lock()
		if m.subs[sub.UserID] == s {
			delete(m.subs, sub.UserID)
		}
		m.mu.Unlock()
		s.cancel()
	}()

	announced := false
	backoff := m.opts.ReconnectMin
	for {
		subscribed, err := m.session(ctx, sub, &announced)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, copperx.ErrUnauthorized) || errors.Is(err, errRejected) {
			logger.Warn(ctx, logger.CompNotify, "notify.stop",
				slog.Int64("user_id", sub.UserID),
				slog.String("err", err.Error()),
			)
			return
		}
		if subscribed {
			backoff = m.opts.ReconnectMin
		}
		logger.Warn(ctx, logger.CompNotify, "notify.reconnect",
			slog.Int64("user_id", sub.UserID),
			slog.Duration("delay", backoff),
			slog.String("err", errString(err)),
		)
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff *= 2
		if backoff > m.opts.ReconnectMax {
			backoff = m.opts.ReconnectMax
		}
	}
}

// session runs one socket connection. subscribed reports whether the channel
// subscription was confirmed before the connection ended.
func (m *Manager) session(ctx context.Context, sub conversation.Subscription, announced *bool) (subscribed bool, err error) {
	c, _, err := m.opts.Dialer.DialContext(ctx, m.url, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer c.Close()
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()
	conn := &wsConn{c: c}

	first, err := conn.read(30 * time.Second)
	if err != nil {
		return false, fmt.Errorf("read handshake: %w", err)
	}
	if first.Event != evConnectionEstablished {
		return false, fmt.Errorf("unexpected first event %q", first.Event)
	}
	var est established
	if err := decodeData(first.Data, &est); err != nil {
		return false, err
	}

	channel := channelPrefix + sub.OrganizationID
	auth, err := m.auth.AuthorizeChannel(ctx, sub.Token, est.SocketID, channel)
	if err != nil {
		if errors.Is(err, copperx.ErrUnauthorized) && !*announced {
			m.send(ctx, sub, msgSubscribeErr, false)
		}
		return false, fmt.Errorf("authorize channel: %w", err)
	}
	if err := conn.send(evSubscribe, subscribeData{Auth: auth.Auth, Channel: channel, ChannelData: auth.UserData}); err != nil {
		return false, fmt.Errorf("subscribe: %w", err)
	}

	interval := m.opts.PingInterval
	if interval <= 0 && est.ActivityTimeout > 0 {
		interval = time.Duration(est.ActivityTimeout) * time.Second
	}
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	pingDone := make(chan struct{})
	defer close(pingDone)
	go keepAlive(conn, interval, pingDone)

	for {
		f, err := conn.read(2 * interval)
		if err != nil {
			return subscribed, fmt.Errorf("read: %w", err)
		}
		switch f.Event {
		case evSubscriptionSucceeded:
			subscribed = true
			if !*announced {
				*announced = true
				m.send(ctx, sub, msgSubscribed, false)
			}
		case evSubscriptionError:
			if !*announced {
				m.send(ctx, sub, msgSubscribeErr, false)
			}
			return subscribed, fmt.Errorf("%w: %s", errRejected, string(f.Data))
		case evError:
			var pe protocolError
			_ = decodeData(f.Data, &pe)
			logger.Warn(ctx, logger.CompNotify, "notify.protocol_error",
				slog.Int("code", pe.Code), slog.String("message", pe.Message))
			// 4000-4099 tell the client not to reconnect.
			if pe.Code >= 4000 && pe.Code < 4100 {
				return subscribed, fmt.Errorf("%w: code %d", errRejected, pe.Code)
			}
		case evPing:
			if err := conn.send(evPong, struct{}{}); err != nil {
				return subscribed, fmt.Errorf("pong: %w", err)
			}
		case evPong:
		case evDeposit:
			var d Deposit
			if err := decodeData(f.Data, &d); err != nil {
				logger.Warn(ctx, logger.CompNotify, "notify.bad_deposit", slog.String("err", err.Error()))
				continue
			}
			logger.Info(ctx, logger.CompNotify, "notify.deposit",
				slog.Int64("user_id", sub.UserID),
				slog.String("network", d.Network),
			)
			m.send(ctx, sub, FormatDeposit(d, m.opts.Currency), true)
		}
	}
}

func keepAlive(conn *wsConn, interval time.Duration, done <-chan struct{}) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			if err := conn.send(evPing, struct{}{}); err != nil {
				return
			}
		}
	}
}

func (m *Manager) send(ctx context.Context, sub conversation.Subscription, text string, markdown bool) {
	m.mu.Lock()
	d := m.deliver
	m.mu.Unlock()
	if d == nil {
		logger.Warn(ctx, logger.CompNotify, "notify.undelivered", slog.Int64("user_id", sub.UserID))
		return
	}
	kind := "notify"
	if markdown {
		kind = "deposit"
	}
	if err := d.Deliver(ctx, sender.Message{ChatID: sub.ChatID, Text: text, Markdown: markdown, Kind: kind}); err != nil {
		logger.Warn(ctx, logger.CompNotify, "notify.deliver_failed",
			slog.Int64("user_id", sub.UserID),
			slog.String("err", err.Error()),
		)
	}
}

// FormatDeposit renders a deposit event as a Markdown message.
func FormatDeposit(d Deposit, currency string) string {
	text := "💰 *New Deposit Received*\n\n" +
		format.MD(d.Amount.String()) + " " + currency + " deposited on " + format.MD(d.Network)
	if d.TransactionID != "" {
		text += "\nTransaction ID: " + format.Code(d.TransactionID)
	}
	return text
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

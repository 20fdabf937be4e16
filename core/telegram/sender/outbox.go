// Package sender delivers messages that are not replies to an update, such as
// deposit notifications, through a bounded worker pool with retries.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ritikbhatt20/copperx-telegram-bot/core/logger"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

var (
	// ErrQueueClosed is returned by Deliver after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull is returned when the queue is saturated.
	ErrQueueFull = errors.New("telegram sender: queue full")

	tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)
)

// Bot is the part of *tele.Bot the outbox uses.
type Bot interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Message is one outbound chat message.
type Message struct {
	ChatID   int64
	Text     string
	Markdown bool
	// Kind labels the message in logs, e.g. "deposit".
	Kind string
}

// Options controls the outbox worker pool.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent retrying a single message.
	MaxDuration time.Duration
}

type job struct {
	ctx context.Context
	msg Message
}

// Outbox sends Messages asynchronously. Messages to the same chat may be
// reordered when more than one worker runs.
type Outbox struct {
	bot  Bot
	opts Options
	jobs chan job
	stop chan struct{}
	mu   sync.RWMutex
	once sync.Once
	wg   sync.WaitGroup

	sent   atomic.Uint64
	failed atomic.Uint64
}

// New starts an outbox. Zero options fall back to defaults.
func New(bot Bot, opts Options) (*Outbox, error) {
	if bot == nil {
		return nil, errors.New("telegram sender: nil bot")
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 30 * time.Second
	}

	o := &Outbox{
		bot:  bot,
		opts: opts,
		jobs: make(chan job, opts.QueueSize),
		stop: make(chan struct{}),
	}
	o.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go o.worker()
	}
	return o, nil
}

// Deliver queues m. It never blocks.
func (o *Outbox) Deliver(ctx context.Context, m Message) error {
	if m.ChatID == 0 || m.Text == "" {
		return errors.New("telegram sender: message needs a chat and text")
	}
	o.mu.RLock()
	defer o.mu.RUnlock()
	select {
	case <-o.stop:
		return ErrQueueClosed
	default:
	}
	select {
	case o.jobs <- job{ctx: context.WithoutCancel(ctx), msg: m}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Stats reports delivered and abandoned message counts.
func (o *Outbox) Stats() (sent, failed uint64) {
	return o.sent.Load(), o.failed.Load()
}

// Close stops accepting messages and waits for queued ones to be attempted.
func (o *Outbox) Close() {
	o.once.Do(func() {
		o.mu.Lock()
		close(o.stop)
		close(o.jobs)
		o.mu.Unlock()
		o.wg.Wait()
	})
}

func (o *Outbox) worker() {
	defer o.wg.Done()
	for j := range o.jobs {
		o.handle(j)
	}
}

func (o *Outbox) send(m Message) error {
	var opts []interface{}
	if m.Markdown {
		opts = append(opts, &tele.SendOptions{ParseMode: tele.ModeMarkdown})
	}
	_, err := o.bot.Send(tele.ChatID(m.ChatID), m.Text, opts...)
	return err
}

func (o *Outbox) handle(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, o.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attempts := o.opts.MaxRetries + 1
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = o.send(j.msg); err == nil {
			o.sent.Add(1)
			attrs := logAttrs(j.msg)
			if attempt > 1 {
				attrs = append(attrs, slog.Int("attempt", attempt))
			}
			logger.Debug(ctx, logger.CompTGWire, "send.success",
				append(attrs, slog.Int64("elapsed_ms", logger.RoundMS(time.Since(start)).Milliseconds()))...)
			return
		}
		delay, retry := o.retryDelay(err, attempt)
		if !retry || attempt == attempts {
			break
		}
		logger.Debug(ctx, logger.CompTGWire, "send.retry.backoff",
			append(logAttrs(j.msg), slog.Int("attempt", attempt), slog.Duration("delay", delay))...)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			err = ctx.Err()
			attempt = attempts
		case <-timer.C:
		}
	}

	o.failed.Add(1)
	logger.Error(ctx, logger.CompTGWire, "send.fail",
		append(logAttrs(j.msg),
			slog.String("err", Redact(err)),
			slog.Int("status", statusFromError(err)),
			slog.Int64("elapsed_ms", logger.RoundMS(time.Since(start)).Milliseconds()),
		)...)
}

// retryDelay honours Telegram flood control and otherwise retries transient
// network failures with linear backoff.
func (o *Outbox) retryDelay(err error, attempt int) (time.Duration, bool) {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		if flood.RetryAfter > 0 {
			return time.Duration(flood.RetryAfter) * time.Second, true
		}
		return o.opts.RetryBackoff, true
	}
	if netutil.ShouldRetry(err) {
		return o.opts.RetryBackoff * time.Duration(attempt), true
	}
	return 0, false
}

func logAttrs(m Message) []slog.Attr {
	attrs := []slog.Attr{slog.Int64("chat_id", m.ChatID)}
	if m.Kind != "" {
		attrs = append(attrs, slog.String("kind", m.Kind))
	}
	return attrs
}

// Redact renders err with bot tokens masked.
func Redact(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}

func statusFromError(err error) int {
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var flood tele.FloodError
	if errors.As(err, &flood) {
		return http.StatusTooManyRequests
	}
	return 0
}

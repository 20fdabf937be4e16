package middleware

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ritikbhatt20/copperx-telegram-bot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// LaneOptions configures Lanes.
type LaneOptions struct {
	// Depth is the per-user queue capacity. A full lane blocks the submitter.
	Depth int
	// Idle is how long a lane goroutine waits for work before exiting.
	Idle time.Duration
	// OnError receives handler errors, which cannot be returned to the poller.
	OnError func(error, tele.Context)
}

type lane struct {
	jobs    chan func()
	pending int
}

// Lanes runs jobs one at a time per key, in submission order, while different keys
// run concurrently. The bot must be synchronous so that submission follows update order.
type Lanes struct {
	opts LaneOptions

	mu     sync.Mutex
	lanes  map[int64]*lane
	closed bool
	stop   chan struct{}
	wg     sync.WaitGroup
}

// NewLanes builds an empty lane set.
func NewLanes(opts LaneOptions) *Lanes {
	if opts.Depth <= 0 {
		opts.Depth = 32
	}
	if opts.Idle <= 0 {
		opts.Idle = time.Minute
	}
	return &Lanes{opts: opts, lanes: make(map[int64]*lane), stop: make(chan struct{})}
}

// Submit queues fn on the lane for key. It reports false once the set is closed.
func (l *Lanes) Submit(key int64, fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	ln, ok := l.lanes[key]
	if !ok {
		ln = &lane{jobs: make(chan func(), l.opts.Depth)}
		l.lanes[key] = ln
		l.wg.Add(1)
		go l.run(key, ln)
	}
	ln.pending++
	l.mu.Unlock()

	ln.jobs <- fn
	return true
}

func (l *Lanes) run(key int64, ln *lane) {
	defer l.wg.Done()
	idle := time.NewTimer(l.opts.Idle)
	defer idle.Stop()
	for {
		select {
		case fn := <-ln.jobs:
			l.exec(key, fn)
			l.finish(ln)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(l.opts.Idle)
		case <-idle.C:
			if l.retire(key, ln) {
				return
			}
			idle.Reset(l.opts.Idle)
		case <-l.stop:
			for !l.retire(key, ln) {
				l.exec(key, <-ln.jobs)
				l.finish(ln)
			}
			return
		}
	}
}

func (l *Lanes) finish(ln *lane) {
	l.mu.Lock()
	ln.pending--
	l.mu.Unlock()
}

// retire removes an empty lane. Submit cannot race it because both hold mu.
func (l *Lanes) retire(key int64, ln *lane) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ln.pending > 0 {
		return false
	}
	delete(l.lanes, key)
	return true
}

func (l *Lanes) exec(key int64, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(context.Background(), logger.CompTG, "tg.lane.panic",
				slog.Int64("user_id", key),
				slog.Any("err", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	fn()
}

// Active reports the number of live lanes.
func (l *Lanes) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lanes)
}

// Close stops accepting work and waits until every queued job has run.
func (l *Lanes) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.stop)
	l.mu.Unlock()
	l.wg.Wait()
}

// Middleware queues each update on its sender's lane. Updates without a sender run inline.
func (l *Lanes) Middleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		user := c.Sender()
		if user == nil {
			return next(c)
		}
		accepted := l.Submit(user.ID, func() {
			if err := next(c); err != nil && l.opts.OnError != nil {
				l.opts.OnError(err, c)
			}
		})
		if !accepted {
			logger.Warn(context.Background(), logger.CompTG, "tg.lane.closed", slog.Int64("user_id", user.ID))
		}
		return nil
	}
}

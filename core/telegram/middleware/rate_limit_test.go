package middleware

import (
	"errors"
	"strings"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

// fakeCtx implements the parts of tele.Context the middlewares touch.
type fakeCtx struct {
	tele.Context
	upd   tele.Update
	user  *tele.User
	store map[string]interface{}
}

func newFakeCtx(userID int64, callback bool) *fakeCtx {
	user := &tele.User{ID: userID}
	upd := tele.Update{ID: int(userID), Message: &tele.Message{Sender: user, Text: "hi"}}
	if callback {
		upd = tele.Update{ID: int(userID), Callback: &tele.Callback{Sender: user, Data: "menu"}}
	}
	return &fakeCtx{upd: upd, user: user, store: map[string]interface{}{}}
}

func (f *fakeCtx) Sender() *tele.User          { return f.user }
func (f *fakeCtx) Update() tele.Update         { return f.upd }
func (f *fakeCtx) Chat() *tele.Chat            { return nil }
func (f *fakeCtx) Get(k string) interface{}    { return f.store[k] }
func (f *fakeCtx) Set(k string, v interface{}) { f.store[k] = v }

func TestRateLimitRejectsBurstsPerUser(t *testing.T) {
	now := time.Unix(1000, 0)
	limited := 0
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval:  time.Second,
		OnLimited: func(tele.Context) error { limited++; return nil },
		Now:       func() time.Time { return now },
	})
	calls := 0
	h := mw(func(tele.Context) error { calls++; return nil })

	_ = h(newFakeCtx(1, false))
	_ = h(newFakeCtx(1, false))
	_ = h(newFakeCtx(2, false))
	if calls != 2 || limited != 1 {
		t.Fatalf("calls = %d, limited = %d", calls, limited)
	}

	now = now.Add(1500 * time.Millisecond)
	_ = h(newFakeCtx(1, false))
	if calls != 3 {
		t.Fatalf("update after the interval was limited")
	}
}

func TestRateLimitHonoursExclusions(t *testing.T) {
	mw := RateLimitMiddleware(RateLimitOptions{
		Interval: time.Hour,
		Exclude:  []string{"Callback"},
	})
	calls := 0
	h := mw(func(tele.Context) error { calls++; return nil })
	for i := 0; i < 3; i++ {
		_ = h(newFakeCtx(5, true))
	}
	if calls != 3 {
		t.Fatalf("excluded callbacks were limited: %d calls", calls)
	}
}

func TestThrottleSweepsStaleUsers(t *testing.T) {
	th := newThrottle(time.Second)
	th.sweepAt = 2
	start := time.Unix(0, 0)
	th.admit(1, start)
	th.admit(2, start)
	th.admit(3, start.Add(2*time.Second))
	if len(th.seen) != 1 {
		t.Fatalf("seen = %v, want only user 3", th.seen)
	}
	if th.admit(3, start.Add(2500*time.Millisecond)) {
		t.Fatal("user 3 admitted twice within the interval")
	}
}

func TestRecoverTurnsPanicIntoError(t *testing.T) {
	h := RecoverMiddleware(func(tele.Context) error { panic("kaboom") })
	err := h(newFakeCtx(1, false))
	var pe *PanicError
	if !errors.As(err, &pe) || !strings.Contains(err.Error(), "kaboom") || pe.Code() != "PANIC" {
		t.Fatalf("err = %v", err)
	}
}

func TestAdminOnly(t *testing.T) {
	rejected := errors.New("rejected")
	mw := AdminOnlyMiddleware(AdminOptions{AdminID: 7, OnReject: func(tele.Context) error { return rejected }})
	h := mw(func(tele.Context) error { return nil })
	if err := h(newFakeCtx(7, false)); err != nil {
		t.Fatalf("admin rejected: %v", err)
	}
	if err := h(newFakeCtx(8, false)); !errors.Is(err, rejected) {
		t.Fatalf("non-admin err = %v", err)
	}
	none := AdminOnlyMiddleware(AdminOptions{})(func(tele.Context) error { return errors.New("ran") })
	if err := none(newFakeCtx(7, false)); err != nil {
		t.Fatalf("zero admin id must reject everyone, got %v", err)
	}
}

package conversation

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/ritikbhatt20/copperx-telegram-bot/core/config"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/copperx"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/callbacks"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/state"
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeGateway struct {
	mu    sync.Mutex
	calls []string

	otpErr     error
	authErr    error
	balance    string
	accounts   []copperx.Account
	quote      copperx.Quote
	payees     []copperx.Payee
	sendErr    error
	profileErr error
	kycs       copperx.KYCList
	history    copperx.TransferList

	historyPages []int
	historyLimit int

	gotOfframp copperx.OfframpTransferRequest
	gotWallet  copperx.SendWalletRequest
	gotBatch   []copperx.BatchItem
}

func (g *fakeGateway) record(name string) {
	g.mu.Lock()
	g.calls = append(g.calls, name)
	g.mu.Unlock()
}

func (g *fakeGateway) called(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c == name {
			n++
		}
	}
	return n
}

func (g *fakeGateway) RequestOTP(_ context.Context, email string) (copperx.OTPRequest, error) {
	g.record("RequestOTP")
	if g.otpErr != nil {
		return copperx.OTPRequest{}, g.otpErr
	}
	return copperx.OTPRequest{Email: email, SID: "sid-1"}, nil
}

func (g *fakeGateway) Authenticate(_ context.Context, email, otp, sid string) (copperx.Auth, error) {
	g.record("Authenticate")
	if g.authErr != nil {
		return copperx.Auth{}, g.authErr
	}
	return copperx.Auth{
		AccessToken: "tok-" + sid,
		ExpireAt:    testNow.Add(24 * time.Hour).Format(time.RFC3339),
		User:        copperx.AuthUser{ID: "u1", Email: email},
	}, nil
}

func (g *fakeGateway) Profile(context.Context, string) (copperx.Profile, error) {
	g.record("Profile")
	if g.profileErr != nil {
		return copperx.Profile{}, g.profileErr
	}
	return copperx.Profile{ID: "u1", Email: "a@b.co", Status: "active", OrganizationID: "org-1"}, nil
}

func (g *fakeGateway) KYCs(context.Context, string) (copperx.KYCList, error) {
	g.record("KYCs")
	return g.kycs, nil
}

func (g *fakeGateway) Wallets(context.Context, string) ([]copperx.Wallet, error) {
	g.record("Wallets")
	return []copperx.Wallet{{ID: "w1", Network: "137", IsDefault: true, WalletAddress: "0xabc"}}, nil
}

func (g *fakeGateway) Balances(context.Context, string) ([]copperx.WalletBalances, error) {
	g.record("Balances")
	return nil, nil
}

func (g *fakeGateway) DefaultBalance(context.Context, string) (copperx.WalletBalance, error) {
	g.record("DefaultBalance")
	return copperx.WalletBalance{Balance: g.balance, Symbol: "USDC"}, nil
}

func (g *fakeGateway) SetDefaultWallet(_ context.Context, _, id string) (copperx.Wallet, error) {
	g.record("SetDefaultWallet")
	return copperx.Wallet{ID: id, Network: "137"}, nil
}

func (g *fakeGateway) Payees(context.Context, string) (copperx.PayeeList, error) {
	g.record("Payees")
	return copperx.PayeeList{Count: len(g.payees), Data: g.payees}, nil
}

func (g *fakeGateway) CreatePayee(_ context.Context, _ string, req copperx.CreatePayeeRequest) (copperx.Payee, error) {
	g.record("CreatePayee")
	return copperx.Payee{ID: "p9", NickName: req.NickName, Email: req.Email}, nil
}

func (g *fakeGateway) SendEmail(context.Context, string, copperx.SendEmailRequest) (copperx.Transfer, error) {
	g.record("SendEmail")
	return copperx.Transfer{ID: "tr-e", Status: "pending"}, g.sendErr
}

func (g *fakeGateway) SendWallet(_ context.Context, _ string, req copperx.SendWalletRequest) (copperx.Transfer, error) {
	g.record("SendWallet")
	g.gotWallet = req
	if g.sendErr != nil {
		return copperx.Transfer{}, g.sendErr
	}
	return copperx.Transfer{ID: "tr-w", Status: "pending", Amount: req.Amount}, nil
}

func (g *fakeGateway) Accounts(context.Context, string) ([]copperx.Account, error) {
	g.record("Accounts")
	return g.accounts, nil
}

func (g *fakeGateway) Quote(context.Context, string, copperx.QuoteRequest) (copperx.Quote, error) {
	g.record("Quote")
	return g.quote, nil
}

func (g *fakeGateway) ConfirmOfframp(_ context.Context, _ string, req copperx.OfframpTransferRequest) (copperx.Transfer, error) {
	g.record("ConfirmOfframp")
	g.gotOfframp = req
	if g.sendErr != nil {
		return copperx.Transfer{}, g.sendErr
	}
	return copperx.Transfer{ID: "tr-o", Status: "initiated"}, nil
}

func (g *fakeGateway) History(_ context.Context, _ string, page, limit int) (copperx.TransferList, error) {
	g.record("History")
	g.historyPages = append(g.historyPages, page)
	g.historyLimit = limit
	return g.history, nil
}

func (g *fakeGateway) SendBatch(_ context.Context, _ string, items []copperx.BatchItem) (copperx.BatchResult, error) {
	g.record("SendBatch")
	g.gotBatch = items
	out := copperx.BatchResult{}
	for _, it := range items {
		out.Responses = append(out.Responses, copperx.BatchItemResult{
			RequestID: it.RequestID,
			Request:   it.Request,
			Response:  &copperx.Transfer{ID: "tr-" + it.RequestID, Status: "pending", Amount: it.Request.Amount},
		})
	}
	return out, nil
}

func (g *fakeGateway) Points(context.Context, string, string) (copperx.Points, error) {
	g.record("Points")
	return copperx.Points{Total: "42"}, nil
}

type recorder struct {
	msgs    []string
	markups []*tele.ReplyMarkup
}

func (r *recorder) Send(what interface{}, opts ...interface{}) error {
	s, _ := what.(string)
	r.msgs = append(r.msgs, s)
	var markup *tele.ReplyMarkup
	for _, o := range opts {
		if so, ok := o.(*tele.SendOptions); ok {
			markup = so.ReplyMarkup
		}
	}
	r.markups = append(r.markups, markup)
	return nil
}

// buttons returns the callback payloads and link urls of the last reply.
func (r *recorder) buttons() (data, urls []string) {
	if len(r.markups) == 0 || r.markups[len(r.markups)-1] == nil {
		return nil, nil
	}
	for _, row := range r.markups[len(r.markups)-1].InlineKeyboard {
		for _, b := range row {
			if b.Data != "" {
				data = append(data, b.Data)
			}
			if b.URL != "" {
				urls = append(urls, b.URL)
			}
		}
	}
	return data, urls
}

func (r *recorder) last() string {
	if len(r.msgs) == 0 {
		return ""
	}
	return r.msgs[len(r.msgs)-1]
}

func (r *recorder) contains(sub string) bool {
	for _, m := range r.msgs {
		if strings.Contains(m, sub) {
			return true
		}
	}
	return false
}

type fakeNotifier struct {
	subs   []Subscription
	unsubs []int64
}

func (n *fakeNotifier) Subscribe(_ context.Context, s Subscription) error {
	n.subs = append(n.subs, s)
	return nil
}

func (n *fakeNotifier) Unsubscribe(id int64) { n.unsubs = append(n.unsubs, id) }

type harness struct {
	t      *testing.T
	e      *Engine
	gw     *fakeGateway
	store  *state.MemoryStore
	notify *fakeNotifier
	out    *recorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := state.NewMemoryStore(state.WithClock(func() time.Time { return testNow }))
	gw := &fakeGateway{balance: "100"}
	n := &fakeNotifier{}
	seq := 0
	e, err := New(Options{
		Store:    store,
		Gateway:  gw,
		Notifier: n,
		Copperx:  config.CopperxConfig{ScaleDecimals: 8, Networks: map[string]string{"137": "Polygon"}},
		Now:      func() time.Time { return testNow },
		NewRequestID: func() string {
			seq++
			return fmt.Sprintf("id%d", seq)
		},
	})
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return &harness{t: t, e: e, gw: gw, store: store, notify: n, out: &recorder{}}
}

const userID = 42

func (h *harness) command(name string) {
	h.t.Helper()
	h.handle(Event{Kind: EventCommand, UserID: userID, ChatID: userID, Name: name})
}

func (h *harness) text(s string) {
	h.t.Helper()
	h.handle(Event{Kind: EventText, UserID: userID, ChatID: userID, Text: s})
}

func (h *harness) button(tag callbacks.Tag, args ...string) {
	h.t.Helper()
	data, err := callbacks.Encode(tag, args...)
	if err != nil {
		h.t.Fatalf("encode %s: %v", tag, err)
	}
	h.handle(Event{Kind: EventButton, UserID: userID, ChatID: userID, Payload: data})
}

func (h *harness) handle(ev Event) {
	h.t.Helper()
	if err := h.e.Handle(context.Background(), ev, h.out); err != nil {
		h.t.Fatalf("handle %+v: %v", ev, err)
	}
}

func (h *harness) session() *state.Session {
	h.t.Helper()
	s, ok, err := h.store.Get(context.Background(), "42")
	if err != nil {
		h.t.Fatalf("get session: %v", err)
	}
	if !ok {
		return nil
	}
	return s
}

func (h *harness) login() {
	h.t.Helper()
	h.command("login")
	h.text("a@b.co")
	h.text("123456")
	if s := h.session(); s == nil || s.LoginState != state.LoginAuthenticated {
		h.t.Fatalf("login did not authenticate: %+v", s)
	}
}

func TestLoginHappyPath(t *testing.T) {
	h := newHarness(t)
	h.command("login")
	if s := h.session(); s.LoginState != state.LoginAwaitingEmail {
		t.Fatalf("state = %s", s.LoginState)
	}
	h.text("a@b.co")
	s := h.session()
	if s.LoginState != state.LoginAwaitingOTP || s.OTPSessionID != "sid-1" {
		t.Fatalf("after email: %+v", s)
	}
	h.text("123456")
	s = h.session()
	if s.LoginState != state.LoginAuthenticated || s.AccessToken != "tok-sid-1" {
		t.Fatalf("after otp: %+v", s)
	}
	if s.OTPSessionID != "" {
		t.Fatalf("otp session id must be cleared, got %q", s.OTPSessionID)
	}
	if s.OrganizationID != "org-1" {
		t.Fatalf("org = %q", s.OrganizationID)
	}
	if len(h.notify.subs) != 1 || h.notify.subs[0].OrganizationID != "org-1" {
		t.Fatalf("subscriptions = %+v", h.notify.subs)
	}
	if !strings.Contains(h.out.last(), "Login successful") {
		t.Fatalf("last = %q", h.out.last())
	}
}

func TestInvalidOTPDoesNotAdvance(t *testing.T) {
	h := newHarness(t)
	h.command("login")
	h.text("a@b.co")
	for _, code := range []string{"12345", "1234567", "12a456", ""} {
		h.text(code)
		if s := h.session(); s.LoginState != state.LoginAwaitingOTP {
			t.Fatalf("code %q moved state to %s", code, s.LoginState)
		}
	}
	if h.gw.called("Authenticate") != 0 {
		t.Fatalf("malformed codes must not reach the gateway")
	}
	if h.out.last() != msgInvalidOTP {
		t.Fatalf("last = %q", h.out.last())
	}
}

func TestInvalidEmailReprompts(t *testing.T) {
	h := newHarness(t)
	h.command("login")
	h.text("not-an-email")
	if s := h.session(); s.LoginState != state.LoginAwaitingEmail {
		t.Fatalf("state = %s", s.LoginState)
	}
	if h.gw.called("RequestOTP") != 0 {
		t.Fatalf("invalid email must not request an otp")
	}
}

func TestAuthenticateFailureKeepsEmailAndSID(t *testing.T) {
	h := newHarness(t)
	h.gw.authErr = &copperx.APIError{Op: "authenticate", Status: http.StatusBadRequest, Message: "Invalid OTP"}
	h.command("login")
	h.text("a@b.co")
	h.text("123456")
	s := h.session()
	if s.LoginState != state.LoginAwaitingOTP || s.Email != "a@b.co" || s.OTPSessionID != "sid-1" {
		t.Fatalf("session after failure: %+v", s)
	}
	if !h.out.contains("❌ Error: Invalid OTP") {
		t.Fatalf("messages = %q", h.out.msgs)
	}
}

func TestRejectedOTPWithUnauthorizedKeepsLogin(t *testing.T) {
	h := newHarness(t)
	h.command("login")
	h.text("a@b.co")
	h.gw.authErr = &copperx.APIError{Op: "authenticate", Status: http.StatusUnauthorized, Message: "Invalid OTP"}
	h.text("123456")
	s := h.session()
	if s == nil {
		t.Fatalf("session must survive a rejected code")
	}
	if s.LoginState != state.LoginAwaitingOTP || s.Email != "a@b.co" || s.OTPSessionID != "sid-1" {
		t.Fatalf("session after rejected code: %+v", s)
	}
	if h.out.contains(msgSessionExpired) || !h.out.contains("❌ Error: Invalid OTP") {
		t.Fatalf("messages = %q", h.out.msgs)
	}
	if h.out.last() != msgRetryLogin {
		t.Fatalf("last = %q", h.out.last())
	}
	data, _ := h.out.buttons()
	if len(data) == 0 || data[0] != string(callbacks.OTPNew) {
		t.Fatalf("retry buttons = %v", data)
	}
	if len(h.notify.unsubs) != 0 {
		t.Fatalf("unsubs = %v", h.notify.unsubs)
	}

	h.gw.authErr = nil
	h.text("654321")
	if s := h.session(); s.LoginState != state.LoginAuthenticated {
		t.Fatalf("retry with a good code: %+v", s)
	}
}

func TestOTPRequestUnauthorizedKeepsEmailStep(t *testing.T) {
	h := newHarness(t)
	h.gw.otpErr = &copperx.APIError{Op: "request otp", Status: http.StatusUnauthorized, Message: "Email not allowed"}
	h.command("login")
	h.text("a@b.co")
	s := h.session()
	if s == nil || s.LoginState != state.LoginAwaitingEmail {
		t.Fatalf("session = %+v", s)
	}
	if !h.out.contains("❌ Error: Email not allowed") || h.out.last() != msgRetryLogin {
		t.Fatalf("messages = %q", h.out.msgs)
	}
}

func TestGatedCommandAsksForLogin(t *testing.T) {
	h := newHarness(t)
	h.command("profile")
	if h.out.last() != msgLoginRequired {
		t.Fatalf("last = %q", h.out.last())
	}
	if h.gw.called("Profile") != 0 {
		t.Fatalf("profile must not be fetched without a credential")
	}
}

func TestExpiredTokenIsNotAuthenticated(t *testing.T) {
	h := newHarness(t)
	if _, err := h.store.Merge(context.Background(), "42", func(s *state.Session) {
		s.AccessToken = "tok"
		s.LoginState = state.LoginAuthenticated
		s.TokenExpiry = testNow
	}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	h.command("balance")
	if h.out.last() != msgLoginRequired {
		t.Fatalf("expiry equal to now must count as expired, got %q", h.out.last())
	}
}

func TestSendWalletScalesAmount(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.command("send")
	h.text("0x1234567890abcdef1234567890abcdef12345678")
	h.text("5")
	h.button(callbacks.SendOK)
	if h.gw.gotWallet.Amount != "500000000" {
		t.Fatalf("amount = %q", h.gw.gotWallet.Amount)
	}
	if h.gw.gotWallet.PurposeCode != "self" || h.gw.gotWallet.Currency != "USDC" {
		t.Fatalf("request = %+v", h.gw.gotWallet)
	}
	if s := h.session(); s.Flow.Active() {
		t.Fatalf("flow must end after send, got %+v", s.Flow)
	}
}

func TestSendRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.command("send")
	h.text("0x123")
	if s := h.session(); s.Flow.Step() != state.SendAwaitAddress {
		t.Fatalf("step = %s", s.Flow.Step())
	}
	h.text("0x1234567890abcdef1234567890abcdef12345678")
	for _, in := range []string{"0", "-1", "abc", "1.123456789"} {
		h.text(in)
		if s := h.session(); s.Flow.Step() != state.SendAwaitAmount {
			t.Fatalf("input %q moved step to %s", in, s.Flow.Step())
		}
	}
	if h.gw.called("SendWallet") != 0 {
		t.Fatalf("no transfer expected")
	}
}

func TestConfirmWithoutFlowIsStale(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.button(callbacks.SendOK)
	if h.out.last() != msgStaleAction {
		t.Fatalf("last = %q", h.out.last())
	}
	if h.gw.called("SendWallet") != 0 {
		t.Fatalf("stale confirm must not transfer")
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	starts := map[string]func(h *harness){
		"send":     func(h *harness) { h.command("send") },
		"withdraw": func(h *harness) { h.command("withdraw"); h.text("5") },
		"batch": func(h *harness) {
			h.command("sendbatch")
			h.text("x@y.co")
			h.text("1")
		},
	}
	for name, start := range starts {
		h := newHarness(t)
		h.gw.accounts = []copperx.Account{verifiedAccount()}
		h.login()
		start(h)
		if !h.session().Flow.Active() {
			t.Fatalf("%s: flow did not start", name)
		}
		h.command("cancel")
		h.command("cancel")
		s := h.session()
		if s.Flow.Active() || s.PendingWithdrawal() != nil {
			t.Fatalf("%s: flow after cancel = %+v", name, s.Flow)
		}
		if s.LoginState != state.LoginAuthenticated {
			t.Fatalf("%s: cancel must keep the login", name)
		}
	}
}

func TestCancelAtWithdrawConfirmDropsQuote(t *testing.T) {
	h := newHarness(t)
	h.gw.accounts = []copperx.Account{verifiedAccount()}
	h.gw.quote = copperx.Quote{QuotePayload: `{"toAmount":"41600000000"}`, QuoteSignature: "sig"}
	h.login()
	h.command("withdraw")
	h.text("5")
	h.button(callbacks.WithdrawBank, "0")
	if s := h.session(); s.Flow.Step() != state.WithdrawConfirm || s.PendingWithdrawal() == nil {
		t.Fatalf("quote not stored: %+v", s.Flow)
	}
	h.button(callbacks.Cancel)
	s := h.session()
	if s.Flow.Active() || s.PendingWithdrawal() != nil {
		t.Fatalf("flow after cancel = %+v", s.Flow)
	}
	h.button(callbacks.WithdrawOK)
	if h.gw.called("ConfirmOfframp") != 0 {
		t.Fatalf("confirm after cancel must not reach the gateway")
	}
	if !strings.Contains(h.out.last(), "No withdrawal quote found") {
		t.Fatalf("last = %q", h.out.last())
	}
}

func TestCancelAtBatchAmountDropsRecipients(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.command("sendbatch")
	h.text("x@y.co")
	h.text("1")
	h.button(callbacks.BatchNew)
	h.text("z@y.co")
	if s := h.session(); s.Flow.Step() != state.BatchAwaitAmount || len(s.Flow.Batch.Recipients) != 1 {
		t.Fatalf("batch = %+v", s.Flow.Batch)
	}
	h.command("cancel")
	if s := h.session(); s.Flow.Active() || s.Flow.Batch != nil {
		t.Fatalf("flow after cancel = %+v", s.Flow)
	}
	h.button(callbacks.BatchOK)
	if h.gw.called("SendBatch") != 0 {
		t.Fatalf("confirm after cancel must not submit")
	}
}

func TestCancelAbandonsPendingLogin(t *testing.T) {
	h := newHarness(t)
	h.command("login")
	h.text("a@b.co")
	h.button(callbacks.Cancel)
	s := h.session()
	if s.LoginState != state.LoginNone || s.OTPSessionID != "" {
		t.Fatalf("session after cancel = %+v", s)
	}
}

func verifiedAccount() copperx.Account {
	return copperx.Account{
		ID:          "acc-1",
		Type:        "bank_account",
		Country:     "ind",
		Status:      "verified",
		BankAccount: &copperx.BankDetails{BankName: "HDFC", BankAccountNumber: "000011112222"},
	}
}

func TestWithdrawReplaysQuoteVerbatim(t *testing.T) {
	h := newHarness(t)
	payload := `{"amount":"500000000","toAmount":"41600000000","totalFee":"1000000","rate":83.2,"toCurrency":"INR", "extra" : [1, 2]}`
	h.gw.accounts = []copperx.Account{{ID: "acc-2", Type: "bank_account", Status: "pending"}, verifiedAccount()}
	h.gw.quote = copperx.Quote{QuotePayload: payload, QuoteSignature: "sig-abc"}
	h.login()

	h.command("withdraw")
	h.text("5")
	if s := h.session(); s.Flow.Step() != state.WithdrawAwaitAccount || len(s.Flow.Withdraw.Accounts) != 1 {
		t.Fatalf("flow = %+v", s.Flow.Withdraw)
	}
	h.button(callbacks.WithdrawBank, "0")
	p := h.session().PendingWithdrawal()
	if p == nil || p.Payload != payload || p.Signature != "sig-abc" {
		t.Fatalf("pending = %+v", p)
	}
	if h.gw.gotOfframp.QuotePayload != "" {
		t.Fatalf("quote must not be replayed before confirm")
	}
	h.button(callbacks.WithdrawOK)
	if h.gw.gotOfframp.QuotePayload != payload || h.gw.gotOfframp.QuoteSignature != "sig-abc" {
		t.Fatalf("replayed = %+v", h.gw.gotOfframp)
	}
	if s := h.session(); s.Flow.Active() {
		t.Fatalf("flow must end after withdrawal")
	}
	if !h.out.contains("Withdrawal Initiated") {
		t.Fatalf("messages = %q", h.out.msgs)
	}
}

func TestWithdrawInsufficientBalance(t *testing.T) {
	h := newHarness(t)
	h.gw.balance = "3"
	h.login()
	h.command("withdraw")
	h.text("5")
	if !strings.Contains(h.out.last(), "Insufficient balance. You have 3.00 USDC.") {
		t.Fatalf("last = %q", h.out.last())
	}
	if h.gw.called("Accounts") != 0 {
		t.Fatalf("accounts must not be listed")
	}
}

func TestWithdrawStaleBankButton(t *testing.T) {
	h := newHarness(t)
	h.gw.accounts = []copperx.Account{verifiedAccount()}
	h.login()
	h.button(callbacks.WithdrawBank, "0")
	if h.out.last() != msgStaleQuote {
		t.Fatalf("button without a withdrawal must be stale, last = %q", h.out.last())
	}
	h.command("withdraw")
	h.text("5")
	h.button(callbacks.WithdrawBank, "1")
	if h.out.last() != msgStaleQuote || h.gw.called("Quote") != 0 {
		t.Fatalf("index past the listed accounts must be stale, last = %q", h.out.last())
	}
	if s := h.session(); s.Flow.Step() != state.WithdrawAwaitAccount {
		t.Fatalf("step = %s", s.Flow.Step())
	}
}

func TestWithdrawButtonsIndexLongAccountIDs(t *testing.T) {
	h := newHarness(t)
	long := verifiedAccount()
	long.ID = strings.Repeat("a", 60)
	h.gw.accounts = []copperx.Account{long}
	h.gw.balance = "99999999"
	h.gw.quote = copperx.Quote{QuotePayload: `{"toAmount":"1"}`, QuoteSignature: "s"}
	h.login()
	h.command("withdraw")
	h.text("12345678.12345678")
	data, _ := h.out.buttons()
	if len(data) != 2 || data[0] != "wd_bank:0" {
		t.Fatalf("account buttons = %v", data)
	}
	h.button(callbacks.WithdrawBank, "0")
	if p := h.session().PendingWithdrawal(); p == nil || p.BankAccountID != long.ID || p.Amount != "12345678.12345678" {
		t.Fatalf("pending = %+v", p)
	}
}

func TestBatchScalesAndResets(t *testing.T) {
	h := newHarness(t)
	h.gw.payees = []copperx.Payee{{ID: "p1", Email: "p1@x.co", NickName: "P1"}}
	h.login()
	h.command("sendbatch")
	h.button(callbacks.BatchTo, "0")
	h.text("5")
	h.button(callbacks.BatchNew)
	h.text("new@x.co")
	h.text("10")
	if n := len(h.session().Flow.Batch.Recipients); n != 2 {
		t.Fatalf("recipients = %d", n)
	}
	h.button(callbacks.BatchOK)

	if len(h.gw.gotBatch) != 2 {
		t.Fatalf("batch items = %+v", h.gw.gotBatch)
	}
	if h.gw.gotBatch[0].Request.Amount != "500000000" || h.gw.gotBatch[1].Request.Amount != "1000000000" {
		t.Fatalf("amounts = %q %q", h.gw.gotBatch[0].Request.Amount, h.gw.gotBatch[1].Request.Amount)
	}
	if h.gw.gotBatch[0].RequestID != "batch-payment-1-id1" || h.gw.gotBatch[0].Request.Email != "p1@x.co" {
		t.Fatalf("first item = %+v", h.gw.gotBatch[0])
	}
	s := h.session()
	if s.Flow.Batch != nil && len(s.Flow.Batch.Recipients) != 0 {
		t.Fatalf("recipients must be cleared: %+v", s.Flow.Batch)
	}
}

func TestBatchConfirmWithoutRecipients(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.command("sendbatch")
	h.button(callbacks.BatchOK)
	if h.gw.called("SendBatch") != 0 {
		t.Fatalf("empty batch must not be submitted")
	}
	if !strings.Contains(h.out.last(), "No Payees Added") {
		t.Fatalf("last = %q", h.out.last())
	}
}

func TestUnauthorizedDropsSession(t *testing.T) {
	unauthorized := &copperx.APIError{Op: "x", Status: http.StatusUnauthorized, Message: "Unauthorized"}
	cases := map[string]func(h *harness){
		"send": func(h *harness) {
			h.gw.sendErr = unauthorized
			h.command("send")
			h.text("0x1234567890abcdef1234567890abcdef12345678")
			h.text("5")
			h.button(callbacks.SendOK)
		},
		"withdraw": func(h *harness) {
			h.gw.sendErr = unauthorized
			h.gw.accounts = []copperx.Account{verifiedAccount()}
			h.gw.quote = copperx.Quote{QuotePayload: `{"toAmount":"1"}`, QuoteSignature: "s"}
			h.command("withdraw")
			h.text("5")
			h.button(callbacks.WithdrawBank, "0")
			h.button(callbacks.WithdrawOK)
		},
		"profile": func(h *harness) {
			h.gw.profileErr = unauthorized
			h.command("profile")
		},
	}
	for name, run := range cases {
		h := newHarness(t)
		h.login()
		run(h)
		if s := h.session(); s != nil {
			t.Fatalf("%s: session must be deleted, got %+v", name, s)
		}
		if h.out.last() != msgSessionExpired {
			t.Fatalf("%s: last = %q", name, h.out.last())
		}
		if len(h.notify.unsubs) != 1 {
			t.Fatalf("%s: unsubscribe calls = %v", name, h.notify.unsubs)
		}
	}
}

func TestRateLimitShowsWait(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.gw.sendErr = &copperx.RateLimitError{Op: "send", RetryAfter: 1500 * time.Millisecond}
	h.command("send")
	h.text("0x1234567890abcdef1234567890abcdef12345678")
	h.text("5")
	h.button(callbacks.SendOK)
	if !strings.Contains(h.out.last(), "wait 2 seconds") {
		t.Fatalf("last = %q", h.out.last())
	}
	s := h.session()
	if s.Flow.Active() || s.LoginState != state.LoginAuthenticated {
		t.Fatalf("rate limit must clear the flow and keep the login: %+v", s)
	}
}

func TestUpstreamErrorShownVerbatim(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.gw.sendErr = &copperx.APIError{Op: "send", Status: http.StatusBadRequest, Message: "Insufficient funds"}
	h.command("send")
	h.text("0x1234567890abcdef1234567890abcdef12345678")
	h.text("5")
	h.button(callbacks.SendOK)
	if h.out.last() != "❌ Error: Insufficient funds" {
		t.Fatalf("last = %q", h.out.last())
	}
}

func TestUnknownActionFallback(t *testing.T) {
	h := newHarness(t)
	for _, payload := range []string{"nonsense", "wd_bank:only-one", "history:-1"} {
		h.out.msgs = nil
		h.handle(Event{Kind: EventButton, UserID: userID, ChatID: userID, Payload: payload})
		if h.out.last() != msgUnknownAction {
			t.Fatalf("payload %q: last = %q", payload, h.out.last())
		}
	}
}

func TestFreeTextWithoutFlowFallsBack(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.text("hello there")
	if h.out.last() != msgFallback {
		t.Fatalf("last = %q", h.out.last())
	}
}

func TestLogoutDeletesSession(t *testing.T) {
	h := newHarness(t)
	h.login()
	h.command("logout")
	if h.session() != nil {
		t.Fatalf("session must be removed")
	}
	if len(h.notify.unsubs) != 1 || h.notify.unsubs[0] != userID {
		t.Fatalf("unsubs = %v", h.notify.unsubs)
	}
	if h.out.last() != msgLoggedOut {
		t.Fatalf("last = %q", h.out.last())
	}
}

func TestLogoutWithLapsedTokenStillTearsDown(t *testing.T) {
	h := newHarness(t)
	h.login()
	if _, err := h.store.Merge(context.Background(), "42", func(s *state.Session) {
		s.TokenExpiry = testNow
	}); err != nil {
		t.Fatalf("merge: %v", err)
	}
	h.command("logout")
	if h.session() != nil {
		t.Fatalf("session must be removed")
	}
	if len(h.notify.unsubs) != 1 || h.notify.unsubs[0] != userID {
		t.Fatalf("unsubs = %v", h.notify.unsubs)
	}
	if h.out.last() != msgNotLoggedIn {
		t.Fatalf("last = %q", h.out.last())
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Options{Gateway: &fakeGateway{}}); err == nil {
		t.Fatalf("expected error without store")
	}
	if _, err := New(Options{Store: state.NewMemoryStore()}); err == nil {
		t.Fatalf("expected error without gateway")
	}
}

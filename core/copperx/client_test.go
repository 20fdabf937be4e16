package copperx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ritikbhatt20/copperx-telegram-bot/core/config"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	cfg := config.CopperxConfig{BaseURL: srv.URL, Endpoints: config.DefaultEndpoints()}
	c, err := New(cfg, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestAuthenticateSendsCredentials(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/auth/email-otp/authenticate" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			t.Errorf("authenticate must not carry a bearer token")
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if body["email"] != "a@x.com" || body["otp"] != "123456" || body["sid"] != "sid-1" {
			t.Errorf("unexpected body %v", body)
		}
		_, _ = io.WriteString(w, `{"accessToken":"tok","expireAt":"2030-01-01T00:00:00Z","user":{"id":"u1","email":"a@x.com"}}`)
	})

	auth, err := c.Authenticate(context.Background(), "a@x.com", "123456", "sid-1")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if auth.AccessToken != "tok" || auth.User.ID != "u1" {
		t.Fatalf("unexpected auth %+v", auth)
	}
}

func TestUnauthorizedIsClassified(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer stale" {
			t.Errorf("missing bearer header")
		}
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"Unauthorized","statusCode":401}`)
	})

	_, err := c.Profile(context.Background(), "stale")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if Classify(err) != ClassUnauthorized {
		t.Fatalf("classify = %s", Classify(err))
	}
	if ErrorCode(err) != "UNAUTHORIZED" {
		t.Fatalf("code = %s", ErrorCode(err))
	}
}

func TestRateLimitCarriesRetryAfter(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.Wallets(context.Background(), "tok")
	if Classify(err) != ClassRateLimited {
		t.Fatalf("classify = %s (%v)", Classify(err), err)
	}
	if RetryAfter(err) != 7*time.Second {
		t.Fatalf("retry after = %s", RetryAfter(err))
	}
}

func TestUpstreamMessageSurfacesVerbatim(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"message":["amount must be positive","currency invalid"],"statusCode":400}`)
	})

	_, err := c.SendEmail(context.Background(), "tok", SendEmailRequest{Email: "a@x.com", Amount: "1"})
	if Classify(err) != ClassOther {
		t.Fatalf("classify = %s", Classify(err))
	}
	if got := UserMessage(err); got != "amount must be positive; currency invalid" {
		t.Fatalf("user message = %q", got)
	}
}

func TestPostIsNotRetriedOnServerError(t *testing.T) {
	var hits int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	})

	if _, err := c.ConfirmOfframp(context.Background(), "tok", OfframpTransferRequest{}); err == nil {
		t.Fatalf("expected error")
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("offramp transfer was sent %d times", n)
	}
}

func TestHistoryQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/transfers" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("page") != "2" || r.URL.Query().Get("limit") != "10" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		_, _ = io.WriteString(w, `{"page":2,"limit":10,"count":11,"hasMore":false,"data":[{"id":"t1","type":"send","status":"success","amount":"500000000"}]}`)
	})

	list, err := c.History(context.Background(), "tok", 2, 10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(list.Data) != 1 || list.Data[0].Amount != "500000000" {
		t.Fatalf("unexpected list %+v", list)
	}
}

func TestSendBatchWrapsRequests(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Requests []BatchItem `json:"requests"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode: %v", err)
		}
		if len(body.Requests) != 2 || body.Requests[1].Request.Amount != "1000000000" {
			t.Errorf("unexpected batch %+v", body.Requests)
		}
		_, _ = io.WriteString(w, `{"responses":[{"requestId":"r1","response":{"id":"t1","status":"pending"}}]}`)
	})

	items := []BatchItem{
		{RequestID: "r1", Request: SendEmailRequest{Email: "a@x.com", Amount: "500000000"}},
		{RequestID: "r2", Request: SendEmailRequest{Email: "b@x.com", Amount: "1000000000"}},
	}
	res, err := c.SendBatch(context.Background(), "tok", items)
	if err != nil {
		t.Fatalf("send batch: %v", err)
	}
	if len(res.Responses) != 1 || res.Responses[0].Response.ID != "t1" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestAccountsAcceptsBothShapes(t *testing.T) {
	bare, err := decodeAccounts(json.RawMessage(`[{"id":"a1","type":"bank_account","status":"verified"}]`))
	if err != nil || len(bare) != 1 || !bare[0].IsWithdrawable() {
		t.Fatalf("bare array: %v %+v", err, bare)
	}
	paged, err := decodeAccounts(json.RawMessage(`{"data":[{"id":"a2","type":"web3_wallet","status":"verified"}]}`))
	if err != nil || len(paged) != 1 || paged[0].IsWithdrawable() {
		t.Fatalf("paged: %v %+v", err, paged)
	}
}

func TestPointsAcceptsNumberOrString(t *testing.T) {
	var p Points
	if err := json.Unmarshal([]byte(`{"total":1250}`), &p); err != nil || p.Total != "1250" {
		t.Fatalf("number: %v %q", err, p.Total)
	}
	if err := json.Unmarshal([]byte(`{"total":"42"}`), &p); err != nil || p.Total != "42" {
		t.Fatalf("string: %v %q", err, p.Total)
	}
}

func TestParseQuotePayload(t *testing.T) {
	d, err := ParseQuotePayload(`{"amount":"500000000","toAmount":"41500000000","totalFee":"1000000","rate":83.2,"toCurrency":"INR"}`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.Rate != "83.2" || d.ToCurrency != "INR" || d.ToAmount != "41500000000" {
		t.Fatalf("unexpected details %+v", d)
	}
}

package netutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
	"testing"
)

type flakyTransport struct {
	calls int
	fails int
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	f.calls++
	if f.calls <= f.fails {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	}
	return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody, Request: req}, nil
}

func TestRetryTransportRetriesGet(t *testing.T) {
	base := &flakyTransport{fails: 2}
	rt := &RetryTransport{Base: base, MaxRetries: 3, IdempotentOnly: true}
	req, _ := http.NewRequest(http.MethodGet, "http://copperx.test/api/wallets", nil)
	resp, err := rt.RoundTrip(req)
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	_ = resp.Body.Close()
	if base.calls != 3 {
		t.Fatalf("calls = %d, want 3", base.calls)
	}
}

func TestRetryTransportNeverRepeatsPost(t *testing.T) {
	base := &flakyTransport{fails: 1}
	rt := &RetryTransport{Base: base, MaxRetries: 3, IdempotentOnly: true}
	req, _ := http.NewRequest(http.MethodPost, "http://copperx.test/api/transfers/send", strings.NewReader(`{}`))
	if _, err := rt.RoundTrip(req); err == nil {
		t.Fatal("expected dial error to surface")
	}
	if base.calls != 1 {
		t.Fatalf("POST attempted %d times", base.calls)
	}
}

func TestShouldRetry(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("boom"), false},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"refused", fmt.Errorf("post: %w", syscall.ECONNREFUSED), true},
		{"dns temporary", &net.DNSError{Err: "server misbehaving", IsTemporary: true}, true},
		{"dns not found", &net.DNSError{Err: "no such host", IsNotFound: true}, false},
		{"url timeout", &url.Error{Op: "Get", URL: "http://x", Err: timeoutErr{}}, true},
		{"cancelled", &url.Error{Op: "Get", URL: "http://x", Err: context.Canceled}, false},
		{"deadline", context.DeadlineExceeded, false},
	}
	for _, c := range cases {
		if got := ShouldRetry(c.err); got != c.want {
			t.Fatalf("%s: ShouldRetry = %v, want %v", c.name, got, c.want)
		}
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

package netutil

import (
	"net"
	"net/http"
	"time"
)

// ClientOptions tunes NewHTTPClient.
type ClientOptions struct {
	Timeout         time.Duration
	ResponseTimeout time.Duration
	MaxRetries      int
	Backoff         time.Duration
	// IdempotentOnly restricts retries to GET and HEAD so money-moving POSTs
	// are never sent twice.
	IdempotentOnly bool
}

// NewHTTPClient returns a pooled client whose transport retries transient network errors.
func NewHTTPClient(opts ClientOptions) *http.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.ResponseTimeout <= 0 {
		opts.ResponseTimeout = 10 * time.Second
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: opts.ResponseTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Timeout: opts.Timeout,
		Transport: &RetryTransport{
			Base:           transport,
			MaxRetries:     opts.MaxRetries,
			Backoff:        opts.Backoff,
			IdempotentOnly: opts.IdempotentOnly,
		},
	}
}

// RetryTransport re-issues requests that failed with a retryable network error.
type RetryTransport struct {
	Base           http.RoundTripper
	MaxRetries     int
	Backoff        time.Duration
	IdempotentOnly bool
}

func (t *RetryTransport) retryable(req *http.Request) bool {
	if !t.IdempotentOnly {
		return true
	}
	return req.Method == http.MethodGet || req.Method == http.MethodHead
}

// RoundTrip implements http.RoundTripper.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	attempts := t.MaxRetries + 1
	if !t.retryable(req) || attempts < 1 {
		attempts = 1
	}
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		currReq := req
		if attempt > 1 {
			currReq = req.Clone(req.Context())
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, err
				}
				currReq.Body = body
			} else if req.Body != nil && req.Body != http.NoBody {
				return nil, lastErr
			}
		}

		resp, err := base.RoundTrip(currReq)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !ShouldRetry(err) || attempt == attempts {
			break
		}

		delay := t.Backoff * time.Duration(attempt)
		if delay <= 0 {
			continue
		}
		timer := time.NewTimer(delay)
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}

	return nil, lastErr
}

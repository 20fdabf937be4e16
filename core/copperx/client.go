// Package copperx is a typed client for the Copperx payments API.
//
// Every method returns the gateway failure translated into ErrUnauthorized,
// *RateLimitError or *APIError; nothing is swallowed.
package copperx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ritikbhatt20/copperx-telegram-bot/core/config"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/logger"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/netutil"
)

const maxBodyBytes = 1 << 20

// Client talks to one Copperx deployment.
type Client struct {
	base      *url.URL
	http      *http.Client
	endpoints config.EndpointsConfig
	now       func() time.Time
}

// New builds a client from the copperx config section. A nil httpClient gets a
// pooled client that retries only idempotent requests.
func New(cfg config.CopperxConfig, httpClient *http.Client) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("copperx: invalid base url %q", cfg.BaseURL)
	}
	if httpClient == nil {
		timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
		httpClient = netutil.NewHTTPClient(netutil.ClientOptions{
			Timeout:         timeout,
			ResponseTimeout: timeout,
			MaxRetries:      2,
			Backoff:         500 * time.Millisecond,
			IdempotentOnly:  true,
		})
	}
	return &Client{
		base:      base,
		http:      httpClient,
		endpoints: cfg.Endpoints,
		now:       time.Now,
	}, nil
}

// RequestOTP asks the gateway to email a one-time password.
func (c *Client) RequestOTP(ctx context.Context, email string) (OTPRequest, error) {
	var out OTPRequest
	err := c.do(ctx, "request_otp", http.MethodPost, c.endpoints.RequestOTP, "", nil,
		map[string]string{"email": email}, &out)
	return out, err
}

// Authenticate exchanges an OTP for a bearer token.
func (c *Client) Authenticate(ctx context.Context, email, otp, sid string) (Auth, error) {
	var out Auth
	err := c.do(ctx, "authenticate", http.MethodPost, c.endpoints.Authenticate, "", nil,
		map[string]string{"email": email, "otp": otp, "sid": sid}, &out)
	return out, err
}

// Profile returns the authenticated user.
func (c *Client) Profile(ctx context.Context, token string) (Profile, error) {
	var out Profile
	err := c.do(ctx, "profile", http.MethodGet, c.endpoints.Profile, token, nil, nil, &out)
	return out, err
}

// KYCs lists verification records.
func (c *Client) KYCs(ctx context.Context, token string) (KYCList, error) {
	var out KYCList
	err := c.do(ctx, "kycs", http.MethodGet, c.endpoints.KYCs, token, nil, nil, &out)
	return out, err
}

// Wallets lists the organization's wallets.
func (c *Client) Wallets(ctx context.Context, token string) ([]Wallet, error) {
	var out []Wallet
	err := c.do(ctx, "wallets", http.MethodGet, c.endpoints.Wallets, token, nil, nil, &out)
	return out, err
}

// Balances lists token balances grouped by wallet.
func (c *Client) Balances(ctx context.Context, token string) ([]WalletBalances, error) {
	var out []WalletBalances
	err := c.do(ctx, "balances", http.MethodGet, c.endpoints.Balances, token, nil, nil, &out)
	return out, err
}

// DefaultBalance returns the default wallet balance in human units.
func (c *Client) DefaultBalance(ctx context.Context, token string) (WalletBalance, error) {
	var out WalletBalance
	err := c.do(ctx, "wallet_balance", http.MethodGet, c.endpoints.WalletBalance, token, nil, nil, &out)
	return out, err
}

// SetDefaultWallet marks walletID as the default wallet.
func (c *Client) SetDefaultWallet(ctx context.Context, token, walletID string) (Wallet, error) {
	var out Wallet
	err := c.do(ctx, "default_wallet", http.MethodPost, c.endpoints.DefaultWallet, token, nil,
		map[string]string{"walletId": walletID}, &out)
	return out, err
}

// Payees lists saved recipients.
func (c *Client) Payees(ctx context.Context, token string) (PayeeList, error) {
	var out PayeeList
	q := url.Values{"page": {"1"}, "limit": {"50"}}
	err := c.do(ctx, "payees", http.MethodGet, c.endpoints.Payees, token, q, nil, &out)
	return out, err
}

// CreatePayee saves a new recipient.
func (c *Client) CreatePayee(ctx context.Context, token string, req CreatePayeeRequest) (Payee, error) {
	var out Payee
	err := c.do(ctx, "create_payee", http.MethodPost, c.endpoints.Payees, token, nil, req, &out)
	return out, err
}

// SendEmail transfers funds to an email recipient.
func (c *Client) SendEmail(ctx context.Context, token string, req SendEmailRequest) (Transfer, error) {
	var out Transfer
	err := c.do(ctx, "send_email", http.MethodPost, c.endpoints.SendEmail, token, nil, req, &out)
	return out, err
}

// SendWallet transfers funds to an external wallet address.
func (c *Client) SendWallet(ctx context.Context, token string, req SendWalletRequest) (Transfer, error) {
	var out Transfer
	err := c.do(ctx, "send_wallet", http.MethodPost, c.endpoints.SendWallet, token, nil, req, &out)
	return out, err
}

// Accounts lists linked accounts.
func (c *Client) Accounts(ctx context.Context, token string) ([]Account, error) {
	var raw json.RawMessage
	if err := c.do(ctx, "accounts", http.MethodGet, c.endpoints.Accounts, token, nil, nil, &raw); err != nil {
		return nil, err
	}
	return decodeAccounts(raw)
}

// decodeAccounts accepts either a bare array or a {data: [...]} page.
func decodeAccounts(raw json.RawMessage) ([]Account, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var list []Account
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("copperx accounts: decode: %w", err)
		}
		return list, nil
	}
	var page AccountList
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return nil, fmt.Errorf("copperx accounts: decode: %w", err)
	}
	return page.Data, nil
}

// Quote fetches a signed off-ramp quote.
func (c *Client) Quote(ctx context.Context, token string, req QuoteRequest) (Quote, error) {
	var out Quote
	err := c.do(ctx, "offramp_quote", http.MethodPost, c.endpoints.OfframpQuote, token, nil, req, &out)
	return out, err
}

// ConfirmOfframp submits a previously fetched quote.
func (c *Client) ConfirmOfframp(ctx context.Context, token string, req OfframpTransferRequest) (Transfer, error) {
	var out Transfer
	err := c.do(ctx, "offramp_transfer", http.MethodPost, c.endpoints.OfframpTransfer, token, nil, req, &out)
	return out, err
}

// History returns one page of transfers, newest first.
func (c *Client) History(ctx context.Context, token string, page, limit int) (TransferList, error) {
	var out TransferList
	q := url.Values{"page": {strconv.Itoa(page)}, "limit": {strconv.Itoa(limit)}}
	err := c.do(ctx, "transfers", http.MethodGet, c.endpoints.Transfers, token, q, nil, &out)
	return out, err
}

// SendBatch submits several email transfers in one request.
func (c *Client) SendBatch(ctx context.Context, token string, items []BatchItem) (BatchResult, error) {
	var out BatchResult
	body := struct {
		Requests []BatchItem `json:"requests"`
	}{Requests: items}
	err := c.do(ctx, "send_batch", http.MethodPost, c.endpoints.SendBatch, token, nil, body, &out)
	return out, err
}

// Points returns the Copperx Mint total for email.
func (c *Client) Points(ctx context.Context, token, email string) (Points, error) {
	var out Points
	q := url.Values{"email": {email}}
	err := c.do(ctx, "points", http.MethodGet, c.endpoints.Points, token, q, nil, &out)
	return out, err
}

// AuthorizeChannel signs a private push channel subscription for socketID.
func (c *Client) AuthorizeChannel(ctx context.Context, token, socketID, channel string) (ChannelAuth, error) {
	var out ChannelAuth
	err := c.do(ctx, "notification_auth", http.MethodPost, c.endpoints.NotificationAuth, token, nil,
		map[string]string{"socket_id": socketID, "channel_name": channel}, &out)
	return out, err
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

func (c *Client) do(ctx context.Context, op, method, path, token string, query url.Values, in, out any) error {
	start := time.Now()
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("copperx %s: encode: %w", op, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), body)
	if err != nil {
		return fmt.Errorf("copperx %s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		logger.Warn(ctx, logger.CompCopperx, "copperx.request_failed",
			slog.String("endpoint", op),
			slog.String("method", method),
			slog.Duration("took", logger.Took(start)),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("copperx %s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("copperx %s: read body: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := c.translate(op, resp, raw)
		logger.Warn(ctx, logger.CompCopperx, "copperx.request_failed",
			slog.String("endpoint", op),
			slog.String("method", method),
			slog.Int("status", resp.StatusCode),
			slog.Duration("took", logger.Took(start)),
			slog.String("err_code", ErrorCode(apiErr)),
		)
		return apiErr
	}

	logger.Debug(ctx, logger.CompCopperx, "copperx.request",
		slog.String("endpoint", op),
		slog.String("method", method),
		slog.Int("status", resp.StatusCode),
		slog.Duration("took", logger.Took(start)),
	)

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("copperx %s: decode: %w", op, err)
	}
	return nil
}

func (c *Client) translate(op string, resp *http.Response, raw []byte) error {
	msg := parseErrorMessage(raw)
	if resp.StatusCode == http.StatusTooManyRequests {
		return &RateLimitError{
			Op:         op,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), c.now()),
			Message:    msg,
		}
	}
	return &APIError{Op: op, Status: resp.StatusCode, Message: msg}
}

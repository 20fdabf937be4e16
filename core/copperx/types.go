package copperx

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// FlexString decodes a JSON string or number into its textual form.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("flex string: %w", err)
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// OTPRequest is the response of the OTP request endpoint.
type OTPRequest struct {
	Email string `json:"email"`
	SID   string `json:"sid"`
}

// AuthUser is the user block returned on authentication.
type AuthUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Auth is the response of the OTP authenticate endpoint.
type Auth struct {
	AccessToken string   `json:"accessToken"`
	ExpireAt    string   `json:"expireAt"`
	User        AuthUser `json:"user"`
}

// Profile is the authenticated user.
type Profile struct {
	ID             string  `json:"id"`
	FirstName      *string `json:"firstName"`
	LastName       *string `json:"lastName"`
	Email          string  `json:"email"`
	Status         string  `json:"status"`
	OrganizationID string  `json:"organizationId"`
}

// KYC is one verification record.
type KYC struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Type      string `json:"type"`
	KYCURL    string `json:"kycUrl"`
	CreatedAt string `json:"createdAt"`
}

// KYCList is a page of KYC records, newest first.
type KYCList struct {
	Page    int   `json:"page"`
	Limit   int   `json:"limit"`
	Count   int   `json:"count"`
	HasMore bool  `json:"hasMore"`
	Data    []KYC `json:"data"`
}

// Wallet is a custodial wallet on one network.
type Wallet struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organizationId"`
	WalletType     string `json:"walletType"`
	IsDefault      bool   `json:"isDefault"`
	Network        string `json:"network"`
	WalletAddress  string `json:"walletAddress"`
}

// TokenBalance is one asset balance inside a wallet.
type TokenBalance struct {
	Symbol   string `json:"symbol"`
	Balance  string `json:"balance"`
	Decimals int    `json:"decimals"`
	Address  string `json:"address"`
}

// WalletBalances groups the balances of one wallet.
type WalletBalances struct {
	WalletID  string         `json:"walletId"`
	IsDefault bool           `json:"isDefault"`
	Network   string         `json:"network"`
	Balances  []TokenBalance `json:"balances"`
}

// WalletBalance is the default wallet balance. Balance is in human units.
type WalletBalance struct {
	Balance  string `json:"balance"`
	Decimals int    `json:"decimals"`
	Symbol   string `json:"symbol"`
	Address  string `json:"address"`
}

// Payee is a saved recipient.
type Payee struct {
	ID          string `json:"id"`
	NickName    string `json:"nickName"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

// Label renders the payee for a button.
func (p Payee) Label() string {
	name := p.DisplayName
	if name == "" {
		name = p.NickName
	}
	if name == "" {
		return p.Email
	}
	return name + " (" + p.Email + ")"
}

// PayeeList is a page of payees.
type PayeeList struct {
	Count   int     `json:"count"`
	HasMore bool    `json:"hasMore"`
	Data    []Payee `json:"data"`
}

// CreatePayeeRequest registers a payee by email.
type CreatePayeeRequest struct {
	NickName string `json:"nickName"`
	Email    string `json:"email"`
}

// SendEmailRequest transfers to an email recipient. Amount is in minor units.
type SendEmailRequest struct {
	Email       string `json:"email"`
	Amount      string `json:"amount"`
	PurposeCode string `json:"purposeCode"`
	Currency    string `json:"currency"`
}

// SendWalletRequest transfers to an external wallet. Amount is in minor units.
type SendWalletRequest struct {
	WalletAddress string `json:"walletAddress"`
	Amount        string `json:"amount"`
	PurposeCode   string `json:"purposeCode"`
	Currency      string `json:"currency"`
}

// TransferAccount is the source or destination of a transfer.
type TransferAccount struct {
	Type          string `json:"type"`
	Network       string `json:"network"`
	WalletAddress string `json:"walletAddress"`
	BankName      string `json:"bankName"`
	PayeeEmail    string `json:"payeeEmail"`
}

// TransferLeg is one underlying transaction of a transfer.
type TransferLeg struct {
	Status       string `json:"status"`
	FromAmount   string `json:"fromAmount"`
	FromCurrency string `json:"fromCurrency"`
}

// Transfer is a money movement. Amount is in minor units.
type Transfer struct {
	ID                 string          `json:"id"`
	CreatedAt          string          `json:"createdAt"`
	Status             string          `json:"status"`
	Type               string          `json:"type"`
	Mode               string          `json:"mode"`
	Amount             string          `json:"amount"`
	Currency           string          `json:"currency"`
	PaymentURL         string          `json:"paymentUrl"`
	DestinationAccount TransferAccount `json:"destinationAccount"`
	Transactions       []TransferLeg   `json:"transactions"`
}

// TransferList is a page of transfers.
type TransferList struct {
	Page    int        `json:"page"`
	Limit   int        `json:"limit"`
	Count   int        `json:"count"`
	HasMore bool       `json:"hasMore"`
	Data    []Transfer `json:"data"`
}

// BankDetails is the bank block of an account.
type BankDetails struct {
	BankName          string `json:"bankName"`
	BankAccountNumber string `json:"bankAccountNumber"`
}

// Account is a linked account; only verified bank accounts can receive withdrawals.
type Account struct {
	ID          string       `json:"id"`
	Type        string       `json:"type"`
	Country     string       `json:"country"`
	Status      string       `json:"status"`
	BankAccount *BankDetails `json:"bankAccount"`
}

// IsWithdrawable reports whether the account is a verified bank account.
func (a Account) IsWithdrawable() bool {
	return a.Type == "bank_account" && a.Status == "verified"
}

// Label renders the account as "Bank (****1234)".
func (a Account) Label() string {
	if a.BankAccount == nil {
		return a.ID
	}
	num := a.BankAccount.BankAccountNumber
	if len(num) > 4 {
		num = num[len(num)-4:]
	}
	return fmt.Sprintf("%s (****%s)", a.BankAccount.BankName, num)
}

// AccountList wraps the accounts endpoint.
type AccountList struct {
	Data []Account `json:"data"`
}

// QuoteRequest asks for an off-ramp quote. Amount is in minor units.
type QuoteRequest struct {
	Amount                 string `json:"amount"`
	Currency               string `json:"currency"`
	DestinationCountry     string `json:"destinationCountry"`
	OnlyRemittance         bool   `json:"onlyRemittance"`
	PreferredBankAccountID string `json:"preferredBankAccountId"`
	SourceCountry          string `json:"sourceCountry"`
}

// Quote is a signed off-ramp offer. QuotePayload and QuoteSignature are opaque.
type Quote struct {
	MinAmount          FlexString `json:"minAmount"`
	MaxAmount          FlexString `json:"maxAmount"`
	ArrivalTimeMessage string     `json:"arrivalTimeMessage"`
	Error              *string    `json:"error"`
	QuotePayload       string     `json:"quotePayload"`
	QuoteSignature     string     `json:"quoteSignature"`
}

// QuoteDetails are the display fields of a quote payload. Amounts are in minor units.
type QuoteDetails struct {
	Amount       FlexString `json:"amount"`
	ToAmount     FlexString `json:"toAmount"`
	TotalFee     FlexString `json:"totalFee"`
	Rate         FlexString `json:"rate"`
	ToCurrency   string     `json:"toCurrency"`
	FromCurrency string     `json:"fromCurrency"`
}

// ParseQuotePayload decodes the display fields of an opaque payload without altering it.
func ParseQuotePayload(payload string) (QuoteDetails, error) {
	var d QuoteDetails
	dec := json.NewDecoder(strings.NewReader(payload))
	if err := dec.Decode(&d); err != nil {
		return QuoteDetails{}, fmt.Errorf("decode quote payload: %w", err)
	}
	return d, nil
}

// OfframpTransferRequest replays a stored quote.
type OfframpTransferRequest struct {
	PurposeCode    string `json:"purposeCode"`
	QuotePayload   string `json:"quotePayload"`
	QuoteSignature string `json:"quoteSignature"`
}

// BatchItem is one request of a batch submission.
type BatchItem struct {
	RequestID string           `json:"requestId"`
	Request   SendEmailRequest `json:"request"`
}

// BatchItemError is the per-item failure of a batch.
type BatchItemError struct {
	Message    FlexString `json:"message"`
	StatusCode int        `json:"statusCode"`
	Error      string     `json:"error"`
}

// BatchItemResult is the per-item outcome of a batch.
type BatchItemResult struct {
	RequestID string           `json:"requestId"`
	Request   SendEmailRequest `json:"request"`
	Response  *Transfer        `json:"response"`
	Error     *BatchItemError  `json:"error"`
}

// BatchResult is the response of a batch submission.
type BatchResult struct {
	Responses []BatchItemResult `json:"responses"`
}

// Points is the Copperx Mint total.
type Points struct {
	Total FlexString `json:"total"`
}

// ChannelAuth signs a private push channel subscription.
type ChannelAuth struct {
	Auth     string `json:"auth"`
	UserData string `json:"user_data"`
}

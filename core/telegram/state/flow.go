package state

// FlowKind names the active guided flow.
type FlowKind string

const (
	KindNone      FlowKind = ""
	KindSend      FlowKind = "send"
	KindSendEmail FlowKind = "send_email"
	KindAddPayee  FlowKind = "add_payee"
	KindWithdraw  FlowKind = "withdraw"
	KindBatch     FlowKind = "batch"
)

// Step names a state inside a flow.
type Step string

const (
	SendAwaitAddress Step = "address"
	SendAwaitPayee   Step = "payee"
	SendAwaitAmount  Step = "amount"
	SendConfirm      Step = "confirm"

	PayeeAwaitEmail    Step = "email"
	PayeeAwaitNickname Step = "nickname"

	WithdrawAwaitAmount  Step = "amount"
	WithdrawAwaitAccount Step = "account"
	WithdrawConfirm      Step = "confirm"

	BatchSelectPayee Step = "select"
	BatchAwaitEmail  Step = "email"
	BatchAwaitAmount Step = "amount"
)

// Flow is a tagged union: Kind selects which one of the variant pointers is set.
type Flow struct {
	Kind     FlowKind      `json:"kind,omitempty"`
	Send     *SendFlow     `json:"send,omitempty"`
	Payee    *PayeeFlow    `json:"payee,omitempty"`
	Withdraw *WithdrawFlow `json:"withdraw,omitempty"`
	Batch    *BatchFlow    `json:"batch,omitempty"`
}

// PayeeRef is a cached payee, addressed by its index in button payloads.
type PayeeRef struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	NickName string `json:"nick_name,omitempty"`
}

// SendFlow collects a single transfer, to a wallet address or to an email payee.
type SendFlow struct {
	Step    Step       `json:"step"`
	Address string     `json:"address,omitempty"`
	Email   string     `json:"email,omitempty"`
	Amount  string     `json:"amount,omitempty"`
	Payees  []PayeeRef `json:"payees,omitempty"`
}

// PayeeFlow collects a new payee.
type PayeeFlow struct {
	Step  Step   `json:"step"`
	Email string `json:"email,omitempty"`
}

// BankAccountRef is a cached verified bank account offered for withdrawal.
type BankAccountRef struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Country string `json:"country,omitempty"`
}

// PendingWithdrawal is a signed off-ramp quote awaiting confirmation.
// Signature and Payload are replayed byte for byte.
type PendingWithdrawal struct {
	Signature     string `json:"signature"`
	Payload       string `json:"payload"`
	BankAccountID string `json:"bank_account_id"`
	Amount        string `json:"amount"`
}

// WithdrawFlow walks amount, bank account and quote confirmation.
type WithdrawFlow struct {
	Step     Step               `json:"step"`
	Amount   string             `json:"amount,omitempty"`
	Accounts []BankAccountRef   `json:"accounts,omitempty"`
	Pending  *PendingWithdrawal `json:"pending,omitempty"`
}

// BatchRecipient is one accumulated batch entry; AmountMinor is already scaled.
type BatchRecipient struct {
	Email       string `json:"email"`
	AmountMinor string `json:"amount_minor"`
}

// BatchFlow accumulates recipients until the batch is confirmed.
type BatchFlow struct {
	Step         Step             `json:"step"`
	Recipients   []BatchRecipient `json:"recipients"`
	CurrentEmail string           `json:"current_email,omitempty"`
	Payees       []PayeeRef       `json:"payees,omitempty"`
}

// NoFlow is the idle state.
func NoFlow() Flow { return Flow{} }

// NewSend starts a send-to-wallet flow.
func NewSend(f SendFlow) Flow { return Flow{Kind: KindSend, Send: &f} }

// NewSendEmail starts a send-to-email flow.
func NewSendEmail(f SendFlow) Flow { return Flow{Kind: KindSendEmail, Send: &f} }

// NewAddPayee starts the add-payee flow.
func NewAddPayee(f PayeeFlow) Flow { return Flow{Kind: KindAddPayee, Payee: &f} }

// NewWithdraw starts the bank withdrawal flow.
func NewWithdraw(f WithdrawFlow) Flow { return Flow{Kind: KindWithdraw, Withdraw: &f} }

// NewBatch starts the batch payment flow.
func NewBatch(f BatchFlow) Flow { return Flow{Kind: KindBatch, Batch: &f} }

// Active reports whether any flow drives input routing.
func (f Flow) Active() bool { return f.Kind != KindNone }

// Step returns the current step of the active variant.
func (f Flow) Step() Step {
	switch f.Kind {
	case KindSend, KindSendEmail:
		if f.Send != nil {
			return f.Send.Step
		}
	case KindAddPayee:
		if f.Payee != nil {
			return f.Payee.Step
		}
	case KindWithdraw:
		if f.Withdraw != nil {
			return f.Withdraw.Step
		}
	case KindBatch:
		if f.Batch != nil {
			return f.Batch.Step
		}
	}
	return ""
}

// normalize drops variants that do not match Kind and a quote outside the confirm step.
func (f *Flow) normalize() {
	keep := Flow{Kind: f.Kind}
	switch f.Kind {
	case KindSend, KindSendEmail:
		keep.Send = f.Send
	case KindAddPayee:
		keep.Payee = f.Payee
	case KindWithdraw:
		keep.Withdraw = f.Withdraw
		if w := keep.Withdraw; w != nil && w.Step != WithdrawConfirm {
			w.Pending = nil
		}
	case KindBatch:
		keep.Batch = f.Batch
	}
	if keep.Kind != KindNone && keep.Step() == "" {
		keep = Flow{}
	}
	*f = keep
}

func (f Flow) clone() Flow {
	out := Flow{Kind: f.Kind}
	if f.Send != nil {
		s := *f.Send
		s.Payees = append([]PayeeRef(nil), f.Send.Payees...)
		out.Send = &s
	}
	if f.Payee != nil {
		p := *f.Payee
		out.Payee = &p
	}
	if f.Withdraw != nil {
		w := *f.Withdraw
		w.Accounts = append([]BankAccountRef(nil), f.Withdraw.Accounts...)
		if f.Withdraw.Pending != nil {
			pw := *f.Withdraw.Pending
			w.Pending = &pw
		}
		out.Withdraw = &w
	}
	if f.Batch != nil {
		b := *f.Batch
		b.Recipients = append([]BatchRecipient(nil), f.Batch.Recipients...)
		b.Payees = append([]PayeeRef(nil), f.Batch.Payees...)
		out.Batch = &b
	}
	return out
}

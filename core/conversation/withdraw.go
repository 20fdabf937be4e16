package conversation

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/ritikbhatt20/copperx-telegram-bot/core/copperx"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/logger"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/callbacks"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/format"
	kb "github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/keyboard"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/state"
)

// sourceCountry is what the off-ramp quote expects for a crypto source.
const sourceCountry = "none"

var errQuoteUnsigned = errors.New("quote response is missing its signed payload")

func (t *turn) startWithdraw() error {
	if err := t.send("🔄 Fetching your balance...", nil); err != nil {
		return err
	}
	bal, err := t.e.gw.DefaultBalance(t.ctx, t.token())
	if err != nil {
		return err
	}
	if err := t.setFlow(state.NewWithdraw(state.WithdrawFlow{Step: state.WithdrawAwaitAmount})); err != nil {
		return err
	}
	text := "🏦 *Withdraw USDC to Bank*\n\n" +
		"Your balance: *" + copperx.FormatHuman(bal.Balance) + " " + t.e.cfg.Currency + "*\n\n" +
		"Please enter the amount in USDC to withdraw:"
	return t.sendMD(text, cancelMarkup())
}

func (t *turn) submitWithdrawAmount() error {
	d, _, err := t.parseAmount(t.ev.Text, false, msgInvalidAmount, cancelMarkup())
	if err != nil {
		return err
	}
	bal, err := t.e.gw.DefaultBalance(t.ctx, t.token())
	if err != nil {
		return err
	}
	available, err := decimal.NewFromString(nonEmpty(bal.Balance, "0"))
	if err != nil {
		return fmt.Errorf("parse balance %q: %w", bal.Balance, err)
	}
	if d.GreaterThan(available) {
		if err := t.clearFlow(); err != nil {
			return err
		}
		return t.send("❌ Insufficient balance. You have "+available.StringFixed(2)+" "+t.e.cfg.Currency+".", menuButtonMarkup())
	}

	accounts, err := t.e.gw.Accounts(t.ctx, t.token())
	if err != nil {
		return err
	}
	amount := d.String()
	var (
		refs []state.BankAccountRef
		btns []kb.InlineBtn
	)
	for _, acc := range accounts {
		if !acc.IsWithdrawable() {
			continue
		}
		btn, err := kb.Action("🏦 "+acc.Label(), callbacks.WithdrawBank, strconv.Itoa(len(refs)))
		if err != nil {
			return err
		}
		refs = append(refs, state.BankAccountRef{ID: acc.ID, Label: acc.Label(), Country: acc.Country})
		btns = append(btns, btn)
	}
	if len(refs) == 0 {
		if err := t.clearFlow(); err != nil {
			return err
		}
		return t.sendMD("🏦 *No Bank Accounts Found*\n\n"+
			"Add and verify a bank account on the Copperx platform before withdrawing.", menuButtonMarkup())
	}

	if err := t.setFlow(state.NewWithdraw(state.WithdrawFlow{
		Step:     state.WithdrawAwaitAccount,
		Amount:   amount,
		Accounts: refs,
	})); err != nil {
		return err
	}
	btns = append(btns, kb.CancelButton())
	return t.sendMD("🏦 *Select Bank Account*\n\nAmount: *"+humanAmount(d)+" "+t.e.cfg.Currency+"*\n\nChoose a bank account:",
		kb.InlineButtons(btns))
}

// pickWithdrawAccount requests a quote for the chosen account. The button
// indexes the accounts listed for the withdrawal in progress.
func (t *turn) pickWithdrawAccount(a callbacks.Action) error {
	f := t.sess.Flow.Withdraw
	i := a.Int(0)
	if t.sess.Flow.Kind != state.KindWithdraw || f == nil || f.Step != state.WithdrawAwaitAccount || i >= len(f.Accounts) {
		return t.send(msgStaleQuote, menuButtonMarkup())
	}
	acc := &f.Accounts[i]
	d, err := decimal.NewFromString(f.Amount)
	if err != nil {
		return fmt.Errorf("stored withdraw amount: %w", err)
	}
	minor, err := t.e.scale.ToMinor(d)
	if err != nil {
		return err
	}

	if err := t.send("🔄 Fetching withdrawal quote...", nil); err != nil {
		return err
	}
	q, err := t.e.gw.Quote(t.ctx, t.token(), copperx.QuoteRequest{
		Amount:                 minor,
		Currency:               t.e.cfg.Currency,
		DestinationCountry:     acc.Country,
		OnlyRemittance:         true,
		PreferredBankAccountID: acc.ID,
		SourceCountry:          sourceCountry,
	})
	if err != nil {
		return err
	}
	if q.Error != nil && *q.Error != "" {
		return errors.New(*q.Error)
	}
	if q.QuotePayload == "" || q.QuoteSignature == "" {
		return errQuoteUnsigned
	}
	details, err := copperx.ParseQuotePayload(q.QuotePayload)
	if err != nil {
		return err
	}

	chosen := *acc
	if err := t.setFlow(state.NewWithdraw(state.WithdrawFlow{
		Step:     state.WithdrawConfirm,
		Amount:   f.Amount,
		Accounts: f.Accounts,
		Pending: &state.PendingWithdrawal{
			Signature:     q.QuoteSignature,
			Payload:       q.QuotePayload,
			BankAccountID: chosen.ID,
			Amount:        f.Amount,
		},
	})); err != nil {
		return err
	}

	toCurrency := details.ToCurrency
	text := "🏦 *Withdrawal Details*\n\n" +
		"Withdraw: *" + humanAmount(d) + " " + t.e.cfg.Currency + "*\n" +
		"You'll receive: *" + t.e.scale.FormatMinor(details.ToAmount.String()) + " " + format.MD(toCurrency) + "*\n" +
		"Exchange rate: 1 " + t.e.cfg.Currency + " ≈ " + copperx.FormatHuman(details.Rate.String()) + " " + format.MD(toCurrency) + "\n" +
		"Fee: " + t.e.scale.FormatMinor(details.TotalFee.String()) + " " + t.e.cfg.Currency + "\n"
	if q.ArrivalTimeMessage != "" {
		text += "Arrival: " + format.MD(q.ArrivalTimeMessage) + "\n"
	}
	text += "Bank: " + format.MD(chosen.Label) + "\n\n" +
		"Press \"Confirm\" to proceed with the withdrawal."
	return t.sendMD(text, kb.InlineButtonsRows(
		[]kb.InlineBtn{kb.Static("✅ Confirm", callbacks.WithdrawOK), kb.CancelButton()},
	))
}

// confirmWithdraw replays the stored quote exactly as the gateway signed it.
func (t *turn) confirmWithdraw() error {
	p := t.sess.PendingWithdrawal()
	if p == nil {
		if err := t.clearFlow(); err != nil {
			return err
		}
		return t.send("❌ No withdrawal quote found. Please start over with /withdraw.", menuButtonMarkup())
	}
	pending := *p
	var bank string
	for _, acc := range t.sess.Flow.Withdraw.Accounts {
		if acc.ID == pending.BankAccountID {
			bank = acc.Label
		}
	}

	if err := t.send("🔄 Processing withdrawal...", nil); err != nil {
		return err
	}
	tr, err := t.e.gw.ConfirmOfframp(t.ctx, t.token(), copperx.OfframpTransferRequest{
		PurposeCode:    t.e.cfg.PurposeCode,
		QuotePayload:   pending.Payload,
		QuoteSignature: pending.Signature,
	})
	if err != nil {
		return err
	}
	if err := t.clearFlow(); err != nil {
		return err
	}
	logger.Info(t.ctx, logger.CompFlow, "withdraw.confirmed", slog.String("transfer_id", tr.ID))

	amount := pending.Amount
	if tr.Amount != "" {
		amount = t.e.scale.FormatMinor(tr.Amount)
	} else if d, err := decimal.NewFromString(amount); err == nil {
		amount = humanAmount(d)
	}
	text := "✅ *Withdrawal Initiated!*\n\n" +
		"Amount: *" + amount + " " + t.e.cfg.Currency + "*\n" +
		"Transaction ID: " + format.Code(tr.ID) + "\n" +
		"Status: " + format.MD(nonEmpty(tr.Status, "pending"))
	if bank != "" {
		text += "\nBank: " + format.MD(bank)
	}
	if tr.PaymentURL != "" {
		text += "\nCheck status: [Payment Link](" + tr.PaymentURL + ")"
	}
	return t.sendMD(text, afterTransferMarkup())
}

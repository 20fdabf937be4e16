package conversation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v4"

	"github.com/ritikbhatt20/copperx-telegram-bot/core/copperx"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/callbacks"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/format"
	kb "github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/keyboard"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/state"
)

// maxPayeeButtons caps the keyboard; the rest of a long payee list is not offered.
const maxPayeeButtons = 50

var (
	walletAddressRe = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	payeeEmailRe    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// parseAmount validates a human amount and its minor-unit rendering.
func (t *turn) parseAmount(text string, md bool, prompt string, markup *tele.ReplyMarkup) (decimal.Decimal, string, error) {
	reject := func(msg string) error {
		if md {
			return invalidMD(msg, markup)
		}
		return &inputError{prompt: msg, markup: markup}
	}
	d, err := copperx.ParseAmount(text)
	if err != nil {
		return decimal.Zero, "", reject(prompt)
	}
	minor, err := t.e.scale.ToMinor(d)
	if errors.Is(err, copperx.ErrTooPrecise) {
		return decimal.Zero, "", reject(fmt.Sprintf(msgTooPrecise, t.e.scale.Decimals))
	}
	if err != nil {
		return decimal.Zero, "", err
	}
	return d, minor, nil
}

// humanAmount shows two decimals unless that would round the value.
func humanAmount(d decimal.Decimal) string {
	if d.Equal(d.Round(2)) {
		return d.StringFixed(2)
	}
	return d.String()
}

func payeeRefs(list []copperx.Payee) []state.PayeeRef {
	if len(list) > maxPayeeButtons {
		list = list[:maxPayeeButtons]
	}
	out := make([]state.PayeeRef, 0, len(list))
	for _, p := range list {
		out = append(out, state.PayeeRef{ID: p.ID, Email: p.Email, NickName: nonEmpty(p.DisplayName, p.NickName)})
	}
	return out
}

func payeeLabel(p state.PayeeRef) string {
	if p.NickName == "" {
		return p.Email
	}
	return p.NickName + " (" + p.Email + ")"
}

func (t *turn) showSendMenu() error {
	return t.sendMD("📤 *Send Money*\n\n👇 Choose how you'd like to send funds:", kb.InlineButtonsRows(
		[]kb.InlineBtn{kb.Static("📧 Send to Email", callbacks.Email), kb.Static("💳 Send to Wallet", callbacks.Send)},
		[]kb.InlineBtn{kb.Static("🏦 Withdraw to Bank", callbacks.Withdraw)},
		[]kb.InlineBtn{menuButton()},
	))
}

func (t *turn) startSend() error {
	if err := t.setFlow(state.NewSend(state.SendFlow{Step: state.SendAwaitAddress})); err != nil {
		return err
	}
	return t.sendMD("📤 *Send USDC*\n\nPlease enter the wallet address to send funds to:", cancelMarkup())
}

func (t *turn) submitSendAddress() error {
	addr := strings.TrimSpace(t.ev.Text)
	if !walletAddressRe.MatchString(addr) {
		return &inputError{prompt: msgInvalidAddress, markup: cancelMarkup()}
	}
	if err := t.save(func(s *state.Session) {
		if s.Flow.Kind == state.KindSend && s.Flow.Send != nil {
			s.Flow.Send.Address = addr
			s.Flow.Send.Step = state.SendAwaitAmount
		}
	}); err != nil {
		return err
	}
	return t.sendMD("📤 *Send USDC*\n\nWallet address: "+format.Code(addr)+"\n\nPlease enter the amount in USDC:", cancelMarkup())
}

func (t *turn) submitSendAmount() error {
	kind := t.sess.Flow.Kind
	d, _, err := t.parseAmount(t.ev.Text, false, msgInvalidAmount, cancelMarkup())
	if err != nil {
		return err
	}
	if err := t.save(func(s *state.Session) {
		if s.Flow.Kind == kind && s.Flow.Send != nil {
			s.Flow.Send.Amount = d.String()
			s.Flow.Send.Step = state.SendConfirm
		}
	}); err != nil {
		return err
	}

	f := t.sess.Flow.Send
	if f == nil {
		return t.send(msgStaleAction, menuButtonMarkup())
	}
	title, to, tag := "📤 *Confirm Send*", f.Address, callbacks.SendOK
	if kind == state.KindSendEmail {
		title, to, tag = "📤 *Confirm Send via Email*", f.Email, callbacks.EmailOK
	}
	text := title + "\n\n" +
		"To: " + format.Code(to) + "\n" +
		"Amount: *" + humanAmount(d) + " " + t.e.cfg.Currency + "*\n\n" +
		"Press \"Confirm\" to send the funds."
	return t.sendMD(text, kb.InlineButtonsRows(
		[]kb.InlineBtn{kb.Static("✅ Confirm", tag), kb.CancelButton()},
	))
}

func (t *turn) confirmWalletSend() error { return t.confirmSend(state.KindSend) }

func (t *turn) confirmEmailSend() error { return t.confirmSend(state.KindSendEmail) }

func (t *turn) confirmSend(kind state.FlowKind) error {
	f := t.sess.Flow
	if f.Kind != kind || f.Send == nil || f.Send.Step != state.SendConfirm || f.Send.Amount == "" {
		return t.send(msgStaleAction, menuButtonMarkup())
	}
	d, err := decimal.NewFromString(f.Send.Amount)
	if err != nil {
		return fmt.Errorf("stored send amount: %w", err)
	}
	minor, err := t.e.scale.ToMinor(d)
	if err != nil {
		return err
	}

	if err := t.send("🔄 Sending funds...", nil); err != nil {
		return err
	}
	var (
		tr copperx.Transfer
		to string
	)
	if kind == state.KindSend {
		to = format.ShortAddress(f.Send.Address, 6, 4)
		tr, err = t.e.gw.SendWallet(t.ctx, t.token(), copperx.SendWalletRequest{
			WalletAddress: f.Send.Address,
			Amount:        minor,
			PurposeCode:   t.e.cfg.PurposeCode,
			Currency:      t.e.cfg.Currency,
		})
	} else {
		to = f.Send.Email
		tr, err = t.e.gw.SendEmail(t.ctx, t.token(), copperx.SendEmailRequest{
			Email:       f.Send.Email,
			Amount:      minor,
			PurposeCode: t.e.cfg.PurposeCode,
			Currency:    t.e.cfg.Currency,
		})
	}
	if err != nil {
		return err
	}
	if err := t.clearFlow(); err != nil {
		return err
	}
	text := "✅ *Funds Sent!*\n\n" +
		"To: " + format.Code(to) + "\n" +
		"Amount: *" + humanAmount(d) + " " + t.e.cfg.Currency + "*\n" +
		"Transaction ID: " + format.Code(tr.ID) + "\n" +
		"Status: " + format.MD(nonEmpty(tr.Status, "pending"))
	return t.sendMD(text, afterTransferMarkup())
}

func (t *turn) startSendEmail() error {
	list, err := t.e.gw.Payees(t.ctx, t.token())
	if err != nil {
		return err
	}
	if len(list.Data) == 0 {
		if err := t.clearFlow(); err != nil {
			return err
		}
		return t.sendMD("📭 *No Payees Found*\n\n"+
			"You need to add a payee before sending USDC via email. Use /addpayee to add one now.",
			kb.InlineButtonsRows(
				[]kb.InlineBtn{kb.Static("➕ Add Payee", callbacks.PayeeAdd)},
				[]kb.InlineBtn{menuButton()},
			))
	}
	refs := payeeRefs(list.Data)
	if err := t.setFlow(state.NewSendEmail(state.SendFlow{Step: state.SendAwaitPayee, Payees: refs})); err != nil {
		return err
	}
	btns := make([]kb.InlineBtn, 0, len(refs))
	for i, p := range refs {
		btn, err := kb.Action(payeeLabel(p), callbacks.EmailTo, fmt.Sprint(i))
		if err != nil {
			return err
		}
		btns = append(btns, btn)
	}
	rows := make([][]kb.InlineBtn, 0, len(btns)+1)
	for _, b := range btns {
		rows = append(rows, []kb.InlineBtn{b})
	}
	rows = append(rows, []kb.InlineBtn{kb.Static("➕ Add New Payee", callbacks.PayeeAdd), kb.CancelButton()})
	return t.sendMD("📧 *Send USDC via Email*\n\nChoose a payee:", kb.InlineButtonsRows(rows...))
}

func (t *turn) pickEmailPayee(a callbacks.Action) error {
	f := t.sess.Flow
	i := a.Int(0)
	if f.Kind != state.KindSendEmail || f.Send == nil || f.Send.Step == state.SendConfirm || i >= len(f.Send.Payees) {
		return t.send(msgStaleAction, menuButtonMarkup())
	}
	email := f.Send.Payees[i].Email
	if err := t.save(func(s *state.Session) {
		if s.Flow.Send != nil {
			s.Flow.Send.Email = email
			s.Flow.Send.Step = state.SendAwaitAmount
		}
	}); err != nil {
		return err
	}
	return t.sendMD("📧 *Send USDC via Email*\n\nEmail: "+format.Code(email)+"\n\nPlease enter the amount in USDC:", cancelMarkup())
}

func (t *turn) startAddPayee() error {
	if err := t.setFlow(state.NewAddPayee(state.PayeeFlow{Step: state.PayeeAwaitEmail})); err != nil {
		return err
	}
	return t.sendMD("➕ *Add Payee*\n\nPlease enter the payee's email address:", cancelMarkup())
}

func (t *turn) submitPayeeEmail() error {
	email := strings.TrimSpace(t.ev.Text)
	if !payeeEmailRe.MatchString(email) {
		return &inputError{prompt: msgInvalidPayee, markup: cancelMarkup()}
	}
	if err := t.save(func(s *state.Session) {
		if s.Flow.Payee != nil {
			s.Flow.Payee.Email = email
			s.Flow.Payee.Step = state.PayeeAwaitNickname
		}
	}); err != nil {
		return err
	}
	return t.sendMD("➕ *Add Payee*\n\nEmail: "+format.Code(email)+"\n\nPlease enter the payee's nickname:", cancelMarkup())
}

func (t *turn) submitPayeeNickname() error {
	nick := strings.TrimSpace(t.ev.Text)
	if nick == "" {
		return &inputError{prompt: msgEmptyNickname, markup: cancelMarkup()}
	}
	f := t.sess.Flow.Payee
	if f == nil || f.Email == "" {
		return t.send(msgStaleAction, menuButtonMarkup())
	}
	if err := t.send("🔄 Adding payee...", nil); err != nil {
		return err
	}
	p, err := t.e.gw.CreatePayee(t.ctx, t.token(), copperx.CreatePayeeRequest{NickName: nick, Email: f.Email})
	if err != nil {
		return err
	}
	if err := t.clearFlow(); err != nil {
		return err
	}
	text := "✅ *Payee Added!*\n\n" +
		"Name: " + format.Code(nonEmpty(p.NickName, nick)) + "\n" +
		"Email: " + format.Code(nonEmpty(p.Email, f.Email)) + "\n" +
		"ID: " + format.Code(p.ID)
	return t.sendMD(text, kb.InlineButtonsRows(
		[]kb.InlineBtn{kb.Static("📧 Send USDC", callbacks.Email), kb.Static("➕ Add Another Payee", callbacks.PayeeAdd)},
		[]kb.InlineBtn{menuButton()},
	))
}

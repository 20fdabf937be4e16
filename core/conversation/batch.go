package conversation

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ritikbhatt20/copperx-telegram-bot/core/copperx"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/logger"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/callbacks"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/format"
	kb "github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/keyboard"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/state"
)

func (t *turn) startBatch() error {
	if err := t.send("🔄 Fetching your payees...", nil); err != nil {
		return err
	}
	list, err := t.e.gw.Payees(t.ctx, t.token())
	if err != nil {
		return err
	}
	var recipients []state.BatchRecipient
	if f := t.sess.Flow; f.Kind == state.KindBatch && f.Batch != nil {
		recipients = f.Batch.Recipients
	}
	if err := t.setFlow(state.NewBatch(state.BatchFlow{
		Step:       state.BatchSelectPayee,
		Recipients: recipients,
		Payees:     payeeRefs(list.Data),
	})); err != nil {
		return err
	}
	return t.showBatch()
}

func (t *turn) batchFlow() *state.BatchFlow {
	if t.sess.Flow.Kind != state.KindBatch {
		return nil
	}
	return t.sess.Flow.Batch
}

func (t *turn) showBatch() error {
	f := t.batchFlow()
	if f == nil {
		return t.send(msgStaleAction, menuButtonMarkup())
	}
	var b strings.Builder
	b.WriteString("📱 *Batch Payment*\n\n")
	if len(f.Recipients) > 0 {
		b.WriteString("Current payees: " + strconv.Itoa(len(f.Recipients)) + "\n")
		for _, r := range f.Recipients {
			b.WriteString("- " + format.MD(r.Email) + ": " + t.e.scale.FormatMinor(r.AmountMinor) + " " + t.e.cfg.Currency + "\n")
		}
		b.WriteString("\n")
	}
	if len(f.Payees) == 0 {
		b.WriteString("📭 *No Payees Found*\n\nYou need to add a payee to proceed. Enter a new payee's email:")
	} else {
		b.WriteString("Choose a payee or enter a new email to add:")
	}

	rows := make([][]kb.InlineBtn, 0, len(f.Payees)+3)
	for i, p := range f.Payees {
		btn, err := kb.Action(payeeLabel(p), callbacks.BatchTo, strconv.Itoa(i))
		if err != nil {
			return err
		}
		rows = append(rows, []kb.InlineBtn{btn})
	}
	rows = append(rows, []kb.InlineBtn{kb.Static("➕ Add New Payee", callbacks.BatchNew)})
	if len(f.Recipients) > 0 {
		rows = append(rows, []kb.InlineBtn{kb.Static("✅ Confirm Batch", callbacks.BatchOK)})
	}
	rows = append(rows, []kb.InlineBtn{kb.CancelButton()})
	return t.sendMD(b.String(), kb.InlineButtonsRows(rows...))
}

func (t *turn) promptBatchEmail() error {
	if t.batchFlow() == nil {
		return t.send(msgStaleAction, menuButtonMarkup())
	}
	if err := t.save(func(s *state.Session) {
		if s.Flow.Batch != nil {
			s.Flow.Batch.Step = state.BatchAwaitEmail
			s.Flow.Batch.CurrentEmail = ""
		}
	}); err != nil {
		return err
	}
	return t.send("📧 Please enter the payee's email address:", cancelMarkup())
}

func (t *turn) pickBatchPayee(a callbacks.Action) error {
	f := t.batchFlow()
	i := a.Int(0)
	if f == nil || i >= len(f.Payees) {
		return t.send(msgStaleAction, menuButtonMarkup())
	}
	return t.setBatchEmail(f.Payees[i].Email)
}

func (t *turn) submitBatchEmail() error {
	email := strings.TrimSpace(t.ev.Text)
	if !payeeEmailRe.MatchString(email) {
		return invalidMD(msgBatchInvalidEmail, cancelMarkup())
	}
	return t.setBatchEmail(email)
}

func (t *turn) setBatchEmail(email string) error {
	if err := t.save(func(s *state.Session) {
		if s.Flow.Batch != nil {
			s.Flow.Batch.CurrentEmail = email
			s.Flow.Batch.Step = state.BatchAwaitAmount
		}
	}); err != nil {
		return err
	}
	return t.send("📧 Email set: "+email+"\n\nPlease enter the amount in USDC (e.g., 1 for 1 USDC):", cancelMarkup())
}

func (t *turn) submitBatchAmount() error {
	f := t.batchFlow()
	if f == nil || f.CurrentEmail == "" {
		return t.send(msgStaleAction, menuButtonMarkup())
	}
	d, minor, err := t.parseAmount(t.ev.Text, true, msgBatchInvalidAmount, cancelMarkup())
	if err != nil {
		return err
	}
	email := f.CurrentEmail
	if err := t.save(func(s *state.Session) {
		if s.Flow.Batch != nil {
			s.Flow.Batch.Recipients = append(s.Flow.Batch.Recipients, state.BatchRecipient{Email: email, AmountMinor: minor})
			s.Flow.Batch.CurrentEmail = ""
			s.Flow.Batch.Step = state.BatchSelectPayee
		}
	}); err != nil {
		return err
	}
	if err := t.send("💰 Amount set: "+humanAmount(d)+" "+t.e.cfg.Currency+" for "+email, nil); err != nil {
		return err
	}
	return t.showBatch()
}

// confirmBatch submits every accumulated recipient in one request and ends the flow.
func (t *turn) confirmBatch() error {
	f := t.batchFlow()
	if f == nil {
		return t.send(msgStaleAction, menuButtonMarkup())
	}
	if len(f.Recipients) == 0 {
		return t.sendMD("⚠️ *No Payees Added*\n\nNo payees have been added. Use /sendbatch to start again.",
			kb.InlineButtonsRows(
				[]kb.InlineBtn{kb.Static("📱 Start Batch", callbacks.Batch)},
				[]kb.InlineBtn{menuButton()},
			))
	}

	items := make([]copperx.BatchItem, 0, len(f.Recipients))
	for i, r := range f.Recipients {
		items = append(items, copperx.BatchItem{
			RequestID: fmt.Sprintf("batch-payment-%d-%s", i+1, t.e.newRequestID()),
			Request: copperx.SendEmailRequest{
				Email:       r.Email,
				Amount:      r.AmountMinor,
				PurposeCode: t.e.cfg.PurposeCode,
				Currency:    t.e.cfg.Currency,
			},
		})
	}
	if err := t.send("🔄 Sending batch payment...", nil); err != nil {
		return err
	}
	res, err := t.e.gw.SendBatch(t.ctx, t.token(), items)
	if err != nil {
		return err
	}
	if err := t.clearFlow(); err != nil {
		return err
	}
	logger.Info(t.ctx, logger.CompFlow, "batch.submitted",
		slog.Int("items", len(items)), slog.Int("responses", len(res.Responses)))

	var b strings.Builder
	b.WriteString("📱 *Batch Payment Initiated*\n\n")
	for _, r := range res.Responses {
		amount := r.Request.Amount
		status := "unknown"
		txID := ""
		if r.Response != nil {
			status = nonEmpty(r.Response.Status, status)
			txID = r.Response.ID
			if r.Response.Amount != "" {
				amount = r.Response.Amount
			}
		} else if r.Error != nil {
			status = nonEmpty(r.Error.Error, nonEmpty(r.Error.Message.String(), status))
		}
		b.WriteString("📧 " + format.MD(r.Request.Email) + ":\n")
		b.WriteString("  - Amount: " + t.e.scale.FormatMinor(amount) + " " + t.e.cfg.Currency + "\n")
		b.WriteString("  - Status: " + format.MD(status) + "\n")
		if txID != "" {
			b.WriteString("  - Transaction ID: " + format.Code(txID) + "\n")
		}
		b.WriteString("\n")
	}
	return t.sendMD(strings.TrimRight(b.String(), "\n"), kb.InlineButtonsRows(
		[]kb.InlineBtn{historyButton("📜 View History")},
		[]kb.InlineBtn{kb.Static("📱 Send Another Batch", callbacks.Batch)},
		[]kb.InlineBtn{menuButton()},
	))
}

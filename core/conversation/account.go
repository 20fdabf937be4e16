package conversation

import (
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ritikbhatt20/copperx-telegram-bot/core/copperx"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/logger"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/callbacks"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/format"
	kb "github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/keyboard"
)

const pointsTweet = "I've earned %s Copperx Mint points! 💎 Join me on @CopperxHQ and start earning too."

func (t *turn) networkName(id string) string {
	if name, ok := t.e.cfg.Networks[id]; ok {
		return name
	}
	if id == "" {
		return "Unknown"
	}
	return id
}

func statusEmoji(status string) string {
	switch strings.ToLower(status) {
	case "active", "approved", "verified", "success", "completed":
		return "🟢"
	case "pending", "processing", "initiated":
		return "🟡"
	}
	return "🔴"
}

func (t *turn) showProfile() error {
	p, err := t.e.gw.Profile(t.ctx, t.token())
	if err != nil {
		return err
	}
	name := format.FullName(p.FirstName, p.LastName)
	if name == "" {
		name = "Not set"
	}
	status := p.Status
	if status == "" {
		status = "unknown"
	}
	text := "👤 *Your Profile*\n\n" +
		"Name: " + format.MD(name) + "\n" +
		"Email: " + format.Code(p.Email) + "\n" +
		"Status: " + statusEmoji(status) + " " + format.MD(status) + "\n" +
		"Account ID: " + format.Code(p.ID)
	return t.sendMD(text, kb.InlineButtonsRows(
		[]kb.InlineBtn{kb.Static("📋 KYC Status", callbacks.KYC), kb.Static("🎒 Wallets", callbacks.Wallets)},
		[]kb.InlineBtn{menuButton()},
	))
}

func (t *turn) showKYC() error {
	list, err := t.e.gw.KYCs(t.ctx, t.token())
	if err != nil {
		return err
	}
	if list.Count == 0 || len(list.Data) == 0 {
		text := "📋 *KYC Verification Status*\n\n" +
			"Status: 🟡 PENDING\n\n" +
			"You haven't completed KYC verification yet. Complete it on the Copperx platform to unlock transfers and withdrawals."
		return t.sendMD(text, kb.InlineButtonsRows(
			[]kb.InlineBtn{kb.Link("🔒 Complete KYC", t.e.cfg.KYCURL)},
			[]kb.InlineBtn{menuButton()},
		))
	}
	latest := list.Data[0]
	status := strings.ToUpper(latest.Status)
	text := "📋 *KYC Verification Status*\n\n" +
		"Status: " + statusEmoji(latest.Status) + " " + format.MD(status) + "\n" +
		"Type: " + format.MD(nonEmpty(latest.Type, "individual"))
	if when := displayDate(latest.CreatedAt); when != "" {
		text += "\nSubmitted: " + when
	}
	rows := [][]kb.InlineBtn{{menuButton()}}
	if !strings.EqualFold(latest.Status, "approved") {
		link := nonEmpty(latest.KYCURL, t.e.cfg.KYCURL)
		rows = append([][]kb.InlineBtn{{kb.Link("🔒 Complete KYC", link)}}, rows...)
	}
	return t.sendMD(text, kb.InlineButtonsRows(rows...))
}

func (t *turn) showWallets() error {
	wallets, err := t.e.gw.Wallets(t.ctx, t.token())
	if err != nil {
		return err
	}
	if len(wallets) == 0 {
		return t.send("⚠️ No wallets found. Contact support to set up your account.", menuButtonMarkup())
	}
	var b strings.Builder
	b.WriteString("💳 *Your Wallets*\n\n")
	for _, w := range wallets {
		b.WriteString("*" + format.MD(t.networkName(w.Network)) + "*")
		if w.IsDefault {
			b.WriteString(" (Default)")
		}
		b.WriteString("\nAddress: " + format.Code(w.WalletAddress) + "\n\n")
	}
	return t.sendMD(strings.TrimRight(b.String(), "\n"), kb.InlineButtonsRows(
		[]kb.InlineBtn{kb.Static("💰 Balance", callbacks.Balance), kb.Static("⚙️ Set Default Wallet", callbacks.Default)},
		[]kb.InlineBtn{menuButton()},
	))
}

func (t *turn) showBalances() error {
	groups, err := t.e.gw.Balances(t.ctx, t.token())
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		return t.send("⚠️ No wallets found. Contact support to set up your account.", menuButtonMarkup())
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].IsDefault && !groups[j].IsDefault })

	var b strings.Builder
	b.WriteString("💰 *Your Balances*\n\n")
	for _, g := range groups {
		b.WriteString("*" + format.MD(t.networkName(g.Network)) + "*")
		if g.IsDefault {
			b.WriteString(" (Default)")
		}
		b.WriteString("\n")
		if len(g.Balances) == 0 {
			b.WriteString("• *" + t.e.cfg.Currency + "*: 0.00\n")
		}
		for _, tb := range g.Balances {
			b.WriteString("• *" + format.MD(nonEmpty(tb.Symbol, t.e.cfg.Currency)) + "*: " + copperx.FormatHuman(tb.Balance) + "\n")
		}
		b.WriteString("\n")
	}
	return t.sendMD(strings.TrimRight(b.String(), "\n"), kb.InlineButtonsRows(
		[]kb.InlineBtn{kb.Static("📥 Deposit", callbacks.Deposit), kb.Static("📤 Send Money", callbacks.SendMenu)},
		[]kb.InlineBtn{menuButton()},
	))
}

func (t *turn) showDeposit() error {
	wallets, err := t.e.gw.Wallets(t.ctx, t.token())
	if err != nil {
		return err
	}
	if len(wallets) == 0 {
		return t.send("⚠️ No wallets found. Contact support to set up your account.", menuButtonMarkup())
	}
	btns := make([]kb.InlineBtn, 0, len(wallets)+1)
	for _, w := range wallets {
		label := t.networkName(w.Network)
		if w.IsDefault {
			label += " (Default)"
		}
		btn, err := kb.Action(label, callbacks.DepositNet, w.Network)
		if err != nil {
			logger.Warn(t.ctx, logger.CompFlow, "deposit.network_skipped",
				slog.String("network", logger.SanitizeLimit(w.Network, 32)), slog.String("err", err.Error()))
			continue
		}
		btns = append(btns, btn)
	}
	btns = append(btns, menuButton())
	return t.sendMD("📥 *Deposit USDC*\n\nChoose the network you want to deposit on:", kb.InlineButtons(btns))
}

func (t *turn) showDepositAddress(a callbacks.Action) error {
	network := a.Arg(0)
	wallets, err := t.e.gw.Wallets(t.ctx, t.token())
	if err != nil {
		return err
	}
	for _, w := range wallets {
		if w.Network != network {
			continue
		}
		name := t.networkName(network)
		text := "📥 *Deposit USDC on " + format.MD(name) + "*\n\n" +
			"Send USDC to this address:\n" + format.Code(w.WalletAddress) + "\n\n" +
			"⚠️ Only send USDC on the " + format.MD(name) + " network. Funds sent on another network may be lost.\n\n" +
			"You'll get a notification here once the deposit arrives."
		return t.sendMD(text, kb.InlineButtonsRows(
			[]kb.InlineBtn{kb.Static("💰 Balance", callbacks.Balance)},
			[]kb.InlineBtn{menuButton()},
		))
	}
	return t.send(msgStaleAction, menuButtonMarkup())
}

func (t *turn) showDefaultPicker() error {
	wallets, err := t.e.gw.Wallets(t.ctx, t.token())
	if err != nil {
		return err
	}
	if len(wallets) == 0 {
		return t.send("⚠️ No wallets found. Contact support to set up your account.", menuButtonMarkup())
	}
	btns := make([]kb.InlineBtn, 0, len(wallets)+1)
	for _, w := range wallets {
		label := t.networkName(w.Network)
		if w.IsDefault {
			label += " ✅"
		}
		btn, err := kb.Action(label, callbacks.DefaultSet, w.ID)
		if err != nil {
			logger.Warn(t.ctx, logger.CompFlow, "default.wallet_skipped", slog.String("err", err.Error()))
			continue
		}
		btns = append(btns, btn)
	}
	btns = append(btns, menuButton())
	return t.sendMD("⚙️ *Set Default Wallet*\n\nChoose the wallet to use by default:", kb.InlineButtons(btns))
}

func (t *turn) setDefaultWallet(a callbacks.Action) error {
	w, err := t.e.gw.SetDefaultWallet(t.ctx, t.token(), a.Arg(0))
	if err != nil {
		return err
	}
	text := "✅ *Default Wallet Updated!*\n\n" +
		"Network: " + format.MD(t.networkName(w.Network)) + "\n" +
		"Address: " + format.Code(w.WalletAddress)
	return t.sendMD(text, kb.InlineButtonsRows(
		[]kb.InlineBtn{kb.Static("🎒 Wallets", callbacks.Wallets)},
		[]kb.InlineBtn{menuButton()},
	))
}

func (t *turn) showHistoryFirst() error {
	return t.showHistory(1)
}

func (t *turn) showHistoryPage(a callbacks.Action) error {
	page := a.Int(0)
	if page < 1 {
		page = 1
	}
	return t.showHistory(page)
}

func transferEmoji(tr copperx.Transfer) string {
	switch strings.ToLower(tr.Type) {
	case "deposit":
		return "📥"
	case "withdraw", "off_ramp":
		return "🏦"
	case "send":
		return "📤"
	}
	return "💸"
}

func (t *turn) showHistory(page int) error {
	list, err := t.e.gw.History(t.ctx, t.token(), page, t.e.cfg.HistoryLimit)
	if err != nil {
		return err
	}
	if len(list.Data) == 0 {
		return t.send("✨ No transactions found. Start by sending or receiving USDC.", menuButtonMarkup())
	}
	var b strings.Builder
	b.WriteString("📜 *Recent Transactions*\n\n")
	for _, tr := range list.Data {
		b.WriteString(transferEmoji(tr) + " *" + format.MD(strings.ToUpper(nonEmpty(tr.Type, "transfer"))) + "*")
		b.WriteString(" " + statusEmoji(tr.Status) + " " + format.MD(tr.Status) + "\n")
		b.WriteString("Amount: " + t.e.scale.FormatMinor(tr.Amount) + " " + format.MD(strings.ToUpper(nonEmpty(tr.Currency, t.e.cfg.Currency))) + "\n")
		if to := transferTarget(tr.DestinationAccount); to != "" {
			b.WriteString("To: " + format.Code(to) + "\n")
		}
		if when := displayDate(tr.CreatedAt); when != "" {
			b.WriteString("Date: " + when + "\n")
		}
		b.WriteString("\n")
	}

	var nav []kb.InlineBtn
	if page > 1 {
		if btn, err := kb.Action("⬅️ Previous", callbacks.History, strconv.Itoa(page-1)); err == nil {
			nav = append(nav, btn)
		}
	}
	if list.HasMore {
		if btn, err := kb.Action("Next ➡️", callbacks.History, strconv.Itoa(page+1)); err == nil {
			nav = append(nav, btn)
		}
	}
	return t.sendMD(strings.TrimRight(b.String(), "\n"), kb.InlineButtonsRows(nav, []kb.InlineBtn{menuButton()}))
}

func transferTarget(acc copperx.TransferAccount) string {
	switch {
	case acc.PayeeEmail != "":
		return acc.PayeeEmail
	case acc.WalletAddress != "":
		return format.ShortAddress(acc.WalletAddress, 6, 4)
	case acc.BankName != "":
		return acc.BankName
	}
	return ""
}

func (t *turn) showPoints() error {
	email := t.sess.Email
	if email == "" {
		return t.send("⚠️ Email not found in session. Please log in again.", loginMarkup())
	}
	pts, err := t.e.gw.Points(t.ctx, t.token(), email)
	if err != nil {
		return err
	}
	total := nonEmpty(pts.Total.String(), "0")
	tweet := "https://twitter.com/intent/tweet?text=" + url.QueryEscape(fmt.Sprintf(pointsTweet, total))
	text := "💎 *Your Copperx Mint Points*\n\n" +
		"Total points: *" + format.MD(total) + "*\n\n" +
		"Keep using Copperx to earn more points!"
	return t.sendMD(text, kb.InlineButtonsRows(
		[]kb.InlineBtn{kb.Link("📢 Share on X", tweet)},
		[]kb.InlineBtn{menuButton()},
	))
}

func displayDate(ts string) string {
	if ts == "" {
		return ""
	}
	when, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return format.MD(ts)
	}
	return when.UTC().Format("January 02, 2006 at 03:04 PM")
}

func nonEmpty(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

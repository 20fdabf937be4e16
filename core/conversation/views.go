package conversation

import (
	tele "gopkg.in/telebot.v4"

	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/callbacks"
	kb "github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/keyboard"
)

const (
	msgFallback      = "I'm not sure what you're trying to do. Use /help to see available commands."
	msgUnknownAction = "Unknown action. Use /help for commands."
	msgLoginRequired = "⚠️ You need to be logged in to use this command.\n\nPress the button below to log in:"

	msgSessionExpired   = "⚠️ Session expired. Please log in again."
	msgRateLimited      = "⏳ Too many requests. Please wait a moment and try again."
	msgRateLimitedAfter = "⏳ Too many requests. Please wait %d seconds and try again."

	msgWelcomeGuest = "🚀 Welcome to CopperX Bot!\n\n" +
		"⚠️ You need to be logged in first to use this bot.\n\n" +
		"Press the button below to log in:"
	msgWelcomeUser = "🚀 Welcome to CopperX Bot!\n\n" +
		"I'm here to help you manage your CopperX account. Choose an option below:"

	msgAskEmail      = "📧 Please enter your email address to receive a one-time password (OTP):"
	msgInvalidEmail  = "⚠️ That doesn't look like a valid email address. Please try again:"
	msgInvalidOTP    = "⚠️ Please enter a valid 6-digit OTP code:"
	msgAlreadyInside = "You're already logged in! Use /profile to view your account or /logout to sign out."
	msgRetryLogin    = "Would you like to try again?"
	msgLoginCanceled = "Login cancelled."

	msgNotLoggedIn = "You're not currently logged in. Use /login to sign in to your account."
	msgLoggedOut   = "👋 You've been successfully logged out of your Copperx account."

	msgCancelled = "Action cancelled."

	msgInvalidAddress = "❌ Invalid wallet address. Please enter a valid Ethereum address (e.g., 0x...)."
	msgInvalidAmount  = "❌ Invalid amount. Please enter a positive number (e.g., 5)."
	msgTooPrecise     = "❌ Too many decimal places. Please enter at most %d decimals."
	msgInvalidPayee   = "❌ Invalid email address. Please enter a valid email (e.g., user@example.com)."
	msgEmptyNickname  = "❌ Please enter a nickname for this payee:"

	msgStaleAction = "⚠️ This action is no longer active. Use /help to start again."
	msgStaleQuote  = "⚠️ This withdrawal is no longer active. Use /withdraw to start again."

	msgBatchInvalidEmail  = "⚠️ *Invalid Email*\n\nPlease enter a valid email address (e.g., user@example.com). Try again:"
	msgBatchInvalidAmount = "⚠️ *Invalid Amount*\n\nPlease enter a positive number (e.g., 1). Try again:"

	supportURLDefault = "https://t.me/copperxcommunity/2183"
)

func loginMarkup() *tele.ReplyMarkup {
	return kb.InlineButtonsRows([]kb.InlineBtn{kb.Static("🔑 Log In", callbacks.Login)})
}

func menuButton() kb.InlineBtn {
	return kb.Static("<< Back to Menu", callbacks.Menu)
}

func menuButtonMarkup() *tele.ReplyMarkup {
	return kb.InlineButtonsRows([]kb.InlineBtn{menuButton()})
}

func mainMenuMarkup() *tele.ReplyMarkup {
	return kb.InlineButtonsRows(
		[]kb.InlineBtn{kb.Static("👤 Profile", callbacks.Profile), kb.Static("📋 KYC Status", callbacks.KYC)},
		[]kb.InlineBtn{kb.Static("🎒 Wallets", callbacks.Wallets), kb.Static("💰 Balance", callbacks.Balance)},
		[]kb.InlineBtn{kb.Static("📤 Send Money", callbacks.SendMenu), kb.Static("📥 Deposit", callbacks.Deposit)},
		[]kb.InlineBtn{kb.Static("⚙️ Set Default Wallet", callbacks.Default), kb.Static("➕ Add Payee", callbacks.PayeeAdd)},
		[]kb.InlineBtn{kb.Static("📱 Batch Payment", callbacks.Batch), historyButton("📜 Transactions")},
		[]kb.InlineBtn{kb.Static("💎 View Points", callbacks.Points), kb.Static("🔒 Logout", callbacks.Logout)},
	)
}

func helpMarkup(loggedIn bool) *tele.ReplyMarkup {
	if !loggedIn {
		return loginMarkup()
	}
	return kb.InlineButtonsRows(
		[]kb.InlineBtn{kb.Static("👤 Profile", callbacks.Profile), kb.Static("💵 Balance", callbacks.Balance)},
		[]kb.InlineBtn{kb.Static("📥 Deposit", callbacks.Deposit), kb.Static("💸 Send Money", callbacks.SendMenu)},
		[]kb.InlineBtn{kb.Static("📤 Batch Send", callbacks.Batch), kb.Static("🏦 Withdraw to Bank", callbacks.Withdraw)},
		[]kb.InlineBtn{kb.Static("➕ Add Payee", callbacks.PayeeAdd), historyButton("📜 History")},
		[]kb.InlineBtn{kb.Static("💎 View Points", callbacks.Points)},
	)
}

func historyButton(label string) kb.InlineBtn {
	btn, _ := kb.Action(label, callbacks.History, "1")
	return btn
}

func afterTransferMarkup() *tele.ReplyMarkup {
	return kb.InlineButtons([]kb.InlineBtn{
		kb.Static("💵 Check Balance", callbacks.Balance),
		historyButton("📜 History"),
		menuButton(),
	})
}

func cancelMarkup() *tele.ReplyMarkup {
	return kb.SingleCancelMarkup()
}

func helpText(loggedIn bool, supportURL string) string {
	account := "🔑 Log in below"
	if loggedIn {
		account = "📤 /logout - Log out"
	}
	if supportURL == "" {
		supportURL = supportURLDefault
	}
	return "*Copperx Payout Bot Commands* 📋\n\n" +
		"*Basic Commands:*\n" +
		"• /start - Start or restart the bot\n" +
		"• /help - Show this help message\n" +
		"• /cancel - Cancel the current action\n\n" +
		"*Account:*\n" +
		"• " + account + "\n" +
		"• 👤 /profile - View your profile\n" +
		"• 🔒 /kyc - Check KYC status\n" +
		"• 🎒 /wallets - List your wallets\n" +
		"• 🏦 /setdefault - Set your default wallet\n\n" +
		"*Transactions:*\n" +
		"• 💰 /deposit - Deposit USDC to your account\n" +
		"• 💵 /balance - Check wallet balances\n" +
		"• 📤 /send - Send USDC to a wallet\n" +
		"• 📧 /sendemail - Send USDC via email\n" +
		"• 📤 /sendbatch - Send USDC to multiple payees\n" +
		"• 🏦 /withdraw - Withdraw USDC to your bank account\n" +
		"• 📜 /history - View recent transactions\n" +
		"• ➕ /addpayee - Add a new payee\n\n" +
		"*Rewards:*\n" +
		"• 💎 /points - View your Copperx Mint points\n\n" +
		"*Support:* " + supportURL
}

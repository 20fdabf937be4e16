package conversation

import (
	"log/slog"
	"regexp"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/ritikbhatt20/copperx-telegram-bot/core/copperx"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/logger"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/callbacks"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/format"
	kb "github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/keyboard"
	"github.com/ritikbhatt20/copperx-telegram-bot/core/telegram/state"
)

// fallbackTokenTTL applies when the gateway returns an unparsable expireAt.
const fallbackTokenTTL = time.Hour

var otpRe = regexp.MustCompile(`^[0-9]{6}$`)

// validLoginEmail is the loose check used at login: an '@' followed later by a '.'.
func validLoginEmail(s string) bool {
	at := strings.IndexByte(s, '@')
	return at >= 0 && strings.Contains(s[at+1:], ".")
}

func retryLoginMarkup() *tele.ReplyMarkup {
	return kb.InlineButtons([]kb.InlineBtn{
		kb.Static("🔄 Try Again", callbacks.Login),
		kb.Static("❌ Cancel", callbacks.LoginCancel),
	})
}

func retryOTPMarkup() *tele.ReplyMarkup {
	return kb.InlineButtons([]kb.InlineBtn{
		kb.Static("🔄 Try New OTP", callbacks.OTPNew),
		kb.Static("📧 Change Email", callbacks.Login),
		kb.Static("❌ Cancel", callbacks.LoginCancel),
	})
}

func (t *turn) showStart() error {
	if t.authenticated() {
		return t.send(msgWelcomeUser, mainMenuMarkup())
	}
	return t.send(msgWelcomeGuest, loginMarkup())
}

func (t *turn) showHelp() error {
	loggedIn := t.authenticated()
	return t.sendMD(helpText(loggedIn, t.e.cfg.SupportURL), helpMarkup(loggedIn))
}

func (t *turn) startLogin() error {
	if t.authenticated() {
		return t.send(msgAlreadyInside, nil)
	}
	if err := t.save(func(s *state.Session) {
		s.ClearCredentials()
		s.LoginState = state.LoginAwaitingEmail
		s.Flow = state.NoFlow()
	}); err != nil {
		return err
	}
	return t.send(msgAskEmail, kb.ForceReply())
}

// loginFailure answers gateway errors during login without leaving the login state.
// These calls carry no credential, so a 401 is a rejected code rather than an
// expired session. Rate-limit failures keep their usual handling.
func (t *turn) loginFailure(err error, markup *tele.ReplyMarkup) error {
	if copperx.Classify(err) == copperx.ClassRateLimited {
		return err
	}
	logger.Warn(t.ctx, logger.CompFlow, "login.failed",
		slog.String("login_state", string(t.sess.LoginState)),
		slog.String("err_code", copperx.ErrorCode(err)),
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
	)
	if serr := t.send("❌ Error: "+copperx.UserMessage(err), nil); serr != nil {
		return serr
	}
	return t.send(msgRetryLogin, markup)
}

func (t *turn) submitEmail() error {
	email := strings.TrimSpace(t.ev.Text)
	if !validLoginEmail(email) {
		return invalid(msgInvalidEmail)
	}
	if err := t.send("🔄 Requesting OTP for "+email+"...", nil); err != nil {
		return err
	}
	res, err := t.e.gw.RequestOTP(t.ctx, email)
	if err != nil {
		return t.loginFailure(err, retryLoginMarkup())
	}
	if err := t.save(func(s *state.Session) {
		s.Email = email
		s.OTPSessionID = res.SID
		s.LoginState = state.LoginAwaitingOTP
	}); err != nil {
		return err
	}
	return t.send("✅ OTP sent to "+email+"!\n\n📱 Please enter the 6-digit code you received:", kb.ForceReply())
}

func (t *turn) requestNewOTP() error {
	email := t.sess.Email
	if email == "" || t.authenticated() {
		return t.startLogin()
	}
	if err := t.send("🔄 Requesting a new OTP for "+email+"...", nil); err != nil {
		return err
	}
	res, err := t.e.gw.RequestOTP(t.ctx, email)
	if err != nil {
		return t.loginFailure(err, retryLoginMarkup())
	}
	if err := t.save(func(s *state.Session) {
		s.OTPSessionID = res.SID
		s.LoginState = state.LoginAwaitingOTP
	}); err != nil {
		return err
	}
	return t.send("✅ New OTP sent to "+email+"!\n\n📱 Please enter the 6-digit code you received:", kb.ForceReply())
}

func (t *turn) submitOTP() error {
	code := strings.TrimSpace(t.ev.Text)
	if !otpRe.MatchString(code) {
		return invalid(msgInvalidOTP)
	}
	email, sid := t.sess.Email, t.sess.OTPSessionID
	if email == "" || sid == "" {
		if err := t.save(func(s *state.Session) {
			s.ClearCredentials()
			s.LoginState = state.LoginAwaitingEmail
		}); err != nil {
			return err
		}
		return t.send(msgAskEmail, kb.ForceReply())
	}

	if err := t.send("🔄 Verifying your OTP...", nil); err != nil {
		return err
	}
	auth, err := t.e.gw.Authenticate(t.ctx, email, code, sid)
	if err != nil {
		return t.loginFailure(err, retryOTPMarkup())
	}

	expiry, perr := time.Parse(time.RFC3339Nano, auth.ExpireAt)
	if perr != nil {
		logger.Warn(t.ctx, logger.CompFlow, "login.expiry_unparsable",
			slog.String("expire_at", logger.SanitizeLimit(auth.ExpireAt, 64)))
		expiry = t.e.now().Add(fallbackTokenTTL)
	}

	var orgID string
	if profile, err := t.e.gw.Profile(t.ctx, auth.AccessToken); err != nil {
		logger.Warn(t.ctx, logger.CompFlow, "login.profile_failed",
			slog.String("err_code", copperx.ErrorCode(err)))
	} else {
		orgID = profile.OrganizationID
	}

	if auth.User.Email != "" {
		email = auth.User.Email
	}
	if err := t.save(func(s *state.Session) {
		s.Email = email
		s.OTPSessionID = ""
		s.AccessToken = auth.AccessToken
		s.TokenExpiry = expiry
		s.OrganizationID = orgID
		s.LoginState = state.LoginAuthenticated
	}); err != nil {
		return err
	}
	logger.Info(t.ctx, logger.CompFlow, "login.succeeded", slog.Bool("has_org", orgID != ""))

	if orgID != "" {
		sub := Subscription{UserID: t.ev.UserID, ChatID: t.ev.ChatID, Token: auth.AccessToken, OrganizationID: orgID}
		if err := t.e.notify.Subscribe(t.ctx, sub); err != nil {
			logger.Warn(t.ctx, logger.CompNotify, "notify.subscribe_failed", slog.String("err", err.Error()))
		}
	}

	return t.sendMD("🎉 *Login successful!*\n\n"+
		"🚀 Welcome to CopperX Bot, "+format.MD(email)+"!\n\n"+
		"I'm here to help you manage your CopperX account. Choose an option below:", mainMenuMarkup())
}

func (t *turn) cancelLogin() error {
	if !t.authenticated() {
		if err := t.save(func(s *state.Session) {
			s.ClearCredentials()
			s.Flow = state.NoFlow()
		}); err != nil {
			return err
		}
	}
	if err := t.send(msgLoginCanceled, nil); err != nil {
		return err
	}
	return t.showStart()
}

// logout tears down the subscription and the session even when the token
// has already lapsed; only the reply depends on the login state.
func (t *turn) logout() error {
	wasIn := t.authenticated()
	t.e.notify.Unsubscribe(t.ev.UserID)
	if _, err := t.e.store.Delete(t.ctx, t.id); err != nil {
		return err
	}
	t.sess = state.New(t.id)
	logger.Info(t.ctx, logger.CompFlow, "logout.done", slog.Bool("was_authenticated", wasIn))
	if !wasIn {
		return t.send(msgNotLoggedIn, nil)
	}
	return t.send(msgLoggedOut, kb.InlineButtonsRows([]kb.InlineBtn{kb.Static("🔑 Log In Again", callbacks.Login)}))
}

// cancel abandons any flow and pending login step. Repeating it is harmless.
func (t *turn) cancel() error {
	if err := t.save(func(s *state.Session) {
		s.Flow = state.NoFlow()
		if s.LoginState == state.LoginAwaitingEmail || s.LoginState == state.LoginAwaitingOTP {
			s.ClearCredentials()
		}
	}); err != nil {
		return err
	}
	if err := t.send(msgCancelled, nil); err != nil {
		return err
	}
	return t.showStart()
}

package state

import "time"

// LoginState tracks progress through the email/OTP login.
type LoginState string

const (
	LoginNone          LoginState = "NONE"
	LoginAwaitingEmail LoginState = "AWAITING_EMAIL"
	LoginAwaitingOTP   LoginState = "AWAITING_OTP"
	LoginAuthenticated LoginState = "AUTHENTICATED"
)

// Session is the durable per-user record of authentication and in-progress flow state.
type Session struct {
	ID             string     `json:"id"`
	Email          string     `json:"email,omitempty"`
	OTPSessionID   string     `json:"otp_session_id,omitempty"`
	AccessToken    string     `json:"access_token,omitempty"`
	TokenExpiry    time.Time  `json:"token_expiry"`
	OrganizationID string     `json:"organization_id,omitempty"`
	LoginState     LoginState `json:"login_state"`
	Flow           Flow       `json:"flow"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// New returns an empty unauthenticated session.
func New(id string) *Session {
	return &Session{ID: id, LoginState: LoginNone}
}

// IsAuthenticatedAt reports whether the credential is usable at now.
// An expiry equal to now counts as expired.
func (s *Session) IsAuthenticatedAt(now time.Time) bool {
	if s == nil {
		return false
	}
	return s.AccessToken != "" &&
		s.LoginState == LoginAuthenticated &&
		s.TokenExpiry.After(now)
}

// PendingWithdrawal returns the stored quote awaiting confirmation, if any.
func (s *Session) PendingWithdrawal() *PendingWithdrawal {
	if s == nil || s.Flow.Kind != KindWithdraw || s.Flow.Withdraw == nil {
		return nil
	}
	if s.Flow.Withdraw.Step != WithdrawConfirm {
		return nil
	}
	return s.Flow.Withdraw.Pending
}

// ClearCredentials drops everything obtained during login.
func (s *Session) ClearCredentials() {
	s.Email = ""
	s.OTPSessionID = ""
	s.AccessToken = ""
	s.TokenExpiry = time.Time{}
	s.OrganizationID = ""
	s.LoginState = LoginNone
}

// Clone returns a deep copy so callers never share slices with a store.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Flow = s.Flow.clone()
	return &cp
}

// finalize enforces the structural invariants before a session is persisted.
func (s *Session) finalize(id string, now time.Time) {
	s.ID = id
	if s.LoginState == "" {
		s.LoginState = LoginNone
	}
	s.Flow.normalize()
	s.UpdatedAt = now
}

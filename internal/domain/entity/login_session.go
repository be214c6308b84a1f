package entity

import (
	"time"

	"github.com/google/uuid"
)

// LoginSessionState is the phase of a pending email login.
type LoginSessionState string

const (
	// LoginSessionCreated means the record exists but no code has been handed to the mailer yet.
	LoginSessionCreated LoginSessionState = "created"
	// LoginSessionCodeSent means the current code was dispatched at least once.
	LoginSessionCodeSent LoginSessionState = "code_sent"
	// LoginSessionVerified is terminal: the code was consumed and a credential minted.
	LoginSessionVerified LoginSessionState = "verified"
	// LoginSessionExpired is terminal: the attempt ceiling passed.
	LoginSessionExpired LoginSessionState = "expired"
	// LoginSessionExhausted is terminal: too many wrong codes were submitted.
	LoginSessionExhausted LoginSessionState = "exhausted"
)

// IsPending reports whether the state still accepts a code or a resend.
func (s LoginSessionState) IsPending() bool {
	return s == LoginSessionCreated || s == LoginSessionCodeSent
}

// PendingStates lists the states a conditional store update may start from.
func PendingStates() []LoginSessionState {
	return []LoginSessionState{LoginSessionCreated, LoginSessionCodeSent}
}

// LoginSession is the server-side record of one in-progress email login.
// The ID correlates the browser with the record; it is never a credential.
type LoginSession struct {
	ID             uuid.UUID
	Email          string
	CodeHash       string    // Digest of the current one-time code; rewritten on resend.
	CodeExpiresAt  time.Time // The current code is rejected strictly after this instant.
	ExpiresAt      time.Time // Hard ceiling of the whole attempt; resend never moves it.
	State          LoginSessionState
	FailedAttempts int
	ResendCount    int
	LastSentAt     time.Time // Zero until a dispatch succeeded.
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsExpired reports whether the attempt ceiling has passed at now.
func (s *LoginSession) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// IsCodeExpired reports whether the current code is stale at now.
func (s *LoginSession) IsCodeExpired(now time.Time) bool {
	return now.After(s.CodeExpiresAt)
}

// EffectiveState folds lazy expiry into the stored state.
func (s *LoginSession) EffectiveState(now time.Time) LoginSessionState {
	if s.State.IsPending() && s.IsExpired(now) {
		return LoginSessionExpired
	}

	return s.State
}

// CodeRotation carries the fields a resend is allowed to rewrite.
type CodeRotation struct {
	CodeHash            string
	CodeExpiresAt       time.Time
	ExpectedResendCount int // Compare-and-swap guard against concurrent resends.
	RotatedAt           time.Time
}

// AttemptResult reports the counters after a wrong code was recorded.
type AttemptResult struct {
	FailedAttempts int
	State          LoginSessionState
}

// SessionCredential is the payload carried by the signed browser credential.
type SessionCredential struct {
	UserID   uuid.UUID
	Role     Role
	IssuedAt time.Time
}

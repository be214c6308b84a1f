package service

import (
	"time"

	"otpgate/internal/domain/entity"
)

// CredentialSigner mints and checks the tamper-evident session credential.
type CredentialSigner interface {
	// Sign returns a token for the payload. The same key and payload always yield the same token.
	Sign(credential entity.SessionCredential) (string, error)

	// Verify returns the payload, with IssuedAt at whole-second precision, or an error matching
	// ErrSignatureInvalid or ErrCredentialExpired.
	Verify(token string) (*entity.SessionCredential, error)

	// TTL is how long a freshly signed credential stays valid.
	TTL() time.Duration
}

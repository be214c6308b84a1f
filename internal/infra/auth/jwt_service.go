// Package auth provides concrete implementations for authentication-related domain services.
package auth

import (
	"crypto/sha256"
	"io"
	"time"

	"otpgate/config"
	"otpgate/internal/domain/entity"
	domainerrors "otpgate/internal/domain/errors"
	"otpgate/internal/domain/service"
	"otpgate/internal/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

const (
	signingKeyLength = 32
	signingKeyInfo   = "otpgate/session-credential/v1"
)

// sessionClaims is the JWT body of a session credential.
type sessionClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// jwtSigner implements CredentialSigner with HS256 JWTs.
type jwtSigner struct {
	key    []byte
	issuer string
	ttl    time.Duration
	maxAge time.Duration
	now    func() time.Time
}

// NewJWTSigner is the constructor for the session credential signer.
// The HMAC key is derived once from the configured session secret.
func NewJWTSigner(cfg *config.Config) (service.CredentialSigner, error) {
	signer, err := newJWTSigner(cfg.SecretKey.Session, cfg.Auth.Issuer, cfg.Auth.CredentialTTL, cfg.Auth.MaxCredentialAge, time.Now)
	if err != nil {
		return nil, err
	}

	return signer, nil
}

func newJWTSigner(secret, issuer string, ttl, maxAge time.Duration, now func() time.Time) (*jwtSigner, error) {
	if secret == "" {
		return nil, errors.New("session secret must be provided")
	}
	if ttl <= 0 {
		return nil, errors.New("credential ttl must be positive")
	}
	if maxAge < ttl {
		maxAge = ttl
	}

	key, err := deriveSigningKey(secret)
	if err != nil {
		return nil, err
	}

	return &jwtSigner{
		key:    key,
		issuer: issuer,
		ttl:    ttl,
		maxAge: maxAge,
		now:    now,
	}, nil
}

func deriveSigningKey(secret string) ([]byte, error) {
	reader := hkdf.New(sha256.New, []byte(secret), nil, []byte(signingKeyInfo))
	key := make([]byte, signingKeyLength)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, errors.Wrap(err, "failed to derive signing key")
	}

	return key, nil
}

// Sign creates the credential token. IssuedAt is truncated to whole seconds.
func (s *jwtSigner) Sign(credential entity.SessionCredential) (string, error) {
	if credential.UserID == uuid.Nil {
		return "", domainerrors.ErrInvalidArgument.WrapMessage("credential requires a user id")
	}
	if !credential.Role.IsValid() {
		return "", domainerrors.ErrInvalidArgument.WrapMessage("credential requires a known role")
	}

	issuedAt := credential.IssuedAt.UTC().Truncate(time.Second)
	claims := sessionClaims{
		Role: credential.Role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   credential.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.ttl)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign credential")
	}

	return token, nil
}

// Verify parses and checks a credential token.
func (s *jwtSigner) Verify(tokenString string) (*entity.SessionCredential, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domainerrors.ErrCredentialExpired.WrapMessage(err.Error())
		}

		return nil, domainerrors.ErrSignatureInvalid.WrapMessage(err.Error())
	}

	if claims.IssuedAt == nil {
		return nil, domainerrors.ErrSignatureInvalid.WrapMessage("credential has no issue time")
	}
	issuedAt := claims.IssuedAt.Time
	if s.now().Sub(issuedAt) > s.maxAge {
		return nil, domainerrors.ErrCredentialExpired.WrapMessage("credential older than max age")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, domainerrors.ErrSignatureInvalid.WrapMessage("credential subject is not a user id")
	}

	role := entity.Role(claims.Role)
	if !role.IsValid() {
		return nil, domainerrors.ErrSignatureInvalid.WrapMessage("credential carries an unknown role")
	}

	return &entity.SessionCredential{
		UserID:   userID,
		Role:     role,
		IssuedAt: issuedAt,
	}, nil
}

// TTL returns the configured credential lifetime.
func (s *jwtSigner) TTL() time.Duration {
	return s.ttl
}

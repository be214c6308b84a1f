// Package cookie builds the session cookie that carries the signed credential.
package cookie

import (
	"net/http"
	"time"

	"otpgate/config"
	"otpgate/internal/domain/constants"
)

// Manager issues and clears the session cookie with fixed attributes.
type Manager struct {
	name       string
	domain     string
	secure     bool
	persistent bool
	maxAge     time.Duration
}

// NewManager reads the cookie attributes from configuration. Secure is always set in production.
func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		name:       cfg.Auth.Cookie.Name,
		domain:     cfg.Auth.Cookie.Domain,
		secure:     cfg.Auth.Cookie.Secure || cfg.Env.Env == constants.EnvProduction,
		persistent: cfg.Auth.Cookie.Persistent,
		maxAge:     cfg.Auth.CredentialTTL,
	}
}

// Name returns the cookie name.
func (m *Manager) Name() string {
	return m.name
}

// Issue returns the cookie carrying token. It is a browser-session cookie
// unless persistence is enabled.
func (m *Manager) Issue(token string, expiresAt time.Time) *http.Cookie {
	cookie := m.base()
	cookie.Value = token
	if m.persistent {
		cookie.MaxAge = int(m.maxAge / time.Second)
		cookie.Expires = expiresAt.UTC()
	}

	return cookie
}

// Clear returns a cookie that makes the browser drop the session.
func (m *Manager) Clear() *http.Cookie {
	cookie := m.base()
	cookie.MaxAge = -1
	cookie.Expires = time.Unix(0, 0).UTC()

	return cookie
}

// Token reads the credential from the request, or "".
func (m *Manager) Token(r *http.Request) string {
	cookie, err := r.Cookie(m.name)
	if err != nil {
		return ""
	}

	return cookie.Value
}

func (m *Manager) base() *http.Cookie {
	return &http.Cookie{
		Name:     m.name,
		Domain:   m.domain,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteStrictMode,
	}
}

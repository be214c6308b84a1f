package cookie

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"otpgate/config"
	"otpgate/internal/domain/constants"

	"github.com/stretchr/testify/assert"
)

func newConfig(env string, secure, persistent bool) *config.Config {
	cfg := &config.Config{}
	cfg.Env.Env = env
	cfg.Auth.Cookie.Name = "session"
	cfg.Auth.Cookie.Secure = secure
	cfg.Auth.Cookie.Persistent = persistent
	cfg.Auth.CredentialTTL = 24 * time.Hour

	return cfg
}

func TestIssue(t *testing.T) {
	expiresAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name       string
		cfg        *config.Config
		wantSecure bool
		wantMaxAge int
	}{
		{name: "develop session cookie", cfg: newConfig(constants.EnvDevelop, false, false)},
		{name: "production is secure", cfg: newConfig(constants.EnvProduction, false, false), wantSecure: true},
		{name: "forced secure", cfg: newConfig(constants.EnvDevelop, true, false), wantSecure: true},
		{name: "persistent", cfg: newConfig(constants.EnvDevelop, false, true), wantMaxAge: 86400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cookie := NewManager(tt.cfg).Issue("token-value", expiresAt)

			assert.Equal(t, "session", cookie.Name)
			assert.Equal(t, "token-value", cookie.Value)
			assert.Equal(t, "/", cookie.Path)
			assert.True(t, cookie.HttpOnly)
			assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
			assert.Equal(t, tt.wantSecure, cookie.Secure)
			assert.Equal(t, tt.wantMaxAge, cookie.MaxAge)
			if tt.wantMaxAge > 0 {
				assert.Equal(t, expiresAt, cookie.Expires)
			} else {
				assert.True(t, cookie.Expires.IsZero())
			}
		})
	}
}

func TestClear(t *testing.T) {
	cookie := NewManager(newConfig(constants.EnvProduction, false, true)).Clear()

	assert.Equal(t, "session", cookie.Name)
	assert.Empty(t, cookie.Value)
	assert.Equal(t, -1, cookie.MaxAge)
	assert.Equal(t, time.Unix(0, 0).UTC(), cookie.Expires)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)

	rec := httptest.NewRecorder()
	http.SetCookie(rec, cookie)
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "Max-Age=0")
}

func TestToken(t *testing.T) {
	m := NewManager(newConfig(constants.EnvDevelop, false, false))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, m.Token(req))

	req.AddCookie(&http.Cookie{Name: "session", Value: "abc"})
	assert.Equal(t, "abc", m.Token(req))
}

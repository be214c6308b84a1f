package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"otpgate/config"
	"otpgate/internal/delivery/api/cookie"
	apimiddleware "otpgate/internal/delivery/api/middleware"
	"otpgate/internal/delivery/api/validator"
	"otpgate/internal/domain/entity"
	domainerrors "otpgate/internal/domain/errors"
	"otpgate/internal/usecase"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testSessionID = uuid.MustParse("0b0e6c1e-7f0a-4d59-9f3a-9a3b7b1c0d01")

type mockLoginUsecase struct {
	mock.Mock
}

func (m *mockLoginUsecase) InitiateLogin(ctx context.Context, input usecase.InitiateLoginInput) (*usecase.InitiateLoginOutput, error) {
	args := m.Called(ctx, input)
	out, _ := args.Get(0).(*usecase.InitiateLoginOutput)

	return out, args.Error(1)
}

func (m *mockLoginUsecase) VerifyLogin(ctx context.Context, input usecase.VerifyLoginInput) (*usecase.VerifyLoginOutput, error) {
	args := m.Called(ctx, input)
	out, _ := args.Get(0).(*usecase.VerifyLoginOutput)

	return out, args.Error(1)
}

func (m *mockLoginUsecase) ResendCode(ctx context.Context, input usecase.ResendCodeInput) error {
	return m.Called(ctx, input).Error(0)
}

func (m *mockLoginUsecase) PurgeExpired(ctx context.Context) (int64, error) {
	args := m.Called(ctx)

	return args.Get(0).(int64), args.Error(1)
}

type mockSessionUsecase struct {
	mock.Mock
}

func (m *mockSessionUsecase) Authenticate(ctx context.Context, token string) (*entity.SessionCredential, error) {
	args := m.Called(ctx, token)
	out, _ := args.Get(0).(*entity.SessionCredential)

	return out, args.Error(1)
}

func (m *mockSessionUsecase) CurrentUser(ctx context.Context, token string) (*entity.User, error) {
	args := m.Called(ctx, token)
	out, _ := args.Get(0).(*entity.User)

	return out, args.Error(1)
}

type testEnv struct {
	echo     *echo.Echo
	login    *mockLoginUsecase
	sessions *mockSessionUsecase
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{}
	cfg.Auth.Cookie.Name = "session"
	cfg.Auth.CredentialTTL = time.Hour
	cookies := cookie.NewManager(cfg)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	env := &testEnv{
		echo:     echo.New(),
		login:    &mockLoginUsecase{},
		sessions: &mockSessionUsecase{},
	}
	env.echo.Validator = validator.New()
	env.echo.HTTPErrorHandler = apimiddleware.NewErrorMiddleware(logger).HandleHTTPError

	loginHandler := NewLoginHandler(LoginHandlerParams{LoginUC: env.login, Cookies: cookies})
	sessionHandler := NewSessionHandler(env.sessions, cookies)
	sessionMiddleware := apimiddleware.NewSessionMiddleware(env.sessions, cookies)

	env.echo.GET("/health", HealthCheck)
	env.echo.POST("/login/initiate", loginHandler.Initiate)
	env.echo.POST("/login/resend", loginHandler.Resend)
	env.echo.POST("/login/verify", loginHandler.Verify)
	env.echo.POST("/logout", sessionHandler.Logout)
	env.echo.GET("/session/me", sessionHandler.Me)
	dashboard := env.echo.Group("/dashboard", sessionMiddleware.RequireSession)
	dashboard.GET("/whoami", WhoAmI)
	dashboard.GET("/admin/whoami", WhoAmI, sessionMiddleware.RequireRole(entity.RoleAdmin))

	t.Cleanup(func() {
		env.login.AssertExpectations(t)
		env.sessions.AssertExpectations(t)
	})

	return env
}

func (env *testEnv) do(method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)

	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	return body
}

func TestInitiate(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setup      func(m *mockLoginUsecase)
		wantStatus int
		wantBody   map[string]any
	}{
		{
			name: "success",
			body: `{"email":"reader@example.com"}`,
			setup: func(m *mockLoginUsecase) {
				m.On("InitiateLogin", mock.Anything, mock.MatchedBy(func(in usecase.InitiateLoginInput) bool {
					return in.Email == "reader@example.com" && in.RequestID != ""
				})).Return(&usecase.InitiateLoginOutput{SessionID: testSessionID}, nil)
			},
			wantStatus: http.StatusOK,
			wantBody:   map[string]any{"sessionId": testSessionID.String()},
		},
		{
			name: "dispatch failure is a warning",
			body: `{"email":"reader@example.com"}`,
			setup: func(m *mockLoginUsecase) {
				m.On("InitiateLogin", mock.Anything, mock.Anything).
					Return(&usecase.InitiateLoginOutput{SessionID: testSessionID}, domainerrors.ErrDispatchFailed)
			},
			wantStatus: http.StatusAccepted,
			wantBody:   map[string]any{"sessionId": testSessionID.String(), "warning": "dispatch_failed"},
		},
		{
			name: "malformed email",
			body: `{"email":"not-an-email"}`,
			setup: func(m *mockLoginUsecase) {
				m.On("InitiateLogin", mock.Anything, mock.Anything).
					Return(nil, domainerrors.ErrInvalidArgument.WithDetails("email must be a valid address"))
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing email",
			body:       `{}`,
			setup:      func(*mockLoginUsecase) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "store failure",
			body: `{"email":"reader@example.com"}`,
			setup: func(m *mockLoginUsecase) {
				m.On("InitiateLogin", mock.Anything, mock.Anything).
					Return(nil, domainerrors.NewDatabaseExecuteError(assert.AnError, "insert"))
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			tt.setup(env.login)

			rec := env.do(http.MethodPost, "/login/initiate", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decode(t, rec)
			if tt.wantBody != nil {
				assert.Equal(t, tt.wantBody, body)
			} else {
				assert.NotEmpty(t, body["error"])
				assert.NotEmpty(t, body["code"])
				assert.NotEmpty(t, body["request_id"])
			}
		})
	}
}

func TestInitiate_InternalErrorHidesDetails(t *testing.T) {
	env := newTestEnv(t)
	env.login.On("InitiateLogin", mock.Anything, mock.Anything).
		Return(nil, domainerrors.NewDatabaseExecuteError(assert.AnError, "secret table name"))

	rec := env.do(http.MethodPost, "/login/initiate", `{"email":"reader@example.com"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret table name")
	assert.Equal(t, "INTERNAL_ERROR", decode(t, rec)["code"])
}

func TestResend(t *testing.T) {
	validBody := `{"sessionId":"` + testSessionID.String() + `"}`

	tests := []struct {
		name       string
		body       string
		err        error
		called     bool
		wantStatus int
		wantError  string
		wantCode   string
	}{
		{name: "success", body: validBody, called: true, wantStatus: http.StatusOK},
		{name: "missing id", body: `{}`, wantStatus: http.StatusBadRequest, wantCode: "INVALID_ARGUMENT"},
		{name: "unparseable id", body: `{"sessionId":"abc"}`, wantStatus: http.StatusUnauthorized, wantError: "invalid session"},
		{name: "unknown session", body: validBody, called: true, err: domainerrors.ErrLoginSessionNotFound, wantStatus: http.StatusUnauthorized, wantError: "invalid session"},
		{name: "expired session", body: validBody, called: true, err: domainerrors.ErrLoginSessionExpired, wantStatus: http.StatusUnauthorized, wantError: "session expired"},
		{name: "throttled", body: validBody, called: true, err: domainerrors.ErrResendRateLimited, wantStatus: http.StatusTooManyRequests, wantCode: "RESEND_RATE_LIMITED"},
		{name: "dispatch failure", body: validBody, called: true, err: domainerrors.ErrDispatchFailed, wantStatus: http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.called {
				env.login.On("ResendCode", mock.Anything, mock.MatchedBy(func(in usecase.ResendCodeInput) bool {
					return in.SessionID == testSessionID
				})).Return(tt.err)
			}

			rec := env.do(http.MethodPost, "/login/resend", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decode(t, rec)
			switch {
			case tt.wantError != "":
				assert.Equal(t, tt.wantError, body["error"])
			case tt.wantCode != "":
				assert.Equal(t, tt.wantCode, body["code"])
			default:
				assert.Equal(t, true, body["ok"])
			}
		})
	}
}

func TestVerify(t *testing.T) {
	validBody := `{"sessionId":"` + testSessionID.String() + `","code":"123456"}`

	t.Run("success sets cookie", func(t *testing.T) {
		env := newTestEnv(t)
		env.login.On("VerifyLogin", mock.Anything, usecase.VerifyLoginInput{SessionID: testSessionID, Code: "123456"}).
			Return(&usecase.VerifyLoginOutput{
				User:        &entity.User{ID: uuid.New(), Role: entity.RoleAdmin},
				Token:       "signed-token",
				Destination: "/dashboard/admin",
				ExpiresAt:   time.Now().Add(time.Hour),
			}, nil)

		rec := env.do(http.MethodPost, "/login/verify", validBody)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, map[string]any{"ok": true, "role": "admin", "destination": "/dashboard/admin"}, decode(t, rec))

		setCookie := rec.Header().Get("Set-Cookie")
		assert.Contains(t, setCookie, "session=signed-token")
		assert.Contains(t, setCookie, "HttpOnly")
		assert.Contains(t, setCookie, "SameSite=Strict")
	})

	failures := []struct {
		name       string
		body       string
		err        error
		wantStatus int
	}{
		{name: "mismatch", body: validBody, err: domainerrors.ErrCodeMismatch, wantStatus: http.StatusUnauthorized},
		{name: "expired", body: validBody, err: domainerrors.ErrLoginSessionExpired, wantStatus: http.StatusUnauthorized},
		{name: "exhausted", body: validBody, err: domainerrors.ErrLoginSessionExhausted, wantStatus: http.StatusUnauthorized},
		{name: "consumed", body: validBody, err: domainerrors.ErrLoginSessionNotFound, wantStatus: http.StatusNotFound},
		{name: "unparseable id", body: `{"sessionId":"x","code":"1"}`, wantStatus: http.StatusNotFound},
		{name: "missing code", body: `{"sessionId":"` + testSessionID.String() + `"}`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.err != nil {
				env.login.On("VerifyLogin", mock.Anything, mock.Anything).Return(nil, tt.err)
			}

			rec := env.do(http.MethodPost, "/login/verify", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Empty(t, rec.Header().Get("Set-Cookie"))
		})
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/logout", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"ok": true}, decode(t, rec))
	assert.Contains(t, rec.Header().Get("Set-Cookie"), "Max-Age=0")
}

func TestMe(t *testing.T) {
	user := &entity.User{ID: uuid.New(), Email: "reader@example.com", Name: "Reader", Role: entity.RoleUser}

	t.Run("signed in", func(t *testing.T) {
		env := newTestEnv(t)
		env.sessions.On("CurrentUser", mock.Anything, "tok").Return(user, nil)

		rec := env.do(http.MethodGet, "/session/me", "", &http.Cookie{Name: "session", Value: "tok"})

		require.Equal(t, http.StatusOK, rec.Code)
		got := decode(t, rec)["user"].(map[string]any)
		assert.Equal(t, user.ID.String(), got["id"])
		assert.Equal(t, "reader@example.com", got["email"])
		assert.Equal(t, "Reader", got["name"])
		assert.Equal(t, "user", got["role"])
	})

	t.Run("signed out", func(t *testing.T) {
		env := newTestEnv(t)
		env.sessions.On("CurrentUser", mock.Anything, "").Return(nil, nil)

		rec := env.do(http.MethodGet, "/session/me", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"user":null}`, rec.Body.String())
	})
}

func TestDashboardAccess(t *testing.T) {
	adminCredential := &entity.SessionCredential{UserID: uuid.New(), Role: entity.RoleAdmin, IssuedAt: time.Now()}
	userCredential := &entity.SessionCredential{UserID: uuid.New(), Role: entity.RoleUser, IssuedAt: time.Now()}

	tests := []struct {
		name       string
		path       string
		token      string
		credential *entity.SessionCredential
		err        error
		wantStatus int
	}{
		{name: "no cookie", path: "/dashboard/whoami", wantStatus: http.StatusUnauthorized, err: domainerrors.ErrUnauthenticated},
		{name: "tampered", path: "/dashboard/whoami", token: "bad", wantStatus: http.StatusUnauthorized, err: domainerrors.ErrSignatureInvalid},
		{name: "user dashboard", path: "/dashboard/whoami", token: "ok", credential: userCredential, wantStatus: http.StatusOK},
		{name: "user denied admin", path: "/dashboard/admin/whoami", token: "ok", credential: userCredential, wantStatus: http.StatusForbidden},
		{name: "admin allowed", path: "/dashboard/admin/whoami", token: "ok", credential: adminCredential, wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.sessions.On("Authenticate", mock.Anything, tt.token).Return(tt.credential, tt.err)

			var cookies []*http.Cookie
			if tt.token != "" {
				cookies = append(cookies, &http.Cookie{Name: "session", Value: tt.token})
			}
			rec := env.do(http.MethodGet, tt.path, "", cookies...)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				body := decode(t, rec)
				assert.Equal(t, tt.credential.UserID.String(), body["userId"])
				assert.Equal(t, tt.credential.Role.String(), body["role"])
			}
		})
	}
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

package impl

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"otpgate/config"
	"otpgate/internal/domain/entity"
	"otpgate/internal/domain/repository"
	"otpgate/internal/domain/service"
	"otpgate/internal/infra/auth"
	"otpgate/internal/infra/persistence/memory"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	adminID  = uuid.MustParse("6f1c2d3e-0000-4000-8000-000000000001")
	readerID = uuid.MustParse("6f1c2d3e-0000-4000-8000-000000000002")
)

func newDiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.SecretKey.Session = "test-session-secret"
	cfg.Store.Timeout = time.Second
	cfg.Mail.Timeout = time.Second
	cfg.Auth.Issuer = "otpgate-test"
	cfg.Auth.CredentialTTL = time.Hour
	cfg.Auth.MaxCredentialAge = time.Hour
	cfg.Auth.DefaultDestination = "/"
	cfg.Auth.OTP = config.OTPConfig{
		Length:         6,
		CodeTTL:        10 * time.Minute,
		SessionTTL:     30 * time.Minute,
		MaxAttempts:    5,
		ResendCooldown: 30 * time.Second,
		MaxResends:     3,
	}
	cfg.LoginSession.Retention = time.Hour

	return cfg
}

func newTestUsers() repository.UserRepository {
	return memory.NewUserRepository([]entity.User{
		{ID: adminID, Email: "admin@example.com", Name: "Site Admin", Role: entity.RoleAdmin},
		{ID: readerID, Email: "reader@example.com", Name: "Reader", Role: entity.RoleUser},
	})
}

// testClock is a manually advanced clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

// sequenceCodes hands out predetermined codes in order.
type sequenceCodes struct {
	mu    sync.Mutex
	codes []string
	next  int
}

func (g *sequenceCodes) Generate(int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	code := g.codes[g.next%len(g.codes)]
	g.next++

	return code, nil
}

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) DispatchLoginCode(ctx context.Context, mail *service.LoginCodeMail) error {
	args := m.Called(ctx, mail)

	return args.Error(0)
}

func mailTo(email, code string) any {
	return mock.MatchedBy(func(m *service.LoginCodeMail) bool {
		return m.To == email && m.Code == code
	})
}

// loginServiceFixtures holds all test dependencies for login service tests.
type loginServiceFixtures struct {
	service    *loginService
	sessions   repository.LoginSessionRepository
	dispatcher *mockDispatcher
	signer     service.CredentialSigner
	clock      *testClock
}

func createTestLoginService(t *testing.T) loginServiceFixtures {
	t.Helper()

	cfg := newTestConfig()
	signer, err := auth.NewJWTSigner(cfg)
	require.NoError(t, err)

	sessions := memory.NewLoginSessionRepository()
	dispatcher := &mockDispatcher{}
	t.Cleanup(func() { dispatcher.AssertExpectations(t) })

	clock := &testClock{now: time.Now().UTC().Truncate(time.Second)}

	srv := newLoginService(LoginServiceParams{
		Policy:     NewLoginPolicy(cfg),
		Sessions:   sessions,
		Users:      newTestUsers(),
		Codes:      &sequenceCodes{codes: []string{"111111", "222222", "333333", "444444"}},
		Dispatcher: dispatcher,
		Signer:     signer,
		Router:     auth.NewRoleRouter(cfg),
		Logger:     newDiscardLogger(),
	}, clock.Now)

	return loginServiceFixtures{
		service:    srv,
		sessions:   sessions,
		dispatcher: dispatcher,
		signer:     signer,
		clock:      clock,
	}
}

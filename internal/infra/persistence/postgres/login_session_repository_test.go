package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"otpgate/internal/domain/entity"
	"otpgate/internal/domain/repository"
	"otpgate/internal/infra/persistence/storetest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var sessionColumns = []string{
	"id", "email", "code_hash", "code_expires_at", "expires_at", "state",
	"failed_attempts", "resend_count", "last_sent_at", "created_at", "updated_at",
}

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(pgdriver.New(pgdriver.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Discard,
	})
	require.NoError(t, err)

	return db, mock
}

func sessionRow(s *entity.LoginSession) *sqlmock.Rows {
	return sqlmock.NewRows(sessionColumns).AddRow(
		s.ID.String(), s.Email, s.CodeHash, s.CodeExpiresAt, s.ExpiresAt, string(s.State),
		s.FailedAttempts, s.ResendCount, nil, s.CreatedAt, s.UpdatedAt,
	)
}

var (
	selectSession = regexp.QuoteMeta(`SELECT * FROM "login_sessions" WHERE id = $1`)
	updateSession = regexp.QuoteMeta(`UPDATE "login_sessions" SET`)
)

func TestLoginSessionRepository_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLoginSessionRepository(db)
	session := storetest.NewSession("123456")

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "login_sessions"`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Create(context.Background(), session))

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "login_sessions"`)).
		WillReturnError(errors.New(`duplicate key value violates unique constraint "login_sessions_pkey" (SQLSTATE 23505)`))
	assert.ErrorIs(t, repo.Create(context.Background(), session), repository.ErrLoginSessionConflict)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoginSessionRepository_FindByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLoginSessionRepository(db)
	session := storetest.NewSession("123456")

	mock.ExpectQuery(selectSession).WillReturnRows(sessionRow(session))
	got, err := repo.FindByID(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, session.CodeHash, got.CodeHash)
	assert.True(t, got.LastSentAt.IsZero())

	mock.ExpectQuery(selectSession).WillReturnRows(sqlmock.NewRows(sessionColumns))
	_, err = repo.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, repository.ErrLoginSessionNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoginSessionRepository_RecordFailedAttempt(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLoginSessionRepository(db)
	session := storetest.NewSession("123456")
	session.State = entity.LoginSessionCodeSent
	session.FailedAttempts = 4

	mock.ExpectBegin()
	mock.ExpectQuery(selectSession + ".*FOR UPDATE").WillReturnRows(sessionRow(session))
	mock.ExpectExec(updateSession).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, err := repo.RecordFailedAttempt(context.Background(), session.ID, 5, session.CreatedAt.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 5, result.FailedAttempts)
	assert.Equal(t, entity.LoginSessionExhausted, result.State)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoginSessionRepository_ConsumeMismatchRollsBack(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLoginSessionRepository(db)
	session := storetest.NewSession("123456")

	mock.ExpectBegin()
	mock.ExpectQuery(selectSession).WillReturnRows(sessionRow(session))
	mock.ExpectRollback()

	err := repo.Consume(context.Background(), session.ID, "not-the-digest", session.CreatedAt)
	assert.ErrorIs(t, err, repository.ErrLoginSessionNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoginSessionRepository_TerminalStateIsNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLoginSessionRepository(db)
	session := storetest.NewSession("123456")
	session.State = entity.LoginSessionVerified

	mock.ExpectBegin()
	mock.ExpectQuery(selectSession).WillReturnRows(sessionRow(session))
	mock.ExpectRollback()

	err := repo.MarkSent(context.Background(), session.ID, session.CreatedAt)
	assert.ErrorIs(t, err, repository.ErrLoginSessionNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoginSessionRepository_RotateCodeConflict(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLoginSessionRepository(db)
	session := storetest.NewSession("123456")
	session.ResendCount = 2

	mock.ExpectBegin()
	mock.ExpectQuery(selectSession).WillReturnRows(sessionRow(session))
	mock.ExpectRollback()

	err := repo.RotateCode(context.Background(), session.ID, entity.CodeRotation{
		CodeHash:            "digest",
		CodeExpiresAt:       session.CodeExpiresAt,
		ExpectedResendCount: 1,
		RotatedAt:           session.CreatedAt,
	})
	assert.ErrorIs(t, err, repository.ErrLoginSessionConflict)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoginSessionRepository_DeleteExpired(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewLoginSessionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "login_sessions" WHERE expires_at < $1`)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DeleteExpired(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_FindByEmail(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepository(db)
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE email = $1`)).
		WithArgs("admin@example.com", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name", "role", "created_at", "updated_at"}).
			AddRow(id.String(), "admin@example.com", "Admin", "admin", time.Now(), time.Now()))

	user, err := repo.FindByEmail(context.Background(), " Admin@Example.com")
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
	assert.Equal(t, entity.RoleAdmin, user.Role)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users" WHERE id = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err = repo.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, repository.ErrUserNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

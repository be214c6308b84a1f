// Package bbolt provides a BBolt-backed login session store and user directory.
package bbolt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"otpgate/internal/domain/entity"
	"otpgate/internal/domain/repository"
	"otpgate/internal/errors"
	"otpgate/internal/util"

	"go.etcd.io/bbolt"
)

const (
	recordLoginSession = "login_session"
	recordUser         = "user"
	recordUserEmail    = "user_email"
)

var bucketName = []byte("otpgate")

// Store is a single-file embedded database holding every record in one bucket,
// keyed as recordType:recordID.
type Store struct {
	db *bbolt.DB
}

// NewStore wraps an open BBolt database.
func NewStore(db *bbolt.DB) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)

		return err
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating bbolt bucket")
	}

	return &Store{db: db}, nil
}

// Open opens (or creates) the database file at path.
func Open(path string, timeout time.Duration) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, errors.Wrapf(err, "creating bbolt directory %s", dir)
		}
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: timeout})
	if err != nil {
		return nil, errors.Wrap(err, "opening bbolt db")
	}

	store, err := NewStore(db)
	if err != nil {
		db.Close()

		return nil, err
	}

	return store, nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoginSessions returns the login session repository view of the store.
func (s *Store) LoginSessions() repository.LoginSessionRepository {
	return &loginSessionRepository{db: s.db}
}

// Users returns the user directory view of the store.
func (s *Store) Users() repository.UserRepository {
	return &userRepository{db: s.db}
}

// SeedUsers upserts directory entries in one transaction.
func (s *Store) SeedUsers(users []entity.User) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		for _, u := range users {
			rec := fromUserDomain(&u)
			data, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := b.Put(key(recordUser, rec.ID), data); err != nil {
				return err
			}
			if err := b.Put(key(recordUserEmail, rec.Email), []byte(rec.ID)); err != nil {
				return err
			}
		}

		return nil
	})
}

func key(recordType, recordID string) []byte {
	return fmt.Appendf(nil, "%s:%s", recordType, recordID)
}

func prefix(recordType string) []byte {
	return []byte(recordType + ":")
}

func getJSON(b *bbolt.Bucket, k []byte, v any) (bool, error) {
	data := b.Get(k)
	if data == nil {
		return false, nil
	}

	return true, json.Unmarshal(data, v)
}

func putJSON(b *bbolt.Bucket, k []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return b.Put(k, data)
}

func keysWithPrefix(b *bbolt.Bucket, p []byte, keep func(v []byte) (bool, error)) ([][]byte, error) {
	var keys [][]byte
	c := b.Cursor()
	for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
		ok, err := keep(v)
		if err != nil {
			return nil, err
		}
		if ok {
			keys = append(keys, bytes.Clone(k))
		}
	}

	return keys, nil
}

// userRecord is the stored form of a directory entry.
type userRecord struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func fromUserDomain(u *entity.User) *userRecord {
	return &userRecord{
		ID:        u.ID.String(),
		Email:     util.NormalizeEmail(u.Email),
		Name:      u.Name,
		Role:      u.Role.String(),
		CreatedAt: u.CreatedAt,
	}
}

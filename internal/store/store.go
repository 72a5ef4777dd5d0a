// Package store provides secure key-value persistence for c2pay.
//
// Security model:
// 1. File permissions: 0600 (owner read/write only)
// 2. Integrity: each record carries an HMAC-SHA256 over key and value
// 3. Wholesale writes: values are replaced atomically, never merged
//
// The store holds behavioral baselines, the last-manifest cache, and
// visit counters. Values are opaque blobs to this package; callers use
// the JSON helpers for typed records.
package store

import (
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"c2pay/internal/security"
)

// Errors
var (
	ErrNotFound  = errors.New("store: key not found")
	ErrIntegrity = errors.New("store: record integrity check failed")
	ErrShortKey  = errors.New("store: HMAC key must be at least 32 bytes")
)

// Schema for the c2pay key-value store.
const schema = `
CREATE TABLE IF NOT EXISTS kv (
    key         TEXT PRIMARY KEY,
    value       BLOB NOT NULL,
    hmac        BLOB NOT NULL,
    updated_at  INTEGER NOT NULL
);
`

// defaultBusyTimeoutMs bounds how long a write waits on a locked
// database before failing.
const defaultBusyTimeoutMs = 5000

// Store is the sqlite-backed secure key-value store.
type Store struct {
	db      *sql.DB
	hmacKey []byte
}

// Open opens or creates the store at path. The hmacKey should be
// derived from the device signing key so that a copied database cannot
// be silently altered; it must be at least 32 bytes. A busyTimeoutMs
// of zero or less selects the default.
func Open(path string, hmacKey []byte, busyTimeoutMs int) (*Store, error) {
	if len(hmacKey) < 32 {
		return nil, ErrShortKey
	}
	if busyTimeoutMs <= 0 {
		busyTimeoutMs = defaultBusyTimeoutMs
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=%d", path, busyTimeoutMs)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	if err := os.Chmod(path, 0600); err != nil {
		db.Close()
		return nil, fmt.Errorf("set store permissions: %w", err)
	}

	key := make([]byte, len(hmacKey))
	copy(key, hmacKey)
	return &Store{db: db, hmacKey: key}, nil
}

// Close closes the store and wipes the HMAC key.
func (s *Store) Close() error {
	security.Wipe(s.hmacKey)
	return s.db.Close()
}

// recordMAC computes the integrity tag for a record.
func (s *Store) recordMAC(key string, value []byte) []byte {
	mac := hmac.New(sha256.New, s.hmacKey)
	mac.Write([]byte(key))
	mac.Write([]byte{0})
	mac.Write(value)
	return mac.Sum(nil)
}

// Set writes a value wholesale, replacing any previous value.
func (s *Store) Set(key string, value []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO kv (key, value, hmac, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, hmac=excluded.hmac, updated_at=excluded.updated_at`,
		key, value, s.recordMAC(key, value), time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// Get reads a value and verifies its integrity tag.
func (s *Store) Get(key string) ([]byte, error) {
	var value, tag []byte
	err := s.db.QueryRow(`SELECT value, hmac FROM kv WHERE key = ?`, key).Scan(&value, &tag)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	if !security.ConstantTimeEqual(tag, s.recordMAC(key, value)) {
		return nil, fmt.Errorf("%w: %q", ErrIntegrity, key)
	}
	return value, nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// SetJSON marshals v and stores it under key.
func (s *Store) SetJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %q: %w", key, err)
	}
	return s.Set(key, data)
}

// GetJSON reads key and unmarshals it into v.
func (s *Store) GetJSON(key string, v any) error {
	data, err := s.Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %q: %w", key, err)
	}
	return nil
}

// Increment atomically bumps an integer counter stored under key and
// returns the new value.
func (s *Store) Increment(key string) (int64, error) {
	var n int64
	err := s.GetJSON(key, &n)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, err
	}
	n++
	if err := s.SetJSON(key, n); err != nil {
		return 0, err
	}
	return n, nil
}

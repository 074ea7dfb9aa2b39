// Package apikey issues and validates the opaque API keys gating the build API.
package apikey

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const secretPrefix = "apk_"

var (
	// ErrKeyInvalid covers unknown, malformed and revoked keys alike, so
	// callers cannot probe which keys exist.
	ErrKeyInvalid = errors.New("invalid or inactive api key")
	// ErrKeyNotFound is returned when revoking or removing an unknown key id.
	ErrKeyNotFound = errors.New("api key not found")
)

// Key is the public view of an API key record. The secret is never part of it.
type Key struct {
	KeyID        string
	Name         string
	Active       bool
	CreatedAt    time.Time
	LastUsed     *time.Time
	RequestCount int64
}

// Issued is returned exactly once, at generation time; the plaintext secret is
// not recoverable afterwards.
type Issued struct {
	Key
	Secret string
}

// Store is the sqlite-backed credential store. Only a one-way hash of each
// secret is persisted.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the key database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, errors.New("api key db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) init() error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS api_keys (
			key_id TEXT PRIMARY KEY,
			key_hash TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			active INTEGER NOT NULL DEFAULT 1,
			created_at_utc TEXT NOT NULL,
			last_used_utc TEXT,
			request_count INTEGER NOT NULL DEFAULT 0
		);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Issue generates a new high-entropy secret, stores its hash plus metadata,
// and returns the plaintext secret. This is the only time the secret exists
// outside the caller's hands.
func (s *Store) Issue(name string) (Issued, error) {
	if strings.TrimSpace(name) == "" {
		name = "Unnamed API Key"
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return Issued{}, err
	}
	secret := secretPrefix + hex.EncodeToString(raw)

	keyID := uuid.NewString()
	now := time.Now().UTC()

	_, err := s.db.Exec(
		`INSERT INTO api_keys (key_id, key_hash, name, active, created_at_utc, request_count)
		VALUES (?, ?, ?, 1, ?, 0)`,
		keyID, hashSecret(secret), name, now.Format(time.RFC3339),
	)
	if err != nil {
		return Issued{}, err
	}

	return Issued{
		Key: Key{
			KeyID:     keyID,
			Name:      name,
			Active:    true,
			CreatedAt: now,
		},
		Secret: secret,
	}, nil
}

// Validate checks a secret against the active records. On success it
// atomically bumps the usage counter and last-used timestamp and returns the
// record's public fields. Unknown and revoked keys fail identically.
func (s *Store) Validate(secret string) (Key, error) {
	if !strings.HasPrefix(secret, secretPrefix) {
		return Key{}, ErrKeyInvalid
	}
	hash := hashSecret(secret)

	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(
		`UPDATE api_keys SET request_count = request_count + 1, last_used_utc = ?
		WHERE key_hash = ? AND active = 1`,
		now, hash,
	)
	if err != nil {
		return Key{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Key{}, err
	}
	if affected == 0 {
		return Key{}, ErrKeyInvalid
	}

	row := s.db.QueryRow(
		`SELECT key_id, name, active, created_at_utc, last_used_utc, request_count
		FROM api_keys WHERE key_hash = ?`, hash)
	return scanKey(row)
}

// Revoke soft-deletes a key; its hash still matches but validation must fail.
func (s *Store) Revoke(keyID string) error {
	res, err := s.db.Exec(`UPDATE api_keys SET active = 0 WHERE key_id = ?`, keyID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

// Remove hard-deletes a key record.
func (s *Store) Remove(keyID string) error {
	res, err := s.db.Exec(`DELETE FROM api_keys WHERE key_id = ?`, keyID)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

// List returns every key's public fields, newest first.
func (s *Store) List() ([]Key, error) {
	rows, err := s.db.Query(
		`SELECT key_id, name, active, created_at_utc, last_used_utc, request_count
		FROM api_keys ORDER BY created_at_utc DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]Key, 0)
	for rows.Next() {
		var k Key
		var active int
		var created string
		var lastUsed sql.NullString
		if err := rows.Scan(&k.KeyID, &k.Name, &active, &created, &lastUsed, &k.RequestCount); err != nil {
			return nil, err
		}
		k.Active = active != 0
		k.CreatedAt, _ = time.Parse(time.RFC3339, created)
		if lastUsed.Valid {
			parsed, err := time.Parse(time.RFC3339, lastUsed.String)
			if err == nil {
				k.LastUsed = &parsed
			}
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func scanKey(row *sql.Row) (Key, error) {
	var k Key
	var active int
	var created string
	var lastUsed sql.NullString

	err := row.Scan(&k.KeyID, &k.Name, &active, &created, &lastUsed, &k.RequestCount)
	if errors.Is(err, sql.ErrNoRows) {
		return Key{}, ErrKeyInvalid
	}
	if err != nil {
		return Key{}, err
	}

	k.Active = active != 0
	k.CreatedAt, _ = time.Parse(time.RFC3339, created)
	if lastUsed.Valid {
		parsed, err := time.Parse(time.RFC3339, lastUsed.String)
		if err == nil {
			k.LastUsed = &parsed
		}
	}
	return k, nil
}

func affectedOrNotFound(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrKeyNotFound
	}
	return nil
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

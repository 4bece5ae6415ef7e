// Package adminkey validates the API keys that unlock admin endpoints.
// Raw keys are never stored: both backends compare the SHA-256 digest of the
// presented key. Static keys come from configuration; Postgres keys can be
// created, revoked and listed at runtime.
package adminkey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidKey = errors.New("invalid admin key")
	ErrExpiredKey = errors.New("admin key expired")
)

// KeyInfo describes a validated key.
type KeyInfo struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type Validator interface {
	Validate(ctx context.Context, rawKey string) (*KeyInfo, error)
}

// HashKey returns the SHA-256 hex digest of a raw key.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func generateRawKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating key: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Static accepts keys whose digests were configured up front.
type Static struct {
	hashes [][]byte
}

func NewStatic(hexHashes []string) *Static {
	s := &Static{}
	for _, h := range hexHashes {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			s.hashes = append(s.hashes, []byte(h))
		}
	}
	return s
}

func (s *Static) Validate(ctx context.Context, rawKey string) (*KeyInfo, error) {
	digest := []byte(HashKey(rawKey))
	for i, h := range s.hashes {
		if subtle.ConstantTimeCompare(digest, h) == 1 {
			return &KeyInfo{ID: fmt.Sprintf("static-%d", i), Name: "static"}, nil
		}
	}
	return nil, ErrInvalidKey
}

// Store keeps key digests in the admin_keys table.
type Store struct {
	db     *sql.DB
	now    func() time.Time
	logger *slog.Logger
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:     db,
		now:    time.Now,
		logger: slog.Default().With("component", "admin-keys"),
	}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS admin_keys (
			id         TEXT PRIMARY KEY,
			key_hash   TEXT NOT NULL UNIQUE,
			name       TEXT NOT NULL,
			is_active  BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL,
			expires_at TIMESTAMPTZ
		)`)
	if err != nil {
		return fmt.Errorf("creating admin_keys table: %w", err)
	}
	return nil
}

// Validate returns ErrInvalidKey for unknown or revoked keys and
// ErrExpiredKey for keys past their expiry.
func (s *Store) Validate(ctx context.Context, rawKey string) (*KeyInfo, error) {
	var (
		info      KeyInfo
		expiresAt sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, expires_at
		 FROM admin_keys
		 WHERE key_hash = $1 AND is_active = true`,
		HashKey(rawKey),
	).Scan(&info.ID, &info.Name, &info.CreatedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidKey
	}
	if err != nil {
		return nil, fmt.Errorf("querying admin key: %w", err)
	}
	if expiresAt.Valid {
		if !expiresAt.Time.After(s.now()) {
			return nil, ErrExpiredKey
		}
		info.ExpiresAt = &expiresAt.Time
	}
	return &info, nil
}

// Create stores a new key and returns it. The raw key cannot be retrieved
// again.
func (s *Store) Create(ctx context.Context, name string, expiresAt *time.Time) (string, *KeyInfo, error) {
	raw, err := generateRawKey()
	if err != nil {
		return "", nil, err
	}
	info := &KeyInfo{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: s.now().UTC(),
		ExpiresAt: expiresAt,
	}
	var expiry sql.NullTime
	if expiresAt != nil {
		expiry = sql.NullTime{Time: *expiresAt, Valid: true}
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO admin_keys (id, key_hash, name, created_at, expires_at) VALUES ($1, $2, $3, $4, $5)`,
		info.ID, HashKey(raw), name, info.CreatedAt, expiry,
	)
	if err != nil {
		return "", nil, fmt.Errorf("creating admin key: %w", err)
	}
	s.logger.Info("admin key created", "id", info.ID, "name", name)
	return raw, info, nil
}

// Revoke deactivates the key with the given id.
func (s *Store) Revoke(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE admin_keys SET is_active = false WHERE id = $1 AND is_active = true`, id)
	if err != nil {
		return fmt.Errorf("revoking admin key: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrInvalidKey
	}
	s.logger.Info("admin key revoked", "id", id)
	return nil
}

// List returns active keys, newest first.
func (s *Store) List(ctx context.Context) ([]KeyInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at, expires_at FROM admin_keys WHERE is_active = true ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing admin keys: %w", err)
	}
	defer rows.Close()

	var keys []KeyInfo
	for rows.Next() {
		var (
			k         KeyInfo
			expiresAt sql.NullTime
		)
		if err := rows.Scan(&k.ID, &k.Name, &k.CreatedAt, &expiresAt); err != nil {
			return nil, fmt.Errorf("scanning admin key row: %w", err)
		}
		if expiresAt.Valid {
			k.ExpiresAt = &expiresAt.Time
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

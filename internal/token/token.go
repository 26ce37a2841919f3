// Package token implements the HMAC-SHA256 approval token protocol: signed,
// single-use, time-bound tokens that bind a human approval to an exact
// (thread, user, proposal) tuple.
package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/crozzbite/phylactery/internal/cryptoutil"
)

const tokenVersion = "v1"

// DefaultMaxAge is the default approval token lifetime.
const DefaultMaxAge = 300 * time.Second

// Manager signs and verifies approval tokens. It guards the replay set
// with a mutex for atomic check-and-set within a process, and mirrors
// consumed entries into SQLite so a restart does not reopen a replay
// window that should already be closed.
type Manager struct {
	secret []byte

	mu     sync.Mutex
	used   map[string]time.Time // token -> expiry
	db     *sql.DB
}

// NewManager creates a Manager from a signing key (raw bytes or ≥64 hex
// chars decoding to ≥32 bytes) and an optional SQLite path for
// restart-durable replay tracking. dbPath == "" disables durability
// (in-memory only).
func NewManager(secretKey, dbPath string) (*Manager, error) {
	secret, err := resolveKey(secretKey)
	if err != nil {
		return nil, fmt.Errorf("token: %w", err)
	}

	m := &Manager{
		secret: secret,
		used:   make(map[string]time.Time),
	}

	if dbPath != "" {
		db, err := sql.Open("sqlite3", dbPath)
		if err != nil {
			return nil, fmt.Errorf("token: opening replay store: %w", err)
		}
		const schema = `
CREATE TABLE IF NOT EXISTS consumed_tokens (
	token TEXT PRIMARY KEY,
	expires_at INTEGER NOT NULL
);`
		if _, err := db.Exec(schema); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("token: creating schema: %w", err)
		}
		m.db = db
		if err := m.loadFromDB(); err != nil {
			log.Warn().Err(err).Msg("token: failed to preload replay set from db")
		}
	}

	return m, nil
}

func (m *Manager) loadFromDB() error {
	rows, err := m.db.Query(`SELECT token, expires_at FROM consumed_tokens`)
	if err != nil {
		return err
	}
	defer rows.Close()

	now := time.Now()
	for rows.Next() {
		var tok string
		var exp int64
		if err := rows.Scan(&tok, &exp); err != nil {
			return err
		}
		expiry := time.Unix(exp, 0)
		if expiry.After(now) {
			m.used[tok] = expiry
		}
	}
	return rows.Err()
}

func resolveKey(key string) ([]byte, error) {
	n := len(key)
	if n >= 64 && n%2 == 0 && cryptoutil.IsHexString(key) {
		decoded, err := hex.DecodeString(key)
		if err == nil && len(decoded) >= 32 {
			return decoded, nil
		}
	}
	if n >= 32 {
		return []byte(key), nil
	}
	return nil, fmt.Errorf("secret key must be at least 32 bytes or 64+ hex characters (got %d)", n)
}

// Sign produces a fresh token for payload: "v1.<timestamp>.<nonce>.<signature>".
// payload MUST be the canonical binding string (e.g. "thread_id:user_id:approval_hash") —
// never raw tool args.
func (m *Manager) Sign(payload string) (string, error) {
	ts := time.Now().Unix()
	nonce, err := randomHex(8) // 16 hex chars = 64 bits of entropy
	if err != nil {
		return "", fmt.Errorf("token: generating nonce: %w", err)
	}
	sig := m.signMessage(ts, nonce, payload)
	return fmt.Sprintf("%s.%d.%s.%s", tokenVersion, ts, nonce, sig), nil
}

func (m *Manager) signMessage(ts int64, nonce, payload string) string {
	msg := fmt.Sprintf("%d:%s:%s", ts, nonce, payload)
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(msg))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks signature and freshness WITHOUT consuming the
// token. Read-only; approval flows must use VerifyAndConsume instead.
func (m *Manager) VerifySignature(tok, payload string, maxAge time.Duration) bool {
	ts, nonce, sig, ok := parseToken(tok)
	if !ok {
		return false
	}
	if time.Since(time.Unix(ts, 0)) > maxAge {
		return false
	}
	expected := m.signMessage(ts, nonce, payload)
	return hmac.Equal([]byte(sig), []byte(expected))
}

// VerifyAndConsume atomically verifies a token and marks it consumed.
// Returns true iff: version is v1, timestamp is within [now-maxAge, now],
// the signature matches (constant-time), and the token has not been
// consumed before. On any failure, it has no side effect.
func (m *Manager) VerifyAndConsume(tok, payload string, maxAge time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.verifySignatureLocked(tok, payload, maxAge) {
		return false
	}
	if _, exists := m.used[tok]; exists {
		return false
	}

	expiry := time.Now().Add(maxAge)
	m.used[tok] = expiry
	m.persist(tok, expiry)
	m.cleanupExpiredLocked()
	return true
}

func (m *Manager) verifySignatureLocked(tok, payload string, maxAge time.Duration) bool {
	ts, nonce, sig, ok := parseToken(tok)
	if !ok {
		return false
	}
	if time.Since(time.Unix(ts, 0)) > maxAge {
		return false
	}
	expected := m.signMessage(ts, nonce, payload)
	return hmac.Equal([]byte(sig), []byte(expected))
}

func (m *Manager) persist(tok string, expiry time.Time) {
	if m.db == nil {
		return
	}
	if _, err := m.db.Exec(
		`INSERT OR REPLACE INTO consumed_tokens (token, expires_at) VALUES (?, ?)`,
		tok, expiry.Unix(),
	); err != nil {
		log.Warn().Err(err).Msg("token: failed to persist consumed token")
	}
}

// cleanupExpiredLocked removes consumed-token entries past their expiry,
// bounding the in-memory map. Called on every successful consumption.
func (m *Manager) cleanupExpiredLocked() {
	now := time.Now()
	for tok, expiry := range m.used {
		if expiry.Before(now) {
			delete(m.used, tok)
			if m.db != nil {
				_, _ = m.db.Exec(`DELETE FROM consumed_tokens WHERE token = ?`, tok)
			}
		}
	}
}

// IsUsed reports whether a token has already been consumed. Diagnostic
// only — approval flows must use VerifyAndConsume to avoid races.
func (m *Manager) IsUsed(tok string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.used[tok]
	return ok
}

func parseToken(tok string) (ts int64, nonce, sig string, ok bool) {
	parts := strings.Split(tok, ".")
	if len(parts) != 4 {
		return 0, "", "", false
	}
	if parts[0] != tokenVersion {
		return 0, "", "", false
	}
	ts, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return 0, "", "", false
	}
	return ts, parts[2], parts[3], true
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

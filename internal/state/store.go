// Package state implements the State Store: encrypted-at-rest snapshot and
// restore of GraphState, keyed by thread_id. A snapshot is an opaque JSON
// blob wrapped by a single encrypt/decrypt call before it touches disk.
package state

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/nacl/secretbox"

	phyotel "github.com/crozzbite/phylactery/internal/otel"
)

// ErrNotFound is returned when no snapshot exists for a thread.
var ErrNotFound = errors.New("state: snapshot not found")

// ErrInvalidKey is returned when the encryption key is not exactly 32 bytes.
var ErrInvalidKey = errors.New("state: encryption key must be 32 bytes or 64 hex characters")

var tracer = phyotel.Tracer("github.com/crozzbite/phylactery/internal/state")

// Store persists GraphState snapshots, encrypted at rest with
// golang.org/x/crypto/nacl/secretbox (XSalsa20-Poly1305).
type Store struct {
	db  *sql.DB
	key [32]byte
}

// Open opens (or creates) the state database at dbPath.
func Open(dbPath, encryptionKey string) (*Store, error) {
	key, err := resolveKey(encryptionKey)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("state: opening database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS graph_state (
		thread_id TEXT PRIMARY KEY,
		nonce TEXT NOT NULL,
		ciphertext TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("state: creating schema: %w", err)
	}

	return &Store{db: db, key: key}, nil
}

func resolveKey(key string) ([32]byte, error) {
	var out [32]byte
	if len(key) == 64 && isHex(key) {
		decoded, err := hex.DecodeString(key)
		if err != nil || len(decoded) != 32 {
			return out, ErrInvalidKey
		}
		copy(out[:], decoded)
		return out, nil
	}
	if len(key) == 32 {
		copy(out[:], key)
		return out, nil
	}
	return out, ErrInvalidKey
}

func isHex(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Snapshot encrypts and upserts the serialized GraphState for threadID.
// data is an opaque blob — the Graph Runtime owns its own JSON encoding,
// matching checkpointer.py's serializer-agnostic wrap-encrypt-wrap idiom.
func (s *Store) Snapshot(ctx context.Context, threadID string, data []byte) error {
	ctx, span := tracer.Start(ctx, "state.snapshot", trace.WithAttributes(
		attribute.String("state.thread_id", threadID),
	))
	defer span.End()

	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		span.RecordError(err)
		return fmt.Errorf("state: generating nonce: %w", err)
	}

	sealed := secretbox.Seal(nil, data, &nonce, &s.key)

	query := `
		INSERT INTO graph_state (thread_id, nonce, ciphertext, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			nonce = excluded.nonce,
			ciphertext = excluded.ciphertext,
			updated_at = excluded.updated_at
	`
	_, err := s.db.ExecContext(ctx, query, threadID,
		base64.StdEncoding.EncodeToString(nonce[:]),
		base64.StdEncoding.EncodeToString(sealed),
		time.Now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("state: storing snapshot: %w", err)
	}
	return nil
}

// Restore decrypts and returns the last snapshot for threadID.
func (s *Store) Restore(ctx context.Context, threadID string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "state.restore", trace.WithAttributes(
		attribute.String("state.thread_id", threadID),
	))
	defer span.End()

	var nonceB64, ciphertextB64 string
	row := s.db.QueryRowContext(ctx, `SELECT nonce, ciphertext FROM graph_state WHERE thread_id = ?`, threadID)
	if err := row.Scan(&nonceB64, &ciphertextB64); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("state: querying snapshot: %w", err)
	}

	nonceBytes, err := base64.StdEncoding.DecodeString(nonceB64)
	if err != nil || len(nonceBytes) != 24 {
		return nil, fmt.Errorf("state: corrupt nonce for thread %s", threadID)
	}
	var nonce [24]byte
	copy(nonce[:], nonceBytes)

	ciphertext, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return nil, fmt.Errorf("state: decoding ciphertext: %w", err)
	}

	data, ok := secretbox.Open(nil, ciphertext, &nonce, &s.key)
	if !ok {
		span.SetStatus(codes.Error, "decryption failed")
		return nil, fmt.Errorf("state: decryption failed for thread %s (tampered or wrong key)", threadID)
	}
	return data, nil
}

// Delete removes a thread's snapshot entirely (used on session end).
func (s *Store) Delete(ctx context.Context, threadID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM graph_state WHERE thread_id = ?`, threadID)
	if err != nil {
		return fmt.Errorf("state: deleting snapshot: %w", err)
	}
	return nil
}

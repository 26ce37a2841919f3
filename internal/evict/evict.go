// Package evict implements the Eviction Store: a
// content-addressed overflow store for oversized tool output, with
// path-traversal protection and age-based garbage collection.
package evict

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	phyotel "github.com/crozzbite/phylactery/internal/otel"
)

// ErrPathEscape is returned when a resolved eviction path would fall
// outside its thread's directory under root.
var ErrPathEscape = errors.New("evict: path escape")

// Threshold is the character count above which the Interpreter node must
// evict tool output to this store.
const Threshold = 10000

// RehydrationLimit is the maximum total size a pointer's content may be
// re-inlined up to later in the turn.
const RehydrationLimit = 50000

var tracer = phyotel.Tracer("github.com/crozzbite/phylactery/internal/evict")

// Store persists oversized content to disk, addressed by thread and
// content hash.
type Store struct {
	root string
}

// NewStore creates a Store rooted at root. The directory is created lazily
// per thread on first Save.
func NewStore(root string) (*Store, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("evict: resolving root %s: %w", root, err)
	}
	return &Store{root: absRoot}, nil
}

// Save writes content under <root>/<threadID>/<contentHash16>.bin and
// returns the pointer (the file's path). Fails with ErrPathEscape if the
// resolved path would not remain under the thread's directory.
func (s *Store) Save(ctx context.Context, threadID, content string) (string, error) {
	_, span := tracer.Start(ctx, "evict.save")
	defer span.End()
	span.SetAttributes(attribute.String("evict.thread_id", threadID), attribute.Int("evict.size", len(content)))

	threadDir := filepath.Join(s.root, threadID)
	if err := os.MkdirAll(threadDir, 0o700); err != nil {
		return "", fmt.Errorf("evict: creating thread dir: %w", err)
	}

	sum := sha256.Sum256([]byte(content))
	hash16 := hex.EncodeToString(sum[:])[:16]
	path := filepath.Join(threadDir, hash16+".bin")

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("evict: resolving path: %w", err)
	}
	if !s.isUnderThreadDir(threadDir, absPath) {
		return "", ErrPathEscape
	}

	if err := os.WriteFile(absPath, []byte(content), 0o600); err != nil {
		return "", fmt.Errorf("evict: writing %s: %w", absPath, err)
	}
	return absPath, nil
}

// Load reverses Save under the same sandbox check.
func (s *Store) Load(ctx context.Context, threadID, pointer string) (string, error) {
	_, span := tracer.Start(ctx, "evict.load")
	defer span.End()
	span.SetAttributes(attribute.String("evict.thread_id", threadID))

	threadDir := filepath.Join(s.root, threadID)
	absPath, err := filepath.Abs(pointer)
	if err != nil {
		return "", fmt.Errorf("evict: resolving pointer: %w", err)
	}
	if !s.isUnderThreadDir(threadDir, absPath) {
		return "", ErrPathEscape
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return "", fmt.Errorf("evict: reading %s: %w", absPath, err)
	}
	return string(data), nil
}

func (s *Store) isUnderThreadDir(threadDir, absPath string) bool {
	threadDir = filepath.Clean(threadDir)
	absPath = filepath.Clean(absPath)
	return strings.HasPrefix(absPath, threadDir+string(filepath.Separator))
}

// GC removes eviction files older than maxAge across all threads,
// scheduled via this package's cron adapter.
func (s *Store) GC(ctx context.Context, maxAge time.Duration) (removed int, err error) {
	_, span := tracer.Start(ctx, "evict.gc")
	defer span.End()

	cutoff := time.Now().Add(-maxAge)
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("evict: reading root %s: %w", s.root, err)
	}

	for _, threadEntry := range entries {
		if !threadEntry.IsDir() {
			continue
		}
		threadDir := filepath.Join(s.root, threadEntry.Name())
		files, err := os.ReadDir(threadDir)
		if err != nil {
			continue
		}
		for _, f := range files {
			info, err := f.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				if err := os.Remove(filepath.Join(threadDir, f.Name())); err == nil {
					removed++
				}
			}
		}
	}

	span.SetAttributes(attribute.Int("evict.gc_removed", removed))
	return removed, nil
}

// Package audit implements the Audit Log: an append-only,
// newline-delimited JSON log, hash-chained for tamper evidence. Each entry
// carries the SHA-256 of the previous entry's canonical JSON, so any
// tampering with an earlier record breaks every hash that follows it.
package audit

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// GenesisHash is the prev_hash value for the first entry in a log.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Kind enumerates the event kinds the Graph Runtime emits.
type Kind string

const (
	KindToolRiskEval    Kind = "tool_risk_eval"
	KindHoneypotTrigger Kind = "honeypot_trigger"
	KindApprovalGranted Kind = "approval_granted"
	KindApprovalDenied  Kind = "approval_denied"
	KindIntegrityFail   Kind = "integrity_mismatch"
	KindNodeTransition  Kind = "node_transition"
	KindToolExecuted    Kind = "tool_executed"
)

// Entry is one audit log record. Extra carries kind-specific detail
// (e.g. DLP finding counts, step index).
type Entry struct {
	TS         float64        `json:"ts"`
	ThreadID   string         `json:"thread_id"`
	UserID     string         `json:"user_id"`
	Kind       Kind           `json:"kind"`
	ToolName   string         `json:"tool_name,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ArgsHash   string         `json:"args_hash,omitempty"`
	Decision   string         `json:"decision,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Severity   string         `json:"severity,omitempty"`
	Extra      map[string]any `json:"extra,omitempty"`

	PrevHash      string `json:"prev_hash"`
	IntegrityHash string `json:"integrity_hash"`
}

// criticalReasons force severity: critical regardless of caller input — a
// honeytoken trigger or blocked-secret egress always marks its entry
// critical.
var criticalReasons = map[string]bool{
	"HONEYTOKEN_TRIGGERED": true,
	"DLP_SECRET_EGRESS":    true,
}

// Logger appends hash-chained entries to a JSONL file. Safe for concurrent
// use; writes are serialized and flushed on every append.
type Logger struct {
	mu       sync.Mutex
	f        *os.File
	w        *bufio.Writer
	lastHash string
	nowFn    func() float64
}

// Open opens (or creates) the audit log at path and recovers the hash
// chain tail from the last line.
func Open(path string) (*Logger, error) {
	lastHash, err := readLastHash(path)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: opening log %s: %w", path, err)
	}

	return &Logger{
		f:        f,
		w:        bufio.NewWriter(f),
		lastHash: lastHash,
	}, nil
}

func readLastHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return GenesisHash, nil
		}
		return "", fmt.Errorf("audit: reading log %s: %w", path, err)
	}
	if len(data) == 0 {
		return GenesisHash, nil
	}

	var lastLine []byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			if i > start {
				lastLine = data[start:i]
			}
			start = i + 1
		}
	}
	if start < len(data) {
		lastLine = data[start:]
	}
	if len(lastLine) == 0 {
		return GenesisHash, nil
	}

	var entry Entry
	if err := json.Unmarshal(lastLine, &entry); err != nil || entry.IntegrityHash == "" {
		return GenesisHash, nil
	}
	return entry.IntegrityHash, nil
}

// Close flushes and closes the underlying file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.w.Flush(); err != nil {
		return err
	}
	return l.f.Close()
}

// Log appends one entry to the chain. ts and the chain fields are computed
// here; callers never set them. The entry is flushed to disk before Log
// returns.
func (l *Logger) Log(ts float64, entry Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.TS = ts
	entry.PrevHash = l.lastHash
	entry.IntegrityHash = ""
	if criticalReasons[entry.Reason] {
		entry.Severity = "critical"
	}

	canonical, err := canonicalJSON(entry)
	if err != nil {
		return fmt.Errorf("audit: canonicalizing entry: %w", err)
	}
	sum := sha256.Sum256(canonical)
	entry.IntegrityHash = hex.EncodeToString(sum[:])

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit: marshaling entry: %w", err)
	}
	if _, err := l.w.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: writing entry: %w", err)
	}
	if err := l.w.Flush(); err != nil {
		return fmt.Errorf("audit: flushing entry: %w", err)
	}

	l.lastHash = entry.IntegrityHash
	return nil
}

// canonicalJSON produces a deterministic encoding of the entry with
// integrity_hash fixed at "". encoding/json already sorts map keys; struct
// field order is fixed by the type, so marshaling the struct directly is
// sufficient here and requires no separate canonicalizer dependency.
func canonicalJSON(entry Entry) ([]byte, error) {
	return json.Marshal(entry)
}

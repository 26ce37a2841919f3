package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_GenesisHashOnFirstEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Log(1000, Entry{ThreadID: "t1", UserID: "u1", Kind: KindNodeTransition}))

	entries := readEntries(t, path)
	require.Len(t, entries, 1)
	assert.Equal(t, GenesisHash, entries[0].PrevHash)
	assert.NotEmpty(t, entries[0].IntegrityHash)
}

func TestLog_ChainsAcrossEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Log(1000, Entry{ThreadID: "t1", Kind: KindNodeTransition}))
	require.NoError(t, l.Log(1001, Entry{ThreadID: "t1", Kind: KindToolRiskEval}))

	entries := readEntries(t, path)
	require.Len(t, entries, 2)
	assert.Equal(t, entries[0].IntegrityHash, entries[1].PrevHash)
	assert.NotEqual(t, entries[0].IntegrityHash, entries[1].IntegrityHash)
}

func TestLog_RecoversChainTailAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l1.Log(1000, Entry{ThreadID: "t1", Kind: KindNodeTransition}))
	require.NoError(t, l1.Close())

	l2, err := Open(path)
	require.NoError(t, err)
	defer l2.Close()
	require.NoError(t, l2.Log(1001, Entry{ThreadID: "t1", Kind: KindToolRiskEval}))

	entries := readEntries(t, path)
	require.Len(t, entries, 2)
	assert.Equal(t, entries[0].IntegrityHash, entries[1].PrevHash)
}

func TestLog_HoneytokenReasonMarksCriticalSeverity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Log(1000, Entry{
		ThreadID: "t1", Kind: KindHoneypotTrigger, Reason: "HONEYTOKEN_TRIGGERED",
	}))

	entries := readEntries(t, path)
	require.Len(t, entries, 1)
	assert.Equal(t, "critical", entries[0].Severity)
}

func TestLog_RoutineEntryHasNoSeverity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Log(1000, Entry{ThreadID: "t1", Kind: KindToolRiskEval, Reason: "TOOL_TIER"}))

	entries := readEntries(t, path)
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].Severity)
}

func readEntries(t *testing.T, path string) []Entry {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Entry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		entries = append(entries, e)
	}
	require.NoError(t, sc.Err())
	return entries
}

package graph

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// randomID returns n*2 url-safe hex characters, used for approval_id — the
// user-visible APROBAR/RECHAZAR wire format echoes the id back, so it is
// pinned to plain hex rather than delegated to a library with its own
// format.
func randomID(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing is a platform-level emergency; the runtime
		// has no well-defined failed-step representation for it.
		panic("graph: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// newToolCallID mints the idempotency key for a ProposedTool. Unlike
// approval_id there is no fixed-format requirement for tool_call_id, so
// this uses a prefixed, truncated google/uuid correlation-ID idiom instead
// of reaching for plain hex a second time.
func newToolCallID() string {
	return "tc_" + uuid.New().String()[:12]
}

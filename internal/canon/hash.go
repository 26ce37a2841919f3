package canon

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash returns the SHA-256 hex digest of a canonical string (UTF-8 bytes).
func Hash(canonicalArgs string) string {
	sum := sha256.Sum256([]byte(canonicalArgs))
	return hex.EncodeToString(sum[:])
}

// CanonicalizeAndHash is the combined operation the runtime performs on
// every ProposedTool: canonicalize args, then hash the result. It never
// trusts a caller-supplied canonical form or hash.
func CanonicalizeAndHash(args map[string]any) (canonicalArgs, argsHash string, err error) {
	canonicalArgs, err = Canonicalize(args)
	if err != nil {
		return "", "", err
	}
	return canonicalArgs, Hash(canonicalArgs), nil
}

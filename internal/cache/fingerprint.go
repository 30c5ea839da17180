package cache

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint derives a deterministic cache key from request parameters.
// The namespace stays readable as a prefix so that a whole family of keys
// can be dropped with InvalidatePrefix(namespace + ":").
func Fingerprint(namespace string, parts ...interface{}) string {
	payload, err := json.Marshal(parts)
	if err != nil {
		// Unmarshalable parts fall back to their printed form.
		payload = []byte(fmt.Sprintf("%#v", parts))
	}
	sum := blake2b.Sum256(payload)
	return namespace + ":" + hex.EncodeToString(sum[:])
}

// Namespace returns the prefix shared by every Fingerprint in namespace.
func Namespace(namespace string) string {
	return namespace + ":"
}

package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"go.aimuz.me/comictl/internal/types"
)

const keyPrefix = "cache_"

// GenerateKey derives the cache fingerprint for an image locator under the
// translation-affecting subset of settings. The result only contains
// [a-z0-9_] and is safe as a storage key.
func GenerateKey(locator string, s types.Settings) string {
	// Marshal of a flat string struct cannot fail.
	fields, _ := json.Marshal(s.Fingerprint())

	h := sha256.New()
	h.Write([]byte(locator))
	h.Write([]byte{0})
	h.Write(fields)
	return keyPrefix + hex.EncodeToString(h.Sum(nil))
}

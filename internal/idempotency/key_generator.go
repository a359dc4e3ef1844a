package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// UpdateKey builds the dedup key for one Telegram update. Telegram
// message IDs are unique per chat, so the pair identifies an update
// across redeliveries; the hash keeps key length independent of the
// numeric ranges.
func UpdateKey(chatID int64, messageID int) string {
	return GenerateKey("msg", chatID, messageID)
}

// GenerateKey builds a deterministic key from the given parts.
func GenerateKey(parts ...interface{}) string {
	h := sha256.New()
	for _, part := range parts {
		fmt.Fprintf(h, "%v:", part)
	}

	return hex.EncodeToString(h.Sum(nil))
}

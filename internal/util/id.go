package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a random identifier like "chat_9f2c..." with 128 bits of
// entropy. Entities that cross API boundaries use a prefix so log lines
// stay readable.
func NewID(prefix string) string {
	bytes := make([]byte, 16)
	_, _ = rand.Read(bytes)
	if prefix == "" {
		return hex.EncodeToString(bytes)
	}
	return prefix + "_" + hex.EncodeToString(bytes)
}

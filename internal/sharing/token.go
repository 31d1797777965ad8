// Package sharing mints and resolves the two access-grant mechanisms:
// bearer share links and directed, expiring invitations.
package sharing

import (
	"crypto/rand"
	"fmt"
)

// URL-safe alphabet for share tokens, same shape as the nanoid default.
const tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"

const tokenLength = 16

// NewShareToken returns a high-entropy opaque token. It carries no
// information about the chat or the clock.
func NewShareToken() string {
	buf := make([]byte, tokenLength)
	_, _ = rand.Read(buf)
	token := make([]byte, tokenLength)
	for i, b := range buf {
		token[i] = tokenAlphabet[int(b)%len(tokenAlphabet)]
	}
	return string(token)
}

// ShareLink embeds a token in the canonical share URL path.
func ShareLink(baseURL, chatID, token string) string {
	return fmt.Sprintf("%s/shared/%s/%s", baseURL, chatID, token)
}

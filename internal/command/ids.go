package command

import (
	"crypto/rand"
	"fmt"

	"github.com/mr-tron/base58/base58"
)

// NewID returns a prefixed random identifier, e.g. "cmd4f7...". Used for
// locally-minted artifacts (optimistic messages, sessions); server-issued
// ids always win over these.
func NewID(prefix string) (string, error) {
	raw := make([]byte, 12)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate id: %w", err)
	}
	return prefix + base58.Encode(raw), nil
}

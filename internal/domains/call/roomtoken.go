package call

import (
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

const roomTokenWords = 3

// NewRoomToken mints a human-readable room code from fresh entropy, e.g.
// "solar-hammer-ritual". The external room provider treats it as an opaque
// identifier; the word form exists so it can be read over the phone when
// signaling fails.
func NewRoomToken() (string, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return "", fmt.Errorf("room token entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("room token mnemonic: %w", err)
	}
	words := strings.Fields(mnemonic)
	if len(words) < roomTokenWords {
		return "", fmt.Errorf("room token mnemonic too short: %d words", len(words))
	}
	return strings.Join(words[:roomTokenWords], "-"), nil
}

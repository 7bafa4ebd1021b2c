package authkit

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

const opaqueTokenByteLength = 32

var opaqueRandomSource io.Reader = rand.Reader

// generateOpaqueToken returns a base64url string of fresh random bytes.
func generateOpaqueToken() (string, error) {
	randomBytes := make([]byte, opaqueTokenByteLength)
	if _, err := io.ReadFull(opaqueRandomSource, randomBytes); err != nil {
		return "", fmt.Errorf("oauth_state.random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(randomBytes), nil
}

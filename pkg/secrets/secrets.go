// Package secrets mints random bearer values.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// KeyBytes is the entropy of a capability key.
const KeyBytes = 32

// Generate creates a cryptographically secure random secret.
// Returns a base64url string suitable for capability keys.
func Generate() (string, error) {
	buf := make([]byte, KeyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("could not generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// LooksValid reports whether s has the shape of a key produced by Generate.
// It lets callers reject malformed keys before paying for key derivation.
func LooksValid(s string) bool {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	return err == nil && len(raw) == KeyBytes
}

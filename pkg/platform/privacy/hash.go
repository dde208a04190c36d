// Package privacy derives non-reversible fingerprints of request context so
// audit trails and consent records never hold raw network addresses.
package privacy

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mssola/useragent"

	"piiguard/pkg/requestcontext"
)

// Hasher computes keyed fingerprints of the requesting context.
type Hasher struct {
	key []byte
}

// NewHasher returns a Hasher keyed with key. An empty key is replaced with a
// random one, which makes fingerprints stable only for the process lifetime.
func NewHasher(key []byte) (*Hasher, error) {
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("could not generate context hash key: %w", err)
		}
	}
	return &Hasher{key: append([]byte(nil), key...)}, nil
}

// ContextHash fingerprints the client IP and a normalized User-Agent found in
// ctx. Two requests from the same address and browser family hash equally.
func (h *Hasher) ContextHash(ctx context.Context) string {
	return h.Hash(requestcontext.ClientIP(ctx), NormalizeUserAgent(requestcontext.UserAgent(ctx)))
}

// Hash returns hex(HMAC-SHA256(key, parts joined by '|')).
func (h *Hasher) Hash(parts ...string) string {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}

// NormalizeUserAgent reduces a User-Agent header to browser, major version and
// OS so minor browser updates do not change a fingerprint.
func NormalizeUserAgent(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "unknown"
	}
	ua := useragent.New(raw)
	if ua.Bot() {
		name, _ := ua.Browser()
		return "bot/" + strings.ToLower(name)
	}
	name, version := ua.Browser()
	if major, _, ok := strings.Cut(version, "."); ok {
		version = major
	}
	return strings.ToLower(fmt.Sprintf("%s/%s/%s", name, version, ua.OS()))
}

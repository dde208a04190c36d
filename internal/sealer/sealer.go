// Package sealer encrypts detected items under a key derived from a
// per-session secret. The secret itself is never stored.
package sealer

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"unicode/utf8"

	"golang.org/x/crypto/pbkdf2"

	"piiguard/internal/detector"
	dErrors "piiguard/pkg/domain-errors"
)

const (
	// AlgorithmAES256GCM identifies PBKDF2-SHA256 key derivation with AES-256-GCM.
	AlgorithmAES256GCM = "PBKDF2-SHA256/AES-256-GCM"

	MinIterations     = 100_000
	DefaultIterations = 600_000
	MaxIterations     = 10 * DefaultIterations

	SaltSize  = 16
	NonceSize = 12
	TagSize   = 16
	KeySize   = 32
)

// Record is a self-describing encrypted payload. Salt and nonce are fresh for
// every call to Seal.
type Record struct {
	Ciphertext []byte `json:"ciphertext"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Tag        []byte `json:"tag"`
	Algorithm  string `json:"algorithm"`
	Iterations int    `json:"iterations"`
}

// Sealer derives keys and performs authenticated encryption.
type Sealer struct {
	iterations int
	random     io.Reader
	logger     *slog.Logger
}

// Option configures a Sealer.
type Option func(*Sealer)

// WithIterations sets the PBKDF2 work factor, clamped to
// [MinIterations, MaxIterations].
func WithIterations(n int) Option {
	return func(s *Sealer) {
		s.iterations = min(max(n, MinIterations), MaxIterations)
	}
}

// WithRandom overrides the entropy source.
func WithRandom(r io.Reader) Option {
	return func(s *Sealer) {
		s.random = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sealer) {
		s.logger = logger
	}
}

// New returns a Sealer with DefaultIterations.
func New(opts ...Option) *Sealer {
	s := &Sealer{
		iterations: DefaultIterations,
		random:     rand.Reader,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Iterations reports the configured work factor.
func (s *Sealer) Iterations() int {
	return s.iterations
}

// SealItems serializes items and seals them. sessionID is bound as associated
// data so a record only opens for the session it was sealed for.
func (s *Sealer) SealItems(ctx context.Context, items []detector.Item, secret, sessionID string) (*Record, error) {
	for _, it := range items {
		if !utf8.ValidString(it.RawValue) {
			return nil, dErrors.New(dErrors.CodeEncryptionFailed, "item value is not valid UTF-8")
		}
	}
	plaintext, err := json.Marshal(items)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeEncryptionFailed, "failed to serialize items")
	}
	return s.Seal(ctx, plaintext, secret, sessionID)
}

// OpenItems reverses SealItems.
func (s *Sealer) OpenItems(ctx context.Context, rec *Record, secret, sessionID string) ([]detector.Item, error) {
	plaintext, err := s.Open(ctx, rec, secret, sessionID)
	if err != nil {
		return nil, err
	}
	var items []detector.Item
	if err := json.Unmarshal(plaintext, &items); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeDecryptionFailed, "failed to decode sealed items")
	}
	return items, nil
}

// Seal encrypts plaintext under a key derived from secret.
func (s *Sealer) Seal(_ context.Context, plaintext []byte, secret, sessionID string) (*Record, error) {
	if secret == "" {
		return nil, dErrors.New(dErrors.CodeEncryptionFailed, "secret is required")
	}
	salt := make([]byte, SaltSize)
	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(s.random, salt); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeEncryptionFailed, "failed to generate salt")
	}
	if _, err := io.ReadFull(s.random, nonce); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeEncryptionFailed, "failed to generate nonce")
	}

	aead, err := newAEAD(deriveKey(secret, salt, s.iterations))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeEncryptionFailed, "failed to initialise cipher")
	}
	sealed := aead.Seal(nil, nonce, plaintext, []byte(sessionID))
	split := len(sealed) - TagSize

	return &Record{
		Ciphertext: sealed[:split:split],
		Salt:       salt,
		Nonce:      nonce,
		Tag:        sealed[split:],
		Algorithm:  AlgorithmAES256GCM,
		Iterations: s.iterations,
	}, nil
}

// Open decrypts rec. Every failure, including a wrong secret or tampered
// record, is reported as CodeDecryptionFailed with no further detail.
func (s *Sealer) Open(_ context.Context, rec *Record, secret, sessionID string) ([]byte, error) {
	if err := rec.check(); err != nil {
		s.logFailure("malformed record", err)
		return nil, errDecryption
	}
	if secret == "" {
		return nil, errDecryption
	}
	aead, err := newAEAD(deriveKey(secret, rec.Salt, rec.Iterations))
	if err != nil {
		s.logFailure("cipher init failed", err)
		return nil, errDecryption
	}
	sealed := make([]byte, 0, len(rec.Ciphertext)+len(rec.Tag))
	sealed = append(sealed, rec.Ciphertext...)
	sealed = append(sealed, rec.Tag...)

	plaintext, err := aead.Open(nil, rec.Nonce, sealed, []byte(sessionID))
	if err != nil {
		return nil, errDecryption
	}
	return plaintext, nil
}

var errDecryption = dErrors.New(dErrors.CodeDecryptionFailed, "unable to decrypt record")

func (s *Sealer) logFailure(msg string, err error) {
	if s.logger != nil {
		s.logger.Warn("sealer: "+msg, "error", err)
	}
}

func (r *Record) check() error {
	switch {
	case r == nil:
		return fmt.Errorf("record is nil")
	case r.Algorithm != AlgorithmAES256GCM:
		return fmt.Errorf("unsupported algorithm %q", r.Algorithm)
	case len(r.Salt) != SaltSize:
		return fmt.Errorf("salt must be %d bytes", SaltSize)
	case len(r.Nonce) != NonceSize:
		return fmt.Errorf("nonce must be %d bytes", NonceSize)
	case len(r.Tag) != TagSize:
		return fmt.Errorf("tag must be %d bytes", TagSize)
	case r.Iterations < MinIterations:
		return fmt.Errorf("iterations below minimum")
	case r.Iterations > MaxIterations:
		return fmt.Errorf("iterations above maximum")
	}
	return nil
}

func deriveKey(secret string, salt []byte, iterations int) []byte {
	return pbkdf2.Key([]byte(secret), salt, iterations, KeySize, sha256.New)
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

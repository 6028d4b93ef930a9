package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Algorithm names accepted by NewHasher (PASSWORD_HASH).
const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
	AlgorithmSHA256   = "sha256"
)

// PasswordHasher turns a plaintext password into a storable credential hash
// and checks plaintexts against it.
//
// Verify returns nil on match, ErrPasswordMismatch on mismatch, and any other
// error when the stored hash cannot be parsed.
type PasswordHasher interface {
	Algorithm() string
	Hash(plaintext string) (string, error)
	Verify(hash, plaintext string) error
}

// ErrUnknownHashFormat is returned by FormatHasher.Verify when a stored hash
// matches none of the supported encodings.
var ErrUnknownHashFormat = errors.New("auth: unrecognised password hash format")

// NewHasher returns a FormatHasher whose new hashes use the named algorithm.
// bcryptCost is only used for AlgorithmBcrypt; 0 selects DefaultBcryptCost.
func NewHasher(algorithm string, bcryptCost int) (*FormatHasher, error) {
	if bcryptCost == 0 {
		bcryptCost = DefaultBcryptCost
	}
	bcryptHasher := NewPasswordServiceWithCost(bcryptCost)

	var primary PasswordHasher
	switch strings.ToLower(algorithm) {
	case "", AlgorithmBcrypt:
		primary = bcryptHasher
	case AlgorithmArgon2id:
		primary = NewArgon2idHasher()
	case AlgorithmSHA256:
		primary = SHA256Hasher{}
	default:
		return nil, fmt.Errorf("auth: unknown password hash algorithm %q", algorithm)
	}

	return &FormatHasher{
		primary: primary,
		bcrypt:  bcryptHasher,
		argon2:  NewArgon2idHasher(),
	}, nil
}

// FormatHasher hashes with one configured algorithm but verifies whatever
// encoding the stored hash is in:
//
//	$2a$ / $2b$ / $2y$ ...  → bcrypt
//	$argon2id$...           → argon2id
//	64 hex characters       → legacy sha256
//
// A store can therefore hold accounts written under different settings, and
// switching PASSWORD_HASH only affects hashes written from then on.
type FormatHasher struct {
	primary PasswordHasher
	bcrypt  *PasswordService
	argon2  *Argon2idHasher
}

var _ PasswordHasher = (*FormatHasher)(nil)

// Algorithm names the algorithm used for new hashes.
func (h *FormatHasher) Algorithm() string { return h.primary.Algorithm() }

// Primary returns the hasher used for new hashes.
func (h *FormatHasher) Primary() PasswordHasher { return h.primary }

func (h *FormatHasher) Hash(plaintext string) (string, error) {
	return h.primary.Hash(plaintext)
}

func (h *FormatHasher) Verify(hash, plaintext string) error {
	switch {
	case strings.HasPrefix(hash, "$2"):
		return h.bcrypt.Verify(hash, plaintext)
	case strings.HasPrefix(hash, "$"+AlgorithmArgon2id+"$"):
		return h.argon2.Verify(hash, plaintext)
	case isHexDigest(hash):
		return SHA256Hasher{}.Verify(hash, plaintext)
	default:
		return ErrUnknownHashFormat
	}
}

func isHexDigest(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

// argon2id parameters (OWASP recommendation).
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024 // KiB
	argon2Threads = 4
	argon2SaltLen = 16
	argon2KeyLen  = 32
)

// Argon2idHasher implements PasswordHasher with argon2id, encoded as a PHC
// string: $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
//
// Verify reads the parameters back out of the stored string, so hashes
// written with older parameters keep verifying after the constants change.
type Argon2idHasher struct{}

var _ PasswordHasher = (*Argon2idHasher)(nil)

func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{}
}

func (h *Argon2idHasher) Algorithm() string { return AlgorithmArgon2id }

func (h *Argon2idHasher) Hash(plaintext string) (string, error) {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(plaintext), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argon2Memory,
		argon2Time,
		argon2Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func (h *Argon2idHasher) Verify(encoded, plaintext string) error {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != AlgorithmArgon2id {
		return fmt.Errorf("auth: invalid argon2id hash format")
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return fmt.Errorf("auth: parsing argon2id version: %w", err)
	}
	if version != argon2.Version {
		return fmt.Errorf("auth: unsupported argon2id version %d", version)
	}

	var memory, iterations uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return fmt.Errorf("auth: parsing argon2id parameters: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("auth: decoding argon2id salt: %w", err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return fmt.Errorf("auth: decoding argon2id key: %w", err)
	}
	if len(want) == 0 {
		return fmt.Errorf("auth: empty argon2id key")
	}

	got := argon2.IDKey([]byte(plaintext), salt, iterations, memory, threads, uint32(len(want)))
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return ErrPasswordMismatch
	}
	return nil
}

// SHA256Hasher is the legacy scheme: unsalted SHA-256 rendered as 64
// lowercase hex characters. FormatHasher uses it to verify imported
// accounts; selecting it for new hashes is possible but not advised.
type SHA256Hasher struct{}

var _ PasswordHasher = SHA256Hasher{}

func (SHA256Hasher) Algorithm() string { return AlgorithmSHA256 }

func (SHA256Hasher) Hash(plaintext string) (string, error) {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:]), nil
}

func (h SHA256Hasher) Verify(hash, plaintext string) error {
	if len(hash) != sha256.Size*2 {
		return fmt.Errorf("auth: invalid sha256 hash length %d", len(hash))
	}
	got, _ := h.Hash(plaintext)
	if subtle.ConstantTimeCompare([]byte(got), []byte(strings.ToLower(hash))) != 1 {
		return ErrPasswordMismatch
	}
	return nil
}

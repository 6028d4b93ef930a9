// WHY BCRYPT BY DEFAULT?
// bcrypt is deliberately slow and salts every hash, so a leaked accounts
// file cannot be reversed with a lookup table. argon2id (hasher.go) is the
// memory-hard alternative; sha256 exists only to read credentials written by
// the old digest-based scheme.
//
// Hash format (the full output of bcrypt.GenerateFromPassword):
//
//	$2a$12$<22-char salt><31-char hash>
//	 ^   ^
//	 |   cost (12 rounds → 2^12 = 4096 iterations)
//	 version

package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the bcrypt work factor used when none is configured.
// Roughly 250ms per hash on current hardware.
const DefaultBcryptCost = 12

// maxBcryptPassword is bcrypt's input limit. Longer input is silently
// truncated by the algorithm, so Hash rejects it instead.
const maxBcryptPassword = 72

var (
	// ErrPasswordMismatch is returned by every PasswordHasher.Verify when the
	// plaintext does not match. Any other Verify error means the stored hash
	// itself is unusable.
	ErrPasswordMismatch = errors.New("auth: invalid password")

	// ErrPasswordTooLong is returned by the bcrypt hasher for input over 72 bytes.
	ErrPasswordTooLong = errors.New("auth: password must be 72 bytes or fewer")
)

// PasswordService provides bcrypt hashing and verification.
//
// It's a struct (not free functions) so that the cost can be injected
// in tests; cost 4 makes tests run in milliseconds.
type PasswordService struct {
	cost int
}

var _ PasswordHasher = (*PasswordService)(nil)

// NewPasswordService creates a PasswordService with the default cost (12).
func NewPasswordService() *PasswordService {
	return &PasswordService{cost: DefaultBcryptCost}
}

// NewPasswordServiceWithCost creates a PasswordService with a custom cost.
// Values outside bcrypt's accepted range are clamped by the library.
//
// Tests in other packages pass bcrypt.MinCost (4). Do NOT use 4 in
// production.
func NewPasswordServiceWithCost(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// Algorithm implements PasswordHasher.
func (p *PasswordService) Algorithm() string { return AlgorithmBcrypt }

// Hash hashes the given plaintext password with bcrypt.
//
// The output is a self-contained string like:
//
//	$2a$12$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy
//
// Returns ErrPasswordTooLong if the plaintext exceeds 72 bytes.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > maxBcryptPassword {
		return "", ErrPasswordTooLong
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}

	return string(hashed), nil
}

// Verify checks whether a plaintext password matches a stored bcrypt hash.
//
// Returns nil on match and ErrPasswordMismatch on mismatch.
// bcrypt.CompareHashAndPassword compares in constant time.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}

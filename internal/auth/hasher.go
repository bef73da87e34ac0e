// Package auth holds the credential primitives: password hashing, bearer
// token signing and the per-request Principal.
package auth

import (
	"github.com/alexedwards/argon2id"
)

// PasswordHasher turns plaintext passwords into salted memory-hard hashes.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, hash string) bool
}

// Argon2Hasher implements PasswordHasher with argon2id PHC strings.
type Argon2Hasher struct {
	params *argon2id.Params
}

// NewArgon2Hasher returns a hasher using params, or argon2id.DefaultParams when nil.
func NewArgon2Hasher(params *argon2id.Params) *Argon2Hasher {
	if params == nil {
		params = argon2id.DefaultParams
	}
	return &Argon2Hasher{params: params}
}

// Hash salts and hashes plain. The encoded result carries its own parameters.
func (h *Argon2Hasher) Hash(plain string) (string, error) {
	return argon2id.CreateHash(plain, h.params)
}

// Verify compares in constant time. A malformed hash never matches.
func (h *Argon2Hasher) Verify(plain, hash string) (ok bool) {
	// argon2 panics on zero parameters decoded from a corrupt hash.
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	match, err := argon2id.ComparePasswordAndHash(plain, hash)
	if err != nil {
		return false
	}
	return match
}

// LowCostParams trade strength for speed. Only for tests and seed data.
var LowCostParams = &argon2id.Params{
	Memory:      8 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

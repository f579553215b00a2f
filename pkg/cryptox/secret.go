package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

var (
	ErrSecretMismatch = errors.New("cryptox: secret does not match")
	ErrInvalidHash    = errors.New("cryptox: invalid hash format")
)

// HashParams are the Argon2id cost parameters used for new hashes.
// Existing hashes carry their own parameters in the PHC string.
type HashParams struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	KeyLength   uint32
	SaltLength  int
}

// DefaultHashParams follows the OWASP minimum for argon2id (19 MiB, t=2, p=1).
var DefaultHashParams = HashParams{
	Memory:      19 * 1024,
	Iterations:  2,
	Parallelism: 1,
	KeyLength:   32,
	SaltLength:  16,
}

// SecretHasher hashes and verifies client secrets with Argon2id and an
// optional pepper that is never stored next to the hashes.
type SecretHasher struct {
	pepper []byte
	params HashParams

	// dummy is verified against when the caller has no real hash, so an
	// unknown client costs the same as a wrong secret.
	dummy string
}

// NewSecretHasher returns a hasher using DefaultHashParams.
func NewSecretHasher(pepper string) (*SecretHasher, error) {
	return NewSecretHasherWithParams(pepper, DefaultHashParams)
}

// NewSecretHasherWithParams is NewSecretHasher with explicit cost parameters.
func NewSecretHasherWithParams(pepper string, params HashParams) (*SecretHasher, error) {
	if params.Memory == 0 || params.Iterations == 0 || params.Parallelism == 0 {
		return nil, errors.New("cryptox: argon2 parameters must be positive")
	}
	if params.KeyLength == 0 {
		params.KeyLength = DefaultHashParams.KeyLength
	}
	if params.SaltLength <= 0 {
		params.SaltLength = DefaultHashParams.SaltLength
	}

	h := &SecretHasher{pepper: []byte(pepper), params: params}

	filler, err := GenerateToken(TokenSize128)
	if err != nil {
		return nil, err
	}
	if h.dummy, err = h.Hash(filler); err != nil {
		return nil, err
	}
	return h, nil
}

// Hash returns a PHC-format Argon2id string including salt and parameters.
func (h *SecretHasher) Hash(secret string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("cryptox: read salt: %w", err)
	}

	key := argon2.IDKey(h.peppered(secret), salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Iterations,
		h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify compares secret against a PHC hash in constant time.
func (h *SecretHasher) Verify(secret, encoded string) error {
	parts := strings.Split(encoded, "$")
	// ["", "argon2id", "v=19", "m=X,t=Y,p=Z", "salt", "hash"]
	if len(parts) != 6 || parts[1] != "argon2id" {
		return ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return ErrInvalidHash
	}

	var mem, iters uint32
	var par uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iters, &par); err != nil {
		return fmt.Errorf("%w: parameters: %v", ErrInvalidHash, err)
	}
	if mem == 0 || iters == 0 || par == 0 {
		return ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("%w: salt: %v", ErrInvalidHash, err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(want) == 0 {
		return ErrInvalidHash
	}

	got := argon2.IDKey(h.peppered(secret), salt, iters, mem, par, uint32(len(want))) // #nosec G115
	if subtle.ConstantTimeCompare(got, want) != 1 {
		return ErrSecretMismatch
	}
	return nil
}

// VerifyDummy burns one verification against a throwaway hash and always
// reports a mismatch.
func (h *SecretHasher) VerifyDummy(secret string) error {
	_ = h.Verify(secret, h.dummy)
	return ErrSecretMismatch
}

func (h *SecretHasher) peppered(secret string) []byte {
	b := make([]byte, 0, len(secret)+len(h.pepper))
	b = append(b, secret...)
	return append(b, h.pepper...)
}

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/plantdesk/plantdesk/internal/config"
	"golang.org/x/crypto/argon2"
)

// Hash schemes
const (
	SchemeStaticSHA256 = "sha256-static"
	SchemeArgon2id     = "argon2id"
)

const argon2Prefix = "$argon2id$"

// ErrInvalidHash is returned for a stored value no scheme can parse
var ErrInvalidHash = errors.New("invalid hash format")

// Argon2Params holds Argon2id parameters
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Hasher hashes and verifies account passwords.
//
// The sha256-static scheme is base64(SHA-256(salt + password)) with one salt
// for the whole installation; it is what existing account rows hold. Argon2id
// hashes carry their own salt and parameters and are recognised by prefix, so
// both can be verified side by side while accounts migrate.
type Hasher struct {
	scheme string
	salt   string
	params *Argon2Params
}

// NewHasher creates a Hasher from password configuration
func NewHasher(cfg config.PasswordConfig) *Hasher {
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = SchemeStaticSHA256
	}
	params := &Argon2Params{
		Memory:      cfg.Argon2Memory,
		Iterations:  cfg.Argon2Iterations,
		Parallelism: cfg.Argon2Parallelism,
		SaltLength:  16,
		KeyLength:   32,
	}
	if params.Memory == 0 {
		params.Memory = 64 * 1024
	}
	if params.Iterations == 0 {
		params.Iterations = 3
	}
	if params.Parallelism == 0 {
		params.Parallelism = 4
	}
	return &Hasher{scheme: scheme, salt: cfg.Salt, params: params}
}

// Scheme returns the scheme used for new hashes
func (h *Hasher) Scheme() string {
	return h.scheme
}

// Hash produces the stored form of password
func (h *Hasher) Hash(password string) (string, error) {
	if h.scheme == SchemeArgon2id {
		return hashArgon2(password, h.params)
	}
	return HashStatic(h.salt, password), nil
}

// Verify checks password against a stored hash of either scheme. An empty
// stored value never verifies.
func (h *Hasher) Verify(password, stored string) (bool, error) {
	if stored == "" {
		return false, nil
	}
	if strings.HasPrefix(stored, argon2Prefix) {
		return verifyArgon2(password, stored)
	}
	expected := HashStatic(h.salt, password)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(stored)) == 1, nil
}

// NeedsRehash reports whether stored was produced by a scheme other than the
// configured one
func (h *Hasher) NeedsRehash(stored string) bool {
	isArgon := strings.HasPrefix(stored, argon2Prefix)
	return isArgon != (h.scheme == SchemeArgon2id)
}

// HashStatic is the sha256-static scheme
func HashStatic(salt, password string) string {
	sum := sha256.Sum256([]byte(salt + password))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func hashArgon2(password string, params *Argon2Params) (string, error) {
	salt := make([]byte, params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, params.Memory, params.Iterations, params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

func verifyArgon2(password, encoded string) (bool, error) {
	params, salt, key, err := decodeArgon2(encoded)
	if err != nil {
		return false, err
	}
	other := argon2.IDKey([]byte(password), salt, params.Iterations, params.Memory, params.Parallelism, params.KeyLength)
	return subtle.ConstantTimeCompare(key, other) == 1, nil
}

// decodeArgon2 splits $argon2id$v=..$m=..,t=..,p=..$salt$key
func decodeArgon2(encoded string) (*Argon2Params, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: version: %v", ErrInvalidHash, err)
	}
	if version != argon2.Version {
		return nil, nil, nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidHash, version)
	}

	var params Argon2Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.Memory, &params.Iterations, &params.Parallelism); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: parameters: %v", ErrInvalidHash, err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: salt: %v", ErrInvalidHash, err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: key: %v", ErrInvalidHash, err)
	}
	params.SaltLength = uint32(len(salt))
	params.KeyLength = uint32(len(key))

	return &params, salt, key, nil
}

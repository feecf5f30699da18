package auth

import (
	"strings"
	"testing"

	"github.com/plantdesk/plantdesk/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticHasher() *Hasher {
	return NewHasher(config.PasswordConfig{Scheme: SchemeStaticSHA256, Salt: "factory-salt"})
}

func cheapArgonHasher() *Hasher {
	return NewHasher(config.PasswordConfig{
		Scheme:            SchemeArgon2id,
		Salt:              "factory-salt",
		Argon2Memory:      8 * 1024,
		Argon2Iterations:  1,
		Argon2Parallelism: 1,
	})
}

func TestHashStatic_KnownValue(t *testing.T) {
	// sha256("saltpassword") base64 encoded
	assert.Equal(t, "E2Ab2k6njlWge5iGbSvmvgdE44ZvE8AMgRyrYIoo8yI=", HashStatic("salt", "password"))
}

func TestHasher_StaticRoundTrip(t *testing.T) {
	h := staticHasher()
	for _, pw := range []string{"Secur3Pass", "with space", "ünïcødé-pässwörd", strings.Repeat("x", 128)} {
		hash, err := h.Hash(pw)
		require.NoError(t, err)
		assert.NotEqual(t, pw, hash)

		ok, err := h.Verify(pw, hash)
		require.NoError(t, err)
		assert.True(t, ok, pw)

		ok, err = h.Verify(pw+"!", hash)
		require.NoError(t, err)
		assert.False(t, ok, pw)
	}
}

func TestHasher_StaticIsDeterministic(t *testing.T) {
	h := staticHasher()
	a, _ := h.Hash("Secur3Pass")
	b, _ := h.Hash("Secur3Pass")
	assert.Equal(t, a, b)

	other := NewHasher(config.PasswordConfig{Salt: "another-salt"})
	c, _ := other.Hash("Secur3Pass")
	assert.NotEqual(t, a, c)
}

func TestHasher_Argon2RoundTrip(t *testing.T) {
	h := cheapArgonHasher()
	hash, err := h.Hash("Secur3Pass")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$"))

	ok, err := h.Verify("Secur3Pass", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("wrong-pass", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	again, _ := h.Hash("Secur3Pass")
	assert.NotEqual(t, hash, again, "argon2id hashes are individually salted")
}

func TestHasher_VerifiesBothSchemes(t *testing.T) {
	argonHash, err := cheapArgonHasher().Hash("Secur3Pass")
	require.NoError(t, err)
	staticHash, _ := staticHasher().Hash("Secur3Pass")

	h := staticHasher()
	ok, err := h.Verify("Secur3Pass", argonHash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cheapArgonHasher().Verify("Secur3Pass", staticHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestHasher_EmptyStoredNeverVerifies(t *testing.T) {
	ok, err := staticHasher().Verify("", "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasher_MalformedArgon2(t *testing.T) {
	_, err := staticHasher().Verify("pw", "$argon2id$v=19$garbage")
	assert.ErrorIs(t, err, ErrInvalidHash)

	_, err = staticHasher().Verify("pw", "$argon2id$v=18$m=1,t=1,p=1$AAAA$AAAA")
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestHasher_NeedsRehash(t *testing.T) {
	static := staticHasher()
	argon := cheapArgonHasher()
	staticHash, _ := static.Hash("pw")
	argonHash, _ := argon.Hash("pw")

	assert.False(t, static.NeedsRehash(staticHash))
	assert.True(t, static.NeedsRehash(argonHash))
	assert.True(t, argon.NeedsRehash(staticHash))
	assert.False(t, argon.NeedsRehash(argonHash))
}

func TestNewHasher_DefaultsScheme(t *testing.T) {
	h := NewHasher(config.PasswordConfig{Salt: "s"})
	assert.Equal(t, SchemeStaticSHA256, h.Scheme())
}

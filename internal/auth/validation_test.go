package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeUsername(t *testing.T) {
	assert.Equal(t, "alice", SanitizeUsername("  alice "))
	assert.Equal(t, "alice -- OR 1=1", SanitizeUsername(`alice'; -- OR "1"="1"`))
	assert.Equal(t, "bob", SanitizeUsername(`b\o;b'`))
}

func TestValidateCredentials(t *testing.T) {
	assert.NoError(t, ValidateCredentials("alice", "pw"))
	assert.ErrorIs(t, ValidateCredentials("", "pw"), ErrEmptyCredentials)
	assert.ErrorIs(t, ValidateCredentials("alice", "   "), ErrEmptyCredentials)
	assert.ErrorIs(t, ValidateCredentials("  ", ""), ErrEmptyCredentials)
}

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		valid    bool
	}{
		{"minimum length", "abc", true},
		{"maximum length", strings.Repeat("a", 50), true},
		{"underscore and digits", "line_op_07", true},
		{"too short", "ab", false},
		{"too long", strings.Repeat("a", 51), false},
		{"hyphen", "line-op", false},
		{"space", "line op", false},
		{"dot", "a.b.c", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.username)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidUsername)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, ValidatePassword("12345678", 0))
	assert.ErrorIs(t, ValidatePassword("1234567", 0), ErrPasswordTooShort)
	assert.ErrorIs(t, ValidatePassword("123456789", 10), ErrPasswordTooShort)
	assert.ErrorIs(t, ValidatePassword("1234567", 4), ErrPasswordTooShort, "floor of 8 applies")
	assert.NoError(t, ValidatePassword(strings.Repeat("p", 512), 8))
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail(""))
	assert.NoError(t, ValidateEmail("alice@plant.example"))
	assert.NoError(t, ValidateEmail("a.b+qa@sub.plant.co"))
	assert.ErrorIs(t, ValidateEmail("not-an-email"), ErrInvalidEmail)
	assert.ErrorIs(t, ValidateEmail("alice@plant"), ErrInvalidEmail)
	assert.ErrorIs(t, ValidateEmail("@plant.example"), ErrInvalidEmail)
}

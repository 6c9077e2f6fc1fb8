package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPasswordCost("pw1", bcrypt.MinCost)
	require.NoError(t, err)
	assert.NotEqual(t, "pw1", hash)

	assert.True(t, CheckPassword("pw1", hash))
	assert.False(t, CheckPassword("pw2", hash))
}

func TestHashPassword_SaltedPerCall(t *testing.T) {
	a, err := HashPasswordCost("same", bcrypt.MinCost)
	require.NoError(t, err)
	b, err := HashPasswordCost("same", bcrypt.MinCost)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestHashPassword_Empty(t *testing.T) {
	_, err := HashPassword("")
	assert.ErrorIs(t, err, ErrEmptyPassword)
}

func TestHashPasswordCost_FallsBackOnInvalidCost(t *testing.T) {
	hash, err := HashPasswordCost("pw", 0)
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, DefaultCost, cost)
}

func TestCheckPassword_EmptyInputs(t *testing.T) {
	assert.False(t, CheckPassword("", "$2a$04$abc"))
	assert.False(t, CheckPassword("pw", ""))
}

func TestGeneratePassword(t *testing.T) {
	pw, err := GeneratePassword(16)
	require.NoError(t, err)
	assert.Len(t, pw, 16)
	for _, c := range pw {
		assert.True(t, strings.ContainsRune(passwordAlphabet, c))
	}
}

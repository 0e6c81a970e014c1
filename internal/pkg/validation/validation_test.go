package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAccount(t *testing.T) {
	got, ok := NormalizeAccount("0x00000000000000000000000000000000004a3b5c")
	assert.True(t, ok)
	assert.True(t, strings.EqualFold("0x00000000000000000000000000000000004a3b5c", got))
	again, ok := NormalizeAccount(strings.ToLower(got))
	assert.True(t, ok)
	assert.Equal(t, got, again)

	_, ok = NormalizeAccount("0.0.12345")
	assert.False(t, ok)
	_, ok = NormalizeAccount("0x0000000000000000000000000000000000000000")
	assert.False(t, ok)
}

func TestIsValidEvidenceURI(t *testing.T) {
	assert.True(t, IsValidEvidenceURI("ipfs://bafkreigh2akiscaildc"))
	assert.True(t, IsValidEvidenceURI("https://gateway.pinata.cloud/ipfs/bafy"))
	assert.False(t, IsValidEvidenceURI("http://insecure.example.com/x"))
	assert.False(t, IsValidEvidenceURI("ipfs://"))
	assert.False(t, IsValidEvidenceURI(""))
}

func TestIsValidPassword(t *testing.T) {
	assert.True(t, IsValidPassword("green!leaf9"))
	assert.False(t, IsValidPassword("short1!"))
	assert.False(t, IsValidPassword("nodigits!!"))
}

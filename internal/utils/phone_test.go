package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePhoneAlreadyE164(t *testing.T) {
	normalized, err := NormalizePhone("+14155551234", "+1")
	require.NoError(t, err)
	assert.Equal(t, "+14155551234", normalized)
}

func TestNormalizePhoneAppliesDialingPrefix(t *testing.T) {
	normalized, err := NormalizePhone("4155551234", "+1")
	require.NoError(t, err)
	assert.Equal(t, "+14155551234", normalized)
}

func TestNormalizePhoneDefaultsToPlusOne(t *testing.T) {
	normalized, err := NormalizePhone("4155551234", "")
	require.NoError(t, err)
	assert.Equal(t, "+14155551234", normalized)
}

func TestNormalizePhoneStripsFormatting(t *testing.T) {
	normalized, err := NormalizePhone("+1 (415) 555-1234", "")
	require.NoError(t, err)
	assert.Equal(t, "+14155551234", normalized)
}

func TestNormalizePhoneRejectsGarbage(t *testing.T) {
	_, err := NormalizePhone("", "+1")
	assert.Error(t, err)

	_, err = NormalizePhone("12", "+1")
	assert.Error(t, err)

	_, err = NormalizePhone("not-a-number", "+1")
	assert.Error(t, err)
}

func TestIsValidPhone(t *testing.T) {
	assert.True(t, IsValidPhone("+14155551234", ""))
	assert.True(t, IsValidPhone("4155551234", "+1"))
	assert.False(t, IsValidPhone("12345", "+1"))
}

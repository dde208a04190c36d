package detector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChecksumValidators(t *testing.T) {
	t.Run("luhn", func(t *testing.T) {
		assert.True(t, luhnValid("4111 1111 1111 1111"))
		assert.True(t, luhnValid("5500-0000-0000-0004"))
		assert.False(t, luhnValid("4111 1111 1111 1112"))
		assert.False(t, luhnValid("1234"))
	})

	t.Run("iban", func(t *testing.T) {
		assert.True(t, ibanValid("GB82 WEST 1234 5698 7654 32"))
		assert.True(t, ibanValid("DE89370400440532013000"))
		assert.False(t, ibanValid("GB82 WEST 1234 5698 7654 33"))
		assert.False(t, ibanValid("GB82"))
	})

	t.Run("nhs", func(t *testing.T) {
		assert.True(t, nhsValid("943 476 5919"))
		assert.False(t, nhsValid("943 476 5918"))
		assert.False(t, nhsValid("12345"))
	})

	t.Run("ssn", func(t *testing.T) {
		assert.True(t, ssnValid("123-45-6789"))
		assert.False(t, ssnValid("000-45-6789"))
		assert.False(t, ssnValid("666-45-6789"))
		assert.False(t, ssnValid("912-45-6789"))
		assert.False(t, ssnValid("123-00-6789"))
		assert.False(t, ssnValid("123-45-0000"))
	})
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory(" Email ")
	assert.NoError(t, err)
	assert.Equal(t, CategoryEmail, c)

	_, err = ParseCategory("shoe_size")
	assert.Error(t, err)
}

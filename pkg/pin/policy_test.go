package pin

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsWeakRejectsRepeatedDigits(t *testing.T) {
	for d := '0'; d <= '9'; d++ {
		pin := strings.Repeat(string(d), Length)
		assert.True(t, IsWeak(pin), pin)
	}
}

func TestIsWeakPatterns(t *testing.T) {
	for _, pin := range []string{"123456", "654321", "123123", "112233", "121212", "012345", "543210", "987654", "456789"} {
		assert.True(t, IsWeak(pin), pin)
	}
	for _, pin := range []string{"048572", "111222", "000001", "135790"} {
		assert.False(t, IsWeak(pin), pin)
	}
}

func TestConfirm(t *testing.T) {
	assert.True(t, Confirm("048572", "048572"))
	assert.False(t, Confirm("048572", "048573"))
	assert.False(t, Confirm("048572", " 048572"))
}

func TestValidateShape(t *testing.T) {
	assert.NoError(t, ValidateShape("048572"))
	assert.ErrorIs(t, ValidateShape("04857"), ErrInvalidPinShape)
	assert.ErrorIs(t, ValidateShape("0485721"), ErrInvalidPinShape)
	assert.ErrorIs(t, ValidateShape("04857a"), ErrInvalidPinShape)
	assert.ErrorIs(t, ValidateShape("٠١٢٣٤٥"), ErrInvalidPinShape)
	assert.ErrorIs(t, ValidateShape(""), ErrInvalidPinShape)
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("048572"))
	assert.ErrorIs(t, Validate("000000"), ErrWeakPin)
	assert.ErrorIs(t, Validate("12"), ErrInvalidPinShape)
}

package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapAndInspect(t *testing.T) {
	base := errors.New("connection refused")
	err := Wrap(base, ErrCodeUnavailable, "device registry unreachable")

	assert.True(t, errors.Is(err, base))
	assert.True(t, IsCode(err, ErrCodeUnavailable))
	assert.Equal(t, http.StatusServiceUnavailable, err.HTTPStatusCode())

	wrapped := fmt.Errorf("register: %w", err)
	assert.Equal(t, ErrCodeUnavailable, GetCode(wrapped))
	assert.Equal(t, http.StatusServiceUnavailable, StatusOf(wrapped))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "nothing"))
}

func TestStatusMapping(t *testing.T) {
	cases := map[ErrorCode]int{
		ErrCodePinWeak:            http.StatusBadRequest,
		ErrCodePinIncorrect:       http.StatusUnauthorized,
		ErrCodeDeviceBlocked:      http.StatusForbidden,
		ErrCodePinExists:          http.StatusConflict,
		ErrCodeFlowBusy:           http.StatusConflict,
		ErrCodeInvalidCredentials: http.StatusUnauthorized,
		ErrorCode("SOMETHING"):    http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, MapErrorCodeToHTTPStatus(code), string(code))
	}
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("plain")))
}

func TestErrorString(t *testing.T) {
	err := New(ErrCodePinMismatch, "PINs do not match").WithDetail("step", "confirm")
	assert.Equal(t, "[PIN_MISMATCH] PINs do not match", err.Error())
	assert.Equal(t, "confirm", err.Details["step"])
}

package pin

import (
	"fmt"

	hriserrors "github.com/tendant/simple-hris/pkg/errors"
)

// Length is the number of digits in a PIN.
const Length = 6

var (
	ErrInvalidPinShape = hriserrors.New(hriserrors.ErrCodePinInvalid, "PIN must be exactly 6 digits")
	ErrWeakPin         = hriserrors.New(hriserrors.ErrCodePinWeak, "PIN is too easy to guess")
	ErrPinMismatch     = hriserrors.New(hriserrors.ErrCodePinMismatch, "PIN confirmation does not match")
)

// denyList holds every all-same-digit code plus common patterns.
var denyList = func() map[string]struct{} {
	m := map[string]struct{}{
		"123456": {},
		"654321": {},
		"123123": {},
		"112233": {},
		"121212": {},
		"012345": {},
		"543210": {},
		"987654": {},
		"456789": {},
	}
	for d := byte('0'); d <= '9'; d++ {
		b := make([]byte, Length)
		for i := range b {
			b[i] = d
		}
		m[string(b)] = struct{}{}
	}
	return m
}()

// IsWeak reports whether pin is on the deny-list. It is an exact match; shape
// is checked separately by ValidateShape.
func IsWeak(pin string) bool {
	_, denied := denyList[pin]
	return denied
}

// Confirm reports whether the confirmation equals the PIN exactly.
func Confirm(pin, confirm string) bool {
	return pin == confirm
}

// ValidateShape returns ErrInvalidPinShape unless pin is exactly Length ASCII digits.
func ValidateShape(pin string) error {
	if len(pin) != Length {
		return fmt.Errorf("%w: got %d characters", ErrInvalidPinShape, len(pin))
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return ErrInvalidPinShape
		}
	}
	return nil
}

// Validate checks shape then strength, as done before a PIN is stored.
func Validate(pin string) error {
	if err := ValidateShape(pin); err != nil {
		return err
	}
	if IsWeak(pin) {
		return ErrWeakPin
	}
	return nil
}

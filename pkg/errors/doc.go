// Package errors provides structured error handling with error codes for simple-hris.
//
// Every service in the device/PIN security layer reports failures with a typed
// code so HTTP handlers can map them to status codes without string matching.
//
// # Basic Usage
//
//	import hriserrors "github.com/tendant/simple-hris/pkg/errors"
//
//	err := hriserrors.New(hriserrors.ErrCodePinWeak, "PIN is too easy to guess")
//	err := hriserrors.Wrap(dbErr, hriserrors.ErrCodeInternal, "failed to load device")
//
// # Inspection
//
//	if hriserrors.IsCode(err, hriserrors.ErrCodeDeviceBlocked) {
//		// force sign-out
//	}
//	status := hriserrors.StatusOf(err)
package errors

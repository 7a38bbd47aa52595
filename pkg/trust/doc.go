// Package trust holds the client-side trust markers of the login flow and the
// server-side record that makes them enforceable.
//
// Two markers are written to the browser:
//
//   - device_id: the device was registered from this browser (about a year)
//   - pin_verified: the PIN was verified recently (about a day)
//
// The markers are hints. A client can forge or delete them, so Guard only
// admits a request when the VerificationCache holds a live record for the
// (account, fingerprint) pair and the device is not blocked.
package trust

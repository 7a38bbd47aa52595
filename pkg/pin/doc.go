// Package pin manages the per-account numeric PIN used as a second factor
// after password login.
//
// A PIN is exactly six ASCII digits. It is stored only as an argon2id hash;
// an account has zero or one PIN. Policy checks reject codes on a fixed
// deny-list of trivially guessable values. Verification never counts
// failures: lockout is the caller's decision.
package pin

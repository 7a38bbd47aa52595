// Package account is the credential backend the login flow authenticates
// against: email and password accounts, the forced first-login password
// change, and the roles used for permission checks.
package account

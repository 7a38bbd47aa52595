// Package session issues the signed session token handed out when the login
// flow completes and revokes it on sign-out.
//
// Tokens are HS256 JWTs carrying the account id (sub), a token id (jti), the
// email, the roles and the fingerprint of the device the PIN was verified on.
// They are delivered in the access_token cookie and verified with jwtauth.
package session

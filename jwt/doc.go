// Package jwt issues and validates the stateless bearer tokens used for API
// authentication. Tokens carry the username as subject and an absolute
// expiry, and are signed with HS256 under a server secret.
//
// There is no revocation list. Callers that need revocable authentication
// use server-side sessions instead.
package jwt

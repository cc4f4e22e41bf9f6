// Package security provides helpers for keeping credentials out of logs,
// envelopes, and error messages.
package security

import "strings"

// MaskToken masks a bearer token for safe display.
// Long tokens keep the first 4 and last 2 characters; anything 8 characters
// or shorter is fully masked. Empty tokens return empty string.
func MaskToken(token string) string {
	if len(token) == 0 {
		return ""
	}
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-2:]
}

// MaskPassword masks a password for safe display.
// Passwords are never partially shown; any non-empty value becomes "****".
func MaskPassword(password string) string {
	if len(password) == 0 {
		return ""
	}
	return "****"
}

// MaskEmail masks the local part of an email address while keeping the
// domain readable. "user@example.com" becomes "u***@example.com".
// Values without an @ are masked like tokens.
func MaskEmail(email string) string {
	if len(email) == 0 {
		return ""
	}
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return MaskToken(email)
	}
	return email[:1] + "***@" + email[at+1:]
}

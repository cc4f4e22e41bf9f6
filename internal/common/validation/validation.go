// Package validation provides input validation helpers shared by the
// command surface: addresses, origins, limits, and local file paths.
package validation

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// ValidateEmail performs basic email format validation.
// Checks for the presence of @ and non-empty local and domain parts.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if !strings.Contains(email, "@") {
		return fmt.Errorf("invalid email format: %s (missing @)", email)
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

// ValidateEmails validates a slice of email addresses.
// Returns an error naming the field if any address is invalid.
func ValidateEmails(emails []string, fieldName string) error {
	for _, email := range emails {
		if err := ValidateEmail(email); err != nil {
			return fmt.Errorf("%s contains invalid email: %w", fieldName, err)
		}
	}
	return nil
}

// ValidateOrigin validates a server origin URL. The origin must be an
// absolute http(s) URL with a host and no path, query, or fragment.
func ValidateOrigin(origin string) error {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return fmt.Errorf("origin cannot be empty")
	}
	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("origin must use http or https (got %q)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("origin is missing a host: %s", origin)
	}
	if u.Path != "" && u.Path != "/" {
		return fmt.Errorf("origin must not contain a path (got %q); use a session URL instead", u.Path)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("origin must not contain a query or fragment: %s", origin)
	}
	return nil
}

// ValidateSessionURL validates an explicit session document URL.
func ValidateSessionURL(sessionURL string) error {
	sessionURL = strings.TrimSpace(sessionURL)
	if sessionURL == "" {
		return fmt.Errorf("session URL cannot be empty")
	}
	u, err := url.Parse(sessionURL)
	if err != nil {
		return fmt.Errorf("invalid session URL: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("session URL must use http or https (got %q)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("session URL is missing a host: %s", sessionURL)
	}
	return nil
}

// MaxLimit is the largest page size accepted for query and changes calls.
const MaxLimit = 500

// ClampLimit validates a page limit. Non-positive limits are an error;
// limits above MaxLimit are clamped, with clamped reporting the adjustment.
func ClampLimit(limit int) (value int, clamped bool, err error) {
	if limit <= 0 {
		return 0, false, fmt.Errorf("limit must be positive (got %d)", limit)
	}
	if limit > MaxLimit {
		return MaxLimit, true, nil
	}
	return limit, false, nil
}

// ValidateFilePath validates a local file path for reading.
// Rejects directory traversal in relative paths and verifies the target
// exists and is a regular file.
func ValidateFilePath(path, fieldName string) error {
	if path == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}

	cleanPath := filepath.Clean(path)
	if !filepath.IsAbs(path) && strings.Contains(cleanPath, "..") {
		return fmt.Errorf("%s: path contains directory traversal (..) which is not allowed", fieldName)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%s: file not found: %s", fieldName, path)
		}
		if os.IsPermission(err) {
			return fmt.Errorf("%s: permission denied: %s", fieldName, path)
		}
		return fmt.Errorf("%s: cannot access file: %w", fieldName, err)
	}
	if !fileInfo.Mode().IsRegular() {
		return fmt.Errorf("%s: not a regular file (is it a directory?): %s", fieldName, path)
	}
	return nil
}

// ValidateAccountName validates a config account name.
// Names are non-empty and restricted to letters, digits, dot, dash, and
// underscore so they stay safe in file paths and env-var lookups.
func ValidateAccountName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("account name cannot be empty")
	}
	for _, ch := range name {
		if !((ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') ||
			(ch >= '0' && ch <= '9') || ch == '.' || ch == '-' || ch == '_') {
			return fmt.Errorf("account name contains invalid character: %c", ch)
		}
	}
	return nil
}

// Package protocol provides JMAP session management utilities.
package protocol

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// WellKnownPath is the well-known path for JMAP autodiscovery.
const WellKnownPath = "/.well-known/jmap"

// DiscoveryURL returns the JMAP discovery URL for an origin.
func DiscoveryURL(origin string) string {
	// Ensure no trailing slash
	origin = strings.TrimSuffix(origin, "/")
	// Ensure https scheme
	if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
		origin = "https://" + origin
	}
	return origin + WellKnownPath
}

// ParseSession parses a JMAP session from JSON.
func ParseSession(data []byte) (*Session, error) {
	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to parse session: %w", err)
	}
	return &session, nil
}

// GetCapabilityNames returns the list of capability URIs.
func (s *Session) GetCapabilityNames() []string {
	var names []string
	for name := range s.Capabilities {
		names = append(names, name)
	}
	return names
}

// HasCapability checks if the server supports a capability.
func (s *Session) HasCapability(uri string) bool {
	_, ok := s.Capabilities[uri]
	return ok
}

// HasMailCapability checks if the server supports JMAP Mail.
func (s *Session) HasMailCapability() bool {
	return s.HasCapability(MailCapability)
}

// HasSubmissionCapability checks if the server supports JMAP Submission.
func (s *Session) HasSubmissionCapability() bool {
	return s.HasCapability(SubmissionCapability)
}

// GetPrimaryAccountId returns the primary account ID for a capability URI.
func (s *Session) GetPrimaryAccountId(uri string) (Id, bool) {
	id, ok := s.PrimaryAccounts[uri]
	return id, ok
}

// GetPrimaryMailAccountId returns the primary account ID for mail.
func (s *Session) GetPrimaryMailAccountId() (Id, bool) {
	return s.GetPrimaryAccountId(MailCapability)
}

// CoreCapabilityInfo contains parsed core capability information.
type CoreCapabilityInfo struct {
	MaxSizeUpload         int64    `json:"maxSizeUpload"`
	MaxConcurrentUpload   int      `json:"maxConcurrentUpload"`
	MaxSizeRequest        int64    `json:"maxSizeRequest"`
	MaxConcurrentRequests int      `json:"maxConcurrentRequests"`
	MaxCallsInRequest     int      `json:"maxCallsInRequest"`
	MaxObjectsInGet       int      `json:"maxObjectsInGet"`
	MaxObjectsInSet       int      `json:"maxObjectsInSet"`
	CollationAlgorithms   []string `json:"collationAlgorithms"`
}

// GetCoreCapability parses and returns the core capability information.
func (s *Session) GetCoreCapability() (*CoreCapabilityInfo, error) {
	raw, ok := s.Capabilities[CoreCapability]
	if !ok {
		return nil, fmt.Errorf("core capability not found")
	}
	var info CoreCapabilityInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("failed to parse core capability: %w", err)
	}
	return &info, nil
}

// ExpandDownloadURL expands the session's download URL template.
// The accountId and blobId tokens are substituted verbatim; name and type
// are percent-encoded. See RFC 8620 Section 6.2.
func (s *Session) ExpandDownloadURL(accountId, blobId Id, name, contentType string) string {
	expanded := s.DownloadURL
	expanded = strings.ReplaceAll(expanded, "{accountId}", string(accountId))
	expanded = strings.ReplaceAll(expanded, "{blobId}", string(blobId))
	expanded = strings.ReplaceAll(expanded, "{name}", url.PathEscape(name))
	expanded = strings.ReplaceAll(expanded, "{type}", url.PathEscape(contentType))
	return expanded
}

// ExpandUploadURL expands the session's upload URL template for an account.
func (s *Session) ExpandUploadURL(accountId Id) string {
	return strings.ReplaceAll(s.UploadURL, "{accountId}", string(accountId))
}

// Validate checks if the session has the required fields.
func (s *Session) Validate() error {
	if s.APIURL == "" {
		return fmt.Errorf("session missing apiUrl")
	}
	if len(s.Capabilities) == 0 {
		return fmt.Errorf("session missing capabilities")
	}
	if !s.HasCapability(CoreCapability) {
		return fmt.Errorf("session missing core capability")
	}
	return nil
}

// Summary returns a human-readable summary of the session.
func (s *Session) Summary() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Username: %s\n", s.Username))
	sb.WriteString(fmt.Sprintf("API URL: %s\n", s.APIURL))
	sb.WriteString(fmt.Sprintf("Accounts: %d\n", len(s.Accounts)))
	sb.WriteString(fmt.Sprintf("Capabilities: %s\n", strings.Join(s.GetCapabilityNames(), ", ")))
	return sb.String()
}

// Package jmap implements the RFC 8620 session client and the batched
// method-call builder used by every command handler.
package jmap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"xin/internal/common/logger"
	"xin/internal/common/version"
	"xin/internal/envelope"
	"xin/internal/jmap/protocol"
)

// AuthType selects how outbound requests are authenticated.
type AuthType string

const (
	AuthAuto   AuthType = ""
	AuthBearer AuthType = "bearer"
	AuthBasic  AuthType = "basic"
)

// Credentials carries a bearer token or a basic user/pass pair. The
// config resolver guarantees only one variant is populated.
type Credentials struct {
	Type  AuthType
	Token string
	User  string
	Pass  string
}

// Options configures a Client.
type Options struct {
	// Origin is the server base URL; the session is discovered at
	// <origin>/.well-known/jmap unless SessionURL overrides it.
	Origin     string
	SessionURL string

	Credentials Credentials

	// TrustedHosts extends the redirect allow-list (host-suffix
	// matched). The origin and session hosts are always trusted.
	TrustedHosts []string

	// RequestID is propagated as X-Request-Id when set.
	RequestID string

	Logger *slog.Logger
}

// Session fetches get a short deadline; API calls run on the caller's
// context alone.
const sessionFetchTimeout = 5 * time.Second

const maxRedirects = 10

// Client talks to one JMAP server. The session descriptor is fetched
// lazily and cached for the lifetime of the client. Client never
// retries; callers decide idempotence.
type Client struct {
	opts       Options
	httpClient *http.Client
	session    *protocol.Session
}

// NewClient creates a client. No network activity happens until the
// first call that needs the session.
func NewClient(opts Options) *Client {
	allowed := redirectAllowList(opts)
	return &Client{
		opts: opts,
		httpClient: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				host := req.URL.Hostname()
				if !hostAllowed(host, allowed) {
					return fmt.Errorf("redirect to untrusted host %q refused", host)
				}
				return nil
			},
		},
	}
}

func redirectAllowList(opts Options) []string {
	var hosts []string
	for _, raw := range []string{opts.Origin, opts.SessionURL} {
		if raw == "" {
			continue
		}
		if !strings.Contains(raw, "://") {
			raw = "https://" + raw
		}
		if u, err := url.Parse(raw); err == nil && u.Hostname() != "" {
			hosts = append(hosts, u.Hostname())
		}
	}
	return append(hosts, opts.TrustedHosts...)
}

func hostAllowed(host string, allowed []string) bool {
	host = strings.ToLower(host)
	for _, entry := range allowed {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if entry == "" {
			continue
		}
		if host == entry || strings.HasSuffix(host, "."+entry) {
			return true
		}
	}
	return false
}

// Discover fetches and validates the session descriptor.
func (c *Client) Discover(ctx context.Context) (*protocol.Session, error) {
	discoveryURL := c.opts.SessionURL
	if discoveryURL == "" {
		discoveryURL = protocol.DiscoveryURL(c.opts.Origin)
	}

	ctx, cancel := context.WithTimeout(ctx, sessionFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return nil, envelope.Configf("invalid session URL: %v", err)
	}
	req.Header.Set("Accept", "application/json")
	c.setHeaders(req)

	logger.Debug(c.opts.Logger, "fetching session", "url", discoveryURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, envelope.HTTPErr(0, "session discovery failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, envelope.HTTPErr(resp.StatusCode, "session discovery returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, envelope.HTTPErr(0, "reading session response: %v", err)
	}

	session, err := protocol.ParseSession(data)
	if err != nil {
		return nil, envelope.JMAPErrf("malformed session document: %v", err)
	}
	if err := session.Validate(); err != nil {
		return nil, envelope.JMAPErrf("invalid session document: %v", err)
	}

	c.session = session
	return session, nil
}

// Session returns the cached session, discovering it first if needed.
func (c *Client) Session(ctx context.Context) (*protocol.Session, error) {
	if c.session != nil {
		return c.session, nil
	}
	return c.Discover(ctx)
}

// PrimaryAccount returns the primary mail account id.
func (c *Client) PrimaryAccount(ctx context.Context) (protocol.Id, error) {
	return c.PrimaryAccountFor(ctx, protocol.MailCapability)
}

// PrimaryAccountFor returns the primary account id for a capability
// URN, falling back to the mail account when the URN has no entry of
// its own (common for submission).
func (c *Client) PrimaryAccountFor(ctx context.Context, capabilityURN string) (protocol.Id, error) {
	session, err := c.Session(ctx)
	if err != nil {
		return "", err
	}
	if id, ok := session.GetPrimaryAccountId(capabilityURN); ok {
		return id, nil
	}
	if capabilityURN != protocol.MailCapability {
		if id, ok := session.GetPrimaryMailAccountId(); ok {
			return id, nil
		}
	}
	return "", envelope.JMAPErrf("session has no primary account for %s", capabilityURN)
}

// Call posts one batched request to the API endpoint.
func (c *Client) Call(ctx context.Context, request *protocol.Request) (*protocol.Response, error) {
	session, err := c.Session(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(request)
	if err != nil {
		return nil, envelope.JMAPErrf("marshaling request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, session.APIURL, bytes.NewReader(body))
	if err != nil {
		return nil, envelope.JMAPErrf("building api request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	c.setHeaders(req)

	logger.Debug(c.opts.Logger, "jmap call", "methods", len(request.MethodCalls), "url", session.APIURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, envelope.HTTPErr(0, "api request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, envelope.HTTPErr(resp.StatusCode, "reading api response: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, envelope.HTTPErr(resp.StatusCode, "api returned status %d", resp.StatusCode)
	}

	var response protocol.Response
	if err := json.Unmarshal(respBody, &response); err != nil {
		return nil, envelope.JMAPErrf("malformed api response: %v", err)
	}

	return &response, nil
}

// Upload posts raw blob bytes to the account-scoped upload URL.
func (c *Client) Upload(ctx context.Context, accountId protocol.Id, contentType string, data []byte) (*protocol.UploadResponse, error) {
	session, err := c.Session(ctx)
	if err != nil {
		return nil, err
	}
	uploadURL := session.ExpandUploadURL(accountId)
	if uploadURL == "" {
		return nil, envelope.JMAPErrf("session has no upload URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
	if err != nil {
		return nil, envelope.JMAPErrf("building upload request: %v", err)
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	c.setHeaders(req)

	logger.Debug(c.opts.Logger, "uploading blob", "bytes", len(data), "contentType", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, envelope.HTTPErr(0, "upload failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, envelope.HTTPErr(resp.StatusCode, "reading upload response: %v", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, envelope.HTTPErr(resp.StatusCode, "upload returned status %d", resp.StatusCode)
	}

	var uploaded protocol.UploadResponse
	if err := json.Unmarshal(respBody, &uploaded); err != nil {
		return nil, envelope.JMAPErrf("malformed upload response: %v", err)
	}

	return &uploaded, nil
}

// Download fetches a blob from the expanded download URL. The caller
// must close the returned body.
func (c *Client) Download(ctx context.Context, accountId, blobId protocol.Id, name, contentType string) (io.ReadCloser, error) {
	session, err := c.Session(ctx)
	if err != nil {
		return nil, err
	}
	downloadURL := session.ExpandDownloadURL(accountId, blobId, name, contentType)
	if downloadURL == "" {
		return nil, envelope.JMAPErrf("session has no download URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return nil, envelope.JMAPErrf("building download request: %v", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, envelope.HTTPErr(0, "download failed: %v", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, envelope.HTTPErr(resp.StatusCode, "download returned status %d", resp.StatusCode)
	}

	return resp.Body, nil
}

// setHeaders adds authentication, User-Agent, and request tracing
// headers. Auto-detection matches the config resolver's precedence:
// token wins over basic pair.
func (c *Client) setHeaders(req *http.Request) {
	creds := c.opts.Credentials
	switch creds.Type {
	case AuthBearer:
		if creds.Token != "" {
			req.Header.Set("Authorization", "Bearer "+creds.Token)
		}
	case AuthBasic:
		if creds.User != "" {
			req.SetBasicAuth(creds.User, creds.Pass)
		}
	default:
		if creds.Token != "" {
			req.Header.Set("Authorization", "Bearer "+creds.Token)
		} else if creds.User != "" {
			req.SetBasicAuth(creds.User, creds.Pass)
		}
	}
	req.Header.Set("User-Agent", version.UserAgent())
	if c.opts.RequestID != "" {
		req.Header.Set("X-Request-Id", c.opts.RequestID)
	}
}

// AuthMethod reports the method setHeaders will use, for config show.
func (c *Client) AuthMethod() string {
	creds := c.opts.Credentials
	switch creds.Type {
	case AuthBearer:
		return "bearer"
	case AuthBasic:
		return "basic"
	}
	if creds.Token != "" {
		return "bearer"
	}
	if creds.User != "" {
		return "basic"
	}
	return "none"
}

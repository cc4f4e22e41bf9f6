// Package jmaptest runs a scriptable in-process JMAP server for package
// tests. Tests install per-method handlers and then inspect the decoded
// requests the client sent.
package jmaptest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"xin/internal/jmap"
	"xin/internal/jmap/protocol"
)

// AccountId is the account the stub session advertises.
const AccountId = protocol.Id("A1")

// Token is the bearer token Options carries.
const Token = "jmaptest-token-0123456789"

// Handler produces response arguments for one decoded method call.
// The return value is marshaled as the arguments of a response tuple
// under the same method name and tag. Return a MethodError to emit a
// JMAP "error" tuple instead.
type Handler func(args json.RawMessage) any

// MethodError makes a handler answer with a method-level error tuple.
type MethodError struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Upload records one blob upload the server received.
type Upload struct {
	ContentType string
	Body        []byte
}

// Server is a fake JMAP endpoint: session document, API, upload and
// download URLs, all on one httptest listener.
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	handlers      map[string]Handler
	requests      []protocol.Request
	uploads       []Upload
	downloadPaths []string
	sessionHits   int

	// DownloadBody is what every download request returns.
	DownloadBody []byte
}

// NewServer starts the stub and registers its shutdown with t.
func NewServer(t *testing.T) *Server {
	t.Helper()
	s := &Server{
		handlers:     make(map[string]Handler),
		DownloadBody: []byte("attachment-bytes"),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/jmap", s.serveSession)
	mux.HandleFunc("/jmap/api", s.serveAPI)
	mux.HandleFunc("/jmap/upload/", s.serveUpload)
	mux.HandleFunc("/jmap/download/", s.serveDownload)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Handle installs h for method. Later calls replace earlier ones.
func (s *Server) Handle(method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// Respond installs a handler answering method with fixed arguments.
func (s *Server) Respond(method string, args any) {
	s.Handle(method, func(json.RawMessage) any { return args })
}

// Fail installs a handler answering method with an error tuple.
func (s *Server) Fail(method, errType, description string) {
	s.Respond(method, MethodError{Type: errType, Description: description})
}

// Options returns client options pointing at the stub with bearer auth.
func (s *Server) Options() jmap.Options {
	return jmap.Options{
		Origin:      s.URL,
		Credentials: jmap.Credentials{Token: Token},
	}
}

// Client returns a ready client wired to the stub.
func (s *Server) Client() *jmap.Client {
	return jmap.NewClient(s.Options())
}

// Requests returns the API request bodies received so far, decoded.
func (s *Server) Requests() []protocol.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// LastRequest returns the most recent API request, or nil.
func (s *Server) LastRequest() *protocol.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		return nil
	}
	req := s.requests[len(s.requests)-1]
	return &req
}

// APIHits reports how many API posts the server answered.
func (s *Server) APIHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Calls flattens every method call received so far, in wire order.
func (s *Server) Calls() []protocol.MethodCall {
	var out []protocol.MethodCall
	for _, req := range s.Requests() {
		out = append(out, req.MethodCalls...)
	}
	return out
}

// CallCount reports how many times method was invoked.
func (s *Server) CallCount(method string) int {
	n := 0
	for _, call := range s.Calls() {
		if call.Name == method {
			n++
		}
	}
	return n
}

// Uploads returns the blob uploads received so far.
func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Upload, len(s.uploads))
	copy(out, s.uploads)
	return out
}

// DownloadPaths returns the download URL paths requested so far.
func (s *Server) DownloadPaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.downloadPaths))
	copy(out, s.downloadPaths)
	return out
}

func (s *Server) serveSession(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.sessionHits++
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{
		"capabilities": {
			"urn:ietf:params:jmap:core": {"maxSizeUpload": 50000000, "maxObjectsInGet": 500},
			"urn:ietf:params:jmap:mail": {},
			"urn:ietf:params:jmap:submission": {}
		},
		"accounts": {%q: {"name": "user@example.com", "isPersonal": true}},
		"primaryAccounts": {"urn:ietf:params:jmap:mail": %q},
		"username": "user@example.com",
		"apiUrl": %q,
		"uploadUrl": %q,
		"downloadUrl": %q,
		"state": "session-0"
	}`, AccountId, AccountId,
		s.URL+"/jmap/api",
		s.URL+"/jmap/upload/{accountId}/",
		s.URL+"/jmap/download/{accountId}/{blobId}/{name}?accept={type}")
}

func (s *Server) serveAPI(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req protocol.Request
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	resp := protocol.Response{SessionState: "session-0"}
	for _, call := range req.MethodCalls {
		resp.MethodResponses = append(resp.MethodResponses, s.dispatch(call))
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) dispatch(call protocol.MethodCall) protocol.MethodResponse {
	s.mu.Lock()
	h := s.handlers[call.Name]
	s.mu.Unlock()
	if h == nil {
		return errorTuple(call.CallId, MethodError{
			Type:        "serverFail",
			Description: "jmaptest: no handler for " + call.Name,
		})
	}
	args, _ := call.Arguments.(json.RawMessage)
	result := h(args)
	switch e := result.(type) {
	case MethodError:
		return errorTuple(call.CallId, e)
	case *MethodError:
		return errorTuple(call.CallId, *e)
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return errorTuple(call.CallId, MethodError{Type: "serverFail", Description: err.Error()})
	}
	return protocol.MethodResponse{Name: call.Name, Arguments: raw, CallId: call.CallId}
}

func errorTuple(callId string, e MethodError) protocol.MethodResponse {
	raw, _ := json.Marshal(e)
	return protocol.MethodResponse{Name: "error", Arguments: raw, CallId: callId}
}

func (s *Server) serveUpload(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.uploads = append(s.uploads, Upload{ContentType: r.Header.Get("Content-Type"), Body: body})
	n := len(s.uploads)
	s.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"accountId": %q, "blobId": "blob-%d", "type": %q, "size": %d}`,
		AccountId, n, r.Header.Get("Content-Type"), len(body))
}

func (s *Server) serveDownload(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.downloadPaths = append(s.downloadPaths, r.URL.RequestURI())
	s.mu.Unlock()
	if strings.Contains(r.URL.Path, "missing") {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Write(s.DownloadBody)
}

// Args decodes a recorded call's arguments into a generic map.
func Args(t *testing.T, call protocol.MethodCall) map[string]any {
	t.Helper()
	raw, ok := call.Arguments.(json.RawMessage)
	if !ok {
		t.Fatalf("call arguments are %T, want json.RawMessage", call.Arguments)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("decode %s arguments: %v", call.Name, err)
	}
	return m
}

// FindCall returns the first call of the given method in req, failing
// the test when req lacks one.
func FindCall(t *testing.T, req *protocol.Request, method string) protocol.MethodCall {
	t.Helper()
	if req == nil {
		t.Fatalf("no request captured, want a %s call", method)
	}
	for _, call := range req.MethodCalls {
		if call.Name == method {
			return call
		}
	}
	t.Fatalf("request has no %s call; got %v", method, methodNames(req))
	return protocol.MethodCall{}
}

func methodNames(req *protocol.Request) []string {
	names := make([]string, len(req.MethodCalls))
	for i, call := range req.MethodCalls {
		names[i] = call.Name
	}
	return names
}

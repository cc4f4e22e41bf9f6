// Package envelope defines the stable JSON output shape and the closed
// error vocabulary shared by every command.
package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// SchemaVersion is frozen for the life of the 0.x output contract.
// Consumers key their parsers off this value.
const SchemaVersion = "0.1"

// Kind classifies a command failure. The set is closed; new kinds require
// a schema version bump.
type Kind string

const (
	KindUsage          Kind = "xinUsageError"
	KindConfig         Kind = "xinConfigError"
	KindNotImplemented Kind = "xinNotImplemented"
	KindHTTP           Kind = "httpError"
	KindJMAP           Kind = "jmapRequestError"
)

// HTTPDetail carries the HTTP status of a failed request, when known.
type HTTPDetail struct {
	Status int `json:"status,omitempty"`
}

// JMAPDetail carries the server-reported JMAP error, when one exists.
type JMAPDetail struct {
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
}

// CommandError is the error type surfaced inside envelopes. Messages must
// never contain credential material; callers mask before formatting.
type CommandError struct {
	Kind    Kind        `json:"kind"`
	Message string      `json:"message"`
	HTTP    *HTTPDetail `json:"http,omitempty"`
	JMAP    *JMAPDetail `json:"jmap,omitempty"`
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// Usagef creates a caller-fixable usage error.
func Usagef(format string, args ...any) *CommandError {
	return &CommandError{Kind: KindUsage, Message: fmt.Sprintf(format, args...)}
}

// Configf creates a configuration error.
func Configf(format string, args ...any) *CommandError {
	return &CommandError{Kind: KindConfig, Message: fmt.Sprintf(format, args...)}
}

// NotImplemented creates an error for a recognized but unshipped command.
func NotImplemented(command string) *CommandError {
	return &CommandError{
		Kind:    KindNotImplemented,
		Message: fmt.Sprintf("%s is not implemented yet", command),
	}
}

// HTTPErr creates an error for a non-2xx response or network failure.
// status 0 means the request never produced a response.
func HTTPErr(status int, format string, args ...any) *CommandError {
	ce := &CommandError{Kind: KindHTTP, Message: fmt.Sprintf(format, args...)}
	if status != 0 {
		ce.HTTP = &HTTPDetail{Status: status}
	}
	return ce
}

// JMAPErrf creates an error for a 2xx response whose JMAP body is malformed
// or missing an expected method response.
func JMAPErrf(format string, args ...any) *CommandError {
	return &CommandError{Kind: KindJMAP, Message: fmt.Sprintf(format, args...)}
}

// JMAPMethodErr creates an error carrying a server method-level error.
func JMAPMethodErr(errType, description string) *CommandError {
	msg := "server returned method error " + errType
	if description != "" {
		msg += ": " + description
	}
	return &CommandError{
		Kind:    KindJMAP,
		Message: msg,
		JMAP:    &JMAPDetail{Type: errType, Description: description},
	}
}

// AsCommandError coerces any error into a CommandError. Errors produced by
// command handlers are CommandErrors by construction; anything else is a
// client-side processing fault and maps to jmapRequestError.
func AsCommandError(err error) *CommandError {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce
	}
	return &CommandError{Kind: KindJMAP, Message: err.Error()}
}

// IsKind reports whether err is a CommandError of the given kind.
func IsKind(err error, kind Kind) bool {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}

// Meta carries cross-cutting response metadata.
type Meta struct {
	NextPage  string   `json:"nextPage,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
	RequestID string   `json:"requestId,omitempty"`
}

// Envelope is the fixed top-level structure of every command's output.
// Exactly one of Data or Error is set.
type Envelope struct {
	SchemaVersion string        `json:"schemaVersion"`
	OK            bool          `json:"ok"`
	Command       string        `json:"command"`
	Account       string        `json:"account,omitempty"`
	Data          any           `json:"data,omitempty"`
	Error         *CommandError `json:"error,omitempty"`
	Meta          Meta          `json:"meta"`
}

// OK creates a success envelope for command with the given data payload.
func OK(command string, data any) *Envelope {
	return &Envelope{
		SchemaVersion: SchemaVersion,
		OK:            true,
		Command:       command,
		Data:          data,
	}
}

// Err creates a failure envelope for command. Any non-CommandError is
// classified via AsCommandError.
func Err(command string, err error) *Envelope {
	return &Envelope{
		SchemaVersion: SchemaVersion,
		OK:            false,
		Command:       command,
		Error:         AsCommandError(err),
	}
}

// WithAccount sets the account name and returns the envelope.
func (e *Envelope) WithAccount(name string) *Envelope {
	e.Account = name
	return e
}

// WithMeta sets the meta block and returns the envelope.
func (e *Envelope) WithMeta(meta Meta) *Envelope {
	// RequestID is assigned by the dispatcher; keep it if already set.
	if meta.RequestID == "" {
		meta.RequestID = e.Meta.RequestID
	}
	e.Meta = meta
	return e
}

// WithRequestID sets meta.requestId and returns the envelope.
func (e *Envelope) WithRequestID(id string) *Envelope {
	e.Meta.RequestID = id
	return e
}

// ExitCode maps the envelope outcome to the process exit code.
func (e *Envelope) ExitCode() int {
	if e.OK {
		return 0
	}
	return 1
}

// Render writes the envelope as a single pretty-printed JSON document
// followed by a newline.
func (e *Envelope) Render(w io.Writer) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

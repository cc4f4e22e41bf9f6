// Package protocol provides JMAP method request/response handling.
package protocol

import (
	"encoding/json"
)

// Request represents a JMAP API request.
// See RFC 8620 Section 3.2.
type Request struct {
	// Using contains the capability URIs used in this request.
	Using []string `json:"using"`

	// MethodCalls contains the method invocations.
	MethodCalls []MethodCall `json:"methodCalls"`

	// CreatedIds maps creation IDs to server-assigned IDs.
	CreatedIds map[Id]Id `json:"createdIds,omitempty"`
}

// Response represents a JMAP API response.
type Response struct {
	// MethodResponses contains the method responses.
	MethodResponses []MethodResponse `json:"methodResponses"`

	// CreatedIds maps creation IDs to server-assigned IDs.
	CreatedIds map[Id]Id `json:"createdIds,omitempty"`

	// SessionState is the new session state if changed.
	SessionState string `json:"sessionState,omitempty"`
}

// MethodCall represents a single method invocation.
// Wire format: [name, arguments, methodCallId]
type MethodCall struct {
	Name      string
	Arguments interface{}
	CallId    string
}

// MarshalJSON implements custom JSON marshaling for MethodCall.
func (m MethodCall) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{m.Name, m.Arguments, m.CallId})
}

// UnmarshalJSON implements custom JSON unmarshaling for MethodCall.
func (m *MethodCall) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 3 {
		return nil
	}
	if err := json.Unmarshal(raw[0], &m.Name); err != nil {
		return err
	}
	m.Arguments = raw[1] // Keep as raw JSON
	if err := json.Unmarshal(raw[2], &m.CallId); err != nil {
		return err
	}
	return nil
}

// MethodResponse represents a single method response.
// Wire format: [name, arguments, methodCallId]
type MethodResponse struct {
	Name      string
	Arguments json.RawMessage
	CallId    string
}

// MarshalJSON implements custom JSON marshaling for MethodResponse.
func (m MethodResponse) MarshalJSON() ([]byte, error) {
	args := m.Arguments
	if args == nil {
		args = json.RawMessage("null")
	}
	return json.Marshal([]interface{}{m.Name, args, m.CallId})
}

// UnmarshalJSON implements custom JSON unmarshaling for MethodResponse.
func (m *MethodResponse) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 3 {
		return nil
	}
	if err := json.Unmarshal(raw[0], &m.Name); err != nil {
		return err
	}
	m.Arguments = raw[1]
	if err := json.Unmarshal(raw[2], &m.CallId); err != nil {
		return err
	}
	return nil
}

// Error represents a JMAP method-level error.
type Error struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// ResultReference points a method argument at part of an earlier method's
// response within the same request. See RFC 8620 Section 3.7.
type ResultReference struct {
	ResultOf string `json:"resultOf"`
	Name     string `json:"name"`
	Path     string `json:"path"`
}

// Common capability URIs.
const (
	CoreCapability       = "urn:ietf:params:jmap:core"
	MailCapability       = "urn:ietf:params:jmap:mail"
	SubmissionCapability = "urn:ietf:params:jmap:submission"
)

// Common method names.
const (
	MethodMailboxGet         = "Mailbox/get"
	MethodMailboxSet         = "Mailbox/set"
	MethodEmailGet           = "Email/get"
	MethodEmailQuery         = "Email/query"
	MethodEmailSet           = "Email/set"
	MethodEmailChanges       = "Email/changes"
	MethodThreadGet          = "Thread/get"
	MethodIdentityGet        = "Identity/get"
	MethodEmailSubmissionSet = "EmailSubmission/set"
)

// GetRequest creates arguments for a /get method. A nil Ids slice
// marshals as null (all records); an empty non-nil slice marshals as []
// and fetches nothing, which is how Email/get reads the current state
// without transferring objects.
type GetRequest struct {
	AccountId  Id       `json:"accountId"`
	Ids        []Id     `json:"ids"`
	Properties []string `json:"properties,omitempty"`
}

// GetEmailsRequest carries the Email/get body-fetch extensions from
// RFC 8621 Section 4.6 on top of the plain /get arguments.
type GetEmailsRequest struct {
	AccountId           Id       `json:"accountId"`
	Ids                 []Id     `json:"ids"`
	Properties          []string `json:"properties,omitempty"`
	BodyProperties      []string `json:"bodyProperties,omitempty"`
	FetchTextBodyValues bool     `json:"fetchTextBodyValues,omitempty"`
	FetchHTMLBodyValues bool     `json:"fetchHTMLBodyValues,omitempty"`
	FetchAllBodyValues  bool     `json:"fetchAllBodyValues,omitempty"`
	MaxBodyValueBytes   uint32   `json:"maxBodyValueBytes,omitempty"`
}

// QueryRequest creates arguments for a /query method.
type QueryRequest struct {
	AccountId       Id          `json:"accountId"`
	Filter          interface{} `json:"filter,omitempty"`
	Sort            []SortOrder `json:"sort,omitempty"`
	Position        uint32      `json:"position,omitempty"`
	Anchor          *Id         `json:"anchor,omitempty"`
	AnchorOffset    int32       `json:"anchorOffset,omitempty"`
	Limit           *uint32     `json:"limit,omitempty"`
	CalculateTotal  bool        `json:"calculateTotal,omitempty"`
	CollapseThreads bool        `json:"collapseThreads,omitempty"`
}

// SortOrder specifies how to sort results.
type SortOrder struct {
	Property    string `json:"property"`
	IsAscending bool   `json:"isAscending"`
}

// ChangesRequest creates arguments for a /changes method.
type ChangesRequest struct {
	AccountId  Id      `json:"accountId"`
	SinceState string  `json:"sinceState"`
	MaxChanges *uint32 `json:"maxChanges,omitempty"`
}

// SetRequest creates arguments for a /set method. Update values are patch
// objects keyed by JSON pointer (mailboxIds/<id>, keywords/<kw>) or whole
// property names for replacement. OnDestroyRemoveEmails applies to
// Mailbox/set only.
type SetRequest struct {
	AccountId             Id                    `json:"accountId"`
	IfInState             *string               `json:"ifInState,omitempty"`
	Create                map[Id]interface{}    `json:"create,omitempty"`
	Update                map[Id]map[string]any `json:"update,omitempty"`
	Destroy               []Id                  `json:"destroy,omitempty"`
	OnDestroyRemoveEmails *bool                 `json:"onDestroyRemoveEmails,omitempty"`
}

// ParseMailboxGetResponse parses a Mailbox/get response.
func ParseMailboxGetResponse(resp *MethodResponse) (*GetMailboxesResponse, error) {
	var result GetMailboxesResponse
	if err := json.Unmarshal(resp.Arguments, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ParseEmailQueryResponse parses an Email/query response.
func ParseEmailQueryResponse(resp *MethodResponse) (*QueryEmailsResponse, error) {
	var result QueryEmailsResponse
	if err := json.Unmarshal(resp.Arguments, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ParseEmailGetResponse parses an Email/get response.
func ParseEmailGetResponse(resp *MethodResponse) (*GetEmailsResponse, error) {
	var result GetEmailsResponse
	if err := json.Unmarshal(resp.Arguments, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ParseChangesResponse parses an Email/changes response.
func ParseChangesResponse(resp *MethodResponse) (*ChangesResponse, error) {
	var result ChangesResponse
	if err := json.Unmarshal(resp.Arguments, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ParseThreadGetResponse parses a Thread/get response.
func ParseThreadGetResponse(resp *MethodResponse) (*GetThreadsResponse, error) {
	var result GetThreadsResponse
	if err := json.Unmarshal(resp.Arguments, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ParseIdentityGetResponse parses an Identity/get response.
func ParseIdentityGetResponse(resp *MethodResponse) (*GetIdentitiesResponse, error) {
	var result GetIdentitiesResponse
	if err := json.Unmarshal(resp.Arguments, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ParseSetResponse parses a */set response.
func ParseSetResponse(resp *MethodResponse) (*SetResponse, error) {
	var result SetResponse
	if err := json.Unmarshal(resp.Arguments, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ParseError parses the arguments of an "error" method response.
func ParseError(resp *MethodResponse) (*Error, error) {
	var result Error
	if err := json.Unmarshal(resp.Arguments, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// IsErrorResponse checks if a method response is an error.
func IsErrorResponse(name string) bool {
	return name == "error"
}

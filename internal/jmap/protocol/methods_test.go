package protocol

import (
	"encoding/json"
	"testing"
)

func TestMethodCall_MarshalJSON(t *testing.T) {
	mc := MethodCall{
		Name: "Mailbox/get",
		Arguments: map[string]interface{}{
			"accountId": "A123",
		},
		CallId: "c0",
	}

	data, err := json.Marshal(mc)
	if err != nil {
		t.Fatalf("MarshalJSON() error: %v", err)
	}

	// Should be an array: ["Mailbox/get", {...}, "c0"]
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		t.Fatalf("Result should be an array: %v", err)
	}

	if len(arr) != 3 {
		t.Errorf("Array length = %d, want 3", len(arr))
	}

	// Check method name
	var name string
	if err := json.Unmarshal(arr[0], &name); err != nil {
		t.Fatalf("Failed to unmarshal method name: %v", err)
	}
	if name != "Mailbox/get" {
		t.Errorf("Method name = %q, want %q", name, "Mailbox/get")
	}

	// Check call ID
	var callId string
	if err := json.Unmarshal(arr[2], &callId); err != nil {
		t.Fatalf("Failed to unmarshal call ID: %v", err)
	}
	if callId != "c0" {
		t.Errorf("Call ID = %q, want %q", callId, "c0")
	}
}

func TestMethodCall_UnmarshalJSON(t *testing.T) {
	data := `["Mailbox/get", {"accountId": "A123"}, "c0"]`

	var mc MethodCall
	if err := json.Unmarshal([]byte(data), &mc); err != nil {
		t.Fatalf("UnmarshalJSON() error: %v", err)
	}

	if mc.Name != "Mailbox/get" {
		t.Errorf("Name = %q, want %q", mc.Name, "Mailbox/get")
	}
	if mc.CallId != "c0" {
		t.Errorf("CallId = %q, want %q", mc.CallId, "c0")
	}
}

func TestMethodResponse_UnmarshalJSON(t *testing.T) {
	data := `["Mailbox/get", {"accountId": "A123", "state": "abc", "list": []}, "c0"]`

	var mr MethodResponse
	if err := json.Unmarshal([]byte(data), &mr); err != nil {
		t.Fatalf("UnmarshalJSON() error: %v", err)
	}

	if mr.Name != "Mailbox/get" {
		t.Errorf("Name = %q, want %q", mr.Name, "Mailbox/get")
	}
	if mr.CallId != "c0" {
		t.Errorf("CallId = %q, want %q", mr.CallId, "c0")
	}
	if mr.Arguments == nil {
		t.Error("Arguments should not be nil")
	}
}

func TestRequest_MarshalJSON(t *testing.T) {
	req := &Request{
		Using: []string{CoreCapability, MailCapability},
		MethodCalls: []MethodCall{
			{
				Name: "Mailbox/get",
				Arguments: map[string]interface{}{
					"accountId": "A123",
				},
				CallId: "c0",
			},
		},
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("MarshalJSON() error: %v", err)
	}

	// Unmarshal to verify structure
	var result map[string]json.RawMessage
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("Failed to unmarshal result: %v", err)
	}

	if _, ok := result["using"]; !ok {
		t.Error("Result should have 'using' field")
	}
	if _, ok := result["methodCalls"]; !ok {
		t.Error("Result should have 'methodCalls' field")
	}
}

func TestResponse_UnmarshalJSON(t *testing.T) {
	data := `{
		"methodResponses": [
			["Mailbox/get", {"accountId": "A123", "state": "abc", "list": []}, "c0"]
		],
		"sessionState": "xyz789"
	}`

	var resp Response
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		t.Fatalf("UnmarshalJSON() error: %v", err)
	}

	if len(resp.MethodResponses) != 1 {
		t.Errorf("MethodResponses length = %d, want 1", len(resp.MethodResponses))
	}
	if resp.SessionState != "xyz789" {
		t.Errorf("SessionState = %q, want %q", resp.SessionState, "xyz789")
	}
}

func TestResultReference_MarshalJSON(t *testing.T) {
	ref := ResultReference{
		ResultOf: "q1",
		Name:     MethodEmailQuery,
		Path:     "/ids",
	}

	data, err := json.Marshal(ref)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var result map[string]string
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("Failed to unmarshal result: %v", err)
	}

	if result["resultOf"] != "q1" {
		t.Errorf("resultOf = %q, want %q", result["resultOf"], "q1")
	}
	if result["name"] != "Email/query" {
		t.Errorf("name = %q, want %q", result["name"], "Email/query")
	}
	if result["path"] != "/ids" {
		t.Errorf("path = %q, want %q", result["path"], "/ids")
	}
}

func TestChangesRequest_MarshalJSON(t *testing.T) {
	max := uint32(256)
	req := ChangesRequest{
		AccountId:  "A123",
		SinceState: "s100",
		MaxChanges: &max,
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var result map[string]json.RawMessage
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("Failed to unmarshal result: %v", err)
	}

	if string(result["sinceState"]) != `"s100"` {
		t.Errorf("sinceState = %s, want %q", result["sinceState"], "s100")
	}
	if string(result["maxChanges"]) != "256" {
		t.Errorf("maxChanges = %s, want 256", result["maxChanges"])
	}
}

func TestSetRequest_MarshalJSON_OmitsEmpty(t *testing.T) {
	req := SetRequest{
		AccountId: "A123",
		Update: map[Id]map[string]any{
			"e1": {"keywords/$seen": true},
		},
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	var result map[string]json.RawMessage
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("Failed to unmarshal result: %v", err)
	}

	if _, ok := result["create"]; ok {
		t.Error("empty create should be omitted")
	}
	if _, ok := result["destroy"]; ok {
		t.Error("empty destroy should be omitted")
	}
	if _, ok := result["update"]; !ok {
		t.Error("update should be present")
	}
}

func TestParseMailboxGetResponse(t *testing.T) {
	respJSON := `{
		"accountId": "A123",
		"state": "abc123",
		"list": [
			{"id": "mb1", "name": "Inbox", "role": "inbox", "totalEmails": 100, "unreadEmails": 5}
		],
		"notFound": []
	}`

	mr := &MethodResponse{
		Name:      "Mailbox/get",
		Arguments: json.RawMessage(respJSON),
		CallId:    "c0",
	}

	result, err := ParseMailboxGetResponse(mr)
	if err != nil {
		t.Fatalf("ParseMailboxGetResponse() error: %v", err)
	}

	if result.AccountId != "A123" {
		t.Errorf("AccountId = %q, want %q", result.AccountId, "A123")
	}
	if result.State != "abc123" {
		t.Errorf("State = %q, want %q", result.State, "abc123")
	}
	if len(result.List) != 1 {
		t.Errorf("List length = %d, want 1", len(result.List))
	}
	if result.List[0].Name != "Inbox" {
		t.Errorf("List[0].Name = %q, want %q", result.List[0].Name, "Inbox")
	}
}

func TestParseEmailQueryResponse(t *testing.T) {
	respJSON := `{
		"accountId": "A123",
		"queryState": "state123",
		"canCalculateChanges": true,
		"position": 0,
		"total": 100,
		"ids": ["email1", "email2", "email3"]
	}`

	mr := &MethodResponse{
		Name:      "Email/query",
		Arguments: json.RawMessage(respJSON),
		CallId:    "c0",
	}

	result, err := ParseEmailQueryResponse(mr)
	if err != nil {
		t.Fatalf("ParseEmailQueryResponse() error: %v", err)
	}

	if result.AccountId != "A123" {
		t.Errorf("AccountId = %q, want %q", result.AccountId, "A123")
	}
	if result.Total == nil || *result.Total != 100 {
		t.Errorf("Total = %v, want 100", result.Total)
	}
	if len(result.Ids) != 3 {
		t.Errorf("Ids length = %d, want 3", len(result.Ids))
	}
}

func TestParseEmailGetResponse(t *testing.T) {
	respJSON := `{
		"accountId": "A123",
		"state": "e-state",
		"list": [
			{"id": "e1", "subject": "First"},
			{"id": "e2", "subject": "Second"}
		],
		"notFound": ["e9"]
	}`

	mr := &MethodResponse{
		Name:      "Email/get",
		Arguments: json.RawMessage(respJSON),
		CallId:    "g1",
	}

	result, err := ParseEmailGetResponse(mr)
	if err != nil {
		t.Fatalf("ParseEmailGetResponse() error: %v", err)
	}

	if len(result.List) != 2 {
		t.Errorf("List length = %d, want 2", len(result.List))
	}
	if result.List[1].Subject != "Second" {
		t.Errorf("List[1].Subject = %q, want %q", result.List[1].Subject, "Second")
	}
	if len(result.NotFound) != 1 {
		t.Errorf("NotFound length = %d, want 1", len(result.NotFound))
	}
}

func TestParseChangesResponse(t *testing.T) {
	respJSON := `{
		"accountId": "A123",
		"oldState": "s1",
		"newState": "s2",
		"hasMoreChanges": false,
		"created": ["e1"],
		"updated": [],
		"destroyed": ["e2"]
	}`

	mr := &MethodResponse{
		Name:      "Email/changes",
		Arguments: json.RawMessage(respJSON),
		CallId:    "c0",
	}

	result, err := ParseChangesResponse(mr)
	if err != nil {
		t.Fatalf("ParseChangesResponse() error: %v", err)
	}

	if result.OldState != "s1" || result.NewState != "s2" {
		t.Errorf("states = %q/%q, want s1/s2", result.OldState, result.NewState)
	}
	if result.HasMoreChanges {
		t.Error("HasMoreChanges should be false")
	}
	if len(result.Created) != 1 || len(result.Destroyed) != 1 {
		t.Errorf("Created/Destroyed = %d/%d, want 1/1", len(result.Created), len(result.Destroyed))
	}
}

func TestParseThreadGetResponse(t *testing.T) {
	respJSON := `{
		"accountId": "A123",
		"state": "t-state",
		"list": [{"id": "t1", "emailIds": ["e1", "e2"]}],
		"notFound": []
	}`

	mr := &MethodResponse{
		Name:      "Thread/get",
		Arguments: json.RawMessage(respJSON),
		CallId:    "t0",
	}

	result, err := ParseThreadGetResponse(mr)
	if err != nil {
		t.Fatalf("ParseThreadGetResponse() error: %v", err)
	}

	if len(result.List) != 1 {
		t.Fatalf("List length = %d, want 1", len(result.List))
	}
	if len(result.List[0].EmailIds) != 2 {
		t.Errorf("EmailIds length = %d, want 2", len(result.List[0].EmailIds))
	}
}

func TestParseIdentityGetResponse(t *testing.T) {
	respJSON := `{
		"accountId": "A123",
		"state": "i-state",
		"list": [
			{"id": "id1", "name": "Default", "email": "user@example.com"}
		]
	}`

	mr := &MethodResponse{
		Name:      "Identity/get",
		Arguments: json.RawMessage(respJSON),
		CallId:    "i0",
	}

	result, err := ParseIdentityGetResponse(mr)
	if err != nil {
		t.Fatalf("ParseIdentityGetResponse() error: %v", err)
	}

	if len(result.List) != 1 {
		t.Fatalf("List length = %d, want 1", len(result.List))
	}
	if result.List[0].Email != "user@example.com" {
		t.Errorf("List[0].Email = %q, want %q", result.List[0].Email, "user@example.com")
	}
}

func TestParseSetResponse(t *testing.T) {
	respJSON := `{
		"accountId": "A123",
		"oldState": "s1",
		"newState": "s2",
		"updated": {"e1": null},
		"notDestroyed": {"e2": {"type": "forbidden"}}
	}`

	mr := &MethodResponse{
		Name:      "Email/set",
		Arguments: json.RawMessage(respJSON),
		CallId:    "s0",
	}

	result, err := ParseSetResponse(mr)
	if err != nil {
		t.Fatalf("ParseSetResponse() error: %v", err)
	}

	if _, ok := result.Updated["e1"]; !ok {
		t.Error("Updated should contain e1")
	}
	if setErr, ok := result.NotDestroyed["e2"]; !ok || setErr.Type != "forbidden" {
		t.Errorf("NotDestroyed[e2] = %+v, want type forbidden", setErr)
	}
}

func TestParseError(t *testing.T) {
	respJSON := `{"type": "unknownMethod", "description": "no such method"}`

	mr := &MethodResponse{
		Name:      "error",
		Arguments: json.RawMessage(respJSON),
		CallId:    "c0",
	}

	result, err := ParseError(mr)
	if err != nil {
		t.Fatalf("ParseError() error: %v", err)
	}

	if result.Type != "unknownMethod" {
		t.Errorf("Type = %q, want %q", result.Type, "unknownMethod")
	}
	if result.Description != "no such method" {
		t.Errorf("Description = %q, want %q", result.Description, "no such method")
	}
}

func TestParseMailboxGetResponse_MalformedPayload(t *testing.T) {
	mr := &MethodResponse{
		Name:      "Mailbox/get",
		Arguments: json.RawMessage(`"not an object"`),
		CallId:    "c0",
	}

	_, err := ParseMailboxGetResponse(mr)
	if err == nil {
		t.Error("expected error for malformed payload")
	}
}

func TestIsErrorResponse(t *testing.T) {
	tests := []struct {
		name     string
		expected bool
	}{
		{"error", true},
		{"Mailbox/get", false},
		{"Email/query", false},
		{"", false},
	}

	for _, tt := range tests {
		result := IsErrorResponse(tt.name)
		if result != tt.expected {
			t.Errorf("IsErrorResponse(%q) = %v, want %v", tt.name, result, tt.expected)
		}
	}
}

func TestConstants(t *testing.T) {
	// Verify capability constants
	if CoreCapability != "urn:ietf:params:jmap:core" {
		t.Errorf("CoreCapability = %q, want %q", CoreCapability, "urn:ietf:params:jmap:core")
	}
	if MailCapability != "urn:ietf:params:jmap:mail" {
		t.Errorf("MailCapability = %q, want %q", MailCapability, "urn:ietf:params:jmap:mail")
	}
	if SubmissionCapability != "urn:ietf:params:jmap:submission" {
		t.Errorf("SubmissionCapability = %q, want %q", SubmissionCapability, "urn:ietf:params:jmap:submission")
	}

	// Verify method constants
	if MethodMailboxGet != "Mailbox/get" {
		t.Errorf("MethodMailboxGet = %q, want %q", MethodMailboxGet, "Mailbox/get")
	}
	if MethodEmailQuery != "Email/query" {
		t.Errorf("MethodEmailQuery = %q, want %q", MethodEmailQuery, "Email/query")
	}
	if MethodEmailChanges != "Email/changes" {
		t.Errorf("MethodEmailChanges = %q, want %q", MethodEmailChanges, "Email/changes")
	}
	if MethodEmailSubmissionSet != "EmailSubmission/set" {
		t.Errorf("MethodEmailSubmissionSet = %q, want %q", MethodEmailSubmissionSet, "EmailSubmission/set")
	}
}

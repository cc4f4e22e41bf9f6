package mailbox

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"xin/internal/envelope"
	"xin/internal/jmap/jmaptest"
	"xin/internal/jmap/protocol"
)

func TestCreate(t *testing.T) {
	server := jmaptest.NewServer(t)
	server.Respond(protocol.MethodMailboxSet, protocol.SetResponse{
		AccountId: jmaptest.AccountId,
		NewState:  "mb-state-2",
		Created: map[protocol.Id]json.RawMessage{
			"m1": json.RawMessage(`{"id": "mb_new", "sortOrder": 10}`),
		},
	})

	parent := protocol.Id("mb_reports")
	mb, err := Create(context.Background(), server.Client(), jmaptest.AccountId, CreateSpec{
		Name:     "Projects",
		ParentId: &parent,
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if mb.Id != "mb_new" {
		t.Errorf("created id = %q, want mb_new", mb.Id)
	}
	if mb.Name != "Projects" {
		t.Errorf("created name = %q, want the requested name", mb.Name)
	}

	call := jmaptest.FindCall(t, server.LastRequest(), protocol.MethodMailboxSet)
	args := jmaptest.Args(t, call)
	create, ok := args["create"].(map[string]any)
	if !ok {
		t.Fatalf("create argument missing: %v", args)
	}
	spec, ok := create["m1"].(map[string]any)
	if !ok {
		t.Fatalf("create has no m1 entry: %v", create)
	}
	if spec["name"] != "Projects" || spec["parentId"] != "mb_reports" {
		t.Errorf("create spec = %v, want name Projects under mb_reports", spec)
	}
}

func TestCreate_ServerRejects(t *testing.T) {
	server := jmaptest.NewServer(t)
	desc := "a mailbox with that name already exists"
	server.Respond(protocol.MethodMailboxSet, protocol.SetResponse{
		AccountId: jmaptest.AccountId,
		NewState:  "mb-state-1",
		NotCreated: map[protocol.Id]protocol.SetError{
			"m1": {Type: "invalidProperties", Description: &desc},
		},
	})

	_, err := Create(context.Background(), server.Client(), jmaptest.AccountId, CreateSpec{Name: "Projects"})
	if !envelope.IsKind(err, envelope.KindJMAP) {
		t.Fatalf("Create() error = %v, want a jmap error", err)
	}
	if !strings.Contains(err.Error(), "invalidProperties") || !strings.Contains(err.Error(), desc) {
		t.Errorf("error %q should carry the server's type and description", err)
	}
}

func TestCreate_InvalidInput(t *testing.T) {
	server := jmaptest.NewServer(t)

	tests := []struct {
		name string
		spec CreateSpec
	}{
		{"empty name", CreateSpec{}},
		{"unknown role", CreateSpec{Name: "Filed", Role: "megafolder"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Create(context.Background(), server.Client(), jmaptest.AccountId, tt.spec)
			if !envelope.IsKind(err, envelope.KindUsage) {
				t.Errorf("Create(%+v) error = %v, want a usage error", tt.spec, err)
			}
		})
	}
	if server.APIHits() != 0 {
		t.Errorf("api hits = %d, want 0 for locally rejected input", server.APIHits())
	}
}

func TestCreate_WithRole(t *testing.T) {
	server := jmaptest.NewServer(t)
	server.Respond(protocol.MethodMailboxSet, protocol.SetResponse{
		AccountId: jmaptest.AccountId,
		NewState:  "mb-state-2",
		Created: map[protocol.Id]json.RawMessage{
			"m1": json.RawMessage(`{"id": "mb_arch"}`),
		},
	})

	_, err := Create(context.Background(), server.Client(), jmaptest.AccountId, CreateSpec{
		Name: "All Mail",
		Role: "Archive",
	})
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	call := jmaptest.FindCall(t, server.LastRequest(), protocol.MethodMailboxSet)
	args := jmaptest.Args(t, call)
	spec := args["create"].(map[string]any)["m1"].(map[string]any)
	if spec["role"] != "archive" {
		t.Errorf("role = %v, want the canonical lowercase form", spec["role"])
	}
}

func TestRename(t *testing.T) {
	server := jmaptest.NewServer(t)
	server.Respond(protocol.MethodMailboxSet, protocol.SetResponse{
		AccountId: jmaptest.AccountId,
		NewState:  "mb-state-2",
		Updated:   map[protocol.Id]json.RawMessage{"mb_reports": nil},
	})

	err := Rename(context.Background(), server.Client(), jmaptest.AccountId, "mb_reports", "Reports 2026")
	if err != nil {
		t.Fatalf("Rename() error: %v", err)
	}

	call := jmaptest.FindCall(t, server.LastRequest(), protocol.MethodMailboxSet)
	args := jmaptest.Args(t, call)
	update, ok := args["update"].(map[string]any)
	if !ok {
		t.Fatalf("update argument missing: %v", args)
	}
	patch, ok := update["mb_reports"].(map[string]any)
	if !ok || patch["name"] != "Reports 2026" {
		t.Errorf("patch = %v, want {name: Reports 2026}", update)
	}
}

func TestRename_EmptyName(t *testing.T) {
	server := jmaptest.NewServer(t)

	err := Rename(context.Background(), server.Client(), jmaptest.AccountId, "mb_reports", "")
	if !envelope.IsKind(err, envelope.KindUsage) {
		t.Errorf("Rename to empty = %v, want a usage error", err)
	}
	if server.APIHits() != 0 {
		t.Errorf("api hits = %d, want 0", server.APIHits())
	}
}

func TestUpdate_ServerRejects(t *testing.T) {
	server := jmaptest.NewServer(t)
	server.Respond(protocol.MethodMailboxSet, protocol.SetResponse{
		AccountId:  jmaptest.AccountId,
		NewState:   "mb-state-1",
		NotUpdated: map[protocol.Id]protocol.SetError{"mb_x": {Type: "notFound"}},
	})

	err := Update(context.Background(), server.Client(), jmaptest.AccountId, "mb_x", map[string]any{"name": "X"})
	if !envelope.IsKind(err, envelope.KindJMAP) {
		t.Fatalf("Update() error = %v, want a jmap error", err)
	}
	if !strings.Contains(err.Error(), "notFound") {
		t.Errorf("error %q should carry the server's error type", err)
	}
}

func TestDelete(t *testing.T) {
	server := jmaptest.NewServer(t)
	server.Respond(protocol.MethodMailboxSet, protocol.SetResponse{
		AccountId: jmaptest.AccountId,
		NewState:  "mb-state-2",
		Destroyed: []protocol.Id{"mb_reports"},
	})

	err := Delete(context.Background(), server.Client(), jmaptest.AccountId, "mb_reports", true)
	if err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	call := jmaptest.FindCall(t, server.LastRequest(), protocol.MethodMailboxSet)
	args := jmaptest.Args(t, call)
	destroy, ok := args["destroy"].([]any)
	if !ok || len(destroy) != 1 || destroy[0] != "mb_reports" {
		t.Errorf("destroy = %v, want [mb_reports]", args["destroy"])
	}
	if args["onDestroyRemoveEmails"] != true {
		t.Errorf("onDestroyRemoveEmails = %v, want true", args["onDestroyRemoveEmails"])
	}
}

func TestDelete_KeepEmails(t *testing.T) {
	server := jmaptest.NewServer(t)
	server.Respond(protocol.MethodMailboxSet, protocol.SetResponse{
		AccountId: jmaptest.AccountId,
		NewState:  "mb-state-2",
		Destroyed: []protocol.Id{"mb_reports"},
	})

	if err := Delete(context.Background(), server.Client(), jmaptest.AccountId, "mb_reports", false); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}

	call := jmaptest.FindCall(t, server.LastRequest(), protocol.MethodMailboxSet)
	args := jmaptest.Args(t, call)
	if _, present := args["onDestroyRemoveEmails"]; present {
		t.Errorf("onDestroyRemoveEmails should be omitted when emails are kept: %v", args)
	}
}

func TestDelete_ServerRejects(t *testing.T) {
	server := jmaptest.NewServer(t)
	server.Respond(protocol.MethodMailboxSet, protocol.SetResponse{
		AccountId:    jmaptest.AccountId,
		NewState:     "mb-state-1",
		NotDestroyed: map[protocol.Id]protocol.SetError{"mb_inbox": {Type: "forbidden"}},
	})

	err := Delete(context.Background(), server.Client(), jmaptest.AccountId, "mb_inbox", false)
	if !envelope.IsKind(err, envelope.KindJMAP) {
		t.Fatalf("Delete() error = %v, want a jmap error", err)
	}
}

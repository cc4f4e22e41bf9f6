package cli

import (
	"encoding/json"
	"reflect"
	"testing"

	"xin/internal/envelope"
	"xin/internal/jmap/jmaptest"
	"xin/internal/jmap/protocol"
)

func serveThread(srv *jmaptest.Server, threadId protocol.Id, emailIds ...protocol.Id) {
	srv.Respond(protocol.MethodThreadGet, protocol.GetThreadsResponse{
		AccountId: jmaptest.AccountId,
		State:     "t-state-1",
		List:      []protocol.Thread{{Id: threadId, EmailIds: emailIds}},
		NotFound:  []protocol.Id{},
	})
}

func TestThreadGetMetadataKeepsThreadOrder(t *testing.T) {
	srv := setupServer(t)
	serveThread(srv, "t1", "e2", "e1")
	serveOneEmail(srv,
		sampleEmail("e1", "t1", "First sent"),
		sampleEmail("e2", "t1", "Reply"))

	code, out, errOut := execXin(t, "thread", "get", "t1")
	if code != 0 {
		t.Fatalf("exit code = %d, want 0 (stderr: %s)", code, errOut)
	}
	env := decodeEnvelope(t, out)
	if !env.OK || env.Command != "thread.get" {
		t.Fatalf("envelope = ok %t command %q", env.OK, env.Command)
	}
	if env.Data["threadId"] != "t1" {
		t.Errorf("data.threadId = %v, want t1", env.Data["threadId"])
	}

	items := dataItems(t, env)
	if len(items) != 2 {
		t.Fatalf("items = %d rows, want 2", len(items))
	}
	first, _ := items[0]["email"].(map[string]any)
	second, _ := items[1]["email"].(map[string]any)
	if first["emailId"] != "e2" || second["emailId"] != "e1" {
		t.Errorf("item order = %v, %v; want thread order e2, e1", first["emailId"], second["emailId"])
	}
	if _, hasBody := items[0]["body"]; hasBody {
		t.Errorf("metadata format carries a body: %v", items[0]["body"])
	}
}

func TestThreadGetFullStrip(t *testing.T) {
	srv := setupServer(t)
	serveThread(srv, "t1", "e1")
	serveOneEmail(srv, fullEmail("e1", "Thread body"))

	code, out, errOut := execXin(t, "thread", "get", "t1", "--format", "full", "--strip")
	if code != 0 {
		t.Fatalf("exit code = %d, want 0 (stderr: %s)", code, errOut)
	}
	env := decodeEnvelope(t, out)
	if env.Data["bodyProcessed"] != true {
		t.Errorf("data.bodyProcessed = %v, want true", env.Data["bodyProcessed"])
	}
	items := dataItems(t, env)
	body, _ := items[0]["body"].(map[string]any)
	if body["text"] != "Thread body" {
		t.Errorf("items[0].body.text = %v, want %q", body["text"], "Thread body")
	}
}

func TestThreadGetStripNeedsFullFormat(t *testing.T) {
	srv := setupServer(t)

	_, out, _ := execXin(t, "thread", "get", "t1", "--strip")
	env := decodeEnvelope(t, out)
	if env.Error == nil || env.Error.Kind != envelope.KindUsage {
		t.Fatalf("error = %+v, want usage error", env.Error)
	}
	if env.Error.Message != "--strip only applies to --format full" {
		t.Errorf("message = %q, want strip/format wording", env.Error.Message)
	}
	if srv.APIHits() != 0 {
		t.Errorf("API hits = %d, want 0", srv.APIHits())
	}
}

func TestThreadNotFound(t *testing.T) {
	srv := setupServer(t)
	srv.Respond(protocol.MethodThreadGet, protocol.GetThreadsResponse{
		AccountId: jmaptest.AccountId,
		State:     "t-state-1",
		List:      []protocol.Thread{},
		NotFound:  []protocol.Id{"t9"},
	})
	srv.Respond(protocol.MethodEmailGet, protocol.GetEmailsResponse{
		AccountId: jmaptest.AccountId,
		State:     "e-state-1",
		List:      []protocol.Email{},
		NotFound:  []protocol.Id{},
	})

	code, out, _ := execXin(t, "thread", "get", "t9")
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	env := decodeEnvelope(t, out)
	if env.Error == nil || env.Error.Message != `thread "t9" not found` {
		t.Errorf("error = %+v, want thread not-found", env.Error)
	}
}

func TestThreadAttachmentsListsEveryMember(t *testing.T) {
	srv := setupServer(t)
	serveThread(srv, "t1", "e1", "e2")
	name := "notes.pdf"
	withAttachment := protocol.Email{
		Id:            "e1",
		HasAttachment: true,
		Attachments: []protocol.EmailBodyPart{
			{BlobId: "blob-n1", Type: "application/pdf", Name: &name, Size: 900},
		},
	}
	bare := protocol.Email{Id: "e2"}
	serveOneEmail(srv, withAttachment, bare)

	code, out, errOut := execXin(t, "thread", "attachments", "t1")
	if code != 0 {
		t.Fatalf("exit code = %d, want 0 (stderr: %s)", code, errOut)
	}
	env := decodeEnvelope(t, out)
	items := dataItems(t, env)
	if len(items) != 2 {
		t.Fatalf("items = %d rows, want every thread member", len(items))
	}
	if items[0]["emailId"] != "e1" || items[1]["emailId"] != "e2" {
		t.Errorf("row ids = %v, %v; want e1, e2", items[0]["emailId"], items[1]["emailId"])
	}
	atts, _ := items[0]["attachments"].([]any)
	if len(atts) != 1 {
		t.Fatalf("e1 attachments = %v, want one", items[0]["attachments"])
	}
	att, _ := atts[0].(map[string]any)
	if att["blobId"] != "blob-n1" || att["name"] != "notes.pdf" {
		t.Errorf("attachment = %v, want blob-n1 notes.pdf", att)
	}
	empty, _ := items[1]["attachments"].([]any)
	if len(empty) != 0 {
		t.Errorf("e2 attachments = %v, want empty", items[1]["attachments"])
	}
}

func TestThreadModifyAppliesToEveryMember(t *testing.T) {
	srv := setupServer(t)
	serveThread(srv, "t1", "e1", "e2")
	srv.Respond(protocol.MethodEmailSet, protocol.SetResponse{
		AccountId: jmaptest.AccountId,
		NewState:  "e-state-2",
		Updated: map[protocol.Id]json.RawMessage{
			"e1": json.RawMessage("null"),
			"e2": json.RawMessage("null"),
		},
	})

	code, out, errOut := execXin(t, "thread", "modify", "t1", "--add-keyword", "$flagged")
	if code != 0 {
		t.Fatalf("exit code = %d, want 0 (stderr: %s)", code, errOut)
	}
	env := decodeEnvelope(t, out)
	applied, _ := env.Data["appliedTo"].(map[string]any)
	if applied["threadId"] != "t1" {
		t.Errorf("appliedTo.threadId = %v, want t1", applied["threadId"])
	}
	if !reflect.DeepEqual(applied["emailIds"], []any{"e1", "e2"}) {
		t.Errorf("appliedTo.emailIds = %v, want [e1 e2]", applied["emailIds"])
	}

	setArgs := jmaptest.Args(t, jmaptest.FindCall(t, srv.LastRequest(), protocol.MethodEmailSet))
	update, _ := setArgs["update"].(map[string]any)
	for _, id := range []string{"e1", "e2"} {
		patch, _ := update[id].(map[string]any)
		if !reflect.DeepEqual(patch, map[string]any{"keywords/$flagged": true}) {
			t.Errorf("patch for %s = %v, want keywords/$flagged true", id, patch)
		}
	}
	if n := srv.CallCount(protocol.MethodMailboxGet); n != 0 {
		t.Errorf("Mailbox/get calls = %d, want 0 for a keyword change", n)
	}
}

func TestThreadTrashDryRunExpandsFirst(t *testing.T) {
	srv := setupServer(t)
	srv.ServeMailboxes(jmaptest.StandardMailboxes())
	serveThread(srv, "t1", "e1", "e2")

	code, out, errOut := execXin(t, "thread", "trash", "t1", "--dry-run")
	if code != 0 {
		t.Fatalf("exit code = %d, want 0 (stderr: %s)", code, errOut)
	}
	env := decodeEnvelope(t, out)
	if env.Data["dryRun"] != true {
		t.Errorf("data.dryRun = %v, want true", env.Data["dryRun"])
	}
	applied, _ := env.Data["appliedTo"].(map[string]any)
	if !reflect.DeepEqual(applied["emailIds"], []any{"e1", "e2"}) {
		t.Errorf("appliedTo.emailIds = %v, want expansion before the dry-run stop", applied["emailIds"])
	}
	if n := srv.CallCount(protocol.MethodEmailSet); n != 0 {
		t.Errorf("Email/set calls = %d, want 0 on a dry run", n)
	}
}

func TestThreadDeleteNeedsForce(t *testing.T) {
	srv := setupServer(t)

	code, out, _ := execXin(t, "thread", "delete", "t1")
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	env := decodeEnvelope(t, out)
	if env.Error == nil || env.Error.Kind != envelope.KindUsage {
		t.Fatalf("error = %+v, want usage error", env.Error)
	}
	if srv.APIHits() != 0 {
		t.Errorf("API hits = %d, want 0 without --force", srv.APIHits())
	}
}

func TestThreadDeleteForced(t *testing.T) {
	srv := setupServer(t)
	serveThread(srv, "t1", "e1", "e2")
	srv.Respond(protocol.MethodEmailSet, protocol.SetResponse{
		AccountId: jmaptest.AccountId,
		NewState:  "e-state-2",
		Destroyed: []protocol.Id{"e1", "e2"},
	})

	code, out, errOut := execXin(t, "thread", "delete", "t1", "--force")
	if code != 0 {
		t.Fatalf("exit code = %d, want 0 (stderr: %s)", code, errOut)
	}
	env := decodeEnvelope(t, out)
	if !reflect.DeepEqual(env.Data["destroyed"], []any{"e1", "e2"}) {
		t.Errorf("data.destroyed = %v, want [e1 e2]", env.Data["destroyed"])
	}
	applied, _ := env.Data["appliedTo"].(map[string]any)
	if applied["threadId"] != "t1" {
		t.Errorf("appliedTo.threadId = %v, want t1", applied["threadId"])
	}
}

package cli

import (
	"encoding/json"
	"reflect"
	"testing"

	"xin/internal/envelope"
	"xin/internal/jmap/jmaptest"
	"xin/internal/jmap/protocol"
)

func serveEmailSetUpdated(srv *jmaptest.Server, ids ...protocol.Id) {
	updated := make(map[protocol.Id]json.RawMessage, len(ids))
	for _, id := range ids {
		updated[id] = json.RawMessage("null")
	}
	srv.Respond(protocol.MethodEmailSet, protocol.SetResponse{
		AccountId: jmaptest.AccountId,
		NewState:  "e-state-2",
		Updated:   updated,
	})
}

func updatePatch(t *testing.T, srv *jmaptest.Server, id string) map[string]any {
	t.Helper()
	setArgs := jmaptest.Args(t, jmaptest.FindCall(t, srv.LastRequest(), protocol.MethodEmailSet))
	update, _ := setArgs["update"].(map[string]any)
	patch, ok := update[id].(map[string]any)
	if !ok {
		t.Fatalf("Email/set update has no patch for %s: %v", id, setArgs["update"])
	}
	return patch
}

func TestArchiveMovesOutOfInbox(t *testing.T) {
	srv := setupServer(t)
	srv.ServeMailboxes(jmaptest.StandardMailboxes())
	serveEmailSetUpdated(srv, "e1")

	code, out, errOut := execXin(t, "archive", "e1")
	if code != 0 {
		t.Fatalf("exit code = %d, want 0 (stderr: %s)", code, errOut)
	}
	env := decodeEnvelope(t, out)
	if !env.OK || env.Command != "archive" {
		t.Fatalf("envelope = ok %t command %q", env.OK, env.Command)
	}
	updated, _ := env.Data["updated"].([]any)
	if len(updated) != 1 || updated[0] != "e1" {
		t.Errorf("data.updated = %v, want [e1]", updated)
	}

	patch := updatePatch(t, srv, "e1")
	want := map[string]any{
		"mailboxIds/mb_archive": true,
		"mailboxIds/mb_inbox":   nil,
	}
	if !reflect.DeepEqual(patch, want) {
		t.Errorf("patch = %v, want %v", patch, want)
	}
}

func TestReadStaysOffMailboxListing(t *testing.T) {
	srv := setupServer(t)
	serveEmailSetUpdated(srv, "e1", "e2")

	code, out, errOut := execXin(t, "read", "e1", "e2")
	if code != 0 {
		t.Fatalf("exit code = %d, want 0 (stderr: %s)", code, errOut)
	}
	env := decodeEnvelope(t, out)
	if !env.OK {
		t.Fatalf("envelope not ok: %+v", env.Error)
	}

	patch := updatePatch(t, srv, "e1")
	if !reflect.DeepEqual(patch, map[string]any{"keywords/$seen": true}) {
		t.Errorf("patch = %v, want keywords/$seen true", patch)
	}
	if n := srv.CallCount(protocol.MethodMailboxGet); n != 0 {
		t.Errorf("Mailbox/get calls = %d, want 0 for a keyword change", n)
	}
}

func TestUnreadRemovesSeen(t *testing.T) {
	srv := setupServer(t)
	serveEmailSetUpdated(srv, "e1")

	code, _, errOut := execXin(t, "unread", "e1")
	if code != 0 {
		t.Fatalf("exit code = %d, want 0 (stderr: %s)", code, errOut)
	}
	patch := updatePatch(t, srv, "e1")
	if !reflect.DeepEqual(patch, map[string]any{"keywords/$seen": nil}) {
		t.Errorf("patch = %v, want keywords/$seen null", patch)
	}
}

func TestTrashWholeThreadDryRun(t *testing.T) {
	srv := setupServer(t)
	srv.ServeMailboxes(jmaptest.StandardMailboxes())
	srv.Respond(protocol.MethodEmailGet, protocol.GetEmailsResponse{
		AccountId: jmaptest.AccountId,
		State:     "e-state-1",
		List:      []protocol.Email{{Id: "e1", ThreadId: "t1"}},
		NotFound:  []protocol.Id{},
	})
	srv.Respond(protocol.MethodThreadGet, protocol.GetThreadsResponse{
		AccountId: jmaptest.AccountId,
		State:     "t-state-1",
		List:      []protocol.Thread{{Id: "t1", EmailIds: []protocol.Id{"e1", "e2"}}},
		NotFound:  []protocol.Id{},
	})

	code, out, errOut := execXin(t, "trash", "e1", "--whole-thread", "--dry-run")
	if code != 0 {
		t.Fatalf("exit code = %d, want 0 (stderr: %s)", code, errOut)
	}
	env := decodeEnvelope(t, out)
	if env.Data["dryRun"] != true {
		t.Errorf("data.dryRun = %v, want true", env.Data["dryRun"])
	}
	changes, _ := env.Data["changes"].(map[string]any)
	if !reflect.DeepEqual(changes["replaceMailboxes"], []any{"mb_trash"}) {
		t.Errorf("changes.replaceMailboxes = %v, want [mb_trash]", changes["replaceMailboxes"])
	}
	applied, _ := env.Data["appliedTo"].(map[string]any)
	if applied["threadId"] != "t1" {
		t.Errorf("appliedTo.threadId = %v, want t1", applied["threadId"])
	}
	if !reflect.DeepEqual(applied["emailIds"], []any{"e1", "e2"}) {
		t.Errorf("appliedTo.emailIds = %v, want thread members", applied["emailIds"])
	}
	if n := srv.CallCount(protocol.MethodEmailSet); n != 0 {
		t.Errorf("Email/set calls = %d, want 0 on a dry run", n)
	}
}

func TestBatchDeleteNeedsForce(t *testing.T) {
	srv := setupServer(t)

	code, out, _ := execXin(t, "batch", "delete", "e1", "e2")
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	env := decodeEnvelope(t, out)
	if env.Error == nil || env.Error.Kind != envelope.KindUsage {
		t.Fatalf("error = %+v, want usage error", env.Error)
	}
	want := "deleting is permanent: re-run with --force to confirm"
	if env.Error.Message != want {
		t.Errorf("message = %q, want %q", env.Error.Message, want)
	}
	if srv.APIHits() != 0 {
		t.Errorf("API hits = %d, want 0 without --force", srv.APIHits())
	}
}

func TestBatchDeleteForced(t *testing.T) {
	srv := setupServer(t)
	srv.Respond(protocol.MethodEmailSet, protocol.SetResponse{
		AccountId: jmaptest.AccountId,
		NewState:  "e-state-2",
		Destroyed: []protocol.Id{"e1", "e2"},
	})

	code, out, errOut := execXin(t, "batch", "delete", "e1", "e2", "--force")
	if code != 0 {
		t.Fatalf("exit code = %d, want 0 (stderr: %s)", code, errOut)
	}
	env := decodeEnvelope(t, out)
	if !reflect.DeepEqual(env.Data["destroyed"], []any{"e1", "e2"}) {
		t.Errorf("data.destroyed = %v, want [e1 e2]", env.Data["destroyed"])
	}

	setArgs := jmaptest.Args(t, jmaptest.FindCall(t, srv.LastRequest(), protocol.MethodEmailSet))
	if !reflect.DeepEqual(setArgs["destroy"], []any{"e1", "e2"}) {
		t.Errorf("destroy = %v, want [e1 e2]", setArgs["destroy"])
	}
}

func TestBatchModifyPartialFailure(t *testing.T) {
	srv := setupServer(t)
	srv.Respond(protocol.MethodEmailSet, protocol.SetResponse{
		AccountId: jmaptest.AccountId,
		NewState:  "e-state-2",
		Updated:   map[protocol.Id]json.RawMessage{"e1": json.RawMessage("null")},
		NotUpdated: map[protocol.Id]protocol.SetError{
			"e2": {Type: "notFound"},
		},
	})

	code, out, _ := execXin(t, "batch", "modify", "e1", "e2", "--add-keyword", "$flagged")
	if code != 0 {
		t.Fatalf("exit code = %d, want 0 for a partial failure", code)
	}
	env := decodeEnvelope(t, out)
	if !reflect.DeepEqual(env.Data["updated"], []any{"e1"}) {
		t.Errorf("data.updated = %v, want [e1]", env.Data["updated"])
	}
	failed, _ := env.Data["failed"].([]any)
	if len(failed) != 1 {
		t.Fatalf("data.failed = %v, want one entry", env.Data["failed"])
	}
	row, _ := failed[0].(map[string]any)
	if row["id"] != "e2" {
		t.Errorf("failed[0].id = %v, want e2", row["id"])
	}
}

func TestBatchModifyNothingToChange(t *testing.T) {
	srv := setupServer(t)

	code, out, _ := execXin(t, "batch", "modify", "e1")
	if code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	env := decodeEnvelope(t, out)
	if env.Error == nil || env.Error.Kind != envelope.KindUsage {
		t.Fatalf("error = %+v, want usage error", env.Error)
	}
	if srv.APIHits() != 0 {
		t.Errorf("API hits = %d, want 0", srv.APIHits())
	}
}

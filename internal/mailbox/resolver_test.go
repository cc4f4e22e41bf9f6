package mailbox

import (
	"context"
	"testing"

	"xin/internal/envelope"
	"xin/internal/jmap/jmaptest"
	"xin/internal/jmap/protocol"
)

func TestCanonicalRole(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  string
	}{
		{"plain role", "inbox", "inbox"},
		{"uppercase role", "INBOX", "inbox"},
		{"mixed case", "Drafts", "drafts"},
		{"spam alias", "spam", "junk"},
		{"bin alias", "Bin", "trash"},
		{"important", "important", "important"},
		{"user name", "Reports", ""},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanonicalRole(tt.token); got != tt.want {
				t.Errorf("CanonicalRole(%q) = %q, want %q", tt.token, got, tt.want)
			}
		})
	}
}

func TestResolver_Resolve(t *testing.T) {
	r := NewResolver(jmaptest.StandardMailboxes())

	tests := []struct {
		name   string
		token  string
		want   protocol.Id
		wantOk bool
	}{
		{"by id", "mb_reports", "mb_reports", true},
		{"by role", "trash", "mb_trash", true},
		{"role case-insensitive", "TRASH", "mb_trash", true},
		{"spam alias", "spam", "mb_junk", true},
		{"bin alias", "bin", "mb_trash", true},
		{"role beats junk mailbox name", "Spam", "mb_junk", true},
		{"exact name", "Reports", "mb_reports", true},
		{"case-insensitive name", "rEpOrTs", "mb_reports", true},
		{"miss", "Nonexistent", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.Resolve(tt.token)
			if ok != tt.wantOk {
				t.Fatalf("Resolve(%q) ok = %v, want %v", tt.token, ok, tt.wantOk)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.token, got, tt.want)
			}
		})
	}
}

func TestResolver_IdBeatsRole(t *testing.T) {
	boxes := []protocol.Mailbox{
		{Id: "inbox", Name: "Oddly Named"},
		{Id: "mb_real_inbox", Name: "Inbox", Role: role("inbox")},
	}
	r := NewResolver(boxes)

	if got, _ := r.Resolve("inbox"); got != "inbox" {
		t.Errorf("Resolve(inbox) = %q, want the exact id match %q", got, "inbox")
	}
	if got, _ := r.Resolve("Inbox"); got != "mb_real_inbox" {
		t.Errorf("Resolve(Inbox) = %q, want the role match %q", got, "mb_real_inbox")
	}
}

func TestResolver_NormalizedNameMatch(t *testing.T) {
	// Stored precomposed, queried with a combining accent.
	boxes := []protocol.Mailbox{{Id: "mb_cafe", Name: "Café"}}
	r := NewResolver(boxes)

	if got, ok := r.Resolve("café"); !ok || got != "mb_cafe" {
		t.Errorf("Resolve(cafe + combining acute) = %q, %v; want mb_cafe, true", got, ok)
	}
}

func TestResolver_DuplicateNamesFirstWins(t *testing.T) {
	boxes := []protocol.Mailbox{
		{Id: "mb_first", Name: "Receipts"},
		{Id: "mb_second", Name: "receipts"},
	}
	r := NewResolver(boxes)

	if got, _ := r.Resolve("receipts"); got != "mb_second" {
		t.Errorf("exact name = %q, want mb_second", got)
	}
	if got, _ := r.Resolve("RECEIPTS"); got != "mb_first" {
		t.Errorf("folded name = %q, want the first mailbox mb_first", got)
	}
}

func TestResolver_Require(t *testing.T) {
	r := NewResolver(jmaptest.StandardMailboxes())
	noArchive := NewResolver([]protocol.Mailbox{
		{Id: "mb_inbox", Name: "Inbox", Role: role("inbox")},
	})

	tests := []struct {
		name     string
		r        *Resolver
		token    string
		wantId   protocol.Id
		wantKind envelope.Kind
	}{
		{"hit", r, "archive", "mb_archive", ""},
		{"core role missing", noArchive, "archive", "", envelope.KindConfig},
		{"core alias missing", noArchive, "bin", "", envelope.KindConfig},
		{"non-core role missing", noArchive, "important", "", envelope.KindUsage},
		{"user name missing", r, "Payroll", "", envelope.KindUsage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := tt.r.Require(tt.token)
			if tt.wantKind == "" {
				if err != nil {
					t.Fatalf("Require(%q) error: %v", tt.token, err)
				}
				if id != tt.wantId {
					t.Errorf("Require(%q) = %q, want %q", tt.token, id, tt.wantId)
				}
				return
			}
			if !envelope.IsKind(err, tt.wantKind) {
				t.Errorf("Require(%q) error = %v, want kind %s", tt.token, err, tt.wantKind)
			}
		})
	}
}

func TestResolver_RequireRole(t *testing.T) {
	r := NewResolver(jmaptest.StandardMailboxes())

	mb, err := r.RequireRole(RoleDrafts)
	if err != nil {
		t.Fatalf("RequireRole(drafts) error: %v", err)
	}
	if mb.Id != "mb_drafts" {
		t.Errorf("RequireRole(drafts) = %q, want mb_drafts", mb.Id)
	}

	empty := NewResolver(nil)
	if _, err := empty.RequireRole(RoleDrafts); !envelope.IsKind(err, envelope.KindConfig) {
		t.Errorf("RequireRole on empty account = %v, want a config error", err)
	}
	if _, err := empty.RequireRole(RoleSent); !envelope.IsKind(err, envelope.KindUsage) {
		t.Errorf("RequireRole(sent) on empty account = %v, want a usage error", err)
	}
}

func TestResolver_All(t *testing.T) {
	boxes := []protocol.Mailbox{
		{Id: "mb_b", Name: "Beta", SortOrder: 2},
		{Id: "mb_z", Name: "Zeta", SortOrder: 1},
		{Id: "mb_a", Name: "Alpha", SortOrder: 2},
	}
	r := NewResolver(boxes)

	got := r.All()
	wantOrder := []protocol.Id{"mb_z", "mb_a", "mb_b"}
	for i, id := range wantOrder {
		if got[i].Id != id {
			t.Errorf("All()[%d] = %q, want %q", i, got[i].Id, id)
		}
	}
	if r.Len() != 3 {
		t.Errorf("Len() = %d, want 3", r.Len())
	}
}

func TestFetch(t *testing.T) {
	server := jmaptest.NewServer(t)
	server.ServeMailboxes(jmaptest.StandardMailboxes())

	r, err := Fetch(context.Background(), server.Client(), jmaptest.AccountId)
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if id, _ := r.Resolve("inbox"); id != "mb_inbox" {
		t.Errorf("Resolve(inbox) after fetch = %q, want mb_inbox", id)
	}

	call := jmaptest.FindCall(t, server.LastRequest(), protocol.MethodMailboxGet)
	args := jmaptest.Args(t, call)
	if args["accountId"] != string(jmaptest.AccountId) {
		t.Errorf("accountId = %v, want %s", args["accountId"], jmaptest.AccountId)
	}
	if ids, present := args["ids"]; !present || ids != nil {
		t.Errorf("ids = %v (present=%v), want explicit null for a full listing", ids, present)
	}
}

func role(r string) *string { return &r }

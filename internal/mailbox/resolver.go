// Package mailbox resolves user-supplied mailbox tokens (id, role or
// name) against the account's mailbox list and issues Mailbox/set
// mutations. Resolution is local: the list is fetched once per command
// invocation and indexed, so repeated lookups never hit the network.
package mailbox

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	"xin/internal/envelope"
	"xin/internal/jmap"
	"xin/internal/jmap/protocol"
)

// The closed JMAP role set this tool recognizes.
const (
	RoleInbox     = "inbox"
	RoleTrash     = "trash"
	RoleJunk      = "junk"
	RoleSent      = "sent"
	RoleDrafts    = "drafts"
	RoleArchive   = "archive"
	RoleImportant = "important"
)

// roleAliases maps colloquial mailbox names onto JMAP roles.
var roleAliases = map[string]string{
	"spam": RoleJunk,
	"bin":  RoleTrash,
}

// coreRoles are structural mailboxes the tool depends on. Their absence
// is an account problem, not a caller mistake.
var coreRoles = map[string]bool{
	RoleInbox:   true,
	RoleTrash:   true,
	RoleArchive: true,
	RoleDrafts:  true,
}

// CanonicalRole lowercases token, applies aliases and returns the role
// when it belongs to the closed set, or "" when it does not.
func CanonicalRole(token string) string {
	role := strings.ToLower(token)
	if alias, ok := roleAliases[role]; ok {
		role = alias
	}
	switch role {
	case RoleInbox, RoleTrash, RoleJunk, RoleSent, RoleDrafts, RoleArchive, RoleImportant:
		return role
	}
	return ""
}

// fold normalizes a mailbox name for case-insensitive comparison.
// Names written with combining characters must match their precomposed
// forms, so the string is NFC-normalized before lowercasing.
func fold(s string) string {
	return strings.ToLower(norm.NFC.String(s))
}

// Resolver indexes an account's mailboxes for token lookup.
type Resolver struct {
	boxes    []protocol.Mailbox
	byId     map[protocol.Id]int
	byRole   map[string]int
	byName   map[string]int
	byFolded map[string]int
}

// NewResolver builds lookup indexes over boxes. On duplicate names the
// first mailbox in server order wins.
func NewResolver(boxes []protocol.Mailbox) *Resolver {
	r := &Resolver{
		boxes:    boxes,
		byId:     make(map[protocol.Id]int, len(boxes)),
		byRole:   make(map[string]int, len(boxes)),
		byName:   make(map[string]int, len(boxes)),
		byFolded: make(map[string]int, len(boxes)),
	}
	for i, mb := range boxes {
		r.byId[mb.Id] = i
		if mb.Role != nil && *mb.Role != "" {
			role := strings.ToLower(*mb.Role)
			if _, dup := r.byRole[role]; !dup {
				r.byRole[role] = i
			}
		}
		if _, dup := r.byName[mb.Name]; !dup {
			r.byName[mb.Name] = i
		}
		folded := fold(mb.Name)
		if _, dup := r.byFolded[folded]; !dup {
			r.byFolded[folded] = i
		}
	}
	return r
}

// Fetch retrieves the full mailbox list for the account and indexes it.
func Fetch(ctx context.Context, client *jmap.Client, accountId protocol.Id) (*Resolver, error) {
	req, err := jmap.NewBatch().
		Add(protocol.MethodMailboxGet, "mb0", protocol.GetRequest{AccountId: accountId}).
		Build()
	if err != nil {
		return nil, err
	}
	resp, err := client.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	mr, err := jmap.FindMethodResponse(resp, protocol.MethodMailboxGet, "mb0")
	if err != nil {
		return nil, err
	}
	parsed, err := protocol.ParseMailboxGetResponse(mr)
	if err != nil {
		return nil, err
	}
	return NewResolver(parsed.List), nil
}

// Resolve maps token to a mailbox id. Precedence: exact id, role
// (with aliases), exact name, case-insensitive name.
func (r *Resolver) Resolve(token string) (protocol.Id, bool) {
	if i, ok := r.byId[protocol.Id(token)]; ok {
		return r.boxes[i].Id, true
	}
	if role := CanonicalRole(token); role != "" {
		if i, ok := r.byRole[role]; ok {
			return r.boxes[i].Id, true
		}
	}
	if i, ok := r.byName[token]; ok {
		return r.boxes[i].Id, true
	}
	if i, ok := r.byFolded[fold(token)]; ok {
		return r.boxes[i].Id, true
	}
	return "", false
}

// Require resolves token or fails. A miss on a core role (inbox, trash,
// archive, drafts) means the account lacks a structural mailbox and is
// reported as a config error; any other miss is a caller mistake.
func (r *Resolver) Require(token string) (protocol.Id, error) {
	if id, ok := r.Resolve(token); ok {
		return id, nil
	}
	if role := CanonicalRole(token); role != "" && coreRoles[role] {
		return "", envelope.Configf("account has no %s mailbox", role)
	}
	return "", envelope.Usagef("unknown mailbox %q", token)
}

// RequireRole returns the mailbox carrying role, with the same
// core-versus-user error split as Require.
func (r *Resolver) RequireRole(role string) (*protocol.Mailbox, error) {
	if mb, ok := r.ByRole(role); ok {
		return mb, nil
	}
	if coreRoles[role] {
		return nil, envelope.Configf("account has no %s mailbox", role)
	}
	return nil, envelope.Usagef("account has no mailbox with role %q", role)
}

// ByRole returns the mailbox carrying role, if any. The role is taken
// literally; use CanonicalRole first for user input.
func (r *Resolver) ByRole(role string) (*protocol.Mailbox, bool) {
	if i, ok := r.byRole[role]; ok {
		return &r.boxes[i], true
	}
	return nil, false
}

// Get returns the mailbox with the given id.
func (r *Resolver) Get(id protocol.Id) (*protocol.Mailbox, bool) {
	if i, ok := r.byId[id]; ok {
		return &r.boxes[i], true
	}
	return nil, false
}

// All returns the mailboxes sorted by sortOrder, then name.
func (r *Resolver) All() []protocol.Mailbox {
	out := make([]protocol.Mailbox, len(r.boxes))
	copy(out, r.boxes)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Len reports how many mailboxes the account has.
func (r *Resolver) Len() int {
	return len(r.boxes)
}

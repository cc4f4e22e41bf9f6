package jmaptest

import (
	"xin/internal/jmap/protocol"
)

func role(r string) *string { return &r }

// StandardMailboxes returns the mailbox set most tests run against:
// the role mailboxes plus one user-named folder. The junk mailbox is
// deliberately named "Spam" so role and name lookups diverge.
func StandardMailboxes() []protocol.Mailbox {
	return []protocol.Mailbox{
		{Id: "mb_inbox", Name: "Inbox", Role: role("inbox"), SortOrder: 1},
		{Id: "mb_archive", Name: "Archive", Role: role("archive"), SortOrder: 2},
		{Id: "mb_drafts", Name: "Drafts", Role: role("drafts"), SortOrder: 3},
		{Id: "mb_sent", Name: "Sent", Role: role("sent"), SortOrder: 4},
		{Id: "mb_junk", Name: "Spam", Role: role("junk"), SortOrder: 5},
		{Id: "mb_trash", Name: "Trash", Role: role("trash"), SortOrder: 6},
		{Id: "mb_reports", Name: "Reports", SortOrder: 10},
	}
}

// ServeMailboxes answers Mailbox/get with boxes from now on.
func (s *Server) ServeMailboxes(boxes []protocol.Mailbox) {
	s.Respond(protocol.MethodMailboxGet, protocol.GetMailboxesResponse{
		AccountId: AccountId,
		State:     "mb-state-1",
		List:      boxes,
		NotFound:  []protocol.Id{},
	})
}

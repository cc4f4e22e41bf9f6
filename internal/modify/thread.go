package modify

import (
	"context"

	"xin/internal/envelope"
	"xin/internal/jmap"
	"xin/internal/jmap/protocol"
)

// ExpandThread maps an email id to its thread id plus every email id in
// that thread, in one batch: Email/get resolves the threadId and
// Thread/get follows it through a back-reference. The thread must exist
// before any mutation is attempted.
func ExpandThread(ctx context.Context, client *jmap.Client, accountId, emailId protocol.Id) (protocol.Id, []protocol.Id, error) {
	req, err := jmap.NewBatch().
		Add(protocol.MethodEmailGet, "e0", protocol.GetRequest{
			AccountId:  accountId,
			Ids:        []protocol.Id{emailId},
			Properties: []string{"threadId"},
		}).
		Add(protocol.MethodThreadGet, "t0", map[string]any{
			"accountId": accountId,
			"ids":       "#e0/list/*/threadId",
		}).
		Build()
	if err != nil {
		return "", nil, err
	}
	resp, err := client.Call(ctx, req)
	if err != nil {
		return "", nil, err
	}

	er, err := jmap.FindMethodResponse(resp, protocol.MethodEmailGet, "e0")
	if err != nil {
		return "", nil, err
	}
	emails, err := protocol.ParseEmailGetResponse(er)
	if err != nil {
		return "", nil, err
	}
	if len(emails.List) == 0 {
		return "", nil, envelope.Usagef("no such email %q", emailId)
	}

	thread, err := threadFromResponse(resp, emails.List[0].ThreadId)
	if err != nil {
		return "", nil, err
	}
	return thread.Id, thread.EmailIds, nil
}

// ExpandThreadId fetches the email ids of a known thread.
func ExpandThreadId(ctx context.Context, client *jmap.Client, accountId, threadId protocol.Id) ([]protocol.Id, error) {
	req, err := jmap.NewBatch().
		Add(protocol.MethodThreadGet, "t0", protocol.GetRequest{
			AccountId: accountId,
			Ids:       []protocol.Id{threadId},
		}).
		Build()
	if err != nil {
		return nil, err
	}
	resp, err := client.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	thread, err := threadFromResponse(resp, threadId)
	if err != nil {
		return nil, err
	}
	return thread.EmailIds, nil
}

func threadFromResponse(resp *protocol.Response, threadId protocol.Id) (*protocol.Thread, error) {
	tr, err := jmap.FindMethodResponse(resp, protocol.MethodThreadGet, "t0")
	if err != nil {
		return nil, err
	}
	threads, err := protocol.ParseThreadGetResponse(tr)
	if err != nil {
		return nil, err
	}
	if len(threads.List) == 0 {
		return nil, envelope.Usagef("thread %q not found", threadId)
	}
	return &threads.List[0], nil
}

package search

import (
	"context"

	"xin/internal/envelope"
	"xin/internal/jmap"
	"xin/internal/jmap/protocol"
)

// ThreadItems fetches the summary rows of every email in a thread with
// one batch: Thread/get for the id list, Email/get through a
// back-reference for the rows, returned in thread order.
func ThreadItems(ctx context.Context, client *jmap.Client, accountId, threadId protocol.Id) ([]Summary, error) {
	req, err := jmap.NewBatch().
		Add(protocol.MethodThreadGet, "t0", protocol.GetRequest{
			AccountId: accountId,
			Ids:       []protocol.Id{threadId},
		}).
		Add(protocol.MethodEmailGet, "g1", map[string]any{
			"accountId":  accountId,
			"ids":        "#t0/list/*/emailIds",
			"properties": SummaryProperties,
		}).
		Build()
	if err != nil {
		return nil, err
	}
	resp, err := client.Call(ctx, req)
	if err != nil {
		return nil, err
	}

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

	gr, err := jmap.FindMethodResponse(resp, protocol.MethodEmailGet, "g1")
	if err != nil {
		return nil, err
	}
	getResp, err := protocol.ParseEmailGetResponse(gr)
	if err != nil {
		return nil, err
	}
	return SummarizeOrdered(threads.List[0].EmailIds, getResp.List), nil
}

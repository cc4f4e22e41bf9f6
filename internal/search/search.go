// Package search runs the two-call listing batch shared by every
// message-listing command: Email/query for the id page, Email/get for
// the summary rows, and next-page cursor emission.
package search

import (
	"context"

	"xin/internal/jmap"
	"xin/internal/jmap/protocol"
	"xin/internal/pagetoken"
)

// SummaryProperties is the Email/get projection behind listing rows.
var SummaryProperties = []string{
	"id", "threadId", "receivedAt", "subject", "from", "to",
	"preview", "hasAttachment", "mailboxIds", "keywords",
}

// Params are the cursor-relevant inputs of one listing call. They are
// exactly the fields a next-page token preserves.
type Params struct {
	Filter          map[string]any
	Position        uint32
	Limit           uint32
	CollapseThreads bool
	IsAscending     bool
}

// Summary is one listing row. Mailboxes and keywords render as
// name→true maps; unread is derived from the $seen keyword.
type Summary struct {
	EmailId       protocol.Id             `json:"emailId"`
	ThreadId      protocol.Id             `json:"threadId"`
	ReceivedAt    string                  `json:"receivedAt"`
	Subject       string                  `json:"subject"`
	From          []protocol.EmailAddress `json:"from"`
	To            []protocol.EmailAddress `json:"to"`
	Preview       string                  `json:"preview"`
	HasAttachment bool                    `json:"hasAttachment"`
	MailboxIds    map[string]bool         `json:"mailboxIds"`
	Keywords      map[string]bool         `json:"keywords"`
	Unread        bool                    `json:"unread"`
}

// Result carries the rows plus the encoded next-page cursor, empty when
// the listing is complete.
type Result struct {
	Items    []Summary
	NextPage string
}

// Run issues the batch and shapes the result.
func Run(ctx context.Context, client *jmap.Client, accountId protocol.Id, p Params) (*Result, error) {
	limit := p.Limit
	queryArgs := protocol.QueryRequest{
		AccountId:       accountId,
		Sort:            []protocol.SortOrder{{Property: "receivedAt", IsAscending: p.IsAscending}},
		Position:        p.Position,
		Limit:           &limit,
		CollapseThreads: p.CollapseThreads,
	}
	if len(p.Filter) > 0 {
		queryArgs.Filter = p.Filter
	}
	req, err := jmap.NewBatch().
		Add(protocol.MethodEmailQuery, "q1", queryArgs).
		Add(protocol.MethodEmailGet, "g1", map[string]any{
			"accountId":  accountId,
			"ids":        "#q1/ids",
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

	qr, err := jmap.FindMethodResponse(resp, protocol.MethodEmailQuery, "q1")
	if err != nil {
		return nil, err
	}
	queryResp, err := protocol.ParseEmailQueryResponse(qr)
	if err != nil {
		return nil, err
	}
	gr, err := jmap.FindMethodResponse(resp, protocol.MethodEmailGet, "g1")
	if err != nil {
		return nil, err
	}
	getResp, err := protocol.ParseEmailGetResponse(gr)
	if err != nil {
		return nil, err
	}

	result := &Result{Items: SummarizeOrdered(queryResp.Ids, getResp.List)}
	if token, emit := nextPage(p, queryResp); emit {
		result.NextPage = token
	}
	return result, nil
}

// SummarizeOrdered returns the rows in the order ids gives; Email/get
// makes no ordering promise of its own.
func SummarizeOrdered(ids []protocol.Id, list []protocol.Email) []Summary {
	byId := make(map[protocol.Id]protocol.Email, len(list))
	for _, e := range list {
		byId[e.Id] = e
	}
	items := make([]Summary, 0, len(ids))
	for _, id := range ids {
		if e, ok := byId[id]; ok {
			items = append(items, Summarize(e))
		}
	}
	return items
}

// nextPage decides whether the listing continues. With a known total
// the math is exact; without one a full page means "probably more".
func nextPage(p Params, queryResp *protocol.QueryEmailsResponse) (string, bool) {
	returned := uint32(len(queryResp.Ids))
	more := false
	if queryResp.Total != nil {
		more = p.Position+returned < *queryResp.Total
	} else {
		more = p.Limit > 0 && returned == p.Limit
	}
	if !more {
		return "", false
	}
	return pagetoken.EncodeSearch(pagetoken.Search{
		Position:        p.Position + returned,
		Limit:           p.Limit,
		CollapseThreads: p.CollapseThreads,
		IsAscending:     p.IsAscending,
		Filter:          p.Filter,
	}), true
}

// Summarize projects a fetched email onto the summary row shape.
func Summarize(e protocol.Email) Summary {
	s := Summary{
		EmailId:       e.Id,
		ThreadId:      e.ThreadId,
		ReceivedAt:    e.ReceivedAt,
		Subject:       e.Subject,
		From:          e.From,
		To:            e.To,
		Preview:       e.Preview,
		HasAttachment: e.HasAttachment,
		MailboxIds:    make(map[string]bool, len(e.MailboxIds)),
		Keywords:      make(map[string]bool, len(e.Keywords)),
		Unread:        !e.Keywords["$seen"],
	}
	if s.From == nil {
		s.From = []protocol.EmailAddress{}
	}
	if s.To == nil {
		s.To = []protocol.EmailAddress{}
	}
	for id, in := range e.MailboxIds {
		if in {
			s.MailboxIds[string(id)] = true
		}
	}
	for kw, set := range e.Keywords {
		if set {
			s.Keywords[kw] = true
		}
	}
	return s
}

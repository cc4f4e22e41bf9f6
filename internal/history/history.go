// Package history drives the Email/changes cursor: state bootstrap,
// paged change pulls and same-batch hydration of changed emails.
package history

import (
	"context"

	"xin/internal/jmap"
	"xin/internal/jmap/protocol"
	"xin/internal/pagetoken"
	"xin/internal/search"
)

// Delta mirrors the server's change arrays. Slices are always non-nil
// so consumers see stable JSON.
type Delta struct {
	Created   []protocol.Id `json:"created"`
	Updated   []protocol.Id `json:"updated"`
	Destroyed []protocol.Id `json:"destroyed"`
}

// Hydrated carries the summary rows for created and updated emails when
// the caller asked for them.
type Hydrated struct {
	Created []search.Summary `json:"created"`
	Updated []search.Summary `json:"updated"`
}

// Result is one history page.
type Result struct {
	SinceState     string    `json:"sinceState"`
	NewState       string    `json:"newState"`
	HasMoreChanges bool      `json:"hasMoreChanges"`
	Changes        Delta     `json:"changes"`
	Hydrated       *Hydrated `json:"hydrated,omitempty"`

	// NextPage is the encoded cursor for the follow-up call, set only
	// while the server reports more changes. It travels in meta, not
	// in the data document.
	NextPage string `json:"-"`
}

// Params select one pull. MaxChanges zero leaves the page size to the
// server.
type Params struct {
	SinceState string
	MaxChanges uint32
	Hydrate    bool
}

// Bootstrap reads the current Email state without transferring any
// objects, seeding a cursor that reports no spurious changes.
func Bootstrap(ctx context.Context, client *jmap.Client, accountId protocol.Id) (*Result, error) {
	req, err := jmap.NewBatch().
		Add(protocol.MethodEmailGet, "g0", protocol.GetRequest{
			AccountId: accountId,
			Ids:       []protocol.Id{},
		}).
		Build()
	if err != nil {
		return nil, err
	}
	resp, err := client.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	mr, err := jmap.FindMethodResponse(resp, protocol.MethodEmailGet, "g0")
	if err != nil {
		return nil, err
	}
	parsed, err := protocol.ParseEmailGetResponse(mr)
	if err != nil {
		return nil, err
	}
	return &Result{
		SinceState: parsed.State,
		NewState:   parsed.State,
		Changes:    emptyDelta(),
	}, nil
}

// Pull fetches one page of changes since p.SinceState. With Hydrate the
// created and updated summaries ride in the same HTTP request through
// back-references.
func Pull(ctx context.Context, client *jmap.Client, accountId protocol.Id, p Params) (*Result, error) {
	changesArgs := protocol.ChangesRequest{
		AccountId:  accountId,
		SinceState: p.SinceState,
	}
	if p.MaxChanges > 0 {
		max := p.MaxChanges
		changesArgs.MaxChanges = &max
	}
	b := jmap.NewBatch().Add(protocol.MethodEmailChanges, "c0", changesArgs)
	if p.Hydrate {
		b.Add(protocol.MethodEmailGet, "h1", map[string]any{
			"accountId":  accountId,
			"ids":        "#c0/created",
			"properties": search.SummaryProperties,
		})
		b.Add(protocol.MethodEmailGet, "h2", map[string]any{
			"accountId":  accountId,
			"ids":        "#c0/updated",
			"properties": search.SummaryProperties,
		})
	}
	req, err := b.Build()
	if err != nil {
		return nil, err
	}
	resp, err := client.Call(ctx, req)
	if err != nil {
		return nil, err
	}

	cr, err := jmap.FindMethodResponse(resp, protocol.MethodEmailChanges, "c0")
	if err != nil {
		return nil, err
	}
	changes, err := protocol.ParseChangesResponse(cr)
	if err != nil {
		return nil, err
	}

	result := &Result{
		SinceState:     p.SinceState,
		NewState:       changes.NewState,
		HasMoreChanges: changes.HasMoreChanges,
		Changes: Delta{
			Created:   orIds(changes.Created),
			Updated:   orIds(changes.Updated),
			Destroyed: orIds(changes.Destroyed),
		},
	}
	if changes.HasMoreChanges {
		result.NextPage = pagetoken.EncodeChanges(pagetoken.Changes{
			SinceState: changes.NewState,
			MaxChanges: p.MaxChanges,
		})
	}
	if p.Hydrate {
		hydrated, err := hydratedSummaries(resp, changes)
		if err != nil {
			return nil, err
		}
		result.Hydrated = hydrated
	}
	return result, nil
}

func hydratedSummaries(resp *protocol.Response, changes *protocol.ChangesResponse) (*Hydrated, error) {
	created, err := summariesFor(resp, "h1", changes.Created)
	if err != nil {
		return nil, err
	}
	updated, err := summariesFor(resp, "h2", changes.Updated)
	if err != nil {
		return nil, err
	}
	return &Hydrated{Created: created, Updated: updated}, nil
}

func summariesFor(resp *protocol.Response, tag string, ids []protocol.Id) ([]search.Summary, error) {
	mr, err := jmap.FindMethodResponse(resp, protocol.MethodEmailGet, tag)
	if err != nil {
		return nil, err
	}
	parsed, err := protocol.ParseEmailGetResponse(mr)
	if err != nil {
		return nil, err
	}
	return search.SummarizeOrdered(ids, parsed.List), nil
}

func emptyDelta() Delta {
	return Delta{
		Created:   []protocol.Id{},
		Updated:   []protocol.Id{},
		Destroyed: []protocol.Id{},
	}
}

func orIds(ids []protocol.Id) []protocol.Id {
	if ids == nil {
		return []protocol.Id{}
	}
	return ids
}

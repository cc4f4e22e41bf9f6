// Package modify plans and applies mailbox and keyword changes to
// emails: auto-routed --add/--remove tokens, the archive/read/unread/
// trash sugar, batched Email/set updates and destroys.
package modify

import (
	"context"

	"xin/internal/envelope"
	"xin/internal/jmap"
	"xin/internal/jmap/protocol"
	"xin/internal/mailbox"
)

// SeenKeyword marks read email.
const SeenKeyword = "$seen"

// Plan is the normalized change set applied to every target email.
// ReplaceMailboxes, when non-nil, replaces the whole mailbox set and
// excludes the additive mailbox fields.
type Plan struct {
	AddMailboxes     []protocol.Id `json:"addMailboxes,omitempty"`
	RemoveMailboxes  []protocol.Id `json:"removeMailboxes,omitempty"`
	AddKeywords      []string      `json:"addKeywords,omitempty"`
	RemoveKeywords   []string      `json:"removeKeywords,omitempty"`
	ReplaceMailboxes []protocol.Id `json:"replaceMailboxes,omitempty"`
}

// Tokens carries the raw command-line change arguments. Add and Remove
// are auto-routed through the resolver; the explicit fields bypass
// routing (mailbox tokens are still resolved to ids, keywords are taken
// verbatim).
type Tokens struct {
	Add             []string
	Remove          []string
	AddMailboxes    []string
	RemoveMailboxes []string
	AddKeywords     []string
	RemoveKeywords  []string
}

func (t Tokens) needsResolver() bool {
	return len(t.Add) > 0 || len(t.Remove) > 0 ||
		len(t.AddMailboxes) > 0 || len(t.RemoveMailboxes) > 0
}

// BuildPlan classifies tokens into a plan. A token that resolves to a
// mailbox is a mailbox change; anything else is a keyword. r may be nil
// only for keyword-only token sets.
func BuildPlan(r *mailbox.Resolver, t Tokens) (*Plan, error) {
	if r == nil && t.needsResolver() {
		return nil, envelope.Usagef("mailbox arguments need a mailbox listing")
	}
	p := &Plan{}
	for _, tok := range t.Add {
		if id, ok := r.Resolve(tok); ok {
			p.AddMailboxes = append(p.AddMailboxes, id)
		} else {
			p.AddKeywords = append(p.AddKeywords, tok)
		}
	}
	for _, tok := range t.Remove {
		if id, ok := r.Resolve(tok); ok {
			p.RemoveMailboxes = append(p.RemoveMailboxes, id)
		} else {
			p.RemoveKeywords = append(p.RemoveKeywords, tok)
		}
	}
	for _, tok := range t.AddMailboxes {
		id, err := r.Require(tok)
		if err != nil {
			return nil, err
		}
		p.AddMailboxes = append(p.AddMailboxes, id)
	}
	for _, tok := range t.RemoveMailboxes {
		id, err := r.Require(tok)
		if err != nil {
			return nil, err
		}
		p.RemoveMailboxes = append(p.RemoveMailboxes, id)
	}
	p.AddKeywords = append(p.AddKeywords, t.AddKeywords...)
	p.RemoveKeywords = append(p.RemoveKeywords, t.RemoveKeywords...)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate enforces the plan invariants.
func (p *Plan) Validate() error {
	if p.ReplaceMailboxes != nil && (len(p.AddMailboxes) > 0 || len(p.RemoveMailboxes) > 0) {
		return envelope.Usagef("replacing the mailbox set cannot be combined with mailbox add/remove")
	}
	if p.Empty() {
		return envelope.Usagef("nothing to change: give at least one mailbox or keyword")
	}
	return nil
}

// Empty reports whether the plan changes anything at all.
func (p *Plan) Empty() bool {
	return len(p.AddMailboxes) == 0 && len(p.RemoveMailboxes) == 0 &&
		len(p.AddKeywords) == 0 && len(p.RemoveKeywords) == 0 &&
		p.ReplaceMailboxes == nil
}

// Patch renders the plan as one Email/set patch object.
func (p *Plan) Patch() map[string]any {
	patch := make(map[string]any)
	if p.ReplaceMailboxes != nil {
		replacement := make(map[string]bool, len(p.ReplaceMailboxes))
		for _, id := range p.ReplaceMailboxes {
			replacement[string(id)] = true
		}
		patch["mailboxIds"] = replacement
	} else {
		for _, id := range p.AddMailboxes {
			patch["mailboxIds/"+string(id)] = true
		}
		for _, id := range p.RemoveMailboxes {
			patch["mailboxIds/"+string(id)] = nil
		}
	}
	for _, kw := range p.AddKeywords {
		patch["keywords/"+kw] = true
	}
	for _, kw := range p.RemoveKeywords {
		patch["keywords/"+kw] = nil
	}
	return patch
}

// ArchivePlan removes inbox and adds the archive mailbox when the
// account has one.
func ArchivePlan(r *mailbox.Resolver) (*Plan, error) {
	inbox, err := r.RequireRole(mailbox.RoleInbox)
	if err != nil {
		return nil, err
	}
	p := &Plan{RemoveMailboxes: []protocol.Id{inbox.Id}}
	if archive, ok := r.ByRole(mailbox.RoleArchive); ok {
		p.AddMailboxes = []protocol.Id{archive.Id}
	}
	return p, nil
}

// ReadPlan toggles the $seen keyword.
func ReadPlan(markSeen bool) *Plan {
	if markSeen {
		return &Plan{AddKeywords: []string{SeenKeyword}}
	}
	return &Plan{RemoveKeywords: []string{SeenKeyword}}
}

// TrashPlan replaces the whole mailbox set with the trash mailbox,
// matching the move semantics users expect from other mail tools.
func TrashPlan(r *mailbox.Resolver) (*Plan, error) {
	trash, err := r.RequireRole(mailbox.RoleTrash)
	if err != nil {
		return nil, err
	}
	return &Plan{ReplaceMailboxes: []protocol.Id{trash.Id}}, nil
}

// Failure is one server-rejected target.
type Failure struct {
	Id        protocol.Id       `json:"id"`
	JMAPError protocol.SetError `json:"jmapError"`
}

// Outcome reports an update run, in input order.
type Outcome struct {
	Updated []protocol.Id `json:"updated"`
	Failed  []Failure     `json:"failed,omitempty"`
}

// Apply updates every id with the plan's patch in a single Email/set.
func Apply(ctx context.Context, client *jmap.Client, accountId protocol.Id, ids []protocol.Id, p *Plan) (*Outcome, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, envelope.Usagef("no emails to modify")
	}
	patch := p.Patch()
	update := make(map[protocol.Id]map[string]any, len(ids))
	for _, id := range ids {
		update[id] = patch
	}
	set, err := callEmailSet(ctx, client, protocol.SetRequest{
		AccountId: accountId,
		Update:    update,
	})
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{Updated: []protocol.Id{}}
	for _, id := range ids {
		if se, failed := set.NotUpdated[id]; failed {
			outcome.Failed = append(outcome.Failed, Failure{Id: id, JMAPError: se})
			continue
		}
		if _, ok := set.Updated[id]; ok {
			outcome.Updated = append(outcome.Updated, id)
		}
	}
	return outcome, nil
}

// DeleteOutcome reports a destroy run, in input order.
type DeleteOutcome struct {
	Destroyed []protocol.Id `json:"destroyed"`
	Failed    []Failure     `json:"failed,omitempty"`
}

// Delete destroys the ids outright. Confirmation gating happens in the
// command layer; by this point the caller has committed.
func Delete(ctx context.Context, client *jmap.Client, accountId protocol.Id, ids []protocol.Id) (*DeleteOutcome, error) {
	if len(ids) == 0 {
		return nil, envelope.Usagef("no emails to delete")
	}
	set, err := callEmailSet(ctx, client, protocol.SetRequest{
		AccountId: accountId,
		Destroy:   ids,
	})
	if err != nil {
		return nil, err
	}

	destroyed := make(map[protocol.Id]bool, len(set.Destroyed))
	for _, id := range set.Destroyed {
		destroyed[id] = true
	}
	outcome := &DeleteOutcome{Destroyed: []protocol.Id{}}
	for _, id := range ids {
		if se, failed := set.NotDestroyed[id]; failed {
			outcome.Failed = append(outcome.Failed, Failure{Id: id, JMAPError: se})
			continue
		}
		if destroyed[id] {
			outcome.Destroyed = append(outcome.Destroyed, id)
		}
	}
	return outcome, nil
}

func callEmailSet(ctx context.Context, client *jmap.Client, args protocol.SetRequest) (*protocol.SetResponse, error) {
	req, err := jmap.NewBatch().
		Add(protocol.MethodEmailSet, "s0", args).
		Build()
	if err != nil {
		return nil, err
	}
	resp, err := client.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	mr, err := jmap.FindMethodResponse(resp, protocol.MethodEmailSet, "s0")
	if err != nil {
		return nil, err
	}
	return protocol.ParseSetResponse(mr)
}

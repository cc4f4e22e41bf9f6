package mailbox

import (
	"context"
	"encoding/json"
	"fmt"

	"xin/internal/envelope"
	"xin/internal/jmap"
	"xin/internal/jmap/protocol"
)

// CreateSpec describes a mailbox to create. ParentId must already be
// resolved to a server id.
type CreateSpec struct {
	Name     string
	ParentId *protocol.Id
	Role     string
}

type mailboxCreate struct {
	Name     string       `json:"name"`
	ParentId *protocol.Id `json:"parentId,omitempty"`
	Role     *string      `json:"role,omitempty"`
}

// Create makes a new mailbox and returns it as the server reported it,
// with the requested name filled in (servers echo only server-set
// properties).
func Create(ctx context.Context, client *jmap.Client, accountId protocol.Id, spec CreateSpec) (*protocol.Mailbox, error) {
	if spec.Name == "" {
		return nil, envelope.Usagef("mailbox name must not be empty")
	}
	create := mailboxCreate{Name: spec.Name, ParentId: spec.ParentId}
	if spec.Role != "" {
		role := CanonicalRole(spec.Role)
		if role == "" {
			return nil, envelope.Usagef("unknown mailbox role %q", spec.Role)
		}
		create.Role = &role
	}
	set, err := callSet(ctx, client, protocol.SetRequest{
		AccountId: accountId,
		Create:    map[protocol.Id]interface{}{"m1": create},
	})
	if err != nil {
		return nil, err
	}
	if se, ok := set.NotCreated["m1"]; ok {
		return nil, setError(se, fmt.Sprintf("could not create mailbox %q", spec.Name))
	}
	raw, ok := set.Created["m1"]
	if !ok {
		return nil, envelope.JMAPErrf("server reported neither created nor notCreated for mailbox %q", spec.Name)
	}
	var mb protocol.Mailbox
	if err := json.Unmarshal(raw, &mb); err != nil {
		return nil, envelope.JMAPErrf("malformed Mailbox/set created entry: %v", err)
	}
	if mb.Name == "" {
		mb.Name = spec.Name
	}
	return &mb, nil
}

// Rename changes a mailbox's display name.
func Rename(ctx context.Context, client *jmap.Client, accountId, id protocol.Id, newName string) error {
	if newName == "" {
		return envelope.Usagef("mailbox name must not be empty")
	}
	return Update(ctx, client, accountId, id, map[string]any{"name": newName})
}

// Update applies an arbitrary property patch to one mailbox.
func Update(ctx context.Context, client *jmap.Client, accountId, id protocol.Id, patch map[string]any) error {
	if len(patch) == 0 {
		return envelope.Usagef("nothing to change")
	}
	set, err := callSet(ctx, client, protocol.SetRequest{
		AccountId: accountId,
		Update:    map[protocol.Id]map[string]any{id: patch},
	})
	if err != nil {
		return err
	}
	if se, ok := set.NotUpdated[id]; ok {
		return setError(se, fmt.Sprintf("could not update mailbox %s", id))
	}
	return nil
}

// Delete destroys a mailbox. When removeEmails is true the server is
// told to delete the contained emails instead of refusing on a
// non-empty mailbox.
func Delete(ctx context.Context, client *jmap.Client, accountId, id protocol.Id, removeEmails bool) error {
	req := protocol.SetRequest{
		AccountId: accountId,
		Destroy:   []protocol.Id{id},
	}
	if removeEmails {
		req.OnDestroyRemoveEmails = &removeEmails
	}
	set, err := callSet(ctx, client, req)
	if err != nil {
		return err
	}
	if se, ok := set.NotDestroyed[id]; ok {
		return setError(se, fmt.Sprintf("could not delete mailbox %s", id))
	}
	return nil
}

func callSet(ctx context.Context, client *jmap.Client, args protocol.SetRequest) (*protocol.SetResponse, error) {
	req, err := jmap.NewBatch().
		Add(protocol.MethodMailboxSet, "ms0", args).
		Build()
	if err != nil {
		return nil, err
	}
	resp, err := client.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	mr, err := jmap.FindMethodResponse(resp, protocol.MethodMailboxSet, "ms0")
	if err != nil {
		return nil, err
	}
	return protocol.ParseSetResponse(mr)
}

// setError converts a per-object SetError into a command error,
// preferring the server's description when it has one.
func setError(se protocol.SetError, fallback string) error {
	desc := fallback
	if se.Description != nil && *se.Description != "" {
		desc = *se.Description
	}
	return envelope.JMAPMethodErr(se.Type, desc)
}

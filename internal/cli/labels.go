package cli

import (
	"github.com/spf13/cobra"

	"xin/internal/envelope"
	"xin/internal/jmap"
	"xin/internal/jmap/protocol"
	"xin/internal/mailbox"
)

type mailboxData struct {
	Mailbox *protocol.Mailbox `json:"mailbox"`
}

func newLabelsCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "labels",
		Aliases: []string{"mailboxes"},
		Short:   "Inspect and manage mailboxes",
	}
	cmd.AddCommand(
		newLabelsListCmd(a),
		newLabelsGetCmd(a),
		newLabelsCreateCmd(a),
		newLabelsRenameCmd(a),
		newLabelsModifyCmd(a),
		newLabelsDeleteCmd(a),
	)
	return cmd
}

func newLabelsListCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all mailboxes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.dispatch(cmd.Context(), "labels.list", func(inv *invocation) (any, envelope.Meta, error) {
				r, err := inv.mailboxes()
				if err != nil {
					return nil, envelope.Meta{}, err
				}
				return struct {
					Mailboxes []protocol.Mailbox `json:"mailboxes"`
				}{r.All()}, envelope.Meta{}, nil
			})
		},
	}
}

func newLabelsGetCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "get MAILBOX",
		Short: "Show one mailbox by name, role or id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.dispatch(cmd.Context(), "labels.get", func(inv *invocation) (any, envelope.Meta, error) {
				r, err := inv.mailboxes()
				if err != nil {
					return nil, envelope.Meta{}, err
				}
				id, err := r.Require(args[0])
				if err != nil {
					return nil, envelope.Meta{}, err
				}
				mb, ok := r.Get(id)
				if !ok {
					return nil, envelope.Meta{}, envelope.JMAPErrf("mailbox %s resolved but is not in the listing", id)
				}
				return mailboxData{mb}, envelope.Meta{}, nil
			})
		},
	}
}

func newLabelsCreateCmd(a *App) *cobra.Command {
	var (
		parent string
		role   string
	)
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a mailbox",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			return a.dispatch(cmd.Context(), "labels.create", func(inv *invocation) (any, envelope.Meta, error) {
				spec := mailbox.CreateSpec{Name: name, Role: role}
				if parent != "" {
					r, err := inv.mailboxes()
					if err != nil {
						return nil, envelope.Meta{}, err
					}
					id, err := r.Require(parent)
					if err != nil {
						return nil, envelope.Meta{}, err
					}
					spec.ParentId = &id
				}
				if inv.app.dryRun {
					return struct {
						DryRun bool         `json:"dryRun"`
						Create createReport `json:"create"`
					}{true, createReport{name, spec.ParentId, role}}, envelope.Meta{}, nil
				}
				client, acct, err := inv.session()
				if err != nil {
					return nil, envelope.Meta{}, err
				}
				mb, err := mailbox.Create(inv.ctx, client, acct, spec)
				if err != nil {
					return nil, envelope.Meta{}, err
				}
				return mailboxData{mb}, envelope.Meta{}, nil
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&parent, "parent", "", "parent mailbox (name, role or id)")
	f.StringVar(&role, "role", "", "IANA mailbox role such as archive or junk")
	return cmd
}

type createReport struct {
	Name     string       `json:"name"`
	ParentId *protocol.Id `json:"parentId,omitempty"`
	Role     string       `json:"role,omitempty"`
}

func newLabelsRenameCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rename MAILBOX NEW_NAME",
		Short: "Rename a mailbox",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.dispatch(cmd.Context(), "labels.rename", func(inv *invocation) (any, envelope.Meta, error) {
				r, err := inv.mailboxes()
				if err != nil {
					return nil, envelope.Meta{}, err
				}
				id, err := r.Require(args[0])
				if err != nil {
					return nil, envelope.Meta{}, err
				}
				if inv.app.dryRun {
					return struct {
						DryRun    bool        `json:"dryRun"`
						MailboxId protocol.Id `json:"mailboxId"`
						NewName   string      `json:"newName"`
					}{true, id, args[1]}, envelope.Meta{}, nil
				}
				client, acct, err := inv.session()
				if err != nil {
					return nil, envelope.Meta{}, err
				}
				if err := mailbox.Rename(inv.ctx, client, acct, id, args[1]); err != nil {
					return nil, envelope.Meta{}, err
				}
				return fetchMailbox(inv, id)
			})
		},
	}
}

func newLabelsModifyCmd(a *App) *cobra.Command {
	var (
		name       string
		parent     string
		subscribed bool
		sortOrder  uint32
	)
	cmd := &cobra.Command{
		Use:   "modify MAILBOX",
		Short: "Change mailbox properties",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			return a.dispatch(cmd.Context(), "labels.modify", func(inv *invocation) (any, envelope.Meta, error) {
				r, err := inv.mailboxes()
				if err != nil {
					return nil, envelope.Meta{}, err
				}
				id, err := r.Require(args[0])
				if err != nil {
					return nil, envelope.Meta{}, err
				}
				patch := map[string]any{}
				if flags.Changed("name") {
					patch["name"] = name
				}
				if flags.Changed("parent") {
					if parent == "" {
						patch["parentId"] = nil
					} else {
						pid, err := r.Require(parent)
						if err != nil {
							return nil, envelope.Meta{}, err
						}
						patch["parentId"] = pid
					}
				}
				if flags.Changed("subscribed") {
					patch["isSubscribed"] = subscribed
				}
				if flags.Changed("sort-order") {
					patch["sortOrder"] = sortOrder
				}
				if len(patch) == 0 {
					return nil, envelope.Meta{}, envelope.Usagef("nothing to change: give at least one of --name, --parent, --subscribed or --sort-order")
				}
				if inv.app.dryRun {
					return struct {
						DryRun    bool           `json:"dryRun"`
						MailboxId protocol.Id    `json:"mailboxId"`
						Changes   map[string]any `json:"changes"`
					}{true, id, patch}, envelope.Meta{}, nil
				}
				client, acct, err := inv.session()
				if err != nil {
					return nil, envelope.Meta{}, err
				}
				if err := mailbox.Update(inv.ctx, client, acct, id, patch); err != nil {
					return nil, envelope.Meta{}, err
				}
				return fetchMailbox(inv, id)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&name, "name", "", "new display name")
	f.StringVar(&parent, "parent", "", "new parent mailbox; empty moves it to the top level")
	f.BoolVar(&subscribed, "subscribed", false, "subscription state")
	f.Uint32Var(&sortOrder, "sort-order", 0, "client ordering hint")
	return cmd
}

func newLabelsDeleteCmd(a *App) *cobra.Command {
	var removeEmails bool
	cmd := &cobra.Command{
		Use:   "delete MAILBOX",
		Short: "Delete a mailbox",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.dispatch(cmd.Context(), "labels.delete", func(inv *invocation) (any, envelope.Meta, error) {
				if !inv.app.force {
					return nil, envelope.Meta{}, envelope.Usagef("deleting a mailbox is permanent: re-run with --force to confirm")
				}
				r, err := inv.mailboxes()
				if err != nil {
					return nil, envelope.Meta{}, err
				}
				id, err := r.Require(args[0])
				if err != nil {
					return nil, envelope.Meta{}, err
				}
				if inv.app.dryRun {
					return struct {
						DryRun       bool        `json:"dryRun"`
						MailboxId    protocol.Id `json:"mailboxId"`
						RemoveEmails bool        `json:"removeEmails"`
					}{true, id, removeEmails}, envelope.Meta{}, nil
				}
				client, acct, err := inv.session()
				if err != nil {
					return nil, envelope.Meta{}, err
				}
				if err := mailbox.Delete(inv.ctx, client, acct, id, removeEmails); err != nil {
					return nil, envelope.Meta{}, err
				}
				return struct {
					Destroyed protocol.Id `json:"destroyed"`
				}{id}, envelope.Meta{}, nil
			})
		},
	}
	cmd.Flags().BoolVar(&removeEmails, "remove-emails", false, "also delete the emails inside instead of failing on a non-empty mailbox")
	return cmd
}

// fetchMailbox re-reads one mailbox after a mutation so the envelope
// carries the server's view, not the cached listing.
func fetchMailbox(inv *invocation, id protocol.Id) (any, envelope.Meta, error) {
	client, acct, err := inv.session()
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	req, err := jmap.NewBatch().
		Add(protocol.MethodMailboxGet, "m0", protocol.GetRequest{
			AccountId: acct,
			Ids:       []protocol.Id{id},
		}).
		Build()
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	resp, err := client.Call(inv.ctx, req)
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	mr, err := jmap.FindMethodResponse(resp, protocol.MethodMailboxGet, "m0")
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	boxes, err := protocol.ParseMailboxGetResponse(mr)
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	if len(boxes.List) == 0 {
		return nil, envelope.Meta{}, envelope.JMAPErrf("mailbox %s vanished after update", id)
	}
	return mailboxData{&boxes.List[0]}, envelope.Meta{}, nil
}

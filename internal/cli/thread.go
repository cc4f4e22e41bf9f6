package cli

import (
	"github.com/spf13/cobra"

	"xin/internal/body"
	"xin/internal/envelope"
	"xin/internal/jmap"
	"xin/internal/jmap/protocol"
	"xin/internal/modify"
	"xin/internal/search"
)

// threadEmail is one row of a thread listing. Body is present only in
// full format.
type threadEmail struct {
	Email       search.Summary    `json:"email"`
	Body        *body.Body        `json:"body,omitempty"`
	Attachments []body.Attachment `json:"attachments,omitempty"`
}

type threadData struct {
	ThreadId      protocol.Id   `json:"threadId"`
	Items         []threadEmail `json:"items"`
	BodyProcessed bool          `json:"bodyProcessed,omitempty"`
}

func newThreadCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "thread",
		Short: "Operate on whole conversation threads",
	}
	cmd.AddCommand(
		newThreadGetCmd(a),
		newThreadAttachmentsCmd(a),
		newThreadModifyCmd(a),
		newThreadChangeCmd(a, "archive", "Archive every email in a thread", archivePlan),
		newThreadChangeCmd(a, "read", "Mark a whole thread as seen", readPlan),
		newThreadChangeCmd(a, "unread", "Mark a whole thread as unseen", unreadPlan),
		newThreadChangeCmd(a, "trash", "Move a whole thread to trash", trashPlan),
		newThreadDeleteCmd(a),
	)
	return cmd
}

func archivePlan(inv *invocation) (*modify.Plan, error) {
	r, err := inv.mailboxes()
	if err != nil {
		return nil, err
	}
	return modify.ArchivePlan(r)
}

func readPlan(inv *invocation) (*modify.Plan, error) { return modify.ReadPlan(true), nil }

func unreadPlan(inv *invocation) (*modify.Plan, error) { return modify.ReadPlan(false), nil }

func trashPlan(inv *invocation) (*modify.Plan, error) {
	r, err := inv.mailboxes()
	if err != nil {
		return nil, err
	}
	return modify.TrashPlan(r)
}

func newThreadGetCmd(a *App) *cobra.Command {
	var (
		format       string
		maxBodyBytes int
		strip        bool
	)
	cmd := &cobra.Command{
		Use:   "get THREAD",
		Short: "List a thread's emails, optionally with bodies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			threadId := protocol.Id(args[0])
			return a.dispatch(cmd.Context(), "thread.get", func(inv *invocation) (any, envelope.Meta, error) {
				switch format {
				case "metadata":
					if strip {
						return nil, envelope.Meta{}, envelope.Usagef("--strip only applies to --format full")
					}
					return runThreadMetadata(inv, threadId)
				case "full":
					return runThreadFull(inv, threadId, bodyLimit(maxBodyBytes), strip)
				default:
					return nil, envelope.Meta{}, envelope.Usagef("unknown format %q: use metadata or full", format)
				}
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&format, "format", "metadata", "metadata or full")
	f.IntVar(&maxBodyBytes, "max-body-bytes", body.DefaultMaxBodyBytes, "cap on each decoded body value")
	f.BoolVar(&strip, "strip", false, "strip quotes and reply chains for agent reading")
	return cmd
}

func runThreadMetadata(inv *invocation, threadId protocol.Id) (any, envelope.Meta, error) {
	client, acct, err := inv.session()
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	items, err := search.ThreadItems(inv.ctx, client, acct, threadId)
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	data := threadData{ThreadId: threadId, Items: make([]threadEmail, len(items))}
	for i, item := range items {
		data.Items[i] = threadEmail{Email: item}
	}
	return data, envelope.Meta{}, nil
}

func runThreadFull(inv *invocation, threadId protocol.Id, limit uint32, strip bool) (any, envelope.Meta, error) {
	_, acct, err := inv.session()
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	emails, err := fetchThreadEmails(inv, threadId, map[string]any{
		"accountId":           acct,
		"ids":                 "#t0/list/*/emailIds",
		"properties":          body.FullProperties,
		"fetchTextBodyValues": true,
		"fetchHTMLBodyValues": true,
		"maxBodyValueBytes":   limit,
	})
	if err != nil {
		return nil, envelope.Meta{}, err
	}

	bodies, warnings := body.DecodeMany(emails, limit)
	data := threadData{ThreadId: threadId, Items: make([]threadEmail, len(emails))}
	for i, e := range emails {
		row := threadEmail{
			Email:       search.Summarize(e),
			Attachments: body.Attachments(e),
		}
		if strip {
			text := bodies[i].Stripped()
			row.Body = &body.Body{Text: &text}
		} else {
			b := bodies[i]
			row.Body = &b
		}
		data.Items[i] = row
	}
	data.BodyProcessed = strip
	return data, envelope.Meta{Warnings: warnings}, nil
}

type threadAttachmentRow struct {
	EmailId     protocol.Id       `json:"emailId"`
	Attachments []body.Attachment `json:"attachments"`
}

func newThreadAttachmentsCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attachments THREAD",
		Short: "List every attachment in a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			threadId := protocol.Id(args[0])
			return a.dispatch(cmd.Context(), "thread.attachments", func(inv *invocation) (any, envelope.Meta, error) {
				return runThreadAttachments(inv, threadId)
			})
		},
	}
	return cmd
}

func runThreadAttachments(inv *invocation, threadId protocol.Id) (any, envelope.Meta, error) {
	_, acct, err := inv.session()
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	emails, err := fetchThreadEmails(inv, threadId, map[string]any{
		"accountId":  acct,
		"ids":        "#t0/list/*/emailIds",
		"properties": []string{"id", "hasAttachment", "attachments"},
	})
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	rows := make([]threadAttachmentRow, len(emails))
	for i, e := range emails {
		rows[i] = threadAttachmentRow{EmailId: e.Id, Attachments: body.Attachments(e)}
	}
	return struct {
		ThreadId protocol.Id           `json:"threadId"`
		Items    []threadAttachmentRow `json:"items"`
	}{threadId, rows}, envelope.Meta{}, nil
}

// fetchThreadEmails runs the Thread/get + back-referenced Email/get
// batch and returns the emails in thread order.
func fetchThreadEmails(inv *invocation, threadId protocol.Id, emailArgs map[string]any) ([]protocol.Email, error) {
	client, acct, err := inv.session()
	if err != nil {
		return nil, err
	}
	req, err := jmap.NewBatch().
		Add(protocol.MethodThreadGet, "t0", protocol.GetRequest{
			AccountId: acct,
			Ids:       []protocol.Id{threadId},
		}).
		Add(protocol.MethodEmailGet, "g1", emailArgs).
		Build()
	if err != nil {
		return nil, err
	}
	resp, err := client.Call(inv.ctx, req)
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

	byId := make(map[protocol.Id]protocol.Email, len(getResp.List))
	for _, e := range getResp.List {
		byId[e.Id] = e
	}
	ordered := make([]protocol.Email, 0, len(threads.List[0].EmailIds))
	for _, id := range threads.List[0].EmailIds {
		if e, ok := byId[id]; ok {
			ordered = append(ordered, e)
		}
	}
	return ordered, nil
}

func newThreadModifyCmd(a *App) *cobra.Command {
	var mf modifyFlags
	cmd := &cobra.Command{
		Use:   "modify THREAD",
		Short: "Apply mailbox and keyword changes to a whole thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			threadId := protocol.Id(args[0])
			return a.dispatch(cmd.Context(), "thread.modify", func(inv *invocation) (any, envelope.Meta, error) {
				return runThreadChange(inv, threadId, mf.plan)
			})
		},
	}
	mf.register(cmd)
	return cmd
}

func newThreadChangeCmd(a *App, name, short string, makePlan func(*invocation) (*modify.Plan, error)) *cobra.Command {
	return &cobra.Command{
		Use:   name + " THREAD",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			threadId := protocol.Id(args[0])
			return a.dispatch(cmd.Context(), "thread."+name, func(inv *invocation) (any, envelope.Meta, error) {
				return runThreadChange(inv, threadId, makePlan)
			})
		},
	}
}

// runThreadChange expands the thread and applies the plan to every
// member. An unknown thread surfaces as a usage error before any
// mutation; a dry run stops after expansion.
func runThreadChange(inv *invocation, threadId protocol.Id, makePlan func(*invocation) (*modify.Plan, error)) (any, envelope.Meta, error) {
	plan, err := makePlan(inv)
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	client, acct, err := inv.session()
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	emailIds, err := modify.ExpandThreadId(inv.ctx, client, acct, threadId)
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	report := modifyReport{
		Changes:   plan,
		AppliedTo: &appliedTo{ThreadId: threadId, EmailIds: emailIds},
	}
	if inv.app.dryRun {
		report.DryRun = true
		return report, envelope.Meta{}, nil
	}
	outcome, err := modify.Apply(inv.ctx, client, acct, emailIds, plan)
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	report.Updated = outcome.Updated
	report.Failed = outcome.Failed
	return report, envelope.Meta{}, nil
}

func newThreadDeleteCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete THREAD",
		Short: "Destroy every email in a thread",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			threadId := protocol.Id(args[0])
			return a.dispatch(cmd.Context(), "thread.delete", func(inv *invocation) (any, envelope.Meta, error) {
				if !inv.app.force {
					return nil, envelope.Meta{}, envelope.Usagef("deleting is permanent: re-run with --force to confirm")
				}
				client, acct, err := inv.session()
				if err != nil {
					return nil, envelope.Meta{}, err
				}
				emailIds, err := modify.ExpandThreadId(inv.ctx, client, acct, threadId)
				if err != nil {
					return nil, envelope.Meta{}, err
				}
				at := &appliedTo{ThreadId: threadId, EmailIds: emailIds}
				return runDelete(inv, emailIds, at)
			})
		},
	}
}

package cli

import (
	"github.com/spf13/cobra"

	"xin/internal/envelope"
	"xin/internal/jmap/protocol"
	"xin/internal/mailbox"
	"xin/internal/modify"
)

// appliedTo names the expanded targets of a thread-scoped change.
// ThreadId is set for a single thread, ThreadIds when the inputs
// expanded to several.
type appliedTo struct {
	ThreadId  protocol.Id   `json:"threadId,omitempty"`
	ThreadIds []protocol.Id `json:"threadIds,omitempty"`
	EmailIds  []protocol.Id `json:"emailIds"`
}

// modifyReport is the envelope payload of every modify-shaped command.
// Updated and Failed stay absent on dry runs.
type modifyReport struct {
	Changes   *modify.Plan     `json:"changes"`
	AppliedTo *appliedTo       `json:"appliedTo,omitempty"`
	DryRun    bool             `json:"dryRun,omitempty"`
	Updated   []protocol.Id    `json:"updated,omitempty"`
	Failed    []modify.Failure `json:"failed,omitempty"`
}

// deleteReport is the envelope payload of the destroy commands.
type deleteReport struct {
	AppliedTo *appliedTo       `json:"appliedTo,omitempty"`
	Destroyed []protocol.Id    `json:"destroyed"`
	Failed    []modify.Failure `json:"failed,omitempty"`
}

// modifyFlags is the change flag set shared by modify-shaped commands.
type modifyFlags struct {
	add             []string
	remove          []string
	addMailboxes    []string
	removeMailboxes []string
	addKeywords     []string
	removeKeywords  []string
}

func (mf *modifyFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringSliceVar(&mf.add, "add", nil, "mailbox or keyword to add (auto-routed)")
	f.StringSliceVar(&mf.remove, "remove", nil, "mailbox or keyword to remove (auto-routed)")
	f.StringSliceVar(&mf.addMailboxes, "add-mailbox", nil, "mailbox to add")
	f.StringSliceVar(&mf.removeMailboxes, "remove-mailbox", nil, "mailbox to remove")
	f.StringSliceVar(&mf.addKeywords, "add-keyword", nil, "keyword to add")
	f.StringSliceVar(&mf.removeKeywords, "remove-keyword", nil, "keyword to remove")
}

func (mf *modifyFlags) tokens() modify.Tokens {
	return modify.Tokens{
		Add:             mf.add,
		Remove:          mf.remove,
		AddMailboxes:    mf.addMailboxes,
		RemoveMailboxes: mf.removeMailboxes,
		AddKeywords:     mf.addKeywords,
		RemoveKeywords:  mf.removeKeywords,
	}
}

// plan builds the modify plan, fetching the mailbox listing only when a
// token could name a mailbox. Keyword-only changes stay off the
// network until Email/set.
func (mf *modifyFlags) plan(inv *invocation) (*modify.Plan, error) {
	var r *mailbox.Resolver
	if len(mf.add)+len(mf.remove)+len(mf.addMailboxes)+len(mf.removeMailboxes) > 0 {
		var err error
		r, err = inv.mailboxes()
		if err != nil {
			return nil, err
		}
	}
	return modify.BuildPlan(r, mf.tokens())
}

func newArchiveCmd(a *App) *cobra.Command {
	return newSugarModifyCmd(a, "archive", "Remove emails from the inbox", archivePlan)
}

func newReadCmd(a *App) *cobra.Command {
	return newSugarModifyCmd(a, "read", "Mark emails as seen", readPlan)
}

func newUnreadCmd(a *App) *cobra.Command {
	return newSugarModifyCmd(a, "unread", "Mark emails as unseen", unreadPlan)
}

func newTrashCmd(a *App) *cobra.Command {
	return newSugarModifyCmd(a, "trash", "Move emails to the trash mailbox", trashPlan)
}

func newSugarModifyCmd(a *App, name, short string, makePlan func(*invocation) (*modify.Plan, error)) *cobra.Command {
	var wholeThread bool
	cmd := &cobra.Command{
		Use:   name + " ID...",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := toIds(args)
			return a.dispatch(cmd.Context(), name, func(inv *invocation) (any, envelope.Meta, error) {
				return runModify(inv, ids, wholeThread, makePlan)
			})
		},
	}
	cmd.Flags().BoolVar(&wholeThread, "whole-thread", false, "expand each id to its whole thread first")
	return cmd
}

func newBatchCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Bulk operations on explicit id lists",
	}

	var mf modifyFlags
	modifyCmd := &cobra.Command{
		Use:   "modify ID...",
		Short: "Apply mailbox and keyword changes to many emails",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := toIds(args)
			return a.dispatch(cmd.Context(), "batch.modify", func(inv *invocation) (any, envelope.Meta, error) {
				return runModify(inv, ids, false, mf.plan)
			})
		},
	}
	mf.register(modifyCmd)

	deleteCmd := &cobra.Command{
		Use:   "delete ID...",
		Short: "Destroy emails permanently",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := toIds(args)
			return a.dispatch(cmd.Context(), "batch.delete", func(inv *invocation) (any, envelope.Meta, error) {
				return runDelete(inv, ids, nil)
			})
		},
	}

	cmd.AddCommand(modifyCmd, deleteCmd)
	return cmd
}

// runModify executes one change application. The plan is built (and a
// whole-thread request expanded) before the dry-run gate so the report
// shows exactly what a real run would touch; a dry run then stops
// before any Email/set.
func runModify(inv *invocation, ids []protocol.Id, wholeThread bool, makePlan func(*invocation) (*modify.Plan, error)) (any, envelope.Meta, error) {
	plan, err := makePlan(inv)
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	report := modifyReport{Changes: plan}
	targets := ids
	if wholeThread {
		at, expanded, err := expandAll(inv, ids)
		if err != nil {
			return nil, envelope.Meta{}, err
		}
		report.AppliedTo = at
		targets = expanded
	}
	if inv.app.dryRun {
		report.DryRun = true
		return report, envelope.Meta{}, nil
	}

	client, acct, err := inv.session()
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	outcome, err := modify.Apply(inv.ctx, client, acct, targets, plan)
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	report.Updated = outcome.Updated
	report.Failed = outcome.Failed
	return report, envelope.Meta{}, nil
}

// runDelete destroys the ids. The force gate runs before anything can
// touch the network; a forced dry run reports the targets and stops.
func runDelete(inv *invocation, ids []protocol.Id, at *appliedTo) (any, envelope.Meta, error) {
	if !inv.app.force {
		return nil, envelope.Meta{}, envelope.Usagef("deleting is permanent: re-run with --force to confirm")
	}
	if inv.app.dryRun {
		if at == nil {
			at = &appliedTo{EmailIds: ids}
		}
		return struct {
			AppliedTo *appliedTo `json:"appliedTo"`
			DryRun    bool       `json:"dryRun"`
		}{at, true}, envelope.Meta{}, nil
	}

	client, acct, err := inv.session()
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	outcome, err := modify.Delete(inv.ctx, client, acct, ids)
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	return deleteReport{
		AppliedTo: at,
		Destroyed: outcome.Destroyed,
		Failed:    outcome.Failed,
	}, envelope.Meta{}, nil
}

// expandAll resolves each email id to its thread and merges the member
// lists, deduplicated in first-seen order.
func expandAll(inv *invocation, ids []protocol.Id) (*appliedTo, []protocol.Id, error) {
	client, acct, err := inv.session()
	if err != nil {
		return nil, nil, err
	}
	var threadIds, all []protocol.Id
	seenThread := make(map[protocol.Id]bool)
	seenEmail := make(map[protocol.Id]bool)
	for _, id := range ids {
		threadId, emailIds, err := modify.ExpandThread(inv.ctx, client, acct, id)
		if err != nil {
			return nil, nil, err
		}
		if !seenThread[threadId] {
			seenThread[threadId] = true
			threadIds = append(threadIds, threadId)
		}
		for _, e := range emailIds {
			if !seenEmail[e] {
				seenEmail[e] = true
				all = append(all, e)
			}
		}
	}
	at := &appliedTo{EmailIds: all}
	if len(threadIds) == 1 {
		at.ThreadId = threadIds[0]
	} else {
		at.ThreadIds = threadIds
	}
	return at, all, nil
}

func toIds(args []string) []protocol.Id {
	ids := make([]protocol.Id, len(args))
	for i, a := range args {
		ids[i] = protocol.Id(a)
	}
	return ids
}

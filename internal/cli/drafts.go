package cli

import (
	"net/mail"

	"github.com/spf13/cobra"

	"xin/internal/body"
	"xin/internal/envelope"
	"xin/internal/jmap/protocol"
	"xin/internal/mailbox"
	"xin/internal/submit"
)

func newDraftsCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "drafts",
		Short: "Create, edit and send drafts",
	}
	cmd.AddCommand(
		newDraftsListCmd(a),
		newDraftsGetCmd(a),
		newDraftsCreateCmd(a),
		newDraftsUpdateCmd(a),
		newDraftsDeleteCmd(a),
		newDraftsSendCmd(a),
	)
	return cmd
}

func newDraftsListCmd(a *App) *cobra.Command {
	var (
		max  int
		page string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List drafts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// A drafts listing is a search fixed to the drafts
			// mailbox, one row per message.
			spec := searchSpec{
				query:       "in:drafts",
				page:        page,
				limit:       max,
				limitSet:    cmd.Flags().Changed("max"),
				collapse:    false,
				collapseSet: true,
			}
			return a.dispatch(cmd.Context(), "drafts.list", func(inv *invocation) (any, envelope.Meta, error) {
				return runSearch(inv, spec)
			})
		},
	}
	cmd.Flags().IntVar(&max, "max", defaultLimit, "page size (1-500)")
	cmd.Flags().StringVar(&page, "page", "", "next-page token from a previous call")
	return cmd
}

func newDraftsGetCmd(a *App) *cobra.Command {
	var (
		maxBodyBytes int
		strip        bool
	)
	cmd := &cobra.Command{
		Use:   "get ID",
		Short: "Show one draft with its body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := protocol.Id(args[0])
			return a.dispatch(cmd.Context(), "drafts.get", func(inv *invocation) (any, envelope.Meta, error) {
				return runGetFull(inv, id, bodyLimit(maxBodyBytes), nil, strip)
			})
		},
	}
	cmd.Flags().IntVar(&maxBodyBytes, "max-body-bytes", body.DefaultMaxBodyBytes, "cap on each decoded body value")
	cmd.Flags().BoolVar(&strip, "strip", false, "strip quotes and reply chains for agent reading")
	return cmd
}

func newDraftsCreateCmd(a *App) *cobra.Command {
	var cf composeFlags
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a draft without sending it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.dispatch(cmd.Context(), "drafts.create", func(inv *invocation) (any, envelope.Meta, error) {
				return runDraftsCreate(inv, &cf)
			})
		},
	}
	cf.register(cmd)
	return cmd
}

func runDraftsCreate(inv *invocation, cf *composeFlags) (any, envelope.Meta, error) {
	if err := cf.checkAddresses(); err != nil {
		return nil, envelope.Meta{}, err
	}
	ident, err := chooseIdentity(inv, cf.identity)
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	r, err := inv.mailboxes()
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	drafts, err := r.RequireRole(mailbox.RoleDrafts)
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	if inv.app.dryRun {
		return struct {
			DryRun bool     `json:"dryRun"`
			Draft  sendPlan `json:"draft"`
		}{true, sendPlan{
			IdentityId:  ident.Id,
			From:        ident.Email,
			To:          cf.to,
			Cc:          cf.cc,
			Bcc:         cf.bcc,
			Subject:     cf.subject,
			Attachments: cf.attach,
		}}, envelope.Meta{}, nil
	}
	client, acct, err := inv.session()
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	attachments, err := submit.UploadFiles(inv.ctx, client, acct, cf.attach)
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	created, err := submit.CreateDraft(inv.ctx, client, acct, drafts.Id, *ident, cf.draft(attachments))
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	return struct {
		Draft *submit.CreatedDraft `json:"draft"`
	}{created}, envelope.Meta{}, nil
}

func newDraftsUpdateCmd(a *App) *cobra.Command {
	var (
		to, cc, bcc        []string
		subject, text      string
		html               string
		attach             []string
		replaceAttachments bool
		clearAttachments   bool
	)
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Change fields of an existing draft",
		Long: `Change fields of an existing draft. Email content is immutable in
JMAP, so the server stores the result under a new id; the envelope
reports it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := protocol.Id(args[0])
			flags := cmd.Flags()
			return a.dispatch(cmd.Context(), "drafts.update", func(inv *invocation) (any, envelope.Meta, error) {
				up := submit.DraftUpdate{
					ReplaceAttachments: replaceAttachments,
					ClearAttachments:   clearAttachments,
				}
				if flags.Changed("to") {
					up.To = &to
				}
				if flags.Changed("cc") {
					up.Cc = &cc
				}
				if flags.Changed("bcc") {
					up.Bcc = &bcc
				}
				if flags.Changed("subject") {
					up.Subject = &subject
				}
				if flags.Changed("text") {
					up.TextBody = &text
				}
				if flags.Changed("html") {
					up.HtmlBody = &html
				}
				return runDraftsUpdate(inv, id, up, attach)
			})
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&to, "to", nil, "replace the recipient list")
	f.StringSliceVar(&cc, "cc", nil, "replace the carbon-copy list")
	f.StringSliceVar(&bcc, "bcc", nil, "replace the blind-copy list")
	f.StringVar(&subject, "subject", "", "new subject line")
	f.StringVar(&text, "text", "", "new plain-text body")
	f.StringVar(&html, "html", "", "new HTML body")
	f.StringArrayVar(&attach, "attach", nil, "file to add, repeatable")
	f.BoolVar(&replaceAttachments, "replace-attachments", false, "drop stored attachments, keep only the new ones")
	f.BoolVar(&clearAttachments, "clear-attachments", false, "remove every attachment")
	cmd.MarkFlagsMutuallyExclusive("clear-attachments", "attach")
	cmd.MarkFlagsMutuallyExclusive("clear-attachments", "replace-attachments")
	return cmd
}

func runDraftsUpdate(inv *invocation, id protocol.Id, up submit.DraftUpdate, attach []string) (any, envelope.Meta, error) {
	if up.To == nil && up.Cc == nil && up.Bcc == nil && up.Subject == nil &&
		up.TextBody == nil && up.HtmlBody == nil &&
		len(attach) == 0 && !up.ReplaceAttachments && !up.ClearAttachments {
		return nil, envelope.Meta{}, envelope.Usagef("nothing to change: give at least one field")
	}
	for _, group := range []*[]string{up.To, up.Cc, up.Bcc} {
		if group == nil {
			continue
		}
		for _, addr := range *group {
			if _, err := mail.ParseAddress(addr); err != nil {
				return nil, envelope.Meta{}, envelope.Usagef("invalid address %q", addr)
			}
		}
	}
	if inv.app.dryRun {
		return struct {
			DryRun  bool           `json:"dryRun"`
			EmailId protocol.Id    `json:"emailId"`
			Changes map[string]any `json:"changes"`
		}{true, id, updateChanges(up, attach)}, envelope.Meta{}, nil
	}
	client, acct, err := inv.session()
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	uploaded, err := submit.UploadFiles(inv.ctx, client, acct, attach)
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	up.Attach = uploaded
	updated, err := submit.UpdateDraft(inv.ctx, client, acct, id, up)
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	return struct {
		Draft      *submit.CreatedDraft `json:"draft"`
		ReplacedId protocol.Id          `json:"replacedId"`
	}{updated, id}, envelope.Meta{}, nil
}

// updateChanges renders a DraftUpdate for a dry-run report.
func updateChanges(up submit.DraftUpdate, attach []string) map[string]any {
	changes := map[string]any{}
	if up.To != nil {
		changes["to"] = *up.To
	}
	if up.Cc != nil {
		changes["cc"] = *up.Cc
	}
	if up.Bcc != nil {
		changes["bcc"] = *up.Bcc
	}
	if up.Subject != nil {
		changes["subject"] = *up.Subject
	}
	if up.TextBody != nil {
		changes["textBody"] = true
	}
	if up.HtmlBody != nil {
		changes["htmlBody"] = true
	}
	if len(attach) > 0 {
		changes["attach"] = attach
	}
	if up.ReplaceAttachments {
		changes["replaceAttachments"] = true
	}
	if up.ClearAttachments {
		changes["clearAttachments"] = true
	}
	return changes
}

func newDraftsDeleteCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID...",
		Short: "Destroy drafts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := toIds(args)
			return a.dispatch(cmd.Context(), "drafts.delete", func(inv *invocation) (any, envelope.Meta, error) {
				return runDelete(inv, ids, nil)
			})
		},
	}
}

func newDraftsSendCmd(a *App) *cobra.Command {
	var identity string
	cmd := &cobra.Command{
		Use:   "send ID",
		Short: "Send an existing draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := protocol.Id(args[0])
			return a.dispatch(cmd.Context(), "drafts.send", func(inv *invocation) (any, envelope.Meta, error) {
				return runDraftsSend(inv, id, identity)
			})
		},
	}
	cmd.Flags().StringVar(&identity, "identity", "", "sending identity (id or email); defaults to the first one")
	return cmd
}

func runDraftsSend(inv *invocation, id protocol.Id, identityArg string) (any, envelope.Meta, error) {
	ident, err := chooseIdentity(inv, identityArg)
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	draftsId, sentId, err := sendMailboxes(inv)
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	if inv.app.dryRun {
		return struct {
			DryRun     bool        `json:"dryRun"`
			EmailId    protocol.Id `json:"emailId"`
			IdentityId protocol.Id `json:"identityId"`
		}{true, id, ident.Id}, envelope.Meta{}, nil
	}
	client, _, err := inv.session()
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	_, subAcct, err := inv.submissionSession()
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	sub, err := submit.Send(inv.ctx, client, subAcct, submit.SendParams{
		EmailId:    id,
		IdentityId: ident.Id,
		DraftsId:   draftsId,
		SentId:     sentId,
	})
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	return struct {
		Submission *submit.Submission `json:"submission"`
	}{sub}, envelope.Meta{}, nil
}

package cli

import (
	"net/mail"

	"github.com/spf13/cobra"

	"xin/internal/envelope"
	"xin/internal/jmap/protocol"
	"xin/internal/mailbox"
	"xin/internal/submit"
)

// composeFlags are shared by send and drafts create: the full shape of
// an outgoing message.
type composeFlags struct {
	to       []string
	cc       []string
	bcc      []string
	subject  string
	text     string
	html     string
	attach   []string
	identity string
}

func (cf *composeFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringSliceVar(&cf.to, "to", nil, "recipient address, repeatable")
	f.StringSliceVar(&cf.cc, "cc", nil, "carbon-copy address, repeatable")
	f.StringSliceVar(&cf.bcc, "bcc", nil, "blind-copy address, repeatable")
	f.StringVar(&cf.subject, "subject", "", "subject line")
	f.StringVar(&cf.text, "text", "", "plain-text body")
	f.StringVar(&cf.html, "html", "", "HTML body")
	f.StringArrayVar(&cf.attach, "attach", nil, "file to attach, repeatable")
	f.StringVar(&cf.identity, "identity", "", "sending identity (id or email); defaults to the first one")
}

func (cf *composeFlags) checkAddresses() error {
	for _, group := range [][]string{cf.to, cf.cc, cf.bcc} {
		for _, addr := range group {
			if _, err := mail.ParseAddress(addr); err != nil {
				return envelope.Usagef("invalid address %q", addr)
			}
		}
	}
	return nil
}

func (cf *composeFlags) draft(attachments []submit.UploadedAttachment) submit.Draft {
	return submit.Draft{
		To:          cf.to,
		Cc:          cf.cc,
		Bcc:         cf.bcc,
		Subject:     cf.subject,
		TextBody:    cf.text,
		HtmlBody:    cf.html,
		Attachments: attachments,
	}
}

// sendPlan is the dry-run rendering of an outgoing message, everything
// that would be sent except the bodies.
type sendPlan struct {
	IdentityId  protocol.Id `json:"identityId"`
	From        string      `json:"from"`
	To          []string    `json:"to"`
	Cc          []string    `json:"cc,omitempty"`
	Bcc         []string    `json:"bcc,omitempty"`
	Subject     string      `json:"subject"`
	Attachments []string    `json:"attachments,omitempty"`
}

func newSendCmd(a *App) *cobra.Command {
	var cf composeFlags
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Compose and send an email in one step",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.dispatch(cmd.Context(), "send", func(inv *invocation) (any, envelope.Meta, error) {
				return runSend(inv, &cf)
			})
		},
	}
	cf.register(cmd)
	cmd.MarkFlagRequired("to")
	return cmd
}

func runSend(inv *invocation, cf *composeFlags) (any, envelope.Meta, error) {
	if err := cf.checkAddresses(); err != nil {
		return nil, envelope.Meta{}, err
	}
	if cf.text == "" && cf.html == "" {
		return nil, envelope.Meta{}, envelope.Usagef("give a body with --text or --html")
	}
	ident, err := chooseIdentity(inv, cf.identity)
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	draftsId, sentId, err := sendMailboxes(inv)
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	if inv.app.dryRun {
		return struct {
			DryRun bool     `json:"dryRun"`
			Send   sendPlan `json:"send"`
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
	draft, err := submit.CreateDraft(inv.ctx, client, acct, draftsId, *ident, cf.draft(attachments))
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	_, subAcct, err := inv.submissionSession()
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	sub, err := submit.Send(inv.ctx, client, subAcct, submit.SendParams{
		EmailId:    draft.EmailId,
		IdentityId: ident.Id,
		DraftsId:   draftsId,
		SentId:     sentId,
	})
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	return struct {
		Draft      *submit.CreatedDraft `json:"draft"`
		Submission *submit.Submission   `json:"submission"`
	}{draft, sub}, envelope.Meta{}, nil
}

// chooseIdentity resolves --identity against the server's list, falling
// back to the first granted identity.
func chooseIdentity(inv *invocation, arg string) (*protocol.Identity, error) {
	list, err := fetchIdentities(inv)
	if err != nil {
		return nil, err
	}
	return submit.ResolveIdentity(list, arg)
}

// sendMailboxes resolves the drafts mailbox (required) and the sent
// mailbox (optional; some servers file sent mail themselves).
func sendMailboxes(inv *invocation) (draftsId, sentId protocol.Id, err error) {
	r, err := inv.mailboxes()
	if err != nil {
		return "", "", err
	}
	drafts, err := r.RequireRole(mailbox.RoleDrafts)
	if err != nil {
		return "", "", err
	}
	if sent, ok := r.ByRole(mailbox.RoleSent); ok {
		sentId = sent.Id
	}
	return drafts.Id, sentId, nil
}

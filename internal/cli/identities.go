package cli

import (
	"github.com/spf13/cobra"

	"xin/internal/envelope"
	"xin/internal/jmap/protocol"
	"xin/internal/submit"
)

func newIdentitiesCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identities",
		Short: "List the sending identities the server grants you",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List all sending identities",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.dispatch(cmd.Context(), "identities.list", func(inv *invocation) (any, envelope.Meta, error) {
					list, err := fetchIdentities(inv)
					if err != nil {
						return nil, envelope.Meta{}, err
					}
					return struct {
						Identities []protocol.Identity `json:"identities"`
					}{list}, envelope.Meta{}, nil
				})
			},
		},
		&cobra.Command{
			Use:   "get IDENTITY",
			Short: "Show one identity by id or email address",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.dispatch(cmd.Context(), "identities.get", func(inv *invocation) (any, envelope.Meta, error) {
					list, err := fetchIdentities(inv)
					if err != nil {
						return nil, envelope.Meta{}, err
					}
					ident, err := submit.ResolveIdentity(list, args[0])
					if err != nil {
						return nil, envelope.Meta{}, err
					}
					return struct {
						Identity *protocol.Identity `json:"identity"`
					}{ident}, envelope.Meta{}, nil
				})
			},
		},
	)
	return cmd
}

func fetchIdentities(inv *invocation) ([]protocol.Identity, error) {
	client, acct, err := inv.submissionSession()
	if err != nil {
		return nil, err
	}
	return submit.Identities(inv.ctx, client, acct)
}

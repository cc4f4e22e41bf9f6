package cli

import (
	"github.com/spf13/cobra"

	"xin/internal/envelope"
	"xin/internal/history"
	"xin/internal/pagetoken"
)

type historySpec struct {
	since    string
	sinceSet bool
	page     string
	max      uint32
	maxSet   bool
	hydrate  bool
}

func newHistoryCmd(a *App) *cobra.Command {
	var (
		since   string
		page    string
		max     uint32
		hydrate bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Pull email changes from a state cursor",
		Long: `Pull email changes. Without --since this bootstraps: it reports the
current state and no changes, seeding a cursor for later calls. With
--since it returns created, updated and destroyed ids since that
state, plus a nextPage token while more remain.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			spec := historySpec{
				since:    since,
				sinceSet: flags.Changed("since"),
				page:     page,
				max:      max,
				maxSet:   flags.Changed("max"),
				hydrate:  hydrate,
			}
			return a.dispatch(cmd.Context(), "history", func(inv *invocation) (any, envelope.Meta, error) {
				return runHistory(inv, spec)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&since, "since", "", "state string from a previous call")
	f.StringVar(&page, "page", "", "next-page token from a previous call")
	f.Uint32Var(&max, "max", 0, "cap on changes per page; zero lets the server pick")
	f.BoolVar(&hydrate, "hydrate", false, "include summaries of created and updated emails")
	return cmd
}

// runHistory picks the cursor source: page token, explicit state, or a
// fresh bootstrap. Repeated arguments must agree with the token before
// anything reaches Email/changes.
func runHistory(inv *invocation, spec historySpec) (any, envelope.Meta, error) {
	var params history.Params
	switch {
	case spec.page != "":
		tok, err := pagetoken.DecodeChanges(spec.page)
		if err != nil {
			return nil, envelope.Meta{}, err
		}
		var overrides pagetoken.ChangesOverrides
		if spec.sinceSet {
			overrides.SinceState = &spec.since
		}
		if spec.maxSet {
			overrides.MaxChanges = &spec.max
		}
		if err := tok.CheckArgs(overrides); err != nil {
			return nil, envelope.Meta{}, err
		}
		params = history.Params{
			SinceState: tok.SinceState,
			MaxChanges: tok.MaxChanges,
			Hydrate:    spec.hydrate,
		}
	case spec.since != "":
		params = history.Params{
			SinceState: spec.since,
			MaxChanges: spec.max,
			Hydrate:    spec.hydrate,
		}
	default:
		client, acct, err := inv.session()
		if err != nil {
			return nil, envelope.Meta{}, err
		}
		res, err := history.Bootstrap(inv.ctx, client, acct)
		if err != nil {
			return nil, envelope.Meta{}, err
		}
		return res, envelope.Meta{}, nil
	}

	client, acct, err := inv.session()
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	res, err := history.Pull(inv.ctx, client, acct, params)
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	return res, envelope.Meta{NextPage: res.NextPage}, nil
}

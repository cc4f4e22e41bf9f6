package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"xin/internal/common/logger"
	"xin/internal/envelope"
	"xin/internal/watch"
)

func newWatchCmd(a *App) *cobra.Command {
	var (
		since      string
		page       string
		checkpoint string
		max        uint32
		intervalMs int
		jitterMs   int
		once       bool
		hydrate    bool
		noEnvelope bool
		pretty     bool
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow mailbox changes as an NDJSON event stream",
		Long: `Follow mailbox changes. Events stream to stdout one JSON object per
line: ready, tick, email.change, email.hydrated, stopped, error.
Ctrl-C is a clean stop. The cursor comes from --page, then the
--checkpoint file, then --since, then a fresh bootstrap.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := watch.Options{
				Page:           page,
				CheckpointPath: checkpoint,
				Since:          since,
				MaxChanges:     max,
				Hydrate:        hydrate,
				Interval:       time.Duration(intervalMs) * time.Millisecond,
				Jitter:         time.Duration(jitterMs) * time.Millisecond,
				Once:           once,
			}
			return a.runWatch(cmd.Context(), opts, noEnvelope, pretty)
		},
	}
	f := cmd.Flags()
	f.StringVar(&since, "since", "", "state string to start from")
	f.StringVar(&page, "page", "", "cursor token; wins over every other source")
	f.StringVar(&checkpoint, "checkpoint", "", "cursor file, read at start and rewritten after every poll")
	f.Uint32Var(&max, "max", 0, "cap on changes per poll; zero lets the server pick")
	f.IntVar(&intervalMs, "interval-ms", 15000, "idle delay between polls")
	f.IntVar(&jitterMs, "jitter-ms", 1000, "extra per-poll delay budget")
	f.BoolVar(&once, "once", false, "drain the backlog, then exit instead of idling")
	f.BoolVar(&hydrate, "hydrate", false, "stream summaries of created and updated emails")
	f.BoolVar(&noEnvelope, "no-envelope", false, "skip the terminal envelope, events only")
	f.BoolVar(&pretty, "pretty", false, "indent events for reading instead of piping")
	return cmd
}

// runWatch streams events outside the dispatch path: NDJSON on stdout
// while the loop runs, then one terminal envelope unless suppressed.
func (a *App) runWatch(ctx context.Context, opts watch.Options, noEnvelope, pretty bool) error {
	inv := &invocation{app: a, ctx: ctx}
	client, acct, err := inv.session()
	if err != nil {
		// Nothing has streamed yet, so the envelope is the only
		// output; --no-envelope does not apply.
		return a.finishWatch(inv, nil, err, false)
	}
	emit := logger.NewLineWriter(a.stdout)
	if pretty {
		emit = logger.NewPrettyLineWriter(a.stdout)
	}
	outcome, err := watch.Run(ctx, client, acct, opts, emit)
	return a.finishWatch(inv, outcome, err, noEnvelope)
}

func (a *App) finishWatch(inv *invocation, outcome *watch.Outcome, err error, suppress bool) error {
	var env *envelope.Envelope
	if err != nil {
		env = envelope.Err("watch", err)
	} else {
		env = envelope.OK("watch", struct {
			Outcome *watch.Outcome `json:"outcome"`
		}{outcome})
	}
	a.exitCode = env.ExitCode()
	if suppress {
		if a.exitCode != 0 {
			return ErrSilent
		}
		return nil
	}
	if inv.resolved != nil && inv.resolved.AccountName != "" {
		env.WithAccount(inv.resolved.AccountName)
	}
	env.WithRequestID(a.requestID)
	if rerr := a.render(env); rerr != nil {
		fmt.Fprintf(a.stderr, "xin: %v\n", rerr)
		a.exitCode = 1
	}
	if a.exitCode != 0 {
		return ErrSilent
	}
	return nil
}

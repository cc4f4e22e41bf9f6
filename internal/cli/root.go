// Package cli assembles the xin command tree. Every leaf command runs
// through one dispatcher that resolves the account, executes the
// handler and renders exactly one envelope on stdout; watch and the
// raw attachment stream are the two deliberate exceptions.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"xin/internal/common/logger"
	"xin/internal/config"
	"xin/internal/envelope"
	"xin/internal/jmap"
	"xin/internal/jmap/protocol"
	"xin/internal/mailbox"
)

// ErrSilent marks an error whose envelope is already on stdout; the
// process boundary must not print it again.
var ErrSilent = errors.New("error already rendered")

// App carries one invocation's global flag state and output streams.
// Streams are injectable so tests capture output without touching the
// process file descriptors.
type App struct {
	stdout io.Writer
	stderr io.Writer

	jsonOut  bool
	plainOut bool
	account  string
	verbose  bool
	dryRun   bool
	force    bool
	noInput  bool

	requestID string
	exitCode  int
	log       *slog.Logger
}

// NewApp creates an App bound to the process streams.
func NewApp() *App {
	return &App{stdout: os.Stdout, stderr: os.Stderr}
}

// Execute parses args, dispatches the selected command and returns the
// process exit code: 0 for ok envelopes, 1 for error envelopes, 2 for
// argument-parse failures that never reached a handler.
func (a *App) Execute(ctx context.Context, args []string) int {
	a.requestID = uuid.NewString()

	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	err := root.ExecuteContext(ctx)
	switch {
	case err == nil:
		return a.exitCode
	case errors.Is(err, ErrSilent):
		return a.exitCode
	default:
		fmt.Fprintf(a.stderr, "xin: %v\n", err)
		return 2
	}
}

func (a *App) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "xin",
		Short: "Agent-first JMAP mail client",
		Long: `xin is a stateless JMAP mail client for automation. Every command
emits one JSON envelope on stdout; watch streams NDJSON events instead.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.log = logger.Setup(a.verbose, "")
		},
	}

	pf := root.PersistentFlags()
	pf.BoolVar(&a.jsonOut, "json", false, "emit the JSON envelope (default)")
	pf.BoolVar(&a.plainOut, "plain", false, "render the envelope as plain text")
	pf.StringVar(&a.account, "account", "", "configured account to use")
	pf.BoolVar(&a.verbose, "verbose", false, "debug logging on stderr")
	pf.BoolVar(&a.dryRun, "dry-run", false, "plan changes without applying them")
	pf.BoolVar(&a.force, "force", false, "confirm destructive operations")
	pf.BoolVar(&a.noInput, "no-input", false, "never prompt; fail instead")
	root.MarkFlagsMutuallyExclusive("json", "plain")

	root.AddCommand(
		newSearchCmd(a),
		newMessagesCmd(a),
		newGetCmd(a),
		newThreadCmd(a),
		newAttachmentCmd(a),
		newArchiveCmd(a),
		newReadCmd(a),
		newUnreadCmd(a),
		newTrashCmd(a),
		newBatchCmd(a),
		newInboxCmd(a),
		newLabelsCmd(a),
		newIdentitiesCmd(a),
		newSendCmd(a),
		newDraftsCmd(a),
		newHistoryCmd(a),
		newWatchCmd(a),
		newConfigCmd(a),
		newAuthCmd(a),
		newVersionCmd(a),
	)
	return root
}

// handlerFunc computes one command's envelope payload. A nil error
// means data goes out under ok:true; any error becomes the envelope's
// error object.
type handlerFunc func(inv *invocation) (any, envelope.Meta, error)

// dispatch runs fn and renders its envelope under the stable dotted
// command name. It is the only place exit codes for dispatched
// commands are decided.
func (a *App) dispatch(ctx context.Context, command string, fn handlerFunc) error {
	inv := &invocation{app: a, ctx: ctx}
	data, meta, err := fn(inv)

	var env *envelope.Envelope
	if err != nil {
		env = envelope.Err(command, err)
	} else {
		env = envelope.OK(command, data)
	}
	if inv.resolved != nil && inv.resolved.AccountName != "" {
		env.WithAccount(inv.resolved.AccountName)
	}
	env.WithMeta(meta).WithRequestID(a.requestID)

	a.exitCode = env.ExitCode()
	if rerr := a.render(env); rerr != nil {
		fmt.Fprintf(a.stderr, "xin: %v\n", rerr)
		a.exitCode = 1
	}
	if a.exitCode != 0 {
		return ErrSilent
	}
	return nil
}

func (a *App) render(env *envelope.Envelope) error {
	if a.plainOut {
		return env.RenderPlain(a.stdout)
	}
	return env.Render(a.stdout)
}

// invocation is the per-command runtime: config and session client are
// resolved lazily so commands that fail validation, or never need the
// network, provably make no requests.
type invocation struct {
	app *App
	ctx context.Context

	configPath   string
	resolved     *config.Resolved
	client       *jmap.Client
	accountId    protocol.Id
	submissionId protocol.Id
	resolver     *mailbox.Resolver
}

// path returns the config file location, resolving it once.
func (inv *invocation) path() (string, error) {
	if inv.configPath != "" {
		return inv.configPath, nil
	}
	p, err := config.Path()
	if err != nil {
		return "", err
	}
	inv.configPath = p
	return p, nil
}

// config resolves the runtime bundle for the selected account.
func (inv *invocation) config() (*config.Resolved, error) {
	if inv.resolved != nil {
		return inv.resolved, nil
	}
	path, err := inv.path()
	if err != nil {
		return nil, err
	}
	res, err := config.Resolve(path, inv.app.account)
	if err != nil {
		return nil, err
	}
	inv.resolved = res
	return res, nil
}

// session returns a ready client plus the primary mail account id,
// constructing both on first use.
func (inv *invocation) session() (*jmap.Client, protocol.Id, error) {
	if inv.accountId != "" {
		return inv.client, inv.accountId, nil
	}
	client, err := inv.connected()
	if err != nil {
		return nil, "", err
	}
	id, err := client.PrimaryAccount(inv.ctx)
	if err != nil {
		return nil, "", err
	}
	inv.accountId = id
	return client, id, nil
}

// submissionSession is session but scoped to the submission capability,
// for identity and send commands. The two account ids are cached
// separately; send uses both in one invocation.
func (inv *invocation) submissionSession() (*jmap.Client, protocol.Id, error) {
	if inv.submissionId != "" {
		return inv.client, inv.submissionId, nil
	}
	client, err := inv.connected()
	if err != nil {
		return nil, "", err
	}
	id, err := client.PrimaryAccountFor(inv.ctx, protocol.SubmissionCapability)
	if err != nil {
		return nil, "", err
	}
	inv.submissionId = id
	return client, id, nil
}

func (inv *invocation) connected() (*jmap.Client, error) {
	if inv.client != nil {
		return inv.client, nil
	}
	client, err := inv.connect()
	if err != nil {
		return nil, err
	}
	inv.client = client
	return client, nil
}

func (inv *invocation) connect() (*jmap.Client, error) {
	res, err := inv.config()
	if err != nil {
		return nil, err
	}
	if err := res.CheckReady(); err != nil {
		return nil, err
	}
	opts := res.ClientOptions()
	opts.RequestID = inv.app.requestID
	opts.Logger = inv.app.log
	return jmap.NewClient(opts), nil
}

// mailboxes fetches and caches the account's mailbox resolver.
func (inv *invocation) mailboxes() (*mailbox.Resolver, error) {
	if inv.resolver != nil {
		return inv.resolver, nil
	}
	client, acct, err := inv.session()
	if err != nil {
		return nil, err
	}
	r, err := mailbox.Fetch(inv.ctx, client, acct)
	if err != nil {
		return nil, err
	}
	inv.resolver = r
	return r, nil
}

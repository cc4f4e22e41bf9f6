package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"xin/internal/common/validation"
	"xin/internal/envelope"
	"xin/internal/pagetoken"
	"xin/internal/query"
	"xin/internal/search"
)

// defaultLimit is the page size used when the caller gives no --max.
const defaultLimit = 50

// searchData is the listing payload shared by every search-shaped
// command.
type searchData struct {
	Items []search.Summary `json:"items"`
}

// searchSpec carries one listing invocation's arguments after flag
// parsing. limitSet and the other *Set fields record whether the flag
// was given explicitly, which matters for page-token reconciliation.
type searchSpec struct {
	query      string
	filterJSON string
	page       string
	sort       string

	limit    int
	limitSet bool

	collapse    bool
	collapseSet bool

	oldest    bool
	oldestSet bool
}

func newSearchCmd(a *App) *cobra.Command {
	var (
		max        int
		page       string
		oldest     bool
		filterJSON string
		collapse   bool
		sortField  string
	)
	cmd := &cobra.Command{
		Use:   "search [QUERY]",
		Short: "Search emails with the query sugar language",
		Long: `Search emails. QUERY uses the sugar language (from: to: subject:
in: has:attachment seen: after: or:(a|b), - negates, bare words are
full-text). Results collapse to one row per thread unless
--collapse-threads=false.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec := searchSpec{
				query:       strings.Join(args, " "),
				filterJSON:  filterJSON,
				page:        page,
				sort:        sortField,
				limit:       max,
				limitSet:    cmd.Flags().Changed("max"),
				collapse:    collapse,
				collapseSet: cmd.Flags().Changed("collapse-threads"),
				oldest:      oldest,
				oldestSet:   cmd.Flags().Changed("oldest"),
			}
			return a.dispatch(cmd.Context(), "search", func(inv *invocation) (any, envelope.Meta, error) {
				return runSearch(inv, spec)
			})
		},
	}
	f := cmd.Flags()
	f.IntVar(&max, "max", defaultLimit, "page size (1-500)")
	f.StringVar(&page, "page", "", "next-page token from a previous call")
	f.BoolVar(&oldest, "oldest", false, "oldest first instead of newest first")
	f.StringVar(&filterJSON, "filter-json", "", "raw JMAP filter, inline JSON or @path")
	f.BoolVar(&collapse, "collapse-threads", true, "one row per thread")
	f.StringVar(&sortField, "sort", "received_at", "sort field")
	return cmd
}

func newMessagesCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "messages",
		Short: "Per-message listings",
	}
	var (
		max        int
		page       string
		oldest     bool
		filterJSON string
		sortField  string
	)
	searchCmd := &cobra.Command{
		Use:   "search [QUERY]",
		Short: "Search without thread collapsing",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			spec := searchSpec{
				query:       strings.Join(args, " "),
				filterJSON:  filterJSON,
				page:        page,
				sort:        sortField,
				limit:       max,
				limitSet:    cmd.Flags().Changed("max"),
				collapse:    false,
				collapseSet: true,
				oldest:      oldest,
				oldestSet:   cmd.Flags().Changed("oldest"),
			}
			return a.dispatch(cmd.Context(), "messages.search", func(inv *invocation) (any, envelope.Meta, error) {
				return runSearch(inv, spec)
			})
		},
	}
	f := searchCmd.Flags()
	f.IntVar(&max, "max", defaultLimit, "page size (1-500)")
	f.StringVar(&page, "page", "", "next-page token from a previous call")
	f.BoolVar(&oldest, "oldest", false, "oldest first instead of newest first")
	f.StringVar(&filterJSON, "filter-json", "", "raw JMAP filter, inline JSON or @path")
	f.StringVar(&sortField, "sort", "received_at", "sort field")
	cmd.AddCommand(searchCmd)
	return cmd
}

func newInboxCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "Inbox-scoped shortcuts",
	}

	var (
		max  int
		page string
		all  bool
	)
	nextCmd := &cobra.Command{
		Use:   "next [QUERY]",
		Short: "Unseen inbox mail, oldest relevance first",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := "in:inbox"
			if !all {
				q += " -seen:true"
			}
			if extra := strings.TrimSpace(strings.Join(args, " ")); extra != "" {
				q += " " + extra
			}
			spec := searchSpec{
				query:    q,
				page:     page,
				limit:    max,
				limitSet: cmd.Flags().Changed("max"),
				collapse: true,
			}
			return a.dispatch(cmd.Context(), "inbox.next", func(inv *invocation) (any, envelope.Meta, error) {
				return runSearch(inv, spec)
			})
		},
	}
	nextCmd.Flags().IntVar(&max, "max", defaultLimit, "page size (1-500)")
	nextCmd.Flags().StringVar(&page, "page", "", "next-page token from a previous call")
	nextCmd.Flags().BoolVar(&all, "all", false, "include already-seen mail")

	doCmd := &cobra.Command{
		Use:   "do",
		Short: "Apply changes to inbox search results",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.dispatch(cmd.Context(), "inbox.do", func(inv *invocation) (any, envelope.Meta, error) {
				return nil, envelope.Meta{}, envelope.NotImplemented("inbox.do")
			})
		},
	}

	cmd.AddCommand(nextCmd, doCmd)
	return cmd
}

// runSearch executes one listing. With a page token the token is the
// source of truth and explicitly repeated arguments must agree with it
// before anything reaches Email/query.
func runSearch(inv *invocation, spec searchSpec) (any, envelope.Meta, error) {
	if spec.sort != "" && spec.sort != "received_at" {
		return nil, envelope.Meta{}, envelope.Usagef("unsupported sort %q: only received_at is available", spec.sort)
	}

	var params search.Params
	var warnings []string

	if spec.page != "" {
		tok, err := pagetoken.DecodeSearch(spec.page)
		if err != nil {
			return nil, envelope.Meta{}, err
		}
		overrides, err := inv.searchOverrides(spec)
		if err != nil {
			return nil, envelope.Meta{}, err
		}
		if err := tok.CheckArgs(overrides); err != nil {
			return nil, envelope.Meta{}, err
		}
		params = search.Params{
			Filter:          tok.Filter,
			Position:        tok.Position,
			Limit:           tok.Limit,
			CollapseThreads: tok.CollapseThreads,
			IsAscending:     tok.IsAscending,
		}
	} else {
		limit, warn, err := resolveLimit(spec.limit, spec.limitSet)
		if err != nil {
			return nil, envelope.Meta{}, err
		}
		if warn != "" {
			warnings = append(warnings, warn)
		}
		filter, err := inv.compileFilter(spec.query, spec.filterJSON)
		if err != nil {
			return nil, envelope.Meta{}, err
		}
		params = search.Params{
			Filter:          filter,
			Limit:           uint32(limit),
			CollapseThreads: spec.collapse,
			IsAscending:     spec.oldest,
		}
	}

	client, acct, err := inv.session()
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	res, err := search.Run(inv.ctx, client, acct, params)
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	meta := envelope.Meta{NextPage: res.NextPage, Warnings: warnings}
	return searchData{Items: res.Items}, meta, nil
}

// searchOverrides reduces the explicitly supplied arguments to the
// override set checked against a page token. Compiling a repeated QUERY
// may need the mailbox listing; that is a Mailbox/get, never a query.
func (inv *invocation) searchOverrides(spec searchSpec) (pagetoken.SearchOverrides, error) {
	var o pagetoken.SearchOverrides
	if spec.limitSet {
		limit, _, err := resolveLimit(spec.limit, true)
		if err != nil {
			return o, err
		}
		v := uint32(limit)
		o.Limit = &v
	}
	if spec.collapseSet {
		v := spec.collapse
		o.CollapseThreads = &v
	}
	if spec.oldestSet {
		v := spec.oldest
		o.IsAscending = &v
	}
	if strings.TrimSpace(spec.query) != "" || spec.filterJSON != "" {
		filter, err := inv.compileFilter(spec.query, spec.filterJSON)
		if err != nil {
			return o, err
		}
		o.Filter = filter
	}
	return o, nil
}

// resolveLimit validates and clamps a --max value. explicit reports
// whether the flag was given; an absent flag silently takes the
// default, never a warning.
func resolveLimit(limit int, explicit bool) (int, string, error) {
	if !explicit {
		return defaultLimit, "", nil
	}
	value, clamped, err := validation.ClampLimit(limit)
	if err != nil {
		return 0, "", envelope.Usagef("%v", err)
	}
	if clamped {
		return value, "limit clamped to 500", nil
	}
	return value, "", nil
}

// compileFilter builds the Email/query filter from the sugar QUERY or
// the --filter-json escape hatch. The two are exclusive: combining them
// would need an implicit AND the caller cannot see.
func (inv *invocation) compileFilter(queryText, filterJSON string) (map[string]any, error) {
	if filterJSON != "" {
		if strings.TrimSpace(queryText) != "" {
			return nil, envelope.Usagef("QUERY and --filter-json cannot be combined; express the whole condition in --filter-json")
		}
		return query.ParseFilterJSON(filterJSON)
	}
	q, err := query.Parse(queryText)
	if err != nil {
		return nil, err
	}
	if !q.NeedsMailboxes() {
		return q.Compile(nil)
	}
	r, err := inv.mailboxes()
	if err != nil {
		return nil, err
	}
	return q.Compile(r.Require)
}

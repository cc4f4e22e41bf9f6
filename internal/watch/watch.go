// Package watch runs the long-lived polling loop over Email/changes,
// streaming one NDJSON event per line as the account's mail changes.
package watch

import (
	"context"
	"time"

	"xin/internal/common/logger"
	"xin/internal/common/pace"
	"xin/internal/envelope"
	"xin/internal/history"
	"xin/internal/jmap"
	"xin/internal/jmap/protocol"
	"xin/internal/pagetoken"
	"xin/internal/search"
)

// drainRPS caps immediate re-polls while the server keeps reporting
// more changes, so a busy account cannot hot-loop the client.
const drainRPS = 10

// Loop end reasons.
const (
	ReasonOnce  = "once"
	ReasonCtrlC = "ctrl_c"
)

// Options configure one watch run.
type Options struct {
	// Page is an explicit cursor token; it wins over every other source.
	Page string

	// CheckpointPath names the cursor file, consulted after Page and
	// rewritten after every successful poll. Empty disables persistence.
	CheckpointPath string

	// Since seeds the cursor when neither Page nor a checkpoint applies.
	Since string

	// MaxChanges bounds each page; zero leaves the size to the server.
	MaxChanges uint32

	// Hydrate attaches summary fetches to every poll.
	Hydrate bool

	// Interval is the idle sleep between polls that found no backlog.
	Interval time.Duration

	// Jitter is the budget for the deterministic fraction added to
	// Interval.
	Jitter time.Duration

	// Once stops after the first poll with no more changes.
	Once bool
}

// Outcome summarizes a finished run for the terminal envelope.
type Outcome struct {
	Reason    string `json:"reason"`
	Polls     int    `json:"polls"`
	LastState string `json:"lastState,omitempty"`
}

// Stream events. The type field discriminates; consumers must ignore
// types they do not recognize.
type readyEvent struct {
	Type       string `json:"type"`
	SinceState string `json:"sinceState"`
}

type tickEvent struct {
	Type           string `json:"type"`
	SinceState     string `json:"sinceState"`
	NewState       string `json:"newState"`
	Created        int    `json:"created"`
	Updated        int    `json:"updated"`
	Destroyed      int    `json:"destroyed"`
	HasMoreChanges bool   `json:"hasMoreChanges"`
}

type changeEvent struct {
	Type       string      `json:"type"`
	ChangeType string      `json:"changeType"`
	Id         protocol.Id `json:"id"`
}

type hydratedEvent struct {
	Type    string           `json:"type"`
	Created []search.Summary `json:"created"`
	Updated []search.Summary `json:"updated"`
}

type stoppedEvent struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type errorEvent struct {
	Type  string                 `json:"type"`
	Error *envelope.CommandError `json:"error"`
}

// Run polls until the context is cancelled, a poll fails, or Once
// finishes a drained cursor. Cancellation ends the stream with a
// stopped event and is a clean exit, not an error.
func Run(ctx context.Context, client *jmap.Client, accountId protocol.Id, opts Options, emit *logger.LineWriter) (*Outcome, error) {
	cursor, err := resolveCursor(ctx, client, accountId, opts)
	if err != nil {
		if ctx.Err() != nil {
			return stop(emit, 0, "")
		}
		return nil, emitError(emit, err)
	}
	if err := emit.Emit(readyEvent{Type: "ready", SinceState: cursor.SinceState}); err != nil {
		return nil, err
	}

	limiter := pace.New(drainRPS)
	state := cursor.SinceState
	polls := 0
	lastState := ""
	for n := uint64(0); ; n++ {
		if err := limiter.Wait(ctx); err != nil {
			return stop(emit, polls, lastState)
		}
		page, err := history.Pull(ctx, client, accountId, history.Params{
			SinceState: state,
			MaxChanges: cursor.MaxChanges,
			Hydrate:    opts.Hydrate,
		})
		if err != nil {
			if ctx.Err() != nil {
				return stop(emit, polls, lastState)
			}
			return nil, emitError(emit, err)
		}
		polls++
		lastState = page.NewState

		if err := emitChanges(emit, page); err != nil {
			return nil, err
		}

		state = page.NewState
		if opts.CheckpointPath != "" {
			next := pagetoken.Changes{SinceState: state, MaxChanges: cursor.MaxChanges}
			if err := saveCheckpoint(opts.CheckpointPath, next); err != nil {
				return nil, emitError(emit, err)
			}
		}

		if page.HasMoreChanges {
			continue
		}
		if opts.Once {
			return &Outcome{Reason: ReasonOnce, Polls: polls, LastState: lastState}, nil
		}
		if err := pace.Sleep(ctx, idleDelay(opts, n)); err != nil {
			return stop(emit, polls, lastState)
		}
	}
}

// resolveCursor picks where the loop starts: an explicit page token,
// then the checkpoint file, then --since, then a bootstrap of the
// current server state. A page token is checked against any explicit
// arguments; lower-priority sources are simply shadowed.
func resolveCursor(ctx context.Context, client *jmap.Client, accountId protocol.Id, opts Options) (pagetoken.Changes, error) {
	if opts.Page != "" {
		t, err := pagetoken.DecodeChanges(opts.Page)
		if err != nil {
			return pagetoken.Changes{}, err
		}
		if err := t.CheckArgs(overrides(opts)); err != nil {
			return pagetoken.Changes{}, err
		}
		return *t, nil
	}
	if opts.CheckpointPath != "" {
		t, err := LoadCheckpoint(opts.CheckpointPath)
		if err != nil {
			return pagetoken.Changes{}, err
		}
		if t != nil {
			return *t, nil
		}
	}
	if opts.Since != "" {
		return pagetoken.Changes{SinceState: opts.Since, MaxChanges: opts.MaxChanges}, nil
	}
	boot, err := history.Bootstrap(ctx, client, accountId)
	if err != nil {
		return pagetoken.Changes{}, err
	}
	return pagetoken.Changes{SinceState: boot.NewState, MaxChanges: opts.MaxChanges}, nil
}

func overrides(opts Options) pagetoken.ChangesOverrides {
	var o pagetoken.ChangesOverrides
	if opts.Since != "" {
		since := opts.Since
		o.SinceState = &since
	}
	if opts.MaxChanges > 0 {
		max := opts.MaxChanges
		o.MaxChanges = &max
	}
	return o
}

// emitChanges writes the tick, per-id and hydration events for one
// non-empty page. Quiet polls emit nothing.
func emitChanges(emit *logger.LineWriter, page *history.Result) error {
	delta := page.Changes
	total := len(delta.Created) + len(delta.Updated) + len(delta.Destroyed)
	if total == 0 {
		return nil
	}
	tick := tickEvent{
		Type:           "tick",
		SinceState:     page.SinceState,
		NewState:       page.NewState,
		Created:        len(delta.Created),
		Updated:        len(delta.Updated),
		Destroyed:      len(delta.Destroyed),
		HasMoreChanges: page.HasMoreChanges,
	}
	if err := emit.Emit(tick); err != nil {
		return err
	}
	for _, id := range delta.Created {
		if err := emit.Emit(changeEvent{Type: "email.change", ChangeType: "created", Id: id}); err != nil {
			return err
		}
	}
	for _, id := range delta.Updated {
		if err := emit.Emit(changeEvent{Type: "email.change", ChangeType: "updated", Id: id}); err != nil {
			return err
		}
	}
	for _, id := range delta.Destroyed {
		if err := emit.Emit(changeEvent{Type: "email.change", ChangeType: "destroyed", Id: id}); err != nil {
			return err
		}
	}
	if page.Hydrated != nil {
		hydrated := hydratedEvent{
			Type:    "email.hydrated",
			Created: page.Hydrated.Created,
			Updated: page.Hydrated.Updated,
		}
		if err := emit.Emit(hydrated); err != nil {
			return err
		}
	}
	return nil
}

// stop ends a cancelled run with its terminal stopped event.
func stop(emit *logger.LineWriter, polls int, lastState string) (*Outcome, error) {
	if err := emit.Emit(stoppedEvent{Type: "stopped", Reason: ReasonCtrlC}); err != nil {
		return nil, err
	}
	return &Outcome{Reason: ReasonCtrlC, Polls: polls, LastState: lastState}, nil
}

// emitError reports err on the stream and passes it through for the
// exit status.
func emitError(emit *logger.LineWriter, err error) error {
	ce := envelope.AsCommandError(err)
	if emitErr := emit.Emit(errorEvent{Type: "error", Error: ce}); emitErr != nil {
		return emitErr
	}
	return ce
}

// idleDelay spaces out quiet polls: the base interval plus a
// deterministic slice of the jitter budget.
func idleDelay(opts Options, n uint64) time.Duration {
	d := opts.Interval
	if opts.Jitter > 0 {
		d += time.Duration(float64(opts.Jitter) * pace.JitterFraction(n))
	}
	return d
}

// Package pagetoken encodes and decodes the opaque paging cursors
// handed out in meta.nextPage and persisted in watch checkpoints.
//
// A token is the base64url (no padding) form of a small JSON object.
// It is the source of truth for a successor call: when the caller also
// supplies arguments explicitly, every supplied field must agree with
// the token or the call is rejected before anything reaches the server.
package pagetoken

import (
	"bytes"
	"encoding/base64"
	"encoding/json"

	"xin/internal/envelope"
)

// mismatchMessage is stable contract text; scripts match on it.
const mismatchMessage = "page token does not match args"

// Search is the cursor for Email/query paging.
type Search struct {
	Position        uint32         `json:"position"`
	Limit           uint32         `json:"limit"`
	CollapseThreads bool           `json:"collapseThreads"`
	IsAscending     bool           `json:"isAscending"`
	Filter          map[string]any `json:"filter"`
}

// Changes is the cursor for Email/changes paging.
type Changes struct {
	SinceState string `json:"sinceState"`
	MaxChanges uint32 `json:"maxChanges"`
}

// SearchOverrides holds the arguments a caller supplied alongside a
// token. Nil fields were not given and pass every check.
type SearchOverrides struct {
	Position        *uint32
	Limit           *uint32
	CollapseThreads *bool
	IsAscending     *bool
	Filter          map[string]any
}

// ChangesOverrides holds the arguments a caller supplied alongside a
// token. Nil fields were not given and pass every check.
type ChangesOverrides struct {
	SinceState *string
	MaxChanges *uint32
}

// EncodeSearch serializes t. Token contents are plain JSON data, so
// encoding cannot fail.
func EncodeSearch(t Search) string {
	if t.Filter == nil {
		t.Filter = map[string]any{}
	}
	return encode(t)
}

// EncodeChanges serializes t.
func EncodeChanges(t Changes) string {
	return encode(t)
}

func encode(v any) string {
	b, _ := json.Marshal(v)
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeSearch parses a search cursor. Anything that does not decode to
// exactly a search token, including a history token, is a usage error.
func DecodeSearch(s string) (*Search, error) {
	var t Search
	if err := decode(s, &t); err != nil {
		return nil, err
	}
	if t.Limit == 0 {
		return nil, malformed()
	}
	if t.Filter == nil {
		t.Filter = map[string]any{}
	}
	return &t, nil
}

// DecodeChanges parses a history/watch cursor.
func DecodeChanges(s string) (*Changes, error) {
	var t Changes
	if err := decode(s, &t); err != nil {
		return nil, err
	}
	if t.SinceState == "" {
		return nil, malformed()
	}
	return &t, nil
}

func decode(s string, into any) error {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return malformed()
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		return malformed()
	}
	return nil
}

func malformed() error {
	return envelope.Usagef("malformed page token")
}

// CheckArgs verifies every supplied argument against the token.
func (t *Search) CheckArgs(o SearchOverrides) error {
	if o.Position != nil && *o.Position != t.Position {
		return mismatch()
	}
	if o.Limit != nil && *o.Limit != t.Limit {
		return mismatch()
	}
	if o.CollapseThreads != nil && *o.CollapseThreads != t.CollapseThreads {
		return mismatch()
	}
	if o.IsAscending != nil && *o.IsAscending != t.IsAscending {
		return mismatch()
	}
	if o.Filter != nil && !sameFilter(o.Filter, t.Filter) {
		return mismatch()
	}
	return nil
}

// CheckArgs verifies every supplied argument against the token.
func (t *Changes) CheckArgs(o ChangesOverrides) error {
	if o.SinceState != nil && *o.SinceState != t.SinceState {
		return mismatch()
	}
	if o.MaxChanges != nil && *o.MaxChanges != t.MaxChanges {
		return mismatch()
	}
	return nil
}

func mismatch() error {
	return envelope.Usagef("%s", mismatchMessage)
}

// sameFilter compares filter trees by canonical JSON; map keys marshal
// sorted, so equal trees produce equal bytes.
func sameFilter(a, b map[string]any) bool {
	if b == nil {
		b = map[string]any{}
	}
	aj, _ := json.Marshal(a)
	bj, _ := json.Marshal(b)
	return bytes.Equal(aj, bj)
}

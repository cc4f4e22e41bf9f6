// Package query compiles the search sugar language into JMAP
// Email/query filter trees.
//
// The language is one line of whitespace-separated terms. A term is a
// bare word (full-text search), a key:value pair, or an or:(a|b) group.
// Quoted spans keep their whitespace, a leading - negates a term, and
// everything combines under AND. Anything richer than that belongs in
// --filter-json.
package query

import (
	"strconv"
	"strings"
	"time"
	"unicode"

	"xin/internal/envelope"
	"xin/internal/jmap/protocol"
)

// MailboxResolver maps an in: token to a mailbox id. The mailbox
// package's Require method satisfies it.
type MailboxResolver func(token string) (protocol.Id, error)

// term is one parsed token. Exactly one of group or body is meaningful.
type term struct {
	body    string   // dequoted term text, negation stripped
	negated bool
	group   []string // dequoted or-group segments, nil otherwise
}

// Query is a parsed but not yet compiled sugar expression.
type Query struct {
	terms []term
}

// Parse tokenizes q and checks its syntax. Mailbox ids are not resolved
// here; call Compile for that.
func Parse(q string) (*Query, error) {
	raws, err := splitTokens(q)
	if err != nil {
		return nil, err
	}
	parsed := &Query{}
	for _, raw := range raws {
		t, err := parseTerm(raw)
		if err != nil {
			return nil, err
		}
		parsed.terms = append(parsed.terms, t)
	}
	return parsed, nil
}

// NeedsMailboxes reports whether compiling requires a mailbox listing,
// which is the case exactly when an in: term is present.
func (q *Query) NeedsMailboxes() bool {
	for _, t := range q.terms {
		if hasKey(t.body, "in") {
			return true
		}
		for _, seg := range t.group {
			if hasKey(seg, "in") {
				return true
			}
		}
	}
	return false
}

// Compile lowers the parsed terms to a filter tree. resolve may be nil
// when NeedsMailboxes reports false. An empty query compiles to {}.
func (q *Query) Compile(resolve MailboxResolver) (map[string]any, error) {
	conditions := make([]map[string]any, 0, len(q.terms))
	for _, t := range q.terms {
		var (
			cond map[string]any
			err  error
		)
		if t.group != nil {
			cond, err = compileGroup(t.group, resolve)
		} else {
			cond, err = compileTerm(t.body, t.negated, resolve)
		}
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, cond)
	}
	switch len(conditions) {
	case 0:
		return map[string]any{}, nil
	case 1:
		return conditions[0], nil
	}
	return operatorNode("AND", conditions), nil
}

// Compile is the one-shot form of Parse followed by Query.Compile.
func Compile(q string, resolve MailboxResolver) (map[string]any, error) {
	parsed, err := Parse(q)
	if err != nil {
		return nil, err
	}
	return parsed.Compile(resolve)
}

// splitTokens cuts q on whitespace, keeping quoted spans intact. Quote
// characters stay in the returned tokens so later stages can tell a
// quoted dash from a negation.
func splitTokens(q string) ([]string, error) {
	var (
		tokens  []string
		cur     strings.Builder
		inQuote bool
	)
	for _, r := range q {
		switch {
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case !inQuote && unicode.IsSpace(r):
			if cur.Len() > 0 {
				tokens = append(tokens, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if inQuote {
		return nil, envelope.Usagef("unterminated quote in query")
	}
	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}
	return tokens, nil
}

func parseTerm(raw string) (term, error) {
	t := term{body: raw}
	if strings.HasPrefix(raw, "-") && len(raw) > 1 {
		t.negated = true
		t.body = raw[1:]
	}
	switch {
	case strings.HasPrefix(t.body, "("):
		if t.negated {
			return term{}, envelope.Usagef("negating a group is not supported; express the query with --filter-json")
		}
		return term{}, envelope.Usagef("parenthesised grouping is not supported; express the query with --filter-json")
	case strings.HasPrefix(t.body, "or:("):
		if t.negated {
			return term{}, envelope.Usagef("negating an or:(…) group is not supported; express the query with --filter-json")
		}
		segments, err := parseGroup(t.body)
		if err != nil {
			return term{}, err
		}
		t.group = segments
		t.body = ""
	default:
		t.body = dequote(t.body)
	}
	return t, nil
}

func parseGroup(raw string) ([]string, error) {
	inner := strings.TrimPrefix(raw, "or:(")
	if !strings.HasSuffix(inner, ")") {
		return nil, envelope.Usagef("or:(…) group is missing its closing parenthesis")
	}
	inner = strings.TrimSuffix(inner, ")")
	var segments []string
	for _, seg := range splitQuoted(inner, '|') {
		seg = strings.TrimSpace(seg)
		if strings.Contains(seg, "or:(") {
			return nil, envelope.Usagef("nested or:(…) groups are not supported; express the query with --filter-json")
		}
		if strings.HasPrefix(seg, "(") {
			return nil, envelope.Usagef("parenthesised grouping is not supported; express the query with --filter-json")
		}
		seg = dequote(seg)
		if seg == "" {
			return nil, envelope.Usagef("empty term in or:(…) group")
		}
		segments = append(segments, seg)
	}
	if len(segments) == 0 {
		return nil, envelope.Usagef("empty or:(…) group")
	}
	return segments, nil
}

// splitQuoted splits s on sep outside quoted spans.
func splitQuoted(s string, sep rune) []string {
	var (
		parts   []string
		cur     strings.Builder
		inQuote bool
	)
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case !inQuote && r == sep:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	parts = append(parts, cur.String())
	return parts
}

func dequote(s string) string {
	return strings.ReplaceAll(s, `"`, "")
}

func hasKey(body, key string) bool {
	k, _, ok := strings.Cut(body, ":")
	return ok && strings.EqualFold(k, key)
}

func compileGroup(segments []string, resolve MailboxResolver) (map[string]any, error) {
	conditions := make([]map[string]any, 0, len(segments))
	for _, seg := range segments {
		cond, err := compileTerm(seg, false, resolve)
		if err != nil {
			return nil, err
		}
		conditions = append(conditions, cond)
	}
	if len(conditions) == 1 {
		return conditions[0], nil
	}
	return operatorNode("OR", conditions), nil
}

// compileTerm lowers one term to a leaf condition. Boolean-valued keys
// absorb negation by flipping (seen, flagged, attachment); everything
// else gets wrapped in a NOT node.
func compileTerm(body string, negated bool, resolve MailboxResolver) (map[string]any, error) {
	key, value, hasColon := strings.Cut(body, ":")
	if !hasColon {
		return maybeNot(map[string]any{"text": body}, negated), nil
	}
	switch strings.ToLower(key) {
	case "from", "to", "cc", "bcc", "subject", "text", "body":
		if value == "" {
			return nil, envelope.Usagef("empty value for %s:", strings.ToLower(key))
		}
		return maybeNot(map[string]any{strings.ToLower(key): value}, negated), nil
	case "in":
		if value == "" {
			return nil, envelope.Usagef("empty value for in:")
		}
		if resolve == nil {
			return nil, envelope.Usagef("in:%s cannot be resolved without a mailbox listing", value)
		}
		id, err := resolve(value)
		if err != nil {
			return nil, err
		}
		return maybeNot(map[string]any{"inMailbox": string(id)}, negated), nil
	case "has":
		if !strings.EqualFold(value, "attachment") {
			return nil, envelope.Usagef("unknown has: value %q (only has:attachment is supported)", value)
		}
		return map[string]any{"hasAttachment": !negated}, nil
	case "hasattachment":
		v, err := parseBoolValue("hasattachment", value)
		if err != nil {
			return nil, err
		}
		return map[string]any{"hasAttachment": v != negated}, nil
	case "seen":
		return keywordCondition("$seen", value, negated)
	case "flagged":
		return keywordCondition("$flagged", value, negated)
	case "after", "before":
		when, err := parseWhen(value)
		if err != nil {
			return nil, err
		}
		return maybeNot(map[string]any{strings.ToLower(key): when}, negated), nil
	}
	// Unrecognized keys are full-text searched verbatim, colon included.
	return maybeNot(map[string]any{"text": body}, negated), nil
}

func keywordCondition(keyword, value string, negated bool) (map[string]any, error) {
	v, err := parseBoolValue(strings.TrimPrefix(keyword, "$"), value)
	if err != nil {
		return nil, err
	}
	if negated {
		v = !v
	}
	if v {
		return map[string]any{"hasKeyword": keyword}, nil
	}
	return map[string]any{"notKeyword": keyword}, nil
}

func parseBoolValue(key, value string) (bool, error) {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return false, envelope.Usagef("invalid %s: value %q (use true or false)", key, value)
	}
	return v, nil
}

// parseWhen accepts YYYY-MM-DD (midnight UTC) or full RFC3339 and
// returns the JMAP UTCDate form.
func parseWhen(value string) (string, error) {
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t.UTC().Format(time.RFC3339), nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.UTC().Format(time.RFC3339), nil
	}
	return "", envelope.Usagef("invalid date %q (use YYYY-MM-DD or RFC3339)", value)
}

func maybeNot(cond map[string]any, negated bool) map[string]any {
	if !negated {
		return cond
	}
	return operatorNode("NOT", []map[string]any{cond})
}

func operatorNode(op string, conditions []map[string]any) map[string]any {
	return map[string]any{"operator": op, "conditions": conditions}
}

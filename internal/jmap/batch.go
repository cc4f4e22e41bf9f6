package jmap

import (
	"fmt"
	"strings"

	"xin/internal/envelope"
	"xin/internal/jmap/protocol"
)

// Batch accumulates tagged method calls for a single request. Calls
// execute server-side in the order added; a later call may consume an
// earlier call's output through an "ids" back-reference.
type Batch struct {
	calls []protocol.MethodCall
	tags  map[string]string
	err   error
}

func NewBatch() *Batch {
	return &Batch{tags: make(map[string]string)}
}

// Add appends a method call under the given tag. Args may be a typed
// request struct or a map; in map form an "ids" value of the shape
// "#tag/path" is rewritten into an RFC 8620 result reference against a
// previously added call. Composition errors are sticky and surface
// from Build.
func (b *Batch) Add(name, tag string, args any) *Batch {
	if b.err != nil {
		return b
	}
	if _, dup := b.tags[tag]; dup {
		b.err = fmt.Errorf("duplicate call tag %q", tag)
		return b
	}

	if argMap, ok := args.(map[string]any); ok {
		rewritten := make(map[string]any, len(argMap))
		for key, value := range argMap {
			str, isString := value.(string)
			if key != "ids" || !isString || !strings.HasPrefix(str, "#") {
				rewritten[key] = value
				continue
			}
			ref, err := b.resolveBackReference(str)
			if err != nil {
				b.err = err
				return b
			}
			rewritten["#"+key] = ref
		}
		args = rewritten
	}

	b.tags[tag] = name
	b.calls = append(b.calls, protocol.MethodCall{
		Name:      name,
		Arguments: args,
		CallId:    tag,
	})
	return b
}

func (b *Batch) resolveBackReference(spec string) (protocol.ResultReference, error) {
	tag, path, ok := strings.Cut(strings.TrimPrefix(spec, "#"), "/")
	if !ok || tag == "" || path == "" {
		return protocol.ResultReference{}, fmt.Errorf("malformed back-reference %q", spec)
	}
	method, known := b.tags[tag]
	if !known {
		return protocol.ResultReference{}, fmt.Errorf("back-reference %q names unknown tag %q", spec, tag)
	}
	return protocol.ResultReference{
		ResultOf: tag,
		Name:     method,
		Path:     "/" + path,
	}, nil
}

// Build produces the wire request. The capability set is the superset
// over all calls: core and mail always, submission whenever any
// Identity/* or EmailSubmission/* call is present.
func (b *Batch) Build() (*protocol.Request, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.calls) == 0 {
		return nil, fmt.Errorf("empty batch")
	}

	using := []string{protocol.CoreCapability, protocol.MailCapability}
	if b.needsSubmission() {
		using = append(using, protocol.SubmissionCapability)
	}

	return &protocol.Request{Using: using, MethodCalls: b.calls}, nil
}

func (b *Batch) needsSubmission() bool {
	for _, call := range b.calls {
		if strings.HasPrefix(call.Name, "Identity/") || strings.HasPrefix(call.Name, "EmailSubmission/") {
			return true
		}
	}
	return false
}

// FindMethodResponse locates the response tuple matching a method name
// and tag. A server "error" tuple under the same tag is surfaced as a
// jmapRequestError carrying the method-level type; a missing tuple
// yields an error naming what was expected.
func FindMethodResponse(resp *protocol.Response, name, tag string) (*protocol.MethodResponse, error) {
	for i := range resp.MethodResponses {
		mr := &resp.MethodResponses[i]
		if mr.Name == name && mr.CallId == tag {
			return mr, nil
		}
	}
	for i := range resp.MethodResponses {
		mr := &resp.MethodResponses[i]
		if protocol.IsErrorResponse(mr.Name) && mr.CallId == tag {
			methodErr, err := protocol.ParseError(mr)
			if err != nil {
				return nil, envelope.JMAPErrf("malformed error response for %s: %v", name, err)
			}
			return nil, envelope.JMAPMethodErr(methodErr.Type, methodErr.Description)
		}
	}
	return nil, envelope.JMAPErrf("response missing %s (tag %s)", name, tag)
}

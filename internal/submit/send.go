package submit

import (
	"context"
	"encoding/json"
	"time"

	"xin/internal/envelope"
	"xin/internal/jmap"
	"xin/internal/jmap/protocol"
)

// SendParams selects what to submit and where the stored email moves
// once the server accepts it.
type SendParams struct {
	EmailId    protocol.Id
	IdentityId protocol.Id

	// DraftsId and SentId drive the on-success move; an empty id skips
	// that half of the patch.
	DraftsId protocol.Id
	SentId   protocol.Id
}

// Submission reports one accepted send.
type Submission struct {
	Id      protocol.Id `json:"id"`
	EmailId protocol.Id `json:"emailId"`
	SendAt  string      `json:"sendAt,omitempty"`
}

// submissionSet is EmailSubmission/set create with the success-update
// rider of RFC 8621 Section 7.5.
type submissionSet struct {
	AccountId            protocol.Id                      `json:"accountId"`
	Create               map[protocol.Id]submissionCreate `json:"create"`
	OnSuccessUpdateEmail map[string]map[string]any        `json:"onSuccessUpdateEmail,omitempty"`
}

type submissionCreate struct {
	EmailId    protocol.Id `json:"emailId"`
	IdentityId protocol.Id `json:"identityId"`
}

// Send hands the email to the server's outbound queue. The move out of
// drafts and into sent is applied by the server atomically with the
// submission, so a rejected send leaves the draft untouched.
func Send(ctx context.Context, client *jmap.Client, accountId protocol.Id, p SendParams) (*Submission, error) {
	patch := map[string]any{"keywords/" + DraftKeyword: nil}
	if p.DraftsId != "" {
		patch["mailboxIds/"+string(p.DraftsId)] = nil
	}
	if p.SentId != "" {
		patch["mailboxIds/"+string(p.SentId)] = true
	}
	args := submissionSet{
		AccountId:            accountId,
		Create:               map[protocol.Id]submissionCreate{"s1": {EmailId: p.EmailId, IdentityId: p.IdentityId}},
		OnSuccessUpdateEmail: map[string]map[string]any{"#s1": patch},
	}

	req, err := jmap.NewBatch().Add(protocol.MethodEmailSubmissionSet, "sub0", args).Build()
	if err != nil {
		return nil, err
	}
	resp, err := client.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	mr, err := jmap.FindMethodResponse(resp, protocol.MethodEmailSubmissionSet, "sub0")
	if err != nil {
		return nil, err
	}
	set, err := protocol.ParseSetResponse(mr)
	if err != nil {
		return nil, err
	}
	if se, ok := set.NotCreated["s1"]; ok {
		return nil, setError(se, "submission was rejected")
	}
	raw, ok := set.Created["s1"]
	if !ok {
		return nil, envelope.JMAPErrf("EmailSubmission/set created nothing")
	}
	return decodeSubmission(raw, p.EmailId)
}

// createdSubmission tolerates both sendAt encodings seen in the wild:
// RFC 3339 strings and bare Unix seconds.
type createdSubmission struct {
	Id     protocol.Id     `json:"id"`
	SendAt json.RawMessage `json:"sendAt"`
}

func decodeSubmission(raw json.RawMessage, emailId protocol.Id) (*Submission, error) {
	var cs createdSubmission
	if err := json.Unmarshal(raw, &cs); err != nil {
		return nil, envelope.JMAPErrf("malformed submission: %v", err)
	}
	return &Submission{Id: cs.Id, EmailId: emailId, SendAt: normalizeSendAt(cs.SendAt)}, nil
}

func normalizeSendAt(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var unix int64
	if err := json.Unmarshal(raw, &unix); err == nil {
		return time.Unix(unix, 0).UTC().Format(time.RFC3339)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

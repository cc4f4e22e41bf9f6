// Package submit builds drafts, uploads attachments and hands finished
// emails to the server's outbound queue.
package submit

import (
	"context"
	"encoding/json"

	"xin/internal/body"
	"xin/internal/envelope"
	"xin/internal/jmap"
	"xin/internal/jmap/protocol"
)

// DraftKeyword marks stored drafts.
const DraftKeyword = "$draft"

// Draft is the writable content of a new draft.
type Draft struct {
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	TextBody    string
	HtmlBody    string
	Attachments []UploadedAttachment
}

// CreatedDraft identifies a stored draft.
type CreatedDraft struct {
	EmailId  protocol.Id `json:"emailId"`
	ThreadId protocol.Id `json:"threadId,omitempty"`
	BlobId   protocol.Id `json:"blobId,omitempty"`
}

// draftObject is the Email/set create payload for a draft. Giving both
// body kinds makes the server store multipart/alternative; giving one
// stores just that part.
type draftObject struct {
	MailboxIds  map[protocol.Id]bool               `json:"mailboxIds"`
	Keywords    map[string]bool                    `json:"keywords"`
	From        []protocol.EmailAddress            `json:"from,omitempty"`
	To          []protocol.EmailAddress            `json:"to,omitempty"`
	Cc          []protocol.EmailAddress            `json:"cc,omitempty"`
	Bcc         []protocol.EmailAddress            `json:"bcc,omitempty"`
	Subject     string                             `json:"subject,omitempty"`
	BodyValues  map[string]protocol.EmailBodyValue `json:"bodyValues,omitempty"`
	TextBody    []protocol.EmailBodyPart           `json:"textBody,omitempty"`
	HtmlBody    []protocol.EmailBodyPart           `json:"htmlBody,omitempty"`
	Attachments []protocol.EmailBodyPart           `json:"attachments,omitempty"`
}

// CreateDraft stores d in the drafts mailbox, from the given identity.
func CreateDraft(ctx context.Context, client *jmap.Client, accountId, draftsId protocol.Id, identity protocol.Identity, d Draft) (*CreatedDraft, error) {
	obj := draftObject{
		MailboxIds: map[protocol.Id]bool{draftsId: true},
		Keywords:   map[string]bool{DraftKeyword: true, "$seen": true},
		From:       []protocol.EmailAddress{{Name: identity.Name, Email: identity.Email}},
		To:         toAddresses(d.To),
		Cc:         toAddresses(d.Cc),
		Bcc:        toAddresses(d.Bcc),
		Subject:    d.Subject,
	}
	setBody(&obj, d.TextBody, d.HtmlBody)
	obj.Attachments = attachmentParts(d.Attachments)
	return createEmail(ctx, client, accountId, obj, nil)
}

// DraftUpdate holds the field changes drafts.update applies. Nil
// pointers leave the stored value alone.
type DraftUpdate struct {
	To       *[]string
	Cc       *[]string
	Bcc      *[]string
	Subject  *string
	TextBody *string
	HtmlBody *string

	Attach             []UploadedAttachment
	ReplaceAttachments bool
	ClearAttachments   bool
}

func (u DraftUpdate) validate() error {
	if u.ClearAttachments && (len(u.Attach) > 0 || u.ReplaceAttachments) {
		return envelope.Usagef("--clear-attachments cannot be combined with new attachments")
	}
	if u.To == nil && u.Cc == nil && u.Bcc == nil && u.Subject == nil &&
		u.TextBody == nil && u.HtmlBody == nil &&
		len(u.Attach) == 0 && !u.ReplaceAttachments && !u.ClearAttachments {
		return envelope.Usagef("nothing to change: give at least one field")
	}
	return nil
}

// draftProperties is the projection UpdateDraft fetches for merging.
var draftProperties = []string{
	"id", "blobId", "threadId", "mailboxIds", "keywords", "from", "to",
	"cc", "bcc", "subject", "textBody", "htmlBody", "bodyValues",
	"attachments",
}

// UpdateDraft rewrites an existing draft. Email content is immutable on
// the server, so the update fetches the stored draft, merges the
// changes and replaces it with a fresh create plus a destroy of the old
// id in a single Email/set.
func UpdateDraft(ctx context.Context, client *jmap.Client, accountId, emailId protocol.Id, up DraftUpdate) (*CreatedDraft, error) {
	if err := up.validate(); err != nil {
		return nil, err
	}
	existing, err := fetchDraft(ctx, client, accountId, emailId)
	if err != nil {
		return nil, err
	}
	return createEmail(ctx, client, accountId, merge(*existing, up), []protocol.Id{emailId})
}

func fetchDraft(ctx context.Context, client *jmap.Client, accountId, emailId protocol.Id) (*protocol.Email, error) {
	req, err := jmap.NewBatch().
		Add(protocol.MethodEmailGet, "e0", protocol.GetEmailsRequest{
			AccountId:           accountId,
			Ids:                 []protocol.Id{emailId},
			Properties:          draftProperties,
			FetchTextBodyValues: true,
			FetchHTMLBodyValues: true,
		}).
		Build()
	if err != nil {
		return nil, err
	}
	resp, err := client.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	mr, err := jmap.FindMethodResponse(resp, protocol.MethodEmailGet, "e0")
	if err != nil {
		return nil, err
	}
	parsed, err := protocol.ParseEmailGetResponse(mr)
	if err != nil {
		return nil, err
	}
	if len(parsed.List) == 0 {
		return nil, envelope.Usagef("no such draft %q", emailId)
	}
	e := parsed.List[0]
	if !e.Keywords[DraftKeyword] {
		return nil, envelope.Usagef("email %q is not a draft", emailId)
	}
	return &e, nil
}

// merge overlays up onto the stored draft, keeping its mailbox
// placement and keywords.
func merge(e protocol.Email, up DraftUpdate) draftObject {
	obj := draftObject{
		MailboxIds: e.MailboxIds,
		Keywords:   e.Keywords,
		From:       e.From,
		To:         e.To,
		Cc:         e.Cc,
		Bcc:        e.Bcc,
		Subject:    e.Subject,
	}
	if up.To != nil {
		obj.To = toAddresses(*up.To)
	}
	if up.Cc != nil {
		obj.Cc = toAddresses(*up.Cc)
	}
	if up.Bcc != nil {
		obj.Bcc = toAddresses(*up.Bcc)
	}
	if up.Subject != nil {
		obj.Subject = *up.Subject
	}

	decoded, _ := body.Decode(e, 0)
	text, html := "", ""
	if decoded.Text != nil {
		text = *decoded.Text
	}
	if decoded.Html != nil {
		html = *decoded.Html
	}
	if up.TextBody != nil {
		text = *up.TextBody
	}
	if up.HtmlBody != nil {
		html = *up.HtmlBody
	}
	setBody(&obj, text, html)

	switch {
	case up.ClearAttachments:
	case up.ReplaceAttachments:
		obj.Attachments = attachmentParts(up.Attach)
	default:
		obj.Attachments = append(existingAttachmentParts(e), attachmentParts(up.Attach)...)
	}
	return obj
}

func setBody(obj *draftObject, text, html string) {
	values := make(map[string]protocol.EmailBodyValue)
	if text != "" {
		partId := "t1"
		values[partId] = protocol.EmailBodyValue{Value: text}
		obj.TextBody = []protocol.EmailBodyPart{{PartId: &partId, Type: "text/plain"}}
	}
	if html != "" {
		partId := "h1"
		values[partId] = protocol.EmailBodyValue{Value: html}
		obj.HtmlBody = []protocol.EmailBodyPart{{PartId: &partId, Type: "text/html"}}
	}
	if len(values) > 0 {
		obj.BodyValues = values
	}
}

func toAddresses(addrs []string) []protocol.EmailAddress {
	if len(addrs) == 0 {
		return nil
	}
	out := make([]protocol.EmailAddress, len(addrs))
	for i, a := range addrs {
		out[i] = protocol.EmailAddress{Email: a}
	}
	return out
}

func attachmentParts(uploads []UploadedAttachment) []protocol.EmailBodyPart {
	if len(uploads) == 0 {
		return nil
	}
	disposition := "attachment"
	parts := make([]protocol.EmailBodyPart, len(uploads))
	for i, u := range uploads {
		name := u.Name
		parts[i] = protocol.EmailBodyPart{
			BlobId:      u.BlobId,
			Type:        u.Type,
			Name:        &name,
			Disposition: &disposition,
		}
	}
	return parts
}

// existingAttachmentParts re-references the stored attachments by blob.
// Part ids belong to the old message and are dropped.
func existingAttachmentParts(e protocol.Email) []protocol.EmailBodyPart {
	parts := make([]protocol.EmailBodyPart, 0, len(e.Attachments))
	for _, part := range e.Attachments {
		if part.BlobId == "" {
			continue
		}
		part.PartId = nil
		parts = append(parts, part)
	}
	return parts
}

// createEmail runs one Email/set create, optionally destroying the
// draft being replaced in the same call, and decodes the created email.
func createEmail(ctx context.Context, client *jmap.Client, accountId protocol.Id, obj draftObject, destroy []protocol.Id) (*CreatedDraft, error) {
	req, err := jmap.NewBatch().
		Add(protocol.MethodEmailSet, "es0", protocol.SetRequest{
			AccountId: accountId,
			Create:    map[protocol.Id]interface{}{"d1": obj},
			Destroy:   destroy,
		}).
		Build()
	if err != nil {
		return nil, err
	}
	resp, err := client.Call(ctx, req)
	if err != nil {
		return nil, err
	}
	mr, err := jmap.FindMethodResponse(resp, protocol.MethodEmailSet, "es0")
	if err != nil {
		return nil, err
	}
	set, err := protocol.ParseSetResponse(mr)
	if err != nil {
		return nil, err
	}
	if se, ok := set.NotCreated["d1"]; ok {
		return nil, setError(se, "draft was not created")
	}
	raw, ok := set.Created["d1"]
	if !ok {
		return nil, envelope.JMAPErrf("Email/set created no draft")
	}
	var created protocol.Email
	if err := json.Unmarshal(raw, &created); err != nil {
		return nil, envelope.JMAPErrf("malformed created draft: %v", err)
	}
	return &CreatedDraft{EmailId: created.Id, ThreadId: created.ThreadId, BlobId: created.BlobId}, nil
}

func setError(se protocol.SetError, fallback string) error {
	desc := fallback
	if se.Description != nil && *se.Description != "" {
		desc = *se.Description
	}
	return envelope.JMAPMethodErr(se.Type, desc)
}

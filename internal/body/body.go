// Package body extracts readable content from JMAP emails: body-part
// selection with truncation accounting, attachment listings and the
// reply-chain stripping applied for agent-oriented output.
package body

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/k3a/html2text"
	erp "github.com/web-ridge/email-reply-parser"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"xin/internal/jmap/protocol"
)

// DefaultMaxBodyBytes caps fetched body values when the caller gives no
// limit of their own.
const DefaultMaxBodyBytes = 50000

// FullProperties is the Email/get projection for full-format reads.
var FullProperties = []string{
	"id", "blobId", "threadId", "mailboxIds", "keywords", "size",
	"receivedAt", "sentAt", "messageId", "inReplyTo", "references",
	"from", "to", "cc", "bcc", "replyTo", "subject", "preview",
	"hasAttachment", "textBody", "htmlBody", "bodyValues", "attachments",
}

// Meta mirrors the decode flags the server reports for one body value.
type Meta struct {
	IsTruncated       bool `json:"isTruncated"`
	IsEncodingProblem bool `json:"isEncodingProblem"`
}

// Body holds the decoded text and html alternatives of one email. A
// kind the email lacks stays nil, as does its meta.
type Body struct {
	Text     *string `json:"text,omitempty"`
	TextMeta *Meta   `json:"textMeta,omitempty"`
	Html     *string `json:"html,omitempty"`
	HtmlMeta *Meta   `json:"htmlMeta,omitempty"`
}

// FetchRequest builds the Email/get arguments for a full-format read:
// both body kinds fetched, values capped at maxBodyValueBytes, plus any
// extra header projections.
func FetchRequest(accountId protocol.Id, ids []protocol.Id, maxBodyValueBytes uint32, headers []string) protocol.GetEmailsRequest {
	props := append([]string(nil), FullProperties...)
	props = append(props, HeaderProperties(headers)...)
	return protocol.GetEmailsRequest{
		AccountId:           accountId,
		Ids:                 ids,
		Properties:          props,
		FetchTextBodyValues: true,
		FetchHTMLBodyValues: true,
		MaxBodyValueBytes:   maxBodyValueBytes,
	}
}

// HeaderProperties converts user-supplied header names into the
// header-field projection form of RFC 8621 Section 4.1.3.
func HeaderProperties(names []string) []string {
	props := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		props = append(props, "header:"+name+":asText")
	}
	return props
}

// Decode picks the first text/plain part and the first text/html part
// of e and returns their decoded values. limit is the maxBodyValueBytes
// the fetch asked for; it only feeds the truncation warning text.
func Decode(e protocol.Email, limit uint32) (Body, []string) {
	var b Body
	var warnings []string
	if value, meta, ok := pickPart(e.TextBody, "text/plain", e.BodyValues); ok {
		b.Text, b.TextMeta = &value, meta
		if meta.IsTruncated {
			warnings = append(warnings, truncationWarning("text", limit))
		}
	}
	if value, meta, ok := pickPart(e.HtmlBody, "text/html", e.BodyValues); ok {
		b.Html, b.HtmlMeta = &value, meta
		if meta.IsTruncated {
			warnings = append(warnings, truncationWarning("html", limit))
		}
	}
	return b, warnings
}

// DecodeMany decodes each email in turn, prefixing every warning with
// the owning email id so thread output stays attributable.
func DecodeMany(emails []protocol.Email, limit uint32) ([]Body, []string) {
	bodies := make([]Body, len(emails))
	var warnings []string
	for i, e := range emails {
		b, w := Decode(e, limit)
		bodies[i] = b
		for _, msg := range w {
			warnings = append(warnings, fmt.Sprintf("emailId=%s: %s", e.Id, msg))
		}
	}
	return bodies, warnings
}

func pickPart(parts []protocol.EmailBodyPart, mimeType string, values map[string]protocol.EmailBodyValue) (string, *Meta, bool) {
	for _, part := range parts {
		if part.Type != mimeType || part.PartId == nil {
			continue
		}
		bv, ok := values[*part.PartId]
		if !ok {
			continue
		}
		return bv.Value, &Meta{IsTruncated: bv.IsTruncated, IsEncodingProblem: bv.IsEncodingProblem}, true
	}
	return "", nil, false
}

func truncationWarning(kind string, limit uint32) string {
	return fmt.Sprintf("body.%s truncated (limit=%d); request a higher --max-body-bytes", kind, limit)
}

// PlainText returns the best plain rendering of b: the text part when
// present, else the HTML part flattened to text.
func (b Body) PlainText() string {
	switch {
	case b.Text != nil:
		return *b.Text
	case b.Html != nil:
		return FromHTML(*b.Html)
	}
	return ""
}

// Stripped is PlainText plus reply-chain removal and whitespace
// cleanup.
func (b Body) Stripped() string {
	return Strip(b.PlainText())
}

// FromHTML renders HTML as plain text with quoted blocks removed first.
func FromHTML(rawHTML string) string {
	return html2text.HTML2Text(StripBlockquotes(rawHTML))
}

// StripBlockquotes removes <blockquote> subtrees from rawHTML so quoted
// replies do not survive the flattening to text. Unparseable input is
// returned unchanged.
func StripBlockquotes(rawHTML string) string {
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return rawHTML
	}
	dropBlockquotes(doc)
	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return rawHTML
	}
	return buf.String()
}

func dropBlockquotes(n *html.Node) {
	var next *html.Node
	for child := n.FirstChild; child != nil; child = next {
		next = child.NextSibling
		if child.Type == html.ElementNode && child.DataAtom == atom.Blockquote {
			n.RemoveChild(child)
			continue
		}
		dropBlockquotes(child)
	}
}

var blankRuns = regexp.MustCompile(`\n{3,}`)

// Strip drops quoted reply chains from text and collapses runs of blank
// lines, leaving the content an agent actually needs to read.
func Strip(text string) string {
	stripped := erp.Parse(text)
	return strings.TrimSpace(blankRuns.ReplaceAllString(stripped, "\n\n"))
}

// Attachment summarizes one attachment part for envelope output.
type Attachment struct {
	BlobId protocol.Id `json:"blobId"`
	Type   string      `json:"type"`
	Name   string      `json:"name,omitempty"`
	Size   uint32      `json:"size"`
	Cid    string      `json:"cid,omitempty"`
}

// Attachments lists e's attachment parts in server order. Parts without
// a blob are multipart containers and are skipped.
func Attachments(e protocol.Email) []Attachment {
	out := make([]Attachment, 0, len(e.Attachments))
	for _, part := range e.Attachments {
		if part.BlobId == "" {
			continue
		}
		a := Attachment{BlobId: part.BlobId, Type: part.Type, Size: part.Size}
		if part.Name != nil {
			a.Name = *part.Name
		}
		if part.Cid != nil {
			a.Cid = *part.Cid
		}
		out = append(out, a)
	}
	return out
}

// Package protocol provides JMAP protocol types and utilities.
package protocol

import (
	"encoding/json"
	"strings"
)

// Id represents a JMAP identifier string.
type Id string

// Session represents a JMAP session resource.
// See RFC 8620 Section 2.
type Session struct {
	// Capabilities contains the capabilities of the server.
	Capabilities map[string]json.RawMessage `json:"capabilities"`

	// Accounts contains information about the accounts available.
	Accounts map[Id]Account `json:"accounts"`

	// PrimaryAccounts maps capability URIs to the primary account ID.
	PrimaryAccounts map[string]Id `json:"primaryAccounts"`

	// Username is the username associated with the session.
	Username string `json:"username"`

	// APIURL is the URL for JMAP API requests.
	APIURL string `json:"apiUrl"`

	// DownloadURL is the URL template for downloading blobs.
	DownloadURL string `json:"downloadUrl"`

	// UploadURL is the URL template for uploading blobs.
	UploadURL string `json:"uploadUrl"`

	// EventSourceURL is the URL for push notifications.
	EventSourceURL string `json:"eventSourceUrl"`

	// State is an opaque string representing the current session state.
	State string `json:"state"`
}

// Account represents a JMAP account.
type Account struct {
	// Name is a human-readable name for the account.
	Name string `json:"name"`

	// IsPersonal indicates if this is the user's personal account.
	IsPersonal bool `json:"isPersonal"`

	// IsReadOnly indicates if the account is read-only.
	IsReadOnly bool `json:"isReadOnly"`

	// AccountCapabilities contains account-specific capability data.
	AccountCapabilities map[string]json.RawMessage `json:"accountCapabilities"`
}

// Mailbox represents a JMAP mailbox.
type Mailbox struct {
	// Id is the unique identifier for the mailbox.
	Id Id `json:"id"`

	// Name is the user-visible name of the mailbox.
	Name string `json:"name"`

	// ParentId is the ID of the parent mailbox, or null for top-level.
	ParentId *Id `json:"parentId"`

	// Role is the mailbox role (inbox, drafts, sent, trash, etc.).
	Role *string `json:"role"`

	// SortOrder is the sort order for display.
	SortOrder uint32 `json:"sortOrder"`

	// TotalEmails is the total number of emails in the mailbox.
	TotalEmails uint32 `json:"totalEmails"`

	// UnreadEmails is the number of unread emails.
	UnreadEmails uint32 `json:"unreadEmails"`

	// TotalThreads is the total number of threads.
	TotalThreads uint32 `json:"totalThreads"`

	// UnreadThreads is the number of unread threads.
	UnreadThreads uint32 `json:"unreadThreads"`

	// MyRights contains the user's permissions on this mailbox.
	MyRights *MailboxRights `json:"myRights,omitempty"`

	// IsSubscribed indicates if the mailbox is subscribed.
	IsSubscribed bool `json:"isSubscribed"`
}

// MailboxRights represents the user's permissions on a mailbox.
type MailboxRights struct {
	MayReadItems   bool `json:"mayReadItems"`
	MayAddItems    bool `json:"mayAddItems"`
	MayRemoveItems bool `json:"mayRemoveItems"`
	MaySetSeen     bool `json:"maySetSeen"`
	MaySetKeywords bool `json:"maySetKeywords"`
	MayCreateChild bool `json:"mayCreateChild"`
	MayRename      bool `json:"mayRename"`
	MayDelete      bool `json:"mayDelete"`
	MaySubmit      bool `json:"maySubmit"`
}

// Email represents a JMAP email object.
// Only the properties the client requests are populated.
type Email struct {
	// Id is the unique identifier for the email.
	Id Id `json:"id"`

	// BlobId is the identifier for the raw email blob.
	BlobId Id `json:"blobId,omitempty"`

	// ThreadId is the identifier of the thread.
	ThreadId Id `json:"threadId,omitempty"`

	// MailboxIds maps mailbox IDs to true for each containing mailbox.
	MailboxIds map[Id]bool `json:"mailboxIds,omitempty"`

	// Keywords contains the email's keywords/flags.
	Keywords map[string]bool `json:"keywords,omitempty"`

	// Size is the size of the raw email in bytes.
	Size uint32 `json:"size,omitempty"`

	// ReceivedAt is when the email was received (RFC 3339).
	ReceivedAt string `json:"receivedAt,omitempty"`

	// MessageId contains the Message-ID header values.
	MessageId []string `json:"messageId,omitempty"`

	// InReplyTo contains the In-Reply-To header values.
	InReplyTo []string `json:"inReplyTo,omitempty"`

	// References contains the References header values.
	References []string `json:"references,omitempty"`

	// From contains the From header addresses.
	From []EmailAddress `json:"from,omitempty"`

	// To contains the To header addresses.
	To []EmailAddress `json:"to,omitempty"`

	// Cc contains the Cc header addresses.
	Cc []EmailAddress `json:"cc,omitempty"`

	// Bcc contains the Bcc header addresses.
	Bcc []EmailAddress `json:"bcc,omitempty"`

	// ReplyTo contains the Reply-To header addresses.
	ReplyTo []EmailAddress `json:"replyTo,omitempty"`

	// Subject is the email subject.
	Subject string `json:"subject,omitempty"`

	// SentAt is when the email was sent (RFC 3339).
	SentAt string `json:"sentAt,omitempty"`

	// Preview is a short plaintext preview of the email.
	Preview string `json:"preview,omitempty"`

	// HasAttachment indicates if there are attachments.
	HasAttachment bool `json:"hasAttachment,omitempty"`

	// BodyStructure is the full MIME part tree, when requested.
	BodyStructure *EmailBodyPart `json:"bodyStructure,omitempty"`

	// TextBody lists the parts to display as the plain-text body.
	TextBody []EmailBodyPart `json:"textBody,omitempty"`

	// HtmlBody lists the parts to display as the HTML body.
	HtmlBody []EmailBodyPart `json:"htmlBody,omitempty"`

	// Attachments lists the parts to treat as attachments.
	Attachments []EmailBodyPart `json:"attachments,omitempty"`

	// BodyValues maps partId to the decoded body content.
	BodyValues map[string]EmailBodyValue `json:"bodyValues,omitempty"`

	// Headers holds specifically requested header fields
	// (header:<Name>:asText form properties).
	Headers map[string]json.RawMessage `json:"-"`
}

// emailAlias avoids recursing into Email.UnmarshalJSON.
type emailAlias Email

// UnmarshalJSON decodes the standard properties and additionally captures
// any header:<Name>:asText projection properties into Headers.
func (e *Email) UnmarshalJSON(data []byte) error {
	var alias emailAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*e = Email(alias)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for key, value := range raw {
		if strings.HasPrefix(key, "header:") {
			if e.Headers == nil {
				e.Headers = make(map[string]json.RawMessage)
			}
			e.Headers[key] = value
		}
	}
	return nil
}

// EmailAddress represents an email address with optional display name.
type EmailAddress struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// EmailBodyPart describes one node of an email's MIME structure.
type EmailBodyPart struct {
	PartId      *string         `json:"partId,omitempty"`
	BlobId      Id              `json:"blobId,omitempty"`
	Size        uint32          `json:"size,omitempty"`
	Name        *string         `json:"name,omitempty"`
	Type        string          `json:"type,omitempty"`
	Charset     *string         `json:"charset,omitempty"`
	Disposition *string         `json:"disposition,omitempty"`
	Cid         *string         `json:"cid,omitempty"`
	SubParts    []EmailBodyPart `json:"subParts,omitempty"`
}

// EmailBodyValue is the decoded content of one body part.
type EmailBodyValue struct {
	Value             string `json:"value"`
	IsEncodingProblem bool   `json:"isEncodingProblem,omitempty"`
	IsTruncated       bool   `json:"isTruncated,omitempty"`
}

// Thread represents a JMAP thread: an ordered list of email IDs.
type Thread struct {
	Id       Id   `json:"id"`
	EmailIds []Id `json:"emailIds"`
}

// Identity represents a JMAP sending identity.
type Identity struct {
	Id        Id             `json:"id"`
	Name      string         `json:"name,omitempty"`
	Email     string         `json:"email"`
	ReplyTo   []EmailAddress `json:"replyTo,omitempty"`
	Bcc       []EmailAddress `json:"bcc,omitempty"`
	MayDelete bool           `json:"mayDelete,omitempty"`
}

// EmailSubmission represents a JMAP email submission.
type EmailSubmission struct {
	Id         Id     `json:"id"`
	IdentityId Id     `json:"identityId,omitempty"`
	EmailId    Id     `json:"emailId,omitempty"`
	ThreadId   Id     `json:"threadId,omitempty"`
	SendAt     string `json:"sendAt,omitempty"`
	UndoStatus string `json:"undoStatus,omitempty"`
}

// SetError describes why a create/update/destroy failed for one object.
// See RFC 8620 Section 5.3.
type SetError struct {
	Type        string   `json:"type"`
	Description *string  `json:"description,omitempty"`
	Properties  []string `json:"properties,omitempty"`
}

// GetMailboxesResponse represents the response from Mailbox/get.
type GetMailboxesResponse struct {
	AccountId Id        `json:"accountId"`
	State     string    `json:"state"`
	List      []Mailbox `json:"list"`
	NotFound  []Id      `json:"notFound"`
}

// QueryEmailsResponse represents the response from Email/query.
type QueryEmailsResponse struct {
	AccountId           Id      `json:"accountId"`
	QueryState          string  `json:"queryState"`
	CanCalculateChanges bool    `json:"canCalculateChanges"`
	Position            uint32  `json:"position"`
	Total               *uint32 `json:"total,omitempty"`
	Ids                 []Id    `json:"ids"`
}

// GetEmailsResponse represents the response from Email/get.
type GetEmailsResponse struct {
	AccountId Id      `json:"accountId"`
	State     string  `json:"state"`
	List      []Email `json:"list"`
	NotFound  []Id    `json:"notFound"`
}

// ChangesResponse represents the response from Email/changes.
type ChangesResponse struct {
	AccountId      Id     `json:"accountId"`
	OldState       string `json:"oldState"`
	NewState       string `json:"newState"`
	HasMoreChanges bool   `json:"hasMoreChanges"`
	Created        []Id   `json:"created"`
	Updated        []Id   `json:"updated"`
	Destroyed      []Id   `json:"destroyed"`
}

// GetThreadsResponse represents the response from Thread/get.
type GetThreadsResponse struct {
	AccountId Id       `json:"accountId"`
	State     string   `json:"state"`
	List      []Thread `json:"list"`
	NotFound  []Id     `json:"notFound"`
}

// GetIdentitiesResponse represents the response from Identity/get.
type GetIdentitiesResponse struct {
	AccountId Id         `json:"accountId"`
	State     string     `json:"state"`
	List      []Identity `json:"list"`
	NotFound  []Id       `json:"notFound"`
}

// SetResponse represents the response from a */set method. Created objects
// are kept raw so each caller can decode its own object type.
type SetResponse struct {
	AccountId    Id                     `json:"accountId"`
	OldState     *string                `json:"oldState,omitempty"`
	NewState     string                 `json:"newState"`
	Created      map[Id]json.RawMessage `json:"created,omitempty"`
	Updated      map[Id]json.RawMessage `json:"updated,omitempty"`
	Destroyed    []Id                   `json:"destroyed,omitempty"`
	NotCreated   map[Id]SetError        `json:"notCreated,omitempty"`
	NotUpdated   map[Id]SetError        `json:"notUpdated,omitempty"`
	NotDestroyed map[Id]SetError        `json:"notDestroyed,omitempty"`
}

// UploadResponse is the body returned by a blob upload POST.
// See RFC 8620 Section 6.1.
type UploadResponse struct {
	AccountId Id     `json:"accountId"`
	BlobId    Id     `json:"blobId"`
	Type      string `json:"type"`
	Size      uint64 `json:"size"`
}

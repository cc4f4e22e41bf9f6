package body

import (
	"strings"
	"testing"

	"xin/internal/jmap/protocol"
)

func part(partId, mimeType string) protocol.EmailBodyPart {
	return protocol.EmailBodyPart{PartId: &partId, Type: mimeType}
}

func TestDecode_BothKinds(t *testing.T) {
	e := protocol.Email{
		Id:       "m1",
		TextBody: []protocol.EmailBodyPart{part("p1", "text/plain")},
		HtmlBody: []protocol.EmailBodyPart{part("p2", "text/html")},
		BodyValues: map[string]protocol.EmailBodyValue{
			"p1": {Value: "plain body"},
			"p2": {Value: "<p>html body</p>"},
		},
	}

	b, warnings := Decode(e, 1024)
	if b.Text == nil || *b.Text != "plain body" {
		t.Errorf("Text = %v, want plain body", b.Text)
	}
	if b.TextMeta == nil || b.TextMeta.IsTruncated || b.TextMeta.IsEncodingProblem {
		t.Errorf("TextMeta = %+v, want clean flags", b.TextMeta)
	}
	if b.Html == nil || *b.Html != "<p>html body</p>" {
		t.Errorf("Html = %v, want the html part", b.Html)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v, want none", warnings)
	}
}

func TestDecode_FirstMatchingPart(t *testing.T) {
	e := protocol.Email{
		TextBody: []protocol.EmailBodyPart{
			part("p0", "image/png"),
			part("p1", "text/plain"),
			part("p2", "text/plain"),
		},
		BodyValues: map[string]protocol.EmailBodyValue{
			"p1": {Value: "first"},
			"p2": {Value: "second"},
		},
	}

	b, _ := Decode(e, 1024)
	if b.Text == nil || *b.Text != "first" {
		t.Errorf("Text = %v, want the first text/plain part", b.Text)
	}
}

func TestDecode_PartWithoutValueSkipped(t *testing.T) {
	e := protocol.Email{
		TextBody: []protocol.EmailBodyPart{part("p1", "text/plain"), part("p2", "text/plain")},
		BodyValues: map[string]protocol.EmailBodyValue{
			"p2": {Value: "fetched"},
		},
	}

	b, _ := Decode(e, 1024)
	if b.Text == nil || *b.Text != "fetched" {
		t.Errorf("Text = %v, want the part the server actually decoded", b.Text)
	}
}

func TestDecode_TruncationWarnings(t *testing.T) {
	e := protocol.Email{
		Id:       "m1",
		TextBody: []protocol.EmailBodyPart{part("p1", "text/plain")},
		HtmlBody: []protocol.EmailBodyPart{part("p2", "text/html")},
		BodyValues: map[string]protocol.EmailBodyValue{
			"p1": {Value: "cut", IsTruncated: true},
			"p2": {Value: "<p>cut</p>", IsTruncated: true, IsEncodingProblem: true},
		},
	}

	b, warnings := Decode(e, 500)
	want := []string{
		"body.text truncated (limit=500); request a higher --max-body-bytes",
		"body.html truncated (limit=500); request a higher --max-body-bytes",
	}
	if len(warnings) != 2 || warnings[0] != want[0] || warnings[1] != want[1] {
		t.Errorf("warnings = %v, want %v", warnings, want)
	}
	if b.HtmlMeta == nil || !b.HtmlMeta.IsTruncated || !b.HtmlMeta.IsEncodingProblem {
		t.Errorf("HtmlMeta = %+v, want both flags set", b.HtmlMeta)
	}
}

func TestDecode_HtmlOnly(t *testing.T) {
	e := protocol.Email{
		HtmlBody: []protocol.EmailBodyPart{part("p1", "text/html")},
		BodyValues: map[string]protocol.EmailBodyValue{
			"p1": {Value: "<p>only html</p>"},
		},
	}

	b, _ := Decode(e, 1024)
	if b.Text != nil || b.TextMeta != nil {
		t.Errorf("text = %v/%v, want nil for an html-only email", b.Text, b.TextMeta)
	}
	if b.Html == nil {
		t.Fatal("Html = nil, want the html part")
	}
}

func TestDecodeMany_PrefixesWarnings(t *testing.T) {
	emails := []protocol.Email{
		{
			Id:         "m1",
			TextBody:   []protocol.EmailBodyPart{part("p1", "text/plain")},
			BodyValues: map[string]protocol.EmailBodyValue{"p1": {Value: "fine"}},
		},
		{
			Id:         "m2",
			TextBody:   []protocol.EmailBodyPart{part("p1", "text/plain")},
			BodyValues: map[string]protocol.EmailBodyValue{"p1": {Value: "cut", IsTruncated: true}},
		},
	}

	bodies, warnings := DecodeMany(emails, 100)
	if len(bodies) != 2 {
		t.Fatalf("bodies = %d, want 2", len(bodies))
	}
	want := "emailId=m2: body.text truncated (limit=100); request a higher --max-body-bytes"
	if len(warnings) != 1 || warnings[0] != want {
		t.Errorf("warnings = %v, want [%s]", warnings, want)
	}
}

func TestPlainText(t *testing.T) {
	text := "the text part"
	html := "<p>the html part</p>"

	if got := (Body{Text: &text, Html: &html}).PlainText(); got != "the text part" {
		t.Errorf("PlainText = %q, want the text part preferred", got)
	}
	if got := (Body{Html: &html}).PlainText(); !strings.Contains(got, "the html part") {
		t.Errorf("PlainText = %q, want flattened html", got)
	}
	if got := (Body{}).PlainText(); got != "" {
		t.Errorf("PlainText = %q, want empty for an empty body", got)
	}
}

func TestStripBlockquotes(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantIn  string
		wantOut string
	}{
		{
			name:    "drops quoted block",
			input:   `<p>My answer</p><blockquote><p>Your question</p></blockquote>`,
			wantIn:  "My answer",
			wantOut: "Your question",
		},
		{
			name:    "drops nested quotes",
			input:   `<p>Top</p><blockquote>One<blockquote>Two</blockquote></blockquote>`,
			wantIn:  "Top",
			wantOut: "Two",
		},
		{
			name:   "keeps content after the quote",
			input:  `<blockquote>Quoted</blockquote><div>Signature</div>`,
			wantIn: "Signature",
		},
		{
			name:   "plain text passes through",
			input:  "no markup at all",
			wantIn: "no markup at all",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StripBlockquotes(tt.input)
			if tt.wantIn != "" && !strings.Contains(got, tt.wantIn) {
				t.Errorf("output lacks %q:\n%s", tt.wantIn, got)
			}
			if tt.wantOut != "" && strings.Contains(got, tt.wantOut) {
				t.Errorf("output still contains %q:\n%s", tt.wantOut, got)
			}
		})
	}
}

func TestStrip_DropsReplyChain(t *testing.T) {
	input := "Latest reply here.\n\nOn Tue, Mar 3, 2026 at 9:00 AM Dana <dana@example.com> wrote:\n> earlier message\n> more of it"

	got := Strip(input)
	if !strings.Contains(got, "Latest reply here.") {
		t.Errorf("stripped body lost the reply: %q", got)
	}
	if strings.Contains(got, "earlier message") {
		t.Errorf("quoted chain survived: %q", got)
	}
}

func TestStrip_CollapsesBlankRuns(t *testing.T) {
	got := Strip("Keep this.\n\n\n\n\nAnd this.")
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("blank run survived: %q", got)
	}
	if !strings.Contains(got, "Keep this.") || !strings.Contains(got, "And this.") {
		t.Errorf("content lost: %q", got)
	}
}

func TestAttachments(t *testing.T) {
	name := "report.pdf"
	cid := "img-1"
	e := protocol.Email{
		Attachments: []protocol.EmailBodyPart{
			{BlobId: "b1", Type: "application/pdf", Name: &name, Size: 1234},
			{Type: "multipart/mixed"},
			{BlobId: "b2", Type: "image/png", Cid: &cid, Size: 99},
		},
	}

	got := Attachments(e)
	if len(got) != 2 {
		t.Fatalf("attachments = %d, want the container skipped", len(got))
	}
	if got[0].BlobId != "b1" || got[0].Name != "report.pdf" || got[0].Size != 1234 {
		t.Errorf("first = %+v, want the pdf part", got[0])
	}
	if got[1].Cid != "img-1" {
		t.Errorf("second cid = %q, want img-1", got[1].Cid)
	}
}

func TestHeaderProperties(t *testing.T) {
	got := HeaderProperties([]string{"List-Id", " Message-ID ", ""})
	want := []string{"header:List-Id:asText", "header:Message-ID:asText"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("HeaderProperties = %v, want %v", got, want)
	}
}

func TestFetchRequest(t *testing.T) {
	req := FetchRequest("A1", []protocol.Id{"m1"}, 2048, []string{"List-Id"})
	if !req.FetchTextBodyValues || !req.FetchHTMLBodyValues {
		t.Error("fetch flags unset, want both body kinds requested")
	}
	if req.MaxBodyValueBytes != 2048 {
		t.Errorf("MaxBodyValueBytes = %d, want 2048", req.MaxBodyValueBytes)
	}
	hasBodyValues, hasHeader := false, false
	for _, p := range req.Properties {
		switch p {
		case "bodyValues":
			hasBodyValues = true
		case "header:List-Id:asText":
			hasHeader = true
		}
	}
	if !hasBodyValues || !hasHeader {
		t.Errorf("properties = %v, want bodyValues and the header projection", req.Properties)
	}
}

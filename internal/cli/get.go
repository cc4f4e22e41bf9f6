package cli

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"xin/internal/body"
	"xin/internal/envelope"
	"xin/internal/jmap"
	"xin/internal/jmap/protocol"
	"xin/internal/search"
)

// emailData is the single-email payload of get and drafts get.
type emailData struct {
	Email         search.Summary    `json:"email"`
	Body          *body.Body        `json:"body,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
	Attachments   []body.Attachment `json:"attachments,omitempty"`
	BodyProcessed bool              `json:"bodyProcessed,omitempty"`
}

// rawData carries the undecoded RFC 5322 message.
type rawData struct {
	EmailId protocol.Id `json:"emailId"`
	BlobId  protocol.Id `json:"blobId"`
	Size    uint32      `json:"size,omitempty"`
	Raw     string      `json:"raw"`
}

func newGetCmd(a *App) *cobra.Command {
	var (
		format       string
		maxBodyBytes int
		headers      []string
		strip        bool
	)
	cmd := &cobra.Command{
		Use:   "get ID",
		Short: "Fetch one email",
		Long: `Fetch one email. The default full format decodes the text and html
bodies; metadata returns the summary row only; raw downloads the
undecoded message blob.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := protocol.Id(args[0])
			return a.dispatch(cmd.Context(), "get", func(inv *invocation) (any, envelope.Meta, error) {
				switch format {
				case "metadata":
					if strip || len(headers) > 0 {
						return nil, envelope.Meta{}, envelope.Usagef("--strip and --headers only apply to --format full")
					}
					return runGetMetadata(inv, id)
				case "full":
					return runGetFull(inv, id, bodyLimit(maxBodyBytes), headers, strip)
				case "raw":
					return runGetRaw(inv, id)
				default:
					return nil, envelope.Meta{}, envelope.Usagef("unknown format %q: use metadata, full or raw", format)
				}
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&format, "format", "full", "metadata, full or raw")
	f.IntVar(&maxBodyBytes, "max-body-bytes", body.DefaultMaxBodyBytes, "cap on each decoded body value")
	f.StringSliceVar(&headers, "headers", nil, "extra header fields to return")
	f.BoolVar(&strip, "strip", false, "strip quotes and reply chains for agent reading")
	return cmd
}

func bodyLimit(maxBodyBytes int) uint32 {
	if maxBodyBytes <= 0 {
		return body.DefaultMaxBodyBytes
	}
	return uint32(maxBodyBytes)
}

func runGetMetadata(inv *invocation, id protocol.Id) (any, envelope.Meta, error) {
	client, acct, err := inv.session()
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	e, err := fetchOne(inv, client, protocol.GetRequest{
		AccountId:  acct,
		Ids:        []protocol.Id{id},
		Properties: search.SummaryProperties,
	}, id)
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	return emailData{Email: search.Summarize(*e)}, envelope.Meta{}, nil
}

func runGetFull(inv *invocation, id protocol.Id, limit uint32, headers []string, strip bool) (any, envelope.Meta, error) {
	client, acct, err := inv.session()
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	e, err := fetchOne(inv, client, body.FetchRequest(acct, []protocol.Id{id}, limit, headers), id)
	if err != nil {
		return nil, envelope.Meta{}, err
	}

	decoded, warnings := body.Decode(*e, limit)
	data := emailData{
		Email:       search.Summarize(*e),
		Attachments: body.Attachments(*e),
		Headers:     headerValues(e.Headers),
	}
	if strip {
		text := decoded.Stripped()
		data.Body = &body.Body{Text: &text}
		data.BodyProcessed = true
	} else {
		data.Body = &decoded
	}
	return data, envelope.Meta{Warnings: warnings}, nil
}

func runGetRaw(inv *invocation, id protocol.Id) (any, envelope.Meta, error) {
	client, acct, err := inv.session()
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	e, err := fetchOne(inv, client, protocol.GetRequest{
		AccountId:  acct,
		Ids:        []protocol.Id{id},
		Properties: []string{"id", "blobId", "size"},
	}, id)
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	if e.BlobId == "" {
		return nil, envelope.Meta{}, envelope.JMAPErrf("email %s carries no blob id", id)
	}

	rc, err := client.Download(inv.ctx, acct, e.BlobId, string(id)+".eml", "message/rfc822")
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, envelope.Meta{}, envelope.HTTPErr(0, "download interrupted: %v", err)
	}
	return rawData{EmailId: e.Id, BlobId: e.BlobId, Size: e.Size, Raw: string(raw)}, envelope.Meta{}, nil
}

// fetchOne runs a single-id Email/get and returns the row, or a usage
// error naming the id when the server reports it unknown.
func fetchOne(inv *invocation, client *jmap.Client, args any, id protocol.Id) (*protocol.Email, error) {
	req, err := jmap.NewBatch().Add(protocol.MethodEmailGet, "g0", args).Build()
	if err != nil {
		return nil, err
	}
	resp, err := client.Call(inv.ctx, req)
	if err != nil {
		return nil, err
	}
	mr, err := jmap.FindMethodResponse(resp, protocol.MethodEmailGet, "g0")
	if err != nil {
		return nil, err
	}
	parsed, err := protocol.ParseEmailGetResponse(mr)
	if err != nil {
		return nil, err
	}
	if len(parsed.List) == 0 {
		return nil, envelope.Usagef("email %q not found", id)
	}
	return &parsed.List[0], nil
}

// headerValues flattens the header:<Name>:asText projections into a
// name-keyed map. Null values mean the header is absent and are
// dropped.
func headerValues(raw map[string]json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string]string, len(raw))
	for key, value := range raw {
		name := strings.TrimSuffix(strings.TrimPrefix(key, "header:"), ":asText")
		var s *string
		if err := json.Unmarshal(value, &s); err != nil || s == nil {
			continue
		}
		out[name] = *s
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// attachmentFile reports one blob written to disk.
type attachmentFile struct {
	EmailId protocol.Id `json:"emailId"`
	BlobId  protocol.Id `json:"blobId"`
	Name    string      `json:"name"`
	Path    string      `json:"path"`
	Size    int64       `json:"size"`
	SHA256  string      `json:"sha256"`
}

func newAttachmentCmd(a *App) *cobra.Command {
	var (
		out  string
		name string
	)
	cmd := &cobra.Command{
		Use:   "attachment EMAIL BLOB",
		Short: "Download an attachment blob",
		Long: `Download an attachment blob. With --out the bytes go to the named
file and the envelope reports size and sha256; without it the raw
bytes stream to stdout and no envelope is printed.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			emailId, blobId := protocol.Id(args[0]), protocol.Id(args[1])
			if out != "" {
				return a.dispatch(cmd.Context(), "attachment", func(inv *invocation) (any, envelope.Meta, error) {
					return saveAttachment(inv, emailId, blobId, name, out)
				})
			}
			return a.streamAttachment(cmd.Context(), blobId, name)
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "write the blob to this path")
	cmd.Flags().StringVar(&name, "name", "attachment", "filename hint sent to the server")
	return cmd
}

func saveAttachment(inv *invocation, emailId, blobId protocol.Id, name, out string) (any, envelope.Meta, error) {
	client, acct, err := inv.session()
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	rc, err := client.Download(inv.ctx, acct, blobId, name, "application/octet-stream")
	if err != nil {
		return nil, envelope.Meta{}, err
	}
	defer rc.Close()

	f, err := os.Create(out)
	if err != nil {
		return nil, envelope.Meta{}, envelope.Usagef("cannot write %s: %v", out, err)
	}
	hash := sha256.New()
	size, err := io.Copy(io.MultiWriter(f, hash), rc)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, envelope.Meta{}, envelope.HTTPErr(0, "download interrupted: %v", err)
	}
	return attachmentFile{
		EmailId: emailId,
		BlobId:  blobId,
		Name:    name,
		Path:    out,
		Size:    size,
		SHA256:  hex.EncodeToString(hash.Sum(nil)),
	}, envelope.Meta{}, nil
}

// streamAttachment copies the blob to stdout. Failures before the first
// byte still produce an error envelope; a failure mid-stream cannot,
// because the envelope would corrupt the binary output.
func (a *App) streamAttachment(ctx context.Context, blobId protocol.Id, name string) error {
	inv := &invocation{app: a, ctx: ctx}
	rc, err := func() (io.ReadCloser, error) {
		client, acct, err := inv.session()
		if err != nil {
			return nil, err
		}
		return client.Download(ctx, acct, blobId, name, "application/octet-stream")
	}()
	if err != nil {
		env := envelope.Err("attachment", err).WithRequestID(a.requestID)
		if inv.resolved != nil && inv.resolved.AccountName != "" {
			env.WithAccount(inv.resolved.AccountName)
		}
		a.exitCode = 1
		if rerr := a.render(env); rerr != nil {
			fmt.Fprintf(a.stderr, "xin: %v\n", rerr)
		}
		return ErrSilent
	}
	defer rc.Close()
	if _, err := io.Copy(a.stdout, rc); err != nil {
		fmt.Fprintf(a.stderr, "xin: download interrupted: %v\n", err)
		a.exitCode = 1
		return ErrSilent
	}
	return nil
}

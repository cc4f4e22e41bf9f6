package submit

import (
	"context"
	"mime"
	"os"
	"path/filepath"

	"xin/internal/envelope"
	"xin/internal/jmap"
	"xin/internal/jmap/protocol"
)

// UploadedAttachment records one uploaded blob destined for a draft.
type UploadedAttachment struct {
	BlobId protocol.Id `json:"blobId"`
	Type   string      `json:"type"`
	Name   string      `json:"name"`
	Size   uint64      `json:"size"`
}

// ContentTypeFor guesses a Content-Type from the file extension. The
// guess is conservative: anything unknown ships as octet-stream.
func ContentTypeFor(path string) string {
	if t := mime.TypeByExtension(filepath.Ext(path)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// UploadFiles posts each local file to the account's upload endpoint
// and returns the blob records in input order.
func UploadFiles(ctx context.Context, client *jmap.Client, accountId protocol.Id, paths []string) ([]UploadedAttachment, error) {
	attachments := make([]UploadedAttachment, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, envelope.Usagef("cannot read attachment %s: %v", path, err)
		}
		uploaded, err := client.Upload(ctx, accountId, ContentTypeFor(path), data)
		if err != nil {
			return nil, err
		}
		attachments = append(attachments, UploadedAttachment{
			BlobId: uploaded.BlobId,
			Type:   uploaded.Type,
			Name:   filepath.Base(path),
			Size:   uploaded.Size,
		})
	}
	return attachments, nil
}

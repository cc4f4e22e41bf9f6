package watch

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"xin/internal/common/atomicfile"
	"xin/internal/envelope"
	"xin/internal/pagetoken"
)

// LoadCheckpoint reads the cursor persisted at path. A missing or empty
// file means no checkpoint and returns (nil, nil).
func LoadCheckpoint(path string) (*pagetoken.Changes, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, envelope.Configf("cannot read checkpoint %s: %v", path, err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return nil, nil
	}
	t, err := pagetoken.DecodeChanges(token)
	if err != nil {
		return nil, envelope.Configf("checkpoint %s holds a malformed token", path)
	}
	return t, nil
}

// saveCheckpoint atomically replaces the checkpoint with the next
// cursor: one token, newline-terminated.
func saveCheckpoint(path string, t pagetoken.Changes) error {
	line := pagetoken.EncodeChanges(t) + "\n"
	if err := atomicfile.WriteFile(path, []byte(line), 0o600); err != nil {
		return envelope.Configf("cannot write checkpoint %s: %v", path, err)
	}
	return nil
}

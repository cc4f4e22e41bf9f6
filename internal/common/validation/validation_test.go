//go:build !integration
// +build !integration

package validation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestValidateFilePath(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "validation_test_*.txt")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())
	tmpFile.Close()

	tmpDir, err := os.MkdirTemp("", "validation_test_dir_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	tests := []struct {
		name      string
		path      string
		fieldName string
		wantErr   bool
		errMsg    string
	}{
		{"Valid: absolute path to temp file", tmpFile.Name(), "attachment", false, ""},
		{"Valid: relative path to current file", "validation_test.go", "attachment", false, ""},

		{"Error: empty path", "", "attachment", true, "cannot be empty"},

		{"Security: unix path traversal", "../../etc/passwd", "attachment", true, "traversal"},
		{"Security: hidden traversal in path", "safe/../../etc/passwd", "attachment", true, "traversal"},

		{"Error: file does not exist", "/nonexistent/file/path.txt", "attachment", true, "not found"},
		{"Error: nonexistent file in temp", filepath.Join(os.TempDir(), "nonexistent_validation_test.txt"), "attachment", true, "not found"},

		{"Error: path is directory not file", tmpDir, "attachment", true, "not a regular file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilePath(tt.path, tt.fieldName)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFilePath() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr && tt.errMsg != "" && !strings.Contains(strings.ToLower(err.Error()), strings.ToLower(tt.errMsg)) {
				t.Errorf("ValidateFilePath() error message = %v, should contain %v", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr bool
	}{
		{"Valid: simple address", "user@example.com", false},
		{"Valid: plus tag", "user+tag@example.com", false},
		{"Error: empty", "", true},
		{"Error: missing at", "userexample.com", true},
		{"Error: empty local part", "@example.com", true},
		{"Error: empty domain", "user@", true},
		{"Error: two at signs", "a@b@c", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateEmail(%q) error = %v, wantErr %v", tt.email, err, tt.wantErr)
			}
		})
	}
}

func TestValidateEmails(t *testing.T) {
	if err := ValidateEmails([]string{"a@b.com", "c@d.org"}, "to"); err != nil {
		t.Errorf("ValidateEmails(valid) error = %v", err)
	}

	err := ValidateEmails([]string{"a@b.com", "broken"}, "cc")
	if err == nil {
		t.Fatal("ValidateEmails should fail on invalid member")
	}
	if !strings.Contains(err.Error(), "cc") {
		t.Errorf("error %q should name the field", err.Error())
	}
}

func TestValidateOrigin(t *testing.T) {
	tests := []struct {
		name    string
		origin  string
		wantErr bool
		errMsg  string
	}{
		{"Valid: https origin", "https://mail.example.com", false, ""},
		{"Valid: https with port", "https://mail.example.com:8443", false, ""},
		{"Valid: trailing slash only", "https://mail.example.com/", false, ""},
		{"Valid: http for local testing", "http://localhost:8080", false, ""},
		{"Error: empty", "", true, "empty"},
		{"Error: no scheme", "mail.example.com", true, "http or https"},
		{"Error: wrong scheme", "imap://mail.example.com", true, "http or https"},
		{"Error: has path", "https://mail.example.com/jmap/session", true, "path"},
		{"Error: has query", "https://mail.example.com?x=1", true, "query"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOrigin(tt.origin)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateOrigin(%q) error = %v, wantErr %v", tt.origin, err, tt.wantErr)
				return
			}
			if tt.wantErr && tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("ValidateOrigin() error %q should contain %q", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestValidateSessionURL(t *testing.T) {
	if err := ValidateSessionURL("https://mail.example.com/jmap/session"); err != nil {
		t.Errorf("ValidateSessionURL(valid) error = %v", err)
	}
	if err := ValidateSessionURL("not a url"); err == nil {
		t.Error("ValidateSessionURL should reject a schemeless value")
	}
	if err := ValidateSessionURL(""); err == nil {
		t.Error("ValidateSessionURL should reject empty input")
	}
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		name        string
		limit       int
		want        int
		wantClamped bool
		wantErr     bool
	}{
		{"normal value", 25, 25, false, false},
		{"at the cap", MaxLimit, MaxLimit, false, false},
		{"above the cap", MaxLimit + 1, MaxLimit, true, false},
		{"far above the cap", 10000, MaxLimit, true, false},
		{"zero", 0, 0, false, true},
		{"negative", -5, 0, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, clamped, err := ClampLimit(tt.limit)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ClampLimit(%d) error = %v, wantErr %v", tt.limit, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got != tt.want {
				t.Errorf("ClampLimit(%d) = %d, want %d", tt.limit, got, tt.want)
			}
			if clamped != tt.wantClamped {
				t.Errorf("ClampLimit(%d) clamped = %v, want %v", tt.limit, clamped, tt.wantClamped)
			}
		})
	}
}

func TestValidateAccountName(t *testing.T) {
	valid := []string{"work", "personal-2", "a.b_c"}
	for _, name := range valid {
		if err := ValidateAccountName(name); err != nil {
			t.Errorf("ValidateAccountName(%q) error = %v", name, err)
		}
	}

	invalid := []string{"", "with space", "semi;colon", "slash/name"}
	for _, name := range invalid {
		if err := ValidateAccountName(name); err == nil {
			t.Errorf("ValidateAccountName(%q) should fail", name)
		}
	}
}

package fingerprint

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write %s: %v", name, err)
	}
	return path
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		input   string
		want    Policy
		wantErr bool
	}{
		{"", PolicySHA256, false},
		{"sha256", PolicySHA256, false},
		{"BLAKE3", PolicyBLAKE3, false},
		{" size-mtime ", PolicySizeMtime, false},
		{"md5", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePolicy(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParsePolicy(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParsePolicy(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestCompute(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.jpg", "hello")

	tests := []struct {
		policy Policy
		prefix string
	}{
		{PolicySHA256, "sha256:2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"},
		{PolicyBLAKE3, "blake3:"},
		{PolicySizeMtime, ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			fp, err := Compute(path, tt.policy)
			if err != nil {
				t.Fatalf("Compute() error = %v", err)
			}
			if fp.Size != 5 {
				t.Errorf("Expected size 5, got %d", fp.Size)
			}
			if fp.ModTime.IsZero() {
				t.Error("Expected non-zero mod time")
			}
			if tt.prefix == "" && fp.Checksum != "" {
				t.Errorf("Expected no checksum, got %q", fp.Checksum)
			}
			if !strings.HasPrefix(fp.Checksum, tt.prefix) {
				t.Errorf("Expected checksum prefix %q, got %q", tt.prefix, fp.Checksum)
			}
		})
	}
}

func TestCompute_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Compute(filepath.Join(dir, "missing.jpg"), PolicySHA256); !os.IsNotExist(err) {
		t.Errorf("Expected not-exist error, got %v", err)
	}
	if _, err := Compute(dir, PolicySHA256); err == nil {
		t.Error("Expected error for directory")
	}
	if _, err := Compute(dir, PolicySizeMtime); err == nil {
		t.Error("Expected error for directory under size-mtime")
	}
}

func TestDiffers(t *testing.T) {
	now := time.Unix(1700000000, 123)
	base := Fingerprint{Checksum: "sha256:aa", Size: 10, ModTime: now}

	tests := []struct {
		name    string
		current Fingerprint
		want    bool
	}{
		{"identical", base, false},
		{"size changed", Fingerprint{Checksum: "sha256:aa", Size: 11, ModTime: now}, true},
		{"mtime changed", Fingerprint{Checksum: "sha256:aa", Size: 10, ModTime: now.Add(time.Second)}, true},
		{"checksum changed", Fingerprint{Checksum: "sha256:bb", Size: 10, ModTime: now}, true},
		{"policy switched", Fingerprint{Checksum: "blake3:cc", Size: 10, ModTime: now}, false},
		{"no checksum", Fingerprint{Size: 10, ModTime: now}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Differs(base, tt.current); got != tt.want {
				t.Errorf("Differs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestContentChangeDetected(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.jpg", "aaaa")

	before, err := Compute(path, PolicySHA256)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}

	if err := os.WriteFile(path, []byte("bbbb"), 0o644); err != nil {
		t.Fatalf("Failed to rewrite: %v", err)
	}
	// Same size, pinned mtime: only the checksum can tell.
	if err := os.Chtimes(path, before.ModTime, before.ModTime); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}

	after, err := Compute(path, PolicySHA256)
	if err != nil {
		t.Fatalf("Compute() error = %v", err)
	}
	if !Differs(before, after) {
		t.Error("Expected same-size rewrite to be detected by checksum")
	}
}

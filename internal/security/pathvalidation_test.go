package security

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	dir := t.TempDir()

	// Existing file inside the directory.
	inside := filepath.Join(dir, "backup-1.db")
	require.NoError(t, os.WriteFile(inside, []byte("x"), 0644))
	assert.NoError(t, ValidatePathWithinDirectory(inside, dir))

	// Not-yet-written file inside the directory.
	assert.NoError(t, ValidatePathWithinDirectory(filepath.Join(dir, "backup-2.db"), dir))

	// Plain escape.
	assert.Error(t, ValidatePathWithinDirectory(filepath.Join(dir, "..", "escape.db"), dir))

	// Absolute path outside the directory.
	assert.Error(t, ValidatePathWithinDirectory("/etc/passwd", dir))
}

func TestValidatePathWithinDirectory_SymlinkEscape(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()

	link := filepath.Join(dir, "link")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	// The path looks like it is inside dir, but the symlink points elsewhere.
	assert.Error(t, ValidatePathWithinDirectory(filepath.Join(link, "file.db"), dir))
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"lobby", "lobby"},
		{"main-lobby_2.floor", "main-lobby_2.floor"},
		{"north wing", "north_wing"},
		{"a/../b", "a_.._b"},
		{"room!!id", "room_id"},
		{"", "unknown"},
		{"///", "unknown"},
		{"..", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeFilename(tt.in))
		})
	}
}

func TestSanitizeFilename_Truncates(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	got := SanitizeFilename(string(long))
	assert.LessOrEqual(t, len(got), 128)
}

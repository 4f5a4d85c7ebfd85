package security

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePathWithinDirectory(t *testing.T) {
	t.Parallel()
	safe := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(safe, "sub"), 0o755))

	for _, tc := range []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"file in dir", filepath.Join(safe, "out.png"), false},
		{"new file in new subdir", filepath.Join(safe, "a", "b", "out.png"), false},
		{"existing subdir", filepath.Join(safe, "sub"), false},
		{"dir itself", safe, false},
		{"dot dot", filepath.Join(safe, "..", "out.png"), true},
		{"dot dot through sub", filepath.Join(safe, "sub", "..", "..", "x"), true},
		{"absolute elsewhere", "/etc/passwd", true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePathWithinDirectory(tc.path, safe)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatePathWithinDirectory_Symlink(t *testing.T) {
	t.Parallel()
	safe := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(safe, "escape")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	assert.Error(t, ValidatePathWithinDirectory(filepath.Join(link, "new.png"), safe))
}

func TestValidatePathWithinDirectory_MissingSafeDir(t *testing.T) {
	t.Parallel()
	missing := filepath.Join(t.TempDir(), "nope")
	assert.Error(t, ValidatePathWithinDirectory(filepath.Join(missing, "x"), missing))
}

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]string{
		"":                 "unknown",
		"run-1.png":        "run-1.png",
		"../../etc/passwd": "etc_passwd",
		"a  b//c":          "a_b_c",
		"...":              "unknown",
		"héllo":            "h_llo",
	} {
		assert.Equal(t, want, SanitizeFilename(in), "input %q", in)
	}
	assert.Len(t, SanitizeFilename(strings.Repeat("x", 500)), 128)
}

package sanitize

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfinePath(t *testing.T) {
	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs", "v1..2"), 0o755))

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr error
	}{
		{name: "empty path", path: "", wantErr: ErrEmptyPath},
		{name: "relative to root", path: "docs", want: filepath.Join(root, "docs")},
		{name: "absolute within root", path: filepath.Join(root, "docs"), want: filepath.Join(root, "docs")},
		{name: "root itself", path: root, want: root},
		{name: "dots inside a name", path: "docs/v1..2", want: filepath.Join(root, "docs", "v1..2")},
		{name: "dot-dot that stays inside", path: "docs/../docs", want: filepath.Join(root, "docs")},
		{name: "missing path inside root", path: "later", want: filepath.Join(root, "later")},
		{name: "parent traversal", path: "../outside", wantErr: ErrPathTraversal},
		{name: "deep traversal", path: "docs/../../../etc", wantErr: ErrPathTraversal},
		{name: "absolute outside", path: "/etc", wantErr: ErrPathTraversal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ConfinePath(tt.path, root)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfinePath_NoRoot(t *testing.T) {
	_, err := ConfinePath("docs", "")
	assert.ErrorIs(t, err, ErrPathTraversal)
}

func TestConfinePath_SymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need elevated privileges on windows")
	}

	root, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	outside, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, os.Mkdir(filepath.Join(root, "docs"), 0o755))

	require.NoError(t, os.Symlink(outside, filepath.Join(root, "escape")))
	require.NoError(t, os.Symlink(filepath.Join(root, "docs"), filepath.Join(root, "alias")))

	_, err = ConfinePath("escape", root)
	assert.ErrorIs(t, err, ErrPathTraversal)

	got, err := ConfinePath("alias", root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "docs"), got)
}

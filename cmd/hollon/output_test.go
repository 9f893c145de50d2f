package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"long", "hello world", 8, "hello..."},
		{"newlines flattened", "a\nb", 10, "a b"},
		{"tiny limit", "hello", 2, "he"},
		{"multibyte kept whole", "héllo world", 5, "h..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncate(tt.in, tt.n); got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
			}
		})
	}
}

func TestTable(t *testing.T) {
	out := table([][]string{
		{"ID", "TITLE"},
		{"t1", "short"},
		{"task-22", "longer title"},
	})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Index(lines[0], "TITLE"), strings.Index(lines[2], "longer"), "columns are aligned")
	assert.Empty(t, table(nil))
}

func TestFindGitRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	got, err := findGitRoot(nested)
	require.NoError(t, err)
	assert.Equal(t, root, got)

	wt := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(wt, ".git"), []byte("gitdir: /elsewhere\n"), 0o644))
	got, err = findGitRoot(wt)
	require.NoError(t, err)
	assert.Equal(t, wt, got, "a .git file marks a linked worktree")
}

func TestWriteYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeYAML(&buf, map[string][]string{"removed": {"/a", "/b"}}))
	assert.Equal(t, "removed:\n  - /a\n  - /b\n", buf.String())
}

func TestRender_UnknownFormat(t *testing.T) {
	old := flagFormat
	t.Cleanup(func() { flagFormat = old })
	flagFormat = "xml"

	err := render(nil, func() { t.Fatal("text renderer must not run") })
	assert.ErrorContains(t, err, "unknown format")
}

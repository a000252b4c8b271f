package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sunwell/internal/tools"
)

func TestCreateThenReadFileRoundTrips(t *testing.T) {
	sb := tools.NewSandbox(t.TempDir(), nil)
	create := CreateFileTool(sb)
	read := ReadFileTool(sb)

	_, err := create.Execute(context.Background(), map[string]any{"path": "hello.py", "content": "print(\"hello\")"})
	require.NoError(t, err)

	got, err := read.Execute(context.Background(), map[string]any{"path": "hello.py"})
	require.NoError(t, err)
	assert.Equal(t, "print(\"hello\")", got)
}

func TestCreateFileCreatesParentDirs(t *testing.T) {
	sb := tools.NewSandbox(t.TempDir(), nil)
	create := CreateFileTool(sb)

	_, err := create.Execute(context.Background(), map[string]any{"path": "a/b/c.txt", "content": "x"})
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(sb.WorkspaceRoot, "a/b/c.txt"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(content))
}

func TestReadFileRejectsTraversal(t *testing.T) {
	sb := tools.NewSandbox(t.TempDir(), nil)
	read := ReadFileTool(sb)

	_, err := read.Execute(context.Background(), map[string]any{"path": "../../etc/passwd"})
	require.Error(t, err)
}

func TestListDirListsEntriesSorted(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))

	sb := tools.NewSandbox(root, nil)
	list := ListDirTool(sb)

	got, err := list.Execute(context.Background(), map[string]any{"path": "."})
	require.NoError(t, err)
	assert.Equal(t, "a.txt\nb.txt\nsub/", got)
}

// Package core implements the file-operation tools named in spec.md §6:
// create_file, read_file, list_dir. Adapted from the teacher's
// internal/tools/core/file_ops.go, narrowed to these three names and
// routed through a tools.Sandbox instead of operating on raw paths.
package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"sunwell/internal/logging"
	"sunwell/internal/tools"
)

// CreateFileTool returns the create_file tool (spec.md §6).
func CreateFileTool(sandbox *tools.Sandbox) *tools.Tool {
	return &tools.Tool{
		Name:        "create_file",
		Description: "Create or overwrite a file with the given content",
		Category:    tools.CategoryFile,
		Destructive: true,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return executeCreateFile(sandbox, args)
		},
		Schema: tools.Schema{
			Required: []string{"path", "content"},
			Properties: map[string]tools.Property{
				"path":    {Type: "string", Description: "Workspace-relative file path to write"},
				"content": {Type: "string", Description: "Content to write"},
			},
		},
	}
}

func executeCreateFile(sandbox *tools.Sandbox, args map[string]any) (string, error) {
	path, _ := args["path"].(string)
	resolved, err := sandbox.ResolvePath(path)
	if err != nil {
		return "", err
	}
	content, _ := args["content"].(string)

	logging.Get(logging.CategoryTools).Debug("create_file: path=%s size=%d", path, len(content))

	if dir := filepath.Dir(resolved); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create_file: create directories: %w", err)
		}
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("create_file: write: %w", err)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
}

// ReadFileTool returns the read_file tool (spec.md §6).
func ReadFileTool(sandbox *tools.Sandbox) *tools.Tool {
	return &tools.Tool{
		Name:        "read_file",
		Description: "Read the contents of a file",
		Category:    tools.CategoryFile,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return executeReadFile(sandbox, args)
		},
		Schema: tools.Schema{
			Required: []string{"path"},
			Properties: map[string]tools.Property{
				"path": {Type: "string", Description: "Workspace-relative file path to read"},
			},
		},
	}
}

func executeReadFile(sandbox *tools.Sandbox, args map[string]any) (string, error) {
	path, _ := args["path"].(string)
	resolved, err := sandbox.ResolvePath(path)
	if err != nil {
		return "", err
	}
	content, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("read_file: %w", err)
	}
	return string(content), nil
}

// ListDirTool returns the list_dir tool (spec.md §6).
func ListDirTool(sandbox *tools.Sandbox) *tools.Tool {
	return &tools.Tool{
		Name:        "list_dir",
		Description: "List the entries of a directory",
		Category:    tools.CategoryFile,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return executeListDir(sandbox, args)
		},
		Schema: tools.Schema{
			Required: []string{"path"},
			Properties: map[string]tools.Property{
				"path": {Type: "string", Description: "Workspace-relative directory path to list"},
			},
		},
	}
}

func executeListDir(sandbox *tools.Sandbox, args map[string]any) (string, error) {
	path, _ := args["path"].(string)
	if path == "" {
		path = "."
	}
	resolved, err := sandbox.ResolvePath(path)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return "", fmt.Errorf("list_dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "\n"), nil
}

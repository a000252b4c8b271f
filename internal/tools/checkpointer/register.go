// Package checkpointer implements the agent-facing checkpoint tools from
// spec.md §6: checkpoint, restore, checkpoint_diff, checkpoint_history.
// These wrap internal/checkpoint.Engine for model tool-calling rather than
// CLI/orchestrator use.
package checkpointer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"sunwell/internal/checkpoint"
	"sunwell/internal/domain"
	"sunwell/internal/tools"
)

// RegisterAll registers the four checkpoint tools, reading and restoring
// files under workspaceRoot through engine.
func RegisterAll(registry *tools.Registry, engine *checkpoint.Engine, workspaceRoot string) error {
	for _, t := range []*tools.Tool{
		CheckpointTool(engine, workspaceRoot),
		RestoreTool(engine, workspaceRoot),
		CheckpointDiffTool(engine),
		CheckpointHistoryTool(engine),
	} {
		if err := registry.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// CheckpointTool returns the checkpoint(reasoning, name?, confidence?) tool.
func CheckpointTool(engine *checkpoint.Engine, workspaceRoot string) *tools.Tool {
	return &tools.Tool{
		Name:        "checkpoint",
		Description: "Snapshot the current workspace state with an intent",
		Category:    tools.CategoryCheckpoint,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			reasoning, _ := args["reasoning"].(string)
			if reasoning == "" {
				return "", fmt.Errorf("checkpoint: reasoning is required")
			}
			name, _ := args["name"].(string)
			confidence := 0.5
			if c, ok := args["confidence"].(float64); ok {
				confidence = c
			}

			files, err := snapshotWorkspace(workspaceRoot)
			if err != nil {
				return "", err
			}
			snap, err := engine.Checkpoint("", domain.CheckpointIntent{
				Reasoning:  reasoning,
				Name:       name,
				Confidence: confidence,
			}, files, nil)
			if err != nil {
				return "", err
			}
			return snap.ID, nil
		},
		Schema: tools.Schema{
			Required: []string{"reasoning"},
			Properties: map[string]tools.Property{
				"reasoning":  {Type: "string", Description: "Why this checkpoint is being taken"},
				"name":       {Type: "string", Description: "Optional human-readable label"},
				"confidence": {Type: "number", Description: "Confidence in the current state (0-1)"},
			},
		},
	}
}

// RestoreTool returns the restore(checkpoint?) tool. An empty/absent
// checkpoint id restores the most recent snapshot.
func RestoreTool(engine *checkpoint.Engine, workspaceRoot string) *tools.Tool {
	return &tools.Tool{
		Name:        "restore",
		Description: "Restore the workspace to a prior checkpoint (defaults to the most recent)",
		Category:    tools.CategoryCheckpoint,
		Destructive: true,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			id, _ := args["checkpoint"].(string)
			if id == "" {
				history, err := engine.History(1)
				if err != nil {
					return "", err
				}
				if len(history) == 0 {
					return "", fmt.Errorf("restore: no checkpoints exist")
				}
				id = history[0].ID
			}
			files, err := engine.Restore(id)
			if err != nil {
				return "", err
			}
			for path, content := range files {
				full := filepath.Join(workspaceRoot, path)
				if dir := filepath.Dir(full); dir != "." {
					if err := os.MkdirAll(dir, 0o755); err != nil {
						return "", err
					}
				}
				if err := os.WriteFile(full, content, 0o644); err != nil {
					return "", err
				}
			}
			return fmt.Sprintf("restored %d files from %s", len(files), id), nil
		},
		Schema: tools.Schema{
			Properties: map[string]tools.Property{
				"checkpoint": {Type: "string", Description: "Snapshot id to restore (default: most recent)"},
			},
		},
	}
}

// CheckpointDiffTool returns the checkpoint_diff(from?, to?) tool.
func CheckpointDiffTool(engine *checkpoint.Engine) *tools.Tool {
	return &tools.Tool{
		Name:        "checkpoint_diff",
		Description: "Diff two checkpoints (defaults to the two most recent)",
		Category:    tools.CategoryCheckpoint,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			from, _ := args["from"].(string)
			to, _ := args["to"].(string)
			if from == "" || to == "" {
				history, err := engine.History(2)
				if err != nil {
					return "", err
				}
				if len(history) < 2 {
					return "", fmt.Errorf("checkpoint_diff: need two checkpoints to diff")
				}
				if to == "" {
					to = history[0].ID
				}
				if from == "" {
					from = history[1].ID
				}
			}
			added, removed, changed, err := engine.Diff(from, to)
			if err != nil {
				return "", err
			}
			var b strings.Builder
			fmt.Fprintf(&b, "added: %s\n", strings.Join(added, ", "))
			fmt.Fprintf(&b, "removed: %s\n", strings.Join(removed, ", "))
			fmt.Fprintf(&b, "changed: %s\n", strings.Join(changed, ", "))
			return b.String(), nil
		},
		Schema: tools.Schema{
			Properties: map[string]tools.Property{
				"from": {Type: "string", Description: "Source snapshot id"},
				"to":   {Type: "string", Description: "Target snapshot id"},
			},
		},
	}
}

// CheckpointHistoryTool returns the checkpoint_history(limit?) tool.
func CheckpointHistoryTool(engine *checkpoint.Engine) *tools.Tool {
	return &tools.Tool{
		Name:        "checkpoint_history",
		Description: "List recent checkpoints, newest first",
		Category:    tools.CategoryCheckpoint,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			limit := 20
			switch v := args["limit"].(type) {
			case int:
				limit = v
			case float64:
				limit = int(v)
			case string:
				if n, err := strconv.Atoi(v); err == nil {
					limit = n
				}
			}
			history, err := engine.History(limit)
			if err != nil {
				return "", err
			}
			lines := make([]string, 0, len(history))
			for _, s := range history {
				lines = append(lines, fmt.Sprintf("%s %s %q", s.ID, s.Timestamp.Format("2006-01-02T15:04:05Z"), s.Intent.Reasoning))
			}
			return strings.Join(lines, "\n"), nil
		},
		Schema: tools.Schema{
			Properties: map[string]tools.Property{
				"limit": {Type: "integer", Description: "Max entries to return (default 20)", Default: 20},
			},
		},
	}
}

func snapshotWorkspace(root string) (map[string][]byte, error) {
	files := make(map[string][]byte)
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if strings.HasPrefix(info.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[rel] = content
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

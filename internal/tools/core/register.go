package core

import "sunwell/internal/tools"

// RegisterAll registers the file-operation tools with registry, sandboxed
// by sandbox.
func RegisterAll(registry *tools.Registry, sandbox *tools.Sandbox) error {
	for _, t := range []*tools.Tool{
		CreateFileTool(sandbox),
		ReadFileTool(sandbox),
		ListDirTool(sandbox),
	} {
		if err := registry.Register(t); err != nil {
			return err
		}
	}
	return nil
}

package shell

import "sunwell/internal/tools"

// RegisterAll registers run_command with registry.
func RegisterAll(registry *tools.Registry, sandbox *tools.Sandbox) error {
	return registry.Register(RunCommandTool(sandbox))
}

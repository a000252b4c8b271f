package tools

import (
	"fmt"
	"path/filepath"
	"strings"

	"sunwell/internal/sunerr"
)

// DefaultAllowedCommandPrefixes mirrors config.DefaultConfig's
// allowed_command_prefixes (spec.md §4.7, §6); duplicated here with no
// import of internal/config to avoid a cycle (the registry's construction
// site wires the configured list in).
var DefaultAllowedCommandPrefixes = []string{
	"npm", "python", "python3", "cargo", "go", "make", "docker",
	"pip", "pip3", "uv", "yarn", "pnpm",
}

// shellMetacharacters are rejected outright per spec.md §4.7 / §9: the
// source's regex-based blocklist had false positives on legitimate quoted
// arguments, so Sunwell tokenizes and refuses anything that would need
// shell interpretation at all, rather than trying to blocklist patterns.
var shellMetacharacters = []string{";", "&&", "||", "|", "`", "$(", ">", "<", "\n"}

// Sandbox resolves and validates paths and commands against a workspace
// root and a command allowlist (spec.md §4.7).
type Sandbox struct {
	WorkspaceRoot           string
	AllowedCommandPrefixes  []string
}

// NewSandbox returns a Sandbox rooted at root, using prefixes (or
// DefaultAllowedCommandPrefixes if empty).
func NewSandbox(root string, prefixes []string) *Sandbox {
	if len(prefixes) == 0 {
		prefixes = DefaultAllowedCommandPrefixes
	}
	return &Sandbox{WorkspaceRoot: root, AllowedCommandPrefixes: prefixes}
}

// ResolvePath canonicalizes a workspace-relative path and rejects any
// traversal outside WorkspaceRoot (spec.md §4.7: "workspace-path
// canonicalization, .. rejection").
func (s *Sandbox) ResolvePath(path string) (string, error) {
	if path == "" {
		return "", sunerr.Policy("empty path", nil)
	}
	joined := filepath.Join(s.WorkspaceRoot, path)
	cleanRoot, err := filepath.Abs(s.WorkspaceRoot)
	if err != nil {
		return "", sunerr.Policy("resolve workspace root", err)
	}
	cleanJoined, err := filepath.Abs(joined)
	if err != nil {
		return "", sunerr.Policy("resolve path", err)
	}
	rel, err := filepath.Rel(cleanRoot, cleanJoined)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", sunerr.Policy(fmt.Sprintf("path %q escapes workspace", path), nil)
	}
	return cleanJoined, nil
}

// TokenizeCommand splits cmd on whitespace without invoking a shell. It
// refuses any command containing a shell metacharacter, per spec.md §9's
// explicit recommendation ("tokenize commands, apply allowlist to the
// resolved binary, refuse any command that would require shell
// interpretation").
func TokenizeCommand(cmd string) ([]string, error) {
	for _, meta := range shellMetacharacters {
		if strings.Contains(cmd, meta) {
			return nil, sunerr.Policy(fmt.Sprintf("command contains shell metacharacter %q", meta), nil)
		}
	}
	fields := strings.Fields(cmd)
	if len(fields) == 0 {
		return nil, sunerr.Policy("empty command", nil)
	}
	return fields, nil
}

// CheckCommandAllowed tokenizes cmd and verifies its resolved binary (the
// first token, with any path stripped) matches an entry in
// AllowedCommandPrefixes.
func (s *Sandbox) CheckCommandAllowed(cmd string) ([]string, error) {
	tokens, err := TokenizeCommand(cmd)
	if err != nil {
		return nil, err
	}
	binary := filepath.Base(tokens[0])
	for _, prefix := range s.AllowedCommandPrefixes {
		if binary == prefix {
			return tokens, nil
		}
	}
	return nil, sunerr.Policy(fmt.Sprintf("command %q not in allowed_command_prefixes", binary), nil)
}

// destructivePathOps are commands whose resolved binary acts directly on
// the filesystem in a way checkpoints.auto_before_destructive should guard
// (spec.md §4.7, §6). Kept narrow and explicit rather than pattern-matched,
// consistent with the tokenize-don't-blocklist stance above.
var destructivePathOps = map[string]bool{
	"rm": true, "mv": true, "truncate": true,
}

// IsDestructiveCommand reports whether tokens represent a command that acts
// destructively on the filesystem. Only its tests call it; no checkpoint is
// taken on its result.
func IsDestructiveCommand(tokens []string) bool {
	if len(tokens) == 0 {
		return false
	}
	binary := filepath.Base(tokens[0])
	if destructivePathOps[binary] {
		return true
	}
	if binary == "git" {
		for _, t := range tokens[1:] {
			if t == "reset" || t == "clean" || t == "checkout" {
				return true
			}
		}
	}
	return false
}

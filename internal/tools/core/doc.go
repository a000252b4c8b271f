// Package core provides the workspace file tools: create_file, read_file,
// list_dir (spec.md §6).
package core

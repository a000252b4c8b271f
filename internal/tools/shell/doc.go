// Package shell provides the run_command tool (spec.md §6).
package shell

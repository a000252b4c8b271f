// Package main is the entry point for sunwell, a headless CLI that drains
// the Agent Orchestrator's event stream to NDJSON on stdout (spec.md §6).
// The full interactive surface is out of scope per spec.md §1; this is the
// narrow "external collaborator" hookup the spec describes issuing requests
// to the core, mirroring the teacher's cmd/nerd entry point but stripped
// down to a single non-interactive command.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sunwell/internal/checkpoint"
	"sunwell/internal/config"
	"sunwell/internal/embedding"
	"sunwell/internal/events"
	"sunwell/internal/gates"
	"sunwell/internal/knowledge"
	"sunwell/internal/llmclient"
	"sunwell/internal/logging"
	"sunwell/internal/orchestrator"
	"sunwell/internal/recovery"
	"sunwell/internal/tools"
	toolscheckpointer "sunwell/internal/tools/checkpointer"
	toolscore "sunwell/internal/tools/core"
	toolsshell "sunwell/internal/tools/shell"
	"sunwell/internal/usage"
)

var (
	workspace  string
	configPath string
	userHint   string
)

var rootCmd = &cobra.Command{
	Use:   "sunwell",
	Short: "Sunwell - an autonomous coding-agent cognitive execution stack",
}

var runCmd = &cobra.Command{
	Use:   "run <goal>",
	Short: "Run a goal through the Agent Orchestrator, streaming NDJSON events to stdout",
	Args:  cobra.ExactArgs(1),
	RunE:  runGoal,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".sunwell/config.yaml", "path to config file")
	runCmd.Flags().StringVar(&userHint, "hint", "", "optional user hint for recovery-resume runs")
	rootCmd.AddCommand(runCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

func runGoal(cmd *cobra.Command, args []string) error {
	ws := workspace
	if ws == "" {
		var err error
		ws, err = os.Getwd()
		if err != nil {
			return fmt.Errorf("resolve workspace: %w", err)
		}
	}
	if abs, err := filepath.Abs(ws); err == nil {
		ws = abs
	}

	if err := os.MkdirAll(filepath.Join(ws, ".sunwell"), 0o755); err == nil {
		if logFile, ferr := os.OpenFile(filepath.Join(ws, ".sunwell", "sunwell.log"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644); ferr == nil {
			defer logFile.Close()
			logging.SetOutput(logFile)
		}
	}

	cfg, err := config.Load(filepath.Join(ws, configPath))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rt, err := buildRuntime(ws, cfg)
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	enc := json.NewEncoder(os.Stdout)
	var lastEvent events.AgentEvent
	for ev := range rt.Run(ctx, args[0], orchestrator.Options{UserHint: userHint}) {
		// Only outcome events decide the exit code: recovery_saved and
		// memory_* events are emitted after a run's terminal event.
		switch ev.Type {
		case events.TypeTaskComplete, events.TypeGateFail, events.TypeConvergenceEscalated, events.TypeTaskFailed, events.TypeError:
			lastEvent = ev
		}
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
	}

	return outcomeError(lastEvent)
}

// buildRuntime wires every subsystem named in spec.md §6's configuration
// table into a single orchestrator.Runtime, in the teacher's
// construct-then-inject idiom (cmd/nerd/main.go's rootCmd wiring).
func buildRuntime(ws string, cfg *config.Config) (*orchestrator.Runtime, error) {
	bus := events.NewBus().WithLimits(
		cfg.EventBus.MaxSubscribers,
		30*time.Second,
		cfg.EventBus.RetentionRuns,
		time.Duration(cfg.EventBus.RetentionSeconds)*time.Second,
	)

	embedEngine, err := embedding.New(embedding.Config{
		Provider:    cfg.Embedding.Provider,
		GenAIAPIKey: cfg.Embedding.APIKey,
		GenAIModel:  cfg.Embedding.Model,
	})
	if err != nil {
		logging.Get(logging.CategoryEmbedding).Warn("embedding engine unavailable, knowledge similarity falls back to lexical scoring: %v", err)
		embedEngine = nil
	}

	kn, err := knowledge.Open(filepath.Join(ws, cfg.Knowledge.DatabasePath), embedEngine)
	if err != nil {
		return nil, fmt.Errorf("open knowledge store: %w", err)
	}

	rec, err := recovery.Open(filepath.Join(ws, ".sunwell/recovery/recovery.db"))
	if err != nil {
		return nil, fmt.Errorf("open recovery store: %w", err)
	}

	ck, err := checkpoint.Open(filepath.Join(ws, ".sunwell/checkpoints/checkpoints.db"))
	if err != nil {
		return nil, fmt.Errorf("open checkpoint engine: %w", err)
	}

	ut, err := usage.NewTracker(filepath.Join(ws, ".sunwell/usage.json"))
	if err != nil {
		return nil, fmt.Errorf("open usage tracker: %w", err)
	}

	sandbox := tools.NewSandbox(ws, mergedCommandPrefixes(cfg.AllowedCommandPrefixes))
	registry := tools.NewRegistry()
	if err := toolscore.RegisterAll(registry, sandbox); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}
	if err := toolsshell.RegisterAll(registry, sandbox); err != nil {
		return nil, fmt.Errorf("register shell tool: %w", err)
	}
	if err := toolscheckpointer.RegisterAll(registry, ck, ws); err != nil {
		return nil, fmt.Errorf("register checkpoint tools: %w", err)
	}

	pipeline := gates.NewPipeline(
		gates.NewSyntaxGate(),
		gates.NewCommandGate("tests", "go test ./...", 5*time.Minute),
	)

	llm, err := llmclient.New(cfg.LLM.APIKey, cfg.LLM.Model)
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}

	rt := orchestrator.NewRuntime(bus, kn, rec, ck, ut, registry, pipeline, llm, ws)
	rt.MaxIterations = cfg.Convergence.MaxIterations
	rt.PlannerCandidates = cfg.Planner.Candidates
	rt.RefinementRounds = cfg.Planner.RefinementRounds
	rt.LimitPerCategory = cfg.Knowledge.LimitPerCategory
	return rt, nil
}

func mergedCommandPrefixes(configured []string) []string {
	if len(configured) == 0 {
		return tools.DefaultAllowedCommandPrefixes
	}
	return configured
}

// outcomeError maps the terminal event of a run to the exit codes named in
// spec.md §6: 0 success, 2 gate failure, 3 escalated, 4 cancelled, 5 system
// error. A run that never emits a terminal event (subscription failure) is
// itself a system error.
func outcomeError(last events.AgentEvent) error {
	switch last.Type {
	case events.TypeTaskComplete:
		return nil
	case events.TypeGateFail:
		return exitError{code: 2, message: "validation gate failed"}
	case events.TypeConvergenceEscalated:
		if reason, _ := last.Data["reason"].(string); reason == "cancelled" {
			return exitError{code: 4, message: "run cancelled"}
		}
		return exitError{code: 3, message: "run escalated for human review"}
	case events.TypeTaskFailed:
		return exitError{code: 5, message: "run failed"}
	case events.TypeError:
		return exitError{code: 5, message: "run aborted"}
	default:
		return exitError{code: 5, message: "run produced no terminal event"}
	}
}

type exitError struct {
	code    int
	message string
}

func (e exitError) Error() string { return e.message }

func exitCodeFor(err error) int {
	if ee, ok := err.(exitError); ok {
		return ee.code
	}
	return 1
}

// Package main provides the surf CLI: goal-driven browser automation
// from a single objective, optionally running autonomously until the
// goal completes or the action budget runs out.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"

	"github.com/entrhq/surf/pkg/agent"
	"github.com/entrhq/surf/pkg/agent/memory"
	"github.com/entrhq/surf/pkg/agent/planner"
	"github.com/entrhq/surf/pkg/config"
	"github.com/entrhq/surf/pkg/llm/openai"
	"github.com/entrhq/surf/pkg/queue"
	"github.com/entrhq/surf/pkg/tools/browser"
	"github.com/entrhq/surf/pkg/types"
)

const version = "0.1.0"

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	progressStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	resultStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

type cliFlags struct {
	objective   string
	configPath  string
	autonomous  bool
	maxActions  int
	headless    bool
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		fmt.Printf("surf v%s\n", version)
		return
	}
	if flags.objective == "" {
		fmt.Fprintln(os.Stderr, errorStyle.Render("an -objective is required"))
		flag.Usage()
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()
	}()

	if err := run(ctx, flags); err != nil {
		cancel()
		fmt.Fprintln(os.Stderr, errorStyle.Render(fmt.Sprintf("surf: %v", err)))
		os.Exit(1)
	}
	cancel()
}

func parseFlags() *cliFlags {
	flags := &cliFlags{}
	flag.StringVar(&flags.objective, "objective", "", "The objective to accomplish")
	flag.StringVar(&flags.configPath, "config", "", "Path to configuration file (YAML)")
	flag.BoolVar(&flags.autonomous, "autonomous", false, "Continue working without user input until the goal settles")
	flag.IntVar(&flags.maxActions, "max-actions", 0, "Override maximum autonomous actions")
	flag.BoolVar(&flags.headless, "headless", true, "Run the browser headless")
	flag.BoolVar(&flags.showVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "surf - goal-driven browser automation\n\n")
		fmt.Fprintf(os.Stderr, "Usage: surf [options]\n\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  surf -objective \"find software engineering jobs at jpmorgan in india\" -autonomous\n")
		fmt.Fprintf(os.Stderr, "  surf -objective \"search for Go tutorials\" -headless=false\n")
	}

	flag.Parse()
	return flags
}

func run(ctx context.Context, flags *cliFlags) error {
	path := flags.configPath
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if flags.maxActions > 0 {
		cfg.Agent.MaxAutonomousActions = flags.maxActions
	}

	providerOpts := []openai.ProviderOption{openai.WithModel(cfg.LLM.Model)}
	if cfg.LLM.BaseURL != "" {
		providerOpts = append(providerOpts, openai.WithBaseURL(cfg.LLM.BaseURL))
	}
	provider, err := openai.NewProvider(cfg.LLM.APIKey, providerOpts...)
	if err != nil {
		return fmt.Errorf("failed to create LLM provider: %w", err)
	}

	session := browser.NewSession(browser.WithHeadless(flags.headless))
	defer session.Close()

	taskQueue := queue.New(
		queue.WithMaxConcurrent(cfg.Queue.MaxConcurrent),
		queue.WithDefaultTimeout(cfg.Queue.DefaultTimeout),
		queue.WithPageHandlers(session),
	)
	defer taskQueue.Close()

	mem := memory.NewSystem(
		memory.WithMaxRecords(cfg.Memory.MaxRecords),
		memory.WithMaxDomains(cfg.Memory.MaxDomains),
	)
	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	if store != nil {
		if err := mem.Load(ctx, store); err != nil {
			fmt.Fprintln(os.Stderr, progressStyle.Render(fmt.Sprintf("memory load skipped: %v", err)))
		}
		defer func() {
			if err := mem.Save(context.Background(), store); err != nil {
				fmt.Fprintln(os.Stderr, progressStyle.Render(fmt.Sprintf("memory save failed: %v", err)))
			}
		}()
	}

	specs := browser.ToolSpecs()
	handlers := browser.Handlers(session)
	toolNames := make([]string, 0, len(specs))
	for _, s := range specs {
		toolNames = append(toolNames, s.Name)
	}

	ag := agent.New(provider,
		agent.WithTools(specs, handlers),
		agent.WithPlanner(planner.New(toolNames)),
		agent.WithMemory(mem),
		agent.WithQueue(taskQueue),
		agent.WithAutonomousMode(flags.autonomous),
		agent.WithMaxAutonomousActions(cfg.Agent.MaxAutonomousActions),
		agent.WithMemoryTokenBudget(cfg.Agent.MemoryTokenBudget),
		agent.WithContextProvider(session.Snapshot),
		agent.WithProgressFunc(func(msg string) {
			fmt.Println(progressStyle.Render("  " + msg))
		}),
	)

	fmt.Println(titleStyle.Render("surf"))
	fmt.Printf("Objective: %s\n\n", flags.objective)

	resp, err := ag.RunAgentic(ctx, []*types.Message{
		types.NewUserMessage(flags.objective),
	})
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println(resultStyle.Render(resp.Message))
	if goal := resp.CurrentGoal; goal != nil {
		fmt.Printf("\nGoal: %s (%d%%, %s)\n", goal.Objective, goal.Progress, goal.Status)
		for _, task := range goal.SubTasks {
			fmt.Printf("  [%s] %s\n", task.Status, task.Description)
		}
	}
	if resp.NextAction != "" {
		fmt.Printf("\nNext: %s\n", resp.NextAction)
	}
	return nil
}

// openStore connects the memory snapshot store when Redis is
// configured. Without an address, memory stays in-process only.
func openStore(ctx context.Context, cfg *config.Config) (memory.Store, error) {
	if cfg.Memory.RedisAddr == "" {
		return nil, nil
	}
	store, err := memory.NewRedisStore(ctx, cfg.Memory.RedisAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Memory.RedisAddr, err)
	}
	return store, nil
}

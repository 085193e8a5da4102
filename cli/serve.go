package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/flowmatic/flowmatic/engine/agent"
	"github.com/flowmatic/flowmatic/engine/infra/server"
	"github.com/flowmatic/flowmatic/engine/job"
	"github.com/flowmatic/flowmatic/engine/llm"
	"github.com/flowmatic/flowmatic/engine/registry"
	"github.com/flowmatic/flowmatic/engine/watcher"
	"github.com/flowmatic/flowmatic/engine/worker"
	"github.com/flowmatic/flowmatic/engine/workflow"
	"github.com/flowmatic/flowmatic/pkg/config"
	"github.com/flowmatic/flowmatic/pkg/logger"
	"github.com/flowmatic/flowmatic/pkg/version"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// ServeCmd builds the serve command, which runs the full engine and HTTP
// API until interrupted.
func ServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the workflow engine and HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cmd)
		},
	}
}

// runServe wires the system leaves first: watcher, loader, and factory,
// then the registries, then the engine, job store, and dispatcher, and
// finally the HTTP server on top.
func runServe(parentCtx context.Context, cmd *cobra.Command) error {
	envFile, _ := cmd.Flags().GetString("env-file")
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}

	// Flags win over the environment. Routing them through the env keeps
	// config.Load the single place defaults and validation happen.
	if cmd.Flags().Changed("base-path") {
		basePath, _ := cmd.Flags().GetString("base-path")
		os.Setenv("FLOWMATIC_GENAI_BASE_PATH", basePath)
	}
	if cmd.Flags().Changed("log-level") {
		level, _ := cmd.Flags().GetString("log-level")
		os.Setenv("FLOWMATIC_LOG_LEVEL", level)
	}
	if cmd.Flags().Changed("log-json") {
		jsonLogs, _ := cmd.Flags().GetBool("log-json")
		os.Setenv("FLOWMATIC_LOG_JSON", fmt.Sprintf("%t", jsonLogs))
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger.Init(&logger.Config{
		Level: logger.LogLevel(cfg.Log.Level),
		JSON:  cfg.Log.JSON,
	})
	log := logger.GetDefault()
	log.Info("starting flowmatic", "version", version.String(), "base_path", cfg.GenAI.BasePath)

	ctx, stop := signal.NotifyContext(parentCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logger.ContextWithLogger(ctx, log)

	// Leaves.
	loader := agent.NewLoader(cfg.GenAI.BasePath)
	watcherSvc := watcher.NewService(log)
	factory := llm.NewFactory(llm.Credentials{
		OpenAIAPIKey:    cfg.Providers.OpenAIAPIKey.Value(),
		GeminiAPIKey:    cfg.Providers.GeminiAPIKey.Value(),
		AnthropicAPIKey: cfg.Providers.AnthropicAPIKey.Value(),
		DeepSeekAPIKey:  cfg.Providers.DeepSeekAPIKey.Value(),
		GroqAPIKey:      cfg.Providers.GroqAPIKey.Value(),
		OllamaBaseURL:   cfg.Providers.OllamaBaseURL,
		AzureEndpoint:   cfg.Providers.AzureEndpoint,
		AzureAPIKey:     cfg.Providers.AzureAPIKey.Value(),
	})

	// Registries.
	agents := registry.New(cfg.GenAI.BasePath, loader, watcherSvc, log)
	workflows := workflow.NewStore(log)
	if err := workflows.LoadAll(cfg.GenAI.BasePath); err != nil {
		return fmt.Errorf("failed to load workflows: %w", err)
	}

	// Engine subscribes to workflow file changes before the registry
	// starts publishing them.
	engine := workflow.NewEngine(workflows, agents, factory, log,
		workflow.WithAllowedAgentEnforcement(cfg.GenAI.EnforceAllowedAgents))
	engine.Watch(agents.WorkflowEvents())
	defer engine.Wait()
	if err := agents.Start(); err != nil {
		return fmt.Errorf("failed to start agent registry: %w", err)
	}
	// Stopping the registry closes the event channel the engine drains,
	// so it must happen before engine.Wait.
	defer agents.Stop()

	// Job layer.
	jobs := job.NewStore()
	sweeper := job.NewSweeper(jobs, cfg.Worker.JobTTL, cfg.Worker.SweepSchedule, log)
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("failed to start job sweeper: %w", err)
	}
	defer sweeper.Stop()

	// Workers get their own lifetime so in-flight runs finish during
	// shutdown instead of having their provider calls canceled.
	dispatcher := worker.NewDispatcher(jobs, engine, cfg.Worker.Count, log)
	dispatcher.Start(logger.ContextWithLogger(context.Background(), log))
	defer dispatcher.Stop()

	handlers := server.NewHandlers(dispatcher, jobs, agents, workflows, log)
	srv := server.New(cfg.Server.Host, cfg.Server.Port, handlers, log)
	return srv.Start(ctx)
}

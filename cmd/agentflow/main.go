package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rendis/agentflow/internal/capabilities"
	"github.com/rendis/agentflow/internal/conditions"
	"github.com/rendis/agentflow/internal/engine"
	"github.com/rendis/agentflow/internal/logging"
	"github.com/rendis/agentflow/internal/scheduler"
	"github.com/rendis/agentflow/internal/store"
	"github.com/rendis/agentflow/internal/validation"
	"github.com/rendis/agentflow/pkg/schema"
)

const usage = `agentflow - workflow execution engine

Usage:
  agentflow run <workflow.json> [agent-id] [user-id]   execute a workflow graph
  agentflow serve                                      run the scheduler loop
  agentflow version                                    print version
`

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg := loadConfig()
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	var err error
	switch os.Args[1] {
	case "run":
		err = runWorkflow(cfg, logger, os.Args[2:])
	case "serve":
		err = serve(cfg, logger)
	case "version":
		fmt.Println("agentflow", version)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		logger.Error("command failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// buildWalker wires the store, capabilities, and node handlers into a Walker.
func buildWalker(cfg Config, logger *slog.Logger) (*engine.Walker, store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.NewLibSQLStore(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	if err := st.Migrate(context.Background()); err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("migrate store: %w", err)
	}

	engines := conditions.NewEngines()
	httpClient := capabilities.NewNetHTTPClient(capabilities.HTTPConfig{})
	generator := capabilities.NewOpenAIGenerator(capabilities.GeneratorConfig{
		BaseURL:      cfg.OpenAIURL,
		APIKey:       cfg.OpenAIAPIKey,
		DefaultModel: cfg.OpenAIModel,
	})

	registry := engine.NewRegistry()
	handlers := []engine.Handler{
		engine.NewTriggerHandler(schema.NodeTypeTrigger),
		engine.NewTriggerHandler(schema.NodeTypeWebhookTrigger),
		engine.NewTriggerHandler(schema.NodeTypeScheduleTrigger),
		engine.NewAPICallHandler(httpClient),
		engine.NewConditionHandler(engines),
		engine.NewAIActionHandler(generator),
		engine.NewTransformHandler(conditions.NewGoJQEngine()),
		engine.NewDelayHandler(),
	}
	for _, h := range handlers {
		if err := registry.Register(h); err != nil {
			st.Close()
			return nil, nil, fmt.Errorf("register handler: %w", err)
		}
	}

	return engine.NewWalker(st, registry, logger), st, nil
}

func runWorkflow(cfg Config, logger *slog.Logger, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("run: missing workflow file")
	}
	agentID := "local"
	userID := "local"
	if len(args) > 1 {
		agentID = args[1]
	}
	if len(args) > 2 {
		userID = args[2]
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read workflow: %w", err)
	}
	var graph schema.Graph
	if err := json.Unmarshal(data, &graph); err != nil {
		return fmt.Errorf("parse workflow: %w", err)
	}

	validator := validation.NewNodeDataValidator()
	if err := validator.ValidateGraph(&graph); err != nil {
		return err
	}

	walker, st, err := buildWalker(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exec, runErr := walker.ExecuteWorkflow(ctx, &graph, agentID, userID, nil)
	out, err := json.MarshalIndent(exec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode execution: %w", err)
	}
	fmt.Println(string(out))
	return runErr
}

func serve(cfg Config, logger *slog.Logger) error {
	walker, st, err := buildWalker(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(st, walker, logger)
	if err := sched.RecoverMissed(ctx); err != nil {
		logger.Warn("missed-job recovery failed", slog.String("error", err.Error()))
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	return sched.Stop()
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"agentorg/internal/adapter/gateway"
	"agentorg/internal/adapter/graph"
	"agentorg/internal/adapter/llm"
	"agentorg/internal/domain"
	"agentorg/internal/infra/config"
	"agentorg/internal/infra/logger"
	"agentorg/internal/infra/tracer"
	"agentorg/internal/usecase"
	"agentorg/internal/usecase/eventbus"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if len(cfg.Personas) == 0 {
		cfg.Personas = defaultPersonas()
		if len(cfg.Graph.Grants) == 0 && len(cfg.Graph.Owners) == 0 {
			cfg.Graph = defaultGraph(cfg.Graph.Path)
		}
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return err
	}
	defer shutdownTracer(context.Background())

	resolver := openGraph(ctx, cfg, log)
	executor, err := buildExecutor(cfg.LLM, log)
	if err != nil {
		return err
	}

	registry := usecase.NewRegistry(cfg.Personas, log)
	ledger := usecase.NewLedger(log)
	broadcaster := eventbus.NewBroadcaster(log)
	gate := usecase.NewGate(resolver, log)
	orch := usecase.NewOrchestrator(registry, ledger, gate, broadcaster, executor, log)

	server := gateway.NewServer(orch, cfg.Server.Addr, cfg.Server.KeepaliveInterval, log)
	return server.Start(ctx)
}

// openGraph opens and seeds the permission graph store. Failure is not fatal:
// the gate falls back to permissive mode, matching its behavior when the
// graph goes away at runtime.
func openGraph(ctx context.Context, cfg *config.Config, log *slog.Logger) domain.PermissionResolver {
	if cfg.Graph.Path == "" {
		log.Warn("no permission graph configured, running permissive")
		return nil
	}

	store, err := graph.Open(cfg.Graph.Path)
	if err != nil {
		log.Warn("permission graph unavailable, running permissive", "error", err)
		return nil
	}
	if err := store.Seed(ctx, cfg.Graph); err != nil {
		log.Warn("permission graph seed failed, running permissive", "error", err)
		store.Close()
		return nil
	}
	log.Info("permission graph ready", "path", cfg.Graph.Path)
	return store
}

func buildExecutor(cfg config.LLMConfig, log *slog.Logger) (domain.Executor, error) {
	switch cfg.Provider {
	case "canned":
		return llm.NewCannedExecutor(log), nil
	case "bedrock", "":
		inner, err := llm.NewBedrockExecutor(cfg, log)
		if err != nil {
			return nil, err
		}
		return llm.NewBreakerExecutor(inner, log), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}

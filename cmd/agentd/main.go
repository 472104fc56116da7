// Command agentd runs the autonomous agent: it loads configuration, wires
// every collaborator (persistence, game client, perception, memory, tools,
// the LLM bridge, the event bus) and drives the Decision Cycle until it
// receives a shutdown signal.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/voxelmind/agentcore/internal/agentloop"
	"github.com/voxelmind/agentcore/internal/bridge"
	"github.com/voxelmind/agentcore/internal/config"
	"github.com/voxelmind/agentcore/internal/eventbus"
	"github.com/voxelmind/agentcore/internal/gameclient"
	"github.com/voxelmind/agentcore/internal/inventory"
	"github.com/voxelmind/agentcore/internal/memory"
	"github.com/voxelmind/agentcore/internal/model"
	"github.com/voxelmind/agentcore/internal/modelclient/anthropic"
	"github.com/voxelmind/agentcore/internal/modelclient/openai"
	"github.com/voxelmind/agentcore/internal/perception"
	"github.com/voxelmind/agentcore/internal/persistence/mongo"
	"github.com/voxelmind/agentcore/internal/state"
	"github.com/voxelmind/agentcore/internal/strategy"
	"github.com/voxelmind/agentcore/internal/telemetry"
	"github.com/voxelmind/agentcore/internal/tools"
)

// version is set at build time via -ldflags "-X main.version=v1.0.0"
var version = "dev"

// shutdownGrace bounds how long store.Close may take once a shutdown signal
// has been received.
const shutdownGrace = 5 * time.Second

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "agentd",
	Short: "agentd — autonomous game-playing agent daemon",
	Long:  "agentd drives an LLM-directed agent through a continuous observe/assess/plan/decide/reflect/persist/reschedule cycle against a game server.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: agent.yaml or $AGENTCORE_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("agentd %s\n", version)
		},
	}
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "connect to the game server and start the decision cycle",
		Run: func(cmd *cobra.Command, args []string) {
			runAgent()
		},
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("AGENTCORE_CONFIG"); v != "" {
		return v
	}
	return "agent.yaml"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runAgent() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := mongo.NewStore(ctx, mongo.Options{URI: cfg.Persistence.URI, Database: cfg.Persistence.Database})
	if err != nil {
		logger.Error("failed to connect to persistence store", "error", err)
		os.Exit(1)
	}

	modelClient, err := buildModelClient(cfg)
	if err != nil {
		logger.Error("failed to build LLM client", "error", err)
		os.Exit(1)
	}

	bus := eventbus.NewBus()
	if cfg.EventBus.RedisAddr != "" {
		publisher, err := eventbus.NewRedisStreamPublisher(eventbus.RedisOptions{
			Addr:      cfg.EventBus.RedisAddr,
			StreamKey: cfg.EventBus.StreamKey,
		})
		if err != nil {
			logger.Warn("redis event mirror unavailable, continuing with in-process bus only", "error", err)
		} else {
			if _, err := bus.Register(publisher); err != nil {
				logger.Warn("failed to register redis event mirror", "error", err)
			}
			defer publisher.Close()
		}
	}

	client := gameclient.NewMock()
	invTracker := inventory.New(nil)
	perceiver := perception.New(client, perception.DefaultPolicy(), nil)
	mem := memory.New(store, memory.Options{MaxTokens: cfg.Memory.MaxTokens, KeepMessages: cfg.Memory.KeepMessages})

	registry := tools.NewRegistry()
	tools.RegisterCanonicalTools(registry, client, invTracker)
	dispatcher := tools.NewDispatcher(registry, logger)
	bridgeOpts := bridge.DefaultOptions()
	bridgeOpts.Tracer = telemetry.NewClueTracer()
	br := bridge.New(modelClient, dispatcher, bridgeOpts)

	loop := agentloop.New(agentloop.Options{
		Client:      client,
		Perceiver:   perceiver,
		Inventory:   invTracker,
		Memory:      mem,
		Decider:     strategy.SpeedrunDecider{},
		State:       state.New(),
		Bridge:      br,
		Tools:       registry,
		Persistence: store,
		Bus:         bus,
		LLM: agentloop.LLMOptions{
			Model:       cfg.LLM.Model,
			Temperature: float32(cfg.LLM.Temperature),
			TopP:        float32(cfg.LLM.TopP),
			MaxTokens:   cfg.LLM.MaxTokens,
		},
		Logger: logger,
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	loop.Start(ctx)
	logger.Info("agentd started", "version", version, "game_host", cfg.Game.Host, "llm_provider", cfg.LLM.Provider)

	sig := <-sigCh
	logger.Info("shutdown initiated", "signal", sig)

	loop.Stop()
	if err := client.Disconnect(ctx); err != nil {
		logger.Warn("error disconnecting game client", "error", err)
	}
	cancel()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer closeCancel()
	if err := store.Close(closeCtx); err != nil {
		logger.Warn("error closing persistence store", "error", err)
	}

	logger.Info("agentd stopped cleanly")
}

func buildModelClient(cfg *config.Config) (model.Client, error) {
	switch cfg.LLM.Provider {
	case "anthropic":
		return anthropic.NewFromAPIKey(cfg.LLM.APIKey, cfg.LLM.Model)
	case "openai":
		return openai.NewFromAPIKey(cfg.LLM.APIKey, cfg.LLM.Model)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.LLM.Provider)
	}
}

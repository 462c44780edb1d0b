// mnemosd is the cognitive agent daemon: it loads memory, wires the
// cognitive services to the orchestrator, and serves the client protocol
// over TCP and websocket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mnemoslabs/mnemos/config"
	"github.com/mnemoslabs/mnemos/jobs"
	"github.com/mnemoslabs/mnemos/llm"
	"github.com/mnemoslabs/mnemos/memory"
	"github.com/mnemoslabs/mnemos/orchestrator"
	"github.com/mnemoslabs/mnemos/server"
	"github.com/mnemoslabs/mnemos/services"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:          "mnemosd",
		Short:        "Long-running cognitive agent with layered associative memory",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to mnemos.yaml")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the agent daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}
	root.AddCommand(serve)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "mnemos",
	})

	embedder, err := newEmbedder(cfg, logger.With("component", "embedder"))
	if err != nil {
		return fmt.Errorf("embedder: %w", err)
	}

	// Memory must be fully reloaded before any impulse is accepted.
	store, err := memory.Open(memory.Config{
		GraphPath:     cfg.Memory.GraphPath,
		ChroniclePath: cfg.Memory.ChroniclePath,
		VectorPath:    cfg.Memory.VectorPath,
	}, embedder, logger.With("component", "memory"))
	if err != nil {
		return fmt.Errorf("open memory: %w", err)
	}
	defer store.Close()

	queue, err := jobs.Open(cfg.Jobs.QueuePath)
	if err != nil {
		return fmt.Errorf("open job queue: %w", err)
	}

	model := llm.New(llm.Config{
		APIKey:          cfg.LLM.APIKey,
		BaseURL:         cfg.LLM.BaseURL,
		Model:           cfg.LLM.Model,
		ContextLimit:    cfg.LLM.ContextLimit,
		MaxTokens:       int64(cfg.LLM.MaxTokens),
		EstimateDivisor: cfg.LLM.EstimateDivisor,
	}, logger.With("component", "llm"))

	orch := orchestrator.New(store, model, queue, cfg.Context, logger.With("component", "orchestrator"))

	planner := services.NewEnrichmentPlanner(model, logger.With("component", "planner"))
	handlers := []services.Handler{
		services.NewSimpleExecutor(model, logger.With("component", "executor")),
		planner,
		services.NewRecallService(store, cfg.Recall, logger.With("component", "recall")),
		services.NewSynthesisService(model, logger.With("component", "synthesis")),
		services.NewMemoryCompressor(model, logger.With("component", "compressor")),
		services.NewFactIngestor(store, planner, logger.With("component", "facts")),
		services.NewReflectionService(store, model, logger.With("component", "reflection")),
	}
	for _, h := range handlers {
		if err := orch.RegisterService(services.NewWorker(h, orch, logger)); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch.Start(ctx)
	defer orch.Shutdown()

	crystallizer := services.NewCrystallizer(store, model, queue, logger.With("component", "crystallizer"))

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Jobs.ReflectionSchedule, func() {
		if _, err := orch.TriggerReflection(ctx); err != nil {
			logger.Warn("scheduled reflection failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("reflection schedule: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		crystallizer.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return server.New(orch, logger.With("component", "tcp")).ListenAndServe(gctx, cfg.Server.Addr)
	})
	if cfg.Server.WSAddr != "" {
		g.Go(func() error {
			return server.NewWS(orch, logger.With("component", "ws")).ListenAndServe(gctx, cfg.Server.WSAddr)
		})
	}

	logger.Info("mnemos is up", "model", cfg.LLM.Model, "nodes", store.Len())
	return g.Wait()
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/parley-dev/parley/internal/httpapi"
	"github.com/parley-dev/parley/internal/image"
	"github.com/parley-dev/parley/internal/llm/provider"
	"github.com/parley-dev/parley/internal/media"
	"github.com/parley-dev/parley/internal/modality"
	"github.com/parley-dev/parley/internal/observability"
	"github.com/parley-dev/parley/internal/orchestrator"
	"github.com/parley-dev/parley/internal/speech"
	"github.com/parley-dev/parley/internal/store"
	fsstore "github.com/parley-dev/parley/internal/store/firestore"
	"github.com/parley-dev/parley/internal/store/memory"
	"github.com/parley-dev/parley/internal/summary"
	"github.com/parley-dev/parley/pkg/config"
	pkgobs "github.com/parley-dev/parley/pkg/observability"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := observability.Logger()

	if err := observability.InitTracingFromEnv(); err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := observability.ShutdownTracing(sctx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	pkgobs.SetVersion(Version)
	healthChecker := pkgobs.InitHealthChecker()
	healthChecker.RegisterCheck(pkgobs.PingCheck())

	st, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	healthChecker.RegisterCheck(pkgobs.DatabaseCheck(func(ctx context.Context) error {
		_, err := st.ListPersonas(ctx)
		return err
	}))

	base, err := provider.New(cfg.LLM.Provider, provider.Config{
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
		Project:  cfg.LLM.Project,
		Location: cfg.LLM.Location,
	})
	if err != nil {
		return fmt.Errorf("creating provider: %w", err)
	}
	llm := provider.NewInstrumentedProvider(base, true)

	mediaStore, err := media.NewFileStore(cfg.Media.Dir, cfg.Media.BaseURL)
	if err != nil {
		return err
	}

	var synth speech.Synthesizer
	if cfg.Speech.Enabled {
		synth, err = speech.NewMiniMaxClient(speech.Config{
			APIKey:  cfg.Speech.APIKey,
			GroupID: cfg.Speech.GroupID,
			BaseURL: cfg.Speech.BaseURL,
			Model:   cfg.Speech.Model,
			VoiceID: cfg.Speech.VoiceID,
			Format:  cfg.Speech.Format,
		})
		if err != nil {
			return err
		}
	}

	var imager image.Generator
	if cfg.Image.Enabled {
		imager, err = buildImager(ctx, cfg)
		if err != nil {
			return err
		}
	}

	queue, err := buildQueue(ctx, cfg)
	if err != nil {
		return err
	}
	defer queue.Close()

	orch := orchestrator.New(orchestrator.Deps{
		Store:    st,
		Provider: llm,
		Decider: modality.NewChain(
			modality.NewKeywordStrategy(),
			modality.NewModelStrategy(llm, cfg.LLM.DecisionModel),
		),
		Speech:       synth,
		Image:        imager,
		Prompts:      image.NewPromptNormalizer(llm, cfg.LLM.DecisionModel),
		Media:        mediaStore,
		SummaryQueue: queue,
	}, orchestrator.Options{
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
	})

	handler := httpapi.NewServer(orch, st, httpapi.StaticTokens(cfg.Auth.Tokens), httpapi.Options{
		InternalAPIKey: cfg.Auth.InternalAPIKey,
		Media:          mediaStore.Handler(),
		MediaBaseURL:   cfg.Media.BaseURL,
		CORSOrigins:    cfg.Server.CORSOrigins,
		MountOps:       cfg.Server.ObsPort == 0,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming responses manage their own deadlines
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("http server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	var obsServer *pkgobs.Server
	if cfg.Server.ObsPort != 0 {
		obsServer = pkgobs.NewServer(cfg.Server.ObsPort)
		g.Go(func() error {
			logger.Info("observability server listening", "port", cfg.Server.ObsPort)
			if err := obsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("observability server: %w", err)
			}
			return nil
		})
	}

	if cfg.Summary.Enabled {
		worker := summary.NewWorker(queue,
			summary.NewSummarizer(llm, st, cfg.Summary.Model, cfg.Summary.RatePerSecond),
			cfg.Summary.Workers)
		g.Go(func() error { return worker.Run(gctx) })

		if cfg.Summary.BackfillSchedule != "" {
			backfill := summary.NewBackfill(st, queue)
			if err := backfill.Start(cfg.Summary.BackfillSchedule); err != nil {
				return err
			}
			defer backfill.Stop()
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			logger.Warn("http shutdown failed", "error", err)
		}
		if obsServer != nil {
			if err := obsServer.Shutdown(sctx); err != nil {
				logger.Warn("observability shutdown failed", "error", err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("stopped")
	return nil
}

func buildStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "firestore":
		if cfg.Store.GCPCredentials != "" {
			os.Setenv("GOOGLE_APPLICATION_CREDENTIALS", cfg.Store.GCPCredentials)
		}
		return fsstore.New(ctx, cfg.Store.GCPProject)
	default:
		return memory.New(), nil
	}
}

func buildImager(ctx context.Context, cfg *config.Config) (image.Generator, error) {
	switch cfg.Image.Backend {
	case "bedrock":
		return image.NewBedrockClient(ctx, image.BedrockConfig{
			Region:  cfg.Image.AWSRegion,
			ModelID: cfg.Image.BedrockModel,
		})
	default:
		return image.NewStabilityClient(image.StabilityConfig{
			APIKey: cfg.Image.StabilityKey,
			Model:  cfg.Image.Model,
		})
	}
}

func buildQueue(ctx context.Context, cfg *config.Config) (summary.Queue, error) {
	if cfg.Summary.RedisAddr == "" {
		return summary.NewMemoryQueue(256), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Summary.RedisAddr,
		Password: cfg.Summary.RedisPassword,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return summary.NewRedisQueue(client, cfg.Summary.QueueKey), nil
}

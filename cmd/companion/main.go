// cmd/companion/main.go
package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"dm-companion/internal/ai"
	"dm-companion/internal/command"
	"dm-companion/internal/companion"
	"dm-companion/internal/config"
	"dm-companion/internal/discord"
	"dm-companion/internal/logging"
	"dm-companion/internal/storage"
	"dm-companion/pkg/cmd"
	"dm-companion/pkg/jobmgr"
	"dm-companion/pkg/retrylimit"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const shutdownTimeout = 30 * time.Second

func main() {
	config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	logCloser := logging.Setup(logging.Options{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
	})
	defer logCloser.Close()

	log.Info().Str("provider", cfg.AIProvider).Str("storage", cfg.StorageBackend).Msg("starting companion bot")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := ai.New(ctx, ai.Options{
		Engine:       cfg.AIProvider,
		GeminiAPIKey: cfg.GoogleAPIKey,
		GeminiModel:  cfg.GeminiModel,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create AI provider")
	}
	limiter := retrylimit.NewAdaptiveLimiter(rate.Limit(cfg.ModelRPS), 0.5, rate.Limit(cfg.ModelRPSMax), 0.5, 0.5)
	provider = ai.NewLimited(provider, limiter)

	store, err := storage.New(storage.Options{
		Backend:         cfg.StorageBackend,
		DatabasePath:    cfg.DatabasePath,
		StoragePath:     cfg.StoragePath,
		DefaultAffinity: cfg.DefaultAffinity,
		MaxTurns:        cfg.MaxTurns,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open storage")
	}

	persona, err := cfg.Persona()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load persona")
	}

	affinity := companion.AffinityConfig{
		Min:      cfg.MinAffinity,
		Max:      cfg.MaxAffinity,
		Default:  cfg.DefaultAffinity,
		Increase: cfg.AffinityIncrease,
		Decrease: cfg.AffinityDecrease,
	}
	gen := companion.NewGenerator(provider, persona)
	tracker := companion.NewAffinityTracker(provider, affinity)

	reg := cmd.NewRegistry()
	bot, err := discord.New(cfg.DiscordToken, cfg.CommandPrefix, reg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create discord bot")
	}
	sender := bot.Sender()
	courier := companion.NewCourier(sender, cfg.PaceMin, cfg.PaceMax)

	pipeline := companion.NewPipeline(store, gen, tracker, courier, companion.PipelineConfig{
		MaxTurns:         cfg.MaxTurns,
		SummaryThreshold: cfg.ChatSummaryThreshold,
	})
	batcher := companion.NewBatcher(ctx, companion.BatcherConfig{
		Delay:       cfg.BatchDelay,
		MaxMessages: cfg.MaxBatchMessages,
	}, func(ctx context.Context, b companion.Batch) {
		pipeline.Dispatch(ctx, b)
	})
	bot.SetInbox(batcher)

	if err := command.RegisterDM(reg, command.Deps{
		Store:    store,
		Locker:   batcher,
		Affinity: affinity,
		Prefix:   cfg.CommandPrefix,
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to register commands")
	}

	jobs := jobmgr.NewManager(ctx, func(msg string) {
		if strings.HasPrefix(msg, "error:") {
			log.Error().Str("component", "jobs").Msg(msg)
			return
		}
		log.Debug().Str("component", "jobs").Msg(msg)
	})
	if cfg.ProactiveEnabled {
		proactive := companion.NewProactive(store, gen, courier, batcher, sender, companion.ProactiveConfig{
			Interval:         cfg.ProactiveInterval,
			MaxTurns:         cfg.MaxTurns,
			SummaryThreshold: cfg.ProactiveSummaryThreshold,
		})
		if err := jobs.StartAsync("proactive", proactive.Run); err != nil {
			log.Fatal().Err(err).Msg("failed to start proactive job")
		}
	}
	if err := jobs.StartAsync("storage-maintenance", func(ctx context.Context) error {
		return storage.RunMaintenance(ctx, store, cfg.MaintenanceInterval)
	}); err != nil {
		log.Fatal().Err(err).Msg("failed to start maintenance job")
	}

	errCh := make(chan error, 1)
	go func() {
		if err := bot.Run(ctx); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("discord bot error")
		}
		stop()
	case <-ctx.Done():
		log.Info().Msg("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := jobs.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("background jobs did not stop in time")
	}
	batcher.Wait()
	<-errCh

	if err := store.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close storage")
	}
	log.Info().Msg("companion bot exited cleanly")
}

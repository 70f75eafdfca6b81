package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/whotypes/rolekeeper/internal/cache"
	"github.com/whotypes/rolekeeper/internal/config"
	"github.com/whotypes/rolekeeper/internal/data"
	"github.com/whotypes/rolekeeper/internal/discord"
	"github.com/whotypes/rolekeeper/internal/gateway"
	"github.com/whotypes/rolekeeper/internal/logging"
	"github.com/whotypes/rolekeeper/internal/notify"
	"github.com/whotypes/rolekeeper/internal/supporter"
	"github.com/whotypes/rolekeeper/internal/temprole"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	startedAt := time.Now()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()

	data.InitValidator()

	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		logger.Fatal("Failed to create Discord session", zap.Error(err))
	}
	dg.Identify.Intents = discordgo.IntentsGuilds

	var members *cache.MemberCache
	if cfg.CacheEnabled() {
		members, err = cache.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.MemberCacheTTL)
		if err != nil {
			logger.Warn("Member cache unavailable, falling back to the API", zap.Error(err))
			members = nil
		} else {
			defer members.Close()
			logger.Info("Member cache configured (Redis)", zap.Duration("ttl", cfg.MemberCacheTTL))
		}
	}

	gw := gateway.New(dg, members, logger)
	dispatcher := notify.NewDispatcher(gw, cfg.NotifyWorkers, logger)

	expiry, err := temprole.NewExpiryParser()
	if err != nil {
		logger.Warn("Natural language durations disabled", zap.Error(err))
		expiry = nil
	}

	deps := discord.Dependencies{
		Expiry:      expiry,
		NotifyStats: dispatcher.Stats,
		StartedAt:   startedAt,
		Logger:      logger,
	}

	var sweeper *temprole.Sweeper
	if cfg.StorageEnabled() {
		store, err := data.NewFirestoreClient(ctx, cfg.FirestoreProjectID, cfg.FirestoreDatabaseID)
		if err != nil {
			logger.Warn("Failed to initialize Firestore storage; role commands disabled", zap.Error(err))
		} else {
			defer store.Close()
			manager := temprole.NewManager(gw, store, dispatcher, cfg.BulkRoleCap, logger)
			deps.TempRoles = manager
			deps.Supporters = supporter.NewService(gw, store, logger)
			sweeper = temprole.NewSweeper(manager, cfg.ExpirySweepInterval, "rolekeeper", logger)
			logger.Info("Storage configured (Firestore)",
				zap.String("project", cfg.FirestoreProjectID),
				zap.Int("bulkCap", manager.BulkCap()))
		}
	} else {
		logger.Info("Storage not configured; /temprole and /supporter are disabled")
	}

	handler := discord.NewHandler(deps)
	dg.AddHandler(handler.HandleInteraction)

	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		logger.Info("Logged in",
			zap.String("user", s.State.User.Username),
			zap.Int("guilds", len(r.Guilds)))
		if err := handler.RegisterCommands(s); err != nil {
			logger.Error("Failed to register slash commands", zap.Error(err))
		}
	})

	if err := dg.Open(); err != nil {
		logger.Fatal("Failed to open Discord connection", zap.Error(err))
	}

	sweepDone := make(chan struct{})
	if sweeper != nil {
		go func() {
			defer close(sweepDone)
			sweeper.Run(ctx)
		}()
	} else {
		close(sweepDone)
	}

	logger.Info("Bot is now running. Press CTRL-C to exit.")
	<-ctx.Done()

	logger.Info("Shutting down bot...")
	<-sweepDone
	if err := dg.Close(); err != nil {
		logger.Warn("Error closing Discord session", zap.Error(err))
	}
	dispatcher.Close()
	logger.Info("Delivered pending notifications", zap.Any("stats", dispatcher.Stats()))
}

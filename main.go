package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/doguser/NickWatchBot/announcement"
	"github.com/doguser/NickWatchBot/bot"
	"github.com/doguser/NickWatchBot/command"
	"github.com/doguser/NickWatchBot/configuration"
	"github.com/doguser/NickWatchBot/database"
	"github.com/doguser/NickWatchBot/logger"
	"github.com/doguser/NickWatchBot/lookup"
	"github.com/doguser/NickWatchBot/registry"
	"github.com/doguser/NickWatchBot/services"
	"github.com/doguser/NickWatchBot/webserver"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Errorf("Recovered from panic: %v\n%s", r, debug.Stack())
		}
	}()

	logger.Log.Info("NickWatch starting...")
	if err := run(); err != nil {
		logger.Log.WithError(err).Error("NickWatch encountered an error and is shutting down")
		os.Exit(1)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		logger.Log.WithError(err).Warn("No .env file loaded, using process environment")
	}

	cfg, err := configuration.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := logger.Setup(cfg.LogDir, cfg.LogLevel); err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close(db)
	logger.Log.Info("Database connection established successfully")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	go database.MonitorHealth(ctx, db, 5*time.Minute)

	services.InitHTTPClients()
	store := database.NewStore(db)

	reg := registry.New(store, registry.Options{
		TTL:             cfg.Registry.TTL,
		Fallback:        cfg.Registry.Fallback,
		DefaultPlatform: cfg.Registry.DefaultPlatform,
	})

	// The sessions only exist once the bot is built; the dispatcher and the
	// correlator resolve them lazily.
	var discord *bot.Bot
	broadcastSender := func() services.MessageSender {
		if discord == nil {
			return nil
		}
		return discord.Sender()
	}
	lookupSender := func() lookup.CommandSender {
		if discord == nil {
			return nil
		}
		return discord.CommandSender()
	}

	dispatcher := services.NewDispatcher(broadcastSender, reg, services.DispatcherOptions{
		SendTimeout: cfg.Broadcast.SendTimeout,
		Concurrency: cfg.Broadcast.Concurrency,
		Rate:        cfg.Broadcast.Rate,
		Footer:      cfg.Broadcast.Footer,
	})

	notifier, closeNotifier := services.BuildNotifier(cfg.Notify.URL, cfg.Notify.RedisDSN, cfg.Notify.RedisChannel)
	defer closeNotifier()

	upserter := services.NewUpserter(store, reg, dispatcher, notifier, services.UpserterOptions{
		Policy: services.UsernamePolicy{
			AllowPeriod:      cfg.Usernames.AllowPeriod,
			EmbedAllowPeriod: cfg.Usernames.EmbedAllowPeriod,
		},
	})

	var ingestor services.Ingestor = services.NewLocalIngestor(upserter)
	if cfg.Ingest.Mode == "forward" {
		ingestor = services.NewRemoteIngestor(cfg.Ingest.SiteURL, services.GetDefaultHTTPClient())
		logger.Log.Infof("Forwarding discoveries to %s", cfg.Ingest.SiteURL)
	}

	watcher := services.NewMonitor(announcement.NewClassifier(announcement.PortugueseBR), ingestor, cfg.Monitor.SourceChannels)

	correlator := lookup.NewCorrelator(lookupSender, lookup.Options{
		ChannelID: cfg.Search.ChannelID,
		ServerID:  cfg.Search.ServerID,
		BotName:   cfg.Search.BotName,
		Command:   cfg.Search.Command,
		Timeout:   cfg.Search.Timeout,
		Serialize: cfg.Search.Serialize,
	})

	command.Setup(reg)

	discord, err = bot.New(bot.Options{
		Token:       cfg.Discord.Token,
		BotToken:    cfg.Discord.BotToken,
		DeveloperID: cfg.Discord.DeveloperID,
	}, watcher, correlator)
	if err != nil {
		return fmt.Errorf("failed to create Discord sessions: %w", err)
	}
	if err := discord.Start(); err != nil {
		return fmt.Errorf("failed to start Discord bot: %w", err)
	}
	logger.Log.Info("Discord bot started successfully")

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	web := webserver.NewServer(webserver.Options{
		Addr:            cfg.HTTP.Addr,
		AdminAPIKey:     cfg.HTTP.AdminAPIKey,
		RateLimit:       cfg.HTTP.RateLimit,
		RateBurst:       cfg.HTTP.RateBurst,
		DefaultPlatform: cfg.Registry.DefaultPlatform,
	}, webserver.Deps{
		Upserter:  upserter,
		Usernames: store,
		Searcher:  correlator,
		Registry:  reg,
		Health:    func(ctx context.Context) error { return database.Ping(ctx, db) },
	})
	web.Start()

	logger.Log.Info("NickWatch is running")
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	logger.Log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := web.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("Error shutting down HTTP server")
	}

	discord.Close(upserter.Wait)
	stop()

	return nil
}

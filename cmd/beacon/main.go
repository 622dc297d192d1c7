package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/beacon-lab/project-beacon/internal/clients/notion"
	"github.com/beacon-lab/project-beacon/internal/clients/resend"
	"github.com/beacon-lab/project-beacon/internal/clients/telegram"
	corecfg "github.com/beacon-lab/project-beacon/internal/core/config"
	"github.com/beacon-lab/project-beacon/internal/core/storage/postgres"
	"github.com/beacon-lab/project-beacon/internal/identity"
	"github.com/beacon-lab/project-beacon/internal/ingestion"
	"github.com/beacon-lab/project-beacon/internal/migrations"
	"github.com/beacon-lab/project-beacon/internal/processors"
	"github.com/beacon-lab/project-beacon/internal/queue"
	"github.com/beacon-lab/project-beacon/internal/router"
	"github.com/beacon-lab/project-beacon/internal/scheduler"
	"github.com/beacon-lab/project-beacon/internal/server"
	"github.com/beacon-lab/project-beacon/internal/sitesettings"
	"github.com/beacon-lab/project-beacon/internal/summary"
)

func main() {
	configPath := flag.String("config", "beacon.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config",
		"server_mode", cfg.Server.Mode,
		"scheduler_enabled", cfg.Scheduler.Enabled,
		"jobs", len(cfg.Jobs))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Initialize Storage (PostgreSQL)
	dbAdapter, err := postgres.NewAdapter(
		cfg.Database.DSN,
		cfg.Database.MaxOpenConns,
		cfg.Database.MaxIdleConns,
	)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer dbAdapter.Close()

	// 2.1. Run Database Migrations
	if err := migrations.RunMigrations(dbAdapter.DB(), cfg.Database.AutoMigrate); err != nil {
		slog.Error("Failed to run database migrations", "error", err)
		os.Exit(1)
	}

	// 3. Initialize Site Settings (Redis)
	settings, err := sitesettings.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		slog.Error("Failed to initialize site settings", "error", err)
		os.Exit(1)
	}
	defer settings.Close()

	// 4. Initialize Queue
	wmLogger := watermill.NewSlogLogger(logger)
	q := queue.New(wmLogger)
	defer q.Close()

	// 5. Initialize Clients and Processors
	tg := telegram.New(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
	if tg == nil {
		slog.Info("Telegram notifications disabled (not configured)")
	}
	mailer := resend.New(cfg.Resend.APIKey, cfg.Resend.AudienceID)
	if mailer == nil {
		slog.Info("Resend integration disabled (not configured)")
	}

	resolver := identity.NewResolver(dbAdapter, dbAdapter)
	procs := processors.New(processors.Deps{
		Resolver:      resolver,
		Events:        dbAdapter,
		Engagement:    dbAdapter,
		Subscriptions: dbAdapter,
		Profiles:      dbAdapter,
		Content:       dbAdapter,
		Notifier:      tg,
		Mailer:        mailer,
		ContactFrom:   cfg.Resend.ContactFrom,
		ContactTo:     cfg.Resend.ContactTo,
	})

	var cms *processors.CMSSync
	if cfg.Notion.Token != "" {
		notionClient, err := notion.New(cfg.Notion.Token)
		if err != nil {
			slog.Error("Failed to initialize notion client", "error", err)
			os.Exit(1)
		}
		cms = processors.NewCMSSync(notionClient, dbAdapter)
	} else {
		slog.Info("CMS sync disabled (notion not configured)")
		cms = processors.NewCMSSync(nil, dbAdapter)
	}

	reporter := summary.NewReporter(dbAdapter, tg, telegram.EscapeMarkdown)

	// 6. Initialize Router
	routerCfg := router.Config{
		CloseTimeout:    cfg.Router.CloseTimeoutDuration(),
		MaxRetries:      cfg.Router.MaxRetries,
		InitialInterval: cfg.Router.InitialIntervalDuration(),
		MaxInterval:     cfg.Router.MaxIntervalDuration(),
		Multiplier:      cfg.Router.Multiplier,
	}
	eventRouter, err := router.New(routerCfg, q, procs, cms, reporter, router.NewDLQConsumer(dbAdapter), wmLogger)
	if err != nil {
		slog.Error("Failed to initialize event router", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := eventRouter.Run(ctx); err != nil {
			slog.Error("Event router stopped with error", "error", err)
			cancel()
		}
	}()
	<-eventRouter.Running()
	slog.Info("Event router running")

	// 7. Initialize Scheduler
	if cfg.Scheduler.Enabled {
		sched := scheduler.New(cfg.Jobs, q.Publisher())
		go sched.Start(ctx)
	} else {
		slog.Info("Scheduler disabled by config")
	}

	// 8. Initialize Ingestion and Server
	ingestionSvc := ingestion.NewService(q.Publisher(), settings, ingestion.Config{
		WebhookSecret:    cfg.Webhook.Secret,
		CORSOrigins:      cfg.Server.CORSOrigins,
		SecureCookies:    cfg.Server.Mode == "release",
		MaxBodySizeBytes: cfg.Server.MaxBodySizeMB * 1024 * 1024,
		CMSDatabaseID:    cfg.Notion.DatabaseID,
	})

	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), dbAdapter.DB(), cfg.Server.Mode)
	srv.AddHealthCheck("redis", settings)
	ingestionSvc.RegisterRoutes(srv.Engine)

	// Signal handler triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	// HTTP server blocks until ctx is cancelled.
	if err := srv.Run(ctx); err != nil {
		slog.Error("Server stopped with error", "error", err)
	}

	if err := eventRouter.Close(); err != nil {
		slog.Error("Event router close failed", "error", err)
	}

	slog.Info("Shutdown complete")
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}

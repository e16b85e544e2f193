package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tabpress/tabledger/internal/config"
	"github.com/tabpress/tabledger/internal/content"
	"github.com/tabpress/tabledger/internal/engine"
	"github.com/tabpress/tabledger/internal/health"
	"github.com/tabpress/tabledger/internal/ledger"
	"github.com/tabpress/tabledger/internal/logging"
	"github.com/tabpress/tabledger/internal/pgdb"
	"github.com/tabpress/tabledger/internal/prestige"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := logging.New("tabledger", version)
		bootLog.Fatal().Err(err).Msg("Failed to load config")
	}

	logging.SetLevel(cfg.Logging.Level)
	log := logging.New(cfg.Service.Name, version)
	log.Info().
		Str("postgres", cfg.Postgres.Host).
		Str("database", cfg.Postgres.Database).
		Bool("serverless", cfg.Runtime.Serverless).
		Bool("build_time", cfg.Runtime.BuildTime).
		Msg("Starting ledger service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := pgdb.NewManager(pgdb.Settings{
		DSN:              cfg.Postgres.DSN(),
		Database:         cfg.Postgres.Database,
		MaxConns:         int32(cfg.Postgres.MaxConns),
		ConnectTimeout:   time.Duration(cfg.Postgres.ConnectTimeoutSeconds) * time.Second,
		IdleTimeout:      time.Duration(cfg.Postgres.IdleTimeoutSeconds) * time.Second,
		AllowInsecureTLS: cfg.Runtime.AllowInsecureTLS,
		Serverless:       cfg.Runtime.Serverless,
		BuildTime:        cfg.Runtime.BuildTime,
	}, log)
	executor := pgdb.NewExecutor(manager, log)

	if err := pgdb.EnsureSchema(ctx, executor, log); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize schema")
	}

	gateway := prestige.NewSQLGateway(executor)
	writer := ledger.NewSQLWriter(executor)
	transitions := engine.New(executor, gateway, writer, log)
	log.Info().Msg("Transition engine ready")

	healthServer := health.NewServer(manager, cfg.Service.HealthPort, log)
	healthServer.OnTransition(func(ctx context.Context, old, new *content.Snapshot) error {
		tx, err := manager.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		if err := transitions.Transition(ctx, old, new, tx); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
	healthServer.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if t := manager.Telemetry(); t != nil {
				log.Debug().
					Int32("total_conns", t.TotalConns).
					Int32("idle_conns", t.IdleConns).
					Int32("acquired_conns", t.AcquiredConns).
					Int64("queries", manager.Snapshot().Queries).
					Msg("Pool telemetry")
			}
		case <-sigChan:
			log.Info().Msg("Received shutdown signal")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			healthServer.Stop(shutdownCtx)
			shutdownCancel()
			log.Info().Msg("Shutdown complete")
			return
		case <-ctx.Done():
			return
		}
	}
}

package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"crosspost/internal/accounts"
	"crosspost/internal/api"
	"crosspost/internal/config"
	"crosspost/internal/domain"
	"crosspost/internal/orchestrator"
	"crosspost/internal/publisher"
	"crosspost/internal/scheduler"
	"crosspost/internal/store"
)

func main() {
	var (
		addr    = flag.String("addr", "", "HTTP bind address (overrides config)")
		dbPath  = flag.String("db", "", "SQLite DB path (overrides config)")
		cfgPath = flag.String("config", "", "YAML config file")
		debug   = flag.Bool("debug", false, "enable pprof endpoints")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	cfg, err := config.Load(*cfgPath)
	if err != nil { log.Fatal().Err(err).Msg("load config") }
	if *addr != "" { cfg.Addr = *addr }
	if *dbPath != "" { cfg.DBPath = *dbPath }
	if *debug { cfg.Debug = true }

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_pragma=journal_mode(WAL)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil { log.Fatal().Err(err).Msg("open db") }
	defer db.Close()
	db.SetMaxOpenConns(1) // SQLite single writer

	if err := store.EnsureSchema(db); err != nil { log.Fatal().Err(err).Msg("ensure schema") }
	st := store.New(db)
	if n, err := st.RecoverStale(context.Background(), 5*time.Minute); err == nil {
		log.Info().Int("recovered", n).Msg("recovered stale publishing posts")
	}

	directory, err := accounts.NewStoreDirectory(st, cfg.AccountCacheSize)
	if err != nil { log.Fatal().Err(err).Msg("account directory") }

	pubs := buildPublishers(cfg)
	orch := orchestrator.New(st, directory, pubs)

	fire := func(postID string) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := orch.Publish(ctx, postID); err != nil {
			log.Error().Err(err).Str("post_id", postID).Msg("publish pass")
		}
	}

	registry := scheduler.NewRegistry(fire)
	if err := registry.Rehydrate(context.Background(), st); err != nil {
		log.Error().Err(err).Msg("rehydrate registry")
	}
	defer registry.Stop()

	sweeper := scheduler.NewSweeper(st, time.Duration(cfg.SweepInterval), fire)
	sweeper.Start()
	defer sweeper.Stop()

	srv := &http.Server{Addr: cfg.Addr, Handler: api.NewServerWithDebug(st, registry, directory, orch, cfg.Debug)}
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
	log.Info().Msg("shutting down")
	ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTimeout()
	_ = srv.Shutdown(ctxTimeout)
}

func buildPublishers(cfg *config.Config) publisher.Registry {
	var pubs []publisher.Publisher
	for name, pc := range cfg.Platforms {
		client := publisher.NewClient(domain.Platform(name), pc.Endpoint, pc.RatePerSec, pc.Burst, time.Duration(pc.Timeout))
		switch name {
		case "twitter":
			pubs = append(pubs, publisher.NewTwitter(client))
		case "facebook":
			pubs = append(pubs, publisher.NewFacebook(client))
		case "instagram":
			pubs = append(pubs, publisher.NewInstagram(client))
		case "linkedin":
			pubs = append(pubs, publisher.NewLinkedIn(client))
		}
		log.Info().Str("platform", name).Str("endpoint", pc.Endpoint).Msg("publisher configured")
	}
	return publisher.NewRegistry(pubs...)
}

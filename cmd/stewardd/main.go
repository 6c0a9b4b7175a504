package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"steward.run/internal/agent"
	"steward.run/internal/audit"
	"steward.run/internal/auth"
	"steward.run/internal/broadcast"
	"steward.run/internal/config"
	"steward.run/internal/gemini"
	"steward.run/internal/host"
	"steward.run/internal/httpapi"
	"steward.run/internal/maintenance"
	"steward.run/internal/migrate"
	"steward.run/internal/obs"
	"steward.run/internal/snippet"
	"steward.run/internal/store/pg"
	"steward.run/internal/tools"
)

var (
	version = "1.0.0"
	commit  = "dev"
)

func main() {
	configPath := flag.String("config", os.Getenv("STEWARD_CONFIG"), "Path to YAML config")
	migrationsPath := flag.String("migrations", "ops/migrations/sql", "Path to SQL migrations")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx := context.Background()

	// Stores: Postgres when a DSN is configured, in-memory otherwise.
	var (
		auditStore   audit.Store     = audit.NewInMemory()
		snippetStore snippet.Store   = snippet.NewInMemory()
		subStore     broadcast.Store = broadcast.NewInMemory()
		platform     host.Platform   = host.NewMemory()
		sqlRunner    tools.SQLRunner
		pgStore      *pg.Store
	)
	if cfg.PGDSN != "" {
		pgStore, err = pg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer pgStore.Close()

		// Startup db health check: apply pending migrations so the schema
		// repairs itself on boot.
		migCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if err := migrate.NewManager(pgStore.DB(), *migrationsPath).Up(migCtx); err != nil {
			cancel()
			log.Fatalf("migrate: %v", err)
		}
		cancel()

		auditStore = pgStore
		snippetStore = pgStore
		subStore = pgStore
		platform = pgStore
		sqlRunner = pgStore
	}

	seedSMTPOptions(ctx, platform, cfg.SMTP)

	gate := maintenance.NewGate(platform, cfg.MarkerPath)
	mailer := broadcast.NewSMTPMailer(platform, cfg.SiteName)
	broadcastSvc := broadcast.NewService(subStore, mailer)
	engine := snippet.NewEngine(0)

	runtime := snippet.NewRuntime(engine)
	if err := runtime.Load(ctx, snippetStore); err != nil {
		log.Fatalf("load snippets: %v", err)
	}

	registry := tools.NewRegistry()
	deps := tools.Deps{
		Platform:  platform,
		Resolver:  host.NewResolver(platform),
		Snippets:  snippetStore,
		Engine:    engine,
		Gate:      gate,
		Broadcast: broadcastSvc,
		SQL:       sqlRunner,
	}
	if err := tools.RegisterBuiltins(registry, deps); err != nil {
		log.Fatalf("register tools: %v", err)
	}

	var provider agent.Provider
	if cfg.Provider.Secret != "" {
		client, err := gemini.New(gemini.Config{
			Secret:   cfg.Provider.Secret,
			Project:  cfg.Provider.Project,
			Location: cfg.Provider.Location,
			Model:    cfg.Provider.Model,
			Timeout:  cfg.Provider.Timeout.Std(),
		})
		if err != nil {
			log.Fatalf("provider: %v", err)
		}
		provider = client
	}

	orchestrator := agent.New(provider, registry, auditStore)

	tokens, err := auth.NewTokens(cfg.OperatorSecret)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}
	csrf := auth.NewCSRF(cfg.OperatorSecret, time.Hour)

	probe := httpapi.ReadyProbe{}
	if pgStore != nil {
		probe.DB = pgStore.DB()
	}
	api := httpapi.New(probe, tokens, csrf, orchestrator, broadcastSvc, gate, version)

	// Hourly housekeeping: replay snippets registered at the hourly point.
	hourly := time.NewTicker(time.Hour)
	defer hourly.Stop()
	go func() {
		for range hourly.C {
			runtime.Replay(ctx, host.PointHourly)
		}
	}()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting stewardd %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(shutdownCtx)
	log.Println("Stopped")
}

// seedSMTPOptions copies config transport settings into the option store when
// the options are not set yet; configure_smtp overwrites them at runtime.
func seedSMTPOptions(ctx context.Context, options host.Options, smtp config.SMTP) {
	if smtp.Host == "" || smtp.User == "" || smtp.Pass == "" {
		return
	}
	seeds := map[string]string{
		host.OptionSMTPHost: smtp.Host,
		host.OptionSMTPPort: smtp.Port,
		host.OptionSMTPUser: smtp.User,
		host.OptionSMTPPass: smtp.Pass,
	}
	for name, value := range seeds {
		if _, ok, err := options.GetOption(ctx, name); err != nil || ok {
			continue
		}
		if err := options.SetOption(ctx, name, value); err != nil {
			obs.LogEvent(map[string]any{
				"type":   "startup",
				"event":  "smtp.seed_failed",
				"option": name,
				"error":  err.Error(),
			})
		}
	}
}

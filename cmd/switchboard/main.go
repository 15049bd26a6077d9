package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/switchboardhq/switchboard/internal/adapter/agents"
	"github.com/switchboardhq/switchboard/internal/adapter/filestore"
	sbhttp "github.com/switchboardhq/switchboard/internal/adapter/http"
	"github.com/switchboardhq/switchboard/internal/adapter/mcp"
	sbnats "github.com/switchboardhq/switchboard/internal/adapter/nats"
	sbotel "github.com/switchboardhq/switchboard/internal/adapter/otel"
	"github.com/switchboardhq/switchboard/internal/adapter/postgres"
	"github.com/switchboardhq/switchboard/internal/adapter/ristretto"
	"github.com/switchboardhq/switchboard/internal/adapter/ws"
	"github.com/switchboardhq/switchboard/internal/config"
	"github.com/switchboardhq/switchboard/internal/domain/agent"
	"github.com/switchboardhq/switchboard/internal/logger"
	"github.com/switchboardhq/switchboard/internal/memory/pattern"
	"github.com/switchboardhq/switchboard/internal/middleware"
	"github.com/switchboardhq/switchboard/internal/port/a2a"
	"github.com/switchboardhq/switchboard/internal/port/agentbackend"
	"github.com/switchboardhq/switchboard/internal/port/errsink"
	"github.com/switchboardhq/switchboard/internal/port/recordstore"
	"github.com/switchboardhq/switchboard/internal/service"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if len(os.Args) > 1 && os.Args[1] == "admin" {
		if err := runAdmin(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)
	defer logCloser.Close()

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"storage_mode", cfg.Storage.Mode,
		"log_level", cfg.Logging.Level,
		"nats_enabled", cfg.NATS.Enabled,
		"mcp_enabled", cfg.MCP.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability ---

	otelShutdown, err := sbotel.Setup(ctx, cfg.Otel, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()

	metrics, err := sbotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Storage backends ---

	var primary, fallback recordstore.Backend

	if cfg.Storage.Mode == config.ModePrimary || cfg.Storage.Mode == config.ModeHybrid {
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()

		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		slog.Info("postgres connected, migrations applied")

		primary = postgres.NewStore(pool)
	}

	if cfg.Storage.Mode == config.ModeFile || cfg.Storage.Mode == config.ModeHybrid {
		fs, err := filestore.New(cfg.Storage.FileDir)
		if err != nil {
			return fmt.Errorf("filestore: %w", err)
		}
		fallback = fs
	}

	// --- NATS ---

	var sink errsink.Sink = errsink.LogSink{}
	var queue *sbnats.Queue
	if cfg.NATS.Enabled {
		queue, err = sbnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = queue.Close() }()
		sink = sbnats.NewSink(queue)
		slog.Info("nats connected", "url", cfg.NATS.URL)
	}

	// --- Memory engine ---

	detector := pattern.New()

	recallCache, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer recallCache.Close()

	mem := service.NewMemoryService(
		cfg.Storage, cfg.Memory, cfg.Breaker,
		primary, fallback,
		detector, sink,
		service.WithRecallCache(recallCache, cfg.Cache.TTL),
		service.WithMemoryMetrics(metrics),
	)

	// --- Agent backends ---

	registry := agentbackend.NewRegistry()
	registerAgents(registry, mem, queue, cfg.NATS.RemoteAgents)

	// --- Routing services ---

	hub := ws.NewHub()
	sessions := service.NewRoutingStateService(cfg.Routing)
	intents := service.NewIntentService(detector)
	router := service.NewRouterService(intents, sessions, mem, registry, sink, hub, metrics, cfg.Memory, cfg.Routing)

	// --- HTTP ---

	handlers := &sbhttp.Handlers{
		Router:   router,
		Memory:   mem,
		Sessions: sessions,
		Registry: registry,
		Hub:      hub,
	}

	a2aHandler := a2a.NewHandler(cfg.Server.BaseURL, a2a.DispatchFunc(
		func(ctx context.Context, sessionID, userID, input string) (map[string]any, error) {
			resp, err := router.Process(ctx, &service.ProcessRequest{
				SessionID: sessionID,
				UserID:    userID,
				Input:     input,
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"agent":      resp.Agent,
				"message":    resp.Message,
				"success":    resp.Success,
				"routed":     resp.Routed,
				"confidence": resp.Decision.Confidence,
				"session_id": sessionID,
			}, nil
		}))

	r := chi.NewRouter()

	r.Use(sbotel.HTTPMiddleware(cfg.Logging.Service))
	r.Use(sbhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(sbhttp.SecurityHeaders)
	r.Use(middleware.RequestID)
	r.Use(sbhttp.Logger)
	r.Use(middleware.APIKeyAuth(cfg.Auth.APIKeyHash))
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	sbhttp.MountRoutes(r, handlers)
	a2aHandler.MountRoutes(r)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// --- MCP ---

	if cfg.MCP.Enabled {
		mcpSrv := mcp.NewServer(
			mcp.ServerConfig{Addr: cfg.MCP.Addr, Name: "switchboard", Version: "0.1.0", APIKey: cfg.MCP.APIKey},
			mcp.ServerDeps{Memory: mem},
		)
		if err := mcpSrv.Start(); err != nil {
			return fmt.Errorf("mcp: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mcpSrv.Stop(shutdownCtx); err != nil {
				slog.Warn("mcp shutdown", "error", err)
			}
		}()
		slog.Info("mcp server started", "addr", cfg.MCP.Addr)
	}

	// --- Run ---

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sessions.StartSweeper(gctx)
		return nil
	})

	g.Go(func() error {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// registerAgents wires every cataloged agent into the registry. Agents named
// in remoteIDs run on external workers over NATS; the rest use the in-process
// builtins.
func registerAgents(registry *agentbackend.Registry, mem *service.MemoryService, queue *sbnats.Queue, remoteIDs []string) {
	if queue == nil || len(remoteIDs) == 0 {
		agents.RegisterBuiltins(registry, mem)
		return
	}

	remote := make(map[string]bool, len(remoteIDs))
	for _, id := range remoteIDs {
		remote[id] = true
	}

	for id, build := range map[string]func() agentbackend.Backend{
		"research":   func() agentbackend.Backend { return agents.NewResearch(mem) },
		"creative":   func() agentbackend.Backend { return agents.NewCreative(mem) },
		"automation": func() agentbackend.Backend { return agents.NewAutomation(mem) },
		"welcome":    func() agentbackend.Backend { return agents.NewWelcome(mem) },
	} {
		if remote[id] {
			continue
		}
		registry.Register(build())
	}

	for id := range remote {
		profile, ok := agent.ProfileByID(agent.ID(id))
		if !ok {
			slog.Warn("skipping unknown remote agent", "agent", id)
			continue
		}
		registry.Register(agents.NewRemote(profile, queue))
		slog.Info("registered remote agent", "agent", id)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"casino-engine/internal/config"
	"casino-engine/internal/events"
	"casino-engine/internal/games"
	"casino-engine/internal/handlers"
	"casino-engine/internal/logger"
	"casino-engine/internal/middleware"
	"casino-engine/internal/payout"
	"casino-engine/internal/seeds"
	"casino-engine/internal/services"
	"casino-engine/internal/store"
	"casino-engine/internal/store/pgstore"
	"casino-engine/internal/store/redisstore"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd() *cobra.Command {
	var (
		migrate       bool
		sweepInterval time.Duration
		sweepAge      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger.Init(cfg.LogLevel, cfg.Environment)
			return serve(cmd.Context(), cfg, migrate, sweepInterval, sweepAge)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply database migrations on start (postgres only)")
	cmd.Flags().DurationVar(&sweepInterval, "sweep-interval", 5*time.Minute, "how often open bets are swept")
	cmd.Flags().DurationVar(&sweepAge, "sweep-age", 10*time.Minute, "age after which an open bet is completed by the sweeper")
	return cmd
}

// openStore returns the configured backend and, for Redis, a rate limiter
// shared across instances.
func openStore(ctx context.Context, cfg *config.Config, migrate bool) (store.Store, middleware.RateLimiter, error) {
	switch cfg.Store {
	case config.StoreRedis:
		rs, err := redisstore.New(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return rs, redisstore.NewRateLimiter(rs.Client()), nil

	case config.StorePostgres:
		if migrate {
			if err := pgstore.MigrateUp(cfg.DatabaseURL); err != nil {
				return nil, nil, err
			}
		}
		ps, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return ps, middleware.NewMemoryLimiter(), nil

	default:
		log.Warn("Using in-memory store; balances and bets are lost on restart")
		return store.NewMemory(), middleware.NewMemoryLimiter(), nil
	}
}

func serve(ctx context.Context, cfg *config.Config, migrate bool, sweepInterval, sweepAge time.Duration) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, limiter, err := openStore(ctx, cfg, migrate)
	if err != nil {
		return err
	}
	defer st.Close()

	registry, err := games.NewRegistry(cfg.Games)
	if err != nil {
		return err
	}

	hub := handlers.NewWebSocketHub()
	broadcasters := services.MultiBroadcaster{hub}
	if cfg.NATSURL != "" {
		publisher, err := events.Connect(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			return err
		}
		defer publisher.Close()
		broadcasters = append(broadcasters, publisher)
	}

	vault := seeds.NewVault(st, cfg.MaxNonce, cfg.StoreTimeout)
	engine := services.NewGameEngine(st, vault, registry, payout.NewCalculator(cfg.Games.Payout), broadcasters, services.EngineConfigFrom(cfg))
	defer engine.Shutdown()

	secret := cfg.JWTSecret
	if secret == "" {
		secret = uuid.NewString()
		log.Warn("JWT_SECRET not set; using a random secret, tokens will not survive a restart")
	}

	router := handlers.NewRouter(handlers.RouterConfig{
		Engine:       engine,
		Vault:        vault,
		JWT:          services.NewJWTService(secret, cfg.JWTTTL),
		Hub:          hub,
		Limiter:      limiter,
		BetRateLimit: cfg.BetRateLimit,
		AdminAPIKey:  cfg.AdminAPIKey,
		Production:   cfg.IsProduction(),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		engine.RunSweeper(gctx, sweepInterval, sweepAge)
		return nil
	})
	g.Go(func() error {
		log.WithFields(log.Fields{
			"port":  cfg.Port,
			"store": cfg.Store,
			"env":   cfg.Environment,
		}).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

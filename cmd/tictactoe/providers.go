package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/tictactoe/internal/auth"
	"github.com/cory-johannsen/tictactoe/internal/config"
	"github.com/cory-johannsen/tictactoe/internal/frontend/httpapi"
	"github.com/cory-johannsen/tictactoe/internal/frontend/ws"
	"github.com/cory-johannsen/tictactoe/internal/game/match"
	"github.com/cory-johannsen/tictactoe/internal/gameserver"
	"github.com/cory-johannsen/tictactoe/internal/observability"
	"github.com/cory-johannsen/tictactoe/internal/server"
	"github.com/cory-johannsen/tictactoe/internal/storage"
	"github.com/cory-johannsen/tictactoe/internal/storage/memory"
	"github.com/cory-johannsen/tictactoe/internal/storage/postgres"
	"github.com/cory-johannsen/tictactoe/internal/storage/rediscache"
)

// App is the assembled server.
type App struct {
	Lifecycle *server.Lifecycle
	Logger    *zap.Logger
}

// dbHealthInterval is how often the postgres pool is pinged.
const dbHealthInterval = 30 * time.Second

// backend is the configured persistence stack.
type backend struct {
	store storage.Store
	// pool is nil for the memory driver.
	pool *postgres.Pool
}

func provideLogger(cfg config.LoggingConfig) (*zap.Logger, func(), error) {
	logger, err := observability.NewLogger(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing logger: %w", err)
	}
	return logger, func() { _ = logger.Sync() }, nil
}

func provideBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (*backend, func(), error) {
	b := &backend{}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		dbStart := time.Now()
		pool, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}
		cleanups = append(cleanups, pool.Close)
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
		b.pool = pool
		b.store = postgres.NewStore(pool)
	default:
		logger.Warn("using in-memory storage; data is lost on restart")
		b.store = memory.NewStore()
	}

	if cfg.Redis.Enabled {
		client, err := rediscache.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connecting to redis: %w", err)
		}
		cleanups = append(cleanups, func() { _ = client.Close() })
		logger.Info("leaderboard cache enabled", zap.Duration("ttl", cfg.Redis.LeaderboardTTL))
		b.store = rediscache.New(b.store, client, cfg.Redis.LeaderboardTTL, logger)
	}
	return b, cleanup, nil
}

func provideStore(b *backend) storage.Store { return b.store }

func provideUserStore(s storage.Store) storage.UserStore { return s }

func provideRepository(s storage.Store) match.Repository { return s }

func provideReadiness(b *backend) httpapi.ReadinessFunc {
	if b.pool == nil {
		return nil
	}
	return b.pool.Ready
}

func provideIssuer(cfg config.AuthConfig) (*auth.Issuer, error) {
	return auth.NewIssuer(cfg.JWTSecret, cfg.TokenTTL)
}

// provideVerifier checks identity tokens unless the deployment trusts
// claimed identities.
func provideVerifier(cfg config.AuthConfig, issuer *auth.Issuer, logger *zap.Logger) gameserver.IdentityVerifier {
	if !cfg.RequireToken {
		logger.Warn("identity tokens not required; authenticate trusts claimed user ids")
		return gameserver.TrustIdentity
	}
	return issuer
}

func provideCoordinatorOptions(cfg config.GameConfig) gameserver.Options {
	return gameserver.Options{
		LeaderboardSize:    cfg.LeaderboardSize,
		HistoryLimit:       cfg.HistoryLimit,
		ResignOnDisconnect: cfg.ResignOnDisconnect,
	}
}

func provideAPIOptions(game config.GameConfig, srv config.ServerConfig) httpapi.Options {
	return httpapi.Options{
		LeaderboardSize: game.LeaderboardSize,
		HistoryLimit:    game.HistoryLimit,
		WSPath:          srv.WSPath,
	}
}

func provideRouter(api *httpapi.API, sockets *ws.Handler) http.Handler {
	return api.Router(sockets)
}

// provideLifecycle registers the HTTP acceptor, the finished-game janitor
// and, for postgres, the database health probe.
func provideLifecycle(
	cfg config.GameConfig,
	acceptor *ws.Acceptor,
	games *match.Store,
	b *backend,
	logger *zap.Logger,
) *server.Lifecycle {
	lc := server.NewLifecycle(logger)
	lc.Add("http", acceptor)
	lc.Add("janitor", server.NewPeriodic(cfg.PruneInterval, func(context.Context) {
		if n := games.Prune(cfg.CompletedRetention); n > 0 {
			logger.Debug("pruned finished games", zap.Int("count", n), zap.Int("remaining", games.Len()))
		}
	}))
	if b.pool != nil {
		lc.Add("db-health", server.NewPeriodic(dbHealthInterval, b.pool.HealthCheck(logger)))
	}
	return lc
}

func provideApp(lc *server.Lifecycle, logger *zap.Logger) *App {
	return &App{Lifecycle: lc, Logger: logger}
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/aretw0/keeper"
	"github.com/aretw0/keeper/internal/config"
	"github.com/aretw0/keeper/internal/metrics"
	"github.com/aretw0/keeper/pkg/adapters/file"
	"github.com/aretw0/keeper/pkg/adapters/llm"
	"github.com/aretw0/keeper/pkg/adapters/memory"
	"github.com/aretw0/keeper/pkg/adapters/redis"
	"github.com/aretw0/keeper/pkg/adapters/scripted"
	"github.com/aretw0/keeper/pkg/adapters/sqlite"
	"github.com/aretw0/keeper/pkg/domain"
	"github.com/aretw0/keeper/pkg/persistence/middleware"
	"github.com/aretw0/keeper/pkg/ports"
	"github.com/aretw0/keeper/pkg/scenario"
	"github.com/aretw0/keeper/pkg/session"
)

// App bundles everything a command needs, built from one Config.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Store    ports.StateStore
	Engine   *keeper.Engine
	Sessions *session.Manager
	Metrics  *metrics.Metrics

	closers []io.Closer
}

// NewApp wires store, generator, guardian, engine and session manager.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{Config: cfg, Logger: logger, Metrics: metrics.New()}

	store, locker, err := app.openStore()
	if err != nil {
		return nil, err
	}
	app.Store = store

	gen, err := newGenerator(cfg, logger)
	if err != nil {
		app.Close()
		return nil, err
	}

	engineOpts := []keeper.Option{
		keeper.WithLogger(logger),
		keeper.WithHistoryWindow(cfg.Session.HistoryWindow),
		keeper.WithLifecycleHooks(metrics.Combine(app.Metrics.Hooks(), debugHooks(logger))),
	}
	guardian, err := loadGuardian(cfg, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	if guardian != nil {
		engineOpts = append(engineOpts, keeper.WithGuardian(guardian))
	}
	app.Engine = keeper.New(gen, engineOpts...)

	managerOpts := []session.Option{
		session.WithLogger(logger),
		session.WithLockTTL(cfg.Session.LockTTL),
	}
	if locker != nil {
		managerOpts = append(managerOpts, session.WithLocker(locker))
	}
	if cfg.Session.RejectBusy {
		managerOpts = append(managerOpts, session.WithRejectBusy())
	}
	app.Sessions = session.NewManager(store, app.Engine, managerOpts...)
	return app, nil
}

// Close releases store connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// openStore builds the configured driver and wraps it with the redaction and
// encryption middlewares. Redaction runs first so plaintext never reaches
// the cipher unmasked.
func (a *App) openStore() (ports.StateStore, ports.DistributedLocker, error) {
	cfg := a.Config
	var (
		base   ports.StateStore
		locker ports.DistributedLocker
	)
	switch cfg.Store.Driver {
	case config.DriverMemory:
		base = memory.NewStore()
	case config.DriverFile:
		base = file.New(cfg.Store.Path)
	case config.DriverSQLite:
		path := cfg.Store.Path
		if path == "" {
			path = filepath.Join(".keeper", "keeper.db")
		}
		s, err := sqlite.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite store: %w", err)
		}
		a.closers = append(a.closers, s)
		base = s
	case config.DriverRedis:
		opts := []redis.Option{redis.WithPrefix(cfg.Redis.Prefix)}
		if cfg.Redis.TTL > 0 {
			opts = append(opts, redis.WithTTL(cfg.Redis.TTL))
		}
		s := redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, opts...)
		if err := s.Client().Ping(context.Background()).Err(); err != nil {
			s.Close()
			return nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		a.closers = append(a.closers, s)
		base = s
		locker = redis.NewLocker(s.Client(), cfg.Redis.Prefix)
	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}

	var mws []middleware.Middleware
	if len(cfg.Store.Redact) > 0 {
		mws = append(mws, middleware.NewPIIMiddleware(cfg.Store.Redact))
	}
	active, fallback, err := cfg.EncryptionKeys()
	if err != nil {
		return nil, nil, err
	}
	if active != nil {
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    active,
			FallbackKeys: fallback,
		}))
	}
	a.Logger.Debug("store ready", "driver", cfg.Store.Driver, "middlewares", len(mws), "distributed_lock", locker != nil)
	return middleware.Chain(base, mws...), locker, nil
}

func newGenerator(cfg *config.Config, logger *slog.Logger) (ports.Generator, error) {
	g := cfg.Generator
	switch g.Provider {
	case config.ProviderScripted:
		if g.Script == "" {
			return scripted.New(nil), nil
		}
		script, err := scripted.Load(g.Script)
		if err != nil {
			return nil, err
		}
		return scripted.New(script), nil
	case config.ProviderOpenAI, config.ProviderAnthropic:
		opts := []llm.Option{llm.WithLogger(logger)}
		return llm.New(llm.Config{
			Provider:    g.Provider,
			Model:       g.Model,
			APIKey:      g.APIKey,
			BaseURL:     g.BaseURL,
			Temperature: g.Temperature,
			MaxTokens:   g.MaxTokens,
		}, opts...)
	default:
		return nil, fmt.Errorf("unsupported generator provider %q", g.Provider)
	}
}

// loadGuardian reads the configured scenario. A missing scenario runs the
// engine without plot tracking.
func loadGuardian(cfg *config.Config, logger *slog.Logger) (*scenario.Guardian, error) {
	s, err := scenario.NewLoader(cfg.Scenario.Dir).Load(cfg.Scenario.ID)
	if errors.Is(err, scenario.ErrScenarioNotFound) {
		logger.Warn("scenario not found, plot tracking disabled", "dir", cfg.Scenario.Dir, "scenario_id", cfg.Scenario.ID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return scenario.NewGuardian(s, scenario.WithEndingID(cfg.Scenario.Ending)), nil
}

func debugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnCheckResolved: func(ctx context.Context, e *domain.CheckEvent) {
			logger.DebugContext(ctx, "check resolved", "session_id", e.SessionID, "actor_id", e.ActorID, "kind", e.Kind, "name", e.Name, "tier", e.Tier, "pushed", e.Pushed)
		},
		OnGenerate: func(ctx context.Context, e *domain.GenerateEvent) {
			logger.DebugContext(ctx, "generator call", "session_id", e.SessionID, "step", e.Step, "duration", e.Duration, "err", e.Err)
		},
	}
}

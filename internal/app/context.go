package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v9"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/stackDawg/skylark2/internal/config"
	"github.com/stackDawg/skylark2/internal/db"
	"github.com/stackDawg/skylark2/internal/engine"
	"github.com/stackDawg/skylark2/internal/events"
	"github.com/stackDawg/skylark2/internal/logging"
	"github.com/stackDawg/skylark2/internal/metrics"
	"github.com/stackDawg/skylark2/internal/migrate"
	"github.com/stackDawg/skylark2/internal/repo"
	"github.com/stackDawg/skylark2/internal/seed"
	"github.com/stackDawg/skylark2/internal/store"
	"github.com/stackDawg/skylark2/internal/store/redisstore"
)

// Runtime is everything a command or the server needs: the configured store,
// an engine wired to it, the event sinks and the metrics registry.
type Runtime struct {
	Config   *config.Config
	Logger   *zap.Logger
	Store    store.Backend
	Engine   engine.Engine
	Registry *prometheus.Registry
	// Journal is set for SQL stores only.
	Journal *events.Writer

	sinks   events.Fanout
	closers []func() error
}

// Open builds a Runtime from cfg. workspace locates the default sqlite file.
func Open(ctx context.Context, workspace string, cfg *config.Config, logger *zap.Logger) (*Runtime, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rt := &Runtime{Config: cfg, Logger: logging.OrNop(logger), Registry: prometheus.NewRegistry()}
	if err := rt.openStore(ctx, workspace); err != nil {
		rt.Close()
		return nil, err
	}
	if cfg.Events.NATSURL != "" {
		pub, err := events.DialNATS(cfg.Events.NATSURL, cfg.Events.SubjectPrefix)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.closers = append(rt.closers, func() error { pub.Close(); return nil })
		rt.sinks = append(rt.sinks, pub)
	}
	rt.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec, err := metrics.NewPrometheus(rt.Registry, "skylark")
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	rt.Engine = engine.New(rt.Store, engine.Options{
		MaxReplacementOptions:    cfg.Engine.MaxReplacementOptions,
		ProtectUrgentAssignments: cfg.Engine.ProtectUrgentAssignments,
	})
	rt.Engine.Metrics = rec
	rt.Engine.Logger = rt.Logger
	rt.Engine.Events = rt.sinks

	if cfg.Store.SeedSample {
		if err := rt.seedSample(ctx); err != nil {
			rt.Close()
			return nil, err
		}
	}
	return rt, nil
}

func (rt *Runtime) openStore(ctx context.Context, workspace string) error {
	cfg := rt.Config
	switch cfg.Store.Driver {
	case config.DriverMemory:
		rt.Store = store.NewMemory()
	case config.DriverSQLite, config.DriverPostgres:
		dialect := db.SQLite
		if cfg.Store.Driver == config.DriverPostgres {
			dialect = db.Postgres
		}
		conn, err := db.Open(db.Config{Workspace: workspace, Driver: dialect, DSN: cfg.Store.DSN})
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, conn.Close)
		if err := pingDB(ctx, conn); err != nil {
			return err
		}
		if err := migrate.Migrate(conn, dialect); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		rt.Store = repo.Repo{DB: conn, Dialect: dialect}
		rt.Journal = &events.Writer{DB: conn, Dialect: dialect}
		rt.sinks = append(rt.sinks, rt.Journal)
	case config.DriverRedis:
		rs := redisstore.New(&redis.Options{
			Addr:     cfg.Store.Redis.Addr,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		}, cfg.Store.Redis.Prefix)
		rt.closers = append(rt.closers, rs.Close)
		if err := rs.Ping(ctx); err != nil {
			return fmt.Errorf("redis %s: %w", cfg.Store.Redis.Addr, err)
		}
		rt.Store = rs
	default:
		return fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
	rt.Logger.Debug("store opened", zap.String("driver", cfg.Store.Driver))
	return nil
}

func pingDB(ctx context.Context, conn *sql.DB) error {
	if err := conn.PingContext(ctx); err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	return nil
}

// seedSample loads the demo fleet when the store holds no pilots yet.
func (rt *Runtime) seedSample(ctx context.Context) error {
	pilots, err := rt.Store.ListPilots(ctx, store.PilotFilter{})
	if err != nil {
		return err
	}
	if len(pilots) > 0 {
		return nil
	}
	sum, err := seed.Import(ctx, rt.Store, seed.Sample())
	if err != nil {
		return err
	}
	rt.Logger.Info("sample fleet loaded", zap.Int("pilots", sum.Pilots), zap.Int("drones", sum.Drones), zap.Int("missions", sum.Missions))
	return nil
}

// AddSink routes future engine events to s as well.
func (rt *Runtime) AddSink(s events.Sink) {
	rt.sinks = append(rt.sinks, s)
	rt.Engine.Events = rt.sinks
}

// Close releases store and broker connections in reverse order.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// Command server runs the anonymous ads backend.
//
//	server serve    start the HTTP API (and the expiry sweeper)
//	server migrate  create or update the database schema
//	server sweep    run one expiry sweep and exit
//
// Configuration comes from the environment; a .env file in the working
// directory is loaded first without overriding real variables.
//
// @title        Anonymous Ads API
// @version      1.0
// @description  Backend of the anonymous dating ads Telegram Mini App: ads with daily quotas, premium and referrals.
// @BasePath     /api
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/samber/do"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-anon-ads-backend/docs"
	"github.com/tbourn/go-anon-ads-backend/internal/config"
	httpapi "github.com/tbourn/go-anon-ads-backend/internal/http"
	"github.com/tbourn/go-anon-ads-backend/internal/http/handlers"
	"github.com/tbourn/go-anon-ads-backend/internal/observability"
	"github.com/tbourn/go-anon-ads-backend/internal/repo"
	"github.com/tbourn/go-anon-ads-backend/internal/sysutil"
	"github.com/tbourn/go-anon-ads-backend/internal/worker"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 15 * time.Second

func init() {
	//nolint:errcheck
	config.LoadDotEnv()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	sysutil.SetupLogger(cfg.LogLevel, cfg.LogPretty, os.Stderr)

	container := NewContainer(cfg)

	app := &cli.App{
		Name:    "server",
		Usage:   "anonymous ads backend",
		Version: version,
		Commands: []*cli.Command{
			commandServe(container),
			commandMigrate(container),
			commandSweep(container),
		},
	}

	err = app.Run(os.Args)
	if serr := container.Shutdown(); serr != nil {
		log.Warn().Err(serr).Msg("container shutdown")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("exit")
	}
}

func commandServe(container *do.Injector) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "start the web server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Usage:   "serve address (defaults to :$PORT)",
				EnvVars: []string{"ADDR"},
			},
			&cli.BoolFlag{
				Name:    "migrate",
				Value:   true,
				Usage:   "apply the schema before serving",
				EnvVars: []string{"AUTO_MIGRATE"},
			},
			&cli.BoolFlag{
				Name:    "sweeper",
				Value:   true,
				Usage:   "run the expiry sweeper in-process",
				EnvVars: []string{"SWEEPER_ENABLED"},
			},
		},
		Action: func(c *cli.Context) error {
			cfg := do.MustInvoke[config.Config](container)

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
			if err != nil {
				return err
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := shutdownOTel(sctx); err != nil {
					log.Warn().Err(err).Msg("otel shutdown")
				}
			}()

			if c.Bool("migrate") {
				db, err := do.Invoke[*gorm.DB](container)
				if err != nil {
					return err
				}
				if err := repo.AutoMigrate(db); err != nil {
					return err
				}
			}

			engine, err := do.Invoke[*gin.Engine](container)
			if err != nil {
				return err
			}

			addr := sysutil.FirstNonEmpty(c.String("addr"), net.JoinHostPort("", cfg.Port))
			srv := &http.Server{
				Addr:              addr,
				Handler:           engine,
				ReadTimeout:       cfg.ReadTimeout,
				ReadHeaderTimeout: cfg.ReadHeaderTimeout,
				WriteTimeout:      cfg.WriteTimeout,
				IdleTimeout:       cfg.IdleTimeout,
				MaxHeaderBytes:    cfg.MaxHeaderBytes,
			}

			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				log.Info().Str("addr", addr).Str("version", version).Str("mode", cfg.GinMode).Msg("listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})

			g.Go(func() error {
				<-gctx.Done()
				sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				log.Info().Msg("shutting down")
				return srv.Shutdown(sctx)
			})

			if c.Bool("sweeper") {
				sweeper, err := do.Invoke[*worker.Sweeper](container)
				if err != nil {
					return err
				}
				g.Go(func() error { return sweeper.Start(gctx) })
			}

			return g.Wait()
		},
	}
}

func commandMigrate(container *do.Injector) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "create or update the database schema",
		Action: func(c *cli.Context) error {
			db, err := do.Invoke[*gorm.DB](container)
			if err != nil {
				return err
			}
			if err := repo.AutoMigrate(db); err != nil {
				return err
			}
			log.Info().Msg("schema up to date")
			return nil
		},
	}
}

func commandSweep(container *do.Injector) *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "clear expired premium windows and idempotency keys once",
		Action: func(c *cli.Context) error {
			sweeper, err := do.Invoke[*worker.Sweeper](container)
			if err != nil {
				return err
			}
			_, err = sweeper.RunOnce(c.Context)
			return err
		},
	}
}

// NewContainer registers the lazily built dependencies of every command.
func NewContainer(cfg config.Config) *do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, &closers{})

	do.Provide(injector, func(i *do.Injector) (*gorm.DB, error) {
		dsn := cfg.Storage.DBPath
		if cfg.Storage.Driver == "postgres" || cfg.Storage.Driver == "postgresql" {
			dsn = cfg.Storage.DatabaseURL
		}
		db, err := repo.Open(cfg.Storage.Driver, dsn)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		do.MustInvoke[*closers](i).add("database", sqlDB.Close)
		return db, nil
	})

	// Redis is optional; without it the limiter and the status cache stay
	// in-process.
	do.Provide(injector, func(i *do.Injector) (redis.UniversalClient, error) {
		if cfg.Storage.RedisURL == "" {
			return nil, nil
		}
		opts, err := redis.ParseURL(cfg.Storage.RedisURL)
		if err != nil {
			return nil, err
		}
		rdb := redis.NewClient(opts)
		do.MustInvoke[*closers](i).add("redis", rdb.Close)
		return rdb, nil
	})

	do.Provide(injector, func(i *do.Injector) (*handlers.Handlers, error) {
		db, err := do.Invoke[*gorm.DB](i)
		if err != nil {
			return nil, err
		}
		rdb, err := do.Invoke[redis.UniversalClient](i)
		if err != nil {
			return nil, err
		}
		return httpapi.NewHandlers(db, rdb, cfg), nil
	})

	do.Provide(injector, func(i *do.Injector) (*gin.Engine, error) {
		db, err := do.Invoke[*gorm.DB](i)
		if err != nil {
			return nil, err
		}
		rdb, err := do.Invoke[redis.UniversalClient](i)
		if err != nil {
			return nil, err
		}
		h, err := do.Invoke[*handlers.Handlers](i)
		if err != nil {
			return nil, err
		}
		gin.SetMode(cfg.GinMode)
		r := gin.New()
		httpapi.RegisterRoutes(r, db, rdb, h, cfg)
		return r, nil
	})

	do.Provide(injector, func(i *do.Injector) (*worker.Sweeper, error) {
		db, err := do.Invoke[*gorm.DB](i)
		if err != nil {
			return nil, err
		}
		return &worker.Sweeper{
			DB:       db,
			Schedule: cfg.SweepSchedule,
			Log:      log.Logger.With().Str("component", "sweeper").Logger(),
		}, nil
	})

	return injector
}

// closers collects the connections opened by the providers. The injector
// calls Shutdown on exit.
type closers struct {
	names []string
	fns   []func() error
}

func (c *closers) add(name string, fn func() error) {
	c.names = append(c.names, name)
	c.fns = append(c.fns, fn)
}

// Shutdown closes in reverse order of opening.
func (c *closers) Shutdown() error {
	var errs []error
	for k := len(c.fns) - 1; k >= 0; k-- {
		if err := c.fns[k](); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", c.names[k], err))
		}
	}
	return errors.Join(errs...)
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/geocoder89/accounthub/internal/config"
	"github.com/geocoder89/accounthub/internal/db"
	httpx "github.com/geocoder89/accounthub/internal/http"
	"github.com/geocoder89/accounthub/internal/observability"
	"github.com/geocoder89/accounthub/internal/redisclient"
)

func main() {
	// Load the config set up
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	// start up the observability logger
	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	ctx := context.Background()

	shutdownTracer := observability.NoopShutdown
	if cfg.OTelEnabled {
		shutdownTracer, err = observability.InitTracer(ctx, observability.TracerConfig{
			ServiceName: observability.ServiceName,
			Endpoint:    cfg.OTelEndpoint,
			Environment: cfg.Env,
			SampleRatio: cfg.OTelSampleRatio,
		})
		if err != nil {
			log.Error("otel init failed", "err", err)
			os.Exit(1)
		}
	}

	deps := httpx.Deps{Log: log, Prom: observability.NewProm()}

	if cfg.Store == config.StorePostgres {
		pool, err := db.NewPool(ctx, cfg.DBURL, db.PoolOptions{
			MaxConns:        cfg.DBMaxConns,
			MinConns:        cfg.DBMinConns,
			MaxConnIdleTime: cfg.DBMaxConnIdleTime,
		})
		if err != nil {
			log.Error("db connect failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()

		migrateCtx, cancel := config.WithTimeout(30 * time.Second)
		err = db.Migrate(migrateCtx, pool)
		cancel()
		if err != nil {
			log.Error("db migrate failed", "err", err)
			os.Exit(1)
		}

		deps.Pool = pool
	}

	if cfg.RedisAddr != "" {
		rdb, err := redisclient.Connect(ctx, redisclient.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Error("redis connect failed", "err", err)
			os.Exit(1)
		}
		defer rdb.Close()

		deps.Redis = rdb
	}

	// set up routers with the log and backing stores
	router, accounts := httpx.NewRouter(cfg, deps)

	bootCtx, cancel := config.WithTimeout(10 * time.Second)
	err = httpx.Bootstrap(bootCtx, cfg, accounts)
	cancel()
	if err != nil {
		log.Error("bootstrap account failed", "err", err)
		os.Exit(1)
	}

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("server starting", "port", cfg.Port, "env", cfg.Env, "store", cfg.Store)
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("server shutting down")

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		ctx, cancel := config.WithTimeout(10 * time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Error("graceful shutdown failed", "err", err)
		}

		if err := shutdownTracer(ctx); err != nil {
			log.Error("otel shutdown failed", "err", err)
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")

	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}

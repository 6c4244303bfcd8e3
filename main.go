package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/ladders/internal/auth"
	"github.com/robalobadob/ladders/internal/cache"
	"github.com/robalobadob/ladders/internal/config"
	"github.com/robalobadob/ladders/internal/engine"
	"github.com/robalobadob/ladders/internal/httpserver"
	"github.com/robalobadob/ladders/internal/notify"
	"github.com/robalobadob/ladders/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Error().Err(err).Msg("server exited")
		os.Exit(1)
	}
}

// run wires the server and blocks until it stops. Deferred cleanup (webhook
// drain, cache and database close) runs before main decides the exit code.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	st, err := store.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.DatabasePath, err)
	}
	defer closeQuietly(st)

	signer := auth.NewSigner(cfg.JWTSecret, cfg.JWTExpiresDays)
	hooks := notify.NewWebhook(cfg.WebhookURL, notify.WithTimeout(cfg.WebhookTimeout))
	defer hooks.Wait()

	opts := []engine.Option{
		engine.WithNotifier(hooks),
		engine.WithJoinCodeSalt(cfg.JoinCodeSalt),
	}
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rc, err := cache.OpenRedis(ctx, cfg.RedisURL, cfg.OverlayTTL)
		cancel()
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable; overlay cache disabled")
		} else {
			defer closeQuietly(rc)
			opts = append(opts, engine.WithCache(rc))
		}
	}

	svc := engine.New(st, signer, opts...)
	srv := httpserver.New(svc, signer, httpserver.Options{
		ClientOrigin:   cfg.ClientOrigin,
		RequestTimeout: cfg.RequestTimeout,
	})
	log.Info().Str("port", cfg.Port).Str("db", cfg.DatabasePath).Bool("redis", cfg.RedisURL != "").Msg("starting ladders server")
	return srv.Start(cfg.Addr())
}

func closeQuietly(c io.Closer) { _ = c.Close() }

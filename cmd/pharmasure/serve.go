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

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"pharmasure/internal/app"
	"pharmasure/internal/ratelimit"
	"pharmasure/internal/server"
	"pharmasure/internal/token"
	"pharmasure/internal/util"
	"pharmasure/pkg/auth"
	"pharmasure/pkg/chat"
	"pharmasure/pkg/generation"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func serve(ctx context.Context) error {
	cfg, durations, err := loadConfig()
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	model, err := newContentGenerator(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init generator: %w", err)
	}
	archive, err := openArchive(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init archive: %w", err)
	}
	tokens, err := token.NewManager(cfg.TokenSecret, durations.TokenTTL)
	if err != nil {
		return fmt.Errorf("tokenSecret (or PHARMASURE_TOKEN_SECRET): %w", err)
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return fmt.Errorf("parse trustedProxyCidrs: %w", err)
	}

	var limiter *ratelimit.FixedWindowLimiter
	if cfg.GenerateRatePerMinute > 0 {
		limiter, err = ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisKeyPrefix+":ratelimit", cfg.GenerateRatePerMinute, time.Minute)
		if err != nil {
			return fmt.Errorf("init rate limiter: %w", err)
		}
		defer limiter.Close()
	}

	appCore, err := app.New(app.Config{
		Store:     store,
		Generator: generation.NewClient(model, cfg.GenerationTemperature),
		Archive:   archive,
		Tokens:    tokens,
		AuthLatency: auth.Latency{
			Login:  durations.Login,
			Signup: durations.Signup,
			Reset:  durations.Reset,
		},
		Chat: chat.Config{ReplyDelay: durations.Reply, OrderDelay: durations.Order},
	})
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer appCore.Close()

	api := server.New(server.Config{
		App:             appCore,
		Limiter:         limiter,
		Archive:         archive,
		SourceURLExpiry: durations.SourceURLExpiry,
		MaxUploadBytes:  cfg.MaxUploadBytes,
		SanitizeHTML:    cfg.SanitizeHTML,
		CORSOrigins:     cfg.CORSOrigins,
		TrustedProxies:  trusted,
	})

	addr := ":" + cfg.Port
	// generation with search grounding routinely takes tens of seconds
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      180 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", addr, "kv", cfg.KVBackend, "provider", cfg.GenerationProvider, "archive", archive != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		slog.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"inboxrelay/internal/account"
	"inboxrelay/internal/action"
	"inboxrelay/internal/audit"
	"inboxrelay/internal/auth"
	"inboxrelay/internal/config"
	"inboxrelay/internal/db"
	httpx "inboxrelay/internal/http"
	"inboxrelay/internal/http/handler"
	mw "inboxrelay/internal/http/middleware"
	"inboxrelay/internal/message"
	"inboxrelay/internal/reply"
)

func main() {
	cfg, err := config.Load()
	logger := newLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	gdb, err := db.Connect(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("connect database", "err", err)
		os.Exit(1)
	}
	if err := db.AutoMigrateAndIndexes(gdb); err != nil {
		logger.Error("migrate database", "err", err)
		os.Exit(1)
	}
	ready := db.Ready(gdb)

	accounts := &account.Store{DB: gdb}
	messages := &message.Store{DB: gdb}
	actions := &action.Repo{DB: gdb}
	auditLog := audit.NewLog(logger, gdb)

	q := cfg.Queue
	policy := action.NewPolicy(q.MaxAttempts, q.StaleLockThreshold, q.ClaimBatchSize, q.MaxBackoff,
		q.Retryable, q.NonRetryable, q.UnknownRetryable)

	queue := action.NewService(actions, messages, auditLog, policy, logger)

	var provider reply.Provider
	if cfg.OpenAIAPIKey != "" {
		provider = reply.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL, cfg.AITimeout)
	} else {
		logger.Warn("OPENAI_API_KEY not set, reply generation disabled")
	}
	replies := reply.NewService(accounts, provider, logger)

	ingest := &message.Service{
		Messages: messages,
		Clients:  accounts,
		Replier:  replies,
		Audit:    auditLog,
		Logger:   logger,
	}

	r := httpx.NewRouter(cfg, httpx.Deps{
		Logger: logger,
		JWT:    auth.NewJWT(cfg.JWTSecret),
		Health: &handler.HealthHandler{Ready: ready, Logger: logger},
		Tenants: &handler.Tenants{
			Accounts: accounts,
			Audit:    auditLog,
			Limiter:  mw.NewTenantLimiter(cfg.ExtensionRateLimit, cfg.ExtensionRateBurst),
			Logger:   logger,
		},
		Actions:     queue,
		Messages:    ingest,
		Accounts:    accounts,
		ActionList:  actions,
		MessageList: messages,
	})

	// reaper
	reaper := action.NewReaper(actions, messages, policy, logger)
	reaper.Interval = cfg.ReaperInterval
	reaper.BatchSize = cfg.ReaperBatchSize
	reaper.Ready = ready
	reaper.ReadyTimeout = cfg.ReaperReadyTimeout

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		if err := reaper.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("stale lock reaper disabled", "err", err)
		}
	}()

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", "err", err)
			os.Exit(1)
		}
	}()

	// graceful shutdown
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	<-ch
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "err", err)
	}
	cancel()
	reaper.Stop()
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"umrahlink/internal/audit"
	"umrahlink/internal/httpapi"
	"umrahlink/internal/session"
	"umrahlink/internal/telemetry"
	"umrahlink/pkg/backend"
	"umrahlink/pkg/config"
	"umrahlink/pkg/db"
	"umrahlink/pkg/logging"
)

const serviceName = "umrahlink-gateway"

func main() {
	cfg := config.Load()

	log, err := logging.New(cfg.AppEnv, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := telemetry.Setup(serviceName, cfg.OTel, log)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(shutdownCtx)
	}()

	secret := cfg.Session.Secret
	if secret == "" {
		if cfg.IsProd() {
			log.Fatal("SESSION_SECRET is required in prod")
		}
		secret = randomHex(32)
		log.Warn("SESSION_SECRET not set; using an ephemeral secret, sessions will not survive a restart")
	}

	streamsClosing := make(chan struct{})
	deps := httpapi.Dependencies{
		Cfg:            cfg,
		Log:            log,
		Backend:        backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, log.Named("backend")),
		Issuer:         session.NewIssuer(secret, cfg.Session.TTL),
		Audit:          audit.Nop{},
		StreamsClosing: streamsClosing,
	}

	if cfg.AuditEnabled {
		conn, err := db.Open(ctx, cfg)
		if err != nil {
			log.Fatal("db open", zap.Error(err))
		}
		defer conn.Close()

		if cfg.MigrationsPath != "" {
			if err := db.Migrate(cfg.MigrationsPath, cfg); err != nil {
				log.Fatal("migrate", zap.Error(err))
			}
		}
		deps.DB = conn
		deps.Audit = audit.NewRepository(conn)
	} else {
		log.Info("action audit disabled")
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(httpapi.NewRouter(deps), serviceName),
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Shutdown does not cancel request contexts, so open message streams are told to end here.
	srv.RegisterOnShutdown(func() { close(streamsClosing) })

	go func() {
		log.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("backend", cfg.Backend.BaseURL))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http serve", zap.Error(err))
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
		_ = srv.Close()
	}
}

func randomHex(nBytes int) string {
	b := make([]byte, nBytes)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

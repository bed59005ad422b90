// Package main initializes and starts the DocLedger server, setting up
// configuration, logging, the ledger backend, repositories, services,
// handlers, and optional TLS.
package main

import (
	"cmp"
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/atinyakov/DocLedger/internal/config"
	"github.com/atinyakov/DocLedger/internal/content"
	"github.com/atinyakov/DocLedger/internal/db"
	"github.com/atinyakov/DocLedger/internal/logger"
	"github.com/atinyakov/DocLedger/internal/metrics"
	"github.com/atinyakov/DocLedger/internal/notify"
	"github.com/atinyakov/DocLedger/internal/repository"
	"github.com/atinyakov/DocLedger/internal/server/handler/http"
	"github.com/atinyakov/DocLedger/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

const shutdownTimeout = 15 * time.Second

// backend is the selected ledger and identity store.
type backend struct {
	ledger service.Ledger
	users  service.AuthRepository
	// db is nil for the file backend.
	db *sql.DB
}

func main() {
	// Parse command-line and environment configuration.
	options := config.Parse()

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Metrics registry with Go runtime collectors.
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(promRegistry)

	// Select the ledger backend.
	be, err := openBackend(ctx, options, m, zapLogger)
	if err != nil {
		zapLogger.Fatal("cannot init ledger backend", zap.Error(err))
	}

	// Failed-login lockout, enabled when redis is configured.
	var (
		guard       service.LoginGuard
		redisClient *redis.Client
	)
	if options.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: options.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			zapLogger.Fatal("cannot reach redis", zap.String("addr", options.RedisAddr), zap.Error(err))
		}
		guard = repository.NewRedisLoginGuard(redisClient, options.LoginMaxAttempts, options.LoginLockout)
		zapLogger.Info("login lockout enabled",
			zap.Int("max_attempts", options.LoginMaxAttempts),
			zap.Duration("lockout", options.LoginLockout),
		)
	}

	// Initialize business-logic services.
	tokens := service.NewTokenIssuer(options.JWTSecret, options.JWTIssuer, options.TokenTTL)
	authService := service.NewAuthService(be.users, tokens, guard, zapLogger)
	authService.SetRecorder(m)

	policy := service.Policy{AdminOnlyMint: options.MintPolicy == config.MintPolicyAdmin}
	registry := service.NewRegistry(be.ledger, policy, zapLogger, service.WithRecorder(m))

	created, err := authService.SeedAdmin(ctx, options.AdminUsername, options.AdminPassword)
	if err != nil {
		zapLogger.Fatal("failed to seed admin", zap.Error(err))
	}
	if created {
		zapLogger.Info("admin account created", zap.String("username", options.AdminUsername))
	}

	store, err := openContentStore(ctx, options)
	if err != nil {
		zapLogger.Fatal("cannot init content store", zap.Error(err))
	}

	var mailer notify.Mailer
	if smtpMailer := notify.NewSMTPMailer(notify.SMTPConfig{
		Host:     options.SMTPHost,
		Port:     options.SMTPPort,
		Username: options.SMTPUser,
		Password: options.SMTPPass,
		From:     options.SMTPFrom,
	}); smtpMailer != nil {
		mailer = smtpMailer
	} else {
		zapLogger.Warn("SMTP_HOST not set, mint notifications are disabled")
	}
	notifier := notify.NewNotifier(mailer, options.NotifyRate, m, zapLogger)

	// Create HTTP handlers.
	health := &http.HealthHandler{Logger: zapLogger}
	if be.db != nil {
		health.DB = be.db
	}
	router := http.NewRouter(http.Router{
		Auth:          &http.AuthHandler{AuthService: authService, Logger: zapLogger},
		Documents:     &http.DocumentHandler{Registry: registry, Owners: authService, Notifier: notifier, Logger: zapLogger},
		Files:         &http.FileHandler{Content: content.NewService(store, zapLogger), Logger: zapLogger},
		Health:        health,
		Authenticator: authService,
		Observer:      m,
		Metrics:       promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
	}, zapLogger)

	server := &nethttp.Server{
		Addr:              options.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		if options.TLSCert != "" && options.TLSKey != "" {
			server.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			zapLogger.Info("starting HTTPS server", zap.String("addr", options.Port))
			serveErr <- server.ListenAndServeTLS(options.TLSCert, options.TLSKey)
			return
		}
		zapLogger.Info("starting HTTP server", zap.String("addr", options.Port))
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, nethttp.ErrServerClosed) {
			zapLogger.Error("server failed", zap.Error(err))
		}
	case <-ctx.Done():
		zapLogger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err = multierr.Combine(
		server.Shutdown(shutdownCtx),
		notifier.Shutdown(shutdownCtx),
	)
	if redisClient != nil {
		err = multierr.Append(err, redisClient.Close())
	}
	if be.db != nil {
		err = multierr.Append(err, be.db.Close())
	}
	if err != nil {
		zapLogger.Error("shutdown finished with errors", zap.Errors("errors", multierr.Errors(err)))
		return
	}
	zapLogger.Info("server stopped")
}

// openBackend builds the ledger and identity store selected by options.
func openBackend(ctx context.Context, options *config.Options, m *metrics.Metrics, log *zap.Logger) (*backend, error) {
	switch options.Backend {
	case config.BackendPostgres:
		conn, err := db.InitPostgres(options.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		db.StartStatsReporter(ctx, conn, options.StatsInterval, m.SetDocuments, log)
		log.Info("using postgres ledger")
		return &backend{
			ledger: repository.NewPostgresLedger(conn),
			users:  repository.NewPostgresAuthRepository(conn),
			db:     conn,
		}, nil
	default:
		ledger, err := repository.NewFileLedger(options.LedgerFile)
		if err != nil {
			return nil, err
		}
		ledger.OnChange(m.SetDocuments)
		users, err := repository.NewFileUserRepository(options.UsersFile)
		if err != nil {
			return nil, err
		}
		log.Info("using file ledger",
			zap.String("ledger", options.LedgerFile),
			zap.String("users", options.UsersFile),
		)
		return &backend{ledger: ledger, users: users}, nil
	}
}

// openContentStore builds the upload store selected by options.
func openContentStore(ctx context.Context, options *config.Options) (content.Store, error) {
	if options.ContentBackend == config.ContentMinIO {
		return content.NewMinIOStore(ctx, content.MinIOConfig{
			Endpoint:  options.MinIOEndpoint,
			AccessKey: options.MinIOAccessKey,
			SecretKey: options.MinIOSecretKey,
			Bucket:    options.MinIOBucket,
			UseSSL:    options.MinIOUseSSL,
		})
	}
	return content.NewLocalStore(options.ContentDir)
}

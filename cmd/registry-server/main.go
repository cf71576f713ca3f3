// Package main provides the registry server entry point.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labtrail/protocol-registry/pkg/api"
	"github.com/labtrail/protocol-registry/pkg/authz"
	"github.com/labtrail/protocol-registry/pkg/config"
	"github.com/labtrail/protocol-registry/pkg/search"
	"github.com/labtrail/protocol-registry/pkg/store"
)

func main() {
	var (
		configPath   string
		listenAddr   string
		databaseType string
		databaseDSN  string
		allowAll     bool
	)

	flag.StringVar(&configPath, "config", "/config/registry.yaml", "Path to server config")
	flag.StringVar(&listenAddr, "listen", "", "Address to listen on (overrides config)")
	flag.StringVar(&databaseType, "db-type", "", "Database type (postgres, mysql or sqlite; overrides config)")
	flag.StringVar(&databaseDSN, "db-dsn", "", "Database connection string (overrides config)")
	flag.BoolVar(&allowAll, "allow-all", false, "Disable the policy enforcer (development only)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Error("failed to load config", "path", configPath, "error", err)
		os.Exit(1)
	}
	if listenAddr != "" {
		cfg.ListenAddress = listenAddr
	}
	if databaseType != "" {
		cfg.Database.Type = databaseType
	}
	if databaseDSN != "" {
		cfg.Database.DSN = databaseDSN
	}
	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" && databaseDSN == "" {
		cfg.Database.DSN = dsn
	}

	logger.Info("starting registry server",
		"listen", cfg.ListenAddress,
		"dbType", cfg.Database.Type,
		"serverVersion", cfg.ServerVersion,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	db, err := store.Open(cfg.Database.Type, cfg.Database.DSN)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	if err := store.AutoMigrate(db); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	var enforcer authz.Enforcer
	if allowAll {
		logger.Warn("policy enforcement disabled")
		enforcer = authz.AllowAll{}
	} else {
		policies := authz.NewPolicyStore(db)
		if err := policies.Migrate(); err != nil {
			logger.Error("failed to migrate policy store", "error", err)
			os.Exit(1)
		}
		enforcer = policies
	}

	authenticator, err := authz.NewAuthenticator(authz.AuthenticatorConfig{
		PublicKeyPath: cfg.Auth.PublicKeyPath,
		Issuer:        cfg.Auth.Issuer,
		Audience:      cfg.Auth.Audience,
		Logger:        logger,
	})
	if err != nil {
		logger.Error("failed to create authenticator", "error", err)
		os.Exit(1)
	}

	users := store.NewUserStore(db, logger)
	server := api.NewServer(api.ServerOptions{
		Protocols:     store.NewProtocolStore(db, users, logger),
		Runs:          store.NewRunStore(db, users, logger),
		Samples:       store.NewSampleStore(db, users, logger),
		Users:         users,
		Attachments:   store.NewAttachmentStore(db),
		Composer:      search.NewComposer(db),
		Enforcer:      enforcer,
		Logger:        logger,
		ServerVersion: cfg.ServerVersion,
	})
	router := api.NewRouter(server, api.RouterOptions{
		Identity:       authenticator.Middleware(),
		AllowedOrigins: cfg.CORSAllowedOrigins,
	})

	httpServer := &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: router,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	logger.Info("registry server ready", "listen", cfg.ListenAddress)

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("registry server stopped")
}

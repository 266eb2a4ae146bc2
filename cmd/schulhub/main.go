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

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	identityadapter "github.com/mkahmann/schulhub/internal/adapter/driven/identity"
	"github.com/mkahmann/schulhub/internal/adapter/driven/presence"
	sqliteadapter "github.com/mkahmann/schulhub/internal/adapter/driven/sqlite"
	"github.com/mkahmann/schulhub/internal/adapter/driven/wordpress"
	httphandler "github.com/mkahmann/schulhub/internal/adapter/driving/http"
	"github.com/mkahmann/schulhub/internal/application"
	"github.com/mkahmann/schulhub/internal/config"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"identity_base_url", cfg.IdentityBaseURL,
		"session_ttl", cfg.SessionTTL,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire driven adapters.
	sessionStore := sqliteadapter.NewSessionRepo(db)
	vault := sqliteadapter.NewVaultRepo(db, cfg.VaultPassphrase)
	identityClient := identityadapter.NewClient(cfg.IdentityBaseURL, cfg.HTTPTimeout)
	presenceVerifier := presence.NewTOTPVerifier(cfg.TOTPSecret)
	feed := wordpress.NewClient(cfg.ArticleBackendURL, cfg.WordpressFeedURL, cfg.FeedTimeout, slog.Default())

	if cfg.VaultPassphrase == "" {
		slog.Warn("no vault passphrase configured, credential storage and silent refresh are disabled")
	}
	if cfg.TOTPSecret == "" {
		slog.Info("no TOTP secret configured, password reveal is disabled")
	}

	// 6. Create application services.
	sessions := application.NewSessionManager(
		identityClient, sessionStore, vault, presenceVerifier, cfg.SessionTTL, slog.Default())
	articles := application.NewArticleService(feed, cfg.ArticleCacheTTL, slog.Default())

	// 7. Restore any persisted session so a restart does not sign the user out.
	if identity, err := sessions.RestoreOnLaunch(ctx); err != nil {
		slog.Warn("session restore failed", "error", err)
	} else if identity != nil {
		slog.Info("session restored", "username", identity.Username)
	}

	// 8. Create HTTP handler and register API routes.
	apiHandler := httphandler.NewHandler(sessions, articles, identityClient, slog.Default())
	handler := httphandler.NewServeMux(apiHandler, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	// 9. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 10. Graceful shutdown with 10s timeout to drain in-flight requests.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

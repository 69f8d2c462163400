package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dukerupert/nonna/internal/auth"
	"github.com/dukerupert/nonna/internal/blob"
	"github.com/dukerupert/nonna/internal/config"
	"github.com/dukerupert/nonna/internal/database"
	"github.com/dukerupert/nonna/internal/email"
	"github.com/dukerupert/nonna/internal/logging"
	"github.com/dukerupert/nonna/internal/server"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	})
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	blobs, mediaDir, err := newBlobStore(cfg)
	if err != nil {
		return err
	}

	opts := server.Options{
		LoginLimit:     cfg.LoginLimit,
		LoginWindow:    cfg.LoginWindow,
		MaxUploadBytes: cfg.MaxUploadBytes,
		MediaDir:       mediaDir,
	}
	if mailer := email.NewClient(cfg.PostmarkToken, cfg.EmailFrom, cfg.BaseURL); mailer.Configured() {
		opts.Notifier = mailer
	} else {
		logger.Info("email notifications disabled", "reason", "NONNA_POSTMARK_TOKEN not set")
	}

	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)
	srv := server.New(db, issuer, blobs, opts, logger)

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go srv.RateLimiter().RunCleanup(ctx, 5*time.Minute)
	go pruneRefreshTokens(ctx, srv, logger.With("component", "cleanup"))

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", cfg.Addr(), "blob_backend", cfg.BlobBackend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// newBlobStore returns the configured store and, for the disk backend, the
// directory to serve under /media/.
func newBlobStore(cfg *config.Config) (blob.Store, string, error) {
	if strings.EqualFold(cfg.BlobBackend, "s3") {
		return blob.NewS3Store(blob.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PublicURL: cfg.S3PublicURL,
		}), "", nil
	}
	disk, err := blob.NewDiskStore(cfg.MediaDir, cfg.BaseURL)
	if err != nil {
		return nil, "", err
	}
	return disk, cfg.MediaDir, nil
}

func pruneRefreshTokens(ctx context.Context, srv *server.Server, logger *slog.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			n, err := srv.RefreshTokens().DeleteExpired(ctx)
			if err != nil {
				logger.Error("prune refresh tokens", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("pruned refresh tokens", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/celalgokce/gdrive-sync-clean/internal/adapters/driven/objectstore/minio"
	"github.com/celalgokce/gdrive-sync-clean/internal/adapters/driven/provider/gdrive"
	boltqueue "github.com/celalgokce/gdrive-sync-clean/internal/adapters/driven/queue/bolt"
	"github.com/celalgokce/gdrive-sync-clean/internal/adapters/driven/state"
	"github.com/celalgokce/gdrive-sync-clean/internal/adapters/driving/webhook"
	"github.com/celalgokce/gdrive-sync-clean/internal/config"
	"github.com/celalgokce/gdrive-sync-clean/internal/core/domain"
	"github.com/celalgokce/gdrive-sync-clean/internal/core/services"
	"github.com/celalgokce/gdrive-sync-clean/internal/logger"
)

// shutdownTimeout bounds the webhook server drain on SIGTERM.
const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync daemon",
	Long: `Run the full sync pipeline: the webhook ingress, the channel
renewal loop, the polling reconciler and the upload worker pool.

The daemon shuts down cleanly on SIGINT or SIGTERM: the webhook server
drains, workers finish the intents they hold, and everything else
waits durably in the intent queue for the next start.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := state.Open(cfg.Sync.StateDSN)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer store.Close()

	queue, err := boltqueue.Open(cfg.Sync.QueuePath)
	if err != nil {
		return fmt.Errorf("open intent queue: %w", err)
	}
	defer queue.Close()

	provider, err := gdrive.NewProvider(ctx, driveConfig(cfg))
	if err != nil {
		return fmt.Errorf("create drive client: %w", err)
	}

	objects, err := minio.NewStore(minio.Config{
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		Bucket:    cfg.Storage.Bucket,
		UseSSL:    cfg.Storage.UseSSL,
	})
	if err != nil {
		return fmt.Errorf("create object store client: %w", err)
	}

	retry := retryPolicy(cfg)

	notifier := services.NewChangeNotifier(queue, provider, store, services.NotifierConfig{
		FolderID:    cfg.Drive.FolderID,
		Secret:      cfg.Webhook.VerificationToken,
		CallbackURL: cfg.Webhook.PublicURL,
	})
	reconciler := services.NewFolderReconciler(provider, store, queue, services.ReconcilerConfig{
		FolderID: cfg.Drive.FolderID,
		Interval: cfg.Sync.CheckInterval,
		Backoff:  retry,
	})
	coordinator := services.NewUploadCoordinator(provider, store, objects, queue, services.CoordinatorConfig{
		FolderID:  cfg.Drive.FolderID,
		KeyPrefix: cfg.Storage.KeyPrefix,
		Workers:   cfg.Sync.Workers,
		Retry:     retry,
	})
	server := webhook.NewServer(cfg.Webhook.ListenAddr, notifier, queue, store)

	if err := server.Start(); err != nil {
		return fmt.Errorf("start webhook server: %w", err)
	}
	logger.Info("syncing folder %s to bucket %s", cfg.Drive.FolderID, cfg.Storage.Bucket)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return coordinator.Run(gctx) })
	g.Go(func() error { return reconciler.Run(gctx) })
	g.Go(func() error { return notifier.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Stop(drainCtx)
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

// retryPolicy derives the pipeline retry policy from config, keeping
// the default delay schedule.
func retryPolicy(cfg *config.Config) domain.RetryPolicy {
	p := domain.DefaultRetryPolicy()
	if cfg.Sync.MaxAttempts > 0 {
		p.MaxAttempts = cfg.Sync.MaxAttempts
	}
	return p
}

// driveConfig maps config onto the provider, preferring a raw access
// token over the key file when one is present.
func driveConfig(cfg *config.Config) gdrive.Config {
	dc := gdrive.Config{CredentialsFile: cfg.Drive.CredentialsFile}
	if cfg.Drive.AccessToken != "" {
		dc.TokenSource = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Drive.AccessToken})
	}
	return dc
}

package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/celalgokce/gdrive-sync-clean/internal/adapters/driven/objectstore/minio"
	"github.com/celalgokce/gdrive-sync-clean/internal/adapters/driven/provider/gdrive"
	boltqueue "github.com/celalgokce/gdrive-sync-clean/internal/adapters/driven/queue/bolt"
	"github.com/celalgokce/gdrive-sync-clean/internal/adapters/driven/state"
	"github.com/celalgokce/gdrive-sync-clean/internal/config"
	"github.com/celalgokce/gdrive-sync-clean/internal/core/services"
	"github.com/celalgokce/gdrive-sync-clean/internal/logger"
)

var (
	resetConfirm bool
	migrateFrom  string
	migrateTo    string
)

var healthCmd = &cobra.Command{
	Use:   "health-check",
	Short: "Check every dependency and report per-leg status",
	Long: `Pings the Drive API, the intent queue, the state store and the
destination bucket, and reports each outcome individually.

Exits non-zero when any dependency is unreachable. The intent queue is
held exclusively by a running daemon; run this against a stopped
daemon or point it at a copy.`,
	RunE: runHealth,
}

var migrateStateCmd = &cobra.Command{
	Use:   "migrate-state",
	Short: "Copy sync state to another backend",
	Long: `Copies all file records, the sync cursor and the webhook channel
from one state backend into another. DSNs take the form sqlite:path,
bolt:path or memory:. --from defaults to the configured backend.

Safe to re-run: records already present in the target with the same
content are skipped.`,
	RunE: runMigrateState,
}

var deadLettersCmd = &cobra.Command{
	Use:   "dead-letters",
	Short: "List intents that exhausted their retry budget",
	Long: `Lists every change intent parked in the dead-letter store, with the
attempt count and the final error. Dead letters stay put until the
queue file is recreated; re-sync the affected files by deleting the
queue or by running reset-state for a full re-sync.

The intent queue is held exclusively by a running daemon; run this
against a stopped daemon or point it at a copy.`,
	RunE: runDeadLetters,
}

var resetStateCmd = &cobra.Command{
	Use:   "reset-state",
	Short: "Wipe all sync state",
	Long: `Deletes every file record, cursor and channel from the state
backend. The next reconciliation pass re-syncs the folder from
scratch. Objects already in the bucket are untouched.`,
	RunE: runResetState,
}

func init() {
	migrateStateCmd.Flags().StringVar(&migrateFrom, "from", "",
		"source state DSN (default: the configured backend)")
	migrateStateCmd.Flags().StringVar(&migrateTo, "to", "",
		"target state DSN")
	_ = migrateStateCmd.MarkFlagRequired("to")

	resetStateCmd.Flags().BoolVar(&resetConfirm, "confirm", false,
		"actually wipe the state; required")

	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(deadLettersCmd)
	rootCmd.AddCommand(migrateStateCmd)
	rootCmd.AddCommand(resetStateCmd)
}

func runHealth(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	ctx := cmd.Context()

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

	admin := services.NewAdmin(provider, queue, store, objects, cfg.Drive.FolderID)
	report := admin.HealthCheck(ctx)

	printLeg(cmd, "drive provider", report.Provider)
	printLeg(cmd, "intent queue", report.Queue)
	printLeg(cmd, "state store", report.State)
	printLeg(cmd, "object store", report.Objects)

	if !report.Healthy() {
		return errors.New("one or more dependencies are unhealthy")
	}
	return nil
}

func printLeg(cmd *cobra.Command, name string, err error) {
	if err != nil {
		cmd.Printf("%-15s DOWN  %v\n", name, err)
		return
	}
	cmd.Printf("%-15s ok\n", name)
}

func runDeadLetters(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	queue, err := boltqueue.Open(cfg.Sync.QueuePath)
	if err != nil {
		return fmt.Errorf("open intent queue: %w", err)
	}
	defer queue.Close()

	letters, err := queue.DeadLetters(cmd.Context())
	if err != nil {
		return fmt.Errorf("list dead letters: %w", err)
	}

	if len(letters) == 0 {
		cmd.Println("no dead letters")
		return nil
	}

	cmd.Printf("%d dead letter(s)\n", len(letters))
	for _, dl := range letters {
		cmd.Printf("%s  %s  %-7s attempts=%d  %s\n",
			dl.At.UTC().Format(time.RFC3339), dl.Intent.FileID,
			dl.Intent.ChangeType, dl.Intent.Attempt, dl.Reason)
	}
	return nil
}

func runMigrateState(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	sourceDSN := migrateFrom
	if sourceDSN == "" {
		sourceDSN = cfg.Sync.StateDSN
	}
	if migrateTo == sourceDSN {
		return errors.New("--to matches the source state backend")
	}

	from, err := state.Open(sourceDSN)
	if err != nil {
		return fmt.Errorf("open source state store: %w", err)
	}
	defer from.Close()

	to, err := state.Open(migrateTo)
	if err != nil {
		return fmt.Errorf("open target state store: %w", err)
	}
	defer to.Close()

	summary, err := services.MigrateState(cmd.Context(), from, to, cfg.Drive.FolderID)
	if err != nil {
		return err
	}

	cmd.Printf("migrated %d records, %d cursors, %d channels (%d skipped)\n",
		summary.Records, summary.Cursors, summary.Channels, summary.Skipped)
	return nil
}

func runResetState(cmd *cobra.Command, _ []string) error {
	if !resetConfirm {
		return errors.New("refusing to wipe sync state without --confirm")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	store, err := state.Open(cfg.Sync.StateDSN)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer store.Close()

	if err := store.Reset(cmd.Context()); err != nil {
		return fmt.Errorf("reset state: %w", err)
	}

	cmd.Println("sync state wiped; the next reconciliation pass performs a full re-sync")
	return nil
}

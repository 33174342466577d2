package commands

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/openpacs/pacsd/internal/archive"
	"github.com/openpacs/pacsd/internal/config"
	"github.com/openpacs/pacsd/internal/scp"
	"github.com/openpacs/pacsd/pkg/db"
	"github.com/openpacs/pacsd/pkg/errors"
	"github.com/openpacs/pacsd/pkg/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the DICOM storage receiver",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "config invalid")
	}

	if err := ensureDirectories(cfg.DBPath); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.DBPath, cfg.DBMaxConnections)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	store, err := storage.New(cfg.StoragePath, cfg.OrganizeByPatient, cfg.OrganizeByStudy)
	if err != nil {
		return errors.Wrap(err, "storage init failed")
	}

	var uploader *archive.Uploader
	if cfg.ArchiveEnabled {
		uploader, err = archive.NewUploader(ctx, cfg.ArchiveBucket, cfg.ArchiveRegion, cfg.ArchiveWorkers)
		if err != nil {
			return errors.Wrap(err, "archive init failed")
		}
		defer uploader.Shutdown()
	}

	server := scp.NewServer(cfg, repo, store, uploader)
	if err := server.ListenAndServe(ctx); err != nil {
		return errors.Wrap(err, "server failed")
	}

	slog.Info("shutdown_complete")
	return nil
}

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openpacs/pacsd/internal/config"
	"github.com/openpacs/pacsd/pkg/db"
	"github.com/openpacs/pacsd/pkg/errors"
)

var studiesCmd = &cobra.Command{
	Use:   "studies",
	Short: "List stored studies",
	RunE:  runStudies,
}

func init() {
	rootCmd.AddCommand(studiesCmd)
}

func runStudies(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "config load failed")
	}

	if err := ensureDirectories(cfg.DBPath); err != nil {
		return err
	}

	repo, err := db.NewRepository(cfg.DBPath, cfg.DBMaxConnections)
	if err != nil {
		return errors.Wrap(err, "db init failed")
	}
	defer repo.Close()

	studies, err := repo.ListStudies(context.Background())
	if err != nil {
		return errors.Wrap(err, "list failed")
	}

	if len(studies) == 0 {
		fmt.Println("No studies found")
		return nil
	}

	fmt.Printf("%-44s %-10s %-6s %-16s %-20s %6s %6s\n",
		"STUDY UID", "DATE", "MOD", "PATIENT ID", "PATIENT NAME", "SERIES", "IMAGES")
	fmt.Println("--------------------------------------------------------------------------------------------------------------")

	for _, s := range studies {
		date := s.StudyDate
		if date == "" {
			date = "-"
		}
		modality := s.Modality
		if modality == "" {
			modality = "-"
		}
		fmt.Printf("%-44s %-10s %-6s %-16s %-20s %6d %6d\n",
			s.StudyInstanceUID, date, modality, s.PatientID, s.PatientName,
			s.SeriesCount, s.InstanceCount)
	}

	return nil
}

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "pacsd",
	Short: "pacsd - DICOM storage receiver",
	Long:  `Receives DICOM objects over the network, stores them on disk, and records the patient/study/series/instance hierarchy in SQLite.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("listen-host", "0.0.0.0", "Address to bind")
	rootCmd.PersistentFlags().Int("listen-port", 11112, "Port to listen on")
	rootCmd.PersistentFlags().String("ae-title", "PACSD", "Application entity title")
	rootCmd.PersistentFlags().Uint32("max-pdu-length", 16384, "Maximum PDU length advertised during negotiation")
	rootCmd.PersistentFlags().String("db-path", ".artifacts/pacs.db", "SQLite database path")
	rootCmd.PersistentFlags().Int("db-max-connections", 10, "Database connection pool size")
	rootCmd.PersistentFlags().String("storage-path", ".artifacts/storage", "Object storage base directory")
	rootCmd.PersistentFlags().Bool("organize-by-patient", true, "Group stored files by patient id")
	rootCmd.PersistentFlags().Bool("organize-by-study", true, "Group stored files by study UID")
	rootCmd.PersistentFlags().Bool("archive-enabled", false, "Mirror stored objects to S3")
	rootCmd.PersistentFlags().String("archive-bucket", "", "S3 bucket for the archive mirror")
	rootCmd.PersistentFlags().String("archive-region", "us-east-1", "S3 region for the archive mirror")
	rootCmd.PersistentFlags().Int("archive-workers", 4, "Archive upload workers")

	viper.BindPFlag("listen-host", rootCmd.PersistentFlags().Lookup("listen-host"))
	viper.BindPFlag("listen-port", rootCmd.PersistentFlags().Lookup("listen-port"))
	viper.BindPFlag("ae-title", rootCmd.PersistentFlags().Lookup("ae-title"))
	viper.BindPFlag("max-pdu-length", rootCmd.PersistentFlags().Lookup("max-pdu-length"))
	viper.BindPFlag("db-path", rootCmd.PersistentFlags().Lookup("db-path"))
	viper.BindPFlag("db-max-connections", rootCmd.PersistentFlags().Lookup("db-max-connections"))
	viper.BindPFlag("storage-path", rootCmd.PersistentFlags().Lookup("storage-path"))
	viper.BindPFlag("organize-by-patient", rootCmd.PersistentFlags().Lookup("organize-by-patient"))
	viper.BindPFlag("organize-by-study", rootCmd.PersistentFlags().Lookup("organize-by-study"))
	viper.BindPFlag("archive-enabled", rootCmd.PersistentFlags().Lookup("archive-enabled"))
	viper.BindPFlag("archive-bucket", rootCmd.PersistentFlags().Lookup("archive-bucket"))
	viper.BindPFlag("archive-region", rootCmd.PersistentFlags().Lookup("archive-region"))
	viper.BindPFlag("archive-workers", rootCmd.PersistentFlags().Lookup("archive-workers"))
}

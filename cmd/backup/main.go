package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"wordmoment/internal/config"
	"wordmoment/internal/progress"
	"wordmoment/internal/service"
)

// openStoreFunc opens the configured progress store
type openStoreFunc func() (*progress.BlobStore, func() error, error)

func main() {
	if err := newRootCmd(openConfiguredStore).Execute(); err != nil {
		os.Exit(1)
	}
}

func openConfiguredStore() (*progress.BlobStore, func() error, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	return progress.Open(cfg)
}

func newRootCmd(open openStoreFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "backup",
		Short: "WordMoment progress backup tool",
		Long: `Export, import and inspect WordMoment learning progress.

The progress backend is read from the environment:
  PROGRESS_BACKEND  sqlite, postgres, mysql or file (default: sqlite)
  DB_PATH           SQLite database path (default: ./wordmoment.db)
  DATABASE_URL      PostgreSQL or MySQL connection URL
  PROGRESS_FILE     JSON file for the file backend
  PROGRESS_KEY      settings key holding the progress blob`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newExportCmd(open),
		newImportCmd(open),
		newShowCmd(open),
		newResetCmd(open),
	)
	return root
}

// withBackup opens the store for the duration of fn
func withBackup(open openStoreFunc, fn func(*service.BackupService) error) error {
	store, closeStore, err := open()
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(service.NewBackupService(store))
}

func newExportCmd(open openStoreFunc) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export progress to a JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				output = fmt.Sprintf("wordmoment_backup_%s.json", time.Now().Format("20060102_150405"))
			}
			return withBackup(open, func(s *service.BackupService) error {
				if output == "-" {
					return s.ExportToWriter(cmd.Context(), cmd.OutOrStdout())
				}
				if err := s.Export(cmd.Context(), output); err != nil {
					return fmt.Errorf("export failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported progress to %s\n", output)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file path, - for stdout (default: wordmoment_backup_YYYYMMDD_HHMMSS.json)")
	return cmd
}

func newImportCmd(open openStoreFunc) *cobra.Command {
	var input string
	var replace bool

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import progress from a JSON file",
		Long:  "Import progress from a backup file. Units in the file are merged into the current progress unless --replace is given.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(input); err != nil {
				return fmt.Errorf("input file: %w", err)
			}
			return withBackup(open, func(s *service.BackupService) error {
				n, err := s.Import(cmd.Context(), input, replace)
				if err != nil {
					return fmt.Errorf("import failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d units\n", n)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Input file path")
	cmd.Flags().BoolVar(&replace, "replace", false, "Replace all progress instead of merging (destructive)")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func newShowCmd(open openStoreFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "show [level] [unit]",
		Short: "Print saved progress as JSON",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var level, unit string
			if len(args) > 0 {
				level = args[0]
			}
			if len(args) > 1 {
				unit = args[1]
			}

			return withBackup(open, func(s *service.BackupService) error {
				v, err := s.Show(cmd.Context(), level, unit)
				if err != nil {
					return err
				}
				b, err := json.MarshalIndent(v, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(b))
				return nil
			})
		},
	}
}

func newResetCmd(open openStoreFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "reset level unit",
		Short: "Reset one unit to its first word",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackup(open, func(s *service.BackupService) error {
				if err := s.Reset(cmd.Context(), args[0], args[1]); err != nil {
					return fmt.Errorf("reset failed: %w", err)
				}
				log.Printf("Reset %s/%s", args[0], args[1])
				return nil
			})
		},
	}
}

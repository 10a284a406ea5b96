package commands

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/schemaflow/schemaflow/backup"
	"github.com/schemaflow/schemaflow/cli/internal/ui"
)

var (
	cleanupDays  int
	restoreForce bool
)

var showBackupsCmd = &cobra.Command{
	Use:   "show:backups",
	Short: "List stored backups",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.close()

		infos, err := e.backup.List()
		if err != nil {
			return err
		}
		if len(infos) == 0 {
			ui.PrintInfo("No backups stored.")
			return nil
		}

		rows := make([][]string, 0, len(infos))
		var total int64
		for _, info := range infos {
			rows = append(rows, []string{
				info.Version,
				info.CreatedAt.Format("2006-01-02 15:04:05"),
				backup.FormatSize(info.Size),
				info.Path,
			})
			total += info.Size
		}
		ui.PrintTable([]string{"Version", "Created At", "Size", "Path"}, rows)
		ui.PrintInfo("Total: %d backups, %s", len(infos), backup.FormatSize(total))
		return nil
	},
}

var cleanupBackupsCmd = &cobra.Command{
	Use:   "cleanup:backups",
	Short: "Delete backups older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.close()

		days := cleanupDays
		if !cmd.Flags().Changed("days") && e.cfg.BackupDays > 0 {
			days = e.cfg.BackupDays
		}
		deleted, err := e.backup.Cleanup(days)
		if err != nil {
			return err
		}
		if deleted == 0 {
			ui.PrintInfo("No backups older than %d days.", days)
			return nil
		}
		ui.PrintSuccess("Deleted %d backups older than %d days.", deleted, days)
		return nil
	},
}

var restoreBackupCmd = &cobra.Command{
	Use:   "restore:backup <version>",
	Short: "Restore the database from a backup",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ok, err := confirmDestructive("Restore", restoreForce)
		if err != nil || !ok {
			return err
		}
		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.close()

		version := args[0]
		if err := e.backup.Restore(cmd.Context(), version); err != nil {
			var notFound *backup.NotFoundError
			if errors.As(err, &notFound) {
				ui.PrintError("No backup found for version %s. Run show:backups to list what is stored.", version)
			}
			return err
		}
		ui.PrintSuccess("Restored backup for version %s", version)
		return nil
	},
}

func init() {
	cleanupBackupsCmd.Flags().IntVar(&cleanupDays, "days", 30, "delete backups older than this many days")
	restoreBackupCmd.Flags().BoolVar(&restoreForce, "force", false, "skip the confirmation prompt")

	rootCmd.AddCommand(showBackupsCmd)
	rootCmd.AddCommand(cleanupBackupsCmd)
	rootCmd.AddCommand(restoreBackupCmd)
}

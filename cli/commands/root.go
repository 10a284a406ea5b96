package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/schemaflow/schemaflow/cli/internal/version"
	"github.com/schemaflow/schemaflow/internal/debug"
)

var debugFlag bool

var rootCmd = &cobra.Command{
	Use:   "schemaflow",
	Short: "Schema migration and backup engine",
	Long: `schemaflow manages database schema as code.

Declare the desired schema in a schema.flow file, generate versioned
migrations from the diff against the live database, and apply them with
an execution ledger, automatic backups and rollback support.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		debug.Init(debugFlag)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Get().FullString())
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
	rootCmd.AddCommand(versionCmd)
}

// Execute is the main entry point for the CLI
func Execute() error {
	return rootCmd.Execute()
}

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/apicheck/packages/core/config"
	"github.com/abdul-hamid-achik/apicheck/packages/core/suite"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a new apicheck project",
	Long: `Initialize a new apicheck project, in the current directory by default.

This creates:
  - apicheck.yaml  - Configuration file with the reqres and local environments
  - reqres.yaml    - The built-in reqres.in suite, ready to edit

Examples:
  apicheck init
  apicheck init ./api-tests --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: initCommand,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite existing files")
}

func initCommand(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) == 1 {
		dir = args[0]
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	configFile := filepath.Join(dir, "apicheck.yaml")
	suiteFile := filepath.Join(dir, "reqres.yaml")

	if !forceInit {
		for _, f := range []string{configFile, suiteFile} {
			if _, err := os.Stat(f); err == nil {
				return withExitCode(ExitUsageError, fmt.Errorf("file already exists: %s (use --force to overwrite)", f))
			}
		}
	}

	cfg := config.DefaultConfig()
	cfg.HistoryDB = ".apicheck/history.db"
	if err := cfg.Save(configFile); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", configFile)

	if err := os.WriteFile(suiteFile, suite.ReqresYAML(), 0644); err != nil {
		return fmt.Errorf("failed to create suite file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", suiteFile)

	fmt.Fprintf(cmd.OutOrStdout(), "\napicheck project initialized!\n")
	fmt.Fprintf(cmd.OutOrStdout(), "Run 'apicheck run %s' to execute the example suite.\n", suiteFile)

	return nil
}

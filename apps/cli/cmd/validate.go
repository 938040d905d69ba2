package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/apicheck/packages/core/config"
	"github.com/abdul-hamid-achik/apicheck/packages/core/suite"
)

var validateConfigFlag string

var validateCmd = &cobra.Command{
	Use:   "validate [suite files|directories...]",
	Short: "Validate suites and the config file without sending requests",
	Long: `Load the config file and the given suites and report every problem
found, without contacting the API.

Examples:
  apicheck validate
  apicheck validate users.yaml cases.xlsx
  apicheck validate ./suites/ --config ci.yaml`,
	RunE: validateCommand,
}

func init() {
	validateCmd.Flags().StringVar(&validateConfigFlag, "config", "", "Path to config file")
}

func validateCommand(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	hasErrors := false

	cfg, err := config.Load(validateConfigFlag)
	switch {
	case err != nil:
		fmt.Fprintf(errOut, "Error in config: %v\n", err)
		hasErrors = true
	case cfg.Source != "":
		fmt.Fprintf(out, "Valid: %s\n", cfg.Source)
	}

	if len(args) == 0 {
		s := suite.Reqres()
		fmt.Fprintf(out, "Valid: built-in %s suite (%d cases)\n", s.Name, len(s.Cases))
	} else {
		files, err := suite.Collect(args)
		if err != nil {
			return withExitCode(ExitConfigError, err)
		}
		if len(files) == 0 {
			return withExitCode(ExitConfigError, fmt.Errorf("no .yaml, .yml or .xlsx suites found"))
		}
		for _, file := range files {
			s, err := suite.Load(file)
			if err != nil {
				fmt.Fprintf(errOut, "Error in %s: %v\n", file, err)
				hasErrors = true
				continue
			}
			fmt.Fprintf(out, "Valid: %s (%d cases)\n", file, len(s.Cases))
		}
	}

	if hasErrors {
		return withExitCode(ExitConfigError, fmt.Errorf("validation failed"))
	}
	return nil
}

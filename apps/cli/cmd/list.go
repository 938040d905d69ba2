package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/apicheck/packages/coverage"
	"github.com/abdul-hamid-achik/apicheck/packages/fakeapi"
)

var (
	listCoverageFlag bool
	listOpenAPIFlag  string
	listJSONFlag     bool
)

var listCmd = &cobra.Command{
	Use:   "list [suite files|directories...]",
	Short: "List the cases of test suites",
	Long: `List the cases defined in YAML or Excel suites, or in the built-in
reqres.in suite when no suite is given.

With --coverage the cases are matched against the reqres.in endpoints,
or against the operations of an OpenAPI document given with --openapi.

Examples:
  apicheck list
  apicheck list ./suites/
  apicheck list --coverage
  apicheck list ./suites/ --openapi openapi.yaml --json`,
	RunE: listCommand,
}

func init() {
	listCmd.Flags().BoolVar(&listCoverageFlag, "coverage", false, "Report which endpoints the cases exercise")
	listCmd.Flags().StringVar(&listOpenAPIFlag, "openapi", "", "OpenAPI document to measure coverage against (implies --coverage)")
	listCmd.Flags().BoolVar(&listJSONFlag, "json", false, "Print the coverage report as JSON")
}

func listCommand(cmd *cobra.Command, args []string) error {
	suites, _, err := loadSuites(args)
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}

	out := cmd.OutOrStdout()

	if listCoverageFlag || listOpenAPIFlag != "" {
		analyzer := coverage.NewAnalyzer()
		if listOpenAPIFlag != "" {
			if err := analyzer.LoadOpenAPI(listOpenAPIFlag); err != nil {
				return withExitCode(ExitConfigError, err)
			}
		} else {
			for _, r := range fakeapi.New().Routes() {
				analyzer.AddEndpoint(r.Method, r.PathPattern, r.Name)
			}
		}

		report := analyzer.Analyze(suites...)
		if listJSONFlag {
			data, err := report.FormatJSON()
			if err != nil {
				return err
			}
			fmt.Fprintln(out, data)
			return nil
		}
		fmt.Fprint(out, report.FormatConsole())
		return nil
	}

	for _, s := range suites {
		source := s.Path
		if source == "" {
			source = "built-in"
		}
		fmt.Fprintf(out, "\n%s (%s):\n", s.Name, source)
		for _, tc := range s.Cases {
			fmt.Fprintf(out, "  - %-22s %-6s %s\n", tc.Name, tc.Method, tc.Path)
			if len(tc.Tags) > 0 {
				fmt.Fprintf(out, "    tags: %s\n", strings.Join(tc.Tags, ", "))
			}
			if tc.Skip != "" {
				fmt.Fprintf(out, "    skip: %s\n", tc.Skip)
			}
		}
	}

	return nil
}

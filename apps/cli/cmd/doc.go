// Package cmd implements the apicheck CLI commands using Cobra.
//
// Available commands:
//   - run: Execute suites, or the built-in reqres.in suite
//   - validate: Load suites and the config file without sending requests
//   - list: Display the cases of a suite
//   - init: Write a starter config file and the reqres example suite
//   - history: Show past runs recorded in the history database
//   - version: Show version information
//
// Exit codes are defined in exitcodes.go; run maps assertion failures,
// transport errors and configuration errors to distinct codes.
package cmd

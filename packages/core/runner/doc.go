// Package runner executes test suites against a target API.
//
// It provides functionality for:
//   - Building each case's request against the configured base URL
//   - Filtering cases by name pattern and tags
//   - Sequential execution with optional bail-out on first failure
//   - Parallel execution with configurable concurrency
//   - Optional request rate limiting
//   - Latency percentiles for the run
//
// Cases are independent: no state flows from one case to the next, so the
// parallel and sequential modes observe the same behaviour.
package runner

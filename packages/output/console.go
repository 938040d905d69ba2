package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/abdul-hamid-achik/apicheck/packages/core/runner"
	"github.com/abdul-hamid-achik/apicheck/packages/jsonpath"
)

// formatValue renders an expected or actual value on one line. Containers
// are summarised and long scalars cut at maxLen.
func formatValue(v any, maxLen int) string {
	var s string
	switch val := v.(type) {
	case nil:
		return "<none>"
	case jsonpath.Value:
		switch val.Kind() {
		case jsonpath.Array:
			return fmt.Sprintf("[array with %d items]", val.Len())
		case jsonpath.Object:
			return fmt.Sprintf("{object with %d keys}", val.Len())
		}
		s = val.String()
	case string:
		s = fmt.Sprintf("%q", val)
	case map[string]string:
		return fmt.Sprintf("{map with %d entries}", len(val))
	default:
		s = fmt.Sprint(v)
	}
	if len(s) > maxLen {
		return s[:maxLen] + "..."
	}
	return s
}

// ConsoleFormatter prints a human readable report as results arrive.
type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool

	pass, fail, warn, dim, bold func(a ...any) string
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{writer: os.Stdout}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	f.pass = color.New(color.FgGreen).SprintFunc()
	f.fail = color.New(color.FgRed).SprintFunc()
	f.warn = color.New(color.FgYellow).SprintFunc()
	f.dim = color.New(color.FgCyan).SprintFunc()
	f.bold = color.New(color.Bold).SprintFunc()
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

// WithVerbose adds the request line, filtered cases and latency percentiles.
func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

func (f *ConsoleFormatter) printf(format string, args ...any) {
	fmt.Fprintf(f.writer, format, args...)
}

func (f *ConsoleFormatter) FormatResult(result *runner.RunResult) {
	title := result.Suite
	if result.File != "" {
		title += " (" + result.File + ")"
	}
	f.printf("\n%s\n\n", f.bold("Running: "+title))

	for _, r := range result.Results {
		f.printCase(r)
	}
	f.printTotals(result)
}

func (f *ConsoleFormatter) printCase(r *runner.CaseResult) {
	switch r.Outcome {
	case runner.OutcomeSkipped:
		if r.SkipReason == runner.SkipFiltered && !f.verbose {
			return
		}
		line := "  " + f.warn("-") + " " + r.Name
		if r.SkipReason != "" {
			line += " (" + r.SkipReason + ")"
		}
		f.printf("%s\n", line)
		return

	case runner.OutcomeErrored:
		f.printf("  %s %s %s\n", f.fail("x"), r.Name, f.fail(fmt.Sprintf("(%v)", r.Error)))
		return
	}

	mark := f.pass("✓")
	if !r.Passed() {
		mark = f.fail("✗")
	}
	f.printf("  %s %s %s\n", mark, r.Name, f.dim(fmt.Sprintf("(%dms)", r.Duration.Milliseconds())))

	if f.verbose && r.Request != nil && r.Response != nil {
		f.printf("    %s %s -> %d\n", r.Request.Method, r.Request.URL, r.Response.StatusCode)
	}

	for _, a := range r.Assertions {
		if a.Passed {
			continue
		}
		f.printf("    %s %s %s\n", f.fail("→"), a.Subject, a.Operator)
		f.printf("      Expected: %s\n", formatValue(a.Expected, 100))
		f.printf("      Actual:   %s\n", formatValue(a.Actual, 100))
		if a.Message != "" {
			f.printf("      %s\n", a.Message)
		}
	}
}

func (f *ConsoleFormatter) printTotals(result *runner.RunResult) {
	var parts []string
	add := func(n int, label string, paint func(a ...any) string) {
		if n > 0 {
			parts = append(parts, paint(fmt.Sprintf("%d %s", n, label)))
		}
	}
	add(result.Passed, "passed", f.pass)
	add(result.Failed, "failed", f.fail)
	add(result.Errored, "errored", f.fail)
	add(result.Skipped, "skipped", f.warn)
	parts = append(parts, fmt.Sprintf("%d total", result.Total()))

	f.printf("\nTests: %s\n", strings.Join(parts, ", "))
	f.printf("Time:  %dms\n", result.Duration.Milliseconds())
	if l := result.Latency; f.verbose && l.Count > 0 {
		f.printf("Latency: p50 %dms, p95 %dms, p99 %dms, max %dms\n",
			l.P50.Milliseconds(), l.P95.Milliseconds(), l.P99.Milliseconds(), l.Max.Milliseconds())
	}
	f.printf("\n")
}

func (f *ConsoleFormatter) FormatError(err error) {
	f.printf("%s %v\n", f.fail("Error:"), err)
}

func (f *ConsoleFormatter) FormatHeader(version string) {
	f.printf("%s %s\n", f.bold("apicheck"), version)
}

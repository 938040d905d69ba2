package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/apicheck/packages/core/runner"
)

// TAPFormatter writes TAP version 13. The plan line needs the final case
// count, so test points are buffered until Flush.
type TAPFormatter struct {
	writer io.Writer
	points int
	body   strings.Builder
}

type TAPOption func(*TAPFormatter)

func NewTAPFormatter(opts ...TAPOption) *TAPFormatter {
	f := &TAPFormatter{writer: os.Stdout}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func TAPWithWriter(w io.Writer) TAPOption {
	return func(f *TAPFormatter) {
		f.writer = w
	}
}

func (f *TAPFormatter) FormatResult(result *runner.RunResult) {
	for _, r := range result.Results {
		f.points++
		name := r.Name
		if result.Suite != "" {
			name = result.Suite + " > " + r.Name
		}
		f.point(f.points, name, r)
	}
}

func (f *TAPFormatter) point(n int, name string, r *runner.CaseResult) {
	b := &f.body
	switch r.Outcome {
	case runner.OutcomePassed:
		fmt.Fprintf(b, "ok %d - %s\n", n, name)

	case runner.OutcomeSkipped:
		reason := r.SkipReason
		if reason == "" {
			reason = "skipped"
		}
		fmt.Fprintf(b, "ok %d - %s # SKIP %s\n", n, name, reason)

	case runner.OutcomeErrored:
		fmt.Fprintf(b, "not ok %d - %s\n", n, name)
		yamlBlock(b, "message: "+escapeYAML(r.Error.Error()), "severity: error")

	default:
		fmt.Fprintf(b, "not ok %d - %s\n", n, name)
		var lines []string
		for _, a := range r.Assertions {
			if !a.Passed {
				lines = append(lines, "  - "+escapeYAML(fmt.Sprintf("%s %s: %s", a.Subject, a.Operator, a.Message)))
			}
		}
		if len(lines) > 0 {
			yamlBlock(b, append([]string{"failures:"}, lines...)...)
		}
	}
}

// yamlBlock writes a TAP diagnostic block.
func yamlBlock(b *strings.Builder, lines ...string) {
	b.WriteString("  ---\n")
	for _, l := range lines {
		b.WriteString("  " + l + "\n")
	}
	b.WriteString("  ...\n")
}

func (f *TAPFormatter) FormatError(err error) {}

func (f *TAPFormatter) FormatHeader(version string) {}

func (f *TAPFormatter) Flush(totalDuration time.Duration) error {
	_, err := fmt.Fprintf(f.writer, "TAP version 13\n1..%d\n%s# duration %dms\n",
		f.points, f.body.String(), totalDuration.Milliseconds())
	return err
}

// escapeYAML quotes s when it would not survive as a plain YAML scalar.
func escapeYAML(s string) string {
	if !strings.ContainsAny(s, ":\n\"'[]{}#&*!|>%@`") {
		return s
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(s) + `"`
}

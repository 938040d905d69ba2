package output

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/apicheck/packages/core/runner"
	apihttp "github.com/abdul-hamid-achik/apicheck/packages/http"
)

// JUnitCounts are the totals every JUnit aggregate element carries.
type JUnitCounts struct {
	Tests    int     `xml:"tests,attr"`
	Failures int     `xml:"failures,attr"`
	Errors   int     `xml:"errors,attr"`
	Skipped  int     `xml:"skipped,attr"`
	Time     float64 `xml:"time,attr"`
}

func (c *JUnitCounts) add(o JUnitCounts) {
	c.Tests += o.Tests
	c.Failures += o.Failures
	c.Errors += o.Errors
	c.Skipped += o.Skipped
}

// JUnitTestSuites is the document root.
type JUnitTestSuites struct {
	XMLName xml.Name `xml:"testsuites"`
	Name    string   `xml:"name,attr,omitempty"`
	JUnitCounts
	Timestamp  string           `xml:"timestamp,attr,omitempty"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite is one suite run.
type JUnitTestSuite struct {
	Name string `xml:"name,attr"`
	JUnitCounts
	Timestamp string          `xml:"timestamp,attr,omitempty"`
	TestCases []JUnitTestCase `xml:"testcase"`
}

type JUnitTestCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitProblem `xml:"failure,omitempty"`
	Error     *JUnitProblem `xml:"error,omitempty"`
	Skipped   *JUnitSkipped `xml:"skipped,omitempty"`
}

// JUnitProblem is the body of a <failure> or <error> element.
type JUnitProblem struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

type JUnitSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

// JUnitFormatter collects suites and writes one XML document on Flush.
type JUnitFormatter struct {
	writer io.Writer
	suites []JUnitTestSuite
	now    func() time.Time
}

type JUnitOption func(*JUnitFormatter)

func NewJUnitFormatter(opts ...JUnitOption) *JUnitFormatter {
	f := &JUnitFormatter{writer: os.Stdout, now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JUnitWithWriter(w io.Writer) JUnitOption {
	return func(f *JUnitFormatter) {
		f.writer = w
	}
}

func (f *JUnitFormatter) FormatResult(result *runner.RunResult) {
	className := result.Suite
	if result.File != "" {
		className = result.File
	}

	s := JUnitTestSuite{
		Name: result.Suite,
		JUnitCounts: JUnitCounts{
			Tests:    result.Total(),
			Failures: result.Failed,
			Errors:   result.Errored,
			Skipped:  result.Skipped,
			Time:     result.Duration.Seconds(),
		},
		Timestamp: f.now().Format(time.RFC3339),
	}
	for _, r := range result.Results {
		s.TestCases = append(s.TestCases, junitCase(className, r))
	}
	f.suites = append(f.suites, s)
}

func junitCase(className string, r *runner.CaseResult) JUnitTestCase {
	tc := JUnitTestCase{Name: r.Name, ClassName: className, Time: r.Duration.Seconds()}

	switch r.Outcome {
	case runner.OutcomeSkipped:
		tc.Skipped = &JUnitSkipped{Message: r.SkipReason}
	case runner.OutcomeErrored:
		tc.Error = &JUnitProblem{Message: r.Error.Error(), Type: errorType(r.Error)}
	case runner.OutcomeFailed:
		var details strings.Builder
		for _, a := range r.Assertions {
			if !a.Passed {
				fmt.Fprintf(&details, "%s %s: expected %s, got %s. %s\n",
					a.Subject, a.Operator, formatValue(a.Expected, 200), formatValue(a.Actual, 200), a.Message)
			}
		}
		tc.Failure = &JUnitProblem{Message: "Assertion failed", Type: "AssertionError", Content: details.String()}
		if first := r.FirstFailure(); first != nil {
			tc.Failure.Message = first.Message
		}
	}
	return tc
}

// errorType names the class of a case error for CI dashboards.
func errorType(err error) string {
	switch {
	case apihttp.IsConfigError(err):
		return "ConfigError"
	case apihttp.IsTransportError(err):
		return "TransportError"
	default:
		return "Error"
	}
}

// FormatError is a no-op: errors are reported on their test cases.
func (f *JUnitFormatter) FormatError(err error) {}

func (f *JUnitFormatter) FormatHeader(version string) {}

func (f *JUnitFormatter) Flush(totalDuration time.Duration) error {
	doc := JUnitTestSuites{
		Name:       "apicheck",
		Timestamp:  f.now().Format(time.RFC3339),
		TestSuites: f.suites,
	}
	for _, s := range f.suites {
		doc.add(s.JUnitCounts)
	}
	doc.Time = totalDuration.Seconds()

	if _, err := io.WriteString(f.writer, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(f.writer)
	enc.Indent("", "  ")
	return enc.Encode(doc)
}

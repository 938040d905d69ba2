package output

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/abdul-hamid-achik/apicheck/packages/assertions"
	"github.com/abdul-hamid-achik/apicheck/packages/core/runner"
)

// JSONOutput is the document written by the json format. Durations are
// milliseconds.
type JSONOutput struct {
	Summary  JSONSummary `json:"summary"`
	Suites   []JSONSuite `json:"suites"`
	Duration float64     `json:"duration"`
	Time     string      `json:"time"`
}

type JSONSummary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Errored int `json:"errored"`
	Skipped int `json:"skipped"`
}

type JSONSuite struct {
	Name     string                `json:"name"`
	File     string                `json:"file,omitempty"`
	Duration float64               `json:"duration"`
	Latency  runner.LatencySummary `json:"latency"`
	Tests    []JSONTest            `json:"tests"`
}

type JSONTest struct {
	Name       string          `json:"name"`
	Outcome    string          `json:"outcome"`
	Tags       []string        `json:"tags,omitempty"`
	SkipReason string          `json:"skipReason,omitempty"`
	Duration   float64         `json:"duration"`
	Error      string          `json:"error,omitempty"`
	Request    *JSONRequest    `json:"request,omitempty"`
	Response   *JSONResponse   `json:"response,omitempty"`
	Assertions []JSONAssertion `json:"assertions,omitempty"`
}

type JSONRequest struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

type JSONResponse struct {
	StatusCode int               `json:"statusCode"`
	Status     string            `json:"status"`
	Headers    map[string]string `json:"headers,omitempty"`
	Duration   float64           `json:"duration"`
}

// JSONAssertion mirrors assertions.Result. Expected and Actual keep their
// JSON types, so a number stays distinguishable from a numeric string.
type JSONAssertion struct {
	Subject  string `json:"subject"`
	Operator string `json:"operator"`
	Expected any    `json:"expected"`
	Actual   any    `json:"actual"`
	Passed   bool   `json:"passed"`
	Message  string `json:"message,omitempty"`
}

type JSONFormatter struct {
	writer io.Writer
	out    JSONOutput
	now    func() time.Time
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer: os.Stdout,
		out:    JSONOutput{Suites: []JSONSuite{}},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

func millis(d time.Duration) float64 {
	return float64(d.Milliseconds())
}

func (f *JSONFormatter) FormatResult(result *runner.RunResult) {
	s := JSONSuite{
		Name:     result.Suite,
		File:     result.File,
		Duration: millis(result.Duration),
		Latency:  result.Latency,
		Tests:    make([]JSONTest, 0, len(result.Results)),
	}
	for _, r := range result.Results {
		s.Tests = append(s.Tests, jsonTest(r))
	}

	sum := &f.out.Summary
	sum.Total += result.Total()
	sum.Passed += result.Passed
	sum.Failed += result.Failed
	sum.Errored += result.Errored
	sum.Skipped += result.Skipped
	f.out.Suites = append(f.out.Suites, s)
}

func jsonTest(r *runner.CaseResult) JSONTest {
	t := JSONTest{
		Name:       r.Name,
		Outcome:    string(r.Outcome),
		Tags:       r.Tags,
		SkipReason: r.SkipReason,
		Duration:   millis(r.Duration),
		Assertions: jsonAssertions(r.Assertions),
	}
	if r.Error != nil {
		t.Error = r.Error.Error()
	}
	if req := r.Request; req != nil {
		t.Request = &JSONRequest{Method: req.Method, URL: req.URL, Headers: req.Headers}
	}
	if resp := r.Response; resp != nil {
		t.Response = &JSONResponse{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Headers:    resp.Headers,
			Duration:   millis(resp.Duration),
		}
	}
	return t
}

func jsonAssertions(results []*assertions.Result) []JSONAssertion {
	if len(results) == 0 {
		return nil
	}
	out := make([]JSONAssertion, len(results))
	for i, a := range results {
		out[i] = JSONAssertion{
			Subject:  a.Subject,
			Operator: a.Operator,
			Expected: a.Expected,
			Actual:   a.Actual,
			Passed:   a.Passed,
			Message:  a.Message,
		}
	}
	return out
}

func (f *JSONFormatter) FormatError(err error) {}

func (f *JSONFormatter) FormatHeader(version string) {}

func (f *JSONFormatter) Flush(totalDuration time.Duration) error {
	f.out.Duration = millis(totalDuration)
	f.out.Time = f.now().Format(time.RFC3339)

	enc := json.NewEncoder(f.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(f.out)
}

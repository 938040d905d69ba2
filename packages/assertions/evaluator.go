package assertions

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/abdul-hamid-achik/apicheck/packages/http"
	"github.com/abdul-hamid-achik/apicheck/packages/jsonpath"
)

type Result struct {
	Passed   bool
	Message  string
	Expected any
	Actual   any
	Subject  string
	Operator string
}

type Evaluator struct {
	response *http.Response
	baseDir  string // Base directory for resolving schema file paths
	failFast bool
}

// EvaluatorOption is a functional option for configuring an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithBaseDir resolves relative schema paths against dir.
func WithBaseDir(dir string) EvaluatorOption {
	return func(e *Evaluator) {
		e.baseDir = dir
	}
}

// WithFailFast controls whether EvaluateAll stops at the first failed
// assertion. It is on by default.
func WithFailFast(failFast bool) EvaluatorOption {
	return func(e *Evaluator) {
		e.failFast = failFast
	}
}

func NewEvaluator(resp *http.Response, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		response: resp,
		failFast: true,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate checks a single assertion. Shape mismatches such as a missing
// path or a non-JSON body produce a failed Result, never an error.
func (e *Evaluator) Evaluate(a Assertion) *Result {
	result := &Result{
		Subject:  a.Subject(),
		Operator: a.Operator(),
		Expected: a.Expected,
	}

	var passed bool
	var msg string
	switch a.Kind {
	case KindStatus:
		result.Actual = e.response.StatusCode
		passed, msg = e.status(a.Expected)
	case KindHeader:
		passed, msg = e.header(a, result)
	case KindEquals, KindNotNull, KindMatches, KindSchema:
		passed, msg = e.body(a, result)
	default:
		msg = fmt.Sprintf("unknown assertion kind: %v", a.Kind)
	}

	result.Passed = passed
	result.Message = msg
	return result
}

// EvaluateAll checks assertions in order. With fail-fast enabled the
// returned slice ends at the first failure.
func (e *Evaluator) EvaluateAll(list []Assertion) []*Result {
	results := make([]*Result, 0, len(list))
	for _, a := range list {
		r := e.Evaluate(a)
		results = append(results, r)
		if !r.Passed && e.failFast {
			break
		}
	}
	return results
}

func EvaluateAll(resp *http.Response, list []Assertion, opts ...EvaluatorOption) []*Result {
	return NewEvaluator(resp, opts...).EvaluateAll(list)
}

// AllPassed reports whether every result passed.
func AllPassed(results []*Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

func (e *Evaluator) status(expected any) (bool, string) {
	code, ok := expected.(int)
	if !ok {
		return false, fmt.Sprintf("expected status must be an integer, got %T", expected)
	}
	if e.response.StatusCode == code {
		return true, ""
	}
	return false, fmt.Sprintf("expected status %d, got %d", code, e.response.StatusCode)
}

func (e *Evaluator) header(a Assertion, result *Result) (bool, string) {
	if !e.headerPresent(a.Path) {
		return false, fmt.Sprintf("header %s not present", a.Path)
	}
	actual := e.response.Header(a.Path)
	result.Actual = actual
	expected := fmt.Sprintf("%v", a.Expected)
	if strings.Contains(actual, expected) {
		return true, ""
	}
	return false, fmt.Sprintf("expected header %s to contain '%s', got '%s'", a.Path, expected, actual)
}

func (e *Evaluator) headerPresent(name string) bool {
	for k := range e.response.Headers {
		if strings.EqualFold(k, name) {
			return true
		}
	}
	return false
}

func (e *Evaluator) body(a Assertion, result *Result) (bool, string) {
	doc, err := e.response.JSON()
	if err != nil {
		if errors.Is(err, jsonpath.ErrEmptyDocument) {
			return false, "response has no body"
		}
		return false, fmt.Sprintf("response body is not JSON: %v", err)
	}

	path, err := jsonpath.Compile(a.Path)
	if err != nil {
		return false, err.Error()
	}

	actual, ok := path.Resolve(doc)
	if !ok {
		return false, fmt.Sprintf("path %s not found in response", a.Path)
	}
	result.Actual = actual

	switch a.Kind {
	case KindEquals:
		return equals(actual, a.Expected)
	case KindNotNull:
		if actual.IsNull() {
			return false, "expected non-null value, got null"
		}
		return true, ""
	case KindMatches:
		return matches(actual, a.Expected)
	default:
		return e.schema(actual, a.Expected)
	}
}

func equals(actual jsonpath.Value, expected any) (bool, string) {
	want, err := jsonpath.FromGo(expected)
	if err != nil {
		return false, fmt.Sprintf("invalid expected value: %v", err)
	}
	if actual.Equal(want) {
		return true, ""
	}
	if actual.Kind() != want.Kind() {
		return false, fmt.Sprintf("expected %s %s, got %s %s", want.Kind(), want, actual.Kind(), actual)
	}
	return false, fmt.Sprintf("expected %s, got %s", want, actual)
}

func matches(actual jsonpath.Value, expected any) (bool, string) {
	pattern := fmt.Sprintf("%v", expected)
	pattern = strings.TrimPrefix(pattern, "/")
	pattern = strings.TrimSuffix(pattern, "/")

	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Sprintf("invalid regex pattern: %v", err)
	}

	s, ok := actual.Str()
	if !ok {
		return false, fmt.Sprintf("expected string, got %s", actual.Kind())
	}
	if re.MatchString(s) {
		return true, ""
	}
	return false, fmt.Sprintf("expected '%s' to match /%s/", s, pattern)
}

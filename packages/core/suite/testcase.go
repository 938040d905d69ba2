package suite

import (
	"errors"
	"fmt"
	"strings"

	"github.com/abdul-hamid-achik/apicheck/packages/assertions"
	"github.com/abdul-hamid-achik/apicheck/packages/http"
)

// TestCase is one declarative request plus its expectations. Cases are
// independent of each other and immutable once loaded.
type TestCase struct {
	Name         string
	Description  string
	Tags         []string
	Method       string
	Path         string
	Query        map[string]string
	Headers      map[string]string
	ContentType  string
	Body         any
	RawBody      string
	ExpectStatus int
	Assertions   []assertions.Assertion
	Skip         string
}

// Suite is an ordered collection of test cases loaded from one source.
type Suite struct {
	Name        string
	Description string
	Path        string // Source file; empty for the built-in suite
	Dir         string // Directory schema files are resolved against
	Variables   map[string]string
	Cases       []*TestCase
}

// ValidationError points at the case that failed validation.
type ValidationError struct {
	Suite string
	Case  string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Case == "" {
		return fmt.Sprintf("suite %s: %v", e.Suite, e.Err)
	}
	return fmt.Sprintf("suite %s: case %s: %v", e.Suite, e.Case, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// RequestSpec converts the case into a request description for the
// http package.
func (tc *TestCase) RequestSpec() http.RequestSpec {
	return http.RequestSpec{
		Method:      tc.Method,
		Path:        tc.Path,
		Query:       tc.Query,
		Headers:     tc.Headers,
		ContentType: tc.ContentType,
		Body:        tc.Body,
		RawBody:     tc.RawBody,
	}
}

// AllAssertions returns the status assertion followed by the case's
// ordered field assertions.
func (tc *TestCase) AllAssertions() []assertions.Assertion {
	list := make([]assertions.Assertion, 0, len(tc.Assertions)+1)
	list = append(list, assertions.Status(tc.ExpectStatus))
	return append(list, tc.Assertions...)
}

func (tc *TestCase) HasTag(tag string) bool {
	for _, t := range tc.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Validate checks the case without touching the network.
func (tc *TestCase) Validate() error {
	var errs []error

	if strings.TrimSpace(tc.Name) == "" {
		errs = append(errs, fmt.Errorf("name is required"))
	}
	if !http.IsSupportedMethod(tc.Method) {
		errs = append(errs, fmt.Errorf("unsupported method %q (want GET, POST, PUT, PATCH or DELETE)", tc.Method))
	}
	if strings.TrimSpace(tc.Path) == "" {
		errs = append(errs, fmt.Errorf("path is required"))
	} else if strings.Contains(tc.Path, "://") {
		errs = append(errs, fmt.Errorf("path %q must be relative to the base URL", tc.Path))
	}
	if tc.ExpectStatus < 100 || tc.ExpectStatus > 599 {
		errs = append(errs, fmt.Errorf("expected status %d is not a valid HTTP status", tc.ExpectStatus))
	}
	if tc.Body != nil && tc.RawBody != "" {
		errs = append(errs, fmt.Errorf("body and raw_body are mutually exclusive"))
	}

	for i, a := range tc.Assertions {
		if err := a.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("assertion %d: %w", i+1, err))
			continue
		}
		if tc.ExpectStatus == 204 && a.IsBodyAssertion() {
			errs = append(errs, fmt.Errorf("assertion %d: %s inspects the body but status 204 has none", i+1, a))
		}
	}

	return errors.Join(errs...)
}

// Validate checks every case and that case names are unique. All
// problems are reported together.
func (s *Suite) Validate() error {
	var errs []error
	if len(s.Cases) == 0 {
		errs = append(errs, &ValidationError{Suite: s.Name, Err: fmt.Errorf("no test cases")})
	}

	seen := make(map[string]bool)
	for _, tc := range s.Cases {
		if err := tc.Validate(); err != nil {
			errs = append(errs, &ValidationError{Suite: s.Name, Case: tc.Name, Err: err})
		}
		if tc.Name != "" && seen[tc.Name] {
			errs = append(errs, &ValidationError{Suite: s.Name, Case: tc.Name, Err: fmt.Errorf("duplicate case name")})
		}
		seen[tc.Name] = true
	}
	return errors.Join(errs...)
}

// Find returns the case with the given name, or nil.
func (s *Suite) Find(name string) *TestCase {
	for _, tc := range s.Cases {
		if tc.Name == name {
			return tc
		}
	}
	return nil
}

// Tags returns the distinct tags used in the suite in first-seen order.
func (s *Suite) Tags() []string {
	seen := make(map[string]bool)
	var tags []string
	for _, tc := range s.Cases {
		for _, t := range tc.Tags {
			if !seen[t] {
				seen[t] = true
				tags = append(tags, t)
			}
		}
	}
	return tags
}
